package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/alfredjeanlab/switchboard/internal/defects"
	"github.com/alfredjeanlab/switchboard/internal/model"
)

// recordDefectsInput is the body of POST /v1/defects. Defects stays raw so a
// non-list value reaches the core as nil rather than failing the decode.
type recordDefectsInput struct {
	Date    string          `json:"date"`
	Defects json.RawMessage `json:"defects"`
}

// defectItems returns the list in raw, or nil when raw is not a JSON array.
func defectItems(raw json.RawMessage) ([]model.DefectItem, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, nil
	}
	var items []model.DefectItem
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []model.DefectItem{}
	}
	return items, nil
}

// handleGetDefectLog handles GET /v1/defects.
func (s *SwitchboardServer) handleGetDefectLog(w http.ResponseWriter, r *http.Request) {
	log, err := s.defects.GetLog(r.Context())
	if err != nil {
		s.writeCoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

// handleRecordDefects handles POST /v1/defects.
func (s *SwitchboardServer) handleRecordDefects(w http.ResponseWriter, r *http.Request) {
	var in recordDefectsInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	items, err := defectItems(in.Defects)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid defects list")
		return
	}

	if err := s.defects.RecordDefects(r.Context(), in.Date, items); err != nil {
		s.writeCoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": defects.SavedMessage})
}
