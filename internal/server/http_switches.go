package server

import (
	"encoding/json"
	"net/http"

	"github.com/alfredjeanlab/switchboard/internal/model"
)

// createReleaseInput is the body of POST /v1/switches/{name}/releases.
type createReleaseInput struct {
	Release string `json:"release"`
	model.ReleaseConfig
}

// handleListSwitches handles GET /v1/switches.
func (s *SwitchboardServer) handleListSwitches(w http.ResponseWriter, r *http.Request) {
	names, err := s.registry.ListSwitches(r.Context())
	if err != nil {
		s.writeCoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"switches": names})
}

// handleListReleases handles GET /v1/switches/{name}/releases.
func (s *SwitchboardServer) handleListReleases(w http.ResponseWriter, r *http.Request) {
	releases, err := s.registry.ListReleases(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeCoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"releases": releases})
}

// handleGetRelease handles GET /v1/switches/{name}/releases/{release}.
func (s *SwitchboardServer) handleGetRelease(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.registry.GetRelease(r.Context(), r.PathValue("name"), r.PathValue("release"))
	if err != nil {
		s.writeCoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handleCreateRelease handles POST /v1/switches/{name}/releases.
func (s *SwitchboardServer) handleCreateRelease(w http.ResponseWriter, r *http.Request) {
	var in createReleaseInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rel, err := s.registry.CreateRelease(r.Context(), r.PathValue("name"), in.Release, in.ReleaseConfig)
	if err != nil {
		s.writeCoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rel)
}

// handleUpdateRelease handles PUT /v1/switches/{name}/releases/{release}.
// The body replaces the whole configuration; omitted fields become empty.
func (s *SwitchboardServer) handleUpdateRelease(w http.ResponseWriter, r *http.Request) {
	var cfg model.ReleaseConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rel, err := s.registry.UpdateRelease(r.Context(), r.PathValue("name"), r.PathValue("release"), cfg)
	if err != nil {
		s.writeCoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}
