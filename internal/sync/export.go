package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/switchboard/internal/model"
)

// Releases is the read side of the switch registry.
type Releases interface {
	ListSwitches(ctx context.Context) ([]string, error)
	ListReleases(ctx context.Context, switchName string) (map[string]model.ReleaseConfig, error)
}

// Defects is the read side of the defect log.
type Defects interface {
	GetLog(ctx context.Context) (model.DefectLog, error)
}

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version      string    `json:"version"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	SwitchCount  int       `json:"switch_count"`
	ReleaseCount int       `json:"release_count"`
	DefectCount  int       `json:"defect_entry_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// releaseRecord is one switch release, flattened for line-oriented tools.
type releaseRecord struct {
	Switch  string `json:"switch"`
	Release string `json:"release"`
	model.ReleaseConfig
}

// ExportJSONL writes every release and every defect-log entry as JSONL to w.
// Releases are sorted by switch then release; defect entries keep log order.
func ExportJSONL(ctx context.Context, releases Releases, defects Defects, w io.Writer) error {
	switches, err := releases.ListSwitches(ctx)
	if err != nil {
		return fmt.Errorf("list switches: %w", err)
	}

	var recs []releaseRecord
	for _, name := range switches {
		rels, err := releases.ListReleases(ctx, name)
		if err != nil {
			return fmt.Errorf("list releases of %s: %w", name, err)
		}
		keys := make([]string, 0, len(rels))
		for k := range rels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			recs = append(recs, releaseRecord{Switch: name, Release: k, ReleaseConfig: rels[k]})
		}
	}

	log, err := defects.GetLog(ctx)
	if err != nil {
		return fmt.Errorf("read defect log: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:      "1",
		Type:         "header",
		Timestamp:    time.Now().UTC(),
		SwitchCount:  len(switches),
		ReleaseCount: len(recs),
		DefectCount:  len(log),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, r := range recs {
		if err := enc.Encode(record{Type: "release", Data: r}); err != nil {
			return fmt.Errorf("encode release %s/%s: %w", r.Switch, r.Release, err)
		}
	}

	for _, e := range log {
		if err := enc.Encode(record{Type: "defects", Data: e}); err != nil {
			return fmt.Errorf("encode defects %s: %w", e.Date, err)
		}
	}

	return nil
}
