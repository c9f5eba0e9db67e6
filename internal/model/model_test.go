package model

import (
	"encoding/json"
	"testing"
)

func TestMode_IsKnown(t *testing.T) {
	for _, tc := range []struct {
		mode Mode
		want bool
	}{
		{ModeRestricted, true},
		{ModeOpen, true},
		{ModeClosed, true},
		{"restricted", false},
		{"", false},
		{"CUSTOM", false},
	} {
		if got := tc.mode.IsKnown(); got != tc.want {
			t.Errorf("Mode(%q).IsKnown() = %v, want %v", tc.mode, got, tc.want)
		}
	}
}

func TestNormalizeRelease(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"1.0", "1_0"},
		{" 2.10.3 ", "2_10_3"},
		{"1_0", "1_0"},
		{"", ""},
	} {
		if got := NormalizeRelease(tc.in); got != tc.want {
			t.Errorf("NormalizeRelease(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestReleaseConfig_JSONFieldNames(t *testing.T) {
	data, err := json.Marshal(ReleaseConfig{Mode: ModeRestricted, BasedOn: "Responsibility"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"mode":"RESTRICTED","basedOn":"Responsibility","accessControl":""}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestRelease_EmbedsConfig(t *testing.T) {
	data, err := json.Marshal(Release{Release: "1_0", ReleaseConfig: ReleaseConfig{Mode: ModeOpen}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"release":"1_0","mode":"OPEN","basedOn":"","accessControl":""}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestDefectLog_Index(t *testing.T) {
	log := DefectLog{
		{Date: "2024-01-01"},
		{Date: "2024-01-02"},
	}
	if i := log.Index("2024-01-02"); i != 1 {
		t.Errorf("Index(2024-01-02) = %d, want 1", i)
	}
	// Exact string equality: no date normalization.
	if i := log.Index("2024-1-1"); i != -1 {
		t.Errorf("Index(2024-1-1) = %d, want -1", i)
	}
}
