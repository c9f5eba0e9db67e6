package model

import "strings"

// Mode is the access mode of a switch release.
// Well-known constants are provided below, but modes are open-ended;
// any caller-supplied value is stored as-is.
type Mode string

const (
	ModeRestricted Mode = "RESTRICTED"
	ModeOpen       Mode = "OPEN"
	ModeClosed     Mode = "CLOSED"
)

// KnownModes lists the modes offered by the switch editor, in display order.
var KnownModes = []Mode{ModeRestricted, ModeOpen, ModeClosed}

// String returns the string representation of the mode.
func (m Mode) String() string {
	return string(m)
}

// IsKnown reports whether the mode is one of KnownModes.
func (m Mode) IsKnown() bool {
	for _, k := range KnownModes {
		if m == k {
			return true
		}
	}
	return false
}

// Defaults used when a new release is added without explicit values.
const (
	DefaultMode    = ModeRestricted
	DefaultBasedOn = "Responsibility"
)

// ReleaseConfig is the configuration of one switch at one release.
// It is replaced wholesale on edit.
type ReleaseConfig struct {
	Mode          Mode   `json:"mode"`
	BasedOn       string `json:"basedOn"`
	AccessControl string `json:"accessControl"`
}

// Release pairs a release identifier with its configuration.
type Release struct {
	Release string `json:"release"`
	ReleaseConfig
}

// NormalizeRelease trims the release identifier and replaces dots with
// underscores ("1.0" becomes "1_0"); tree-store keys cannot contain '.'.
func NormalizeRelease(release string) string {
	return strings.ReplaceAll(strings.TrimSpace(release), ".", "_")
}
