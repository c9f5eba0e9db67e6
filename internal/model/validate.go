package model

import (
	"strings"
)

// ValidationError holds a list of field-level validation errors.
// It matches ErrInvalidArgument under errors.Is.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + " " + fe.Message
	}
	return strings.Join(parts, "; ")
}

// Unwrap lets errors.Is(err, ErrInvalidArgument) succeed.
func (e *ValidationError) Unwrap() error { return ErrInvalidArgument }

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// pathUnsafe are characters that cannot appear in a tree-store key segment.
const pathUnsafe = "/#$[]"

// ReleaseKey validates a (switch, release) pair and returns the trimmed switch
// name and normalized release identifier. It returns a *ValidationError when
// either part is blank or contains a character that would break the store path.
func ReleaseKey(switchName, release string) (string, string, error) {
	var ve ValidationError

	name := strings.TrimSpace(switchName)
	switch {
	case name == "":
		ve.Errors = append(ve.Errors, FieldError{Field: "switch", Message: "is required"})
	case strings.ContainsAny(name, pathUnsafe+"."):
		ve.Errors = append(ve.Errors, FieldError{Field: "switch", Message: "must not contain any of " + pathUnsafe + "."})
	}

	rel := NormalizeRelease(release)
	switch {
	case rel == "":
		ve.Errors = append(ve.Errors, FieldError{Field: "release", Message: "is required"})
	case strings.ContainsAny(rel, pathUnsafe):
		ve.Errors = append(ve.Errors, FieldError{Field: "release", Message: "must not contain any of " + pathUnsafe})
	}

	if ve.HasErrors() {
		return "", "", &ve
	}
	return name, rel, nil
}

// SwitchName validates a switch name on its own (used by listing).
func SwitchName(switchName string) (string, error) {
	name, _, err := ReleaseKey(switchName, "_")
	return name, err
}
