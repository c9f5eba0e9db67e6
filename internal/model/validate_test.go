package model

import (
	"errors"
	"testing"
)

// fieldErrors extracts a *ValidationError from err or fails the test.
func fieldErrors(t *testing.T, err error) []FieldError {
	t.Helper()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	return ve.Errors
}

// hasFieldError reports whether the error list contains an error for the given field.
func hasFieldError(errs []FieldError, field string) bool {
	for _, fe := range errs {
		if fe.Field == field {
			return true
		}
	}
	return false
}

func TestReleaseKey_Valid(t *testing.T) {
	for _, tc := range []struct {
		name, release         string
		wantName, wantRelease string
	}{
		{"login", "1_0", "login", "1_0"},
		{"  login  ", " 1_0 ", "login", "1_0"},
		{"login", "1.0", "login", "1_0"},
		{"payments-v2", "2.3.1", "payments-v2", "2_3_1"},
	} {
		name, rel, err := ReleaseKey(tc.name, tc.release)
		if err != nil {
			t.Fatalf("ReleaseKey(%q, %q): unexpected error: %v", tc.name, tc.release, err)
		}
		if name != tc.wantName || rel != tc.wantRelease {
			t.Errorf("ReleaseKey(%q, %q) = (%q, %q), want (%q, %q)", tc.name, tc.release, name, rel, tc.wantName, tc.wantRelease)
		}
	}
}

func TestReleaseKey_Blank(t *testing.T) {
	errs := fieldErrors(t, mustFail(ReleaseKey("   ", "\t")))
	if !hasFieldError(errs, "switch") {
		t.Error("expected error on field 'switch'")
	}
	if !hasFieldError(errs, "release") {
		t.Error("expected error on field 'release'")
	}
}

func TestReleaseKey_UnsafeCharacters(t *testing.T) {
	for _, tc := range []struct {
		name, release, field string
	}{
		{"a/b", "1_0", "switch"},
		{"a.b", "1_0", "switch"},
		{"login", "1/0", "release"},
		{"login", "v#1", "release"},
		{"login", "[1]", "release"},
		{"$login", "1_0", "switch"},
	} {
		errs := fieldErrors(t, mustFail(ReleaseKey(tc.name, tc.release)))
		if !hasFieldError(errs, tc.field) {
			t.Errorf("ReleaseKey(%q, %q): expected error on %q, got %v", tc.name, tc.release, tc.field, errs)
		}
	}
}

func TestValidationError_IsInvalidArgument(t *testing.T) {
	_, _, err := ReleaseKey("", "1_0")
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected errors.Is(err, ErrInvalidArgument), got %v", err)
	}
	if got, want := err.Error(), "switch is required"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestSwitchName(t *testing.T) {
	if name, err := SwitchName(" login "); err != nil || name != "login" {
		t.Fatalf("SwitchName = (%q, %v), want (login, nil)", name, err)
	}
	if _, err := SwitchName(""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("SwitchName(\"\") error = %v, want ErrInvalidArgument", err)
	}
}

func mustFail(_, _ string, err error) error { return err }
