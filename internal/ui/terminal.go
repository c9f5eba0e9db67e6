package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ShouldUseColor returns true when ANSI colors should be used on stdout.
// It respects NO_COLOR, CLICOLOR_FORCE, CLICOLOR, and TTY detection.
func ShouldUseColor() bool {
	return colorEnabled(os.Getenv, func() bool { return term.IsTerminal(int(os.Stdout.Fd())) })
}

// colorEnabled applies the color conventions in precedence order; isTTY is
// only consulted when no variable decides.
func colorEnabled(getenv func(string) string, isTTY func() bool) bool {
	// https://no-color.org: any non-empty value disables color.
	if getenv("NO_COLOR") != "" {
		return false
	}
	if strings.TrimSpace(getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	if strings.TrimSpace(getenv("CLICOLOR")) == "0" {
		return false
	}
	return isTTY()
}
