package ui

import "fmt"

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent     = 74  // blue
	colorCmd        = 250 // light gray
	colorMuted      = 245 // medium gray
	colorOpen       = 114 // green
	colorRestricted = 179 // amber
	colorClosed     = 167 // red
)

var noColor bool

func render(color int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return render(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return render(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return render(colorCmd, s) }

// RenderMode colors a release mode by how permissive it is. Modes outside the
// well-known set are returned unstyled.
func RenderMode(mode string) string {
	switch mode {
	case "OPEN":
		return render(colorOpen, mode)
	case "RESTRICTED":
		return render(colorRestricted, mode)
	case "CLOSED":
		return render(colorClosed, mode)
	default:
		return mode
	}
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
