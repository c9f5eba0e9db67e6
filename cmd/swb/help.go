package main

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/switchboard/internal/model"
	"github.com/alfredjeanlab/switchboard/internal/ui"
)

// helpRule styles capture group `group` of every match of re.
type helpRule struct {
	re    *regexp.Regexp
	group int
	style func(string) string
}

func (r helpRule) apply(s string) string {
	var b strings.Builder
	last := 0
	for _, m := range r.re.FindAllStringSubmatchIndex(s, -1) {
		start, end := m[2*r.group], m[2*r.group+1]
		if start < 0 {
			continue
		}
		b.WriteString(s[last:start])
		b.WriteString(r.style(s[start:end]))
		last = end
	}
	b.WriteString(s[last:])
	return b.String()
}

// helpRules run in order over cobra's plain help text. Modes go last so a
// mode inside a muted default keeps its own color.
var helpRules = []helpRule{
	// Section headers such as "Switches:" and "Flags:".
	{regexp.MustCompile(`(?m)^([A-Z][^\n]*:)[ \t]*$`), 1, ui.RenderAccent},
	// Command names in the command lists.
	{regexp.MustCompile(`(?m)^  (\S+)  `), 1, ui.RenderCommand},
	// Flag value types.
	{regexp.MustCompile(`--?\S+\s+(string|int|duration|stringSlice)\b`), 1, ui.RenderMuted},
	{regexp.MustCompile(`(\(default "[^"]*"\))`), 1, ui.RenderMuted},
	// Environment variables named in long descriptions.
	{regexp.MustCompile(`\b(SWITCHBOARD_[A-Z_]+)\b`), 1, ui.RenderAccent},
	{regexp.MustCompile(`\b(` + modePattern() + `)\b`), 1, ui.RenderMode},
}

func modePattern() string {
	names := make([]string, len(model.KnownModes))
	for i, m := range model.KnownModes {
		names[i] = regexp.QuoteMeta(m.String())
	}
	return strings.Join(names, "|")
}

// colorizedHelpFunc renders cobra's usage through colorizeHelpOutput when
// stdout supports color.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		if !ui.ShouldUseColor() {
			cmd.SetOut(out)
			_ = cmd.Usage()
			return
		}
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(out)
		_, _ = out.Write([]byte(colorizeHelpOutput(buf.String())))
	}
}

func colorizeHelpOutput(s string) string {
	for _, r := range helpRules {
		s = r.apply(s)
	}
	return s
}
