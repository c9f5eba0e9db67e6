package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/alfredjeanlab/switchboard/internal/model"
	"github.com/alfredjeanlab/switchboard/internal/ui"
)

func printJSON(w io.Writer, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Fprintln(w, string(data))
}

func printSwitchList(w io.Writer, switches []string) {
	if len(switches) == 0 {
		fmt.Fprintln(w, "no switches")
		return
	}
	for _, s := range switches {
		fmt.Fprintln(w, s)
	}
	fmt.Fprintf(w, "\n%d switches\n", len(switches))
}

// printReleaseTable prints a switch's releases sorted by release identifier.
func printReleaseTable(w io.Writer, releases map[string]model.ReleaseConfig) {
	if len(releases) == 0 {
		fmt.Fprintln(w, "no releases")
		return
	}
	keys := make([]string, 0, len(releases))
	for k := range releases {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RELEASE\tMODE\tBASED ON\tACCESS CONTROL")
	for _, k := range keys {
		cfg := releases[k]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", k, cfg.Mode, cfg.BasedOn, cfg.AccessControl)
	}
	tw.Flush()
}

func printRelease(w io.Writer, switchName string, rel *model.Release) {
	fmt.Fprintf(w, "Switch:         %s\n", switchName)
	fmt.Fprintf(w, "Release:        %s\n", rel.Release)
	fmt.Fprintf(w, "Mode:           %s\n", ui.RenderMode(rel.Mode.String()))
	fmt.Fprintf(w, "Based On:       %s\n", rel.BasedOn)
	if rel.AccessControl != "" {
		fmt.Fprintf(w, "Access Control: %s\n", rel.AccessControl)
	}
}

// printDefectLog prints one line per date with the number of defects recorded.
func printDefectLog(w io.Writer, log model.DefectLog) {
	if len(log) == 0 {
		fmt.Fprintln(w, "no defects recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tDEFECTS")
	for _, e := range log {
		fmt.Fprintf(tw, "%s\t%d\n", e.Date, len(e.Defects))
	}
	tw.Flush()
}
