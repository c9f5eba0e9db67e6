package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check that the switchboard server is reachable and healthy",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint := httpURL
		if transport == "grpc" {
			endpoint = serverAddr
		}

		start := time.Now()
		status, err := sbClient.Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("checking health of %s: %w", endpoint, err)
		}
		elapsed := time.Since(start).Round(time.Millisecond)

		w := cmd.OutOrStdout()
		if jsonOutput {
			printJSON(w, map[string]any{
				"status":     status,
				"endpoint":   endpoint,
				"transport":  transport,
				"latency_ms": elapsed.Milliseconds(),
			})
		} else {
			fmt.Fprintf(w, "Health: %s (%s via %s, %s)\n", status, endpoint, transport, elapsed)
		}
		if status != "ok" {
			return fmt.Errorf("unhealthy: %s", status)
		}
		return nil
	},
}
