package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var switchCmd = &cobra.Command{
	Use:     "switch",
	Short:   "Inspect registered switches",
	GroupID: "switches",
}

var switchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all switch names",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		switches, err := sbClient.ListSwitches(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing switches: %w", err)
		}
		if jsonOutput {
			printJSON(cmd.OutOrStdout(), switches)
			return nil
		}
		printSwitchList(cmd.OutOrStdout(), switches)
		return nil
	},
}

var switchShowCmd = &cobra.Command{
	Use:   "show <switch>",
	Short: "Show every release configured for a switch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		releases, err := sbClient.ListReleases(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("listing releases of %s: %w", args[0], err)
		}
		if jsonOutput {
			printJSON(cmd.OutOrStdout(), releases)
			return nil
		}
		printReleaseTable(cmd.OutOrStdout(), releases)
		return nil
	},
}

func init() {
	switchCmd.AddCommand(switchListCmd)
	switchCmd.AddCommand(switchShowCmd)
}
