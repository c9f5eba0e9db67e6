package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/switchboard/internal/model"
)

var defectCmd = &cobra.Command{
	Use:     "defect",
	Short:   "Record and inspect the dated defect log",
	GroupID: "defects",
}

var defectRecordCmd = &cobra.Command{
	Use:   "record <date>",
	Short: "Append defects to the entry for a date",
	Long: `Append defects to the entry for a date. The defects are read as a JSON
array from --file, or from stdin when --file is "-" or omitted. Each array
element is stored as-is.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")

		items, err := readDefects(cmd.InOrStdin(), path)
		if err != nil {
			return err
		}

		msg, err := sbClient.RecordDefects(cmd.Context(), args[0], items)
		if err != nil {
			return fmt.Errorf("recording defects for %s: %w", args[0], err)
		}
		if jsonOutput {
			printJSON(cmd.OutOrStdout(), map[string]string{"message": msg})
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}

var defectLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the defect log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := sbClient.GetDefectLog(cmd.Context())
		if err != nil {
			return fmt.Errorf("getting defect log: %w", err)
		}
		if jsonOutput {
			printJSON(cmd.OutOrStdout(), log)
			return nil
		}
		printDefectLog(cmd.OutOrStdout(), log)
		return nil
	},
}

// readDefects decodes a JSON array of defect items from path, or from stdin
// when path is empty or "-".
func readDefects(stdin io.Reader, path string) ([]model.DefectItem, error) {
	r := stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening defects file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var items []model.DefectItem
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("decoding defects: expected a JSON array: %w", err)
	}
	return items, nil
}

func init() {
	defectRecordCmd.Flags().StringP("file", "f", "", "JSON file with an array of defects (- for stdin)")

	defectCmd.AddCommand(defectRecordCmd)
	defectCmd.AddCommand(defectLogCmd)
}
