package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"asyncexpr/internal/report"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <report.mp>",
	Short: "Print a machine report written by lower or batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open report: %w", err)
		}
		defer f.Close()
		records, err := report.Decode(f)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		style, err := textStyle(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if err := report.WriteTable(out, records, style); err != nil {
			return err
		}
		if states, _ := cmd.Flags().GetBool("states"); states {
			for _, rec := range records {
				fmt.Fprintln(out)
				if err := report.WriteMachines(out, rec, style); err != nil {
					return err
				}
			}
		}
		return nil
	},
}

func init() {
	inspectCmd.Flags().Bool("states", false, "list every machine state")
}
