package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"asyncexpr/internal/drive"
	"asyncexpr/internal/report"
)

var runCmd = &cobra.Command{
	Use:   "run [sample...]",
	Short: "Lower samples, run them and check their results",
	RunE: func(cmd *cobra.Command, args []string) error {
		picked, err := pickSamples(args)
		if err != nil {
			return err
		}
		opts, err := lowerOptions(cmd)
		if err != nil {
			return err
		}
		style, err := textStyle(cmd)
		if err != nil {
			return err
		}

		records := make([]*report.Record, 0, len(picked))
		failed := 0
		for _, s := range picked {
			out, err := drive.Sample(cmd.Context(), s, opts)
			if err != nil {
				return reportDiagnostics(cmd, s.Name, err)
			}
			rec, err := report.FromResult(s.Name, out.Result)
			if err != nil {
				return err
			}
			checkErr := drive.Check(s, out)
			if checkErr != nil {
				failed++
			}
			rec.Title = s.Title
			rec.SetOutcome(out.Value, out.Err, out.Steps, checkErr)
			records = append(records, rec)
		}
		if err := report.WriteTable(cmd.OutOrStdout(), records, style); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d samples failed", failed, len(picked))
		}
		return nil
	},
}

func init() {
	addLowerFlags(runCmd)
}
