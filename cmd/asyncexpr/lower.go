package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"asyncexpr/internal/diag"
	"asyncexpr/internal/expr"
	"asyncexpr/internal/lower"
	"asyncexpr/internal/report"
	"asyncexpr/internal/samples"
)

var lowerCmd = &cobra.Command{
	Use:   "lower <sample>",
	Short: "Lower a sample and print its state machines",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, ok := samples.Lookup(args[0])
		if !ok {
			return fmt.Errorf("unknown sample %q (see asyncexpr list)", args[0])
		}
		opts, err := lowerOptions(cmd)
		if err != nil {
			return err
		}
		dumpTree, _ := cmd.Flags().GetBool("dump")
		showSource, _ := cmd.Flags().GetBool("source")
		outPath, _ := cmd.Flags().GetString("out")
		style, err := textStyle(cmd)
		if err != nil {
			return err
		}

		tree := s.Build(samples.NewEnv())
		out := cmd.OutOrStdout()
		if showSource {
			if err := expr.Dump(out, tree); err != nil {
				return err
			}
		}
		res, err := lower.Lower(cmd.Context(), tree, opts)
		if err != nil {
			return reportDiagnostics(cmd, s.Name, err)
		}
		rec, err := report.FromResult(s.Name, res)
		if err != nil {
			return err
		}
		rec.Title = s.Title
		if err := report.WriteMachines(out, rec, style); err != nil {
			return err
		}
		if dumpTree {
			if err := expr.Dump(out, res.Lambda); err != nil {
				return err
			}
		}
		if style.Timings {
			fmt.Fprint(out, res.Timings.Summary())
		}
		if outPath != "" {
			return writeRecords(outPath, []*report.Record{rec})
		}
		return nil
	},
}

func init() {
	addLowerFlags(lowerCmd)
	lowerCmd.Flags().Bool("dump", false, "print the lowered expression tree")
	lowerCmd.Flags().Bool("source", false, "print the input expression tree")
	lowerCmd.Flags().StringP("out", "o", "", "write the machine report to a msgpack file")
}

func writeRecords(path string, records []*report.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", path, err)
	}
	if err := report.Encode(f, records); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %q: %w", path, err)
	}
	return f.Close()
}

// textStyle resolves --color and --timings.
func textStyle(cmd *cobra.Command) (report.Style, error) {
	colorFlag, err := cmd.Flags().GetString("color")
	if err != nil {
		return report.Style{}, err
	}
	on, err := useColor(colorFlag)
	if err != nil {
		return report.Style{}, err
	}
	timings, err := cmd.Flags().GetBool("timings")
	if err != nil {
		return report.Style{}, err
	}
	return report.Style{Color: on, Timings: timings}, nil
}

// reportDiagnostics prints the diagnostics a failed lowering collected to
// stderr and condenses err into a one-line summary.
func reportDiagnostics(cmd *cobra.Command, name string, err error) error {
	var de *diag.Error
	if !errors.As(err, &de) {
		return fmt.Errorf("%s: %w", name, err)
	}
	items := de.Bag.Items()
	fmt.Fprintln(cmd.ErrOrStderr(), diag.FormatShort(items, true))
	return fmt.Errorf("%s: lowering failed with %d diagnostic(s)", name, len(items))
}
