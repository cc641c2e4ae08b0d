package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"asyncexpr/internal/batch"
	"asyncexpr/internal/report"
	"asyncexpr/internal/version"
)

var batchCmd = &cobra.Command{
	Use:   "batch [sample...]",
	Short: "Lower and run samples concurrently",
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
		jobs := cfg.Batch.Jobs
		if cmd.Flags().Changed("jobs") {
			if jobs, err = cmd.Flags().GetInt("jobs"); err != nil {
				return err
			}
		}
		uiValue, err := stringSetting(cmd, "ui", cfg.Batch.UI)
		if err != nil {
			return err
		}
		mode, err := readUIMode(uiValue)
		if err != nil {
			return err
		}
		useCache := cfg.Report.Cache
		if cmd.Flags().Changed("cache") {
			useCache, _ = cmd.Flags().GetBool("cache")
		}
		outPath, _ := cmd.Flags().GetString("out")

		req := &batch.Request{
			Samples:     picked,
			Options:     opts,
			Jobs:        jobs,
			Fingerprint: version.Fingerprint(),
		}
		if useCache {
			cache, err := report.OpenCache(cfg.Report.Dir, "asyncexpr")
			if err != nil {
				return fmt.Errorf("failed to open report cache: %w", err)
			}
			if drop, _ := cmd.Flags().GetBool("drop-cache"); drop {
				if err := cache.DropAll(); err != nil {
					return err
				}
			}
			req.Cache = cache
		}

		var sum *batch.Summary
		if shouldUseTUI(mode) {
			sum, err = runBatchWithUI(cmd.Context(), "lowering samples", req)
		} else {
			sum, err = batch.Run(cmd.Context(), req)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if err := report.WriteTable(out, sum.Records(), style); err != nil {
			return err
		}
		if style.Timings {
			fmt.Fprintf(out, "\nlowering phases (all samples, %s wall):\n%s", sum.Elapsed.Round(time.Millisecond), sum.Phases.Summary())
		}
		if outPath != "" {
			if err := writeRecords(outPath, sum.Records()); err != nil {
				return err
			}
		}
		if n := sum.Failed(); n > 0 {
			return fmt.Errorf("%d of %d samples failed", n, len(picked))
		}
		return nil
	},
}

func init() {
	addLowerFlags(batchCmd)
	batchCmd.Flags().IntP("jobs", "j", 0, "samples lowered in parallel (0 = GOMAXPROCS)")
	batchCmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
	batchCmd.Flags().Bool("cache", false, "reuse records from the report cache")
	batchCmd.Flags().Bool("drop-cache", false, "clear the report cache before running")
	batchCmd.Flags().StringP("out", "o", "", "write all records to a msgpack file")
}
