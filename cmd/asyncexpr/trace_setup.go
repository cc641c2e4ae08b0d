package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"asyncexpr/internal/trace"
)

// setupTracing reads the trace flags (falling back to asyncexpr.toml),
// attaches a tracer to the command context and returns its cleanup.
func setupTracing(cmd *cobra.Command) (func(), error) {
	root := cmd.Root()

	output, err := stringSetting(cmd, "trace", cfg.Trace.Output)
	if err != nil {
		return nil, err
	}
	levelStr, err := stringSetting(cmd, "trace-level", cfg.Trace.Level)
	if err != nil {
		return nil, err
	}
	modeStr, err := stringSetting(cmd, "trace-mode", cfg.Trace.Mode)
	if err != nil {
		return nil, err
	}
	ringSize, err := root.PersistentFlags().GetInt("trace-ring-size")
	if err != nil {
		return nil, fmt.Errorf("failed to get trace-ring-size flag: %w", err)
	}

	level, err := trace.ParseLevel(levelStr)
	if err != nil {
		return nil, err
	}
	// an output without a level means "trace the phases"
	if level == trace.LevelOff && output != "" {
		level = trace.LevelPhase
	}
	if level == trace.LevelOff {
		cmd.SetContext(trace.WithTracer(cmd.Context(), trace.Nop))
		return func() {}, nil
	}

	mode := trace.ModeStream
	if modeStr != "" {
		if mode, err = trace.ParseMode(modeStr); err != nil {
			return nil, err
		}
	}

	tracer, err := trace.New(trace.Config{
		Level:    level,
		Mode:     mode,
		Path:     output,
		RingSize: ringSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	ctx := trace.WithTracer(cmd.Context(), tracer)
	cmd.SetContext(ctx)
	root.SetContext(ctx)

	return func() {
		if ring, ok := tracer.(*trace.Ring); ok {
			if err := ring.Dump(cmd.ErrOrStderr(), trace.FormatText); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "trace: dump error: %v\n", err)
			}
		}
		if err := tracer.Flush(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: flush error: %v\n", err)
		}
		if err := tracer.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: close error: %v\n", err)
		}
	}, nil
}
