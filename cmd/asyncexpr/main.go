package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"asyncexpr/internal/prof"
	"asyncexpr/internal/version"
)

var rootCmd = &cobra.Command{
	Use:          "asyncexpr",
	Short:        "Lower async and iterator expression trees into state machines",
	Long:         `asyncexpr lowers expression trees containing await and yield into resumable state machines, runs them and reports on the result`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(cmd); err != nil {
			return err
		}
		cleanup, err := setupTracing(cmd)
		if err != nil {
			return err
		}
		traceCleanup = cleanup
		profiling, err = setupProfiling(cmd)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := profiling.Stop(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "profile: %v\n", err)
		}
		if traceCleanup != nil {
			traceCleanup()
		}
	},
}

var (
	traceCleanup func()
	profiling    *prof.Session
)

// main registers the subcommands and persistent flags and executes the
// root command, exiting with status 1 on error.
func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(lowerCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(versionCmd)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "path to asyncexpr.toml (default: search upward from the working directory)")
	flags.String("color", "auto", "colorize output (auto|on|off)")
	flags.Bool("timings", false, "show per-phase lowering timings")
	flags.String("trace", "", "trace output file (- for stderr)")
	flags.String("trace-level", "", "trace level (off|phase|detail|debug)")
	flags.String("trace-mode", "", "trace storage (stream|ring|both)")
	flags.Int("trace-ring-size", 4096, "events kept by the ring tracer")
	flags.String("cpu-profile", "", "write a CPU profile to this file")
	flags.String("mem-profile", "", "write a heap profile to this file on exit")
	flags.String("runtime-trace", "", "write a Go runtime trace to this file")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// setupProfiling starts the profilers requested by the profiling flags.
func setupProfiling(cmd *cobra.Command) (*prof.Session, error) {
	var pc prof.Config
	for name, dst := range map[string]*string{"cpu-profile": &pc.CPU, "mem-profile": &pc.Mem, "runtime-trace": &pc.Trace} {
		v, err := cmd.Root().PersistentFlags().GetString(name)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s flag: %w", name, err)
		}
		*dst = v
	}
	if !pc.Active() {
		return nil, nil
	}
	s, err := prof.Start(pc)
	if err != nil {
		return nil, fmt.Errorf("failed to start profiling: %w", err)
	}
	return s, nil
}
