package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"asyncexpr/internal/lower"
)

const configName = "asyncexpr.toml"

// fileConfig mirrors asyncexpr.toml. Command-line flags override it.
type fileConfig struct {
	Lower  lowerConfig  `toml:"lower"`
	Batch  batchConfig  `toml:"batch"`
	Trace  traceConfig  `toml:"trace"`
	Report reportConfig `toml:"report"`

	path string
}

type lowerConfig struct {
	Optimize       *bool `toml:"optimize"`
	Debug          bool  `toml:"debug"`
	Verify         bool  `toml:"verify"`
	MaxDiagnostics int   `toml:"max_diagnostics"`
}

type batchConfig struct {
	Jobs int    `toml:"jobs"`
	UI   string `toml:"ui"`
}

type traceConfig struct {
	Level  string `toml:"level"`
	Mode   string `toml:"mode"`
	Output string `toml:"output"`
}

type reportConfig struct {
	Cache bool   `toml:"cache"`
	Dir   string `toml:"dir"`
}

var cfg fileConfig

// loadConfig reads --config or the nearest asyncexpr.toml into cfg.
func loadConfig(cmd *cobra.Command) error {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	if path == "" {
		found, ok, err := findConfig(".")
		if err != nil || !ok {
			return err
		}
		path = found
	}
	loaded, err := readConfig(path)
	if err != nil {
		return err
	}
	cfg = loaded
	return nil
}

func findConfig(startDir string) (string, bool, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, configName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

func readConfig(path string) (fileConfig, error) {
	var c fileConfig
	meta, err := toml.DecodeFile(path, &c)
	if err != nil {
		return fileConfig{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fileConfig{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if c.Batch.Jobs < 0 {
		return fileConfig{}, fmt.Errorf("%s: batch.jobs must not be negative", path)
	}
	if _, err := readUIMode(c.Batch.UI); err != nil {
		return fileConfig{}, fmt.Errorf("%s: batch.ui: %w", path, err)
	}
	c.path = path
	return c, nil
}

// addLowerFlags registers the flags that tune lowering.
func addLowerFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("debug", false, "name every state and skip the optimizer")
	cmd.Flags().Bool("no-optimize", false, "skip the optimizer")
	cmd.Flags().Bool("verify", false, "run the machine checker after lowering")
}

// lowerOptions merges asyncexpr.toml with the flags set on cmd.
func lowerOptions(cmd *cobra.Command) (lower.Options, error) {
	opts := lower.Options{
		Debug:          cfg.Lower.Debug,
		Verify:         cfg.Lower.Verify,
		MaxDiagnostics: cfg.Lower.MaxDiagnostics,
	}
	if cfg.Lower.Optimize != nil {
		opts.NoOptimize = !*cfg.Lower.Optimize
	}
	for name, dst := range map[string]*bool{"debug": &opts.Debug, "no-optimize": &opts.NoOptimize, "verify": &opts.Verify} {
		if !cmd.Flags().Changed(name) {
			continue
		}
		v, err := cmd.Flags().GetBool(name)
		if err != nil {
			return lower.Options{}, err
		}
		*dst = v
	}
	return opts, nil
}

// stringSetting returns the flag value when set, else fallback.
func stringSetting(cmd *cobra.Command, name, fallback string) (string, error) {
	flags := cmd.Flags()
	if flags.Lookup(name) == nil {
		flags = cmd.Root().PersistentFlags()
	}
	v, err := flags.GetString(name)
	if err != nil {
		return "", fmt.Errorf("failed to get %s flag: %w", name, err)
	}
	if !flags.Changed(name) && fallback != "" {
		return fallback, nil
	}
	return v, nil
}
