package main

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"asyncexpr/internal/version"
)

type versionInfo struct {
	Version   string
	GitCommit string
	BuildDate string
}

type versionOptions struct {
	showHash bool
	showDate bool
}

// versionPayload is the json shape; fingerprint is what report cache keys
// are derived from.
type versionPayload struct {
	Tool        string `json:"tool"`
	Version     string `json:"version"`
	Fingerprint string `json:"fingerprint"`
	GoVersion   string `json:"go"`
	GitCommit   string `json:"git_commit,omitempty"`
	BuildDate   string `json:"build_date,omitempty"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the build version and the report cache fingerprint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		full, _ := flags.GetBool("full")
		hash, _ := flags.GetBool("hash")
		date, _ := flags.GetBool("date")
		opts := versionOptions{showHash: hash || full, showDate: date || full}

		info := versionInfo{
			Version:   strings.TrimSpace(version.Version),
			GitCommit: strings.TrimSpace(version.GitCommit),
			BuildDate: strings.TrimSpace(version.BuildDate),
		}
		format, _ := flags.GetString("format")
		switch strings.ToLower(format) {
		case "json":
			return renderVersionJSON(cmd.OutOrStdout(), info, opts)
		case "pretty":
		default:
			return fmt.Errorf("unsupported format %q (must be pretty or json)", format)
		}
		colorFlag, _ := cmd.Flags().GetString("color")
		colored, err := useColor(colorFlag)
		if err != nil {
			return err
		}
		renderVersionPretty(cmd.OutOrStdout(), info, opts, colored)
		return nil
	},
}

func init() {
	versionCmd.Flags().Bool("hash", false, "include git commit hash")
	versionCmd.Flags().Bool("date", false, "include build timestamp")
	versionCmd.Flags().Bool("full", false, "include commit and build timestamp")
	versionCmd.Flags().String("format", "pretty", "output format (pretty|json)")
}

func renderVersionPretty(out io.Writer, info versionInfo, opts versionOptions, colored bool) {
	v := orUnknown(info.Version)
	if colored {
		v = version.Colored()
	}
	fmt.Fprintf(out, "asyncexpr %s (%s)\n", v, runtime.Version())
	fmt.Fprintf(out, "cache fingerprint: %s\n", version.Fingerprint())
	if opts.showHash {
		fmt.Fprintf(out, "commit: %s\n", orUnknown(info.GitCommit))
	}
	if opts.showDate {
		fmt.Fprintf(out, "built:  %s\n", orUnknown(info.BuildDate))
	}
}

func renderVersionJSON(out io.Writer, info versionInfo, opts versionOptions) error {
	payload := versionPayload{
		Tool:        "asyncexpr",
		Version:     orUnknown(info.Version),
		Fingerprint: version.Fingerprint(),
		GoVersion:   runtime.Version(),
	}
	if opts.showHash {
		payload.GitCommit = orUnknown(info.GitCommit)
	}
	if opts.showDate {
		payload.BuildDate = orUnknown(info.BuildDate)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
