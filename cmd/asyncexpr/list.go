package main

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"asyncexpr/internal/samples"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the built-in samples",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		all := samples.All()
		width := 0
		for _, s := range all {
			width = max(width, runewidth.StringWidth(s.Name))
		}
		out := cmd.OutOrStdout()
		for _, s := range all {
			gap := strings.Repeat(" ", width-runewidth.StringWidth(s.Name))
			if _, err := fmt.Fprintf(out, "%s%s  %-8s %s\n", s.Name, gap, s.Kind, s.Title); err != nil {
				return err
			}
		}
		return nil
	},
}

// pickSamples resolves names, or returns every sample when names is empty.
func pickSamples(names []string) ([]*samples.Sample, error) {
	if len(names) == 0 {
		return samples.All(), nil
	}
	out := make([]*samples.Sample, 0, len(names))
	for _, name := range names {
		s, ok := samples.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown sample %q (see asyncexpr list)", name)
		}
		out = append(out, s)
	}
	return out, nil
}
