package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

// Style controls text rendering.
type Style struct {
	Color bool
	// Timings adds the per-phase durations after each record.
	Timings bool
}

type palette struct {
	ok, fail, dim, name *color.Color
}

func newPalette(on bool) palette {
	p := palette{
		ok:   color.New(color.FgGreen, color.Bold),
		fail: color.New(color.FgRed, color.Bold),
		dim:  color.New(color.Faint),
		name: color.New(color.FgCyan),
	}
	for _, c := range []*color.Color{p.ok, p.fail, p.dim, p.name} {
		if on {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// WriteTable prints one aligned line per record followed by a tally.
func WriteTable(w io.Writer, records []*Record, style Style) error {
	p := newPalette(style.Color)
	width := 4
	for _, r := range records {
		width = max(width, runewidth.StringWidth(r.Name))
	}
	failed := 0
	for _, r := range records {
		status := p.ok.Sprint("ok  ")
		if !r.OK() {
			status = p.fail.Sprint("FAIL")
			failed++
		}
		outcome := r.Value
		if r.Err != "" {
			outcome = "error: " + r.Err
		}
		line := fmt.Sprintf("%s %s  %-8s %3d states  %s",
			status, p.name.Sprint(pad(r.Name, width)), r.Kind, r.StateCount(), outcome)
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
		if !r.OK() {
			if _, err := fmt.Fprintf(w, "     %s\n", p.fail.Sprint(r.Failure)); err != nil {
				return err
			}
		}
		if style.Timings && len(r.Timings.Phases) > 0 {
			if _, err := fmt.Fprint(w, p.dim.Sprint(indent(r.Timings.Summary(), "     "))); err != nil {
				return err
			}
		}
	}
	tally := p.ok.Sprintf("%d passed", len(records)-failed)
	if failed > 0 {
		tally += ", " + p.fail.Sprintf("%d failed", failed)
	}
	_, err := fmt.Fprintln(w, tally)
	return err
}

// WriteMachines prints the states of every machine in r.
func WriteMachines(w io.Writer, r *Record, style Style) error {
	p := newPalette(style.Color)
	var b strings.Builder
	for _, m := range r.Machines {
		fmt.Fprintf(&b, "%s (%s)", p.name.Sprint(m.Name), m.Kind)
		if m.FastPath {
			b.WriteString(p.dim.Sprint(" fast path, no states"))
		}
		b.WriteByte('\n')
		width := 0
		for _, st := range m.States {
			width = max(width, runewidth.StringWidth(st.Name))
		}
		for _, st := range m.States {
			next := "-"
			switch {
			case st.Next >= 0:
				next = fmt.Sprintf("-> %d", st.Next)
			case st.Terminal:
				next = "end"
			}
			fmt.Fprintf(&b, "  %3d  %s  %s\n", st.ID, pad(st.Name, width), p.dim.Sprint(next))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// pad right-fills s to width display cells.
func pad(s string, width int) string {
	if n := runewidth.StringWidth(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func indent(s, prefix string) string {
	lines := strings.SplitAfter(s, "\n")
	var b strings.Builder
	for _, l := range lines {
		if l == "" {
			continue
		}
		b.WriteString(prefix)
		b.WriteString(l)
	}
	return b.String()
}
