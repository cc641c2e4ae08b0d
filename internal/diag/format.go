package diag

import (
	"fmt"
	"sort"
	"strings"
)

// FormatShort renders diagnostics one per line in a stable order:
// "<severity> <id> <lambda>#<node> <message>". Notes follow their
// diagnostic when includeNotes is set.
func FormatShort(diags []Diagnostic, includeNotes bool) string {
	if len(diags) == 0 {
		return ""
	}
	sorted := append([]Diagnostic(nil), diags...)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := sorted[i], sorted[j]
		if di.Primary.Lambda != dj.Primary.Lambda {
			return di.Primary.Lambda < dj.Primary.Lambda
		}
		if di.Primary.Node != dj.Primary.Node {
			return di.Primary.Node < dj.Primary.Node
		}
		return di.Code < dj.Code
	})

	var b strings.Builder
	for i, d := range sorted {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %s %s %s", d.Severity, d.Code.ID(), d.Primary, sanitizeMessage(d.Message))
		if !includeNotes {
			continue
		}
		for _, n := range d.Notes {
			fmt.Fprintf(&b, "\nnote %s %s %s", d.Code.ID(), n.Loc, sanitizeMessage(n.Msg))
		}
	}
	return b.String()
}

func sanitizeMessage(msg string) string {
	msg = strings.ReplaceAll(msg, "\r\n", "\n")
	msg = strings.ReplaceAll(msg, "\r", "\n")
	msg = strings.ReplaceAll(msg, "\n", " ")
	return strings.TrimSpace(msg)
}
