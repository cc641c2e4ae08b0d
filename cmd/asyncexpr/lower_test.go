package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"asyncexpr/internal/diag"
)

func TestReportDiagnosticsPrintsBag(t *testing.T) {
	bag := diag.NewBag(8)
	bag.Add(diag.NewError(diag.LowNotLambda, diag.Location{Lambda: "main"}, "nothing to lower"))
	cmd := &cobra.Command{}
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)

	err := reportDiagnostics(cmd, "broken", diag.AsError(bag))
	if err == nil || !strings.Contains(err.Error(), "1 diagnostic") {
		t.Fatalf("summary = %v", err)
	}
	if got := stderr.String(); !strings.Contains(got, diag.LowNotLambda.ID()) || !strings.Contains(got, "nothing to lower") {
		t.Fatalf("stderr = %q", got)
	}
}

func TestReportDiagnosticsWrapsOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	cmd := &cobra.Command{}
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)
	if err := reportDiagnostics(cmd, "s", boom); !errors.Is(err, boom) || stderr.Len() != 0 {
		t.Fatalf("err = %v, stderr = %q", err, stderr.String())
	}
}
