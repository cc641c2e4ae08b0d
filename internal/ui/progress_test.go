package ui

import (
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"

	"asyncexpr/internal/batch"
)

func TestApplyEventTracksSamples(t *testing.T) {
	events := make(chan batch.Event)
	m := NewProgressModel("samples", []string{"a", "b"}, events).(*progressModel)

	m.applyEvent(batch.Event{Sample: "a", Stage: batch.StageRun, Status: batch.StatusWorking})
	if m.items[0].status != "running" {
		t.Fatalf("status %q, want running", m.items[0].status)
	}
	m.applyEvent(batch.Event{Sample: "a", Stage: batch.StageCheck, Status: batch.StatusDone})
	m.applyEvent(batch.Event{Sample: "b", Stage: batch.StageCheck, Status: batch.StatusCached})
	if got := m.fraction(); got != 1 {
		t.Fatalf("fraction %v, want 1", got)
	}
	m.applyEvent(batch.Event{Sample: "unknown", Stage: batch.StageRun, Status: batch.StatusWorking})

	view := m.View()
	for _, want := range []string{"samples", "done", "cached"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view lacks %q:\n%s", want, view)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("try-catch-finally", 8); got != "try-c..." {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("goto", 8); got != "goto" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("try-catch-finally", 3); got != "try" {
		t.Fatalf("truncate = %q", got)
	}
	if got := runewidth.StringWidth(truncate("ожидание-всех-задач", 10)); got > 10 {
		t.Fatalf("truncated width %d exceeds 10", got)
	}
}
