package observ

import (
	"strings"
	"testing"
)

func TestTimerReportKeepsOrder(t *testing.T) {
	tm := NewTimer()
	tm.Measure("continuations", func() string { return "4 states" })
	tm.Measure("assemble", func() string { return "" })

	r := tm.Report()
	if len(r.Phases) != 2 {
		t.Fatalf("want 2 phases, got %d", len(r.Phases))
	}
	if r.Phases[0].Name != "continuations" || r.Phases[0].Note != "4 states" {
		t.Fatalf("unexpected first phase %+v", r.Phases[0])
	}
	if _, ok := r.Phase("assemble"); !ok {
		t.Fatalf("assemble phase missing")
	}
	if _, ok := r.Phase("optimize"); ok {
		t.Fatalf("optimize phase should be absent")
	}
}

func TestReportMergeSumsByName(t *testing.T) {
	a := Report{TotalMS: 3, Phases: []PhaseReport{{Name: "x", DurationMS: 1}, {Name: "y", DurationMS: 2}}}
	b := Report{TotalMS: 4, Phases: []PhaseReport{{Name: "y", DurationMS: 3}, {Name: "z", DurationMS: 1, Note: "n"}}}
	m := a.Merge(b)
	if m.TotalMS != 7 {
		t.Fatalf("total = %v, want 7", m.TotalMS)
	}
	want := []string{"x", "y", "z"}
	if len(m.Phases) != len(want) {
		t.Fatalf("phases = %+v", m.Phases)
	}
	for i, name := range want {
		if m.Phases[i].Name != name {
			t.Fatalf("phase %d = %s, want %s", i, m.Phases[i].Name, name)
		}
	}
	if y, _ := m.Phase("y"); y != 5 {
		t.Fatalf("y = %v, want 5", y)
	}
	if m.Phases[2].Note != "" {
		t.Fatalf("merge should drop notes")
	}
}

func TestSummaryIncludesTotal(t *testing.T) {
	var tm *Timer
	if got := tm.Summary(); !strings.Contains(got, "total") {
		t.Fatalf("summary of nil timer: %q", got)
	}
}
