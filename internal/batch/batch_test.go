package batch

import (
	"context"
	"errors"
	"testing"

	"asyncexpr/internal/lower"
	"asyncexpr/internal/report"
	"asyncexpr/internal/samples"
)

func TestRunAllSamples(t *testing.T) {
	rec := &Recorder{}
	all := samples.All()
	sum, err := Run(context.Background(), &Request{
		Samples:  all,
		Options:  lower.Options{Verify: true},
		Jobs:     4,
		Progress: rec,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Failed() != 0 {
		for _, r := range sum.Results {
			if r.Err != nil {
				t.Errorf("%s: %v", r.Sample.Name, r.Err)
			}
		}
		t.Fatalf("%d samples failed", sum.Failed())
	}
	if _, ok := sum.Phases.Phase("continuations"); !ok {
		t.Fatalf("merged phases lack continuations: %+v", sum.Phases)
	}

	done := make(map[string]bool)
	for _, ev := range rec.Events() {
		if ev.Status == StatusDone {
			done[ev.Sample] = true
		}
	}
	for i, s := range all {
		if !done[s.Name] {
			t.Fatalf("no done event for %s", s.Name)
		}
		r := sum.Results[i]
		if r.Sample != s || r.Record == nil || r.Record.Name != s.Name {
			t.Fatalf("result %d belongs to %v", i, r.Record)
		}
		if !r.Timings.Has(StageLower) || !r.Timings.Has(StageCheck) {
			t.Fatalf("%s: stage timings missing", s.Name)
		}
	}
}

func TestRunUsesCache(t *testing.T) {
	cache, err := report.OpenCache(t.TempDir(), "asyncexpr")
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	s, _ := samples.Lookup("await-add")
	req := &Request{Samples: []*samples.Sample{s}, Cache: cache, Fingerprint: "test"}

	first, err := Run(context.Background(), req)
	if err != nil || first.Results[0].Cached {
		t.Fatalf("first run: %v, cached %v", err, first.Results[0].Cached)
	}
	second, err := Run(context.Background(), req)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	got := second.Results[0]
	if !got.Cached || got.Outcome != nil || got.Record.Value != "3" {
		t.Fatalf("second run not served from cache: %+v", got)
	}

	req.Options.Debug = true
	third, _ := Run(context.Background(), req)
	if third.Results[0].Cached {
		t.Fatalf("debug run reused an optimized record")
	}
}

func TestRunReportsMismatch(t *testing.T) {
	s, _ := samples.Lookup("await-add")
	wrong := *s
	wrong.Want = 4
	sum, err := Run(context.Background(), &Request{Samples: []*samples.Sample{&wrong}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	r := sum.Results[0]
	if r.Err == nil || r.Record.OK() {
		t.Fatalf("mismatch not reported: %+v", r.Record)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, &Request{Samples: samples.All(), Jobs: 1})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
