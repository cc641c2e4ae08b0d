package trace

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestLevelFiltersScopes(t *testing.T) {
	tests := []struct {
		level Level
		scope Scope
		want  bool
	}{
		{LevelOff, ScopeBatch, false},
		{LevelPhase, ScopePass, true},
		{LevelPhase, ScopeLambda, false},
		{LevelDetail, ScopeLambda, true},
		{LevelDetail, ScopeState, false},
		{LevelDebug, ScopeState, true},
	}
	for _, tt := range tests {
		if got := tt.level.ShouldEmit(tt.scope); got != tt.want {
			t.Fatalf("%s.ShouldEmit(%s) = %v, want %v", tt.level, tt.scope, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if l, err := ParseLevel("Detail"); err != nil || l != LevelDetail {
		t.Fatalf("ParseLevel(Detail) = %v, %v", l, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestStreamWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStream(&buf, LevelDetail, FormatText)

	root := Begin(tr, ScopeBatch, "batch", 0)
	lam := Begin(tr, ScopeLambda, "lower", root.ID())
	Point(tr, ScopeState, "state", lam.ID(), "hidden")
	lam.With(A("states", 4)).End("ok")
	root.End("")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("state scope leaked at detail level:\n%s", out)
	}
	if !strings.Contains(out, "→ lower") || !strings.Contains(out, "← lower (ok) states=4") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRingKeepsTail(t *testing.T) {
	r := NewRing(2, LevelDebug)
	for _, name := range []string{"a", "b", "c"} {
		Point(r, ScopeState, name, 0, "")
	}
	got := r.Snapshot()
	if len(got) != 2 || got[0].Name != "b" || got[1].Name != "c" {
		t.Fatalf("snapshot = %+v", got)
	}
	var buf bytes.Buffer
	if err := r.Dump(&buf, FormatNDJSON); err != nil {
		t.Fatalf("dump: %v", err)
	}
	if strings.Count(buf.String(), "\n") != 2 || !strings.Contains(buf.String(), `"name":"c"`) {
		t.Fatalf("dump = %s", buf.String())
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if FromContext(ctx) != Nop {
		t.Fatalf("expected Nop by default")
	}
	r := NewRing(8, LevelDebug)
	ctx = WithTracer(ctx, r)
	s := Begin(FromContext(ctx), ScopePass, "p", 0)
	ctx = WithSpan(ctx, s)
	if SpanID(ctx) != s.ID() || s.ID() == 0 {
		t.Fatalf("span id not propagated")
	}
}

func TestNewAutoFormat(t *testing.T) {
	var buf bytes.Buffer
	tr, err := New(Config{Level: LevelPhase, Mode: ModeStream, Output: &buf, Path: "x.ndjson"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	Point(tr, ScopeBatch, "go", 0, "")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("expected ndjson, got %q", buf.String())
	}
}
