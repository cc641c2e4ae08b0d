package drive

import (
	"context"
	"errors"
	"iter"
	"reflect"
	"testing"

	"asyncexpr/internal/asyncrt"
	"asyncexpr/internal/lower"
	"asyncexpr/internal/samples"
)

func counter(n int) *asyncrt.Sequence {
	return asyncrt.NewSequence(func() asyncrt.StepFunc {
		i := 0
		return func(dispose bool, cur *asyncrt.Current) (bool, error) {
			if dispose || i == n {
				return false, nil
			}
			i++
			cur.Value = i
			return true, nil
		}
	})
}

func TestSettle(t *testing.T) {
	loop := asyncrt.NewLoop(asyncrt.Config{Deterministic: true})
	boom := errors.New("boom")
	var seq iter.Seq[int] = func(yield func(int) bool) {
		for i := 5; i < 7; i++ {
			if !yield(i) {
				return
			}
		}
	}
	tests := []struct {
		name    string
		handle  any
		want    any
		wantErr error
	}{
		{"nil", nil, nil, nil},
		{"plain value", 4, 4, nil},
		{"task", asyncrt.After(loop, 3, 9), 9, nil},
		{"failed task", asyncrt.FailAfter[int](loop, 1, boom), nil, boom},
		{"future", loop.Delay(2), nil, nil},
		{"sequence", counter(3), []any{1, 2, 3}, nil},
		{"range func", seq, []any{5, 6}, nil},
	}
	for _, tt := range tests {
		got, err := Settle(context.Background(), loop, tt.handle)
		if !errors.Is(err, tt.wantErr) {
			t.Fatalf("%s: error %v, want %v", tt.name, err, tt.wantErr)
		}
		if tt.wantErr == nil && !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("%s: got %#v, want %#v", tt.name, got, tt.want)
		}
	}
}

func TestSettleStalls(t *testing.T) {
	loop := asyncrt.NewLoop(asyncrt.Config{Deterministic: true})
	if _, err := Settle(context.Background(), loop, asyncrt.NewTask[int]()); !errors.Is(err, ErrStalled) {
		t.Fatalf("pending task settled with %v", err)
	}
}

func TestSettleCancelled(t *testing.T) {
	loop := asyncrt.NewLoop(asyncrt.Config{Deterministic: true})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Settle(ctx, loop, asyncrt.After(loop, 5, 1)); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled settle returned %v", err)
	}
}

func TestSampleAndCheck(t *testing.T) {
	for _, name := range []string{"await-add", "yield-sequence", "try-finally-throw"} {
		s, ok := samples.Lookup(name)
		if !ok {
			t.Fatalf("no sample %q", name)
		}
		out, err := Sample(context.Background(), s, lower.Options{})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if err := Check(s, out); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCheckReportsMismatch(t *testing.T) {
	s := &samples.Sample{Name: "x", Want: 3}
	if err := Check(s, &Outcome{Value: 4}); err == nil {
		t.Fatalf("accepted a wrong value")
	}
	if err := Check(s, &Outcome{Value: 3, Err: errors.New("late")}); err == nil {
		t.Fatalf("accepted an unexpected error")
	}
	s = &samples.Sample{Name: "y", WantErr: samples.ErrStop}
	if err := Check(s, &Outcome{Err: samples.ErrStop}); err != nil {
		t.Fatalf("expected failure rejected: %v", err)
	}
}

func TestSettleJoinsDisposeError(t *testing.T) {
	loop := asyncrt.NewLoop(asyncrt.Config{Deterministic: true})
	boom := errors.New("dispose failed")
	endless := asyncrt.NewSequence(func() asyncrt.StepFunc {
		return func(dispose bool, cur *asyncrt.Current) (bool, error) {
			if dispose {
				return false, boom
			}
			cur.Value = 0
			return true, nil
		}
	})
	if _, err := Settle(context.Background(), loop, endless); !errors.Is(err, boom) {
		t.Fatalf("settle returned %v, want the dispose error", err)
	}
}
