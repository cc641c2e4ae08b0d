package asyncrt

import (
	"reflect"
	"testing"
)

func TestLoopRunsFIFO(t *testing.T) {
	loop := NewLoop(Config{Deterministic: true})
	var got []int
	for i := range 4 {
		loop.Post(func() { got = append(got, i) })
	}
	loop.Run()
	if !reflect.DeepEqual(got, []int{0, 1, 2, 3}) {
		t.Fatalf("order = %v", got)
	}
	if loop.Steps() != 4 || loop.Pending() != 0 {
		t.Fatalf("steps=%d pending=%d", loop.Steps(), loop.Pending())
	}
}

func TestLoopFuzzIsReproducible(t *testing.T) {
	run := func() []int {
		loop := NewLoop(Config{Fuzz: true, Seed: 42})
		var got []int
		for i := range 8 {
			loop.Post(func() { got = append(got, i) })
		}
		loop.Run()
		return got
	}
	a, b := run(), run()
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same seed must give same order: %v vs %v", a, b)
	}
	if len(a) != 8 {
		t.Fatalf("all callbacks must run, got %v", a)
	}
}

func TestLoopVirtualTimers(t *testing.T) {
	loop := NewLoop(Config{Deterministic: true})
	var order []string
	late := After(loop, 20, "late")
	early := After(loop, 5, "early")
	late.GetAwaiter().OnCompleted(func() { order = append(order, "late") })
	early.GetAwaiter().OnCompleted(func() { order = append(order, "early") })
	loop.Run()
	if !reflect.DeepEqual(order, []string{"early", "late"}) {
		t.Fatalf("timer order = %v", order)
	}
	if got := loop.Clock().NowMs(); got != 20 {
		t.Fatalf("clock = %d, want 20", got)
	}
}

func TestLoopRunUntil(t *testing.T) {
	loop := NewLoop(Config{Deterministic: true})
	f := loop.Delay(3)
	if f.IsCompleted() {
		t.Fatalf("delay must be pending before the loop runs")
	}
	if !loop.RunUntil(f.IsCompleted) {
		t.Fatalf("RunUntil must observe completion")
	}
	if f.Err() != nil {
		t.Fatalf("unexpected error %v", f.Err())
	}
}

func TestLoopYieldCompletesOnLaterTurn(t *testing.T) {
	loop := NewLoop(Config{Deterministic: true})
	f := loop.Yield()
	if f.IsCompleted() || loop.Pending() != 1 {
		t.Fatalf("yield must wait for the loop, pending=%d", loop.Pending())
	}
	if !loop.RunOnce() || !f.IsCompleted() {
		t.Fatalf("yield not completed after one turn")
	}
}
