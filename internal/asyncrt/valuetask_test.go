package asyncrt

import (
	"errors"
	"testing"
)

func TestValueTaskSingleConsumption(t *testing.T) {
	src := RentValueTask[int]()
	vt := src.Task()
	if vt.IsCompleted() {
		t.Fatalf("fresh source must be pending")
	}
	src.SetResult(5)
	v, err := vt.GetAwaiter().GetResult()
	if v != 5 || err != nil {
		t.Fatalf("GetResult = %d, %v", v, err)
	}
	if _, err := vt.Result(); !errors.Is(err, ErrStaleValueTask) {
		t.Fatalf("second read err = %v", err)
	}
}

func TestValueTaskPendingContinuation(t *testing.T) {
	src := RentValueTask[string]()
	vt := src.Task()
	var got string
	aw := vt.GetAwaiter()
	aw.OnCompleted(func() { got, _ = aw.GetResult() })
	src.SetResult("done")
	if got != "done" {
		t.Fatalf("continuation result = %q", got)
	}
}

func TestValueTaskWithoutSource(t *testing.T) {
	vt := ValueTaskOf(3)
	if !vt.IsCompleted() {
		t.Fatalf("ValueTaskOf must be complete")
	}
	if v, _ := vt.Result(); v != 3 {
		t.Fatalf("Result = %d", v)
	}
	boom := errors.New("boom")
	if _, err := ValueTaskFailed[int](boom).Result(); !errors.Is(err, boom) {
		t.Fatalf("failed value task err = %v", err)
	}
}

func TestValueFuture(t *testing.T) {
	src := RentValueFuture()
	f := AsValueFuture(src.Task())
	CompleteValueFuture(src)
	if !f.IsCompleted() || f.GetAwaiter().GetResult() != nil {
		t.Fatalf("value future must complete without error")
	}
	boom := errors.New("boom")
	if !errors.Is(FailedValueFuture(boom).Err(), boom) {
		t.Fatalf("failed value future must report error")
	}
	if CompletedValueFuture().Err() != nil {
		t.Fatalf("completed value future must succeed")
	}
}
