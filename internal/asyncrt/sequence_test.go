package asyncrt

import (
	"errors"
	"iter"
	"reflect"
	"testing"
)

// countdown builds a sequence yielding n..1 and recording disposal.
func countdown(n int, disposed *int) *Sequence {
	return NewSequence(func() StepFunc {
		i := n
		return func(dispose bool, cur *Current) (bool, error) {
			if dispose {
				*disposed++
				return false, nil
			}
			if i == 0 {
				return false, nil
			}
			cur.Value = i
			i--
			return true, nil
		}
	})
}

func TestSequenceCollectRestarts(t *testing.T) {
	var disposed int
	seq := countdown(3, &disposed)
	for range 2 {
		got, err := Collect[int](seq)
		if err != nil || !reflect.DeepEqual(got, []int{3, 2, 1}) {
			t.Fatalf("Collect = %v, %v", got, err)
		}
	}
	if disposed != 0 {
		t.Fatalf("exhausted enumerators must not be disposed, got %d", disposed)
	}
}

func TestEnumeratorCloseDisposes(t *testing.T) {
	var disposed int
	en := countdown(3, &disposed).Enumerate()
	if err := en.Close(); err != nil || disposed != 0 {
		t.Fatalf("closing an unstarted enumerator must not step")
	}
	en = countdown(3, &disposed).Enumerate()
	if ok, _ := en.MoveNext(); !ok || en.Current() != 3 {
		t.Fatalf("first element = %v", en.Current())
	}
	if err := en.Close(); err != nil || disposed != 1 {
		t.Fatalf("close must dispose once, got %d", disposed)
	}
	if ok, _ := en.MoveNext(); ok {
		t.Fatalf("closed enumerator must be exhausted")
	}
}

func TestEnumeratorErrorFinishes(t *testing.T) {
	boom := errors.New("boom")
	seq := NewSequence(func() StepFunc {
		return func(bool, *Current) (bool, error) { return false, boom }
	})
	en := seq.Enumerate()
	if _, err := en.MoveNext(); !errors.Is(err, boom) {
		t.Fatalf("MoveNext err = %v", err)
	}
	if ok, err := en.MoveNext(); ok || err != nil {
		t.Fatalf("enumerator must stay finished")
	}
}

func TestAdaptIterSeq(t *testing.T) {
	var disposed int
	seq := Adapt(countdown(4, &disposed), reflect.TypeFor[iter.Seq[int]]()).(iter.Seq[int])
	var got []int
	for v := range seq {
		got = append(got, v)
		if v == 2 {
			break
		}
	}
	if !reflect.DeepEqual(got, []int{4, 3, 2}) || disposed != 1 {
		t.Fatalf("got %v disposed=%d", got, disposed)
	}

	seq2 := Adapt(countdown(2, &disposed), reflect.TypeFor[iter.Seq2[int, error]]()).(iter.Seq2[int, error])
	got = nil
	for v, err := range seq2 {
		if err != nil {
			t.Fatalf("unexpected error %v", err)
		}
		got = append(got, v)
	}
	if !reflect.DeepEqual(got, []int{2, 1}) {
		t.Fatalf("seq2 got %v", got)
	}
}

// failingDispose yields 1, 2, ... and fails when disposed.
func failingDispose(cause error) *Sequence {
	return NewSequence(func() StepFunc {
		i := 0
		return func(dispose bool, cur *Current) (bool, error) {
			if dispose {
				return false, cause
			}
			i++
			cur.Value = i
			return true, nil
		}
	})
}

// rangeRecovering runs body and returns the error it panicked with.
func rangeRecovering(body func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err, _ = r.(error)
		}
	}()
	body()
	return nil
}

func TestEarlyBreakSurfacesCloseError(t *testing.T) {
	boom := errors.New("dispose failed")
	tests := []struct {
		name string
		body func(s *Sequence)
	}{
		{"All", func(s *Sequence) {
			for range s.All() {
				break
			}
		}},
		{"iter.Seq", func(s *Sequence) {
			for range Adapt(s, reflect.TypeFor[iter.Seq[int]]()).(iter.Seq[int]) {
				break
			}
		}},
		{"iter.Seq2", func(s *Sequence) {
			for range Adapt(s, reflect.TypeFor[iter.Seq2[int, error]]()).(iter.Seq2[int, error]) {
				break
			}
		}},
	}
	for _, tt := range tests {
		err := rangeRecovering(func() { tt.body(failingDispose(boom)) })
		if !errors.Is(err, boom) {
			t.Fatalf("%s: early break raised %v, want %v", tt.name, err, boom)
		}
	}
}

func TestCollectJoinsCloseError(t *testing.T) {
	boom := errors.New("dispose failed")
	seq := NewSequence(func() StepFunc {
		return func(dispose bool, cur *Current) (bool, error) {
			if dispose {
				return false, boom
			}
			cur.Value = "text"
			return true, nil
		}
	})
	if _, err := Collect[int](seq); !errors.Is(err, boom) || err == boom {
		t.Fatalf("Collect err = %v", err)
	}
}
