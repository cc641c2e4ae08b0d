package adt

import (
	"errors"
	"io/fs"
	"reflect"
	"testing"
)

func TestStackPersistence(t *testing.T) {
	var s *Stack[int]
	if !s.IsEmpty() || s.Len() != 0 {
		t.Fatalf("nil stack must be empty")
	}
	a := s.Push(1)
	b := a.Push(2)
	c := a.Push(3)
	if b.Peek() != 2 || c.Peek() != 3 {
		t.Fatalf("unexpected tops: %d %d", b.Peek(), c.Peek())
	}
	if a.Len() != 1 || b.Len() != 2 {
		t.Fatalf("push must not mutate receiver")
	}
	if b.Pop() != a {
		t.Fatalf("pop must share the tail")
	}
	if got := c.Slice(); !reflect.DeepEqual(got, []int{3, 1}) {
		t.Fatalf("slice = %v", got)
	}
	if s.PeekOrDefault() != 0 {
		t.Fatalf("PeekOrDefault on empty stack")
	}
}

func TestStackPopTo(t *testing.T) {
	s := Empty[string]().Push("a").Push("b").Push("c")
	if got := s.PopTo(1).Peek(); got != "a" {
		t.Fatalf("PopTo(1) top = %q", got)
	}
	if !s.PopTo(0).IsEmpty() {
		t.Fatalf("PopTo(0) must be empty")
	}
	if s.PopTo(5) != s {
		t.Fatalf("PopTo beyond depth must be identity")
	}
}

func TestStackPopEmptyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	var s *Stack[int]
	s.Pop()
}

type pathErr struct{}

func (pathErr) Error() string { return "path" }

func TestTypeSetMostSpecific(t *testing.T) {
	errT := reflect.TypeFor[error]()
	pathT := reflect.TypeFor[pathErr]()
	fsT := reflect.TypeFor[*fs.PathError]()

	var set TypeSet
	if !set.Add(pathT) {
		t.Fatalf("first add must succeed")
	}
	if set.Add(pathT) {
		t.Fatalf("duplicate add must fail")
	}
	if !set.Add(errT) {
		t.Fatalf("broader type must be accepted")
	}
	if set.Len() != 1 {
		t.Fatalf("narrower type must be evicted, have %v", set.Types())
	}
	if set.Add(fsT) {
		t.Fatalf("error covers *fs.PathError")
	}
	if !set.Contains(reflect.TypeOf(errors.New("x"))) {
		t.Fatalf("error covers *errors.errorString")
	}
}

func TestGroupSame(t *testing.T) {
	in := []int{1, 1, 2, 3, 3, 1}
	got := GroupSame(in, func(v int) int { return v })
	want := [][]int{{1, 1}, {2}, {3, 3}, {1}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("GroupSame = %v, want %v", got, want)
	}
	if GroupSame[int, int](nil, func(v int) int { return v }) != nil {
		t.Fatalf("empty input must yield nil")
	}
}
