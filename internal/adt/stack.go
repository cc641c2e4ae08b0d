// Package adt holds small immutable containers used by the lowering engine.
package adt

import "iter"

// Stack is a persistent LIFO list. Push and Pop return new stacks and never
// modify the receiver, so snapshots can be shared freely between states.
// The zero value (and nil) is the empty stack.
type Stack[T any] struct {
	head T
	tail *Stack[T]
	size int
}

// Empty returns the empty stack.
func Empty[T any]() *Stack[T] { return nil }

// Push returns a stack with v on top of s.
func (s *Stack[T]) Push(v T) *Stack[T] {
	return &Stack[T]{head: v, tail: s, size: s.Len() + 1}
}

// Pop returns the stack below the top element. It panics on an empty stack.
func (s *Stack[T]) Pop() *Stack[T] {
	if s.IsEmpty() {
		panic("adt: pop of empty stack")
	}
	return s.tail
}

// Peek returns the top element. It panics on an empty stack.
func (s *Stack[T]) Peek() T {
	if s.IsEmpty() {
		panic("adt: peek of empty stack")
	}
	return s.head
}

// PeekOrDefault returns the top element or the zero value of T.
func (s *Stack[T]) PeekOrDefault() T {
	if s.IsEmpty() {
		var zero T
		return zero
	}
	return s.head
}

func (s *Stack[T]) IsEmpty() bool { return s == nil || s.size == 0 }

func (s *Stack[T]) Len() int {
	if s == nil {
		return 0
	}
	return s.size
}

// PopTo drops elements until at most depth remain.
func (s *Stack[T]) PopTo(depth int) *Stack[T] {
	if depth < 0 {
		depth = 0
	}
	for s.Len() > depth {
		s = s.tail
	}
	return s
}

// All yields elements from top to bottom.
func (s *Stack[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for cur := s; !cur.IsEmpty(); cur = cur.tail {
			if !yield(cur.head) {
				return
			}
		}
	}
}

// Slice returns the elements from top to bottom.
func (s *Stack[T]) Slice() []T {
	out := make([]T, 0, s.Len())
	for v := range s.All() {
		out = append(out, v)
	}
	return out
}
