package adt

import "reflect"

// TypeSet keeps only the most general of the types added to it: a type is
// rejected when an already present type accepts it, and adding a broader
// type evicts the narrower ones it covers.
type TypeSet struct {
	types []reflect.Type
}

// covers reports whether a value of type sub is accepted by a handler for sup.
func covers(sup, sub reflect.Type) bool {
	if sup == sub {
		return true
	}
	return sub.AssignableTo(sup)
}

// Add inserts t and reports whether it was not already covered.
func (s *TypeSet) Add(t reflect.Type) bool {
	if s.Contains(t) {
		return false
	}
	kept := s.types[:0]
	for _, have := range s.types {
		if !covers(t, have) {
			kept = append(kept, have)
		}
	}
	s.types = append(kept, t)
	return true
}

// Contains reports whether t or a broader type is present.
func (s *TypeSet) Contains(t reflect.Type) bool {
	for _, have := range s.types {
		if covers(have, t) {
			return true
		}
	}
	return false
}

func (s *TypeSet) Len() int { return len(s.types) }

// Types returns the retained types in insertion order.
func (s *TypeSet) Types() []reflect.Type {
	return append([]reflect.Type(nil), s.types...)
}
