package asyncrt

import (
	"errors"
	"fmt"
	"iter"
	"reflect"
)

// Current is the slot an iterator step writes its next element into.
type Current struct {
	Value any
}

// StepFunc advances an iterator machine. With dispose set it runs pending
// finally blocks and finishes instead of producing an element.
type StepFunc = func(dispose bool, cur *Current) (bool, error)

// Sequence is a restartable lazy sequence. Each enumeration calls the
// factory, so enumerators never share machine state.
type Sequence struct {
	factory func() StepFunc
}

// NewSequence wraps a step factory.
func NewSequence(factory func() StepFunc) *Sequence {
	return &Sequence{factory: factory}
}

// Enumerate starts an independent enumeration.
func (s *Sequence) Enumerate() *Enumerator {
	return &Enumerator{step: s.factory()}
}

// All ranges over the sequence, stopping after the first error. Leaving the
// loop early closes the enumerator; an error raised while closing cannot be
// yielded any more and is raised as a panic in the ranging goroutine.
func (s *Sequence) All() iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		en := s.Enumerate()
		defer func() { _ = en.Close() }()
		for {
			ok, err := en.MoveNext()
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok {
				return
			}
			if !yield(en.Current(), nil) {
				closeOrPanic(en)
				return
			}
		}
	}
}

// closeOrPanic closes en after its consumer stopped early.
func closeOrPanic(en *Enumerator) {
	if err := en.Close(); err != nil {
		panic(err)
	}
}

// Enumerator drives one enumeration of a Sequence.
type Enumerator struct {
	step    StepFunc
	cur     Current
	started bool
	done    bool
}

// MoveNext advances to the next element. An error finishes the enumerator.
func (e *Enumerator) MoveNext() (bool, error) {
	if e.done {
		return false, nil
	}
	e.started = true
	ok, err := e.step(false, &e.cur)
	if err != nil || !ok {
		e.done = true
		e.cur.Value = nil
	}
	return ok, err
}

// Current returns the element produced by the last successful MoveNext.
func (e *Enumerator) Current() any { return e.cur.Value }

// Close runs the finally blocks enclosing the suspension point, if any.
func (e *Enumerator) Close() error {
	if e.done {
		return nil
	}
	e.done = true
	if !e.started {
		return nil
	}
	_, err := e.step(true, &e.cur)
	e.cur.Value = nil
	return err
}

// Collect drains s into a typed slice.
func Collect[T any](s *Sequence) ([]T, error) {
	var out []T
	en := s.Enumerate()
	for {
		ok, err := en.MoveNext()
		if err != nil || !ok {
			return out, err
		}
		v := en.Current()
		t, ok := v.(T)
		if !ok && v != nil {
			bad := fmt.Errorf("asyncrt: element %v is %T, not %s", v, v, reflect.TypeFor[T]())
			return out, errors.Join(bad, en.Close())
		}
		out = append(out, t)
	}
}

// Adapt exposes s as shape, which must be *Sequence, iter.Seq[E] or
// iter.Seq2[E, error] (or a named type with one of those signatures). A
// plain iter.Seq has no error channel, so errors surface as panics, as do
// errors raised while closing after the consumer stopped early.
func Adapt(s *Sequence, shape reflect.Type) any {
	if shape == reflect.TypeFor[*Sequence]() {
		return s
	}
	if shape.Kind() != reflect.Func || shape.NumIn() != 1 || shape.In(0).Kind() != reflect.Func {
		panic(fmt.Sprintf("asyncrt: cannot adapt sequence to %s", shape))
	}
	yieldT := shape.In(0)
	elem := yieldT.In(0)
	withErr := yieldT.NumIn() == 2
	return reflect.MakeFunc(shape, func(args []reflect.Value) []reflect.Value {
		yield := args[0]
		en := s.Enumerate()
		defer func() { _ = en.Close() }()
		for {
			ok, err := en.MoveNext()
			if err != nil {
				if !withErr {
					panic(err)
				}
				yield.Call([]reflect.Value{reflect.Zero(elem), reflect.ValueOf(&err).Elem()})
				return nil
			}
			if !ok {
				return nil
			}
			in := []reflect.Value{elementValue(en.Current(), elem)}
			if withErr {
				in = append(in, reflect.Zero(yieldT.In(1)))
			}
			if !yield.Call(in)[0].Bool() {
				closeOrPanic(en)
				return nil
			}
		}
	}).Interface()
}

func elementValue(v any, elem reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(elem)
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(elem) {
		out := reflect.New(elem).Elem()
		out.Set(rv)
		return out
	}
	return rv.Convert(elem)
}
