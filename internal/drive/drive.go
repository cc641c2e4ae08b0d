// Package drive runs lowered lambdas: it calls them through the evaluator
// and settles the handles they return on an asyncrt loop.
package drive

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"asyncexpr/internal/asyncrt"
	"asyncexpr/internal/caps"
	"asyncexpr/internal/eval"
	"asyncexpr/internal/expr"
	"asyncexpr/internal/lower"
	"asyncexpr/internal/samples"
)

// ErrStalled is returned when the loop runs dry before a handle settles.
var ErrStalled = errors.New("drive: loop ran out of work before the handle settled")

// MaxElements bounds how many elements Settle draws from a sequence.
const MaxElements = 1 << 16

// Settle waits for handle. Awaitables are driven on loop and yield their
// result; sequences are drained into a []any.
func Settle(ctx context.Context, loop *asyncrt.Loop, handle any) (any, error) {
	if handle == nil {
		return nil, nil
	}
	if seq, ok := handle.(*asyncrt.Sequence); ok {
		return drain(seq.All())
	}
	v := reflect.ValueOf(handle)
	if info, ok := caps.Awaitable(v.Type()); ok {
		return await(ctx, loop, v, info)
	}
	if info, ok := caps.Iterable(v.Type()); ok && (info.Via == caps.IterSeq || info.Via == caps.IterSeqErr) {
		return rangeFunc(v, info)
	}
	return handle, nil
}

func await(ctx context.Context, loop *asyncrt.Loop, v reflect.Value, info *caps.AwaitInfo) (any, error) {
	aw := v.MethodByName("GetAwaiter").Call(nil)[0]
	done := func() bool { return aw.MethodByName("IsCompleted").Call(nil)[0].Bool() }
	settled := loop.RunUntil(func() bool { return ctx.Err() != nil || done() })
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !settled {
		return nil, ErrStalled
	}
	out := aw.MethodByName("GetResult").Call(nil)
	var err error
	if info.Fallible {
		if e := out[len(out)-1]; !e.IsNil() {
			err = e.Interface().(error)
		}
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return nil, err
	}
	return out[0].Interface(), err
}

func drain(all func(yield func(any, error) bool)) (out []any, failed error) {
	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(error)
			if !ok {
				panic(r)
			}
			failed = errors.Join(failed, e)
		}
	}()
	all(func(v any, err error) bool {
		if err != nil {
			failed = err
			return false
		}
		if len(out) == MaxElements {
			failed = fmt.Errorf("drive: sequence exceeds %d elements", MaxElements)
			return false
		}
		out = append(out, v)
		return true
	})
	return out, failed
}

// rangeFunc calls an iter.Seq or iter.Seq2[E, error] with a reflected
// yield. A plain iter.Seq reports errors by panicking, which drain recovers.
func rangeFunc(v reflect.Value, info *caps.IterInfo) ([]any, error) {
	return drain(func(yield func(any, error) bool) {
		fn := reflect.MakeFunc(v.Type().In(0), func(args []reflect.Value) []reflect.Value {
			var e error
			if info.Via == caps.IterSeqErr && !args[1].IsNil() {
				e = args[1].Interface().(error)
			}
			return []reflect.Value{reflect.ValueOf(yield(args[0].Interface(), e))}
		})
		v.Call([]reflect.Value{fn})
	})
}

// Outcome is what running a sample produced.
type Outcome struct {
	Value  any
	Err    error
	Result *lower.Result
	Steps  int
}

// Sample lowers s, runs it on a fresh env and settles its handle. The
// returned error reports failures to lower or compile; errors raised by
// the sample itself land in Outcome.Err.
func Sample(ctx context.Context, s *samples.Sample, opts lower.Options) (*Outcome, error) {
	env := samples.NewEnv()
	res, err := lower.Lower(ctx, s.Build(env), opts)
	if err != nil {
		return nil, err
	}
	return Execute(ctx, s, env, res)
}

// Execute compiles a lowered sample and runs it on env, which must be the
// env the sample was built with.
func Execute(ctx context.Context, s *samples.Sample, env *samples.Env, res *lower.Result) (*Outcome, error) {
	fn, err := eval.Func(res.Lambda)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Result: res}
	handle, err := fn(s.Call(env)...)
	if err != nil {
		out.Err = err
		return out, nil
	}
	out.Value, out.Err = Settle(ctx, env.Loop, handle)
	out.Steps = env.Loop.Steps()
	return out, nil
}

// Check compares an outcome with what s expects.
func Check(s *samples.Sample, o *Outcome) error {
	switch {
	case s.WantErr != nil:
		if !errors.Is(o.Err, s.WantErr) {
			return fmt.Errorf("%s: error %v, want %v", s.Name, o.Err, s.WantErr)
		}
	case s.WantType != nil:
		if o.Err == nil || reflect.TypeOf(o.Err) != s.WantType {
			return fmt.Errorf("%s: error %v (%T), want %s", s.Name, o.Err, o.Err, s.WantType)
		}
	case o.Err != nil:
		return fmt.Errorf("%s: unexpected error: %w", s.Name, o.Err)
	}
	if s.Kind == expr.LambdaIterator {
		if !sameElems(o.Value, s.Want) {
			return fmt.Errorf("%s: elements %v, want %v", s.Name, o.Value, s.Want)
		}
		return nil
	}
	if s.WantErr != nil || s.WantType != nil {
		return nil
	}
	if !reflect.DeepEqual(o.Value, s.Want) {
		return fmt.Errorf("%s: got %v (%T), want %v (%T)", s.Name, o.Value, o.Value, s.Want, s.Want)
	}
	return nil
}

func sameElems(got, want any) bool {
	g, _ := got.([]any)
	w, _ := want.([]any)
	if len(g) != len(w) {
		return false
	}
	for i := range g {
		if !reflect.DeepEqual(g[i], w[i]) {
			return false
		}
	}
	return true
}
