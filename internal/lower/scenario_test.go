package lower_test

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"testing"

	"asyncexpr/internal/asyncrt"
	"asyncexpr/internal/drive"
	"asyncexpr/internal/eval"
	"asyncexpr/internal/expr"
	"asyncexpr/internal/lower"
	"asyncexpr/internal/samples"
	"asyncexpr/internal/testkit"
)

func TestSamples(t *testing.T) {
	modes := []struct {
		name string
		opts lower.Options
	}{
		{"optimized", lower.Options{Verify: true}},
		{"debug", lower.Options{Debug: true, Verify: true}},
	}
	for _, m := range modes {
		for _, s := range samples.All() {
			out, err := drive.Sample(context.Background(), s, m.opts)
			if err != nil {
				t.Fatalf("%s/%s: %v", m.name, s.Name, err)
			}
			if err := drive.Check(s, out); err != nil {
				t.Fatalf("%s: %v", m.name, err)
			}
			if err := testkit.CheckMachineInvariants(out.Result); err != nil {
				t.Fatalf("%s/%s: %v", m.name, s.Name, err)
			}
		}
	}
}

func TestFastPathHasNoStates(t *testing.T) {
	s, _ := samples.Lookup("fast-path")
	res, err := lower.Lower(context.Background(), s.Build(samples.NewEnv()), lower.Options{})
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	root := res.Root()
	if !root.FastPath || len(root.States) != 0 {
		t.Fatalf("fast path = %v with %d states", root.FastPath, len(root.States))
	}
}

func TestNestedLambdaMachinesInnerFirst(t *testing.T) {
	s, _ := samples.Lookup("in-lambda")
	res, err := lower.Lower(context.Background(), s.Build(samples.NewEnv()), lower.Options{})
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	var names []string
	for _, m := range res.Machines {
		names = append(names, m.Name)
	}
	if want := []string{"inner", "in-lambda"}; !slices.Equal(names, want) {
		t.Fatalf("machines %v, want %v", names, want)
	}
}

func TestOnStateNamesEveryState(t *testing.T) {
	s, _ := samples.Lookup("try-catch-finally")
	var ids []int
	opts := lower.Options{OnState: func(id int, name string) {
		if name == "" {
			t.Fatalf("state %d has no name", id)
		}
		ids = append(ids, id)
	}}
	res, err := lower.Lower(context.Background(), s.Build(samples.NewEnv()), opts)
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	if len(ids) != len(res.Root().States) {
		t.Fatalf("named %d of %d states", len(ids), len(res.Root().States))
	}
	for i, id := range ids {
		if id != i {
			t.Fatalf("ids %v are not dense", ids)
		}
	}
}

func TestDefaultAwaitResumesOnLoop(t *testing.T) {
	env := samples.NewEnv()
	task := asyncrt.FromResult(0)
	pending := env.Int(1)
	body := expr.Add(expr.Await(expr.Const(task)), expr.Await(expr.Const(pending)))
	fn := compile(t, expr.AsyncLambda("resume", reflect.TypeFor[*asyncrt.Task[int]](), nil, body))

	h, err := fn()
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	got := h.(*asyncrt.Task[int])
	if got.IsCompleted() {
		t.Fatalf("task settled before the loop ran")
	}
	v, err := drive.Settle(context.Background(), env.Loop, got)
	if err != nil || v != 1 {
		t.Fatalf("settled %v, %v; want 1", v, err)
	}
}

func TestSequenceEnumeratesIndependently(t *testing.T) {
	body := expr.TypedBlock(expr.Void, nil, expr.Yield(expr.Const(1)), expr.Yield(expr.Const(2)))
	fn := compile(t, expr.IteratorLambda("pair", reflect.TypeFor[*asyncrt.Sequence](), nil, body))
	h, err := fn()
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	seq := h.(*asyncrt.Sequence)
	a, b := seq.Enumerate(), seq.Enumerate()
	for _, want := range []int{1, 2} {
		for _, en := range []*asyncrt.Enumerator{a, b} {
			ok, err := en.MoveNext()
			if err != nil || !ok || en.Current() != want {
				t.Fatalf("MoveNext = %v, %v, current %v; want %d", ok, err, en.Current(), want)
			}
		}
	}
	if ok, _ := a.MoveNext(); ok {
		t.Fatalf("enumeration did not end")
	}
}

func TestIteratorParamsAreCopiedPerEnumeration(t *testing.T) {
	s, _ := samples.Lookup("count-down")
	res, err := lower.Lower(context.Background(), s.Build(nil), lower.Options{})
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	fn, err := eval.Func(res.Lambda)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	h, err := fn(3)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	for range 2 {
		got, err := drive.Settle(context.Background(), nil, h)
		if err != nil {
			t.Fatalf("settle: %v", err)
		}
		if !reflect.DeepEqual(got, []any{3, 2, 1}) {
			t.Fatalf("got %v, want [3 2 1]", got)
		}
	}
}

func TestLazyIteratorError(t *testing.T) {
	var started bool
	body := expr.TypedBlock(expr.Void, nil,
		expr.CallFunc(func() { started = true }),
		expr.Throw(expr.ConstOf(samples.ErrStop, expr.ErrorType)))
	fn := compile(t, expr.IteratorLambda("lazy", reflect.TypeFor[*asyncrt.Sequence](), nil, body))
	h, err := fn()
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if started {
		t.Fatalf("body ran before the first MoveNext")
	}
	en := h.(*asyncrt.Sequence).Enumerate()
	if _, err := en.MoveNext(); !errors.Is(err, samples.ErrStop) {
		t.Fatalf("MoveNext err = %v, want stop", err)
	}
	if ok, err := en.MoveNext(); ok || err != nil {
		t.Fatalf("finished enumerator moved: %v, %v", ok, err)
	}
}

func TestCloseRunsPendingFinally(t *testing.T) {
	var log []string
	rec := func(s string) { log = append(log, s) }
	body := expr.TypedBlock(expr.Void, nil,
		expr.TryFinally(
			expr.TypedBlock(expr.Void, nil,
				expr.TryFinally(
					expr.TypedBlock(expr.Void, nil, expr.Yield(expr.Const(1)), expr.Yield(expr.Const(2))),
					expr.CallFunc(rec, expr.Const("inner"))),
				expr.Yield(expr.Const(3))),
			expr.CallFunc(rec, expr.Const("outer"))),
		expr.CallFunc(rec, expr.Const("after")))
	fn := compile(t, expr.IteratorLambda("closing", reflect.TypeFor[*asyncrt.Sequence](), nil, body))
	h, err := fn()
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	en := h.(*asyncrt.Sequence).Enumerate()
	if ok, err := en.MoveNext(); !ok || err != nil {
		t.Fatalf("MoveNext = %v, %v", ok, err)
	}
	if err := en.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if want := []string{"inner", "outer"}; !slices.Equal(log, want) {
		t.Fatalf("log %v, want %v", log, want)
	}
	if ok, _ := en.MoveNext(); ok {
		t.Fatalf("closed enumerator moved")
	}
}

func TestFinallyRunsOnIteratorError(t *testing.T) {
	var ran bool
	body := expr.TryFinally(
		expr.TypedBlock(expr.Void, nil, expr.Yield(expr.Const(1)), expr.Throw(expr.ConstOf(samples.ErrStop, expr.ErrorType))),
		expr.CallFunc(func() { ran = true }))
	fn := compile(t, expr.IteratorLambda("failing", reflect.TypeFor[*asyncrt.Sequence](), nil, body))
	h, err := fn()
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	got, err := asyncrt.Collect[int](h.(*asyncrt.Sequence))
	if !errors.Is(err, samples.ErrStop) || !slices.Equal(got, []int{1}) || !ran {
		t.Fatalf("collect = %v, %v, finally ran %v", got, err, ran)
	}
}

func TestFilterErrorRunsFinallyAndOuterHandler(t *testing.T) {
	boom := errors.New("boom")
	for _, suspend := range []bool{true, false} {
		env := samples.NewEnv()
		var log []string
		rec := func(s string) { log = append(log, s) }
		first := expr.Const(1)
		if suspend {
			first = expr.Await(expr.CallFunc(env.Int, expr.Const(1)))
		}
		inner := expr.Try(
			expr.TypedBlock(expr.IntType, nil, first, expr.ThrowAs(expr.ConstOf(samples.ErrStop, expr.ErrorType), expr.IntType)),
			expr.CatchIf(expr.ErrorType, nil, expr.CallFunc(func() (bool, error) { return false, boom }), expr.Const(1)),
			expr.Catch(expr.ErrorType, nil, expr.Const(2)))
		caught := expr.NewVar("caught", expr.ErrorType)
		body := expr.Try(
			expr.TryFinally(inner, expr.CallFunc(rec, expr.Const("finally"))),
			expr.Catch(expr.ErrorType, caught, expr.TypedBlock(expr.IntType, nil,
				expr.CallFunc(rec, expr.Const("outer")),
				expr.Condition(expr.Equal(expr.Ref(caught), expr.ConstOf(boom, expr.ErrorType)), expr.Const(7), expr.Const(0)))))
		fn := compile(t, expr.AsyncLambda("filter-raises", reflect.TypeFor[*asyncrt.Task[int]](), nil, body))

		h, err := fn()
		if err != nil {
			t.Fatalf("suspend=%v: call: %v", suspend, err)
		}
		v, err := drive.Settle(context.Background(), env.Loop, h)
		if err != nil || v != 7 {
			t.Fatalf("suspend=%v: settled %v, %v; want 7", suspend, v, err)
		}
		if want := []string{"finally", "outer"}; !slices.Equal(log, want) {
			t.Fatalf("suspend=%v: log %v, want %v", suspend, log, want)
		}
	}
}

func compile(t *testing.T, lambda *expr.Expr) func(args ...any) (any, error) {
	t.Helper()
	res, err := lower.Lower(context.Background(), lambda, lower.Options{Verify: true})
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	fn, err := eval.Func(res.Lambda)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return fn
}
