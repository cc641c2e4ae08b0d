package lower

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"asyncexpr/internal/asyncrt"
	"asyncexpr/internal/diag"
	"asyncexpr/internal/eval"
	"asyncexpr/internal/expr"
)

var (
	taskInt = reflect.TypeFor[*asyncrt.Task[int]]()
	seqType = reflect.TypeFor[*asyncrt.Sequence]()
)

func ready(v int) *expr.Expr { return expr.Await(expr.Const(asyncrt.FromResult(v))) }

func stmts(xs ...*expr.Expr) *expr.Expr { return expr.TypedBlock(expr.Void, nil, xs...) }

func TestLowerDiagnostics(t *testing.T) {
	out := expr.NewLabel("out", expr.Void)
	in := expr.NewLabel("in", expr.Void)
	missing := expr.NewLabel("missing", expr.Void)
	tests := []struct {
		name   string
		lambda *expr.Expr
		code   diag.Code
	}{
		{"not a lambda", expr.Const(1), diag.LowNotLambda},
		{"plain lambda", expr.Lambda("p", false, nil, expr.Const(1)), diag.LowNotLambda},
		{"nil root", nil, diag.LowNotLambda},
		{"await outside lambda", expr.Block(nil, ready(1), expr.Const(1)), diag.LowSuspendInPlain},
		{"not awaitable", expr.AsyncLambda("a", taskInt, nil,
			expr.Block(nil, expr.Await(expr.Const(5)), expr.Const(1))), diag.LowNotAwaitable},
		{"yield in async", expr.AsyncLambda("a", taskInt, nil,
			expr.Block(nil, expr.Yield(expr.Const(1)), expr.Const(1))), diag.LowYieldInAsync},
		{"await in iterator", expr.IteratorLambda("i", seqType, nil, stmts(ready(1))), diag.LowAwaitInIterator},
		{"suspend in plain", expr.AsyncLambda("a", taskInt, nil, expr.Block(nil,
			expr.Lambda("inner", false, nil, ready(1)), ready(2))), diag.LowSuspendInPlain},
		{"undefined label", expr.AsyncLambda("a", taskInt, nil, expr.Block(nil,
			expr.Goto(missing), ready(1))), diag.LowUndefinedLabel},
		{"no backend", expr.AsyncLambda("a", reflect.TypeFor[*asyncrt.Task[uint8]](), nil,
			expr.Convert(ready(1), reflect.TypeFor[uint8]())), diag.LowNoBackend},
		{"bad iterator shape", expr.IteratorLambda("i", reflect.TypeFor[[]int](), nil,
			stmts(expr.Yield(expr.Const(1)))), diag.LowBadIteratorShape},
		{"yield in finally", expr.IteratorLambda("i", seqType, nil,
			expr.TryFinally(expr.Yield(expr.Const(1)), expr.Yield(expr.Const(2)))), diag.LowYieldInFinally},
		{"jump out of finally", expr.AsyncLambda("a", taskInt, nil, expr.Block(nil,
			expr.TryFinally(stmts(ready(1)), expr.Goto(out)),
			expr.Mark(out, nil),
			expr.Const(1))), diag.LowJumpOutOfFinally},
		{"jump into try", expr.AsyncLambda("a", taskInt, nil, expr.Block(nil,
			expr.Goto(in),
			expr.TryFinally(stmts(ready(1), expr.Mark(in, nil)), expr.Empty()),
			expr.Const(1))), diag.LowJumpIntoTry},
		{"await in filter", expr.AsyncLambda("a", taskInt, nil,
			expr.Try(ready(1), expr.CatchIf(expr.ErrorType, nil,
				expr.Await(expr.Const(asyncrt.FromResult(true))), expr.Const(2)))), diag.LowAwaitInFilter},
	}
	for _, tt := range tests {
		res, err := Lower(context.Background(), tt.lambda, Options{})
		if err == nil {
			t.Fatalf("%s: lowered without error", tt.name)
		}
		if res != nil {
			t.Fatalf("%s: result returned with an error", tt.name)
		}
		if !diag.Has(err, tt.code) {
			t.Fatalf("%s: err = %v, want %s", tt.name, err, tt.code.ID())
		}
	}
}

func TestLowerKeepsFuncType(t *testing.T) {
	p := expr.NewVar("p", expr.IntType)
	lambda := expr.AsyncLambda("keep", taskInt, []*expr.Variable{p}, expr.Add(ready(1), expr.Ref(p)))
	res, err := Lower(context.Background(), lambda, Options{Verify: true})
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	if res.Lambda.Type != lambda.Type {
		t.Fatalf("type %s, want %s", res.Lambda.Type, lambda.Type)
	}
	if d := res.Lambda.Data.(expr.LambdaData); d.Kind != expr.LambdaPlain {
		t.Fatalf("kind %s, want plain", d.Kind)
	}
	if _, ok := res.Timings.Phase("continuations"); !ok {
		t.Fatalf("continuations phase not timed")
	}
	fn, err := eval.Func(res.Lambda)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	h, err := fn(41)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if v, err := h.(*asyncrt.Task[int]).Result(); err != nil || v != 42 {
		t.Fatalf("result %v, %v; want 42", v, err)
	}
}

func TestLowerNestedInPlainRoot(t *testing.T) {
	inner := expr.AsyncLambda("inner", taskInt, nil, expr.Add(ready(20), ready(22)))
	root := expr.Lambda("factory", false, nil, inner)
	res, err := Lower(context.Background(), root, Options{Verify: true})
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	if len(res.Machines) != 1 || res.Root().Name != "inner" {
		t.Fatalf("machines %d, root %v", len(res.Machines), res.Root())
	}
	if res.Lambda.Type != root.Type {
		t.Fatalf("type %s, want %s", res.Lambda.Type, root.Type)
	}
	fn, err := eval.Func(res.Lambda)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	made, err := fn()
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	h := reflect.ValueOf(made).Call(nil)[0].Interface()
	if v, err := h.(*asyncrt.Task[int]).Result(); err != nil || v != 42 {
		t.Fatalf("result %v, %v; want 42", v, err)
	}
}

func TestLowerReportsSharedNodeOnce(t *testing.T) {
	bad := expr.Await(expr.Const(5))
	lambda := expr.AsyncLambda("shared", taskInt, nil, expr.Block(nil, bad, bad, expr.Const(1)))
	_, err := Lower(context.Background(), lambda, Options{})
	var de *diag.Error
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want diagnostics", err)
	}
	if n := de.Bag.Len(); n != 1 {
		t.Fatalf("%d diagnostics for one node:\n%s", n, diag.FormatShort(de.Bag.Items(), false))
	}
}

func TestDebugNamesStates(t *testing.T) {
	lambda := expr.AsyncLambda("named", taskInt, nil, expr.Add(ready(1), ready(2)))
	res, err := Lower(context.Background(), lambda, Options{Debug: true})
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	for _, st := range res.Root().States {
		if st.Name == "" {
			t.Fatalf("state %d unnamed", st.ID)
		}
	}
	if !strings.HasPrefix(res.Root().States[0].Name, "Entry") {
		t.Fatalf("first state %q", res.Root().States[0].Name)
	}
	if _, ok := res.Timings.Phase("optimize"); ok {
		t.Fatalf("debug run should skip the optimizer")
	}
}

func TestCheckFlagsBrokenMachine(t *testing.T) {
	a := &MachineState{ID: 0}
	b := &MachineState{ID: 2}
	stray := &MachineState{ID: 7}
	a.SetContinuation(b)
	b.SetContinuation(stray)
	m := &Machine{Name: "broken", Kind: expr.LambdaAsync, States: []*MachineState{a, b}}

	bag := diag.NewBag(16)
	m.Check(diag.BagReporter{Bag: bag})
	for _, code := range []diag.Code{diag.ChkDuplicateState, diag.ChkDanglingTarget} {
		if _, ok := bag.First(code); !ok {
			t.Fatalf("missing %s in %d diagnostics", code.ID(), bag.Len())
		}
	}
}

func TestCheckWarnsUnreachable(t *testing.T) {
	a := &MachineState{ID: 0, terminal: true}
	b := &MachineState{ID: 1, terminal: true}
	m := &Machine{Name: "island", States: []*MachineState{a, b}}
	bag := diag.NewBag(16)
	m.Check(diag.BagReporter{Bag: bag})
	if bag.HasErrors() {
		t.Fatalf("unexpected errors: %v", bag.Items())
	}
	if _, ok := bag.First(diag.ChkUnreachableState); !ok {
		t.Fatalf("unreachable state not reported")
	}
}

func TestSetContinuationTwiceIsDefect(t *testing.T) {
	defer func() {
		if _, ok := recover().(defect); !ok {
			t.Fatalf("expected a defect panic")
		}
	}()
	a := &MachineState{ID: 0}
	a.SetContinuation(&MachineState{ID: 1})
	a.SetContinuation(&MachineState{ID: 2})
}

func TestIsSafe(t *testing.T) {
	x := expr.NewVar("x", expr.IntType)
	a := expr.NewVar("a", expr.AnyType)
	pt := expr.NewVar("pt", reflect.TypeFor[*struct{ N int }]())
	tests := []struct {
		name string
		e    *expr.Expr
		want bool
	}{
		{"constant", expr.Const(1), true},
		{"arithmetic", expr.Add(expr.Ref(x), expr.Const(1)), true},
		{"store", expr.Assign(expr.Ref(x), expr.Const(2)), true},
		{"divide by constant", expr.Binary(expr.OpDiv, expr.Ref(x), expr.Const(2)), true},
		{"divide by variable", expr.Binary(expr.OpDiv, expr.Const(2), expr.Ref(x)), false},
		{"widening", expr.Convert(expr.Ref(x), reflect.TypeFor[int64]()), true},
		{"assertion", expr.Convert(expr.Ref(a), expr.IntType), false},
		{"interface equality", expr.Equal(expr.Ref(a), expr.Ref(a)), false},
		{"call", expr.CallFunc(func() {}), false},
		{"throw", expr.Throw(expr.ConstOf(nil, expr.ErrorType)), false},
		{"pointer field", expr.Field(expr.Ref(pt), "N"), false},
		{"closure", expr.Lambda("f", false, nil, expr.CallFunc(func() {})), true},
		{"closure in block", stmts(expr.Lambda("g", false, nil, expr.CallFunc(func() {}))), true},
		{"call beside closure", stmts(expr.Lambda("h", false, nil, expr.Const(1)), expr.CallFunc(func() {})), false},
	}
	for _, tt := range tests {
		if got := IsSafe(tt.e); got != tt.want {
			t.Fatalf("%s: IsSafe = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestOptimizeFlattensAndTruncates(t *testing.T) {
	calls := 0
	hit := func() { calls++ }
	errStop := expr.ConstOf(asyncrt.NewInvariantError(3), expr.ErrorType)
	e := stmts(
		expr.Const(1),
		stmts(expr.CallFunc(hit), expr.Const(2)),
		expr.Throw(errStop),
		expr.CallFunc(hit))
	got := Optimize(e)
	d, ok := got.Data.(expr.BlockData)
	if !ok {
		t.Fatalf("optimized to %s", got.Kind)
	}
	if len(d.Exprs) != 2 || d.Exprs[0].Kind != expr.ExprCall || d.Exprs[1].Kind != expr.ExprThrow {
		t.Fatalf("unexpected shape:\n%s", expr.String(got))
	}
	if _, err := eval.Eval(got); err == nil || calls != 1 {
		t.Fatalf("eval err %v, calls %d", err, calls)
	}
}

func TestOptimizeCollapsesStores(t *testing.T) {
	tmp := expr.NewVar("tmp", expr.IntType)
	y := expr.NewVar("y", expr.IntType)
	seven := func() int { return 7 }
	e := expr.Block([]*expr.Variable{y},
		expr.Block([]*expr.Variable{tmp},
			expr.Assign(expr.Ref(tmp), expr.CallFunc(seven)),
			expr.Assign(expr.Ref(y), expr.Ref(tmp))),
		expr.Ref(y))
	got := Optimize(e)
	if countRefs([]*expr.Expr{got}, tmp) != 0 {
		t.Fatalf("tmp survived:\n%s", expr.String(got))
	}
	v, err := eval.Eval(got)
	if err != nil || v != 7 {
		t.Fatalf("eval = %v, %v; want 7", v, err)
	}
}

func TestOptimizeSelfAssignAndSameArms(t *testing.T) {
	x := expr.NewVar("x", expr.IntType)
	flag := expr.NewVar("flag", expr.BoolType)
	e := expr.Block([]*expr.Variable{x, flag},
		expr.Assign(expr.Ref(x), expr.Const(3)),
		expr.Assign(expr.Ref(x), expr.Ref(x)),
		expr.IfThenElse(expr.Ref(flag),
			expr.Assign(expr.Ref(x), expr.Const(4)),
			expr.Assign(expr.Ref(x), expr.Const(4))),
		expr.Ref(x))
	got := Optimize(e)
	d := got.Data.(expr.BlockData)
	if len(d.Exprs) != 3 || d.Exprs[1].Kind != expr.ExprAssign {
		t.Fatalf("unexpected shape:\n%s", expr.String(got))
	}
	if v, err := eval.Eval(got); err != nil || v != 4 {
		t.Fatalf("eval = %v, %v; want 4", v, err)
	}
}

func TestRescopeMovesDefinedFirst(t *testing.T) {
	v := expr.NewVar("v", expr.IntType)
	var seen int
	sink := func(n int) { seen = n }
	inner := stmts(expr.Assign(expr.Ref(v), expr.Const(2)), expr.CallFunc(sink, expr.Ref(v)))
	root := expr.Block([]*expr.Variable{v}, inner)

	got := Rescope(root, nil)
	if vars := got.Data.(expr.BlockData).Vars; len(vars) != 0 {
		t.Fatalf("root still declares %v", vars)
	}
	moved := got.Data.(expr.BlockData).Exprs[0].Data.(expr.BlockData).Vars
	if len(moved) != 1 || moved[0] != v {
		t.Fatalf("inner declares %v, want [v]", moved)
	}
	if _, err := eval.Eval(got); err != nil || seen != 2 {
		t.Fatalf("eval err %v, seen %d", err, seen)
	}
}

func TestRescopeKeepsUnsafeMoves(t *testing.T) {
	v := expr.NewVar("v", expr.IntType)
	sink := func(int) {}
	readFirst := stmts(expr.CallFunc(sink, expr.Ref(v)), expr.Assign(expr.Ref(v), expr.Const(2)))
	captured := stmts(
		expr.Assign(expr.Ref(v), expr.Const(2)),
		expr.Lambda("c", false, nil, expr.Ref(v)))
	for name, inner := range map[string]*expr.Expr{"read first": readFirst, "captured": captured} {
		got := Rescope(expr.Block([]*expr.Variable{v}, inner), nil)
		if vars := got.Data.(expr.BlockData).Vars; len(vars) != 1 || vars[0] != v {
			t.Fatalf("%s: root declares %v, want [v]", name, vars)
		}
	}
}

func TestRescopeDropsWriteOnly(t *testing.T) {
	v := expr.NewVar("v", expr.IntType)
	calls := 0
	f := func() int { calls++; return 1 }
	root := expr.Block([]*expr.Variable{v}, expr.Assign(expr.Ref(v), expr.CallFunc(f)), expr.Const(5))

	got := Rescope(root, nil)
	if vars := got.Data.(expr.BlockData).Vars; len(vars) != 0 {
		t.Fatalf("write-only var kept: %v", vars)
	}
	if r, err := eval.Eval(got); err != nil || r != 5 || calls != 1 {
		t.Fatalf("eval = %v, %v with %d calls", r, err, calls)
	}

	kept := Rescope(root, map[*expr.Variable]bool{v: true})
	if vars := kept.Data.(expr.BlockData).Vars; len(vars) != 1 {
		t.Fatalf("ignored var dropped")
	}
}
