package samples

import (
	"reflect"

	"asyncexpr/internal/expr"
)

func iterator(name, title string, shape reflect.Type, want []any, params []*expr.Variable, body func() *expr.Expr) *Sample {
	return &Sample{Name: name, Title: title, Kind: expr.LambdaIterator, Handle: shape, Want: want,
		Build: func(*Env) *expr.Expr {
			return expr.IteratorLambda(name, shape, params, body())
		}}
}

func init() {
	count := expr.NewVar("count", expr.IntType)
	s := iterator("count-down", "yield a decrementing parameter", seqInt,
		[]any{10, 9, 8, 7, 6, 5, 4, 3, 2, 1}, []*expr.Variable{count}, func() *expr.Expr {
			brk := expr.NewLabel("brk", expr.Void)
			return expr.Loop(expr.IfThenElse(expr.Greater(expr.Ref(count), expr.Const(0)),
				expr.Yield(expr.Increment(expr.PostDecrement, expr.Ref(count))),
				expr.Break(brk, nil)), brk, nil)
		})
	s.Args = func(*Env) []any { return []any{10} }
	register(s)

	register(iterator("yield-sequence", "three yields", sequence, []any{1, 2, 3}, nil, func() *expr.Expr {
		return stmt(expr.Yield(expr.Const(1)), expr.Yield(expr.Const(2)), expr.Yield(expr.Const(3)))
	}))

	register(iterator("yield-after-catch", "handled error ends the try, iteration goes on", seqIntErr,
		[]any{1, 2}, nil, func() *expr.Expr {
			return stmt(
				expr.Try(stmt(expr.Yield(expr.Const(1)), expr.Throw(stop())),
					expr.Catch(expr.ErrorType, nil, expr.Empty())),
				expr.Yield(expr.Const(2)))
		}))

	s = iterator("yield-then-throw", "error surfaces after the first element", sequence, []any{1}, nil,
		func() *expr.Expr {
			return stmt(expr.Yield(expr.Const(1)), expr.Throw(stop()), expr.Yield(expr.Const(2)))
		})
	s.WantErr = ErrStop
	register(s)

	register(iterator("yield-finally", "finally runs between yields", sequence, []any{1, 2, 1}, nil,
		func() *expr.Expr {
			n := expr.NewVar("n", expr.IntType)
			return expr.TypedBlock(expr.Void, []*expr.Variable{n},
				expr.TryFinally(
					stmt(expr.Yield(expr.Const(1)), expr.Yield(expr.Const(2))),
					stmt(expr.Increment(expr.PreIncrement, expr.Ref(n)))),
				expr.Yield(expr.Ref(n)))
		}))

	register(iterator("yield-switch", "yields inside switch cases", seqInt, []any{10, 20, 21, -1}, nil,
		func() *expr.Expr {
			i := expr.NewVar("i", expr.IntType)
			brk := expr.NewLabel("brk", expr.Void)
			sw := expr.Switch(expr.Void, expr.Ref(i), expr.Yield(expr.Const(-1)),
				expr.Case(expr.Yield(expr.Const(10)), expr.Const(0)),
				expr.Case(stmt(expr.Yield(expr.Const(20)), expr.Yield(expr.Const(21))), expr.Const(1)))
			return expr.TypedBlock(expr.Void, []*expr.Variable{i},
				expr.Loop(stmt(
					expr.IfThen(expr.GreaterEqual(expr.Ref(i), expr.Const(3)), expr.Break(brk, nil)),
					sw,
					expr.Increment(expr.PreIncrement, expr.Ref(i))), brk, nil))
		}))
}
