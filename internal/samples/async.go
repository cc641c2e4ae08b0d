package samples

import (
	"reflect"

	"asyncexpr/internal/asyncrt"
	"asyncexpr/internal/expr"
)

func stop() *expr.Expr { return expr.ConstOf(ErrStop, expr.ErrorType) }

func init() {
	register(async("await-add", "1 + await 2", taskInt, 3, func(env *Env) *expr.Expr {
		return expr.Add(expr.Const(1), awaitInt(env, 2))
	}))

	register(withInput(async("goto", "goto over an await into a label", taskInt, 3, nil),
		taskBool, func(env *Env) any { return env.Bool(true) },
		func(env *Env, input *expr.Variable) *expr.Expr {
			temp := expr.NewVar("temp", expr.IntType)
			target := expr.NewLabel("target", expr.Void)
			return expr.Block([]*expr.Variable{temp},
				expr.IfThen(expr.Await(expr.Ref(input)), stmt(
					expr.Assign(expr.Ref(temp), expr.Const(1)),
					expr.Goto(target))),
				expr.Assign(expr.Ref(temp), awaitInt(env, -1)),
				expr.Mark(target, nil),
				expr.Add(expr.Ref(temp), awaitInt(env, 2)))
		}))

	register(async("try-catch", "catch an awaited failure", taskInt, -1, func(env *Env) *expr.Expr {
		return expr.Try(expr.Await(expr.CallFunc(env.Fail, stop())),
			expr.Catch(expr.ErrorType, nil, expr.Const(-1)))
	}))

	register(withInput(async("try-finally", "await in both try and finally", taskInt, 3, nil),
		taskInt, func(env *Env) any { return env.Int(2) },
		func(env *Env, input *expr.Variable) *expr.Expr {
			result := expr.NewVar("result", expr.IntType)
			return expr.Block([]*expr.Variable{result},
				expr.TryFinally(
					stmt(expr.Assign(expr.Ref(result), expr.Await(expr.Ref(input)))),
					stmt(expr.AssignWith(expr.AssignAdd, expr.Ref(result), awaitInt(env, 1)))),
				expr.Ref(result))
		}))

	s := async("try-finally-throw", "finally runs before the failure surfaces", taskInt, nil, func(env *Env) *expr.Expr {
		result := expr.NewVar("result", expr.IntType)
		return expr.Block([]*expr.Variable{result},
			expr.TryFinally(
				stmt(expr.Assign(expr.Ref(result), awaitInt(env, 1)), expr.Throw(stop())),
				stmt(expr.AssignWith(expr.AssignAdd, expr.Ref(result), awaitInt(env, 1)))),
			expr.Ref(result))
	})
	s.WantErr = ErrStop
	register(s)

	register(withInput(async("try-catch-finally", "await in try, catch and finally", taskInt, 3, nil),
		taskInt, func(env *Env) any { return env.Int(2) },
		func(env *Env, input *expr.Variable) *expr.Expr {
			result := expr.NewVar("result", expr.IntType)
			return expr.Block([]*expr.Variable{result},
				expr.TryCatchFinally(
					stmt(expr.Assign(expr.Ref(result), expr.Await(expr.Ref(input))), expr.Throw(stop())),
					stmt(expr.AssignWith(expr.AssignAdd, expr.Ref(result), awaitInt(env, 1))),
					expr.Catch(expr.ErrorType, nil,
						stmt(expr.AssignWith(expr.AssignAdd, expr.Ref(result), awaitInt(env, 0))))),
				expr.Ref(result))
		}))

	invalid := func(env *Env) *expr.Expr {
		return expr.Await(expr.CallFunc(env.Fail, expr.ConstOf(&InvalidOperation{Msg: "nested"}, expr.ErrorType)))
	}
	register(nested("nested-caught", "inner handler takes the error", reflect.TypeFor[*InvalidOperation](), invalid, 13))
	register(nested("nested-outer", "error passes the inner handler", reflect.TypeFor[*ArgumentError](), invalid, 111))
	register(nested("nested-sync", "completed await inside nested finally blocks", reflect.TypeFor[*InvalidOperation](),
		func(*Env) *expr.Expr { return expr.Await(expr.Const(asyncrt.FromResult(0))) }, 11))

	register(withInput(async("loop", "break and continue around awaits", taskInt, 3, nil),
		taskInt, func(env *Env) any { return env.Int(2) },
		func(env *Env, input *expr.Variable) *expr.Expr {
			result := expr.NewVar("result", expr.IntType)
			brk := expr.NewLabel("brk", expr.IntType)
			cont := expr.NewLabel("cont", expr.Void)
			loop := expr.Loop(stmt(
				expr.IfThen(expr.Binary(expr.OpLessEqual, expr.Await(expr.Ref(input)), expr.Ref(result)),
					expr.Break(brk, expr.Ref(result))),
				expr.AssignWith(expr.AssignAdd, expr.Ref(result), awaitInt(env, 1)),
				expr.IfThen(expr.Binary(expr.OpLessEqual, expr.Const(0), expr.Ref(result)), expr.Continue(cont)),
				expr.Throw(stop())), brk, cont)
			return expr.Add(expr.Block([]*expr.Variable{result}, loop), awaitInt(env, 1))
		}))

	register(withInput(async("switch-default", "awaited switch value falls to an awaited default", taskInt, -1, nil),
		taskInt, func(env *Env) any { return env.Int(0) },
		func(env *Env, input *expr.Variable) *expr.Expr {
			return expr.Switch(expr.IntType, expr.Await(expr.Ref(input)), awaitInt(env, -1),
				expr.Case(expr.ThrowAs(stop(), expr.IntType), expr.Const(1)),
				expr.Case(awaitInt(env, 2), expr.Const(2)))
		}))

	register(async("switch-async-test", "case tests that await", taskInt, 2, func(env *Env) *expr.Expr {
		return expr.Switch(expr.IntType, expr.Const(5), expr.Const(-1),
			expr.Case(expr.Const(1), awaitInt(env, 0)),
			expr.Case(expr.Const(2), awaitInt(env, 5)))
	}))

	register(async("or-else", "short circuit skips a failing await", taskBool, true, func(env *Env) *expr.Expr {
		return expr.OrElse(expr.Const(true), expr.Await(expr.CallFunc(env.FailBool, stop())))
	}))
	register(async("and-also", "short circuit skips a failing await", taskBool, false, func(env *Env) *expr.Expr {
		return expr.AndAlso(expr.Const(false), expr.Await(expr.CallFunc(env.FailBool, stop())))
	}))
	register(async("or-else-await", "both operands awaited", taskBool, true, func(env *Env) *expr.Expr {
		return expr.OrElse(
			expr.Await(expr.CallFunc(env.Bool, expr.Const(false))),
			expr.Await(expr.CallFunc(env.Bool, expr.Const(true))))
	}))

	register(async("conditional", "awaited test picks a branch", taskString, "success", func(env *Env) *expr.Expr {
		return expr.Condition(expr.Await(expr.CallFunc(env.Bool, expr.Const(true))),
			expr.Const("success"),
			expr.Await(expr.CallFunc(env.Str, expr.Const("failure"))))
	}))

	register(async("in-lambda", "async lambda nested in an async lambda", taskInt, 4, func(env *Env) *expr.Expr {
		f := expr.NewVar("f", reflect.TypeFor[func() *asyncrt.Task[int]]())
		inner := expr.AsyncLambda("inner", taskInt, nil, expr.Add(awaitInt(env, 1), expr.Const(1)))
		return expr.Block([]*expr.Variable{f},
			expr.Assign(expr.Ref(f), inner),
			expr.Add(expr.Await(expr.Call(expr.Ref(f))), expr.Await(expr.Call(expr.Ref(f)))))
	}))

	register(async("future", "void body completes a future", reflect.TypeFor[*asyncrt.Future](), nil, func(env *Env) *expr.Expr {
		return stmt(expr.Await(expr.CallFunc(env.Delay, expr.Const(uint64(5)))))
	}))

	register(async("value-task", "value task handle", reflect.TypeFor[asyncrt.ValueTask[int]](), 6, func(env *Env) *expr.Expr {
		return expr.Mul(awaitInt(env, 3), expr.Const(2))
	}))

	register(async("configure-await", "resume inline after ConfigureAwait(false)", taskInt, 5, func(env *Env) *expr.Expr {
		return expr.Add(expr.AwaitConfigured(expr.CallFunc(env.Int, expr.Const(4)), false), expr.Const(1))
	}))

	register(async("fast-path", "body without awaits", taskInt, 7, func(*Env) *expr.Expr {
		return expr.Const(7)
	}))
	s = async("fast-path-throw", "body without awaits that throws", taskInt, nil, func(*Env) *expr.Expr {
		return expr.ThrowAs(stop(), expr.IntType)
	})
	s.WantErr = ErrStop
	register(s)

	register(async("filter", "filter declines the first handler", taskInt, 2, func(env *Env) *expr.Expr {
		ex := expr.NewVar("ex", expr.ErrorType)
		return expr.Try(expr.Await(expr.CallFunc(env.Fail, stop())),
			expr.CatchIf(expr.ErrorType, ex, expr.NotEqual(expr.Ref(ex), stop()), expr.Const(1)),
			expr.Catch(expr.ErrorType, nil, expr.Const(2)))
	}))

	register(async("rethrow-after-await", "rethrow keeps the error across a suspension", taskInt, -5, func(env *Env) *expr.Expr {
		ex := expr.NewVar("ex", expr.ErrorType)
		inner := expr.Try(expr.Await(expr.CallFunc(env.Fail, stop())),
			expr.Catch(expr.ErrorType, nil, expr.TypedBlock(expr.IntType, nil,
				awaitInt(env, 0),
				expr.ThrowAs(nil, expr.IntType))))
		return expr.Try(inner, expr.Catch(expr.ErrorType, ex,
			expr.Condition(expr.Equal(expr.Ref(ex), stop()), expr.Const(-5), expr.Const(0))))
	}))

	s = async("uncaught-type", "unhandled error faults the task", taskInt, nil, func(env *Env) *expr.Expr {
		return expr.Await(expr.CallFunc(env.Fail, expr.ConstOf(&ArgumentError{Msg: "x"}, expr.ErrorType)))
	})
	s.WantType = reflect.TypeFor[*ArgumentError]()
	register(s)

	register(async("goto-out-of-try", "jump out of a try runs its finally", taskInt, 6, func(env *Env) *expr.Expr {
		result := expr.NewVar("result", expr.IntType)
		done := expr.NewLabel("done", expr.Void)
		return expr.Block([]*expr.Variable{result},
			expr.TryFinally(
				stmt(expr.Assign(expr.Ref(result), awaitInt(env, 5)), expr.Goto(done)),
				stmt(expr.Increment(expr.PreIncrement, expr.Ref(result)))),
			expr.Assign(expr.Ref(result), expr.Const(0)),
			expr.Mark(done, nil),
			expr.Ref(result))
	}))

	register(async("return", "return from the middle of the body", taskInt, 8, func(env *Env) *expr.Expr {
		ret := expr.NewLabel("ret", expr.IntType)
		return expr.Block(nil,
			expr.IfThen(expr.Await(expr.CallFunc(env.Bool, expr.Const(true))), expr.Return(ret, awaitInt(env, 8))),
			expr.Mark(ret, expr.Const(0)))
	}))
}

// withInput gives s a single input parameter of type t.
func withInput(s *Sample, t reflect.Type, arg func(env *Env) any, body func(env *Env, input *expr.Variable) *expr.Expr) *Sample {
	s.Build = func(env *Env) *expr.Expr {
		input := expr.NewVar("input", t)
		return expr.AsyncLambda(s.Name, s.Handle, []*expr.Variable{input}, body(env, input))
	}
	s.Args = func(env *Env) []any { return []any{arg(env)} }
	return s
}

func nested(name, title string, catchType reflect.Type, operand func(env *Env) *expr.Expr, want int) *Sample {
	return withInput(async(name, title, taskInt, want, nil), taskInt, func(env *Env) any { return env.Int(2) },
		func(env *Env, input *expr.Variable) *expr.Expr {
			result := expr.NewVar("result", expr.IntType)
			ex := expr.NewVar("ex", catchType)
			inner := expr.TryCatchFinally(
				stmt(expr.Assign(expr.Ref(result), operand(env))),
				stmt(expr.AssignWith(expr.AssignAdd, expr.Ref(result), expr.Const(1))),
				expr.Catch(catchType, ex, stmt(expr.Assign(expr.Ref(result), expr.Await(expr.Ref(input))))))
			outer := expr.TryCatchFinally(inner,
				stmt(expr.AssignWith(expr.AssignAdd, expr.Ref(result), expr.Const(10))),
				expr.Catch(expr.ErrorType, nil, stmt(expr.AssignWith(expr.AssignAdd, expr.Ref(result), expr.Const(100)))))
			return expr.Block([]*expr.Variable{result}, outer, expr.Ref(result))
		})
}
