package lower

import (
	"asyncexpr/internal/caps"
	"asyncexpr/internal/diag"
	"asyncexpr/internal/expr"
)

// visitAwait splits at an await. The current state obtains the awaiter,
// stores the continuation id and suspends only if the operation is still
// pending; the next state reads the result.
func (b *builder) visitAwait(e *expr.Expr) *expr.Expr {
	d := e.Data.(expr.AwaitData)
	if b.kind == expr.LambdaIterator {
		b.report(diag.LowAwaitInIterator, e, "await inside iterator %s", b.name)
		return expr.Default(e.Type)
	}
	src := b.visit(d.Operand)
	info, ok := caps.Awaitable(src.Type)
	if ok && d.Configured {
		if info.Configure == nil {
			ok = false
		} else {
			src = expr.MethodCall(src, "ConfigureAwait", expr.Const(d.ContinueOnContext))
			info, ok = caps.Awaitable(src.Type)
		}
	}
	if !ok {
		b.report(diag.LowNotAwaitable, e, "%s is not awaitable", src.Type)
		return expr.Default(e.Type)
	}

	awaiter := b.local("awaiter", info.Awaiter)
	next := b.newState("await", e, nil)
	b.emit(expr.Assign(expr.Ref(awaiter), expr.MethodCall(src, "GetAwaiter")))
	b.emit(b.setState(next))
	b.emit(expr.IfThen(
		expr.Not(expr.MethodCall(expr.Ref(awaiter), "IsCompleted")),
		expr.TypedBlock(expr.Void, nil,
			expr.MethodCall(expr.Ref(awaiter), "OnCompleted", expr.Ref(b.contVar)),
			expr.Break(b.brk, nil))))
	b.current.OmitStateAssignment = true
	b.current.SetContinuation(next)
	b.current = next
	return expr.MethodCall(expr.Ref(awaiter), "GetResult")
}

// visitYield stores the element, records the resume state and leaves the
// step function reporting that an element is ready.
func (b *builder) visitYield(e *expr.Expr) *expr.Expr {
	d := e.Data.(expr.YieldData)
	if b.kind != expr.LambdaIterator {
		b.report(diag.LowYieldInAsync, e, "yield inside async %s", b.name)
		return expr.Empty()
	}
	if b.inFinally > 0 {
		b.report(diag.LowYieldInFinally, e, "yield inside a finally block")
		return expr.Empty()
	}
	v := b.visit(d.Value)
	next := b.newState("yield", e, nil)
	next.afterYield = true
	b.emit(expr.Assign(expr.Field(expr.Ref(b.curParam), "Value"), coerce(v, expr.AnyType)))
	b.emit(b.setState(next))
	b.emit(expr.Break(b.brk, expr.Const(true)))
	b.current.terminal = true
	b.current = next
	return expr.Empty()
}
