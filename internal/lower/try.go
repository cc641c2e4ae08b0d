package lower

import (
	"asyncexpr/internal/adt"
	"asyncexpr/internal/diag"
	"asyncexpr/internal/expr"
)

// visitTry lowers a try expression whose regions suspend or jump across
// state boundaries. Every region becomes its own chain of states; the try
// context recorded on each state drives exception dispatch at emission.
func (b *builder) visitTry(e *expr.Expr) *expr.Expr {
	d := e.Data.(expr.TryData)
	outer := b.tryStack
	exit := b.newState("tryExit", e, e.Type)

	var finInfo *TryInfo
	if d.Finally != nil {
		b.inFinally++
		fin := b.newState("finally", d.Finally, nil)
		fin.FinallyState = true
		b.inFinally--
		finInfo = &TryInfo{
			FinallyState: fin,
			ExitState:    exit,
			ExcVar:       b.local("finallyException", expr.ErrorType),
			SavedResume:  b.local("finallyResume", expr.IntType),
			outer:        outer,
		}
	}
	handlerStack := outer
	if finInfo != nil {
		handlerStack = outer.Push(finInfo)
	}

	var hInfo *TryInfo
	if len(d.Handlers) > 0 || d.Fault != nil {
		hInfo = &TryInfo{
			ExitState: exit,
			ExcVar:    b.local("caught", expr.ErrorType),
			outer:     handlerStack,
		}
	}
	bodyStack := handlerStack
	if hInfo != nil {
		bodyStack = handlerStack.Push(hInfo)
	}

	// leave wires the end of a region to the finally, or straight to exit.
	leave := func() {
		if b.current.terminal || b.current.cont != nil {
			return
		}
		if finInfo != nil {
			b.current.ResumeTarget = exit
			b.current.SetContinuation(finInfo.FinallyState)
			return
		}
		b.current.SetContinuation(exit)
	}

	// protected body
	b.tryStack = bodyStack
	b.pushFrame(regionKey{try: e.ID, part: partBody}, outer, finInfo)
	body := b.newState("try", d.Body, nil)
	b.current.SetContinuation(body)
	b.current = body
	b.assignResult(exit, b.visit(d.Body))
	leave()
	b.popFrame()

	// handlers run outside their own try but inside its finally
	savedRethrow := b.rethrowVar
	for i, h := range d.Handlers {
		b.tryStack = handlerStack
		b.pushFrame(regionKey{try: e.ID, part: partHandler, handler: i}, outer, finInfo)
		if h.Filter != nil && b.needs(h.Filter) {
			b.report(diag.LowAwaitInFilter, h.Filter, "catch filter must not suspend or jump")
		}
		if h.Var != nil {
			b.vars = append(b.vars, h.Var)
		}
		st := b.newState("catch", h.Body, nil)
		b.current = st
		b.rethrowVar = hInfo.ExcVar
		b.assignResult(exit, b.visit(h.Body))
		leave()
		hInfo.Handlers = append(hInfo.Handlers, CatchInfo{State: st, Var: h.Var, Test: h.Test, Filter: h.Filter})
		b.popFrame()
	}
	if d.Fault != nil {
		b.tryStack = handlerStack
		b.pushFrame(regionKey{try: e.ID, part: partFault}, outer, finInfo)
		st := b.newState("fault", d.Fault, nil)
		b.current = st
		b.rethrowVar = hInfo.ExcVar
		b.emit(b.visit(d.Fault))
		b.emit(expr.Throw(expr.Ref(hInfo.ExcVar)))
		b.endWithJump()
		hInfo.Handlers = append(hInfo.Handlers, CatchInfo{State: st, Test: expr.ErrorType, fault: true})
		b.popFrame()
	}
	b.rethrowVar = savedRethrow

	// finally: park the resume slot, run the body, resume
	if finInfo != nil {
		b.tryStack = outer
		b.pushFrame(regionKey{try: e.ID, part: partFinally}, outer, nil)
		b.inFinally++
		b.current = finInfo.FinallyState
		b.emit(expr.Assign(expr.Ref(finInfo.SavedResume), expr.Ref(b.resumeVar)))
		b.emit(b.visit(d.Finally))
		b.emit(expr.Assign(expr.Ref(b.stateVar), expr.Ref(finInfo.SavedResume)))
		b.current.terminal = true
		b.inFinally--
		b.popFrame()
	}

	b.tryStack = outer
	b.current = exit
	return resultRef(exit, e.Type)
}

func (b *builder) pushFrame(r regionKey, outer *adt.Stack[*TryInfo], fin *TryInfo) {
	b.frames = append(b.frames, frame{region: r, outer: outer, fin: fin})
}

func (b *builder) popFrame() {
	b.frames = b.frames[:len(b.frames)-1]
}

// rethrow returns the shared state that faults the machine.
func (b *builder) rethrow() *MachineState {
	if b.rethrowState != nil {
		return b.rethrowState
	}
	saved := b.tryStack
	b.tryStack = nil
	st := b.newState("rethrow", nil, nil)
	b.tryStack = saved
	st.Stmts = append(st.Stmts, b.setStateID(-1))
	st.Stmts = append(st.Stmts, b.target.fault(b, expr.Ref(b.excVar))...)
	st.terminal = true
	b.rethrowState = st
	return st
}

// propagate returns the state that re-raises info's exception after its
// finally ran, in the context outside the try.
func (b *builder) propagate(info *TryInfo) *MachineState {
	if info.RethrowState != nil {
		return info.RethrowState
	}
	saved := b.tryStack
	b.tryStack = info.outer
	st := b.newState("propagate", nil, nil)
	b.tryStack = saved
	st.Stmts = append(st.Stmts, expr.Throw(expr.Ref(info.ExcVar)))
	st.terminal = true
	info.RethrowState = st
	return st
}

// dispatch builds the handler routing for an exception ex raised in st.
// Handlers are tried innermost first; the first finally on the way out
// captures whatever is still unhandled and re-raises it afterwards. An
// error raised by a filter replaces ex and skips the remaining handlers of
// that try, so it still reaches the outer handlers and finally blocks.
func (b *builder) dispatch(st *MachineState, ex *expr.Variable) *expr.Expr {
	type arm struct {
		test   *expr.Expr
		action *expr.Expr
	}
	var arms []arm
	var seen adt.TypeSet
	var tail *expr.Expr
	var skips []*expr.Variable
	filtered := false

	for info := range st.TryStack.All() {
		var skip *expr.Variable
		for _, h := range info.Handlers {
			if h.Filter == nil && !filtered && !seen.Add(h.Test) {
				continue
			}
			test := expr.TypeIs(expr.Ref(ex), h.Test)
			if skip != nil {
				test = expr.AndAlso(expr.Not(expr.Ref(skip)), test)
			}
			if h.Filter != nil {
				if skip == nil {
					skip = expr.NewVar("filterFailed", expr.BoolType)
					skips = append(skips, skip)
				}
				test = expr.AndAlso(test, b.filterGuard(h, ex, skip))
				filtered = true
			}
			action := []*expr.Expr{expr.Assign(expr.Ref(info.ExcVar), expr.Ref(ex))}
			if h.Var != nil {
				action = append(action, expr.Assign(expr.Ref(h.Var), coerce(expr.Ref(ex), h.Var.Type)))
			}
			action = append(action, b.setState(h.State))
			arms = append(arms, arm{test: test, action: expr.TypedBlock(expr.Void, nil, action...)})
		}
		if info.FinallyState != nil {
			tail = expr.TypedBlock(expr.Void, nil,
				expr.Assign(expr.Ref(info.ExcVar), expr.Ref(ex)),
				b.setResume(b.propagate(info)),
				b.setState(info.FinallyState))
			break
		}
	}
	if tail == nil && (filtered || !seen.Contains(expr.ErrorType)) {
		tail = expr.TypedBlock(expr.Void, nil,
			expr.Assign(expr.Ref(b.excVar), expr.Ref(ex)),
			b.setState(b.rethrow()))
	}
	if tail == nil {
		tail = expr.Empty()
	}
	for i := len(arms) - 1; i >= 0; i-- {
		tail = expr.IfThenElse(arms[i].test, arms[i].action, tail)
	}
	if len(skips) > 0 {
		return expr.TypedBlock(expr.Void, skips, tail)
	}
	return tail
}

// filterGuard evaluates h's filter with its variable bound. When the
// filter raises, its error becomes ex, skip is set and the guard fails.
func (b *builder) filterGuard(h CatchInfo, ex, skip *expr.Variable) *expr.Expr {
	var guard []*expr.Expr
	if h.Var != nil {
		guard = append(guard, expr.Assign(expr.Ref(h.Var), coerce(expr.Ref(ex), h.Var.Type)))
	}
	guard = append(guard, h.Filter)
	raised := expr.NewVar("filterErr", expr.ErrorType)
	return expr.Try(expr.TypedBlock(expr.BoolType, nil, guard...),
		expr.Catch(expr.ErrorType, raised, expr.TypedBlock(expr.BoolType, nil,
			expr.Assign(expr.Ref(ex), expr.Ref(raised)),
			expr.Assign(expr.Ref(skip), expr.Const(true)),
			expr.Const(false))))
}
