package lower

import (
	"asyncexpr/internal/adt"
	"asyncexpr/internal/diag"
	"asyncexpr/internal/expr"
)

// branch visits x as a continuous fiber that ends by storing its value into
// merge and continuing there. The returned block runs the fiber's first
// segment in place.
func (b *builder) branch(x *expr.Expr, merge *MachineState) *expr.Expr {
	saved := b.current
	entry := b.virtualState()
	b.current = entry
	f := fiber{entry: entry}
	if x != nil {
		f.value = b.visit(x)
	}
	f.exit = b.current
	b.assignResult(merge, f.value)
	if !f.exit.terminal && f.exit.cont == nil {
		f.exit.SetContinuation(merge)
	}
	b.current = saved
	return b.inline(entry)
}

// standalone visits x starting in a fresh registered state and wires its
// exit into merge. It returns the entry state.
func (b *builder) standalone(kind string, x *expr.Expr, merge *MachineState) *MachineState {
	saved := b.current
	entry := b.newState(kind, x, nil)
	b.current = entry
	var v *expr.Expr
	if x != nil {
		v = b.visit(x)
	}
	b.assignResult(merge, v)
	if !b.current.terminal && b.current.cont == nil {
		b.current.SetContinuation(merge)
	}
	b.current = saved
	return entry
}

// split ends the current state with stmt, whose arms all transfer, and
// moves on to next.
func (b *builder) split(stmt *expr.Expr, next *MachineState) {
	b.emit(stmt)
	b.current.terminal = true
	b.current = next
}

func (b *builder) visitConditional(e *expr.Expr) *expr.Expr {
	d := e.Data.(expr.ConditionalData)
	test := b.visit(d.Test)
	if !b.needs(d.IfTrue) && !b.needs(d.IfFalse) {
		d.Test = test
		return withData(e, d)
	}
	merge := b.newState("merge", e, e.Type)
	then := b.branch(d.IfTrue, merge)
	els := b.branch(d.IfFalse, merge)
	b.split(expr.IfThenElse(test, then, els), merge)
	return resultRef(merge, e.Type)
}

// visitLogical lowers AndAlso/OrElse whose right operand suspends. The
// right side only runs when the left does not decide the result.
func (b *builder) visitLogical(e *expr.Expr) *expr.Expr {
	d := e.Data.(expr.BinaryData)
	left := b.visit(d.Left)
	if !b.needs(d.Right) {
		d.Left = left
		return withData(e, d)
	}
	merge := b.newState("merge", e, expr.BoolType)
	absorbing := d.Op == expr.OpOrElse
	short := expr.TypedBlock(expr.Void, nil,
		expr.Assign(expr.Ref(merge.Result), expr.Const(absorbing)),
		b.setState(merge))
	right := b.branch(d.Right, merge)
	if absorbing {
		b.split(expr.IfThenElse(left, short, right), merge)
	} else {
		b.split(expr.IfThenElse(left, right, short), merge)
	}
	return expr.Ref(merge.Result)
}

func (b *builder) visitSwitch(e *expr.Expr) *expr.Expr {
	d := e.Data.(expr.SwitchData)
	bodiesAsync := b.needs(d.Default)
	testsAsync := false
	for _, c := range d.Cases {
		bodiesAsync = bodiesAsync || b.needs(c.Body)
		for _, t := range c.TestValues {
			testsAsync = testsAsync || b.needs(t)
		}
	}
	value := b.visit(d.Value)
	switch {
	case !bodiesAsync && !testsAsync:
		d.Value = value
		return withData(e, d)
	case !testsAsync:
		return b.switchAsyncBodies(e, d, value)
	default:
		return b.switchAsyncTests(e, d, value)
	}
}

// switchAsyncBodies keeps a single dispatch switch whose arms run the
// lowered bodies and meet in a merge state.
func (b *builder) switchAsyncBodies(e *expr.Expr, d expr.SwitchData, value *expr.Expr) *expr.Expr {
	merge := b.newState("merge", e, e.Type)
	arms := make(map[*expr.Expr]*expr.Expr, len(d.Cases))
	cases := make([]expr.SwitchCase, len(d.Cases))
	for i, c := range d.Cases {
		arm, ok := arms[c.Body]
		if !ok {
			arm = b.branch(c.Body, merge)
			arms[c.Body] = arm
		}
		cases[i] = expr.Case(arm, c.TestValues...)
	}
	def := d.Default
	if def == nil {
		def = expr.Default(e.Type)
	}
	b.split(expr.SwitchWith(expr.Void, value, b.branch(def, merge), d.Comparer, cases...), merge)
	return resultRef(merge, e.Type)
}

type switchTest struct {
	test  *expr.Expr
	entry *MachineState
	async bool
}

// switchAsyncTests evaluates the value once, then walks the test values in
// source order: runs of synchronous tests become sub-switches, suspending
// tests are compared one at a time.
func (b *builder) switchAsyncTests(e *expr.Expr, d expr.SwitchData, value *expr.Expr) *expr.Expr {
	merge := b.newState("merge", e, e.Type)
	v := value
	if v.Kind != expr.ExprConstant {
		tmp := b.local("switchValue", value.Type)
		b.emit(expr.Assign(expr.Ref(tmp), value))
		v = expr.Ref(tmp)
	}

	entries := make(map[*expr.Expr]*MachineState, len(d.Cases))
	var tests []switchTest
	for _, c := range d.Cases {
		entry, ok := entries[c.Body]
		if !ok {
			entry = b.standalone("case", c.Body, merge)
			entries[c.Body] = entry
		}
		for _, t := range c.TestValues {
			tests = append(tests, switchTest{test: t, entry: entry, async: b.needs(t)})
		}
	}
	def := merge
	if d.Default != nil {
		def = b.standalone("default", d.Default, merge)
	} else if merge.Result != nil {
		b.emit(expr.Assign(expr.Ref(merge.Result), expr.Default(e.Type)))
	}

	jump := func(st *MachineState) *expr.Expr {
		return expr.TypedBlock(expr.Void, nil, b.setState(st), b.continueDispatch())
	}
	for _, run := range adt.GroupSame(tests, func(t switchTest) bool { return t.async }) {
		if run[0].async {
			for _, t := range run {
				r := b.visit(t.test)
				b.emit(expr.IfThen(b.matches(d.Comparer, v, r), jump(t.entry)))
			}
			continue
		}
		var cases []expr.SwitchCase
		for _, t := range run {
			cases = append(cases, expr.Case(jump(t.entry), b.passThrough(t.test)))
		}
		b.emit(expr.SwitchWith(expr.Void, v, nil, d.Comparer, cases...))
	}
	b.current.SetContinuation(def)
	b.current = merge
	return resultRef(merge, e.Type)
}

func (b *builder) matches(comparer any, v, test *expr.Expr) *expr.Expr {
	if comparer != nil {
		return expr.CallFunc(comparer, v, test)
	}
	return expr.Equal(v, test)
}

func (b *builder) visitLoop(e *expr.Expr) *expr.Expr {
	d := e.Data.(expr.LoopData)
	cont := d.Continue
	if cont == nil {
		cont = expr.NewLabel("loop", expr.Void)
	}
	entry := b.labelState(cont, e)
	b.current.SetContinuation(entry)
	b.current = entry
	var exit *MachineState
	if d.Break != nil {
		exit = b.labelState(d.Break, e)
	}
	b.emit(b.visit(d.Body))
	if !b.current.terminal && b.current.cont == nil {
		b.current.SetContinuation(entry)
	}
	if exit == nil {
		b.current = b.deadState()
		return expr.Default(e.Type)
	}
	b.current = exit
	return resultRef(exit, e.Type)
}

func (b *builder) visitLabel(e *expr.Expr) *expr.Expr {
	d := e.Data.(expr.LabelData)
	st := b.labelState(d.Target, e)
	if d.Default != nil {
		b.assignResult(st, b.visit(d.Default))
	}
	if !b.current.terminal && b.current.cont == nil {
		b.current.SetContinuation(st)
	}
	b.current = st
	return resultRef(st, e.Type)
}

func (b *builder) visitGoto(e *expr.Expr) *expr.Expr {
	d := e.Data.(expr.GotoData)
	st := b.labelState(d.Target, e)
	if d.Value != nil {
		b.assignResult(st, b.visit(d.Value))
	}
	depth, ok := b.labelDepth(d.Target)
	if !ok {
		b.report(diag.LowJumpIntoTry, e, "jump to %s enters a protected region", d.Target)
		b.endWithJump()
		return expr.Default(e.Type)
	}

	// finally blocks between here and the label run innermost first
	var finals []*TryInfo
	for i := len(b.frames) - 1; i >= depth; i-- {
		f := b.frames[i]
		switch f.region.part {
		case partFinally, partFault:
			b.report(diag.LowJumpOutOfFinally, e, "jump to %s leaves a %s block", d.Target, f.region.part)
			b.endWithJump()
			return expr.Default(e.Type)
		}
		if f.fin != nil {
			finals = append(finals, f.fin)
		}
	}
	if len(finals) == 0 {
		b.emit(b.setState(st))
		b.emit(b.continueDispatch())
		b.endWithJump()
		return expr.Default(e.Type)
	}

	// each finally resumes into a trampoline that enters the next one
	next := st
	for i := len(finals) - 1; i > 0; i-- {
		saved := b.tryStack
		b.tryStack = finals[i-1].outer
		tramp := b.newState("leave", e, nil)
		b.tryStack = saved
		tramp.ResumeTarget = next
		tramp.SetContinuation(finals[i].FinallyState)
		next = tramp
	}
	b.emit(b.setResume(next))
	b.emit(b.setState(finals[0].FinallyState))
	b.emit(b.continueDispatch())
	b.endWithJump()
	return expr.Default(e.Type)
}

// labelState returns the state a label maps to, creating it in the try
// context of the label's definition.
func (b *builder) labelState(l *expr.Label, at *expr.Expr) *MachineState {
	if st, ok := b.labels[l]; ok {
		return st
	}
	saved := b.tryStack
	if depth, ok := b.labelDepth(l); ok && depth < len(b.frames) {
		b.tryStack = b.frames[depth].outer
	}
	st := b.newState("label", at, l.Type)
	st.detail = l.Name
	b.tryStack = saved
	b.labels[l] = st
	return st
}

// labelDepth returns how many of the current try frames also enclose the
// label. ok is false when the label sits in a region the current path is
// not inside.
func (b *builder) labelDepth(l *expr.Label) (int, bool) {
	path, known := b.index.paths[l]
	if !known {
		return len(b.frames), true
	}
	if len(path) > len(b.frames) {
		return 0, false
	}
	for i, r := range path {
		if b.frames[i].region != r {
			return 0, false
		}
	}
	return len(path), true
}
