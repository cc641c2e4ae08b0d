package lower

import (
	"fmt"
	"reflect"

	"asyncexpr/internal/adt"
	"asyncexpr/internal/diag"
	"asyncexpr/internal/expr"
)

// builder splits one lambda body into machine states. It is used once and
// is not safe for concurrent use.
type builder struct {
	name   string
	kind   expr.LambdaKind
	opts   Options
	rep    diag.Reporter
	target target

	states   []*MachineState
	current  *MachineState
	tryStack *adt.Stack[*TryInfo]
	frames   []frame

	// inFinally counts enclosing finally bodies being visited.
	inFinally int
	// rethrowVar is the exception variable of the innermost lowered
	// handler; bare rethrows read it.
	rethrowVar *expr.Variable

	vars      []*expr.Variable
	plumbing  map[*expr.Variable]bool
	stateVar  *expr.Variable
	resumeVar *expr.Variable
	excVar    *expr.Variable
	contVar   *expr.Variable
	curParam  *expr.Variable
	dispose   *expr.Variable
	brk       *expr.Label
	cont      *expr.Label

	rethrowState *MachineState
	labels       map[*expr.Label]*MachineState
	index        *jumpIndex
	gate         map[*expr.Expr]bool
}

// frame is one enclosing try region on the visiting path.
type frame struct {
	region regionKey
	outer  *adt.Stack[*TryInfo]
	fin    *TryInfo
}

func newBuilder(name string, kind expr.LambdaKind, opts Options, rep diag.Reporter) *builder {
	b := &builder{
		name:     name,
		kind:     kind,
		opts:     opts,
		rep:      rep,
		plumbing: make(map[*expr.Variable]bool),
		labels:   make(map[*expr.Label]*MachineState),
		gate:     make(map[*expr.Expr]bool),
	}
	b.stateVar = b.plumb("state", expr.IntType)
	b.resumeVar = b.plumb("resumeState", expr.IntType)
	b.excVar = b.plumb("exception", expr.ErrorType)
	b.brk = expr.NewLabel("dispatchBreak", expr.Void)
	if kind == expr.LambdaIterator {
		b.brk = expr.NewLabel("dispatchBreak", expr.BoolType)
	}
	b.cont = expr.NewLabel("dispatchContinue", expr.Void)
	return b
}

// plumb allocates a variable owned by the machine itself. Plumbing
// variables stay at the outermost scope.
func (b *builder) plumb(name string, t reflect.Type) *expr.Variable {
	v := expr.NewVar(name, t)
	b.plumbing[v] = true
	return v
}

// local allocates a machine-level variable that the scope pass may move.
func (b *builder) local(name string, t reflect.Type) *expr.Variable {
	v := expr.NewVar(name, t)
	b.vars = append(b.vars, v)
	return v
}

func (b *builder) report(code diag.Code, at *expr.Expr, format string, args ...any) {
	loc := diag.Location{Lambda: b.name}
	if at != nil {
		loc.Node = uint32(at.ID)
	}
	diag.ReportError(b.rep, code, loc, fmt.Sprintf(format, args...)).Emit()
}

// newState registers a state in the current try context.
func (b *builder) newState(kind string, origin *expr.Expr, result reflect.Type) *MachineState {
	st := &MachineState{
		ID:           len(b.states),
		TryStack:     b.tryStack,
		FinallyState: b.inFinally > 0,
		kind:         kind,
	}
	if origin != nil {
		st.origin = origin.ID
	}
	if !expr.IsVoid(result) {
		st.Result = b.local(kind+"Result", result)
	}
	b.states = append(b.states, st)
	return st
}

// virtualState opens a continuous fiber entry that shares the current
// state's id and is inlined where it is used.
func (b *builder) virtualState() *MachineState {
	return &MachineState{
		ID:           b.current.ID,
		TryStack:     b.tryStack,
		FinallyState: b.current.FinallyState,
		virtual:      true,
		kind:         "branch",
	}
}

// deadState is the sink for code following an unconditional transfer.
func (b *builder) deadState() *MachineState {
	return &MachineState{ID: -1, TryStack: b.tryStack, kind: "dead"}
}

// emit appends x to the current state unless it has no effect.
func (b *builder) emit(x *expr.Expr) {
	if x == nil || isInert(x) {
		return
	}
	b.current.Stmts = append(b.current.Stmts, x)
}

// endWithJump closes the current state after an explicit transfer and
// continues in a dead placeholder.
func (b *builder) endWithJump() {
	b.current.terminal = true
	b.current = b.deadState()
}

func (b *builder) setState(st *MachineState) *expr.Expr {
	return b.setStateID(st.ID)
}

func (b *builder) setStateID(id int) *expr.Expr {
	return expr.Assign(expr.Ref(b.stateVar), expr.Const(id))
}

func (b *builder) setResume(st *MachineState) *expr.Expr {
	return expr.Assign(expr.Ref(b.resumeVar), expr.Const(st.ID))
}

func (b *builder) continueDispatch() *expr.Expr { return expr.Continue(b.cont) }

// transition returns the statements moving from st to its continuation.
func (b *builder) transition(st *MachineState) []*expr.Expr {
	if st.cont == nil {
		return nil
	}
	var out []*expr.Expr
	if !st.OmitStateAssignment {
		out = append(out, b.setState(st.cont))
	}
	if st.ResumeTarget != nil {
		out = append(out, b.setResume(st.ResumeTarget))
	}
	return out
}

// inline renders a virtual state as a block for use inside its origin.
func (b *builder) inline(st *MachineState) *expr.Expr {
	body := append(append([]*expr.Expr(nil), st.Stmts...), b.transition(st)...)
	if len(body) == 0 {
		return expr.Empty()
	}
	return expr.TypedBlock(expr.Void, nil, body...)
}

// assignResult stores v into st's result slot, or runs it for effect.
func (b *builder) assignResult(st *MachineState, v *expr.Expr) {
	if st.Result == nil || v == nil || expr.IsVoid(v.Type) {
		b.emit(v)
		return
	}
	b.emit(expr.Assign(expr.Ref(st.Result), coerce(v, st.Result.Type)))
}

func resultRef(st *MachineState, t reflect.Type) *expr.Expr {
	if st.Result == nil {
		return expr.Default(t)
	}
	return expr.Ref(st.Result)
}

// spill evaluates r into a temporary so later operands cannot observe a
// changed value.
func (b *builder) spill(r *expr.Expr) *expr.Expr {
	if r == nil || isStable(r) || expr.IsVoid(r.Type) {
		return r
	}
	tmp := b.local("spill", r.Type)
	b.emit(expr.Assign(expr.Ref(tmp), r))
	return expr.Ref(tmp)
}

// visitOperands visits xs in order, spilling every operand evaluated
// before the last one that needs lowering.
func (b *builder) visitOperands(xs []*expr.Expr) []*expr.Expr {
	last := -1
	for i, x := range xs {
		if b.needs(x) {
			last = i
		}
	}
	out := make([]*expr.Expr, len(xs))
	for i, x := range xs {
		r := b.visit(x)
		if i < last {
			r = b.spill(r)
		}
		out[i] = r
	}
	return out
}

// visit lowers e into the current state and returns the residual value,
// valid at the end of the (possibly new) current state.
func (b *builder) visit(e *expr.Expr) *expr.Expr {
	if e == nil {
		return nil
	}
	if !b.needs(e) {
		return b.passThrough(e)
	}
	switch e.Kind {
	case expr.ExprBlock:
		return b.visitBlock(e)
	case expr.ExprAssign:
		return b.visitAssign(e)
	case expr.ExprBinary:
		return b.visitBinary(e)
	case expr.ExprUnary, expr.ExprTypeIs, expr.ExprField:
		return b.visitUnary(e)
	case expr.ExprThrow:
		return b.visitThrow(e)
	case expr.ExprCall, expr.ExprMethodCall:
		return b.visitCall(e)
	case expr.ExprConditional:
		return b.visitConditional(e)
	case expr.ExprSwitch:
		return b.visitSwitch(e)
	case expr.ExprLoop:
		return b.visitLoop(e)
	case expr.ExprTry:
		return b.visitTry(e)
	case expr.ExprGoto:
		return b.visitGoto(e)
	case expr.ExprLabel:
		return b.visitLabel(e)
	case expr.ExprAwait:
		return b.visitAwait(e)
	case expr.ExprYield:
		return b.visitYield(e)
	}
	panic(defectf("no lowering for %s", e.Kind))
}

// needs reports whether e must be split: it suspends, or jumps cross its
// boundary in either direction.
func (b *builder) needs(e *expr.Expr) bool {
	if e == nil || e.Kind == expr.ExprLambda {
		return false
	}
	if v, ok := b.gate[e]; ok {
		return v
	}
	v := expr.IsAsync(e) || b.index.escapes(e)
	b.gate[e] = v
	return v
}

func (b *builder) passThrough(e *expr.Expr) *expr.Expr {
	if b.rethrowVar == nil {
		return e
	}
	return rewriteRethrow(e, b.rethrowVar)
}

// rewriteRethrow binds bare rethrows under e to v. Handlers of nested
// tries and nested lambdas rethrow their own exception and are left alone.
func rewriteRethrow(e *expr.Expr, v *expr.Variable) *expr.Expr {
	if e == nil {
		return nil
	}
	switch e.Kind {
	case expr.ExprLambda:
		return e
	case expr.ExprThrow:
		if e.Data.(expr.ThrowData).Value == nil {
			return expr.ThrowAs(expr.Ref(v), e.Type)
		}
	case expr.ExprTry:
		d := e.Data.(expr.TryData)
		body, fin := rewriteRethrow(d.Body, v), rewriteRethrow(d.Finally, v)
		if body == d.Body && fin == d.Finally {
			return e
		}
		d.Body, d.Finally = body, fin
		return withData(e, d)
	}
	return expr.MapChildren(e, func(c *expr.Expr) *expr.Expr { return rewriteRethrow(c, v) })
}

func (b *builder) visitBlock(e *expr.Expr) *expr.Expr {
	d := e.Data.(expr.BlockData)
	b.vars = append(b.vars, d.Vars...)
	if len(d.Exprs) == 0 {
		return expr.Default(e.Type)
	}
	last := len(d.Exprs) - 1
	for _, x := range d.Exprs[:last] {
		b.emit(b.visit(x))
	}
	r := b.visit(d.Exprs[last])
	if expr.IsVoid(e.Type) {
		b.emit(r)
		return expr.Empty()
	}
	return coerce(r, e.Type)
}

func (b *builder) visitAssign(e *expr.Expr) *expr.Expr {
	d := e.Data.(expr.AssignData)
	compound, isCompound := d.Op.Binary()
	if d.Target.Kind == expr.ExprVariable {
		if isCompound && d.Value != nil && b.needs(d.Value) {
			cur := b.spill(d.Target)
			v := b.visit(d.Value)
			return expr.Assign(d.Target, expr.Binary(compound, cur, v))
		}
		d.Value = b.visit(d.Value)
		return withData(e, d)
	}
	fd := d.Target.Data.(expr.FieldData)
	obj := b.visit(fd.Object)
	if d.Value != nil && b.needs(d.Value) {
		obj = b.spill(obj)
		target := withData(d.Target, expr.FieldData{Object: obj, Name: fd.Name})
		if isCompound {
			cur := b.spill(target)
			v := b.visit(d.Value)
			return expr.Assign(target, expr.Binary(compound, cur, v))
		}
		d.Target = target
		d.Value = b.visit(d.Value)
		return withData(e, d)
	}
	d.Target = withData(d.Target, expr.FieldData{Object: obj, Name: fd.Name})
	return withData(e, d)
}

func (b *builder) visitBinary(e *expr.Expr) *expr.Expr {
	d := e.Data.(expr.BinaryData)
	if d.Op.IsShortCircuit() && d.Method == nil {
		return b.visitLogical(e)
	}
	ops := b.visitOperands([]*expr.Expr{d.Left, d.Right})
	d.Left, d.Right = ops[0], ops[1]
	return withData(e, d)
}

func (b *builder) visitUnary(e *expr.Expr) *expr.Expr {
	switch d := e.Data.(type) {
	case expr.UnaryData:
		d.Operand = b.visit(d.Operand)
		return withData(e, d)
	case expr.TypeIsData:
		d.Operand = b.visit(d.Operand)
		return withData(e, d)
	case expr.FieldData:
		d.Object = b.visit(d.Object)
		return withData(e, d)
	}
	panic(defectf("unexpected payload for %s", e.Kind))
}

func (b *builder) visitThrow(e *expr.Expr) *expr.Expr {
	d := e.Data.(expr.ThrowData)
	if d.Value == nil {
		if b.rethrowVar == nil {
			return e
		}
		return expr.ThrowAs(expr.Ref(b.rethrowVar), e.Type)
	}
	d.Value = b.visit(d.Value)
	return withData(e, d)
}

func (b *builder) visitCall(e *expr.Expr) *expr.Expr {
	switch d := e.Data.(type) {
	case expr.CallData:
		ops := b.visitOperands(append([]*expr.Expr{d.Fn}, d.Args...))
		d.Fn, d.Args = ops[0], ops[1:]
		return withData(e, d)
	case expr.MethodCallData:
		ops := b.visitOperands(append([]*expr.Expr{d.Receiver}, d.Args...))
		d.Receiver, d.Args = ops[0], ops[1:]
		return withData(e, d)
	}
	panic(defectf("unexpected payload for %s", e.Kind))
}

// withData copies e with a new payload, keeping its id and type.
func withData(e *expr.Expr, d expr.ExprData) *expr.Expr {
	cp := *e
	cp.Data = d
	return &cp
}

// coerce converts r to t when their static types differ.
func coerce(r *expr.Expr, t reflect.Type) *expr.Expr {
	if r == nil || expr.IsVoid(t) || r.Type == t {
		return r
	}
	return expr.Convert(r, t)
}

// isInert reports expressions that do nothing when evaluated for effect.
func isInert(x *expr.Expr) bool {
	switch x.Kind {
	case expr.ExprConstant, expr.ExprDefault, expr.ExprVariable:
		return true
	case expr.ExprBlock:
		d := x.Data.(expr.BlockData)
		return len(d.Exprs) == 0 && len(d.Vars) == 0
	}
	return false
}

// isStable reports residuals whose value cannot change between states.
func isStable(x *expr.Expr) bool {
	return x.Kind == expr.ExprConstant || x.Kind == expr.ExprDefault || x.Kind == expr.ExprLambda
}
