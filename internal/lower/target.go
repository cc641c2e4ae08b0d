package lower

import (
	"reflect"

	"asyncexpr/internal/asyncrt"
	"asyncexpr/internal/completion"
	"asyncexpr/internal/expr"
)

// target is the part of the machine that differs between async and
// iterator lambdas.
type target interface {
	// setup allocates the target's plumbing variables.
	setup(b *builder)
	// finish ends the final state with value as the body's result.
	finish(b *builder, value *expr.Expr)
	// fault reports an unhandled exception; the state is already -1.
	fault(b *builder, ex *expr.Expr) []*expr.Expr
	defaultCase(b *builder) *expr.Expr
	// assemble builds the lambda body around the dispatch loop.
	assemble(b *builder, loop *expr.Expr) *expr.Expr
}

var funcType = reflect.TypeFor[func()]()

type asyncTarget struct {
	backend completion.Backend
	cell    *expr.Variable
}

func (t *asyncTarget) setup(b *builder) {
	b.contVar = b.plumb("continuation", funcType)
	t.cell = b.plumb("cell", t.backend.CellType())
}

func (t *asyncTarget) finish(b *builder, value *expr.Expr) {
	if value != nil && !expr.IsVoid(t.backend.ResultType()) {
		value = coerce(value, t.backend.ResultType())
	}
	b.emit(t.backend.SetResult(expr.Ref(t.cell), value))
	b.emit(b.setStateID(-1))
	b.emit(expr.Break(b.brk, nil))
}

func (t *asyncTarget) fault(b *builder, ex *expr.Expr) []*expr.Expr {
	return []*expr.Expr{
		t.backend.SetException(expr.Ref(t.cell), ex),
		expr.Break(b.brk, nil),
	}
}

func (t *asyncTarget) defaultCase(b *builder) *expr.Expr {
	return expr.Throw(expr.CallFunc(asyncrt.NewInvariantError, expr.Ref(b.stateVar)))
}

// assemble:
//
//	cell := Create()
//	continuation := func() { try { loop } catch ex { state = -1; SetException(cell, ex) } }
//	continuation()
//	return GetAwaitable(cell)
func (t *asyncTarget) assemble(b *builder, loop *expr.Expr) *expr.Expr {
	ex := expr.NewVar("ex", expr.ErrorType)
	guarded := expr.Try(loop, expr.Catch(expr.ErrorType, ex, expr.TypedBlock(expr.Void, nil,
		b.setStateID(-1),
		t.backend.SetException(expr.Ref(t.cell), expr.Ref(ex)))))
	vars := append(append([]*expr.Variable(nil), b.vars...), b.stateVar, b.resumeVar, b.excVar, t.cell, b.contVar)
	return expr.Block(vars,
		expr.Assign(expr.Ref(b.stateVar), expr.Const(0)),
		expr.Assign(expr.Ref(b.resumeVar), expr.Const(-1)),
		expr.Assign(expr.Ref(t.cell), t.backend.Create()),
		expr.Assign(expr.Ref(b.contVar), expr.Lambda("continuation", false, nil, guarded)),
		expr.Call(expr.Ref(b.contVar)),
		t.backend.GetAwaitable(expr.Ref(t.cell)))
}

// fastPath wraps a body that never suspends into an already settled handle.
func (t *asyncTarget) fastPath(body *expr.Expr) *expr.Expr {
	ex := expr.NewVar("ex", expr.ErrorType)
	value := body
	if !expr.IsVoid(t.backend.ResultType()) {
		value = coerce(body, t.backend.ResultType())
	}
	return expr.Try(t.backend.GetFromResult(value),
		expr.Catch(expr.ErrorType, ex, t.backend.GetFromException(expr.Ref(ex))))
}

type iteratorTarget struct {
	shape  reflect.Type
	params []*expr.Variable
}

var (
	currentType  = reflect.TypeFor[*asyncrt.Current]()
	sequenceType = reflect.TypeFor[*asyncrt.Sequence]()
	rtypeType    = reflect.TypeFor[reflect.Type]()
)

func (t *iteratorTarget) setup(b *builder) {
	b.dispose = b.plumb("dispose", expr.BoolType)
	b.curParam = b.plumb("current", currentType)
}

func (t *iteratorTarget) finish(b *builder, value *expr.Expr) {
	b.emit(value)
	b.emit(b.setStateID(-1))
	b.emit(expr.Break(b.brk, expr.Const(false)))
}

func (t *iteratorTarget) fault(b *builder, ex *expr.Expr) []*expr.Expr {
	return []*expr.Expr{expr.Throw(ex)}
}

func (t *iteratorTarget) defaultCase(b *builder) *expr.Expr {
	return expr.Break(b.brk, expr.Const(false))
}

// assemble:
//
//	factory := func() StepFunc {
//		vars; state = 0; resumeState = -1; copy params
//		return func(dispose bool, current *Current) (bool, error) {
//			try { loop } catch ex { state = -1; throw ex }
//		}
//	}
//	return Adapt(NewSequence(factory), shape)
//
// Every enumeration runs the factory, so each one starts from fresh copies
// of the parameters.
func (t *iteratorTarget) assemble(b *builder, loop *expr.Expr) *expr.Expr {
	copies := make(map[*expr.Variable]*expr.Variable, len(t.params))
	var prologue []*expr.Expr
	for _, p := range t.params {
		c := b.plumb(p.Name, p.Type)
		copies[p] = c
		prologue = append(prologue, expr.Assign(expr.Ref(c), expr.Ref(p)))
	}
	loop = substitute(loop, copies)

	ex := expr.NewVar("ex", expr.ErrorType)
	guarded := expr.Try(loop, expr.Catch(expr.ErrorType, ex, expr.TypedBlock(expr.BoolType, nil,
		b.setStateID(-1),
		expr.ThrowAs(expr.Ref(ex), expr.BoolType))))
	step := expr.Lambda("step", true, []*expr.Variable{b.dispose, b.curParam}, guarded)
	vars := append(append([]*expr.Variable(nil), b.vars...), b.stateVar, b.resumeVar, b.excVar)
	for _, p := range t.params {
		vars = append(vars, copies[p])
	}
	stmts := []*expr.Expr{
		expr.Assign(expr.Ref(b.stateVar), expr.Const(0)),
		expr.Assign(expr.Ref(b.resumeVar), expr.Const(-1)),
	}
	stmts = append(append(stmts, prologue...), step)
	factory := expr.Lambda("factory", false, nil, expr.Block(vars, stmts...))
	seq := expr.CallFunc(asyncrt.NewSequence, factory)
	if t.shape == sequenceType {
		return seq
	}
	return expr.Convert(expr.CallFunc(asyncrt.Adapt, seq, expr.ConstOf(t.shape, rtypeType)), t.shape)
}

// substitute redirects every reference to a variable in m, closures
// included.
func substitute(e *expr.Expr, m map[*expr.Variable]*expr.Variable) *expr.Expr {
	if len(m) == 0 {
		return e
	}
	return expr.Rewrite(e, func(n *expr.Expr) *expr.Expr {
		switch d := n.Data.(type) {
		case expr.VariableData:
			if r, ok := m[d.Var]; ok {
				return withData(n, expr.VariableData{Var: r})
			}
		case expr.AssignData:
			if d.Target.Kind != expr.ExprVariable {
				return n
			}
			if r, ok := m[d.Target.Data.(expr.VariableData).Var]; ok {
				d.Target = withData(d.Target, expr.VariableData{Var: r})
				return withData(n, d)
			}
		}
		return n
	})
}
