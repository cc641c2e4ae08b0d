package lower

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"asyncexpr/internal/adt"
	"asyncexpr/internal/expr"
)

// emitDispatch renders every registered state as a case of the dispatch
// switch and wraps it in the dispatch loop. States created while emitting
// (propagate, rethrow, dispose exits) are emitted as well.
func (b *builder) emitDispatch() *expr.Expr {
	var cases []expr.SwitchCase
	for i := 0; i < len(b.states); i++ {
		st := b.states[i]
		if b.opts.Debug || b.opts.OnState != nil {
			st.Name = stateName(st)
			if b.opts.OnState != nil {
				b.opts.OnState(st.ID, st.Name)
			}
		}
		cases = append(cases, expr.Case(b.caseBody(st), expr.Const(st.ID)))
	}
	sw := expr.Switch(expr.Void, expr.Ref(b.stateVar), b.target.defaultCase(b), cases...)
	return expr.Loop(sw, b.brk, b.cont)
}

// caseBody is the statement list of one state followed by its transition,
// protected by the exception dispatch of its try context when any of it
// can raise.
func (b *builder) caseBody(st *MachineState) *expr.Expr {
	var stmts []*expr.Expr
	if b.opts.Debug {
		stmts = append(stmts, expr.Const(st.Name))
	}
	if st.afterYield {
		stmts = append(stmts, b.disposePrefix(st))
	}
	stmts = append(stmts, st.Stmts...)
	stmts = append(stmts, b.transition(st)...)
	body := expr.TypedBlock(expr.Void, nil, stmts...)
	if st.TryStack.IsEmpty() || IsSafe(body) {
		return body
	}
	ex := expr.NewVar("ex", expr.ErrorType)
	return expr.Try(body, expr.Catch(expr.ErrorType, ex, b.dispatch(st, ex)))
}

// disposePrefix lets an enumerator closed while suspended at a yield run
// the enclosing finally blocks instead of resuming.
func (b *builder) disposePrefix(st *MachineState) *expr.Expr {
	return expr.IfThen(expr.Ref(b.dispose), expr.TypedBlock(expr.Void, nil, b.disposeRoute(st.TryStack)...))
}

func (b *builder) disposeRoute(stack *adt.Stack[*TryInfo]) []*expr.Expr {
	for info := range stack.All() {
		if info.FinallyState != nil {
			return []*expr.Expr{
				b.setResume(b.disposeExit(info)),
				b.setState(info.FinallyState),
				b.continueDispatch(),
			}
		}
	}
	return []*expr.Expr{b.setStateID(-1), expr.Break(b.brk, expr.Const(false))}
}

// disposeExit is where info's finally resumes during disposal: on to the
// next enclosing finally, or done.
func (b *builder) disposeExit(info *TryInfo) *MachineState {
	if info.disposeExit != nil {
		return info.disposeExit
	}
	saved := b.tryStack
	b.tryStack = info.outer
	st := b.newState("disposeExit", nil, nil)
	b.tryStack = saved
	st.disposeExit = true
	info.disposeExit = st
	st.Stmts = b.disposeRoute(info.outer)
	st.terminal = true
	return st
}

// stateName is "<Kind> <originId> <detail>", NFC normalized.
func stateName(st *MachineState) string {
	kind := st.kind
	if kind != "" {
		kind = strings.ToUpper(kind[:1]) + kind[1:]
	}
	name := fmt.Sprintf("%s %d", kind, st.origin)
	if st.detail != "" {
		name += " " + st.detail
	}
	return norm.NFC.String(name)
}
