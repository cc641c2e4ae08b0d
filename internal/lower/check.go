package lower

import (
	"fmt"

	"asyncexpr/internal/diag"
	"asyncexpr/internal/expr"
)

// Check verifies the structural invariants of a lowered machine: dense
// unique ids, transitions into known states, try contexts that agree with
// the handlers and finally blocks they name, and reachability of every
// state from the entry. Unreachable states are warnings.
func (m *Machine) Check(rep diag.Reporter) {
	if m == nil || m.FastPath {
		return
	}
	c := &checker{m: m, rep: rep, known: make(map[*MachineState]bool, len(m.States))}
	c.run()
}

type checker struct {
	m     *Machine
	rep   diag.Reporter
	known map[*MachineState]bool
}

func (c *checker) errorf(code diag.Code, st *MachineState, format string, args ...any) {
	loc := diag.Location{Lambda: c.m.Name}
	if st != nil {
		loc.Node = uint32(st.origin)
	}
	diag.ReportError(c.rep, code, loc, fmt.Sprintf(format, args...)).Emit()
}

func (c *checker) run() {
	for i, st := range c.m.States {
		if st.ID != i || c.known[st] {
			c.errorf(diag.ChkDuplicateState, st, "state %d registered at index %d", st.ID, i)
		}
		c.known[st] = true
	}
	for _, st := range c.m.States {
		c.checkEdges(st)
		c.checkTry(st)
	}
	c.checkReachable()
}

func (c *checker) checkEdges(st *MachineState) {
	if st.cont == nil && !st.terminal {
		c.errorf(diag.ChkDanglingTarget, st, "state %d has no transition", st.ID)
	}
	for _, t := range []*MachineState{st.cont, st.ResumeTarget} {
		if t != nil && !c.known[t] {
			c.errorf(diag.ChkDanglingTarget, st, "state %d moves to unregistered state %d", st.ID, t.ID)
		}
	}
	if st.ResumeTarget != nil && (st.cont == nil || !st.cont.FinallyState) {
		c.errorf(diag.ChkFinallyEscapes, st, "state %d sets a resume target without entering a finally", st.ID)
	}
}

func (c *checker) checkTry(st *MachineState) {
	for info := range st.TryStack.All() {
		for _, h := range info.Handlers {
			if !c.known[h.State] {
				c.errorf(diag.ChkDanglingTarget, st, "handler of state %d is unregistered", st.ID)
				continue
			}
			if h.State.TryStack != info.outer {
				c.errorf(diag.ChkTryDepth, h.State, "handler state %d runs in the wrong try context", h.State.ID)
			}
		}
		if fin := info.FinallyState; fin != nil {
			if !c.known[fin] {
				c.errorf(diag.ChkDanglingTarget, st, "finally of state %d is unregistered", st.ID)
			} else if fin.TryStack != info.outer {
				c.errorf(diag.ChkTryDepth, fin, "finally state %d runs in the wrong try context", fin.ID)
			}
			if info.SavedResume == nil {
				c.errorf(diag.ChkFinallyEscapes, fin, "finally state %d has nowhere to resume", fin.ID)
			}
		}
	}
}

// checkReachable follows continuations, resume targets, exception routes
// and the state stores found in statements.
func (c *checker) checkReachable() {
	if len(c.m.States) == 0 {
		return
	}
	seen := make(map[int]bool, len(c.m.States))
	work := []int{0}
	push := func(id int) {
		if id >= 0 && id < len(c.m.States) && !seen[id] {
			seen[id] = true
			work = append(work, id)
		}
	}
	seen[0] = true
	for len(work) > 0 {
		st := c.m.States[work[len(work)-1]]
		work = work[:len(work)-1]
		if st.cont != nil {
			push(st.cont.ID)
		}
		if st.ResumeTarget != nil {
			push(st.ResumeTarget.ID)
		}
		for info := range st.TryStack.All() {
			for _, h := range info.Handlers {
				push(h.State.ID)
			}
			for _, t := range []*MachineState{info.FinallyState, info.RethrowState, info.disposeExit} {
				if t != nil {
					push(t.ID)
				}
			}
		}
		for _, x := range st.Stmts {
			for _, id := range c.storedStates(x) {
				push(id)
			}
		}
	}
	for _, st := range c.m.States {
		if !seen[st.ID] && st.kind != "rethrow" {
			diag.ReportWarning(c.rep, diag.ChkUnreachableState, diag.Location{Lambda: c.m.Name, Node: uint32(st.origin)},
				fmt.Sprintf("state %d (%s) is never entered", st.ID, st.kind)).Emit()
		}
	}
}

// storedStates lists the constant ids x writes into the state or resume
// slots.
func (c *checker) storedStates(x *expr.Expr) []int {
	var ids []int
	expr.Walk(x, func(n *expr.Expr) bool {
		target, v, ok := plainStore(n)
		if ok && (target == c.m.stateVar || target == c.m.resumeVar) && v.Kind == expr.ExprConstant {
			if id, isInt := v.Data.(expr.ConstantData).Value.(int); isInt {
				ids = append(ids, id)
			}
		}
		return n.Kind != expr.ExprLambda
	})
	return ids
}
