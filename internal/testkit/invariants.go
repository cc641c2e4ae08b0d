package testkit

import (
	"fmt"

	"fortio.org/safecast"

	"asyncexpr/internal/expr"
	"asyncexpr/internal/lower"
)

// CheckMachineInvariants runs a minimal set of invariants on a lowering
// result:
// 1) the lowered tree is plain: no await, no yield, no async or iterator
// lambda
// 2) every machine has dense state ids that fit a uint16
// 3) fast-path machines have no states, others have at least an entry
func CheckMachineInvariants(res *lower.Result) error {
	if res == nil || res.Lambda == nil {
		return fmt.Errorf("nil lowering result")
	}

	// 1) nothing left to lower
	var residual *expr.Expr
	expr.Walk(res.Lambda, func(n *expr.Expr) bool {
		if residual != nil {
			return false
		}
		switch n.Kind {
		case expr.ExprAwait, expr.ExprYield:
			residual = n
		case expr.ExprLambda:
			if n.Data.(expr.LambdaData).Kind != expr.LambdaPlain {
				residual = n
			}
		}
		return residual == nil
	})
	if residual != nil {
		return fmt.Errorf("lowered tree still holds %s node %d", residual.Kind, residual.ID)
	}

	// 2) and 3) per machine
	if len(res.Machines) == 0 {
		return fmt.Errorf("no machines recorded")
	}
	for _, m := range res.Machines {
		if m.FastPath {
			if len(m.States) != 0 {
				return fmt.Errorf("%s: fast path with %d states", m.Name, len(m.States))
			}
			continue
		}
		if len(m.States) == 0 {
			return fmt.Errorf("%s: machine without states", m.Name)
		}
		if _, err := safecast.Conv[uint16](len(m.States)); err != nil {
			return fmt.Errorf("%s: state count overflow: %w", m.Name, err)
		}
		for i, st := range m.States {
			if st.ID != i {
				return fmt.Errorf("%s: state at index %d has id %d", m.Name, i, st.ID)
			}
			if next := st.Continuation(); next != nil && (next.ID < 0 || next.ID >= len(m.States)) {
				return fmt.Errorf("%s: state %d continues to unknown state %d", m.Name, st.ID, next.ID)
			}
			if st.Continuation() == nil && !st.Terminal() {
				return fmt.Errorf("%s: state %d has no way out", m.Name, st.ID)
			}
		}
	}
	return nil
}
