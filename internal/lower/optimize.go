package lower

import (
	"reflect"
	"slices"

	"asyncexpr/internal/expr"
)

// Optimize removes the artifacts lowering leaves behind: nested blocks,
// unused pure statements, code after unconditional transfers and temporary
// stores. It never changes what the tree computes.
func Optimize(e *expr.Expr) *expr.Expr {
	return expr.Rewrite(e, func(n *expr.Expr) *expr.Expr {
		switch n.Kind {
		case expr.ExprBlock:
			return optimizeBlock(n)
		case expr.ExprAssign:
			return selfAssign(n)
		case expr.ExprConditional:
			return sameConstArms(n)
		}
		return n
	})
}

// optimizeBlock applies the block rules until none fires.
func optimizeBlock(e *expr.Expr) *expr.Expr {
	d := e.Data.(expr.BlockData)
	d.Vars = slices.Clone(d.Vars)
	d.Exprs = slices.Clone(d.Exprs)
	for changed := true; changed; {
		changed = flatten(e.Type, &d) ||
			dropPure(e.Type, &d) ||
			truncate(e.Type, &d) ||
			collapseStores(&d) ||
			dropTrailingStore(e.Type, &d)
	}
	if len(d.Vars) == 0 && len(d.Exprs) == 1 && d.Exprs[0].Type == e.Type {
		return d.Exprs[0]
	}
	if len(d.Vars) == 0 && len(d.Exprs) == 0 && expr.IsVoid(e.Type) {
		return expr.Empty()
	}
	return withData(e, d)
}

// flatten splices child blocks into d.
func flatten(t reflect.Type, d *expr.BlockData) bool {
	for i, x := range d.Exprs {
		if x.Kind != expr.ExprBlock {
			continue
		}
		last := i == len(d.Exprs)-1
		if last && !expr.IsVoid(t) && !blockKeepsType(x, t) {
			continue
		}
		inner := x.Data.(expr.BlockData)
		if !last && !expr.IsVoid(x.Type) && len(inner.Exprs) > 0 && inner.Exprs[len(inner.Exprs)-1].Type != x.Type {
			// the conversion of the last value may fail
			continue
		}
		d.Vars = append(d.Vars, inner.Vars...)
		d.Exprs = slices.Concat(d.Exprs[:i], inner.Exprs, d.Exprs[i+1:])
		return true
	}
	return false
}

func blockKeepsType(b *expr.Expr, t reflect.Type) bool {
	inner := b.Data.(expr.BlockData)
	return b.Type == t && len(inner.Exprs) > 0 && inner.Exprs[len(inner.Exprs)-1].Type == t
}

// dropPure removes constants and reads whose value nobody uses.
func dropPure(t reflect.Type, d *expr.BlockData) bool {
	keepLast := !expr.IsVoid(t)
	for i, x := range d.Exprs {
		if keepLast && i == len(d.Exprs)-1 {
			break
		}
		if isInert(x) {
			d.Exprs = slices.Delete(d.Exprs, i, i+1)
			return true
		}
	}
	return false
}

// truncate drops statements after an unconditional goto or throw unless a
// label below makes them reachable.
func truncate(t reflect.Type, d *expr.BlockData) bool {
	for i, x := range d.Exprs {
		if !transfers(x) || i == len(d.Exprs)-1 {
			continue
		}
		if slices.ContainsFunc(d.Exprs[i+1:], placesLabel) {
			return false
		}
		if !expr.IsVoid(t) && x.Type != t {
			x = expr.WithType(x, t)
		}
		d.Exprs = append(d.Exprs[:i], x)
		return true
	}
	return false
}

func transfers(x *expr.Expr) bool {
	return x.Kind == expr.ExprGoto || x.Kind == expr.ExprThrow
}

func placesLabel(x *expr.Expr) bool {
	return expr.Any(x, func(n *expr.Expr) bool { return n.Kind == expr.ExprLabel })
}

// collapseStores rewrites x := v; y := x into y := v for a block-local x
// used nowhere else.
func collapseStores(d *expr.BlockData) bool {
	for i := 0; i+1 < len(d.Exprs); i++ {
		x, v, ok := plainStore(d.Exprs[i])
		if !ok || !slices.Contains(d.Vars, x) {
			continue
		}
		next := d.Exprs[i+1].Data
		ad, ok := next.(expr.AssignData)
		if !ok || ad.Op != expr.AssignPlain || !isRef(ad.Value, x) {
			continue
		}
		if countRefs(d.Exprs, x) != 2 {
			continue
		}
		ad.Value = coerce(v, x.Type)
		merged := withData(d.Exprs[i+1], ad)
		d.Exprs = slices.Replace(d.Exprs, i, i+2, merged)
		d.Vars = slices.DeleteFunc(d.Vars, func(v *expr.Variable) bool { return v == x })
		return true
	}
	return false
}

// dropTrailingStore turns a final store into a block-local variable into
// its value, provided no closure in the block sees the variable.
func dropTrailingStore(t reflect.Type, d *expr.BlockData) bool {
	if len(d.Exprs) == 0 {
		return false
	}
	last := len(d.Exprs) - 1
	x, v, ok := plainStore(d.Exprs[last])
	if !ok || !slices.Contains(d.Vars, x) || capturedIn(d.Exprs, x) {
		return false
	}
	if expr.Any(v, func(n *expr.Expr) bool { return n.Kind == expr.ExprGoto }) {
		return false
	}
	if expr.IsVoid(t) {
		d.Exprs[last] = v
	} else {
		d.Exprs[last] = coerce(v, x.Type)
	}
	return true
}

func plainStore(e *expr.Expr) (*expr.Variable, *expr.Expr, bool) {
	ad, ok := e.Data.(expr.AssignData)
	if !ok || ad.Op != expr.AssignPlain || ad.Target.Kind != expr.ExprVariable || ad.Value == nil {
		return nil, nil, false
	}
	return ad.Target.Data.(expr.VariableData).Var, ad.Value, true
}

func isRef(e *expr.Expr, v *expr.Variable) bool {
	vd, ok := e.Data.(expr.VariableData)
	return ok && vd.Var == v
}

// countRefs counts reads and writes of v, nested lambdas included.
func countRefs(xs []*expr.Expr, v *expr.Variable) int {
	n := 0
	for _, x := range xs {
		expr.Walk(x, func(c *expr.Expr) bool {
			if isRef(c, v) {
				n++
			}
			if ad, ok := c.Data.(expr.AssignData); ok && ad.Target.Kind == expr.ExprVariable && isRef(ad.Target, v) {
				n++
			}
			return true
		})
	}
	return n
}

func capturedIn(xs []*expr.Expr, v *expr.Variable) bool {
	for _, x := range xs {
		found := false
		expr.Walk(x, func(c *expr.Expr) bool {
			if c.Kind == expr.ExprLambda && countRefs([]*expr.Expr{c.Data.(expr.LambdaData).Body}, v) > 0 {
				found = true
			}
			return !found
		})
		if found {
			return true
		}
	}
	return false
}

// selfAssign simplifies x := x to x.
func selfAssign(e *expr.Expr) *expr.Expr {
	x, v, ok := plainStore(e)
	if !ok || !isRef(v, x) {
		return e
	}
	return v
}

// sameConstArms collapses if (test) { r := C } else { r := C } to r := C
// when the test has no effect.
func sameConstArms(e *expr.Expr) *expr.Expr {
	d := e.Data.(expr.ConditionalData)
	a, b := single(d.IfTrue), single(d.IfFalse)
	if a == nil || b == nil {
		return e
	}
	ra, ca, ok := plainStore(a)
	if !ok || ca.Kind != expr.ExprConstant {
		return e
	}
	rb, cb, ok := plainStore(b)
	if !ok || rb != ra || cb.Kind != expr.ExprConstant || ca.Type != cb.Type {
		return e
	}
	if !reflect.DeepEqual(ca.Data.(expr.ConstantData).Value, cb.Data.(expr.ConstantData).Value) {
		return e
	}
	if !IsSafe(d.Test) || expr.Any(d.Test, func(n *expr.Expr) bool { return n.Kind == expr.ExprAssign }) {
		return e
	}
	if !expr.IsVoid(e.Type) && a.Type != e.Type {
		return e
	}
	return a
}

// single unwraps a var-less one-statement block.
func single(e *expr.Expr) *expr.Expr {
	for e != nil && e.Kind == expr.ExprBlock {
		d := e.Data.(expr.BlockData)
		if len(d.Vars) != 0 || len(d.Exprs) != 1 {
			return nil
		}
		e = d.Exprs[0]
	}
	return e
}
