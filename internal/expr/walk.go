package expr

// Children returns the direct operands of e in evaluation order. Lambda
// bodies are included; callers that must not cross closures check Kind.
func Children(e *Expr) []*Expr {
	if e == nil {
		return nil
	}
	var out []*Expr
	add := func(xs ...*Expr) {
		for _, x := range xs {
			if x != nil {
				out = append(out, x)
			}
		}
	}
	switch d := e.Data.(type) {
	case BlockData:
		add(d.Exprs...)
	case AssignData:
		if d.Target.Kind == ExprField {
			add(d.Target)
		}
		add(d.Value)
	case BinaryData:
		add(d.Left, d.Right)
	case UnaryData:
		add(d.Operand)
	case ThrowData:
		add(d.Value)
	case TypeIsData:
		add(d.Operand)
	case ConditionalData:
		add(d.Test, d.IfTrue, d.IfFalse)
	case SwitchData:
		add(d.Value)
		for _, c := range d.Cases {
			add(c.TestValues...)
			add(c.Body)
		}
		add(d.Default)
	case LoopData:
		add(d.Body)
	case TryData:
		add(d.Body)
		for _, h := range d.Handlers {
			add(h.Filter, h.Body)
		}
		add(d.Finally, d.Fault)
	case GotoData:
		add(d.Value)
	case LabelData:
		add(d.Default)
	case CallData:
		add(d.Fn)
		add(d.Args...)
	case MethodCallData:
		add(d.Receiver)
		add(d.Args...)
	case FieldData:
		add(d.Object)
	case LambdaData:
		add(d.Body)
	case AwaitData:
		add(d.Operand)
	case YieldData:
		add(d.Value)
	}
	return out
}

// Walk visits e and its descendants in pre-order. Returning false from fn
// skips the children of that node.
func Walk(e *Expr, fn func(*Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, c := range Children(e) {
		Walk(c, fn)
	}
}

// Any reports whether pred holds for some node under e, not descending into
// nested lambdas.
func Any(e *Expr, pred func(*Expr) bool) bool {
	found := false
	Walk(e, func(n *Expr) bool {
		if found {
			return false
		}
		if pred(n) {
			found = true
			return false
		}
		return n == e || n.Kind != ExprLambda
	})
	return found
}

// MapChildren rebuilds e with f applied to each direct operand. The node is
// copied only when an operand changes; the ID is preserved.
func MapChildren(e *Expr, f func(*Expr) *Expr) *Expr {
	if e == nil {
		return nil
	}
	changed := false
	m := func(x *Expr) *Expr {
		if x == nil {
			return nil
		}
		y := f(x)
		if y != x {
			changed = true
		}
		return y
	}
	ms := func(xs []*Expr) []*Expr {
		out := make([]*Expr, len(xs))
		for i, x := range xs {
			out[i] = m(x)
		}
		return out
	}
	var data ExprData
	switch d := e.Data.(type) {
	case BlockData:
		d.Exprs = ms(d.Exprs)
		data = d
	case AssignData:
		if d.Target.Kind == ExprField {
			d.Target = m(d.Target)
		}
		d.Value = m(d.Value)
		data = d
	case BinaryData:
		d.Left, d.Right = m(d.Left), m(d.Right)
		data = d
	case UnaryData:
		d.Operand = m(d.Operand)
		data = d
	case ThrowData:
		d.Value = m(d.Value)
		data = d
	case TypeIsData:
		d.Operand = m(d.Operand)
		data = d
	case ConditionalData:
		d.Test, d.IfTrue, d.IfFalse = m(d.Test), m(d.IfTrue), m(d.IfFalse)
		data = d
	case SwitchData:
		d.Value = m(d.Value)
		cases := make([]SwitchCase, len(d.Cases))
		for i, c := range d.Cases {
			cases[i] = SwitchCase{TestValues: ms(c.TestValues), Body: m(c.Body)}
		}
		d.Cases = cases
		d.Default = m(d.Default)
		data = d
	case LoopData:
		d.Body = m(d.Body)
		data = d
	case TryData:
		d.Body = m(d.Body)
		hs := make([]CatchBlock, len(d.Handlers))
		for i, h := range d.Handlers {
			h.Filter, h.Body = m(h.Filter), m(h.Body)
			hs[i] = h
		}
		d.Handlers = hs
		d.Finally, d.Fault = m(d.Finally), m(d.Fault)
		data = d
	case GotoData:
		d.Value = m(d.Value)
		data = d
	case LabelData:
		d.Default = m(d.Default)
		data = d
	case CallData:
		d.Fn = m(d.Fn)
		d.Args = ms(d.Args)
		data = d
	case MethodCallData:
		d.Receiver = m(d.Receiver)
		d.Args = ms(d.Args)
		data = d
	case FieldData:
		d.Object = m(d.Object)
		data = d
	case LambdaData:
		d.Body = m(d.Body)
		data = d
	case AwaitData:
		d.Operand = m(d.Operand)
		data = d
	case YieldData:
		d.Value = m(d.Value)
		data = d
	default:
		return e
	}
	if !changed {
		return e
	}
	cp := *e
	cp.Data = data
	return &cp
}

// Rewrite applies f bottom-up over the whole tree, lambdas included.
func Rewrite(e *Expr, f func(*Expr) *Expr) *Expr {
	if e == nil {
		return nil
	}
	e = MapChildren(e, func(c *Expr) *Expr { return Rewrite(c, f) })
	return f(e)
}

// IsAsync reports whether e contains Await or Yield outside nested lambdas.
func IsAsync(e *Expr) bool {
	return Any(e, func(n *Expr) bool {
		return n.Kind == ExprAwait || n.Kind == ExprYield
	})
}
