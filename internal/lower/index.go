package lower

import (
	"asyncexpr/internal/expr"
)

type regionPart uint8

const (
	partBody regionPart = iota
	partHandler
	partFinally
	partFault
)

func (p regionPart) String() string {
	switch p {
	case partBody:
		return "try"
	case partHandler:
		return "catch"
	case partFinally:
		return "finally"
	case partFault:
		return "fault"
	default:
		return "?"
	}
}

// regionKey names one part of one try expression.
type regionKey struct {
	try     expr.NodeID
	part    regionPart
	handler int
}

// jumpIndex is collected before lowering: the try path of every label
// definition and how many jumps target each label.
type jumpIndex struct {
	paths   map[*expr.Label][]regionKey
	gotos   map[*expr.Label]int
	defined map[*expr.Label]bool
	// undefined lists gotos whose label is never placed.
	undefined []*expr.Expr
}

func buildIndex(body *expr.Expr) *jumpIndex {
	ix := &jumpIndex{
		paths:   make(map[*expr.Label][]regionKey),
		gotos:   make(map[*expr.Label]int),
		defined: make(map[*expr.Label]bool),
	}
	var jumps []*expr.Expr
	var walk func(e *expr.Expr, path []regionKey)
	define := func(l *expr.Label, path []regionKey) {
		if l == nil {
			return
		}
		ix.defined[l] = true
		ix.paths[l] = append([]regionKey(nil), path...)
	}
	walk = func(e *expr.Expr, path []regionKey) {
		if e == nil {
			return
		}
		switch d := e.Data.(type) {
		case expr.LambdaData:
			return
		case expr.LabelData:
			define(d.Target, path)
		case expr.LoopData:
			define(d.Break, path)
			define(d.Continue, path)
		case expr.GotoData:
			ix.gotos[d.Target]++
			jumps = append(jumps, e)
		case expr.TryData:
			in := func(part regionPart, i int) []regionKey {
				return append(path[:len(path):len(path)], regionKey{try: e.ID, part: part, handler: i})
			}
			walk(d.Body, in(partBody, 0))
			for i, h := range d.Handlers {
				walk(h.Filter, in(partHandler, i))
				walk(h.Body, in(partHandler, i))
			}
			walk(d.Finally, in(partFinally, 0))
			walk(d.Fault, in(partFault, 0))
			return
		}
		for _, c := range expr.Children(e) {
			walk(c, path)
		}
	}
	walk(body, nil)
	for _, j := range jumps {
		if !ix.defined[j.Data.(expr.GotoData).Target] {
			ix.undefined = append(ix.undefined, j)
		}
	}
	return ix
}

// escapes reports whether a jump crosses the boundary of e: a goto inside
// e targets a label outside it, or a label inside e is targeted from
// outside.
func (ix *jumpIndex) escapes(e *expr.Expr) bool {
	if len(ix.gotos) == 0 && len(ix.defined) == 0 {
		return false
	}
	inner := make(map[*expr.Label]int)
	defined := make(map[*expr.Label]bool)
	expr.Walk(e, func(n *expr.Expr) bool {
		switch d := n.Data.(type) {
		case expr.LambdaData:
			return n == e
		case expr.LabelData:
			defined[d.Target] = true
		case expr.LoopData:
			if d.Break != nil {
				defined[d.Break] = true
			}
			if d.Continue != nil {
				defined[d.Continue] = true
			}
		case expr.GotoData:
			inner[d.Target]++
		}
		return true
	})
	for l := range inner {
		if !defined[l] {
			return true
		}
	}
	for l := range defined {
		if inner[l] < ix.gotos[l] {
			return true
		}
	}
	return false
}
