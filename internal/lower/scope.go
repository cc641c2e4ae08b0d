package lower

import (
	"slices"

	"asyncexpr/internal/expr"
)

// Rescope moves every block variable to the innermost block enclosing all
// its uses and deletes variables that are never read, keeping the
// stores' right-hand sides for their effects. Variables in ignore stay
// where they are declared.
//
// A variable only moves into a block that defines it before any other use,
// and never below a closure that captures it, so moving it never exposes a
// zero value or splits a shared capture.
func Rescope(e *expr.Expr, ignore map[*expr.Variable]bool) *expr.Expr {
	f := &scopeFinder{
		ignore: ignore,
		decl:   make(map[*expr.Variable]*expr.Expr),
		uses:   make(map[*expr.Variable]*varUses),
	}
	f.walk(e)
	s := &scopeSetter{
		place:     make(map[*expr.Expr][]*expr.Variable),
		placed:    make(map[*expr.Variable]bool),
		writeOnly: make(map[*expr.Variable]bool),
	}
	for _, v := range f.order {
		u := f.uses[v]
		if !u.read {
			s.writeOnly[v] = true
			continue
		}
		home := f.home(v, u)
		s.place[home] = append(s.place[home], v)
		s.placed[v] = true
	}
	for v := range f.decl {
		if _, used := f.uses[v]; !used && !ignore[v] {
			s.writeOnly[v] = true
		}
	}
	return s.rewrite(e)
}

// varUses records the scope path of every reference to a variable.
type varUses struct {
	paths [][]*expr.Expr
	read  bool
}

// scopeFinder collects declarations and references. The path holds the
// open blocks and lambdas from the root down.
type scopeFinder struct {
	ignore map[*expr.Variable]bool
	decl   map[*expr.Variable]*expr.Expr
	uses   map[*expr.Variable]*varUses
	order  []*expr.Variable
	path   []*expr.Expr
}

func (f *scopeFinder) managed(v *expr.Variable) bool {
	_, declared := f.decl[v]
	return declared && !f.ignore[v]
}

func (f *scopeFinder) use(v *expr.Variable, read bool) {
	if !f.managed(v) {
		return
	}
	u, ok := f.uses[v]
	if !ok {
		u = &varUses{}
		f.uses[v] = u
		f.order = append(f.order, v)
	}
	u.paths = append(u.paths, slices.Clone(f.path))
	u.read = u.read || read
}

func (f *scopeFinder) walk(e *expr.Expr) {
	if e == nil {
		return
	}
	switch d := e.Data.(type) {
	case expr.BlockData:
		for _, v := range d.Vars {
			f.decl[v] = e
		}
		f.path = append(f.path, e)
		defer func() { f.path = f.path[:len(f.path)-1] }()
	case expr.LambdaData:
		f.path = append(f.path, e)
		defer func() { f.path = f.path[:len(f.path)-1] }()
	case expr.VariableData:
		f.use(d.Var, true)
	case expr.AssignData:
		if d.Target.Kind == expr.ExprVariable {
			f.use(d.Target.Data.(expr.VariableData).Var, d.Op != expr.AssignPlain)
		}
	}
	for _, c := range expr.Children(e) {
		f.walk(c)
	}
}

// home picks the block v is declared in after rescoping.
func (f *scopeFinder) home(v *expr.Variable, u *varUses) *expr.Expr {
	decl := f.decl[v]
	common := u.paths[0]
	for _, p := range u.paths[1:] {
		n := 0
		for n < len(common) && n < len(p) && common[n] == p[n] {
			n++
		}
		common = common[:n]
	}
	at := -1
	for i := len(common) - 1; i >= 0; i-- {
		if common[i].Kind == expr.ExprBlock {
			at = i
			break
		}
	}
	if at < 0 || common[at] == decl {
		return decl
	}
	// the candidate must sit inside the declaring block
	if !slices.Contains(common[:at], decl) {
		return decl
	}
	for _, p := range u.paths {
		if slices.ContainsFunc(p[at+1:], func(n *expr.Expr) bool { return n.Kind == expr.ExprLambda }) {
			return decl
		}
	}
	if !definesFirst(common[at], v) {
		return decl
	}
	return common[at]
}

// definesFirst reports whether the first statement of block touching v is
// a plain store to v that does not read it, with no label in between.
func definesFirst(block *expr.Expr, v *expr.Variable) bool {
	for _, x := range block.Data.(expr.BlockData).Exprs {
		if placesLabel(x) {
			return false
		}
		if countRefs([]*expr.Expr{x}, v) == 0 {
			continue
		}
		target, rhs, ok := plainStore(x)
		return ok && target == v && countRefs([]*expr.Expr{rhs}, v) == 0
	}
	return false
}

type scopeSetter struct {
	place     map[*expr.Expr][]*expr.Variable
	placed    map[*expr.Variable]bool
	writeOnly map[*expr.Variable]bool
}

func (s *scopeSetter) rewrite(e *expr.Expr) *expr.Expr {
	if e == nil {
		return nil
	}
	orig := e
	e = expr.MapChildren(e, s.rewrite)
	switch d := e.Data.(type) {
	case expr.BlockData:
		vars := make([]*expr.Variable, 0, len(d.Vars))
		for _, v := range d.Vars {
			if !s.placed[v] && !s.writeOnly[v] {
				vars = append(vars, v)
			}
		}
		vars = append(vars, s.place[orig]...)
		if slices.Equal(vars, d.Vars) {
			return e
		}
		d.Vars = vars
		return withData(e, d)
	case expr.AssignData:
		if d.Target.Kind != expr.ExprVariable || d.Op != expr.AssignPlain {
			return e
		}
		if v := d.Target.Data.(expr.VariableData).Var; s.writeOnly[v] {
			return coerce(d.Value, v.Type)
		}
	}
	return e
}
