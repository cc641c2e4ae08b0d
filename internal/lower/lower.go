// Package lower turns async and iterator lambdas into resumable state
// machines. A body is split at every suspension point into states that a
// dispatch loop re-enters by id; try regions are re-expressed as per-state
// exception routing so that suspending inside them keeps structured
// semantics.
package lower

import (
	"context"
	"fmt"
	"reflect"

	"asyncexpr/internal/caps"
	"asyncexpr/internal/completion"
	"asyncexpr/internal/diag"
	"asyncexpr/internal/expr"
	"asyncexpr/internal/observ"
	"asyncexpr/internal/trace"
)

// Options tunes a lowering run.
type Options struct {
	// Debug names every state, prefixes each case with its name and skips
	// the optimizer so the output can be inspected.
	Debug bool
	// NoOptimize skips the optimizer without naming states.
	NoOptimize bool
	// OnState is called with the id and name of every emitted state.
	OnState func(id int, name string)
	// Verify runs the machine checker on every lowered lambda.
	Verify bool
	// MaxDiagnostics caps the diagnostics collected; 0 means 64.
	MaxDiagnostics int
}

func (o Options) optimize() bool { return !o.Debug && !o.NoOptimize }

// Machine describes one lowered lambda.
type Machine struct {
	Name string
	Kind expr.LambdaKind
	// States is empty for fast-path lambdas.
	States   []*MachineState
	FastPath bool

	stateVar  *expr.Variable
	resumeVar *expr.Variable
}

// Result is the outcome of Lower.
type Result struct {
	// Lambda is the rewritten root. An async or iterator root becomes a
	// plain lambda with the original func type.
	Lambda *expr.Expr
	// Machines lists the root machine last, nested ones first.
	Machines []*Machine
	Timings  observ.Report
}

// Root returns the machine of the root lambda, or of the last lowered
// lambda when the root is not one.
func (r *Result) Root() *Machine {
	if r == nil || len(r.Machines) == 0 {
		return nil
	}
	return r.Machines[len(r.Machines)-1]
}

// Lower rewrites every async and iterator lambda in the tree rooted at
// lambda into a plain lambda driving a state machine, inner ones first. The
// root is usually such a lambda itself; a tree without any is a usage error.
// Usage errors are returned as a *diag.Error.
func Lower(ctx context.Context, lambda *expr.Expr, opts Options) (res *Result, err error) {
	limit := opts.MaxDiagnostics
	if limit <= 0 {
		limit = 64
	}
	bag := diag.NewBag(limit)
	l := &lowering{
		opts:   opts,
		bag:    bag,
		rep:    diag.NewDedupReporter(diag.BagReporter{Bag: bag}),
		timer:  observ.NewTimer(),
		tracer: trace.FromContext(ctx),
	}
	name := lambdaName(lambda)
	span := trace.Begin(l.tracer, trace.ScopeLambda, "lower", trace.SpanID(ctx))
	l.parent = span.ID()
	defer func() {
		if r := recover(); r != nil {
			d, ok := r.(defect)
			if !ok {
				panic(r)
			}
			diag.ReportError(l.rep, diag.IntDefect, diag.Location{Lambda: name}, d.msg).Emit()
			res, err = nil, diag.AsError(bag)
		}
		detail := "ok"
		if err != nil {
			detail = "error"
		}
		states := 0
		if res != nil && res.Root() != nil {
			states = len(res.Root().States)
		}
		span.With(trace.A("states", states)).End(detail)
	}()

	if lambda == nil {
		diag.ReportError(l.rep, diag.LowNotLambda, diag.Location{Lambda: name}, "nothing to lower").Emit()
		return nil, diag.AsError(bag)
	}
	if lambda.Kind != expr.ExprLambda && expr.IsAsync(lambda) {
		diag.ReportError(l.rep, diag.LowSuspendInPlain, diag.Location{Lambda: name, Node: uint32(lambda.ID)},
			"suspension point outside any async or iterator lambda").Emit()
	}
	out := l.lowerNested(lambda)
	if len(l.machines) == 0 && !bag.HasErrors() {
		diag.ReportError(l.rep, diag.LowNotLambda, diag.Location{Lambda: name, Node: uint32(lambda.ID)},
			fmt.Sprintf("%s holds no async or iterator lambda", name)).Emit()
	}
	if err := diag.AsError(bag); err != nil {
		bag.Sort()
		return nil, err
	}
	return &Result{Lambda: out, Machines: l.machines, Timings: l.timer.Report()}, nil
}

// lowering carries what is shared by the lambdas of one Lower call.
type lowering struct {
	opts     Options
	bag      *diag.Bag
	rep      diag.Reporter
	timer    *observ.Timer
	tracer   trace.Tracer
	parent   uint64
	machines []*Machine
}

// lowerNested lowers the async and iterator lambdas nested in body, inner
// ones first.
func (l *lowering) lowerNested(body *expr.Expr) *expr.Expr {
	return expr.Rewrite(body, func(n *expr.Expr) *expr.Expr {
		if n.Kind != expr.ExprLambda {
			return n
		}
		d := n.Data.(expr.LambdaData)
		if d.Kind == expr.LambdaPlain {
			if expr.IsAsync(d.Body) {
				diag.ReportError(l.rep, diag.LowSuspendInPlain,
					diag.Location{Lambda: lambdaName(n), Node: uint32(n.ID)},
					"plain lambda contains a suspension point").Emit()
			}
			return n
		}
		return l.lowerLambda(n)
	})
}

func (l *lowering) lowerLambda(e *expr.Expr) *expr.Expr {
	d := e.Data.(expr.LambdaData)
	name := lambdaName(e)
	loc := diag.Location{Lambda: name, Node: uint32(e.ID)}
	handle := expr.LambdaResult(e)

	var t target
	switch d.Kind {
	case expr.LambdaAsync:
		backend, ok := completion.For(handle)
		if !ok {
			diag.ReportError(l.rep, diag.LowNoBackend, loc, fmt.Sprintf("no completion backend for %s", handle)).Emit()
			return e
		}
		at := &asyncTarget{backend: backend}
		if !expr.IsAsync(d.Body) {
			l.machines = append(l.machines, &Machine{Name: name, Kind: d.Kind, FastPath: true})
			trace.Point(l.tracer, trace.ScopeState, "fast-path", l.parent, name)
			return expr.LambdaOf(e.Type, name, expr.LambdaPlain, false, d.Params, at.fastPath(d.Body))
		}
		t = at
	case expr.LambdaIterator:
		if !iteratorShape(handle) {
			diag.ReportError(l.rep, diag.LowBadIteratorShape, loc,
				fmt.Sprintf("iterator must return *asyncrt.Sequence, iter.Seq or iter.Seq2[E, error], not %s", handle)).Emit()
			return e
		}
		t = &iteratorTarget{shape: handle, params: d.Params}
	default:
		return e
	}

	opts := l.opts
	if l.tracer.Level() >= trace.LevelDebug {
		hook := opts.OnState
		opts.OnState = func(id int, state string) {
			trace.Point(l.tracer, trace.ScopeState, state, l.parent, name, trace.A("id", id))
			if hook != nil {
				hook(id, state)
			}
		}
	}
	b := newBuilder(name, d.Kind, opts, l.rep)
	b.target = t
	b.index = buildIndex(d.Body)
	for _, g := range b.index.undefined {
		b.report(diag.LowUndefinedLabel, g, "label %s is never placed", g.Data.(expr.GotoData).Target)
	}
	t.setup(b)

	l.timer.Measure("continuations", func() string {
		b.current = b.newState("entry", d.Body, nil)
		v := b.visit(d.Body)
		if !b.current.IsDead() && !b.current.terminal && b.current.cont == nil {
			t.finish(b, v)
			b.current.terminal = true
		}
		return fmt.Sprintf("%s: %d states", name, len(b.states))
	})
	if l.bag.HasErrors() {
		return e
	}

	var body *expr.Expr
	l.timer.Measure("assemble", func() string {
		body = t.assemble(b, b.emitDispatch())
		return name
	})
	l.timer.Measure("rescope", func() string {
		ignore := make(map[*expr.Variable]bool, len(b.plumbing)+len(d.Params))
		for v := range b.plumbing {
			ignore[v] = true
		}
		for _, p := range d.Params {
			ignore[p] = true
		}
		body = Rescope(body, ignore)
		return name
	})
	if l.opts.optimize() {
		l.timer.Measure("optimize", func() string {
			body = Optimize(body)
			return name
		})
	}

	m := &Machine{Name: name, Kind: d.Kind, States: b.states, stateVar: b.stateVar, resumeVar: b.resumeVar}
	if l.opts.Verify {
		m.Check(l.rep)
	}
	l.machines = append(l.machines, m)
	return expr.LambdaOf(e.Type, name, expr.LambdaPlain, false, d.Params, body)
}

func lambdaName(e *expr.Expr) string {
	if e == nil {
		return "<nil>"
	}
	if d, ok := e.Data.(expr.LambdaData); ok && d.Name != "" {
		return d.Name
	}
	return fmt.Sprintf("lambda%d", e.ID)
}

// iteratorShape reports the result types an iterator body can be exposed as.
func iteratorShape(t reflect.Type) bool {
	if t == sequenceType {
		return true
	}
	info, ok := caps.Iterable(t)
	return ok && (info.Via == caps.IterSeq || info.Via == caps.IterSeqErr)
}
