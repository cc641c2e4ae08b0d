// Package samples is a catalog of async and iterator lambdas with their
// expected outcomes. The CLI lowers and runs them, and the lowering tests use
// them as end-to-end scenarios.
package samples

import (
	"errors"
	"iter"
	"reflect"
	"sort"

	"asyncexpr/internal/asyncrt"
	"asyncexpr/internal/expr"
)

// ErrStop is the error thrown by the failing samples.
var ErrStop = errors.New("stop")

// InvalidOperation and ArgumentError let samples tell handlers apart by type.
type InvalidOperation struct {
	Msg string
}

func (e *InvalidOperation) Error() string { return "invalid operation: " + e.Msg }

type ArgumentError struct {
	Msg string
}

func (e *ArgumentError) Error() string { return "bad argument: " + e.Msg }

// Env is what a sample's tree and arguments are bound to. Tasks created
// through it complete on Loop one virtual millisecond later, so awaiting
// them really suspends.
type Env struct {
	Loop *asyncrt.Loop
}

// NewEnv returns an env on a fresh deterministic loop.
func NewEnv() *Env {
	return &Env{Loop: asyncrt.NewLoop(asyncrt.Config{Deterministic: true})}
}

func (e *Env) Int(v int) *asyncrt.Task[int]           { return asyncrt.After(e.Loop, 1, v) }
func (e *Env) Bool(v bool) *asyncrt.Task[bool]        { return asyncrt.After(e.Loop, 1, v) }
func (e *Env) Str(v string) *asyncrt.Task[string]     { return asyncrt.After(e.Loop, 1, v) }
func (e *Env) Fail(err error) *asyncrt.Task[int]      { return asyncrt.FailAfter[int](e.Loop, 1, err) }
func (e *Env) FailBool(err error) *asyncrt.Task[bool] { return asyncrt.FailAfter[bool](e.Loop, 1, err) }
func (e *Env) Delay(ms uint64) *asyncrt.Future        { return e.Loop.Delay(ms) }

// Sample is one scenario.
type Sample struct {
	Name  string
	Title string
	Kind  expr.LambdaKind
	// Handle is the lambda's declared result type.
	Handle reflect.Type
	Build  func(env *Env) *expr.Expr
	// Args returns the arguments the lambda is called with; nil means none.
	Args func(env *Env) []any
	// Want is the settled result. Iterator samples list their elements.
	Want any
	// WantErr is matched with errors.Is; WantType with errors.As semantics
	// on the dynamic type.
	WantErr  error
	WantType reflect.Type
}

var (
	taskInt    = reflect.TypeFor[*asyncrt.Task[int]]()
	taskBool   = reflect.TypeFor[*asyncrt.Task[bool]]()
	taskString = reflect.TypeFor[*asyncrt.Task[string]]()
	sequence   = reflect.TypeFor[*asyncrt.Sequence]()
	seqInt     = reflect.TypeFor[iter.Seq[int]]()
	seqIntErr  = reflect.TypeFor[iter.Seq2[int, error]]()
)

var catalog = map[string]*Sample{}

func register(s *Sample) {
	if _, dup := catalog[s.Name]; dup {
		panic("samples: duplicate " + s.Name)
	}
	catalog[s.Name] = s
}

// All returns every sample sorted by name.
func All() []*Sample {
	out := make([]*Sample, 0, len(catalog))
	for _, s := range catalog {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup finds a sample by name.
func Lookup(name string) (*Sample, bool) {
	s, ok := catalog[name]
	return s, ok
}

// Call builds the sample's arguments against env.
func (s *Sample) Call(env *Env) []any {
	if s.Args == nil {
		return nil
	}
	return s.Args(env)
}

func async(name, title string, handle reflect.Type, want any, build func(env *Env) *expr.Expr) *Sample {
	s := &Sample{Name: name, Title: title, Kind: expr.LambdaAsync, Handle: handle, Want: want}
	if build != nil {
		s.Build = func(env *Env) *expr.Expr {
			return expr.AsyncLambda(name, handle, nil, build(env))
		}
	}
	return s
}

func stmt(exprs ...*expr.Expr) *expr.Expr {
	return expr.TypedBlock(expr.Void, nil, exprs...)
}

func awaitInt(env *Env, v int) *expr.Expr {
	return expr.Await(expr.CallFunc(env.Int, expr.Const(v)))
}
