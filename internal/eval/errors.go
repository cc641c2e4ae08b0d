package eval

import (
	"fmt"
	"reflect"

	"asyncexpr/internal/diag"
	"asyncexpr/internal/expr"
)

// Error is a failure of the evaluator itself, as opposed to an error thrown
// by the evaluated tree.
type Error struct {
	Code diag.Code
	Node expr.NodeID
	Kind expr.ExprKind
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at %s node %d: %s", e.Code.ID(), e.Kind, e.Node, e.Msg)
}

func unsupported(e *expr.Expr, format string, args ...any) *Error {
	return &Error{Code: diag.EvalUnsupported, Node: e.ID, Kind: e.Kind, Msg: fmt.Sprintf(format, args...)}
}

// RuntimeError is raised for faults Go would panic on, such as an integer
// division by zero or a nil dereference. It is catchable like any thrown
// error.
type RuntimeError struct {
	Msg string
}

func (e *RuntimeError) Error() string { return "runtime error: " + e.Msg }

// jump carries a goto, break or continue to the construct owning its label.
type jump struct {
	target *expr.Label
	value  reflect.Value
}

func (j *jump) Error() string { return "unresolved jump to " + j.target.String() }

// uncaught carries an error out of a non-fallible compiled lambda as a panic.
type uncaught struct {
	err error
}

func isJump(err error) bool {
	_, ok := err.(*jump)
	return ok
}

// catchable reports errors a try handler may observe.
func catchable(err error) bool {
	if err == nil || isJump(err) {
		return false
	}
	_, internal := err.(*Error)
	return !internal
}
