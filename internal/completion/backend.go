// Package completion describes how an async machine talks to its completion
// handle. A Backend emits the expressions that create the cell, settle it and
// hand it to the caller; the registry maps declared handle types to backends.
package completion

import (
	"reflect"
	"sync"

	"asyncexpr/internal/expr"
)

// Backend emits completion-cell operations for one handle type.
type Backend interface {
	// HandleType is the type returned to the caller of the async lambda.
	HandleType() reflect.Type
	// ResultType is the value the body produces, expr.Void for none.
	ResultType() reflect.Type
	// CellType is the type of the variable holding the pending cell.
	CellType() reflect.Type
	Create() *expr.Expr
	SetResult(cell, value *expr.Expr) *expr.Expr
	SetException(cell, err *expr.Expr) *expr.Expr
	GetAwaitable(cell *expr.Expr) *expr.Expr
	// GetFromResult and GetFromException build an already settled handle
	// for bodies that never suspend.
	GetFromResult(value *expr.Expr) *expr.Expr
	GetFromException(err *expr.Expr) *expr.Expr
}

var backends sync.Map // reflect.Type -> Backend

// Register installs b for its handle type, replacing any previous backend.
func Register(b Backend) {
	backends.Store(b.HandleType(), b)
}

// RegisterResult installs the task and value-task backends for results of T.
func RegisterResult[T any]() {
	Register(TaskBackend[T]{})
	Register(ValueTaskBackend[T]{})
}

// For returns the backend for a handle type.
func For(handle reflect.Type) (Backend, bool) {
	if handle == nil {
		return nil, false
	}
	b, ok := backends.Load(handle)
	if !ok {
		return nil, false
	}
	return b.(Backend), true
}

func init() {
	Register(FutureBackend{})
	Register(ValueFutureBackend{})
	RegisterResult[int]()
	RegisterResult[int64]()
	RegisterResult[float64]()
	RegisterResult[string]()
	RegisterResult[bool]()
	RegisterResult[any]()
	RegisterResult[error]()
}

// coerce converts value to t when the static types differ.
func coerce(value *expr.Expr, t reflect.Type) *expr.Expr {
	if value.Type == t {
		return value
	}
	return expr.Convert(value, t)
}

// settle runs a void body value before the completion call.
func settle(value, call *expr.Expr) *expr.Expr {
	if value == nil || value.Kind == expr.ExprDefault && expr.IsVoid(value.Type) {
		return call
	}
	return expr.Block(nil, value, call)
}
