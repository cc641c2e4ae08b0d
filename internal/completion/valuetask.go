package completion

import (
	"reflect"

	"asyncexpr/internal/asyncrt"
	"asyncexpr/internal/expr"
)

// ValueTaskBackend completes an asyncrt.ValueTask[T] through a pooled source.
type ValueTaskBackend[T any] struct{}

func (ValueTaskBackend[T]) HandleType() reflect.Type { return reflect.TypeFor[asyncrt.ValueTask[T]]() }
func (ValueTaskBackend[T]) ResultType() reflect.Type { return reflect.TypeFor[T]() }
func (ValueTaskBackend[T]) CellType() reflect.Type {
	return reflect.TypeFor[*asyncrt.ValueTaskSource[T]]()
}

func (ValueTaskBackend[T]) Create() *expr.Expr {
	return expr.CallFunc(asyncrt.RentValueTask[T])
}

func (b ValueTaskBackend[T]) SetResult(cell, value *expr.Expr) *expr.Expr {
	return expr.MethodCall(cell, "SetResult", coerce(value, b.ResultType()))
}

func (ValueTaskBackend[T]) SetException(cell, err *expr.Expr) *expr.Expr {
	return expr.MethodCall(cell, "SetException", err)
}

func (ValueTaskBackend[T]) GetAwaitable(cell *expr.Expr) *expr.Expr {
	return expr.MethodCall(cell, "Task")
}

func (b ValueTaskBackend[T]) GetFromResult(value *expr.Expr) *expr.Expr {
	return expr.CallFunc(asyncrt.ValueTaskOf[T], coerce(value, b.ResultType()))
}

func (ValueTaskBackend[T]) GetFromException(err *expr.Expr) *expr.Expr {
	return expr.CallFunc(asyncrt.ValueTaskFailed[T], err)
}

// ValueFutureBackend completes an asyncrt.ValueFuture.
type ValueFutureBackend struct{}

func (ValueFutureBackend) HandleType() reflect.Type { return reflect.TypeFor[asyncrt.ValueFuture]() }
func (ValueFutureBackend) ResultType() reflect.Type { return expr.Void }
func (ValueFutureBackend) CellType() reflect.Type {
	return reflect.TypeFor[*asyncrt.ValueTaskSource[struct{}]]()
}

func (ValueFutureBackend) Create() *expr.Expr {
	return expr.CallFunc(asyncrt.RentValueFuture)
}

func (ValueFutureBackend) SetResult(cell, value *expr.Expr) *expr.Expr {
	return settle(value, expr.CallFunc(asyncrt.CompleteValueFuture, cell))
}

func (ValueFutureBackend) SetException(cell, err *expr.Expr) *expr.Expr {
	return expr.MethodCall(cell, "SetException", err)
}

func (ValueFutureBackend) GetAwaitable(cell *expr.Expr) *expr.Expr {
	return expr.CallFunc(asyncrt.AsValueFuture, expr.MethodCall(cell, "Task"))
}

func (ValueFutureBackend) GetFromResult(value *expr.Expr) *expr.Expr {
	return settle(value, expr.CallFunc(asyncrt.CompletedValueFuture))
}

func (ValueFutureBackend) GetFromException(err *expr.Expr) *expr.Expr {
	return expr.CallFunc(asyncrt.FailedValueFuture, err)
}
