package completion

import (
	"reflect"

	"asyncexpr/internal/asyncrt"
	"asyncexpr/internal/expr"
)

// TaskBackend completes an *asyncrt.Task[T]. The cell is the handle.
type TaskBackend[T any] struct{}

func (TaskBackend[T]) HandleType() reflect.Type { return reflect.TypeFor[*asyncrt.Task[T]]() }
func (TaskBackend[T]) ResultType() reflect.Type { return reflect.TypeFor[T]() }
func (TaskBackend[T]) CellType() reflect.Type   { return reflect.TypeFor[*asyncrt.Task[T]]() }

func (TaskBackend[T]) Create() *expr.Expr {
	return expr.CallFunc(asyncrt.NewTask[T])
}

func (b TaskBackend[T]) SetResult(cell, value *expr.Expr) *expr.Expr {
	return expr.MethodCall(cell, "Complete", coerce(value, b.ResultType()))
}

func (TaskBackend[T]) SetException(cell, err *expr.Expr) *expr.Expr {
	return expr.MethodCall(cell, "Fail", err)
}

func (TaskBackend[T]) GetAwaitable(cell *expr.Expr) *expr.Expr { return cell }

func (b TaskBackend[T]) GetFromResult(value *expr.Expr) *expr.Expr {
	return expr.CallFunc(asyncrt.FromResult[T], coerce(value, b.ResultType()))
}

func (TaskBackend[T]) GetFromException(err *expr.Expr) *expr.Expr {
	return expr.CallFunc(asyncrt.FromError[T], err)
}

// FutureBackend completes an *asyncrt.Future.
type FutureBackend struct{}

func (FutureBackend) HandleType() reflect.Type { return reflect.TypeFor[*asyncrt.Future]() }
func (FutureBackend) ResultType() reflect.Type { return expr.Void }
func (FutureBackend) CellType() reflect.Type   { return reflect.TypeFor[*asyncrt.Future]() }

func (FutureBackend) Create() *expr.Expr {
	return expr.CallFunc(asyncrt.NewFuture)
}

func (FutureBackend) SetResult(cell, value *expr.Expr) *expr.Expr {
	return settle(value, expr.MethodCall(cell, "Complete"))
}

func (FutureBackend) SetException(cell, err *expr.Expr) *expr.Expr {
	return expr.MethodCall(cell, "Fail", err)
}

func (FutureBackend) GetAwaitable(cell *expr.Expr) *expr.Expr { return cell }

func (FutureBackend) GetFromResult(value *expr.Expr) *expr.Expr {
	return settle(value, expr.CallFunc(asyncrt.Completed))
}

func (FutureBackend) GetFromException(err *expr.Expr) *expr.Expr {
	return expr.CallFunc(asyncrt.FailedFuture, err)
}
