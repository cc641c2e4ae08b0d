package completion

import (
	"reflect"
	"testing"

	"asyncexpr/internal/asyncrt"
	"asyncexpr/internal/expr"
)

type point struct{ X, Y int }

func TestRegistryDefaults(t *testing.T) {
	for _, handle := range []reflect.Type{
		reflect.TypeFor[*asyncrt.Future](),
		reflect.TypeFor[asyncrt.ValueFuture](),
		reflect.TypeFor[*asyncrt.Task[int]](),
		reflect.TypeFor[asyncrt.ValueTask[string]](),
	} {
		b, ok := For(handle)
		if !ok || b.HandleType() != handle {
			t.Fatalf("no backend for %v", handle)
		}
	}
	if _, ok := For(reflect.TypeFor[*asyncrt.Task[point]]()); ok {
		t.Fatalf("unregistered result type must not resolve")
	}
	RegisterResult[point]()
	b, ok := For(reflect.TypeFor[*asyncrt.Task[point]]())
	if !ok || b.ResultType() != reflect.TypeFor[point]() {
		t.Fatalf("RegisterResult must install the task backend")
	}
}

func TestBackendExpressionTypes(t *testing.T) {
	backends := []Backend{TaskBackend[int]{}, ValueTaskBackend[int]{}, FutureBackend{}, ValueFutureBackend{}}
	errVar := expr.NewVar("err", expr.ErrorType)
	for _, b := range backends {
		cell := expr.NewVar("cell", b.CellType())
		if got := b.Create().Type; got != b.CellType() {
			t.Errorf("%T Create type %v, want %v", b, got, b.CellType())
		}
		if got := b.GetAwaitable(expr.Ref(cell)).Type; got != b.HandleType() {
			t.Errorf("%T GetAwaitable type %v, want %v", b, got, b.HandleType())
		}
		value := expr.Empty()
		if !expr.IsVoid(b.ResultType()) {
			value = expr.Const(1)
		}
		if got := b.GetFromResult(value).Type; got != b.HandleType() {
			t.Errorf("%T GetFromResult type %v", b, got)
		}
		if got := b.GetFromException(expr.Ref(errVar)).Type; got != b.HandleType() {
			t.Errorf("%T GetFromException type %v", b, got)
		}
		_ = b.SetResult(expr.Ref(cell), value)
		_ = b.SetException(expr.Ref(cell), expr.Ref(errVar))
	}
}

func TestSetResultCoercesToResultType(t *testing.T) {
	b := TaskBackend[any]{}
	cell := expr.NewVar("cell", b.CellType())
	call := b.SetResult(expr.Ref(cell), expr.Const(3))
	arg := call.Data.(expr.MethodCallData).Args[0]
	if arg.Kind != expr.ExprUnary || arg.Type != reflect.TypeFor[any]() {
		t.Fatalf("value must be converted to any, got %s %v", arg.Kind, arg.Type)
	}
}
