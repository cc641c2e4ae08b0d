package expr

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

type doneAwaiter struct{}

func (doneAwaiter) IsCompleted() bool       { return true }
func (doneAwaiter) OnCompleted(func())      {}
func (doneAwaiter) GetResult() (int, error) { return 7, nil }

type readyInt struct{}

func (readyInt) GetAwaiter() doneAwaiter { return doneAwaiter{} }

func TestConstructorTypes(t *testing.T) {
	x := NewVar("x", IntType)
	tests := []struct {
		name string
		e    *Expr
		want reflect.Type
	}{
		{"const", Const(3), IntType},
		{"compare", Less(Ref(x), Const(1)), BoolType},
		{"add", Add(Ref(x), Const(1)), IntType},
		{"empty block", Block(nil), Void},
		{"block", Block(nil, Empty(), Const("s")), reflect.TypeFor[string]()},
		{"assign", Assign(Ref(x), Const(2)), IntType},
		{"call", CallFunc(strings.ToUpper, Const("a")), reflect.TypeFor[string]()},
		{"fallible call", CallFunc(func() (int, error) { return 0, nil }), IntType},
		{"error call", CallFunc(func() error { return nil }), Void},
		{"await", Await(Const(readyInt{})), IntType},
		{"await bad", Await(Const(1)), Void},
		{"loop", Loop(Empty(), NewLabel("brk", BoolType), nil), BoolType},
		{"yield", Yield(Const(1)), Void},
	}
	for _, tt := range tests {
		if tt.e.Type != tt.want {
			t.Errorf("%s: type %v, want %v", tt.name, tt.e.Type, tt.want)
		}
	}
}

func TestLambdaShape(t *testing.T) {
	p := NewVar("p", IntType)
	l := Lambda("f", true, []*Variable{p}, Ref(p))
	want := reflect.TypeFor[func(int) (int, error)]()
	if l.Type != want {
		t.Fatalf("lambda type %v, want %v", l.Type, want)
	}
	if LambdaResult(l) != IntType {
		t.Fatalf("LambdaResult = %v", LambdaResult(l))
	}
}

func TestThrowRequiresError(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("throw of int must panic")
		}
	}()
	Throw(Const(1))
}

func TestChildrenOrder(t *testing.T) {
	a, b, c := Const(1), Const(2), Const(3)
	sw := Switch(Void, a, c, Case(Empty(), b))
	got := Children(sw)
	if len(got) != 4 || got[0] != a || got[1] != b || got[3] != c {
		t.Fatalf("unexpected switch children %v", got)
	}
}

func TestRewritePreservesUnchanged(t *testing.T) {
	x := NewVar("x", IntType)
	e := Block(nil, Assign(Ref(x), Const(1)), Ref(x))
	if Rewrite(e, func(n *Expr) *Expr { return n }) != e {
		t.Fatalf("identity rewrite must return the same node")
	}
	out := Rewrite(e, func(n *Expr) *Expr {
		if n.Kind == ExprConstant {
			return Const(5)
		}
		return n
	})
	if out == e {
		t.Fatalf("rewrite must copy changed nodes")
	}
	asg := out.Data.(BlockData).Exprs[0].Data.(AssignData)
	if asg.Value.Data.(ConstantData).Value != 5 {
		t.Fatalf("constant not replaced")
	}
	if out.ID != e.ID {
		t.Fatalf("rewrite must keep node IDs")
	}
}

func TestIsAsyncStopsAtLambdas(t *testing.T) {
	inner := AsyncLambda("g", reflect.TypeFor[readyInt](), nil, Await(Const(readyInt{})))
	if IsAsync(Block(nil, inner)) {
		t.Fatalf("await inside nested lambda must not count")
	}
	if !IsAsync(Block(nil, Yield(Const(1)))) {
		t.Fatalf("yield must count")
	}
}

func TestDump(t *testing.T) {
	x := NewVar("x", IntType)
	e := Try(Block([]*Variable{x}, Assign(Ref(x), Const(1))),
		Catch(ErrorType, nil, Throw(Const(errors.New("boom")))))
	out := String(e)
	for _, want := range []string{"try : int", "catch error", "throw", "x$"} {
		if !strings.Contains(out, want) {
			t.Fatalf("dump missing %q:\n%s", want, out)
		}
	}
}
