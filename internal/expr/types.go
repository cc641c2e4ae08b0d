package expr

import (
	"fmt"
	"reflect"
	"sync/atomic"
)

type voidType struct{}

// Void is the type of expressions that produce no value.
var Void = reflect.TypeFor[voidType]()

// ErrorType is the interface type every thrown value satisfies.
var ErrorType = reflect.TypeFor[error]()

// AnyType is the empty interface.
var AnyType = reflect.TypeFor[any]()

// BoolType and IntType are used by generated control flow.
var (
	BoolType = reflect.TypeFor[bool]()
	IntType  = reflect.TypeFor[int]()
)

// IsVoid reports whether t denotes no value.
func IsVoid(t reflect.Type) bool { return t == nil || t == Void }

var nextVarID atomic.Uint32

// Variable is a named storage slot. Identity is the pointer.
type Variable struct {
	Name string
	Type reflect.Type
	ID   uint32
}

// NewVar allocates a variable.
func NewVar(name string, t reflect.Type) *Variable {
	return &Variable{Name: name, Type: t, ID: nextVarID.Add(1)}
}

func (v *Variable) String() string {
	if v == nil {
		return "<nil>"
	}
	if v.Name == "" {
		return fmt.Sprintf("$%d", v.ID)
	}
	return fmt.Sprintf("%s$%d", v.Name, v.ID)
}

// Label is a jump target. A non-void label carries a value to its site.
type Label struct {
	Name string
	Type reflect.Type
	ID   uint32
}

// NewLabel allocates a label of type t (nil means Void).
func NewLabel(name string, t reflect.Type) *Label {
	if t == nil {
		t = Void
	}
	return &Label{Name: name, Type: t, ID: nextVarID.Add(1)}
}

func (l *Label) String() string {
	if l == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s#%d", l.Name, l.ID)
}

// FuncResult splits the results of a func type into the value result and a
// trailing error flag. A trailing result of exactly type error is never a
// value: a non-nil error returned there is raised as a throw.
func FuncResult(ft reflect.Type) (reflect.Type, bool, error) {
	n := ft.NumOut()
	fallible := n > 0 && ft.Out(n-1) == ErrorType
	if fallible {
		n--
	}
	switch n {
	case 0:
		return Void, fallible, nil
	case 1:
		return ft.Out(0), fallible, nil
	default:
		return nil, false, fmt.Errorf("func %s returns %d values", ft, ft.NumOut())
	}
}
