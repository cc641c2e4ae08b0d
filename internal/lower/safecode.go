package lower

import (
	"reflect"

	"asyncexpr/internal/expr"
)

// IsSafe reports whether e cannot raise: it is built only from constants,
// variable reads and stores, built-in operators that cannot fail, and
// structural control flow. Calls, throws, custom operators and comparers,
// field access through pointers and conversions that assert are unsafe.
// States whose body is safe need no exception dispatch.
func IsSafe(e *expr.Expr) bool {
	if e != nil && e.Kind == expr.ExprLambda {
		return true
	}
	return !expr.Any(e, func(n *expr.Expr) bool { return !safeNode(n) })
}

func safeNode(n *expr.Expr) bool {
	switch d := n.Data.(type) {
	case expr.ConstantData, expr.DefaultData, expr.VariableData,
		expr.BlockData, expr.ConditionalData, expr.LoopData,
		expr.GotoData, expr.LabelData, expr.TypeIsData:
		return true
	case expr.LambdaData:
		// creating a closure runs nothing
		return true
	case expr.AssignData:
		if d.Target.Kind != expr.ExprVariable {
			return false
		}
		if d.Op == expr.AssignDiv || d.Op == expr.AssignMod {
			return nonZeroConst(d.Value)
		}
		return true
	case expr.BinaryData:
		if d.Method != nil {
			return false
		}
		switch d.Op {
		case expr.OpDiv, expr.OpMod:
			return nonZeroConst(d.Right)
		case expr.OpShl, expr.OpShr:
			return unsignedOrConst(d.Right)
		case expr.OpEqual, expr.OpNotEqual:
			// == on interfaces panics for incomparable dynamic types
			return d.Left.Type.Kind() != reflect.Interface && d.Right.Type.Kind() != reflect.Interface
		}
		return true
	case expr.UnaryData:
		if d.Method != nil {
			return false
		}
		if d.Op == expr.OpConvert {
			return safeConversion(d.Operand.Type, n.Type)
		}
		return true
	case expr.SwitchData:
		return d.Comparer == nil && d.Value.Type.Kind() != reflect.Interface
	case expr.FieldData:
		return d.Object.Type.Kind() == reflect.Struct
	}
	return false
}

func nonZeroConst(e *expr.Expr) bool {
	if e == nil || e.Kind != expr.ExprConstant {
		return false
	}
	v := reflect.ValueOf(e.Data.(expr.ConstantData).Value)
	return v.IsValid() && v.CanInt() && v.Int() != 0 || v.IsValid() && v.CanUint() && v.Uint() != 0
}

func unsignedOrConst(e *expr.Expr) bool {
	if e.Kind == expr.ExprConstant {
		v := reflect.ValueOf(e.Data.(expr.ConstantData).Value)
		return !v.CanInt() || v.Int() >= 0
	}
	return e.Type.Kind() >= reflect.Uint && e.Type.Kind() <= reflect.Uintptr
}

// safeConversion allows numeric conversions and widening to an interface
// the value implements.
func safeConversion(from, to reflect.Type) bool {
	if from == to {
		return true
	}
	if to.Kind() == reflect.Interface {
		return from.Implements(to)
	}
	return isNumeric(from) && isNumeric(to)
}

func isNumeric(t reflect.Type) bool {
	k := t.Kind()
	return k >= reflect.Int && k <= reflect.Float64 && k != reflect.Uintptr
}
