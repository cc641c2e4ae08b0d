package eval

import (
	"fmt"
	"reflect"

	"asyncexpr/internal/expr"
)

// binaryOp applies a built-in operator. The result has the left operand's
// type for arithmetic and bool for comparisons.
func binaryOp(op expr.BinaryOp, l, r reflect.Value) (reflect.Value, error) {
	if op == expr.OpEqual || op == expr.OpNotEqual {
		eq, err := equal(l, r)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(eq == (op == expr.OpEqual)), nil
	}
	l, r, err := operands(op, l, r)
	if err != nil {
		return reflect.Value{}, err
	}
	switch k := l.Kind(); {
	case k >= reflect.Int && k <= reflect.Int64:
		return intOp(op, l, r)
	case k >= reflect.Uint && k <= reflect.Uintptr:
		return uintOp(op, l, r)
	case k == reflect.Float32 || k == reflect.Float64:
		return floatOp(op, l, r)
	case k == reflect.String:
		return stringOp(op, l, r)
	case k == reflect.Bool:
		return boolOp(op, l, r)
	}
	return reflect.Value{}, fmt.Errorf("operator %s not defined on %s", op, l.Type())
}

// operands unwraps interfaces and converts the right operand to the left
// operand's type. Shift counts keep their own type.
func operands(op expr.BinaryOp, l, r reflect.Value) (reflect.Value, reflect.Value, error) {
	var err error
	if l, err = unwrap(l); err != nil {
		return l, r, err
	}
	if r, err = unwrap(r); err != nil {
		return l, r, err
	}
	if op == expr.OpShl || op == expr.OpShr {
		return l, r, nil
	}
	if r.Type() != l.Type() && isNumber(r.Type()) && isNumber(l.Type()) {
		r = r.Convert(l.Type())
	}
	if r.Kind() != l.Kind() {
		return l, r, fmt.Errorf("mismatched operands %s %s %s", l.Type(), op, r.Type())
	}
	return l, r, nil
}

func unwrap(v reflect.Value) (reflect.Value, error) {
	if !v.IsValid() {
		return v, &RuntimeError{Msg: "operand has no value"}
	}
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return v, &RuntimeError{Msg: "invalid memory address or nil pointer dereference"}
		}
		return v.Elem(), nil
	}
	return v, nil
}

func shiftCount(r reflect.Value) (uint64, error) {
	switch k := r.Kind(); {
	case k >= reflect.Int && k <= reflect.Int64:
		if r.Int() < 0 {
			return 0, &RuntimeError{Msg: "negative shift amount"}
		}
		return uint64(r.Int()), nil
	case k >= reflect.Uint && k <= reflect.Uintptr:
		return r.Uint(), nil
	}
	return 0, fmt.Errorf("shift count of type %s", r.Type())
}

func intOp(op expr.BinaryOp, l, r reflect.Value) (reflect.Value, error) {
	a := l.Int()
	var res int64
	switch op {
	case expr.OpShl, expr.OpShr:
		n, err := shiftCount(r)
		if err != nil {
			return reflect.Value{}, err
		}
		if op == expr.OpShl {
			res = a << n
		} else {
			res = a >> n
		}
	default:
		b := r.Int()
		switch op {
		case expr.OpAdd:
			res = a + b
		case expr.OpSub:
			res = a - b
		case expr.OpMul:
			res = a * b
		case expr.OpDiv, expr.OpMod:
			if b == 0 {
				return reflect.Value{}, &RuntimeError{Msg: "integer divide by zero"}
			}
			if op == expr.OpDiv {
				res = a / b
			} else {
				res = a % b
			}
		case expr.OpAnd:
			res = a & b
		case expr.OpOr:
			res = a | b
		case expr.OpXor:
			res = a ^ b
		case expr.OpLess:
			return reflect.ValueOf(a < b), nil
		case expr.OpLessEqual:
			return reflect.ValueOf(a <= b), nil
		case expr.OpGreater:
			return reflect.ValueOf(a > b), nil
		case expr.OpGreaterEqual:
			return reflect.ValueOf(a >= b), nil
		default:
			return reflect.Value{}, fmt.Errorf("operator %s not defined on %s", op, l.Type())
		}
	}
	out := reflect.New(l.Type()).Elem()
	out.SetInt(res)
	return out, nil
}

func uintOp(op expr.BinaryOp, l, r reflect.Value) (reflect.Value, error) {
	a := l.Uint()
	var res uint64
	switch op {
	case expr.OpShl, expr.OpShr:
		n, err := shiftCount(r)
		if err != nil {
			return reflect.Value{}, err
		}
		if op == expr.OpShl {
			res = a << n
		} else {
			res = a >> n
		}
	default:
		b := r.Uint()
		switch op {
		case expr.OpAdd:
			res = a + b
		case expr.OpSub:
			res = a - b
		case expr.OpMul:
			res = a * b
		case expr.OpDiv, expr.OpMod:
			if b == 0 {
				return reflect.Value{}, &RuntimeError{Msg: "integer divide by zero"}
			}
			if op == expr.OpDiv {
				res = a / b
			} else {
				res = a % b
			}
		case expr.OpAnd:
			res = a & b
		case expr.OpOr:
			res = a | b
		case expr.OpXor:
			res = a ^ b
		case expr.OpLess:
			return reflect.ValueOf(a < b), nil
		case expr.OpLessEqual:
			return reflect.ValueOf(a <= b), nil
		case expr.OpGreater:
			return reflect.ValueOf(a > b), nil
		case expr.OpGreaterEqual:
			return reflect.ValueOf(a >= b), nil
		default:
			return reflect.Value{}, fmt.Errorf("operator %s not defined on %s", op, l.Type())
		}
	}
	out := reflect.New(l.Type()).Elem()
	out.SetUint(res)
	return out, nil
}

func floatOp(op expr.BinaryOp, l, r reflect.Value) (reflect.Value, error) {
	a, b := l.Float(), r.Float()
	var res float64
	switch op {
	case expr.OpAdd:
		res = a + b
	case expr.OpSub:
		res = a - b
	case expr.OpMul:
		res = a * b
	case expr.OpDiv:
		res = a / b
	case expr.OpLess:
		return reflect.ValueOf(a < b), nil
	case expr.OpLessEqual:
		return reflect.ValueOf(a <= b), nil
	case expr.OpGreater:
		return reflect.ValueOf(a > b), nil
	case expr.OpGreaterEqual:
		return reflect.ValueOf(a >= b), nil
	default:
		return reflect.Value{}, fmt.Errorf("operator %s not defined on %s", op, l.Type())
	}
	out := reflect.New(l.Type()).Elem()
	out.SetFloat(res)
	return out, nil
}

func stringOp(op expr.BinaryOp, l, r reflect.Value) (reflect.Value, error) {
	a, b := l.String(), r.String()
	switch op {
	case expr.OpAdd:
		out := reflect.New(l.Type()).Elem()
		out.SetString(a + b)
		return out, nil
	case expr.OpLess:
		return reflect.ValueOf(a < b), nil
	case expr.OpLessEqual:
		return reflect.ValueOf(a <= b), nil
	case expr.OpGreater:
		return reflect.ValueOf(a > b), nil
	case expr.OpGreaterEqual:
		return reflect.ValueOf(a >= b), nil
	}
	return reflect.Value{}, fmt.Errorf("operator %s not defined on %s", op, l.Type())
}

// boolOp covers the non-short-circuit logical operators.
func boolOp(op expr.BinaryOp, l, r reflect.Value) (reflect.Value, error) {
	a, b := l.Bool(), r.Bool()
	switch op {
	case expr.OpAnd, expr.OpAndAlso:
		return reflect.ValueOf(a && b), nil
	case expr.OpOr, expr.OpOrElse:
		return reflect.ValueOf(a || b), nil
	case expr.OpXor:
		return reflect.ValueOf(a != b), nil
	}
	return reflect.Value{}, fmt.Errorf("operator %s not defined on bool", op)
}

// equal compares with Go semantics; comparing uncomparable dynamic values
// is a RuntimeError.
func equal(l, r reflect.Value) (eq bool, err error) {
	if !l.IsValid() || !r.IsValid() {
		return l.IsValid() == r.IsValid(), nil
	}
	if isNumber(l.Type()) && isNumber(r.Type()) && l.Type() != r.Type() {
		r = r.Convert(l.Type())
	}
	defer func() {
		if p := recover(); p != nil {
			err = &RuntimeError{Msg: fmt.Sprint(p)}
		}
	}()
	return l.Interface() == r.Interface(), nil
}

func unaryOp(op expr.UnaryOp, v reflect.Value, t reflect.Type) (reflect.Value, error) {
	if op == expr.OpConvert {
		return convertTo(v, t)
	}
	v, err := unwrap(v)
	if err != nil {
		return reflect.Value{}, err
	}
	switch op {
	case expr.OpNot:
		if v.Kind() == reflect.Bool {
			return reflect.ValueOf(!v.Bool()), nil
		}
	case expr.OpPlus:
		if isNumber(v.Type()) {
			return v, nil
		}
	case expr.OpNegate:
		out := reflect.New(v.Type()).Elem()
		switch k := v.Kind(); {
		case k >= reflect.Int && k <= reflect.Int64:
			out.SetInt(-v.Int())
			return out, nil
		case k >= reflect.Uint && k <= reflect.Uintptr:
			out.SetUint(-v.Uint())
			return out, nil
		case k == reflect.Float32 || k == reflect.Float64:
			out.SetFloat(-v.Float())
			return out, nil
		}
	}
	return reflect.Value{}, fmt.Errorf("operator %s not defined on %s", op, v.Type())
}
