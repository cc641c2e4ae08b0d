package eval

import (
	"fmt"
	"reflect"

	"asyncexpr/internal/expr"
)

// convertTo gives v the static type t: widening to interfaces, asserting
// out of them and numeric conversions. A failed assertion is a
// RuntimeError.
func convertTo(v reflect.Value, t reflect.Type) (reflect.Value, error) {
	if expr.IsVoid(t) {
		return reflect.Value{}, nil
	}
	if !v.IsValid() {
		return reflect.Zero(t), nil
	}
	if v.Type() == t {
		return v, nil
	}
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Zero(t), nil
		}
		v = v.Elem()
		if v.Type() == t {
			return v, nil
		}
	}
	if v.Type().AssignableTo(t) {
		out := reflect.New(t).Elem()
		out.Set(v)
		return out, nil
	}
	if t.Kind() != reflect.Interface && v.Type().ConvertibleTo(t) && convertible(v.Type(), t) {
		return v.Convert(t), nil
	}
	return reflect.Value{}, &RuntimeError{Msg: fmt.Sprintf("interface conversion: %s is not %s", v.Type(), t)}
}

// convertible excludes conversions reflect allows but that panic or lose
// meaning, such as slice to array pointer of the wrong length.
func convertible(from, to reflect.Type) bool {
	switch {
	case isNumber(from) && isNumber(to):
		return true
	case from.Kind() == to.Kind() && from.Kind() != reflect.Slice:
		return true
	case from.Kind() == reflect.String || to.Kind() == reflect.String:
		return true
	}
	return false
}

func isNumber(t reflect.Type) bool {
	k := t.Kind()
	return k >= reflect.Int && k <= reflect.Complex128
}

// zeroOf returns the zero value of t, invalid for Void.
func zeroOf(t reflect.Type) reflect.Value {
	if expr.IsVoid(t) {
		return reflect.Value{}
	}
	return reflect.Zero(t)
}

// constValue materializes a constant as a value of exactly t.
func constValue(v any, t reflect.Type) reflect.Value {
	if v == nil {
		return zeroOf(t)
	}
	rv := reflect.ValueOf(v)
	if expr.IsVoid(t) || rv.Type() == t {
		return rv
	}
	out, err := convertTo(rv, t)
	if err != nil {
		return rv
	}
	return out
}

// asError extracts the error a thrown value holds.
func asError(v reflect.Value) (error, bool) {
	if !v.IsValid() {
		return nil, false
	}
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	if !v.CanInterface() {
		return nil, false
	}
	err, ok := v.Interface().(error)
	return err, ok && err != nil
}
