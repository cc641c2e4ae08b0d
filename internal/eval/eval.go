// Package eval interprets expression trees directly against Go values via
// reflect. It runs lowered machines end to end: closures become real Go
// funcs, so the async runtime can schedule them like any other callback.
//
// Await and Yield are not interpreted. A tree that still contains them
// must go through the lowering first.
package eval

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"asyncexpr/internal/diag"
	"asyncexpr/internal/expr"
)

// Compile evaluates a plain lambda into a Go func value of the lambda's
// type. A non-fallible func that raises an error panics when called from Go
// code; calls made from evaluated trees and through Func recover it.
func Compile(lambda *expr.Expr) (any, error) {
	if lambda == nil || lambda.Kind != expr.ExprLambda {
		return nil, notLambda(lambda)
	}
	v, err := run(lambda, newScope(nil))
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// Func compiles lambda and adapts it to a dynamic signature. A trailing
// error result, an uncaught throw and a runtime fault all surface as the
// returned error.
func Func(lambda *expr.Expr) (func(args ...any) (any, error), error) {
	compiled, err := Compile(lambda)
	if err != nil {
		return nil, err
	}
	fn := reflect.ValueOf(compiled)
	ft := fn.Type()
	return func(args ...any) (any, error) {
		if len(args) != ft.NumIn() {
			return nil, &Error{Code: diag.EvalUnsupported, Node: lambda.ID, Kind: lambda.Kind,
				Msg: fmt.Sprintf("%s takes %d arguments, got %d", ft, ft.NumIn(), len(args))}
		}
		in := make([]reflect.Value, len(args))
		for k, a := range args {
			v, err := convertTo(reflect.ValueOf(a), ft.In(k))
			if err != nil {
				return nil, err
			}
			in[k] = v
		}
		out, err := invoke(lambda, fn, in)
		if err != nil || !out.IsValid() {
			return nil, err
		}
		return out.Interface(), nil
	}, nil
}

// Eval evaluates a closed expression. Void expressions yield nil.
func Eval(e *expr.Expr) (any, error) {
	v, err := run(e, newScope(nil))
	if err != nil || !v.IsValid() {
		return nil, err
	}
	return v.Interface(), nil
}

func notLambda(e *expr.Expr) error {
	if e == nil {
		return &Error{Code: diag.EvalUnsupported, Msg: "nil expression"}
	}
	return unsupported(e, "%s is not a lambda", e.Kind)
}

// run evaluates e at top level, where no jump may remain unresolved.
func run(e *expr.Expr, s *scope) (v reflect.Value, err error) {
	defer func() {
		if p := recover(); p != nil {
			v, err = reflect.Value{}, recovered(p)
		}
	}()
	v, err = eval(e, s)
	var j *jump
	if errors.As(err, &j) {
		return reflect.Value{}, unsupported(e, "jump to %s has no target", j.target)
	}
	return v, err
}

// recovered turns a panic raised under a call into an error.
func recovered(p any) error {
	switch p := p.(type) {
	case *uncaught:
		return p.err
	case runtime.Error:
		return &RuntimeError{Msg: strings.TrimPrefix(p.Error(), "runtime error: ")}
	case error:
		return &RuntimeError{Msg: p.Error()}
	}
	return &RuntimeError{Msg: fmt.Sprint(p)}
}

// scope holds variable slots. Slots are addressable so closures and field
// stores share them.
type scope struct {
	vars   map[*expr.Variable]reflect.Value
	parent *scope
	caught error
}

func newScope(parent *scope) *scope {
	return &scope{vars: make(map[*expr.Variable]reflect.Value), parent: parent}
}

func (s *scope) declare(v *expr.Variable) reflect.Value {
	slot := reflect.New(v.Type).Elem()
	s.vars[v] = slot
	return slot
}

func (s *scope) slot(v *expr.Variable) (reflect.Value, bool) {
	for c := s; c != nil; c = c.parent {
		if slot, ok := c.vars[v]; ok {
			return slot, true
		}
	}
	return reflect.Value{}, false
}

// rethrown is the error of the innermost enclosing handler.
func (s *scope) rethrown() error {
	for c := s; c != nil; c = c.parent {
		if c.caught != nil {
			return c.caught
		}
	}
	return nil
}

func copyOf(v reflect.Value) reflect.Value {
	out := reflect.New(v.Type()).Elem()
	out.Set(v)
	return out
}

func eval(e *expr.Expr, s *scope) (reflect.Value, error) {
	switch d := e.Data.(type) {
	case expr.ConstantData:
		return constValue(d.Value, e.Type), nil
	case expr.DefaultData:
		return zeroOf(e.Type), nil
	case expr.VariableData:
		slot, ok := s.slot(d.Var)
		if !ok {
			return reflect.Value{}, unsupported(e, "variable %s is not in scope", d.Var)
		}
		return copyOf(slot), nil
	case expr.BlockData:
		return evalBlock(e, d, s)
	case expr.AssignData:
		return evalAssign(e, d, s)
	case expr.BinaryData:
		return evalBinary(e, d, s)
	case expr.UnaryData:
		v, err := eval(d.Operand, s)
		if err != nil {
			return reflect.Value{}, err
		}
		if d.Method != nil {
			return callMethodFunc(e, d.Method, v)
		}
		return unaryOp(d.Op, v, e.Type)
	case expr.ThrowData:
		return reflect.Value{}, evalThrow(e, d, s)
	case expr.TypeIsData:
		v, err := eval(d.Operand, s)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(dynamicIs(v, d.Test)), nil
	case expr.ConditionalData:
		ok, err := evalBool(d.Test, s)
		if err != nil {
			return reflect.Value{}, err
		}
		arm := d.IfFalse
		if ok {
			arm = d.IfTrue
		}
		return evalAs(arm, e.Type, s)
	case expr.SwitchData:
		return evalSwitch(e, d, s)
	case expr.LoopData:
		return evalLoop(e, d, s)
	case expr.TryData:
		return evalTry(e, d, s)
	case expr.GotoData:
		j := &jump{target: d.Target}
		if d.Value != nil {
			v, err := eval(d.Value, s)
			if err != nil {
				return reflect.Value{}, err
			}
			j.value = v
		}
		return reflect.Value{}, j
	case expr.LabelData:
		if d.Default == nil {
			return zeroOf(e.Type), nil
		}
		return evalAs(d.Default, e.Type, s)
	case expr.CallData:
		fn, err := eval(d.Fn, s)
		if err != nil {
			return reflect.Value{}, err
		}
		if fn, err = unwrap(fn); err != nil {
			return reflect.Value{}, err
		}
		if fn.IsNil() {
			return reflect.Value{}, &RuntimeError{Msg: "call of nil func"}
		}
		args, err := evalArgs(d.Args, fn.Type(), s)
		if err != nil {
			return reflect.Value{}, err
		}
		return invokeAs(e, fn, args)
	case expr.MethodCallData:
		return evalMethodCall(e, d, s)
	case expr.FieldData:
		obj, err := eval(d.Object, s)
		if err != nil {
			return reflect.Value{}, err
		}
		f, err := field(e, obj, d.Name)
		if err != nil {
			return reflect.Value{}, err
		}
		return copyOf(f), nil
	case expr.LambdaData:
		return makeFunc(e, d, s)
	case expr.AwaitData, expr.YieldData:
		return reflect.Value{}, &Error{Code: diag.EvalUnloweredSuspend, Node: e.ID, Kind: e.Kind,
			Msg: "suspension points must be lowered before evaluation"}
	}
	return reflect.Value{}, unsupported(e, "unknown node")
}

// evalAs evaluates e and gives the result the static type t.
func evalAs(e *expr.Expr, t reflect.Type, s *scope) (reflect.Value, error) {
	v, err := eval(e, s)
	if err != nil {
		return reflect.Value{}, err
	}
	return convertTo(v, t)
}

func evalBool(e *expr.Expr, s *scope) (bool, error) {
	v, err := eval(e, s)
	if err != nil {
		return false, err
	}
	if v, err = unwrap(v); err != nil {
		return false, err
	}
	if v.Kind() != reflect.Bool {
		return false, unsupported(e, "condition of type %s", v.Type())
	}
	return v.Bool(), nil
}

// evalBlock runs the statements in a fresh scope. A jump to a label placed
// directly in the block resumes right after that label.
func evalBlock(e *expr.Expr, d expr.BlockData, s *scope) (reflect.Value, error) {
	inner := newScope(s)
	for _, v := range d.Vars {
		inner.declare(v)
	}
	var last reflect.Value
	for at := 0; at < len(d.Exprs); at++ {
		v, err := eval(d.Exprs[at], inner)
		if err != nil {
			j, ok := err.(*jump)
			if !ok {
				return reflect.Value{}, err
			}
			mark := labelIndex(d.Exprs, j.target)
			if mark < 0 {
				return reflect.Value{}, err
			}
			if v, err = convertTo(j.value, j.target.Type); err != nil {
				return reflect.Value{}, err
			}
			at = mark
		}
		last = v
	}
	if expr.IsVoid(e.Type) {
		return reflect.Value{}, nil
	}
	return convertTo(last, e.Type)
}

func labelIndex(exprs []*expr.Expr, target *expr.Label) int {
	for k, x := range exprs {
		if d, ok := x.Data.(expr.LabelData); ok && d.Target == target {
			return k
		}
	}
	return -1
}

func evalLoop(e *expr.Expr, d expr.LoopData, s *scope) (reflect.Value, error) {
	for {
		_, err := eval(d.Body, s)
		if err == nil {
			continue
		}
		j, ok := err.(*jump)
		switch {
		case ok && d.Break != nil && j.target == d.Break:
			return convertTo(j.value, e.Type)
		case ok && d.Continue != nil && j.target == d.Continue:
			continue
		}
		return reflect.Value{}, err
	}
}

// evalTry matches a raised error against the handlers in order. A handler
// applies when the dynamic type of the error is assignable to its test
// type and its filter, evaluated in the handler's scope, holds. The
// finally block runs on every exit and an error it raises wins.
func evalTry(e *expr.Expr, d expr.TryData, s *scope) (reflect.Value, error) {
	v, err := eval(d.Body, s)
	if catchable(err) {
		if d.Fault != nil {
			if _, ferr := eval(d.Fault, s); ferr != nil {
				err = ferr
			}
		}
		for _, h := range d.Handlers {
			if !reflect.TypeOf(err).AssignableTo(h.Test) {
				continue
			}
			cs := newScope(s)
			cs.caught = err
			if h.Var != nil {
				cv, cerr := convertTo(reflect.ValueOf(err), h.Var.Type)
				if cerr != nil {
					return reflect.Value{}, cerr
				}
				cs.declare(h.Var).Set(cv)
			}
			if h.Filter != nil {
				pass, ferr := evalBool(h.Filter, cs)
				if ferr != nil {
					err = ferr
					break
				}
				if !pass {
					continue
				}
			}
			v, err = eval(h.Body, cs)
			break
		}
	}
	if d.Finally != nil {
		if _, ferr := eval(d.Finally, s); ferr != nil {
			return reflect.Value{}, ferr
		}
	}
	if err != nil {
		return reflect.Value{}, err
	}
	if expr.IsVoid(e.Type) {
		return reflect.Value{}, nil
	}
	return convertTo(v, e.Type)
}

func evalThrow(e *expr.Expr, d expr.ThrowData, s *scope) error {
	if d.Value == nil {
		if err := s.rethrown(); err != nil {
			return err
		}
		return unsupported(e, "rethrow outside a handler")
	}
	v, err := eval(d.Value, s)
	if err != nil {
		return err
	}
	thrown, ok := asError(v)
	if !ok {
		return &RuntimeError{Msg: "throw of a nil error"}
	}
	return thrown
}

// dynamicIs tests the dynamic type of v; a nil interface matches nothing.
func dynamicIs(v reflect.Value, t reflect.Type) bool {
	if !v.IsValid() {
		return false
	}
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return false
		}
		v = v.Elem()
	}
	return v.Type().AssignableTo(t)
}

func evalBinary(e *expr.Expr, d expr.BinaryData, s *scope) (reflect.Value, error) {
	if d.Method == nil && d.Op.IsShortCircuit() {
		l, err := evalBool(d.Left, s)
		if err != nil {
			return reflect.Value{}, err
		}
		if l == (d.Op == expr.OpOrElse) {
			return reflect.ValueOf(l), nil
		}
		r, err := evalBool(d.Right, s)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(r), nil
	}
	l, err := eval(d.Left, s)
	if err != nil {
		return reflect.Value{}, err
	}
	r, err := eval(d.Right, s)
	if err != nil {
		return reflect.Value{}, err
	}
	if d.Method != nil {
		return callMethodFunc(e, d.Method, l, r)
	}
	v, err := binaryOp(d.Op, l, r)
	if err != nil {
		return reflect.Value{}, err
	}
	return convertTo(v, e.Type)
}

// callMethodFunc applies a user-supplied operator implementation.
func callMethodFunc(e *expr.Expr, method any, operands ...reflect.Value) (reflect.Value, error) {
	fn := reflect.ValueOf(method)
	args := make([]reflect.Value, len(operands))
	for k, v := range operands {
		cv, err := convertTo(v, fn.Type().In(k))
		if err != nil {
			return reflect.Value{}, err
		}
		args[k] = cv
	}
	return invokeAs(e, fn, args)
}

func evalSwitch(e *expr.Expr, d expr.SwitchData, s *scope) (reflect.Value, error) {
	v, err := eval(d.Value, s)
	if err != nil {
		return reflect.Value{}, err
	}
	for _, c := range d.Cases {
		for _, tx := range c.TestValues {
			tv, err := eval(tx, s)
			if err != nil {
				return reflect.Value{}, err
			}
			hit, err := switchMatch(e, d.Comparer, v, tv)
			if err != nil {
				return reflect.Value{}, err
			}
			if hit {
				return evalAs(c.Body, e.Type, s)
			}
		}
	}
	if d.Default == nil {
		return zeroOf(e.Type), nil
	}
	return evalAs(d.Default, e.Type, s)
}

func switchMatch(e *expr.Expr, comparer any, v, test reflect.Value) (bool, error) {
	if comparer == nil {
		return equal(v, test)
	}
	r, err := callMethodFunc(e, comparer, v, test)
	if err != nil {
		return false, err
	}
	return r.Bool(), nil
}

// evalArgs evaluates call arguments left to right against the parameter
// types of ft, spreading a variadic tail.
func evalArgs(args []*expr.Expr, ft reflect.Type, s *scope) ([]reflect.Value, error) {
	out := make([]reflect.Value, len(args))
	for k, a := range args {
		pt := paramType(ft, k)
		if pt == nil {
			return nil, unsupported(a, "too many arguments for %s", ft)
		}
		v, err := evalAs(a, pt, s)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func paramType(ft reflect.Type, k int) reflect.Type {
	n := ft.NumIn()
	switch {
	case ft.IsVariadic() && k >= n-1:
		return ft.In(n - 1).Elem()
	case k < n:
		return ft.In(k)
	}
	return nil
}

// invoke calls fn and splits a trailing error result into a throw. Panics
// in the callee become errors.
func invoke(e *expr.Expr, fn reflect.Value, args []reflect.Value) (out reflect.Value, err error) {
	res, fallible, ferr := expr.FuncResult(fn.Type())
	if ferr != nil {
		return reflect.Value{}, unsupported(e, "%v", ferr)
	}
	defer func() {
		if p := recover(); p != nil {
			out, err = reflect.Value{}, recovered(p)
		}
	}()
	outs := fn.Call(args)
	if fallible {
		if last := outs[len(outs)-1]; !last.IsNil() {
			return reflect.Value{}, last.Interface().(error)
		}
	}
	if expr.IsVoid(res) {
		return reflect.Value{}, nil
	}
	return outs[0], nil
}

func invokeAs(e *expr.Expr, fn reflect.Value, args []reflect.Value) (reflect.Value, error) {
	v, err := invoke(e, fn, args)
	if err != nil || expr.IsVoid(e.Type) {
		return reflect.Value{}, err
	}
	return convertTo(v, e.Type)
}

func evalMethodCall(e *expr.Expr, d expr.MethodCallData, s *scope) (reflect.Value, error) {
	recv, err := eval(d.Receiver, s)
	if err != nil {
		return reflect.Value{}, err
	}
	if recv, err = unwrap(recv); err != nil {
		return reflect.Value{}, err
	}
	m := recv.MethodByName(d.Method)
	if !m.IsValid() && recv.Kind() != reflect.Pointer {
		p := reflect.New(recv.Type())
		p.Elem().Set(recv)
		m = p.MethodByName(d.Method)
	}
	if !m.IsValid() {
		return reflect.Value{}, unsupported(e, "%s has no method %s", recv.Type(), d.Method)
	}
	args, err := evalArgs(d.Args, m.Type(), s)
	if err != nil {
		return reflect.Value{}, err
	}
	return invokeAs(e, m, args)
}

// field returns the named field of a struct or struct pointer. For a
// pointer or an addressable struct the result is settable.
func field(e *expr.Expr, obj reflect.Value, name string) (reflect.Value, error) {
	obj, err := unwrap(obj)
	if err != nil {
		return reflect.Value{}, err
	}
	if obj.Kind() == reflect.Pointer {
		if obj.IsNil() {
			return reflect.Value{}, &RuntimeError{Msg: "invalid memory address or nil pointer dereference"}
		}
		obj = obj.Elem()
	}
	if obj.Kind() != reflect.Struct {
		return reflect.Value{}, unsupported(e, "field %s of %s", name, obj.Type())
	}
	f := obj.FieldByName(name)
	if !f.IsValid() || !f.CanInterface() {
		return reflect.Value{}, unsupported(e, "%s has no exported field %s", obj.Type(), name)
	}
	return f, nil
}

// place resolves an assignment target to its storage.
func place(target *expr.Expr, s *scope) (reflect.Value, error) {
	switch d := target.Data.(type) {
	case expr.VariableData:
		slot, ok := s.slot(d.Var)
		if !ok {
			return reflect.Value{}, unsupported(target, "variable %s is not in scope", d.Var)
		}
		return slot, nil
	case expr.FieldData:
		var obj reflect.Value
		var err error
		if d.Object.Type.Kind() == reflect.Pointer {
			obj, err = eval(d.Object, s)
		} else {
			obj, err = place(d.Object, s)
		}
		if err != nil {
			return reflect.Value{}, err
		}
		f, err := field(target, obj, d.Name)
		if err != nil {
			return reflect.Value{}, err
		}
		if !f.CanSet() {
			return reflect.Value{}, unsupported(target, "field %s is not settable", d.Name)
		}
		return f, nil
	}
	return reflect.Value{}, unsupported(target, "cannot assign to %s", target.Kind)
}

func evalAssign(e *expr.Expr, d expr.AssignData, s *scope) (reflect.Value, error) {
	slot, err := place(d.Target, s)
	if err != nil {
		return reflect.Value{}, err
	}
	if d.Op == expr.AssignPlain {
		v, err := evalAs(d.Value, slot.Type(), s)
		if err != nil {
			return reflect.Value{}, err
		}
		slot.Set(v)
		return copyOf(slot), nil
	}
	op, ok := d.Op.Binary()
	if !ok {
		return reflect.Value{}, unsupported(e, "assignment %s", d.Op)
	}
	old := copyOf(slot)
	var rhs reflect.Value
	if d.Op.IsIncrement() {
		if !isNumber(slot.Type()) {
			return reflect.Value{}, unsupported(e, "%s of %s", d.Op, slot.Type())
		}
		rhs = reflect.ValueOf(1).Convert(slot.Type())
	} else if rhs, err = eval(d.Value, s); err != nil {
		return reflect.Value{}, err
	}
	nv, err := binaryOp(op, old, rhs)
	if err != nil {
		return reflect.Value{}, err
	}
	if nv, err = convertTo(nv, slot.Type()); err != nil {
		return reflect.Value{}, err
	}
	slot.Set(nv)
	if d.Op == expr.PostIncrement || d.Op == expr.PostDecrement {
		return old, nil
	}
	return copyOf(slot), nil
}

// makeFunc turns a closure into a Go func sharing the defining scope. A
// fallible closure returns raised errors; any other closure panics with
// them, and invoke recovers the panic on the calling side.
func makeFunc(e *expr.Expr, d expr.LambdaData, s *scope) (reflect.Value, error) {
	if d.Kind != expr.LambdaPlain {
		return reflect.Value{}, &Error{Code: diag.EvalUnloweredSuspend, Node: e.ID, Kind: e.Kind,
			Msg: fmt.Sprintf("%s lambda %q must be lowered before evaluation", d.Kind, d.Name)}
	}
	ft := e.Type
	res, fallible, err := expr.FuncResult(ft)
	if err != nil {
		return reflect.Value{}, unsupported(e, "%v", err)
	}
	fn := reflect.MakeFunc(ft, func(args []reflect.Value) []reflect.Value {
		ls := newScope(s)
		var v reflect.Value
		err := bindParams(ls, d.Params, args)
		if err == nil {
			v, err = eval(d.Body, ls)
		}
		if isJump(err) {
			err = unsupported(e, "%v escapes the lambda", err)
		}
		if err == nil && !expr.IsVoid(res) {
			v, err = convertTo(v, res)
		}
		outs := make([]reflect.Value, 0, ft.NumOut())
		if !expr.IsVoid(res) {
			if err != nil || !v.IsValid() {
				v = reflect.Zero(res)
			}
			outs = append(outs, v)
		}
		switch {
		case fallible && err == nil:
			outs = append(outs, reflect.Zero(expr.ErrorType))
		case fallible:
			outs = append(outs, reflect.ValueOf(&err).Elem())
		case err != nil:
			panic(&uncaught{err: err})
		}
		return outs
	})
	return fn, nil
}

func bindParams(ls *scope, params []*expr.Variable, args []reflect.Value) error {
	for k, p := range params {
		v, err := convertTo(args[k], p.Type)
		if err != nil {
			return err
		}
		ls.declare(p).Set(v)
	}
	return nil
}
