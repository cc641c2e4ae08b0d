package expr

import (
	"fmt"
	"reflect"

	"asyncexpr/internal/caps"
)

func node(kind ExprKind, t reflect.Type, data ExprData) *Expr {
	if t == nil {
		t = Void
	}
	return &Expr{Kind: kind, Type: t, ID: newNodeID(), Data: data}
}

// Const returns a literal of the dynamic type of v.
func Const(v any) *Expr {
	return node(ExprConstant, reflect.TypeOf(v), ConstantData{Value: v})
}

// ConstOf returns a literal typed as t, e.g. a nil error.
func ConstOf(v any, t reflect.Type) *Expr {
	return node(ExprConstant, t, ConstantData{Value: v})
}

// Default returns the zero value of t.
func Default(t reflect.Type) *Expr {
	return node(ExprDefault, t, DefaultData{})
}

// Empty is a void no-op.
func Empty() *Expr { return Default(Void) }

// Ref reads v.
func Ref(v *Variable) *Expr {
	return node(ExprVariable, v.Type, VariableData{Var: v})
}

// Block yields the value of its last expression.
func Block(vars []*Variable, exprs ...*Expr) *Expr {
	t := Void
	if len(exprs) > 0 {
		t = exprs[len(exprs)-1].Type
	}
	return TypedBlock(t, vars, exprs...)
}

// TypedBlock is a block whose value is typed as t; Void discards the last value.
func TypedBlock(t reflect.Type, vars []*Variable, exprs ...*Expr) *Expr {
	return node(ExprBlock, t, BlockData{Vars: vars, Exprs: exprs})
}

// Assign stores value into target, which must be a variable or field.
func Assign(target, value *Expr) *Expr {
	return AssignWith(AssignPlain, target, value)
}

// AssignWith builds a plain or compound assignment.
func AssignWith(op AssignOp, target, value *Expr) *Expr {
	if target.Kind != ExprVariable && target.Kind != ExprField {
		panic(fmt.Sprintf("expr: cannot assign to %s", target.Kind))
	}
	return node(ExprAssign, target.Type, AssignData{Op: op, Target: target, Value: value})
}

// Increment builds ++/-- forms.
func Increment(op AssignOp, target *Expr) *Expr {
	if !op.IsIncrement() {
		panic(fmt.Sprintf("expr: %s is not an increment", op))
	}
	return node(ExprAssign, target.Type, AssignData{Op: op, Target: target})
}

// Binary combines two operands.
func Binary(op BinaryOp, left, right *Expr) *Expr {
	t := left.Type
	if op.IsComparison() || op.IsShortCircuit() {
		t = BoolType
	}
	return node(ExprBinary, t, BinaryData{Op: op, Left: left, Right: right})
}

// BinaryMethod implements op with method, a func(L, R) T.
func BinaryMethod(op BinaryOp, left, right *Expr, method any) *Expr {
	ft := reflect.TypeOf(method)
	if ft == nil || ft.Kind() != reflect.Func || ft.NumIn() != 2 || ft.NumOut() != 1 {
		panic("expr: binary method must be func(a, b) r")
	}
	return node(ExprBinary, ft.Out(0), BinaryData{Op: op, Left: left, Right: right, Method: method})
}

func Add(l, r *Expr) *Expr          { return Binary(OpAdd, l, r) }
func Sub(l, r *Expr) *Expr          { return Binary(OpSub, l, r) }
func Mul(l, r *Expr) *Expr          { return Binary(OpMul, l, r) }
func Equal(l, r *Expr) *Expr        { return Binary(OpEqual, l, r) }
func NotEqual(l, r *Expr) *Expr     { return Binary(OpNotEqual, l, r) }
func Less(l, r *Expr) *Expr         { return Binary(OpLess, l, r) }
func Greater(l, r *Expr) *Expr      { return Binary(OpGreater, l, r) }
func GreaterEqual(l, r *Expr) *Expr { return Binary(OpGreaterEqual, l, r) }
func AndAlso(l, r *Expr) *Expr      { return Binary(OpAndAlso, l, r) }
func OrElse(l, r *Expr) *Expr       { return Binary(OpOrElse, l, r) }

// Not is logical negation.
func Not(e *Expr) *Expr {
	return node(ExprUnary, BoolType, UnaryData{Op: OpNot, Operand: e})
}

// Negate is arithmetic negation.
func Negate(e *Expr) *Expr {
	return node(ExprUnary, e.Type, UnaryData{Op: OpNegate, Operand: e})
}

// Convert converts or asserts e to t.
func Convert(e *Expr, t reflect.Type) *Expr {
	return node(ExprUnary, t, UnaryData{Op: OpConvert, Operand: e})
}

// Throw raises value, which must implement error.
func Throw(value *Expr) *Expr { return ThrowAs(value, Void) }

// ThrowAs is a throw used in a position expecting t.
func ThrowAs(value *Expr, t reflect.Type) *Expr {
	if value != nil && !value.Type.Implements(ErrorType) {
		panic(fmt.Sprintf("expr: throw of non-error %s", value.Type))
	}
	return node(ExprThrow, t, ThrowData{Value: value})
}

// Rethrow raises the error caught by the enclosing handler.
func Rethrow() *Expr { return ThrowAs(nil, Void) }

// TypeIs reports whether e's dynamic value is assignable to t.
func TypeIs(e *Expr, t reflect.Type) *Expr {
	return node(ExprTypeIs, BoolType, TypeIsData{Operand: e, Test: t})
}

// Condition is test ? a : b typed as a.
func Condition(test, a, b *Expr) *Expr {
	return TypedCondition(a.Type, test, a, b)
}

// TypedCondition is a conditional of type t.
func TypedCondition(t reflect.Type, test, a, b *Expr) *Expr {
	return node(ExprConditional, t, ConditionalData{Test: test, IfTrue: a, IfFalse: b})
}

// IfThen is a void conditional without else branch.
func IfThen(test, then *Expr) *Expr {
	return TypedCondition(Void, test, then, Empty())
}

// IfThenElse is a void conditional.
func IfThenElse(test, then, els *Expr) *Expr {
	return TypedCondition(Void, test, then, els)
}

// Case builds a switch arm.
func Case(body *Expr, tests ...*Expr) SwitchCase {
	return SwitchCase{TestValues: tests, Body: body}
}

// Switch dispatches value over cases; def may be nil.
func Switch(t reflect.Type, value, def *Expr, cases ...SwitchCase) *Expr {
	return SwitchWith(t, value, def, nil, cases...)
}

// SwitchWith uses comparer, a func(v, test) bool, instead of ==.
func SwitchWith(t reflect.Type, value, def *Expr, comparer any, cases ...SwitchCase) *Expr {
	return node(ExprSwitch, t, SwitchData{Value: value, Cases: cases, Default: def, Comparer: comparer})
}

// Loop repeats body until a jump to brk.
func Loop(body *Expr, brk, cont *Label) *Expr {
	t := Void
	if brk != nil {
		t = brk.Type
	}
	return node(ExprLoop, t, LoopData{Body: body, Break: brk, Continue: cont})
}

// Catch builds a handler for errors assignable to t.
func Catch(t reflect.Type, v *Variable, body *Expr) CatchBlock {
	return CatchBlock{Test: t, Var: v, Body: body}
}

// CatchIf builds a handler guarded by filter.
func CatchIf(t reflect.Type, v *Variable, filter, body *Expr) CatchBlock {
	return CatchBlock{Test: t, Var: v, Filter: filter, Body: body}
}

// Try protects body with handlers.
func Try(body *Expr, handlers ...CatchBlock) *Expr {
	return TryCatchFinally(body, nil, handlers...)
}

// TryFinally runs fin after body on every exit.
func TryFinally(body, fin *Expr) *Expr {
	return TryCatchFinally(body, fin)
}

// TryCatchFinally combines handlers and a finally block.
func TryCatchFinally(body, fin *Expr, handlers ...CatchBlock) *Expr {
	return node(ExprTry, body.Type, TryData{Body: body, Handlers: handlers, Finally: fin})
}

// TryFault runs fault only when body raises.
func TryFault(body, fault *Expr) *Expr {
	return node(ExprTry, body.Type, TryData{Body: body, Fault: fault})
}

// Goto jumps to target.
func Goto(target *Label) *Expr { return jump(GotoPlain, target, nil) }

// GotoValue jumps to target carrying value.
func GotoValue(target *Label, value *Expr) *Expr { return jump(GotoPlain, target, value) }

// Break leaves the loop owning target.
func Break(target *Label, value *Expr) *Expr { return jump(GotoBreak, target, value) }

// Continue restarts the loop owning target.
func Continue(target *Label) *Expr { return jump(GotoContinue, target, nil) }

// Return jumps to a lambda's return label.
func Return(target *Label, value *Expr) *Expr { return jump(GotoReturn, target, value) }

func jump(kind GotoKind, target *Label, value *Expr) *Expr {
	return node(ExprGoto, Void, GotoData{Kind: kind, Target: target, Value: value})
}

// Mark places target; def is its fallthrough value and may be nil.
func Mark(target *Label, def *Expr) *Expr {
	return node(ExprLabel, target.Type, LabelData{Target: target, Default: def})
}

// Call invokes the func-typed fn.
func Call(fn *Expr, args ...*Expr) *Expr {
	if fn.Type.Kind() != reflect.Func {
		panic(fmt.Sprintf("expr: call of non-func %s", fn.Type))
	}
	res, _, err := FuncResult(fn.Type)
	if err != nil {
		panic("expr: " + err.Error())
	}
	return node(ExprCall, res, CallData{Fn: fn, Args: args})
}

// CallFunc invokes the Go func value fn.
func CallFunc(fn any, args ...*Expr) *Expr {
	return Call(Const(fn), args...)
}

// MethodSig resolves name on t and returns its signature without receiver.
func MethodSig(t reflect.Type, name string) (reflect.Type, bool) {
	return caps.Method(t, name)
}

// MethodCall invokes receiver.name(args...).
func MethodCall(receiver *Expr, name string, args ...*Expr) *Expr {
	sig, ok := MethodSig(receiver.Type, name)
	if !ok {
		panic(fmt.Sprintf("expr: %s has no method %s", receiver.Type, name))
	}
	res, _, err := FuncResult(sig)
	if err != nil {
		panic("expr: " + err.Error())
	}
	return node(ExprMethodCall, res, MethodCallData{Receiver: receiver, Method: name, Args: args})
}

// Field reads a field of a struct or struct pointer.
func Field(object *Expr, name string) *Expr {
	st := object.Type
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		panic(fmt.Sprintf("expr: field %s of non-struct %s", name, object.Type))
	}
	f, ok := st.FieldByName(name)
	if !ok {
		panic(fmt.Sprintf("expr: %s has no field %s", st, name))
	}
	return node(ExprField, f.Type, FieldData{Object: object, Name: name})
}

// Lambda builds a plain closure whose func type is inferred from params and
// body. A fallible lambda returns a trailing error instead of panicking.
func Lambda(name string, fallible bool, params []*Variable, body *Expr) *Expr {
	in := make([]reflect.Type, len(params))
	for i, p := range params {
		in[i] = p.Type
	}
	var out []reflect.Type
	if !IsVoid(body.Type) {
		out = append(out, body.Type)
	}
	if fallible {
		out = append(out, ErrorType)
	}
	return LambdaOf(reflect.FuncOf(in, out, false), name, LambdaPlain, fallible, params, body)
}

// LambdaOf builds a closure with an explicit func type.
func LambdaOf(shape reflect.Type, name string, kind LambdaKind, fallible bool, params []*Variable, body *Expr) *Expr {
	if shape.Kind() != reflect.Func || shape.NumIn() != len(params) {
		panic(fmt.Sprintf("expr: lambda shape %s does not take %d params", shape, len(params)))
	}
	return node(ExprLambda, shape, LambdaData{Name: name, Params: params, Body: body, Kind: kind, Fallible: fallible})
}

// AsyncLambda builds a lambda returning the completion handle type handle.
func AsyncLambda(name string, handle reflect.Type, params []*Variable, body *Expr) *Expr {
	return LambdaOf(shapeOf(params, handle), name, LambdaAsync, false, params, body)
}

// IteratorLambda builds a lambda returning the sequence type seq.
func IteratorLambda(name string, seq reflect.Type, params []*Variable, body *Expr) *Expr {
	return LambdaOf(shapeOf(params, seq), name, LambdaIterator, false, params, body)
}

func shapeOf(params []*Variable, result reflect.Type) reflect.Type {
	in := make([]reflect.Type, len(params))
	for i, p := range params {
		in[i] = p.Type
	}
	return reflect.FuncOf(in, []reflect.Type{result}, false)
}

// LambdaResult returns the value result type of a lambda node.
func LambdaResult(e *Expr) reflect.Type {
	res, _, err := FuncResult(e.Type)
	if err != nil {
		return Void
	}
	return res
}

// Await suspends on an awaitable. Non-awaitable operands produce a Void
// node that the lowering rejects.
func Await(operand *Expr) *Expr {
	return node(ExprAwait, awaitResult(operand.Type, false), AwaitData{Operand: operand})
}

// AwaitConfigured passes operand through ConfigureAwait(onContext) first.
func AwaitConfigured(operand *Expr, onContext bool) *Expr {
	return node(ExprAwait, awaitResult(operand.Type, true),
		AwaitData{Operand: operand, Configured: true, ContinueOnContext: onContext})
}

func awaitResult(t reflect.Type, configured bool) reflect.Type {
	info, ok := caps.Awaitable(t)
	if !ok {
		return Void
	}
	if configured {
		if info.Configure == nil {
			return Void
		}
		if info, ok = caps.Awaitable(info.Configure); !ok {
			return Void
		}
	}
	if info.Result == nil {
		return Void
	}
	return info.Result
}

// Yield emits value from an iterator body.
func Yield(value *Expr) *Expr {
	return node(ExprYield, Void, YieldData{Value: value})
}

// WithType returns a shallow copy of e retyped as t.
func WithType(e *Expr, t reflect.Type) *Expr {
	cp := *e
	cp.Type = t
	return &cp
}
