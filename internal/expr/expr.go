// Package expr defines the expression tree consumed and produced by the
// lowering engine. Nodes are typed with reflect.Type so trees can be
// evaluated directly against Go values.
package expr

import (
	"reflect"
	"sync/atomic"
)

// NodeID identifies an expression node for diagnostics and state naming.
type NodeID uint32

var nextNodeID atomic.Uint32

func newNodeID() NodeID { return NodeID(nextNodeID.Add(1)) }

// ExprKind enumerates expression kinds.
type ExprKind uint8

const (
	// ExprConstant is a literal value.
	ExprConstant ExprKind = iota
	// ExprDefault is the zero value of its type (nothing for Void).
	ExprDefault
	// ExprVariable reads a variable.
	ExprVariable
	// ExprBlock evaluates a sequence and yields the last value.
	ExprBlock
	// ExprAssign stores into a variable or field, including compound forms.
	ExprAssign
	// ExprBinary covers arithmetic, comparison and short-circuit operators.
	ExprBinary
	// ExprUnary covers negation, logical not and conversions.
	ExprUnary
	// ExprThrow raises an error; a nil operand rethrows the caught one.
	ExprThrow
	// ExprTypeIs tests the dynamic type of an operand.
	ExprTypeIs
	// ExprConditional is a two-armed if expression.
	ExprConditional
	// ExprSwitch dispatches on equality against case test values.
	ExprSwitch
	// ExprLoop repeats its body until a break jump.
	ExprLoop
	// ExprTry is try with catch handlers, finally and fault blocks.
	ExprTry
	// ExprGoto transfers control to a label.
	ExprGoto
	// ExprLabel marks a jump target.
	ExprLabel
	// ExprCall invokes a func-typed operand.
	ExprCall
	// ExprMethodCall invokes a method resolved by name on the receiver type.
	ExprMethodCall
	// ExprField reads a struct field.
	ExprField
	// ExprLambda creates a closure.
	ExprLambda
	// ExprAwait suspends until an awaitable completes.
	ExprAwait
	// ExprYield produces one element of an iterator.
	ExprYield
)

// String returns a human-readable name for the expression kind.
func (k ExprKind) String() string {
	switch k {
	case ExprConstant:
		return "Constant"
	case ExprDefault:
		return "Default"
	case ExprVariable:
		return "Variable"
	case ExprBlock:
		return "Block"
	case ExprAssign:
		return "Assign"
	case ExprBinary:
		return "Binary"
	case ExprUnary:
		return "Unary"
	case ExprThrow:
		return "Throw"
	case ExprTypeIs:
		return "TypeIs"
	case ExprConditional:
		return "Conditional"
	case ExprSwitch:
		return "Switch"
	case ExprLoop:
		return "Loop"
	case ExprTry:
		return "Try"
	case ExprGoto:
		return "Goto"
	case ExprLabel:
		return "Label"
	case ExprCall:
		return "Call"
	case ExprMethodCall:
		return "MethodCall"
	case ExprField:
		return "Field"
	case ExprLambda:
		return "Lambda"
	case ExprAwait:
		return "Await"
	case ExprYield:
		return "Yield"
	default:
		return "Unknown"
	}
}

// Expr is a typed expression node.
type Expr struct {
	Kind ExprKind
	Type reflect.Type
	ID   NodeID
	Data ExprData
}

// ExprData is implemented by the payload structs below.
type ExprData interface {
	exprData()
}

// ConstantData holds a literal value.
type ConstantData struct {
	Value any
}

func (ConstantData) exprData() {}

// DefaultData marks a zero value.
type DefaultData struct{}

func (DefaultData) exprData() {}

// VariableData references a variable.
type VariableData struct {
	Var *Variable
}

func (VariableData) exprData() {}

// BlockData holds scoped variables and a statement sequence.
type BlockData struct {
	Vars  []*Variable
	Exprs []*Expr
}

func (BlockData) exprData() {}

// AssignData stores Value into Target. Value is nil for increments.
type AssignData struct {
	Op     AssignOp
	Target *Expr
	Value  *Expr
}

func (AssignData) exprData() {}

// BinaryData holds a binary operation. Method, when set, is a func value
// implementing the operator.
type BinaryData struct {
	Op     BinaryOp
	Left   *Expr
	Right  *Expr
	Method any
}

func (BinaryData) exprData() {}

// UnaryData holds a unary operation or conversion to the node type.
type UnaryData struct {
	Op      UnaryOp
	Operand *Expr
	Method  any
}

func (UnaryData) exprData() {}

// ThrowData holds the raised value; nil rethrows.
type ThrowData struct {
	Value *Expr
}

func (ThrowData) exprData() {}

// TypeIsData tests Operand against Test.
type TypeIsData struct {
	Operand *Expr
	Test    reflect.Type
}

func (TypeIsData) exprData() {}

// ConditionalData is test ? IfTrue : IfFalse.
type ConditionalData struct {
	Test    *Expr
	IfTrue  *Expr
	IfFalse *Expr
}

func (ConditionalData) exprData() {}

// SwitchCase is one arm of a switch.
type SwitchCase struct {
	TestValues []*Expr
	Body       *Expr
}

// SwitchData holds a switch. Comparer, when set, is a func(a, b) bool.
type SwitchData struct {
	Value    *Expr
	Cases    []SwitchCase
	Default  *Expr
	Comparer any
}

func (SwitchData) exprData() {}

// LoopData holds an infinite loop with optional break and continue targets.
type LoopData struct {
	Body     *Expr
	Break    *Label
	Continue *Label
}

func (LoopData) exprData() {}

// CatchBlock is one handler of a try expression.
type CatchBlock struct {
	Test   reflect.Type
	Var    *Variable
	Filter *Expr
	Body   *Expr
}

// TryData holds a protected body with its handlers.
type TryData struct {
	Body     *Expr
	Handlers []CatchBlock
	Finally  *Expr
	Fault    *Expr
}

func (TryData) exprData() {}

// GotoData is a jump, optionally carrying a value to the label.
type GotoData struct {
	Kind   GotoKind
	Target *Label
	Value  *Expr
}

func (GotoData) exprData() {}

// LabelData marks Target; Default is the value when reached by fallthrough.
type LabelData struct {
	Target  *Label
	Default *Expr
}

func (LabelData) exprData() {}

// CallData invokes Fn with Args.
type CallData struct {
	Fn   *Expr
	Args []*Expr
}

func (CallData) exprData() {}

// MethodCallData invokes Receiver.Method(Args...).
type MethodCallData struct {
	Receiver *Expr
	Method   string
	Args     []*Expr
}

func (MethodCallData) exprData() {}

// FieldData reads Object.Name.
type FieldData struct {
	Object *Expr
	Name   string
}

func (FieldData) exprData() {}

// LambdaData describes a closure. Shape is the func type of the closure.
type LambdaData struct {
	Name     string
	Params   []*Variable
	Body     *Expr
	Kind     LambdaKind
	Fallible bool
}

func (LambdaData) exprData() {}

// AwaitData suspends on Operand. When Configured is set the awaitable is
// first passed through ConfigureAwait(ContinueOnContext).
type AwaitData struct {
	Operand           *Expr
	Configured        bool
	ContinueOnContext bool
}

func (AwaitData) exprData() {}

// YieldData produces Value from an iterator body.
type YieldData struct {
	Value *Expr
}

func (YieldData) exprData() {}
