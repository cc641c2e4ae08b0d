package expr

// AssignOp enumerates assignment forms.
type AssignOp uint8

const (
	AssignPlain AssignOp = iota
	AssignAdd
	AssignSub
	AssignMul
	AssignDiv
	AssignMod
	AssignAnd
	AssignOr
	AssignXor
	AssignShl
	AssignShr
	PreIncrement
	PreDecrement
	PostIncrement
	PostDecrement
)

var assignOpNames = [...]string{
	AssignPlain:   "=",
	AssignAdd:     "+=",
	AssignSub:     "-=",
	AssignMul:     "*=",
	AssignDiv:     "/=",
	AssignMod:     "%=",
	AssignAnd:     "&=",
	AssignOr:      "|=",
	AssignXor:     "^=",
	AssignShl:     "<<=",
	AssignShr:     ">>=",
	PreIncrement:  "++pre",
	PreDecrement:  "--pre",
	PostIncrement: "post++",
	PostDecrement: "post--",
}

func (op AssignOp) String() string {
	if int(op) < len(assignOpNames) {
		return assignOpNames[op]
	}
	return "?="
}

// Binary returns the arithmetic operator applied by a compound assignment.
func (op AssignOp) Binary() (BinaryOp, bool) {
	switch op {
	case AssignAdd, PreIncrement, PostIncrement:
		return OpAdd, true
	case AssignSub, PreDecrement, PostDecrement:
		return OpSub, true
	case AssignMul:
		return OpMul, true
	case AssignDiv:
		return OpDiv, true
	case AssignMod:
		return OpMod, true
	case AssignAnd:
		return OpAnd, true
	case AssignOr:
		return OpOr, true
	case AssignXor:
		return OpXor, true
	case AssignShl:
		return OpShl, true
	case AssignShr:
		return OpShr, true
	default:
		return 0, false
	}
}

// IsIncrement reports the operand-less forms.
func (op AssignOp) IsIncrement() bool {
	return op >= PreIncrement && op <= PostDecrement
}

// BinaryOp enumerates binary operators.
type BinaryOp uint8

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpEqual
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpAndAlso
	OpOrElse
)

var binaryOpNames = [...]string{
	OpAdd:          "+",
	OpSub:          "-",
	OpMul:          "*",
	OpDiv:          "/",
	OpMod:          "%",
	OpAnd:          "&",
	OpOr:           "|",
	OpXor:          "^",
	OpShl:          "<<",
	OpShr:          ">>",
	OpEqual:        "==",
	OpNotEqual:     "!=",
	OpLess:         "<",
	OpLessEqual:    "<=",
	OpGreater:      ">",
	OpGreaterEqual: ">=",
	OpAndAlso:      "&&",
	OpOrElse:       "||",
}

func (op BinaryOp) String() string {
	if int(op) < len(binaryOpNames) {
		return binaryOpNames[op]
	}
	return "?"
}

// IsComparison reports operators producing bool from two operands.
func (op BinaryOp) IsComparison() bool {
	return op >= OpEqual && op <= OpGreaterEqual
}

// IsShortCircuit reports && and ||.
func (op BinaryOp) IsShortCircuit() bool {
	return op == OpAndAlso || op == OpOrElse
}

// UnaryOp enumerates unary operators.
type UnaryOp uint8

const (
	OpNot UnaryOp = iota
	OpNegate
	OpPlus
	OpConvert
)

func (op UnaryOp) String() string {
	switch op {
	case OpNot:
		return "!"
	case OpNegate:
		return "-"
	case OpPlus:
		return "+"
	case OpConvert:
		return "convert"
	default:
		return "?"
	}
}

// GotoKind records the source form of a jump.
type GotoKind uint8

const (
	GotoPlain GotoKind = iota
	GotoBreak
	GotoContinue
	GotoReturn
)

func (k GotoKind) String() string {
	switch k {
	case GotoBreak:
		return "break"
	case GotoContinue:
		return "continue"
	case GotoReturn:
		return "return"
	default:
		return "goto"
	}
}

// LambdaKind selects how a lambda body is lowered.
type LambdaKind uint8

const (
	// LambdaPlain is an ordinary closure.
	LambdaPlain LambdaKind = iota
	// LambdaAsync returns a completion handle and may contain Await.
	LambdaAsync
	// LambdaIterator returns a lazy sequence and may contain Yield.
	LambdaIterator
)

func (k LambdaKind) String() string {
	switch k {
	case LambdaAsync:
		return "async"
	case LambdaIterator:
		return "iterator"
	default:
		return "plain"
	}
}
