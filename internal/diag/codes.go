package diag

import (
	"fmt"
)

type Code uint16

const (
	// Unknown code
	UnknownCode Code = 0

	// Lowering usage errors
	LowInfo             Code = 1000
	LowNotAwaitable     Code = 1001
	LowAwaitInFilter    Code = 1002
	LowSuspendInPlain   Code = 1003
	LowYieldInAsync     Code = 1004
	LowAwaitInIterator  Code = 1005
	LowJumpIntoTry      Code = 1006
	LowJumpOutOfFinally Code = 1007
	LowYieldInFinally   Code = 1008
	LowUndefinedLabel   Code = 1009
	LowNoBackend        Code = 1010
	LowBadIteratorShape Code = 1011
	LowNotLambda        Code = 1012

	// Machine shape checks
	ChkInfo             Code = 2000
	ChkDuplicateState   Code = 2001
	ChkDanglingTarget   Code = 2002
	ChkTryDepth         Code = 2003
	ChkFinallyEscapes   Code = 2004
	ChkUnreachableState Code = 2005

	// Evaluation
	EvalInfo             Code = 3000
	EvalUnloweredSuspend Code = 3001
	EvalUnsupported      Code = 3002

	// Internal defects
	IntInfo   Code = 9000
	IntDefect Code = 9001
)

var (
	codeDescription = map[Code]string{
		UnknownCode:          "Unknown error",
		LowInfo:              "Lowering information",
		LowNotAwaitable:      "Operand of await is not awaitable",
		LowAwaitInFilter:     "Await is not allowed in a catch filter",
		LowSuspendInPlain:    "Suspension point inside a plain lambda",
		LowYieldInAsync:      "Yield is not allowed in an async body",
		LowAwaitInIterator:   "Await is not allowed in an iterator body",
		LowJumpIntoTry:       "Jump into a protected region",
		LowJumpOutOfFinally:  "Jump out of a finally block",
		LowYieldInFinally:    "Yield is not allowed in a finally block",
		LowUndefinedLabel:    "Jump to a label that is never placed",
		LowNoBackend:         "No completion backend for the declared handle type",
		LowBadIteratorShape:  "Unsupported iterator result type",
		LowNotLambda:         "Expression is not an async or iterator lambda",
		ChkInfo:              "Machine check information",
		ChkDuplicateState:    "Duplicate state id",
		ChkDanglingTarget:    "Transition to an unknown state",
		ChkTryDepth:          "State try context is inconsistent",
		ChkFinallyEscapes:    "Finally state without a resume transition",
		ChkUnreachableState:  "State is never entered",
		EvalInfo:             "Evaluation information",
		EvalUnloweredSuspend: "Suspension point reached the evaluator",
		EvalUnsupported:      "Unsupported expression",
		IntInfo:              "Internal information",
		IntDefect:            "Internal lowering defect",
	}
)

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("LOW%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("CHK%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("EVL%04d", ic)
	case ic >= 9000 && ic < 10000:
		return fmt.Sprintf("INT%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[Code(0)]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
