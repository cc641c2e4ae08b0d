package lower

import (
	"fmt"
	"reflect"

	"asyncexpr/internal/adt"
	"asyncexpr/internal/expr"
)

// MachineState is one non-suspending unit of execution. Registered states
// become the cases of the dispatch switch; their ids are dense from 0.
type MachineState struct {
	ID    int
	Name  string
	Stmts []*expr.Expr
	// Result receives the value flowing into this state, nil when void.
	Result *expr.Variable
	// TryStack is the try context active when the state was created.
	TryStack *adt.Stack[*TryInfo]
	// FinallyState marks states that belong to a finally body.
	FinallyState bool
	// ResumeTarget is stored into the resume slot on transition; set when
	// the continuation is a finally entry.
	ResumeTarget *MachineState
	// OmitStateAssignment is set when the statements already stored the
	// continuation id, as await does before registering the callback.
	OmitStateAssignment bool

	cont     *MachineState
	terminal bool
	virtual  bool
	origin   expr.NodeID
	kind     string
	detail   string

	afterYield  bool
	disposeExit bool
}

// Continuation returns the state entered after this one, nil if none.
func (s *MachineState) Continuation() *MachineState { return s.cont }

// SetContinuation wires the next state. Setting it twice is a builder defect.
func (s *MachineState) SetContinuation(next *MachineState) {
	if s.cont != nil {
		panic(defectf("state %d already continues to %d", s.ID, s.cont.ID))
	}
	if next == nil {
		panic(defectf("state %d continues to nil", s.ID))
	}
	s.cont = next
}

// Terminal reports whether the statements end with an explicit transfer.
func (s *MachineState) Terminal() bool { return s.terminal }

// IsDead reports whether the state is the placeholder used after an
// unconditional jump.
func (s *MachineState) IsDead() bool { return s.ID < 0 && !s.virtual }

func (s *MachineState) String() string {
	if s.Name != "" {
		return fmt.Sprintf("%d %q", s.ID, s.Name)
	}
	return fmt.Sprintf("%d %s", s.ID, s.kind)
}

// TryInfo describes one protected region as seen by the states inside it.
// A try with both handlers and a finally contributes two entries: the
// finally entry sits below the handler entry, so handler bodies see only
// the finally.
type TryInfo struct {
	Handlers     []CatchInfo
	FinallyState *MachineState
	// RethrowState re-raises ExcVar outside the try once the finally ran.
	RethrowState *MachineState
	ExitState    *MachineState

	// ExcVar holds the exception routed into a handler or finally.
	ExcVar *expr.Variable
	// SavedResume is where a finally parks the resume slot on entry.
	SavedResume *expr.Variable

	outer       *adt.Stack[*TryInfo]
	disposeExit *MachineState
}

// CatchInfo is one handler: its entry state, the bound variable, the error
// type it accepts and an optional filter.
type CatchInfo struct {
	State  *MachineState
	Var    *expr.Variable
	Test   reflect.Type
	Filter *expr.Expr
	fault  bool
}

// fiber is the result of visiting a sub-region in isolation.
type fiber struct {
	entry *MachineState
	exit  *MachineState
	value *expr.Expr
}

type defect struct{ msg string }

func (d defect) Error() string { return "lower: " + d.msg }

func defectf(format string, args ...any) defect {
	return defect{msg: fmt.Sprintf(format, args...)}
}
