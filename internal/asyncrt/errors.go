package asyncrt

import "fmt"

// InvariantError reports that a state machine was resumed in a state it
// does not know. It indicates a lowering defect, never a user error.
type InvariantError struct {
	State int
}

// NewInvariantError builds the error raised by a machine's default case.
func NewInvariantError(state int) *InvariantError {
	return &InvariantError{State: state}
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("asyncrt: state machine resumed in unknown state %d", e.State)
}
