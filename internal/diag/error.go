package diag

import (
	"errors"
	"strings"
)

// Error carries the diagnostics that made an operation fail.
type Error struct {
	Bag *Bag
}

// AsError returns nil when bag holds no errors.
func AsError(bag *Bag) error {
	if bag == nil || !bag.HasErrors() {
		return nil
	}
	return &Error{Bag: bag}
}

func (e *Error) Error() string {
	items := e.Bag.Items()
	if len(items) == 1 {
		return items[0].String()
	}
	parts := make([]string, 0, len(items))
	for _, d := range items {
		if d.Severity >= SevError {
			parts = append(parts, d.String())
		}
	}
	return strings.Join(parts, "; ")
}

// Has reports whether err carries a diagnostic with code.
func Has(err error, code Code) bool {
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	_, ok := de.Bag.First(code)
	return ok
}
