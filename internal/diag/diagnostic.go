package diag

import "fmt"

// Severity ranks a diagnostic. Only errors fail a lowering.
type Severity uint8

const (
	SevInfo Severity = iota
	SevWarning
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevError:
		return "error"
	case SevWarning:
		return "warning"
	}
	return "info"
}

// Location points at an expression node inside a named lambda.
type Location struct {
	Lambda string
	Node   uint32
}

func (l Location) String() string {
	name := l.Lambda
	if name == "" {
		name = "<lambda>"
	}
	if l.Node == 0 {
		return name
	}
	return fmt.Sprintf("%s#%d", name, l.Node)
}

type Note struct {
	Loc Location
	Msg string
}

type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Primary  Location
	Notes    []Note
}

func New(sev Severity, code Code, primary Location, msg string) Diagnostic {
	return Diagnostic{
		Severity: sev,
		Code:     code,
		Primary:  primary,
		Message:  msg,
	}
}

func NewError(code Code, primary Location, msg string) Diagnostic {
	return New(SevError, code, primary, msg)
}

func (d Diagnostic) WithNote(loc Location, msg string) Diagnostic {
	d.Notes = append(d.Notes, Note{Loc: loc, Msg: msg})
	return d
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s %s %s %s", d.Severity, d.Code.ID(), d.Primary, d.Message)
}
