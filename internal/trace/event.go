package trace

import (
	"fmt"
	"strings"
	"time"
)

// Kind represents the type of trace event.
type Kind uint8

const (
	KindBegin Kind = iota + 1 // span start
	KindEnd                   // span end
	KindPoint                 // instant event
)

func (k Kind) String() string {
	switch k {
	case KindBegin:
		return "begin"
	case KindEnd:
		return "end"
	case KindPoint:
		return "point"
	default:
		return "unknown"
	}
}

// Scope is the granularity of an event. Lower values are coarser.
type Scope uint8

const (
	ScopeBatch  Scope = iota + 1 // a batch of lambdas
	ScopePass                    // one lowering pass (build, optimize, rescope)
	ScopeLambda                  // one lambda being lowered
	ScopeState                   // individual machine states
)

func (s Scope) String() string {
	switch s {
	case ScopeBatch:
		return "batch"
	case ScopePass:
		return "pass"
	case ScopeLambda:
		return "lambda"
	case ScopeState:
		return "state"
	default:
		return "unknown"
	}
}

// Event is a single trace record.
type Event struct {
	Time   time.Time
	Seq    uint64
	Kind   Kind
	Scope  Scope
	SpanID uint64
	Parent uint64 // 0 for roots
	Name   string
	Detail string
	Attrs  []Attr
}

// Attr is an ordered key/value pair attached to an event.
type Attr struct {
	Key   string
	Value string
}

// A builds an Attr from any value.
func A(key string, value any) Attr {
	return Attr{Key: key, Value: fmt.Sprint(value)}
}

// Level controls tracing verbosity.
type Level uint8

const (
	LevelOff    Level = iota // no tracing
	LevelPhase               // batch and pass boundaries
	LevelDetail              // per-lambda events
	LevelDebug               // everything, including per-state points
)

func (l Level) String() string {
	switch l {
	case LevelOff:
		return "off"
	case LevelPhase:
		return "phase"
	case LevelDetail:
		return "detail"
	case LevelDebug:
		return "debug"
	default:
		return "unknown"
	}
}

// ParseLevel converts a string to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off":
		return LevelOff, nil
	case "phase":
		return LevelPhase, nil
	case "detail":
		return LevelDetail, nil
	case "debug":
		return LevelDebug, nil
	}
	return LevelOff, fmt.Errorf("invalid trace level: %q (expected: off|phase|detail|debug)", s)
}

// ShouldEmit reports whether events of scope pass at this level.
func (l Level) ShouldEmit(scope Scope) bool {
	switch l {
	case LevelPhase:
		return scope <= ScopePass
	case LevelDetail:
		return scope <= ScopeLambda
	case LevelDebug:
		return true
	}
	return false
}
