package trace

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Format is the on-wire representation of events.
type Format uint8

const (
	FormatAuto   Format = iota // pick from the output path
	FormatText                 // human-readable
	FormatNDJSON               // one JSON object per line
)

// ParseFormat converts a string to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return FormatAuto, nil
	case "text":
		return FormatText, nil
	case "ndjson", "json":
		return FormatNDJSON, nil
	}
	return FormatAuto, fmt.Errorf("invalid trace format: %q (expected: auto|text|ndjson)", s)
}

// FormatEvent renders ev in the given format, newline terminated.
func FormatEvent(ev *Event, format Format) []byte {
	if format == FormatNDJSON {
		return formatJSON(ev)
	}
	return formatText(ev)
}

func formatJSON(ev *Event) []byte {
	type wire struct {
		Time   string            `json:"time"`
		Seq    uint64            `json:"seq"`
		Kind   string            `json:"kind"`
		Scope  string            `json:"scope"`
		Span   uint64            `json:"span,omitempty"`
		Parent uint64            `json:"parent,omitempty"`
		Name   string            `json:"name"`
		Detail string            `json:"detail,omitempty"`
		Attrs  map[string]string `json:"attrs,omitempty"`
	}
	w := wire{
		Time:   ev.Time.Format("2006-01-02T15:04:05.000000Z07:00"),
		Seq:    ev.Seq,
		Kind:   ev.Kind.String(),
		Scope:  ev.Scope.String(),
		Span:   ev.SpanID,
		Parent: ev.Parent,
		Name:   ev.Name,
		Detail: ev.Detail,
	}
	if len(ev.Attrs) > 0 {
		w.Attrs = make(map[string]string, len(ev.Attrs))
		for _, a := range ev.Attrs {
			w.Attrs[a.Key] = a.Value
		}
	}
	data, err := json.Marshal(w)
	if err != nil {
		data = fmt.Appendf(nil, `{"seq":%d,"error":%q}`, ev.Seq, err.Error())
	}
	return append(data, '\n')
}

// text layout: "#seq scope  → name (detail) k=v k=v"
func formatText(ev *Event) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "#%-6d %-6s ", ev.Seq, ev.Scope)
	// indent by scope depth so nested spans read as a tree
	if ev.Scope > ScopeBatch {
		sb.WriteString(strings.Repeat("  ", int(ev.Scope-ScopeBatch)))
	}
	switch ev.Kind {
	case KindBegin:
		sb.WriteString("→ ")
	case KindEnd:
		sb.WriteString("← ")
	case KindPoint:
		sb.WriteString("• ")
	}
	sb.WriteString(ev.Name)
	if ev.Detail != "" {
		sb.WriteString(" (")
		sb.WriteString(ev.Detail)
		sb.WriteString(")")
	}
	for _, a := range ev.Attrs {
		sb.WriteByte(' ')
		sb.WriteString(a.Key)
		sb.WriteByte('=')
		sb.WriteString(a.Value)
	}
	sb.WriteByte('\n')
	return []byte(sb.String())
}

// Stream writes each event as soon as it arrives.
type Stream struct {
	mu     sync.Mutex
	w      io.Writer
	level  Level
	format Format
}

// NewStream builds a streaming tracer writing to w.
func NewStream(w io.Writer, level Level, format Format) *Stream {
	return &Stream{w: w, level: level, format: format}
}

func (s *Stream) Emit(ev *Event) {
	if !s.level.ShouldEmit(ev.Scope) {
		return
	}
	ev.Seq = NextSeq()
	data := FormatEvent(ev, s.format)

	s.mu.Lock()
	defer s.mu.Unlock()
	// trace output is best effort
	_, _ = s.w.Write(data) //nolint:errcheck
}

func (s *Stream) Flush() error {
	if f, ok := s.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func (s *Stream) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	if s.w == os.Stderr || s.w == os.Stdout {
		return nil
	}
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Stream) Level() Level { return s.level }

// Ring keeps the most recent events in a circular buffer.
type Ring struct {
	mu     sync.RWMutex
	events []Event
	head   int
	full   bool
	level  Level
}

// NewRing builds a ring tracer holding up to size events.
func NewRing(size int, level Level) *Ring {
	if size <= 0 {
		size = 4096
	}
	return &Ring{events: make([]Event, size), level: level}
}

func (r *Ring) Emit(ev *Event) {
	if !r.level.ShouldEmit(ev.Scope) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *ev
	stored.Seq = NextSeq()
	stored.Attrs = append([]Attr(nil), ev.Attrs...)
	r.events[r.head] = stored
	r.head = (r.head + 1) % len(r.events)
	if r.head == 0 {
		r.full = true
	}
}

// Snapshot returns the stored events oldest first.
func (r *Ring) Snapshot() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.full {
		return append([]Event(nil), r.events[:r.head]...)
	}
	out := make([]Event, 0, len(r.events))
	out = append(out, r.events[r.head:]...)
	return append(out, r.events[:r.head]...)
}

// Dump writes the snapshot to w.
func (r *Ring) Dump(w io.Writer, format Format) error {
	for _, ev := range r.Snapshot() {
		if _, err := w.Write(FormatEvent(&ev, format)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Ring) Flush() error { return nil }
func (r *Ring) Close() error { return nil }
func (r *Ring) Level() Level { return r.level }
