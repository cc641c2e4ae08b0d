// Package report turns lowering results into serializable records, renders
// them as text and keeps them in an on-disk cache.
package report

import (
	"fmt"

	"fortio.org/safecast"

	"asyncexpr/internal/lower"
	"asyncexpr/internal/observ"
)

// schemaVersion is bumped whenever Record changes shape.
const schemaVersion uint16 = 1

// Record summarizes one lowered and executed lambda.
type Record struct {
	Schema   uint16          `msgpack:"schema"`
	Name     string          `msgpack:"name"`
	Title    string          `msgpack:"title,omitempty"`
	Kind     string          `msgpack:"kind"`
	Machines []MachineRecord `msgpack:"machines"`
	Value    string          `msgpack:"value,omitempty"`
	Err      string          `msgpack:"err,omitempty"`
	// Failure is set when the run did not match its expectation.
	Failure string        `msgpack:"failure,omitempty"`
	Steps   uint32        `msgpack:"steps"`
	Timings observ.Report `msgpack:"timings"`
}

// MachineRecord describes one state machine of a lowering result.
type MachineRecord struct {
	Name     string        `msgpack:"name"`
	Kind     string        `msgpack:"kind"`
	FastPath bool          `msgpack:"fast_path"`
	States   []StateRecord `msgpack:"states"`
}

// StateRecord is a single machine state.
type StateRecord struct {
	ID       uint16 `msgpack:"id"`
	Name     string `msgpack:"name,omitempty"`
	Next     int32  `msgpack:"next"`
	Terminal bool   `msgpack:"terminal"`
}

// OK reports whether the run matched its expectation.
func (r *Record) OK() bool { return r != nil && r.Failure == "" }

// StateCount sums the states over every machine.
func (r *Record) StateCount() int {
	n := 0
	for _, m := range r.Machines {
		n += len(m.States)
	}
	return n
}

// FromResult builds the machine part of a record.
func FromResult(name string, res *lower.Result) (*Record, error) {
	rec := &Record{Schema: schemaVersion, Name: name}
	if res == nil {
		return rec, nil
	}
	rec.Timings = res.Timings
	if root := res.Root(); root != nil {
		rec.Kind = root.Kind.String()
	}
	for _, m := range res.Machines {
		mr := MachineRecord{Name: m.Name, Kind: m.Kind.String(), FastPath: m.FastPath}
		for _, st := range m.States {
			id, err := safecast.Conv[uint16](st.ID)
			if err != nil {
				return nil, fmt.Errorf("%s: state id %d: %w", m.Name, st.ID, err)
			}
			next := int32(-1)
			if c := st.Continuation(); c != nil {
				if next, err = safecast.Conv[int32](c.ID); err != nil {
					return nil, fmt.Errorf("%s: continuation of state %d: %w", m.Name, st.ID, err)
				}
			}
			mr.States = append(mr.States, StateRecord{ID: id, Name: st.Name, Next: next, Terminal: st.Terminal()})
		}
		rec.Machines = append(rec.Machines, mr)
	}
	return rec, nil
}

// SetOutcome fills the run part of a record.
func (r *Record) SetOutcome(value any, err error, steps int, failure error) {
	if value != nil {
		r.Value = fmt.Sprint(value)
	}
	if err != nil {
		r.Err = err.Error()
	}
	if failure != nil {
		r.Failure = failure.Error()
	}
	if n, err := safecast.Conv[uint32](steps); err == nil {
		r.Steps = n
	}
}
