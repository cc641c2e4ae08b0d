package batch

import "time"

// Stage describes one step of running a sample.
type Stage string

const (
	// StageLower rewrites the sample into a state machine.
	StageLower Stage = "lower"
	// StageRun compiles the lowered tree, calls it and settles its handle.
	StageRun Stage = "run"
	// StageCheck compares the outcome with the expectation.
	StageCheck Stage = "check"
)

// Status captures progress state within a stage.
type Status string

const (
	// StatusQueued indicates the sample is waiting to start.
	StatusQueued Status = "queued"
	// StatusWorking indicates the sample is in the given stage.
	StatusWorking Status = "working"
	// StatusDone indicates the sample finished and matched.
	StatusDone Status = "done"
	// StatusCached indicates the record came from the report cache.
	StatusCached Status = "cached"
	// StatusError indicates the sample failed.
	StatusError Status = "error"
)

// Event reports progress for a sample (or for the whole batch when Sample
// is empty).
type Event struct {
	Sample  string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events. Sinks are called from several
// goroutines.
type ProgressSink interface {
	OnEvent(Event)
}

// Timings holds stage durations.
type Timings struct {
	stages map[Stage]time.Duration
}

// Set stores a duration for the given stage.
func (t *Timings) Set(stage Stage, dur time.Duration) {
	if t == nil {
		return
	}
	if t.stages == nil {
		t.stages = make(map[Stage]time.Duration)
	}
	t.stages[stage] = dur
}

// Has reports whether a duration for stage is recorded.
func (t Timings) Has(stage Stage) bool {
	_, ok := t.stages[stage]
	return ok
}

// Duration returns the recorded duration for stage.
func (t Timings) Duration(stage Stage) time.Duration {
	return t.stages[stage]
}

// Sum returns the sum of durations across the provided stages.
func (t Timings) Sum(stages ...Stage) time.Duration {
	var total time.Duration
	for _, stage := range stages {
		total += t.stages[stage]
	}
	return total
}
