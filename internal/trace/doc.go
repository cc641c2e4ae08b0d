// Package trace records structured events emitted while lowering expression
// trees into state machines.
//
// Events form spans (begin/end pairs) and instant points. Scopes go from the
// coarsest (a whole batch run) down to individual machine states, and the
// configured Level decides which scopes reach the sink.
//
// Sinks:
//   - stream: every event is formatted and written immediately (text or ndjson)
//   - ring:   the last N events are kept in memory and dumped on demand
//   - both:   fan-out to a stream and a ring
//
// The lowering entry points take a Tracer through context; when none is
// attached Nop is used and Begin/Point cost a single interface check.
package trace
