// Package diag defines the diagnostic model used by the lowering engine.
//
// Diagnostics report misuse that is detectable before a machine runs: an
// await on a value with no awaiter, a suspension point inside a catch filter
// or a plain lambda, a jump into a protected region. They also carry
// internal defects recovered from the builder so callers never see a panic.
//
// A Diagnostic has a Severity, a numeric Code with a stable ID (LOW, CHK,
// EVL, INT ranges), a message and a Location naming the lambda and the
// expression node. Producers emit through a Reporter; BagReporter collects
// into a Bag, which sorts and deduplicates deterministically. AsError turns
// a bag with errors into an *Error for explicit error returns.
package diag
