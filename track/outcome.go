// Package track provides the execution-tracking wrapper shared by event
// dispatch and scheduler firing, plus owner-scoped supervision of
// in-flight work.
package track

import "time"

// Outcome classifies a single tracked execution.
type Outcome int

const (
	// OutcomeSuccess means the unit returned normally.
	OutcomeSuccess Outcome = iota
	// OutcomeError means the unit returned an error or panicked.
	OutcomeError
	// OutcomeDIFailure means argument resolution failed before the
	// handler body ran. Set by the caller, not by Run itself.
	OutcomeDIFailure
	// OutcomeCancelled means the unit observed cancellation.
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeError:
		return "error"
	case OutcomeDIFailure:
		return "di_failure"
	case OutcomeCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Result is the record of one tracked execution.
type Result struct {
	Outcome  Outcome
	Duration time.Duration
	Err      error
}
