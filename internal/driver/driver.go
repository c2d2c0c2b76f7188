// Package driver owns the refinement loop. For every entry function it
// alternates between the executor (one under-constrained run against
// the current precondition) and the constraint store (apply the facts
// the run's classifier derived), until the function comes back clean, a
// genuine bug is reported, the iteration budget runs out, or an
// iteration stops making progress.
//
// Each function's precondition is owned by exactly one goroutine for
// the whole loop; results only meet after the fan-out joins.
package driver

import (
	"context"

	"prex/internal/constraints"
	"prex/internal/observ"
)

// DefaultMaxIterations bounds the refinement loop when the caller does
// not.
const DefaultMaxIterations = 32

// Finding is the classifier's verdict that an execution hit a genuine
// bug rather than a missing precondition.
type Finding struct {
	Kind   string // e.g. "null-deref", "oob-write"
	Detail string
}

// Result is what one execution of a function under the current
// precondition produced: facts to strengthen the precondition with, a
// bug verdict, or neither (the run went through cleanly). When a result
// carries both, the bug wins and the facts are ignored.
type Result struct {
	Facts []constraints.NewConstraint
	Bug   *Finding
}

// Executor runs one under-constrained execution of a function against
// the given precondition. Implementations must not retain or modify the
// aggregate. The symbolic-execution engine lives behind this interface;
// the repo ships a recorded-facts implementation in internal/replay.
type Executor interface {
	Execute(ctx context.Context, function string, cs *constraints.Constraints) (Result, error)
}

// Status is the terminal state of one analyzed function.
type Status string

const (
	// StatusClean means the function executed without complaint and no
	// precondition was ever needed.
	StatusClean Status = "clean"
	// StatusRefined means execution succeeded under the inferred
	// non-trivial precondition.
	StatusRefined Status = "refined"
	// StatusBug means the classifier reported a genuine bug.
	StatusBug Status = "bug"
	// StatusBudgetExhausted means the iteration cap fired first.
	StatusBudgetExhausted Status = "budget-exhausted"
	// StatusStalled means an iteration produced facts but none of them
	// changed the precondition, so re-executing would reproduce the
	// same run forever.
	StatusStalled Status = "stalled"
	// StatusError means the executor itself failed.
	StatusError Status = "error"
)

// Incident records a fact that could not be applied. The loop skips the
// fact and carries on; the incident list is the audit trail.
type Incident struct {
	Iteration int
	Fact      constraints.NewConstraint
	Err       error
}

// FunctionResult is the outcome of analyzing one entry function.
type FunctionResult struct {
	Function   string
	Status     Status
	Final      *constraints.Constraints
	Bug        *Finding
	Iterations int
	Incidents  []Incident
	Timings    observ.Report
	Err        error // set when Status is StatusError
}

// Options tunes a run.
type Options struct {
	MaxIterations int    // per-function refinement budget (default DefaultMaxIterations)
	Jobs          int    // parallel functions (0 = GOMAXPROCS)
	Sink          Sink   // progress events (nil = none)
	Run           string // run identifier; generated when empty
}

// ModuleResult is the outcome of one run across all requested entry
// functions, in input order.
type ModuleResult struct {
	Run       string
	Functions []FunctionResult
}
