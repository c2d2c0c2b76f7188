package replay

import (
	"context"
	"sync"

	"prex/internal/constraints"
	"prex/internal/driver"
)

// Executor serves a script back to the refinement loop, one batch per
// execution. Once a function's recording runs out, every further
// execution of it reports clean, which is exactly how a converged
// engine behaves. Safe for concurrent use; each function keeps its own
// position in the script.
type Executor struct {
	mu     sync.Mutex
	script *Script
	served map[string]int
}

// NewExecutor wraps a script in a driver executor.
func NewExecutor(s *Script) *Executor {
	return &Executor{script: s, served: make(map[string]int)}
}

// Execute implements driver.Executor. The current precondition is
// ignored: the script already fixed what each run found.
func (e *Executor) Execute(ctx context.Context, function string, _ *constraints.Constraints) (driver.Result, error) {
	if err := ctx.Err(); err != nil {
		return driver.Result{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	batches := e.script.batches[function]
	i := e.served[function]
	if i >= len(batches) {
		return driver.Result{}, nil
	}
	e.served[function] = i + 1

	b := batches[i]
	if b.bug != nil {
		return driver.Result{Bug: b.bug}, nil
	}
	// The driver must not alias the script's backing array.
	facts := make([]constraints.NewConstraint, len(b.facts))
	copy(facts, b.facts)
	return driver.Result{Facts: facts}, nil
}
