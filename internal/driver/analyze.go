package driver

import (
	"context"
	"fmt"
	"time"

	"prex/internal/constraints"
	"prex/internal/observ"
	"prex/internal/schema"
	"prex/internal/shape"
	"prex/internal/trace"
)

// AnalyzeFunction runs the refinement loop for one function. It owns
// the function's precondition for the whole loop and never shares it;
// the returned result carries the last consistent aggregate even on
// error paths.
func AnalyzeFunction(ctx context.Context, ts *schema.Interner, mod *schema.ModuleTypes, exec Executor, function string, opts Options) (res FunctionResult) {
	res = FunctionResult{Function: function, Status: StatusError}
	start := time.Now()

	sig, ok := mod.Function(function)
	if !ok {
		res.Err = fmt.Errorf("driver: function %q not in module profile", function)
		emit(opts.Sink, Event{Run: opts.Run, Function: function, Status: EventError, Err: res.Err, Elapsed: time.Since(start)})
		return res
	}

	budget := opts.MaxIterations
	if budget <= 0 {
		budget = DefaultMaxIterations
	}

	tr := trace.FromContext(ctx)
	fnSpan := trace.Begin(tr, trace.ScopeFunction, "fn:"+function, 0)
	defer func() { fnSpan.End(string(res.Status)) }()

	timer := observ.NewTimer()
	defer func() { res.Timings = timer.Report() }()

	done := func() {
		emit(opts.Sink, Event{
			Run:       opts.Run,
			Function:  function,
			Status:    EventDone,
			Iteration: res.Iterations,
			Outcome:   res.Status,
			Elapsed:   time.Since(start),
		})
	}

	cs := constraints.Empty(ts, sig.Args)
	res.Final = cs

	for iter := 1; iter <= budget; iter++ {
		res.Iterations = iter
		if err := ctx.Err(); err != nil {
			res.Err = err
			emit(opts.Sink, Event{Run: opts.Run, Function: function, Status: EventError, Iteration: iter, Err: err, Elapsed: time.Since(start)})
			return res
		}

		iterSpan := trace.Begin(tr, trace.ScopeIteration, fmt.Sprintf("iteration#%d", iter), fnSpan.ID())

		emit(opts.Sink, Event{Run: opts.Run, Function: function, Status: EventExecuting, Iteration: iter})
		phase := timer.Begin(fmt.Sprintf("execute#%d", iter))
		out, err := exec.Execute(ctx, function, cs)
		timer.End(phase, "")
		if err != nil {
			iterSpan.End("execute failed")
			res.Err = fmt.Errorf("driver: execute %s: %w", function, err)
			emitError(tr, function, res.Err)
			emit(opts.Sink, Event{Run: opts.Run, Function: function, Status: EventError, Iteration: iter, Err: res.Err, Elapsed: time.Since(start)})
			return res
		}

		if out.Bug != nil {
			iterSpan.End("bug")
			res.Status = StatusBug
			res.Bug = out.Bug
			done()
			return res
		}

		if len(out.Facts) == 0 {
			iterSpan.End("converged")
			if cs.IsEmpty() {
				res.Status = StatusClean
			} else {
				res.Status = StatusRefined
			}
			done()
			return res
		}

		emit(opts.Sink, Event{Run: opts.Run, Function: function, Status: EventRefining, Iteration: iter})
		phase = timer.Begin(fmt.Sprintf("refine#%d", iter))
		applied := 0
		progress := false
		for _, fact := range out.Facts {
			next, red, err := cs.AddConstraint(ts, mod, fact)
			emitFact(tr, iterSpan.ID(), fact, err)
			if err != nil {
				res.Incidents = append(res.Incidents, Incident{Iteration: iter, Fact: fact, Err: err})
				continue
			}
			cs = next
			res.Final = cs
			applied++
			if red == shape.RedundancyNone {
				progress = true
			}
		}
		timer.End(phase, fmt.Sprintf("%d/%d facts", applied, len(out.Facts)))
		iterSpan.End(fmt.Sprintf("%d facts", len(out.Facts)))

		// Every fact either failed or was already satisfied: the next
		// execution would replay this one verbatim.
		if !progress {
			res.Status = StatusStalled
			done()
			return res
		}
	}

	res.Status = StatusBudgetExhausted
	done()
	return res
}

// emitError traces an executor failure at run scope, so it survives
// even the error-only trace level.
func emitError(tr trace.Tracer, function string, err error) {
	if tr == nil || !tr.Level().ShouldEmit(trace.ScopeRun) {
		return
	}
	tr.Emit(&trace.Event{
		Time:   time.Now(),
		Seq:    trace.NextSeq(),
		Kind:   trace.KindPoint,
		Scope:  trace.ScopeRun,
		Name:   "error",
		Detail: function + ": " + err.Error(),
	})
}

// emitFact traces one fact application at the finest scope.
func emitFact(tr trace.Tracer, parent uint64, fact constraints.NewConstraint, err error) {
	if tr == nil || !tr.Level().ShouldEmit(trace.ScopeFact) {
		return
	}
	detail := fact.String()
	if err != nil {
		detail += " (skipped: " + err.Error() + ")"
	}
	tr.Emit(&trace.Event{
		Time:     time.Now(),
		Seq:      trace.NextSeq(),
		Kind:     trace.KindPoint,
		Scope:    trace.ScopeFact,
		ParentID: parent,
		Name:     "fact",
		Detail:   detail,
	})
}
