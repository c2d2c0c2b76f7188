package driver

import (
	"context"
	"runtime"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"prex/internal/schema"
	"prex/internal/trace"
)

// AnalyzeModule fans the refinement loop out across the entry functions
// with bounded parallelism. Every function's loop owns an independent
// precondition, so workers share nothing but the read-only schema and
// module tables. Results land at per-function indices; order matches
// the input.
func AnalyzeModule(ctx context.Context, ts *schema.Interner, mod *schema.ModuleTypes, exec Executor, entries []string, opts Options) (*ModuleResult, error) {
	if opts.Run == "" {
		opts.Run = uuid.NewString()
	}
	if len(entries) == 0 {
		return &ModuleResult{Run: opts.Run}, nil
	}

	tr := trace.FromContext(ctx)
	span := trace.Begin(tr, trace.ScopeRun, "analyze", 0)
	span.WithExtra("run", opts.Run)
	defer span.End("")

	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	for _, fn := range entries {
		emit(opts.Sink, Event{Run: opts.Run, Function: fn, Status: EventQueued})
	}

	// Indices are unique per goroutine, no mutex needed.
	results := make([]FunctionResult, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(entries)))

	for i, fn := range entries {
		g.Go(func(i int, fn string) func() error {
			return func() error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}

				results[i] = AnalyzeFunction(gctx, ts, mod, exec, fn, opts)
				return nil
			}
		}(i, fn))
	}

	if err := g.Wait(); err != nil {
		return &ModuleResult{Run: opts.Run, Functions: results}, err
	}

	return &ModuleResult{Run: opts.Run, Functions: results}, nil
}
