// Package trace provides a tracing subsystem for the prex analyzer.
//
// The trace package enables tracking of analysis runs, per-function
// refinement loops, and individual fact application to help diagnose
// performance issues and hangs.
//
// # Usage
//
// Enable tracing via command-line flags:
//
//	prex analyze --trace=- --trace-level=phase profile.yaml
//
// # Architecture
//
// The package provides several tracer implementations:
//
//   - NopTracer: Zero-overhead no-op tracer when disabled
//   - StreamTracer: Immediate write to output (file/stderr)
//   - RingTracer: Circular buffer for crash dumps
//   - MultiTracer: Combines multiple tracers
//
// # Levels
//
// Tracing verbosity is controlled by levels:
//
//   - LevelOff: No tracing
//   - LevelError: Only crash dumps
//   - LevelPhase: Run and function boundaries
//   - LevelDetail: Refinement iteration events
//   - LevelDebug: Everything including individual facts
//
// # Scopes
//
// Events are categorized by scope:
//
//   - ScopeRun: Top-level CLI operations
//   - ScopeFunction: Per-function analysis
//   - ScopeIteration: Refinement loop iterations
//   - ScopeFact: Individual fact application (most detailed)
//
// # Context Propagation
//
// Tracers are propagated through the analysis pipeline via context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	t := trace.FromContext(ctx)
//
//	span := trace.Begin(t, trace.ScopeFunction, "analyze", parentID)
//	defer span.End("")
package trace
