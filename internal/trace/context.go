package trace

import "context"

type ctxKey struct{}

// FromContext returns the tracer carried by ctx, or Nop. Callers can
// always trace unconditionally; an untraced context costs nothing.
func FromContext(ctx context.Context) Tracer {
	if ctx == nil {
		return Nop
	}
	if t, ok := ctx.Value(ctxKey{}).(Tracer); ok {
		return t
	}
	return Nop
}

// WithTracer attaches t to the context. A nil tracer is replaced with
// Nop so FromContext never hands out nil.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	if t == nil {
		t = Nop
	}
	return context.WithValue(ctx, ctxKey{}, t)
}
