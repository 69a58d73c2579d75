package worklog

import "context"

type ctxKey struct{}

// NewContext returns a context carrying the unit, so call sites deep in
// application code can record against the right buffer.
func NewContext(ctx context.Context, u *Unit) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromContext extracts the unit placed by NewContext, if any.
func FromContext(ctx context.Context) (*Unit, bool) {
	u, ok := ctx.Value(ctxKey{}).(*Unit)
	return u, ok
}
