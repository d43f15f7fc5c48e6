package obs

import (
	"context"

	"github.com/go-chi/chi/v5"
)

type routeKey struct{}

// WithRoute pins the route label for ctx. Requests served by chi do not need
// it; it exists for handlers invoked outside the router.
func WithRoute(ctx context.Context, pattern string) context.Context {
	return context.WithValue(ctx, routeKey{}, pattern)
}

// Route returns the matched route pattern, e.g. /api/v1/admin/orders/{id}/status.
// Outer middleware must call it after the router has run; before that chi has
// not resolved the pattern and Route returns "".
func Route(ctx context.Context) string {
	if v, ok := ctx.Value(routeKey{}).(string); ok && v != "" {
		return v
	}
	if rc := chi.RouteContext(ctx); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}
