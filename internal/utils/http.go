package utils

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GetRoutePattern resolves the chi route pattern of a request, falling back
// to a fresh route-context match when the middleware runs before routing.
// Used to label request metrics without exploding cardinality on path params.
func GetRoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}

	routePath := r.URL.Path
	if r.URL.RawPath != "" {
		routePath = r.URL.RawPath
	}

	tctx := chi.NewRouteContext()
	if !rctx.Routes.Match(tctx, r.Method, routePath) {
		return "undefined"
	}

	// Match mutates tctx with the resolved pattern.
	return tctx.RoutePattern()
}
