// Package httpmiddleware provides HTTP server middleware: panic recovery,
// CORS, rate limiting, request IDs, logging, and OpenTelemetry
// instrumentation.
package httpmiddleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Middleware wraps an http.Handler with additional behaviour.
type Middleware func(http.Handler) http.Handler

// Wrap applies middlewares to h. The first middleware in the list is the
// outermost one, i.e. it sees the request first.
func Wrap(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RouteFinder resolves a request to its route pattern, e.g.
// "/products/{id}". Used for span names and log fields so that
// high-cardinality path segments do not explode metric labels.
type RouteFinder func(*http.Request) (string, bool)

// MakeRouteFinder builds a RouteFinder over a chi routing tree mounted at
// prefix. The prefix is stripped before matching and restored in the
// reported pattern.
func MakeRouteFinder(prefix string, routes chi.Routes) RouteFinder {
	return func(r *http.Request) (string, bool) {
		path, ok := strings.CutPrefix(r.URL.Path, prefix)
		if !ok {
			return "", false
		}
		rctx := chi.NewRouteContext()
		if routes.Match(rctx, r.Method, path) {
			return prefix + rctx.RoutePattern(), true
		}
		return "", false
	}
}
