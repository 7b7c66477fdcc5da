package middleware

import (
	"context"
	"net/http"

	"evocrm/internal/service"
)

// VerboseContext stamps the -verbose flag into every request context so
// handlers and the services below them can decide whether to mask sensitive
// identifiers in logs.
func VerboseContext(verbose bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), service.VerboseContextKey, verbose)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
