// Package reqid adapts the request-ID middleware idiom from this
// codebase's router middleware into a plain net/http wrapper: a
// UUIDv7 request ID stamped on every request, echoed back to the
// client and available to handlers for log correlation.
package reqid

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey struct{}

// HeaderName is the header used both to accept a client-supplied ID and
// to echo back the one this server assigned.
const HeaderName = "X-Request-Id"

// Middleware stamps a request ID onto the context and response,
// reusing a client-supplied value when present rather than always
// minting a new one.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderName)
		if id == "" {
			id = generate()
		}

		w.Header().Set(HeaderName, id)
		ctx := context.WithValue(r.Context(), contextKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext returns the request ID stamped by Middleware, or "" if
// none was set (e.g. in a test that calls a handler directly).
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// generate mints a time-ordered, lexicographically sortable request ID.
func generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
