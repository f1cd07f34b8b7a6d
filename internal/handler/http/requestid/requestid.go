// Package requestid tags admin API requests with an ID that is echoed in
// the response and attached to the request's logger.
package requestid

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"feed-monitor/internal/observability/logging"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"

	// Header is the HTTP header carrying the request ID.
	Header = "X-Request-ID"

	maxLength = 128
)

// FromContext returns the request ID in ctx, or "".
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithRequestID stores id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// Middleware reuses a caller-supplied X-Request-ID (up to 128 bytes) or
// generates a UUID. The ID is set on the response and stored in the request
// context together with a child of base carrying a request_id attribute,
// retrievable with logging.FromContext.
func Middleware(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(Header)
			if id == "" || len(id) > maxLength {
				id = uuid.NewString()
			}
			w.Header().Set(Header, id)

			ctx := WithRequestID(r.Context(), id)
			ctx = logging.WithLogger(ctx, base.With(slog.String("request_id", id)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
