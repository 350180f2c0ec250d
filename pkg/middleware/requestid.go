package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/knossos-io/knossos/pkg/audit"
	"github.com/knossos-io/knossos/pkg/contextkeys"
)

// RequestIDHeader carries the request correlation ID
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware assigns each request a correlation ID. An inbound
// X-Request-ID from the gateway is honored so IDs stay stable across hops.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := contextkeys.WithRequestID(r.Context(), requestID)
		ctx = audit.WithRequestID(ctx, requestID)

		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
