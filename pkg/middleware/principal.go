package middleware

import (
	"net/http"
	"strconv"

	"github.com/knossos-io/knossos/pkg/contextkeys"
)

// Header set by the edge gateway after it has authenticated the caller.
// Knossos itself never sees credentials; it trusts the gateway's identity
// assertion.
const (
	UserIDHeader = "X-Knossos-User-ID"
)

// Principal identifies the authenticated caller of a request.
type Principal struct {
	UserID int64
}

// PrincipalMiddleware extracts the caller identity asserted by the gateway
type PrincipalMiddleware struct {
	optional bool // If true, allow requests without an identity header
}

// NewPrincipalMiddleware creates a new principal extraction middleware
func NewPrincipalMiddleware(optional bool) *PrincipalMiddleware {
	return &PrincipalMiddleware{optional: optional}
}

// Handler wraps an HTTP handler with principal extraction
func (m *PrincipalMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(UserIDHeader)
		if header == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			m.unauthorizedResponse(w, "missing identity header")
			return
		}

		userID, err := strconv.ParseInt(header, 10, 64)
		if err != nil || userID <= 0 {
			m.unauthorizedResponse(w, "invalid identity header")
			return
		}

		ctx := contextkeys.WithPrincipal(r.Context(), &Principal{UserID: userID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *PrincipalMiddleware) unauthorizedResponse(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + message + `"}`))
}

// GetPrincipal extracts the principal from a request
func GetPrincipal(r *http.Request) *Principal {
	val := r.Context().Value(contextkeys.PrincipalKey)
	if val == nil {
		return nil
	}
	principal, ok := val.(*Principal)
	if !ok {
		return nil
	}
	return principal
}
