package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/knossos-io/knossos/pkg/audit"
	"github.com/knossos-io/knossos/pkg/contextkeys"
)

func TestRequestIDMiddleware_Generates(t *testing.T) {
	var ctxID, auditID string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = contextkeys.GetRequestID(r.Context())
		auditID = audit.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orgs", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if ctxID == "" {
		t.Fatal("expected a generated request ID in context")
	}
	if auditID != ctxID {
		t.Errorf("audit request ID %q does not match context ID %q", auditID, ctxID)
	}
	if got := rec.Header().Get(RequestIDHeader); got != ctxID {
		t.Errorf("response header %q does not match context ID %q", got, ctxID)
	}
}

func TestRequestIDMiddleware_PropagatesInbound(t *testing.T) {
	var ctxID string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = contextkeys.GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orgs", nil)
	req.Header.Set(RequestIDHeader, "gateway-req-123")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if ctxID != "gateway-req-123" {
		t.Errorf("expected inbound request ID to be preserved, got %q", ctxID)
	}
	if got := rec.Header().Get(RequestIDHeader); got != "gateway-req-123" {
		t.Errorf("response header = %q, want gateway-req-123", got)
	}
}
