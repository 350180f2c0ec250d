package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/knossos-io/knossos/pkg/access"
	"github.com/knossos-io/knossos/pkg/orgs"
)

type mockOrgResolver struct {
	orgs     map[int64]*orgs.Organization
	slugToID map[string]int64
	idCalls  int
}

func (m *mockOrgResolver) GetOrganization(ctx context.Context, id int64) (*orgs.Organization, error) {
	m.idCalls++
	org, ok := m.orgs[id]
	if !ok {
		return nil, access.ErrNotFound
	}
	return org, nil
}

func (m *mockOrgResolver) GetOrganizationBySlug(ctx context.Context, slug string) (*orgs.Organization, error) {
	id, ok := m.slugToID[slug]
	if !ok {
		return nil, access.ErrNotFound
	}
	return m.orgs[id], nil
}

func newMockResolver() *mockOrgResolver {
	return &mockOrgResolver{
		orgs: map[int64]*orgs.Organization{
			1: {ID: 1, Name: "Acme Research", Slug: "acme"},
		},
		slugToID: map[string]int64{"acme": 1},
	}
}

func TestOrgContextMiddleware(t *testing.T) {
	t.Run("resolves organization by ID", func(t *testing.T) {
		middleware := NewOrgContextMiddleware(newMockResolver())
		handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			org := GetOrganization(r)
			if org == nil {
				t.Fatal("organization not found in context")
			}
			if org.ID != 1 {
				t.Errorf("expected org ID 1, got %d", org.ID)
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/orgs/1", nil)
		req = mux.SetURLVars(req, map[string]string{"org_id": "1"})
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	})

	t.Run("resolves organization by slug", func(t *testing.T) {
		middleware := NewOrgContextMiddleware(newMockResolver())
		handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			org := GetOrganization(r)
			if org == nil {
				t.Fatal("organization not found in context")
			}
			if org.Slug != "acme" {
				t.Errorf("expected org slug acme, got %s", org.Slug)
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/orgs/acme", nil)
		req = mux.SetURLVars(req, map[string]string{"org_slug": "acme"})
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	})

	t.Run("unknown organization returns 404", func(t *testing.T) {
		middleware := NewOrgContextMiddleware(newMockResolver())
		handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not run for unknown org")
		}))

		req := httptest.NewRequest(http.MethodGet, "/orgs/99", nil)
		req = mux.SetURLVars(req, map[string]string{"org_id": "99"})
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})

	t.Run("invalid organization ID returns 400", func(t *testing.T) {
		middleware := NewOrgContextMiddleware(newMockResolver())
		handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not run for invalid org ID")
		}))

		req := httptest.NewRequest(http.MethodGet, "/orgs/abc", nil)
		req = mux.SetURLVars(req, map[string]string{"org_id": "abc"})
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("route without org variables passes through", func(t *testing.T) {
		middleware := NewOrgContextMiddleware(newMockResolver())
		handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetOrganization(r) != nil {
				t.Error("expected no organization in context")
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	})

	t.Run("repeated lookups hit the cache", func(t *testing.T) {
		resolver := newMockResolver()
		middleware := NewOrgContextMiddleware(resolver)
		handler := middleware.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		for i := 0; i < 5; i++ {
			req := httptest.NewRequest(http.MethodGet, "/orgs/1", nil)
			req = mux.SetURLVars(req, map[string]string{"org_id": "1"})
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
			}
		}

		if resolver.idCalls != 1 {
			t.Errorf("expected 1 database lookup, got %d", resolver.idCalls)
		}
	})
}
