package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/knossos-io/knossos/pkg/access"
	"github.com/knossos-io/knossos/pkg/contextkeys"
	"github.com/knossos-io/knossos/pkg/orgs"
)

// OrgResolver is the subset of the organization service the middleware needs
type OrgResolver interface {
	GetOrganization(ctx context.Context, id int64) (*orgs.Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*orgs.Organization, error)
}

// OrgContextMiddleware resolves the {org_id} or {org_slug} route variable and
// attaches the organization to the request context. Lookups are cached
// briefly so hot organizations do not hit the database on every request.
type OrgContextMiddleware struct {
	resolver OrgResolver
	byID     *expirable.LRU[int64, *orgs.Organization]
	bySlug   *expirable.LRU[string, *orgs.Organization]
}

const (
	orgCacheSize = 1024
	orgCacheTTL  = 30 * time.Second
)

// NewOrgContextMiddleware creates a new organization context middleware
func NewOrgContextMiddleware(resolver OrgResolver) *OrgContextMiddleware {
	return &OrgContextMiddleware{
		resolver: resolver,
		byID:     expirable.NewLRU[int64, *orgs.Organization](orgCacheSize, nil, orgCacheTTL),
		bySlug:   expirable.NewLRU[string, *orgs.Organization](orgCacheSize, nil, orgCacheTTL),
	}
}

// Handler wraps an HTTP handler with organization resolution
func (m *OrgContextMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)

		if orgIDStr, ok := vars["org_id"]; ok {
			orgID, err := strconv.ParseInt(orgIDStr, 10, 64)
			if err != nil {
				http.Error(w, "Invalid organization ID", http.StatusBadRequest)
				return
			}

			org, err := m.resolveByID(r.Context(), orgID)
			if err != nil {
				m.resolveError(w, err)
				return
			}

			ctx := contextkeys.WithOrg(r.Context(), org)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if orgSlug, ok := vars["org_slug"]; ok {
			org, err := m.resolveBySlug(r.Context(), orgSlug)
			if err != nil {
				m.resolveError(w, err)
				return
			}

			ctx := contextkeys.WithOrg(r.Context(), org)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		// Route is not org-scoped
		next.ServeHTTP(w, r)
	})
}

func (m *OrgContextMiddleware) resolveByID(ctx context.Context, id int64) (*orgs.Organization, error) {
	if org, ok := m.byID.Get(id); ok {
		return org, nil
	}

	org, err := m.resolver.GetOrganization(ctx, id)
	if err != nil {
		return nil, err
	}

	m.byID.Add(id, org)
	m.bySlug.Add(org.Slug, org)
	return org, nil
}

func (m *OrgContextMiddleware) resolveBySlug(ctx context.Context, slug string) (*orgs.Organization, error) {
	if org, ok := m.bySlug.Get(slug); ok {
		return org, nil
	}

	org, err := m.resolver.GetOrganizationBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	m.bySlug.Add(slug, org)
	m.byID.Add(org.ID, org)
	return org, nil
}

func (m *OrgContextMiddleware) resolveError(w http.ResponseWriter, err error) {
	if errors.Is(err, access.ErrNotFound) {
		http.Error(w, "Organization not found", http.StatusNotFound)
		return
	}
	http.Error(w, "Failed to resolve organization", http.StatusInternalServerError)
}

// GetOrganization extracts the resolved organization from a request
func GetOrganization(r *http.Request) *orgs.Organization {
	org, ok := r.Context().Value(contextkeys.OrgKey).(*orgs.Organization)
	if !ok {
		return nil
	}
	return org
}
