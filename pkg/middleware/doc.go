// Package middleware provides the HTTP middleware chain for the API server.
//
// # Principal extraction
//
// Authentication happens at the edge gateway; by the time a request reaches
// this service the gateway has already verified the caller and asserted
// their identity in the X-Knossos-User-ID header. PrincipalMiddleware parses
// that header into a Principal and puts it on the request context:
//
//	principal := middleware.GetPrincipal(r)
//	decision, err := resolver.CheckEntryAccess(ctx, principal.UserID, entryID)
//
// # Organization context
//
// OrgContextMiddleware resolves the {org_id} or {org_slug} route variable
// into an orgs.Organization, caching hot lookups for a short TTL:
//
//	orgMW := middleware.NewOrgContextMiddleware(orgService)
//	router.Use(orgMW.Handler)
//	...
//	org := middleware.GetOrganization(r)
//
// # Rate limiting
//
// Two interchangeable limiters are provided. RateLimitMiddleware keeps
// in-memory token buckets and is appropriate for single-instance
// deployments. DistributedRateLimitMiddleware shares fixed window counters
// through Redis and fails open when Redis is unreachable. Both key requests
// by principal when present and by client IP otherwise.
//
// # Request IDs
//
// RequestIDMiddleware assigns (or propagates) an X-Request-ID per request
// and threads it through the context for logging and the audit trail.
package middleware
