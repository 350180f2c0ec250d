// Package api assembles the HTTP surface of the platform: one gorilla/mux
// router wired with the identity, organization, rate limiting, and audit
// middleware, and one handler group per domain (organizations, teams,
// workspaces, knowledge entries, knowledge groups, filters, audit trail).
//
// Handlers stay thin. They parse the request, call the domain service, and
// translate domain errors to HTTP status codes through writeDomainError.
// The caller's identity comes from the gateway-asserted header handled by
// pkg/middleware; the organization is resolved once per request by the org
// context middleware and read back with middleware.GetOrganization.
package api
