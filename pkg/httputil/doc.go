// Package httputil carries the request/response plumbing shared by every
// API handler group.
//
// # Responses
//
// Success paths:
//
//	httputil.WriteJSON(w, http.StatusOK, workspace)
//	httputil.WriteCreated(w, org)
//	httputil.WriteNoContent(w)
//	httputil.WriteSuccessMessage(w, "Chunks replaced", nil)
//
// Error paths share one envelope ({"error": "..."}):
//
//	httputil.WriteValidationError(w, "name is required")
//	httputil.WriteForbidden(w, "Organization admin role required")
//	httputil.WriteNotFoundError(w, "Workspace not found")
//	httputil.WriteConflict(w, err.Error())
//
// # Request parsing
//
//	var req CreateWorkspaceRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // 400 already written
//	}
//	orgID, ok := httputil.ParsePathInt64OrError(w, r, "org_id")
//	limit, err := httputil.ParseQueryInt(r, "limit", 100)
//
// # Middleware
//
// ContentTypeMiddleware and MaxBytesMiddleware guard the API subrouter
// against non-JSON and oversized bodies; Chain composes handler wrappers
// outside of mux.
//
// Authentication and organization scoping live in pkg/middleware, not here.
package httputil
