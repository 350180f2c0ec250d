package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/knossos-io/knossos/pkg/httputil"
	"github.com/knossos-io/knossos/pkg/middleware"
	"github.com/knossos-io/knossos/pkg/orgs"
	"github.com/knossos-io/knossos/pkg/workspaces"
)

// WorkspaceHandlers handles workspace, membership, and tree requests. All
// reads and mutations are resolved against the caller's access.
type WorkspaceHandlers struct {
	service *workspaces.Service
}

// NewWorkspaceHandlers creates a new WorkspaceHandlers
func NewWorkspaceHandlers(service *workspaces.Service) *WorkspaceHandlers {
	return &WorkspaceHandlers{service: service}
}

// RegisterRoutes registers workspace routes
func (h *WorkspaceHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/{org_id}/workspaces", h.CreateWorkspace).Methods("POST")
	router.HandleFunc("/orgs/{org_id}/workspaces", h.ListWorkspaces).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/workspaces/shared", h.ListSharedWorkspaces).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/workspaces/{workspace_id}", h.GetWorkspace).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/workspaces/{workspace_id}", h.UpdateWorkspace).Methods("PUT")
	router.HandleFunc("/orgs/{org_id}/workspaces/{workspace_id}", h.DeleteWorkspace).Methods("DELETE")

	// Membership
	router.HandleFunc("/orgs/{org_id}/workspaces/{workspace_id}/users", h.ListUsers).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/workspaces/{workspace_id}/users", h.AddUsers).Methods("POST")
	router.HandleFunc("/orgs/{org_id}/workspaces/{workspace_id}/users", h.RemoveUsers).Methods("DELETE")

	// Tree
	router.HandleFunc("/orgs/{org_id}/workspaces/{workspace_id}/children", h.GetChildren).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/workspaces/{workspace_id}/parent", h.GetParent).Methods("GET")
}

// CreateWorkspaceRequest is the payload for creating a workspace with its
// initial relations.
type CreateWorkspaceRequest struct {
	Name              string                     `json:"name"`
	Description       string                     `json:"description,omitempty"`
	OwnerUserID       *int64                     `json:"owner_user_id,omitempty"`
	OwnerTeamID       *int64                     `json:"owner_team_id,omitempty"`
	ParentWorkspaceID *int64                     `json:"parent_workspace_id,omitempty"`
	Relations         *workspaces.RelationBundle `json:"relations,omitempty"`
}

// CreateWorkspace creates a workspace and attaches its initial relations in
// one transaction
func (h *WorkspaceHandlers) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	org := middleware.GetOrganization(r)
	principal := middleware.GetPrincipal(r)
	if org == nil || principal == nil {
		httputil.WriteNotFoundError(w, "Organization not found")
		return
	}

	var req CreateWorkspaceRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	ws := &workspaces.Workspace{
		OrganizationID:    org.ID,
		Name:              req.Name,
		Description:       req.Description,
		OwnerUserID:       req.OwnerUserID,
		OwnerTeamID:       req.OwnerTeamID,
		ParentWorkspaceID: req.ParentWorkspaceID,
	}
	if err := h.service.Create(r.Context(), ws, req.Relations, principal.UserID); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, ws)
}

// ListWorkspaces lists workspaces the caller can access
func (h *WorkspaceHandlers) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	org := middleware.GetOrganization(r)
	principal := middleware.GetPrincipal(r)
	if org == nil || principal == nil {
		httputil.WriteNotFoundError(w, "Organization not found")
		return
	}

	result, err := h.service.List(r.Context(), org.ID, principal.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// ListSharedWorkspaces lists accessible workspaces the caller does not own
func (h *WorkspaceHandlers) ListSharedWorkspaces(w http.ResponseWriter, r *http.Request) {
	org := middleware.GetOrganization(r)
	principal := middleware.GetPrincipal(r)
	if org == nil || principal == nil {
		httputil.WriteNotFoundError(w, "Organization not found")
		return
	}

	result, err := h.service.ListShared(r.Context(), org.ID, principal.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// GetWorkspace retrieves a workspace the caller can access
func (h *WorkspaceHandlers) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	org, principal, workspaceID, ok := h.workspaceScope(w, r)
	if !ok {
		return
	}

	ws, err := h.service.Get(r.Context(), org.ID, workspaceID, principal.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ws)
}

// UpdateWorkspace applies a partial update
func (h *WorkspaceHandlers) UpdateWorkspace(w http.ResponseWriter, r *http.Request) {
	org, principal, workspaceID, ok := h.workspaceScope(w, r)
	if !ok {
		return
	}

	var req workspaces.UpdateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.service.Update(r.Context(), org.ID, workspaceID, principal.UserID, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	ws, err := h.service.Get(r.Context(), org.ID, workspaceID, principal.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ws)
}

// DeleteWorkspace deletes a workspace the caller can access
func (h *WorkspaceHandlers) DeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	org, principal, workspaceID, ok := h.workspaceScope(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), org.ID, workspaceID, principal.UserID); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// ListUsers lists explicit workspace members
func (h *WorkspaceHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	org, principal, workspaceID, ok := h.workspaceScope(w, r)
	if !ok {
		return
	}

	members, err := h.service.ListUsers(r.Context(), org.ID, workspaceID, principal.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, members)
}

// WorkspaceUsersRequest names the users to add or remove.
type WorkspaceUsersRequest struct {
	UserIDs []int64 `json:"user_ids"`
}

// AddUsers adds explicit members to a workspace
func (h *WorkspaceHandlers) AddUsers(w http.ResponseWriter, r *http.Request) {
	org, principal, workspaceID, ok := h.workspaceScope(w, r)
	if !ok {
		return
	}

	var req WorkspaceUsersRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.UserIDs) == 0 {
		httputil.WriteValidationError(w, "user_ids must not be empty")
		return
	}

	if err := h.service.AddUsers(r.Context(), org.ID, workspaceID, req.UserIDs, principal.UserID); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccessMessage(w, "Users added", nil)
}

// RemoveUsers removes explicit members. Removing the last member of an
// ownerless workspace is rejected.
func (h *WorkspaceHandlers) RemoveUsers(w http.ResponseWriter, r *http.Request) {
	org, principal, workspaceID, ok := h.workspaceScope(w, r)
	if !ok {
		return
	}

	var req WorkspaceUsersRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.UserIDs) == 0 {
		httputil.WriteValidationError(w, "user_ids must not be empty")
		return
	}

	if err := h.service.RemoveUsers(r.Context(), org.ID, workspaceID, req.UserIDs, principal.UserID); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccessMessage(w, "Users removed", nil)
}

// GetChildren lists the accessible children of a workspace
func (h *WorkspaceHandlers) GetChildren(w http.ResponseWriter, r *http.Request) {
	org, principal, workspaceID, ok := h.workspaceScope(w, r)
	if !ok {
		return
	}

	children, err := h.service.GetChildren(r.Context(), org.ID, workspaceID, principal.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, children)
}

// GetParent retrieves the parent of a workspace, if the caller can access it
func (h *WorkspaceHandlers) GetParent(w http.ResponseWriter, r *http.Request) {
	org, principal, workspaceID, ok := h.workspaceScope(w, r)
	if !ok {
		return
	}

	parent, err := h.service.GetParent(r.Context(), org.ID, workspaceID, principal.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, parent)
}

func (h *WorkspaceHandlers) workspaceScope(w http.ResponseWriter, r *http.Request) (org *orgs.Organization, principal *middleware.Principal, workspaceID int64, ok bool) {
	o := middleware.GetOrganization(r)
	p := middleware.GetPrincipal(r)
	if o == nil || p == nil {
		httputil.WriteNotFoundError(w, "Organization not found")
		return nil, nil, 0, false
	}

	id, parsed := httputil.ParsePathInt64OrError(w, r, "workspace_id")
	if !parsed {
		return nil, nil, 0, false
	}

	return o, p, id, true
}
