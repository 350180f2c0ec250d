package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/knossos-io/knossos/pkg/httputil"
	"github.com/knossos-io/knossos/pkg/knowledge"
	"github.com/knossos-io/knossos/pkg/middleware"
	"github.com/knossos-io/knossos/pkg/orgs"
)

// GroupHandlers handles knowledge group and team assignment requests.
type GroupHandlers struct {
	groups *knowledge.GroupRegistry
}

// NewGroupHandlers creates a new GroupHandlers
func NewGroupHandlers(groups *knowledge.GroupRegistry) *GroupHandlers {
	return &GroupHandlers{groups: groups}
}

// RegisterRoutes registers knowledge group routes
func (h *GroupHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/{org_id}/knowledge/groups", h.CreateGroup).Methods("POST")
	router.HandleFunc("/orgs/{org_id}/knowledge/groups", h.ListGroups).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/knowledge/groups/{group_id}", h.GetGroup).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/knowledge/groups/{group_id}", h.UpdateGroup).Methods("PUT")
	router.HandleFunc("/orgs/{org_id}/knowledge/groups/{group_id}", h.DeleteGroup).Methods("DELETE")

	router.HandleFunc("/orgs/{org_id}/knowledge/groups/{group_id}/teams", h.ListTeams).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/knowledge/groups/{group_id}/teams/{team_id}", h.AssignTeam).Methods("PUT")
	router.HandleFunc("/orgs/{org_id}/knowledge/groups/{group_id}/teams/{team_id}", h.RemoveTeam).Methods("DELETE")
}

// CreateGroupRequest is the payload for creating a knowledge group.
type CreateGroupRequest struct {
	Name                   string `json:"name"`
	Description            string `json:"description,omitempty"`
	OrganizationWideAccess bool   `json:"organization_wide_access"`
}

// CreateGroup creates a knowledge group owned by the caller
func (h *GroupHandlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	org, principal, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req CreateGroupRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	group := &knowledge.Group{
		OrganizationID:         org.ID,
		Name:                   req.Name,
		Description:            req.Description,
		OwnerUserID:            principal.UserID,
		OrganizationWideAccess: req.OrganizationWideAccess,
	}
	if err := h.groups.CreateGroup(r.Context(), group, principal.UserID); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, group)
}

// ListGroups lists the organization's knowledge groups
func (h *GroupHandlers) ListGroups(w http.ResponseWriter, r *http.Request) {
	org, _, ok := h.scope(w, r)
	if !ok {
		return
	}

	groups, err := h.groups.ListGroups(r.Context(), org.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, groups)
}

// GetGroup retrieves one knowledge group
func (h *GroupHandlers) GetGroup(w http.ResponseWriter, r *http.Request) {
	org, _, groupID, ok := h.groupScope(w, r)
	if !ok {
		return
	}

	group, err := h.groups.GetGroup(r.Context(), org.ID, groupID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, group)
}

// UpdateGroup applies a partial update. Owner or org admin only.
func (h *GroupHandlers) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	org, principal, groupID, ok := h.groupScope(w, r)
	if !ok {
		return
	}

	var req knowledge.UpdateGroupRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.groups.UpdateGroup(r.Context(), org.ID, groupID, principal.UserID, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	group, err := h.groups.GetGroup(r.Context(), org.ID, groupID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, group)
}

// DeleteGroup deletes a knowledge group. Owner or org admin only.
func (h *GroupHandlers) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	org, principal, groupID, ok := h.groupScope(w, r)
	if !ok {
		return
	}

	if err := h.groups.DeleteGroup(r.Context(), org.ID, groupID, principal.UserID); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// ListTeams lists the teams assigned to a group
func (h *GroupHandlers) ListTeams(w http.ResponseWriter, r *http.Request) {
	org, _, groupID, ok := h.groupScope(w, r)
	if !ok {
		return
	}

	assignments, err := h.groups.ListTeams(r.Context(), org.ID, groupID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, assignments)
}

// AssignTeam shares the group's entries with a team. Owner or org admin
// only; the team must belong to the same organization.
func (h *GroupHandlers) AssignTeam(w http.ResponseWriter, r *http.Request) {
	org, principal, groupID, ok := h.groupScope(w, r)
	if !ok {
		return
	}

	teamID, parsed := httputil.ParsePathInt64OrError(w, r, "team_id")
	if !parsed {
		return
	}

	if err := h.groups.AssignTeam(r.Context(), org.ID, groupID, teamID, principal.UserID); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccessMessage(w, "Team assigned", nil)
}

// RemoveTeam withdraws a team's access to the group
func (h *GroupHandlers) RemoveTeam(w http.ResponseWriter, r *http.Request) {
	org, principal, groupID, ok := h.groupScope(w, r)
	if !ok {
		return
	}

	teamID, parsed := httputil.ParsePathInt64OrError(w, r, "team_id")
	if !parsed {
		return
	}

	if err := h.groups.RemoveTeam(r.Context(), org.ID, groupID, teamID, principal.UserID); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *GroupHandlers) scope(w http.ResponseWriter, r *http.Request) (*orgs.Organization, *middleware.Principal, bool) {
	org := middleware.GetOrganization(r)
	principal := middleware.GetPrincipal(r)
	if org == nil || principal == nil {
		httputil.WriteNotFoundError(w, "Organization not found")
		return nil, nil, false
	}
	return org, principal, true
}

func (h *GroupHandlers) groupScope(w http.ResponseWriter, r *http.Request) (*orgs.Organization, *middleware.Principal, int64, bool) {
	org, principal, ok := h.scope(w, r)
	if !ok {
		return nil, nil, 0, false
	}

	groupID, parsed := httputil.ParsePathInt64OrError(w, r, "group_id")
	if !parsed {
		return nil, nil, 0, false
	}

	return org, principal, groupID, true
}
