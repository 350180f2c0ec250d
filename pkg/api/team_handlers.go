package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/knossos-io/knossos/pkg/httputil"
	"github.com/knossos-io/knossos/pkg/middleware"
	"github.com/knossos-io/knossos/pkg/orgs"
)

// TeamHandlers handles team and team membership requests.
type TeamHandlers struct {
	orgService *orgs.PostgresService
}

// NewTeamHandlers creates a new TeamHandlers
func NewTeamHandlers(orgService *orgs.PostgresService) *TeamHandlers {
	return &TeamHandlers{orgService: orgService}
}

// RegisterRoutes registers team routes
func (h *TeamHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/{org_id}/teams", h.CreateTeam).Methods("POST")
	router.HandleFunc("/orgs/{org_id}/teams", h.ListTeams).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/teams/{team_id}", h.GetTeam).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/teams/{team_id}", h.UpdateTeam).Methods("PUT")
	router.HandleFunc("/orgs/{org_id}/teams/{team_id}", h.DeleteTeam).Methods("DELETE")

	router.HandleFunc("/orgs/{org_id}/teams/{team_id}/members", h.ListTeamMembers).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/teams/{team_id}/members", h.AddTeamMember).Methods("POST")
	router.HandleFunc("/orgs/{org_id}/teams/{team_id}/members/{user_id}", h.RemoveTeamMember).Methods("DELETE")
}

// CreateTeamRequest is the payload for creating a team.
type CreateTeamRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CreateTeam creates a team within the organization
func (h *TeamHandlers) CreateTeam(w http.ResponseWriter, r *http.Request) {
	org := middleware.GetOrganization(r)
	principal := middleware.GetPrincipal(r)
	if org == nil || principal == nil {
		httputil.WriteNotFoundError(w, "Organization not found")
		return
	}

	var req CreateTeamRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	team := &orgs.Team{
		OrganizationID: org.ID,
		Name:           req.Name,
		Description:    req.Description,
		CreatedBy:      &principal.UserID,
	}
	if err := h.orgService.CreateTeam(r.Context(), team); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, team)
}

// ListTeams lists teams in the organization
func (h *TeamHandlers) ListTeams(w http.ResponseWriter, r *http.Request) {
	org := middleware.GetOrganization(r)
	if org == nil {
		httputil.WriteNotFoundError(w, "Organization not found")
		return
	}

	teams, err := h.orgService.ListTeams(r.Context(), org.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, teams)
}

// GetTeam retrieves one team scoped to the organization
func (h *TeamHandlers) GetTeam(w http.ResponseWriter, r *http.Request) {
	org := middleware.GetOrganization(r)
	if org == nil {
		httputil.WriteNotFoundError(w, "Organization not found")
		return
	}

	teamID, ok := httputil.ParsePathInt64OrError(w, r, "team_id")
	if !ok {
		return
	}

	team, err := h.orgService.GetTeam(r.Context(), org.ID, teamID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, team)
}

// UpdateTeam applies a partial team update
func (h *TeamHandlers) UpdateTeam(w http.ResponseWriter, r *http.Request) {
	org := middleware.GetOrganization(r)
	if org == nil {
		httputil.WriteNotFoundError(w, "Organization not found")
		return
	}

	teamID, ok := httputil.ParsePathInt64OrError(w, r, "team_id")
	if !ok {
		return
	}

	var req orgs.UpdateTeamRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.orgService.UpdateTeam(r.Context(), org.ID, teamID, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	team, err := h.orgService.GetTeam(r.Context(), org.ID, teamID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, team)
}

// DeleteTeam removes a team and its memberships
func (h *TeamHandlers) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	org := middleware.GetOrganization(r)
	if org == nil {
		httputil.WriteNotFoundError(w, "Organization not found")
		return
	}

	teamID, ok := httputil.ParsePathInt64OrError(w, r, "team_id")
	if !ok {
		return
	}

	if err := h.orgService.DeleteTeam(r.Context(), org.ID, teamID); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// ListTeamMembers lists members of a team
func (h *TeamHandlers) ListTeamMembers(w http.ResponseWriter, r *http.Request) {
	org := middleware.GetOrganization(r)
	if org == nil {
		httputil.WriteNotFoundError(w, "Organization not found")
		return
	}

	teamID, ok := httputil.ParsePathInt64OrError(w, r, "team_id")
	if !ok {
		return
	}

	// Resolve the team through the org first so a foreign team reads as
	// missing rather than leaking its member list.
	if _, err := h.orgService.GetTeam(r.Context(), org.ID, teamID); err != nil {
		writeDomainError(w, err)
		return
	}

	members, err := h.orgService.ListTeamMembers(r.Context(), teamID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, members)
}

// AddTeamMemberRequest is the payload for adding a team member.
type AddTeamMemberRequest struct {
	UserID int64   `json:"user_id"`
	Role   *string `json:"role,omitempty"`
}

// AddTeamMember adds a user to a team
func (h *TeamHandlers) AddTeamMember(w http.ResponseWriter, r *http.Request) {
	org := middleware.GetOrganization(r)
	principal := middleware.GetPrincipal(r)
	if org == nil || principal == nil {
		httputil.WriteNotFoundError(w, "Organization not found")
		return
	}

	teamID, ok := httputil.ParsePathInt64OrError(w, r, "team_id")
	if !ok {
		return
	}

	if _, err := h.orgService.GetTeam(r.Context(), org.ID, teamID); err != nil {
		writeDomainError(w, err)
		return
	}

	var req AddTeamMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequirePositive(w, req.UserID, "user_id") {
		return
	}

	member := &orgs.TeamMember{
		TeamID:  teamID,
		UserID:  req.UserID,
		Role:    req.Role,
		AddedBy: &principal.UserID,
	}
	if err := h.orgService.AddTeamMember(r.Context(), member); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, member)
}

// RemoveTeamMember removes a user from a team
func (h *TeamHandlers) RemoveTeamMember(w http.ResponseWriter, r *http.Request) {
	org := middleware.GetOrganization(r)
	if org == nil {
		httputil.WriteNotFoundError(w, "Organization not found")
		return
	}

	teamID, ok := httputil.ParsePathInt64OrError(w, r, "team_id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	if _, err := h.orgService.GetTeam(r.Context(), org.ID, teamID); err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.orgService.RemoveTeamMember(r.Context(), teamID, userID); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}
