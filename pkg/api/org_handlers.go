package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/knossos-io/knossos/pkg/audit"
	"github.com/knossos-io/knossos/pkg/httputil"
	"github.com/knossos-io/knossos/pkg/middleware"
	"github.com/knossos-io/knossos/pkg/orgs"
)

// OrgHandlers handles organization, membership, and invitation requests.
type OrgHandlers struct {
	orgService *orgs.PostgresService
	auditor    audit.Logger
}

// NewOrgHandlers creates a new OrgHandlers
func NewOrgHandlers(orgService *orgs.PostgresService, auditor audit.Logger) *OrgHandlers {
	if auditor == nil {
		auditor = audit.NopLogger()
	}
	return &OrgHandlers{orgService: orgService, auditor: auditor}
}

// RegisterRoutes registers organization routes
func (h *OrgHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs", h.CreateOrganization).Methods("POST")
	router.HandleFunc("/orgs", h.ListOrganizations).Methods("GET")
	router.HandleFunc("/orgs/{org_id}", h.GetOrganization).Methods("GET")
	router.HandleFunc("/orgs/{org_id}", h.UpdateOrganization).Methods("PUT")
	router.HandleFunc("/orgs/{org_id}", h.DeleteOrganization).Methods("DELETE")

	// Members
	router.HandleFunc("/orgs/{org_id}/members", h.ListMembers).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/members", h.AddMember).Methods("POST")
	router.HandleFunc("/orgs/{org_id}/members/{user_id}", h.UpdateMemberRole).Methods("PUT")
	router.HandleFunc("/orgs/{org_id}/members/{user_id}", h.RemoveMember).Methods("DELETE")

	// Invitations
	router.HandleFunc("/orgs/{org_id}/invitations", h.CreateInvitation).Methods("POST")
	router.HandleFunc("/orgs/{org_id}/invitations", h.ListInvitations).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/invitations/{invitation_id}", h.RevokeInvitation).Methods("DELETE")
	router.HandleFunc("/invitations/{token}/accept", h.AcceptInvitation).Methods("POST")
}

// CreateOrgRequest is the payload for creating an organization.
type CreateOrgRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CreateOrganization creates a new organization owned by the caller
func (h *OrgHandlers) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r)
	if principal == nil {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req CreateOrgRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	org := &orgs.Organization{
		Name:        req.Name,
		Description: req.Description,
		OwnerUserID: &principal.UserID,
	}
	if err := h.orgService.CreateOrganization(r.Context(), org); err != nil {
		writeDomainError(w, err)
		return
	}

	// The creator becomes the owning member
	if err := h.orgService.AddMember(r.Context(), org.ID, principal.UserID, orgs.RoleOwner, nil); err != nil {
		writeDomainError(w, err)
		return
	}

	h.auditor.LogAdminAction(r.Context(), audit.EventTypeOrgCreate, &principal.UserID, &org.ID,
		fmt.Sprintf("organization %q created", org.Name))

	httputil.WriteCreated(w, org)
}

// ListOrganizations lists organizations the caller belongs to
func (h *OrgHandlers) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r)
	if principal == nil {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	result, err := h.orgService.ListOrganizations(r.Context(), principal.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// GetOrganization retrieves the organization resolved by the org middleware
func (h *OrgHandlers) GetOrganization(w http.ResponseWriter, r *http.Request) {
	org := middleware.GetOrganization(r)
	if org == nil {
		httputil.WriteNotFoundError(w, "Organization not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, org)
}

// UpdateOrganization applies a partial update. Admin only.
func (h *OrgHandlers) UpdateOrganization(w http.ResponseWriter, r *http.Request) {
	org := middleware.GetOrganization(r)
	principal := middleware.GetPrincipal(r)
	if org == nil || principal == nil {
		httputil.WriteNotFoundError(w, "Organization not found")
		return
	}
	if !h.requireAdmin(w, r, org.ID, principal.UserID) {
		return
	}

	var req orgs.UpdateOrgRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.orgService.UpdateOrganization(r.Context(), org.ID, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	updated, err := h.orgService.GetOrganization(r.Context(), org.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, updated)
}

// DeleteOrganization soft deletes an organization. Admin only.
func (h *OrgHandlers) DeleteOrganization(w http.ResponseWriter, r *http.Request) {
	org := middleware.GetOrganization(r)
	principal := middleware.GetPrincipal(r)
	if org == nil || principal == nil {
		httputil.WriteNotFoundError(w, "Organization not found")
		return
	}
	if !h.requireAdmin(w, r, org.ID, principal.UserID) {
		return
	}

	if err := h.orgService.DeleteOrganization(r.Context(), org.ID); err != nil {
		writeDomainError(w, err)
		return
	}

	h.auditor.LogAdminAction(r.Context(), audit.EventTypeOrgDelete, &principal.UserID, &org.ID,
		fmt.Sprintf("organization %q deleted", org.Name))

	httputil.WriteNoContent(w)
}

// ListMembers lists all members of an organization
func (h *OrgHandlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	org := middleware.GetOrganization(r)
	if org == nil {
		httputil.WriteNotFoundError(w, "Organization not found")
		return
	}

	members, err := h.orgService.ListMembers(r.Context(), org.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, members)
}

// AddMemberRequest is the payload for adding an organization member.
type AddMemberRequest struct {
	UserID int64     `json:"user_id"`
	Role   orgs.Role `json:"role"`
}

// AddMember adds a user to the organization. Admin only.
func (h *OrgHandlers) AddMember(w http.ResponseWriter, r *http.Request) {
	org := middleware.GetOrganization(r)
	principal := middleware.GetPrincipal(r)
	if org == nil || principal == nil {
		httputil.WriteNotFoundError(w, "Organization not found")
		return
	}
	if !h.requireAdmin(w, r, org.ID, principal.UserID) {
		return
	}

	var req AddMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequirePositive(w, req.UserID, "user_id") {
		return
	}
	if req.Role == "" {
		req.Role = orgs.RoleMember
	}

	if err := h.orgService.AddMember(r.Context(), org.ID, req.UserID, req.Role, &principal.UserID); err != nil {
		writeDomainError(w, err)
		return
	}

	h.auditor.LogAdminAction(r.Context(), audit.EventTypeOrgMemberAdd, &principal.UserID, &org.ID,
		fmt.Sprintf("user %d added with role %s", req.UserID, req.Role))

	member, err := h.orgService.GetMember(r.Context(), org.ID, req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, member)
}

// UpdateMemberRoleRequest is the payload for changing a member's role.
type UpdateMemberRoleRequest struct {
	Role orgs.Role `json:"role"`
}

// UpdateMemberRole changes a member's role. Admin only.
func (h *OrgHandlers) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	org := middleware.GetOrganization(r)
	principal := middleware.GetPrincipal(r)
	if org == nil || principal == nil {
		httputil.WriteNotFoundError(w, "Organization not found")
		return
	}
	if !h.requireAdmin(w, r, org.ID, principal.UserID) {
		return
	}

	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	var req UpdateMemberRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Role != orgs.RoleOwner && req.Role != orgs.RoleAdmin && req.Role != orgs.RoleMember {
		httputil.WriteValidationError(w, "role must be owner, admin, or member")
		return
	}

	if err := h.orgService.UpdateMemberRole(r.Context(), org.ID, userID, req.Role); err != nil {
		writeDomainError(w, err)
		return
	}

	h.auditor.LogAdminAction(r.Context(), audit.EventTypeOrgMemberRoleChange, &principal.UserID, &org.ID,
		fmt.Sprintf("user %d role changed to %s", userID, req.Role))

	httputil.WriteNoContent(w)
}

// RemoveMember removes a user from the organization. Admin only.
func (h *OrgHandlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	org := middleware.GetOrganization(r)
	principal := middleware.GetPrincipal(r)
	if org == nil || principal == nil {
		httputil.WriteNotFoundError(w, "Organization not found")
		return
	}
	if !h.requireAdmin(w, r, org.ID, principal.UserID) {
		return
	}

	userID, ok := httputil.ParsePathInt64OrError(w, r, "user_id")
	if !ok {
		return
	}

	if err := h.orgService.RemoveMember(r.Context(), org.ID, userID); err != nil {
		writeDomainError(w, err)
		return
	}

	h.auditor.LogAdminAction(r.Context(), audit.EventTypeOrgMemberRemove, &principal.UserID, &org.ID,
		fmt.Sprintf("user %d removed", userID))

	httputil.WriteNoContent(w)
}

// CreateInvitationRequest is the payload for inviting a user by email.
type CreateInvitationRequest struct {
	Email string    `json:"email"`
	Role  orgs.Role `json:"role"`
}

// CreateInvitation invites a user to the organization. Admin only.
func (h *OrgHandlers) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	org := middleware.GetOrganization(r)
	principal := middleware.GetPrincipal(r)
	if org == nil || principal == nil {
		httputil.WriteNotFoundError(w, "Organization not found")
		return
	}
	if !h.requireAdmin(w, r, org.ID, principal.UserID) {
		return
	}

	var req CreateInvitationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}
	if req.Role == "" {
		req.Role = orgs.RoleMember
	}

	invitation := &orgs.Invitation{
		OrganizationID: org.ID,
		Email:          req.Email,
		Role:           req.Role,
		InvitedBy:      &principal.UserID,
	}
	if err := h.orgService.CreateInvitation(r.Context(), invitation); err != nil {
		writeDomainError(w, err)
		return
	}

	h.auditor.LogAdminAction(r.Context(), audit.EventTypeInviteCreate, &principal.UserID, &org.ID,
		fmt.Sprintf("invitation created for %s", req.Email))

	httputil.WriteCreated(w, invitation)
}

// ListInvitations lists pending invitations. Admin only.
func (h *OrgHandlers) ListInvitations(w http.ResponseWriter, r *http.Request) {
	org := middleware.GetOrganization(r)
	principal := middleware.GetPrincipal(r)
	if org == nil || principal == nil {
		httputil.WriteNotFoundError(w, "Organization not found")
		return
	}
	if !h.requireAdmin(w, r, org.ID, principal.UserID) {
		return
	}

	invitations, err := h.orgService.ListInvitations(r.Context(), org.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, invitations)
}

// RevokeInvitation revokes a pending invitation. Admin only.
func (h *OrgHandlers) RevokeInvitation(w http.ResponseWriter, r *http.Request) {
	org := middleware.GetOrganization(r)
	principal := middleware.GetPrincipal(r)
	if org == nil || principal == nil {
		httputil.WriteNotFoundError(w, "Organization not found")
		return
	}
	if !h.requireAdmin(w, r, org.ID, principal.UserID) {
		return
	}

	invitationID, ok := httputil.ParsePathInt64OrError(w, r, "invitation_id")
	if !ok {
		return
	}

	if err := h.orgService.RevokeInvitation(r.Context(), invitationID); err != nil {
		writeDomainError(w, err)
		return
	}

	h.auditor.LogAdminAction(r.Context(), audit.EventTypeInviteRevoke, &principal.UserID, &org.ID,
		fmt.Sprintf("invitation %d revoked", invitationID))

	httputil.WriteNoContent(w)
}

// AcceptInvitation accepts an invitation on behalf of the caller
func (h *OrgHandlers) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r)
	if principal == nil {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	token, ok := httputil.ParsePathStringOrError(w, r, "token")
	if !ok {
		return
	}

	if err := h.orgService.AcceptInvitation(r.Context(), token, principal.UserID); err != nil {
		writeDomainError(w, err)
		return
	}

	h.auditor.LogAdminAction(r.Context(), audit.EventTypeInviteAccept, &principal.UserID, nil,
		"invitation accepted")

	httputil.WriteSuccessMessage(w, "Invitation accepted", nil)
}

// requireAdmin writes a 403 and returns false unless the user holds an
// admin role in the organization.
func (h *OrgHandlers) requireAdmin(w http.ResponseWriter, r *http.Request, orgID, userID int64) bool {
	isAdmin, err := h.orgService.IsAdmin(r.Context(), orgID, userID)
	if err != nil {
		writeDomainError(w, err)
		return false
	}
	if !isAdmin {
		httputil.WriteForbidden(w, "Organization admin role required")
		return false
	}
	return true
}
