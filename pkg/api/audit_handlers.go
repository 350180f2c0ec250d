package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/knossos-io/knossos/pkg/audit"
	"github.com/knossos-io/knossos/pkg/httputil"
	"github.com/knossos-io/knossos/pkg/middleware"
	"github.com/knossos-io/knossos/pkg/orgs"
)

// AuditHandlers exposes the audit trail to organization admins.
type AuditHandlers struct {
	store      audit.Store
	orgService *orgs.PostgresService
}

// NewAuditHandlers creates a new AuditHandlers
func NewAuditHandlers(store audit.Store, orgService *orgs.PostgresService) *AuditHandlers {
	return &AuditHandlers{store: store, orgService: orgService}
}

// RegisterRoutes registers audit trail routes
func (h *AuditHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/{org_id}/audit/events", h.SearchEvents).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/audit/events/{event_id}", h.GetEvent).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/audit/export", h.ExportEvents).Methods("GET")
}

// SearchEvents searches the organization's audit events. Admin only.
func (h *AuditHandlers) SearchEvents(w http.ResponseWriter, r *http.Request) {
	org, ok := h.adminScope(w, r)
	if !ok {
		return
	}

	filter, ok := h.parseFilter(w, r, org.ID)
	if !ok {
		return
	}

	events, err := h.store.Search(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, events)
}

// GetEvent retrieves one audit event. Admin only; events of other
// organizations read as missing.
func (h *AuditHandlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	org, ok := h.adminScope(w, r)
	if !ok {
		return
	}

	eventID, parsed := httputil.ParsePathInt64OrError(w, r, "event_id")
	if !parsed {
		return
	}

	event, err := h.store.Get(r.Context(), eventID)
	if err == audit.ErrEventNotFound {
		httputil.WriteNotFoundError(w, "Audit event not found")
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if event.OrganizationID == nil || *event.OrganizationID != org.ID {
		httputil.WriteNotFoundError(w, "Audit event not found")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, event)
}

// ExportEvents exports matching events as JSON, CSV, or NDJSON. Admin only.
func (h *AuditHandlers) ExportEvents(w http.ResponseWriter, r *http.Request) {
	org, ok := h.adminScope(w, r)
	if !ok {
		return
	}

	filter, ok := h.parseFilter(w, r, org.ID)
	if !ok {
		return
	}

	format := audit.ExportFormat(httputil.ParseQueryString(r, "format", string(audit.ExportFormatJSON)))
	switch format {
	case audit.ExportFormatJSON, audit.ExportFormatCSV, audit.ExportFormatNDJSON:
	default:
		httputil.WriteValidationError(w, "format must be json, csv, or ndjson")
		return
	}

	data, err := h.store.Export(r.Context(), filter, format)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	contentType := "application/json"
	if format == audit.ExportFormatCSV {
		contentType = "text/csv"
	} else if format == audit.ExportFormatNDJSON {
		contentType = "application/x-ndjson"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=audit-export."+string(format))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// parseFilter builds a SearchFilter scoped to the organization from query
// parameters.
func (h *AuditHandlers) parseFilter(w http.ResponseWriter, r *http.Request, orgID int64) (audit.SearchFilter, bool) {
	filter := audit.SearchFilter{
		OrganizationID: &orgID,
	}

	if v := r.URL.Query().Get("start_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.WriteValidationError(w, "start_time must be RFC 3339")
			return filter, false
		}
		filter.StartTime = &t
	}
	if v := r.URL.Query().Get("end_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httputil.WriteValidationError(w, "end_time must be RFC 3339")
			return filter, false
		}
		filter.EndTime = &t
	}

	if userID, err := httputil.ParseQueryInt64(r, "user_id", 0); err == nil && userID > 0 {
		filter.UserID = &userID
	}
	for _, et := range r.URL.Query()["event_type"] {
		filter.EventTypes = append(filter.EventTypes, audit.EventType(et))
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status := audit.EventStatus(v)
		filter.Status = &status
	}
	filter.ResourceType = audit.ResourceType(r.URL.Query().Get("resource_type"))
	filter.ResourceID = r.URL.Query().Get("resource_id")

	limit, _ := httputil.ParseQueryInt(r, "limit", 100)
	offset, _ := httputil.ParseQueryInt(r, "offset", 0)
	filter.Limit = limit
	filter.Offset = offset
	filter.SortBy = httputil.ParseQueryString(r, "sort_by", "")
	filter.SortOrder = httputil.ParseQueryString(r, "sort_order", "")

	return filter, true
}

// adminScope resolves the organization and requires an admin principal.
func (h *AuditHandlers) adminScope(w http.ResponseWriter, r *http.Request) (*orgs.Organization, bool) {
	org := middleware.GetOrganization(r)
	principal := middleware.GetPrincipal(r)
	if org == nil || principal == nil {
		httputil.WriteNotFoundError(w, "Organization not found")
		return nil, false
	}

	isAdmin, err := h.orgService.IsAdmin(r.Context(), org.ID, principal.UserID)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	if !isAdmin {
		httputil.WriteForbidden(w, "Organization admin role required")
		return nil, false
	}

	return org, true
}
