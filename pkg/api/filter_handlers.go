package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/knossos-io/knossos/pkg/httputil"
	"github.com/knossos-io/knossos/pkg/knowledge"
	"github.com/knossos-io/knossos/pkg/middleware"
	"github.com/knossos-io/knossos/pkg/orgs"
)

// FilterHandlers handles knowledge filter taxonomy requests.
type FilterHandlers struct {
	filters *knowledge.FilterRegistry
}

// NewFilterHandlers creates a new FilterHandlers
func NewFilterHandlers(filters *knowledge.FilterRegistry) *FilterHandlers {
	return &FilterHandlers{filters: filters}
}

// RegisterRoutes registers filter routes
func (h *FilterHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/{org_id}/knowledge/filters", h.UpsertFilter).Methods("POST")
	router.HandleFunc("/orgs/{org_id}/knowledge/filters", h.ListFilters).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/knowledge/filters/{filter_id}", h.DeleteFilter).Methods("DELETE")
	router.HandleFunc("/orgs/{org_id}/knowledge/filters/rename", h.RenameFilter).Methods("POST")
	router.HandleFunc("/orgs/{org_id}/knowledge/filters/recategorize", h.RecategorizeFilters).Methods("POST")

	router.HandleFunc("/orgs/{org_id}/knowledge/entries/{entry_id}/filters", h.ListEntryFilters).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/knowledge/entries/{entry_id}/filters/{filter_id}", h.AssignFilter).Methods("PUT")
	router.HandleFunc("/orgs/{org_id}/knowledge/entries/{entry_id}/filters/{filter_id}", h.UnassignFilter).Methods("DELETE")
}

// UpsertFilterRequest is the payload for creating or reusing a filter.
type UpsertFilterRequest struct {
	Category string `json:"category"`
	Name     string `json:"name"`
}

// UpsertFilter creates a (category, name) filter, returning the existing
// one if the pair is already registered
func (h *FilterHandlers) UpsertFilter(w http.ResponseWriter, r *http.Request) {
	org, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req UpsertFilterRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Category, "category") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	filterID, err := h.filters.Upsert(r.Context(), org.ID, req.Category, req.Name)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	filter, err := h.filters.Get(r.Context(), org.ID, filterID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, filter)
}

// ListFilters returns the organization's filters grouped by category
func (h *FilterHandlers) ListFilters(w http.ResponseWriter, r *http.Request) {
	org, ok := h.scope(w, r)
	if !ok {
		return
	}

	byCategory, err := h.filters.ListByCategory(r.Context(), org.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, byCategory)
}

// DeleteFilter removes a filter and its entry assignments
func (h *FilterHandlers) DeleteFilter(w http.ResponseWriter, r *http.Request) {
	org, ok := h.scope(w, r)
	if !ok {
		return
	}

	filterID, parsed := httputil.ParsePathInt64OrError(w, r, "filter_id")
	if !parsed {
		return
	}

	if err := h.filters.Delete(r.Context(), org.ID, filterID); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// RenameFilterRequest is the payload for renaming a filter within its
// category.
type RenameFilterRequest struct {
	Category string `json:"category"`
	OldName  string `json:"old_name"`
	NewName  string `json:"new_name"`
}

// RenameFilter renames a filter, merging with an existing target name
func (h *FilterHandlers) RenameFilter(w http.ResponseWriter, r *http.Request) {
	org, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req RenameFilterRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Category, "category") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.OldName, "old_name") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.NewName, "new_name") {
		return
	}

	if err := h.filters.Rename(r.Context(), org.ID, req.Category, req.OldName, req.NewName); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccessMessage(w, "Filter renamed", nil)
}

// RecategorizeFiltersRequest is the payload for moving every filter in one
// category to another.
type RecategorizeFiltersRequest struct {
	OldCategory string `json:"old_category"`
	NewCategory string `json:"new_category"`
}

// RecategorizeFilters moves all filters from one category to another
func (h *FilterHandlers) RecategorizeFilters(w http.ResponseWriter, r *http.Request) {
	org, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req RecategorizeFiltersRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.OldCategory, "old_category") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.NewCategory, "new_category") {
		return
	}

	if err := h.filters.Recategorize(r.Context(), org.ID, req.OldCategory, req.NewCategory); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccessMessage(w, "Filters recategorized", nil)
}

// ListEntryFilters lists the filters assigned to an entry
func (h *FilterHandlers) ListEntryFilters(w http.ResponseWriter, r *http.Request) {
	org, ok := h.scope(w, r)
	if !ok {
		return
	}

	entryID, parsed := httputil.ParsePathInt64OrError(w, r, "entry_id")
	if !parsed {
		return
	}

	filters, err := h.filters.ListForEntry(r.Context(), org.ID, entryID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, filters)
}

// AssignFilter tags an entry with a filter. Both must belong to the
// organization.
func (h *FilterHandlers) AssignFilter(w http.ResponseWriter, r *http.Request) {
	org, entryID, filterID, ok := h.assignmentScope(w, r)
	if !ok {
		return
	}

	if err := h.filters.AssignToEntry(r.Context(), org.ID, entryID, filterID); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccessMessage(w, "Filter assigned", nil)
}

// UnassignFilter removes a filter tag from an entry
func (h *FilterHandlers) UnassignFilter(w http.ResponseWriter, r *http.Request) {
	org, entryID, filterID, ok := h.assignmentScope(w, r)
	if !ok {
		return
	}

	if err := h.filters.RemoveFromEntry(r.Context(), org.ID, entryID, filterID); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

func (h *FilterHandlers) scope(w http.ResponseWriter, r *http.Request) (*orgs.Organization, bool) {
	org := middleware.GetOrganization(r)
	if org == nil || middleware.GetPrincipal(r) == nil {
		httputil.WriteNotFoundError(w, "Organization not found")
		return nil, false
	}
	return org, true
}

func (h *FilterHandlers) assignmentScope(w http.ResponseWriter, r *http.Request) (org *orgs.Organization, entryID, filterID int64, ok bool) {
	o, scoped := h.scope(w, r)
	if !scoped {
		return nil, 0, 0, false
	}

	e, parsed := httputil.ParsePathInt64OrError(w, r, "entry_id")
	if !parsed {
		return nil, 0, 0, false
	}
	f, parsed := httputil.ParsePathInt64OrError(w, r, "filter_id")
	if !parsed {
		return nil, 0, 0, false
	}

	return o, e, f, true
}
