package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/knossos-io/knossos/pkg/access"
	"github.com/knossos-io/knossos/pkg/httputil"
	"github.com/knossos-io/knossos/pkg/knowledge"
	"github.com/knossos-io/knossos/pkg/middleware"
	"github.com/knossos-io/knossos/pkg/observability"
	"github.com/knossos-io/knossos/pkg/orgs"
)

// KnowledgeHandlers handles knowledge entry, chunk, and access resolution
// requests.
type KnowledgeHandlers struct {
	entries  *knowledge.EntryStore
	guard    *knowledge.MutationGuard
	resolver *access.Resolver
	metrics  *observability.Metrics
}

// NewKnowledgeHandlers creates a new KnowledgeHandlers. metrics may be nil.
func NewKnowledgeHandlers(entries *knowledge.EntryStore, guard *knowledge.MutationGuard, resolver *access.Resolver, metrics *observability.Metrics) *KnowledgeHandlers {
	return &KnowledgeHandlers{entries: entries, guard: guard, resolver: resolver, metrics: metrics}
}

// RegisterRoutes registers knowledge entry routes
func (h *KnowledgeHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/{org_id}/knowledge/entries", h.CreateEntry).Methods("POST")
	router.HandleFunc("/orgs/{org_id}/knowledge/entries", h.ListEntries).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/knowledge/entries/{entry_id}", h.GetEntry).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/knowledge/entries/{entry_id}", h.UpdateEntry).Methods("PUT")
	router.HandleFunc("/orgs/{org_id}/knowledge/entries/{entry_id}", h.DeleteEntry).Methods("DELETE")

	router.HandleFunc("/orgs/{org_id}/knowledge/entries/{entry_id}/access", h.CheckEntryAccess).Methods("GET")

	router.HandleFunc("/orgs/{org_id}/knowledge/entries/{entry_id}/chunks", h.ReplaceChunks).Methods("PUT")
	router.HandleFunc("/orgs/{org_id}/knowledge/entries/{entry_id}/chunks", h.ListChunks).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/knowledge/chunks", h.CandidateChunks).Methods("GET")
}

// CreateEntryRequest is the payload for creating a knowledge entry.
type CreateEntryRequest struct {
	Title            string `json:"title"`
	Description      string `json:"description,omitempty"`
	SourceRef        string `json:"source_ref,omitempty"`
	TeamID           *int64 `json:"team_id,omitempty"`
	WorkspaceID      *int64 `json:"workspace_id,omitempty"`
	KnowledgeGroupID *int64 `json:"knowledge_group_id,omitempty"`
}

// CreateEntry creates a knowledge entry owned by the caller
func (h *KnowledgeHandlers) CreateEntry(w http.ResponseWriter, r *http.Request) {
	org, principal, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req CreateEntryRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Title, "title") {
		return
	}

	entry := &knowledge.Entry{
		OrganizationID:   org.ID,
		Title:            req.Title,
		Description:      req.Description,
		SourceRef:        req.SourceRef,
		OwnerUserID:      &principal.UserID,
		TeamID:           req.TeamID,
		WorkspaceID:      req.WorkspaceID,
		KnowledgeGroupID: req.KnowledgeGroupID,
	}
	if err := h.entries.CreateEntry(r.Context(), entry); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteCreated(w, entry)
}

// ListEntries lists the entries the caller can access
func (h *KnowledgeHandlers) ListEntries(w http.ResponseWriter, r *http.Request) {
	org, principal, ok := h.scope(w, r)
	if !ok {
		return
	}

	result, err := h.entries.ListEntriesForUser(r.Context(), principal.UserID, org.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// GetEntry retrieves one entry, resolved against the caller's access
func (h *KnowledgeHandlers) GetEntry(w http.ResponseWriter, r *http.Request) {
	org, principal, entryID, ok := h.entryScope(w, r)
	if !ok {
		return
	}

	entry, err := h.entries.GetEntryForUser(r.Context(), entryID, principal.UserID, org.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, entry)
}

// UpdateEntry applies a guarded partial update
func (h *KnowledgeHandlers) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	org, principal, entryID, ok := h.entryScope(w, r)
	if !ok {
		return
	}

	var req knowledge.UpdateEntryRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.guard.UpdateEntry(r.Context(), org.ID, entryID, principal.UserID, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	entry, err := h.entries.GetEntryForUser(r.Context(), entryID, principal.UserID, org.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, entry)
}

// DeleteEntry deletes an entry after a guarded access check
func (h *KnowledgeHandlers) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	org, principal, entryID, ok := h.entryScope(w, r)
	if !ok {
		return
	}

	if err := h.guard.DeleteEntry(r.Context(), org.ID, entryID, principal.UserID); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// AccessDecision is the response body for an access check.
type AccessDecision struct {
	EntryID int64 `json:"entry_id"`
	UserID  int64 `json:"user_id"`
	Allowed bool  `json:"allowed"`
}

// CheckEntryAccess resolves whether the caller may access an entry
func (h *KnowledgeHandlers) CheckEntryAccess(w http.ResponseWriter, r *http.Request) {
	org, principal, entryID, ok := h.entryScope(w, r)
	if !ok {
		return
	}

	start := time.Now()
	allowed, err := h.resolver.CanAccessEntry(r.Context(), entryID, principal.UserID, org.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if h.metrics != nil {
		decision := "denied"
		if allowed {
			decision = "allowed"
		}
		h.metrics.ObserveAccessDecision("knowledge_entry", decision, time.Since(start))
	}

	httputil.WriteJSON(w, http.StatusOK, AccessDecision{
		EntryID: entryID,
		UserID:  principal.UserID,
		Allowed: allowed,
	})
}

// ReplaceChunksRequest carries the full replacement chunk set.
type ReplaceChunksRequest struct {
	Chunks []*knowledge.Chunk `json:"chunks"`
}

// ReplaceChunks atomically replaces an entry's chunk set
func (h *KnowledgeHandlers) ReplaceChunks(w http.ResponseWriter, r *http.Request) {
	org, principal, entryID, ok := h.entryScope(w, r)
	if !ok {
		return
	}

	// The caller must be able to access the entry before rewriting content
	if _, err := h.entries.GetEntryForUser(r.Context(), entryID, principal.UserID, org.ID); err != nil {
		writeDomainError(w, err)
		return
	}

	var req ReplaceChunksRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.entries.ReplaceChunks(r.Context(), entryID, req.Chunks); err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteSuccessMessage(w, "Chunks replaced", nil)
}

// ListChunks lists an entry's chunks in index order
func (h *KnowledgeHandlers) ListChunks(w http.ResponseWriter, r *http.Request) {
	org, principal, entryID, ok := h.entryScope(w, r)
	if !ok {
		return
	}

	if _, err := h.entries.GetEntryForUser(r.Context(), entryID, principal.UserID, org.ID); err != nil {
		writeDomainError(w, err)
		return
	}

	chunks, err := h.entries.ListChunks(r.Context(), entryID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, chunks)
}

// CandidateChunks returns every chunk belonging to entries the caller can
// access, the retrieval corpus for downstream search
func (h *KnowledgeHandlers) CandidateChunks(w http.ResponseWriter, r *http.Request) {
	org, principal, ok := h.scope(w, r)
	if !ok {
		return
	}

	chunks, err := h.entries.CandidateChunks(r.Context(), principal.UserID, org.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, chunks)
}

func (h *KnowledgeHandlers) scope(w http.ResponseWriter, r *http.Request) (*orgs.Organization, *middleware.Principal, bool) {
	org := middleware.GetOrganization(r)
	principal := middleware.GetPrincipal(r)
	if org == nil || principal == nil {
		httputil.WriteNotFoundError(w, "Organization not found")
		return nil, nil, false
	}
	return org, principal, true
}

func (h *KnowledgeHandlers) entryScope(w http.ResponseWriter, r *http.Request) (*orgs.Organization, *middleware.Principal, int64, bool) {
	org, principal, ok := h.scope(w, r)
	if !ok {
		return nil, nil, 0, false
	}

	entryID, parsed := httputil.ParsePathInt64OrError(w, r, "entry_id")
	if !parsed {
		return nil, nil, 0, false
	}

	return org, principal, entryID, true
}
