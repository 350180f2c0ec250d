package api

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/knossos-io/knossos/pkg/knowledge"
)

func upsertTestFilter(t *testing.T, srv *Server, orgID, userID int64, category, name string) *knowledge.Filter {
	t.Helper()

	rec := doRequest(t, srv, http.MethodPost, orgPath(orgID, "/knowledge/filters"), userID,
		UpsertFilterRequest{Category: category, Name: name})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201 upserting filter, got %d: %s", rec.Code, rec.Body.String())
	}

	var filter knowledge.Filter
	decodeBody(t, rec, &filter)
	return &filter
}

func TestFilterUpsert_Idempotent(t *testing.T) {
	srv := newTestServer(t)
	org := createTestOrg(t, srv, 1, "Acme")

	first := upsertTestFilter(t, srv, org.ID, 1, "language", "go")
	second := upsertTestFilter(t, srv, org.ID, 1, "language", "go")
	if first.ID != second.ID {
		t.Errorf("Expected same filter id on repeat upsert, got %d and %d", first.ID, second.ID)
	}

	other := upsertTestFilter(t, srv, org.ID, 1, "language", "rust")
	if other.ID == first.ID {
		t.Error("Expected a distinct id for a distinct name")
	}
}

func TestFilterListByCategory(t *testing.T) {
	srv := newTestServer(t)
	org := createTestOrg(t, srv, 1, "Acme")

	upsertTestFilter(t, srv, org.ID, 1, "language", "go")
	upsertTestFilter(t, srv, org.ID, 1, "language", "rust")
	upsertTestFilter(t, srv, org.ID, 1, "topic", "storage")

	rec := doRequest(t, srv, http.MethodGet, orgPath(org.ID, "/knowledge/filters"), 1, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 listing filters, got %d", rec.Code)
	}
	var byCategory map[string][]string
	decodeBody(t, rec, &byCategory)
	if len(byCategory["language"]) != 2 {
		t.Errorf("Expected 2 language filters, got %v", byCategory["language"])
	}
	if len(byCategory["topic"]) != 1 {
		t.Errorf("Expected 1 topic filter, got %v", byCategory["topic"])
	}
}

func TestFilterRenameAndRecategorize(t *testing.T) {
	srv := newTestServer(t)
	org := createTestOrg(t, srv, 1, "Acme")

	upsertTestFilter(t, srv, org.ID, 1, "language", "golang")

	rec := doRequest(t, srv, http.MethodPost, orgPath(org.ID, "/knowledge/filters/rename"), 1,
		RenameFilterRequest{Category: "language", OldName: "golang", NewName: "go"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 renaming filter, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodPost, orgPath(org.ID, "/knowledge/filters/recategorize"), 1,
		RecategorizeFiltersRequest{OldCategory: "language", NewCategory: "tech"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 recategorizing filters, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, orgPath(org.ID, "/knowledge/filters"), 1, nil)
	var byCategory map[string][]string
	decodeBody(t, rec, &byCategory)
	if len(byCategory["language"]) != 0 {
		t.Errorf("Expected language category to be empty, got %v", byCategory["language"])
	}
	if len(byCategory["tech"]) != 1 || byCategory["tech"][0] != "go" {
		t.Errorf("Expected tech category to hold the renamed filter, got %v", byCategory["tech"])
	}
}

func TestFilterAssignment(t *testing.T) {
	srv := newTestServer(t)
	org := createTestOrg(t, srv, 1, "Acme")
	entry := createTestEntry(t, srv, org.ID, 1, CreateEntryRequest{Title: "Handbook"})
	filter := upsertTestFilter(t, srv, org.ID, 1, "topic", "onboarding")

	assignPath := entryPath(org.ID, entry.ID, "/filters/"+strconv.FormatInt(filter.ID, 10))

	rec := doRequest(t, srv, http.MethodPut, assignPath, 1, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 assigning filter, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, entryPath(org.ID, entry.ID, "/filters"), 1, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 listing entry filters, got %d", rec.Code)
	}
	var filters []*knowledge.Filter
	decodeBody(t, rec, &filters)
	if len(filters) != 1 || filters[0].ID != filter.ID {
		t.Fatalf("Expected assigned filter %d, got %+v", filter.ID, filters)
	}

	rec = doRequest(t, srv, http.MethodDelete, assignPath, 1, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204 unassigning filter, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, entryPath(org.ID, entry.ID, "/filters"), 1, nil)
	decodeBody(t, rec, &filters)
	if len(filters) != 0 {
		t.Errorf("Expected no filters after unassignment, got %d", len(filters))
	}
}

func TestFilterDelete(t *testing.T) {
	srv := newTestServer(t)
	org := createTestOrg(t, srv, 1, "Acme")
	filter := upsertTestFilter(t, srv, org.ID, 1, "topic", "legacy")

	rec := doRequest(t, srv, http.MethodDelete,
		orgPath(org.ID, "/knowledge/filters/"+strconv.FormatInt(filter.ID, 10)), 1, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204 deleting filter, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, orgPath(org.ID, "/knowledge/filters"), 1, nil)
	var byCategory map[string][]string
	decodeBody(t, rec, &byCategory)
	if len(byCategory["topic"]) != 0 {
		t.Errorf("Expected topic category to be empty after delete, got %v", byCategory["topic"])
	}
}
