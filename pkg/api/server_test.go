package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/knossos-io/knossos/pkg/middleware"
	"github.com/knossos-io/knossos/pkg/orgs"
	"github.com/knossos-io/knossos/pkg/storage"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// Full schema exercised by the API handlers
	_, err = db.Exec(`
		CREATE TABLE organizations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			slug TEXT NOT NULL,
			description TEXT,
			owner_user_id INTEGER,
			status TEXT NOT NULL DEFAULT 'active',
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE organization_members (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			role TEXT NOT NULL DEFAULT 'member',
			invited_by INTEGER,
			joined_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(organization_id, user_id)
		);

		CREATE TABLE organization_invitations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER NOT NULL,
			email TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'member',
			token TEXT NOT NULL,
			invited_by INTEGER,
			invited_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			expires_at TIMESTAMP NOT NULL,
			accepted_at TIMESTAMP,
			accepted_by INTEGER,
			UNIQUE(organization_id, email)
		);

		CREATE TABLE teams (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			created_by INTEGER,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE team_members (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			team_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			role TEXT,
			added_by INTEGER,
			added_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(team_id, user_id)
		);

		CREATE TABLE workspaces (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			owner_user_id INTEGER,
			owner_team_id INTEGER,
			parent_workspace_id INTEGER,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CHECK (owner_user_id IS NULL OR owner_team_id IS NULL)
		);

		CREATE TABLE workspace_members (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			workspace_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			added_by INTEGER,
			added_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(workspace_id, user_id)
		);

		CREATE TABLE knowledge_groups (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			owner_user_id INTEGER NOT NULL,
			organization_wide_access INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE knowledge_group_teams (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			knowledge_group_id INTEGER NOT NULL,
			team_id INTEGER NOT NULL,
			assigned_by INTEGER,
			assigned_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(knowledge_group_id, team_id)
		);

		CREATE TABLE knowledge_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			source_ref TEXT,
			owner_user_id INTEGER,
			team_id INTEGER,
			workspace_id INTEGER,
			knowledge_group_id INTEGER,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE knowledge_filters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER NOT NULL,
			category TEXT NOT NULL,
			name TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(organization_id, category, name)
		);

		CREATE TABLE knowledge_entry_filters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			knowledge_entry_id INTEGER NOT NULL,
			filter_id INTEGER NOT NULL,
			UNIQUE(knowledge_entry_id, filter_id)
		);

		CREATE TABLE knowledge_chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			knowledge_entry_id INTEGER NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding TEXT NOT NULL DEFAULT '{}',
			embedding_model TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(knowledge_entry_id, chunk_index)
		);

		CREATE TABLE prompt_templates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER NOT NULL,
			workspace_id INTEGER,
			name TEXT NOT NULL
		);

		CREATE TABLE chat_groups (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER NOT NULL,
			workspace_id INTEGER,
			name TEXT NOT NULL
		);

		CREATE TABLE chat_sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER NOT NULL,
			workspace_id INTEGER,
			name TEXT NOT NULL
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create test tables: %v", err)
	}

	return db
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return NewServer(setupTestDB(t), storage.DefaultSchema(), Options{})
}

// doRequest sends a request through the full middleware chain. userID <= 0
// leaves the identity header off.
func doRequest(t *testing.T, srv *Server, method, path string, userID int64, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if userID > 0 {
		req.Header.Set(middleware.UserIDHeader, strconv.FormatInt(userID, 10))
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
}

// createTestOrg creates an organization through the API and returns it. The
// creating user becomes the owning member.
func createTestOrg(t *testing.T, srv *Server, userID int64, name string) *orgs.Organization {
	t.Helper()

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/orgs", userID, CreateOrgRequest{Name: name})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201 creating organization, got %d: %s", rec.Code, rec.Body.String())
	}

	var org orgs.Organization
	decodeBody(t, rec, &org)
	return &org
}

func orgPath(orgID int64, suffix string) string {
	return "/api/v1/orgs/" + strconv.FormatInt(orgID, 10) + suffix
}

func TestServer_RequiresIdentity(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/orgs", 0, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without identity header, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orgs", nil)
	req.Header.Set(middleware.UserIDHeader, "not-a-number")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with malformed identity header, got %d", rec.Code)
	}
}

func TestServer_RejectsNonJSONWrites(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orgs", strings.NewReader("name=Acme"))
	req.Header.Set(middleware.UserIDHeader, "1")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for non-JSON write, got %d", rec.Code)
	}

	// Reads pass regardless of declared content type.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/orgs", nil)
	req.Header.Set(middleware.UserIDHeader, "1")
	req.Header.Set("Content-Type", "text/plain")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 for read with stray content type, got %d", rec.Code)
	}
}

func TestOrganizationLifecycle(t *testing.T) {
	srv := newTestServer(t)

	org := createTestOrg(t, srv, 1, "Acme Research")
	if org.ID == 0 {
		t.Fatal("Expected organization id to be assigned")
	}
	if org.Slug != "acme-research" {
		t.Errorf("Expected slug acme-research, got %q", org.Slug)
	}

	rec := doRequest(t, srv, http.MethodGet, orgPath(org.ID, ""), 1, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 fetching organization, got %d", rec.Code)
	}
	var fetched orgs.Organization
	decodeBody(t, rec, &fetched)
	if fetched.Name != "Acme Research" {
		t.Errorf("Expected name Acme Research, got %q", fetched.Name)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/orgs", 1, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 listing organizations, got %d", rec.Code)
	}
	var list []*orgs.Organization
	decodeBody(t, rec, &list)
	if len(list) != 1 {
		t.Errorf("Expected 1 organization, got %d", len(list))
	}

	newName := "Acme Labs"
	rec = doRequest(t, srv, http.MethodPut, orgPath(org.ID, ""), 1, orgs.UpdateOrgRequest{Name: &newName})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 updating organization, got %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &fetched)
	if fetched.Name != "Acme Labs" {
		t.Errorf("Expected updated name Acme Labs, got %q", fetched.Name)
	}

	rec = doRequest(t, srv, http.MethodDelete, orgPath(org.ID, ""), 1, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 deleting organization, got %d", rec.Code)
	}
}

func TestOrganization_UnknownIs404(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/orgs/999", 1, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown organization, got %d", rec.Code)
	}
}

func TestOrganization_CreateRequiresName(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/orgs", 1, CreateOrgRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing name, got %d", rec.Code)
	}
}

func TestOrganizationMembers(t *testing.T) {
	srv := newTestServer(t)
	org := createTestOrg(t, srv, 1, "Acme")

	rec := doRequest(t, srv, http.MethodPost, orgPath(org.ID, "/members"), 1, AddMemberRequest{UserID: 2})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201 adding member, got %d: %s", rec.Code, rec.Body.String())
	}
	var member orgs.Member
	decodeBody(t, rec, &member)
	if member.Role != orgs.RoleMember {
		t.Errorf("Expected default role member, got %s", member.Role)
	}

	rec = doRequest(t, srv, http.MethodGet, orgPath(org.ID, "/members"), 1, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 listing members, got %d", rec.Code)
	}
	var members []*orgs.Member
	decodeBody(t, rec, &members)
	if len(members) != 2 {
		t.Errorf("Expected 2 members, got %d", len(members))
	}

	rec = doRequest(t, srv, http.MethodPut, orgPath(org.ID, "/members/2"), 1, UpdateMemberRoleRequest{Role: orgs.RoleAdmin})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204 updating role, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodPut, orgPath(org.ID, "/members/2"), 1, UpdateMemberRoleRequest{Role: "superuser"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid role, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodDelete, orgPath(org.ID, "/members/2"), 1, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 removing member, got %d", rec.Code)
	}
}

func TestOrganization_NonAdminForbidden(t *testing.T) {
	srv := newTestServer(t)
	org := createTestOrg(t, srv, 1, "Acme")

	rec := doRequest(t, srv, http.MethodPost, orgPath(org.ID, "/members"), 1, AddMemberRequest{UserID: 2})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201 adding member, got %d", rec.Code)
	}

	// Plain members cannot administer the organization
	newName := "Hijacked"
	rec = doRequest(t, srv, http.MethodPut, orgPath(org.ID, ""), 2, orgs.UpdateOrgRequest{Name: &newName})
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for non-admin update, got %d", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodPost, orgPath(org.ID, "/members"), 2, AddMemberRequest{UserID: 3})
	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for non-admin member add, got %d", rec.Code)
	}
}

func TestInvitationFlow(t *testing.T) {
	srv := newTestServer(t)
	org := createTestOrg(t, srv, 1, "Acme")

	rec := doRequest(t, srv, http.MethodPost, orgPath(org.ID, "/invitations"), 1,
		CreateInvitationRequest{Email: "new@example.com"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201 creating invitation, got %d: %s", rec.Code, rec.Body.String())
	}
	var invitation orgs.Invitation
	decodeBody(t, rec, &invitation)
	if invitation.Token == "" {
		t.Fatal("Expected invitation token to be generated")
	}

	rec = doRequest(t, srv, http.MethodGet, orgPath(org.ID, "/invitations"), 1, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 listing invitations, got %d", rec.Code)
	}
	var invitations []*orgs.Invitation
	decodeBody(t, rec, &invitations)
	if len(invitations) != 1 {
		t.Errorf("Expected 1 pending invitation, got %d", len(invitations))
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/invitations/"+invitation.Token+"/accept", 5, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 accepting invitation, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, srv, http.MethodGet, orgPath(org.ID, "/members"), 1, nil)
	var members []*orgs.Member
	decodeBody(t, rec, &members)
	found := false
	for _, m := range members {
		if m.UserID == 5 {
			found = true
		}
	}
	if !found {
		t.Error("Expected accepted invitee to appear as a member")
	}

	rec = doRequest(t, srv, http.MethodPost, orgPath(org.ID, "/invitations"), 1,
		CreateInvitationRequest{Email: "other@example.com"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201 creating second invitation, got %d", rec.Code)
	}
	var second orgs.Invitation
	decodeBody(t, rec, &second)

	rec = doRequest(t, srv, http.MethodDelete, orgPath(org.ID, "/invitations/"+strconv.FormatInt(second.ID, 10)), 1, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 revoking invitation, got %d", rec.Code)
	}
}
