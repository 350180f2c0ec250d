package knowledge

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/knossos-io/knossos/pkg/audit"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// Minimal tables for knowledge management
	_, err = db.Exec(`
		CREATE TABLE organizations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL
		);

		CREATE TABLE teams (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER NOT NULL,
			name TEXT NOT NULL
		);

		CREATE TABLE team_members (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			team_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			UNIQUE(team_id, user_id)
		);

		CREATE TABLE workspaces (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			owner_user_id INTEGER,
			owner_team_id INTEGER,
			parent_workspace_id INTEGER
		);

		CREATE TABLE workspace_members (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			workspace_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
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
	`)
	if err != nil {
		t.Fatalf("Failed to create test tables: %v", err)
	}

	return db
}

func insertID(t *testing.T, db *sql.DB, query string, args ...interface{}) int64 {
	t.Helper()
	result, err := db.Exec(query, args...)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("LastInsertId failed: %v", err)
	}
	return id
}

func createOrg(t *testing.T, db *sql.DB, name string) int64 {
	return insertID(t, db, "INSERT INTO organizations (name) VALUES (?)", name)
}

func createTeam(t *testing.T, db *sql.DB, orgID int64, name string) int64 {
	return insertID(t, db, "INSERT INTO teams (organization_id, name) VALUES (?, ?)", orgID, name)
}

func addTeamMember(t *testing.T, db *sql.DB, teamID, userID int64) {
	insertID(t, db, "INSERT INTO team_members (team_id, user_id) VALUES (?, ?)", teamID, userID)
}

func ptr(v int64) *int64 { return &v }

// stubRoles is a RoleChecker backed by a fixed admin set.
type stubRoles struct {
	admins map[int64]bool
}

func (s stubRoles) IsAdmin(ctx context.Context, orgID, userID int64) (bool, error) {
	return s.admins[userID], nil
}

// captureLogger records audit events for assertions.
type captureLogger struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (c *captureLogger) record(e *audit.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *captureLogger) byType(eventType audit.EventType) []*audit.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*audit.Event
	for _, e := range c.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (c *captureLogger) Log(ctx context.Context, event *audit.Event) error {
	return c.record(event)
}

func (c *captureLogger) LogAuthorization(ctx context.Context, eventType audit.EventType, userID, orgID *int64, resourceType audit.ResourceType, resourceID string, status audit.EventStatus, message string) error {
	return c.record(&audit.Event{
		Timestamp: time.Now().UTC(), EventType: eventType, Status: status,
		UserID: userID, OrganizationID: orgID,
		ResourceType: resourceType, ResourceID: resourceID, Message: message,
	})
}

func (c *captureLogger) LogDataMutation(ctx context.Context, eventType audit.EventType, userID, orgID *int64, resourceType audit.ResourceType, resourceID string, changes *audit.ChangeDetails, message string) error {
	return c.record(&audit.Event{
		Timestamp: time.Now().UTC(), EventType: eventType, Status: audit.EventStatusSuccess,
		UserID: userID, OrganizationID: orgID,
		ResourceType: resourceType, ResourceID: resourceID, Changes: changes, Message: message,
	})
}

func (c *captureLogger) LogAdminAction(ctx context.Context, eventType audit.EventType, adminUserID, orgID *int64, message string) error {
	return c.record(&audit.Event{
		Timestamp: time.Now().UTC(), EventType: eventType, Status: audit.EventStatusSuccess,
		UserID: adminUserID, OrganizationID: orgID, Message: message,
	})
}

func (c *captureLogger) LogHTTPRequest(ctx context.Context, r *http.Request, statusCode int, duration time.Duration, err error) error {
	return nil
}

func (c *captureLogger) Close() error { return nil }
