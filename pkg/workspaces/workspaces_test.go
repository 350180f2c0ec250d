package workspaces

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/knossos-io/knossos/pkg/access"
	"github.com/knossos-io/knossos/pkg/storage"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// Minimal tables for workspace management
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

		CREATE TABLE knowledge_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER NOT NULL,
			title TEXT NOT NULL,
			owner_user_id INTEGER,
			team_id INTEGER,
			workspace_id INTEGER,
			knowledge_group_id INTEGER
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

		CREATE TABLE knowledge_groups (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			organization_wide_access INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE knowledge_group_teams (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			knowledge_group_id INTEGER NOT NULL,
			team_id INTEGER NOT NULL
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create test tables: %v", err)
	}

	return db
}

func newTestService(t *testing.T) (*Service, *sql.DB) {
	t.Helper()
	db := setupTestDB(t)
	schema := storage.DefaultSchema()
	return NewService(db, schema, access.NewResolver(db, schema), nil), db
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

func createEntryRow(t *testing.T, db *sql.DB, orgID int64) int64 {
	return insertID(t, db, "INSERT INTO knowledge_entries (organization_id, title) VALUES (?, 'doc')", orgID)
}

func workspaceCount(t *testing.T, db *sql.DB, orgID int64) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM workspaces WHERE organization_id = ?", orgID).Scan(&n); err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	return n
}

func ptr(v int64) *int64 { return &v }
