package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all platform migrations for the given schema.
func GetMigrations(schema Schema) []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create organizations and membership tables",
			SQL: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %[1]s (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(255) NOT NULL UNIQUE,
					description TEXT,
					owner_user_id BIGINT,
					status VARCHAR(50) NOT NULL DEFAULT 'active',
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS %[2]s (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES %[1]s(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL,
					role VARCHAR(50) NOT NULL DEFAULT 'member',
					invited_by BIGINT,
					joined_at TIMESTAMP NOT NULL DEFAULT NOW(),
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(organization_id, user_id)
				);
				CREATE INDEX idx_org_members_user_id ON %[2]s(user_id);

				CREATE TABLE IF NOT EXISTS %[3]s (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES %[1]s(id) ON DELETE CASCADE,
					email VARCHAR(255) NOT NULL,
					role VARCHAR(50) NOT NULL DEFAULT 'member',
					token VARCHAR(128) NOT NULL UNIQUE,
					invited_by BIGINT,
					invited_at TIMESTAMP NOT NULL DEFAULT NOW(),
					expires_at TIMESTAMP NOT NULL,
					accepted_at TIMESTAMP,
					accepted_by BIGINT,
					UNIQUE(organization_id, email)
				);
			`, schema.Organizations, schema.OrganizationMembers, schema.OrganizationInvites),
		},
		{
			Version:     2,
			Description: "Create teams and team membership tables",
			SQL: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %[1]s (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES %[2]s(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					created_by BIGINT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(organization_id, name)
				);

				CREATE TABLE IF NOT EXISTS %[3]s (
					id BIGSERIAL PRIMARY KEY,
					team_id BIGINT NOT NULL REFERENCES %[1]s(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL,
					role VARCHAR(50),
					added_by BIGINT,
					added_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(team_id, user_id)
				);
				CREATE INDEX idx_team_members_user_id ON %[3]s(user_id);
			`, schema.Teams, schema.Organizations, schema.TeamMembers),
		},
		{
			Version:     3,
			Description: "Create workspace tables",
			SQL: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %[1]s (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES %[2]s(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					owner_user_id BIGINT,
					owner_team_id BIGINT REFERENCES %[3]s(id) ON DELETE SET NULL,
					parent_workspace_id BIGINT REFERENCES %[1]s(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					CHECK (owner_user_id IS NULL OR owner_team_id IS NULL)
				);
				CREATE INDEX idx_workspaces_org_id ON %[1]s(organization_id);
				CREATE INDEX idx_workspaces_parent_id ON %[1]s(parent_workspace_id);

				CREATE TABLE IF NOT EXISTS %[4]s (
					id BIGSERIAL PRIMARY KEY,
					workspace_id BIGINT NOT NULL REFERENCES %[1]s(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL,
					added_by BIGINT,
					added_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(workspace_id, user_id)
				);
				CREATE INDEX idx_workspace_members_user_id ON %[4]s(user_id);
			`, schema.Workspaces, schema.Organizations, schema.Teams, schema.WorkspaceMembers),
		},
		{
			Version:     4,
			Description: "Create knowledge group tables",
			SQL: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %[1]s (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES %[2]s(id) ON DELETE CASCADE,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					owner_user_id BIGINT NOT NULL,
					organization_wide_access BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
				CREATE INDEX idx_knowledge_groups_org_id ON %[1]s(organization_id);

				CREATE TABLE IF NOT EXISTS %[3]s (
					id BIGSERIAL PRIMARY KEY,
					knowledge_group_id BIGINT NOT NULL REFERENCES %[1]s(id) ON DELETE CASCADE,
					team_id BIGINT NOT NULL REFERENCES %[4]s(id) ON DELETE CASCADE,
					assigned_by BIGINT,
					assigned_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(knowledge_group_id, team_id)
				);
			`, schema.KnowledgeGroups, schema.Organizations, schema.KnowledgeGroupTeams, schema.Teams),
		},
		{
			Version:     5,
			Description: "Create knowledge entry, filter and chunk tables",
			SQL: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %[1]s (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES %[2]s(id) ON DELETE CASCADE,
					title VARCHAR(512) NOT NULL,
					description TEXT,
					source_ref VARCHAR(1024),
					owner_user_id BIGINT,
					team_id BIGINT REFERENCES %[3]s(id) ON DELETE SET NULL,
					workspace_id BIGINT REFERENCES %[4]s(id) ON DELETE SET NULL,
					knowledge_group_id BIGINT REFERENCES %[5]s(id) ON DELETE SET NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
				CREATE INDEX idx_knowledge_entries_org_id ON %[1]s(organization_id);
				CREATE INDEX idx_knowledge_entries_team_id ON %[1]s(team_id);
				CREATE INDEX idx_knowledge_entries_workspace_id ON %[1]s(workspace_id);
				CREATE INDEX idx_knowledge_entries_group_id ON %[1]s(knowledge_group_id);

				CREATE TABLE IF NOT EXISTS %[6]s (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES %[2]s(id) ON DELETE CASCADE,
					category VARCHAR(255) NOT NULL,
					name VARCHAR(255) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(organization_id, category, name)
				);

				CREATE TABLE IF NOT EXISTS %[7]s (
					id BIGSERIAL PRIMARY KEY,
					knowledge_entry_id BIGINT NOT NULL REFERENCES %[1]s(id) ON DELETE CASCADE,
					knowledge_filter_id BIGINT NOT NULL REFERENCES %[6]s(id) ON DELETE CASCADE,
					UNIQUE(knowledge_entry_id, knowledge_filter_id)
				);

				CREATE TABLE IF NOT EXISTS %[8]s (
					id BIGSERIAL PRIMARY KEY,
					knowledge_entry_id BIGINT NOT NULL REFERENCES %[1]s(id) ON DELETE CASCADE,
					chunk_index INT NOT NULL,
					content TEXT NOT NULL,
					embedding DOUBLE PRECISION[] NOT NULL DEFAULT '{}',
					embedding_model VARCHAR(255) NOT NULL DEFAULT '',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(knowledge_entry_id, chunk_index)
				);
			`, schema.KnowledgeEntries, schema.Organizations, schema.Teams,
				schema.Workspaces, schema.KnowledgeGroups, schema.KnowledgeFilters,
				schema.KnowledgeEntryFilter, schema.KnowledgeChunks),
		},
		{
			Version:     6,
			Description: "Create workspace attachable resource tables",
			SQL: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %[1]s (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES %[4]s(id) ON DELETE CASCADE,
					workspace_id BIGINT REFERENCES %[5]s(id) ON DELETE SET NULL,
					name VARCHAR(255) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
				CREATE TABLE IF NOT EXISTS %[2]s (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES %[4]s(id) ON DELETE CASCADE,
					workspace_id BIGINT REFERENCES %[5]s(id) ON DELETE SET NULL,
					name VARCHAR(255) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
				CREATE TABLE IF NOT EXISTS %[3]s (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES %[4]s(id) ON DELETE CASCADE,
					workspace_id BIGINT REFERENCES %[5]s(id) ON DELETE SET NULL,
					name VARCHAR(255) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT NOW()
				);
			`, schema.PromptTemplates, schema.ChatGroups, schema.ChatSessions,
				schema.Organizations, schema.Workspaces),
		},
		{
			Version:     7,
			Description: "Create audit log table",
			SQL: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS %[1]s (
					id BIGSERIAL PRIMARY KEY,
					timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
					event_type VARCHAR(100) NOT NULL,
					status VARCHAR(20) NOT NULL,
					user_id BIGINT,
					organization_id BIGINT,
					resource_type VARCHAR(50),
					resource_id VARCHAR(255),
					resource_name VARCHAR(255),
					ip_address VARCHAR(45),
					user_agent TEXT,
					request_id VARCHAR(100),
					method VARCHAR(10),
					path TEXT,
					status_code INTEGER,
					message TEXT,
					error_message TEXT,
					metadata JSONB,
					changes JSONB,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);
				CREATE INDEX idx_audit_logs_timestamp ON %[1]s(timestamp DESC);
				CREATE INDEX idx_audit_logs_event_type ON %[1]s(event_type);
				CREATE INDEX idx_audit_logs_org_id ON %[1]s(organization_id);
				CREATE INDEX idx_audit_logs_resource ON %[1]s(resource_type, resource_id);
			`, schema.AuditLogs),
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB, schema Schema) error {
	if err := schema.Validate(); err != nil {
		return err
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations(schema) {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
