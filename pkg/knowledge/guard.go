package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/knossos-io/knossos/pkg/access"
	"github.com/knossos-io/knossos/pkg/audit"
	"github.com/knossos-io/knossos/pkg/storage"
)

// MutationGuard wraps entry mutations in access checks. Every update and
// delete first resolves the entry through the access resolver; reference
// reassignments are additionally validated against the acting user's
// memberships. Denials and destructive grants are audited.
type MutationGuard struct {
	db       *sql.DB
	schema   storage.Schema
	resolver *access.Resolver
	auditor  audit.Logger
}

// NewMutationGuard creates a mutation guard. auditor may be nil.
func NewMutationGuard(db *sql.DB, schema storage.Schema, resolver *access.Resolver, auditor audit.Logger) *MutationGuard {
	if auditor == nil {
		auditor = audit.NopLogger()
	}
	return &MutationGuard{db: db, schema: schema, resolver: resolver, auditor: auditor}
}

// UpdateEntry applies a partial update to an entry on behalf of a user.
//
// The entry must resolve for the acting user. Reassigning the team
// reference requires the acting user to belong to the new team, so a user
// cannot share an entry into a team they are not part of. Reassigning the
// workspace reference requires access to the new workspace.
func (m *MutationGuard) UpdateEntry(ctx context.Context, orgID, entryID, actingUserID int64, updates *UpdateEntryRequest) error {
	if err := m.requireEntryAccess(ctx, orgID, entryID, actingUserID); err != nil {
		return err
	}

	if updates.TeamID.Apply && updates.TeamID.ID != nil {
		if err := m.requireActingUserInTeam(ctx, orgID, *updates.TeamID.ID, actingUserID); err != nil {
			return err
		}
	}
	if updates.WorkspaceID.Apply && updates.WorkspaceID.ID != nil {
		if err := m.requireWorkspaceAccess(ctx, orgID, *updates.WorkspaceID.ID, actingUserID); err != nil {
			return err
		}
	}
	if updates.KnowledgeGroupID.Apply && updates.KnowledgeGroupID.ID != nil {
		if err := m.requireGroupInOrg(ctx, orgID, *updates.KnowledgeGroupID.ID); err != nil {
			return err
		}
	}

	setClauses := []string{}
	args := []interface{}{}

	if updates.Title != nil {
		args = append(args, *updates.Title)
		setClauses = append(setClauses, fmt.Sprintf("title = $%d", len(args)))
	}
	if updates.Description != nil {
		args = append(args, *updates.Description)
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", len(args)))
	}
	if updates.SourceRef != nil {
		args = append(args, *updates.SourceRef)
		setClauses = append(setClauses, fmt.Sprintf("source_ref = $%d", len(args)))
	}
	if updates.TeamID.Apply {
		args = append(args, updates.TeamID.ID)
		setClauses = append(setClauses, fmt.Sprintf("team_id = $%d", len(args)))
	}
	if updates.WorkspaceID.Apply {
		args = append(args, updates.WorkspaceID.ID)
		setClauses = append(setClauses, fmt.Sprintf("workspace_id = $%d", len(args)))
	}
	if updates.KnowledgeGroupID.Apply {
		args = append(args, updates.KnowledgeGroupID.ID)
		setClauses = append(setClauses, fmt.Sprintf("knowledge_group_id = $%d", len(args)))
	}
	if len(setClauses) == 0 {
		return nil
	}

	args = append(args, entryID, orgID)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d AND organization_id = $%d",
		m.schema.KnowledgeEntries, strings.Join(setClauses, ", "), len(args)-1, len(args))

	result, err := m.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	if err := requireRows(result, access.ErrNotFound); err != nil {
		return err
	}

	m.auditor.LogDataMutation(ctx, audit.EventTypeEntryUpdate, &actingUserID, &orgID,
		audit.ResourceTypeKnowledgeEntry, strconv.FormatInt(entryID, 10), nil, "entry updated")
	return nil
}

// DeleteEntry deletes an entry on behalf of a user. Chunks and filter
// assignments go with it via cascade.
func (m *MutationGuard) DeleteEntry(ctx context.Context, orgID, entryID, actingUserID int64) error {
	if err := m.requireEntryAccess(ctx, orgID, entryID, actingUserID); err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND organization_id = $2`,
		m.schema.KnowledgeEntries)
	result, err := m.db.ExecContext(ctx, query, entryID, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	if err := requireRows(result, access.ErrNotFound); err != nil {
		return err
	}

	m.auditor.LogDataMutation(ctx, audit.EventTypeEntryDelete, &actingUserID, &orgID,
		audit.ResourceTypeKnowledgeEntry, strconv.FormatInt(entryID, 10), nil, "entry deleted")
	return nil
}

// requireEntryAccess resolves the entry for the acting user. Missing and
// cross-tenant ids read as not found; a resolvable but inaccessible entry
// reads as permission denied and is audited.
func (m *MutationGuard) requireEntryAccess(ctx context.Context, orgID, entryID, actingUserID int64) error {
	allowed, err := m.resolver.CanAccessEntry(ctx, entryID, actingUserID, orgID)
	if err != nil {
		return err
	}
	if !allowed {
		m.auditor.LogAuthorization(ctx, audit.EventTypeAccessDenied, &actingUserID, &orgID,
			audit.ResourceTypeKnowledgeEntry, strconv.FormatInt(entryID, 10),
			audit.EventStatusDenied, "entry mutation denied")
		return access.ErrPermissionDenied
	}
	return nil
}

// requireActingUserInTeam verifies the team resolves in the organization
// and contains the acting user.
func (m *MutationGuard) requireActingUserInTeam(ctx context.Context, orgID, teamID, actingUserID int64) error {
	query := fmt.Sprintf(`
		SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1 AND organization_id = $2)
	`, m.schema.Teams)
	var inOrg bool
	if err := m.db.QueryRowContext(ctx, query, teamID, orgID).Scan(&inOrg); err != nil {
		return fmt.Errorf("failed to check team organization: %w", err)
	}
	if !inOrg {
		return access.ErrNotFound
	}

	query = fmt.Sprintf(`
		SELECT EXISTS (SELECT 1 FROM %s WHERE team_id = $1 AND user_id = $2)
	`, m.schema.TeamMembers)
	var inTeam bool
	if err := m.db.QueryRowContext(ctx, query, teamID, actingUserID).Scan(&inTeam); err != nil {
		return fmt.Errorf("failed to check team membership: %w", err)
	}
	if !inTeam {
		return &access.StructuralError{
			Reason: fmt.Sprintf("cannot assign entry to team %d: acting user is not a member", teamID),
		}
	}
	return nil
}

// requireWorkspaceAccess verifies the workspace resolves in the
// organization and is accessible to the acting user.
func (m *MutationGuard) requireWorkspaceAccess(ctx context.Context, orgID, workspaceID, actingUserID int64) error {
	query := fmt.Sprintf(`
		SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1 AND organization_id = $2)
	`, m.schema.Workspaces)
	var inOrg bool
	if err := m.db.QueryRowContext(ctx, query, workspaceID, orgID).Scan(&inOrg); err != nil {
		return fmt.Errorf("failed to check workspace organization: %w", err)
	}
	if !inOrg {
		return access.ErrNotFound
	}

	allowed, err := m.resolver.CanAccessWorkspace(ctx, workspaceID, actingUserID)
	if err != nil {
		return err
	}
	if !allowed {
		return access.ErrPermissionDenied
	}
	return nil
}

func (m *MutationGuard) requireGroupInOrg(ctx context.Context, orgID, groupID int64) error {
	query := fmt.Sprintf(`
		SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1 AND organization_id = $2)
	`, m.schema.KnowledgeGroups)
	var ok bool
	if err := m.db.QueryRowContext(ctx, query, groupID, orgID).Scan(&ok); err != nil {
		return fmt.Errorf("failed to check group organization: %w", err)
	}
	if !ok {
		return access.ErrNotFound
	}
	return nil
}
