package workspaces

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

// Service manages workspaces, their membership, and their place in the
// parent/child tree. All user-facing reads and every mutation are gated
// through the access resolver.
type Service struct {
	db       *sql.DB
	schema   storage.Schema
	resolver *access.Resolver
	auditor  audit.Logger
}

// NewService creates a workspace service. auditor may be nil.
func NewService(db *sql.DB, schema storage.Schema, resolver *access.Resolver, auditor audit.Logger) *Service {
	if auditor == nil {
		auditor = audit.NopLogger()
	}
	return &Service{db: db, schema: schema, resolver: resolver, auditor: auditor}
}

// Create inserts a workspace and attaches the resources named in bundle in
// one transaction. If any attachment fails, nothing is created.
//
// The workspace must name at most one of a direct owner and an owning
// team. Attached resources must already belong to the workspace's
// organization; an id that does not resolve there aborts the whole create.
func (s *Service) Create(ctx context.Context, ws *Workspace, bundle *RelationBundle, actingUserID int64) error {
	if ws.OwnerUserID != nil && ws.OwnerTeamID != nil {
		return &access.StructuralError{Reason: "workspace cannot have both a direct owner and an owning team"}
	}
	if ws.OwnerTeamID != nil {
		if err := s.requireTeamInOrg(ctx, ws.OrganizationID, *ws.OwnerTeamID); err != nil {
			return err
		}
	}
	if ws.ParentWorkspaceID != nil {
		if err := s.requireWorkspaceInOrg(ctx, ws.OrganizationID, *ws.ParentWorkspaceID); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (organization_id, name, description, owner_user_id, owner_team_id, parent_workspace_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, s.schema.Workspaces)
	err = tx.QueryRowContext(ctx, query, ws.OrganizationID, ws.Name, ws.Description,
		ws.OwnerUserID, ws.OwnerTeamID, ws.ParentWorkspaceID).
		Scan(&ws.ID, &ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create workspace: %w", err)
	}

	if bundle != nil {
		if err := s.attach(ctx, tx, s.schema.KnowledgeEntries, ws, bundle.KnowledgeEntryIDs); err != nil {
			return err
		}
		if err := s.attach(ctx, tx, s.schema.PromptTemplates, ws, bundle.PromptTemplateIDs); err != nil {
			return err
		}
		if err := s.attach(ctx, tx, s.schema.ChatGroups, ws, bundle.ChatGroupIDs); err != nil {
			return err
		}
		if err := s.attach(ctx, tx, s.schema.ChatSessions, ws, bundle.ChatSessionIDs); err != nil {
			return err
		}

		insert := fmt.Sprintf(`
			INSERT INTO %s (workspace_id, user_id, added_by)
			VALUES ($1, $2, $3)
			ON CONFLICT (workspace_id, user_id) DO NOTHING
		`, s.schema.WorkspaceMembers)
		for _, userID := range bundle.UserIDs {
			if _, err := tx.ExecContext(ctx, insert, ws.ID, userID, actingUserID); err != nil {
				return fmt.Errorf("failed to add workspace member: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit workspace creation: %w", err)
	}

	s.auditor.LogDataMutation(ctx, audit.EventTypeWorkspaceCreate, &actingUserID, &ws.OrganizationID,
		audit.ResourceTypeWorkspace, strconv.FormatInt(ws.ID, 10), nil, "workspace created")
	return nil
}

// attach points the named rows of table at the workspace. Every id must
// resolve inside the workspace's organization or the attach fails.
func (s *Service) attach(ctx context.Context, tx *sql.Tx, table string, ws *Workspace, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := []interface{}{ws.ID, ws.OrganizationID}
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		UPDATE %s SET workspace_id = $1
		WHERE organization_id = $2 AND id IN (%s)
	`, table, strings.Join(placeholders, ", "))

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to attach resources to workspace: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected != int64(len(ids)) {
		return access.ErrNotFound
	}
	return nil
}

// Get retrieves a workspace on behalf of a user. A missing or cross-tenant
// id reads as not found; a workspace the user cannot access reads as
// permission denied.
func (s *Service) Get(ctx context.Context, orgID, workspaceID, userID int64) (*Workspace, error) {
	ws, err := s.load(ctx, orgID, workspaceID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAccess(ctx, ws, userID); err != nil {
		return nil, err
	}
	return ws, nil
}

// List returns every workspace in the organization the user can reach:
// directly owned, owned by one of the user's teams, or explicitly shared.
func (s *Service) List(ctx context.Context, orgID, userID int64) ([]*Workspace, error) {
	ids, err := s.resolver.Memberships().WorkspacesOf(ctx, userID, orgID, nil)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := []interface{}{orgID}
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		SELECT id, organization_id, name, description, owner_user_id, owner_team_id,
		       parent_workspace_id, created_at, updated_at
		FROM %s
		WHERE organization_id = $1 AND id IN (%s)
		ORDER BY name ASC
	`, s.schema.Workspaces, strings.Join(placeholders, ", "))

	return s.query(ctx, query, args...)
}

// ListShared returns the workspaces in the organization shared with the
// user through an explicit membership row.
func (s *Service) ListShared(ctx context.Context, orgID, userID int64) ([]*Workspace, error) {
	query := fmt.Sprintf(`
		SELECT w.id, w.organization_id, w.name, w.description, w.owner_user_id, w.owner_team_id,
		       w.parent_workspace_id, w.created_at, w.updated_at
		FROM %s w
		JOIN %s wm ON wm.workspace_id = w.id
		WHERE w.organization_id = $1 AND wm.user_id = $2
		ORDER BY w.name ASC
	`, s.schema.Workspaces, s.schema.WorkspaceMembers)

	return s.query(ctx, query, orgID, userID)
}

// Update applies a partial update on behalf of a user. Ownership stays
// exclusive, a new owning team must belong to the organization, and a new
// parent must belong to the organization without creating a cycle.
func (s *Service) Update(ctx context.Context, orgID, workspaceID, actingUserID int64, updates *UpdateRequest) error {
	ws, err := s.load(ctx, orgID, workspaceID)
	if err != nil {
		return err
	}
	if err := s.requireAccess(ctx, ws, actingUserID); err != nil {
		return err
	}

	// Resulting ownership must stay exclusive.
	ownerUser := ws.OwnerUserID
	if updates.OwnerUserID.Apply {
		ownerUser = updates.OwnerUserID.ID
	}
	ownerTeam := ws.OwnerTeamID
	if updates.OwnerTeamID.Apply {
		ownerTeam = updates.OwnerTeamID.ID
	}
	if ownerUser != nil && ownerTeam != nil {
		return &access.StructuralError{Reason: "workspace cannot have both a direct owner and an owning team"}
	}

	if updates.OwnerTeamID.Apply && updates.OwnerTeamID.ID != nil {
		if err := s.requireTeamInOrg(ctx, orgID, *updates.OwnerTeamID.ID); err != nil {
			return err
		}
	}
	if updates.ParentWorkspaceID.Apply && updates.ParentWorkspaceID.ID != nil {
		newParent := *updates.ParentWorkspaceID.ID
		if err := s.requireWorkspaceInOrg(ctx, orgID, newParent); err != nil {
			return err
		}
		if err := s.requireAcyclic(ctx, workspaceID, newParent); err != nil {
			return err
		}
	}

	setClauses := []string{}
	args := []interface{}{}

	if updates.Name != nil {
		args = append(args, *updates.Name)
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", len(args)))
	}
	if updates.Description != nil {
		args = append(args, *updates.Description)
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", len(args)))
	}
	if updates.OwnerUserID.Apply {
		args = append(args, updates.OwnerUserID.ID)
		setClauses = append(setClauses, fmt.Sprintf("owner_user_id = $%d", len(args)))
	}
	if updates.OwnerTeamID.Apply {
		args = append(args, updates.OwnerTeamID.ID)
		setClauses = append(setClauses, fmt.Sprintf("owner_team_id = $%d", len(args)))
	}
	if updates.ParentWorkspaceID.Apply {
		args = append(args, updates.ParentWorkspaceID.ID)
		setClauses = append(setClauses, fmt.Sprintf("parent_workspace_id = $%d", len(args)))
	}
	if len(setClauses) == 0 {
		return nil
	}

	args = append(args, workspaceID, orgID)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d AND organization_id = $%d",
		s.schema.Workspaces, strings.Join(setClauses, ", "), len(args)-1, len(args))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update workspace: %w", err)
	}
	if err := requireRows(result, access.ErrNotFound); err != nil {
		return err
	}

	s.auditor.LogDataMutation(ctx, audit.EventTypeWorkspaceUpdate, &actingUserID, &orgID,
		audit.ResourceTypeWorkspace, strconv.FormatInt(workspaceID, 10), nil, "workspace updated")
	return nil
}

// Delete removes a workspace on behalf of a user. Attached resources keep
// their rows with the workspace reference nulled; membership rows cascade.
func (s *Service) Delete(ctx context.Context, orgID, workspaceID, actingUserID int64) error {
	ws, err := s.load(ctx, orgID, workspaceID)
	if err != nil {
		return err
	}
	if err := s.requireAccess(ctx, ws, actingUserID); err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND organization_id = $2`, s.schema.Workspaces)
	result, err := s.db.ExecContext(ctx, query, workspaceID, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}
	if err := requireRows(result, access.ErrNotFound); err != nil {
		return err
	}

	s.auditor.LogDataMutation(ctx, audit.EventTypeWorkspaceDelete, &actingUserID, &orgID,
		audit.ResourceTypeWorkspace, strconv.FormatInt(workspaceID, 10), nil, "workspace deleted")
	return nil
}

// load fetches a workspace scoped to the organization.
func (s *Service) load(ctx context.Context, orgID, workspaceID int64) (*Workspace, error) {
	query := fmt.Sprintf(`
		SELECT id, organization_id, name, description, owner_user_id, owner_team_id,
		       parent_workspace_id, created_at, updated_at
		FROM %s
		WHERE id = $1 AND organization_id = $2
	`, s.schema.Workspaces)
	return scanWorkspace(s.db.QueryRowContext(ctx, query, workspaceID, orgID))
}

// requireAccess checks the resolver's workspace decision for a workspace
// already known to be in the caller's organization. Denials are audited.
func (s *Service) requireAccess(ctx context.Context, ws *Workspace, userID int64) error {
	allowed, err := s.resolver.CanAccessWorkspace(ctx, ws.ID, userID)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditor.LogAuthorization(ctx, audit.EventTypeAccessDenied, &userID, &ws.OrganizationID,
			audit.ResourceTypeWorkspace, strconv.FormatInt(ws.ID, 10),
			audit.EventStatusDenied, "workspace access denied")
		return access.ErrPermissionDenied
	}
	return nil
}

func (s *Service) requireTeamInOrg(ctx context.Context, orgID, teamID int64) error {
	query := fmt.Sprintf(`
		SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1 AND organization_id = $2)
	`, s.schema.Teams)
	var ok bool
	if err := s.db.QueryRowContext(ctx, query, teamID, orgID).Scan(&ok); err != nil {
		return fmt.Errorf("failed to check team organization: %w", err)
	}
	if !ok {
		return access.ErrNotFound
	}
	return nil
}

func (s *Service) requireWorkspaceInOrg(ctx context.Context, orgID, workspaceID int64) error {
	query := fmt.Sprintf(`
		SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1 AND organization_id = $2)
	`, s.schema.Workspaces)
	var ok bool
	if err := s.db.QueryRowContext(ctx, query, workspaceID, orgID).Scan(&ok); err != nil {
		return fmt.Errorf("failed to check workspace organization: %w", err)
	}
	if !ok {
		return access.ErrNotFound
	}
	return nil
}

func (s *Service) query(ctx context.Context, query string, args ...interface{}) ([]*Workspace, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var result []*Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ws)
	}
	return result, rows.Err()
}

func scanWorkspace(scanner interface{ Scan(dest ...interface{}) error }) (*Workspace, error) {
	ws := &Workspace{}
	var description sql.NullString
	var ownerUserID, ownerTeamID, parentID sql.NullInt64
	err := scanner.Scan(&ws.ID, &ws.OrganizationID, &ws.Name, &description,
		&ownerUserID, &ownerTeamID, &parentID, &ws.CreatedAt, &ws.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, access.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	if description.Valid {
		ws.Description = description.String
	}
	ws.OwnerUserID = nullableID(ownerUserID)
	ws.OwnerTeamID = nullableID(ownerTeamID)
	ws.ParentWorkspaceID = nullableID(parentID)
	return ws, nil
}

func nullableID(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

// requireRows converts a zero-row result into notFound.
func requireRows(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
