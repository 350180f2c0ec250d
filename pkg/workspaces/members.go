package workspaces

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/knossos-io/knossos/pkg/access"
	"github.com/knossos-io/knossos/pkg/audit"
)

// AddUsers shares a workspace with the given users. The requesting user
// must have access to the workspace; adding an existing member is a no-op.
func (s *Service) AddUsers(ctx context.Context, orgID, workspaceID int64, userIDs []int64, requestingUserID int64) error {
	ws, err := s.load(ctx, orgID, workspaceID)
	if err != nil {
		return err
	}
	if err := s.requireAccess(ctx, ws, requestingUserID); err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (workspace_id, user_id, added_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (workspace_id, user_id) DO NOTHING
	`, s.schema.WorkspaceMembers)
	for _, userID := range userIDs {
		if _, err := s.db.ExecContext(ctx, query, workspaceID, userID, requestingUserID); err != nil {
			return fmt.Errorf("failed to add workspace member: %w", err)
		}
	}

	s.auditor.LogDataMutation(ctx, audit.EventTypeWorkspaceUserAdd, &requestingUserID, &orgID,
		audit.ResourceTypeWorkspace, strconv.FormatInt(workspaceID, 10), nil,
		fmt.Sprintf("%d users added", len(userIDs)))
	return nil
}

// RemoveUsers removes explicit members from a workspace.
//
// A workspace held by neither an owner nor an owning team must keep at
// least one member: a non-owner cannot empty it. The direct owner may
// always remove anyone, including themselves; removing the direct owner
// from the member list clears the owner pointer.
func (s *Service) RemoveUsers(ctx context.Context, orgID, workspaceID int64, userIDs []int64, requestingUserID int64) error {
	ws, err := s.load(ctx, orgID, workspaceID)
	if err != nil {
		return err
	}
	if err := s.requireAccess(ctx, ws, requestingUserID); err != nil {
		return err
	}
	if len(userIDs) == 0 {
		return nil
	}

	memberCount, removable, err := s.countRemovable(ctx, workspaceID, userIDs)
	if err != nil {
		return err
	}

	isOwner := ws.OwnerUserID != nil && *ws.OwnerUserID == requestingUserID
	ownerRemoved := ws.OwnerUserID != nil && containsID(userIDs, *ws.OwnerUserID)
	ownerUserAfter := ws.OwnerUserID
	if ownerRemoved {
		ownerUserAfter = nil
	}

	if !isOwner && removable > 0 && memberCount-removable == 0 &&
		ownerUserAfter == nil && ws.OwnerTeamID == nil {
		return &access.StructuralError{
			Reason: "workspace would be left with no owner and no members",
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	placeholders := make([]string, len(userIDs))
	args := []interface{}{workspaceID}
	for i, id := range userIDs {
		placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
		args = append(args, id)
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE workspace_id = $1 AND user_id IN (%s)`,
		s.schema.WorkspaceMembers, strings.Join(placeholders, ", "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to remove workspace members: %w", err)
	}

	if ownerRemoved {
		query = fmt.Sprintf(`UPDATE %s SET owner_user_id = NULL WHERE id = $1`, s.schema.Workspaces)
		if _, err := tx.ExecContext(ctx, query, workspaceID); err != nil {
			return fmt.Errorf("failed to clear workspace owner: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit member removal: %w", err)
	}

	s.auditor.LogDataMutation(ctx, audit.EventTypeWorkspaceUserRemove, &requestingUserID, &orgID,
		audit.ResourceTypeWorkspace, strconv.FormatInt(workspaceID, 10), nil,
		fmt.Sprintf("%d users removed", removable))
	return nil
}

// ListUsers lists the explicit members of a workspace. The requesting user
// must have access to the workspace.
func (s *Service) ListUsers(ctx context.Context, orgID, workspaceID, requestingUserID int64) ([]*Member, error) {
	ws, err := s.load(ctx, orgID, workspaceID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAccess(ctx, ws, requestingUserID); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, workspace_id, user_id, added_by, added_at
		FROM %s
		WHERE workspace_id = $1
		ORDER BY added_at ASC
	`, s.schema.WorkspaceMembers)

	rows, err := s.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspace members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		member := &Member{}
		var addedBy sql.NullInt64
		if err := rows.Scan(&member.ID, &member.WorkspaceID, &member.UserID,
			&addedBy, &member.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workspace member: %w", err)
		}
		member.AddedBy = nullableID(addedBy)
		members = append(members, member)
	}
	return members, rows.Err()
}

// countRemovable returns the current member count and how many of the
// given user ids actually hold membership rows.
func (s *Service) countRemovable(ctx context.Context, workspaceID int64, userIDs []int64) (int64, int64, error) {
	placeholders := make([]string, len(userIDs))
	args := make([]interface{}, 0, len(userIDs)+1)
	for i, id := range userIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, id)
	}
	args = append(args, workspaceID)

	query := fmt.Sprintf(`
		SELECT COUNT(*), COUNT(*) FILTER (WHERE user_id IN (%s))
		FROM %s
		WHERE workspace_id = $%d
	`, strings.Join(placeholders, ", "), s.schema.WorkspaceMembers, len(userIDs)+1)

	var total, removable int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total, &removable); err != nil {
		return 0, 0, fmt.Errorf("failed to count workspace members: %w", err)
	}
	return total, removable, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
