package workspaces

import (
	"context"
	"fmt"

	"github.com/knossos-io/knossos/pkg/access"
)

// GetChildren lists the direct children of a workspace. Access is checked
// on the parent only; a child's own accessibility is not consulted, since
// access never propagates along the tree.
func (s *Service) GetChildren(ctx context.Context, orgID, parentID, userID int64) ([]*Workspace, error) {
	parent, err := s.load(ctx, orgID, parentID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAccess(ctx, parent, userID); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, organization_id, name, description, owner_user_id, owner_team_id,
		       parent_workspace_id, created_at, updated_at
		FROM %s
		WHERE organization_id = $1 AND parent_workspace_id = $2
		ORDER BY name ASC
	`, s.schema.Workspaces)

	return s.query(ctx, query, orgID, parentID)
}

// GetParent returns a workspace's parent, or nil when it has none. Access
// is checked on the parent being returned, not on the child.
func (s *Service) GetParent(ctx context.Context, orgID, workspaceID, userID int64) (*Workspace, error) {
	child, err := s.load(ctx, orgID, workspaceID)
	if err != nil {
		return nil, err
	}
	if child.ParentWorkspaceID == nil {
		return nil, nil
	}

	parent, err := s.load(ctx, orgID, *child.ParentWorkspaceID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAccess(ctx, parent, userID); err != nil {
		return nil, err
	}
	return parent, nil
}

// requireAcyclic rejects a parent reassignment that would make the
// workspace its own ancestor. The walk keeps a visited set so a
// pre-existing cycle in stored data cannot hang it.
func (s *Service) requireAcyclic(ctx context.Context, workspaceID, newParentID int64) error {
	if workspaceID == newParentID {
		return &access.StructuralError{Reason: "workspace cannot be its own parent"}
	}

	query := fmt.Sprintf(`SELECT parent_workspace_id FROM %s WHERE id = $1`, s.schema.Workspaces)

	visited := map[int64]bool{workspaceID: true}
	current := newParentID
	for {
		if visited[current] {
			return &access.StructuralError{
				Reason: fmt.Sprintf("parent reassignment would create a cycle through workspace %d", current),
			}
		}
		visited[current] = true

		var parent *int64
		if err := s.db.QueryRowContext(ctx, query, current).Scan(&parent); err != nil {
			return fmt.Errorf("failed to walk workspace ancestry: %w", err)
		}
		if parent == nil {
			return nil
		}
		current = *parent
	}
}
