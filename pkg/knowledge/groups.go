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

// RoleChecker answers whether a user holds an administrative role in an
// organization. Satisfied by orgs.PostgresService.
type RoleChecker interface {
	IsAdmin(ctx context.Context, orgID, userID int64) (bool, error)
}

// GroupRegistry manages knowledge groups and their team assignments.
// Mutations require the acting user to own the group or hold an admin role
// in the organization.
type GroupRegistry struct {
	db      *sql.DB
	schema  storage.Schema
	roles   RoleChecker
	auditor audit.Logger
}

// NewGroupRegistry creates a group registry. auditor may be nil.
func NewGroupRegistry(db *sql.DB, schema storage.Schema, roles RoleChecker, auditor audit.Logger) *GroupRegistry {
	if auditor == nil {
		auditor = audit.NopLogger()
	}
	return &GroupRegistry{db: db, schema: schema, roles: roles, auditor: auditor}
}

// CreateGroup creates a knowledge group owned by the acting user.
func (g *GroupRegistry) CreateGroup(ctx context.Context, group *Group, actingUserID int64) error {
	group.OwnerUserID = actingUserID

	query := fmt.Sprintf(`
		INSERT INTO %s (organization_id, name, description, owner_user_id, organization_wide_access)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, g.schema.KnowledgeGroups)
	err := g.db.QueryRowContext(ctx, query, group.OrganizationID, group.Name,
		group.Description, group.OwnerUserID, group.OrganizationWideAccess).
		Scan(&group.ID, &group.CreatedAt, &group.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create knowledge group: %w", err)
	}

	g.auditor.LogDataMutation(ctx, audit.EventTypeGroupCreate, &actingUserID, &group.OrganizationID,
		audit.ResourceTypeKnowledgeGroup, strconv.FormatInt(group.ID, 10), nil, "knowledge group created")
	return nil
}

// GetGroup retrieves a knowledge group by id within an organization.
func (g *GroupRegistry) GetGroup(ctx context.Context, orgID, groupID int64) (*Group, error) {
	query := fmt.Sprintf(`
		SELECT id, organization_id, name, description, owner_user_id, organization_wide_access, created_at, updated_at
		FROM %s
		WHERE id = $1 AND organization_id = $2
	`, g.schema.KnowledgeGroups)
	return scanGroup(g.db.QueryRowContext(ctx, query, groupID, orgID))
}

// ListGroups lists the knowledge groups in an organization.
func (g *GroupRegistry) ListGroups(ctx context.Context, orgID int64) ([]*Group, error) {
	query := fmt.Sprintf(`
		SELECT id, organization_id, name, description, owner_user_id, organization_wide_access, created_at, updated_at
		FROM %s
		WHERE organization_id = $1
		ORDER BY name ASC
	`, g.schema.KnowledgeGroups)

	rows, err := g.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge groups: %w", err)
	}
	defer rows.Close()

	var groups []*Group
	for rows.Next() {
		group, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

// UpdateGroup applies a partial update. The acting user must own the group
// or be an organization admin.
func (g *GroupRegistry) UpdateGroup(ctx context.Context, orgID, groupID, actingUserID int64, updates *UpdateGroupRequest) error {
	if err := g.requireAuthority(ctx, orgID, groupID, actingUserID); err != nil {
		return err
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
	if updates.OrganizationWideAccess != nil {
		args = append(args, *updates.OrganizationWideAccess)
		setClauses = append(setClauses, fmt.Sprintf("organization_wide_access = $%d", len(args)))
	}
	if len(setClauses) == 0 {
		return nil
	}

	args = append(args, groupID, orgID)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d AND organization_id = $%d",
		g.schema.KnowledgeGroups, strings.Join(setClauses, ", "), len(args)-1, len(args))

	result, err := g.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update knowledge group: %w", err)
	}
	if err := requireRows(result, access.ErrNotFound); err != nil {
		return err
	}

	g.auditor.LogDataMutation(ctx, audit.EventTypeGroupUpdate, &actingUserID, &orgID,
		audit.ResourceTypeKnowledgeGroup, strconv.FormatInt(groupID, 10), nil, "knowledge group updated")
	return nil
}

// DeleteGroup removes a knowledge group. Entries referencing it keep a
// dangling group id, which shares nothing.
func (g *GroupRegistry) DeleteGroup(ctx context.Context, orgID, groupID, actingUserID int64) error {
	if err := g.requireAuthority(ctx, orgID, groupID, actingUserID); err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND organization_id = $2`, g.schema.KnowledgeGroups)
	result, err := g.db.ExecContext(ctx, query, groupID, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete knowledge group: %w", err)
	}
	if err := requireRows(result, access.ErrNotFound); err != nil {
		return err
	}

	g.auditor.LogDataMutation(ctx, audit.EventTypeGroupDelete, &actingUserID, &orgID,
		audit.ResourceTypeKnowledgeGroup, strconv.FormatInt(groupID, 10), nil, "knowledge group deleted")
	return nil
}

// IsOrgWide reports whether the group shares its entries with the whole
// organization. A missing group shares nothing.
func (g *GroupRegistry) IsOrgWide(ctx context.Context, groupID int64) (bool, error) {
	query := fmt.Sprintf(`SELECT organization_wide_access FROM %s WHERE id = $1`, g.schema.KnowledgeGroups)
	var orgWide bool
	err := g.db.QueryRowContext(ctx, query, groupID).Scan(&orgWide)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check group scope: %w", err)
	}
	return orgWide, nil
}

// IsTeamAssigned reports whether any of the given teams is assigned to the
// group.
func (g *GroupRegistry) IsTeamAssigned(ctx context.Context, groupID int64, teamIDs []int64) (bool, error) {
	if len(teamIDs) == 0 {
		return false, nil
	}

	placeholders := make([]string, len(teamIDs))
	args := []interface{}{groupID}
	for i, id := range teamIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}
	query := fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1 FROM %s
			WHERE knowledge_group_id = $1 AND team_id IN (%s)
		)
	`, g.schema.KnowledgeGroupTeams, strings.Join(placeholders, ", "))

	var assigned bool
	if err := g.db.QueryRowContext(ctx, query, args...).Scan(&assigned); err != nil {
		return false, fmt.Errorf("failed to check team assignment: %w", err)
	}
	return assigned, nil
}

// AssignTeam assigns a team to the group. The team must belong to the same
// organization; assigning an already-assigned team is a no-op.
func (g *GroupRegistry) AssignTeam(ctx context.Context, orgID, groupID, teamID, actingUserID int64) error {
	if err := g.requireAuthority(ctx, orgID, groupID, actingUserID); err != nil {
		return err
	}
	if err := g.requireTeamInOrg(ctx, orgID, teamID); err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (knowledge_group_id, team_id, assigned_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (knowledge_group_id, team_id) DO NOTHING
	`, g.schema.KnowledgeGroupTeams)
	if _, err := g.db.ExecContext(ctx, query, groupID, teamID, actingUserID); err != nil {
		return fmt.Errorf("failed to assign team to group: %w", err)
	}

	g.auditor.LogDataMutation(ctx, audit.EventTypeGroupTeamAssign, &actingUserID, &orgID,
		audit.ResourceTypeKnowledgeGroup, strconv.FormatInt(groupID, 10), nil,
		fmt.Sprintf("team %d assigned", teamID))
	return nil
}

// RemoveTeam removes a team assignment from the group.
func (g *GroupRegistry) RemoveTeam(ctx context.Context, orgID, groupID, teamID, actingUserID int64) error {
	if err := g.requireAuthority(ctx, orgID, groupID, actingUserID); err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE knowledge_group_id = $1 AND team_id = $2`,
		g.schema.KnowledgeGroupTeams)
	result, err := g.db.ExecContext(ctx, query, groupID, teamID)
	if err != nil {
		return fmt.Errorf("failed to remove team from group: %w", err)
	}
	if err := requireRows(result, access.ErrNotFound); err != nil {
		return err
	}

	g.auditor.LogDataMutation(ctx, audit.EventTypeGroupTeamRemove, &actingUserID, &orgID,
		audit.ResourceTypeKnowledgeGroup, strconv.FormatInt(groupID, 10), nil,
		fmt.Sprintf("team %d removed", teamID))
	return nil
}

// ListTeams lists the team assignments of a group.
func (g *GroupRegistry) ListTeams(ctx context.Context, orgID, groupID int64) ([]*GroupTeamAssignment, error) {
	// Resolve the group first so a cross-tenant id reads as not found.
	if _, err := g.GetGroup(ctx, orgID, groupID); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT id, knowledge_group_id, team_id, assigned_by, assigned_at
		FROM %s
		WHERE knowledge_group_id = $1
		ORDER BY assigned_at ASC
	`, g.schema.KnowledgeGroupTeams)

	rows, err := g.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group teams: %w", err)
	}
	defer rows.Close()

	var assignments []*GroupTeamAssignment
	for rows.Next() {
		a := &GroupTeamAssignment{}
		var assignedBy sql.NullInt64
		if err := rows.Scan(&a.ID, &a.KnowledgeGroupID, &a.TeamID, &assignedBy, &a.AssignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group team: %w", err)
		}
		if assignedBy.Valid {
			id := assignedBy.Int64
			a.AssignedBy = &id
		}
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// requireAuthority resolves the group and verifies the acting user owns it
// or is an organization admin. Denials are audited.
func (g *GroupRegistry) requireAuthority(ctx context.Context, orgID, groupID, actingUserID int64) error {
	group, err := g.GetGroup(ctx, orgID, groupID)
	if err != nil {
		return err
	}
	if group.OwnerUserID == actingUserID {
		return nil
	}
	admin, err := g.roles.IsAdmin(ctx, orgID, actingUserID)
	if err != nil {
		return fmt.Errorf("failed to check admin role: %w", err)
	}
	if admin {
		return nil
	}

	g.auditor.LogAuthorization(ctx, audit.EventTypeAccessDenied, &actingUserID, &orgID,
		audit.ResourceTypeKnowledgeGroup, strconv.FormatInt(groupID, 10),
		audit.EventStatusDenied, "group mutation requires owner or admin")
	return access.ErrPermissionDenied
}

func (g *GroupRegistry) requireTeamInOrg(ctx context.Context, orgID, teamID int64) error {
	query := fmt.Sprintf(`
		SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1 AND organization_id = $2)
	`, g.schema.Teams)
	var ok bool
	if err := g.db.QueryRowContext(ctx, query, teamID, orgID).Scan(&ok); err != nil {
		return fmt.Errorf("failed to check team organization: %w", err)
	}
	if !ok {
		return access.ErrNotFound
	}
	return nil
}

func scanGroup(scanner interface{ Scan(dest ...interface{}) error }) (*Group, error) {
	group := &Group{}
	var description sql.NullString
	err := scanner.Scan(&group.ID, &group.OrganizationID, &group.Name, &description,
		&group.OwnerUserID, &group.OrganizationWideAccess, &group.CreatedAt, &group.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, access.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get knowledge group: %w", err)
	}
	if description.Valid {
		group.Description = description.String
	}
	return group, nil
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
