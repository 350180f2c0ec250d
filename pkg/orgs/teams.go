package orgs

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/knossos-io/knossos/pkg/access"
)

// CreateTeam creates a new team within an organization.
func (s *PostgresService) CreateTeam(ctx context.Context, team *Team) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (organization_id, name, description, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, s.schema.Teams)
	err := s.db.QueryRowContext(ctx, query, team.OrganizationID, team.Name,
		team.Description, team.CreatedBy).
		Scan(&team.ID, &team.CreatedAt, &team.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}
	return nil
}

// GetTeam retrieves a team by id within an organization.
func (s *PostgresService) GetTeam(ctx context.Context, orgID, teamID int64) (*Team, error) {
	query := fmt.Sprintf(`
		SELECT id, organization_id, name, description, created_by, created_at, updated_at
		FROM %s
		WHERE id = $1 AND organization_id = $2
	`, s.schema.Teams)

	team := &Team{}
	var description sql.NullString
	var createdBy sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, teamID, orgID).Scan(
		&team.ID, &team.OrganizationID, &team.Name, &description, &createdBy,
		&team.CreatedAt, &team.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, access.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}
	if description.Valid {
		team.Description = description.String
	}
	if createdBy.Valid {
		id := createdBy.Int64
		team.CreatedBy = &id
	}
	return team, nil
}

// ListTeams lists all teams in an organization.
func (s *PostgresService) ListTeams(ctx context.Context, orgID int64) ([]*Team, error) {
	query := fmt.Sprintf(`
		SELECT id, organization_id, name, description, created_by, created_at, updated_at
		FROM %s
		WHERE organization_id = $1
		ORDER BY name ASC
	`, s.schema.Teams)

	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	var teams []*Team
	for rows.Next() {
		team := &Team{}
		var description sql.NullString
		var createdBy sql.NullInt64
		if err := rows.Scan(&team.ID, &team.OrganizationID, &team.Name, &description,
			&createdBy, &team.CreatedAt, &team.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		if description.Valid {
			team.Description = description.String
		}
		if createdBy.Valid {
			id := createdBy.Int64
			team.CreatedBy = &id
		}
		teams = append(teams, team)
	}
	return teams, rows.Err()
}

// UpdateTeam applies a partial update to a team within an organization.
func (s *PostgresService) UpdateTeam(ctx context.Context, orgID, teamID int64, updates *UpdateTeamRequest) error {
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
	if len(setClauses) == 0 {
		return nil
	}

	args = append(args, teamID, orgID)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d AND organization_id = $%d",
		s.schema.Teams, strings.Join(setClauses, ", "), len(args)-1, len(args))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update team: %w", err)
	}
	return requireRows(result, access.ErrNotFound)
}

// DeleteTeam removes a team and (via cascade) its membership rows.
func (s *PostgresService) DeleteTeam(ctx context.Context, orgID, teamID int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND organization_id = $2`, s.schema.Teams)
	result, err := s.db.ExecContext(ctx, query, teamID, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
	}
	return requireRows(result, access.ErrNotFound)
}

// AddTeamMember adds a user to a team. Adding an existing member is a
// no-op, not an error.
func (s *PostgresService) AddTeamMember(ctx context.Context, member *TeamMember) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (team_id, user_id, role, added_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (team_id, user_id) DO NOTHING
	`, s.schema.TeamMembers)
	if _, err := s.db.ExecContext(ctx, query, member.TeamID, member.UserID,
		member.Role, member.AddedBy); err != nil {
		return fmt.Errorf("failed to add team member: %w", err)
	}
	return nil
}

// RemoveTeamMember removes a user from a team.
func (s *PostgresService) RemoveTeamMember(ctx context.Context, teamID, userID int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE team_id = $1 AND user_id = $2`, s.schema.TeamMembers)
	result, err := s.db.ExecContext(ctx, query, teamID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove team member: %w", err)
	}
	return requireRows(result, access.ErrNotFound)
}

// ListTeamMembers lists all members of a team.
func (s *PostgresService) ListTeamMembers(ctx context.Context, teamID int64) ([]*TeamMember, error) {
	query := fmt.Sprintf(`
		SELECT id, team_id, user_id, role, added_by, added_at
		FROM %s
		WHERE team_id = $1
		ORDER BY added_at ASC
	`, s.schema.TeamMembers)

	rows, err := s.db.QueryContext(ctx, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	defer rows.Close()

	var members []*TeamMember
	for rows.Next() {
		member := &TeamMember{}
		var role sql.NullString
		var addedBy sql.NullInt64
		if err := rows.Scan(&member.ID, &member.TeamID, &member.UserID,
			&role, &addedBy, &member.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}
		if role.Valid {
			r := role.String
			member.Role = &r
		}
		if addedBy.Valid {
			id := addedBy.Int64
			member.AddedBy = &id
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// IsTeamMember reports whether the user belongs to the team.
func (s *PostgresService) IsTeamMember(ctx context.Context, teamID, userID int64) (bool, error) {
	query := fmt.Sprintf(`
		SELECT EXISTS (SELECT 1 FROM %s WHERE team_id = $1 AND user_id = $2)
	`, s.schema.TeamMembers)
	var ok bool
	if err := s.db.QueryRowContext(ctx, query, teamID, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check team membership: %w", err)
	}
	return ok, nil
}
