package orgs

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/knossos-io/knossos/pkg/access"
	"github.com/knossos-io/knossos/pkg/storage"
)

// PostgresService implements organization, team, and invitation management
// over a relational store.
type PostgresService struct {
	db     *sql.DB
	schema storage.Schema
}

// NewPostgresService creates a new PostgresService.
func NewPostgresService(db *sql.DB, schema storage.Schema) *PostgresService {
	return &PostgresService{db: db, schema: schema}
}

// CreateOrganization creates a new organization and records its owner as the
// first member.
func (s *PostgresService) CreateOrganization(ctx context.Context, org *Organization) error {
	if org.Slug == "" {
		org.Slug = generateSlug(org.Name)
	}
	if org.Status == "" {
		org.Status = OrgStatusActive
	}
	org.IsActive = true

	query := fmt.Sprintf(`
		INSERT INTO %s (name, slug, description, owner_user_id, status, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, s.schema.Organizations)
	err := s.db.QueryRowContext(ctx, query, org.Name, org.Slug, org.Description,
		org.OwnerUserID, org.Status, org.IsActive).
		Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	if org.OwnerUserID != nil {
		if err := s.AddMember(ctx, org.ID, *org.OwnerUserID, RoleOwner, nil); err != nil {
			return fmt.Errorf("failed to add owner as member: %w", err)
		}
	}
	return nil
}

// GetOrganization retrieves an organization by ID.
func (s *PostgresService) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	query := fmt.Sprintf(`
		SELECT id, name, slug, description, owner_user_id, status, is_active, created_at, updated_at
		FROM %s
		WHERE id = $1 AND is_active = TRUE
	`, s.schema.Organizations)
	return s.scanOrganization(s.db.QueryRowContext(ctx, query, id))
}

// GetOrganizationBySlug retrieves an organization by slug.
func (s *PostgresService) GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error) {
	query := fmt.Sprintf(`
		SELECT id, name, slug, description, owner_user_id, status, is_active, created_at, updated_at
		FROM %s
		WHERE slug = $1 AND is_active = TRUE
	`, s.schema.Organizations)
	return s.scanOrganization(s.db.QueryRowContext(ctx, query, slug))
}

func (s *PostgresService) scanOrganization(row *sql.Row) (*Organization, error) {
	org := &Organization{}
	var description sql.NullString
	var ownerUserID sql.NullInt64
	err := row.Scan(&org.ID, &org.Name, &org.Slug, &description, &ownerUserID,
		&org.Status, &org.IsActive, &org.CreatedAt, &org.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, access.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	if description.Valid {
		org.Description = description.String
	}
	if ownerUserID.Valid {
		id := ownerUserID.Int64
		org.OwnerUserID = &id
	}
	return org, nil
}

// ListOrganizations lists the active organizations the user is a member of.
func (s *PostgresService) ListOrganizations(ctx context.Context, userID int64) ([]*Organization, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT o.id, o.name, o.slug, o.description, o.owner_user_id,
		       o.status, o.is_active, o.created_at, o.updated_at
		FROM %s o
		JOIN %s om ON o.id = om.organization_id
		WHERE om.user_id = $1 AND o.is_active = TRUE
		ORDER BY o.created_at DESC
	`, s.schema.Organizations, s.schema.OrganizationMembers)

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var result []*Organization
	for rows.Next() {
		org := &Organization{}
		var description sql.NullString
		var ownerUserID sql.NullInt64
		if err := rows.Scan(&org.ID, &org.Name, &org.Slug, &description, &ownerUserID,
			&org.Status, &org.IsActive, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		if description.Valid {
			org.Description = description.String
		}
		if ownerUserID.Valid {
			id := ownerUserID.Int64
			org.OwnerUserID = &id
		}
		result = append(result, org)
	}
	return result, rows.Err()
}

// UpdateOrganization applies a partial update to an organization.
func (s *PostgresService) UpdateOrganization(ctx context.Context, id int64, updates *UpdateOrgRequest) error {
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

	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d",
		s.schema.Organizations, strings.Join(setClauses, ", "), len(args))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}
	return requireRows(result, access.ErrNotFound)
}

// DeleteOrganization soft deletes an organization.
func (s *PostgresService) DeleteOrganization(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`UPDATE %s SET status = $1, is_active = FALSE WHERE id = $2`,
		s.schema.Organizations)
	result, err := s.db.ExecContext(ctx, query, OrgStatusDeleted, id)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	return requireRows(result, access.ErrNotFound)
}

// ListMembers retrieves all members of an organization.
func (s *PostgresService) ListMembers(ctx context.Context, orgID int64) ([]*Member, error) {
	query := fmt.Sprintf(`
		SELECT id, organization_id, user_id, role, invited_by, joined_at, created_at
		FROM %s
		WHERE organization_id = $1
		ORDER BY created_at ASC
	`, s.schema.OrganizationMembers)

	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// GetMember retrieves a specific member.
func (s *PostgresService) GetMember(ctx context.Context, orgID, userID int64) (*Member, error) {
	query := fmt.Sprintf(`
		SELECT id, organization_id, user_id, role, invited_by, joined_at, created_at
		FROM %s
		WHERE organization_id = $1 AND user_id = $2
	`, s.schema.OrganizationMembers)

	member, err := scanMember(s.db.QueryRowContext(ctx, query, orgID, userID))
	if err == sql.ErrNoRows {
		return nil, access.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return member, nil
}

// IsMember reports whether the user belongs to the organization.
func (s *PostgresService) IsMember(ctx context.Context, orgID, userID int64) (bool, error) {
	query := fmt.Sprintf(`
		SELECT EXISTS (SELECT 1 FROM %s WHERE organization_id = $1 AND user_id = $2)
	`, s.schema.OrganizationMembers)
	var ok bool
	if err := s.db.QueryRowContext(ctx, query, orgID, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return ok, nil
}

// IsAdmin reports whether the user holds an administrative role in the
// organization. Non-members are simply not admins.
func (s *PostgresService) IsAdmin(ctx context.Context, orgID, userID int64) (bool, error) {
	member, err := s.GetMember(ctx, orgID, userID)
	if err == access.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return member.Role.IsAdmin(), nil
}

// AddMember adds a user to an organization. Adding an existing member is a
// no-op, not an error.
func (s *PostgresService) AddMember(ctx context.Context, orgID, userID int64, role Role, invitedBy *int64) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (organization_id, user_id, role, invited_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (organization_id, user_id) DO NOTHING
	`, s.schema.OrganizationMembers)
	if _, err := s.db.ExecContext(ctx, query, orgID, userID, role, invitedBy); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// UpdateMemberRole updates a member's role.
func (s *PostgresService) UpdateMemberRole(ctx context.Context, orgID, userID int64, role Role) error {
	query := fmt.Sprintf(`UPDATE %s SET role = $1 WHERE organization_id = $2 AND user_id = $3`,
		s.schema.OrganizationMembers)
	result, err := s.db.ExecContext(ctx, query, role, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	return requireRows(result, access.ErrNotFound)
}

// RemoveMember removes a user from an organization.
func (s *PostgresService) RemoveMember(ctx context.Context, orgID, userID int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE organization_id = $1 AND user_id = $2`,
		s.schema.OrganizationMembers)
	result, err := s.db.ExecContext(ctx, query, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return requireRows(result, access.ErrNotFound)
}

func scanMember(scanner interface{ Scan(dest ...interface{}) error }) (*Member, error) {
	member := &Member{}
	var invitedBy sql.NullInt64
	err := scanner.Scan(&member.ID, &member.OrganizationID, &member.UserID,
		&member.Role, &invitedBy, &member.JoinedAt, &member.CreatedAt)
	if err != nil {
		return nil, err
	}
	if invitedBy.Valid {
		id := invitedBy.Int64
		member.InvitedBy = &id
	}
	return member, nil
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

// generateSlug derives a URL-safe slug from a name.
func generateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	return slug
}

// generateToken generates a random invitation token.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
