package orgs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/knossos-io/knossos/pkg/access"
)

// CreateInvitation creates a new invitation. Re-inviting the same email
// refreshes the token and expiry.
func (s *PostgresService) CreateInvitation(ctx context.Context, invitation *Invitation) error {
	token, err := generateToken()
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}
	invitation.Token = token

	if invitation.InvitedAt.IsZero() {
		invitation.InvitedAt = time.Now()
	}
	if invitation.ExpiresAt.IsZero() {
		invitation.ExpiresAt = time.Now().Add(7 * 24 * time.Hour)
	}
	if invitation.Role == "" {
		invitation.Role = RoleMember
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (organization_id, email, role, token, invited_by, invited_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (organization_id, email) DO UPDATE
		SET token = EXCLUDED.token, invited_at = EXCLUDED.invited_at, expires_at = EXCLUDED.expires_at
		RETURNING id
	`, s.schema.OrganizationInvites)
	err = s.db.QueryRowContext(ctx, query, invitation.OrganizationID, invitation.Email,
		invitation.Role, invitation.Token, invitation.InvitedBy,
		invitation.InvitedAt, invitation.ExpiresAt).
		Scan(&invitation.ID)
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}
	return nil
}

// GetInvitation retrieves an invitation by token.
func (s *PostgresService) GetInvitation(ctx context.Context, token string) (*Invitation, error) {
	query := fmt.Sprintf(`
		SELECT id, organization_id, email, role, token, invited_by, invited_at, expires_at, accepted_at, accepted_by
		FROM %s
		WHERE token = $1
	`, s.schema.OrganizationInvites)

	invitation := &Invitation{}
	var invitedBy, acceptedBy sql.NullInt64
	var acceptedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&invitation.ID, &invitation.OrganizationID, &invitation.Email, &invitation.Role,
		&invitation.Token, &invitedBy, &invitation.InvitedAt, &invitation.ExpiresAt,
		&acceptedAt, &acceptedBy,
	)
	if err == sql.ErrNoRows {
		return nil, access.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	if invitedBy.Valid {
		id := invitedBy.Int64
		invitation.InvitedBy = &id
	}
	if acceptedAt.Valid {
		t := acceptedAt.Time
		invitation.AcceptedAt = &t
	}
	if acceptedBy.Valid {
		id := acceptedBy.Int64
		invitation.AcceptedBy = &id
	}
	return invitation, nil
}

// ListInvitations lists pending invitations for an organization.
func (s *PostgresService) ListInvitations(ctx context.Context, orgID int64) ([]*Invitation, error) {
	query := fmt.Sprintf(`
		SELECT id, organization_id, email, role, token, invited_by, invited_at, expires_at, accepted_at, accepted_by
		FROM %s
		WHERE organization_id = $1 AND accepted_at IS NULL
		ORDER BY invited_at DESC
	`, s.schema.OrganizationInvites)

	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []*Invitation
	for rows.Next() {
		invitation := &Invitation{}
		var invitedBy, acceptedBy sql.NullInt64
		var acceptedAt sql.NullTime
		if err := rows.Scan(
			&invitation.ID, &invitation.OrganizationID, &invitation.Email, &invitation.Role,
			&invitation.Token, &invitedBy, &invitation.InvitedAt, &invitation.ExpiresAt,
			&acceptedAt, &acceptedBy,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		if invitedBy.Valid {
			id := invitedBy.Int64
			invitation.InvitedBy = &id
		}
		if acceptedAt.Valid {
			t := acceptedAt.Time
			invitation.AcceptedAt = &t
		}
		if acceptedBy.Valid {
			id := acceptedBy.Int64
			invitation.AcceptedBy = &id
		}
		invitations = append(invitations, invitation)
	}
	return invitations, rows.Err()
}

// AcceptInvitation accepts an invitation and adds the user to the
// organization in one transaction.
func (s *PostgresService) AcceptInvitation(ctx context.Context, token string, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		SELECT id, organization_id, role, expires_at, accepted_at
		FROM %s
		WHERE token = $1
		FOR UPDATE
	`, s.schema.OrganizationInvites)

	var id, orgID int64
	var role Role
	var expiresAt time.Time
	var acceptedAt sql.NullTime
	err = tx.QueryRowContext(ctx, query, token).Scan(&id, &orgID, &role, &expiresAt, &acceptedAt)
	if err == sql.ErrNoRows {
		return access.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get invitation: %w", err)
	}

	if acceptedAt.Valid {
		return fmt.Errorf("invitation already accepted")
	}
	if time.Now().After(expiresAt) {
		return fmt.Errorf("invitation expired")
	}

	query = fmt.Sprintf(`
		INSERT INTO %s (organization_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (organization_id, user_id) DO NOTHING
	`, s.schema.OrganizationMembers)
	if _, err := tx.ExecContext(ctx, query, orgID, userID, role); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	query = fmt.Sprintf(`UPDATE %s SET accepted_at = CURRENT_TIMESTAMP, accepted_by = $1 WHERE id = $2`,
		s.schema.OrganizationInvites)
	if _, err := tx.ExecContext(ctx, query, userID, id); err != nil {
		return fmt.Errorf("failed to update invitation: %w", err)
	}

	return tx.Commit()
}

// RevokeInvitation revokes a pending invitation.
func (s *PostgresService) RevokeInvitation(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND accepted_at IS NULL`,
		s.schema.OrganizationInvites)
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to revoke invitation: %w", err)
	}
	return requireRows(result, access.ErrNotFound)
}

// CleanupExpiredInvitations removes expired, unaccepted invitations and
// returns how many were deleted.
func (s *PostgresService) CleanupExpiredInvitations(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE expires_at < CURRENT_TIMESTAMP AND accepted_at IS NULL`,
		s.schema.OrganizationInvites)
	result, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired invitations: %w", err)
	}
	return result.RowsAffected()
}
