package access

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/knossos-io/knossos/pkg/storage"
)

// MembershipIndex answers "which teams and workspaces can this user reach"
// for a single organization.
type MembershipIndex struct {
	db     *sql.DB
	schema storage.Schema
}

// NewMembershipIndex creates a membership index over the given store.
func NewMembershipIndex(db *sql.DB, schema storage.Schema) *MembershipIndex {
	return &MembershipIndex{db: db, schema: schema}
}

// TeamsOf returns the ids of the teams the user belongs to within the
// organization.
//
// Membership rows are fetched for the user across all organizations and
// filtered client-side; there is no organization-scoped membership query.
// That costs O(all of the user's teams) per call, but the filtering step is
// load-bearing and must not be pushed into the query without revisiting
// every caller.
func (m *MembershipIndex) TeamsOf(ctx context.Context, userID, organizationID int64) ([]int64, error) {
	query := fmt.Sprintf(`
		SELECT tm.team_id, t.organization_id
		FROM %s tm
		JOIN %s t ON tm.team_id = t.id
		WHERE tm.user_id = $1
	`, m.schema.TeamMembers, m.schema.Teams)

	rows, err := m.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query team memberships: %w", err)
	}
	defer rows.Close()

	var teamIDs []int64
	for rows.Next() {
		var teamID, orgID int64
		if err := rows.Scan(&teamID, &orgID); err != nil {
			return nil, fmt.Errorf("failed to scan team membership: %w", err)
		}
		if orgID == organizationID {
			teamIDs = append(teamIDs, teamID)
		}
	}

	return teamIDs, rows.Err()
}

// WorkspacesOf returns the ids of every workspace the user can reach within
// the organization: directly owned, owned by one of the user's teams, or
// joined through an explicit membership row. Accessibility does not
// propagate along the parent/child tree; each workspace stands alone.
//
// teamIDs may be passed in to reuse a set already computed for this call;
// when nil it is resolved via TeamsOf.
func (m *MembershipIndex) WorkspacesOf(ctx context.Context, userID, organizationID int64, teamIDs []int64) ([]int64, error) {
	if teamIDs == nil {
		var err error
		teamIDs, err = m.TeamsOf(ctx, userID, organizationID)
		if err != nil {
			return nil, err
		}
	}

	teamClause := ""
	args := []interface{}{organizationID, userID}
	if len(teamIDs) > 0 {
		placeholders := make([]string, len(teamIDs))
		for i, id := range teamIDs {
			placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
			args = append(args, id)
		}
		teamClause = fmt.Sprintf(" OR w.owner_team_id IN (%s)", strings.Join(placeholders, ", "))
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT w.id
		FROM %s w
		WHERE w.organization_id = $1
		  AND (w.owner_user_id = $2
		       OR EXISTS (
		           SELECT 1 FROM %s wm
		           WHERE wm.workspace_id = w.id AND wm.user_id = $2
		       )%s)
	`, m.schema.Workspaces, m.schema.WorkspaceMembers, teamClause)

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workspace memberships: %w", err)
	}
	defer rows.Close()

	var workspaceIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan workspace id: %w", err)
		}
		workspaceIDs = append(workspaceIDs, id)
	}

	return workspaceIDs, rows.Err()
}
