package access

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/knossos-io/knossos/pkg/storage"
)

// Memberships is the per-call snapshot of a user's reachable teams and
// workspaces. It is computed once at the start of a resolution and passed
// down; it is never cached across calls.
type Memberships struct {
	TeamIDs      []int64
	WorkspaceIDs []int64
}

// HasTeam reports whether teamID is in the snapshot.
func (m *Memberships) HasTeam(teamID int64) bool {
	for _, id := range m.TeamIDs {
		if id == teamID {
			return true
		}
	}
	return false
}

// HasWorkspace reports whether workspaceID is in the snapshot.
func (m *Memberships) HasWorkspace(workspaceID int64) bool {
	for _, id := range m.WorkspaceIDs {
		if id == workspaceID {
			return true
		}
	}
	return false
}

// Resolver issues the final allow/deny decision for knowledge entries and
// workspaces. Each call is a fresh, independent evaluation.
type Resolver struct {
	db      *sql.DB
	schema  storage.Schema
	members *MembershipIndex
}

// NewResolver creates a resolver over the given store.
func NewResolver(db *sql.DB, schema storage.Schema) *Resolver {
	return &Resolver{
		db:      db,
		schema:  schema,
		members: NewMembershipIndex(db, schema),
	}
}

// Memberships returns the membership index used by this resolver.
func (r *Resolver) Memberships() *MembershipIndex {
	return r.members
}

// Snapshot computes the user's team and workspace sets for one resolution
// pass. Callers that make several decisions in one request may reuse it
// within that request only.
func (r *Resolver) Snapshot(ctx context.Context, userID, organizationID int64) (*Memberships, error) {
	teamIDs, err := r.members.TeamsOf(ctx, userID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve teams: %w", err)
	}
	workspaceIDs, err := r.members.WorkspacesOf(ctx, userID, organizationID, teamIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspaces: %w", err)
	}
	return &Memberships{TeamIDs: teamIDs, WorkspaceIDs: workspaceIDs}, nil
}

// entryRefs is the slice of a knowledge entry the resolver needs.
type entryRefs struct {
	OwnerUserID sql.NullInt64
	TeamID      sql.NullInt64
	WorkspaceID sql.NullInt64
	GroupID     sql.NullInt64
}

func (r *Resolver) loadEntry(ctx context.Context, entryID, organizationID int64) (*entryRefs, error) {
	query := fmt.Sprintf(`
		SELECT owner_user_id, team_id, workspace_id, knowledge_group_id
		FROM %s
		WHERE id = $1 AND organization_id = $2
	`, r.schema.KnowledgeEntries)

	var refs entryRefs
	err := r.db.QueryRowContext(ctx, query, entryID, organizationID).Scan(
		&refs.OwnerUserID, &refs.TeamID, &refs.WorkspaceID, &refs.GroupID,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load entry: %w", err)
	}
	return &refs, nil
}

// CanAccessEntry reports whether the user may access the knowledge entry
// within the organization.
//
// Direct access passes when the user owns the entry, or when both the team
// clause and the workspace clause pass; an absent team or workspace
// reference counts as a pass for its clause. An entry with neither a team
// nor a workspace is therefore visible to every member of its organization,
// regardless of ownership. Whether that "absent = open" behavior is intent
// or a latent bug is unresolved upstream; it is reproduced here as observed.
//
// When direct access fails, the entry's knowledge group grants access if it
// is organization-wide, or if any of the user's teams is assigned to it.
func (r *Resolver) CanAccessEntry(ctx context.Context, entryID, userID, organizationID int64) (bool, error) {
	snapshot, err := r.Snapshot(ctx, userID, organizationID)
	if err != nil {
		return false, err
	}
	return r.canAccessEntryWith(ctx, entryID, userID, organizationID, snapshot)
}

// canAccessEntryWith is CanAccessEntry with a caller-supplied membership
// snapshot, used when the caller makes several decisions in one request.
func (r *Resolver) canAccessEntryWith(ctx context.Context, entryID, userID, organizationID int64, snapshot *Memberships) (bool, error) {
	refs, err := r.loadEntry(ctx, entryID, organizationID)
	if err != nil {
		return false, err
	}

	if refs.OwnerUserID.Valid && refs.OwnerUserID.Int64 == userID {
		return true, nil
	}

	teamOK := !refs.TeamID.Valid || snapshot.HasTeam(refs.TeamID.Int64)
	workspaceOK := !refs.WorkspaceID.Valid || snapshot.HasWorkspace(refs.WorkspaceID.Int64)
	if teamOK && workspaceOK {
		return true, nil
	}

	if !refs.GroupID.Valid {
		return false, nil
	}
	return r.groupGrants(ctx, refs.GroupID.Int64, snapshot.TeamIDs)
}

// groupGrants reports whether the knowledge group shares the entry with the
// user: organization-wide access, or an assignment covering one of the
// user's teams.
func (r *Resolver) groupGrants(ctx context.Context, groupID int64, teamIDs []int64) (bool, error) {
	query := fmt.Sprintf(`
		SELECT organization_wide_access FROM %s WHERE id = $1
	`, r.schema.KnowledgeGroups)

	var orgWide bool
	err := r.db.QueryRowContext(ctx, query, groupID).Scan(&orgWide)
	if err == sql.ErrNoRows {
		// Dangling group reference shares nothing.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load knowledge group: %w", err)
	}
	if orgWide {
		return true, nil
	}

	if len(teamIDs) == 0 {
		return false, nil
	}

	placeholders := make([]string, len(teamIDs))
	args := []interface{}{groupID}
	for i, id := range teamIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}
	query = fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1 FROM %s
			WHERE knowledge_group_id = $1 AND team_id IN (%s)
		)
	`, r.schema.KnowledgeGroupTeams, strings.Join(placeholders, ", "))

	var assigned bool
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&assigned); err != nil {
		return false, fmt.Errorf("failed to check group team assignment: %w", err)
	}
	return assigned, nil
}

// CanAccessWorkspace reports whether the user may access the workspace:
// direct owner, member of the owning team, or holder of an explicit
// membership row.
//
// No organization filter is applied inside this check; callers must only
// supply workspace ids already known to belong to the right organization.
func (r *Resolver) CanAccessWorkspace(ctx context.Context, workspaceID, userID int64) (bool, error) {
	query := fmt.Sprintf(`
		SELECT owner_user_id, owner_team_id FROM %s WHERE id = $1
	`, r.schema.Workspaces)

	var ownerUserID, ownerTeamID sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, workspaceID).Scan(&ownerUserID, &ownerTeamID)
	if err == sql.ErrNoRows {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to load workspace: %w", err)
	}

	if ownerUserID.Valid && ownerUserID.Int64 == userID {
		return true, nil
	}

	if ownerTeamID.Valid {
		q := fmt.Sprintf(`
			SELECT EXISTS (
				SELECT 1 FROM %s WHERE team_id = $1 AND user_id = $2
			)
		`, r.schema.TeamMembers)
		var inTeam bool
		if err := r.db.QueryRowContext(ctx, q, ownerTeamID.Int64, userID).Scan(&inTeam); err != nil {
			return false, fmt.Errorf("failed to check owning team membership: %w", err)
		}
		if inTeam {
			return true, nil
		}
	}

	q := fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1 FROM %s WHERE workspace_id = $1 AND user_id = $2
		)
	`, r.schema.WorkspaceMembers)
	var isMember bool
	if err := r.db.QueryRowContext(ctx, q, workspaceID, userID).Scan(&isMember); err != nil {
		return false, fmt.Errorf("failed to check workspace membership: %w", err)
	}
	return isMember, nil
}

// AccessibleEntryIDs returns the ids of every knowledge entry in the
// organization the user may access, applying the same rule as
// CanAccessEntry in a single query. It exists for retrieval paths that need
// a pre-filtered candidate set (similarity search) rather than a per-entry
// decision.
func (r *Resolver) AccessibleEntryIDs(ctx context.Context, userID, organizationID int64) ([]int64, error) {
	snapshot, err := r.Snapshot(ctx, userID, organizationID)
	if err != nil {
		return nil, err
	}

	args := []interface{}{organizationID, userID}
	next := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	teamClause := "e.team_id IS NULL"
	if len(snapshot.TeamIDs) > 0 {
		ps := make([]string, len(snapshot.TeamIDs))
		for i, id := range snapshot.TeamIDs {
			ps[i] = next(id)
		}
		teamClause = fmt.Sprintf("(e.team_id IS NULL OR e.team_id IN (%s))", strings.Join(ps, ", "))
	}

	workspaceClause := "e.workspace_id IS NULL"
	if len(snapshot.WorkspaceIDs) > 0 {
		ps := make([]string, len(snapshot.WorkspaceIDs))
		for i, id := range snapshot.WorkspaceIDs {
			ps[i] = next(id)
		}
		workspaceClause = fmt.Sprintf("(e.workspace_id IS NULL OR e.workspace_id IN (%s))", strings.Join(ps, ", "))
	}

	groupTeamClause := "FALSE"
	if len(snapshot.TeamIDs) > 0 {
		ps := make([]string, len(snapshot.TeamIDs))
		for i, id := range snapshot.TeamIDs {
			ps[i] = next(id)
		}
		groupTeamClause = fmt.Sprintf(`EXISTS (
			SELECT 1 FROM %s gt
			WHERE gt.knowledge_group_id = g.id AND gt.team_id IN (%s)
		)`, r.schema.KnowledgeGroupTeams, strings.Join(ps, ", "))
	}

	query := fmt.Sprintf(`
		SELECT e.id
		FROM %s e
		LEFT JOIN %s g ON e.knowledge_group_id = g.id
		WHERE e.organization_id = $1
		  AND (e.owner_user_id = $2
		       OR (%s AND %s)
		       OR (g.id IS NOT NULL AND (g.organization_wide_access OR %s)))
		ORDER BY e.id
	`, r.schema.KnowledgeEntries, r.schema.KnowledgeGroups,
		teamClause, workspaceClause, groupTeamClause)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accessible entries: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan entry id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
