package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/knossos-io/knossos/pkg/access"
	"github.com/knossos-io/knossos/pkg/storage"
)

// EntryStore persists knowledge entries and their chunks. Reads that serve
// end users go through the access resolver; plain Get/List variants exist
// for ingestion and internal plumbing only.
type EntryStore struct {
	db       *sql.DB
	schema   storage.Schema
	resolver *access.Resolver
}

// NewEntryStore creates an entry store.
func NewEntryStore(db *sql.DB, schema storage.Schema, resolver *access.Resolver) *EntryStore {
	return &EntryStore{db: db, schema: schema, resolver: resolver}
}

// CreateEntry inserts a new knowledge entry.
func (s *EntryStore) CreateEntry(ctx context.Context, entry *Entry) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (organization_id, title, description, source_ref,
		                owner_user_id, team_id, workspace_id, knowledge_group_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`, s.schema.KnowledgeEntries)

	err := s.db.QueryRowContext(ctx, query, entry.OrganizationID, entry.Title,
		entry.Description, entry.SourceRef, entry.OwnerUserID, entry.TeamID,
		entry.WorkspaceID, entry.KnowledgeGroupID).
		Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create entry: %w", err)
	}
	return nil
}

// GetEntry retrieves an entry by id within an organization without any
// access check. Callers serving end users should use GetEntryForUser.
func (s *EntryStore) GetEntry(ctx context.Context, orgID, entryID int64) (*Entry, error) {
	query := fmt.Sprintf(`
		SELECT id, organization_id, title, description, source_ref,
		       owner_user_id, team_id, workspace_id, knowledge_group_id,
		       created_at, updated_at
		FROM %s
		WHERE id = $1 AND organization_id = $2
	`, s.schema.KnowledgeEntries)
	return scanEntry(s.db.QueryRowContext(ctx, query, entryID, orgID))
}

// GetEntryForUser retrieves an entry on behalf of a user. A missing or
// cross-tenant id reads as not found; an entry the user cannot access
// reads as permission denied.
func (s *EntryStore) GetEntryForUser(ctx context.Context, entryID, userID, orgID int64) (*Entry, error) {
	allowed, err := s.resolver.CanAccessEntry(ctx, entryID, userID, orgID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, access.ErrPermissionDenied
	}
	return s.GetEntry(ctx, orgID, entryID)
}

// ListEntriesForUser returns the entries in the organization the user may
// access, ordered by id.
func (s *EntryStore) ListEntriesForUser(ctx context.Context, userID, orgID int64) ([]*Entry, error) {
	ids, err := s.resolver.AccessibleEntryIDs(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, orgID)
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		SELECT id, organization_id, title, description, source_ref,
		       owner_user_id, team_id, workspace_id, knowledge_group_id,
		       created_at, updated_at
		FROM %s
		WHERE organization_id = $1 AND id IN (%s)
		ORDER BY id
	`, s.schema.KnowledgeEntries, strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ReplaceChunks replaces an entry's chunks in one transaction. Used by
// ingestion when an entry's content is re-embedded.
func (s *EntryStore) ReplaceChunks(ctx context.Context, entryID int64, chunks []*Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	del := fmt.Sprintf(`DELETE FROM %s WHERE knowledge_entry_id = $1`, s.schema.KnowledgeChunks)
	if _, err := tx.ExecContext(ctx, del, entryID); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	ins := fmt.Sprintf(`
		INSERT INTO %s (knowledge_entry_id, chunk_index, content, embedding, embedding_model)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, s.schema.KnowledgeChunks)
	for _, chunk := range chunks {
		chunk.KnowledgeEntryID = entryID
		err := tx.QueryRowContext(ctx, ins, entryID, chunk.ChunkIndex,
			chunk.Content, pq.Float64Array(chunk.Embedding), chunk.EmbeddingModel).
			Scan(&chunk.ID, &chunk.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", chunk.ChunkIndex, err)
		}
	}

	return tx.Commit()
}

// ListChunks lists an entry's chunks in index order.
func (s *EntryStore) ListChunks(ctx context.Context, entryID int64) ([]*Chunk, error) {
	query := fmt.Sprintf(`
		SELECT id, knowledge_entry_id, chunk_index, content, embedding, embedding_model, created_at
		FROM %s
		WHERE knowledge_entry_id = $1
		ORDER BY chunk_index ASC
	`, s.schema.KnowledgeChunks)

	rows, err := s.db.QueryContext(ctx, query, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	return collectChunks(rows)
}

// CandidateChunks returns the chunks of every entry the user may access in
// the organization, ordered by entry then chunk index. Retrieval paths use
// this as the pre-filtered candidate set for similarity scoring, so no
// inaccessible content can surface in search results.
func (s *EntryStore) CandidateChunks(ctx context.Context, userID, orgID int64) ([]*Chunk, error) {
	ids, err := s.resolver.AccessibleEntryIDs(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, 0, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		SELECT id, knowledge_entry_id, chunk_index, content, embedding, embedding_model, created_at
		FROM %s
		WHERE knowledge_entry_id IN (%s)
		ORDER BY knowledge_entry_id ASC, chunk_index ASC
	`, s.schema.KnowledgeChunks, strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidate chunks: %w", err)
	}
	defer rows.Close()

	return collectChunks(rows)
}

func collectChunks(rows *sql.Rows) ([]*Chunk, error) {
	var chunks []*Chunk
	for rows.Next() {
		chunk := &Chunk{}
		var embedding pq.Float64Array
		var model sql.NullString
		if err := rows.Scan(&chunk.ID, &chunk.KnowledgeEntryID, &chunk.ChunkIndex,
			&chunk.Content, &embedding, &model, &chunk.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if len(embedding) > 0 {
			chunk.Embedding = []float64(embedding)
		}
		if model.Valid {
			chunk.EmbeddingModel = model.String
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func scanEntry(scanner interface{ Scan(dest ...interface{}) error }) (*Entry, error) {
	entry := &Entry{}
	var description, sourceRef sql.NullString
	var ownerUserID, teamID, workspaceID, groupID sql.NullInt64
	err := scanner.Scan(&entry.ID, &entry.OrganizationID, &entry.Title,
		&description, &sourceRef, &ownerUserID, &teamID, &workspaceID, &groupID,
		&entry.CreatedAt, &entry.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, access.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	if description.Valid {
		entry.Description = description.String
	}
	if sourceRef.Valid {
		entry.SourceRef = sourceRef.String
	}
	entry.OwnerUserID = nullableID(ownerUserID)
	entry.TeamID = nullableID(teamID)
	entry.WorkspaceID = nullableID(workspaceID)
	entry.KnowledgeGroupID = nullableID(groupID)
	return entry, nil
}

func nullableID(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}
