package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/knossos-io/knossos/pkg/access"
	"github.com/knossos-io/knossos/pkg/storage"
)

func TestEntryStore_GetEntryForUser(t *testing.T) {
	db := setupTestDB(t)
	schema := storage.DefaultSchema()
	store := NewEntryStore(db, schema, access.NewResolver(db, schema))
	ctx := context.Background()

	orgID := createOrg(t, db, "acme")
	otherOrg := createOrg(t, db, "rival")
	teamID := createTeam(t, db, orgID, "backend")

	const member, outsider = int64(1), int64(2)
	addTeamMember(t, db, teamID, member)

	gated := &Entry{OrganizationID: orgID, Title: "gated", TeamID: ptr(teamID)}
	if err := store.CreateEntry(ctx, gated); err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}
	foreign := &Entry{OrganizationID: otherOrg, Title: "foreign"}
	if err := store.CreateEntry(ctx, foreign); err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}

	got, err := store.GetEntryForUser(ctx, gated.ID, member, orgID)
	if err != nil {
		t.Fatalf("GetEntryForUser failed: %v", err)
	}
	if got.Title != "gated" || got.TeamID == nil || *got.TeamID != teamID {
		t.Errorf("Unexpected entry: %+v", got)
	}

	// Resolvable but inaccessible: denied, distinct from not found.
	if _, err := store.GetEntryForUser(ctx, gated.ID, outsider, orgID); !errors.Is(err, access.ErrPermissionDenied) {
		t.Errorf("Expected permission denied, got %v", err)
	}
	// Cross-tenant: indistinguishable from missing.
	if _, err := store.GetEntryForUser(ctx, foreign.ID, member, orgID); !errors.Is(err, access.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestEntryStore_ListEntriesForUser(t *testing.T) {
	db := setupTestDB(t)
	schema := storage.DefaultSchema()
	store := NewEntryStore(db, schema, access.NewResolver(db, schema))
	ctx := context.Background()

	orgID := createOrg(t, db, "acme")
	teamID := createTeam(t, db, orgID, "backend")
	const userID = int64(1)

	open := &Entry{OrganizationID: orgID, Title: "open"}
	gated := &Entry{OrganizationID: orgID, Title: "gated", TeamID: ptr(teamID)}
	for _, e := range []*Entry{open, gated} {
		if err := store.CreateEntry(ctx, e); err != nil {
			t.Fatalf("CreateEntry failed: %v", err)
		}
	}

	entries, err := store.ListEntriesForUser(ctx, userID, orgID)
	if err != nil {
		t.Fatalf("ListEntriesForUser failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != open.ID {
		t.Fatalf("Expected only the open entry, got %+v", entries)
	}
}

func TestEntryStore_ChunksFollowAccess(t *testing.T) {
	db := setupTestDB(t)
	schema := storage.DefaultSchema()
	store := NewEntryStore(db, schema, access.NewResolver(db, schema))
	ctx := context.Background()

	orgID := createOrg(t, db, "acme")
	teamID := createTeam(t, db, orgID, "backend")
	const userID = int64(1)

	visible := &Entry{OrganizationID: orgID, Title: "visible"}
	hidden := &Entry{OrganizationID: orgID, Title: "hidden", TeamID: ptr(teamID)}
	for _, e := range []*Entry{visible, hidden} {
		if err := store.CreateEntry(ctx, e); err != nil {
			t.Fatalf("CreateEntry failed: %v", err)
		}
	}

	if err := store.ReplaceChunks(ctx, visible.ID, []*Chunk{
		{ChunkIndex: 0, Content: "first"},
		{ChunkIndex: 1, Content: "second"},
	}); err != nil {
		t.Fatalf("ReplaceChunks failed: %v", err)
	}
	if err := store.ReplaceChunks(ctx, hidden.ID, []*Chunk{
		{ChunkIndex: 0, Content: "secret"},
	}); err != nil {
		t.Fatalf("ReplaceChunks failed: %v", err)
	}

	chunks, err := store.CandidateChunks(ctx, userID, orgID)
	if err != nil {
		t.Fatalf("CandidateChunks failed: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("Expected 2 candidate chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.KnowledgeEntryID != visible.ID {
			t.Errorf("Inaccessible chunk leaked into candidates: %+v", chunk)
		}
		if chunk.ChunkIndex != i {
			t.Errorf("Chunks out of order: index %d at position %d", chunk.ChunkIndex, i)
		}
	}
}

func TestEntryStore_ChunkEmbeddingRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	schema := storage.DefaultSchema()
	store := NewEntryStore(db, schema, access.NewResolver(db, schema))
	ctx := context.Background()

	orgID := createOrg(t, db, "acme")
	entry := &Entry{OrganizationID: orgID, Title: "doc"}
	if err := store.CreateEntry(ctx, entry); err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}

	if err := store.ReplaceChunks(ctx, entry.ID, []*Chunk{
		{ChunkIndex: 0, Content: "first", Embedding: []float64{0.25, -0.5, 1}, EmbeddingModel: "text-embed-1"},
		{ChunkIndex: 1, Content: "second"},
	}); err != nil {
		t.Fatalf("ReplaceChunks failed: %v", err)
	}

	chunks, err := store.ListChunks(ctx, entry.ID)
	if err != nil {
		t.Fatalf("ListChunks failed: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(chunks))
	}
	want := []float64{0.25, -0.5, 1}
	if len(chunks[0].Embedding) != len(want) {
		t.Fatalf("Expected %d-dimension vector, got %v", len(want), chunks[0].Embedding)
	}
	for i, v := range want {
		if chunks[0].Embedding[i] != v {
			t.Errorf("Embedding[%d] = %v, want %v", i, chunks[0].Embedding[i], v)
		}
	}
	if chunks[0].EmbeddingModel != "text-embed-1" {
		t.Errorf("Unexpected embedding model %q", chunks[0].EmbeddingModel)
	}
	if len(chunks[1].Embedding) != 0 {
		t.Errorf("Expected empty vector for unembedded chunk, got %v", chunks[1].Embedding)
	}

	// The candidate corpus carries the vectors too; the similarity scorer
	// consumes them without a second lookup.
	candidates, err := store.CandidateChunks(ctx, 1, orgID)
	if err != nil {
		t.Fatalf("CandidateChunks failed: %v", err)
	}
	if len(candidates) != 2 || len(candidates[0].Embedding) != 3 {
		t.Fatalf("Expected candidate chunks with vectors, got %+v", candidates)
	}
}

func TestEntryStore_ReplaceChunksIsAtomic(t *testing.T) {
	db := setupTestDB(t)
	schema := storage.DefaultSchema()
	store := NewEntryStore(db, schema, access.NewResolver(db, schema))
	ctx := context.Background()

	orgID := createOrg(t, db, "acme")
	entry := &Entry{OrganizationID: orgID, Title: "doc"}
	if err := store.CreateEntry(ctx, entry); err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}
	if err := store.ReplaceChunks(ctx, entry.ID, []*Chunk{{ChunkIndex: 0, Content: "old"}}); err != nil {
		t.Fatalf("ReplaceChunks failed: %v", err)
	}

	// Duplicate chunk index violates the unique key; the old chunks stay.
	err := store.ReplaceChunks(ctx, entry.ID, []*Chunk{
		{ChunkIndex: 0, Content: "a"},
		{ChunkIndex: 0, Content: "b"},
	})
	if err == nil {
		t.Fatal("Expected replace with duplicate indices to fail")
	}

	chunks, err := store.ListChunks(ctx, entry.ID)
	if err != nil {
		t.Fatalf("ListChunks failed: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Content != "old" {
		t.Errorf("Failed replace must leave previous chunks intact, got %+v", chunks)
	}
}
