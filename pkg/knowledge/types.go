package knowledge

import "time"

// Entry is a unit of ingested knowledge. The four reference fields
// (owner, team, workspace, group) drive access resolution; each is
// optional and independent of the others.
type Entry struct {
	ID               int64     `json:"id"`
	OrganizationID   int64     `json:"organization_id"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	SourceRef        string    `json:"source_ref,omitempty"`
	OwnerUserID      *int64    `json:"owner_user_id,omitempty"`
	TeamID           *int64    `json:"team_id,omitempty"`
	WorkspaceID      *int64    `json:"workspace_id,omitempty"`
	KnowledgeGroupID *int64    `json:"knowledge_group_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Group is a named sharing boundary for knowledge entries. A group shares
// its entries either with the whole organization or with the teams
// assigned to it.
type Group struct {
	ID                     int64     `json:"id"`
	OrganizationID         int64     `json:"organization_id"`
	Name                   string    `json:"name"`
	Description            string    `json:"description,omitempty"`
	OwnerUserID            int64     `json:"owner_user_id"`
	OrganizationWideAccess bool      `json:"organization_wide_access"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// GroupTeamAssignment links a team to a knowledge group.
type GroupTeamAssignment struct {
	ID               int64     `json:"id"`
	KnowledgeGroupID int64     `json:"knowledge_group_id"`
	TeamID           int64     `json:"team_id"`
	AssignedBy       *int64    `json:"assigned_by,omitempty"`
	AssignedAt       time.Time `json:"assigned_at"`
}

// Filter is a (category, name) tag, unique per organization.
type Filter struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Category       string    `json:"category"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
}

// Chunk is one embedded fragment of an entry's content. The embedding
// vector and the model that produced it travel with the chunk so the
// external similarity scorer can consume the candidate set directly.
type Chunk struct {
	ID               int64     `json:"id"`
	KnowledgeEntryID int64     `json:"knowledge_entry_id"`
	ChunkIndex       int       `json:"chunk_index"`
	Content          string    `json:"content"`
	Embedding        []float64 `json:"embedding,omitempty"`
	EmbeddingModel   string    `json:"embedding_model,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// RefUpdate carries an optional change to a nullable reference field.
// Apply=false leaves the field untouched; Apply=true with a nil ID clears
// it.
type RefUpdate struct {
	Apply bool   `json:"apply"`
	ID    *int64 `json:"id,omitempty"`
}

// SetRef returns a RefUpdate that points the field at id.
func SetRef(id int64) RefUpdate {
	return RefUpdate{Apply: true, ID: &id}
}

// ClearRef returns a RefUpdate that nulls the field out.
func ClearRef() RefUpdate {
	return RefUpdate{Apply: true}
}

// UpdateEntryRequest represents a partial entry update. Nil pointer fields
// are left unchanged.
type UpdateEntryRequest struct {
	Title            *string   `json:"title,omitempty"`
	Description      *string   `json:"description,omitempty"`
	SourceRef        *string   `json:"source_ref,omitempty"`
	TeamID           RefUpdate `json:"team_id,omitempty"`
	WorkspaceID      RefUpdate `json:"workspace_id,omitempty"`
	KnowledgeGroupID RefUpdate `json:"knowledge_group_id,omitempty"`
}

// UpdateGroupRequest represents a partial group update.
type UpdateGroupRequest struct {
	Name                   *string `json:"name,omitempty"`
	Description            *string `json:"description,omitempty"`
	OrganizationWideAccess *bool   `json:"organization_wide_access,omitempty"`
}
