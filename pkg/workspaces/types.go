package workspaces

import "time"

// Workspace is a shared container within one organization. OwnerUserID and
// OwnerTeamID are mutually exclusive; both may be null for a workspace held
// only through its members.
type Workspace struct {
	ID                int64     `json:"id"`
	OrganizationID    int64     `json:"organization_id"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	OwnerUserID       *int64    `json:"owner_user_id,omitempty"`
	OwnerTeamID       *int64    `json:"owner_team_id,omitempty"`
	ParentWorkspaceID *int64    `json:"parent_workspace_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Member represents a user's explicit membership in a workspace.
type Member struct {
	ID          int64     `json:"id"`
	WorkspaceID int64     `json:"workspace_id"`
	UserID      int64     `json:"user_id"`
	AddedBy     *int64    `json:"added_by,omitempty"`
	AddedAt     time.Time `json:"added_at"`
}

// RelationBundle names the resources to attach to a workspace at creation
// time. Attachment happens in the same transaction as the insert, so a
// failed attachment leaves no half-created workspace behind.
type RelationBundle struct {
	KnowledgeEntryIDs []int64 `json:"knowledge_entry_ids,omitempty"`
	PromptTemplateIDs []int64 `json:"prompt_template_ids,omitempty"`
	ChatGroupIDs      []int64 `json:"chat_group_ids,omitempty"`
	ChatSessionIDs    []int64 `json:"chat_session_ids,omitempty"`
	UserIDs           []int64 `json:"user_ids,omitempty"`
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

// UpdateRequest represents a partial workspace update.
type UpdateRequest struct {
	Name              *string   `json:"name,omitempty"`
	Description       *string   `json:"description,omitempty"`
	OwnerUserID       RefUpdate `json:"owner_user_id,omitempty"`
	OwnerTeamID       RefUpdate `json:"owner_team_id,omitempty"`
	ParentWorkspaceID RefUpdate `json:"parent_workspace_id,omitempty"`
}
