package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authorization events
	EventTypeAccessCheck  EventType = "authz.access_check"
	EventTypeAccessDenied EventType = "authz.access_denied"

	// Knowledge data events
	EventTypeEntryUpdate        EventType = "data.entry_update"
	EventTypeEntryDelete        EventType = "data.entry_delete"
	EventTypeGroupCreate        EventType = "data.group_create"
	EventTypeGroupUpdate        EventType = "data.group_update"
	EventTypeGroupDelete        EventType = "data.group_delete"
	EventTypeGroupTeamAssign    EventType = "data.group_team_assign"
	EventTypeGroupTeamRemove    EventType = "data.group_team_remove"
	EventTypeFilterUpsert       EventType = "data.filter_upsert"
	EventTypeFilterRename       EventType = "data.filter_rename"
	EventTypeFilterRecategorize EventType = "data.filter_recategorize"
	EventTypeFilterDelete       EventType = "data.filter_delete"
	EventTypeFilterAssign       EventType = "data.filter_assign"
	EventTypeFilterUnassign     EventType = "data.filter_unassign"

	// Workspace events
	EventTypeWorkspaceCreate     EventType = "workspace.create"
	EventTypeWorkspaceUpdate     EventType = "workspace.update"
	EventTypeWorkspaceDelete     EventType = "workspace.delete"
	EventTypeWorkspaceUserAdd    EventType = "workspace.user_add"
	EventTypeWorkspaceUserRemove EventType = "workspace.user_remove"

	// Admin events
	EventTypeOrgCreate           EventType = "admin.org_create"
	EventTypeOrgUpdate           EventType = "admin.org_update"
	EventTypeOrgDelete           EventType = "admin.org_delete"
	EventTypeOrgMemberAdd        EventType = "admin.org_member_add"
	EventTypeOrgMemberRemove     EventType = "admin.org_member_remove"
	EventTypeOrgMemberRoleChange EventType = "admin.org_member_role_change"
	EventTypeTeamCreate          EventType = "admin.team_create"
	EventTypeTeamUpdate          EventType = "admin.team_update"
	EventTypeTeamDelete          EventType = "admin.team_delete"
	EventTypeTeamMemberAdd       EventType = "admin.team_member_add"
	EventTypeTeamMemberRemove    EventType = "admin.team_member_remove"

	// Invitation events
	EventTypeInviteCreate EventType = "invite.create"
	EventTypeInviteAccept EventType = "invite.accept"
	EventTypeInviteRevoke EventType = "invite.revoke"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being accessed
type ResourceType string

const (
	ResourceTypeKnowledgeEntry  ResourceType = "knowledge_entry"
	ResourceTypeKnowledgeGroup  ResourceType = "knowledge_group"
	ResourceTypeKnowledgeFilter ResourceType = "knowledge_filter"
	ResourceTypeWorkspace       ResourceType = "workspace"
	ResourceTypeOrganization    ResourceType = "organization"
	ResourceTypeTeam            ResourceType = "team"
	ResourceTypeInvitation      ResourceType = "invitation"
)

// Event represents a single audit log entry
type Event struct {
	// Core fields
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	UserID         *int64 `json:"user_id,omitempty"`
	OrganizationID *int64 `json:"organization_id,omitempty"`

	// Resource information
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`
	ResourceName string       `json:"resource_name,omitempty"`

	// Request context
	IPAddress  string `json:"ip_address,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	Method     string `json:"method,omitempty"`
	Path       string `json:"path,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`

	// Additional details
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	// Changes tracking (before/after for updates)
	Changes *ChangeDetails `json:"changes,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	return &event, err
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	// Time range
	StartTime *time.Time
	EndTime   *time.Time

	// Actor filters
	UserID         *int64
	OrganizationID *int64

	// Event filters
	EventTypes []EventType
	Status     *EventStatus

	// Resource filters
	ResourceType ResourceType
	ResourceID   string

	// Request context filters
	IPAddress string
	Method    string
	Path      string

	// Pagination
	Limit  int
	Offset int

	// Sorting
	SortBy    string // field name to sort by
	SortOrder string // "asc" or "desc"
}

// ExportFormat represents the format for exporting audit logs
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson" // Newline-delimited JSON
)

// RetentionPolicy defines how long audit logs should be kept
type RetentionPolicy struct {
	// RetentionDays is the number of days to keep audit logs
	RetentionDays int
}

// DefaultRetentionPolicy returns a default retention policy (90 days)
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{RetentionDays: 90}
}
