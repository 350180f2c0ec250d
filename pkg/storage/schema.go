package storage

import "fmt"

// Schema names every table the platform reads or writes. A single Schema
// value is constructed at startup and handed to the stores that need it;
// nothing in this package keeps process-wide mutable state.
type Schema struct {
	Organizations        string
	OrganizationMembers  string
	OrganizationInvites  string
	Teams                string
	TeamMembers          string
	Workspaces           string
	WorkspaceMembers     string
	KnowledgeEntries     string
	KnowledgeGroups      string
	KnowledgeGroupTeams  string
	KnowledgeFilters     string
	KnowledgeEntryFilter string
	KnowledgeChunks      string
	PromptTemplates      string
	ChatGroups           string
	ChatSessions         string
	AuditLogs            string
}

// DefaultSchema returns the table names used by the bundled migrations.
func DefaultSchema() Schema {
	return Schema{
		Organizations:        "organizations",
		OrganizationMembers:  "organization_members",
		OrganizationInvites:  "organization_invitations",
		Teams:                "teams",
		TeamMembers:          "team_members",
		Workspaces:           "workspaces",
		WorkspaceMembers:     "workspace_members",
		KnowledgeEntries:     "knowledge_entries",
		KnowledgeGroups:      "knowledge_groups",
		KnowledgeGroupTeams:  "knowledge_group_teams",
		KnowledgeFilters:     "knowledge_filters",
		KnowledgeEntryFilter: "knowledge_entry_filters",
		KnowledgeChunks:      "knowledge_chunks",
		PromptTemplates:      "prompt_templates",
		ChatGroups:           "chat_groups",
		ChatSessions:         "chat_sessions",
		AuditLogs:            "audit_logs",
	}
}

// Validate checks that every table name is set.
func (s Schema) Validate() error {
	named := map[string]string{
		"organizations":           s.Organizations,
		"organization members":    s.OrganizationMembers,
		"organization invites":    s.OrganizationInvites,
		"teams":                   s.Teams,
		"team members":            s.TeamMembers,
		"workspaces":              s.Workspaces,
		"workspace members":       s.WorkspaceMembers,
		"knowledge entries":       s.KnowledgeEntries,
		"knowledge groups":        s.KnowledgeGroups,
		"knowledge group teams":   s.KnowledgeGroupTeams,
		"knowledge filters":       s.KnowledgeFilters,
		"knowledge entry filters": s.KnowledgeEntryFilter,
		"knowledge chunks":        s.KnowledgeChunks,
		"prompt templates":        s.PromptTemplates,
		"chat groups":             s.ChatGroups,
		"chat sessions":           s.ChatSessions,
		"audit logs":              s.AuditLogs,
	}
	for what, name := range named {
		if name == "" {
			return fmt.Errorf("schema is missing a table name for %s", what)
		}
	}
	return nil
}
