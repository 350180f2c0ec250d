// Package workspaces manages workspaces: shared containers that hold
// knowledge entries, prompt templates, chat groups, and chat sessions.
//
// A workspace is held by a direct owner or an owning team (never both),
// optionally sits under a parent workspace, and can be shared with
// individual users through explicit membership rows. Access never
// propagates along the parent/child tree.
package workspaces
