// Package audit records security-relevant events: authorization denials,
// destructive mutations, membership changes, and administrative actions.
// Events are written through the Logger interface; the database-backed
// implementation persists them for search, export, and retention cleanup.
package audit
