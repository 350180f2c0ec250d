// Package knowledge manages knowledge entries, their chunked content, the
// knowledge groups that share them, and the category/name filters used to
// tag them.
//
// Reads and mutations are gated through the access resolver: a caller may
// only touch an entry it can resolve, and destructive operations record an
// audit event. Group and filter management is organization-scoped.
package knowledge
