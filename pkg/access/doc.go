// Package access implements the access resolution engine: the single place
// that decides whether a user may read or mutate a shared resource
// (knowledge entry, knowledge group, workspace) inside an organization.
//
// The decision merges four independent sharing dimensions:
//
//   1. Direct ownership of the resource
//   2. Team membership (entry or workspace owned by one of the user's teams)
//   3. Workspace membership (direct ownership, team ownership, or an
//      explicit membership row)
//   4. Knowledge-group sharing (organization-wide flag or per-team
//      assignment)
//
// Every read, update, delete, and retrieval path - including the candidate
// pre-filter for similarity search - must go through this package so the
// decision is applied identically everywhere.
//
// Resolution is stateless and request-scoped: each call computes fresh
// membership sets (memoized only within the call) and issues independent
// queries, so concurrent resolutions need no locking.
//
// Note the "absent = open" rule on knowledge entries: an entry whose team
// and workspace references are both absent is readable by any member of its
// organization regardless of ownership. This reproduces the observed
// production behavior; see CanAccessEntry before relying on it.
package access
