// Package orgs manages organizations, organization membership, teams, and
// invitations. Organizations are the tenant boundary: every other entity in
// the platform carries an organization id, and no query in this package
// answers with rows from another organization.
//
// Team membership written here is the data the access resolver's
// TeamMembershipIndex reads; role strings on organization members
// (owner/admin/member) feed the knowledge-group registry's admin gate.
package orgs
