// Package storage manages database connectivity and schema for the platform.
//
// # Overview
//
// The package owns three concerns:
//
//   - Connections: OpenPostgres and OpenRedis open verified connections from
//     a Config, applying pool limits and timeouts.
//   - Schema: the Schema struct names every table the platform touches. A
//     single Schema value is built at startup and injected into each store,
//     which keeps table names out of query literals and lets tests point a
//     store at its own tables.
//   - Migrations: GetMigrations returns the ordered DDL for the full schema
//     and RunMigrations applies whatever is missing, tracked in a
//     schema_migrations table.
//
// # Usage
//
//	cfg := storage.DefaultConfig()
//	cfg.PostgresURL = os.Getenv("KNOSSOS_POSTGRES_URL")
//
//	db, err := storage.OpenPostgres(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	schema := storage.DefaultSchema()
//	if err := storage.RunMigrations(ctx, db, schema); err != nil {
//		return err
//	}
//
// The stores in pkg/orgs, pkg/workspaces, pkg/knowledge, and pkg/audit all
// take the *sql.DB and Schema produced here.
package storage
