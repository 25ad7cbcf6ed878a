// Package postgres implements the internal/store interfaces on PostgreSQL
// through database/sql and the pgx stdlib driver. It also owns the schema:
// the goose migrations under migrations/ are embedded and applied by Migrate.
package postgres
