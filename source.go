package main

import (
	"context"
	"database/sql"
	"fmt"
)

// StatsSource abstracts catalog and statistics acquisition so idxaudit
// can audit multiple engines (MySQL, PostgreSQL).
type StatsSource interface {
	// Name returns a human-readable name for the engine ("MySQL", "PostgreSQL").
	Name() string

	// OpenDB opens a database connection with driver-specific read options.
	OpenDB(dsn string) (*sql.DB, error)

	// ExtractDBName extracts a logical database name from the DSN (for logging).
	ExtractDBName(dsn string) (string, error)

	// ServerVersion reports the server's version string.
	ServerVersion(ctx context.Context, db *sql.DB) (string, error)

	// Snapshot captures index usage records, table sizes, and foreign-key
	// bindings in one pass. schema restricts the capture to a single
	// schema; empty means every user schema on the server.
	Snapshot(ctx context.Context, db *sql.DB, schema string) (*Snapshot, error)

	// DropStatement renders an example DROP statement for one index in
	// the engine's dialect, identifiers quoted.
	DropStatement(rec IndexRecord) string

	// SupportsAdaptiveHash reports whether the engine exposes the InnoDB
	// adaptive hash index counters behind the ahi subcommand.
	SupportsAdaptiveHash() bool
}

// newStatsSource returns a StatsSource implementation for the given source type.
func newStatsSource(sourceType string) (StatsSource, error) {
	switch sourceType {
	case "mysql":
		return &mysqlStatsSource{}, nil
	case "postgres":
		return &postgresStatsSource{}, nil
	default:
		return nil, fmt.Errorf("unsupported source type %q (must be mysql or postgres)", sourceType)
	}
}
