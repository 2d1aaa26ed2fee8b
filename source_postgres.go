package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// postgresSystemSchemas lists the namespaces that are never audited.
// TOAST and temp namespaces are filtered separately by prefix.
const postgresSystemSchemas = "'pg_catalog', 'information_schema'"

type postgresStatsSource struct{}

func (p *postgresStatsSource) Name() string { return "PostgreSQL" }

func (p *postgresStatsSource) OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

func (p *postgresStatsSource) ExtractDBName(dsn string) (string, error) {
	if strings.Contains(dsn, "://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("parse postgres dsn: %w", err)
		}
		return strings.TrimPrefix(u.Path, "/"), nil
	}
	for _, field := range strings.Fields(dsn) {
		if v, ok := strings.CutPrefix(field, "dbname="); ok {
			return strings.Trim(v, "'"), nil
		}
	}
	return "", nil
}

func (p *postgresStatsSource) ServerVersion(ctx context.Context, db *sql.DB) (string, error) {
	var version string
	if err := db.QueryRowContext(ctx, `SHOW server_version`).Scan(&version); err != nil {
		return "", fmt.Errorf("query server version: %w", err)
	}
	return version, nil
}

func (p *postgresStatsSource) SupportsAdaptiveHash() bool { return false }

func (p *postgresStatsSource) DropStatement(rec IndexRecord) string {
	return fmt.Sprintf("DROP INDEX %s.%s;",
		postgresQuoteIdentifier(rec.Schema),
		postgresQuoteIdentifier(rec.Name))
}

func postgresQuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func postgresSchemaFilter(column, schema string) (string, []any) {
	if schema == "" {
		return "", nil
	}
	return " AND " + column + " = $1", []any{schema}
}

func (p *postgresStatsSource) Snapshot(ctx context.Context, db *sql.DB, schema string) (*Snapshot, error) {
	snap := &Snapshot{
		Source:     p.Name(),
		Schema:     schema,
		CapturedAt: time.Now().UTC(),
	}

	version, err := p.ServerVersion(ctx, db)
	if err != nil {
		return nil, err
	}
	snap.ServerVersion = version

	uptime, err := postgresUptime(ctx, db)
	if err != nil {
		return nil, err
	}
	snap.Uptime = uptime

	records, err := collectPostgresIndexStats(ctx, db, schema)
	if err != nil {
		return nil, fmt.Errorf("collect index statistics: %w", err)
	}
	snap.Records = records

	sizes, err := collectPostgresTableSizes(ctx, db, schema)
	if err != nil {
		return nil, fmt.Errorf("collect table sizes: %w", err)
	}
	snap.Sizes = sizes

	fks, err := collectPostgresForeignKeys(ctx, db, schema)
	if err != nil {
		return nil, fmt.Errorf("collect foreign keys: %w", err)
	}
	snap.ForeignKeys = fks

	return snap, nil
}

// collectPostgresIndexStats reads pg_stat_all_indexes joined to the index
// definition. idx_scan maps to total accesses; the stats collector tracks
// no per-index write counters, so those stay 0. Expression key parts have
// no attribute name and are left out of the column list, matching how the
// MySQL catalog reports NULL column names for them.
func collectPostgresIndexStats(ctx context.Context, db *sql.DB, schema string) ([]IndexRecord, error) {
	filter, args := postgresSchemaFilter("s.schemaname", schema)
	query := `
		SELECT
		    s.schemaname,
		    s.relname,
		    s.indexrelname,
		    s.idx_scan,
		    s.idx_tup_read,
		    s.idx_tup_fetch,
		    (SELECT string_agg(a.attname, ',' ORDER BY k.ord)
		       FROM unnest(i.indkey::int2[]) WITH ORDINALITY AS k(attnum, ord)
		       JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = k.attnum
		      WHERE k.attnum <> 0 AND k.ord <= i.indnkeyatts),
		    am.amname,
		    i.indnkeyatts,
		    i.indisunique,
		    i.indisprimary,
		    c.reltuples::bigint
		FROM pg_stat_all_indexes s
		JOIN pg_index i ON i.indexrelid = s.indexrelid
		JOIN pg_class c ON c.oid = s.indexrelid
		LEFT JOIN pg_am am ON am.oid = c.relam
		WHERE s.schemaname NOT IN (` + postgresSystemSchemas + `)
		    AND s.schemaname NOT LIKE 'pg_toast%'
		    AND s.schemaname NOT LIKE 'pg_temp%'` + filter + `
		ORDER BY s.idx_scan ASC, s.schemaname, s.relname, s.indexrelname`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []IndexRecord
	for rows.Next() {
		var (
			rec       IndexRecord
			columns   sql.NullString
			amName    sql.NullString
			reltuples int64
		)
		if err := rows.Scan(
			&rec.Schema, &rec.Table, &rec.Name,
			&rec.TotalAccesses, &rec.ReadAccesses, &rec.RowsFetched,
			&columns, &amName, &rec.ColumnCount, &rec.Unique, &rec.IsPrimary,
			&reltuples,
		); err != nil {
			return nil, err
		}
		rec.Columns = splitColumnList(columns.String)
		rec.Type = strings.ToUpper(amName.String)
		// reltuples is -1 until the relation has been analyzed.
		if reltuples >= 0 {
			v := reltuples
			rec.Cardinality = &v
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func collectPostgresTableSizes(ctx context.Context, db *sql.DB, schema string) (map[TableKey]TableSize, error) {
	filter, args := postgresSchemaFilter("n.nspname", schema)
	query := `
		SELECT
		    n.nspname,
		    c.relname,
		    ROUND((pg_total_relation_size(c.oid) / 1048576.0)::numeric, 2)::float8,
		    ROUND((pg_relation_size(c.oid) / 1048576.0)::numeric, 2)::float8,
		    ROUND((pg_indexes_size(c.oid) / 1048576.0)::numeric, 2)::float8
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind IN ('r', 'm', 'p')
		    AND n.nspname NOT IN (` + postgresSystemSchemas + `)
		    AND n.nspname NOT LIKE 'pg_toast%'
		    AND n.nspname NOT LIKE 'pg_temp%'` + filter

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sizes := make(map[TableKey]TableSize)
	for rows.Next() {
		var (
			key                      TableKey
			totalMB, dataMB, indexMB sql.NullFloat64
		)
		if err := rows.Scan(&key.Schema, &key.Table, &totalMB, &dataMB, &indexMB); err != nil {
			return nil, err
		}
		sizes[key] = TableSize{
			TotalMB: nullFloatPtr(totalMB),
			DataMB:  nullFloatPtr(dataMB),
			IndexMB: nullFloatPtr(indexMB),
		}
	}
	return sizes, rows.Err()
}

// collectPostgresForeignKeys maps indexes on the referencing side of each
// FK constraint by column membership, mirroring the MySQL collector's
// by-column join.
func collectPostgresForeignKeys(ctx context.Context, db *sql.DB, schema string) (ForeignKeyMap, error) {
	filter, args := postgresSchemaFilter("n.nspname", schema)
	query := `
		SELECT DISTINCT
		    n.nspname,
		    t.relname,
		    con.conname,
		    ic.relname
		FROM pg_constraint con
		JOIN pg_class t ON t.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = ANY (con.conkey)
		JOIN pg_index i ON i.indrelid = con.conrelid AND a.attnum = ANY (i.indkey::int2[])
		JOIN pg_class ic ON ic.oid = i.indexrelid
		WHERE con.contype = 'f'
		    AND n.nspname NOT IN (` + postgresSystemSchemas + `)` + filter

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fks := make(ForeignKeyMap)
	for rows.Next() {
		var schemaName, tableName, constraint, indexName string
		if err := rows.Scan(&schemaName, &tableName, &constraint, &indexName); err != nil {
			return nil, err
		}
		fks[IndexKey{Schema: schemaName, Table: tableName, Index: indexName}] = constraint
	}
	return fks, rows.Err()
}

func postgresUptime(ctx context.Context, db *sql.DB) (time.Duration, error) {
	var secs float64
	err := db.QueryRowContext(ctx, `SELECT EXTRACT(EPOCH FROM now() - pg_postmaster_start_time())::float8`).Scan(&secs)
	if err != nil {
		return 0, fmt.Errorf("query uptime: %w", err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
