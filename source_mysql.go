package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// mysqlSystemSchemas lists the schemas that are never audited.
const mysqlSystemSchemas = "'mysql', 'information_schema', 'performance_schema', 'sys'"

type mysqlStatsSource struct{}

func (m *mysqlStatsSource) Name() string { return "MySQL" }

func (m *mysqlStatsSource) OpenDB(dsn string) (*sql.DB, error) {
	readDSN, err := mysqlDSNWithReadOptions(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", readDSN)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	return db, nil
}

func (m *mysqlStatsSource) ExtractDBName(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	return cfg.DBName, nil
}

func (m *mysqlStatsSource) ServerVersion(ctx context.Context, db *sql.DB) (string, error) {
	var version string
	if err := db.QueryRowContext(ctx, `SELECT VERSION()`).Scan(&version); err != nil {
		return "", fmt.Errorf("query server version: %w", err)
	}
	return version, nil
}

func (m *mysqlStatsSource) SupportsAdaptiveHash() bool { return true }

func (m *mysqlStatsSource) DropStatement(rec IndexRecord) string {
	return fmt.Sprintf("ALTER TABLE %s.%s DROP INDEX %s;",
		mysqlQuoteIdentifier(rec.Schema),
		mysqlQuoteIdentifier(rec.Table),
		mysqlQuoteIdentifier(rec.Name))
}

func mysqlQuoteIdentifier(name string) string {
	return fmt.Sprintf("`%s`", strings.ReplaceAll(name, "`", "``"))
}

// mysqlSchemaFilter appends an equality filter for one schema. column is
// trusted (always a literal in this file); the value goes through a
// placeholder.
func mysqlSchemaFilter(column, schema string) (string, []any) {
	if schema == "" {
		return "", nil
	}
	return " AND " + column + " = ?", []any{schema}
}

func (m *mysqlStatsSource) Snapshot(ctx context.Context, db *sql.DB, schema string) (*Snapshot, error) {
	snap := &Snapshot{
		Source:     m.Name(),
		Schema:     schema,
		CapturedAt: time.Now().UTC(),
	}

	version, err := m.ServerVersion(ctx, db)
	if err != nil {
		return nil, err
	}
	snap.ServerVersion = version

	uptime, err := mysqlUptime(ctx, db)
	if err != nil {
		return nil, err
	}
	snap.Uptime = uptime

	records, err := collectMySQLIndexStats(ctx, db, schema)
	if err != nil {
		return nil, fmt.Errorf("collect index statistics: %w", err)
	}

	sizes, created, err := collectMySQLTableSizes(ctx, db, schema)
	if err != nil {
		return nil, fmt.Errorf("collect table sizes: %w", err)
	}
	for i := range records {
		if ts, ok := created[records[i].TableKey()]; ok {
			records[i].TableCreated = ts
		}
	}
	snap.Records = records
	snap.Sizes = sizes

	fks, err := collectMySQLForeignKeys(ctx, db, schema)
	if err != nil {
		return nil, fmt.Errorf("collect foreign keys: %w", err)
	}
	snap.ForeignKeys = fks

	return snap, nil
}

// collectMySQLIndexStats joins the performance_schema usage counters with
// STATISTICS column metadata, pre-aggregated to exactly one row per
// (schema, table, index) with columns concatenated in key order. The
// LEFT JOIN keeps counters for indexes whose definition has already been
// dropped; those rows come back without column metadata.
func collectMySQLIndexStats(ctx context.Context, db *sql.DB, schema string) ([]IndexRecord, error) {
	filter, args := mysqlSchemaFilter("t.OBJECT_SCHEMA", schema)
	query := `
		SELECT
		    t.OBJECT_SCHEMA,
		    t.OBJECT_NAME,
		    t.INDEX_NAME,
		    t.COUNT_STAR,
		    t.COUNT_READ,
		    t.COUNT_WRITE,
		    t.COUNT_FETCH,
		    t.COUNT_INSERT,
		    t.COUNT_UPDATE,
		    t.COUNT_DELETE,
		    GROUP_CONCAT(s.COLUMN_NAME ORDER BY s.SEQ_IN_INDEX),
		    MAX(s.INDEX_TYPE),
		    MAX(s.CARDINALITY),
		    COUNT(DISTINCT s.COLUMN_NAME),
		    MAX(s.NON_UNIQUE)
		FROM performance_schema.table_io_waits_summary_by_index_usage t
		LEFT JOIN information_schema.STATISTICS s
		    ON t.OBJECT_SCHEMA = s.TABLE_SCHEMA
		    AND t.OBJECT_NAME = s.TABLE_NAME
		    AND t.INDEX_NAME = s.INDEX_NAME
		WHERE t.OBJECT_SCHEMA NOT IN (` + mysqlSystemSchemas + `)
		    AND t.INDEX_NAME IS NOT NULL` + filter + `
		GROUP BY t.OBJECT_SCHEMA, t.OBJECT_NAME, t.INDEX_NAME,
		         t.COUNT_STAR, t.COUNT_READ, t.COUNT_WRITE, t.COUNT_FETCH,
		         t.COUNT_INSERT, t.COUNT_UPDATE, t.COUNT_DELETE
		ORDER BY t.COUNT_STAR ASC, t.OBJECT_SCHEMA, t.OBJECT_NAME, t.INDEX_NAME`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []IndexRecord
	for rows.Next() {
		var (
			rec         IndexRecord
			columns     sql.NullString
			indexType   sql.NullString
			cardinality sql.NullInt64
			nonUnique   sql.NullInt64
		)
		if err := rows.Scan(
			&rec.Schema, &rec.Table, &rec.Name,
			&rec.TotalAccesses, &rec.ReadAccesses, &rec.WriteAccesses, &rec.RowsFetched,
			&rec.Inserts, &rec.Updates, &rec.Deletes,
			&columns, &indexType, &cardinality, &rec.ColumnCount, &nonUnique,
		); err != nil {
			return nil, err
		}
		rec.Columns = splitColumnList(columns.String)
		rec.Type = strings.ToUpper(indexType.String)
		rec.Unique = nonUnique.Valid && nonUnique.Int64 == 0
		rec.IsPrimary = rec.Name == primaryIndexName
		if cardinality.Valid {
			v := cardinality.Int64
			rec.Cardinality = &v
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func collectMySQLTableSizes(ctx context.Context, db *sql.DB, schema string) (map[TableKey]TableSize, map[TableKey]time.Time, error) {
	filter, args := mysqlSchemaFilter("TABLE_SCHEMA", schema)
	query := `
		SELECT TABLE_SCHEMA, TABLE_NAME,
		       ROUND((DATA_LENGTH + INDEX_LENGTH) / 1024 / 1024, 2),
		       ROUND(DATA_LENGTH / 1024 / 1024, 2),
		       ROUND(INDEX_LENGTH / 1024 / 1024, 2),
		       CREATE_TIME
		FROM information_schema.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE'
		    AND TABLE_SCHEMA NOT IN (` + mysqlSystemSchemas + `)` + filter

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	sizes := make(map[TableKey]TableSize)
	created := make(map[TableKey]time.Time)
	for rows.Next() {
		var (
			key                      TableKey
			totalMB, dataMB, indexMB sql.NullFloat64
			createTime               sql.NullTime
		)
		if err := rows.Scan(&key.Schema, &key.Table, &totalMB, &dataMB, &indexMB, &createTime); err != nil {
			return nil, nil, err
		}
		sizes[key] = TableSize{
			TotalMB: nullFloatPtr(totalMB),
			DataMB:  nullFloatPtr(dataMB),
			IndexMB: nullFloatPtr(indexMB),
		}
		if createTime.Valid {
			created[key] = createTime.Time
		}
	}
	return sizes, created, rows.Err()
}

// collectMySQLForeignKeys maps every index that covers a foreign-key
// column to that constraint's name. The join is by column name, so an
// index containing an FK column at any position counts as backing it.
func collectMySQLForeignKeys(ctx context.Context, db *sql.DB, schema string) (ForeignKeyMap, error) {
	filter, args := mysqlSchemaFilter("kcu.CONSTRAINT_SCHEMA", schema)
	query := `
		SELECT DISTINCT
		    kcu.CONSTRAINT_SCHEMA,
		    kcu.TABLE_NAME,
		    kcu.CONSTRAINT_NAME,
		    s.INDEX_NAME
		FROM information_schema.KEY_COLUMN_USAGE kcu
		JOIN information_schema.TABLE_CONSTRAINTS tc
		    ON kcu.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
		    AND kcu.CONSTRAINT_SCHEMA = tc.CONSTRAINT_SCHEMA
		LEFT JOIN information_schema.STATISTICS s
		    ON kcu.TABLE_SCHEMA = s.TABLE_SCHEMA
		    AND kcu.TABLE_NAME = s.TABLE_NAME
		    AND kcu.COLUMN_NAME = s.COLUMN_NAME
		WHERE tc.CONSTRAINT_TYPE = 'FOREIGN KEY'
		    AND kcu.CONSTRAINT_SCHEMA NOT IN (` + mysqlSystemSchemas + `)` + filter

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fks := make(ForeignKeyMap)
	for rows.Next() {
		var (
			schemaName, tableName, constraint string
			indexName                         sql.NullString
		)
		if err := rows.Scan(&schemaName, &tableName, &constraint, &indexName); err != nil {
			return nil, err
		}
		if !indexName.Valid || indexName.String == "" {
			continue
		}
		fks[IndexKey{Schema: schemaName, Table: tableName, Index: indexName.String}] = constraint
	}
	return fks, rows.Err()
}

func mysqlUptime(ctx context.Context, db *sql.DB) (time.Duration, error) {
	var name, value string
	err := db.QueryRowContext(ctx, `SHOW GLOBAL STATUS LIKE 'Uptime'`).Scan(&name, &value)
	if err != nil {
		return 0, fmt.Errorf("query uptime: %w", err)
	}
	secs, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse uptime %q: %w", value, err)
	}
	return time.Duration(secs) * time.Second, nil
}

func nullFloatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
