//go:build integration

package main

import (
	"context"
	"database/sql"
	"os"
	"reflect"
	"testing"
)

// These tests need live servers and leave seeded tables behind on
// failure. Run with: go test -tags integration -run Integration

func TestIntegration_MySQLAudit(t *testing.T) {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		t.Skip("MYSQL_DSN env var required")
	}

	ctx := context.Background()
	src := &mysqlStatsSource{}

	db, err := src.OpenDB(dsn)
	if err != nil {
		t.Fatalf("open mysql: %v", err)
	}
	defer db.Close()

	schema, err := src.ExtractDBName(dsn)
	if err != nil {
		t.Fatalf("extract db name: %v", err)
	}
	if schema == "" {
		t.Skip("MYSQL_DSN must name a database")
	}

	seedMySQLAudit(t, db)

	// Touch the primary key and one secondary index so their usage
	// counters move; idx_status and idx_customer stay cold.
	var n int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM idxaudit_orders WHERE id = 1").Scan(&n); err != nil {
		t.Fatalf("pk lookup: %v", err)
	}
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM idxaudit_orders FORCE INDEX (idx_status_date) WHERE status = 'new'").Scan(&n); err != nil {
		t.Fatalf("forced index scan: %v", err)
	}
	analyzeRows, err := db.QueryContext(ctx, "ANALYZE TABLE idxaudit_orders")
	if err != nil {
		t.Fatalf("analyze table: %v", err)
	}
	analyzeRows.Close()

	snap, err := src.Snapshot(ctx, db, schema)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	if snap.Source != "MySQL" {
		t.Errorf("snapshot source = %q, want MySQL", snap.Source)
	}
	if snap.ServerVersion == "" {
		t.Errorf("snapshot has no server version")
	}
	if snap.Uptime <= 0 {
		t.Errorf("snapshot uptime = %v, want > 0", snap.Uptime)
	}

	pk := findIndexRecord(t, snap.Records, IndexKey{Schema: schema, Table: "idxaudit_orders", Index: "PRIMARY"})
	if !pk.IsPrimary {
		t.Errorf("PRIMARY record not tagged as primary")
	}
	if pk.TotalAccesses == 0 {
		t.Errorf("PRIMARY has zero accesses after a point lookup")
	}

	hotIdx := findIndexRecord(t, snap.Records, IndexKey{Schema: schema, Table: "idxaudit_orders", Index: "idx_status_date"})
	if want := []string{"status", "created_at"}; !reflect.DeepEqual(hotIdx.Columns, want) {
		t.Errorf("idx_status_date columns = %v, want %v", hotIdx.Columns, want)
	}
	if hotIdx.TotalAccesses == 0 {
		t.Errorf("idx_status_date has zero accesses after a forced scan")
	}

	coldIdx := findIndexRecord(t, snap.Records, IndexKey{Schema: schema, Table: "idxaudit_orders", Index: "idx_status"})
	if coldIdx.TotalAccesses != 0 {
		t.Errorf("idx_status accesses = %d, want 0", coldIdx.TotalAccesses)
	}

	if sz, ok := snap.Sizes[TableKey{Schema: schema, Table: "idxaudit_orders"}]; !ok {
		t.Errorf("snapshot has no size for idxaudit_orders")
	} else if sz.TotalMB == nil {
		t.Errorf("idxaudit_orders size is unknown")
	}

	fkKey := IndexKey{Schema: schema, Table: "idxaudit_orders", Index: "idx_customer"}
	if !snap.ForeignKeys.Backs(fkKey) {
		t.Errorf("idx_customer not recognized as a foreign-key index")
	}

	an, err := Classify(snap, Options{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	unused := make(map[string]bool)
	for _, r := range an.Unused {
		if r.Table == "idxaudit_orders" {
			unused[r.Name] = true
		}
	}
	if !unused["idx_status"] || !unused["idx_customer"] {
		t.Errorf("unused set for idxaudit_orders = %v, want idx_status and idx_customer", unused)
	}
	if unused["idx_status_date"] || unused["PRIMARY"] {
		t.Errorf("unused set for idxaudit_orders contains an accessed index: %v", unused)
	}

	foundPair := false
	for _, p := range an.Redundant {
		if p.Redundant.Key() == (IndexKey{Schema: schema, Table: "idxaudit_orders", Index: "idx_status"}) &&
			p.CoveredBy.Name == "idx_status_date" {
			foundPair = true
		}
	}
	if !foundPair {
		t.Errorf("redundant pairs missing idx_status covered by idx_status_date: %+v", an.Redundant)
	}

	for _, r := range an.SafeToDrop(snap.ForeignKeys) {
		if r.Key() == fkKey {
			t.Errorf("safe-to-drop list contains the foreign-key index %s", fkKey)
		}
	}
	for _, r := range an.Hot {
		if r.TotalAccesses == 0 {
			t.Errorf("hot list contains unaccessed index %s", r.Key())
		}
	}
}

func TestIntegration_PostgresAudit(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN env var required")
	}

	ctx := context.Background()
	src := &postgresStatsSource{}

	db, err := src.OpenDB(dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer db.Close()

	seedPostgresAudit(t, db)

	snap, err := src.Snapshot(ctx, db, "idxaudit_it")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	if snap.Source != "PostgreSQL" {
		t.Errorf("snapshot source = %q, want PostgreSQL", snap.Source)
	}
	if snap.ServerVersion == "" {
		t.Errorf("snapshot has no server version")
	}
	if snap.Uptime <= 0 {
		t.Errorf("snapshot uptime = %v, want > 0", snap.Uptime)
	}

	pk := findIndexRecord(t, snap.Records, IndexKey{Schema: "idxaudit_it", Table: "orders", Index: "orders_pkey"})
	if !pk.IsPrimary {
		t.Errorf("orders_pkey not tagged as primary")
	}

	statusIdx := findIndexRecord(t, snap.Records, IndexKey{Schema: "idxaudit_it", Table: "orders", Index: "idx_status"})
	if want := []string{"status"}; !reflect.DeepEqual(statusIdx.Columns, want) {
		t.Errorf("idx_status columns = %v, want %v", statusIdx.Columns, want)
	}
	if statusIdx.Cardinality == nil {
		t.Errorf("idx_status cardinality unknown after analyze")
	}

	wideIdx := findIndexRecord(t, snap.Records, IndexKey{Schema: "idxaudit_it", Table: "orders", Index: "idx_status_date"})
	if want := []string{"status", "created_at"}; !reflect.DeepEqual(wideIdx.Columns, want) {
		t.Errorf("idx_status_date columns = %v, want %v", wideIdx.Columns, want)
	}

	if sz, ok := snap.Sizes[TableKey{Schema: "idxaudit_it", Table: "orders"}]; !ok {
		t.Errorf("snapshot has no size for orders")
	} else if sz.TotalMB == nil {
		t.Errorf("orders size is unknown")
	}

	fkKey := IndexKey{Schema: "idxaudit_it", Table: "orders", Index: "idx_customer"}
	if !snap.ForeignKeys.Backs(fkKey) {
		t.Errorf("idx_customer not recognized as a foreign-key index")
	}

	an, err := Classify(snap, Options{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	unused := make(map[string]bool)
	for _, r := range an.Unused {
		unused[r.Name] = true
	}
	for _, name := range []string{"idx_status", "idx_status_date", "idx_customer"} {
		if !unused[name] {
			t.Errorf("unused set missing never-scanned index %s: %v", name, unused)
		}
	}
	if unused["orders_pkey"] {
		t.Errorf("unused set contains the primary key")
	}

	foundPair := false
	for _, p := range an.Redundant {
		if p.Redundant.Name == "idx_status" && p.CoveredBy.Name == "idx_status_date" {
			foundPair = true
		}
	}
	if !foundPair {
		t.Errorf("redundant pairs missing idx_status covered by idx_status_date: %+v", an.Redundant)
	}

	for _, r := range an.SafeToDrop(snap.ForeignKeys) {
		if r.Key() == fkKey {
			t.Errorf("safe-to-drop list contains the foreign-key index %s", fkKey)
		}
	}
}

func findIndexRecord(t *testing.T, recs []IndexRecord, key IndexKey) IndexRecord {
	t.Helper()
	for _, r := range recs {
		if r.Key() == key {
			return r
		}
	}
	t.Fatalf("index %s not found in snapshot", key)
	return IndexRecord{}
}

func seedMySQLAudit(t *testing.T, db *sql.DB) {
	t.Helper()

	stmts := []string{
		"DROP TABLE IF EXISTS idxaudit_orders",
		"DROP TABLE IF EXISTS idxaudit_customers",

		`CREATE TABLE idxaudit_customers (
			id INT AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(100) NOT NULL
		) ENGINE=InnoDB`,
		`CREATE TABLE idxaudit_orders (
			id INT AUTO_INCREMENT PRIMARY KEY,
			customer_id INT NOT NULL,
			status VARCHAR(20) NOT NULL,
			created_at DATETIME NOT NULL,
			KEY idx_status (status),
			KEY idx_status_date (status, created_at),
			KEY idx_customer (customer_id),
			CONSTRAINT fk_idxaudit_orders_customer FOREIGN KEY (customer_id) REFERENCES idxaudit_customers (id)
		) ENGINE=InnoDB`,

		"INSERT INTO idxaudit_customers (name) VALUES ('Alice'), ('Bob')",
		`INSERT INTO idxaudit_orders (customer_id, status, created_at) VALUES
			(1, 'new', NOW()),
			(1, 'paid', NOW()),
			(2, 'new', NOW()),
			(2, 'shipped', NOW())`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed mysql %q: %v", stmt[:min(len(stmt), 60)], err)
		}
	}

	t.Cleanup(func() {
		db.Exec("DROP TABLE IF EXISTS idxaudit_orders")
		db.Exec("DROP TABLE IF EXISTS idxaudit_customers")
	})
}

func seedPostgresAudit(t *testing.T, db *sql.DB) {
	t.Helper()

	stmts := []string{
		"DROP SCHEMA IF EXISTS idxaudit_it CASCADE",
		"CREATE SCHEMA idxaudit_it",

		`CREATE TABLE idxaudit_it.customers (
			id INT PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE idxaudit_it.orders (
			id SERIAL PRIMARY KEY,
			customer_id INT NOT NULL REFERENCES idxaudit_it.customers (id),
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		"INSERT INTO idxaudit_it.customers VALUES (1, 'Alice'), (2, 'Bob')",
		`INSERT INTO idxaudit_it.orders (customer_id, status) VALUES
			(1, 'new'), (1, 'paid'), (2, 'new'), (2, 'shipped')`,

		"CREATE INDEX idx_status ON idxaudit_it.orders (status)",
		"CREATE INDEX idx_status_date ON idxaudit_it.orders (status, created_at)",
		"CREATE INDEX idx_customer ON idxaudit_it.orders (customer_id)",
		"ANALYZE idxaudit_it.orders",
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed postgres %q: %v", stmt[:min(len(stmt), 60)], err)
		}
	}

	t.Cleanup(func() {
		db.Exec("DROP SCHEMA IF EXISTS idxaudit_it CASCADE")
	})
}
