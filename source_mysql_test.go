package main

import "testing"

func TestMySQLSourceOpenDBInvalidDSN(t *testing.T) {
	src := &mysqlStatsSource{}
	if _, err := src.OpenDB("://bad-dsn"); err == nil {
		t.Fatal("expected error for invalid DSN")
	}
}

func TestMySQLSourceExtractDBName(t *testing.T) {
	src := &mysqlStatsSource{}
	name, err := src.ExtractDBName("root:root@tcp(127.0.0.1:3306)/example_db")
	if err != nil {
		t.Fatalf("ExtractDBName() error: %v", err)
	}
	if name != "example_db" {
		t.Errorf("ExtractDBName() = %q, want %q", name, "example_db")
	}
}

func TestMySQLQuoteIdentifier(t *testing.T) {
	got := mysqlQuoteIdentifier("my`table")
	want := "`my``table`"
	if got != want {
		t.Errorf("mysqlQuoteIdentifier() = %q, want %q", got, want)
	}
}

func TestMySQLDropStatement(t *testing.T) {
	src := &mysqlStatsSource{}
	rec := testIndex("shop", "orders", "idx_status", []string{"status"}, 0)
	got := src.DropStatement(rec)
	want := "ALTER TABLE `shop`.`orders` DROP INDEX `idx_status`;"
	if got != want {
		t.Errorf("DropStatement() = %q, want %q", got, want)
	}
}

func TestMySQLSchemaFilter(t *testing.T) {
	clause, args := mysqlSchemaFilter("t.OBJECT_SCHEMA", "")
	if clause != "" || len(args) != 0 {
		t.Errorf("empty schema: clause = %q args = %v, want no filter", clause, args)
	}

	clause, args = mysqlSchemaFilter("t.OBJECT_SCHEMA", "shop")
	if clause != " AND t.OBJECT_SCHEMA = ?" {
		t.Errorf("clause = %q", clause)
	}
	if len(args) != 1 || args[0] != "shop" {
		t.Errorf("args = %v, want [shop]", args)
	}
}
