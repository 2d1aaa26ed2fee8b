package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func renderScenarioHTML(t *testing.T) string {
	t.Helper()

	snap, an := reportScenario(t)
	opts := Options{Now: time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)}

	var buf strings.Builder
	if err := renderHTMLReport(&buf, &mysqlStatsSource{}, snap, an, opts); err != nil {
		t.Fatalf("renderHTMLReport: %v", err)
	}
	return buf.String()
}

func TestRenderHTMLReport(t *testing.T) {
	out := renderScenarioHTML(t)

	for _, want := range []string{
		"<!DOCTYPE html>",
		"<title>Index Analysis Report - shop</title>",
		"Generated: 2025-06-01 12:05:00 |",
		"Source: MySQL 8.0.39 |",
		"Schema: shop",
		"<h2>1. Summary Statistics</h2>",
		"<div class=\"stat-label\">Total Indexes</div>",
		"<div class=\"stat-sub\">60.0% of total</div>",
		"<div class=\"stat-value\">512.00 MB</div>",
		"<div class=\"stat-sub\">25.0% of database</div>",
		"<h2>2. Unused Indexes (Never Accessed)</h2>",
		"<code>idx_customer</code>",
		"<span class=\"badge badge-yes\">YES</span>",
		"<span class=\"badge badge-no\">NO</span>",
		"<td class=\"number\">1,234,567</td>",
		"Table size: 512.00 MB (data: 384.00 MB, indexes: 128.00 MB)",
		"Warning: 1 unused index(es) are associated with foreign keys",
		"<h2>3. Potentially Redundant Indexes</h2>",
		"<h2>4. Most Frequently Accessed Indexes (Top 10)</h2>",
		"<td class=\"number\">98,421</td>",
		"<h2>5. Recommendations</h2>",
		"2 unused non-FK index(es) can likely be dropped",
		"1 potentially redundant index pair(s) detected",
		"<h2>6. Example DROP Statements</h2>",
		"ALTER TABLE `shop`.`orders` DROP INDEX `idx_status`;",
		"Generated by idxaudit",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("HTML report missing %q", want)
		}
	}
}

func TestRenderHTMLReportDistinguishesZeroCardinality(t *testing.T) {
	out := renderScenarioHTML(t)

	// idx_wide has a measured cardinality of zero; idx_status has none
	// recorded. The table must show 0 for the first and N/A for the second.
	if !strings.Contains(out, "<td class=\"number\">0</td>") {
		t.Errorf("HTML report does not render measured zero cardinality as 0")
	}
	if !strings.Contains(out, "<td class=\"number\">N/A</td>") {
		t.Errorf("HTML report does not render unknown cardinality as N/A")
	}
}

func TestRenderHTMLReportEscapesIdentifiers(t *testing.T) {
	hostile := testIndex("shop", `orders<script>alert(1)</script>`, "idx_\"evil\"", []string{"a"}, 0)

	snap := &Snapshot{
		Source:        "MySQL",
		ServerVersion: "8.0.39",
		Schema:        "shop",
		CapturedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Records:       []IndexRecord{hostile},
	}
	an, err := Classify(snap, Options{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	var buf strings.Builder
	if err := renderHTMLReport(&buf, &mysqlStatsSource{}, snap, an, Options{}); err != nil {
		t.Fatalf("renderHTMLReport: %v", err)
	}
	out := buf.String()

	if strings.Contains(out, "<script>alert(1)</script>") {
		t.Errorf("HTML report leaked an unescaped table name")
	}
	if !strings.Contains(out, "&lt;script&gt;") {
		t.Errorf("HTML report does not escape angle brackets in identifiers")
	}
}

func TestRenderHTMLReportCapsDropStatements(t *testing.T) {
	snap := &Snapshot{
		Source:        "MySQL",
		ServerVersion: "8.0.39",
		Schema:        "shop",
		CapturedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	for i := 0; i < 13; i++ {
		snap.Records = append(snap.Records,
			testIndex("shop", "orders", fmt.Sprintf("idx_%02d", i), []string{fmt.Sprintf("c%d", i)}, 0))
	}

	an, err := Classify(snap, Options{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	var buf strings.Builder
	if err := renderHTMLReport(&buf, &mysqlStatsSource{}, snap, an, Options{}); err != nil {
		t.Fatalf("renderHTMLReport: %v", err)
	}

	if got := strings.Count(buf.String(), "DROP INDEX"); got != 10 {
		t.Errorf("DROP statement count = %d, want 10", got)
	}
}

func TestRenderHTMLReportNoFindings(t *testing.T) {
	pk := testIndex("shop", "orders", "PRIMARY", []string{"id"}, 100)

	snap := &Snapshot{
		Source:        "PostgreSQL",
		ServerVersion: "16.3",
		CapturedAt:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Records:       []IndexRecord{pk},
	}
	an, err := Classify(snap, Options{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	var buf strings.Builder
	if err := renderHTMLReport(&buf, &postgresStatsSource{}, snap, an, Options{}); err != nil {
		t.Fatalf("renderHTMLReport: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "No unused indexes found!") {
		t.Errorf("HTML report missing the no-findings alert")
	}
	if !strings.Contains(out, "Schema: all user schemas") {
		t.Errorf("HTML report missing the all-schemas label")
	}
	for _, absent := range []string{
		"<h2>3. Potentially Redundant Indexes</h2>",
		"<h2>6. Example DROP Statements</h2>",
		"REVIEW CAREFULLY",
	} {
		if strings.Contains(out, absent) {
			t.Errorf("HTML report unexpectedly contains %q", absent)
		}
	}
}

func TestWriteHTMLReport(t *testing.T) {
	snap, an := reportScenario(t)
	path := filepath.Join(t.TempDir(), "report.html")

	if err := writeHTMLReport(path, &mysqlStatsSource{}, snap, an, Options{}); err != nil {
		t.Fatalf("writeHTMLReport: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	if !strings.HasPrefix(string(data), "<!DOCTYPE html>") {
		t.Errorf("report file does not start with a doctype")
	}
}
