package main

import (
	"strings"
	"time"
)

// primaryIndexName is the reserved name MySQL gives every clustered
// primary key. Records carrying it are tagged primary during
// classification no matter what the collector reported.
const primaryIndexName = "PRIMARY"

// IndexKey identifies one index by its (schema, table, index) triple.
type IndexKey struct {
	Schema string
	Table  string
	Index  string
}

func (k IndexKey) less(o IndexKey) bool {
	if k.Schema != o.Schema {
		return k.Schema < o.Schema
	}
	if k.Table != o.Table {
		return k.Table < o.Table
	}
	return k.Index < o.Index
}

// String renders the triple as schema.table.index for logs and reports.
func (k IndexKey) String() string {
	return k.Schema + "." + k.Table + "." + k.Index
}

// TableKey identifies one table by its (schema, table) pair.
type TableKey struct {
	Schema string
	Table  string
}

func (k TableKey) String() string {
	return k.Schema + "." + k.Table
}

// IndexRecord is the normalized view of a single index: identity,
// declared shape, and the usage counters captured for one audit run.
type IndexRecord struct {
	Schema string
	Table  string
	Name   string

	// Columns holds the indexed column names in declared key order.
	// Empty means the catalog exposed no column metadata for the index.
	Columns     []string
	Type        string
	ColumnCount int
	Unique      bool
	IsPrimary   bool

	// Cardinality is the engine's distinct-value estimate. nil means the
	// engine has not produced one yet, which is distinct from a measured 0.
	Cardinality *int64

	TotalAccesses int64
	ReadAccesses  int64
	WriteAccesses int64
	RowsFetched   int64
	Inserts       int64
	Updates       int64
	Deletes       int64

	// TableCreated is the owning table's creation time when the engine
	// exposes one. The zero time means unknown.
	TableCreated time.Time
}

// Key returns the record's identity triple.
func (r IndexRecord) Key() IndexKey {
	return IndexKey{Schema: r.Schema, Table: r.Table, Index: r.Name}
}

// TableKey returns the owning table's identity.
func (r IndexRecord) TableKey() TableKey {
	return TableKey{Schema: r.Schema, Table: r.Table}
}

// QualifiedTable returns schema.table for display.
func (r IndexRecord) QualifiedTable() string {
	return r.Schema + "." + r.Table
}

// TableSize carries per-table storage figures in MB. nil fields mean the
// engine did not report that figure; they are only collapsed to a display
// default when a report is rendered.
type TableSize struct {
	TotalMB *float64
	DataMB  *float64
	IndexMB *float64
}

// ForeignKeyMap maps an index identity to the name of a foreign-key
// constraint whose columns that index covers.
type ForeignKeyMap map[IndexKey]string

// Backs reports whether the index backs a foreign-key constraint.
func (m ForeignKeyMap) Backs(key IndexKey) bool {
	_, ok := m[key]
	return ok
}

// RedundantPair records one redundancy finding: Redundant's columns are a
// strict prefix of CoveredBy's columns on the same table.
type RedundantPair struct {
	Redundant IndexRecord
	CoveredBy IndexRecord
}

// Snapshot is one immutable capture of a server's index usage state.
// Classification reads it and never mutates it.
type Snapshot struct {
	Source        string
	ServerVersion string
	Schema        string
	Uptime        time.Duration
	CapturedAt    time.Time

	Records     []IndexRecord
	Sizes       map[TableKey]TableSize
	ForeignKeys ForeignKeyMap
}

// splitColumnList splits a comma-joined column list, as produced by
// GROUP_CONCAT or string_agg, preserving order. Empty input yields nil.
func splitColumnList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	cols := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cols = append(cols, p)
		}
	}
	if len(cols) == 0 {
		return nil
	}
	return cols
}

// joinColumns renders a column list the way the catalogs emit it.
func joinColumns(cols []string) string {
	return strings.Join(cols, ",")
}
