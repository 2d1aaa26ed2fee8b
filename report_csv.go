package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
)

// writeCSVReport writes the three-block CSV report to path.
func writeCSVReport(path string, snap *Snapshot, an *Analysis) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv report: %w", err)
	}
	if err := renderCSVReport(f, snap, an); err != nil {
		f.Close()
		return fmt.Errorf("write csv report: %w", err)
	}
	return f.Close()
}

// renderCSVReport emits three titled blocks separated by blank rows:
// unused indexes with size context, redundant pairs, and the full
// per-index statistics table sorted by identity.
func renderCSVReport(w io.Writer, snap *Snapshot, an *Analysis) error {
	cw := csv.NewWriter(w)

	cw.Write([]string{"UNUSED INDEXES"})
	cw.Write([]string{
		"Schema", "Table", "Index Name", "Columns", "Type",
		"Is Foreign Key", "Cardinality", "Table Size (MB)",
		"Data Size (MB)", "Index Size (MB)",
	})
	for _, r := range an.Unused {
		isFK := "NO"
		if snap.ForeignKeys.Backs(r.Key()) {
			isFK = "YES"
		}
		sz := snap.Sizes[r.TableKey()]
		cw.Write([]string{
			r.Schema,
			r.Table,
			r.Name,
			orNA(joinColumns(r.Columns)),
			orNA(r.Type),
			isFK,
			csvCardinalityOrZero(r.Cardinality),
			csvMB(sz.TotalMB),
			csvMB(sz.DataMB),
			csvMB(sz.IndexMB),
		})
	}

	cw.Write(nil)
	cw.Write([]string{"REDUNDANT INDEXES"})
	cw.Write([]string{
		"Schema", "Table", "Redundant Index", "Redundant Columns",
		"Covered By Index", "Covered By Columns",
	})
	for _, p := range an.Redundant {
		cw.Write([]string{
			p.Redundant.Schema,
			p.Redundant.Table,
			p.Redundant.Name,
			orNA(joinColumns(p.Redundant.Columns)),
			p.CoveredBy.Name,
			orNA(joinColumns(p.CoveredBy.Columns)),
		})
	}

	cw.Write(nil)
	cw.Write([]string{"ALL INDEX STATISTICS"})
	cw.Write([]string{
		"Schema", "Table", "Index Name", "Columns", "Type",
		"Non-Unique", "Cardinality", "Total Accesses", "Read Accesses",
		"Write Accesses", "Rows Fetched", "Inserts", "Updates", "Deletes",
	})
	byIdentity := append([]IndexRecord(nil), an.Records...)
	sort.Slice(byIdentity, func(i, j int) bool {
		return byIdentity[i].Key().less(byIdentity[j].Key())
	})
	for _, r := range byIdentity {
		nonUnique := "1"
		if r.Unique {
			nonUnique = "0"
		}
		cw.Write([]string{
			r.Schema,
			r.Table,
			r.Name,
			orNA(joinColumns(r.Columns)),
			orNA(r.Type),
			nonUnique,
			csvCardinality(r.Cardinality),
			strconv.FormatInt(r.TotalAccesses, 10),
			strconv.FormatInt(r.ReadAccesses, 10),
			strconv.FormatInt(r.WriteAccesses, 10),
			strconv.FormatInt(r.RowsFetched, 10),
			strconv.FormatInt(r.Inserts, 10),
			strconv.FormatInt(r.Updates, 10),
			strconv.FormatInt(r.Deletes, 10),
		})
	}

	cw.Flush()
	return cw.Error()
}

// csvCardinality leaves unknown cardinality as an empty cell.
func csvCardinality(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

// csvCardinalityOrZero matches the unused block's numeric default.
func csvCardinalityOrZero(v *int64) string {
	if v == nil {
		return "0"
	}
	return strconv.FormatInt(*v, 10)
}

// csvMB renders a size figure with the block's 0.00 default.
func csvMB(v *float64) string {
	if v == nil {
		return "0.00"
	}
	return fmt.Sprintf("%.2f", *v)
}
