package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
)

// Shared display helpers. Unknown values (nil pointers, empty strings)
// collapse to their display defaults here and nowhere earlier.

func formatCount(v int64) string {
	return humanize.Comma(v)
}

func cardinalityString(v *int64) string {
	if v == nil {
		return "N/A"
	}
	return humanize.Comma(*v)
}

func mbString(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", *v)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// truncateColumns shortens a rendered column list to fit its report
// column, marking the cut with "..".
func truncateColumns(cols []string) string {
	s := joinColumns(cols)
	if s == "" {
		return "N/A"
	}
	if len(s) > 30 {
		return s[:28] + ".."
	}
	return s
}

func formatPercent(v float64, decimals int) string {
	return strconv.FormatFloat(v, 'f', decimals, 64)
}

func formatUptime(d time.Duration) string {
	d = d.Truncate(time.Second)
	if days := int(d.Hours()) / 24; days > 0 {
		return fmt.Sprintf("%dd %s", days, d-time.Duration(days)*24*time.Hour)
	}
	return d.String()
}

func line(w io.Writer, ch string, n int) {
	fmt.Fprintln(w, strings.Repeat(ch, n))
}

func schemaLabel(schema string) string {
	if schema == "" {
		return "all user schemas"
	}
	return schema
}

// writeConsoleReport renders the full six-section analysis report.
func writeConsoleReport(w io.Writer, src StatsSource, snap *Snapshot, an *Analysis, opts Options) {
	decimals := opts.percentDecimals()
	safeUnused := an.SafeToDrop(snap.ForeignKeys)
	unusedFKCount := len(an.Unused) - len(safeUnused)

	fmt.Fprintln(w)
	line(w, "=", 100)
	fmt.Fprintln(w, "DETAILED INDEX ANALYSIS REPORT")
	line(w, "=", 100)

	fmt.Fprintf(w, "\nSource:   %s %s\n", snap.Source, snap.ServerVersion)
	fmt.Fprintf(w, "Schema:   %s\n", schemaLabel(snap.Schema))
	fmt.Fprintf(w, "Captured: %s", snap.CapturedAt.Format("2006-01-02 15:04:05 MST"))
	if snap.Uptime > 0 {
		fmt.Fprintf(w, " (server uptime %s)", formatUptime(snap.Uptime))
	}
	fmt.Fprintln(w)

	// Section 1: Summary Statistics
	fmt.Fprintln(w)
	line(w, "-", 100)
	fmt.Fprintln(w, "1. SUMMARY STATISTICS")
	line(w, "-", 100)

	stats := an.Stats
	fmt.Fprintf(w, "\nTotal indexes analyzed:          %d\n", stats.TotalIndexes)
	fmt.Fprintf(w, "Unused indexes found:            %d (%s%%)\n", stats.UnusedCount, formatPercent(stats.UnusedPercent, decimals))
	fmt.Fprintf(w, "Foreign key indexes:             %d\n", stats.ForeignKeyCount)
	fmt.Fprintf(w, "Potentially redundant indexes:   %d\n", stats.RedundantPairs)
	if len(snap.Sizes) > 0 {
		fmt.Fprintf(w, "\nTotal database size:             %.2f MB\n", stats.TotalSizeMB)
		fmt.Fprintf(w, "Total index size:                %.2f MB (%s%% of total)\n",
			stats.IndexSizeMB, formatPercent(stats.IndexSizePercent, decimals))
	}

	// Section 2: Unused Indexes
	fmt.Fprintln(w)
	line(w, "-", 100)
	fmt.Fprintln(w, "2. UNUSED INDEXES (NEVER ACCESSED)")
	line(w, "-", 100)

	if len(an.Unused) == 0 {
		fmt.Fprintln(w, "\nNo unused indexes found!")
	} else {
		fmt.Fprintf(w, "\n%-40s %-35s %-30s %-8s %-3s %-10s\n", "Table", "Index", "Columns", "Type", "FK", "Card")
		line(w, "-", 130)

		for _, r := range an.Unused {
			isFK := "NO"
			if snap.ForeignKeys.Backs(r.Key()) {
				isFK = "YES"
			}
			fmt.Fprintf(w, "%-40s %-35s %-30s %-8s %-3s %-10s\n",
				r.QualifiedTable(), r.Name, truncateColumns(r.Columns), orNA(r.Type), isFK, cardinalityString(r.Cardinality))

			if sz, ok := snap.Sizes[r.TableKey()]; ok {
				fmt.Fprintf(w, "  └─ Table size: %s MB (data: %s MB, indexes: %s MB)\n",
					mbString(sz.TotalMB), mbString(sz.DataMB), mbString(sz.IndexMB))
			}
		}

		fmt.Fprintf(w, "\nTotal unused indexes: %d\n", len(an.Unused))
		if unusedFKCount > 0 {
			fmt.Fprintf(w, "WARNING: %d unused index(es) are associated with foreign keys\n", unusedFKCount)
		}
	}

	// Section 3: Redundant Indexes
	if len(an.Redundant) > 0 {
		fmt.Fprintln(w)
		line(w, "-", 100)
		fmt.Fprintln(w, "3. POTENTIALLY REDUNDANT INDEXES")
		line(w, "-", 100)
		fmt.Fprintln(w, "\nThese indexes may be redundant because one is a prefix of another:")

		fmt.Fprintf(w, "\n%-40s %-35s %-35s\n", "Table", "Redundant Index", "Covered By")
		line(w, "-", 110)
		for _, p := range an.Redundant {
			fmt.Fprintf(w, "%-40s %-35s %-35s\n", p.Redundant.QualifiedTable(), p.Redundant.Name, p.CoveredBy.Name)
			fmt.Fprintf(w, "  ├─ Redundant: %s\n", joinColumns(p.Redundant.Columns))
			fmt.Fprintf(w, "  └─ Covers it: %s\n", joinColumns(p.CoveredBy.Columns))
		}

		fmt.Fprintf(w, "\nTotal redundant pairs: %d\n", len(an.Redundant))
		fmt.Fprintln(w, "Note: Review these carefully - the 'redundant' index may be kept for query performance reasons")
	}

	// Section 4: Most Frequently Accessed
	fmt.Fprintln(w)
	line(w, "-", 100)
	fmt.Fprintf(w, "4. MOST FREQUENTLY ACCESSED INDEXES (Top %d)\n", opts.topK())
	line(w, "-", 100)

	if len(an.Hot) > 0 {
		fmt.Fprintf(w, "\n%-40s %-35s %-12s %-12s %-12s\n", "Table", "Index", "Reads", "Writes", "Total")
		line(w, "-", 110)
		for _, r := range an.Hot {
			fmt.Fprintf(w, "%-40s %-35s %11s %11s %11s\n",
				r.QualifiedTable(), r.Name,
				formatCount(r.ReadAccesses), formatCount(r.WriteAccesses), formatCount(r.TotalAccesses))
		}
	}

	// Section 5: Recommendations
	fmt.Fprintln(w)
	line(w, "-", 100)
	fmt.Fprintln(w, "5. RECOMMENDATIONS")
	line(w, "-", 100)

	fmt.Fprintln(w, "\nSAFE TO CONSIDER DROPPING:")
	if len(safeUnused) > 0 {
		fmt.Fprintf(w, "  - %d unused non-FK indexes can likely be dropped\n", len(safeUnused))
		for i, r := range safeUnused {
			if i == 5 {
				fmt.Fprintf(w, "    ... and %d more\n", len(safeUnused)-5)
				break
			}
			fmt.Fprintf(w, "    * %s\n", r.Key())
		}
	} else {
		fmt.Fprintln(w, "  - No obvious candidates found")
	}

	fmt.Fprintln(w, "\nREVIEW CAREFULLY:")
	if unusedFKCount > 0 {
		fmt.Fprintf(w, "  - %d unused indexes are associated with foreign keys\n", unusedFKCount)
		fmt.Fprintln(w, "    These may be required for constraint enforcement")
	}
	if len(an.Redundant) > 0 {
		fmt.Fprintf(w, "  - %d potentially redundant indexes detected\n", len(an.Redundant))
		fmt.Fprintln(w, "    Verify query plans before dropping")
	}

	// Section 6: Example DROP Statements
	fmt.Fprintln(w)
	line(w, "-", 100)
	fmt.Fprintln(w, "6. EXAMPLE DROP STATEMENTS")
	line(w, "-", 100)

	if len(safeUnused) > 0 {
		fmt.Fprintln(w, "\n-- Unused, non-FK indexes (safer to drop):")
		for i, r := range safeUnused {
			if i == 5 {
				break
			}
			fmt.Fprintln(w, src.DropStatement(r))
		}
	}

	fmt.Fprintln(w)
	line(w, "=", 100)
	fmt.Fprintln(w, "END OF REPORT")
	line(w, "=", 100)
}

// writeSimpleReport renders the compact unused-index listing, optionally
// followed by the full per-index statistics table.
func writeSimpleReport(w io.Writer, src StatsSource, an *Analysis, showAllStats bool) {
	if len(an.Unused) == 0 {
		fmt.Fprintln(w, "\nNo unused indexes found!")
		fmt.Fprintln(w, "Note: usage statistics may need time to accumulate.")
		fmt.Fprintln(w, "Consider running this after the database has been under normal load.")
	} else {
		fmt.Fprintf(w, "\nFound %d unused index(es):\n\n", len(an.Unused))
		fmt.Fprintf(w, "%-20s %-30s %-30s %-40s %-10s\n", "Schema", "Table", "Index Name", "Columns", "Type")
		line(w, "-", 140)
		for _, r := range an.Unused {
			fmt.Fprintf(w, "%-20s %-30s %-30s %-40s %-10s\n",
				r.Schema, r.Table, r.Name, orNA(joinColumns(r.Columns)), orNA(r.Type))
		}

		fmt.Fprintln(w, "\nRecommendation:")
		fmt.Fprintln(w, "Review these indexes and consider dropping them if they are truly not needed.")
		fmt.Fprintln(w, "Before dropping, verify with application developers and review query patterns.")

		fmt.Fprintln(w, "\nExample DROP statement:")
		fmt.Fprintf(w, "  %s\n", src.DropStatement(an.Unused[0]))
	}

	if showAllStats {
		fmt.Fprintln(w, "\n\nAll Index Statistics (sorted by usage):")
		line(w, "=", 140)
		fmt.Fprintf(w, "%-20s %-30s %-30s %-12s %-12s %-12s\n", "Schema", "Table", "Index", "Total", "Reads", "Writes")
		line(w, "-", 140)

		byUsage := append([]IndexRecord(nil), an.Records...)
		sort.SliceStable(byUsage, func(i, j int) bool {
			if byUsage[i].TotalAccesses != byUsage[j].TotalAccesses {
				return byUsage[i].TotalAccesses < byUsage[j].TotalAccesses
			}
			return byUsage[i].Key().less(byUsage[j].Key())
		})
		for i, r := range byUsage {
			if i == 50 {
				fmt.Fprintf(w, "... and %d more\n", len(byUsage)-50)
				break
			}
			fmt.Fprintf(w, "%-20s %-30s %-30s %-12s %-12s %-12s\n",
				r.Schema, r.Table, r.Name,
				formatCount(r.TotalAccesses), formatCount(r.ReadAccesses), formatCount(r.WriteAccesses))
		}
	}
}
