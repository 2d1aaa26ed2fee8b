package main

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Options tune a single classification run. The zero value is usable:
// top-10 hot list, no age filter, percentages rounded to one decimal.
type Options struct {
	// TopK caps the hot list. Values <= 0 fall back to defaultTopK.
	TopK int

	// MinIndexAge suppresses unused findings for indexes whose table was
	// created less than this long ago. It only applies when the record
	// carries a known creation time; 0 disables the filter.
	MinIndexAge time.Duration

	// Now anchors the MinIndexAge comparison. Zero means time.Now().
	Now time.Time

	// PercentDecimals is the rounding precision for derived percentages.
	// Values <= 0 fall back to defaultPercentDecimals.
	PercentDecimals int
}

const (
	defaultTopK            = 10
	defaultPercentDecimals = 1
)

func (o Options) topK() int {
	if o.TopK <= 0 {
		return defaultTopK
	}
	return o.TopK
}

func (o Options) now() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

func (o Options) percentDecimals() int {
	if o.PercentDecimals <= 0 {
		return defaultPercentDecimals
	}
	return o.PercentDecimals
}

// SummaryStats aggregates one classification run. Percentages are 0 when
// their denominator is 0.
type SummaryStats struct {
	TotalIndexes     int
	UnusedCount      int
	UnusedPercent    float64
	ForeignKeyCount  int
	RedundantPairs   int
	TotalSizeMB      float64
	IndexSizeMB      float64
	IndexSizePercent float64
}

// Analysis is the outcome of classifying one snapshot: the normalized
// records plus every derived set. All slices are freshly allocated per
// run; callers may retain or mutate them freely.
type Analysis struct {
	Records   []IndexRecord
	Unused    []IndexRecord
	Redundant []RedundantPair
	Hot       []IndexRecord
	Stats     SummaryStats
}

// SafeToDrop returns the unused indexes that do not back a foreign-key
// constraint, preserving the unused set's order.
func (a *Analysis) SafeToDrop(fks ForeignKeyMap) []IndexRecord {
	safe := make([]IndexRecord, 0, len(a.Unused))
	for _, r := range a.Unused {
		if !fks.Backs(r.Key()) {
			safe = append(safe, r)
		}
	}
	return safe
}

// Classify derives the unused, redundant, and hot index sets plus summary
// statistics from one snapshot. The snapshot is not mutated, and repeated
// calls with the same snapshot and options yield identical results.
func Classify(snap *Snapshot, opts Options) (*Analysis, error) {
	records, err := normalizeRecords(snap.Records)
	if err != nil {
		return nil, err
	}

	unused := unusedIndexes(records, opts)
	redundant := redundantIndexes(records)
	hot := hotIndexes(records, opts.topK())

	return &Analysis{
		Records:   records,
		Unused:    unused,
		Redundant: redundant,
		Hot:       hot,
		Stats:     summarize(records, unused, redundant, snap, opts.percentDecimals()),
	}, nil
}

// normalizeRecords copies the input and tags primary keys by reserved
// name. Records missing any part of the identity triple, or duplicating
// another record's triple, reject the whole run.
func normalizeRecords(in []IndexRecord) ([]IndexRecord, error) {
	records := make([]IndexRecord, len(in))
	seen := make(map[IndexKey]struct{}, len(in))
	for i, r := range in {
		if r.Schema == "" || r.Table == "" || r.Name == "" {
			return nil, fmt.Errorf("index record %d is missing its identity (schema=%q table=%q index=%q)",
				i, r.Schema, r.Table, r.Name)
		}
		key := r.Key()
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate index record %s", key)
		}
		seen[key] = struct{}{}
		if r.Name == primaryIndexName {
			r.IsPrimary = true
		}
		records[i] = r
	}
	return records, nil
}

// unusedIndexes selects records with zero total accesses, excluding
// primary keys and, when configured, indexes on tables younger than
// MinIndexAge. Ordered by identity.
func unusedIndexes(records []IndexRecord, opts Options) []IndexRecord {
	now := opts.now()
	var unused []IndexRecord
	for _, r := range records {
		if r.IsPrimary || r.TotalAccesses != 0 {
			continue
		}
		if opts.MinIndexAge > 0 && !r.TableCreated.IsZero() && now.Sub(r.TableCreated) < opts.MinIndexAge {
			continue
		}
		unused = append(unused, r)
	}
	sort.Slice(unused, func(i, j int) bool {
		return unused[i].Key().less(unused[j].Key())
	})
	return unused
}

// redundantIndexes finds, per table, every ordered pair where one
// secondary index's column list is a strict prefix of another's. Each
// qualifying pair is emitted exactly once, shorter index first. Indexes
// with identical column lists are not flagged; primary keys and records
// without column metadata never participate.
func redundantIndexes(records []IndexRecord) []RedundantPair {
	byTable := make(map[TableKey][]IndexRecord)
	for _, r := range records {
		if r.IsPrimary || len(r.Columns) == 0 {
			continue
		}
		key := r.TableKey()
		byTable[key] = append(byTable[key], r)
	}

	var pairs []RedundantPair
	for _, group := range byTable {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				switch {
				case isStrictPrefix(group[i].Columns, group[j].Columns):
					pairs = append(pairs, RedundantPair{Redundant: group[i], CoveredBy: group[j]})
				case isStrictPrefix(group[j].Columns, group[i].Columns):
					pairs = append(pairs, RedundantPair{Redundant: group[j], CoveredBy: group[i]})
				}
			}
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		a, b := pairs[i].Redundant.Key(), pairs[j].Redundant.Key()
		if a != b {
			return a.less(b)
		}
		return pairs[i].CoveredBy.Key().less(pairs[j].CoveredBy.Key())
	})
	return pairs
}

// isStrictPrefix reports whether a is a strict prefix of b: strictly
// shorter and matching b position by position. Comparison is exact; no
// case folding or reordering.
func isStrictPrefix(a, b []string) bool {
	if len(a) == 0 || len(a) >= len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// hotIndexes ranks records with at least one access by total accesses
// descending and returns the top k. Ties break by identity so equal
// counters always rank in the same order.
func hotIndexes(records []IndexRecord, k int) []IndexRecord {
	var active []IndexRecord
	for _, r := range records {
		if r.TotalAccesses > 0 {
			active = append(active, r)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].TotalAccesses != active[j].TotalAccesses {
			return active[i].TotalAccesses > active[j].TotalAccesses
		}
		return active[i].Key().less(active[j].Key())
	})
	if len(active) > k {
		active = active[:k]
	}
	return active
}

func summarize(records, unused []IndexRecord, pairs []RedundantPair, snap *Snapshot, decimals int) SummaryStats {
	stats := SummaryStats{
		TotalIndexes:    len(records),
		UnusedCount:     len(unused),
		ForeignKeyCount: len(snap.ForeignKeys),
		RedundantPairs:  len(pairs),
	}
	for _, sz := range snap.Sizes {
		if sz.TotalMB != nil {
			stats.TotalSizeMB += *sz.TotalMB
		}
		if sz.IndexMB != nil {
			stats.IndexSizeMB += *sz.IndexMB
		}
	}
	stats.UnusedPercent = percentage(float64(stats.UnusedCount), float64(stats.TotalIndexes), decimals)
	stats.IndexSizePercent = percentage(stats.IndexSizeMB, stats.TotalSizeMB, decimals)
	return stats
}

// percentage returns 100*part/whole rounded to the given decimals, or 0
// when the denominator is 0. Negative decimals round to whole percents.
func percentage(part, whole float64, decimals int) float64 {
	if whole == 0 {
		return 0
	}
	return roundTo(100*part/whole, decimals)
}

func roundTo(v float64, decimals int) float64 {
	if decimals < 0 {
		decimals = 0
	}
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
