package main

import (
	"fmt"
	"html/template"
	"io"
	"os"
)

// The HTML report mirrors the console report's six sections as a
// standalone styled page. All values arrive preformatted; the template
// itself only arranges them, and html/template escapes identifiers
// that came out of the catalog.

type htmlStatCard struct {
	Label string
	Value string
	Sub   string
	Class string
}

type htmlUnusedRow struct {
	Table       string
	Index       string
	Columns     string
	FK          bool
	Cardinality string
	SizeNote    string
}

type htmlRedundantRow struct {
	Table            string
	Redundant        string
	RedundantColumns string
	CoveredBy        string
	CoveredByColumns string
}

type htmlHotRow struct {
	Table  string
	Index  string
	Reads  string
	Writes string
	Total  string
}

type htmlReportData struct {
	Title       string
	GeneratedAt string
	Source      string
	Schema      string
	Cards       []htmlStatCard
	SizeCards   []htmlStatCard
	Unused      []htmlUnusedRow
	UnusedFK    int
	Redundant   []htmlRedundantRow
	TopK        int
	Hot         []htmlHotRow
	SafeCount   int
	DropStmts   []string
}

const htmlDropStatementCap = 10

var htmlReportTmpl = template.Must(template.New("report").Parse(htmlReportTemplate))

// buildHTMLReportData flattens a snapshot and its analysis into the
// template's view of the world.
func buildHTMLReportData(src StatsSource, snap *Snapshot, an *Analysis, opts Options) htmlReportData {
	decimals := opts.percentDecimals()
	stats := an.Stats
	safeUnused := an.SafeToDrop(snap.ForeignKeys)

	data := htmlReportData{
		Title:       fmt.Sprintf("Index Analysis Report - %s", schemaLabel(snap.Schema)),
		GeneratedAt: opts.now().Format("2006-01-02 15:04:05"),
		Source:      fmt.Sprintf("%s %s", snap.Source, snap.ServerVersion),
		Schema:      schemaLabel(snap.Schema),
		UnusedFK:    len(an.Unused) - len(safeUnused),
		TopK:        opts.topK(),
		SafeCount:   len(safeUnused),
	}

	data.Cards = []htmlStatCard{
		{Label: "Total Indexes", Value: formatCount(int64(stats.TotalIndexes))},
		{
			Label: "Unused Indexes",
			Value: formatCount(int64(stats.UnusedCount)),
			Sub:   fmt.Sprintf("%s%% of total", formatPercent(stats.UnusedPercent, decimals)),
			Class: "warning",
		},
		{Label: "Foreign Key Indexes", Value: formatCount(int64(stats.ForeignKeyCount))},
		{Label: "Redundant Index Pairs", Value: formatCount(int64(stats.RedundantPairs)), Class: "warning"},
	}
	if len(snap.Sizes) > 0 {
		data.SizeCards = []htmlStatCard{
			{Label: "Total Database Size", Value: fmt.Sprintf("%.2f MB", stats.TotalSizeMB), Class: "success"},
			{
				Label: "Total Index Size",
				Value: fmt.Sprintf("%.2f MB", stats.IndexSizeMB),
				Sub:   fmt.Sprintf("%s%% of database", formatPercent(stats.IndexSizePercent, decimals)),
			},
		}
	}

	for _, r := range an.Unused {
		row := htmlUnusedRow{
			Table:       r.QualifiedTable(),
			Index:       r.Name,
			Columns:     orNA(joinColumns(r.Columns)),
			FK:          snap.ForeignKeys.Backs(r.Key()),
			Cardinality: cardinalityString(r.Cardinality),
		}
		if sz, ok := snap.Sizes[r.TableKey()]; ok {
			row.SizeNote = fmt.Sprintf("Table size: %s MB (data: %s MB, indexes: %s MB)",
				mbString(sz.TotalMB), mbString(sz.DataMB), mbString(sz.IndexMB))
		}
		data.Unused = append(data.Unused, row)
	}

	for _, p := range an.Redundant {
		data.Redundant = append(data.Redundant, htmlRedundantRow{
			Table:            p.Redundant.QualifiedTable(),
			Redundant:        p.Redundant.Name,
			RedundantColumns: orNA(joinColumns(p.Redundant.Columns)),
			CoveredBy:        p.CoveredBy.Name,
			CoveredByColumns: orNA(joinColumns(p.CoveredBy.Columns)),
		})
	}

	for _, r := range an.Hot {
		data.Hot = append(data.Hot, htmlHotRow{
			Table:  r.QualifiedTable(),
			Index:  r.Name,
			Reads:  formatCount(r.ReadAccesses),
			Writes: formatCount(r.WriteAccesses),
			Total:  formatCount(r.TotalAccesses),
		})
	}

	for i, r := range safeUnused {
		if i == htmlDropStatementCap {
			break
		}
		data.DropStmts = append(data.DropStmts, src.DropStatement(r))
	}

	return data
}

func renderHTMLReport(w io.Writer, src StatsSource, snap *Snapshot, an *Analysis, opts Options) error {
	if err := htmlReportTmpl.Execute(w, buildHTMLReportData(src, snap, an, opts)); err != nil {
		return fmt.Errorf("rendering HTML report: %w", err)
	}
	return nil
}

// writeHTMLReport renders the report to path, creating or truncating it.
func writeHTMLReport(path string, src StatsSource, snap *Snapshot, an *Analysis, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating HTML report: %w", err)
	}
	if err := renderHTMLReport(f, src, snap, an, opts); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing HTML report: %w", err)
	}
	return nil
}

const htmlReportTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, Cantarell, sans-serif;
            line-height: 1.6;
            color: #333;
            background: #f5f5f5;
            padding: 20px;
        }
        .container {
            max-width: 1000px;
            margin: 0 auto;
            background: white;
            padding: 40px;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,0.1);
        }
        header { border-bottom: 4px solid #2563eb; padding-bottom: 20px; margin-bottom: 30px; }
        h1 { color: #1e40af; font-size: 32px; margin-bottom: 10px; }
        .meta { color: #64748b; font-size: 14px; }
        h2 {
            color: #1e40af;
            font-size: 24px;
            margin-top: 40px;
            margin-bottom: 20px;
            padding-bottom: 10px;
            border-bottom: 2px solid #e2e8f0;
        }
        .stats-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(250px, 1fr));
            gap: 20px;
            margin: 20px 0;
        }
        .stat-card {
            background: #f8fafc;
            padding: 20px;
            border-radius: 6px;
            border-left: 4px solid #2563eb;
        }
        .stat-card.warning { border-left-color: #f59e0b; }
        .stat-card.success { border-left-color: #10b981; }
        .stat-label { font-size: 14px; color: #64748b; margin-bottom: 5px; }
        .stat-value { font-size: 28px; font-weight: bold; color: #1e293b; }
        .stat-sub { font-size: 14px; color: #64748b; margin-top: 5px; }
        table { width: 100%; border-collapse: collapse; margin: 20px 0; font-size: 14px; }
        th { background: #1e40af; color: white; padding: 12px; text-align: left; font-weight: 600; }
        td { padding: 10px 12px; border-bottom: 1px solid #e2e8f0; }
        tr:hover { background: #f8fafc; }
        .table-sub { font-size: 12px; color: #64748b; padding-left: 30px; }
        .badge {
            display: inline-block;
            padding: 2px 8px;
            border-radius: 12px;
            font-size: 11px;
            font-weight: 600;
        }
        .badge-yes { background: #fee2e2; color: #991b1b; }
        .badge-no { background: #dcfce7; color: #166534; }
        .alert { padding: 15px; border-radius: 6px; margin: 15px 0; }
        .alert-warning { background: #fef3c7; border-left: 4px solid #f59e0b; color: #92400e; }
        .alert-info { background: #dbeafe; border-left: 4px solid #2563eb; color: #1e40af; }
        .alert-success { background: #d1fae5; border-left: 4px solid #10b981; color: #065f46; }
        code {
            background: #f1f5f9;
            padding: 2px 6px;
            border-radius: 3px;
            font-family: 'Courier New', monospace;
            font-size: 13px;
        }
        pre {
            background: #1e293b;
            color: #e2e8f0;
            padding: 20px;
            border-radius: 6px;
            overflow-x: auto;
            margin: 15px 0;
        }
        pre code { background: transparent; color: #e2e8f0; }
        .number { font-family: 'Courier New', monospace; text-align: right; }
        footer {
            margin-top: 40px;
            padding-top: 20px;
            border-top: 1px solid #e2e8f0;
            text-align: center;
            color: #64748b;
            font-size: 14px;
        }
    </style>
</head>
<body>
    <div class="container">
        <header>
            <h1>Index Analysis Report</h1>
            <div class="meta">
                Generated: {{.GeneratedAt}} |
                Source: {{.Source}} |
                Schema: {{.Schema}}
            </div>
        </header>

        <h2>1. Summary Statistics</h2>
        <div class="stats-grid">
{{- range .Cards}}
            <div class="stat-card{{if .Class}} {{.Class}}{{end}}">
                <div class="stat-label">{{.Label}}</div>
                <div class="stat-value">{{.Value}}</div>
{{- if .Sub}}
                <div class="stat-sub">{{.Sub}}</div>
{{- end}}
            </div>
{{- end}}
        </div>
{{- if .SizeCards}}
        <div class="stats-grid">
{{- range .SizeCards}}
            <div class="stat-card{{if .Class}} {{.Class}}{{end}}">
                <div class="stat-label">{{.Label}}</div>
                <div class="stat-value">{{.Value}}</div>
{{- if .Sub}}
                <div class="stat-sub">{{.Sub}}</div>
{{- end}}
            </div>
{{- end}}
        </div>
{{- end}}

        <h2>2. Unused Indexes (Never Accessed)</h2>
{{- if not .Unused}}
        <div class="alert alert-success">No unused indexes found!</div>
{{- else}}
        <table>
            <thead>
                <tr>
                    <th>Table</th>
                    <th>Index Name</th>
                    <th>Columns</th>
                    <th>FK</th>
                    <th class="number">Cardinality</th>
                </tr>
            </thead>
            <tbody>
{{- range .Unused}}
                <tr>
                    <td>{{.Table}}</td>
                    <td><code>{{.Index}}</code></td>
                    <td>{{.Columns}}</td>
                    <td><span class="badge {{if .FK}}badge-yes{{else}}badge-no{{end}}">{{if .FK}}YES{{else}}NO{{end}}</span></td>
                    <td class="number">{{.Cardinality}}</td>
                </tr>
{{- if .SizeNote}}
                <tr>
                    <td colspan="5" class="table-sub">{{.SizeNote}}</td>
                </tr>
{{- end}}
{{- end}}
            </tbody>
        </table>
{{- if .UnusedFK}}
        <div class="alert alert-warning">Warning: {{.UnusedFK}} unused index(es) are associated with foreign keys</div>
{{- end}}
{{- end}}

{{- if .Redundant}}

        <h2>3. Potentially Redundant Indexes</h2>
        <div class="alert alert-info">These indexes may be redundant because one is a prefix of another.</div>
        <table>
            <thead>
                <tr>
                    <th>Table</th>
                    <th>Redundant Index</th>
                    <th>Columns</th>
                    <th>Covered By</th>
                    <th>Columns</th>
                </tr>
            </thead>
            <tbody>
{{- range .Redundant}}
                <tr>
                    <td>{{.Table}}</td>
                    <td><code>{{.Redundant}}</code></td>
                    <td>{{.RedundantColumns}}</td>
                    <td><code>{{.CoveredBy}}</code></td>
                    <td>{{.CoveredByColumns}}</td>
                </tr>
{{- end}}
            </tbody>
        </table>
{{- end}}

        <h2>4. Most Frequently Accessed Indexes (Top {{.TopK}})</h2>
        <table>
            <thead>
                <tr>
                    <th>Table</th>
                    <th>Index Name</th>
                    <th class="number">Reads</th>
                    <th class="number">Writes</th>
                    <th class="number">Total Accesses</th>
                </tr>
            </thead>
            <tbody>
{{- range .Hot}}
                <tr>
                    <td>{{.Table}}</td>
                    <td><code>{{.Index}}</code></td>
                    <td class="number">{{.Reads}}</td>
                    <td class="number">{{.Writes}}</td>
                    <td class="number">{{.Total}}</td>
                </tr>
{{- end}}
            </tbody>
        </table>

        <h2>5. Recommendations</h2>
{{- if .SafeCount}}
        <div class="alert alert-success">
            <strong>SAFE TO CONSIDER DROPPING:</strong><br>
            {{.SafeCount}} unused non-FK index(es) can likely be dropped
        </div>
{{- end}}
{{- if or .UnusedFK .Redundant}}
        <div class="alert alert-warning">
            <strong>REVIEW CAREFULLY:</strong><br>
{{- if .UnusedFK}}
            {{.UnusedFK}} unused index(es) are associated with foreign keys<br>
{{- end}}
{{- if .Redundant}}
            {{len .Redundant}} potentially redundant index pair(s) detected<br>
{{- end}}
        </div>
{{- end}}

{{- if .DropStmts}}

        <h2>6. Example DROP Statements</h2>
        <pre><code>-- Unused, non-FK indexes (safer to drop):
{{range .DropStmts}}{{.}}
{{end}}</code></pre>
{{- end}}

        <footer>
            Generated by idxaudit
        </footer>
    </div>
</body>
</html>
`
