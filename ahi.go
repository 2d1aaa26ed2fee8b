package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// InnoDB adaptive hash index monitor: `idxaudit ahi`. MySQL only; the
// counters live in INFORMATION_SCHEMA.INNODB_METRICS and most of them
// ship disabled.

var ahiCounterNames = []string{
	"adaptive_hash_searches",
	"adaptive_hash_searches_btree",
	"adaptive_hash_pages_added",
	"adaptive_hash_pages_removed",
	"adaptive_hash_rows_added",
	"adaptive_hash_rows_removed",
	"adaptive_hash_rows_deleted_no_hash_entry",
	"adaptive_hash_rows_updated",
}

var ahiOperationLabels = []struct {
	Label   string
	Counter string
}{
	{"Pages Added", "adaptive_hash_pages_added"},
	{"Pages Removed", "adaptive_hash_pages_removed"},
	{"Rows Added", "adaptive_hash_rows_added"},
	{"Rows Removed", "adaptive_hash_rows_removed"},
	{"Rows Updated", "adaptive_hash_rows_updated"},
	{"Rows Deleted (no hash entry)", "adaptive_hash_rows_deleted_no_hash_entry"},
}

// ahiSample is one reading of the adaptive hash subsystem. Counters only
// holds the INNODB_METRICS rows that were enabled at sampling time;
// zero-valued fields mean the server did not expose that datum.
type ahiSample struct {
	Enabled        bool
	Partitions     int64
	BufferPoolSize uint64
	Counters       map[string]int64
	HashTableSize  int64
	HashBuffers    int64
	TakenAt        time.Time
}

// hitRate is the share of adaptive hash searches answered from the hash
// itself rather than falling through to the B-tree. Zero searches means
// a zero rate, not a division error.
func (s ahiSample) hitRate() float64 {
	searches := s.Counters["adaptive_hash_searches"]
	if searches <= 0 {
		return 0
	}
	btree := s.Counters["adaptive_hash_searches_btree"]
	return float64(searches-btree) / float64(searches) * 100
}

func ahiStatus(rate float64) (label, advice string) {
	switch {
	case rate >= 80:
		return "Excellent", "AHI is highly effective"
	case rate >= 60:
		return "Good", "AHI is providing benefit"
	case rate >= 40:
		return "Moderate", "AHI may provide some benefit"
	default:
		return "Low", "consider disabling AHI"
	}
}

var (
	ahiIntervalFlag time.Duration
	ahiDurationFlag time.Duration
	ahiHTMLFlag     string
)

var ahiCmd = &cobra.Command{
	Use:   "ahi [config.toml]",
	Short: "Monitor InnoDB adaptive hash index effectiveness",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAHIMonitor,
}

func init() {
	ahiCmd.Flags().DurationVar(&ahiIntervalFlag, "interval", 0, "sampling interval (omit for a single snapshot)")
	ahiCmd.Flags().DurationVar(&ahiDurationFlag, "duration", 0, "total monitoring duration, requires --interval")
	ahiCmd.Flags().StringVar(&ahiHTMLFlag, "output-html", "", "write an AHI HTML report to this path")
	rootCmd.AddCommand(ahiCmd)
}

func runAHIMonitor(cmd *cobra.Command, args []string) error {
	cfgPath := configPath
	if len(args) > 0 {
		cfgPath = args[0]
	}
	if cfgPath == "" {
		return fmt.Errorf("config file required: idxaudit ahi <config.toml> or --config <config.toml>")
	}
	if err := validateIntervalFlags(ahiIntervalFlag, ahiDurationFlag); err != nil {
		return err
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	src, err := newStatsSource(cfg.Source.Type)
	if err != nil {
		return err
	}
	if !src.SupportsAdaptiveHash() {
		return fmt.Errorf("adaptive hash monitoring requires a mysql source, config uses %q", cfg.Source.Type)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("connecting to %s...", src.Name())
	db, err := src.OpenDB(cfg.Source.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", strings.ToLower(src.Name()), err)
	}
	version, err := src.ServerVersion(ctx, db)
	if err != nil {
		return err
	}
	log.Printf("connected to %s server version %s", src.Name(), version)

	enableAHICounters(ctx, db)

	sample, err := collectAHISample(ctx, db)
	if err != nil {
		return err
	}
	if !sample.Enabled {
		fmt.Println("\nWARNING: Adaptive Hash Index is currently DISABLED!")
		fmt.Println("To enable it, set: SET GLOBAL innodb_adaptive_hash_index = ON;")
		fmt.Println("\nShowing current status anyway...")
	}
	printAHISample(os.Stdout, sample, ahiIntervalFlag > 0)

	if ahiIntervalFlag > 0 {
		sample = monitorAHI(ctx, db, sample, ahiIntervalFlag, ahiDurationFlag)
	}

	if ahiHTMLFlag != "" {
		if err := writeAHIHTMLReport(ahiHTMLFlag, sample); err != nil {
			return err
		}
		log.Printf("AHI HTML report written to %s", ahiHTMLFlag)
	}
	return nil
}

// monitorAHI re-samples on a ticker until the duration elapses or the
// context is canceled, and returns the last sample taken.
func monitorAHI(ctx context.Context, db *sql.DB, last ahiSample, interval, duration time.Duration) ahiSample {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("monitoring stopped")
			return last
		case <-deadline:
			log.Printf("monitoring completed after %s", duration)
			return last
		case <-ticker.C:
			s, err := collectAHISample(ctx, db)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("sampling failed: %v", err)
				}
				return last
			}
			printAHISample(os.Stdout, s, true)
			last = s
		}
	}
}

// enableAHICounters turns on the adaptive_hash_* counters. Needs
// SYSTEM_VARIABLES_ADMIN; on failure the monitor proceeds with whatever
// counters are already enabled.
func enableAHICounters(ctx context.Context, db *sql.DB) {
	for _, name := range ahiCounterNames {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET GLOBAL innodb_monitor_enable = '%s'", name)); err != nil {
			log.Printf("could not enable innodb counter %s: %v", name, err)
			return
		}
	}
}

func collectAHISample(ctx context.Context, db *sql.DB) (ahiSample, error) {
	s := ahiSample{Counters: make(map[string]int64), TakenAt: time.Now()}

	value, ok, err := mysqlGlobalVariable(ctx, db, "innodb_adaptive_hash_index")
	if err != nil {
		return s, err
	}
	s.Enabled = ok && strings.EqualFold(value, "ON")

	if value, ok, err = mysqlGlobalVariable(ctx, db, "innodb_adaptive_hash_index_parts"); err != nil {
		return s, err
	} else if ok {
		if n, perr := strconv.ParseInt(value, 10, 64); perr == nil {
			s.Partitions = n
		}
	}

	if value, ok, err = mysqlGlobalVariable(ctx, db, "innodb_buffer_pool_size"); err != nil {
		return s, err
	} else if ok {
		if n, perr := strconv.ParseUint(value, 10, 64); perr == nil {
			s.BufferPoolSize = n
		}
	}

	query := `
		SELECT NAME, COUNT
		FROM INFORMATION_SCHEMA.INNODB_METRICS
		WHERE STATUS = 'enabled'
		    AND NAME IN ('` + strings.Join(ahiCounterNames, `', '`) + `')`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return s, fmt.Errorf("query innodb metrics: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var count int64
		if err := rows.Scan(&name, &count); err != nil {
			return s, fmt.Errorf("scan innodb metric: %w", err)
		}
		s.Counters[name] = count
	}
	if err := rows.Err(); err != nil {
		return s, fmt.Errorf("iterate innodb metrics: %w", err)
	}

	// Hash table size and buffer count only surface in the engine status
	// text. Reading it needs PROCESS; treat failure as unknown.
	var engine, name, status string
	if err := db.QueryRowContext(ctx, `SHOW ENGINE INNODB STATUS`).Scan(&engine, &name, &status); err != nil {
		log.Printf("could not read InnoDB status: %v", err)
	} else {
		s.HashTableSize, s.HashBuffers = parseInnodbStatusAHI(status)
	}

	return s, nil
}

func mysqlGlobalVariable(ctx context.Context, db *sql.DB, name string) (string, bool, error) {
	var varName, value string
	err := db.QueryRowContext(ctx, "SHOW GLOBAL VARIABLES LIKE '"+name+"'").Scan(&varName, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read variable %s: %w", name, err)
	}
	return value, true, nil
}

// parseInnodbStatusAHI pulls the adaptive hash table size and node heap
// buffer count out of SHOW ENGINE INNODB STATUS text. Servers with
// multiple AHI partitions print one line per partition; the last wins.
//
//	Hash table size 34679, node heap has 2 buffer(s)
func parseInnodbStatusAHI(status string) (tableSize, buffers int64) {
	for _, l := range strings.Split(status, "\n") {
		if !strings.Contains(l, "Hash table size") {
			continue
		}
		for _, part := range strings.Split(l, ",") {
			words := strings.Fields(part)
			if len(words) == 0 {
				continue
			}
			switch {
			case strings.Contains(part, "Hash table size"):
				if n, err := strconv.ParseInt(words[len(words)-1], 10, 64); err == nil {
					tableSize = n
				}
			case strings.Contains(part, "node heap has"):
				for i, w := range words {
					if w == "buffer(s)" && i > 0 {
						if n, err := strconv.ParseInt(words[i-1], 10, 64); err == nil {
							buffers = n
						}
					}
				}
			}
		}
	}
	return tableSize, buffers
}

func printAHISample(w io.Writer, s ahiSample, stamped bool) {
	fmt.Fprintln(w)
	line(w, "=", 80)
	if stamped {
		fmt.Fprintf(w, "Adaptive Hash Index Status - %s\n", s.TakenAt.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Fprintln(w, "Adaptive Hash Index Status")
	}
	line(w, "=", 80)

	fmt.Fprintln(w, "\nConfiguration:")
	fmt.Fprintf(w, "  AHI Enabled: %t\n", s.Enabled)
	if s.Partitions > 0 {
		fmt.Fprintf(w, "  AHI Partitions: %d\n", s.Partitions)
	}
	if s.BufferPoolSize > 0 {
		fmt.Fprintf(w, "  Buffer Pool Size: %s\n", humanize.IBytes(s.BufferPoolSize))
	}

	fmt.Fprintln(w, "\nMemory Usage:")
	if s.HashTableSize > 0 || s.HashBuffers > 0 {
		fmt.Fprintf(w, "  Hash Table Size: %s\n", formatCount(s.HashTableSize))
		fmt.Fprintf(w, "  Hash Buffers: %s\n", formatCount(s.HashBuffers))
	} else {
		fmt.Fprintln(w, "  Unable to retrieve memory information")
	}

	fmt.Fprintln(w, "\nSearch Statistics:")
	if v, ok := s.Counters["adaptive_hash_searches"]; ok {
		fmt.Fprintf(w, "  Total AHI Searches: %s\n", formatCount(v))
	}
	if v, ok := s.Counters["adaptive_hash_searches_btree"]; ok {
		fmt.Fprintf(w, "  B-tree Searches: %s\n", formatCount(v))
	}
	rate := s.hitRate()
	label, advice := ahiStatus(rate)
	fmt.Fprintf(w, "  AHI Hit Rate: %.2f%%\n", rate)
	fmt.Fprintf(w, "    Status: %s - %s\n", label, advice)

	fmt.Fprintln(w, "\nPage Operations:")
	for _, op := range ahiOperationLabels[:2] {
		if v, ok := s.Counters[op.Counter]; ok {
			fmt.Fprintf(w, "  %s: %s\n", op.Label, formatCount(v))
		}
	}

	fmt.Fprintln(w, "\nRow Operations:")
	for _, op := range ahiOperationLabels[2:] {
		if v, ok := s.Counters[op.Counter]; ok {
			fmt.Fprintf(w, "  %s: %s\n", op.Label, formatCount(v))
		}
	}
}

type ahiMetricRow struct {
	Label string
	Value string
}

type ahiHTMLData struct {
	GeneratedAt   string
	HitRate       string
	StatusLabel   string
	StatusClass   string
	Enabled       bool
	Partitions    string
	BufferPool    string
	SearchRows    []ahiMetricRow
	OperationRows []ahiMetricRow
}

var ahiHTMLTmpl = template.Must(template.New("ahi").Parse(ahiHTMLTemplate))

func buildAHIHTMLData(s ahiSample) ahiHTMLData {
	rate := s.hitRate()
	label, _ := ahiStatus(rate)

	d := ahiHTMLData{
		GeneratedAt: s.TakenAt.Format("2006-01-02 15:04:05"),
		HitRate:     fmt.Sprintf("%.2f", rate),
		StatusLabel: label,
		StatusClass: strings.ToLower(label),
		Enabled:     s.Enabled,
		Partitions:  "N/A",
	}
	if s.Partitions > 0 {
		d.Partitions = strconv.FormatInt(s.Partitions, 10)
	}
	if s.BufferPoolSize > 0 {
		d.BufferPool = humanize.IBytes(s.BufferPoolSize)
	}

	if v, ok := s.Counters["adaptive_hash_searches"]; ok {
		d.SearchRows = append(d.SearchRows, ahiMetricRow{"Total AHI Searches", formatCount(v)})
	}
	if v, ok := s.Counters["adaptive_hash_searches_btree"]; ok {
		d.SearchRows = append(d.SearchRows, ahiMetricRow{"B-tree Searches", formatCount(v)})
	}
	d.SearchRows = append(d.SearchRows, ahiMetricRow{"Hit Rate", d.HitRate + "%"})

	for _, op := range ahiOperationLabels {
		if v, ok := s.Counters[op.Counter]; ok {
			d.OperationRows = append(d.OperationRows, ahiMetricRow{op.Label, formatCount(v)})
		}
	}
	return d
}

func renderAHIHTMLReport(w io.Writer, s ahiSample) error {
	if err := ahiHTMLTmpl.Execute(w, buildAHIHTMLData(s)); err != nil {
		return fmt.Errorf("rendering AHI report: %w", err)
	}
	return nil
}

func writeAHIHTMLReport(path string, s ahiSample) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating AHI report: %w", err)
	}
	if err := renderAHIHTMLReport(f, s); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing AHI report: %w", err)
	}
	return nil
}

const ahiHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
    <title>Adaptive Hash Index Report</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; background-color: #f5f5f5; }
        .container {
            max-width: 1000px;
            margin: 0 auto;
            background-color: white;
            padding: 30px;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
        }
        h1 { color: #333; border-bottom: 3px solid #4CAF50; padding-bottom: 10px; }
        h2 { color: #555; margin-top: 30px; border-bottom: 1px solid #ddd; padding-bottom: 5px; }
        .metric-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(250px, 1fr));
            gap: 15px;
            margin: 20px 0;
        }
        .metric-box {
            background-color: #f9f9f9;
            padding: 15px;
            border-radius: 5px;
            border-left: 4px solid #4CAF50;
        }
        .metric-label { color: #666; font-size: 14px; margin-bottom: 5px; }
        .metric-value { color: #333; font-size: 24px; font-weight: bold; }
        .hit-rate { text-align: center; padding: 30px; margin: 20px 0; border-radius: 8px; }
        .hit-rate.excellent { background-color: #d4edda; border: 2px solid #28a745; }
        .hit-rate.good { background-color: #d1ecf1; border: 2px solid #17a2b8; }
        .hit-rate.moderate { background-color: #fff3cd; border: 2px solid #ffc107; }
        .hit-rate.low { background-color: #f8d7da; border: 2px solid #dc3545; }
        .hit-rate-value { font-size: 48px; font-weight: bold; margin: 10px 0; }
        .hit-rate-label { font-size: 18px; color: #666; }
        .status { font-size: 24px; font-weight: bold; margin-top: 10px; }
        .timestamp { color: #999; text-align: right; font-size: 14px; margin-top: 30px; }
        .recommendation {
            background-color: #e7f3ff;
            border-left: 4px solid #2196F3;
            padding: 15px;
            margin: 20px 0;
            border-radius: 4px;
        }
        .recommendation h3 { margin-top: 0; color: #1976D2; }
        table { width: 100%; border-collapse: collapse; margin: 20px 0; }
        th, td { padding: 12px; text-align: left; border-bottom: 1px solid #ddd; }
        th { background-color: #4CAF50; color: white; }
        tr:hover { background-color: #f5f5f5; }
        code { background-color: #f1f1f1; padding: 2px 5px; border-radius: 3px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Adaptive Hash Index Monitoring Report</h1>

        <div class="hit-rate {{.StatusClass}}">
            <div class="hit-rate-label">AHI Hit Rate</div>
            <div class="hit-rate-value">{{.HitRate}}%</div>
            <div class="status">Status: {{.StatusLabel}}</div>
        </div>

        <h2>Configuration</h2>
        <div class="metric-grid">
            <div class="metric-box">
                <div class="metric-label">AHI Enabled</div>
                <div class="metric-value">{{if .Enabled}}Yes{{else}}No{{end}}</div>
            </div>
            <div class="metric-box">
                <div class="metric-label">AHI Partitions</div>
                <div class="metric-value">{{.Partitions}}</div>
            </div>
{{- if .BufferPool}}
            <div class="metric-box">
                <div class="metric-label">Buffer Pool Size</div>
                <div class="metric-value">{{.BufferPool}}</div>
            </div>
{{- end}}
        </div>

        <h2>Search Statistics</h2>
        <table>
            <thead>
                <tr>
                    <th>Metric</th>
                    <th>Value</th>
                </tr>
            </thead>
            <tbody>
{{- range .SearchRows}}
                <tr>
                    <td>{{.Label}}</td>
                    <td>{{.Value}}</td>
                </tr>
{{- end}}
            </tbody>
        </table>

        <h2>Operations</h2>
        <table>
            <thead>
                <tr>
                    <th>Operation</th>
                    <th>Count</th>
                </tr>
            </thead>
            <tbody>
{{- range .OperationRows}}
                <tr>
                    <td>{{.Label}}</td>
                    <td>{{.Value}}</td>
                </tr>
{{- end}}
            </tbody>
        </table>

        <div class="recommendation">
            <h3>Recommendations</h3>
{{- if eq .StatusLabel "Excellent"}}
            <p><strong>Excellent performance!</strong> The adaptive hash index is working very well for this workload. Keep it enabled.</p>
{{- end}}
{{- if eq .StatusLabel "Good"}}
            <p><strong>Good performance.</strong> The adaptive hash index is providing benefit. Monitor over time to ensure continued effectiveness.</p>
{{- end}}
{{- if eq .StatusLabel "Moderate"}}
            <p><strong>Moderate performance.</strong> The adaptive hash index is providing some benefit but may not be optimal. Consider testing with it disabled.</p>
{{- end}}
{{- if eq .StatusLabel "Low"}}
            <p><strong>Low effectiveness.</strong> The adaptive hash index is not providing significant benefit for this workload. Consider disabling it with: <code>SET GLOBAL innodb_adaptive_hash_index = OFF;</code></p>
{{- end}}
            <p>Note: AHI is most beneficial for read-heavy workloads with repeated access to the same index pages. Write-heavy workloads may see less benefit.</p>
        </div>

        <div class="timestamp">Report generated: {{.GeneratedAt}}</div>
    </div>
</body>
</html>
`
