package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	configPath       string
	htmlPathFlag     string
	csvPathFlag      string
	simpleFlag       bool
	showAllStatsFlag bool
	topFlag          int
	intervalFlag     time.Duration
	durationFlag     time.Duration
)

var rootCmd = &cobra.Command{
	Use:     "idxaudit [config.toml]",
	Short:   "Database index usage auditor",
	Args:    cobra.MaximumNArgs(1),
	Version: versionString(),
	RunE:    runAudit,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to audit TOML config file")
	rootCmd.Flags().StringVar(&htmlPathFlag, "output-html", "", "write an HTML report to this path")
	rootCmd.Flags().StringVar(&csvPathFlag, "output-csv", "", "write a CSV report to this path")
	rootCmd.Flags().BoolVar(&simpleFlag, "simple", false, "print the compact unused-index report")
	rootCmd.Flags().BoolVar(&showAllStatsFlag, "show-all-stats", false, "append the full per-index table to the simple report")
	rootCmd.Flags().IntVar(&topFlag, "top", 0, "override the hot index list size")
	rootCmd.Flags().DurationVar(&intervalFlag, "interval", 0, "re-run the audit on this interval (omit for a single run)")
	rootCmd.Flags().DurationVar(&durationFlag, "duration", 0, "total watch duration, requires --interval")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func validateIntervalFlags(interval, duration time.Duration) error {
	if duration > 0 && interval <= 0 {
		return fmt.Errorf("--duration requires --interval")
	}
	return nil
}

func runAudit(cmd *cobra.Command, args []string) error {
	// Resolve config path: positional arg takes precedence over --config flag
	cfgPath := configPath
	if len(args) > 0 {
		cfgPath = args[0]
	}
	if cfgPath == "" {
		return fmt.Errorf("config file required: idxaudit <config.toml> or idxaudit --config <config.toml>")
	}
	if err := validateIntervalFlags(intervalFlag, durationFlag); err != nil {
		return err
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd, cfg)

	src, err := newStatsSource(cfg.Source.Type)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("idxaudit — %s index usage audit", src.Name())

	dbName, err := src.ExtractDBName(cfg.Source.DSN)
	if err != nil {
		return err
	}
	if dbName != "" {
		log.Printf("connecting to %s database '%s'...", src.Name(), dbName)
	} else {
		log.Printf("connecting to %s...", src.Name())
	}

	db, err := src.OpenDB(cfg.Source.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", strings.ToLower(src.Name()), err)
	}

	version, err := src.ServerVersion(ctx, db)
	if err != nil {
		return err
	}
	log.Printf("connected to %s server version %s", src.Name(), version)

	if cfg.Source.Schema == "" {
		log.Printf("no schema filter configured; auditing all user schemas")
	} else {
		log.Printf("auditing schema '%s'", cfg.Source.Schema)
	}

	if intervalFlag <= 0 {
		return runAuditOnce(ctx, src, db, cfg)
	}
	return watchAudit(ctx, src, db, cfg, intervalFlag, durationFlag)
}

// runAuditOnce runs one acquire → classify → render cycle.
func runAuditOnce(ctx context.Context, src StatsSource, db *sql.DB, cfg *AuditConfig) error {
	start := time.Now()

	snap, err := src.Snapshot(ctx, db, cfg.Source.Schema)
	if err != nil {
		return err
	}
	log.Printf("captured %d index records across %d tables in %s",
		len(snap.Records), len(snap.Sizes), time.Since(start).Round(time.Millisecond))

	an, err := Classify(snap, cfg.options())
	if err != nil {
		return err
	}

	if cfg.Report.Simple {
		writeSimpleReport(os.Stdout, src, an, cfg.Report.ShowAllStats)
	} else {
		writeConsoleReport(os.Stdout, src, snap, an, cfg.options())
	}

	if cfg.Report.HTML != "" {
		if err := writeHTMLReport(cfg.Report.HTML, src, snap, an, cfg.options()); err != nil {
			return err
		}
		log.Printf("HTML report written to %s", cfg.Report.HTML)
	}
	if cfg.Report.CSV != "" {
		if err := writeCSVReport(cfg.Report.CSV, snap, an); err != nil {
			return err
		}
		log.Printf("CSV report written to %s", cfg.Report.CSV)
	}
	return nil
}

// watchAudit repeats the audit cycle on a ticker until the duration
// elapses or the context is canceled. Each cycle takes a fresh snapshot;
// nothing carries over between runs.
func watchAudit(ctx context.Context, src StatsSource, db *sql.DB, cfg *AuditConfig, interval, duration time.Duration) error {
	log.Printf("watch mode: auditing every %s", interval)
	if err := runAuditOnce(ctx, src, db, cfg); err != nil {
		return err
	}

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
			log.Printf("watch stopped")
			return nil
		case <-deadline:
			log.Printf("watch completed after %s", duration)
			return nil
		case <-ticker.C:
			if err := runAuditOnce(ctx, src, db, cfg); err != nil {
				if ctx.Err() != nil {
					log.Printf("watch stopped")
					return nil
				}
				return err
			}
		}
	}
}

// applyFlagOverrides layers explicitly set CLI flags over the config
// file. Paths given on the command line stay relative to the working
// directory, not the config file.
func applyFlagOverrides(cmd *cobra.Command, cfg *AuditConfig) {
	flags := cmd.Flags()
	if flags.Changed("output-html") {
		cfg.Report.HTML = htmlPathFlag
	}
	if flags.Changed("output-csv") {
		cfg.Report.CSV = csvPathFlag
	}
	if flags.Changed("simple") {
		cfg.Report.Simple = simpleFlag
	}
	if flags.Changed("show-all-stats") {
		cfg.Report.ShowAllStats = showAllStatsFlag
	}
	if topFlag > 0 {
		cfg.Analysis.TopK = topFlag
	}
}
