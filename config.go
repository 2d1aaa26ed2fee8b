package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// duration lets TOML values carry Go duration strings ("24h", "90s").
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

// AuditConfig holds the full TOML-driven audit configuration.
type AuditConfig struct {
	Source   SourceConfig   `toml:"source"`
	Analysis AnalysisConfig `toml:"analysis"`
	Report   ReportConfig   `toml:"report"`

	// configDir is the directory containing the TOML file, used to resolve
	// relative report output paths.
	configDir string
}

// SourceConfig identifies the audited database engine and connection string.
type SourceConfig struct {
	Type string `toml:"type"` // "mysql" or "postgres"; inferred from URL-style DSNs
	DSN  string `toml:"dsn"`

	// Schema restricts the audit to one schema. Empty audits every user
	// schema on the server.
	Schema string `toml:"schema"`
}

// AnalysisConfig tunes a classification run.
type AnalysisConfig struct {
	TopK            int      `toml:"top_k"`
	MinIndexAge     duration `toml:"min_index_age"` // e.g. "168h"; unset disables the age filter
	PercentDecimals int      `toml:"percent_decimals"`
}

// ReportConfig selects report outputs beyond the console.
type ReportConfig struct {
	HTML         string `toml:"html"`
	CSV          string `toml:"csv"`
	Simple       bool   `toml:"simple"`
	ShowAllStats bool   `toml:"show_all_stats"` // append the full per-index table to the simple report
}

// loadConfig reads a TOML config file and returns an AuditConfig with
// defaults applied and the source DSN resolved to its driver form.
func loadConfig(path string) (*AuditConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := AuditConfig{
		Analysis: AnalysisConfig{
			TopK:            defaultTopK,
			PercentDecimals: defaultPercentDecimals,
		},
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if unknown := md.Undecoded(); len(unknown) > 0 {
		keys := make([]string, len(unknown))
		for i, k := range unknown {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg.configDir = filepath.Dir(absPath)

	// Source validation
	cfg.Source.DSN = strings.TrimSpace(cfg.Source.DSN)
	if cfg.Source.DSN == "" {
		return nil, fmt.Errorf("source.dsn is required")
	}
	sourceType, dsn, err := resolveSourceDSN(strings.TrimSpace(cfg.Source.Type), cfg.Source.DSN)
	if err != nil {
		return nil, err
	}
	if _, err := newStatsSource(sourceType); err != nil {
		return nil, err
	}
	cfg.Source.Type = sourceType
	cfg.Source.DSN = dsn
	cfg.Source.Schema = strings.TrimSpace(cfg.Source.Schema)

	// Analysis validation
	if cfg.Analysis.TopK <= 0 {
		return nil, fmt.Errorf("analysis.top_k must be positive")
	}
	if cfg.Analysis.MinIndexAge < 0 {
		return nil, fmt.Errorf("analysis.min_index_age must not be negative")
	}
	if cfg.Analysis.PercentDecimals < 1 || cfg.Analysis.PercentDecimals > 4 {
		return nil, fmt.Errorf("analysis.percent_decimals must be between 1 and 4")
	}

	// Report paths from the config file are relative to the config file.
	if cfg.Report.HTML != "" {
		cfg.Report.HTML = cfg.resolvePath(cfg.Report.HTML)
	}
	if cfg.Report.CSV != "" {
		cfg.Report.CSV = cfg.resolvePath(cfg.Report.CSV)
	}

	return &cfg, nil
}

// options returns the classification options this config selects.
func (c *AuditConfig) options() Options {
	return Options{
		TopK:            c.Analysis.TopK,
		MinIndexAge:     time.Duration(c.Analysis.MinIndexAge),
		PercentDecimals: c.Analysis.PercentDecimals,
	}
}

// resolvePath resolves a path relative to the config file directory.
func (c *AuditConfig) resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.configDir, p)
}
