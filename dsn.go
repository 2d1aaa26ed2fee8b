package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/xo/dburl"
)

// resolveSourceDSN turns the configured source type and DSN into a
// concrete (type, driver DSN) pair. URL-style DSNs (mysql://,
// postgres://) infer the type from their scheme and may leave
// source.type empty; driver-native DSNs require an explicit type.
func resolveSourceDSN(sourceType, dsn string) (string, string, error) {
	if !strings.Contains(dsn, "://") {
		if sourceType == "" {
			return "", "", fmt.Errorf("source type is required for driver-native DSNs (set source.type or use a mysql:// / postgres:// URL)")
		}
		return sourceType, dsn, nil
	}

	u, err := dburl.Parse(dsn)
	if err != nil {
		return "", "", fmt.Errorf("parse source dsn: %w", err)
	}

	var inferred string
	switch u.Driver {
	case "mysql":
		inferred = "mysql"
	case "postgres", "pgx":
		inferred = "postgres"
	default:
		return "", "", fmt.Errorf("unsupported dsn scheme %q (supported: mysql, postgres)", u.OriginalScheme)
	}
	if sourceType != "" && sourceType != inferred {
		return "", "", fmt.Errorf("source type %q does not match dsn scheme %q", sourceType, u.OriginalScheme)
	}
	return inferred, u.DSN, nil
}

// mysqlDSNWithReadOptions rewrites a MySQL DSN with the options every
// audit connection needs: parsed time columns, client-side interpolation
// (single round trip per catalog query), and UTC timestamps.
func mysqlDSNWithReadOptions(baseDSN string) (string, error) {
	cfg, err := mysql.ParseDSN(baseDSN)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.InterpolateParams = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}
