package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/big"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/lookpipe/pkg/adapter"
	"github.com/marcboeker/go-duckdb"
)

const credentialsSection = "duckdb"

var dialect = adapter.Dialect{
	Name:        "duckdb",
	Placeholder: adapter.PlaceholderQuestion,
	CastDates:   true,
}

// Adapter implements the adapter.Adapter interface for a DuckDB database file.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new DuckDB adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{
			Logger:       logger,
			ConvertValue: convertValue,
		},
	}
}

// Dialect returns the DuckDB query dialect.
func (a *Adapter) Dialect() adapter.Dialect {
	return dialect
}

// Connect opens the database named by the credentials file. A relative
// database path is resolved against the credentials file directory; an
// empty path opens an in-memory database. Setting the "read_only" option
// to "true" opens the file in read-only mode.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	creds, err := adapter.LoadSQLCredentials(cfg.CredentialsPath, credentialsSection)
	if err != nil {
		return err
	}

	path := creds.Path
	if path != "" && path != ":memory:" && !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(cfg.CredentialsPath), path)
	}
	if path == ":memory:" {
		path = ""
	}
	if path != "" && cfg.Options["read_only"] == "true" {
		path += "?access_mode=read_only"
	}

	a.Logger.Debug("connecting to duckdb", slog.String("path", path))

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// LoadCSV loads a CSV file into a table, replacing it.
// DuckDB infers the schema from the file.
func (a *Adapter) LoadCSV(ctx context.Context, tableName string, filePath string) error {
	if a.DB == nil {
		return fmt.Errorf("database connection not established")
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	query := fmt.Sprintf(
		"CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv_auto('%s', header=true)",
		dialect.QualifyTable(a.Cfg.Dataset, tableName),
		strings.ReplaceAll(absPath, "'", "''"),
	)
	if _, err := a.DB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to load CSV: %w", err)
	}

	a.Logger.Debug("loaded csv", slog.String("table", tableName), slog.String("file", absPath))
	return nil
}

// convertValue turns DuckDB decimals into exact rationals.
func convertValue(v any) any {
	d, ok := v.(duckdb.Decimal)
	if !ok || d.Value == nil {
		return v
	}
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(d.Scale)), nil)
	return new(big.Rat).SetFrac(d.Value, denom)
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
