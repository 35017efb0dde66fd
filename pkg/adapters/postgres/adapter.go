package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/leapstack-labs/lookpipe/pkg/adapter"
	"github.com/leapstack-labs/lookpipe/pkg/core"
)

// credentialsSection is the block read from a shared credentials file.
const credentialsSection = "postgres"

var dialect = adapter.Dialect{
	Name:        "postgres",
	Placeholder: adapter.PlaceholderDollar,
	CastDates:   true,
}

// Adapter implements the adapter.Adapter interface for PostgreSQL.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new PostgreSQL adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// Dialect returns the PostgreSQL query dialect.
func (a *Adapter) Dialect() adapter.Dialect {
	return dialect
}

// Connect reads the credentials file and establishes a connection.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	creds, err := adapter.LoadSQLCredentials(cfg.CredentialsPath, credentialsSection)
	if err != nil {
		return err
	}
	if mode, ok := cfg.Options["sslmode"]; ok {
		creds.SSLMode = mode
	}

	connConfig, err := pgx.ParseConfig(buildPostgresDSN(creds))
	if err != nil {
		return &core.CredentialsError{Path: cfg.CredentialsPath, Err: err}
	}

	a.Logger.Debug("connecting to postgres", slog.String("host", connConfig.Host), slog.String("database", connConfig.Database))

	db := stdlib.OpenDB(*connConfig)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// buildPostgresDSN constructs a key=value PostgreSQL connection string.
func buildPostgresDSN(creds *adapter.SQLCredentials) string {
	host := creds.Host
	if host == "" {
		host = "localhost"
	}

	port := creds.Port
	if port == 0 {
		port = 5432
	}

	sslmode := creds.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s",
		dsnValue(host), port, dsnValue(creds.Database), dsnValue(sslmode))

	if creds.User != "" {
		dsn += fmt.Sprintf(" user=%s", dsnValue(creds.User))
	}
	if creds.Password != "" {
		dsn += fmt.Sprintf(" password=%s", dsnValue(creds.Password))
	}

	return dsn
}

// dsnValue quotes a value when it contains characters that would split
// the key=value pair.
func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
