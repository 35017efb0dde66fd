// Package extract pulls source tables out of a warehouse into frames,
// either as a date-bounded incremental window or as a full snapshot
// guarded by a row-count check.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/lookpipe/pkg/adapter"
	"github.com/leapstack-labs/lookpipe/pkg/core"
	"github.com/leapstack-labs/lookpipe/pkg/frame"
)

// Defaults applied by callers that do not configure the window or limit.
const (
	DefaultLookbackDays = 2
	DefaultSafetyLimit  = 100_000
)

// DateLayout is the format of start and end dates.
const DateLayout = "2006-01-02"

// OpenFunc acquires a connected adapter for cfg.
type OpenFunc func(ctx context.Context, cfg adapter.Config, logger *slog.Logger) (adapter.Adapter, error)

// Extractor reads tables from one warehouse.
type Extractor struct {
	// Warehouse selects the adapter and dataset. CredentialsPath is
	// replaced by the path given to each call.
	Warehouse adapter.Config

	// Open acquires a client per call. Defaults to adapter.Open.
	Open OpenFunc

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// New returns an Extractor for the given warehouse.
func New(warehouse adapter.Config, logger *slog.Logger) *Extractor {
	return &Extractor{Warehouse: warehouse, Logger: logger}
}

func (e *Extractor) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}

func (e *Extractor) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// connect opens a client authenticated with the credentials at path.
func (e *Extractor) connect(ctx context.Context, credentialsPath string) (adapter.Adapter, error) {
	cfg := e.Warehouse
	cfg.CredentialsPath = credentialsPath
	open := e.Open
	if open == nil {
		open = adapter.Open
	}
	return open(ctx, cfg, e.logger())
}

// EndDate returns the exclusive upper bound of an incremental window:
// the calendar day lookbackDays before now.
func EndDate(now time.Time, lookbackDays int) string {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).AddDate(0, 0, -lookbackDays).Format(DateLayout)
}

// ExtractIncremental reads the rows of table whose dateColumn falls in
// [startDate, today - lookbackDays). The bounds are bound as the named
// parameters start_date and end_date, typed by the dialect's date
// placeholder.
func (e *Extractor) ExtractIncremental(ctx context.Context, table, dateColumn, credentialsPath, startDate string, lookbackDays int) (*frame.Frame, error) {
	if err := ValidateIdentifier(table); err != nil {
		return nil, err
	}
	if err := ValidateIdentifier(dateColumn); err != nil {
		return nil, err
	}
	if lookbackDays < 0 {
		return nil, &core.ConfigurationError{Key: "lookback_days", Reason: fmt.Sprintf("must not be negative, got %d", lookbackDays)}
	}
	if _, err := time.Parse(DateLayout, startDate); err != nil {
		return nil, &core.ConfigurationError{Key: "start_date", Reason: fmt.Sprintf("expected YYYY-MM-DD, got %q", startDate)}
	}

	client, err := e.connect(ctx, credentialsPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	endDate := EndDate(e.now(), lookbackDays)
	log := e.logger().With(slog.String("table", table))
	log.Info("incremental extraction", slog.String("start_date", startDate), slog.String("end_date", endDate))

	d := client.Dialect()
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s >= %s AND %s < %s",
		d.QualifyTable(e.Warehouse.Dataset, table),
		dateColumn, d.DatePlaceholder("start_date", 1),
		dateColumn, d.DatePlaceholder("end_date", 2),
	)

	result, err := e.run(ctx, log, client, query,
		adapter.Named("start_date", startDate),
		adapter.Named("end_date", endDate),
	)
	if err != nil {
		return nil, err
	}

	f, err := toFrame(log, table, result)
	if err != nil {
		return nil, err
	}
	log.Info("incremental extraction complete", slog.Int("rows", f.Height()))
	return f, nil
}

// ExtractSnapshot reads all of table after checking that it holds at most
// safetyLimit rows. A larger table fails with a VolumeError without the
// full read being issued. The count and the read are separate queries, so
// rows inserted in between are not covered by the limit.
func (e *Extractor) ExtractSnapshot(ctx context.Context, table, credentialsPath string, safetyLimit int64) (*frame.Frame, error) {
	if err := ValidateIdentifier(table); err != nil {
		return nil, err
	}
	if safetyLimit <= 0 {
		return nil, &core.ConfigurationError{Key: "safety_limit", Reason: fmt.Sprintf("must be positive, got %d", safetyLimit)}
	}

	client, err := e.connect(ctx, credentialsPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	log := e.logger().With(slog.String("table", table))
	log.Info("snapshot extraction")

	qualified := client.Dialect().QualifyTable(e.Warehouse.Dataset, table)

	countResult, err := e.run(ctx, log, client, "SELECT count(*) AS total FROM "+qualified)
	if err != nil {
		return nil, err
	}
	total, err := scalarCount(countResult)
	if err != nil {
		return nil, fmt.Errorf("failed to count rows of %s: %w", table, err)
	}
	log.Info("snapshot row count", slog.Int64("rows", total), slog.Int64("safety_limit", safetyLimit))

	if total > safetyLimit {
		return nil, &core.VolumeError{Table: table, Rows: total, Limit: safetyLimit}
	}

	result, err := e.run(ctx, log, client, "SELECT * FROM "+qualified)
	if err != nil {
		return nil, err
	}

	f, err := toFrame(log, table, result)
	if err != nil {
		return nil, err
	}
	log.Info("snapshot extraction complete", slog.Int("rows", f.Height()))
	return f, nil
}

// run executes query, logging its text on failure. The error is returned
// unchanged.
func (e *Extractor) run(ctx context.Context, log *slog.Logger, client adapter.Adapter, query string, params ...adapter.Param) (*adapter.Result, error) {
	log.Debug("executing query", slog.String("sql", query))
	result, err := client.Query(ctx, query, params...)
	if err != nil {
		log.Error("query failed", slog.String("sql", query), slog.String("error", err.Error()))
		return nil, err
	}
	return result, nil
}

// toFrame normalizes a query result into a Frame. A single-column result
// goes through Series so that it still carries an explicit schema.
func toFrame(log *slog.Logger, table string, result *adapter.Result) (*frame.Frame, error) {
	switch len(result.Fields) {
	case 0:
		return nil, &core.SchemaError{Table: table, Reason: "query returned no columns"}
	case 1:
		log.Warn("extraction returned a single series, converting to a table", slog.String("column", result.Fields[0].Name))
		s := &frame.Series{Name: result.Fields[0].Name, Type: result.Fields[0].Type, Values: result.Column(0)}
		return s.ToFrame()
	}
	return frame.FromRows(result.Fields, result.Rows)
}

func scalarCount(result *adapter.Result) (int64, error) {
	if result.Len() != 1 || len(result.Rows[0]) == 0 {
		return 0, fmt.Errorf("expected a single count row, got %d rows", result.Len())
	}
	switch n := result.Rows[0][0].(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected count value %v (%T)", n, n)
	}
}
