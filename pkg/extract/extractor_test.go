package extract

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/leapstack-labs/lookpipe/internal/testutil"
	"github.com/leapstack-labs/lookpipe/pkg/adapter"
	"github.com/leapstack-labs/lookpipe/pkg/core"
	"github.com/leapstack-labs/lookpipe/pkg/frame"
	"github.com/leapstack-labs/lookpipe/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedQuery struct {
	sql    string
	params []adapter.Param
}

// fakeWarehouse answers queries from a script and records what it was asked.
type fakeWarehouse struct {
	dialect adapter.Dialect
	results []*adapter.Result
	err     error
	queries []recordedQuery
	closed  bool
}

func (f *fakeWarehouse) Connect(context.Context, adapter.Config) error { return nil }
func (f *fakeWarehouse) Close() error                                  { f.closed = true; return nil }
func (f *fakeWarehouse) Dialect() adapter.Dialect                      { return f.dialect }

func (f *fakeWarehouse) Query(_ context.Context, sql string, params ...adapter.Param) (*adapter.Result, error) {
	f.queries = append(f.queries, recordedQuery{sql: sql, params: params})
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) == 0 {
		return nil, errors.New("no scripted result")
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r, nil
}

var bigqueryDialect = adapter.Dialect{Name: "bigquery", Placeholder: adapter.PlaceholderAt, PathQuote: '`'}

func newTestExtractor(t *testing.T, wh *fakeWarehouse) (*Extractor, *int) {
	t.Helper()
	opens := 0
	e := &Extractor{
		Warehouse: adapter.Config{Type: "fake", Dataset: "bigquery-public-data.thelook_ecommerce"},
		Open: func(_ context.Context, cfg adapter.Config, _ *slog.Logger) (adapter.Adapter, error) {
			opens++
			assert.Equal(t, "key.json", cfg.CredentialsPath)
			return wh, nil
		},
		Now:    func() time.Time { return time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC) },
		Logger: testutil.NewTestLogger(t),
	}
	return e, &opens
}

func countResult(n int64) *adapter.Result {
	return &adapter.Result{
		Fields: []frame.Field{{Name: "total", Type: schema.Int64}},
		Rows:   [][]any{{n}},
	}
}

func ordersResult(rows int) *adapter.Result {
	r := &adapter.Result{Fields: []frame.Field{
		{Name: "id", Type: schema.Int64},
		{Name: "status", Type: schema.String},
		{Name: "created_at", Type: schema.Datetime},
	}}
	for i := 0; i < rows; i++ {
		r.Rows = append(r.Rows, []any{int64(i + 1), "Complete", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)})
	}
	return r
}

func TestValidateIdentifier(t *testing.T) {
	valid := []string{"orders", "order_items", "Users2", "_x", "123"}
	for _, name := range valid {
		assert.NoError(t, ValidateIdentifier(name), name)
	}

	invalid := []string{
		"",
		"orders; DROP TABLE users",
		"orders--",
		"my-table",
		"dataset.orders",
		"orders ",
		"pedidos_ç",
		"a\nb",
		"`orders`",
	}
	for _, name := range invalid {
		err := ValidateIdentifier(name)
		var secErr *core.SecurityError
		require.True(t, errors.As(err, &secErr), "expected SecurityError for %q", name)
		assert.Equal(t, name, secErr.Identifier)
	}
}

func TestEndDate(t *testing.T) {
	now := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "2024-02-28", EndDate(now, 2))
	assert.Equal(t, "2024-03-01", EndDate(now, 0))
	assert.Equal(t, "2023-12-31", EndDate(time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC), 1))
}

func TestExtractIncremental(t *testing.T) {
	wh := &fakeWarehouse{dialect: bigqueryDialect, results: []*adapter.Result{ordersResult(3)}}
	e, opens := newTestExtractor(t, wh)

	f, err := e.ExtractIncremental(context.Background(), "orders", "created_at", "key.json", "2024-01-01", 2)
	require.NoError(t, err)

	assert.Equal(t, 1, *opens)
	assert.True(t, wh.closed)
	assert.Equal(t, 3, f.Height())
	assert.Equal(t, []string{"id", "status", "created_at"}, f.Columns())

	require.Len(t, wh.queries, 1)
	q := wh.queries[0]
	assert.Equal(t,
		"SELECT * FROM `bigquery-public-data.thelook_ecommerce.orders` WHERE created_at >= @start_date AND created_at < @end_date",
		q.sql)
	assert.Equal(t, []adapter.Param{
		adapter.Named("start_date", "2024-01-01"),
		adapter.Named("end_date", "2024-03-08"),
	}, q.params)
}

func TestExtractIncremental_DatesAreNeverInterpolated(t *testing.T) {
	for _, start := range []string{"2020-01-01", "2023-06-15", "2024-02-29"} {
		wh := &fakeWarehouse{dialect: bigqueryDialect, results: []*adapter.Result{ordersResult(1)}}
		e, _ := newTestExtractor(t, wh)

		_, err := e.ExtractIncremental(context.Background(), "orders", "created_at", "key.json", start, 2)
		require.NoError(t, err)

		require.Len(t, wh.queries, 1)
		assert.NotContains(t, wh.queries[0].sql, start)
		assert.NotContains(t, wh.queries[0].sql, "2024-03-08")
		assert.Equal(t, start, wh.queries[0].params[0].Value)
	}
}

func TestExtractIncremental_PositionalDialects(t *testing.T) {
	tests := []struct {
		dialect adapter.Dialect
		want    string
	}{
		{adapter.Dialect{Placeholder: adapter.PlaceholderDollar}, `SELECT * FROM "public"."orders" WHERE created_at >= $1 AND created_at < $2`},
		{adapter.Dialect{Placeholder: adapter.PlaceholderQuestion}, `SELECT * FROM "public"."orders" WHERE created_at >= ? AND created_at < ?`},
		{adapter.Dialect{Placeholder: adapter.PlaceholderQuestion, CastDates: true}, `SELECT * FROM "public"."orders" WHERE created_at >= CAST(? AS DATE) AND created_at < CAST(? AS DATE)`},
		{adapter.Dialect{Placeholder: adapter.PlaceholderDollar, CastDates: true}, `SELECT * FROM "public"."orders" WHERE created_at >= CAST($1 AS DATE) AND created_at < CAST($2 AS DATE)`},
	}

	for _, tt := range tests {
		wh := &fakeWarehouse{dialect: tt.dialect, results: []*adapter.Result{ordersResult(1)}}
		e, _ := newTestExtractor(t, wh)
		e.Warehouse.Dataset = "public"

		_, err := e.ExtractIncremental(context.Background(), "orders", "created_at", "key.json", "2024-01-01", 2)
		require.NoError(t, err)
		assert.Equal(t, tt.want, wh.queries[0].sql)
	}
}

func TestExtractIncremental_InvalidIdentifiers(t *testing.T) {
	tests := []struct {
		name   string
		table  string
		column string
	}{
		{"table injection", "orders; DROP TABLE users", "created_at"},
		{"table with dash", "order-items", "created_at"},
		{"column injection", "orders", "created_at OR 1=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wh := &fakeWarehouse{dialect: bigqueryDialect}
			e, opens := newTestExtractor(t, wh)

			_, err := e.ExtractIncremental(context.Background(), tt.table, tt.column, "key.json", "2024-01-01", 2)

			var secErr *core.SecurityError
			require.True(t, errors.As(err, &secErr))
			assert.Zero(t, *opens, "no client should be acquired")
			assert.Empty(t, wh.queries)
		})
	}
}

func TestExtractIncremental_InvalidParameters(t *testing.T) {
	wh := &fakeWarehouse{dialect: bigqueryDialect}
	e, opens := newTestExtractor(t, wh)

	_, err := e.ExtractIncremental(context.Background(), "orders", "created_at", "key.json", "2024-01-01", -1)
	var cfgErr *core.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "lookback_days", cfgErr.Key)

	_, err = e.ExtractIncremental(context.Background(), "orders", "created_at", "key.json", "01/01/2024", 2)
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "start_date", cfgErr.Key)

	assert.Zero(t, *opens)
}

func TestExtractIncremental_QueryFailureIsLoggedAndReturned(t *testing.T) {
	queryErr := errors.New("Syntax error: Unexpected keyword")
	wh := &fakeWarehouse{dialect: bigqueryDialect, err: queryErr}
	e, _ := newTestExtractor(t, wh)

	var buf bytes.Buffer
	e.Logger = slog.New(slog.NewTextHandler(&buf, nil))

	_, err := e.ExtractIncremental(context.Background(), "orders", "created_at", "key.json", "2024-01-01", 2)
	assert.Same(t, queryErr, err)
	assert.True(t, wh.closed)

	logged := buf.String()
	assert.Contains(t, logged, "query failed")
	assert.Contains(t, logged, "WHERE created_at >= @start_date")
	assert.Contains(t, logged, "Unexpected keyword")
}

func TestExtractIncremental_SingleSeries(t *testing.T) {
	wh := &fakeWarehouse{dialect: bigqueryDialect, results: []*adapter.Result{{
		Fields: []frame.Field{{Name: "id", Type: schema.Int64}},
		Rows:   [][]any{{int64(1)}, {int64(2)}},
	}}}
	e, _ := newTestExtractor(t, wh)

	var buf bytes.Buffer
	e.Logger = slog.New(slog.NewTextHandler(&buf, nil))

	f, err := e.ExtractIncremental(context.Background(), "orders", "created_at", "key.json", "2024-01-01", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, f.Width())
	assert.Equal(t, 2, f.Height())
	assert.Equal(t, []frame.Field{{Name: "id", Type: schema.Int64}}, f.Fields())
	assert.Contains(t, buf.String(), "single series")
}

func TestExtractIncremental_NoColumns(t *testing.T) {
	wh := &fakeWarehouse{dialect: bigqueryDialect, results: []*adapter.Result{{}}}
	e, _ := newTestExtractor(t, wh)

	_, err := e.ExtractIncremental(context.Background(), "orders", "created_at", "key.json", "2024-01-01", 2)
	var schemaErr *core.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "orders", schemaErr.Table)
}

func TestExtractSnapshot_OverLimit(t *testing.T) {
	wh := &fakeWarehouse{dialect: bigqueryDialect, results: []*adapter.Result{countResult(5000), ordersResult(5000)}}
	e, _ := newTestExtractor(t, wh)

	_, err := e.ExtractSnapshot(context.Background(), "users", "key.json", 1000)

	var volErr *core.VolumeError
	require.True(t, errors.As(err, &volErr))
	assert.Equal(t, int64(5000), volErr.Rows)
	assert.Equal(t, int64(1000), volErr.Limit)
	require.Len(t, wh.queries, 1, "only the count query may be issued")
	assert.True(t, strings.HasPrefix(wh.queries[0].sql, "SELECT count(*)"))
}

func TestExtractSnapshot_WithinLimit(t *testing.T) {
	wh := &fakeWarehouse{dialect: bigqueryDialect, results: []*adapter.Result{countResult(500), ordersResult(500)}}
	e, _ := newTestExtractor(t, wh)

	f, err := e.ExtractSnapshot(context.Background(), "users", "key.json", 1000)
	require.NoError(t, err)

	require.Len(t, wh.queries, 2)
	assert.Equal(t, "SELECT count(*) AS total FROM `bigquery-public-data.thelook_ecommerce.users`", wh.queries[0].sql)
	assert.Equal(t, "SELECT * FROM `bigquery-public-data.thelook_ecommerce.users`", wh.queries[1].sql)
	assert.Equal(t, 500, f.Height())
	assert.Equal(t, 3, f.Width())
}

func TestExtractSnapshot_CountEqualToLimitPasses(t *testing.T) {
	wh := &fakeWarehouse{dialect: bigqueryDialect, results: []*adapter.Result{countResult(3), ordersResult(3)}}
	e, _ := newTestExtractor(t, wh)

	f, err := e.ExtractSnapshot(context.Background(), "users", "key.json", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, f.Height())
	assert.Len(t, wh.queries, 2)
}

func TestExtractSnapshot_InvalidInput(t *testing.T) {
	wh := &fakeWarehouse{dialect: bigqueryDialect}
	e, opens := newTestExtractor(t, wh)

	_, err := e.ExtractSnapshot(context.Background(), "users`; --", "key.json", 1000)
	var secErr *core.SecurityError
	assert.True(t, errors.As(err, &secErr))

	_, err = e.ExtractSnapshot(context.Background(), "users", "key.json", 0)
	var cfgErr *core.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))

	assert.Zero(t, *opens)
	assert.Empty(t, wh.queries)
}

func TestExtract_MissingCredentials(t *testing.T) {
	e := &Extractor{
		Warehouse: adapter.Config{Type: "bigquery"},
		Open: func(_ context.Context, cfg adapter.Config, _ *slog.Logger) (adapter.Adapter, error) {
			_, err := adapter.ReadCredentials(cfg.CredentialsPath)
			return nil, err
		},
		Logger: testutil.NewTestLogger(t),
	}
	missing := filepath.Join(t.TempDir(), "caminho_falso.json")

	_, err := e.ExtractIncremental(context.Background(), "orders", "created_at", missing, "2024-01-01", 2)
	var credErr *core.CredentialsError
	require.True(t, errors.As(err, &credErr))
	assert.Equal(t, missing, credErr.Path)

	_, err = e.ExtractSnapshot(context.Background(), "users", missing, 1000)
	assert.True(t, errors.As(err, &credErr))
}
