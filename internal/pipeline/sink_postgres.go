package pipeline

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/leapstack-labs/lookpipe/pkg/frame"
	"github.com/leapstack-labs/lookpipe/pkg/schema"
)

// PostgresSink replaces a table per dataset in a Postgres schema and
// loads it with COPY.
type PostgresSink struct {
	Pool   *pgxpool.Pool
	Schema string
}

// NewPostgresSink connects a pool to dsn.
func NewPostgresSink(ctx context.Context, dsn, targetSchema string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if targetSchema == "" {
		targetSchema = "public"
	}
	return &PostgresSink{Pool: pool, Schema: targetSchema}, nil
}

// Name implements Sink.
func (s *PostgresSink) Name() string { return "postgres" }

// Close releases the pool.
func (s *PostgresSink) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// Write implements Sink. The table is dropped and recreated inside one
// transaction, so readers never see a partial load.
func (s *PostgresSink) Write(ctx context.Context, dataset string, lf *frame.LazyFrame) (int64, error) {
	f, err := lf.Collect(ctx)
	if err != nil {
		return 0, err
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range []string{
		"CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{s.Schema}.Sanitize(),
		"DROP TABLE IF EXISTS " + pgx.Identifier{s.Schema, dataset}.Sanitize(),
		createTableSQL(s.Schema, dataset, f.Fields()),
	} {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return 0, fmt.Errorf("failed to prepare table %s: %w", dataset, err)
		}
	}

	rows, err := copyRows(f)
	if err != nil {
		return 0, err
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{s.Schema, dataset}, f.Columns(), pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("failed to copy rows into %s: %w", dataset, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit %s: %w", dataset, err)
	}
	return n, nil
}

func createTableSQL(targetSchema, table string, fields []frame.Field) string {
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = pgx.Identifier{f.Name}.Sanitize() + " " + postgresType(f.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", pgx.Identifier{targetSchema, table}.Sanitize(), strings.Join(cols, ", "))
}

// postgresType maps a column type to the narrowest Postgres type that
// holds every value. Postgres has no unsigned integers.
func postgresType(t schema.DataType) string {
	switch t.Kind {
	case schema.KindInt8, schema.KindInt16, schema.KindUInt8:
		return "SMALLINT"
	case schema.KindInt32, schema.KindUInt16:
		return "INTEGER"
	case schema.KindInt64, schema.KindUInt32:
		return "BIGINT"
	case schema.KindUInt64:
		return "NUMERIC(20,0)"
	case schema.KindFloat32:
		return "REAL"
	case schema.KindFloat64:
		return "DOUBLE PRECISION"
	case schema.KindBoolean:
		return "BOOLEAN"
	case schema.KindDate:
		return "DATE"
	case schema.KindDatetime:
		return "TIMESTAMP"
	case schema.KindDecimal:
		return fmt.Sprintf("NUMERIC(%d,%d)", t.Precision, t.Scale)
	default:
		return "TEXT"
	}
}

// copyRows converts frame values into values pgx can encode for the
// column types chosen by postgresType.
func copyRows(f *frame.Frame) ([][]any, error) {
	fields := f.Fields()
	rows := make([][]any, f.Height())
	for r := range rows {
		row := f.Row(r)
		for c, v := range row {
			pv, err := postgresValue(v, fields[c].Type)
			if err != nil {
				return nil, fmt.Errorf("column %s row %d: %w", fields[c].Name, r, err)
			}
			row[c] = pv
		}
		rows[r] = row
	}
	return rows, nil
}

func postgresValue(v any, t schema.DataType) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t.Kind {
	case schema.KindUInt64:
		u, ok := v.(uint64)
		if !ok {
			return nil, fmt.Errorf("expected uint64, got %T", v)
		}
		return pgtype.Numeric{Int: new(big.Int).SetUint64(u), Valid: true}, nil
	case schema.KindDecimal:
		var n pgtype.Numeric
		if err := n.Scan(v); err != nil {
			return nil, fmt.Errorf("invalid decimal %v: %w", v, err)
		}
		return n, nil
	case schema.KindUInt8, schema.KindUInt16, schema.KindUInt32:
		u, ok := v.(uint64)
		if !ok {
			return nil, fmt.Errorf("expected uint64, got %T", v)
		}
		return int64(u), nil
	}
	return v, nil
}
