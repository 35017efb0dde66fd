package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/lookpipe/pkg/frame"
	"github.com/leapstack-labs/lookpipe/pkg/schema"
)

// BaseSQLAdapter provides common database/sql functionality for adapters.
// Embed this struct in concrete adapter implementations to get standard
// Close and Query implementations.
type BaseSQLAdapter struct {
	DB     *sql.DB
	Cfg    Config
	Logger *slog.Logger

	// TypeOf maps a result column to its frame type. Defaults to
	// schema.FromSQL on the database type name, with DecimalSize applied.
	TypeOf func(ct *sql.ColumnType) schema.DataType

	// ConvertValue adapts driver-specific values before they are
	// normalized into the frame value domain.
	ConvertValue func(v any) any
}

// Close closes the database connection.
func (b *BaseSQLAdapter) Close() error {
	if b.DB != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing database connection")
		}
		return b.DB.Close()
	}
	return nil
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.DB != nil
}

// Query executes sql with params bound positionally, in the order given.
func (b *BaseSQLAdapter) Query(ctx context.Context, sqlStr string, params ...Param) (*Result, error) {
	if b.DB == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	args := make([]any, len(params))
	for i, p := range params {
		args[i] = p.Value
	}

	rows, err := b.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}

	typeOf := b.TypeOf
	if typeOf == nil {
		typeOf = DefaultTypeOf
	}

	fields := make([]frame.Field, len(colTypes))
	for i, ct := range colTypes {
		fields[i] = frame.Field{Name: ct.Name(), Type: typeOf(ct)}
	}

	result := &Result{Fields: fields}
	for rows.Next() {
		values := make([]any, len(fields))
		ptrs := make([]any, len(values))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if b.ConvertValue != nil {
			for i, v := range values {
				values[i] = b.ConvertValue(v)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return result, nil
}

// DefaultTypeOf maps a column by its database type name.
func DefaultTypeOf(ct *sql.ColumnType) schema.DataType {
	t, _ := schema.FromSQL(ct.DatabaseTypeName())
	if t.Kind == schema.KindDecimal {
		if precision, scale, ok := ct.DecimalSize(); ok && precision > 0 && scale <= precision {
			return schema.Decimal(int(precision), int(scale))
		}
	}
	return t
}
