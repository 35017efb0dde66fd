package frame

import (
	"context"
	"fmt"
	"strings"

	"github.com/leapstack-labs/lookpipe/pkg/schema"
)

// LazyFrame is a deferred query over a Workspace. Operations only compose
// SQL and track the output schema; nothing runs until Collect, Count or
// WriteParquet is called.
type LazyFrame struct {
	ws     *Workspace
	plan   string
	fields []Field
}

// Schema returns the output fields without executing the plan.
func (lf *LazyFrame) Schema() []Field {
	return append([]Field(nil), lf.fields...)
}

// Columns returns the output column names without executing the plan.
func (lf *LazyFrame) Columns() []string {
	names := make([]string, len(lf.fields))
	for i, f := range lf.fields {
		names[i] = f.Name
	}
	return names
}

// HasColumn reports whether the output contains the named column.
func (lf *LazyFrame) HasColumn(name string) bool {
	_, ok := lf.field(name)
	return ok
}

func (lf *LazyFrame) field(name string) (Field, bool) {
	for _, f := range lf.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// SQL returns the compiled query for the plan.
func (lf *LazyFrame) SQL() string { return lf.plan }

// Select projects the given expressions, in order.
func (lf *LazyFrame) Select(exprs ...Expr) (*LazyFrame, error) {
	if len(exprs) == 0 {
		return nil, fmt.Errorf("select requires at least one expression")
	}

	fields := make([]Field, len(exprs))
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		in, ok := lf.field(e.column)
		if !ok {
			return nil, fmt.Errorf("column %q not found", e.column)
		}
		fields[i] = Field{Name: e.column, Type: e.resultType(in.Type)}
		parts[i] = e.sql()
	}
	if err := checkFieldNames(fields); err != nil {
		return nil, err
	}

	return &LazyFrame{
		ws:     lf.ws,
		plan:   fmt.Sprintf("SELECT %s FROM (%s) AS src", strings.Join(parts, ", "), lf.plan),
		fields: fields,
	}, nil
}

// Unique removes duplicate rows. With a subset, one arbitrary row is kept
// per distinct combination of the subset columns; without one, rows must be
// equal in every column to collapse.
func (lf *LazyFrame) Unique(subset ...string) (*LazyFrame, error) {
	if len(subset) == 0 {
		return &LazyFrame{
			ws:     lf.ws,
			plan:   fmt.Sprintf("SELECT DISTINCT * FROM (%s) AS src", lf.plan),
			fields: lf.Schema(),
		}, nil
	}

	keys := make([]string, len(subset))
	for i, name := range subset {
		if !lf.HasColumn(name) {
			return nil, fmt.Errorf("column %q not found", name)
		}
		keys[i] = QuoteIdent(name)
	}
	return &LazyFrame{
		ws:     lf.ws,
		plan:   fmt.Sprintf("SELECT DISTINCT ON (%s) * FROM (%s) AS src", strings.Join(keys, ", "), lf.plan),
		fields: lf.Schema(),
	}, nil
}

// Collect executes the plan and materializes the result.
func (lf *LazyFrame) Collect(ctx context.Context) (*Frame, error) {
	cols := make([]string, len(lf.fields))
	for i, f := range lf.fields {
		// Decimals travel as text so they keep their exact scale.
		if f.Type.Kind == schema.KindDecimal {
			cols[i] = fmt.Sprintf("CAST(%s AS VARCHAR) AS %s", QuoteIdent(f.Name), QuoteIdent(f.Name))
			continue
		}
		cols[i] = QuoteIdent(f.Name)
	}
	query := fmt.Sprintf("SELECT %s FROM (%s) AS src", strings.Join(cols, ", "), lf.plan)

	rows, err := lf.ws.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to collect frame: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var data [][]any
	for rows.Next() {
		values := make([]any, len(lf.fields))
		ptrs := make([]any, len(values))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		data = append(data, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to collect frame: %w", err)
	}

	return FromRows(lf.Schema(), data)
}

// Count executes the plan and returns its row count.
func (lf *LazyFrame) Count(ctx context.Context) (int64, error) {
	var n int64
	query := fmt.Sprintf("SELECT count(*) FROM (%s) AS src", lf.plan)
	if err := lf.ws.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return n, nil
}

// WriteParquet executes the plan and writes the result to a parquet file.
func (lf *LazyFrame) WriteParquet(ctx context.Context, path string) error {
	query := fmt.Sprintf("COPY (%s) TO %s (FORMAT PARQUET)", lf.plan, quoteLiteral(path))
	if _, err := lf.ws.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to write parquet %s: %w", path, err)
	}
	lf.ws.logger.Debug("wrote parquet", "path", path)
	return nil
}
