package frame

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/leapstack-labs/lookpipe/pkg/schema"
	"github.com/marcboeker/go-duckdb"
)

// Workspace is an in-process DuckDB database that hosts LazyFrames.
// It is safe for concurrent use.
type Workspace struct {
	db     *sql.DB
	logger *slog.Logger

	mu     sync.Mutex
	tables map[string][]Field
	seq    int
}

// NewWorkspace opens a DuckDB database at path. An empty path or ":memory:"
// opens an in-memory database.
func NewWorkspace(ctx context.Context, path string, logger *slog.Logger) (*Workspace, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if path == ":memory:" {
		path = ""
	}

	connector, err := duckdb.NewConnector(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb workspace: %w", err)
	}
	db := sql.OpenDB(connector)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping duckdb workspace: %w", err)
	}

	logger.Debug("workspace opened", "path", path)
	return &Workspace{
		db:     db,
		logger: logger,
		tables: make(map[string][]Field),
	}, nil
}

// Close releases the underlying database.
func (w *Workspace) Close() error {
	if w.db == nil {
		return nil
	}
	w.logger.Debug("closing workspace")
	return w.db.Close()
}

// TempName returns a table name unique within the workspace.
func (w *Workspace) TempName(prefix string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seq++
	return fmt.Sprintf("%s_%d", prefix, w.seq)
}

// stagingType is the column type used while appending; narrower integer,
// float and decimal types are applied afterwards with ALTER TABLE.
func stagingType(t schema.DataType) string {
	switch {
	case t.IsUnsigned():
		return "UBIGINT"
	case t.IsInteger():
		return "BIGINT"
	case t.IsFloat():
		return "DOUBLE"
	case t.Kind == schema.KindDecimal:
		return "VARCHAR"
	}
	return t.SQL()
}

// Register loads f into a workspace table named name, replacing any table
// of the same name, and returns a LazyFrame scanning it.
func (w *Workspace) Register(ctx context.Context, name string, f *Frame) (*LazyFrame, error) {
	if f.Width() == 0 {
		return nil, fmt.Errorf("cannot register %s: frame has no columns", name)
	}

	defs := make([]string, len(f.fields))
	for i, fd := range f.fields {
		defs[i] = fmt.Sprintf("%s %s", QuoteIdent(fd.Name), stagingType(fd.Type))
	}
	ddl := fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", QuoteIdent(name), strings.Join(defs, ", "))
	if _, err := w.db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", name, err)
	}

	if err := w.appendRows(ctx, name, f); err != nil {
		return nil, err
	}

	for _, fd := range f.fields {
		if stagingType(fd.Type) == fd.Type.SQL() {
			continue
		}
		alter := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DATA TYPE %s",
			QuoteIdent(name), QuoteIdent(fd.Name), fd.Type.SQL())
		if _, err := w.db.ExecContext(ctx, alter); err != nil {
			return nil, fmt.Errorf("failed to set type of %s.%s: %w", name, fd.Name, err)
		}
	}

	w.mu.Lock()
	w.tables[name] = f.Fields()
	w.mu.Unlock()

	w.logger.Debug("registered frame", "table", name, "rows", f.Height(), "columns", f.Width())
	return w.Scan(name)
}

func (w *Workspace) appendRows(ctx context.Context, name string, f *Frame) error {
	conn, err := w.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	return conn.Raw(func(driverConn any) error {
		dc, ok := driverConn.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		appender, err := duckdb.NewAppenderFromConn(dc, "", name)
		if err != nil {
			return fmt.Errorf("failed to create appender for %s: %w", name, err)
		}

		row := make([]driver.Value, f.Width())
		for r := 0; r < f.Height(); r++ {
			for c := range f.columns {
				row[c] = f.columns[c][r]
			}
			if err := appender.AppendRow(row...); err != nil {
				_ = appender.Close()
				return fmt.Errorf("failed to append row %d to %s: %w", r, name, err)
			}
		}
		if err := appender.Close(); err != nil {
			return fmt.Errorf("failed to flush appender for %s: %w", name, err)
		}
		return nil
	})
}

// Scan returns a LazyFrame over a table previously registered in the workspace.
func (w *Workspace) Scan(name string) (*LazyFrame, error) {
	w.mu.Lock()
	fields, ok := w.tables[name]
	w.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("table %q is not registered in the workspace", name)
	}
	return &LazyFrame{
		ws:     w,
		plan:   "SELECT * FROM " + QuoteIdent(name),
		fields: append([]Field(nil), fields...),
	}, nil
}

// Drop removes a registered table.
func (w *Workspace) Drop(ctx context.Context, name string) error {
	if _, err := w.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+QuoteIdent(name)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", name, err)
	}
	w.mu.Lock()
	delete(w.tables, name)
	w.mu.Unlock()
	return nil
}
