// Package adapter provides the warehouse adapter contract used by the
// extractors, a registry of adapter factories and shared database/sql
// plumbing.
//
// Concrete adapter implementations are in pkg/adapters/ subdirectories and
// register themselves from init().
package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/leapstack-labs/lookpipe/pkg/frame"
)

// Config holds what an adapter needs to reach a warehouse.
type Config struct {
	// Type selects the registered adapter (bigquery, postgres, duckdb).
	Type string
	// CredentialsPath points at the credentials file for the warehouse.
	CredentialsPath string
	// Project overrides the billing project (BigQuery only).
	Project string
	// Dataset qualifies table names, e.g. "bigquery-public-data.thelook_ecommerce"
	// or a Postgres schema.
	Dataset string
	// Location is the processing location for BigQuery jobs.
	Location string
	Options  map[string]string
}

// Adapter is a read-only connection to a source warehouse.
type Adapter interface {
	// Connect authenticates with the credentials referenced by cfg.
	Connect(ctx context.Context, cfg Config) error

	// Close releases the connection.
	Close() error

	// Query runs sql with bound parameters and returns the full result.
	Query(ctx context.Context, sql string, params ...Param) (*Result, error)

	// Dialect returns how this warehouse spells placeholders and table names.
	Dialect() Dialect
}

// Param is a bound query parameter.
type Param struct {
	Name  string
	Value any
}

// Named returns a bound parameter.
func Named(name string, value any) Param {
	return Param{Name: name, Value: value}
}

// Result is a fully read query result with typed columns.
type Result struct {
	Fields []frame.Field
	Rows   [][]any
}

// Len returns the number of rows.
func (r *Result) Len() int { return len(r.Rows) }

// Column returns the values of column i.
func (r *Result) Column(i int) []any {
	values := make([]any, len(r.Rows))
	for j, row := range r.Rows {
		values[j] = row[i]
	}
	return values
}

// PlaceholderStyle selects how bound parameters are referenced in query text.
type PlaceholderStyle int

// Placeholder styles.
const (
	PlaceholderQuestion PlaceholderStyle = iota // ?
	PlaceholderDollar                           // $1
	PlaceholderAt                               // @name
)

// Dialect captures the query text differences between warehouses.
type Dialect struct {
	Name        string
	Placeholder PlaceholderStyle
	// PathQuote quotes a fully qualified path as a single identifier
	// (`project.dataset.table`) instead of quoting each part.
	PathQuote byte
	// CastDates wraps date placeholders in CAST(... AS DATE). Warehouses
	// that type an untyped string parameter from its comparison leave it
	// unset.
	CastDates bool
}

// FormatPlaceholder returns the placeholder for the parameter at position
// index (1-based) with the given name.
func (d Dialect) FormatPlaceholder(name string, index int) string {
	switch d.Placeholder {
	case PlaceholderDollar:
		return fmt.Sprintf("$%d", index)
	case PlaceholderAt:
		return "@" + name
	default:
		return "?"
	}
}

// DatePlaceholder returns the placeholder for a YYYY-MM-DD string parameter
// compared against a DATE or TIMESTAMP column.
func (d Dialect) DatePlaceholder(name string, index int) string {
	p := d.FormatPlaceholder(name, index)
	if d.CastDates {
		return "CAST(" + p + " AS DATE)"
	}
	return p
}

// QualifyTable returns the fully qualified, quoted table reference.
// Callers must validate table before calling.
func (d Dialect) QualifyTable(dataset, table string) string {
	if d.PathQuote != 0 {
		q := string(d.PathQuote)
		path := table
		if dataset != "" {
			path = dataset + "." + table
		}
		return q + strings.ReplaceAll(path, q, "") + q
	}

	var parts []string
	if dataset != "" {
		parts = strings.Split(dataset, ".")
	}
	parts = append(parts, table)
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}
