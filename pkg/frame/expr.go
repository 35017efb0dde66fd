package frame

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/lookpipe/pkg/schema"
)

// Expr is a column expression used in a LazyFrame projection.
type Expr struct {
	column string
	strip  bool
	cast   *castOp
}

type castOp struct {
	to     schema.DataType
	strict bool
}

// Col references a column by name.
func Col(name string) Expr {
	return Expr{column: name}
}

// StripChars removes leading and trailing whitespace. The value is treated as text.
func (e Expr) StripChars() Expr {
	e.strip = true
	return e
}

// Cast converts the expression to t. A strict cast fails the query on an
// unconvertible value; a non-strict cast yields null instead.
func (e Expr) Cast(t schema.DataType, strict bool) Expr {
	e.cast = &castOp{to: t, strict: strict}
	return e
}

// Name returns the output column name.
func (e Expr) Name() string { return e.column }

func (e Expr) String() string { return e.sql() }

func (e Expr) sql() string {
	out := QuoteIdent(e.column)
	if e.strip {
		out = fmt.Sprintf(`regexp_replace(CAST(%s AS VARCHAR), '^\s+|\s+$', '', 'g')`, out)
	}
	if e.cast != nil {
		fn := "TRY_CAST"
		if e.cast.strict {
			fn = "CAST"
		}
		out = fmt.Sprintf("%s(%s AS %s)", fn, out, e.cast.to.SQL())
	}
	return fmt.Sprintf("%s AS %s", out, QuoteIdent(e.column))
}

func (e Expr) resultType(in schema.DataType) schema.DataType {
	switch {
	case e.cast != nil:
		return e.cast.to
	case e.strip:
		return schema.String
	default:
		return in
	}
}

// QuoteIdent quotes a DuckDB identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
