// Package transform conforms raw tables to their configured target schema.
package transform

import (
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/lookpipe/pkg/core"
	"github.com/leapstack-labs/lookpipe/pkg/frame"
	"github.com/leapstack-labs/lookpipe/pkg/schema"
)

// DedupKey is the column used to deduplicate rows when present.
const DedupKey = "id"

// ProcessTable validates, casts, projects and deduplicates a raw table.
//
// Every target column must exist in the source; the first missing column
// fails with a SchemaError before any cast is built. Categorical columns are
// whitespace-stripped before the cast, temporal columns are cast leniently
// (unparseable values become null) and every other column is cast strictly.
// The output holds exactly the target columns in target order. Rows are
// deduplicated by the id column when the target schema keeps one, otherwise
// by whole-row equality. A source id column that the target drops is not a
// dedup key, since it no longer exists after the projection.
//
// The returned LazyFrame has not been executed.
func ProcessTable(lf *frame.LazyFrame, target schema.TargetSchema, table string, logger *slog.Logger) (*frame.LazyFrame, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if len(target) == 0 {
		return nil, &core.SchemaError{Table: table, Reason: "target schema has no columns"}
	}

	exprs := make([]frame.Expr, 0, len(target))
	for _, col := range target {
		if !lf.HasColumn(col.Name) {
			logger.Error("column not found", "table", table, "column", col.Name, "available", lf.Columns())
			return nil, &core.SchemaError{Table: table, Column: col.Name, Reason: "not found in source"}
		}

		dt, err := schema.Resolve(col.Type)
		if err != nil {
			logger.Error("failed to resolve column type", "column", table+"."+col.Name, "descriptor", col.Type, "error", err)
			return nil, fmt.Errorf("table %s column %s: %w", table, col.Name, err)
		}

		exprs = append(exprs, castExpr(col.Name, dt))
	}

	out, err := lf.Select(exprs...)
	if err != nil {
		return nil, fmt.Errorf("failed to project table %s: %w", table, err)
	}

	if out.HasColumn(DedupKey) {
		out, err = out.Unique(DedupKey)
	} else {
		out, err = out.Unique()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to deduplicate table %s: %w", table, err)
	}

	logger.Debug("table transform planned", "table", table, "columns", len(exprs))
	return out, nil
}

func castExpr(name string, dt schema.DataType) frame.Expr {
	col := frame.Col(name)
	switch {
	case dt.Kind == schema.KindCategorical:
		return col.StripChars().Cast(dt, true)
	case dt.IsTemporal():
		return col.Cast(dt, false)
	default:
		return col.Cast(dt, true)
	}
}
