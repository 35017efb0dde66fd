// Package frame provides the columnar datasets that flow between pipeline
// stages: materialized Frames, single-column Series and DuckDB-backed
// LazyFrames that defer work until Collect.
package frame

import (
	"fmt"

	"github.com/leapstack-labs/lookpipe/pkg/schema"
)

// Field describes one column of a dataset.
type Field struct {
	Name string
	Type schema.DataType
}

// Frame is a materialized columnar table with an explicit type per column.
// Frames are immutable once built.
type Frame struct {
	fields  []Field
	columns [][]any
	height  int
}

// New builds a Frame from column slices. Every column must have the same
// length and every value is normalized to its field type.
func New(fields []Field, columns [][]any) (*Frame, error) {
	if len(fields) != len(columns) {
		return nil, fmt.Errorf("frame has %d fields but %d columns", len(fields), len(columns))
	}
	if err := checkFieldNames(fields); err != nil {
		return nil, err
	}

	height := 0
	if len(columns) > 0 {
		height = len(columns[0])
	}

	out := make([][]any, len(columns))
	for i, col := range columns {
		if len(col) != height {
			return nil, fmt.Errorf("column %q has %d values, expected %d", fields[i].Name, len(col), height)
		}
		values := make([]any, height)
		for j, v := range col {
			nv, err := Normalize(v, fields[i].Type)
			if err != nil {
				return nil, fmt.Errorf("column %q row %d: %w", fields[i].Name, j, err)
			}
			values[j] = nv
		}
		out[i] = values
	}

	return &Frame{
		fields:  append([]Field(nil), fields...),
		columns: out,
		height:  height,
	}, nil
}

// FromRows builds a Frame from row-oriented values.
func FromRows(fields []Field, rows [][]any) (*Frame, error) {
	columns := make([][]any, len(fields))
	for i := range columns {
		columns[i] = make([]any, len(rows))
	}
	for r, row := range rows {
		if len(row) != len(fields) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", r, len(row), len(fields))
		}
		for c, v := range row {
			columns[c][r] = v
		}
	}
	return New(fields, columns)
}

func checkFieldNames(fields []Field) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return fmt.Errorf("field name must not be empty")
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// Height returns the number of rows.
func (f *Frame) Height() int { return f.height }

// Width returns the number of columns.
func (f *Frame) Width() int { return len(f.fields) }

// Fields returns a copy of the frame schema.
func (f *Frame) Fields() []Field { return append([]Field(nil), f.fields...) }

// Columns returns the column names in order.
func (f *Frame) Columns() []string {
	names := make([]string, len(f.fields))
	for i, fd := range f.fields {
		names[i] = fd.Name
	}
	return names
}

// Field returns the field with the given name.
func (f *Frame) Field(name string) (Field, bool) {
	for _, fd := range f.fields {
		if fd.Name == name {
			return fd, true
		}
	}
	return Field{}, false
}

// Column returns a copy of the values of the named column.
func (f *Frame) Column(name string) ([]any, error) {
	for i, fd := range f.fields {
		if fd.Name == name {
			return append([]any(nil), f.columns[i]...), nil
		}
	}
	return nil, fmt.Errorf("column %q not found", name)
}

// Row returns the values of row i in column order.
func (f *Frame) Row(i int) []any {
	row := make([]any, len(f.columns))
	for c, col := range f.columns {
		row[c] = col[i]
	}
	return row
}

// Series is a single named, typed column.
type Series struct {
	Name   string
	Type   schema.DataType
	Values []any
}

// Len returns the number of values in the series.
func (s *Series) Len() int { return len(s.Values) }

// ToFrame wraps the series into a one-column Frame.
func (s *Series) ToFrame() (*Frame, error) {
	return New([]Field{{Name: s.Name, Type: s.Type}}, [][]any{s.Values})
}
