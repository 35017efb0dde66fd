package frame

import (
	"math/big"
	"testing"
	"time"

	"github.com/leapstack-labs/lookpipe/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	fields := []Field{
		{Name: "id", Type: schema.Int64},
		{Name: "name", Type: schema.String},
	}

	f, err := New(fields, [][]any{{int32(1), 2}, {"a", []byte("b")}})
	require.NoError(t, err)

	assert.Equal(t, 2, f.Height())
	assert.Equal(t, 2, f.Width())
	assert.Equal(t, []string{"id", "name"}, f.Columns())
	assert.Equal(t, []any{int64(2), "b"}, f.Row(1))

	ids, err := f.Column("id")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2)}, ids)

	_, err = f.Column("missing")
	assert.Error(t, err)
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name      string
		fields    []Field
		columns   [][]any
		errSubstr string
	}{
		{
			name:      "field count mismatch",
			fields:    []Field{{Name: "a", Type: schema.Int64}},
			columns:   [][]any{{1}, {2}},
			errSubstr: "1 fields but 2 columns",
		},
		{
			name:      "ragged columns",
			fields:    []Field{{Name: "a", Type: schema.Int64}, {Name: "b", Type: schema.Int64}},
			columns:   [][]any{{1, 2}, {3}},
			errSubstr: `column "b" has 1 values`,
		},
		{
			name:      "duplicate field",
			fields:    []Field{{Name: "a", Type: schema.Int64}, {Name: "a", Type: schema.Int64}},
			columns:   [][]any{{1}, {2}},
			errSubstr: `duplicate field "a"`,
		},
		{
			name:      "value of wrong type",
			fields:    []Field{{Name: "a", Type: schema.Int64}},
			columns:   [][]any{{"x"}},
			errSubstr: "cannot use string as Int64",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.fields, tt.columns)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestFromRows(t *testing.T) {
	fields := []Field{{Name: "name", Type: schema.String}, {Name: "age", Type: schema.Int64}}
	f, err := FromRows(fields, [][]any{{"Ana", 30}, {"Bia", 25}})
	require.NoError(t, err)
	assert.Equal(t, 2, f.Height())
	assert.Equal(t, []any{"Bia", int64(25)}, f.Row(1))

	_, err = FromRows(fields, [][]any{{"Ana"}})
	assert.Error(t, err)
}

func TestSeries_ToFrame(t *testing.T) {
	s := &Series{Name: "value", Type: schema.Int64, Values: []any{1, 2, 3}}
	f, err := s.ToFrame()
	require.NoError(t, err)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 1, f.Width())
	assert.Equal(t, 3, f.Height())
	field, ok := f.Field("value")
	require.True(t, ok)
	assert.Equal(t, schema.Int64, field.Type)
}

type fakeCivilDate struct{ y, m, d int }

func (c fakeCivilDate) In(loc *time.Location) time.Time {
	return time.Date(c.y, time.Month(c.m), c.d, 0, 0, 0, 0, loc)
}

func TestNormalize(t *testing.T) {
	ts := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value any
		typ   schema.DataType
		want  any
	}{
		{"nil", nil, schema.Int64, nil},
		{"int to Int64", 7, schema.Int64, int64(7)},
		{"uint32 to UInt32", uint32(7), schema.Primitive(schema.KindUInt32), uint64(7)},
		{"int64 to UInt8", int64(255), schema.Primitive(schema.KindUInt8), uint64(255)},
		{"big int", big.NewInt(42), schema.Int64, int64(42)},
		{"float32", float32(1.5), schema.Float64, 1.5},
		{"int to float", 2, schema.Float64, 2.0},
		{"bytes to string", []byte("x"), schema.String, "x"},
		{"categorical", "A", schema.Primitive(schema.KindCategorical), "A"},
		{"bool", true, schema.Boolean, true},
		{"datetime", ts, schema.Datetime, ts},
		{"date truncates", ts, schema.Date, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"civil date", fakeCivilDate{2024, 1, 2}, schema.Date, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"decimal from string", "10.5", schema.Decimal(10, 2), "10.50"},
		{"decimal from rat", big.NewRat(1, 4), schema.Decimal(10, 2), "0.25"},
		{"decimal from int", 3, schema.Decimal(5, 1), "3.0"},
		{"decimal from float", 2.5, schema.Decimal(5, 2), "2.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.value, tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_Errors(t *testing.T) {
	tests := []struct {
		name  string
		value any
		typ   schema.DataType
	}{
		{"overflow Int8", 200, schema.Primitive(schema.KindInt8)},
		{"overflow UInt16", uint32(70000), schema.Primitive(schema.KindUInt16)},
		{"negative unsigned", -1, schema.Primitive(schema.KindUInt32)},
		{"uint64 overflows Int64", uint64(1 << 63), schema.Int64},
		{"string as bool", "true", schema.Boolean},
		{"bad decimal", "abc", schema.Decimal(10, 2)},
		{"int as time", 5, schema.Datetime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.value, tt.typ)
			assert.Error(t, err)
		})
	}
}
