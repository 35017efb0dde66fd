package schema

import (
	"errors"
	"testing"

	"github.com/leapstack-labs/lookpipe/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestResolve_Primitives(t *testing.T) {
	tests := []struct {
		descriptor string
		want       Kind
		sql        string
	}{
		{"UInt8", KindUInt8, "UTINYINT"},
		{"UInt16", KindUInt16, "USMALLINT"},
		{"UInt32", KindUInt32, "UINTEGER"},
		{"UInt64", KindUInt64, "UBIGINT"},
		{"Int8", KindInt8, "TINYINT"},
		{"Int16", KindInt16, "SMALLINT"},
		{"Int32", KindInt32, "INTEGER"},
		{"Int64", KindInt64, "BIGINT"},
		{"Float32", KindFloat32, "FLOAT"},
		{"Float64", KindFloat64, "DOUBLE"},
		{"String", KindString, "VARCHAR"},
		{"Categorical", KindCategorical, "VARCHAR"},
		{"Date", KindDate, "DATE"},
		{"Datetime", KindDatetime, "TIMESTAMP"},
		{"Boolean", KindBoolean, "BOOLEAN"},
		{"  Int64\t", KindInt64, "BIGINT"},
	}

	for _, tt := range tests {
		t.Run(tt.descriptor, func(t *testing.T) {
			got, err := Resolve(tt.descriptor)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Kind)
			assert.Equal(t, tt.sql, got.SQL())
		})
	}
}

func TestResolve_Decimal(t *testing.T) {
	tests := []struct {
		name       string
		descriptor string
		precision  int
		scale      int
	}{
		{"compact", "Decimal(10,2)", 10, 2},
		{"spaced", "Decimal(10, 2)", 10, 2},
		{"padded", "  Decimal( 38 , 9 )  ", 38, 9},
		{"equal precision and scale", "Decimal(5,5)", 5, 5},
		{"zero scale", "Decimal(12,0)", 12, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.descriptor)
			require.NoError(t, err)
			assert.Equal(t, Decimal(tt.precision, tt.scale), got)
		})
	}

	got, err := Resolve("Decimal(10,2)")
	require.NoError(t, err)
	assert.Equal(t, "DECIMAL(10,2)", got.SQL())
	assert.Equal(t, "Decimal(10,2)", got.String())
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name       string
		descriptor string
		errSubstr  string
	}{
		{"unknown", "TipoInexistente", "unknown type descriptor"},
		{"wrong case", "int64", "unknown type descriptor"},
		{"empty", "", "unknown type descriptor"},
		{"precision below scale", "Decimal(2,5)", "smaller than scale"},
		{"missing parameters", "Decimal", "expected Decimal(precision, scale)"},
		{"single parameter", "Decimal(10)", "exactly two parameters"},
		{"three parameters", "Decimal(10,2,1)", "exactly two parameters"},
		{"non-integer precision", "Decimal(a,2)", "precision is not an integer"},
		{"non-integer scale", "Decimal(10,b)", "scale is not an integer"},
		{"negative scale", "Decimal(10,-1)", "scale must not be negative"},
		{"zero precision", "Decimal(0,0)", "precision must be between 1 and 38"},
		{"precision too wide", "Decimal(40,2)", "precision must be between 1 and 38"},
		{"unclosed", "Decimal(10,2", "expected Decimal(precision, scale)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.descriptor)
			require.Error(t, err)

			var cfgErr *core.ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigurationError, got %T", err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestDataType_Predicates(t *testing.T) {
	assert.True(t, Primitive(KindDate).IsTemporal())
	assert.True(t, Primitive(KindDatetime).IsTemporal())
	assert.False(t, Primitive(KindString).IsTemporal())

	assert.True(t, Primitive(KindUInt8).IsUnsigned())
	assert.True(t, Primitive(KindUInt8).IsInteger())
	assert.False(t, Primitive(KindInt8).IsUnsigned())
	assert.True(t, Primitive(KindInt8).IsInteger())
	assert.False(t, Decimal(10, 2).IsInteger())

	assert.Equal(t, 32, Primitive(KindUInt32).Bits())
	assert.Equal(t, 0, Primitive(KindString).Bits())
}

func TestTargetSchema_YAMLKeepsOrder(t *testing.T) {
	doc := `
orders:
  order_id: UInt32
  user_id: UInt32
  status: Categorical
  created_at: Datetime
  amount: Decimal(10, 2)
`
	var schemas map[string]TargetSchema
	require.NoError(t, yaml.Unmarshal([]byte(doc), &schemas))

	orders := schemas["orders"]
	assert.Equal(t, []string{"order_id", "user_id", "status", "created_at", "amount"}, orders.Names())
	assert.Equal(t, "Decimal(10, 2)", orders[4].Type)

	types, err := orders.Resolve()
	require.NoError(t, err)
	assert.Equal(t, Decimal(10, 2), types[4])
}

func TestTargetSchema_YAMLSequence(t *testing.T) {
	doc := `
- name: id
  type: Int64
- name: name
  type: String
`
	var s TargetSchema
	require.NoError(t, yaml.Unmarshal([]byte(doc), &s))
	assert.Equal(t, TargetSchema{{Name: "id", Type: "Int64"}, {Name: "name", Type: "String"}}, s)
}

func TestTargetSchema_YAMLDuplicateColumn(t *testing.T) {
	doc := "id: Int64\nid: UInt32\n"
	var s TargetSchema
	err := yaml.Unmarshal([]byte(doc), &s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate column")
}

func TestTargetSchema_ResolveNamesColumn(t *testing.T) {
	s := TargetSchema{{Name: "id", Type: "Int64"}, {Name: "price", Type: "Money"}}
	_, err := s.Resolve()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column price")

	var cfgErr *core.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestTargetSchema_MarshalRoundTripOrder(t *testing.T) {
	s := TargetSchema{{Name: "z", Type: "String"}, {Name: "a", Type: "Int8"}}
	out, err := yaml.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, "z: String\na: Int8\n", string(out))
}
