package schema

import (
	"strconv"
	"strings"
)

var sqlNames = map[string]Kind{
	"UTINYINT":                 KindUInt8,
	"USMALLINT":                KindUInt16,
	"UINTEGER":                 KindUInt32,
	"UBIGINT":                  KindUInt64,
	"TINYINT":                  KindInt8,
	"INT1":                     KindInt8,
	"SMALLINT":                 KindInt16,
	"INT2":                     KindInt16,
	"INTEGER":                  KindInt32,
	"INT":                      KindInt32,
	"INT4":                     KindInt32,
	"BIGINT":                   KindInt64,
	"INT8":                     KindInt64,
	"HUGEINT":                  KindInt64,
	"FLOAT":                    KindFloat32,
	"FLOAT4":                   KindFloat32,
	"REAL":                     KindFloat32,
	"DOUBLE":                   KindFloat64,
	"FLOAT8":                   KindFloat64,
	"DOUBLE PRECISION":         KindFloat64,
	"VARCHAR":                  KindString,
	"TEXT":                     KindString,
	"BPCHAR":                   KindString,
	"CHAR":                     KindString,
	"UUID":                     KindString,
	"ENUM":                     KindCategorical,
	"DATE":                     KindDate,
	"TIMESTAMP":                KindDatetime,
	"TIMESTAMPTZ":              KindDatetime,
	"TIMESTAMP WITH TIME ZONE": KindDatetime,
	"DATETIME":                 KindDatetime,
	"BOOLEAN":                  KindBoolean,
	"BOOL":                     KindBoolean,
}

// FromSQL maps a database column type name (DuckDB or Postgres spelling)
// to a DataType. Unknown names map to String; ok reports whether the name
// was recognized.
func FromSQL(name string) (t DataType, ok bool) {
	n := strings.ToUpper(strings.TrimSpace(name))

	if strings.HasPrefix(n, "DECIMAL") || strings.HasPrefix(n, "NUMERIC") {
		return decimalFromSQL(n), true
	}
	if i := strings.IndexByte(n, '('); i > 0 {
		// VARCHAR(255), TIMESTAMP(6) and friends
		n = strings.TrimSpace(n[:i])
	}
	if k, found := sqlNames[n]; found {
		return Primitive(k), true
	}
	return String, false
}

func decimalFromSQL(n string) DataType {
	open, closing := strings.IndexByte(n, '('), strings.IndexByte(n, ')')
	if open < 0 || closing < open {
		return Decimal(38, 9)
	}
	parts := strings.Split(n[open+1:closing], ",")
	precision, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Decimal(38, 9)
	}
	scale := 0
	if len(parts) > 1 {
		if scale, err = strconv.Atoi(strings.TrimSpace(parts[1])); err != nil {
			return Decimal(38, 9)
		}
	}
	return Decimal(precision, scale)
}
