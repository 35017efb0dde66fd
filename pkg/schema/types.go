// Package schema resolves configured type descriptors into column types.
package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/lookpipe/pkg/core"
)

// Kind enumerates the column types a target schema may declare.
type Kind int

// Kind values.
const (
	KindInvalid Kind = iota
	KindUInt8
	KindUInt16
	KindUInt32
	KindUInt64
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindString
	KindCategorical
	KindDate
	KindDatetime
	KindBoolean
	KindDecimal
)

var kindNames = map[Kind]string{
	KindUInt8:       "UInt8",
	KindUInt16:      "UInt16",
	KindUInt32:      "UInt32",
	KindUInt64:      "UInt64",
	KindInt8:        "Int8",
	KindInt16:       "Int16",
	KindInt32:       "Int32",
	KindInt64:       "Int64",
	KindFloat32:     "Float32",
	KindFloat64:     "Float64",
	KindString:      "String",
	KindCategorical: "Categorical",
	KindDate:        "Date",
	KindDatetime:    "Datetime",
	KindBoolean:     "Boolean",
	KindDecimal:     "Decimal",
}

// primitives maps every non-parameterized descriptor to its kind.
var primitives = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		if k != KindDecimal {
			m[name] = k
		}
	}
	return m
}()

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// DataType is a resolved column type. Precision and Scale are only
// meaningful for KindDecimal.
type DataType struct {
	Kind      Kind
	Precision int
	Scale     int
}

// Primitive returns the DataType for a non-parameterized kind.
func Primitive(k Kind) DataType {
	return DataType{Kind: k}
}

// Decimal returns a decimal DataType with the given precision and scale.
func Decimal(precision, scale int) DataType {
	return DataType{Kind: KindDecimal, Precision: precision, Scale: scale}
}

// Common types used by adapters when describing warehouse results.
var (
	Int64    = Primitive(KindInt64)
	Float64  = Primitive(KindFloat64)
	String   = Primitive(KindString)
	Boolean  = Primitive(KindBoolean)
	Date     = Primitive(KindDate)
	Datetime = Primitive(KindDatetime)
)

// String renders the canonical descriptor, e.g. "UInt32" or "Decimal(10,2)".
func (t DataType) String() string {
	if t.Kind == KindDecimal {
		return fmt.Sprintf("Decimal(%d,%d)", t.Precision, t.Scale)
	}
	return t.Kind.String()
}

// SQL renders the DuckDB physical type used to hold values of t.
// Categorical columns are stored as VARCHAR.
func (t DataType) SQL() string {
	switch t.Kind {
	case KindUInt8:
		return "UTINYINT"
	case KindUInt16:
		return "USMALLINT"
	case KindUInt32:
		return "UINTEGER"
	case KindUInt64:
		return "UBIGINT"
	case KindInt8:
		return "TINYINT"
	case KindInt16:
		return "SMALLINT"
	case KindInt32:
		return "INTEGER"
	case KindInt64:
		return "BIGINT"
	case KindFloat32:
		return "FLOAT"
	case KindFloat64:
		return "DOUBLE"
	case KindString, KindCategorical:
		return "VARCHAR"
	case KindDate:
		return "DATE"
	case KindDatetime:
		return "TIMESTAMP"
	case KindBoolean:
		return "BOOLEAN"
	case KindDecimal:
		return fmt.Sprintf("DECIMAL(%d,%d)", t.Precision, t.Scale)
	default:
		return "VARCHAR"
	}
}

// IsTemporal reports whether t is a date or datetime type.
func (t DataType) IsTemporal() bool {
	return t.Kind == KindDate || t.Kind == KindDatetime
}

// IsInteger reports whether t is a signed or unsigned integer type.
func (t DataType) IsInteger() bool {
	return t.Kind >= KindUInt8 && t.Kind <= KindInt64
}

// IsUnsigned reports whether t is an unsigned integer type.
func (t DataType) IsUnsigned() bool {
	return t.Kind >= KindUInt8 && t.Kind <= KindUInt64
}

// IsFloat reports whether t is a floating point type.
func (t DataType) IsFloat() bool {
	return t.Kind == KindFloat32 || t.Kind == KindFloat64
}

// Bits returns the width of integer and float types, 0 otherwise.
func (t DataType) Bits() int {
	switch t.Kind {
	case KindUInt8, KindInt8:
		return 8
	case KindUInt16, KindInt16:
		return 16
	case KindUInt32, KindInt32, KindFloat32:
		return 32
	case KindUInt64, KindInt64, KindFloat64:
		return 64
	}
	return 0
}

// Resolve maps a textual type descriptor to a DataType.
//
// Primitive names are matched exactly and case-sensitively after trimming.
// Descriptors starting with "Decimal" must carry a "(precision, scale)" pair
// with precision >= scale >= 0. Everything else is a ConfigurationError.
func Resolve(descriptor string) (DataType, error) {
	desc := strings.TrimSpace(descriptor)

	if k, ok := primitives[desc]; ok {
		return Primitive(k), nil
	}

	if strings.HasPrefix(desc, "Decimal") {
		return resolveDecimal(desc)
	}

	return DataType{}, &core.ConfigurationError{
		Reason: fmt.Sprintf("unknown type descriptor %q", descriptor),
	}
}

// MaxDecimalPrecision is the widest decimal the workspace can hold.
const MaxDecimalPrecision = 38

func resolveDecimal(desc string) (DataType, error) {
	invalid := func(reason string) error {
		return &core.ConfigurationError{
			Reason: fmt.Sprintf("invalid decimal descriptor %q: %s", desc, reason),
		}
	}

	rest := strings.TrimSpace(strings.TrimPrefix(desc, "Decimal"))
	if !strings.HasPrefix(rest, "(") || !strings.HasSuffix(rest, ")") {
		return DataType{}, invalid("expected Decimal(precision, scale)")
	}

	parts := strings.Split(rest[1:len(rest)-1], ",")
	if len(parts) != 2 {
		return DataType{}, invalid("expected exactly two parameters")
	}

	precision, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return DataType{}, invalid("precision is not an integer")
	}
	scale, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return DataType{}, invalid("scale is not an integer")
	}

	if precision < 1 || precision > MaxDecimalPrecision {
		return DataType{}, invalid(fmt.Sprintf("precision must be between 1 and %d", MaxDecimalPrecision))
	}
	if scale < 0 {
		return DataType{}, invalid("scale must not be negative")
	}
	if precision < scale {
		return DataType{}, invalid(fmt.Sprintf("precision %d is smaller than scale %d", precision, scale))
	}

	return Decimal(precision, scale), nil
}
