package frame

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/leapstack-labs/lookpipe/pkg/schema"
)

// civilTime is implemented by calendar types such as civil.Date and
// civil.DateTime returned by warehouse clients.
type civilTime interface {
	In(loc *time.Location) time.Time
}

// Normalize converts v into the value domain of t:
//
//	signed integers    int64
//	unsigned integers  uint64
//	floats             float64
//	String/Categorical string
//	Boolean            bool
//	Date/Datetime      time.Time (UTC, dates truncated to midnight)
//	Decimal            string, fixed to the type's scale
//
// nil stays nil.
func Normalize(v any, t schema.DataType) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch {
	case t.IsUnsigned():
		return toUint(v, t)
	case t.IsInteger():
		return toInt(v, t)
	case t.IsFloat():
		return toFloat(v)
	}

	switch t.Kind {
	case schema.KindString, schema.KindCategorical:
		return toString(v)
	case schema.KindBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("cannot use %T as %s", v, t)
		}
		return b, nil
	case schema.KindDate, schema.KindDatetime:
		return toTime(v, t)
	case schema.KindDecimal:
		return toDecimal(v, t)
	}
	return nil, fmt.Errorf("unsupported type %s", t)
}

func toInt(v any, t schema.DataType) (any, error) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int8:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case uint8:
		n = int64(x)
	case uint16:
		n = int64(x)
	case uint32:
		n = int64(x)
	case uint:
		if uint64(x) > math.MaxInt64 {
			return nil, fmt.Errorf("value %d overflows %s", x, t)
		}
		n = int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("value %d overflows %s", x, t)
		}
		n = int64(x)
	case *big.Int:
		if !x.IsInt64() {
			return nil, fmt.Errorf("value %s overflows %s", x, t)
		}
		n = x.Int64()
	default:
		return nil, fmt.Errorf("cannot use %T as %s", v, t)
	}

	bits := t.Bits()
	if bits < 64 {
		lo, hi := -(int64(1) << (bits - 1)), int64(1)<<(bits-1)-1
		if n < lo || n > hi {
			return nil, fmt.Errorf("value %d overflows %s", n, t)
		}
	}
	return n, nil
}

func toUint(v any, t schema.DataType) (any, error) {
	var n uint64
	negative := func(x int64) error { return fmt.Errorf("negative value %d for %s", x, t) }
	switch x := v.(type) {
	case uint:
		n = uint64(x)
	case uint8:
		n = uint64(x)
	case uint16:
		n = uint64(x)
	case uint32:
		n = uint64(x)
	case uint64:
		n = x
	case int, int8, int16, int32, int64:
		i := reflectInt(x)
		if i < 0 {
			return nil, negative(i)
		}
		n = uint64(i)
	case *big.Int:
		if !x.IsUint64() {
			return nil, fmt.Errorf("value %s overflows %s", x, t)
		}
		n = x.Uint64()
	default:
		return nil, fmt.Errorf("cannot use %T as %s", v, t)
	}

	if bits := t.Bits(); bits < 64 && n > uint64(1)<<bits-1 {
		return nil, fmt.Errorf("value %d overflows %s", n, t)
	}
	return n, nil
}

func reflectInt(v any) int64 {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	}
	return 0
}

func toFloat(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int, int8, int16, int32, int64:
		return float64(reflectInt(x)), nil
	case uint8:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case *big.Rat:
		f, _ := x.Float64()
		return f, nil
	}
	return nil, fmt.Errorf("cannot use %T as a float", v)
}

func toString(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case fmt.Stringer:
		return x.String(), nil
	}
	return nil, fmt.Errorf("cannot use %T as a string", v)
}

func toTime(v any, t schema.DataType) (any, error) {
	var ts time.Time
	switch x := v.(type) {
	case time.Time:
		ts = x.UTC()
	case civilTime:
		ts = x.In(time.UTC)
	default:
		return nil, fmt.Errorf("cannot use %T as %s", v, t)
	}
	if t.Kind == schema.KindDate {
		ts = time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	}
	return ts, nil
}

func toDecimal(v any, t schema.DataType) (any, error) {
	var r *big.Rat
	switch x := v.(type) {
	case string:
		parsed, ok := new(big.Rat).SetString(strings.TrimSpace(x))
		if !ok {
			return nil, fmt.Errorf("cannot parse %q as %s", x, t)
		}
		r = parsed
	case []byte:
		return toDecimal(string(x), t)
	case *big.Rat:
		r = x
	case float64:
		return strconv.FormatFloat(x, 'f', t.Scale, 64), nil
	case int, int8, int16, int32, int64:
		r = new(big.Rat).SetInt64(reflectInt(x))
	default:
		return nil, fmt.Errorf("cannot use %T as %s", v, t)
	}
	return r.FloatString(t.Scale), nil
}
