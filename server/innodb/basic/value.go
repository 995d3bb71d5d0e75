package basic

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Value is a single typed column value as stored in a clustered-index row or
// an undo record's pre-image. Comparisons drive B-tree key ordering.
type Value interface {
	Compare(other Value) int
	Raw() interface{}
	ToString() string
	Bytes() []byte
	IsNull() bool
	Int() int64
	Float64() float64
	String() string
	Bool() bool
	Type() ValueType
}

// minValue/maxValue are the sentinel keys used by the clustered index for
// its infimum/supremum slots (§4.6 node layout) — they compare below/above
// every real value regardless of type.
type minValue struct{}
type maxValue struct{}
type nullValue struct{}

func NewMinValue() Value { return minValue{} }
func NewMaxValue() Value { return maxValue{} }
func NewNull() Value     { return nullValue{} }

func (minValue) Type() ValueType      { return ValueTypeNull }
func (minValue) Raw() interface{}     { return nil }
func (minValue) ToString() string     { return "-inf" }
func (minValue) String() string       { return "-inf" }
func (minValue) Bytes() []byte        { return nil }
func (minValue) IsNull() bool         { return false }
func (minValue) Int() int64           { return math.MinInt64 }
func (minValue) Float64() float64     { return math.Inf(-1) }
func (minValue) Bool() bool           { return false }
func (minValue) Compare(o Value) int {
	if _, ok := o.(minValue); ok {
		return 0
	}
	return -1
}

func (maxValue) Type() ValueType  { return ValueTypeNull }
func (maxValue) Raw() interface{} { return nil }
func (maxValue) ToString() string { return "+inf" }
func (maxValue) String() string   { return "+inf" }
func (maxValue) Bytes() []byte    { return []byte{0xFF, 0xFF, 0xFF, 0xFF} }
func (maxValue) IsNull() bool     { return false }
func (maxValue) Int() int64       { return math.MaxInt64 }
func (maxValue) Float64() float64 { return math.Inf(1) }
func (maxValue) Bool() bool       { return true }
func (maxValue) Compare(o Value) int {
	if _, ok := o.(maxValue); ok {
		return 0
	}
	return 1
}

func (nullValue) Type() ValueType  { return ValueTypeNull }
func (nullValue) Raw() interface{} { return nil }
func (nullValue) ToString() string { return "NULL" }
func (nullValue) String() string   { return "NULL" }
func (nullValue) Bytes() []byte    { return nil }
func (nullValue) IsNull() bool     { return true }
func (nullValue) Int() int64       { return 0 }
func (nullValue) Float64() float64 { return 0 }
func (nullValue) Bool() bool       { return false }
func (nullValue) Compare(o Value) int {
	if _, ok := o.(nullValue); ok {
		return 0
	}
	return -1 // NULL sorts below every non-null value
}

// intValue covers TINYINT..BIGINT.
type intValue struct {
	v int64
	t ValueType
}

func NewIntValue(v int64, t ValueType) Value { return intValue{v: v, t: t} }
func NewInt64Value(v int64) Value            { return intValue{v: v, t: ValueTypeBigInt} }

func (v intValue) Type() ValueType  { return v.t }
func (v intValue) Raw() interface{} { return v.v }
func (v intValue) ToString() string { return fmt.Sprintf("%d", v.v) }
func (v intValue) String() string   { return v.ToString() }
func (v intValue) IsNull() bool     { return false }
func (v intValue) Int() int64       { return v.v }
func (v intValue) Float64() float64 { return float64(v.v) }
func (v intValue) Bool() bool       { return v.v != 0 }
func (v intValue) Bytes() []byte {
	b := make([]byte, 8)
	u := uint64(v.v) ^ (1 << 63) // flip sign bit so byte-order compares as signed order
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * (7 - i)))
	}
	return b
}
func (v intValue) Compare(o Value) int {
	if ov, ok := o.(intValue); ok {
		switch {
		case v.v < ov.v:
			return -1
		case v.v > ov.v:
			return 1
		default:
			return 0
		}
	}
	return compareFallback(v, o)
}

// floatValue covers FLOAT/DOUBLE.
type floatValue struct {
	v float64
	t ValueType
}

func NewFloatValue(v float64) Value { return floatValue{v: v, t: ValueTypeDouble} }

func (v floatValue) Type() ValueType  { return v.t }
func (v floatValue) Raw() interface{} { return v.v }
func (v floatValue) ToString() string { return fmt.Sprintf("%g", v.v) }
func (v floatValue) String() string   { return v.ToString() }
func (v floatValue) IsNull() bool     { return false }
func (v floatValue) Int() int64       { return int64(v.v) }
func (v floatValue) Float64() float64 { return v.v }
func (v floatValue) Bool() bool       { return v.v != 0 }
func (v floatValue) Bytes() []byte {
	bits := math.Float64bits(v.v)
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(bits >> (8 * (7 - i)))
	}
	return b
}
func (v floatValue) Compare(o Value) int {
	if ov, ok := o.(floatValue); ok {
		switch {
		case v.v < ov.v:
			return -1
		case v.v > ov.v:
			return 1
		default:
			return 0
		}
	}
	return compareFallback(v, o)
}

// decimalValue backs DECIMAL columns via shopspring/decimal so fixed-point
// arithmetic (e.g. money columns) never drifts through float64.
type decimalValue struct {
	v decimal.Decimal
}

func NewDecimalValue(v decimal.Decimal) Value { return decimalValue{v: v} }

func NewDecimalFromString(s string) (Value, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return decimalValue{v: d}, nil
}

func (v decimalValue) Type() ValueType  { return ValueTypeDecimal }
func (v decimalValue) Raw() interface{} { return v.v }
func (v decimalValue) ToString() string { return v.v.String() }
func (v decimalValue) String() string   { return v.v.String() }
func (v decimalValue) IsNull() bool     { return false }
func (v decimalValue) Int() int64       { return v.v.IntPart() }
func (v decimalValue) Float64() float64 { f, _ := v.v.Float64(); return f }
func (v decimalValue) Bool() bool       { return !v.v.IsZero() }
func (v decimalValue) Bytes() []byte    { return []byte(v.v.String()) }
func (v decimalValue) Compare(o Value) int {
	if ov, ok := o.(decimalValue); ok {
		return v.v.Cmp(ov.v)
	}
	return compareFallback(v, o)
}

// stringValue covers CHAR/VARCHAR/TEXT and, with ValueTypeBinary/VARBINARY,
// opaque byte payloads.
type stringValue struct {
	v []byte
	t ValueType
}

func NewStringValue(s string) Value { return stringValue{v: []byte(s), t: ValueTypeVarchar} }
func NewBytesValue(b []byte) Value  { return stringValue{v: b, t: ValueTypeVarBinary} }

func (v stringValue) Type() ValueType  { return v.t }
func (v stringValue) Raw() interface{} { return string(v.v) }
func (v stringValue) ToString() string { return string(v.v) }
func (v stringValue) String() string   { return string(v.v) }
func (v stringValue) IsNull() bool     { return false }
func (v stringValue) Bytes() []byte    { return v.v }
func (v stringValue) Bool() bool       { return len(v.v) > 0 }
func (v stringValue) Int() int64 {
	var n int64
	fmt.Sscanf(string(v.v), "%d", &n)
	return n
}
func (v stringValue) Float64() float64 {
	var f float64
	fmt.Sscanf(string(v.v), "%g", &f)
	return f
}
func (v stringValue) Compare(o Value) int {
	if ov, ok := o.(stringValue); ok {
		n := len(v.v)
		if len(ov.v) < n {
			n = len(ov.v)
		}
		for i := 0; i < n; i++ {
			if v.v[i] != ov.v[i] {
				if v.v[i] < ov.v[i] {
					return -1
				}
				return 1
			}
		}
		switch {
		case len(v.v) < len(ov.v):
			return -1
		case len(v.v) > len(ov.v):
			return 1
		default:
			return 0
		}
	}
	return compareFallback(v, o)
}

// compareFallback orders values of differing concrete kinds by the sentinel
// rule NULL < everything < MAX, falling back to raw-bytes comparison for two
// otherwise-incomparable concrete types (should not happen within one
// column, but keeps Compare total).
func compareFallback(a, b Value) int {
	if _, ok := b.(minValue); ok {
		return 1
	}
	if _, ok := b.(maxValue); ok {
		return -1
	}
	if _, ok := b.(nullValue); ok {
		return 1
	}
	ab, bb := a.Bytes(), b.Bytes()
	n := len(ab)
	if len(bb) < n {
		n = len(bb)
	}
	for i := 0; i < n; i++ {
		if ab[i] != bb[i] {
			if ab[i] < bb[i] {
				return -1
			}
			return 1
		}
	}
	return len(ab) - len(bb)
}

// NewValue builds a Value from a Go native, dispatching on concrete type —
// the single call-site match the spec's §9 design note asks for instead of
// per-type virtual dispatch spread across callers.
func NewValue(v interface{}) Value {
	switch x := v.(type) {
	case nil:
		return nullValue{}
	case bool:
		if x {
			return intValue{v: 1, t: ValueTypeBoolean}
		}
		return intValue{v: 0, t: ValueTypeBoolean}
	case int:
		return intValue{v: int64(x), t: ValueTypeInt}
	case int32:
		return intValue{v: int64(x), t: ValueTypeInt}
	case int64:
		return intValue{v: x, t: ValueTypeBigInt}
	case uint32:
		return intValue{v: int64(x), t: ValueTypeInt}
	case uint64:
		return intValue{v: int64(x), t: ValueTypeBigInt}
	case float32:
		return floatValue{v: float64(x), t: ValueTypeFloat}
	case float64:
		return floatValue{v: x, t: ValueTypeDouble}
	case decimal.Decimal:
		return decimalValue{v: x}
	case string:
		return stringValue{v: []byte(x), t: ValueTypeVarchar}
	case []byte:
		return stringValue{v: x, t: ValueTypeVarBinary}
	default:
		return stringValue{v: []byte(fmt.Sprintf("%v", x)), t: ValueTypeVarchar}
	}
}
