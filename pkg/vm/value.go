package vm

import (
	"math"
)

type ValueType uint8

const (
	TypeUndefined ValueType = iota
	TypeNull
	TypeBoolean
	TypeInteger // int32
	TypeFloat   // float64
	TypeBigInt  // int64
	TypeSymbol  // interned symbol id
	TypeString  // string cell handle
	TypeObject  // heap object handle
)

// String returns a human-readable name of the ValueType
func (vt ValueType) String() string {
	switch vt {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeBoolean:
		return "boolean"
	case TypeInteger, TypeFloat:
		return "number"
	case TypeBigInt:
		return "bigint"
	case TypeSymbol:
		return "symbol"
	case TypeString:
		return "string"
	case TypeObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is the engine's fixed-width tagged scalar. It is copied everywhere;
// string and object variants refer to cells owned by the Runtime's heap.
type Value struct {
	typ     ValueType
	payload uint64
}

var (
	Undefined = Value{typ: TypeUndefined}
	Null      = Value{typ: TypeNull}
	True      = Value{typ: TypeBoolean, payload: 1}
	False     = Value{typ: TypeBoolean, payload: 0}
	NaN       = Value{typ: TypeFloat, payload: math.Float64bits(math.NaN())}
)

func IntegerValue(v int32) Value {
	return Value{typ: TypeInteger, payload: uint64(uint32(v))}
}

func NumberValue(v float64) Value {
	return Value{typ: TypeFloat, payload: math.Float64bits(v)}
}

// NumericValue returns an Int32 value when f is an integral number that fits
// (and is not -0), otherwise a Float64 value.
func NumericValue(f float64) Value {
	if f >= math.MinInt32 && f <= math.MaxInt32 {
		i := int32(f)
		if float64(i) == f && (i != 0 || !math.Signbit(f)) {
			return IntegerValue(i)
		}
	}
	return NumberValue(f)
}

func BooleanValue(b bool) Value {
	if b {
		return True
	}
	return False
}

func BigIntValue(v int64) Value {
	return Value{typ: TypeBigInt, payload: uint64(v)}
}

func SymbolValue(id SymbolID) Value {
	return Value{typ: TypeSymbol, payload: uint64(id)}
}

func stringValue(h Handle) Value {
	return Value{typ: TypeString, payload: uint64(h)}
}

func objectValue(h Handle) Value {
	return Value{typ: TypeObject, payload: uint64(h)}
}

func (v Value) Type() ValueType { return v.typ }

func (v Value) IsUndefined() bool { return v.typ == TypeUndefined }
func (v Value) IsNull() bool      { return v.typ == TypeNull }
func (v Value) IsNullish() bool   { return v.typ == TypeUndefined || v.typ == TypeNull }
func (v Value) IsBoolean() bool   { return v.typ == TypeBoolean }
func (v Value) IsInteger() bool   { return v.typ == TypeInteger }
func (v Value) IsFloat() bool     { return v.typ == TypeFloat }
func (v Value) IsNumber() bool    { return v.typ == TypeInteger || v.typ == TypeFloat }
func (v Value) IsBigInt() bool    { return v.typ == TypeBigInt }
func (v Value) IsSymbol() bool    { return v.typ == TypeSymbol }
func (v Value) IsString() bool    { return v.typ == TypeString }
func (v Value) IsObject() bool    { return v.typ == TypeObject }

// IsHeap reports whether the value refers to a GC-tracked cell.
func (v Value) IsHeap() bool { return v.typ == TypeString || v.typ == TypeObject }

func (v Value) AsBoolean() bool { return v.payload != 0 }

func (v Value) AsInteger() int32 { return int32(uint32(v.payload)) }

// AsFloat returns the numeric value of an Int32 or Float64 value.
func (v Value) AsFloat() float64 {
	if v.typ == TypeInteger {
		return float64(v.AsInteger())
	}
	return math.Float64frombits(v.payload)
}

func (v Value) AsBigInt() int64 { return int64(v.payload) }

func (v Value) AsSymbol() SymbolID { return SymbolID(v.payload) }

// Handle returns the heap handle of a string or object value.
func (v Value) Handle() Handle { return Handle(v.payload) }

// numberEquals implements IEEE754 equality over the two numeric variants:
// NaN is unequal to itself and the two zeros are equal.
func numberEquals(a, b Value) bool {
	if a.typ == TypeInteger && b.typ == TypeInteger {
		return a.payload == b.payload
	}
	return a.AsFloat() == b.AsFloat()
}

// sameValueZero differs from numberEquals only in treating NaN as equal to NaN.
func sameValueZeroNumber(a, b Value) bool {
	fa, fb := a.AsFloat(), b.AsFloat()
	if math.IsNaN(fa) && math.IsNaN(fb) {
		return true
	}
	return fa == fb
}
