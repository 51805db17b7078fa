package vm

import (
	"fmt"
	"math"
	"strings"
	"testing"
	"unsafe"
)

// Helper function to check for panics using standard library
func expectPanic(t *testing.T, fn func(), containsMsg string) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Errorf("Expected a panic, but function did not panic")
			return
		}
		if containsMsg != "" {
			var panicMsg string
			switch v := r.(type) {
			case string:
				panicMsg = v
			case error:
				panicMsg = v.Error()
			default:
				panicMsg = fmt.Sprintf("%v", r)
			}
			if !strings.Contains(panicMsg, containsMsg) {
				t.Errorf("Panic message mismatch.\nExpected to contain: %q\nActual: %q", containsMsg, panicMsg)
			}
		}
	}()
	fn()
}

// Helper to compare floats, treating NaN as equal to NaN
func floatsEqual(t *testing.T, expected, actual float64, msgAndArgs ...interface{}) {
	t.Helper()
	if math.IsNaN(expected) {
		if !math.IsNaN(actual) {
			t.Errorf("Expected NaN, got %v. %s", actual, fmt.Sprint(msgAndArgs...))
		}
		return
	}
	if math.IsNaN(actual) {
		t.Errorf("Expected %v, got NaN. %s", expected, fmt.Sprint(msgAndArgs...))
		return
	}
	if expected != actual {
		t.Errorf("Float mismatch. Expected %v, got %v. %s", expected, actual, fmt.Sprint(msgAndArgs...))
	}
}

func TestValueSize(t *testing.T) {
	if got := unsafe.Sizeof(Value{}); got != 16 {
		t.Errorf("Value size = %d bytes, want 16", got)
	}
}

func TestConstants(t *testing.T) {
	var zero Value
	if !zero.IsUndefined() {
		t.Errorf("zero Value should be undefined, got type %v", zero.Type())
	}
	if !Null.IsNull() || !Null.IsNullish() {
		t.Errorf("Null should be null and nullish")
	}
	if !True.IsBoolean() || !True.AsBoolean() {
		t.Errorf("True should be boolean true")
	}
	if !False.IsBoolean() || False.AsBoolean() {
		t.Errorf("False should be boolean false")
	}
	if !NaN.IsFloat() || !math.IsNaN(NaN.AsFloat()) {
		t.Errorf("NaN should be a float NaN")
	}
	if Undefined.IsHeap() || Null.IsHeap() {
		t.Errorf("undefined and null are not heap values")
	}
}

func TestNumberValues(t *testing.T) {
	testCases := []struct {
		name    string
		in      float64
		wantInt bool
	}{
		{"small integer", 42, true},
		{"negative integer", -7, true},
		{"zero", 0, true},
		{"negative zero", math.Copysign(0, -1), false},
		{"fraction", 1.5, false},
		{"int32 max", math.MaxInt32, true},
		{"above int32", math.MaxInt32 + 1, false},
		{"int32 min", math.MinInt32, true},
		{"infinity", math.Inf(1), false},
		{"nan", math.NaN(), false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v := NumericValue(tc.in)
			if v.IsInteger() != tc.wantInt {
				t.Errorf("NumericValue(%v).IsInteger() = %v, want %v", tc.in, v.IsInteger(), tc.wantInt)
			}
			if !v.IsNumber() {
				t.Errorf("NumericValue(%v) is not a number", tc.in)
			}
			floatsEqual(t, tc.in, v.AsFloat(), tc.name)
		})
	}

	if got := IntegerValue(-5).AsInteger(); got != -5 {
		t.Errorf("IntegerValue(-5).AsInteger() = %d", got)
	}
	if got := IntegerValue(-5).AsFloat(); got != -5 {
		t.Errorf("IntegerValue(-5).AsFloat() = %v", got)
	}
	if !math.Signbit(NumberValue(math.Copysign(0, -1)).AsFloat()) {
		t.Errorf("NumberValue should keep the sign of -0")
	}
}

func TestBigIntValue(t *testing.T) {
	v := BigIntValue(math.MinInt64)
	if !v.IsBigInt() || v.AsBigInt() != math.MinInt64 {
		t.Errorf("BigIntValue round trip failed: %v", v.AsBigInt())
	}
	if v.IsNumber() {
		t.Errorf("bigint must not be a number")
	}
}

func TestValueTypeNames(t *testing.T) {
	testCases := []struct {
		typ  ValueType
		want string
	}{
		{TypeUndefined, "undefined"},
		{TypeNull, "null"},
		{TypeBoolean, "boolean"},
		{TypeInteger, "number"},
		{TypeFloat, "number"},
		{TypeBigInt, "bigint"},
		{TypeSymbol, "symbol"},
		{TypeString, "string"},
		{TypeObject, "object"},
	}
	for _, tc := range testCases {
		if got := tc.typ.String(); got != tc.want {
			t.Errorf("ValueType(%d).String() = %q, want %q", tc.typ, got, tc.want)
		}
	}
}

func TestTypeOf(t *testing.T) {
	rt := newTestRuntime(t)
	fn := rt.NewNativeFunction("f", 0, func(*CallContext, Value, []Value) (Value, error) { return Undefined, nil })
	testCases := []struct {
		name string
		v    Value
		want string
	}{
		{"undefined", Undefined, "undefined"},
		{"null", Null, "object"},
		{"boolean", True, "boolean"},
		{"integer", IntegerValue(1), "number"},
		{"float", NumberValue(1.5), "number"},
		{"bigint", BigIntValue(1), "bigint"},
		{"symbol", SymbolValue(SymbolIterator), "symbol"},
		{"string", rt.String("x"), "string"},
		{"object", rt.NewPlainObject(), "object"},
		{"function", fn, "function"},
	}
	for _, tc := range testCases {
		if got := rt.TypeOf(tc.v); got != tc.want {
			t.Errorf("%s: TypeOf = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestToStringConversion(t *testing.T) {
	rt := newTestRuntime(t)
	testCases := []struct {
		name string
		v    Value
		want string
	}{
		{"undefined", Undefined, "undefined"},
		{"null", Null, "null"},
		{"true", True, "true"},
		{"false", False, "false"},
		{"integer", IntegerValue(-12), "-12"},
		{"fraction", NumberValue(0.5), "0.5"},
		{"whole float", NumberValue(3), "3"},
		{"negative zero", NumberValue(math.Copysign(0, -1)), "0"},
		{"nan", NaN, "NaN"},
		{"infinity", NumberValue(math.Inf(1)), "Infinity"},
		{"negative infinity", NumberValue(math.Inf(-1)), "-Infinity"},
		{"large", NumberValue(1e21), "1e+21"},
		{"bigint", BigIntValue(12345678901234), "12345678901234"},
		{"string", rt.String("abc"), "abc"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := rt.ToGoString(tc.v)
			if err != nil {
				t.Fatalf("ToGoString(%s) failed: %v", tc.name, err)
			}
			if got != tc.want {
				t.Errorf("ToGoString(%s) = %q, want %q", tc.name, got, tc.want)
			}
		})
	}
}

func TestToNumberConversion(t *testing.T) {
	rt := newTestRuntime(t)
	testCases := []struct {
		name string
		v    Value
		want float64
	}{
		{"undefined", Undefined, math.NaN()},
		{"null", Null, 0},
		{"true", True, 1},
		{"false", False, 0},
		{"integer", IntegerValue(7), 7},
		{"empty string", rt.String(""), 0},
		{"spaces", rt.String("  12  "), 12},
		{"hex", rt.String("0x1f"), 31},
		{"float string", rt.String("1.25"), 1.25},
		{"junk", rt.String("12px"), math.NaN()},
		{"infinity", rt.String("-Infinity"), math.Inf(-1)},
	}
	for _, tc := range testCases {
		got, err := rt.ToNumber(tc.v)
		if err != nil {
			t.Fatalf("ToNumber(%s) failed: %v", tc.name, err)
		}
		floatsEqual(t, tc.want, got, tc.name)
	}

	if _, err := rt.ToNumber(SymbolValue(SymbolIterator)); err == nil {
		t.Errorf("ToNumber(symbol) should throw")
	}
}

func TestToBoolean(t *testing.T) {
	rt := newTestRuntime(t)
	testCases := []struct {
		name string
		v    Value
		want bool
	}{
		{"undefined", Undefined, false},
		{"null", Null, false},
		{"zero", IntegerValue(0), false},
		{"negative zero", NumberValue(math.Copysign(0, -1)), false},
		{"nan", NaN, false},
		{"one", IntegerValue(1), true},
		{"empty string", rt.String(""), false},
		{"string", rt.String("0"), true},
		{"bigint zero", BigIntValue(0), false},
		{"bigint", BigIntValue(3), true},
		{"object", rt.NewPlainObject(), true},
		{"symbol", SymbolValue(SymbolIterator), true},
	}
	for _, tc := range testCases {
		if got := rt.ToBoolean(tc.v); got != tc.want {
			t.Errorf("ToBoolean(%s) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestStrictEquals(t *testing.T) {
	rt := newTestRuntime(t)
	obj1 := rt.NewPlainObject()
	obj2 := rt.NewPlainObject()
	negZero := NumberValue(math.Copysign(0, -1))

	testCases := []struct {
		name string
		v1   Value
		v2   Value
		want bool
	}{
		{"undefined", Undefined, Undefined, true},
		{"null", Null, Null, true},
		{"undefined vs null", Undefined, Null, false},
		{"true vs false", True, False, false},
		{"int vs int", IntegerValue(5), IntegerValue(5), true},
		{"int vs float", IntegerValue(5), NumberValue(5), true},
		{"nan vs nan", NaN, NaN, false},
		{"+0 vs -0", IntegerValue(0), negZero, true},
		{"bigint vs bigint", BigIntValue(7), BigIntValue(7), true},
		{"bigint vs number", BigIntValue(7), IntegerValue(7), false},
		{"equal strings in distinct cells", rt.String("a"), rt.String("a"), true},
		{"different strings", rt.String("a"), rt.String("b"), false},
		{"rope vs flat", rt.heap.Concat(rt.String(strings.Repeat("x", 40)), rt.String(strings.Repeat("y", 40))), rt.String(strings.Repeat("x", 40) + strings.Repeat("y", 40)), true},
		{"same object", obj1, obj1, true},
		{"different objects", obj1, obj2, false},
		{"string vs number", rt.String("1"), IntegerValue(1), false},
		{"same symbol", SymbolValue(SymbolIterator), SymbolValue(SymbolIterator), true},
	}
	for _, tc := range testCases {
		if got := rt.StrictEquals(tc.v1, tc.v2); got != tc.want {
			t.Errorf("StrictEquals(%s) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSameValueVariants(t *testing.T) {
	rt := newTestRuntime(t)
	negZero := NumberValue(math.Copysign(0, -1))
	if !rt.SameValueZero(NaN, NaN) {
		t.Errorf("SameValueZero(NaN, NaN) should be true")
	}
	if !rt.SameValueZero(IntegerValue(0), negZero) {
		t.Errorf("SameValueZero(+0, -0) should be true")
	}
	if !rt.SameValue(NaN, NaN) {
		t.Errorf("SameValue(NaN, NaN) should be true")
	}
	if rt.SameValue(IntegerValue(0), negZero) {
		t.Errorf("SameValue(+0, -0) should be false")
	}
}

func TestLooseEquals(t *testing.T) {
	rt := newTestRuntime(t)
	testCases := []struct {
		name string
		v1   Value
		v2   Value
		want bool
	}{
		{"undefined == null", Undefined, Null, true},
		{"null == 0", Null, IntegerValue(0), false},
		{"'1' == 1", rt.String("1"), IntegerValue(1), true},
		{"'' == 0", rt.String(""), IntegerValue(0), true},
		{"true == 1", True, IntegerValue(1), true},
		{"false == '0'", False, rt.String("0"), true},
		{"1n == 1", BigIntValue(1), IntegerValue(1), true},
		{"1n == '1'", BigIntValue(1), rt.String("1"), true},
		{"NaN == NaN", NaN, NaN, false},
		{"'a' == 'a'", rt.String("a"), rt.String("a"), true},
	}
	for _, tc := range testCases {
		got, err := rt.LooseEquals(tc.v1, tc.v2)
		if err != nil {
			t.Fatalf("LooseEquals(%s) failed: %v", tc.name, err)
		}
		if got != tc.want {
			t.Errorf("LooseEquals(%s) = %v, want %v", tc.name, got, tc.want)
		}
	}
}
