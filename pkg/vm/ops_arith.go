package vm

import (
	"math"
	"math/bits"
)

// add implements the + operator: numeric fast path, then string
// concatenation when either primitive is a string.
func (rt *Runtime) add(a, b Value) (Value, error) {
	if a.typ == TypeInteger && b.typ == TypeInteger {
		return intResult(int64(a.AsInteger()) + int64(b.AsInteger())), nil
	}
	if a.IsNumber() && b.IsNumber() {
		return NumberValue(a.AsFloat() + b.AsFloat()), nil
	}
	if a.IsString() && b.IsString() {
		return rt.heap.Concat(a, b), nil
	}
	pa, err := rt.ToPrimitive(a, hintDefault)
	if err != nil {
		return Undefined, err
	}
	pb, err := rt.ToPrimitive(b, hintDefault)
	if err != nil {
		return Undefined, err
	}
	if pa.IsString() || pb.IsString() {
		return rt.concatString(pa, pb)
	}
	return rt.arith(OpAdd, pa, pb)
}

// intResult narrows an exact integer result back to Int32 when it fits.
func intResult(n int64) Value {
	if n >= math.MinInt32 && n <= math.MaxInt32 {
		return IntegerValue(int32(n))
	}
	return NumberValue(float64(n))
}

// concatString converts both operands to strings and joins them as a rope.
func (rt *Runtime) concatString(a, b Value) (Value, error) {
	sa, err := rt.ToString(a)
	if err != nil {
		return Undefined, err
	}
	sb, err := rt.ToString(b)
	if err != nil {
		return Undefined, err
	}
	return rt.heap.Concat(sa, sb), nil
}

// arith implements the binary numeric operators other than +, and + once
// both operands are known not to be strings.
func (rt *Runtime) arith(op OpCode, a, b Value) (Value, error) {
	if a.typ == TypeInteger && b.typ == TypeInteger {
		if v, ok := intArith(op, a.AsInteger(), b.AsInteger()); ok {
			return v, nil
		}
	}
	na, err := rt.ToNumeric(a)
	if err != nil {
		return Undefined, err
	}
	nb, err := rt.ToNumeric(b)
	if err != nil {
		return Undefined, err
	}
	if na.IsBigInt() || nb.IsBigInt() {
		if !na.IsBigInt() || !nb.IsBigInt() {
			return Undefined, rt.typeError("Cannot mix BigInt and other types, use explicit conversions")
		}
		return rt.bigIntArith(op, na.AsBigInt(), nb.AsBigInt())
	}
	if na.typ == TypeInteger && nb.typ == TypeInteger {
		if v, ok := intArith(op, na.AsInteger(), nb.AsInteger()); ok {
			return v, nil
		}
	}
	return floatArith(op, na.AsFloat(), nb.AsFloat()), nil
}

// intArith handles operators whose Int32 result is exact. It reports false
// when the float path must decide (division, negative zero).
func intArith(op OpCode, a, b int32) (Value, bool) {
	x, y := int64(a), int64(b)
	switch op {
	case OpAdd:
		return intResult(x + y), true
	case OpSub:
		return intResult(x - y), true
	case OpMul:
		r := x * y
		if r == 0 && (x < 0 || y < 0) {
			return Value{}, false
		}
		return intResult(r), true
	case OpRem:
		if y == 0 || x < 0 {
			return Value{}, false
		}
		return IntegerValue(int32(x % y)), true
	case OpBitAnd:
		return IntegerValue(a & b), true
	case OpBitOr:
		return IntegerValue(a | b), true
	case OpBitXor:
		return IntegerValue(a ^ b), true
	case OpShl:
		return IntegerValue(a << (uint32(b) & 31)), true
	case OpShr:
		return IntegerValue(a >> (uint32(b) & 31)), true
	case OpUShr:
		return NumericValue(float64(uint32(a) >> (uint32(b) & 31))), true
	}
	return Value{}, false
}

func floatArith(op OpCode, a, b float64) Value {
	switch op {
	case OpAdd:
		return NumberValue(a + b)
	case OpSub:
		return NumberValue(a - b)
	case OpMul:
		return NumberValue(a * b)
	case OpDiv:
		return NumericValue(a / b)
	case OpRem:
		if b == 0 || math.IsInf(a, 0) || math.IsNaN(a) || math.IsNaN(b) {
			return NaN
		}
		if math.IsInf(b, 0) {
			return NumberValue(a)
		}
		return NumberValue(math.Mod(a, b))
	case OpExp:
		if math.IsNaN(b) || (math.Abs(a) == 1 && math.IsInf(b, 0)) {
			return NaN
		}
		return NumericValue(math.Pow(a, b))
	case OpBitAnd:
		return IntegerValue(toInt32(a) & toInt32(b))
	case OpBitOr:
		return IntegerValue(toInt32(a) | toInt32(b))
	case OpBitXor:
		return IntegerValue(toInt32(a) ^ toInt32(b))
	case OpShl:
		return IntegerValue(toInt32(a) << (toUint32(b) & 31))
	case OpShr:
		return IntegerValue(toInt32(a) >> (toUint32(b) & 31))
	case OpUShr:
		return NumericValue(float64(toUint32(a) >> (toUint32(b) & 31)))
	}
	return NaN
}

// bigIntArith operates on 64-bit BigInts. Results that do not fit throw a
// RangeError.
func (rt *Runtime) bigIntArith(op OpCode, a, b int64) (Value, error) {
	overflow := func() (Value, error) {
		return Undefined, rt.rangeError("Maximum BigInt size exceeded")
	}
	switch op {
	case OpAdd:
		r := a + b
		if (r > a) != (b > 0) {
			return overflow()
		}
		return BigIntValue(r), nil
	case OpSub:
		r := a - b
		if (r < a) != (b > 0) {
			return overflow()
		}
		return BigIntValue(r), nil
	case OpMul:
		if a == 0 || b == 0 {
			return BigIntValue(0), nil
		}
		r := a * b
		if r/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
			return overflow()
		}
		return BigIntValue(r), nil
	case OpDiv, OpRem:
		if b == 0 {
			return Undefined, rt.rangeError("Division by zero")
		}
		if a == math.MinInt64 && b == -1 {
			if op == OpRem {
				return BigIntValue(0), nil
			}
			return overflow()
		}
		if op == OpDiv {
			return BigIntValue(a / b), nil
		}
		return BigIntValue(a % b), nil
	case OpExp:
		if b < 0 {
			return Undefined, rt.rangeError("Exponent must be non-negative")
		}
		switch a {
		case 0:
			if b == 0 {
				return BigIntValue(1), nil
			}
			return BigIntValue(0), nil
		case 1:
			return BigIntValue(1), nil
		case -1:
			if b%2 == 0 {
				return BigIntValue(1), nil
			}
			return BigIntValue(-1), nil
		}
		// |a| >= 2 overflows within 63 steps
		r := int64(1)
		for i := int64(0); i < b; i++ {
			hi, lo := bits.Mul64(uint64(absInt64(r)), uint64(absInt64(a)))
			if hi != 0 || lo > math.MaxInt64 {
				return overflow()
			}
			r *= a
		}
		return BigIntValue(r), nil
	case OpBitAnd:
		return BigIntValue(a & b), nil
	case OpBitOr:
		return BigIntValue(a | b), nil
	case OpBitXor:
		return BigIntValue(a ^ b), nil
	case OpShl, OpShr:
		if op == OpShr {
			b = -b
		}
		switch {
		case b >= 0:
			if b >= 63 || (a<<b)>>b != a {
				if a == 0 {
					return BigIntValue(0), nil
				}
				return overflow()
			}
			return BigIntValue(a << b), nil
		case b <= -63:
			if a < 0 {
				return BigIntValue(-1), nil
			}
			return BigIntValue(0), nil
		default:
			return BigIntValue(a >> -b), nil
		}
	case OpUShr:
		return Undefined, rt.typeError("BigInts have no unsigned right shift, use >> instead")
	}
	return Undefined, rt.typeError("unsupported BigInt operator %s", op)
}

func absInt64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// unary implements the one-operand numeric instructions.
func (rt *Runtime) unary(op OpCode, v Value) (Value, error) {
	if v.typ == TypeInteger {
		i := int64(v.AsInteger())
		switch op {
		case OpNeg:
			if i == 0 {
				return NumberValue(math.Copysign(0, -1)), nil
			}
			return intResult(-i), nil
		case OpPlus, OpToNumeric:
			return v, nil
		case OpBitNot:
			return IntegerValue(^v.AsInteger()), nil
		case OpInc:
			return intResult(i + 1), nil
		case OpDec:
			return intResult(i - 1), nil
		}
	}
	if op == OpPlus {
		f, err := rt.ToNumber(v)
		if err != nil {
			return Undefined, err
		}
		return NumberValue(f), nil
	}
	n, err := rt.ToNumeric(v)
	if err != nil {
		return Undefined, err
	}
	if n.IsBigInt() {
		b := n.AsBigInt()
		switch op {
		case OpNeg:
			if b == math.MinInt64 {
				return Undefined, rt.rangeError("Maximum BigInt size exceeded")
			}
			return BigIntValue(-b), nil
		case OpBitNot:
			return BigIntValue(^b), nil
		case OpInc:
			return rt.bigIntArith(OpAdd, b, 1)
		case OpDec:
			return rt.bigIntArith(OpSub, b, 1)
		}
		return n, nil
	}
	if n.typ == TypeInteger {
		return rt.unary(op, n)
	}
	f := n.AsFloat()
	switch op {
	case OpNeg:
		return NumberValue(-f), nil
	case OpBitNot:
		return IntegerValue(^toInt32(f)), nil
	case OpInc:
		return NumberValue(f + 1), nil
	case OpDec:
		return NumberValue(f - 1), nil
	}
	return n, nil
}
