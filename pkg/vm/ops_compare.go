package vm

import (
	"math"
	"strings"
)

// StrictEquals implements ===. Numbers compare by IEEE754 equality, strings
// by content, everything else by identity.
func (rt *Runtime) StrictEquals(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		return numberEquals(a, b)
	}
	if a.typ != b.typ {
		return false
	}
	switch a.typ {
	case TypeUndefined, TypeNull:
		return true
	case TypeString:
		return a.payload == b.payload || rt.GoString(a) == rt.GoString(b)
	}
	return a.payload == b.payload
}

// SameValueZero is StrictEquals except that NaN equals NaN.
func (rt *Runtime) SameValueZero(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		return sameValueZeroNumber(a, b)
	}
	return rt.StrictEquals(a, b)
}

// SameValue additionally distinguishes +0 from -0.
func (rt *Runtime) SameValue(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		fa, fb := a.AsFloat(), b.AsFloat()
		if fa == 0 && fb == 0 {
			return math.Signbit(fa) == math.Signbit(fb)
		}
		return sameValueZeroNumber(a, b)
	}
	return rt.StrictEquals(a, b)
}

// LooseEquals implements ==.
func (rt *Runtime) LooseEquals(a, b Value) (bool, error) {
	for {
		if a.typ == b.typ || (a.IsNumber() && b.IsNumber()) {
			return rt.StrictEquals(a, b), nil
		}
		switch {
		case a.IsNullish() && b.IsNullish():
			return true, nil
		case a.IsNullish() || b.IsNullish():
			return false, nil
		case a.IsNumber() && b.IsString():
			return numberEquals(a, NumberValue(ParseNumber(rt.GoString(b)))), nil
		case a.IsString() && b.IsNumber():
			return numberEquals(NumberValue(ParseNumber(rt.GoString(a))), b), nil
		case a.IsBigInt() && b.IsString():
			n, ok := parseBigInt(rt.GoString(b))
			return ok && n == a.AsBigInt(), nil
		case a.IsString() && b.IsBigInt():
			a, b = b, a
			continue
		case a.IsBoolean():
			a = IntegerValue(boolInt(a))
			continue
		case b.IsBoolean():
			b = IntegerValue(boolInt(b))
			continue
		case b.IsObject() && !a.IsObject():
			p, err := rt.ToPrimitive(b, hintDefault)
			if err != nil {
				return false, err
			}
			b = p
			continue
		case a.IsObject() && !b.IsObject():
			p, err := rt.ToPrimitive(a, hintDefault)
			if err != nil {
				return false, err
			}
			a = p
			continue
		case a.IsBigInt() && b.IsNumber():
			return bigIntEqualsNumber(a.AsBigInt(), b.AsFloat()), nil
		case a.IsNumber() && b.IsBigInt():
			return bigIntEqualsNumber(b.AsBigInt(), a.AsFloat()), nil
		}
		return false, nil
	}
}

func boolInt(v Value) int32 {
	if v.AsBoolean() {
		return 1
	}
	return 0
}

func bigIntEqualsNumber(b int64, f float64) bool {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return false
	}
	return float64(b) == f && int64(f) == b
}

// parseBigInt parses the decimal form of a BigInt string.
func parseBigInt(s string) (int64, bool) {
	s = strings.TrimFunc(s, isJSSpace)
	if s == "" {
		return 0, true
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" {
		return 0, false
	}
	var n uint64
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		if n > (math.MaxInt64+1)/10 {
			return 0, false
		}
		n = n*10 + uint64(c-'0')
	}
	if neg {
		if n > math.MaxInt64+1 {
			return 0, false
		}
		return -int64(n), true
	}
	if n > math.MaxInt64 {
		return 0, false
	}
	return int64(n), true
}

// compare implements the relational operators. Comparisons involving NaN
// are false.
func (rt *Runtime) compare(op OpCode, a, b Value) (Value, error) {
	if a.typ == TypeInteger && b.typ == TypeInteger {
		return BooleanValue(orderedInts(op, int64(a.AsInteger()), int64(b.AsInteger()))), nil
	}
	if a.IsNumber() && b.IsNumber() {
		return BooleanValue(orderedFloats(op, a.AsFloat(), b.AsFloat())), nil
	}
	pa, err := rt.ToPrimitive(a, hintNumber)
	if err != nil {
		return Undefined, err
	}
	pb, err := rt.ToPrimitive(b, hintNumber)
	if err != nil {
		return Undefined, err
	}
	if pa.IsString() && pb.IsString() {
		c := compareUnits(rt.GoString(pa), rt.GoString(pb))
		return BooleanValue(orderedInts(op, int64(c), 0)), nil
	}
	if pa.IsBigInt() && pb.IsBigInt() {
		return BooleanValue(orderedInts(op, pa.AsBigInt(), pb.AsBigInt())), nil
	}
	if pa.IsBigInt() && pb.IsString() {
		n, ok := parseBigInt(rt.GoString(pb))
		if !ok {
			return False, nil
		}
		return BooleanValue(orderedInts(op, pa.AsBigInt(), n)), nil
	}
	if pa.IsString() && pb.IsBigInt() {
		n, ok := parseBigInt(rt.GoString(pa))
		if !ok {
			return False, nil
		}
		return BooleanValue(orderedInts(op, n, pb.AsBigInt())), nil
	}
	if pa.IsBigInt() || pb.IsBigInt() {
		var fa, fb float64
		if pa.IsBigInt() {
			fa = float64(pa.AsBigInt())
		} else if fa, err = rt.primitiveToNumber(pa); err != nil {
			return Undefined, err
		}
		if pb.IsBigInt() {
			fb = float64(pb.AsBigInt())
		} else if fb, err = rt.primitiveToNumber(pb); err != nil {
			return Undefined, err
		}
		return BooleanValue(orderedFloats(op, fa, fb)), nil
	}
	fa, err := rt.primitiveToNumber(pa)
	if err != nil {
		return Undefined, err
	}
	fb, err := rt.primitiveToNumber(pb)
	if err != nil {
		return Undefined, err
	}
	return BooleanValue(orderedFloats(op, fa, fb)), nil
}

func orderedInts(op OpCode, a, b int64) bool {
	switch op {
	case OpLt:
		return a < b
	case OpLtEq:
		return a <= b
	case OpGt:
		return a > b
	default:
		return a >= b
	}
}

func orderedFloats(op OpCode, a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return false
	}
	switch op {
	case OpLt:
		return a < b
	case OpLtEq:
		return a <= b
	case OpGt:
		return a > b
	default:
		return a >= b
	}
}

// compareUnits orders strings by UTF-16 code units.
func compareUnits(a, b string) int {
	if isASCII(a) && isASCII(b) {
		return strings.Compare(a, b)
	}
	ua, ub := stringUnits(a), stringUnits(b)
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			if ua[i] < ub[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(ua) < len(ub):
		return -1
	case len(ua) > len(ub):
		return 1
	}
	return 0
}
