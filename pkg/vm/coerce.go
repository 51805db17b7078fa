package vm

import (
	"math"
	"strconv"
	"strings"
)

// ToBoolean never runs script code.
func (rt *Runtime) ToBoolean(v Value) bool {
	switch v.typ {
	case TypeUndefined, TypeNull:
		return false
	case TypeBoolean:
		return v.AsBoolean()
	case TypeInteger:
		return v.AsInteger() != 0
	case TypeFloat:
		f := v.AsFloat()
		return f != 0 && !math.IsNaN(f)
	case TypeBigInt:
		return v.AsBigInt() != 0
	case TypeString:
		return rt.heap.StringAt(v.Handle()).Len() > 0
	}
	return true
}

type primitiveHint uint8

const (
	hintDefault primitiveHint = iota
	hintNumber
	hintString
)

// ToPrimitive converts objects through Symbol.toPrimitive, then valueOf and
// toString in hint order.
func (rt *Runtime) ToPrimitive(v Value, hint primitiveHint) (Value, error) {
	if !v.IsObject() {
		return v, nil
	}
	exotic, err := rt.GetProperty(v, SymbolKey(SymbolToPrimitive))
	if err != nil {
		return Undefined, err
	}
	if !exotic.IsNullish() {
		hs := "default"
		switch hint {
		case hintNumber:
			hs = "number"
		case hintString:
			hs = "string"
		}
		res, err := rt.Call(exotic, v, []Value{rt.String(hs)})
		if err != nil {
			return Undefined, err
		}
		if res.IsObject() {
			return Undefined, rt.typeError("Cannot convert object to primitive value")
		}
		return res, nil
	}
	order := [2]PropertyKey{rt.keys.valueOf, rt.keys.toString}
	if hint == hintString {
		order = [2]PropertyKey{rt.keys.toString, rt.keys.valueOf}
	}
	for _, key := range order {
		method, err := rt.GetProperty(v, key)
		if err != nil {
			return Undefined, err
		}
		if !rt.IsCallable(method) {
			continue
		}
		res, err := rt.Call(method, v, nil)
		if err != nil {
			return Undefined, err
		}
		if !res.IsObject() {
			return res, nil
		}
	}
	return Undefined, rt.typeError("Cannot convert object to primitive value")
}

// ToNumeric returns a Number or a BigInt.
func (rt *Runtime) ToNumeric(v Value) (Value, error) {
	p, err := rt.ToPrimitive(v, hintNumber)
	if err != nil {
		return Undefined, err
	}
	if p.IsBigInt() {
		return p, nil
	}
	f, err := rt.primitiveToNumber(p)
	if err != nil {
		return Undefined, err
	}
	if p.IsInteger() {
		return p, nil
	}
	return NumberValue(f), nil
}

// ToNumber converts v to a float64.
func (rt *Runtime) ToNumber(v Value) (float64, error) {
	if v.IsNumber() {
		return v.AsFloat(), nil
	}
	p, err := rt.ToPrimitive(v, hintNumber)
	if err != nil {
		return 0, err
	}
	return rt.primitiveToNumber(p)
}

func (rt *Runtime) primitiveToNumber(p Value) (float64, error) {
	switch p.typ {
	case TypeUndefined:
		return math.NaN(), nil
	case TypeNull:
		return 0, nil
	case TypeBoolean:
		if p.AsBoolean() {
			return 1, nil
		}
		return 0, nil
	case TypeInteger, TypeFloat:
		return p.AsFloat(), nil
	case TypeString:
		return ParseNumber(rt.GoString(p)), nil
	case TypeBigInt:
		return 0, rt.typeError("Cannot convert a BigInt value to a number")
	case TypeSymbol:
		return 0, rt.typeError("Cannot convert a Symbol value to a number")
	}
	return math.NaN(), nil
}

// ToString converts v to a string value.
func (rt *Runtime) ToString(v Value) (Value, error) {
	if v.IsString() {
		return v, nil
	}
	s, err := rt.ToGoString(v)
	if err != nil {
		return Undefined, err
	}
	return rt.String(s), nil
}

// ToGoString converts v to Go text.
func (rt *Runtime) ToGoString(v Value) (string, error) {
	switch v.typ {
	case TypeString:
		return rt.GoString(v), nil
	case TypeSymbol:
		return "", rt.typeError("Cannot convert a Symbol value to a string")
	case TypeObject:
		p, err := rt.ToPrimitive(v, hintString)
		if err != nil {
			return "", err
		}
		return rt.ToGoString(p)
	}
	return rt.primitiveString(v), nil
}

// primitiveString renders a non-object, non-symbol primitive.
func (rt *Runtime) primitiveString(v Value) string {
	switch v.typ {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeBoolean:
		if v.AsBoolean() {
			return "true"
		}
		return "false"
	case TypeInteger:
		return strconv.Itoa(int(v.AsInteger()))
	case TypeFloat:
		return FormatNumber(v.AsFloat())
	case TypeBigInt:
		return strconv.FormatInt(v.AsBigInt(), 10)
	case TypeString:
		return rt.GoString(v)
	case TypeSymbol:
		desc, _ := rt.SymbolDescription(v.AsSymbol())
		return "Symbol(" + desc + ")"
	}
	return ""
}

// ToPropertyKey converts v to an interned key.
func (rt *Runtime) ToPropertyKey(v Value) (PropertyKey, error) {
	switch v.typ {
	case TypeSymbol:
		return SymbolKey(v.AsSymbol()), nil
	case TypeString:
		return rt.names.Intern(rt.GoString(v)), nil
	case TypeInteger:
		return rt.names.Intern(strconv.Itoa(int(v.AsInteger()))), nil
	case TypeObject:
		p, err := rt.ToPrimitive(v, hintString)
		if err != nil {
			return 0, err
		}
		return rt.ToPropertyKey(p)
	}
	return rt.names.Intern(rt.primitiveString(v)), nil
}

// ToObject boxes primitives; null and undefined throw.
func (rt *Runtime) ToObject(v Value) (Value, error) {
	switch v.typ {
	case TypeObject:
		return v, nil
	case TypeUndefined, TypeNull:
		return Undefined, rt.typeError("Cannot convert undefined or null to object")
	case TypeString:
		o := rt.NewObject(rt.realm.StringPrototype, &PrimitiveWrapper{K: PayloadStringObject, Value: v})
		return o, nil
	case TypeInteger, TypeFloat:
		return rt.NewObject(rt.realm.NumberPrototype, &PrimitiveWrapper{K: PayloadNumberObject, Value: v}), nil
	case TypeBoolean:
		return rt.NewObject(rt.realm.BooleanPrototype, &PrimitiveWrapper{K: PayloadBooleanObject, Value: v}), nil
	case TypeBigInt:
		return rt.NewObject(rt.realm.BigIntPrototype, &PrimitiveWrapper{K: PayloadBigIntObject, Value: v}), nil
	case TypeSymbol:
		return rt.NewObject(rt.realm.SymbolPrototype, &PrimitiveWrapper{K: PayloadSymbolObject, Value: v}), nil
	}
	return Undefined, rt.typeError("Cannot convert to object")
}

// ToInt32 converts v with modular int32 semantics.
func (rt *Runtime) ToInt32(v Value) (int32, error) {
	if v.IsInteger() {
		return v.AsInteger(), nil
	}
	f, err := rt.ToNumber(v)
	if err != nil {
		return 0, err
	}
	return toInt32(f), nil
}

// ToIntegerOrInfinity truncates v towards zero; NaN becomes 0.
func (rt *Runtime) ToIntegerOrInfinity(v Value) (float64, error) {
	f, err := rt.ToNumber(v)
	if err != nil || math.IsNaN(f) {
		return 0, err
	}
	return math.Trunc(f), nil
}

func (rt *Runtime) typeOf(v Value) Value {
	var s string
	switch v.typ {
	case TypeUndefined:
		s = "undefined"
	case TypeNull:
		s = "object"
	case TypeBoolean:
		s = "boolean"
	case TypeInteger, TypeFloat:
		s = "number"
	case TypeBigInt:
		s = "bigint"
	case TypeSymbol:
		s = "symbol"
	case TypeString:
		s = "string"
	default:
		if rt.IsCallable(v) {
			s = "function"
		} else {
			s = "object"
		}
	}
	return rt.internedString(rt.Key(s))
}

// TypeOf returns the typeof string of v.
func (rt *Runtime) TypeOf(v Value) string { return rt.GoString(rt.typeOf(v)) }

// Inspect renders v for diagnostics without running script code.
func (rt *Runtime) Inspect(v Value) string {
	var sb strings.Builder
	rt.inspect(&sb, v, 0)
	return sb.String()
}

func (rt *Runtime) inspect(sb *strings.Builder, v Value, depth int) {
	switch v.typ {
	case TypeString:
		if depth == 0 {
			sb.WriteString(rt.GoString(v))
		} else {
			sb.WriteString(strconv.Quote(rt.GoString(v)))
		}
		return
	case TypeBigInt:
		sb.WriteString(strconv.FormatInt(v.AsBigInt(), 10))
		sb.WriteByte('n')
		return
	case TypeObject:
	default:
		sb.WriteString(rt.primitiveString(v))
		return
	}
	if !rt.heap.Alive(v) {
		sb.WriteString("<collected>")
		return
	}
	obj := rt.Object(v)
	switch p := obj.Payload.(type) {
	case *FunctionPayload:
		sb.WriteString("[Function: ")
		if p.Name == "" {
			sb.WriteString("(anonymous)")
		} else {
			sb.WriteString(p.Name)
		}
		sb.WriteByte(']')
		return
	case *ClassPayload:
		sb.WriteString("[class " + p.Def.Name + "]")
		return
	case *ErrorPayload:
		sb.WriteString(rt.describeThrown(v))
		return
	case *PromisePayload:
		sb.WriteString("Promise { <" + p.State.String() + "> }")
		return
	case *PrimitiveWrapper:
		sb.WriteString("[" + p.K.String() + ": ")
		rt.inspect(sb, p.Value, depth+1)
		sb.WriteByte(']')
		return
	case *RegexPayload:
		sb.WriteString("/" + p.Pattern.Source() + "/" + p.Pattern.Flags())
		return
	case *ArrayPayload:
		if depth > 2 {
			sb.WriteString("[Array]")
			return
		}
		sb.WriteByte('[')
		for i, e := range p.Elements {
			if i > 0 {
				sb.WriteString(", ")
			}
			if i >= 100 {
				sb.WriteString("...")
				break
			}
			if e.Hole {
				sb.WriteString("<empty>")
				continue
			}
			rt.inspect(sb, e.Value, depth+1)
		}
		sb.WriteByte(']')
		return
	case *MapPayload, *SetPayload:
		sb.WriteString(obj.Kind().String() + " {}")
		return
	case *GeneratorPayload:
		sb.WriteString("Object [Generator] {}")
		return
	case *ProxyPayload:
		sb.WriteString("Proxy {}")
		return
	}
	if depth > 2 {
		sb.WriteString("[Object]")
		return
	}
	slots := obj.Props.Slots()
	if len(slots) == 0 {
		sb.WriteString("{}")
		return
	}
	sb.WriteString("{ ")
	n := 0
	for i := range slots {
		p := &slots[i]
		if !p.Enumerable() {
			continue
		}
		if n > 0 {
			sb.WriteString(", ")
		}
		n++
		sb.WriteString(rt.KeyName(p.Key))
		sb.WriteString(": ")
		switch {
		case p.IsAccessor():
			sb.WriteString("[Getter/Setter]")
		default:
			rt.inspect(sb, p.Cell.Value, depth+1)
		}
	}
	sb.WriteString(" }")
}
