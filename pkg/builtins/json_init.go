package builtins

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"lynx/pkg/vm"
)

type JSONInitializer struct{}

func (j *JSONInitializer) Name() string {
	return "JSON"
}

func (j *JSONInitializer) Priority() int {
	return PriorityJSON
}

func (j *JSONInitializer) InitRuntime(ctx *RuntimeContext) error {
	rt := ctx.Runtime
	jsonObj := newNamespace(rt)

	if tag, ok := vm.WellKnownSymbol("toStringTag"); ok {
		rt.Object(jsonObj).Props.SetValue(vm.SymbolKey(tag), rt.String("JSON"), vm.FlagConfigurable)
	}

	rt.DefineMethod(jsonObj, "parse", 2, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		text, err := rt.ToGoString(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		result, err := parseJSON(rt, text)
		if err != nil {
			return vm.Undefined, err
		}
		reviver := vm.Arg(args, 1)
		if !rt.IsCallable(reviver) {
			return result, nil
		}
		root := rt.NewPlainObject()
		rt.DefineValue(root, "", result, vm.DefaultDataFlags)
		return internalize(rt, reviver, root, rt.String(""))
	})

	rt.DefineMethod(jsonObj, "stringify", 3, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := newStringifier(rt, vm.Arg(args, 1), vm.Arg(args, 2))
		if err != nil {
			return vm.Undefined, err
		}
		value := vm.Arg(args, 0)
		wrapper := rt.NewPlainObject()
		rt.DefineValue(wrapper, "", value, vm.DefaultDataFlags)
		var b strings.Builder
		ok, err := s.property(&b, wrapper, "", value, "")
		if err != nil || !ok {
			return vm.Undefined, err
		}
		return rt.String(b.String()), nil
	})

	return ctx.DefineGlobal("JSON", jsonObj)
}

// parseJSON decodes text into runtime values, keeping object key order.
func parseJSON(rt *vm.Runtime, text string) (vm.Value, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	v, err := parseJSONValue(rt, dec)
	if err == nil {
		// exactly one value
		if _, err = dec.Token(); err == io.EOF {
			return v, nil
		} else if err == nil {
			err = errors.New("unexpected non-whitespace character after JSON data")
		}
	}
	if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
		return vm.Undefined, rt.Throw(rt.NewError(vm.ErrorKindSyntaxError, "Unexpected end of JSON input"))
	}
	return vm.Undefined, rt.Throw(rt.NewError(vm.ErrorKindSyntaxError, "JSON.parse: "+err.Error()))
}

func parseJSONValue(rt *vm.Runtime, dec *json.Decoder) (vm.Value, error) {
	token, err := dec.Token()
	if err != nil {
		return vm.Undefined, err
	}

	switch t := token.(type) {
	case nil:
		return vm.Null, nil
	case bool:
		return vm.BooleanValue(t), nil
	case json.Number:
		f, err := strconv.ParseFloat(string(t), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return vm.Undefined, err
		}
		return vm.NumericValue(f), nil
	case string:
		return rt.String(t), nil
	case json.Delim:
		switch t {
		case '{':
			obj := rt.NewPlainObject()
			for dec.More() {
				keyToken, err := dec.Token()
				if err != nil {
					return vm.Undefined, err
				}
				key, ok := keyToken.(string)
				if !ok {
					return vm.Undefined, errors.New("expected string key in object")
				}
				value, err := parseJSONValue(rt, dec)
				if err != nil {
					return vm.Undefined, err
				}
				if err := rt.SetComputed(obj, rt.String(key), value); err != nil {
					return vm.Undefined, err
				}
			}
			if _, err := dec.Token(); err != nil {
				return vm.Undefined, err
			}
			return obj, nil
		case '[':
			var elements []vm.Value
			for dec.More() {
				elem, err := parseJSONValue(rt, dec)
				if err != nil {
					return vm.Undefined, err
				}
				elements = append(elements, elem)
			}
			if _, err := dec.Token(); err != nil {
				return vm.Undefined, err
			}
			return rt.NewArray(elements), nil
		}
	}
	return vm.Undefined, errors.New("unexpected JSON token")
}

// internalize applies a JSON.parse reviver bottom-up.
func internalize(rt *vm.Runtime, reviver, holder, key vm.Value) (vm.Value, error) {
	val, err := rt.GetComputed(holder, key)
	if err != nil {
		return vm.Undefined, err
	}
	if val.IsObject() && !rt.IsCallable(val) {
		var keys []vm.Value
		if rt.Object(val).Kind() == vm.PayloadArray {
			n := len(rt.Object(val).Payload.(*vm.ArrayPayload).Elements)
			for i := 0; i < n; i++ {
				keys = append(keys, vm.IntegerValue(int32(i)))
			}
		} else {
			own, err := rt.OwnKeys(val, true)
			if err != nil {
				return vm.Undefined, err
			}
			for _, k := range own {
				if !k.IsSymbol() {
					keys = append(keys, rt.String(rt.KeyName(k)))
				}
			}
		}
		for _, k := range keys {
			revived, err := internalize(rt, reviver, val, k)
			if err != nil {
				return vm.Undefined, err
			}
			if revived.IsUndefined() {
				pk, err := rt.ToPropertyKey(k)
				if err != nil {
					return vm.Undefined, err
				}
				if _, err := rt.DeleteProperty(val, pk); err != nil {
					return vm.Undefined, err
				}
				continue
			}
			if err := rt.SetComputed(val, k, revived); err != nil {
				return vm.Undefined, err
			}
		}
	}
	name, err := rt.ToString(key)
	if err != nil {
		return vm.Undefined, err
	}
	return rt.Call(reviver, holder, []vm.Value{name, val})
}

// stringifier carries the state of one JSON.stringify call.
type stringifier struct {
	rt       *vm.Runtime
	replacer vm.Value
	// allow restricts object keys when the replacer is an array.
	allow []string
	gap   string
	stack map[vm.Handle]bool
}

func newStringifier(rt *vm.Runtime, replacer, space vm.Value) (*stringifier, error) {
	s := &stringifier{rt: rt, stack: make(map[vm.Handle]bool)}

	if rt.IsCallable(replacer) {
		s.replacer = replacer
	} else if replacer.IsObject() && rt.Object(replacer).Kind() == vm.PayloadArray {
		items, err := rt.IterableToList(replacer)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool)
		s.allow = []string{}
		for _, item := range items {
			item = unwrapPrimitive(rt, item)
			if !item.IsString() && !item.IsNumber() {
				continue
			}
			name, err := rt.ToGoString(item)
			if err != nil {
				return nil, err
			}
			if !seen[name] {
				seen[name] = true
				s.allow = append(s.allow, name)
			}
		}
	}

	space = unwrapPrimitive(rt, space)
	switch {
	case space.IsNumber():
		n := math.Min(space.AsFloat(), 10)
		if n >= 1 {
			s.gap = strings.Repeat(" ", int(n))
		}
	case space.IsString():
		g, err := rt.ToGoString(space)
		if err != nil {
			return nil, err
		}
		if utf8.RuneCountInString(g) > 10 {
			g = string([]rune(g)[:10])
		}
		s.gap = g
	}
	return s, nil
}

// unwrapPrimitive returns the primitive inside a Number, String or Boolean
// wrapper object, or v itself.
func unwrapPrimitive(rt *vm.Runtime, v vm.Value) vm.Value {
	if !v.IsObject() {
		return v
	}
	if w, ok := rt.Object(v).Payload.(*vm.PrimitiveWrapper); ok {
		switch w.K {
		case vm.PayloadNumberObject, vm.PayloadStringObject, vm.PayloadBooleanObject:
			return w.Value
		}
	}
	return v
}

// property serializes holder[key]. It reports false when the value has no
// JSON representation (undefined, functions, symbols).
func (s *stringifier) property(b *strings.Builder, holder vm.Value, key string, value vm.Value, indent string) (bool, error) {
	rt := s.rt
	if value.IsObject() {
		toJSON, err := rt.GetProperty(value, rt.Key("toJSON"))
		if err != nil {
			return false, err
		}
		if rt.IsCallable(toJSON) {
			if value, err = rt.Call(toJSON, value, []vm.Value{rt.String(key)}); err != nil {
				return false, err
			}
		}
	}
	if !s.replacer.IsUndefined() {
		var err error
		if value, err = rt.Call(s.replacer, holder, []vm.Value{rt.String(key), value}); err != nil {
			return false, err
		}
	}
	value = unwrapPrimitive(rt, value)

	switch {
	case value.IsNull():
		b.WriteString("null")
	case value.IsBoolean():
		b.WriteString(strconv.FormatBool(value.AsBoolean()))
	case value.IsString():
		str, err := rt.ToGoString(value)
		if err != nil {
			return false, err
		}
		quoteJSON(b, str)
	case value.IsNumber():
		f := value.AsFloat()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			b.WriteString("null")
		} else {
			b.WriteString(vm.FormatNumber(f))
		}
	case value.IsObject() && !rt.IsCallable(value):
		if s.stack[value.Handle()] {
			return false, rt.TypeError("Converting circular structure to JSON")
		}
		s.stack[value.Handle()] = true
		defer delete(s.stack, value.Handle())
		if rt.Object(value).Kind() == vm.PayloadArray {
			return true, s.array(b, value, indent)
		}
		return true, s.object(b, value, indent)
	default:
		return false, nil
	}
	return true, nil
}

func (s *stringifier) object(b *strings.Builder, value vm.Value, indent string) error {
	rt := s.rt
	inner := indent + s.gap

	names := s.allow
	if names == nil {
		keys, err := s.rt.OwnKeys(value, true)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if !k.IsSymbol() {
				names = append(names, rt.KeyName(k))
			}
		}
	}

	b.WriteByte('{')
	wrote := false
	for _, name := range names {
		v, err := rt.GetComputed(value, rt.String(name))
		if err != nil {
			return err
		}
		var member strings.Builder
		quoteJSON(&member, name)
		member.WriteByte(':')
		if s.gap != "" {
			member.WriteByte(' ')
		}
		ok, err := s.property(&member, value, name, v, inner)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if wrote {
			b.WriteByte(',')
		}
		s.newline(b, inner)
		b.WriteString(member.String())
		wrote = true
	}
	if wrote {
		s.newline(b, indent)
	}
	b.WriteByte('}')
	return nil
}

func (s *stringifier) array(b *strings.Builder, value vm.Value, indent string) error {
	rt := s.rt
	inner := indent + s.gap
	n := len(rt.Object(value).Payload.(*vm.ArrayPayload).Elements)

	b.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		s.newline(b, inner)
		v, err := rt.GetComputed(value, vm.IntegerValue(int32(i)))
		if err != nil {
			return err
		}
		ok, err := s.property(b, value, strconv.Itoa(i), v, inner)
		if err != nil {
			return err
		}
		if !ok {
			b.WriteString("null")
		}
	}
	if n > 0 {
		s.newline(b, indent)
	}
	b.WriteByte(']')
	return nil
}

func (s *stringifier) newline(b *strings.Builder, indent string) {
	if s.gap == "" {
		return
	}
	b.WriteByte('\n')
	b.WriteString(indent)
}

// quoteJSON writes str as a JSON string literal. Unlike encoding/json it
// leaves <, > and & alone.
func quoteJSON(b *strings.Builder, str string) {
	const hex = "0123456789abcdef"
	b.WriteByte('"')
	for _, r := range str {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				b.WriteString(`\u00`)
				b.WriteByte(hex[r>>4])
				b.WriteByte(hex[r&0xf])
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
}
