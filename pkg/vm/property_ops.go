package vm

import (
	"encoding/binary"
	"math"
	"sort"
	"strconv"
)

// maxProtoDepth guards prototype walks against cycles created through
// proxies.
const maxProtoDepth = 10000

// GetProperty reads target[key] following getters and the prototype chain.
// Primitives read through their wrapper prototype.
func (rt *Runtime) GetProperty(target Value, key PropertyKey) (Value, error) {
	switch target.typ {
	case TypeObject:
		return rt.getFrom(target, key, target)
	case TypeUndefined, TypeNull:
		return Undefined, rt.typeError("Cannot read properties of %s (reading '%s')", rt.primitiveString(target), rt.KeyName(key))
	case TypeString:
		if v, ok := rt.stringOwn(target, key); ok {
			return v, nil
		}
	}
	proto := rt.primitivePrototype(target)
	if key == rt.keys.proto {
		return proto, nil
	}
	return rt.getFrom(proto, key, target)
}

func (rt *Runtime) primitivePrototype(v Value) Value {
	switch v.typ {
	case TypeString:
		return rt.realm.StringPrototype
	case TypeInteger, TypeFloat:
		return rt.realm.NumberPrototype
	case TypeBoolean:
		return rt.realm.BooleanPrototype
	case TypeBigInt:
		return rt.realm.BigIntPrototype
	case TypeSymbol:
		return rt.realm.SymbolPrototype
	}
	return Null
}

// stringOwn resolves the length and index keys of string content.
func (rt *Runtime) stringOwn(s Value, key PropertyKey) (Value, bool) {
	if key == rt.keys.length {
		return IntegerValue(int32(rt.heap.StringLength(s))), true
	}
	if idx, ok := rt.names.ArrayIndex(key); ok {
		if ch, ok := stringCharAt(rt.GoString(s), idx); ok {
			return rt.String(ch), true
		}
	}
	return Undefined, false
}

// getFrom walks the prototype chain starting at obj with receiver as this
// for getters.
func (rt *Runtime) getFrom(start Value, key PropertyKey, receiver Value) (Value, error) {
	if key == rt.keys.proto && start.IsObject() {
		if p, ok := rt.Object(start).Payload.(*ProxyPayload); ok {
			return rt.proxyGetPrototype(p)
		}
		return rt.Object(start).Proto, nil
	}
	cur := start
	for depth := 0; cur.IsObject(); depth++ {
		if depth > maxProtoDepth {
			return Undefined, rt.rangeError("prototype chain too deep")
		}
		obj := rt.Object(cur)
		switch p := obj.Payload.(type) {
		case *ProxyPayload:
			return rt.proxyGet(p, key, receiver)
		case *ArrayPayload:
			if key == rt.keys.length {
				return IntegerValue(int32(len(p.Elements))), nil
			}
			if idx, ok := rt.names.ArrayIndex(key); ok {
				if v, ok := p.Get(idx); ok {
					return v, nil
				}
			}
		case *TypedArrayPayload:
			if key == rt.keys.length {
				return IntegerValue(int32(p.Length)), nil
			}
			if idx, ok := rt.names.ArrayIndex(key); ok {
				return rt.typedGet(p, idx), nil
			}
		case *PrimitiveWrapper:
			if p.K == PayloadStringObject {
				if v, ok := rt.stringOwn(p.Value, key); ok {
					return v, nil
				}
			}
		}
		if prop, ok := obj.Props.Lookup(key); ok {
			return rt.readSlot(prop, receiver)
		}
		cur = obj.Proto
	}
	return Undefined, nil
}

func (rt *Runtime) readSlot(p *Property, receiver Value) (Value, error) {
	if !p.IsAccessor() {
		return p.Cell.Value, nil
	}
	if p.Flags&FlagGetter == 0 || p.Cell.Getter.IsUndefined() {
		return Undefined, nil
	}
	return rt.Call(p.Cell.Getter, receiver, nil)
}

// GetComputed reads target[key] for an arbitrary key value, with a fast path
// for integer indexes into arrays.
func (rt *Runtime) GetComputed(target, key Value) (Value, error) {
	if target.IsObject() {
		if idx, ok := valueIndex(key); ok {
			switch p := rt.Object(target).Payload.(type) {
			case *ArrayPayload:
				if v, ok := p.Get(idx); ok {
					return v, nil
				}
			case *TypedArrayPayload:
				return rt.typedGet(p, idx), nil
			}
		}
	} else if target.IsNullish() {
		ks, _ := rt.ToGoString(key)
		return Undefined, rt.typeError("Cannot read properties of %s (reading '%s')", rt.primitiveString(target), ks)
	}
	k, err := rt.ToPropertyKey(key)
	if err != nil {
		return Undefined, err
	}
	return rt.GetProperty(target, k)
}

// valueIndex reports whether v is a number naming an array index.
func valueIndex(v Value) (int, bool) {
	switch v.typ {
	case TypeInteger:
		i := v.AsInteger()
		return int(i), i >= 0
	case TypeFloat:
		f := v.AsFloat()
		if f >= 0 && f < math.MaxInt32 && f == math.Trunc(f) {
			return int(f), true
		}
	}
	return 0, false
}

// SetProperty assigns target[key] = v. Assignment to a read-only property or
// an accessor without a setter throws a TypeError.
func (rt *Runtime) SetProperty(target Value, key PropertyKey, v Value) error {
	switch target.typ {
	case TypeObject:
		return rt.setOn(target, key, v, target)
	case TypeUndefined, TypeNull:
		return rt.typeError("Cannot set properties of %s (setting '%s')", rt.primitiveString(target), rt.KeyName(key))
	}
	// primitives: only inherited setters can observe the assignment
	proto := rt.primitivePrototype(target)
	if setter, ok := rt.findSetter(proto, key); ok {
		_, err := rt.Call(setter, target, []Value{v})
		return err
	}
	return rt.typeError("Cannot create property '%s' on %s", rt.KeyName(key), rt.TypeOf(target))
}

func (rt *Runtime) findSetter(start Value, key PropertyKey) (Value, bool) {
	for cur, depth := start, 0; cur.IsObject() && depth < maxProtoDepth; depth++ {
		obj := rt.Object(cur)
		if p, ok := obj.Props.Lookup(key); ok {
			if p.Flags&FlagSetter != 0 {
				return p.Cell.Setter, true
			}
			return Undefined, false
		}
		cur = obj.Proto
	}
	return Undefined, false
}

func (rt *Runtime) setOn(start Value, key PropertyKey, v Value, receiver Value) error {
	if key == rt.keys.proto {
		if v.IsObject() || v.IsNull() {
			return rt.SetPrototypeOf(receiver, v)
		}
		return nil
	}
	cur := start
	for depth := 0; cur.IsObject(); depth++ {
		if depth > maxProtoDepth {
			return rt.rangeError("prototype chain too deep")
		}
		obj := rt.Object(cur)
		own := cur == receiver
		switch p := obj.Payload.(type) {
		case *ProxyPayload:
			return rt.proxySet(p, key, v, receiver)
		case *ArrayPayload:
			if own {
				if key == rt.keys.length {
					return rt.setArrayLength(p, v)
				}
				if idx, ok := rt.names.ArrayIndex(key); ok {
					if obj.nonExtensible && idx >= len(p.Elements) {
						return rt.typeError("Cannot add property %d, object is not extensible", idx)
					}
					return rt.SetArrayElement(p, idx, v)
				}
			}
		case *TypedArrayPayload:
			if own {
				if idx, ok := rt.names.ArrayIndex(key); ok {
					return rt.typedSet(p, idx, v)
				}
			}
		}
		if prop, ok := obj.Props.Lookup(key); ok {
			if prop.IsAccessor() {
				if prop.Flags&FlagSetter == 0 || prop.Cell.Setter.IsUndefined() {
					return rt.typeError("Cannot set property %s of %s which has only a getter", rt.KeyName(key), rt.Inspect(receiver))
				}
				_, err := rt.Call(prop.Cell.Setter, receiver, []Value{v})
				return err
			}
			if !prop.Writable() {
				return rt.typeError("Cannot assign to read only property '%s' of object", rt.KeyName(key))
			}
			if own {
				prop.Cell.Value = v
				return nil
			}
			break
		}
		cur = obj.Proto
	}
	return rt.createDataProperty(receiver, key, v)
}

func (rt *Runtime) createDataProperty(receiver Value, key PropertyKey, v Value) error {
	obj := rt.Object(receiver)
	if obj.nonExtensible {
		return rt.typeError("Cannot add property %s, object is not extensible", rt.KeyName(key))
	}
	if a, ok := obj.Payload.(*ArrayPayload); ok {
		if idx, ok := rt.names.ArrayIndex(key); ok {
			return rt.SetArrayElement(a, idx, v)
		}
	}
	obj.Props.SetValue(key, v, DefaultDataFlags)
	return nil
}

func (rt *Runtime) setArrayLength(a *ArrayPayload, v Value) error {
	f, err := rt.ToNumber(v)
	if err != nil {
		return err
	}
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return rt.rangeError("Invalid array length")
	}
	return rt.ResizeArray(a, int(f))
}

// SetComputed assigns target[key] = v for an arbitrary key value.
func (rt *Runtime) SetComputed(target, key, v Value) error {
	if target.IsObject() {
		if idx, ok := valueIndex(key); ok {
			obj := rt.Object(target)
			switch p := obj.Payload.(type) {
			case *ArrayPayload:
				if !obj.nonExtensible || idx < len(p.Elements) {
					return rt.SetArrayElement(p, idx, v)
				}
			case *TypedArrayPayload:
				return rt.typedSet(p, idx, v)
			}
		}
	}
	k, err := rt.ToPropertyKey(key)
	if err != nil {
		return err
	}
	return rt.SetProperty(target, k, v)
}

// defineField creates or replaces an own enumerable data property without
// consulting setters; used by object and class literals.
func (rt *Runtime) defineField(target Value, key PropertyKey, v Value) error {
	if !target.IsObject() {
		return rt.typeError("Cannot define property on %s", rt.Inspect(target))
	}
	if key == rt.keys.proto {
		if v.IsObject() || v.IsNull() {
			return rt.SetPrototypeOf(target, v)
		}
		return nil
	}
	obj := rt.Object(target)
	if a, ok := obj.Payload.(*ArrayPayload); ok {
		if idx, ok := rt.names.ArrayIndex(key); ok {
			return rt.SetArrayElement(a, idx, v)
		}
	}
	obj.Props.Define(key, DefaultDataFlags, PropertyCell{Value: v})
	return nil
}

// DefineProperty installs a data property with explicit flags.
func (rt *Runtime) DefineProperty(target Value, key PropertyKey, v Value, flags PropFlags) {
	rt.Object(target).Props.Define(key, flags&^accessorMask, PropertyCell{Value: v})
}

// DefineAccessor installs getter and/or setter (Undefined to omit).
func (rt *Runtime) DefineAccessor(target Value, key PropertyKey, getter, setter Value, flags PropFlags) {
	props := &rt.Object(target).Props
	if !getter.IsUndefined() {
		props.DefineGetter(key, getter, flags)
	}
	if !setter.IsUndefined() {
		props.DefineSetter(key, setter, flags)
	}
}

// DeleteProperty removes an own property. Deleting a non-configurable
// property throws a TypeError.
func (rt *Runtime) DeleteProperty(target Value, key PropertyKey) (bool, error) {
	switch target.typ {
	case TypeObject:
	case TypeUndefined, TypeNull:
		return false, rt.typeError("Cannot convert undefined or null to object")
	default:
		return true, nil
	}
	obj := rt.Object(target)
	switch p := obj.Payload.(type) {
	case *ProxyPayload:
		return rt.proxyDelete(p, key)
	case *ArrayPayload:
		if key == rt.keys.length {
			return false, rt.typeError("Cannot delete property 'length' of [object Array]")
		}
		if idx, ok := rt.names.ArrayIndex(key); ok {
			if idx < len(p.Elements) {
				p.Elements[idx] = ArrayElement{Hole: true, Value: Undefined}
			}
			return true, nil
		}
	}
	prop, ok := obj.Props.Lookup(key)
	if !ok {
		return true, nil
	}
	if !prop.Configurable() {
		return false, rt.typeError("Cannot delete property '%s' of %s", rt.KeyName(key), rt.Inspect(target))
	}
	obj.Props.Delete(key)
	return true, nil
}

// HasProperty reports whether key is found on target or its prototypes.
func (rt *Runtime) HasProperty(target Value, key PropertyKey) (bool, error) {
	if !target.IsObject() {
		return false, rt.typeError("Cannot use 'in' operator to search for '%s' in %s", rt.KeyName(key), rt.Inspect(target))
	}
	if key == rt.keys.proto {
		return true, nil
	}
	cur := target
	for depth := 0; cur.IsObject(); depth++ {
		if depth > maxProtoDepth {
			return false, rt.rangeError("prototype chain too deep")
		}
		obj := rt.Object(cur)
		if p, ok := obj.Payload.(*ProxyPayload); ok {
			return rt.proxyHas(p, key)
		}
		if rt.hasOwnExotic(obj, key) {
			return true, nil
		}
		if _, ok := obj.Props.Lookup(key); ok {
			return true, nil
		}
		cur = obj.Proto
	}
	return false, nil
}

// HasOwnProperty reports whether key is an own property of target.
func (rt *Runtime) HasOwnProperty(target Value, key PropertyKey) bool {
	obj, ok := rt.objectOf(target)
	if !ok {
		return false
	}
	if rt.hasOwnExotic(obj, key) {
		return true
	}
	_, ok = obj.Props.Lookup(key)
	return ok
}

func (rt *Runtime) hasOwnExotic(obj *HeapObject, key PropertyKey) bool {
	switch p := obj.Payload.(type) {
	case *ArrayPayload:
		if key == rt.keys.length {
			return true
		}
		if idx, ok := rt.names.ArrayIndex(key); ok {
			_, present := p.Get(idx)
			return present
		}
	case *TypedArrayPayload:
		if key == rt.keys.length {
			return true
		}
		if idx, ok := rt.names.ArrayIndex(key); ok {
			return idx < p.Length
		}
	case *PrimitiveWrapper:
		if p.K == PayloadStringObject {
			_, ok := rt.stringOwn(p.Value, key)
			return ok
		}
	}
	return false
}

// GetOwnProperty returns the own slot for key, synthesizing one for array
// elements.
func (rt *Runtime) GetOwnProperty(target Value, key PropertyKey) (Property, bool) {
	obj, ok := rt.objectOf(target)
	if !ok {
		return Property{}, false
	}
	if a, ok := obj.Payload.(*ArrayPayload); ok {
		if key == rt.keys.length {
			return Property{Key: key, Flags: FlagWritable, Cell: PropertyCell{Value: IntegerValue(int32(len(a.Elements)))}}, true
		}
		if idx, ok := rt.names.ArrayIndex(key); ok {
			v, present := a.Get(idx)
			return Property{Key: key, Flags: DefaultDataFlags, Cell: PropertyCell{Value: v}}, present
		}
	}
	p, ok := obj.Props.Lookup(key)
	if !ok {
		return Property{}, false
	}
	return *p, true
}

// OwnKeys lists own property keys: array indexes ascending first, then the
// remaining integer-like keys ascending, then strings in insertion order, then
// symbols. onlyEnumerable filters out non-enumerable slots.
func (rt *Runtime) OwnKeys(target Value, onlyEnumerable bool) ([]PropertyKey, error) {
	obj, ok := rt.objectOf(target)
	if !ok {
		return nil, nil
	}
	if p, ok := obj.Payload.(*ProxyPayload); ok {
		return rt.proxyOwnKeys(p, onlyEnumerable)
	}
	var keys []PropertyKey
	switch p := obj.Payload.(type) {
	case *ArrayPayload:
		for i, e := range p.Elements {
			if !e.Hole {
				keys = append(keys, rt.names.Intern(strconv.Itoa(i)))
			}
		}
	case *TypedArrayPayload:
		for i := 0; i < p.Length; i++ {
			keys = append(keys, rt.names.Intern(strconv.Itoa(i)))
		}
	case *PrimitiveWrapper:
		if p.K == PayloadStringObject {
			n := rt.heap.StringLength(p.Value)
			for i := 0; i < n; i++ {
				keys = append(keys, rt.names.Intern(strconv.Itoa(i)))
			}
		}
	}
	var indexed []PropertyKey
	var named, symbols []PropertyKey
	for _, s := range obj.Props.Slots() {
		if onlyEnumerable && !s.Enumerable() {
			continue
		}
		switch {
		case s.Key.IsSymbol():
			symbols = append(symbols, s.Key)
		default:
			if _, ok := rt.names.ArrayIndex(s.Key); ok {
				indexed = append(indexed, s.Key)
			} else {
				named = append(named, s.Key)
			}
		}
	}
	sort.Slice(indexed, func(i, j int) bool {
		a, _ := rt.names.ArrayIndex(indexed[i])
		b, _ := rt.names.ArrayIndex(indexed[j])
		return a < b
	})
	keys = append(keys, indexed...)
	keys = append(keys, named...)
	return append(keys, symbols...), nil
}

// CopyDataProperties copies the own enumerable properties of src onto dst,
// invoking getters on src. Nullish sources are ignored.
func (rt *Runtime) CopyDataProperties(dst, src Value) error {
	if src.IsNullish() {
		return nil
	}
	if src.IsString() {
		units := []rune(rt.GoString(src))
		for i, r := range units {
			if err := rt.defineField(dst, rt.names.Intern(strconv.Itoa(i)), rt.String(string(r))); err != nil {
				return err
			}
		}
		return nil
	}
	if !src.IsObject() {
		return nil
	}
	keys, err := rt.OwnKeys(src, true)
	if err != nil {
		return err
	}
	for _, k := range keys {
		v, err := rt.GetProperty(src, k)
		if err != nil {
			return err
		}
		if err := rt.defineField(dst, k, v); err != nil {
			return err
		}
	}
	return nil
}

// SetPrototypeOf replaces the prototype of target, rejecting cycles.
func (rt *Runtime) SetPrototypeOf(target, proto Value) error {
	obj, ok := rt.objectOf(target)
	if !ok {
		return nil
	}
	if p, ok := obj.Payload.(*ProxyPayload); ok {
		return rt.proxySetPrototype(p, proto)
	}
	for cur := proto; cur.IsObject(); cur = rt.Object(cur).Proto {
		if cur == target {
			return rt.typeError("Cyclic __proto__ value")
		}
	}
	if obj.nonExtensible && obj.Proto != proto {
		return rt.typeError("%s is not extensible", rt.Inspect(target))
	}
	obj.Proto = proto
	return nil
}

// PreventExtensions stops new properties from being added to target.
func (rt *Runtime) PreventExtensions(target Value) {
	if obj, ok := rt.objectOf(target); ok {
		obj.nonExtensible = true
	}
}

func (rt *Runtime) opIn(key, target Value) (Value, error) {
	if !target.IsObject() {
		ks, _ := rt.ToGoString(key)
		return Undefined, rt.typeError("Cannot use 'in' operator to search for '%s' in %s", ks, rt.Inspect(target))
	}
	k, err := rt.ToPropertyKey(key)
	if err != nil {
		return Undefined, err
	}
	ok, err := rt.HasProperty(target, k)
	return BooleanValue(ok), err
}

// InstanceOf walks v's prototype chain looking for ctor.prototype.
func (rt *Runtime) InstanceOf(v, ctor Value) (bool, error) {
	if !ctor.IsObject() {
		return false, rt.typeError("Right-hand side of 'instanceof' is not an object")
	}
	hasInstance, err := rt.GetProperty(ctor, SymbolKey(SymbolHasInstance))
	if err != nil {
		return false, err
	}
	if !hasInstance.IsNullish() {
		res, err := rt.Call(hasInstance, ctor, []Value{v})
		if err != nil {
			return false, err
		}
		return rt.ToBoolean(res), nil
	}
	if !rt.IsCallable(ctor) {
		return false, rt.typeError("Right-hand side of 'instanceof' is not callable")
	}
	if fp, ok := rt.functionOf(ctor); ok && fp.Bound != nil {
		return rt.InstanceOf(v, fp.Bound.Target)
	}
	if !v.IsObject() {
		return false, nil
	}
	proto, err := rt.GetProperty(ctor, rt.keys.prototype)
	if err != nil {
		return false, err
	}
	if !proto.IsObject() {
		return false, rt.typeError("Function has non-object prototype '%s' in instanceof check", rt.Inspect(proto))
	}
	for cur, depth := rt.Object(v).Proto, 0; cur.IsObject(); cur, depth = rt.Object(cur).Proto, depth+1 {
		if cur == proto {
			return true, nil
		}
		if depth > maxProtoDepth {
			break
		}
	}
	return false, nil
}

func (rt *Runtime) arrayPush(arr, v Value) error {
	a, ok := rt.arrayOf(arr)
	if !ok {
		return rt.typeError("%s is not an array", rt.Inspect(arr))
	}
	if err := rt.CheckArrayLength(len(a.Elements) + 1); err != nil {
		return err
	}
	a.Elements = append(a.Elements, ArrayElement{Value: v})
	return nil
}

func (rt *Runtime) arraySpread(arr, iterable Value) error {
	a, ok := rt.arrayOf(arr)
	if !ok {
		return rt.typeError("%s is not an array", rt.Inspect(arr))
	}
	values, err := rt.iterableToList(iterable)
	if err != nil {
		return err
	}
	if err := rt.CheckArrayLength(len(a.Elements) + len(values)); err != nil {
		return err
	}
	for _, v := range values {
		a.Elements = append(a.Elements, ArrayElement{Value: v})
	}
	return nil
}

// typedGet reads element idx of a typed array; out of range reads Undefined.
func (rt *Runtime) typedGet(p *TypedArrayPayload, idx int) Value {
	if idx < 0 || idx >= p.Length {
		return Undefined
	}
	buf := rt.Object(p.Buffer).Payload.(*ArrayBufferPayload).Data
	size := p.ArrayKind.ElementSize()
	b := buf[p.Offset+idx*size:]
	switch p.ArrayKind {
	case TypedInt8:
		return IntegerValue(int32(int8(b[0])))
	case TypedUint8:
		return IntegerValue(int32(b[0]))
	case TypedInt16:
		return IntegerValue(int32(int16(binary.LittleEndian.Uint16(b))))
	case TypedUint16:
		return IntegerValue(int32(binary.LittleEndian.Uint16(b)))
	case TypedInt32:
		return IntegerValue(int32(binary.LittleEndian.Uint32(b)))
	case TypedUint32:
		return NumericValue(float64(binary.LittleEndian.Uint32(b)))
	case TypedFloat32:
		return NumberValue(float64(math.Float32frombits(binary.LittleEndian.Uint32(b))))
	default:
		return NumberValue(math.Float64frombits(binary.LittleEndian.Uint64(b)))
	}
}

// typedSet writes element idx; out of range writes are ignored.
func (rt *Runtime) typedSet(p *TypedArrayPayload, idx int, v Value) error {
	f, err := rt.ToNumber(v)
	if err != nil {
		return err
	}
	if idx < 0 || idx >= p.Length {
		return nil
	}
	buf := rt.Object(p.Buffer).Payload.(*ArrayBufferPayload).Data
	size := p.ArrayKind.ElementSize()
	b := buf[p.Offset+idx*size:]
	switch p.ArrayKind {
	case TypedInt8, TypedUint8:
		b[0] = byte(toInt32(f))
	case TypedInt16, TypedUint16:
		binary.LittleEndian.PutUint16(b, uint16(toInt32(f)))
	case TypedInt32, TypedUint32:
		binary.LittleEndian.PutUint32(b, toUint32(f))
	case TypedFloat32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(f)))
	default:
		binary.LittleEndian.PutUint64(b, math.Float64bits(f))
	}
	return nil
}
