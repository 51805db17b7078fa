package vm

import (
	"fmt"
	"math"
	"strings"
	"testing"
)

func TestPropertyMapBasic(t *testing.T) {
	var m PropertyMap
	m.SetValue(1, IntegerValue(10), DefaultDataFlags)
	m.SetValue(2, IntegerValue(20), DefaultDataFlags)
	m.SetValue(1, IntegerValue(11), DefaultDataFlags)

	if m.Len() != 2 {
		t.Fatalf("Len = %d, want 2", m.Len())
	}
	p, ok := m.Lookup(1)
	if !ok || p.Cell.Value.AsInteger() != 11 {
		t.Errorf("Lookup(1) = %v, %v; want 11", p, ok)
	}
	if _, ok := m.Lookup(3); ok {
		t.Errorf("Lookup(3) should miss")
	}
	if !m.Delete(1) {
		t.Errorf("Delete(1) = false")
	}
	if m.Delete(1) {
		t.Errorf("second Delete(1) = true")
	}
	if slots := m.Slots(); len(slots) != 1 || slots[0].Key != 2 {
		t.Errorf("slots after delete = %v", slots)
	}
}

func TestPropertyMapKeepsOrderAcrossIndexing(t *testing.T) {
	var m PropertyMap
	const n = indexThreshold * 3
	for i := 0; i < n; i++ {
		m.SetValue(PropertyKey(100+i), IntegerValue(int32(i)), DefaultDataFlags)
	}
	if m.index == nil {
		t.Fatalf("index should be built past %d slots", indexThreshold)
	}
	for i := 0; i < n; i += 2 {
		m.Delete(PropertyKey(100 + i))
	}
	slots := m.Slots()
	if len(slots) != n/2 {
		t.Fatalf("len = %d, want %d", len(slots), n/2)
	}
	for i, s := range slots {
		want := PropertyKey(100 + 2*i + 1)
		if s.Key != want {
			t.Errorf("slot %d key = %d, want %d", i, s.Key, want)
		}
		p, ok := m.Lookup(want)
		if !ok || p.Cell.Value.AsInteger() != int32(2*i+1) {
			t.Errorf("Lookup(%d) after deletes = %v, %v", want, p, ok)
		}
	}
}

func TestPropertyMapAccessors(t *testing.T) {
	var m PropertyMap
	getter := IntegerValue(1) // stand-ins; the map does not call them
	setter := IntegerValue(2)
	m.DefineGetter(5, getter, FlagEnumerable|FlagConfigurable)
	m.DefineSetter(5, setter, FlagEnumerable|FlagConfigurable)
	p, ok := m.Lookup(5)
	if !ok {
		t.Fatalf("accessor not found")
	}
	if !p.IsAccessor() || p.Flags&FlagGetter == 0 || p.Flags&FlagSetter == 0 {
		t.Errorf("flags = %b, want getter and setter", p.Flags)
	}
	if p.Cell.Getter != getter || p.Cell.Setter != setter {
		t.Errorf("accessor cell = %+v", p.Cell)
	}
	if p.Writable() {
		t.Errorf("accessor slots are never writable")
	}
}

func TestObjectGetSetThroughPrototype(t *testing.T) {
	rt := newTestRuntime(t)
	proto := rt.NewPlainObject()
	obj := rt.NewObject(proto, nil)
	a := rt.Key("a")

	rt.DefineProperty(proto, a, IntegerValue(1), DefaultDataFlags)
	v, err := rt.GetProperty(obj, a)
	if err != nil || v.AsInteger() != 1 {
		t.Fatalf("inherited get = %v, %v", v, err)
	}

	// assignment shadows on the receiver
	if err := rt.SetProperty(obj, a, IntegerValue(2)); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}
	if pv, _ := rt.GetProperty(proto, a); pv.AsInteger() != 1 {
		t.Errorf("prototype value changed to %v", pv)
	}
	if !rt.HasOwnProperty(obj, a) {
		t.Errorf("assignment should create an own property")
	}
	prop, ok := rt.GetOwnProperty(obj, a)
	if !ok || !prop.Enumerable() || !prop.Writable() || !prop.Configurable() {
		t.Errorf("created property flags = %b", prop.Flags)
	}

	ok, err = rt.HasProperty(obj, rt.Key("missing"))
	if err != nil || ok {
		t.Errorf("HasProperty(missing) = %v, %v", ok, err)
	}
}

func TestObjectReadOnlyProperty(t *testing.T) {
	rt := newTestRuntime(t)
	obj := rt.NewPlainObject()
	k := rt.Key("fixed")
	rt.DefineProperty(obj, k, IntegerValue(1), FlagEnumerable)

	err := rt.SetProperty(obj, k, IntegerValue(2))
	exc, ok := err.(*Exception)
	if !ok {
		t.Fatalf("expected a thrown TypeError, got %v", err)
	}
	if got := rt.describeThrown(exc.Value); got != "TypeError: Cannot assign to read only property 'fixed' of object" {
		t.Errorf("thrown = %q", got)
	}
	if _, err := rt.DeleteProperty(obj, k); err == nil {
		t.Errorf("deleting a non-configurable property should throw")
	}
}

func TestObjectAccessorProperty(t *testing.T) {
	rt := newTestRuntime(t)
	obj := rt.NewPlainObject()
	k := rt.Key("x")
	var stored Value
	getter := rt.NewNativeFunction("get x", 0, func(_ *CallContext, this Value, _ []Value) (Value, error) {
		if this != obj {
			t.Errorf("getter receiver = %s", rt.Inspect(this))
		}
		return IntegerValue(99), nil
	})
	setter := rt.NewNativeFunction("set x", 1, func(_ *CallContext, _ Value, args []Value) (Value, error) {
		stored = Arg(args, 0)
		return Undefined, nil
	})
	rt.DefineAccessor(obj, k, getter, setter, FlagConfigurable)

	v, err := rt.GetProperty(obj, k)
	if err != nil || v.AsInteger() != 99 {
		t.Errorf("getter result = %v, %v", v, err)
	}
	if err := rt.SetProperty(obj, k, IntegerValue(5)); err != nil {
		t.Fatalf("setter: %v", err)
	}
	if stored.AsInteger() != 5 {
		t.Errorf("setter saw %v", stored)
	}

	readOnly := rt.NewPlainObject()
	rt.DefineAccessor(readOnly, k, getter, Undefined, FlagConfigurable)
	if err := rt.SetProperty(readOnly, k, IntegerValue(1)); err == nil {
		t.Errorf("assigning a getter-only property should throw")
	}
}

func TestOwnKeysOrder(t *testing.T) {
	rt := newTestRuntime(t)
	obj := rt.NewPlainObject()
	for _, name := range []string{"b", "10", "a", "2"} {
		if err := rt.SetProperty(obj, rt.Key(name), True); err != nil {
			t.Fatal(err)
		}
	}
	sym := rt.NewSymbol("s", true)
	rt.DefineProperty(obj, SymbolKey(sym.AsSymbol()), True, DefaultDataFlags)
	rt.DefineProperty(obj, rt.Key("hidden"), True, HiddenDataFlags)

	keys, err := rt.OwnKeys(obj, true)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, k := range keys {
		names = append(names, rt.KeyName(k))
	}
	want := []string{"2", "10", "b", "a", "Symbol(s)"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("OwnKeys = %v, want %v", names, want)
	}

	all, _ := rt.OwnKeys(obj, false)
	if len(all) != len(want)+1 {
		t.Errorf("OwnKeys(all) has %d keys, want %d", len(all), len(want)+1)
	}
}

func TestArrayExoticLength(t *testing.T) {
	rt := newTestRuntime(t)
	arr := rt.NewArray([]Value{IntegerValue(1), IntegerValue(2)})

	if err := rt.SetComputed(arr, IntegerValue(4), IntegerValue(5)); err != nil {
		t.Fatal(err)
	}
	n, err := rt.GetProperty(arr, rt.keys.length)
	if err != nil || n.AsInteger() != 5 {
		t.Fatalf("length = %v, %v; want 5", n, err)
	}
	if v, _ := rt.GetComputed(arr, IntegerValue(3)); !v.IsUndefined() {
		t.Errorf("hole read = %s, want undefined", rt.Inspect(v))
	}
	if rt.HasOwnProperty(arr, rt.Key("3")) {
		t.Errorf("hole should not be an own property")
	}

	if err := rt.SetProperty(arr, rt.keys.length, IntegerValue(1)); err != nil {
		t.Fatal(err)
	}
	if v, _ := rt.GetComputed(arr, IntegerValue(1)); !v.IsUndefined() {
		t.Errorf("truncated element still readable: %s", rt.Inspect(v))
	}
	if err := rt.SetProperty(arr, rt.keys.length, NumberValue(1.5)); err == nil {
		t.Errorf("fractional length should throw a RangeError")
	}

	keys, _ := rt.OwnKeys(arr, true)
	if len(keys) != 1 || rt.KeyName(keys[0]) != "0" {
		t.Errorf("array own keys = %v", keys)
	}
}

func TestSetPrototypeRejectsCycles(t *testing.T) {
	rt := newTestRuntime(t)
	a := rt.NewPlainObject()
	b := rt.NewObject(a, nil)
	if err := rt.SetPrototypeOf(a, b); err == nil {
		t.Errorf("cyclic prototype chain accepted")
	}
	if err := rt.SetPrototypeOf(b, Null); err != nil {
		t.Errorf("SetPrototypeOf(null): %v", err)
	}

	rt.PreventExtensions(a)
	if err := rt.SetProperty(a, rt.Key("n"), True); err == nil {
		t.Errorf("adding to a non-extensible object should throw")
	}
}

func TestMapSemantics(t *testing.T) {
	rt := newTestRuntime(t)
	m := rt.NewMap()
	negZero := NumberValue(math.Copysign(0, -1))

	entries := []struct{ k, v Value }{
		{rt.String("k"), IntegerValue(1)},
		{NaN, IntegerValue(2)},
		{IntegerValue(0), IntegerValue(3)},
	}
	for _, e := range entries {
		if err := rt.MapSet(m, e.k, e.v); err != nil {
			t.Fatal(err)
		}
	}

	testCases := []struct {
		name string
		key  Value
		want int32
	}{
		{"string by content", rt.String("k"), 1},
		{"nan", NumberValue(math.NaN()), 2},
		{"negative zero", negZero, 3},
		{"float zero", NumberValue(0), 3},
	}
	for _, tc := range testCases {
		v, err := rt.MapGet(m, tc.key)
		if err != nil || v.AsInteger() != tc.want {
			t.Errorf("MapGet(%s) = %v, %v; want %d", tc.name, v, err, tc.want)
		}
	}

	if ok, _ := rt.MapDelete(m, NaN); !ok {
		t.Errorf("MapDelete(NaN) = false")
	}
	if size, _ := rt.MapSize(m); size != 2 {
		t.Errorf("size = %d, want 2", size)
	}

	var order []string
	mp, _ := rt.mapPayload(m)
	mp.Entries(func(k, _ Value) bool {
		order = append(order, rt.Inspect(k))
		return true
	})
	if fmt.Sprint(order) != "[k 0]" {
		t.Errorf("iteration order = %v", order)
	}

	if err := rt.MapSet(rt.NewPlainObject(), True, True); err == nil {
		t.Errorf("MapSet on a plain object should throw")
	}
}

func TestSetDeduplicates(t *testing.T) {
	rt := newTestRuntime(t)
	s := rt.NewSet()
	for _, v := range []Value{IntegerValue(1), NumberValue(1), rt.String("1"), rt.String("1")} {
		if err := rt.SetAdd(s, v); err != nil {
			t.Fatal(err)
		}
	}
	if n, _ := rt.MapSize(s); n != 2 {
		t.Errorf("set size = %d, want 2", n)
	}
	if ok, _ := rt.MapHas(s, rt.String("1")); !ok {
		t.Errorf("set should contain '1'")
	}
}

func TestWeakCollectionsRejectPrimitives(t *testing.T) {
	rt := newTestRuntime(t)
	wm := rt.NewWeakMap()
	if err := rt.WeakMapSet(wm, IntegerValue(1), True); err == nil {
		t.Errorf("WeakMap accepted a primitive key")
	}
	key := rt.NewPlainObject()
	if err := rt.WeakMapSet(wm, key, IntegerValue(7)); err != nil {
		t.Fatal(err)
	}
	if v, _ := rt.WeakMapGet(wm, key); v.AsInteger() != 7 {
		t.Errorf("WeakMapGet = %v", v)
	}
	ws := rt.NewWeakSet()
	if err := rt.WeakSetAdd(ws, rt.String("s")); err == nil {
		t.Errorf("WeakSet accepted a string")
	}
}

func TestProxyTraps(t *testing.T) {
	rt := newTestRuntime(t)
	target := rt.NewPlainObject()
	rt.SetProperty(target, rt.Key("real"), IntegerValue(1))
	handler := rt.NewPlainObject()
	rt.DefineMethod(handler, "get", 3, func(_ *CallContext, _ Value, args []Value) (Value, error) {
		name, _ := rt.ToGoString(Arg(args, 1))
		if name == "virtual" {
			return IntegerValue(42), nil
		}
		return rt.GetComputed(Arg(args, 0), Arg(args, 1))
	})
	rt.DefineMethod(handler, "set", 4, func(*CallContext, Value, []Value) (Value, error) {
		return False, nil
	})

	p, err := rt.NewProxy(target, handler)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := rt.GetProperty(p, rt.Key("virtual")); v.AsInteger() != 42 {
		t.Errorf("get trap = %s", rt.Inspect(v))
	}
	if v, _ := rt.GetProperty(p, rt.Key("real")); v.AsInteger() != 1 {
		t.Errorf("forwarded get = %s", rt.Inspect(v))
	}
	if err := rt.SetProperty(p, rt.Key("real"), IntegerValue(2)); err == nil {
		t.Errorf("falsish set trap should throw")
	}
	// no has trap: falls through to the target
	if ok, _ := rt.HasProperty(p, rt.Key("real")); !ok {
		t.Errorf("has fallthrough = false")
	}

	rt.RevokeProxy(p)
	if _, err := rt.GetProperty(p, rt.Key("real")); err == nil {
		t.Errorf("revoked proxy should throw")
	}
	if _, err := rt.NewProxy(IntegerValue(1), handler); err == nil {
		t.Errorf("proxy over a primitive should throw")
	}
}

func TestInstanceOf(t *testing.T) {
	rt := newTestRuntime(t)
	ctor := rt.NewNativeConstructor("C", 0, rt.NewPlainObject(), func(*CallContext, Value, []Value) (Value, error) {
		return Undefined, nil
	})
	inst, err := rt.Construct(ctor, nil)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := rt.InstanceOf(inst, ctor)
	if err != nil || !ok {
		t.Errorf("instanceof = %v, %v", ok, err)
	}
	ok, _ = rt.InstanceOf(rt.NewPlainObject(), ctor)
	if ok {
		t.Errorf("plain object should not be an instance")
	}
	if _, err := rt.InstanceOf(inst, IntegerValue(1)); err == nil {
		t.Errorf("instanceof a number should throw")
	}
}

func TestArrayGrowthIsBounded(t *testing.T) {
	rt := newTestRuntime(t)
	arr := rt.NewArray(nil)
	a, _ := rt.arrayOf(arr)

	testCases := []struct {
		name string
		set  func() error
	}{
		{"length", func() error { return rt.SetProperty(arr, rt.Key("length"), NumberValue(2147483646)) }},
		{"computed index", func() error { return rt.SetComputed(arr, NumberValue(2e9), True) }},
		{"named index", func() error { return rt.SetProperty(arr, rt.Key("2000000000"), True) }},
	}
	for _, tc := range testCases {
		err := tc.set()
		exc, ok := err.(*Exception)
		if !ok || !strings.HasPrefix(rt.describeThrown(exc.Value), "RangeError") {
			t.Errorf("%s: err = %v, want RangeError", tc.name, err)
		}
		if len(a.Elements) != 0 {
			t.Errorf("%s: array grew to %d elements", tc.name, len(a.Elements))
		}
	}

	if err := rt.SetComputed(arr, IntegerValue(9), True); err != nil {
		t.Fatalf("small growth: %v", err)
	}
	if len(a.Elements) != 10 || !a.Elements[3].Hole {
		t.Errorf("after arr[9] = true: %d elements, hole at 3 = %v", len(a.Elements), a.Elements[3].Hole)
	}
	if err := rt.SetProperty(arr, rt.Key("length"), IntegerValue(2)); err != nil || len(a.Elements) != 2 {
		t.Errorf("truncate: len %d, err %v", len(a.Elements), err)
	}
}

func TestArrayGrowthLimitIsConfigurable(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxArrayLength = 4
	rt := New(opts)
	if err := rt.Attach(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(rt.Detach)

	arr := rt.NewArray([]Value{IntegerValue(1), IntegerValue(2), IntegerValue(3)})
	if err := rt.arrayPush(arr, IntegerValue(4)); err != nil {
		t.Fatalf("push within the limit: %v", err)
	}
	if err := rt.arrayPush(arr, IntegerValue(5)); err == nil {
		t.Error("push past the limit succeeded")
	}
}
