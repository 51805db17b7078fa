package builtins

import (
	"math"
	"testing"

	"lynx/pkg/vm"
)

func TestMap(t *testing.T) {
	env := newTestEnv(t)
	rt := env.rt

	entries := rt.NewArray([]vm.Value{
		rt.NewArray([]vm.Value{env.str("a"), vm.IntegerValue(1)}),
		rt.NewArray([]vm.Value{vm.NumberValue(0), env.str("zero")}),
	})
	m := env.construct(t, "Map", entries)

	if got := env.method(t, m, "get", env.str("a")); got.AsInteger() != 1 {
		t.Errorf("get(a) = %s, want 1", rt.Inspect(got))
	}
	// -0 and +0 are the same key
	if got := env.method(t, m, "get", vm.NumberValue(math.Copysign(0, -1))); env.goString(t, got) != "zero" {
		t.Errorf("get(0) = %s, want zero", rt.Inspect(got))
	}
	if ret := env.method(t, m, "set", env.str("b"), vm.IntegerValue(2)); ret != m {
		t.Error("set did not return the map")
	}

	size, err := rt.GetProperty(m, rt.Key("size"))
	if err != nil {
		t.Fatal(err)
	}
	if size.AsInteger() != 3 {
		t.Errorf("size = %s, want 3", rt.Inspect(size))
	}

	if !env.method(t, m, "delete", env.str("a")).AsBoolean() {
		t.Error("delete(a) = false, want true")
	}
	if env.method(t, m, "has", env.str("a")).AsBoolean() {
		t.Error("has(a) after delete = true")
	}

	keys, err := rt.IterableToList(env.method(t, m, "keys"))
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0].AsInteger() != 0 || env.goString(t, keys[1]) != "b" {
		t.Errorf("keys = %v entries, want [0, b]", len(keys))
	}

	// Map is iterable as [key, value] pairs
	pairs, err := rt.IterableToList(m)
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 2 {
		t.Fatalf("iterated %d entries, want 2", len(pairs))
	}
	v, err := rt.GetComputed(pairs[1], vm.IntegerValue(1))
	if err != nil {
		t.Fatal(err)
	}
	if v.AsInteger() != 2 {
		t.Errorf("second entry value = %s, want 2", rt.Inspect(v))
	}

	env.method(t, m, "clear")
	size, _ = rt.GetProperty(m, rt.Key("size"))
	if size.AsInteger() != 0 {
		t.Errorf("size after clear = %s, want 0", rt.Inspect(size))
	}
}

func TestMapForEach(t *testing.T) {
	env := newTestEnv(t)
	rt := env.rt
	m := env.construct(t, "Map")
	env.method(t, m, "set", env.str("x"), vm.IntegerValue(10))
	env.method(t, m, "set", env.str("y"), vm.IntegerValue(20))

	var seen []string
	sum := int32(0)
	fn := rt.NewNativeFunction("cb", 3, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		k, _ := rt.ToGoString(vm.Arg(args, 1))
		seen = append(seen, k)
		sum += vm.Arg(args, 0).AsInteger()
		if vm.Arg(args, 2) != m {
			t.Error("third forEach argument is not the map")
		}
		return vm.Undefined, nil
	})
	env.method(t, m, "forEach", fn)
	if len(seen) != 2 || seen[0] != "x" || seen[1] != "y" || sum != 30 {
		t.Errorf("forEach visited %v with sum %d", seen, sum)
	}
}

func TestSet(t *testing.T) {
	env := newTestEnv(t)
	rt := env.rt

	s := env.construct(t, "Set", rt.NewArray([]vm.Value{
		vm.IntegerValue(1), vm.IntegerValue(2), vm.IntegerValue(1), vm.NumberValue(2),
	}))
	size, err := rt.GetProperty(s, rt.Key("size"))
	if err != nil {
		t.Fatal(err)
	}
	if size.AsInteger() != 2 {
		t.Errorf("size = %s, want 2", rt.Inspect(size))
	}

	env.method(t, s, "add", env.str("two"))
	if !env.method(t, s, "has", env.str("two")).AsBoolean() {
		t.Error("has(two) = false after add")
	}

	values, err := rt.IterableToList(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 3 || values[0].AsInteger() != 1 || env.goString(t, values[2]) != "two" {
		t.Errorf("iteration produced %d values", len(values))
	}

	// Set methods reject a Map receiver
	m := env.construct(t, "Map")
	add, _ := rt.GetProperty(s, rt.Key("add"))
	if _, err := rt.Call(add, m, []vm.Value{vm.IntegerValue(1)}); err == nil {
		t.Error("Set.prototype.add on a Map succeeded")
	}
}

func TestWeakCollections(t *testing.T) {
	env := newTestEnv(t)
	rt := env.rt

	wm := env.construct(t, "WeakMap")
	key := rt.NewPlainObject()
	env.method(t, wm, "set", key, vm.IntegerValue(7))
	if got := env.method(t, wm, "get", key); got.AsInteger() != 7 {
		t.Errorf("WeakMap get = %s, want 7", rt.Inspect(got))
	}
	set, _ := rt.GetProperty(wm, rt.Key("set"))
	if _, err := rt.Call(set, wm, []vm.Value{vm.IntegerValue(1), vm.IntegerValue(1)}); err == nil {
		t.Error("WeakMap accepted a primitive key")
	}

	ws := env.construct(t, "WeakSet")
	env.method(t, ws, "add", key)
	if !env.method(t, ws, "has", key).AsBoolean() {
		t.Error("WeakSet has = false after add")
	}
	if !env.method(t, ws, "delete", key).AsBoolean() {
		t.Error("WeakSet delete = false")
	}
	if env.method(t, ws, "has", key).AsBoolean() {
		t.Error("WeakSet has = true after delete")
	}
}
