package builtins

import (
	"lynx/pkg/vm"
)

// MapInitializer installs Map and WeakMap.
type MapInitializer struct{}

func (m *MapInitializer) Name() string {
	return "Map"
}

func (m *MapInitializer) Priority() int {
	return PriorityMap
}

// entriesOf returns the ordered entry table behind a Map or Set receiver.
func entriesOf(rt *vm.Runtime, this vm.Value, kind vm.PayloadKind, method string) (*vm.MapPayload, error) {
	if this.IsObject() {
		switch p := rt.Object(this).Payload.(type) {
		case *vm.MapPayload:
			if kind == vm.PayloadMap {
				return p, nil
			}
		case *vm.SetPayload:
			if kind == vm.PayloadSet {
				return &p.MapPayload, nil
			}
		}
	}
	return nil, rt.TypeError("Method %s called on incompatible receiver %s", method, rt.Inspect(this))
}

// snapshot copies the live entries so callbacks may mutate the table.
func snapshot(p *vm.MapPayload) (keys, values []vm.Value) {
	p.Entries(func(k, v vm.Value) bool {
		keys = append(keys, k)
		values = append(values, v)
		return true
	})
	return keys, values
}

// fillFromIterable feeds each item of iterable to add.
func fillFromIterable(rt *vm.Runtime, iterable vm.Value, add func(item vm.Value) error) error {
	if iterable.IsNullish() {
		return nil
	}
	items, err := rt.IterableToList(iterable)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := add(item); err != nil {
			return err
		}
	}
	return nil
}

func (m *MapInitializer) InitRuntime(ctx *RuntimeContext) error {
	rt := ctx.Runtime
	realm := rt.Realm()
	mapProto := realm.MapPrototype
	iterSym, _ := vm.WellKnownSymbol("iterator")

	entryPair := func(item vm.Value) (vm.Value, vm.Value, error) {
		if !item.IsObject() {
			return vm.Undefined, vm.Undefined, rt.TypeError("Iterator value %s is not an entry object", rt.Inspect(item))
		}
		k, err := rt.GetComputed(item, vm.IntegerValue(0))
		if err != nil {
			return vm.Undefined, vm.Undefined, err
		}
		v, err := rt.GetComputed(item, vm.IntegerValue(1))
		return k, v, err
	}

	ctor := rt.NewNativeConstructor("Map", 0, mapProto, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		if !c.IsConstruct() {
			return vm.Undefined, rt.TypeError("Constructor Map requires 'new'")
		}
		result := rt.NewMap()
		err := fillFromIterable(rt, vm.Arg(args, 0), func(item vm.Value) error {
			k, v, err := entryPair(item)
			if err != nil {
				return err
			}
			return rt.MapSet(result, k, v)
		})
		if err != nil {
			return vm.Undefined, err
		}
		return result, nil
	})

	rt.DefineMethod(mapProto, "get", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		return rt.MapGet(this, vm.Arg(args, 0))
	})

	rt.DefineMethod(mapProto, "set", 2, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		if err := rt.MapSet(this, vm.Arg(args, 0), vm.Arg(args, 1)); err != nil {
			return vm.Undefined, err
		}
		return this, nil
	})

	installCollectionCommon(rt, mapProto, vm.PayloadMap, "Map")

	entries := rt.DefineMethod(mapProto, "entries", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		p, err := entriesOf(rt, this, vm.PayloadMap, "Map.prototype.entries")
		if err != nil {
			return vm.Undefined, err
		}
		keys, values := snapshot(p)
		pairs := make([]vm.Value, len(keys))
		for i := range keys {
			pairs[i] = rt.NewArray([]vm.Value{keys[i], values[i]})
		}
		return rt.NewListIterator(pairs), nil
	})
	rt.Object(mapProto).Props.SetValue(vm.SymbolKey(iterSym), entries, vm.HiddenDataFlags)

	rt.DefineMethod(mapProto, "keys", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		p, err := entriesOf(rt, this, vm.PayloadMap, "Map.prototype.keys")
		if err != nil {
			return vm.Undefined, err
		}
		keys, _ := snapshot(p)
		return rt.NewListIterator(keys), nil
	})

	rt.DefineMethod(mapProto, "values", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		p, err := entriesOf(rt, this, vm.PayloadMap, "Map.prototype.values")
		if err != nil {
			return vm.Undefined, err
		}
		_, values := snapshot(p)
		return rt.NewListIterator(values), nil
	})

	if err := ctx.DefineGlobal("Map", ctor); err != nil {
		return err
	}

	// WeakMap
	weakProto := realm.WeakMapPrototype
	weakCtor := rt.NewNativeConstructor("WeakMap", 0, weakProto, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		if !c.IsConstruct() {
			return vm.Undefined, rt.TypeError("Constructor WeakMap requires 'new'")
		}
		result := rt.NewWeakMap()
		err := fillFromIterable(rt, vm.Arg(args, 0), func(item vm.Value) error {
			k, v, err := entryPair(item)
			if err != nil {
				return err
			}
			return rt.WeakMapSet(result, k, v)
		})
		if err != nil {
			return vm.Undefined, err
		}
		return result, nil
	})

	rt.DefineMethod(weakProto, "get", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		return rt.WeakMapGet(this, vm.Arg(args, 0))
	})
	rt.DefineMethod(weakProto, "set", 2, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		if err := rt.WeakMapSet(this, vm.Arg(args, 0), vm.Arg(args, 1)); err != nil {
			return vm.Undefined, err
		}
		return this, nil
	})
	rt.DefineMethod(weakProto, "has", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		ok, err := rt.WeakMapHas(this, vm.Arg(args, 0))
		return vm.BooleanValue(ok), err
	})
	rt.DefineMethod(weakProto, "delete", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		ok, err := rt.WeakMapDelete(this, vm.Arg(args, 0))
		return vm.BooleanValue(ok), err
	})

	return ctx.DefineGlobal("WeakMap", weakCtor)
}

// installCollectionCommon installs the methods Map and Set share.
func installCollectionCommon(rt *vm.Runtime, proto vm.Value, kind vm.PayloadKind, name string) {
	rt.DefineMethod(proto, "has", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		if _, err := entriesOf(rt, this, kind, name+".prototype.has"); err != nil {
			return vm.Undefined, err
		}
		ok, err := rt.MapHas(this, vm.Arg(args, 0))
		return vm.BooleanValue(ok), err
	})

	rt.DefineMethod(proto, "delete", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		if _, err := entriesOf(rt, this, kind, name+".prototype.delete"); err != nil {
			return vm.Undefined, err
		}
		ok, err := rt.MapDelete(this, vm.Arg(args, 0))
		return vm.BooleanValue(ok), err
	})

	rt.DefineMethod(proto, "clear", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		if _, err := entriesOf(rt, this, kind, name+".prototype.clear"); err != nil {
			return vm.Undefined, err
		}
		return vm.Undefined, rt.MapClear(this)
	})

	rt.DefineGetter(proto, "size", func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		if _, err := entriesOf(rt, this, kind, "get "+name+".prototype.size"); err != nil {
			return vm.Undefined, err
		}
		n, err := rt.MapSize(this)
		return vm.IntegerValue(int32(n)), err
	})

	rt.DefineMethod(proto, "forEach", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		p, err := entriesOf(rt, this, kind, name+".prototype.forEach")
		if err != nil {
			return vm.Undefined, err
		}
		fn, err := callback(rt, args, 0)
		if err != nil {
			return vm.Undefined, err
		}
		thisArg := vm.Arg(args, 1)
		keys, values := snapshot(p)
		for i := range keys {
			if _, err := rt.Call(fn, thisArg, []vm.Value{values[i], keys[i], this}); err != nil {
				return vm.Undefined, err
			}
		}
		return vm.Undefined, nil
	})
}
