package builtins

import (
	"lynx/pkg/vm"
)

// SetInitializer installs Set and WeakSet.
type SetInitializer struct{}

func (s *SetInitializer) Name() string {
	return "Set"
}

func (s *SetInitializer) Priority() int {
	return PrioritySet
}

func (s *SetInitializer) InitRuntime(ctx *RuntimeContext) error {
	rt := ctx.Runtime
	realm := rt.Realm()
	setProto := realm.SetPrototype
	iterSym, _ := vm.WellKnownSymbol("iterator")

	ctor := rt.NewNativeConstructor("Set", 0, setProto, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		if !c.IsConstruct() {
			return vm.Undefined, rt.TypeError("Constructor Set requires 'new'")
		}
		result := rt.NewSet()
		err := fillFromIterable(rt, vm.Arg(args, 0), func(item vm.Value) error {
			return rt.SetAdd(result, item)
		})
		if err != nil {
			return vm.Undefined, err
		}
		return result, nil
	})

	rt.DefineMethod(setProto, "add", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		if _, err := entriesOf(rt, this, vm.PayloadSet, "Set.prototype.add"); err != nil {
			return vm.Undefined, err
		}
		if err := rt.SetAdd(this, vm.Arg(args, 0)); err != nil {
			return vm.Undefined, err
		}
		return this, nil
	})

	installCollectionCommon(rt, setProto, vm.PayloadSet, "Set")

	values := rt.DefineMethod(setProto, "values", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		p, err := entriesOf(rt, this, vm.PayloadSet, "Set.prototype.values")
		if err != nil {
			return vm.Undefined, err
		}
		keys, _ := snapshot(p)
		return rt.NewListIterator(keys), nil
	})
	// keys and Symbol.iterator alias values
	rt.DefineValue(setProto, "keys", values, vm.HiddenDataFlags)
	rt.Object(setProto).Props.SetValue(vm.SymbolKey(iterSym), values, vm.HiddenDataFlags)

	rt.DefineMethod(setProto, "entries", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		p, err := entriesOf(rt, this, vm.PayloadSet, "Set.prototype.entries")
		if err != nil {
			return vm.Undefined, err
		}
		keys, _ := snapshot(p)
		pairs := make([]vm.Value, len(keys))
		for i, k := range keys {
			pairs[i] = rt.NewArray([]vm.Value{k, k})
		}
		return rt.NewListIterator(pairs), nil
	})

	if err := ctx.DefineGlobal("Set", ctor); err != nil {
		return err
	}

	// WeakSet
	weakProto := realm.WeakSetPrototype
	weakCtor := rt.NewNativeConstructor("WeakSet", 0, weakProto, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		if !c.IsConstruct() {
			return vm.Undefined, rt.TypeError("Constructor WeakSet requires 'new'")
		}
		result := rt.NewWeakSet()
		err := fillFromIterable(rt, vm.Arg(args, 0), func(item vm.Value) error {
			return rt.WeakSetAdd(result, item)
		})
		if err != nil {
			return vm.Undefined, err
		}
		return result, nil
	})

	rt.DefineMethod(weakProto, "add", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		if err := rt.WeakSetAdd(this, vm.Arg(args, 0)); err != nil {
			return vm.Undefined, err
		}
		return this, nil
	})
	rt.DefineMethod(weakProto, "has", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		ok, err := rt.WeakSetHas(this, vm.Arg(args, 0))
		return vm.BooleanValue(ok), err
	})
	rt.DefineMethod(weakProto, "delete", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		ok, err := rt.WeakSetDelete(this, vm.Arg(args, 0))
		return vm.BooleanValue(ok), err
	})

	return ctx.DefineGlobal("WeakSet", weakCtor)
}
