package builtins

import (
	"lynx/pkg/vm"
)

type SymbolInitializer struct{}

func (s *SymbolInitializer) Name() string {
	return "Symbol"
}

func (s *SymbolInitializer) Priority() int {
	return PrioritySymbol
}

func (s *SymbolInitializer) InitRuntime(ctx *RuntimeContext) error {
	rt := ctx.Runtime
	symbolProto := rt.Realm().SymbolPrototype

	// Symbol.for registry; symbols are never collected so plain values suffice
	registry := make(map[string]vm.Value)

	thisSymbol := func(this vm.Value, method string) (vm.SymbolID, error) {
		if this.IsSymbol() {
			return this.AsSymbol(), nil
		}
		if this.IsObject() {
			if w, ok := rt.Object(this).Payload.(*vm.PrimitiveWrapper); ok && w.K == vm.PayloadSymbolObject {
				return w.Value.AsSymbol(), nil
			}
		}
		return 0, rt.TypeError("Symbol.prototype.%s requires that 'this' be a Symbol", method)
	}

	ctor := rt.NewNativeFunction("Symbol", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		desc := vm.Arg(args, 0)
		if desc.IsUndefined() {
			return rt.NewSymbol("", false), nil
		}
		s, err := rt.ToGoString(desc)
		if err != nil {
			return vm.Undefined, err
		}
		return rt.NewSymbol(s, true), nil
	})
	rt.DefineValue(ctor, "prototype", symbolProto, 0)
	rt.DefineValue(symbolProto, "constructor", ctor, vm.HiddenDataFlags)

	for _, name := range []string{"iterator", "asyncIterator", "toPrimitive", "hasInstance", "toStringTag"} {
		id, _ := vm.WellKnownSymbol(name)
		rt.DefineValue(ctor, name, vm.SymbolValue(id), 0)
	}

	rt.DefineMethod(ctor, "for", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		key, err := argString(rt, args, 0, "undefined")
		if err != nil {
			return vm.Undefined, err
		}
		if sym, ok := registry[key]; ok {
			return sym, nil
		}
		sym := rt.NewSymbol(key, true)
		registry[key] = sym
		return sym, nil
	})

	rt.DefineMethod(ctor, "keyFor", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		sym := vm.Arg(args, 0)
		if !sym.IsSymbol() {
			return vm.Undefined, rt.TypeError("%s is not a symbol", rt.Inspect(sym))
		}
		for key, v := range registry {
			if v == sym {
				return rt.String(key), nil
			}
		}
		return vm.Undefined, nil
	})

	rt.DefineMethod(symbolProto, "toString", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		id, err := thisSymbol(this, "toString")
		if err != nil {
			return vm.Undefined, err
		}
		desc, _ := rt.SymbolDescription(id)
		return rt.String("Symbol(" + desc + ")"), nil
	})

	rt.DefineGetter(symbolProto, "description", func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		id, err := thisSymbol(this, "description")
		if err != nil {
			return vm.Undefined, err
		}
		desc, ok := rt.SymbolDescription(id)
		if !ok {
			return vm.Undefined, nil
		}
		return rt.String(desc), nil
	})

	return ctx.DefineGlobal("Symbol", ctor)
}
