package builtins

import (
	"lynx/pkg/vm"
)

type ObjectInitializer struct{}

func (o *ObjectInitializer) Name() string {
	return "Object"
}

func (o *ObjectInitializer) Priority() int {
	return PriorityObject
}

func (o *ObjectInitializer) InitRuntime(ctx *RuntimeContext) error {
	rt := ctx.Runtime
	objectProto := ctx.ObjectPrototype

	// Object.prototype methods
	rt.DefineMethod(objectProto, "hasOwnProperty", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		key, err := rt.ToPropertyKey(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		obj, err := rt.ToObject(this)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BooleanValue(rt.HasOwnProperty(obj, key)), nil
	})

	rt.DefineMethod(objectProto, "isPrototypeOf", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		target := vm.Arg(args, 0)
		if !target.IsObject() || !this.IsObject() {
			return vm.BooleanValue(false), nil
		}
		// Walk up the prototype chain of target
		for cur := rt.Object(target).Proto; cur.IsObject(); cur = rt.Object(cur).Proto {
			if cur == this {
				return vm.BooleanValue(true), nil
			}
		}
		return vm.BooleanValue(false), nil
	})

	rt.DefineMethod(objectProto, "toString", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		return rt.String("[object " + objectTag(rt, this) + "]"), nil
	})

	rt.DefineMethod(objectProto, "valueOf", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		return rt.ToObject(this)
	})

	// Object constructor
	ctor := rt.NewNativeConstructor("Object", 1, objectProto, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		v := vm.Arg(args, 0)
		if v.IsNullish() {
			return rt.NewPlainObject(), nil
		}
		return rt.ToObject(v)
	})

	rt.DefineMethod(ctor, "keys", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		return ownEnumerable(rt, vm.Arg(args, 0), func(k vm.PropertyKey, _ vm.Value) vm.Value {
			return rt.String(rt.KeyName(k))
		})
	})

	rt.DefineMethod(ctor, "values", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		return ownEnumerable(rt, vm.Arg(args, 0), func(_ vm.PropertyKey, v vm.Value) vm.Value {
			return v
		})
	})

	rt.DefineMethod(ctor, "entries", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		return ownEnumerable(rt, vm.Arg(args, 0), func(k vm.PropertyKey, v vm.Value) vm.Value {
			return rt.NewArray([]vm.Value{rt.String(rt.KeyName(k)), v})
		})
	})

	rt.DefineMethod(ctor, "assign", 2, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		target, err := rt.ToObject(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		for _, src := range args[1:] {
			if err := rt.CopyDataProperties(target, src); err != nil {
				return vm.Undefined, err
			}
		}
		return target, nil
	})

	rt.DefineMethod(ctor, "create", 2, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		proto := vm.Arg(args, 0)
		if !proto.IsObject() && !proto.IsNull() {
			return vm.Undefined, rt.TypeError("Object prototype may only be an Object or null: %s", rt.Inspect(proto))
		}
		obj := rt.NewObject(proto, nil)
		if props := vm.Arg(args, 1); !props.IsUndefined() {
			if err := rt.CopyDataProperties(obj, props); err != nil {
				return vm.Undefined, err
			}
		}
		return obj, nil
	})

	rt.DefineMethod(ctor, "getPrototypeOf", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		obj, err := rt.ToObject(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return rt.Object(obj).Proto, nil
	})

	rt.DefineMethod(ctor, "setPrototypeOf", 2, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		target, proto := vm.Arg(args, 0), vm.Arg(args, 1)
		if !proto.IsObject() && !proto.IsNull() {
			return vm.Undefined, rt.TypeError("Object prototype may only be an Object or null: %s", rt.Inspect(proto))
		}
		if err := rt.SetPrototypeOf(target, proto); err != nil {
			return vm.Undefined, err
		}
		return target, nil
	})

	rt.DefineMethod(ctor, "preventExtensions", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		target := vm.Arg(args, 0)
		rt.PreventExtensions(target)
		return target, nil
	})

	return ctx.DefineGlobal("Object", ctor)
}

// ownEnumerable maps the own enumerable string-keyed properties of v into a
// new array.
func ownEnumerable(rt *vm.Runtime, v vm.Value, item func(vm.PropertyKey, vm.Value) vm.Value) (vm.Value, error) {
	obj, err := rt.ToObject(v)
	if err != nil {
		return vm.Undefined, err
	}
	keys, err := rt.OwnKeys(obj, true)
	if err != nil {
		return vm.Undefined, err
	}
	out := make([]vm.Value, 0, len(keys))
	for _, k := range keys {
		if k.IsSymbol() {
			continue
		}
		val, err := rt.GetProperty(obj, k)
		if err != nil {
			return vm.Undefined, err
		}
		out = append(out, item(k, val))
	}
	return rt.NewArray(out), nil
}

// objectTag is the builtin tag used by Object.prototype.toString.
func objectTag(rt *vm.Runtime, v vm.Value) string {
	switch {
	case v.IsUndefined():
		return "Undefined"
	case v.IsNull():
		return "Null"
	case !v.IsObject():
		obj, _ := rt.ToObject(v)
		v = obj
	}
	switch rt.Object(v).Kind() {
	case vm.PayloadArray:
		return "Array"
	case vm.PayloadFunction, vm.PayloadClass:
		return "Function"
	case vm.PayloadError:
		return "Error"
	case vm.PayloadStringObject:
		return "String"
	case vm.PayloadNumberObject:
		return "Number"
	case vm.PayloadBooleanObject:
		return "Boolean"
	case vm.PayloadRegex:
		return "RegExp"
	case vm.PayloadMap:
		return "Map"
	case vm.PayloadSet:
		return "Set"
	case vm.PayloadPromise:
		return "Promise"
	}
	return "Object"
}
