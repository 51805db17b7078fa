package vm

// NativeFunc is a host function callable from script code. Returning an
// *Exception throws its value; any other error is thrown as an Error whose
// message is the error text.
type NativeFunc func(c *CallContext, this Value, args []Value) (Value, error)

// CallContext is what a native sees of the engine during one call.
type CallContext struct {
	rt        *Runtime
	Callee    Value
	NewTarget Value
	ctx       *execContext
}

// Runtime returns the runtime executing the call.
func (c *CallContext) Runtime() *Runtime { return c.rt }

// StackTop returns the first free slot of the value stack the call runs on.
func (c *CallContext) StackTop() int { return c.ctx.top }

// IsConstruct reports whether the native was invoked with new.
func (c *CallContext) IsConstruct() bool { return !c.NewTarget.IsUndefined() }

// Slot returns a value stored on the callee with SetSlots.
func (c *CallContext) Slot(i int) Value {
	fp, ok := c.rt.functionOf(c.Callee)
	if !ok || i >= len(fp.Slots) {
		return Undefined
	}
	return fp.Slots[i]
}

// NewNativeFunction wraps fn as a function object.
func (rt *Runtime) NewNativeFunction(name string, arity int, fn NativeFunc) Value {
	fp := &FunctionPayload{Native: fn, Name: name}
	v := rt.NewObject(rt.realm.FunctionPrototype, fp)
	obj := rt.Object(v)
	obj.Props.SetValue(rt.keys.length, IntegerValue(int32(arity)), FlagConfigurable)
	obj.Props.SetValue(rt.keys.name, rt.String(name), FlagConfigurable)
	return v
}

// NewNativeConstructor wraps fn as a constructor whose prototype property
// is proto. proto.constructor is set to the new function.
func (rt *Runtime) NewNativeConstructor(name string, arity int, proto Value, fn NativeFunc) Value {
	v := rt.NewNativeFunction(name, arity, fn)
	fp := rt.Object(v).Payload.(*FunctionPayload)
	fp.Constructable = true
	rt.Object(v).Props.SetValue(rt.keys.prototype, proto, 0)
	if proto.IsObject() {
		rt.Object(proto).Props.SetValue(rt.keys.constructor, v, HiddenDataFlags)
	}
	return v
}

// SetSlots stores values on a native function object where the collector
// can see them. Natives read them back through CallContext.Slot.
func (rt *Runtime) SetSlots(fn Value, values ...Value) {
	rt.functionSlots(fn, values...)
}

func (rt *Runtime) functionSlots(fn Value, values ...Value) {
	fp, ok := rt.functionOf(fn)
	if !ok {
		return
	}
	fp.Slots = append(fp.Slots[:0], values...)
}

// DefineMethod installs a non-enumerable native method on target.
func (rt *Runtime) DefineMethod(target Value, name string, arity int, fn NativeFunc) Value {
	m := rt.NewNativeFunction(name, arity, fn)
	rt.Object(target).Props.SetValue(rt.Key(name), m, HiddenDataFlags)
	return m
}

// DefineSymbolMethod installs a native method under a symbol key.
func (rt *Runtime) DefineSymbolMethod(target Value, sym SymbolID, name string, arity int, fn NativeFunc) Value {
	m := rt.NewNativeFunction(name, arity, fn)
	rt.Object(target).Props.SetValue(SymbolKey(sym), m, HiddenDataFlags)
	return m
}

// DefineGetter installs a native getter on target.
func (rt *Runtime) DefineGetter(target Value, name string, fn NativeFunc) {
	g := rt.NewNativeFunction("get "+name, 0, fn)
	rt.Object(target).Props.DefineGetter(rt.Key(name), g, FlagConfigurable)
}

// DefineValue installs a data property with the given flags.
func (rt *Runtime) DefineValue(target Value, name string, v Value, flags PropFlags) {
	rt.Object(target).Props.SetValue(rt.Key(name), v, flags)
}

// SetGlobal defines a writable, non-enumerable global binding.
func (rt *Runtime) SetGlobal(name string, v Value) {
	rt.Object(rt.global).Props.SetValue(rt.Key(name), v, HiddenDataFlags)
}

// GetGlobal reads a global binding without running getters.
func (rt *Runtime) GetGlobal(name string) (Value, bool) {
	k, ok := rt.names.Lookup(name)
	if !ok {
		return Undefined, false
	}
	p, ok := rt.Object(rt.global).Props.Lookup(k)
	if !ok || p.IsAccessor() {
		return Undefined, false
	}
	return p.Cell.Value, true
}

func argOrUndefined(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return Undefined
}

// Arg returns args[i] or Undefined.
func Arg(args []Value, i int) Value { return argOrUndefined(args, i) }
