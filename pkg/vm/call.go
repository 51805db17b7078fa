package vm

import (
	"lynx/pkg/errors"
)

// Call invokes fn with the given receiver and arguments on the current
// execution context. Natives use it to call back into script code.
func (rt *Runtime) Call(fn, this Value, args []Value) (_ Value, err error) {
	defer rt.catchExhaustion(&err)
	return rt.invoke(rt.current, fn, this, args)
}

// Construct invokes fn as a constructor.
func (rt *Runtime) Construct(fn Value, args []Value) (_ Value, err error) {
	defer rt.catchExhaustion(&err)
	return rt.construct(rt.current, fn, args, fn)
}

// invoke dispatches a call on the callee kind.
func (rt *Runtime) invoke(ctx *execContext, callee, this Value, args []Value) (Value, error) {
	obj, ok := rt.objectOf(callee)
	if !ok {
		return Undefined, rt.typeError("%s is not a function", rt.Inspect(callee))
	}
	switch p := obj.Payload.(type) {
	case *FunctionPayload:
		switch {
		case p.Bound != nil:
			return rt.invoke(ctx, p.Bound.Target, p.Bound.This, concatArgs(p.Bound.Args, args))
		case p.Native != nil:
			return rt.callNative(ctx, callee, p, this, args, Undefined)
		case p.Def.IsGenerator:
			if p.Def.IsAsync {
				return Undefined, rt.typeError("async generator %s is not supported", p.Def.Name)
			}
			return rt.newGenerator(callee, this, args), nil
		case p.Def.IsAsync:
			return rt.callAsync(callee, p, this, args)
		default:
			return rt.runFunction(ctx, callee, p, this, args, Undefined)
		}
	case *ClassPayload:
		return Undefined, rt.typeError("Class constructor %s cannot be invoked without 'new'", p.Def.Name)
	case *ProxyPayload:
		if p.Revoked {
			return Undefined, rt.typeError("Cannot perform 'apply' on a proxy that has been revoked")
		}
		trap, err := rt.proxyTrap(p, rt.Key("apply"))
		if err != nil {
			return Undefined, err
		}
		if trap.IsUndefined() {
			return rt.invoke(ctx, p.Target, this, args)
		}
		return rt.invoke(ctx, trap, p.Handler, []Value{p.Target, this, rt.NewArray(args)})
	}
	return Undefined, rt.typeError("%s is not a function", rt.Inspect(callee))
}

func concatArgs(a, b []Value) []Value {
	if len(a) == 0 {
		return b
	}
	out := make([]Value, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

func (rt *Runtime) callNative(ctx *execContext, callee Value, p *FunctionPayload, this Value, args []Value, newTarget Value) (Value, error) {
	if rt.callDepth >= rt.opts.MaxCallDepth {
		return Undefined, rt.rangeError("Maximum call stack size exceeded")
	}
	rt.callDepth++
	prev := rt.current
	rt.current = ctx
	defer func() {
		rt.current = prev
		rt.callDepth--
	}()
	v, err := p.Native(&CallContext{rt: rt, Callee: callee, NewTarget: newTarget, ctx: ctx}, this, args)
	return v, rt.asException(err)
}

// runFunction pushes an activation of a bytecode function onto ctx and runs
// it. The activation's window starts at the context's stack top, above the
// caller's window and argument window.
func (rt *Runtime) runFunction(ctx *execContext, callee Value, fp *FunctionPayload, this Value, args []Value, newTarget Value) (Value, error) {
	def := fp.Def
	if rt.callDepth >= rt.opts.MaxCallDepth {
		return Undefined, rt.rangeError("Maximum call stack size exceeded")
	}
	slots := int(def.StackSlots)
	if ctx.top+slots > len(ctx.stack) {
		return Undefined, rt.rangeError("Maximum call stack size exceeded")
	}
	f := &Frame{
		ctx:       ctx,
		def:       def,
		fn:        fp,
		callee:    callee,
		base:      ctx.top,
		args:      args,
		this:      this,
		newTarget: newTarget,
	}
	if fp.HasBoundThis {
		f.this = fp.BoundThis
		f.newTarget = fp.NewTarget
	}
	f.window = ctx.stack[f.base : f.base+slots : f.base+slots]
	for i := range f.window {
		f.window[i] = Undefined
	}
	switch fp.Capture.Kind {
	case CaptureAllocated:
		fp.Capture.Env.Retain()
		f.env = fp.Capture.Env
	case CaptureNeedAlloc:
		f.envSize = fp.Capture.Size
	}

	ctx.top += slots
	ctx.frames = append(ctx.frames, f)
	rt.callDepth++
	prev := rt.current
	rt.current = ctx

	result, err := rt.run(f)

	rt.current = prev
	rt.callDepth--
	ctx.frames[len(ctx.frames)-1] = nil
	ctx.frames = ctx.frames[:len(ctx.frames)-1]
	ctx.top = f.base
	if f.env != nil {
		f.env.Release()
	}
	return result, err
}

// construct implements new callee(...args).
func (rt *Runtime) construct(ctx *execContext, callee Value, args []Value, newTarget Value) (Value, error) {
	if !rt.IsConstructor(callee) {
		return Undefined, rt.typeError("%s is not a constructor", rt.Inspect(callee))
	}
	obj := rt.Object(callee)
	if p, ok := obj.Payload.(*ProxyPayload); ok {
		trap, err := rt.proxyTrap(p, rt.Key("construct"))
		if err != nil {
			return Undefined, err
		}
		if trap.IsUndefined() {
			return rt.construct(ctx, p.Target, args, newTarget)
		}
		return rt.invoke(ctx, trap, p.Handler, []Value{p.Target, rt.NewArray(args), newTarget})
	}
	if p, ok := obj.Payload.(*FunctionPayload); ok && p.Bound != nil {
		if newTarget == callee {
			newTarget = p.Bound.Target
		}
		return rt.construct(ctx, p.Bound.Target, concatArgs(p.Bound.Args, args), newTarget)
	}
	proto, err := rt.prototypeFor(newTarget)
	if err != nil {
		return Undefined, err
	}
	this := rt.NewObject(proto, nil)
	return rt.constructInto(ctx, callee, this, args, newTarget)
}

// prototypeFor reads newTarget.prototype, falling back to Object.prototype.
func (rt *Runtime) prototypeFor(newTarget Value) (Value, error) {
	proto, err := rt.GetProperty(newTarget, rt.keys.prototype)
	if err != nil {
		return Undefined, err
	}
	if !proto.IsObject() {
		proto = rt.realm.ObjectPrototype
	}
	return proto, nil
}

// constructInto runs the constructor callee against an already created this.
func (rt *Runtime) constructInto(ctx *execContext, callee, this Value, args []Value, newTarget Value) (Value, error) {
	obj := rt.Object(callee)
	switch p := obj.Payload.(type) {
	case *ClassPayload:
		if p.Constructor.IsObject() {
			return rt.constructInto(ctx, p.Constructor, this, args, newTarget)
		}
		if p.Super.IsObject() {
			return rt.constructInto(ctx, p.Super, this, args, newTarget)
		}
		return this, nil
	case *FunctionPayload:
		if p.Bound != nil {
			return rt.constructInto(ctx, p.Bound.Target, this, concatArgs(p.Bound.Args, args), newTarget)
		}
		var (
			res Value
			err error
		)
		if p.Native != nil {
			res, err = rt.callNative(ctx, callee, p, this, args, newTarget)
		} else {
			res, err = rt.runFunction(ctx, callee, p, this, args, newTarget)
		}
		if err != nil {
			return Undefined, err
		}
		if res.IsObject() {
			return res, nil
		}
		return this, nil
	}
	return Undefined, rt.typeError("%s is not a constructor", rt.Inspect(callee))
}

// superCall runs the parent constructor of the executing class constructor
// on the frame's this.
func (rt *Runtime) superCall(f *Frame, args []Value) (Value, error) {
	parent, err := rt.superConstructor(f)
	if err != nil {
		return Undefined, err
	}
	if !rt.IsConstructor(parent) {
		return Undefined, rt.typeError("Super constructor %s is not a constructor", rt.Inspect(parent))
	}
	res, err := rt.constructInto(f.ctx, parent, f.this, args, f.newTarget)
	if err != nil {
		return Undefined, err
	}
	if res.IsObject() && res != f.this {
		f.this = res
	}
	return f.this, nil
}

func (rt *Runtime) superConstructor(f *Frame) (Value, error) {
	class := f.fn.Class
	if !class.IsObject() {
		return Undefined, rt.syntaxError("'super' keyword unexpected here")
	}
	cp, ok := rt.Object(class).Payload.(*ClassPayload)
	if !ok || !cp.Super.IsObject() {
		return Undefined, rt.syntaxError("'super' keyword unexpected here")
	}
	return cp.Super, nil
}

// superGet reads key starting at the prototype of the function's home object.
func (rt *Runtime) superGet(f *Frame, key PropertyKey) (Value, error) {
	home := f.fn.Home
	if !home.IsObject() {
		return Undefined, rt.syntaxError("'super' keyword unexpected here")
	}
	proto := rt.Object(home).Proto
	if !proto.IsObject() {
		return Undefined, nil
	}
	return rt.getFrom(proto, key, f.this)
}

// instantiate creates a closure of def in the context of activation f.
func (rt *Runtime) instantiate(f *Frame, def *FunctionDef, home Value) Value {
	var capture CaptureState
	switch {
	case def.UsesParentCapture:
		env := f.ensureEnv()
		env.Retain()
		capture = CaptureState{Kind: CaptureAllocated, Env: env}
	case def.CaptureSlots > 0:
		capture = CaptureState{Kind: CaptureNeedAlloc, Size: int(def.CaptureSlots)}
	}
	if !home.IsObject() {
		home = f.fn.Home
	}
	v := rt.newClosure(def, capture, home)
	if def.IsArrow {
		p := rt.Object(v).Payload.(*FunctionPayload)
		p.BoundThis = f.this
		p.HasBoundThis = true
		p.NewTarget = f.newTarget
		p.Class = f.fn.Class
	}
	return v
}

// newClosure allocates a function object for def.
func (rt *Runtime) newClosure(def *FunctionDef, capture CaptureState, home Value) Value {
	if !def.linked {
		errors.Fatal(errors.EngineBadOperand, "function %s has not been linked", def.Name)
	}
	fp := &FunctionPayload{
		Def:           def,
		Capture:       capture,
		Home:          home,
		Name:          def.Name,
		Constructable: !def.IsArrow && !def.IsAsync && !def.IsGenerator,
	}
	v := rt.NewObject(rt.realm.FunctionPrototype, fp)
	obj := rt.Object(v)
	obj.Props.SetValue(rt.keys.length, IntegerValue(int32(def.Arity)), FlagConfigurable)
	obj.Props.SetValue(rt.keys.name, rt.String(def.Name), FlagConfigurable)
	switch {
	case def.IsGenerator:
		proto := rt.NewObject(rt.realm.GeneratorPrototype, nil)
		obj.Props.SetValue(rt.keys.prototype, proto, FlagWritable)
	case fp.Constructable:
		proto := rt.NewPlainObject()
		rt.Object(proto).Props.SetValue(rt.keys.constructor, v, HiddenDataFlags)
		obj.Props.SetValue(rt.keys.prototype, proto, FlagWritable)
	}
	return v
}

// BindFunction creates a bound function.
func (rt *Runtime) BindFunction(target, this Value, args []Value) (Value, error) {
	if !rt.IsCallable(target) {
		return Undefined, rt.typeError("Bind must be called on a function")
	}
	bound := &BoundCall{Target: target, This: this, Args: append([]Value(nil), args...)}
	name, _ := rt.GetProperty(target, rt.keys.name)
	fp := &FunctionPayload{Bound: bound, Name: "bound " + rt.Inspect(name)}
	if name.IsString() {
		fp.Name = "bound " + rt.GoString(name)
	}
	v := rt.NewObject(rt.realm.FunctionPrototype, fp)
	rt.Object(v).Props.SetValue(rt.keys.name, rt.String(fp.Name), FlagConfigurable)
	return v, nil
}
