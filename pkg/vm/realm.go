package vm

// Realm holds the intrinsic objects of a runtime. Every field is a GC root.
type Realm struct {
	rt *Runtime

	ObjectPrototype   Value
	FunctionPrototype Value
	ArrayPrototype    Value
	StringPrototype   Value
	NumberPrototype   Value
	BooleanPrototype  Value
	BigIntPrototype   Value
	SymbolPrototype   Value
	ErrorPrototypes   [numErrorKinds]Value

	IteratorPrototype      Value // %Iterator.prototype%
	ArrayIteratorPrototype Value
	GeneratorPrototype     Value
	PromisePrototype       Value
	RegExpPrototype        Value
	MapPrototype           Value
	SetPrototype           Value
	WeakMapPrototype       Value
	WeakSetPrototype       Value
	ArrayBufferPrototype   Value
	TypedArrayPrototype    Value

	// ErrorConstructors are the global Error, TypeError, ... functions.
	ErrorConstructors [numErrorKinds]Value

	// ArrayValues is Array.prototype[Symbol.iterator]; for-of iterates
	// arrays directly while it is unmodified.
	ArrayValues Value
	// StringIterator is String.prototype[Symbol.iterator].
	StringIterator Value
}

// newRealm allocates the bare prototype objects. Methods are installed by
// installCore once the global object exists.
func newRealm(rt *Runtime) *Realm {
	r := &Realm{rt: rt}
	obj := func(proto Value) Value { return rt.NewObject(proto, nil) }

	r.ObjectPrototype = obj(Null)
	r.FunctionPrototype = rt.NewObject(r.ObjectPrototype, &FunctionPayload{
		Name:   "",
		Native: func(*CallContext, Value, []Value) (Value, error) { return Undefined, nil },
	})
	r.ArrayPrototype = rt.NewObject(r.ObjectPrototype, &ArrayPayload{})
	r.StringPrototype = rt.NewObject(r.ObjectPrototype, &PrimitiveWrapper{K: PayloadStringObject, Value: rt.String("")})
	r.NumberPrototype = rt.NewObject(r.ObjectPrototype, &PrimitiveWrapper{K: PayloadNumberObject, Value: IntegerValue(0)})
	r.BooleanPrototype = rt.NewObject(r.ObjectPrototype, &PrimitiveWrapper{K: PayloadBooleanObject, Value: BooleanValue(false)})
	r.BigIntPrototype = obj(r.ObjectPrototype)
	r.SymbolPrototype = obj(r.ObjectPrototype)

	r.ErrorPrototypes[ErrorKindError] = obj(r.ObjectPrototype)
	for k := ErrorKindError + 1; k < numErrorKinds; k++ {
		r.ErrorPrototypes[k] = obj(r.ErrorPrototypes[ErrorKindError])
	}

	r.IteratorPrototype = obj(r.ObjectPrototype)
	r.ArrayIteratorPrototype = obj(r.IteratorPrototype)
	r.GeneratorPrototype = obj(r.IteratorPrototype)
	r.PromisePrototype = obj(r.ObjectPrototype)
	r.RegExpPrototype = obj(r.ObjectPrototype)
	r.MapPrototype = obj(r.ObjectPrototype)
	r.SetPrototype = obj(r.ObjectPrototype)
	r.WeakMapPrototype = obj(r.ObjectPrototype)
	r.WeakSetPrototype = obj(r.ObjectPrototype)
	r.ArrayBufferPrototype = obj(r.ObjectPrototype)
	r.TypedArrayPrototype = obj(r.ObjectPrototype)
	return r
}

// installCore installs the methods the engine itself relies on: the
// iteration protocol of arrays, strings and generators, error objects and
// promise reactions. Library code lives in the builtins package.
func (r *Realm) installCore() {
	rt := r.rt

	rt.DefineSymbolMethod(r.IteratorPrototype, SymbolIterator, "[Symbol.iterator]", 0,
		func(_ *CallContext, this Value, _ []Value) (Value, error) { return this, nil })

	rt.DefineMethod(r.ArrayIteratorPrototype, "next", 0, func(c *CallContext, this Value, _ []Value) (Value, error) {
		obj, ok := rt.objectOf(this)
		if ok {
			if p, ok := obj.Payload.(*IteratorPayload); ok {
				v, done, err := rt.iterStep(p.state)
				if err != nil {
					return Undefined, err
				}
				return rt.IterResult(v, done), nil
			}
		}
		return Undefined, rt.typeError("next method called on incompatible receiver %s", rt.Inspect(this))
	})

	r.ArrayValues = rt.DefineSymbolMethod(r.ArrayPrototype, SymbolIterator, "values", 0,
		func(_ *CallContext, this Value, _ []Value) (Value, error) {
			return rt.arrayIterator(this)
		})
	rt.DefineValue(r.ArrayPrototype, "values", r.ArrayValues, HiddenDataFlags)

	r.StringIterator = rt.DefineSymbolMethod(r.StringPrototype, SymbolIterator, "[Symbol.iterator]", 0,
		func(_ *CallContext, this Value, _ []Value) (Value, error) {
			if this.IsNullish() {
				return Undefined, rt.typeError("String.prototype[Symbol.iterator] called on null or undefined")
			}
			s, err := rt.ToGoString(this)
			if err != nil {
				return Undefined, err
			}
			return rt.newIteratorObject(&iterState{kind: iterString, source: this, runes: []rune(s)}), nil
		})

	rt.DefineMethod(r.GeneratorPrototype, "next", 1, rt.generatorMethod(ResumeNext))
	rt.DefineMethod(r.GeneratorPrototype, "return", 1, rt.generatorMethod(ResumeReturn))
	rt.DefineMethod(r.GeneratorPrototype, "throw", 1, rt.generatorMethod(ResumeThrow))

	for k := ErrorKindError; k < numErrorKinds; k++ {
		proto := r.ErrorPrototypes[k]
		rt.DefineValue(proto, "name", rt.String(k.String()), HiddenDataFlags)
		rt.DefineValue(proto, "message", rt.String(""), HiddenDataFlags)
		r.ErrorConstructors[k] = rt.NewNativeConstructor(k.String(), 1, proto, rt.errorConstructor(k))
		rt.SetGlobal(k.String(), r.ErrorConstructors[k])
	}
	for k := ErrorKindError + 1; k < numErrorKinds; k++ {
		rt.Object(r.ErrorConstructors[k]).Proto = r.ErrorConstructors[ErrorKindError]
	}
	rt.DefineMethod(r.ErrorPrototypes[ErrorKindError], "toString", 0, func(_ *CallContext, this Value, _ []Value) (Value, error) {
		if !this.IsObject() {
			return Undefined, rt.typeError("Error.prototype.toString called on non-object")
		}
		return rt.String(rt.describeThrown(this)), nil
	})

	rt.DefineMethod(r.PromisePrototype, "then", 2, func(_ *CallContext, this Value, args []Value) (Value, error) {
		return rt.PromiseThen(this, argOrUndefined(args, 0), argOrUndefined(args, 1))
	})
	rt.DefineMethod(r.PromisePrototype, "catch", 1, func(_ *CallContext, this Value, args []Value) (Value, error) {
		return rt.PromiseThen(this, Undefined, argOrUndefined(args, 0))
	})
}

// errorConstructor builds Error(message, options) for kind.
func (rt *Runtime) errorConstructor(kind ErrorKind) NativeFunc {
	return func(c *CallContext, this Value, args []Value) (Value, error) {
		proto := rt.realm.ErrorPrototypes[kind]
		if c.IsConstruct() && this.IsObject() {
			proto = rt.Object(this).Proto
		}
		e := rt.NewObject(proto, &ErrorPayload{Backtrace: rt.captureBacktrace()})
		if msg := argOrUndefined(args, 0); !msg.IsUndefined() {
			s, err := rt.ToString(msg)
			if err != nil {
				return Undefined, err
			}
			rt.Object(e).Props.SetValue(rt.keys.message, s, HiddenDataFlags)
		}
		if opts := argOrUndefined(args, 1); opts.IsObject() {
			if ok, err := rt.HasProperty(opts, rt.keys.cause); err != nil {
				return Undefined, err
			} else if ok {
				cause, err := rt.GetProperty(opts, rt.keys.cause)
				if err != nil {
					return Undefined, err
				}
				rt.Object(e).Props.SetValue(rt.keys.cause, cause, HiddenDataFlags)
			}
		}
		return e, nil
	}
}

func (rt *Runtime) newIteratorObject(it *iterState) Value {
	return rt.NewObject(rt.realm.ArrayIteratorPrototype, &IteratorPayload{state: it})
}

// arrayIterator returns a values() iterator over an array or array-like.
func (rt *Runtime) arrayIterator(this Value) (Value, error) {
	o, err := rt.ToObject(this)
	if err != nil {
		return Undefined, err
	}
	if _, ok := rt.arrayOf(o); ok {
		return rt.newIteratorObject(&iterState{kind: iterArray, source: o}), nil
	}
	lv, err := rt.GetProperty(o, rt.keys.length)
	if err != nil {
		return Undefined, err
	}
	n, err := rt.ToIntegerOrInfinity(lv)
	if err != nil {
		return Undefined, err
	}
	if n > 1<<32-1 {
		return Undefined, rt.rangeError("Invalid array length")
	}
	values := make([]Value, 0, max(0, min(int(n), 1<<16)))
	for i := 0; float64(i) < n; i++ {
		v, err := rt.GetComputed(o, IntegerValue(int32(i)))
		if err != nil {
			return Undefined, err
		}
		values = append(values, v)
	}
	return rt.newIteratorObject(&iterState{kind: iterArray, source: rt.NewArray(values)}), nil
}

// NewListIterator returns an iterator object producing values in order.
func (rt *Runtime) NewListIterator(values []Value) Value {
	return rt.newIteratorObject(&iterState{kind: iterArray, source: rt.NewArray(values)})
}

// roots reports every intrinsic to the collector.
func (r *Realm) roots(yield func(Value)) {
	for _, v := range []Value{
		r.ObjectPrototype, r.FunctionPrototype, r.ArrayPrototype, r.StringPrototype,
		r.NumberPrototype, r.BooleanPrototype, r.BigIntPrototype, r.SymbolPrototype,
		r.IteratorPrototype, r.ArrayIteratorPrototype, r.GeneratorPrototype,
		r.PromisePrototype, r.RegExpPrototype, r.MapPrototype, r.SetPrototype,
		r.WeakMapPrototype, r.WeakSetPrototype, r.ArrayBufferPrototype,
		r.TypedArrayPrototype, r.ArrayValues, r.StringIterator,
	} {
		yield(v)
	}
	for _, v := range r.ErrorPrototypes {
		yield(v)
	}
	for _, v := range r.ErrorConstructors {
		yield(v)
	}
}
