package builtins

import (
	"lynx/pkg/vm"
)

type PromiseInitializer struct{}

func (p *PromiseInitializer) Name() string {
	return "Promise"
}

func (p *PromiseInitializer) Priority() int {
	return PriorityPromise
}

// settleFunc returns a native that settles the promise held in its first
// slot. Slots keep the promise visible to the collector.
func settleFunc(rt *vm.Runtime, promise vm.Value, reject bool, settled *bool) vm.Value {
	fn := rt.NewNativeFunction("", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		if *settled {
			return vm.Undefined, nil
		}
		*settled = true
		if reject {
			rt.RejectPromise(c.Slot(0), vm.Arg(args, 0))
		} else {
			rt.ResolvePromise(c.Slot(0), vm.Arg(args, 0))
		}
		return vm.Undefined, nil
	})
	rt.SetSlots(fn, promise)
	return fn
}

// combinator describes how Promise.all and friends treat each settled input.
type combinator struct {
	name string
	// onFulfilled and onRejected return the value to record at the input's
	// index. Reporting done settles the result the same way the input
	// settled, with record as its value.
	onFulfilled func(rt *vm.Runtime, v vm.Value) (record vm.Value, done bool)
	onRejected  func(rt *vm.Runtime, v vm.Value) (record vm.Value, done bool)
	// final settles the result once every input has settled; the bool
	// selects fulfilment.
	final func(rt *vm.Runtime, values []vm.Value) (vm.Value, bool)
}

func (p *PromiseInitializer) InitRuntime(ctx *RuntimeContext) error {
	rt := ctx.Runtime
	promiseProto := rt.Realm().PromisePrototype

	ctor := rt.NewNativeConstructor("Promise", 1, promiseProto, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		if !c.IsConstruct() {
			return vm.Undefined, rt.TypeError("Promise constructor cannot be invoked without 'new'")
		}
		executor, err := callback(rt, args, 0)
		if err != nil {
			return vm.Undefined, rt.TypeError("Promise resolver %s is not a function", rt.Inspect(vm.Arg(args, 0)))
		}
		promise := rt.NewPromise()
		settled := false
		resolve := settleFunc(rt, promise, false, &settled)
		reject := settleFunc(rt, promise, true, &settled)
		if _, err := rt.Call(executor, vm.Undefined, []vm.Value{resolve, reject}); err != nil {
			exc, ok := err.(*vm.Exception)
			if !ok {
				return vm.Undefined, err
			}
			if !settled {
				settled = true
				rt.RejectPromise(promise, exc.Value)
			}
		}
		return promise, nil
	})

	rt.DefineMethod(ctor, "resolve", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		return rt.PromiseResolve(vm.Arg(args, 0)), nil
	})

	rt.DefineMethod(ctor, "reject", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		return rt.PromiseReject(vm.Arg(args, 0)), nil
	})

	settledRecord := func(status, key string) func(rt *vm.Runtime, v vm.Value) (vm.Value, bool) {
		return func(rt *vm.Runtime, v vm.Value) (vm.Value, bool) {
			rec := rt.NewPlainObject()
			rt.DefineValue(rec, "status", rt.String(status), vm.DefaultDataFlags)
			rt.DefineValue(rec, key, v, vm.DefaultDataFlags)
			return rec, false
		}
	}
	asArray := func(rt *vm.Runtime, values []vm.Value) (vm.Value, bool) {
		return rt.NewArray(values), true
	}

	combinators := []combinator{
		{
			name:        "all",
			onFulfilled: func(_ *vm.Runtime, v vm.Value) (vm.Value, bool) { return v, false },
			onRejected:  func(_ *vm.Runtime, v vm.Value) (vm.Value, bool) { return v, true },
			final:       asArray,
		},
		{
			name:        "allSettled",
			onFulfilled: settledRecord("fulfilled", "value"),
			onRejected:  settledRecord("rejected", "reason"),
			final:       asArray,
		},
		{
			name:        "race",
			onFulfilled: func(_ *vm.Runtime, v vm.Value) (vm.Value, bool) { return v, true },
			onRejected:  func(_ *vm.Runtime, v vm.Value) (vm.Value, bool) { return v, true },
		},
		{
			name:        "any",
			onFulfilled: func(_ *vm.Runtime, v vm.Value) (vm.Value, bool) { return v, true },
			onRejected:  func(_ *vm.Runtime, v vm.Value) (vm.Value, bool) { return v, false },
			final: func(rt *vm.Runtime, values []vm.Value) (vm.Value, bool) {
				e := rt.NewError(vm.ErrorKindError, "All promises were rejected")
				rt.DefineValue(e, "errors", rt.NewArray(values), vm.HiddenDataFlags)
				return e, false
			},
		},
	}

	for _, comb := range combinators {
		rt.DefineMethod(ctor, comb.name, 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
			return combine(rt, comb, vm.Arg(args, 0))
		})
	}

	rt.DefineMethod(promiseProto, "finally", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		onFinally := vm.Arg(args, 0)
		if !rt.IsCallable(onFinally) {
			return rt.PromiseThen(this, onFinally, onFinally)
		}
		pass := func(rethrow bool) vm.Value {
			fn := rt.NewNativeFunction("", 1, func(c *vm.CallContext, _ vm.Value, args []vm.Value) (vm.Value, error) {
				if _, err := rt.Call(c.Slot(0), vm.Undefined, nil); err != nil {
					return vm.Undefined, err
				}
				if rethrow {
					return vm.Undefined, rt.Throw(vm.Arg(args, 0))
				}
				return vm.Arg(args, 0), nil
			})
			rt.SetSlots(fn, onFinally)
			return fn
		}
		return rt.PromiseThen(this, pass(false), pass(true))
	})

	return ctx.DefineGlobal("Promise", ctor)
}

// combine implements the Promise combinators over an iterable of inputs.
func combine(rt *vm.Runtime, comb combinator, iterable vm.Value) (vm.Value, error) {
	result := rt.NewPromise()
	items, err := rt.IterableToList(iterable)
	if err != nil {
		exc, ok := err.(*vm.Exception)
		if !ok {
			return vm.Undefined, err
		}
		rt.RejectPromise(result, exc.Value)
		return result, nil
	}

	records := rt.NewArray(make([]vm.Value, len(items)))
	remaining := len(items)
	done := false
	finish := func() {
		if comb.final == nil {
			return
		}
		values, _ := rt.IterableToList(records)
		v, fulfil := comb.final(rt, values)
		if fulfil {
			rt.ResolvePromise(result, v)
		} else {
			rt.RejectPromise(result, v)
		}
	}
	if remaining == 0 {
		finish()
		return result, nil
	}

	for i, item := range items {
		handler := func(fulfilled bool) vm.Value {
			fn := rt.NewNativeFunction("", 1, func(c *vm.CallContext, _ vm.Value, args []vm.Value) (vm.Value, error) {
				if done {
					return vm.Undefined, nil
				}
				v := vm.Arg(args, 0)
				on := comb.onRejected
				if fulfilled {
					on = comb.onFulfilled
				}
				rec, early := on(rt, v)
				if early {
					done = true
					if fulfilled {
						rt.ResolvePromise(c.Slot(0), rec)
					} else {
						rt.RejectPromise(c.Slot(0), rec)
					}
					return vm.Undefined, nil
				}
				if err := rt.SetComputed(c.Slot(1), vm.IntegerValue(int32(i)), rec); err != nil {
					return vm.Undefined, err
				}
				remaining--
				if remaining == 0 {
					done = true
					finish()
				}
				return vm.Undefined, nil
			})
			rt.SetSlots(fn, result, records)
			return fn
		}
		if _, err := rt.PromiseThen(rt.PromiseResolve(item), handler(true), handler(false)); err != nil {
			return vm.Undefined, err
		}
	}
	return result, nil
}
