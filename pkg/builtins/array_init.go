package builtins

import (
	"strings"

	"lynx/pkg/vm"
)

type ArrayInitializer struct{}

func (a *ArrayInitializer) Name() string {
	return "Array"
}

func (a *ArrayInitializer) Priority() int {
	return PriorityArray
}

// thisArray returns the element storage of an array receiver.
func thisArray(rt *vm.Runtime, this vm.Value, method string) (*vm.ArrayPayload, error) {
	if this.IsObject() {
		if p, ok := rt.Object(this).Payload.(*vm.ArrayPayload); ok {
			return p, nil
		}
	}
	return nil, rt.TypeError("Array.prototype.%s called on non-array %s", method, rt.Inspect(this))
}

func (a *ArrayInitializer) InitRuntime(ctx *RuntimeContext) error {
	rt := ctx.Runtime
	arrayProto := ctx.ArrayPrototype

	ctor := rt.NewNativeConstructor("Array", 1, arrayProto, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		if len(args) == 1 && args[0].IsNumber() {
			n := args[0].AsFloat()
			if n < 0 || n != float64(uint32(n)) {
				return vm.Undefined, rt.RangeError("Invalid array length")
			}
			arr := rt.NewArray(nil)
			if err := rt.ResizeArray(rt.Object(arr).Payload.(*vm.ArrayPayload), int(n)); err != nil {
				return vm.Undefined, err
			}
			return arr, nil
		}
		return rt.NewArray(append([]vm.Value(nil), args...)), nil
	})

	rt.DefineMethod(ctor, "isArray", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		v := vm.Arg(args, 0)
		return vm.BooleanValue(v.IsObject() && rt.Object(v).Kind() == vm.PayloadArray), nil
	})

	rt.DefineMethod(ctor, "of", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		return rt.NewArray(append([]vm.Value(nil), args...)), nil
	})

	rt.DefineMethod(ctor, "from", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		items, err := rt.IterableToList(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		if fn := vm.Arg(args, 1); !fn.IsUndefined() {
			if !rt.IsCallable(fn) {
				return vm.Undefined, rt.TypeError("%s is not a function", rt.Inspect(fn))
			}
			for i, v := range items {
				if items[i], err = rt.Call(fn, vm.Undefined, []vm.Value{v, vm.IntegerValue(int32(i))}); err != nil {
					return vm.Undefined, err
				}
			}
		}
		return rt.NewArray(items), nil
	})

	rt.DefineMethod(arrayProto, "push", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		arr, err := thisArray(rt, this, "push")
		if err != nil {
			return vm.Undefined, err
		}
		if err := rt.CheckArrayLength(len(arr.Elements) + len(args)); err != nil {
			return vm.Undefined, err
		}
		for _, v := range args {
			arr.Elements = append(arr.Elements, vm.ArrayElement{Value: v})
		}
		return vm.NumericValue(float64(len(arr.Elements))), nil
	})

	rt.DefineMethod(arrayProto, "pop", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		arr, err := thisArray(rt, this, "pop")
		if err != nil {
			return vm.Undefined, err
		}
		n := len(arr.Elements)
		if n == 0 {
			return vm.Undefined, nil
		}
		last, _ := arr.Get(n - 1)
		arr.SetLength(n - 1)
		return last, nil
	})

	rt.DefineMethod(arrayProto, "shift", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		arr, err := thisArray(rt, this, "shift")
		if err != nil {
			return vm.Undefined, err
		}
		if len(arr.Elements) == 0 {
			return vm.Undefined, nil
		}
		first, _ := arr.Get(0)
		arr.Elements = append(arr.Elements[:0], arr.Elements[1:]...)
		return first, nil
	})

	rt.DefineMethod(arrayProto, "join", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		arr, err := thisArray(rt, this, "join")
		if err != nil {
			return vm.Undefined, err
		}
		sep, err := argString(rt, args, 0, ",")
		if err != nil {
			return vm.Undefined, err
		}
		parts := make([]string, len(arr.Elements))
		for i := range arr.Elements {
			v, ok := arr.Get(i)
			if !ok || v.IsNullish() {
				continue
			}
			if parts[i], err = rt.ToGoString(v); err != nil {
				return vm.Undefined, err
			}
		}
		return rt.String(strings.Join(parts, sep)), nil
	})

	rt.DefineMethod(arrayProto, "toString", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		join, err := rt.GetProperty(this, rt.Key("join"))
		if err != nil {
			return vm.Undefined, err
		}
		return rt.Call(join, this, nil)
	})

	rt.DefineMethod(arrayProto, "indexOf", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		arr, err := thisArray(rt, this, "indexOf")
		if err != nil {
			return vm.Undefined, err
		}
		from, err := argInt(rt, args, 1, 0)
		if err != nil {
			return vm.Undefined, err
		}
		target := vm.Arg(args, 0)
		for i := relativeIndex(from, len(arr.Elements)); i < len(arr.Elements); i++ {
			if v, ok := arr.Get(i); ok && rt.StrictEquals(v, target) {
				return vm.IntegerValue(int32(i)), nil
			}
		}
		return vm.IntegerValue(-1), nil
	})

	rt.DefineMethod(arrayProto, "includes", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		arr, err := thisArray(rt, this, "includes")
		if err != nil {
			return vm.Undefined, err
		}
		target := vm.Arg(args, 0)
		for i := range arr.Elements {
			v, _ := arr.Get(i)
			if rt.SameValueZero(v, target) {
				return vm.BooleanValue(true), nil
			}
		}
		return vm.BooleanValue(false), nil
	})

	rt.DefineMethod(arrayProto, "slice", 2, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		arr, err := thisArray(rt, this, "slice")
		if err != nil {
			return vm.Undefined, err
		}
		n := len(arr.Elements)
		start, err := argInt(rt, args, 0, 0)
		if err != nil {
			return vm.Undefined, err
		}
		end, err := argInt(rt, args, 1, n)
		if err != nil {
			return vm.Undefined, err
		}
		start, end = relativeIndex(start, n), relativeIndex(end, n)
		out := rt.NewArray(nil)
		if start < end {
			dst := rt.Object(out).Payload.(*vm.ArrayPayload)
			dst.Elements = append(dst.Elements, arr.Elements[start:end]...)
		}
		return out, nil
	})

	rt.DefineMethod(arrayProto, "concat", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		arr, err := thisArray(rt, this, "concat")
		if err != nil {
			return vm.Undefined, err
		}
		out := rt.NewArray(nil)
		dst := rt.Object(out).Payload.(*vm.ArrayPayload)
		dst.Elements = append(dst.Elements, arr.Elements...)
		for _, v := range args {
			if v.IsObject() {
				if other, ok := rt.Object(v).Payload.(*vm.ArrayPayload); ok {
					dst.Elements = append(dst.Elements, other.Elements...)
					continue
				}
			}
			dst.Elements = append(dst.Elements, vm.ArrayElement{Value: v})
		}
		return out, nil
	})

	rt.DefineMethod(arrayProto, "reverse", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		arr, err := thisArray(rt, this, "reverse")
		if err != nil {
			return vm.Undefined, err
		}
		for i, j := 0, len(arr.Elements)-1; i < j; i, j = i+1, j-1 {
			arr.Elements[i], arr.Elements[j] = arr.Elements[j], arr.Elements[i]
		}
		return this, nil
	})

	// iterate calls fn for each present element; the length is re-read on
	// every step since fn may mutate the array.
	iterate := func(this vm.Value, args []vm.Value, method string, each func(i int, v, result vm.Value) bool) error {
		arr, err := thisArray(rt, this, method)
		if err != nil {
			return err
		}
		fn, err := callback(rt, args, 0)
		if err != nil {
			return err
		}
		thisArg := vm.Arg(args, 1)
		for i := 0; i < len(arr.Elements); i++ {
			v, ok := arr.Get(i)
			if !ok {
				continue
			}
			result, err := rt.Call(fn, thisArg, []vm.Value{v, vm.IntegerValue(int32(i)), this})
			if err != nil {
				return err
			}
			if !each(i, v, result) {
				break
			}
		}
		return nil
	}

	rt.DefineMethod(arrayProto, "forEach", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.Undefined, iterate(this, args, "forEach", func(int, vm.Value, vm.Value) bool { return true })
	})

	rt.DefineMethod(arrayProto, "map", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		out := rt.NewArray(nil)
		dst := rt.Object(out).Payload.(*vm.ArrayPayload)
		err := iterate(this, args, "map", func(i int, _, result vm.Value) bool {
			dst.Set(i, result)
			return true
		})
		return out, err
	})

	rt.DefineMethod(arrayProto, "filter", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		var kept []vm.Value
		err := iterate(this, args, "filter", func(_ int, v, result vm.Value) bool {
			if rt.ToBoolean(result) {
				kept = append(kept, v)
			}
			return true
		})
		return rt.NewArray(kept), err
	})

	rt.DefineMethod(arrayProto, "find", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		found := vm.Undefined
		err := iterate(this, args, "find", func(_ int, v, result vm.Value) bool {
			if rt.ToBoolean(result) {
				found = v
				return false
			}
			return true
		})
		return found, err
	})

	rt.DefineMethod(arrayProto, "some", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		hit := false
		err := iterate(this, args, "some", func(_ int, _, result vm.Value) bool {
			hit = rt.ToBoolean(result)
			return !hit
		})
		return vm.BooleanValue(hit), err
	})

	rt.DefineMethod(arrayProto, "reduce", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		arr, err := thisArray(rt, this, "reduce")
		if err != nil {
			return vm.Undefined, err
		}
		fn, err := callback(rt, args, 0)
		if err != nil {
			return vm.Undefined, err
		}
		i := 0
		acc := vm.Arg(args, 1)
		if len(args) < 2 {
			for ; i < len(arr.Elements); i++ {
				if v, ok := arr.Get(i); ok {
					acc = v
					break
				}
			}
			if i == len(arr.Elements) {
				return vm.Undefined, rt.TypeError("Reduce of empty array with no initial value")
			}
			i++
		}
		for ; i < len(arr.Elements); i++ {
			v, ok := arr.Get(i)
			if !ok {
				continue
			}
			if acc, err = rt.Call(fn, vm.Undefined, []vm.Value{acc, v, vm.IntegerValue(int32(i)), this}); err != nil {
				return vm.Undefined, err
			}
		}
		return acc, nil
	})

	return ctx.DefineGlobal("Array", ctor)
}
