package builtins

import (
	"math"
	"strconv"

	"lynx/pkg/vm"
)

// NumberInitializer installs Number and Boolean, the two primitive
// wrappers whose prototypes only unwrap their receiver.
type NumberInitializer struct{}

func (n *NumberInitializer) Name() string {
	return "Number"
}

func (n *NumberInitializer) Priority() int {
	return PriorityNumber
}

// primitiveOf unwraps a primitive receiver or its wrapper object.
func primitiveOf(rt *vm.Runtime, this vm.Value, kind vm.PayloadKind) (vm.Value, bool) {
	if this.IsObject() {
		if w, ok := rt.Object(this).Payload.(*vm.PrimitiveWrapper); ok && w.K == kind {
			return w.Value, true
		}
		return vm.Undefined, false
	}
	switch kind {
	case vm.PayloadNumberObject:
		return this, this.IsNumber()
	case vm.PayloadBooleanObject:
		return this, this.IsBoolean()
	}
	return vm.Undefined, false
}

func (n *NumberInitializer) InitRuntime(ctx *RuntimeContext) error {
	rt := ctx.Runtime
	realm := rt.Realm()
	numberProto := realm.NumberPrototype

	thisNumber := func(this vm.Value, method string) (float64, error) {
		v, ok := primitiveOf(rt, this, vm.PayloadNumberObject)
		if !ok {
			return 0, rt.TypeError("Number.prototype.%s requires that 'this' be a Number", method)
		}
		return v.AsFloat(), nil
	}

	ctor := rt.NewNativeConstructor("Number", 1, numberProto, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		v := vm.IntegerValue(0)
		if len(args) > 0 {
			f, err := rt.ToNumber(args[0])
			if err != nil {
				return vm.Undefined, err
			}
			v = vm.NumericValue(f)
		}
		if c.IsConstruct() {
			return rt.ToObject(v)
		}
		return v, nil
	})

	rt.DefineValue(ctor, "MAX_SAFE_INTEGER", vm.NumberValue(1<<53-1), 0)
	rt.DefineValue(ctor, "MIN_SAFE_INTEGER", vm.NumberValue(-(1<<53 - 1)), 0)
	rt.DefineValue(ctor, "EPSILON", vm.NumberValue(math.Nextafter(1, 2)-1), 0)
	rt.DefineValue(ctor, "MAX_VALUE", vm.NumberValue(math.MaxFloat64), 0)
	rt.DefineValue(ctor, "NaN", vm.NumberValue(math.NaN()), 0)
	rt.DefineValue(ctor, "POSITIVE_INFINITY", vm.NumberValue(math.Inf(1)), 0)
	rt.DefineValue(ctor, "NEGATIVE_INFINITY", vm.NumberValue(math.Inf(-1)), 0)

	rt.DefineMethod(ctor, "isInteger", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		v := vm.Arg(args, 0)
		if !v.IsNumber() {
			return vm.BooleanValue(false), nil
		}
		f := v.AsFloat()
		return vm.BooleanValue(!math.IsInf(f, 0) && f == math.Trunc(f)), nil
	})

	rt.DefineMethod(ctor, "isFinite", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		v := vm.Arg(args, 0)
		return vm.BooleanValue(v.IsNumber() && !math.IsInf(v.AsFloat(), 0) && !math.IsNaN(v.AsFloat())), nil
	})

	rt.DefineMethod(ctor, "isNaN", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		v := vm.Arg(args, 0)
		return vm.BooleanValue(v.IsNumber() && math.IsNaN(v.AsFloat())), nil
	})

	rt.DefineMethod(numberProto, "toString", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		f, err := thisNumber(this, "toString")
		if err != nil {
			return vm.Undefined, err
		}
		radix, err := argInt(rt, args, 0, 10)
		if err != nil {
			return vm.Undefined, err
		}
		if radix < 2 || radix > 36 {
			return vm.Undefined, rt.RangeError("toString() radix must be between 2 and 36")
		}
		if radix == 10 || f != math.Trunc(f) || math.IsInf(f, 0) || math.Abs(f) > 1<<53 {
			return rt.String(vm.FormatNumber(f)), nil
		}
		return rt.String(strconv.FormatInt(int64(f), radix)), nil
	})

	rt.DefineMethod(numberProto, "toFixed", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		f, err := thisNumber(this, "toFixed")
		if err != nil {
			return vm.Undefined, err
		}
		digits, err := argInt(rt, args, 0, 0)
		if err != nil {
			return vm.Undefined, err
		}
		if digits < 0 || digits > 100 {
			return vm.Undefined, rt.RangeError("toFixed() digits argument must be between 0 and 100")
		}
		if math.IsNaN(f) || math.Abs(f) >= 1e21 {
			return rt.String(vm.FormatNumber(f)), nil
		}
		return rt.String(strconv.FormatFloat(f, 'f', digits, 64)), nil
	})

	rt.DefineMethod(numberProto, "valueOf", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		f, err := thisNumber(this, "valueOf")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.NumericValue(f), nil
	})

	if err := ctx.DefineGlobal("Number", ctor); err != nil {
		return err
	}

	// Boolean
	booleanProto := realm.BooleanPrototype
	boolCtor := rt.NewNativeConstructor("Boolean", 1, booleanProto, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		v := vm.BooleanValue(rt.ToBoolean(vm.Arg(args, 0)))
		if c.IsConstruct() {
			return rt.ToObject(v)
		}
		return v, nil
	})
	rt.DefineMethod(booleanProto, "toString", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		v, ok := primitiveOf(rt, this, vm.PayloadBooleanObject)
		if !ok {
			return vm.Undefined, rt.TypeError("Boolean.prototype.toString requires that 'this' be a Boolean")
		}
		return rt.String(strconv.FormatBool(v.AsBoolean())), nil
	})
	rt.DefineMethod(booleanProto, "valueOf", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		v, ok := primitiveOf(rt, this, vm.PayloadBooleanObject)
		if !ok {
			return vm.Undefined, rt.TypeError("Boolean.prototype.valueOf requires that 'this' be a Boolean")
		}
		return v, nil
	})
	return ctx.DefineGlobal("Boolean", boolCtor)
}
