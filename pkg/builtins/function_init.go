package builtins

import (
	"lynx/pkg/vm"
)

type FunctionInitializer struct{}

func (f *FunctionInitializer) Name() string {
	return "Function"
}

func (f *FunctionInitializer) Priority() int {
	return PriorityFunction
}

func (f *FunctionInitializer) InitRuntime(ctx *RuntimeContext) error {
	rt := ctx.Runtime
	funcProto := ctx.FunctionPrototype

	rt.DefineMethod(funcProto, "call", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		var rest []vm.Value
		if len(args) > 1 {
			rest = args[1:]
		}
		return rt.Call(this, vm.Arg(args, 0), rest)
	})

	rt.DefineMethod(funcProto, "apply", 2, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		var list []vm.Value
		if arr := vm.Arg(args, 1); !arr.IsNullish() {
			var err error
			if list, err = rt.IterableToList(arr); err != nil {
				return vm.Undefined, err
			}
		}
		return rt.Call(this, vm.Arg(args, 0), list)
	})

	rt.DefineMethod(funcProto, "bind", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		var rest []vm.Value
		if len(args) > 1 {
			rest = args[1:]
		}
		return rt.BindFunction(this, vm.Arg(args, 0), rest)
	})

	rt.DefineMethod(funcProto, "toString", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		if !rt.IsCallable(this) {
			return vm.Undefined, rt.TypeError("Function.prototype.toString requires that 'this' be a Function")
		}
		name, err := rt.GetProperty(this, rt.Key("name"))
		if err != nil {
			return vm.Undefined, err
		}
		n, _ := rt.ToGoString(name)
		return rt.String("function " + n + "() { [native code] }"), nil
	})

	return nil
}
