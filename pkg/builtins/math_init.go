package builtins

import (
	"math"
	"math/rand/v2"

	"lynx/pkg/vm"
)

type MathInitializer struct{}

func (m *MathInitializer) Name() string {
	return "Math"
}

func (m *MathInitializer) Priority() int {
	return PriorityMath
}

func (m *MathInitializer) InitRuntime(ctx *RuntimeContext) error {
	rt := ctx.Runtime
	mathObj := newNamespace(rt)

	// Constants
	for _, c := range []struct {
		name  string
		value float64
	}{
		{"E", math.E},
		{"LN10", math.Ln10},
		{"LN2", math.Ln2},
		{"LOG10E", math.Log10E},
		{"LOG2E", math.Log2E},
		{"PI", math.Pi},
		{"SQRT1_2", math.Sqrt2 / 2},
		{"SQRT2", math.Sqrt2},
	} {
		rt.DefineValue(mathObj, c.name, vm.NumberValue(c.value), 0)
	}

	unary := func(name string, fn func(float64) float64) {
		rt.DefineMethod(mathObj, name, 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
			x, err := rt.ToNumber(vm.Arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			return vm.NumericValue(fn(x)), nil
		})
	}

	unary("abs", math.Abs)
	unary("floor", math.Floor)
	unary("ceil", math.Ceil)
	unary("trunc", math.Trunc)
	unary("sqrt", math.Sqrt)
	unary("cbrt", math.Cbrt)
	unary("exp", math.Exp)
	unary("log", math.Log)
	unary("log2", math.Log2)
	unary("log10", math.Log10)
	unary("sin", math.Sin)
	unary("cos", math.Cos)
	unary("tan", math.Tan)
	unary("atan", math.Atan)
	unary("round", func(x float64) float64 {
		// rounds half up, unlike math.Round
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return x
		}
		return math.Floor(x + 0.5)
	})
	unary("sign", func(x float64) float64 {
		switch {
		case x > 0:
			return 1
		case x < 0:
			return -1
		}
		return x
	})

	rt.DefineMethod(mathObj, "pow", 2, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		x, err := rt.ToNumber(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		y, err := rt.ToNumber(vm.Arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.NumericValue(math.Pow(x, y)), nil
	})

	rt.DefineMethod(mathObj, "atan2", 2, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		y, err := rt.ToNumber(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		x, err := rt.ToNumber(vm.Arg(args, 1))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.NumericValue(math.Atan2(y, x)), nil
	})

	extreme := func(name string, start float64, better func(a, b float64) bool) {
		rt.DefineMethod(mathObj, name, 2, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
			result := start
			for _, a := range args {
				x, err := rt.ToNumber(a)
				if err != nil {
					return vm.Undefined, err
				}
				if math.IsNaN(x) {
					result = x
					continue
				}
				if !math.IsNaN(result) && better(x, result) {
					result = x
				}
			}
			return vm.NumericValue(result), nil
		})
	}
	extreme("max", math.Inf(-1), func(a, b float64) bool {
		return a > b || (a == 0 && b == 0 && !math.Signbit(a))
	})
	extreme("min", math.Inf(1), func(a, b float64) bool {
		return a < b || (a == 0 && b == 0 && math.Signbit(a))
	})

	rt.DefineMethod(mathObj, "random", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.NumberValue(rand.Float64()), nil
	})

	return ctx.DefineGlobal("Math", mathObj)
}
