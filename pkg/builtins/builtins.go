// Package builtins installs the library objects (Object, Array, String,
// Promise, Map, console, ...) onto a vm.Runtime. The engine itself only
// provides the intrinsics its instructions depend on.
package builtins

import (
	"math"
	"strings"

	"lynx/pkg/vm"
)

// thisString coerces the receiver of a String.prototype method.
func thisString(rt *vm.Runtime, this vm.Value, method string) (string, error) {
	if this.IsNullish() {
		return "", rt.TypeError("String.prototype.%s called on null or undefined", method)
	}
	return rt.ToGoString(this)
}

// argString coerces args[i] to a Go string; missing arguments use def.
func argString(rt *vm.Runtime, args []vm.Value, i int, def string) (string, error) {
	v := vm.Arg(args, i)
	if v.IsUndefined() {
		return def, nil
	}
	return rt.ToGoString(v)
}

// argInt coerces args[i] with ToIntegerOrInfinity, clamped to an int.
func argInt(rt *vm.Runtime, args []vm.Value, i int, def int) (int, error) {
	v := vm.Arg(args, i)
	if v.IsUndefined() {
		return def, nil
	}
	f, err := rt.ToIntegerOrInfinity(v)
	if err != nil {
		return 0, err
	}
	switch {
	case math.IsInf(f, 1) || f > math.MaxInt32:
		return math.MaxInt32, nil
	case math.IsInf(f, -1) || f < math.MinInt32:
		return math.MinInt32, nil
	}
	return int(f), nil
}

// relativeIndex resolves a possibly negative index against length.
func relativeIndex(idx, length int) int {
	if idx < 0 {
		idx += length
		if idx < 0 {
			return 0
		}
	}
	if idx > length {
		return length
	}
	return idx
}

// callback checks that args[i] is callable.
func callback(rt *vm.Runtime, args []vm.Value, i int) (vm.Value, error) {
	fn := vm.Arg(args, i)
	if !rt.IsCallable(fn) {
		return vm.Undefined, rt.TypeError("%s is not a function", rt.Inspect(fn))
	}
	return fn, nil
}

// formatArgs renders console arguments separated by spaces.
func formatArgs(rt *vm.Runtime, args []vm.Value) string {
	if len(args) == 0 {
		return ""
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = rt.Inspect(a)
	}
	return strings.Join(parts, " ")
}

// newNamespace creates a plain object used as a static namespace (Math, JSON).
func newNamespace(rt *vm.Runtime) vm.Value {
	return rt.NewPlainObject()
}
