package driver

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"lynx/pkg/builtins"
	"lynx/pkg/vm"
)

// ProcessInitializer installs the host `process` global: argv, env, the
// output streams and a few introspection helpers.
type ProcessInitializer struct {
	argv []string
}

// NewProcessInitializer creates a new ProcessInitializer with the given argv
func NewProcessInitializer(argv []string) *ProcessInitializer {
	return &ProcessInitializer{argv: argv}
}

func (p *ProcessInitializer) Name() string {
	return "process"
}

func (p *ProcessInitializer) Priority() int {
	return 300 // after the standard library
}

func (p *ProcessInitializer) InitRuntime(ctx *builtins.RuntimeContext) error {
	rt := ctx.Runtime
	processObj := rt.NewPlainObject()

	strs := func(items []string) vm.Value {
		values := make([]vm.Value, len(items))
		for i, s := range items {
			values[i] = rt.String(s)
		}
		return rt.NewArray(values)
	}

	envObj := rt.NewPlainObject()
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok && key != "" {
			rt.DefineValue(envObj, key, rt.String(value), vm.DefaultDataFlags)
		}
	}

	stream := func(w io.Writer) vm.Value {
		obj := rt.NewPlainObject()
		rt.DefineMethod(obj, "write", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
			s, err := rt.ToGoString(vm.Arg(args, 0))
			if err != nil {
				return vm.Undefined, err
			}
			fmt.Fprint(w, s)
			return vm.BooleanValue(true), nil
		})
		return obj
	}

	rt.DefineValue(processObj, "argv", strs(p.argv), vm.DefaultDataFlags)
	rt.DefineValue(processObj, "env", envObj, vm.DefaultDataFlags)
	rt.DefineValue(processObj, "platform", rt.String(runtime.GOOS), vm.DefaultDataFlags)
	rt.DefineValue(processObj, "arch", rt.String(runtime.GOARCH), vm.DefaultDataFlags)
	rt.DefineValue(processObj, "version", rt.String("v"+Version), vm.DefaultDataFlags)
	rt.DefineValue(processObj, "pid", vm.IntegerValue(int32(os.Getpid())), vm.DefaultDataFlags)
	rt.DefineValue(processObj, "stdout", stream(ctx.Stdout), vm.DefaultDataFlags)
	rt.DefineValue(processObj, "stderr", stream(ctx.Stderr), vm.DefaultDataFlags)

	rt.DefineMethod(processObj, "cwd", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		cwd, err := os.Getwd()
		if err != nil {
			return rt.String(""), nil
		}
		return rt.String(cwd), nil
	})

	// nextTick runs fn(...args) from the microtask queue.
	rt.DefineMethod(processObj, "nextTick", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		fn := vm.Arg(args, 0)
		if !rt.IsCallable(fn) {
			return vm.Undefined, rt.TypeError("process.nextTick callback %s is not a function", rt.Inspect(fn))
		}
		var rest []vm.Value
		if len(args) > 1 {
			rest = args[1:]
		}
		job := rt.NewNativeFunction("", 0, func(c *vm.CallContext, _ vm.Value, _ []vm.Value) (vm.Value, error) {
			return rt.Call(c.Slot(0), vm.Undefined, rest)
		})
		rt.SetSlots(job, append([]vm.Value{fn}, rest...)...)
		_, err := rt.PromiseThen(rt.PromiseResolve(vm.Undefined), job, vm.Undefined)
		return vm.Undefined, err
	})

	// memoryUsage reports the engine heap next to the Go heap.
	rt.DefineMethod(processObj, "memoryUsage", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		gc := rt.LastGC()
		result := rt.NewPlainObject()
		rt.DefineValue(result, "heapUsed", vm.NumberValue(float64(m.HeapAlloc)), vm.DefaultDataFlags)
		rt.DefineValue(result, "heapTotal", vm.NumberValue(float64(m.HeapSys)), vm.DefaultDataFlags)
		rt.DefineValue(result, "rss", vm.NumberValue(float64(m.Sys)), vm.DefaultDataFlags)
		rt.DefineValue(result, "liveCells", vm.NumberValue(float64(gc.LiveCells)), vm.DefaultDataFlags)
		rt.DefineValue(result, "gcCycles", vm.NumberValue(float64(gc.Cycle)), vm.DefaultDataFlags)
		return result, nil
	})

	return ctx.DefineGlobal("process", processObj)
}
