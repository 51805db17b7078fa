package builtins

import (
	"fmt"
	"io"
	"strings"
	"time"

	"lynx/pkg/vm"
)

type ConsoleInitializer struct{}

func (c *ConsoleInitializer) Name() string {
	return "console"
}

func (c *ConsoleInitializer) Priority() int {
	return PriorityConsole
}

func (c *ConsoleInitializer) InitRuntime(ctx *RuntimeContext) error {
	rt := ctx.Runtime
	consoleObj := newNamespace(rt)

	timers := make(map[string]time.Time)
	counts := make(map[string]int)
	depth := 0

	// emit writes one line, indented by the current group depth.
	emit := func(w io.Writer, line string) {
		prefix := strings.Repeat("  ", depth)
		if prefix != "" {
			line = prefix + strings.ReplaceAll(line, "\n", "\n"+prefix)
		}
		fmt.Fprintln(w, line)
	}

	label := func(args []vm.Value) (string, error) {
		return argString(rt, args, 0, "default")
	}

	for _, m := range []struct {
		name string
		out  io.Writer
	}{
		{"log", ctx.Stdout},
		{"info", ctx.Stdout},
		{"debug", ctx.Stdout},
		{"error", ctx.Stderr},
		{"warn", ctx.Stderr},
		{"trace", ctx.Stderr},
	} {
		rt.DefineMethod(consoleObj, m.name, 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
			emit(m.out, formatArgs(rt, args))
			return vm.Undefined, nil
		})
	}

	rt.DefineMethod(consoleObj, "group", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		if len(args) > 0 {
			emit(ctx.Stdout, formatArgs(rt, args))
		}
		depth++
		return vm.Undefined, nil
	})

	rt.DefineMethod(consoleObj, "groupEnd", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		if depth > 0 {
			depth--
		}
		return vm.Undefined, nil
	})

	rt.DefineMethod(consoleObj, "count", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		l, err := label(args)
		if err != nil {
			return vm.Undefined, err
		}
		counts[l]++
		emit(ctx.Stdout, fmt.Sprintf("%s: %d", l, counts[l]))
		return vm.Undefined, nil
	})

	rt.DefineMethod(consoleObj, "countReset", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		l, err := label(args)
		if err != nil {
			return vm.Undefined, err
		}
		delete(counts, l)
		return vm.Undefined, nil
	})

	rt.DefineMethod(consoleObj, "time", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		l, err := label(args)
		if err != nil {
			return vm.Undefined, err
		}
		timers[l] = time.Now()
		return vm.Undefined, nil
	})

	rt.DefineMethod(consoleObj, "timeEnd", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		l, err := label(args)
		if err != nil {
			return vm.Undefined, err
		}
		start, ok := timers[l]
		if !ok {
			emit(ctx.Stderr, fmt.Sprintf("Timer '%s' does not exist", l))
			return vm.Undefined, nil
		}
		delete(timers, l)
		emit(ctx.Stdout, fmt.Sprintf("%s: %.3fms", l, float64(time.Since(start).Microseconds())/1000))
		return vm.Undefined, nil
	})

	return ctx.DefineGlobal("console", consoleObj)
}
