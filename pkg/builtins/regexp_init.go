package builtins

import (
	"strings"

	"lynx/pkg/vm"
)

type RegExpInitializer struct{}

func (r *RegExpInitializer) Name() string {
	return "RegExp"
}

func (r *RegExpInitializer) Priority() int {
	return PriorityRegExp
}

func (r *RegExpInitializer) InitRuntime(ctx *RuntimeContext) error {
	rt := ctx.Runtime
	regexpProto := rt.Realm().RegExpPrototype

	source := func(this vm.Value, method string) (string, string, error) {
		pattern, flags, ok := rt.RegExpSource(this)
		if !ok {
			return "", "", rt.TypeError("RegExp.prototype.%s called on incompatible receiver %s", method, rt.Inspect(this))
		}
		return pattern, flags, nil
	}

	ctor := rt.NewNativeConstructor("RegExp", 2, regexpProto, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		patternArg := vm.Arg(args, 0)
		pattern, flags := "(?:)", ""
		if p, f, ok := rt.RegExpSource(patternArg); ok {
			pattern, flags = p, f
		} else if !patternArg.IsUndefined() {
			s, err := rt.ToGoString(patternArg)
			if err != nil {
				return vm.Undefined, err
			}
			pattern = s
		}
		if f := vm.Arg(args, 1); !f.IsUndefined() {
			s, err := rt.ToGoString(f)
			if err != nil {
				return vm.Undefined, err
			}
			flags = s
		}
		return rt.NewRegExp(pattern, flags)
	})

	rt.DefineMethod(regexpProto, "exec", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		return rt.RegExpExec(this, vm.Arg(args, 0))
	})

	rt.DefineMethod(regexpProto, "test", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		ok, err := rt.RegExpTest(this, vm.Arg(args, 0))
		return vm.BooleanValue(ok), err
	})

	rt.DefineMethod(regexpProto, "toString", 0, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		pattern, flags, err := source(this, "toString")
		if err != nil {
			return vm.Undefined, err
		}
		return rt.String("/" + pattern + "/" + flags), nil
	})

	rt.DefineGetter(regexpProto, "source", func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		pattern, _, err := source(this, "source")
		if err != nil {
			return vm.Undefined, err
		}
		return rt.String(pattern), nil
	})

	rt.DefineGetter(regexpProto, "flags", func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		_, flags, err := source(this, "flags")
		if err != nil {
			return vm.Undefined, err
		}
		return rt.String(flags), nil
	})

	for _, f := range []struct {
		name string
		flag rune
	}{
		{"hasIndices", 'd'},
		{"global", 'g'},
		{"ignoreCase", 'i'},
		{"multiline", 'm'},
		{"dotAll", 's'},
		{"unicode", 'u'},
		{"sticky", 'y'},
	} {
		rt.DefineGetter(regexpProto, f.name, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
			_, flags, err := source(this, f.name)
			if err != nil {
				return vm.Undefined, err
			}
			return vm.BooleanValue(strings.ContainsRune(flags, f.flag)), nil
		})
	}

	return ctx.DefineGlobal("RegExp", ctor)
}
