package builtins

import (
	"math"
	"strings"

	"lynx/pkg/vm"
)

// GlobalsInitializer defines globalThis, the numeric constants and the
// global parse functions.
type GlobalsInitializer struct{}

func (g *GlobalsInitializer) Name() string {
	return "globals"
}

func (g *GlobalsInitializer) Priority() int {
	return PriorityGlobals
}

func (g *GlobalsInitializer) InitRuntime(ctx *RuntimeContext) error {
	rt := ctx.Runtime
	global := rt.Global()

	rt.DefineValue(global, "globalThis", global, vm.HiddenDataFlags)
	rt.DefineValue(global, "NaN", vm.NumberValue(math.NaN()), 0)
	rt.DefineValue(global, "Infinity", vm.NumberValue(math.Inf(1)), 0)
	rt.DefineValue(global, "undefined", vm.Undefined, 0)

	rt.DefineMethod(global, "parseInt", 2, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := argString(rt, args, 0, "undefined")
		if err != nil {
			return vm.Undefined, err
		}
		radix, err := argInt(rt, args, 1, 0)
		if err != nil {
			return vm.Undefined, err
		}
		return vm.NumericValue(parseInt(s, radix)), nil
	})

	rt.DefineMethod(global, "parseFloat", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		s, err := argString(rt, args, 0, "undefined")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.NumericValue(parseFloatPrefix(s)), nil
	})

	rt.DefineMethod(global, "isNaN", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		f, err := rt.ToNumber(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BooleanValue(math.IsNaN(f)), nil
	})

	rt.DefineMethod(global, "isFinite", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		f, err := rt.ToNumber(vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BooleanValue(!math.IsNaN(f) && !math.IsInf(f, 0)), nil
	})

	return nil
}

// parseInt implements the global parseInt on an already coerced string.
func parseInt(s string, radix int) float64 {
	s = strings.TrimSpace(s)
	sign := 1.0
	if s != "" && (s[0] == '+' || s[0] == '-') {
		if s[0] == '-' {
			sign = -1
		}
		s = s[1:]
	}
	stripPrefix := true
	if radix != 0 {
		if radix < 2 || radix > 36 {
			return math.NaN()
		}
		stripPrefix = radix == 16
	} else {
		radix = 10
	}
	if stripPrefix && len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
		radix = 16
	}
	result := 0.0
	digits := 0
	for i := 0; i < len(s); i++ {
		d := digitValue(s[i])
		if d >= radix {
			break
		}
		result = result*float64(radix) + float64(d)
		digits++
	}
	if digits == 0 {
		return math.NaN()
	}
	return sign * result
}

func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	}
	return 99
}

// parseFloatPrefix parses the longest numeric prefix of s.
func parseFloatPrefix(s string) float64 {
	s = strings.TrimSpace(s)
	for _, inf := range []string{"Infinity", "+Infinity", "-Infinity"} {
		if strings.HasPrefix(s, inf) {
			if inf[0] == '-' {
				return math.Inf(-1)
			}
			return math.Inf(1)
		}
	}
	end := 0
	seenDigit, seenDot, seenExp := false, false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			seenDigit = true
			end = i + 1
		case (c == '+' || c == '-') && (i == 0 || s[i-1] == 'e' || s[i-1] == 'E'):
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
		case (c == 'e' || c == 'E') && seenDigit && !seenExp:
			seenExp = true
		default:
			i = len(s)
		}
	}
	if !seenDigit {
		return math.NaN()
	}
	return vm.ParseNumber(s[:end])
}
