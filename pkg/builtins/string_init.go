package builtins

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf16"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"lynx/pkg/vm"
)

type StringInitializer struct{}

func (s *StringInitializer) Name() string {
	return "String"
}

func (s *StringInitializer) Priority() int {
	return PriorityString
}

// units is a string as UTF-16 code units, the indexing model of string
// methods.
type units []uint16

func toUnits(s string) units { return utf16.Encode([]rune(s)) }

func (u units) String() string { return string(utf16.Decode(u)) }

func (u units) index(sub units, from int) int {
	for i := from; i+len(sub) <= len(u); i++ {
		if equalUnits(u[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}

func equalUnits(a, b units) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// caser returns the case mapper for an optional BCP 47 locale argument.
func caser(rt *vm.Runtime, args []vm.Value, upper bool) (cases.Caser, error) {
	tag := language.Und
	if loc := vm.Arg(args, 0); !loc.IsUndefined() {
		s, err := rt.ToGoString(loc)
		if err != nil {
			return cases.Caser{}, err
		}
		if tag, err = language.Parse(s); err != nil {
			return cases.Caser{}, rt.RangeError("Incorrect locale information provided")
		}
	}
	if upper {
		return cases.Upper(tag), nil
	}
	return cases.Lower(tag), nil
}

func (s *StringInitializer) InitRuntime(ctx *RuntimeContext) error {
	rt := ctx.Runtime
	stringProto := rt.Realm().StringPrototype

	// method installs a String.prototype method on the coerced receiver.
	method := func(name string, arity int, fn func(str string, args []vm.Value) (vm.Value, error)) {
		rt.DefineMethod(stringProto, name, arity, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
			str, err := thisString(rt, this, name)
			if err != nil {
				return vm.Undefined, err
			}
			return fn(str, args)
		})
	}

	ctor := rt.NewNativeConstructor("String", 1, stringProto, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		v := rt.String("")
		if len(args) > 0 {
			if args[0].IsSymbol() && !c.IsConstruct() {
				desc, _ := rt.SymbolDescription(args[0].AsSymbol())
				return rt.String("Symbol(" + desc + ")"), nil
			}
			var err error
			if v, err = rt.ToString(args[0]); err != nil {
				return vm.Undefined, err
			}
		}
		if c.IsConstruct() {
			return rt.ToObject(v)
		}
		return v, nil
	})

	rt.DefineMethod(ctor, "fromCharCode", 1, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		u := make(units, len(args))
		for i, a := range args {
			n, err := rt.ToInt32(a)
			if err != nil {
				return vm.Undefined, err
			}
			u[i] = uint16(n)
		}
		return rt.String(u.String()), nil
	})

	method("toString", 0, func(str string, _ []vm.Value) (vm.Value, error) { return rt.String(str), nil })
	method("valueOf", 0, func(str string, _ []vm.Value) (vm.Value, error) { return rt.String(str), nil })

	method("toUpperCase", 0, func(str string, _ []vm.Value) (vm.Value, error) {
		return rt.String(cases.Upper(language.Und).String(str)), nil
	})
	method("toLowerCase", 0, func(str string, _ []vm.Value) (vm.Value, error) {
		return rt.String(cases.Lower(language.Und).String(str)), nil
	})
	method("toLocaleUpperCase", 0, func(str string, args []vm.Value) (vm.Value, error) {
		c, err := caser(rt, args, true)
		if err != nil {
			return vm.Undefined, err
		}
		return rt.String(c.String(str)), nil
	})
	method("toLocaleLowerCase", 0, func(str string, args []vm.Value) (vm.Value, error) {
		c, err := caser(rt, args, false)
		if err != nil {
			return vm.Undefined, err
		}
		return rt.String(c.String(str)), nil
	})

	method("normalize", 0, func(str string, args []vm.Value) (vm.Value, error) {
		form, err := argString(rt, args, 0, "NFC")
		if err != nil {
			return vm.Undefined, err
		}
		var f norm.Form
		switch form {
		case "NFC":
			f = norm.NFC
		case "NFD":
			f = norm.NFD
		case "NFKC":
			f = norm.NFKC
		case "NFKD":
			f = norm.NFKD
		default:
			return vm.Undefined, rt.RangeError("The normalization form should be one of NFC, NFD, NFKC, NFKD.")
		}
		return rt.String(f.String(str)), nil
	})

	method("charAt", 1, func(str string, args []vm.Value) (vm.Value, error) {
		i, err := argInt(rt, args, 0, 0)
		if err != nil {
			return vm.Undefined, err
		}
		u := toUnits(str)
		if i < 0 || i >= len(u) {
			return rt.String(""), nil
		}
		return rt.String(u[i : i+1].String()), nil
	})

	method("charCodeAt", 1, func(str string, args []vm.Value) (vm.Value, error) {
		i, err := argInt(rt, args, 0, 0)
		if err != nil {
			return vm.Undefined, err
		}
		u := toUnits(str)
		if i < 0 || i >= len(u) {
			return vm.NumberValue(math.NaN()), nil
		}
		return vm.IntegerValue(int32(u[i])), nil
	})

	method("at", 1, func(str string, args []vm.Value) (vm.Value, error) {
		i, err := argInt(rt, args, 0, 0)
		if err != nil {
			return vm.Undefined, err
		}
		u := toUnits(str)
		if i < 0 {
			i += len(u)
		}
		if i < 0 || i >= len(u) {
			return vm.Undefined, nil
		}
		return rt.String(u[i : i+1].String()), nil
	})

	method("indexOf", 1, func(str string, args []vm.Value) (vm.Value, error) {
		sub, err := argString(rt, args, 0, "undefined")
		if err != nil {
			return vm.Undefined, err
		}
		from, err := argInt(rt, args, 1, 0)
		if err != nil {
			return vm.Undefined, err
		}
		u := toUnits(str)
		return vm.IntegerValue(int32(u.index(toUnits(sub), min(max(from, 0), len(u))))), nil
	})

	method("includes", 1, func(str string, args []vm.Value) (vm.Value, error) {
		if isRegExp(rt, vm.Arg(args, 0)) {
			return vm.Undefined, rt.TypeError("First argument to String.prototype.includes must not be a regular expression")
		}
		sub, err := argString(rt, args, 0, "undefined")
		if err != nil {
			return vm.Undefined, err
		}
		return vm.BooleanValue(strings.Contains(str, sub)), nil
	})

	method("startsWith", 1, func(str string, args []vm.Value) (vm.Value, error) {
		sub, err := argString(rt, args, 0, "undefined")
		if err != nil {
			return vm.Undefined, err
		}
		pos, err := argInt(rt, args, 1, 0)
		if err != nil {
			return vm.Undefined, err
		}
		u := toUnits(str)
		pos = min(max(pos, 0), len(u))
		return vm.BooleanValue(strings.HasPrefix(u[pos:].String(), sub)), nil
	})

	method("endsWith", 1, func(str string, args []vm.Value) (vm.Value, error) {
		sub, err := argString(rt, args, 0, "undefined")
		if err != nil {
			return vm.Undefined, err
		}
		u := toUnits(str)
		end, err := argInt(rt, args, 1, len(u))
		if err != nil {
			return vm.Undefined, err
		}
		end = min(max(end, 0), len(u))
		return vm.BooleanValue(strings.HasSuffix(u[:end].String(), sub)), nil
	})

	method("slice", 2, func(str string, args []vm.Value) (vm.Value, error) {
		u := toUnits(str)
		start, err := argInt(rt, args, 0, 0)
		if err != nil {
			return vm.Undefined, err
		}
		end, err := argInt(rt, args, 1, len(u))
		if err != nil {
			return vm.Undefined, err
		}
		start, end = relativeIndex(start, len(u)), relativeIndex(end, len(u))
		if start >= end {
			return rt.String(""), nil
		}
		return rt.String(u[start:end].String()), nil
	})

	method("substring", 2, func(str string, args []vm.Value) (vm.Value, error) {
		u := toUnits(str)
		start, err := argInt(rt, args, 0, 0)
		if err != nil {
			return vm.Undefined, err
		}
		end, err := argInt(rt, args, 1, len(u))
		if err != nil {
			return vm.Undefined, err
		}
		start, end = min(max(start, 0), len(u)), min(max(end, 0), len(u))
		if start > end {
			start, end = end, start
		}
		return rt.String(u[start:end].String()), nil
	})

	method("trim", 0, func(str string, _ []vm.Value) (vm.Value, error) {
		return rt.String(strings.TrimFunc(str, unicode.IsSpace)), nil
	})
	method("trimStart", 0, func(str string, _ []vm.Value) (vm.Value, error) {
		return rt.String(strings.TrimLeftFunc(str, unicode.IsSpace)), nil
	})
	method("trimEnd", 0, func(str string, _ []vm.Value) (vm.Value, error) {
		return rt.String(strings.TrimRightFunc(str, unicode.IsSpace)), nil
	})

	method("repeat", 1, func(str string, args []vm.Value) (vm.Value, error) {
		n, err := argInt(rt, args, 0, 0)
		if err != nil {
			return vm.Undefined, err
		}
		if n < 0 || (n > 0 && len(str)*n > 1<<28) {
			return vm.Undefined, rt.RangeError("Invalid count value: %d", n)
		}
		return rt.String(strings.Repeat(str, n)), nil
	})

	pad := func(start bool) func(string, []vm.Value) (vm.Value, error) {
		return func(str string, args []vm.Value) (vm.Value, error) {
			target, err := argInt(rt, args, 0, 0)
			if err != nil {
				return vm.Undefined, err
			}
			filler, err := argString(rt, args, 1, " ")
			if err != nil {
				return vm.Undefined, err
			}
			u, f := toUnits(str), toUnits(filler)
			if target <= len(u) || len(f) == 0 {
				return rt.String(str), nil
			}
			fill := make(units, 0, target-len(u))
			for len(fill) < target-len(u) {
				fill = append(fill, f[:min(len(f), target-len(u)-len(fill))]...)
			}
			if start {
				return rt.String(fill.String() + str), nil
			}
			return rt.String(str + fill.String()), nil
		}
	}
	method("padStart", 2, pad(true))
	method("padEnd", 2, pad(false))

	method("concat", 1, func(str string, args []vm.Value) (vm.Value, error) {
		var sb strings.Builder
		sb.WriteString(str)
		for _, a := range args {
			s, err := rt.ToGoString(a)
			if err != nil {
				return vm.Undefined, err
			}
			sb.WriteString(s)
		}
		return rt.String(sb.String()), nil
	})

	method("split", 2, func(str string, args []vm.Value) (vm.Value, error) {
		limit, err := argInt(rt, args, 1, -1)
		if err != nil {
			return vm.Undefined, err
		}
		sepArg := vm.Arg(args, 0)
		var parts []string
		if sepArg.IsUndefined() {
			parts = []string{str}
		} else {
			sep, err := rt.ToGoString(sepArg)
			if err != nil {
				return vm.Undefined, err
			}
			if sep == "" {
				for _, u := range toUnits(str) {
					parts = append(parts, units{u}.String())
				}
			} else {
				parts = strings.Split(str, sep)
			}
		}
		if limit >= 0 && len(parts) > limit {
			parts = parts[:limit]
		}
		out := make([]vm.Value, len(parts))
		for i, p := range parts {
			out[i] = rt.String(p)
		}
		return rt.NewArray(out), nil
	})

	method("match", 1, func(str string, args []vm.Value) (vm.Value, error) {
		re, err := toRegExp(rt, vm.Arg(args, 0))
		if err != nil {
			return vm.Undefined, err
		}
		_, flags, _ := rt.RegExpSource(re)
		if !strings.ContainsRune(flags, 'g') {
			return rt.RegExpExec(re, rt.String(str))
		}
		var all []vm.Value
		err = eachMatch(rt, re, str, func(m vm.Value, _ int, matched string) error {
			all = append(all, rt.String(matched))
			return nil
		})
		if err != nil || len(all) == 0 {
			return vm.Null, err
		}
		return rt.NewArray(all), nil
	})

	method("replace", 2, func(str string, args []vm.Value) (vm.Value, error) {
		return replace(rt, str, vm.Arg(args, 0), vm.Arg(args, 1), false)
	})
	method("replaceAll", 2, func(str string, args []vm.Value) (vm.Value, error) {
		return replace(rt, str, vm.Arg(args, 0), vm.Arg(args, 1), true)
	})

	return ctx.DefineGlobal("String", ctor)
}

func isRegExp(rt *vm.Runtime, v vm.Value) bool {
	return v.IsObject() && rt.Object(v).Kind() == vm.PayloadRegex
}

// toRegExp returns v if it is a RegExp, otherwise compiles its string form.
func toRegExp(rt *vm.Runtime, v vm.Value) (vm.Value, error) {
	if isRegExp(rt, v) {
		return v, nil
	}
	pattern := ""
	if !v.IsUndefined() {
		s, err := rt.ToGoString(v)
		if err != nil {
			return vm.Undefined, err
		}
		pattern = s
	}
	return rt.NewRegExp(pattern, "")
}

// eachMatch runs a global regexp over str from the start, calling fn with
// each match array, its rune index and the matched text.
func eachMatch(rt *vm.Runtime, re vm.Value, str string, fn func(m vm.Value, index int, matched string) error) error {
	lastIndex := rt.Key("lastIndex")
	if err := rt.SetProperty(re, lastIndex, vm.IntegerValue(0)); err != nil {
		return err
	}
	input := rt.String(str)
	for {
		m, err := rt.RegExpExec(re, input)
		if err != nil || !m.IsObject() {
			return err
		}
		idx, err := rt.GetProperty(m, rt.Key("index"))
		if err != nil {
			return err
		}
		first, err := rt.GetComputed(m, vm.IntegerValue(0))
		if err != nil {
			return err
		}
		matched, err := rt.ToGoString(first)
		if err != nil {
			return err
		}
		if err := fn(m, int(idx.AsFloat()), matched); err != nil {
			return err
		}
		if matched == "" {
			// step over empty matches
			li, err := rt.GetProperty(re, lastIndex)
			if err != nil {
				return err
			}
			if err := rt.SetProperty(re, lastIndex, vm.NumericValue(li.AsFloat()+1)); err != nil {
				return err
			}
		}
	}
}

// replace implements replace and replaceAll. Replacement strings are used
// literally; a function replacement receives (match, ...captures, index,
// input).
func replace(rt *vm.Runtime, str string, pattern, replacement vm.Value, all bool) (vm.Value, error) {
	substitute := func(m vm.Value, index int, matched string) (string, error) {
		if !rt.IsCallable(replacement) {
			return rt.ToGoString(replacement)
		}
		callArgs := []vm.Value{rt.String(matched)}
		if m.IsObject() {
			captures, err := rt.IterableToList(m)
			if err != nil {
				return "", err
			}
			if len(captures) > 1 {
				callArgs = append(callArgs, captures[1:]...)
			}
		}
		callArgs = append(callArgs, vm.IntegerValue(int32(index)), rt.String(str))
		v, err := rt.Call(replacement, vm.Undefined, callArgs)
		if err != nil {
			return "", err
		}
		return rt.ToGoString(v)
	}

	if !isRegExp(rt, pattern) {
		needle, err := rt.ToGoString(pattern)
		if err != nil {
			return vm.Undefined, err
		}
		if needle == "" {
			// an empty needle matches before every code point and at the end
			runes := []rune(str)
			var sb strings.Builder
			for i := 0; i <= len(runes); i++ {
				rep, err := substitute(vm.Undefined, i, "")
				if err != nil {
					return vm.Undefined, err
				}
				sb.WriteString(rep)
				if !all {
					sb.WriteString(string(runes))
					break
				}
				if i < len(runes) {
					sb.WriteRune(runes[i])
				}
			}
			return rt.String(sb.String()), nil
		}
		var sb strings.Builder
		rest, offset := str, 0
		for {
			i := strings.Index(rest, needle)
			if i < 0 {
				break
			}
			rep, err := substitute(vm.Undefined, len([]rune(str[:offset+i])), needle)
			if err != nil {
				return vm.Undefined, err
			}
			sb.WriteString(rest[:i])
			sb.WriteString(rep)
			rest, offset = rest[i+len(needle):], offset+i+len(needle)
			if !all {
				break
			}
		}
		sb.WriteString(rest)
		return rt.String(sb.String()), nil
	}

	_, flags, _ := rt.RegExpSource(pattern)
	global := strings.ContainsRune(flags, 'g')
	if all && !global {
		return vm.Undefined, rt.TypeError("replaceAll must be called with a global RegExp")
	}
	runes := []rune(str)
	var sb strings.Builder
	last := 0
	emit := func(m vm.Value, index int, matched string) error {
		rep, err := substitute(m, index, matched)
		if err != nil {
			return err
		}
		sb.WriteString(string(runes[last:index]))
		sb.WriteString(rep)
		last = index + len([]rune(matched))
		return nil
	}
	if global {
		if err := eachMatch(rt, pattern, str, emit); err != nil {
			return vm.Undefined, err
		}
	} else {
		m, err := rt.RegExpExec(pattern, rt.String(str))
		if err != nil {
			return vm.Undefined, err
		}
		if m.IsObject() {
			idx, _ := rt.GetProperty(m, rt.Key("index"))
			first, _ := rt.GetComputed(m, vm.IntegerValue(0))
			matched, _ := rt.ToGoString(first)
			if err := emit(m, int(idx.AsFloat()), matched); err != nil {
				return vm.Undefined, err
			}
		}
	}
	sb.WriteString(string(runes[last:]))
	return rt.String(sb.String()), nil
}
