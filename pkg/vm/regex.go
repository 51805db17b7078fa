package vm

import (
	"strings"
)

// NewRegExp compiles pattern through the configured regex collaborator and
// wraps it in a RegExp object. Compile failures throw a SyntaxError.
func (rt *Runtime) NewRegExp(pattern, flags string) (Value, error) {
	if rt.opts.RegexCompiler == nil {
		return Undefined, rt.syntaxError("Invalid regular expression: /%s/%s: no regex engine configured", pattern, flags)
	}
	for i, c := range flags {
		if !strings.ContainsRune("dgimsuy", c) || strings.ContainsRune(flags[i+1:], c) {
			return Undefined, rt.syntaxError("Invalid regular expression flags '%s'", flags)
		}
	}
	compiled, err := rt.opts.RegexCompiler(pattern, flags)
	if err != nil {
		return Undefined, rt.syntaxError("Invalid regular expression: /%s/%s: %s", pattern, flags, err.Error())
	}
	v := rt.NewObject(rt.realm.RegExpPrototype, &RegexPayload{Pattern: compiled})
	rt.Object(v).Props.SetValue(rt.Key("lastIndex"), IntegerValue(0), FlagWritable)
	return v, nil
}

func (rt *Runtime) regexOf(v Value) (*RegexPayload, bool) {
	obj, ok := rt.objectOf(v)
	if !ok {
		return nil, false
	}
	p, ok := obj.Payload.(*RegexPayload)
	return p, ok
}

// RegExpExec runs re against input honouring lastIndex for global and
// sticky patterns. It returns null when there is no match, otherwise the
// match array with index, input and groups properties.
func (rt *Runtime) RegExpExec(re, input Value) (Value, error) {
	p, ok := rt.regexOf(re)
	if !ok {
		return Undefined, rt.typeError("RegExp.prototype.exec called on incompatible receiver %s", rt.Inspect(re))
	}
	s, err := rt.ToGoString(input)
	if err != nil {
		return Undefined, err
	}
	flags := p.Pattern.Flags()
	stateful := strings.ContainsAny(flags, "gy")
	lastIndexKey := rt.Key("lastIndex")
	start := 0
	if stateful {
		li, err := rt.GetProperty(re, lastIndexKey)
		if err != nil {
			return Undefined, err
		}
		n, err := rt.ToIntegerOrInfinity(li)
		if err != nil {
			return Undefined, err
		}
		if n < 0 {
			n = 0
		}
		if n > float64(len([]rune(s))) {
			if err := rt.SetProperty(re, lastIndexKey, IntegerValue(0)); err != nil {
				return Undefined, err
			}
			return Null, nil
		}
		start = int(n)
	}
	m, err := p.Pattern.Exec(s, start)
	if err != nil {
		return Undefined, rt.errorf(ErrorKindError, "regular expression failed: %s", err.Error())
	}
	if m == nil || (strings.ContainsRune(flags, 'y') && m.Start != start) {
		if stateful {
			if err := rt.SetProperty(re, lastIndexKey, IntegerValue(0)); err != nil {
				return Undefined, err
			}
		}
		return Null, nil
	}
	if stateful {
		p.LastIndex = m.End
		if err := rt.SetProperty(re, lastIndexKey, IntegerValue(int32(m.End))); err != nil {
			return Undefined, err
		}
	}

	values := make([]Value, len(m.Captures))
	for i, c := range m.Captures {
		if c.Matched {
			values[i] = rt.String(c.Text)
		} else {
			values[i] = Undefined
		}
	}
	arr := rt.NewArray(values)
	obj := rt.Object(arr)
	obj.Props.SetValue(rt.Key("index"), IntegerValue(int32(m.Start)), DefaultDataFlags)
	obj.Props.SetValue(rt.Key("input"), rt.String(s), DefaultDataFlags)
	groups := Undefined
	if len(m.Names) > 0 {
		groups = rt.NewObject(Null, nil)
		for name, idx := range m.Names {
			v := Undefined
			if idx < len(values) {
				v = values[idx]
			}
			rt.Object(groups).Props.SetValue(rt.Key(name), v, DefaultDataFlags)
		}
	}
	obj.Props.SetValue(rt.Key("groups"), groups, DefaultDataFlags)
	return arr, nil
}

// RegExpTest reports whether re matches input.
func (rt *Runtime) RegExpTest(re, input Value) (bool, error) {
	m, err := rt.RegExpExec(re, input)
	if err != nil {
		return false, err
	}
	return m.IsObject(), nil
}

// RegExpSource returns the pattern and flags of a RegExp object.
func (rt *Runtime) RegExpSource(re Value) (string, string, bool) {
	p, ok := rt.regexOf(re)
	if !ok {
		return "", "", false
	}
	return p.Pattern.Source(), p.Pattern.Flags(), true
}
