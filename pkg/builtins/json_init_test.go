package builtins

import (
	"strings"
	"testing"

	"lynx/pkg/vm"
)

func TestJSONParseStringify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"object order", `{"b":1,"a":[true,null,"x"]}`, `{"b":1,"a":[true,null,"x"]}`},
		{"whitespace", " [ 1 , 2.5 , -3 ] ", `[1,2.5,-3]`},
		{"nested", `{"a":{"b":{"c":[]}}}`, `{"a":{"b":{"c":[]}}}`},
		{"escapes", `"line\nbreak \"q\" \u0001"`, `"line\nbreak \"q\" \u0001"`},
		{"html kept", `"<a&b>"`, `"<a&b>"`},
		{"empty object", `{}`, `{}`},
	}

	env := newTestEnv(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := env.call(t, "JSON.parse", env.str(tt.in))
			got := env.goString(t, env.call(t, "JSON.stringify", v))
			if got != tt.want {
				t.Errorf("round trip of %s = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestJSONParseErrors(t *testing.T) {
	env := newTestEnv(t)
	for _, in := range []string{"", "{", `{"a":}`, "[1,]", "1 2", "nul"} {
		_, err := env.try(t, "JSON.parse", env.str(in))
		exc, ok := err.(*vm.Exception)
		if !ok {
			t.Errorf("JSON.parse(%q) error = %v, want an exception", in, err)
			continue
		}
		name, err := env.rt.GetProperty(exc.Value, env.rt.Key("name"))
		if err != nil {
			t.Fatal(err)
		}
		if got := env.goString(t, name); got != "SyntaxError" {
			t.Errorf("JSON.parse(%q) threw %s, want SyntaxError", in, got)
		}
	}
}

func TestJSONStringifyIndent(t *testing.T) {
	env := newTestEnv(t)
	v := env.call(t, "JSON.parse", env.str(`{"a":[1,2],"b":{}}`))

	got := env.goString(t, env.call(t, "JSON.stringify", v, vm.Undefined, vm.IntegerValue(2)))
	want := "{\n  \"a\": [\n    1,\n    2\n  ],\n  \"b\": {}\n}"
	if got != want {
		t.Errorf("indent 2:\n%s\nwant:\n%s", got, want)
	}

	got = env.goString(t, env.call(t, "JSON.stringify", v, vm.Undefined, env.str("\t")))
	if !strings.HasPrefix(got, "{\n\t\"a\": [\n\t\t1") {
		t.Errorf("tab indent = %q", got)
	}
}

func TestJSONStringifySkipsUnrepresentable(t *testing.T) {
	env := newTestEnv(t)
	rt := env.rt

	obj := rt.NewPlainObject()
	fn, _ := rt.GetGlobal("parseInt")
	sym := rt.NewSymbol("s", true)
	for _, kv := range []struct {
		k string
		v vm.Value
	}{
		{"u", vm.Undefined},
		{"f", fn},
		{"s", sym},
		{"n", vm.IntegerValue(1)},
	} {
		if err := rt.SetProperty(obj, rt.Key(kv.k), kv.v); err != nil {
			t.Fatal(err)
		}
	}
	if got := env.goString(t, env.call(t, "JSON.stringify", obj)); got != `{"n":1}` {
		t.Errorf("stringify = %s, want {\"n\":1}", got)
	}

	arr := rt.NewArray([]vm.Value{vm.Undefined, fn, vm.NumberValue(0)})
	if got := env.goString(t, env.call(t, "JSON.stringify", arr)); got != `[null,null,0]` {
		t.Errorf("stringify = %s, want [null,null,0]", got)
	}

	if v := env.call(t, "JSON.stringify", vm.Undefined); !v.IsUndefined() {
		t.Errorf("stringify(undefined) = %s, want undefined", rt.Inspect(v))
	}
}

func TestJSONStringifyReplacer(t *testing.T) {
	env := newTestEnv(t)
	v := env.call(t, "JSON.parse", env.str(`{"a":1,"b":2,"c":3}`))

	allow := env.rt.NewArray([]vm.Value{env.str("c"), env.str("a")})
	if got := env.goString(t, env.call(t, "JSON.stringify", v, allow)); got != `{"c":3,"a":1}` {
		t.Errorf("array replacer = %s", got)
	}

	double := env.rt.NewNativeFunction("double", 2, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		if x := vm.Arg(args, 1); x.IsNumber() {
			return vm.NumericValue(x.AsFloat() * 2), nil
		}
		return vm.Arg(args, 1), nil
	})
	if got := env.goString(t, env.call(t, "JSON.stringify", v, double)); got != `{"a":2,"b":4,"c":6}` {
		t.Errorf("function replacer = %s", got)
	}
}

func TestJSONStringifyCycle(t *testing.T) {
	env := newTestEnv(t)
	rt := env.rt
	obj := rt.NewPlainObject()
	if err := rt.SetProperty(obj, rt.Key("self"), obj); err != nil {
		t.Fatal(err)
	}
	_, err := env.try(t, "JSON.stringify", obj)
	exc, ok := err.(*vm.Exception)
	if !ok {
		t.Fatalf("stringify of a cycle returned %v, want an exception", err)
	}
	if msg := rt.Inspect(exc.Value); !strings.Contains(msg, "circular") {
		t.Errorf("exception = %s, want a circular structure TypeError", msg)
	}

	// the same object twice is not a cycle
	shared := rt.NewPlainObject()
	pair := rt.NewArray([]vm.Value{shared, shared})
	if got := env.goString(t, env.call(t, "JSON.stringify", pair)); got != `[{},{}]` {
		t.Errorf("stringify = %s, want [{},{}]", got)
	}
}

func TestJSONParseReviver(t *testing.T) {
	env := newTestEnv(t)
	dropB := env.rt.NewNativeFunction("reviver", 2, func(c *vm.CallContext, this vm.Value, args []vm.Value) (vm.Value, error) {
		key, _ := env.rt.ToGoString(vm.Arg(args, 0))
		if key == "b" {
			return vm.Undefined, nil
		}
		return vm.Arg(args, 1), nil
	})
	v := env.call(t, "JSON.parse", env.str(`{"a":1,"b":2}`), dropB)
	if got := env.goString(t, env.call(t, "JSON.stringify", v)); got != `{"a":1}` {
		t.Errorf("revived = %s, want {\"a\":1}", got)
	}
}
