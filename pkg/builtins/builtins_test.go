package builtins

import (
	"bytes"
	"strings"
	"testing"

	"lynx/pkg/regex"
	"lynx/pkg/vm"
)

type testEnv struct {
	rt     *vm.Runtime
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	opts := vm.DefaultOptions()
	opts.RegexCompiler = regex.Compile
	env := &testEnv{rt: vm.New(opts)}
	if err := env.rt.Attach(); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	t.Cleanup(env.rt.Detach)
	if err := Install(env.rt, &env.stdout, &env.stderr); err != nil {
		t.Fatalf("Install: %v", err)
	}
	return env
}

// lookup resolves a dotted path such as "JSON.stringify" from the global
// object. It also returns the object holding the final property.
func (e *testEnv) lookup(t *testing.T, path string) (holder, v vm.Value) {
	t.Helper()
	parts := strings.Split(path, ".")
	v, ok := e.rt.GetGlobal(parts[0])
	if !ok {
		t.Fatalf("global %s is not defined", parts[0])
	}
	holder = vm.Undefined
	for _, p := range parts[1:] {
		next, err := e.rt.GetProperty(v, e.rt.Key(p))
		if err != nil {
			t.Fatalf("reading %s: %v", path, err)
		}
		holder, v = v, next
	}
	return holder, v
}

// call invokes the function at path with its holder as receiver.
func (e *testEnv) call(t *testing.T, path string, args ...vm.Value) vm.Value {
	t.Helper()
	v, err := e.try(t, path, args...)
	if err != nil {
		t.Fatalf("%s: %v", path, err)
	}
	return v
}

func (e *testEnv) try(t *testing.T, path string, args ...vm.Value) (vm.Value, error) {
	t.Helper()
	holder, fn := e.lookup(t, path)
	return e.rt.Call(fn, holder, args)
}

// method invokes this[name](args...).
func (e *testEnv) method(t *testing.T, this vm.Value, name string, args ...vm.Value) vm.Value {
	t.Helper()
	fn, err := e.rt.GetProperty(this, e.rt.Key(name))
	if err != nil {
		t.Fatalf("reading %s: %v", name, err)
	}
	v, err := e.rt.Call(fn, this, args)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return v
}

func (e *testEnv) construct(t *testing.T, name string, args ...vm.Value) vm.Value {
	t.Helper()
	ctor, ok := e.rt.GetGlobal(name)
	if !ok {
		t.Fatalf("global %s is not defined", name)
	}
	v, err := e.rt.Construct(ctor, args)
	if err != nil {
		t.Fatalf("new %s: %v", name, err)
	}
	return v
}

func (e *testEnv) str(s string) vm.Value {
	return e.rt.String(s)
}

func (e *testEnv) goString(t *testing.T, v vm.Value) string {
	t.Helper()
	if !v.IsString() {
		t.Fatalf("expected a string, got %s", e.rt.Inspect(v))
	}
	s, err := e.rt.ToGoString(v)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestStandardInitializersOrder(t *testing.T) {
	inits := GetStandardInitializers()
	seen := make(map[string]bool)
	for i, init := range inits {
		if seen[init.Name()] {
			t.Errorf("initializer %s listed twice", init.Name())
		}
		seen[init.Name()] = true
		if i > 0 && inits[i-1].Priority() > init.Priority() {
			t.Errorf("%s (priority %d) runs before %s (priority %d)",
				inits[i-1].Name(), inits[i-1].Priority(), init.Name(), init.Priority())
		}
	}
	if inits[0].Name() != "globals" {
		t.Errorf("first initializer = %s, want globals", inits[0].Name())
	}
}

func TestInstallDefinesGlobals(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{
		"globalThis", "Object", "Function", "Array", "String", "Number", "Boolean",
		"Symbol", "RegExp", "Promise", "Math", "JSON", "console",
		"Map", "Set", "WeakMap", "WeakSet", "parseInt", "parseFloat",
	} {
		if _, ok := env.rt.GetGlobal(name); !ok {
			t.Errorf("global %s is not defined", name)
		}
	}
}

func TestGlobalFunctions(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		fn   string
		args []vm.Value
		want float64
	}{
		{"parseInt", []vm.Value{env.str("42px")}, 42},
		{"parseInt", []vm.Value{env.str("ff"), vm.IntegerValue(16)}, 255},
		{"parseInt", []vm.Value{env.str("  -17")}, -17},
		{"parseFloat", []vm.Value{env.str("3.25abc")}, 3.25},
	}
	for _, tt := range tests {
		got := env.call(t, tt.fn, tt.args...)
		if got.AsFloat() != tt.want {
			t.Errorf("%s(%s) = %s, want %v", tt.fn, env.rt.Inspect(tt.args[0]), env.rt.Inspect(got), tt.want)
		}
	}

	if v := env.call(t, "isNaN", env.str("abc")); !v.AsBoolean() {
		t.Error("isNaN(\"abc\") = false, want true")
	}
}

func TestObjectStatics(t *testing.T) {
	env := newTestEnv(t)
	rt := env.rt

	obj := rt.NewPlainObject()
	for _, k := range []string{"b", "a", "c"} {
		if err := rt.SetProperty(obj, rt.Key(k), env.str(k+k)); err != nil {
			t.Fatal(err)
		}
	}

	keys := env.call(t, "Object.keys", obj)
	got := env.goString(t, env.method(t, keys, "join", env.str(",")))
	if got != "b,a,c" {
		t.Errorf("Object.keys = %s, want b,a,c", got)
	}

	copied := env.call(t, "Object.assign", rt.NewPlainObject(), obj)
	v, err := rt.GetProperty(copied, rt.Key("a"))
	if err != nil {
		t.Fatal(err)
	}
	if s := env.goString(t, v); s != "aa" {
		t.Errorf("Object.assign copied a = %q, want \"aa\"", s)
	}

	tag := env.method(t, rt.NewArray(nil), "toString")
	if s := env.goString(t, tag); s != "" {
		t.Errorf("[].toString() = %q, want empty", s)
	}
	proto := rt.Realm().ObjectPrototype
	toString, err := rt.GetProperty(proto, rt.Key("toString"))
	if err != nil {
		t.Fatal(err)
	}
	s, err := rt.Call(toString, rt.NewArray(nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := env.goString(t, s); got != "[object Array]" {
		t.Errorf("Object.prototype.toString.call([]) = %q, want [object Array]", got)
	}
}
