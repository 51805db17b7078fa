package builtins

import (
	"strings"
	"testing"

	"lynx/pkg/vm"
)

func TestConsoleStreams(t *testing.T) {
	env := newTestEnv(t)

	env.call(t, "console.log", env.str("hello"), vm.IntegerValue(1), vm.BooleanValue(true))
	env.call(t, "console.info", env.str("info"))
	env.call(t, "console.error", env.str("bad"))
	env.call(t, "console.warn", env.str("careful"))

	if got, want := env.stdout.String(), "hello 1 true\ninfo\n"; got != want {
		t.Errorf("stdout = %q, want %q", got, want)
	}
	if got, want := env.stderr.String(), "bad\ncareful\n"; got != want {
		t.Errorf("stderr = %q, want %q", got, want)
	}
}

func TestConsoleGroupAndCount(t *testing.T) {
	env := newTestEnv(t)

	env.call(t, "console.group", env.str("outer"))
	env.call(t, "console.log", env.str("inside"))
	env.call(t, "console.count")
	env.call(t, "console.count")
	env.call(t, "console.groupEnd")
	env.call(t, "console.count", env.str("x"))
	env.call(t, "console.countReset")
	env.call(t, "console.count")

	want := "outer\n  inside\n  default: 1\n  default: 2\nx: 1\ndefault: 1\n"
	if got := env.stdout.String(); got != want {
		t.Errorf("stdout = %q, want %q", got, want)
	}
}

func TestConsoleTimers(t *testing.T) {
	env := newTestEnv(t)

	env.call(t, "console.timeEnd", env.str("missing"))
	if !strings.Contains(env.stderr.String(), "Timer 'missing' does not exist") {
		t.Errorf("stderr = %q", env.stderr.String())
	}

	env.call(t, "console.time", env.str("t"))
	env.call(t, "console.timeEnd", env.str("t"))
	out := env.stdout.String()
	if !strings.HasPrefix(out, "t: ") || !strings.HasSuffix(out, "ms\n") {
		t.Errorf("stdout = %q, want a t: ...ms line", out)
	}
}
