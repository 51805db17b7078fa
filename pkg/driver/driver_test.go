package driver

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lynx/pkg/asm"
	"lynx/pkg/config"
	"lynx/pkg/errors"
	"lynx/pkg/unitfile"
	"lynx/pkg/vm"
)

const helloSource = `
.unit "hello"
.main 0

.func 0 "main" arity=0 stack=3 captures=0
    ReadGlobal r0, "console"
    WriteStack 0, r0
    GetField r1, r0, "log"
    WriteStack 1, r1
    LoadString r2, "hello from lynx"
    WriteStack 2, r2
    Call r0, 0, 1
    LoadImmI32 r0, 42
    Return r0
.end
`

const throwSource = `
.unit "boom"
.main 0

.func 0 "main" arity=0 stack=0 captures=0
    ThrowError RangeError, "out of range"  ; 0 line 3
.end
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newSession(t *testing.T) (*Lynx, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	l, err := NewLynxWithConfig(config.Default(), &stdout, &stderr, []string{"lynx", "test"})
	if err != nil {
		t.Fatalf("NewLynxWithConfig: %v", err)
	}
	if err := l.Attach(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(l.Close)
	return l, &stdout, &stderr
}

func TestRunAssemblerFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "hello"+asm.Ext, helloSource)
	l, stdout, _ := newSession(t)

	v, err := l.RunFile(path)
	if err != nil {
		t.Fatalf("RunFile: %v", err)
	}
	if v.AsInteger() != 42 {
		t.Errorf("result = %s, want 42", l.Runtime().Inspect(v))
	}
	if got := stdout.String(); got != "hello from lynx\n" {
		t.Errorf("stdout = %q", got)
	}
}

func TestRunCompiledUnit(t *testing.T) {
	dir := t.TempDir()
	u, err := asm.Assemble("hello", helloSource)
	if err != nil {
		t.Fatal(err)
	}
	compiled := filepath.Join(dir, "hello"+unitfile.Ext)
	if err := unitfile.WriteFile(compiled, u); err != nil {
		t.Fatal(err)
	}
	// the magic is recognised whatever the extension
	renamed := filepath.Join(dir, "hello.bin")
	if err := os.Rename(compiled, renamed); err != nil {
		t.Fatal(err)
	}

	l, stdout, _ := newSession(t)
	v, err := l.RunFile(renamed)
	if err != nil {
		t.Fatalf("RunFile: %v", err)
	}
	if v.AsInteger() != 42 || stdout.String() != "hello from lynx\n" {
		t.Errorf("result %s, stdout %q", l.Runtime().Inspect(v), stdout.String())
	}
}

func TestUncaughtErrorIsRuntimeError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "boom"+asm.Ext, throwSource)
	l, _, stderr := newSession(t)

	_, err := l.RunFile(path)
	var re *errors.RuntimeError
	if !stderrors.As(err, &re) {
		t.Fatalf("RunFile error = %T %v, want *errors.RuntimeError", err, err)
	}
	if !strings.Contains(re.Message(), "RangeError") || !strings.Contains(re.Message(), "out of range") {
		t.Errorf("message = %q", re.Message())
	}
	if re.Pos().Function != "main" {
		t.Errorf("position = %s, want main", re.Pos())
	}

	if l.DisplayResult(l.Runtime().Global(), err) {
		t.Error("DisplayResult reported success for an error")
	}
	if !strings.Contains(stderr.String(), "Runtime Error") {
		t.Errorf("stderr = %q, want a Runtime Error block", stderr.String())
	}
}

func TestLoadUnitSyntaxError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad"+asm.Ext, ".unit \"bad\"\n.main 0\n.func 0 \"main\"\n    Bogus r0\n.end\n")
	_, err := LoadUnit(path)
	var se *errors.SyntaxError
	if !stderrors.As(err, &se) {
		t.Fatalf("LoadUnit error = %v, want *errors.SyntaxError", err)
	}

	var out bytes.Buffer
	Report(&out, err)
	if !strings.Contains(out.String(), "Syntax Error") {
		t.Errorf("Report = %q", out.String())
	}
}

func TestProcessGlobal(t *testing.T) {
	l, stdout, _ := newSession(t)
	rt := l.Runtime()

	process, ok := rt.GetGlobal("process")
	if !ok {
		t.Fatal("process is not defined")
	}
	argv, err := rt.GetProperty(process, rt.Key("argv"))
	if err != nil {
		t.Fatal(err)
	}
	items, err := rt.IterableToList(argv)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || rt.Inspect(items[1]) != "test" {
		t.Errorf("process.argv = %s", rt.Inspect(argv))
	}

	out, _ := rt.GetProperty(process, rt.Key("stdout"))
	write, _ := rt.GetProperty(out, rt.Key("write"))
	if _, err := rt.Call(write, out, []vm.Value{rt.String("raw")}); err != nil {
		t.Fatal(err)
	}
	if stdout.String() != "raw" {
		t.Errorf("stdout = %q, want raw", stdout.String())
	}
}

func TestRunAll(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a", "b", "c", "d"} {
		paths = append(paths, writeFile(t, dir, name+asm.Ext, helloSource))
	}
	paths = append(paths, writeFile(t, dir, "boom"+asm.Ext, throwSource))

	results, err := RunAll(context.Background(), config.Default(), paths, 2, nil)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(results) != len(paths) {
		t.Fatalf("got %d results, want %d", len(results), len(paths))
	}
	for i, res := range results[:4] {
		if res.Path != paths[i] {
			t.Errorf("result %d is for %s, want %s", i, res.Path, paths[i])
		}
		if res.Err != nil || res.Value != "42" || string(res.Stdout) != "hello from lynx\n" {
			t.Errorf("%s: value %q, stdout %q, err %v", res.Path, res.Value, res.Stdout, res.Err)
		}
	}
	var re *errors.RuntimeError
	if last := results[4]; !stderrors.As(last.Err, &re) {
		t.Errorf("boom: err = %v, want *errors.RuntimeError", last.Err)
	}
}

func TestRunAllCancelled(t *testing.T) {
	path := writeFile(t, t.TempDir(), "hello"+asm.Ext, helloSource)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := RunAll(ctx, config.Default(), []string{path}, 1, nil); !stderrors.Is(err, context.Canceled) {
		t.Errorf("RunAll with a cancelled context = %v, want context.Canceled", err)
	}
}
