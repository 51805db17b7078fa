package unitfile

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"lynx/pkg/vm"
)

func sampleUnit() *vm.Unit {
	ub := vm.NewUnitBuilder("sample")
	f := vm.NewBuilder("f").Arity(1)
	f.SetLine(4)
	f.ReadParam(0, 0)
	f.AddImmI32(0, 0, -3)
	f.Return(0)
	fid := ub.Function(f.Def())

	main := vm.NewBuilder("main").Stack(3)
	main.NewFunction(1, fid)
	main.WriteStack(1, 1)
	main.LoadUndefined(0)
	main.WriteStack(0, 0)
	main.LoadImmI32(2, 45)
	main.WriteStack(2, 2)
	main.Call(0, 0, 1)
	main.Return(0)
	ub.Regex("a+", "g")
	ub.Template("x", "y")
	ub.Float(2.5)
	return ub.Build(ub.Function(main.Def()))
}

func disasm(t *testing.T, u *vm.Unit) string {
	t.Helper()
	var sb strings.Builder
	if err := u.Disassemble(&sb); err != nil {
		t.Fatal(err)
	}
	return sb.String()
}

func TestFileRoundTripExecutes(t *testing.T) {
	u := sampleUnit()
	path := filepath.Join(t.TempDir(), "out", "sample"+Ext)
	if err := WriteFile(path, u); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if disasm(t, got) != disasm(t, u) {
		t.Errorf("decoded unit differs:\n%s\nwant:\n%s", disasm(t, got), disasm(t, u))
	}

	rt := vm.New(vm.DefaultOptions())
	if err := rt.Attach(); err != nil {
		t.Fatal(err)
	}
	defer rt.Detach()
	v, err := rt.Execute(got)
	if err != nil {
		t.Fatal(err)
	}
	if v.AsInteger() != 42 {
		t.Errorf("decoded unit returned %s, want 42", rt.Inspect(v))
	}
}

func TestDecodeRejectsForeignData(t *testing.T) {
	if _, err := Decode(strings.NewReader("not a unit")); !errors.Is(err, ErrNotUnit) {
		t.Errorf("Decode(garbage) = %v, want ErrNotUnit", err)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, sampleUnit()); err != nil {
		t.Fatal(err)
	}
	if !IsUnit(buf.Bytes()) {
		t.Errorf("encoded data not recognised as a unit")
	}
	truncated := buf.Bytes()[:buf.Len()/2]
	if _, err := Decode(bytes.NewReader(truncated)); err == nil {
		t.Errorf("truncated unit decoded without error")
	}
}
