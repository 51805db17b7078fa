package asm

import (
	stderrors "errors"
	"strings"
	"testing"

	"lynx/pkg/errors"
	"lynx/pkg/vm"
)

const pointSource = `
; new Point(21).double
.unit "point"
.main 0

.func 0 "main" arity=0 stack=3 captures=0
    NewClass r1, r0, %0  ; 0 line 1
    WriteStack 1, r1
    LoadImmI32 r2, 21
    WriteStack 2, r2
    New r0, 0, 1
    GetField r0, r0, "double"  ; 5 line 2
    Return r0
.end

.func 1 "Point" arity=1 stack=0 captures=0
    LoadThis r0
    ReadParam r1, 0
    SetField r0, "x", r1
    ReturnUndefined
.end

.func 2 "double" arity=0 stack=0 captures=0
    LoadThis r0
    GetField r0, r0, "x"
    MulImmI32 r0, r0, 2
    Return r0
.end

.class 0 "Point" ctor=1
    method "double" @2 getter
.end
`

func run(t *testing.T, u *vm.Unit) vm.Value {
	t.Helper()
	rt := vm.New(vm.DefaultOptions())
	if err := rt.Attach(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(rt.Detach)
	v, err := rt.Execute(u)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return v
}

func disasm(t *testing.T, u *vm.Unit) string {
	t.Helper()
	var sb strings.Builder
	if err := u.Disassemble(&sb); err != nil {
		t.Fatal(err)
	}
	return sb.String()
}

func TestAssembleAndRun(t *testing.T) {
	u, err := Assemble("point.lxs", pointSource)
	if err != nil {
		t.Fatal(err)
	}
	if u.Name != "point" || len(u.Functions) != 3 || len(u.Classes) != 1 {
		t.Fatalf("unit = %q with %d functions, %d classes", u.Name, len(u.Functions), len(u.Classes))
	}
	if got := u.Functions[0].Line(5); got != 2 {
		t.Errorf("line of pc 5 = %d, want 2", got)
	}
	if v := run(t, u); v.AsInteger() != 42 {
		t.Errorf("result = %v, want 42", v)
	}
}

func TestDisassemblyRoundTrip(t *testing.T) {
	ub := vm.NewUnitBuilder("round \"trip\"")
	b := vm.NewBuilder("main").Stack(2).Async()
	b.SetLine(7)
	done := b.NewBlock()
	b.LoadImmF64(0, -1.5e-7)
	b.Emit(vm.Instruction{Op: vm.OpLoadFloat, A: 1, X: ub.Float(2.25)})
	b.Emit(vm.Instruction{Op: vm.OpLoadImmBigInt, A: 1, Imm: -9})
	b.Emit(vm.Instruction{Op: vm.OpLoadBigInt, A: 1, X: ub.BigInt(1 << 40)})
	b.Emit(vm.Instruction{Op: vm.OpNewRegex, A: 0, X: ub.Regex(`a\d+, "x"`, "gi")})
	b.WriteStack(0, 0)
	b.Emit(vm.Instruction{Op: vm.OpMakeTemplate, A: 0, X: ub.Template("a, b", "\n"), Y: 0})
	b.Emit(vm.Instruction{Op: vm.OpLoadSymbol, A: 1, X: uint32(vm.SymbolIterator)})
	b.SetLine(0)
	b.JumpIf(vm.OpJumpIfTrue, 0, done)
	b.Emit(vm.Instruction{Op: vm.OpThrowError, X: uint32(vm.ErrorKindRangeError), Y: ub.String("né")})
	b.Place(done)
	b.Emit(vm.Instruction{Op: vm.OpReadGlobal, A: 2, X: ub.Name("console")})
	b.Return(0)
	main := ub.Function(b.Def())

	arrow := vm.NewBuilder("inner").Arrow().ParentCapture()
	arrow.ReadCaptured(0, 1)
	arrow.Return(0)
	fid := ub.Function(arrow.Def())
	ub.Class(&vm.ClassDef{Name: "K", Constructor: -1, HasSuper: true, Methods: []vm.MethodDef{
		{Name: ub.Field("s"), Function: fid, Kind: vm.MethodSetter, Static: true},
	}})
	u := ub.Build(main)

	text := disasm(t, u)
	back, err := Assemble("roundtrip.lxs", text)
	if err != nil {
		t.Fatalf("Assemble(disassembly): %v\n%s", err, text)
	}
	if again := disasm(t, back); again != text {
		t.Errorf("round trip changed the unit\n--- first ---\n%s\n--- second ---\n%s", text, again)
	}
}

func TestSyntaxErrors(t *testing.T) {
	testCases := []struct {
		name, src string
		line      int
		want      string
	}{
		{"no unit", ".main 0\n", 1, "expected .unit"},
		{"unknown op", ".unit \"u\"\n.main 0\n.func 0 \"f\"\n  Frobnicate r0\n.end\n", 4, "unknown instruction"},
		{"bad register", ".unit \"u\"\n.main 0\n.func 0 \"f\"\n  Return x0\n.end\n", 4, "expected register"},
		{"missing comma", ".unit \"u\"\n.main 0\n.func 0 \"f\"\n  Move r0 r1\n.end\n", 4, "expected ','"},
		{"unterminated", ".unit \"u\"\n.main 0\n.func 0 \"f\"\n  Return r0\n", 4, "unterminated .func"},
		{"out of order", ".unit \"u\"\n.main 0\n.func 1 \"f\"\n.end\n", 3, "out of order"},
		{"bad main", ".unit \"u\"\n.main 3\n.func 0 \"f\"\n.end\n", 4, "names no function"},
		{"bad symbol", ".unit \"u\"\n.main 0\n.func 0 \"f\"\n  LoadSymbol r0, Symbol.nope\n.end\n", 4, "unknown well-known symbol"},
		{"bad attribute", ".unit \"u\"\n.main 0\n.func 0 \"f\" fast\n.end\n", 3, "unknown function attribute"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Assemble("bad.lxs", tc.src)
			var se *errors.SyntaxError
			if !stderrors.As(err, &se) {
				t.Fatalf("expected *errors.SyntaxError, got %v", err)
			}
			if se.Line != tc.line || !strings.Contains(se.Msg, tc.want) {
				t.Errorf("error = line %d %q, want line %d containing %q", se.Line, se.Msg, tc.line, tc.want)
			}
		})
	}
}
