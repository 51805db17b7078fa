package vm

import (
	"strings"
	"testing"
)

func TestDisassemble(t *testing.T) {
	ub := NewUnitBuilder("demo")
	b := NewBuilder("main").Stack(1)
	b.SetLine(1)
	done := b.NewBlock()
	b.LoadImmI32(0, 5)
	b.JumpIf(OpJumpIfTrue, 0, done)
	b.SetLine(2)
	b.Place(done)
	b.LoadString(0, ub.String("hi"))
	b.Return(0)
	main := ub.Function(b.Def())

	f := NewBuilder("f").Arity(2).Async()
	f.Op(OpReturnUndefined)
	fid := ub.Function(f.Def())
	ub.Class(&ClassDef{
		Name:        "P",
		Constructor: -1,
		Methods:     []MethodDef{{Name: ub.Field("m"), Function: fid, Static: true}},
	})

	var sb strings.Builder
	if err := ub.Build(main).Disassemble(&sb); err != nil {
		t.Fatal(err)
	}
	want := `.unit "demo"
.main 0

.func 0 "main" arity=0 stack=1 captures=0
    CreateBlock L0  ; 0 line 1
    LoadImmI32 r0, 5  ; 1 line 1
    JumpIfTrue r0, L0  ; 2 line 1
    SwitchToBlock L0  ; 3 line 2
    LoadString r0, "hi"  ; 4 line 2
    Return r0  ; 5 line 2
.end

.func 1 "f" arity=2 stack=0 captures=0 async
    ReturnUndefined
.end

.class 0 "P" ctor=-1
    method "m" @1 static
.end
`
	if got := sb.String(); got != want {
		t.Errorf("Disassemble mismatch\n--- got ---\n%s\n--- want ---\n%s", got, want)
	}
}

func TestFormatInstruction_BadOperands(t *testing.T) {
	u := NewUnitBuilder("bad").Build(0)
	testCases := []struct {
		ins  Instruction
		want string
	}{
		{Instruction{Op: OpLoadString, A: 1, X: 4}, "LoadString r1, <bad name 4>"},
		{Instruction{Op: OpNewFunction, A: 0, X: 2}, "NewFunction r0, @2"},
		{Instruction{Op: OpExitTry}, "ExitTry"},
	}
	for _, tc := range testCases {
		if got := u.FormatInstruction(&tc.ins); got != tc.want {
			t.Errorf("FormatInstruction = %q, want %q", got, tc.want)
		}
	}
}
