package vm

import (
	"math"

	"fortio.org/safecast"
)

// Block is a jump label within one function.
type Block uint32

// Builder emits the instructions of one function. Sizes and offsets that do
// not fit their instruction fields panic.
type Builder struct {
	def       *FunctionDef
	nextBlock uint32
	line      int32
}

func NewBuilder(name string) *Builder {
	return &Builder{def: &FunctionDef{Name: name}}
}

// Def returns the function under construction.
func (b *Builder) Def() *FunctionDef { return b.def }

// SetLine sets the source line recorded for subsequent instructions.
func (b *Builder) SetLine(line int) { b.line = safecast.MustConv[int32](line) }

func (b *Builder) Stack(slots int) *Builder {
	b.def.StackSlots = safecast.MustConv[uint16](slots)
	return b
}

func (b *Builder) Arity(n int) *Builder {
	b.def.Arity = safecast.MustConv[uint16](n)
	return b
}

func (b *Builder) Captures(n int) *Builder {
	b.def.CaptureSlots = safecast.MustConv[uint16](n)
	return b
}

func (b *Builder) ParentCapture() *Builder {
	b.def.UsesParentCapture = true
	return b
}

func (b *Builder) Async() *Builder {
	b.def.IsAsync = true
	return b
}

func (b *Builder) Generator() *Builder {
	b.def.IsGenerator = true
	return b
}

func (b *Builder) Arrow() *Builder {
	b.def.IsArrow = true
	return b
}

// Emit appends an instruction and returns its index.
func (b *Builder) Emit(ins Instruction) int {
	b.def.Code = append(b.def.Code, ins)
	if b.line != 0 || len(b.def.Lines) > 0 {
		for len(b.def.Lines) < len(b.def.Code)-1 {
			b.def.Lines = append(b.def.Lines, 0)
		}
		b.def.Lines = append(b.def.Lines, b.line)
	}
	return len(b.def.Code) - 1
}

func (b *Builder) Op(op OpCode) int { return b.Emit(Instruction{Op: op}) }

// NewBlock declares a label.
func (b *Builder) NewBlock() Block {
	bl := Block(b.nextBlock)
	b.nextBlock++
	b.Emit(Instruction{Op: OpCreateBlock, X: uint32(bl)})
	return bl
}

// Place marks the current position as the start of bl.
func (b *Builder) Place(bl Block) {
	b.Emit(Instruction{Op: OpSwitchToBlock, X: uint32(bl)})
}

func (b *Builder) Jump(bl Block) { b.Emit(Instruction{Op: OpJump, X: uint32(bl)}) }

func (b *Builder) JumpIf(op OpCode, r Register, bl Block) {
	b.Emit(Instruction{Op: op, A: r, X: uint32(bl)})
}

func (b *Builder) Unary(op OpCode, dst, src Register) {
	b.Emit(Instruction{Op: op, A: dst, B: src})
}

func (b *Builder) Binary(op OpCode, dst, lhs, rhs Register) {
	b.Emit(Instruction{Op: op, A: dst, B: lhs, C: rhs})
}

func (b *Builder) LoadUndefined(r Register) { b.Emit(Instruction{Op: OpLoadUndefined, A: r}) }

func (b *Builder) LoadImmI32(r Register, v int32) {
	b.Emit(Instruction{Op: OpLoadImmI32, A: r, Imm: int64(v)})
}

func (b *Builder) LoadImmF64(r Register, v float64) {
	b.Emit(Instruction{Op: OpLoadImmF64, A: r, Imm: int64(math.Float64bits(v))})
}

func (b *Builder) LoadString(r Register, id uint32) {
	b.Emit(Instruction{Op: OpLoadString, A: r, X: id})
}

func (b *Builder) Move(dst, src Register) { b.Emit(Instruction{Op: OpMove, A: dst, B: src}) }

func (b *Builder) ReadParam(r Register, i int) {
	b.Emit(Instruction{Op: OpReadParam, A: r, X: safecast.MustConv[uint32](i)})
}

func (b *Builder) ReadStack(r Register, off int) {
	b.Emit(Instruction{Op: OpReadStack, A: r, X: safecast.MustConv[uint32](off)})
}

func (b *Builder) WriteStack(off int, r Register) {
	b.Emit(Instruction{Op: OpWriteStack, A: r, X: safecast.MustConv[uint32](off)})
}

func (b *Builder) Capture(stackOff, captureOff int) {
	b.Emit(Instruction{Op: OpCapture, X: safecast.MustConv[uint32](stackOff), Y: safecast.MustConv[uint32](captureOff)})
}

func (b *Builder) ReadCaptured(r Register, slot int) {
	b.Emit(Instruction{Op: OpReadCapturedVar, A: r, X: safecast.MustConv[uint32](slot)})
}

func (b *Builder) WriteCaptured(slot int, r Register) {
	b.Emit(Instruction{Op: OpWriteCapturedVar, A: r, X: safecast.MustConv[uint32](slot)})
}

func (b *Builder) AddImmI32(dst, src Register, v int32) {
	b.Emit(Instruction{Op: OpAddImmI32, A: dst, B: src, Imm: int64(v)})
}

func (b *Builder) GetField(dst, obj Register, field uint32) {
	b.Emit(Instruction{Op: OpGetField, A: dst, B: obj, X: field})
}

func (b *Builder) SetField(obj Register, field uint32, val Register) {
	b.Emit(Instruction{Op: OpSetField, A: obj, B: val, X: field})
}

func (b *Builder) Call(dst Register, base, argc int) {
	b.Emit(Instruction{Op: OpCall, A: dst, X: safecast.MustConv[uint32](base), Y: safecast.MustConv[uint32](argc)})
}

func (b *Builder) New(dst Register, base, argc int) {
	b.Emit(Instruction{Op: OpNew, A: dst, X: safecast.MustConv[uint32](base), Y: safecast.MustConv[uint32](argc)})
}

func (b *Builder) NewFunction(dst Register, fn uint32) {
	b.Emit(Instruction{Op: OpNewFunction, A: dst, X: fn})
}

func (b *Builder) Await(dst, future Register) {
	b.Emit(Instruction{Op: OpAwait, A: dst, B: future})
}

func (b *Builder) Yield(dst, value Register) {
	b.Emit(Instruction{Op: OpYield, A: dst, B: value})
}

func (b *Builder) EnterTry(catch Block) { b.Emit(Instruction{Op: OpEnterTry, X: uint32(catch)}) }

func (b *Builder) Throw(r Register) { b.Emit(Instruction{Op: OpThrow, A: r}) }

func (b *Builder) Return(r Register) { b.Emit(Instruction{Op: OpReturn, A: r}) }

// UnitBuilder collects functions and pools into a Unit.
type UnitBuilder struct {
	unit    Unit
	strings map[string]uint32
	fields  map[string]uint32
	names   map[string]uint32
}

func NewUnitBuilder(name string) *UnitBuilder {
	return &UnitBuilder{
		unit:    Unit{Name: name},
		strings: make(map[string]uint32),
		fields:  make(map[string]uint32),
		names:   make(map[string]uint32),
	}
}

// String interns a literal string and returns its unit-local id.
func (u *UnitBuilder) String(s string) uint32 {
	return internLocal(u.strings, &u.unit.Strings, s)
}

// Field interns a field name.
func (u *UnitBuilder) Field(name string) uint32 {
	return internLocal(u.fields, &u.unit.FieldNames, name)
}

// Name interns a dynamic variable name.
func (u *UnitBuilder) Name(name string) uint32 {
	return internLocal(u.names, &u.unit.DynamicNames, name)
}

func internLocal(ids map[string]uint32, pool *[]string, s string) uint32 {
	if id, ok := ids[s]; ok {
		return id
	}
	id := safecast.MustConv[uint32](len(*pool))
	*pool = append(*pool, s)
	ids[s] = id
	return id
}

func (u *UnitBuilder) Float(f float64) uint32 {
	u.unit.Floats = append(u.unit.Floats, f)
	return safecast.MustConv[uint32](len(u.unit.Floats) - 1)
}

func (u *UnitBuilder) BigInt(v int64) uint32 {
	u.unit.BigInts = append(u.unit.BigInts, v)
	return safecast.MustConv[uint32](len(u.unit.BigInts) - 1)
}

func (u *UnitBuilder) Regex(pattern, flags string) uint32 {
	u.unit.Regexes = append(u.unit.Regexes, RegexSource{Pattern: pattern, Flags: flags})
	return safecast.MustConv[uint32](len(u.unit.Regexes) - 1)
}

func (u *UnitBuilder) Template(fragments ...string) uint32 {
	u.unit.Templates = append(u.unit.Templates, Template{Fragments: fragments})
	return safecast.MustConv[uint32](len(u.unit.Templates) - 1)
}

// Function adds a function definition and returns its unit-local id.
func (u *UnitBuilder) Function(def *FunctionDef) uint32 {
	u.unit.Functions = append(u.unit.Functions, def)
	return safecast.MustConv[uint32](len(u.unit.Functions) - 1)
}

// Reserve adds a placeholder so that a function can refer to itself or to a
// function built later; fill it with Define.
func (u *UnitBuilder) Reserve() uint32 {
	return u.Function(nil)
}

func (u *UnitBuilder) Define(id uint32, def *FunctionDef) {
	u.unit.Functions[id] = def
}

func (u *UnitBuilder) Class(c *ClassDef) uint32 {
	u.unit.Classes = append(u.unit.Classes, c)
	return safecast.MustConv[uint32](len(u.unit.Classes) - 1)
}

// Build returns the unit with main as its entry function.
func (u *UnitBuilder) Build(main uint32) *Unit {
	out := u.unit
	out.Main = main
	return &out
}
