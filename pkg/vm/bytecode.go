package vm

import (
	"fmt"
)

// OpCode defines the type for bytecode instructions.
type OpCode uint8

// Register names one of the three fast registers r0..r2.
type Register uint8

const NumRegisters = 3

func (r Register) String() string { return fmt.Sprintf("r%d", uint8(r)) }

// Instruction is one decoded instruction. Which fields are meaningful, and
// what they mean, is described by the opcode's entry in the operand table.
type Instruction struct {
	Op  OpCode   `msgpack:"o"`
	A   Register `msgpack:"a,omitempty"`
	B   Register `msgpack:"b,omitempty"`
	C   Register `msgpack:"c,omitempty"`
	X   uint32   `msgpack:"x,omitempty"`
	Y   uint32   `msgpack:"y,omitempty"`
	Imm int64    `msgpack:"i,omitempty"`
}

// Opcodes. Operand layouts are listed next to each group as
// fields: A,B,C registers, X,Y ids or offsets, Imm immediate.
const (
	OpNop OpCode = iota

	// A
	OpLoadUndefined
	OpLoadNull
	OpLoadTrue
	OpLoadFalse
	OpLoadImmI32    // A Imm
	OpLoadImmF64    // A Imm (float bits)
	OpLoadImmBigInt // A Imm
	OpLoadFloat     // A X(float pool)
	OpLoadBigInt    // A X(bigint pool)
	OpLoadString    // A X(string pool)
	OpLoadSymbol    // A X(well-known symbol)
	OpLoadGlobalObject
	OpLoadThis
	OpLoadNewTarget
	OpLoadArgCount
	OpMove // A B

	// stack window, params, captures and temps
	OpReadStack        // A X(stack)
	OpWriteStack       // X(stack) A
	OpReadParam        // A X(param)
	OpReadRestParams   // A X(first param)
	OpReadCapturedVar  // A X(capture)
	OpWriteCapturedVar // X(capture) A
	OpCapture          // X(stack) Y(capture)
	OpStoreTemp        // A
	OpReadTemp         // A X(depth from top)
	OpReleaseTemp

	// dynamic (global) variables
	OpReadGlobal    // A X(name)
	OpWriteGlobal   // X(name) A
	OpDeclareGlobal // X(name)
	OpTypeofGlobal  // A X(name)

	// binary arithmetic: A = B op C
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpRem
	OpExp
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl
	OpShr
	OpUShr
	OpAddImmI32 // A B Imm
	OpSubImmI32 // A B Imm
	OpMulImmI32 // A B Imm

	// unary: A = op B
	OpNeg
	OpPlus
	OpBitNot
	OpNot
	OpInc
	OpDec
	OpTypeof
	OpToPropertyKey
	OpToString
	OpToNumeric

	OpConcatString // A B C
	OpMakeTemplate // A X(template) Y(stack of substitutions)

	// comparison: A = B op C
	OpEq
	OpNotEq
	OpStrictEq
	OpStrictNotEq
	OpLt
	OpLtEq
	OpGt
	OpGtEq
	OpIn
	OpInstanceOf
	OpIsNullish   // A B
	OpIsUndefined // A B

	// control flow
	OpCreateBlock     // X(block)
	OpSwitchToBlock   // X(block)
	OpJump            // X(block)
	OpJumpIfTrue      // A X(block)
	OpJumpIfFalse     // A X(block)
	OpJumpIfNullish   // A X(block)
	OpJumpIfUndefined // A X(block)
	OpEnterTry        // X(catch block)
	OpExitTry
	OpThrow      // A
	OpThrowError // X(error kind) Y(string)
	OpReturn     // A
	OpReturnUndefined

	// calls: stack[X]=this, stack[X+1]=callee, stack[X+2..]=args
	OpCall            // A X(stack) Y(count)
	OpCallSpread      // A X(stack), stack[X+2] holds an iterable of args
	OpNew             // A X(stack) Y(count)
	OpNewSpread       // A X(stack)
	OpSuperCall       // A X(stack) Y(count)
	OpSuperCallSpread // A X(stack)

	// objects and arrays
	OpNewObject      // A
	OpNewArray       // A X(capacity)
	OpArrayPush      // A B
	OpArrayPushHole  // A
	OpArraySpread    // A B
	OpObjectSpread   // A B
	OpGetField       // A B X(field): A = B.field
	OpSetField       // A X(field) B: A.field = B
	OpGetComputed    // A B C: A = B[C]
	OpSetComputed    // A B C: A[B] = C
	OpDeleteField    // A B X(field)
	OpDeleteComputed // A B C
	OpDefineField    // A X(field) B
	OpDefineComputed // A B C
	OpDefineGetter   // A B X(field): getter B on A
	OpDefineSetter   // A B X(field)
	OpSetProto       // A B
	OpGetSuperField  // A X(field)
	OpGetSuperComputed
	OpGetLength // A B

	// closures and classes
	OpNewFunction // A X(function)
	OpNewClass    // A B(super) X(class)
	OpNewRegex    // A X(regex)

	// iteration
	OpForInStart // A
	OpForOfStart // A
	OpIterNext   // A X(done block)
	OpIterClose

	// coroutines
	OpAwait // A B
	OpYield // A B

	OpDebugger

	numOpCodes
)

// OperandKind classifies an instruction operand for linking, disassembly
// and assembly.
type OperandKind uint8

const (
	OperandReg OperandKind = iota + 1
	OperandStack
	OperandCapture
	OperandParam
	OperandTemp
	OperandImmI32
	OperandImmF64
	OperandImmI64
	OperandCount
	OperandBlock
	OperandField
	OperandName
	OperandString
	OperandFloat
	OperandBigInt
	OperandFunc
	OperandClass
	OperandRegex
	OperandTemplate
	OperandSymbol
	OperandErrorKind
)

// OperandSlot selects the Instruction field holding an operand.
type OperandSlot uint8

const (
	SlotA OperandSlot = iota
	SlotB
	SlotC
	SlotX
	SlotY
	SlotImm
)

type Operand struct {
	Slot OperandSlot
	Kind OperandKind
}

type OpInfo struct {
	Name     string
	Operands []Operand
}

var (
	rA = Operand{SlotA, OperandReg}
	rB = Operand{SlotB, OperandReg}
	rC = Operand{SlotC, OperandReg}
)

func opX(k OperandKind) Operand   { return Operand{SlotX, k} }
func opY(k OperandKind) Operand   { return Operand{SlotY, k} }
func opImm(k OperandKind) Operand { return Operand{SlotImm, k} }

func ops(o ...Operand) []Operand { return o }

var opTable = [numOpCodes]OpInfo{
	OpNop:              {"Nop", nil},
	OpLoadUndefined:    {"LoadUndefined", ops(rA)},
	OpLoadNull:         {"LoadNull", ops(rA)},
	OpLoadTrue:         {"LoadTrue", ops(rA)},
	OpLoadFalse:        {"LoadFalse", ops(rA)},
	OpLoadImmI32:       {"LoadImmI32", ops(rA, opImm(OperandImmI32))},
	OpLoadImmF64:       {"LoadImmF64", ops(rA, opImm(OperandImmF64))},
	OpLoadImmBigInt:    {"LoadImmBigInt", ops(rA, opImm(OperandImmI64))},
	OpLoadFloat:        {"LoadFloat", ops(rA, opX(OperandFloat))},
	OpLoadBigInt:       {"LoadBigInt", ops(rA, opX(OperandBigInt))},
	OpLoadString:       {"LoadString", ops(rA, opX(OperandString))},
	OpLoadSymbol:       {"LoadSymbol", ops(rA, opX(OperandSymbol))},
	OpLoadGlobalObject: {"LoadGlobalObject", ops(rA)},
	OpLoadThis:         {"LoadThis", ops(rA)},
	OpLoadNewTarget:    {"LoadNewTarget", ops(rA)},
	OpLoadArgCount:     {"LoadArgCount", ops(rA)},
	OpMove:             {"Move", ops(rA, rB)},

	OpReadStack:        {"ReadStack", ops(rA, opX(OperandStack))},
	OpWriteStack:       {"WriteStack", ops(opX(OperandStack), rA)},
	OpReadParam:        {"ReadParam", ops(rA, opX(OperandParam))},
	OpReadRestParams:   {"ReadRestParams", ops(rA, opX(OperandParam))},
	OpReadCapturedVar:  {"ReadCapturedVar", ops(rA, opX(OperandCapture))},
	OpWriteCapturedVar: {"WriteCapturedVar", ops(opX(OperandCapture), rA)},
	OpCapture:          {"Capture", ops(opX(OperandStack), opY(OperandCapture))},
	OpStoreTemp:        {"StoreTemp", ops(rA)},
	OpReadTemp:         {"ReadTemp", ops(rA, opX(OperandTemp))},
	OpReleaseTemp:      {"ReleaseTemp", nil},

	OpReadGlobal:    {"ReadGlobal", ops(rA, opX(OperandName))},
	OpWriteGlobal:   {"WriteGlobal", ops(opX(OperandName), rA)},
	OpDeclareGlobal: {"DeclareGlobal", ops(opX(OperandName))},
	OpTypeofGlobal:  {"TypeofGlobal", ops(rA, opX(OperandName))},

	OpAdd:       {"Add", ops(rA, rB, rC)},
	OpSub:       {"Sub", ops(rA, rB, rC)},
	OpMul:       {"Mul", ops(rA, rB, rC)},
	OpDiv:       {"Div", ops(rA, rB, rC)},
	OpRem:       {"Rem", ops(rA, rB, rC)},
	OpExp:       {"Exp", ops(rA, rB, rC)},
	OpBitAnd:    {"BitAnd", ops(rA, rB, rC)},
	OpBitOr:     {"BitOr", ops(rA, rB, rC)},
	OpBitXor:    {"BitXor", ops(rA, rB, rC)},
	OpShl:       {"Shl", ops(rA, rB, rC)},
	OpShr:       {"Shr", ops(rA, rB, rC)},
	OpUShr:      {"UShr", ops(rA, rB, rC)},
	OpAddImmI32: {"AddImmI32", ops(rA, rB, opImm(OperandImmI32))},
	OpSubImmI32: {"SubImmI32", ops(rA, rB, opImm(OperandImmI32))},
	OpMulImmI32: {"MulImmI32", ops(rA, rB, opImm(OperandImmI32))},

	OpNeg:           {"Neg", ops(rA, rB)},
	OpPlus:          {"Plus", ops(rA, rB)},
	OpBitNot:        {"BitNot", ops(rA, rB)},
	OpNot:           {"Not", ops(rA, rB)},
	OpInc:           {"Inc", ops(rA, rB)},
	OpDec:           {"Dec", ops(rA, rB)},
	OpTypeof:        {"Typeof", ops(rA, rB)},
	OpToPropertyKey: {"ToPropertyKey", ops(rA, rB)},
	OpToString:      {"ToString", ops(rA, rB)},
	OpToNumeric:     {"ToNumeric", ops(rA, rB)},

	OpConcatString: {"ConcatString", ops(rA, rB, rC)},
	OpMakeTemplate: {"MakeTemplate", ops(rA, opX(OperandTemplate), opY(OperandStack))},

	OpEq:          {"Eq", ops(rA, rB, rC)},
	OpNotEq:       {"NotEq", ops(rA, rB, rC)},
	OpStrictEq:    {"StrictEq", ops(rA, rB, rC)},
	OpStrictNotEq: {"StrictNotEq", ops(rA, rB, rC)},
	OpLt:          {"Lt", ops(rA, rB, rC)},
	OpLtEq:        {"LtEq", ops(rA, rB, rC)},
	OpGt:          {"Gt", ops(rA, rB, rC)},
	OpGtEq:        {"GtEq", ops(rA, rB, rC)},
	OpIn:          {"In", ops(rA, rB, rC)},
	OpInstanceOf:  {"InstanceOf", ops(rA, rB, rC)},
	OpIsNullish:   {"IsNullish", ops(rA, rB)},
	OpIsUndefined: {"IsUndefined", ops(rA, rB)},

	OpCreateBlock:     {"CreateBlock", ops(opX(OperandBlock))},
	OpSwitchToBlock:   {"SwitchToBlock", ops(opX(OperandBlock))},
	OpJump:            {"Jump", ops(opX(OperandBlock))},
	OpJumpIfTrue:      {"JumpIfTrue", ops(rA, opX(OperandBlock))},
	OpJumpIfFalse:     {"JumpIfFalse", ops(rA, opX(OperandBlock))},
	OpJumpIfNullish:   {"JumpIfNullish", ops(rA, opX(OperandBlock))},
	OpJumpIfUndefined: {"JumpIfUndefined", ops(rA, opX(OperandBlock))},
	OpEnterTry:        {"EnterTry", ops(opX(OperandBlock))},
	OpExitTry:         {"ExitTry", nil},
	OpThrow:           {"Throw", ops(rA)},
	OpThrowError:      {"ThrowError", ops(opX(OperandErrorKind), opY(OperandString))},
	OpReturn:          {"Return", ops(rA)},
	OpReturnUndefined: {"ReturnUndefined", nil},

	OpCall:            {"Call", ops(rA, opX(OperandStack), opY(OperandCount))},
	OpCallSpread:      {"CallSpread", ops(rA, opX(OperandStack))},
	OpNew:             {"New", ops(rA, opX(OperandStack), opY(OperandCount))},
	OpNewSpread:       {"NewSpread", ops(rA, opX(OperandStack))},
	OpSuperCall:       {"SuperCall", ops(rA, opX(OperandStack), opY(OperandCount))},
	OpSuperCallSpread: {"SuperCallSpread", ops(rA, opX(OperandStack))},

	OpNewObject:        {"NewObject", ops(rA)},
	OpNewArray:         {"NewArray", ops(rA, opX(OperandCount))},
	OpArrayPush:        {"ArrayPush", ops(rA, rB)},
	OpArrayPushHole:    {"ArrayPushHole", ops(rA)},
	OpArraySpread:      {"ArraySpread", ops(rA, rB)},
	OpObjectSpread:     {"ObjectSpread", ops(rA, rB)},
	OpGetField:         {"GetField", ops(rA, rB, opX(OperandField))},
	OpSetField:         {"SetField", ops(rA, opX(OperandField), rB)},
	OpGetComputed:      {"GetComputed", ops(rA, rB, rC)},
	OpSetComputed:      {"SetComputed", ops(rA, rB, rC)},
	OpDeleteField:      {"DeleteField", ops(rA, rB, opX(OperandField))},
	OpDeleteComputed:   {"DeleteComputed", ops(rA, rB, rC)},
	OpDefineField:      {"DefineField", ops(rA, opX(OperandField), rB)},
	OpDefineComputed:   {"DefineComputed", ops(rA, rB, rC)},
	OpDefineGetter:     {"DefineGetter", ops(rA, rB, opX(OperandField))},
	OpDefineSetter:     {"DefineSetter", ops(rA, rB, opX(OperandField))},
	OpSetProto:         {"SetProto", ops(rA, rB)},
	OpGetSuperField:    {"GetSuperField", ops(rA, opX(OperandField))},
	OpGetSuperComputed: {"GetSuperComputed", ops(rA, rB)},
	OpGetLength:        {"GetLength", ops(rA, rB)},

	OpNewFunction: {"NewFunction", ops(rA, opX(OperandFunc))},
	OpNewClass:    {"NewClass", ops(rA, rB, opX(OperandClass))},
	OpNewRegex:    {"NewRegex", ops(rA, opX(OperandRegex))},

	OpForInStart: {"ForInStart", ops(rA)},
	OpForOfStart: {"ForOfStart", ops(rA)},
	OpIterNext:   {"IterNext", ops(rA, opX(OperandBlock))},
	OpIterClose:  {"IterClose", nil},

	OpAwait: {"Await", ops(rA, rB)},
	OpYield: {"Yield", ops(rA, rB)},

	OpDebugger: {"Debugger", nil},
}

var opByName map[string]OpCode

func init() {
	opByName = make(map[string]OpCode, numOpCodes)
	for op := OpCode(0); op < numOpCodes; op++ {
		opByName[opTable[op].Name] = op
	}
}

// String returns the mnemonic of the opcode.
func (op OpCode) String() string {
	if op < numOpCodes {
		return opTable[op].Name
	}
	return fmt.Sprintf("Unknown(%d)", uint8(op))
}

// Info returns the operand layout of op.
func (op OpCode) Info() OpInfo {
	if op < numOpCodes {
		return opTable[op]
	}
	return OpInfo{Name: op.String()}
}

// Valid reports whether op is a defined opcode.
func (op OpCode) Valid() bool { return op < numOpCodes }

// LookupOpCode resolves a mnemonic.
func LookupOpCode(name string) (OpCode, bool) {
	op, ok := opByName[name]
	return op, ok
}

// Get reads the raw operand value stored in slot s.
func (ins *Instruction) Get(s OperandSlot) int64 {
	switch s {
	case SlotA:
		return int64(ins.A)
	case SlotB:
		return int64(ins.B)
	case SlotC:
		return int64(ins.C)
	case SlotX:
		return int64(ins.X)
	case SlotY:
		return int64(ins.Y)
	default:
		return ins.Imm
	}
}

// Set stores a raw operand value into slot s.
func (ins *Instruction) Set(s OperandSlot, v int64) {
	switch s {
	case SlotA:
		ins.A = Register(v)
	case SlotB:
		ins.B = Register(v)
	case SlotC:
		ins.C = Register(v)
	case SlotX:
		ins.X = uint32(v)
	case SlotY:
		ins.Y = uint32(v)
	default:
		ins.Imm = v
	}
}

// ErrorKind selects the error constructor used by ThrowError.
type ErrorKind uint32

const (
	ErrorKindError ErrorKind = iota
	ErrorKindTypeError
	ErrorKindRangeError
	ErrorKindReferenceError
	ErrorKindSyntaxError
	numErrorKinds
)

var errorKindNames = [...]string{
	ErrorKindError:          "Error",
	ErrorKindTypeError:      "TypeError",
	ErrorKindRangeError:     "RangeError",
	ErrorKindReferenceError: "ReferenceError",
	ErrorKindSyntaxError:    "SyntaxError",
}

func (k ErrorKind) String() string {
	if k < numErrorKinds {
		return errorKindNames[k]
	}
	return "Error"
}

// LookupErrorKind resolves an error constructor name.
func LookupErrorKind(name string) (ErrorKind, bool) {
	for k, n := range errorKindNames {
		if n == name {
			return ErrorKind(k), true
		}
	}
	return 0, false
}
