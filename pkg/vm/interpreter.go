package vm

import (
	"fmt"
	"math"

	"lynx/pkg/errors"
)

const debugInterpreter = false

// execContext is one value stack with its activations: the main context or
// the private stack of a coroutine.
type execContext struct {
	stack  []Value
	top    int
	frames []*Frame
	co     *coroutine
}

func newExecContext(size int, co *coroutine) *execContext {
	return &execContext{stack: make([]Value, size), co: co}
}

type tryHandler struct {
	catch int
	temps int
	iters int
}

// Frame is one activation of a bytecode function: the three registers, a
// window of the shared stack, the capture env and the handler, temp and
// iterator stacks.
type Frame struct {
	ctx    *execContext
	def    *FunctionDef
	fn     *FunctionPayload
	callee Value

	regs      [NumRegisters]Value
	base      int
	window    []Value
	args      []Value
	this      Value
	newTarget Value

	env     *CaptureEnv
	envSize int

	handlers []tryHandler
	temps    []Value
	iters    []*iterState

	pc int
}

func (f *Frame) position() BacktraceEntry {
	pc := f.pc - 1
	if pc < 0 {
		pc = 0
	}
	return BacktraceEntry{Position: errors.Position{Function: f.def.Name, PC: pc, Line: f.def.Line(pc)}}
}

// ensureEnv returns the frame's capture env, allocating it on first use.
func (f *Frame) ensureEnv() *CaptureEnv {
	if f.env == nil {
		if f.envSize == 0 {
			errors.Fatal(errors.EngineBadOperand, "%s uses a capture environment it does not declare", f.def.Name)
		}
		f.env = newCaptureEnv(f.envSize)
	}
	return f.env
}

func (f *Frame) slot(off uint32) *Value {
	if int(off) >= len(f.window) {
		errors.Fatal(errors.EngineWindowOverflow, "%s: stack offset %d outside window of %d", f.def.Name, off, len(f.window))
	}
	return &f.window[off]
}

// argWindow returns the contiguous call window stack[x..x+2+argc).
func (f *Frame) argWindow(x, argc uint32) (this, callee Value, args []Value) {
	end := int(x) + 2 + int(argc)
	if end > len(f.window) {
		errors.Fatal(errors.EngineWindowOverflow, "%s: call window %d..%d outside window of %d", f.def.Name, x, end, len(f.window))
	}
	return f.window[x], f.window[x+1], f.window[x+2 : end : end]
}

func (f *Frame) popTemp() Value {
	n := len(f.temps)
	if n == 0 {
		errors.Fatal(errors.EngineStackUnderflow, "%s: temp stack is empty", f.def.Name)
	}
	v := f.temps[n-1]
	f.temps = f.temps[:n-1]
	return v
}

// run executes f to completion. Script exceptions not handled in f are
// returned with f appended to their backtrace.
func (rt *Runtime) run(f *Frame) (Value, error) {
	for {
		result, resume, err := rt.runSteps(f)
		if !resume {
			return result, err
		}
	}
}

// runSteps executes f until it returns or an allocation hits the heap limit.
// The exhaustion is thrown at the failing instruction; resume reports that a
// handler in f caught it and execution continues at the handler.
func (rt *Runtime) runSteps(f *Frame) (result Value, resume bool, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if _, ok := r.(heapExhausted); !ok {
			panic(r)
		}
		exc := rt.heapExhaustedError()
		if rt.unwind(f, exc) {
			result, resume, err = Undefined, true, nil
			return
		}
		if len(exc.Backtrace) < 64 {
			exc.Backtrace = append(exc.Backtrace, f.position())
		}
		result, resume, err = Undefined, false, exc
	}()

	code := f.def.Code
	for {
		if f.pc >= len(code) {
			return Undefined, false, nil
		}
		ins := &code[f.pc]
		f.pc++
		if debugInterpreter {
			fmt.Printf("[DEBUG interpreter.go] %s:%d %s regs=%v\n", f.def.Name, f.pc-1, ins.Op, f.regs)
		}

		var opErr error
		switch ins.Op {
		case OpNop, OpCreateBlock, OpSwitchToBlock, OpDebugger:

		case OpLoadUndefined:
			f.regs[ins.A] = Undefined
		case OpLoadNull:
			f.regs[ins.A] = Null
		case OpLoadTrue:
			f.regs[ins.A] = True
		case OpLoadFalse:
			f.regs[ins.A] = False
		case OpLoadImmI32:
			f.regs[ins.A] = IntegerValue(int32(ins.Imm))
		case OpLoadImmF64:
			f.regs[ins.A] = NumberValue(math.Float64frombits(uint64(ins.Imm)))
		case OpLoadImmBigInt:
			f.regs[ins.A] = BigIntValue(ins.Imm)
		case OpLoadFloat:
			f.regs[ins.A] = NumberValue(rt.floats[ins.X])
		case OpLoadBigInt:
			f.regs[ins.A] = BigIntValue(rt.bigints[ins.X])
		case OpLoadString:
			f.regs[ins.A] = rt.literals[ins.X]
		case OpLoadSymbol:
			f.regs[ins.A] = SymbolValue(SymbolID(ins.X))
		case OpLoadGlobalObject:
			f.regs[ins.A] = rt.global
		case OpLoadThis:
			f.regs[ins.A] = f.this
		case OpLoadNewTarget:
			f.regs[ins.A] = f.newTarget
		case OpLoadArgCount:
			f.regs[ins.A] = IntegerValue(int32(len(f.args)))
		case OpMove:
			f.regs[ins.A] = f.regs[ins.B]

		case OpReadStack:
			f.regs[ins.A] = *f.slot(ins.X)
		case OpWriteStack:
			*f.slot(ins.X) = f.regs[ins.A]
		case OpReadParam:
			if int(ins.X) < len(f.args) {
				f.regs[ins.A] = f.args[ins.X]
			} else {
				f.regs[ins.A] = Undefined
			}
		case OpReadRestParams:
			var rest []Value
			if int(ins.X) < len(f.args) {
				rest = f.args[ins.X:]
			}
			f.regs[ins.A] = rt.NewArray(rest)
		case OpReadCapturedVar:
			f.regs[ins.A] = f.ensureEnv().Get(int(ins.X))
		case OpWriteCapturedVar:
			f.ensureEnv().Set(int(ins.X), f.regs[ins.A])
		case OpCapture:
			f.ensureEnv().Set(int(ins.Y), *f.slot(ins.X))
		case OpStoreTemp:
			f.temps = append(f.temps, f.regs[ins.A])
		case OpReadTemp:
			if int(ins.X) >= len(f.temps) {
				errors.Fatal(errors.EngineStackUnderflow, "%s: temp depth %d exceeds %d", f.def.Name, ins.X, len(f.temps))
			}
			f.regs[ins.A] = f.temps[len(f.temps)-1-int(ins.X)]
		case OpReleaseTemp:
			f.popTemp()

		case OpReadGlobal:
			f.regs[ins.A], opErr = rt.readGlobal(PropertyKey(ins.X))
		case OpWriteGlobal:
			opErr = rt.SetProperty(rt.global, PropertyKey(ins.X), f.regs[ins.A])
		case OpDeclareGlobal:
			g := rt.Object(rt.global)
			if _, ok := g.Props.Lookup(PropertyKey(ins.X)); !ok {
				g.Props.SetValue(PropertyKey(ins.X), Undefined, FlagEnumerable|FlagWritable)
			}
		case OpTypeofGlobal:
			var (
				v  Value
				ok bool
			)
			if ok, opErr = rt.HasProperty(rt.global, PropertyKey(ins.X)); ok && opErr == nil {
				v, opErr = rt.GetProperty(rt.global, PropertyKey(ins.X))
			}
			if opErr == nil {
				f.regs[ins.A] = rt.typeOf(v)
			}

		case OpAdd:
			f.regs[ins.A], opErr = rt.add(f.regs[ins.B], f.regs[ins.C])
		case OpSub, OpMul, OpDiv, OpRem, OpExp, OpBitAnd, OpBitOr, OpBitXor, OpShl, OpShr, OpUShr:
			f.regs[ins.A], opErr = rt.arith(ins.Op, f.regs[ins.B], f.regs[ins.C])
		case OpAddImmI32:
			f.regs[ins.A], opErr = rt.add(f.regs[ins.B], IntegerValue(int32(ins.Imm)))
		case OpSubImmI32:
			f.regs[ins.A], opErr = rt.arith(OpSub, f.regs[ins.B], IntegerValue(int32(ins.Imm)))
		case OpMulImmI32:
			f.regs[ins.A], opErr = rt.arith(OpMul, f.regs[ins.B], IntegerValue(int32(ins.Imm)))
		case OpNeg, OpPlus, OpBitNot, OpInc, OpDec, OpToNumeric:
			f.regs[ins.A], opErr = rt.unary(ins.Op, f.regs[ins.B])
		case OpNot:
			f.regs[ins.A] = BooleanValue(!rt.ToBoolean(f.regs[ins.B]))
		case OpTypeof:
			f.regs[ins.A] = rt.typeOf(f.regs[ins.B])
		case OpToPropertyKey:
			var k PropertyKey
			if k, opErr = rt.ToPropertyKey(f.regs[ins.B]); opErr == nil {
				f.regs[ins.A] = rt.keyValue(k)
			}
		case OpToString:
			f.regs[ins.A], opErr = rt.ToString(f.regs[ins.B])
		case OpConcatString:
			f.regs[ins.A], opErr = rt.concatString(f.regs[ins.B], f.regs[ins.C])
		case OpMakeTemplate:
			f.regs[ins.A], opErr = rt.makeTemplate(f, ins.X, ins.Y)

		case OpEq:
			var eq bool
			eq, opErr = rt.LooseEquals(f.regs[ins.B], f.regs[ins.C])
			f.regs[ins.A] = BooleanValue(eq)
		case OpNotEq:
			var eq bool
			eq, opErr = rt.LooseEquals(f.regs[ins.B], f.regs[ins.C])
			f.regs[ins.A] = BooleanValue(!eq)
		case OpStrictEq:
			f.regs[ins.A] = BooleanValue(rt.StrictEquals(f.regs[ins.B], f.regs[ins.C]))
		case OpStrictNotEq:
			f.regs[ins.A] = BooleanValue(!rt.StrictEquals(f.regs[ins.B], f.regs[ins.C]))
		case OpLt, OpLtEq, OpGt, OpGtEq:
			f.regs[ins.A], opErr = rt.compare(ins.Op, f.regs[ins.B], f.regs[ins.C])
		case OpIn:
			f.regs[ins.A], opErr = rt.opIn(f.regs[ins.B], f.regs[ins.C])
		case OpInstanceOf:
			var ok bool
			ok, opErr = rt.InstanceOf(f.regs[ins.B], f.regs[ins.C])
			f.regs[ins.A] = BooleanValue(ok)
		case OpIsNullish:
			f.regs[ins.A] = BooleanValue(f.regs[ins.B].IsNullish())
		case OpIsUndefined:
			f.regs[ins.A] = BooleanValue(f.regs[ins.B].IsUndefined())

		case OpJump:
			f.pc = int(ins.X)
		case OpJumpIfTrue:
			if rt.ToBoolean(f.regs[ins.A]) {
				f.pc = int(ins.X)
			}
		case OpJumpIfFalse:
			if !rt.ToBoolean(f.regs[ins.A]) {
				f.pc = int(ins.X)
			}
		case OpJumpIfNullish:
			if f.regs[ins.A].IsNullish() {
				f.pc = int(ins.X)
			}
		case OpJumpIfUndefined:
			if f.regs[ins.A].IsUndefined() {
				f.pc = int(ins.X)
			}
		case OpEnterTry:
			f.handlers = append(f.handlers, tryHandler{catch: int(ins.X), temps: len(f.temps), iters: len(f.iters)})
		case OpExitTry:
			if len(f.handlers) == 0 {
				errors.Fatal(errors.EngineStackUnderflow, "%s: ExitTry without handler", f.def.Name)
			}
			f.handlers = f.handlers[:len(f.handlers)-1]
		case OpThrow:
			opErr = rt.throwValue(f.regs[ins.A])
		case OpThrowError:
			opErr = rt.errorf(ErrorKind(ins.X), "%s", rt.GoString(rt.literals[ins.Y]))
		case OpReturn:
			return f.regs[ins.A], false, nil
		case OpReturnUndefined:
			return Undefined, false, nil

		case OpCall:
			this, callee, args := f.argWindow(ins.X, ins.Y)
			f.regs[ins.A], opErr = rt.invoke(f.ctx, callee, this, args)
		case OpCallSpread:
			this, callee, spread := f.argWindow(ins.X, 1)
			var args []Value
			if args, opErr = rt.iterableToList(spread[0]); opErr == nil {
				f.regs[ins.A], opErr = rt.invoke(f.ctx, callee, this, args)
			}
		case OpNew:
			_, callee, args := f.argWindow(ins.X, ins.Y)
			f.regs[ins.A], opErr = rt.construct(f.ctx, callee, args, callee)
		case OpNewSpread:
			_, callee, spread := f.argWindow(ins.X, 1)
			var args []Value
			if args, opErr = rt.iterableToList(spread[0]); opErr == nil {
				f.regs[ins.A], opErr = rt.construct(f.ctx, callee, args, callee)
			}
		case OpSuperCall:
			_, _, args := f.argWindow(ins.X, ins.Y)
			f.regs[ins.A], opErr = rt.superCall(f, args)
		case OpSuperCallSpread:
			_, _, spread := f.argWindow(ins.X, 1)
			var args []Value
			if args, opErr = rt.iterableToList(spread[0]); opErr == nil {
				f.regs[ins.A], opErr = rt.superCall(f, args)
			}

		case OpNewObject:
			f.regs[ins.A] = rt.NewPlainObject()
		case OpNewArray:
			f.regs[ins.A] = rt.NewObject(rt.realm.ArrayPrototype, &ArrayPayload{Elements: make([]ArrayElement, 0, ins.X)})
		case OpArrayPush:
			opErr = rt.arrayPush(f.regs[ins.A], f.regs[ins.B])
		case OpArrayPushHole:
			if a, ok := rt.arrayOf(f.regs[ins.A]); ok {
				a.Elements = append(a.Elements, ArrayElement{Hole: true, Value: Undefined})
			} else {
				errors.Fatal(errors.EngineBadOperand, "ArrayPushHole on non-array")
			}
		case OpArraySpread:
			opErr = rt.arraySpread(f.regs[ins.A], f.regs[ins.B])
		case OpObjectSpread:
			opErr = rt.CopyDataProperties(f.regs[ins.A], f.regs[ins.B])
		case OpGetField:
			f.regs[ins.A], opErr = rt.GetProperty(f.regs[ins.B], PropertyKey(ins.X))
		case OpSetField:
			opErr = rt.SetProperty(f.regs[ins.A], PropertyKey(ins.X), f.regs[ins.B])
		case OpGetComputed:
			f.regs[ins.A], opErr = rt.GetComputed(f.regs[ins.B], f.regs[ins.C])
		case OpSetComputed:
			opErr = rt.SetComputed(f.regs[ins.A], f.regs[ins.B], f.regs[ins.C])
		case OpDeleteField:
			var ok bool
			ok, opErr = rt.DeleteProperty(f.regs[ins.B], PropertyKey(ins.X))
			f.regs[ins.A] = BooleanValue(ok)
		case OpDeleteComputed:
			var k PropertyKey
			if k, opErr = rt.ToPropertyKey(f.regs[ins.C]); opErr == nil {
				var ok bool
				ok, opErr = rt.DeleteProperty(f.regs[ins.B], k)
				f.regs[ins.A] = BooleanValue(ok)
			}
		case OpDefineField:
			opErr = rt.defineField(f.regs[ins.A], PropertyKey(ins.X), f.regs[ins.B])
		case OpDefineComputed:
			var k PropertyKey
			if k, opErr = rt.ToPropertyKey(f.regs[ins.B]); opErr == nil {
				opErr = rt.defineField(f.regs[ins.A], k, f.regs[ins.C])
			}
		case OpDefineGetter:
			rt.Object(f.regs[ins.A]).Props.DefineGetter(PropertyKey(ins.X), f.regs[ins.B], FlagEnumerable|FlagConfigurable)
		case OpDefineSetter:
			rt.Object(f.regs[ins.A]).Props.DefineSetter(PropertyKey(ins.X), f.regs[ins.B], FlagEnumerable|FlagConfigurable)
		case OpSetProto:
			if p := f.regs[ins.B]; p.IsObject() || p.IsNull() {
				opErr = rt.SetPrototypeOf(f.regs[ins.A], p)
			}
		case OpGetSuperField:
			f.regs[ins.A], opErr = rt.superGet(f, PropertyKey(ins.X))
		case OpGetSuperComputed:
			var k PropertyKey
			if k, opErr = rt.ToPropertyKey(f.regs[ins.B]); opErr == nil {
				f.regs[ins.A], opErr = rt.superGet(f, k)
			}
		case OpGetLength:
			f.regs[ins.A], opErr = rt.GetProperty(f.regs[ins.B], rt.keys.length)

		case OpNewFunction:
			f.regs[ins.A] = rt.instantiate(f, rt.functionByID(FuncID(ins.X)), Undefined)
		case OpNewClass:
			f.regs[ins.A], opErr = rt.newClass(f, rt.classByID(ClassID(ins.X)), f.regs[ins.B])
		case OpNewRegex:
			f.regs[ins.A], opErr = rt.NewRegExp(rt.regexes[ins.X].Pattern, rt.regexes[ins.X].Flags)

		case OpForInStart:
			var it *iterState
			if it, opErr = rt.forInIterator(f.regs[ins.A]); opErr == nil {
				f.iters = append(f.iters, it)
			}
		case OpForOfStart:
			var it *iterState
			if it, opErr = rt.forOfIterator(f.regs[ins.A]); opErr == nil {
				f.iters = append(f.iters, it)
			}
		case OpIterNext:
			if len(f.iters) == 0 {
				errors.Fatal(errors.EngineStackUnderflow, "%s: IterNext without iterator", f.def.Name)
			}
			var (
				v    Value
				done bool
			)
			v, done, opErr = rt.iterStep(f.iters[len(f.iters)-1])
			if opErr == nil {
				if done {
					f.pc = int(ins.X)
				} else {
					f.regs[ins.A] = v
				}
			}
		case OpIterClose:
			if len(f.iters) == 0 {
				errors.Fatal(errors.EngineStackUnderflow, "%s: IterClose without iterator", f.def.Name)
			}
			it := f.iters[len(f.iters)-1]
			f.iters[len(f.iters)-1] = nil
			f.iters = f.iters[:len(f.iters)-1]
			opErr = rt.iterClose(it)

		case OpAwait:
			f.regs[ins.A], opErr = rt.await(f, f.regs[ins.B])
		case OpYield:
			f.regs[ins.A], opErr = rt.yield(f, f.regs[ins.B])

		default:
			errors.Fatal(errors.EngineBadOpcode, "%s:%d: opcode %s not executable", f.def.Name, f.pc-1, ins.Op)
		}

		if opErr != nil && !rt.unwind(f, opErr) {
			if exc, ok := opErr.(*Exception); ok && len(exc.Backtrace) < 64 {
				exc.Backtrace = append(exc.Backtrace, f.position())
			}
			return Undefined, false, opErr
		}
	}
}

func (rt *Runtime) readGlobal(key PropertyKey) (Value, error) {
	ok, err := rt.HasProperty(rt.global, key)
	if err != nil {
		return Undefined, err
	}
	if !ok {
		return Undefined, rt.referenceError("%s is not defined", rt.KeyName(key))
	}
	return rt.GetProperty(rt.global, key)
}

func (rt *Runtime) functionByID(id FuncID) *FunctionDef {
	def, ok := rt.functions[id]
	if !ok {
		errors.Fatal(errors.EngineBadOperand, "function %d is not in the function table", id)
	}
	return def
}

func (rt *Runtime) classByID(id ClassID) *ClassDef {
	c, ok := rt.classes[id]
	if !ok {
		errors.Fatal(errors.EngineBadOperand, "class %d is not in the class table", id)
	}
	return c
}

func (rt *Runtime) makeTemplate(f *Frame, tmpl, base uint32) (Value, error) {
	frags := rt.templates[tmpl]
	var out []byte
	for i, frag := range frags {
		out = append(out, frag...)
		if i == len(frags)-1 {
			break
		}
		s, err := rt.ToGoString(*f.slot(base + uint32(i)))
		if err != nil {
			return Undefined, err
		}
		out = append(out, s...)
	}
	return rt.String(string(out)), nil
}
