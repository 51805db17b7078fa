package vm

import (
	"fmt"

	"fortio.org/safecast"

	"lynx/pkg/errors"
)

// Link validates a unit, interns its pools into the runtime tables and
// rewrites every instruction to runtime ids and absolute jump targets. The
// unit itself is left untouched, so one Unit may be linked into several
// runtimes.
//
// Malformed operands are reported as *errors.LinkError. A jump to a block
// that is never declared or never switched to is an engine defect and
// panics with errors.EngineUnresolvedBlock.
func (rt *Runtime) Link(u *Unit) (_ *LinkedUnit, err error) {
	defer rt.catchExhaustion(&err)
	if int(u.Main) >= len(u.Functions) {
		return nil, &errors.LinkError{Position: errors.Position{Function: u.Name}, Msg: fmt.Sprintf("main function %d out of range", u.Main)}
	}
	l := &linker{
		rt:        rt,
		unit:      u,
		funcBase:  rt.nextFunc,
		classBase: rt.nextClass,
		litBase:   len(rt.literals),
		floatBase: len(rt.floats),
		bigBase:   len(rt.bigints),
		regexBase: len(rt.regexes),
		tmplBase:  len(rt.templates),
	}
	l.fields = make([]PropertyKey, len(u.FieldNames))
	for i, name := range u.FieldNames {
		l.fields[i] = rt.Key(name)
	}
	l.names = make([]PropertyKey, len(u.DynamicNames))
	for i, name := range u.DynamicNames {
		l.names[i] = rt.Key(name)
	}

	defs := make([]*FunctionDef, len(u.Functions))
	for i, src := range u.Functions {
		if src == nil {
			return nil, l.errorf(nil, 0, "function %d is missing", i)
		}
		def := *src
		id, err := l.globalID(l.funcBase, i)
		if err != nil {
			return nil, l.errorf(src, 0, "%v", err)
		}
		def.id = FuncID(id)
		def.nested = nil
		def.classes = nil
		defs[i] = &def
	}
	l.defs = defs

	classes := make([]*ClassDef, len(u.Classes))
	for i, src := range u.Classes {
		c, err := l.linkClass(i, src)
		if err != nil {
			return nil, err
		}
		classes[i] = c
	}

	for _, def := range defs {
		code, err := l.linkCode(def)
		if err != nil {
			return nil, err
		}
		def.Code = code
		def.linked = true
	}

	if !rt.heap.Room(len(u.Strings)) {
		return nil, rt.heapExhaustedError()
	}

	// commit
	lu := &LinkedUnit{Name: u.Name, Main: defs[u.Main], Functions: defs, Classes: classes}
	for _, s := range u.Strings {
		rt.literals = append(rt.literals, rt.heap.NewStaticString(s))
	}
	rt.floats = append(rt.floats, u.Floats...)
	rt.bigints = append(rt.bigints, u.BigInts...)
	rt.regexes = append(rt.regexes, u.Regexes...)
	for _, t := range u.Templates {
		rt.templates = append(rt.templates, t.Fragments)
	}
	for _, def := range defs {
		rt.functions[def.id] = def
	}
	for _, c := range classes {
		c.linkedBy = lu
		rt.classes[c.id] = c
	}
	rt.nextFunc += uint32(len(defs))
	rt.nextClass += uint32(len(classes))
	rt.log.Debugf("linked unit %q: %d functions, %d classes", u.Name, len(defs), len(classes))
	return lu, nil
}

type linker struct {
	rt   *Runtime
	unit *Unit
	defs []*FunctionDef

	fields []PropertyKey
	names  []PropertyKey

	funcBase, classBase uint32
	litBase, floatBase  int
	bigBase, regexBase  int
	tmplBase            int
}

func (l *linker) errorf(def *FunctionDef, pc int, format string, args ...any) error {
	pos := errors.Position{Function: l.unit.Name, PC: pc}
	if def != nil {
		pos.Function = def.Name
		pos.Line = def.Line(pc)
	}
	return &errors.LinkError{Position: pos, Msg: fmt.Sprintf(format, args...)}
}

func (l *linker) globalID(base uint32, local int) (uint32, error) {
	off, err := safecast.Conv[uint32](local)
	if err != nil {
		return 0, err
	}
	if off > ^uint32(0)-base {
		return 0, fmt.Errorf("id space exhausted")
	}
	return base + off, nil
}

func (l *linker) poolIndex(base, local, size int, what string, def *FunctionDef, pc int) (uint32, error) {
	if local >= size {
		return 0, l.errorf(def, pc, "%s %d out of range (%d entries)", what, local, size)
	}
	idx, err := safecast.Conv[uint32](base + local)
	if err != nil {
		return 0, l.errorf(def, pc, "%s index: %v", what, err)
	}
	return idx, nil
}

func (l *linker) linkClass(i int, src *ClassDef) (*ClassDef, error) {
	if src == nil {
		return nil, l.errorf(nil, 0, "class %d is missing", i)
	}
	c := *src
	id, err := l.globalID(l.classBase, i)
	if err != nil {
		return nil, l.errorf(nil, 0, "%v", err)
	}
	c.id = ClassID(id)
	if src.Constructor >= 0 {
		if int(src.Constructor) >= len(l.defs) {
			return nil, l.errorf(nil, 0, "class %s: constructor %d out of range", src.Name, src.Constructor)
		}
		c.ctor = l.defs[src.Constructor]
	}
	c.methods = make([]linkedMethod, 0, len(src.Methods))
	for _, m := range src.Methods {
		if int(m.Name) >= len(l.fields) {
			return nil, l.errorf(nil, 0, "class %s: method name %d out of range", src.Name, m.Name)
		}
		if int(m.Function) >= len(l.defs) {
			return nil, l.errorf(nil, 0, "class %s: method function %d out of range", src.Name, m.Function)
		}
		c.methods = append(c.methods, linkedMethod{
			key:    l.fields[m.Name],
			def:    l.defs[m.Function],
			kind:   m.Kind,
			static: m.Static,
		})
	}
	return &c, nil
}

func (l *linker) linkCode(def *FunctionDef) ([]Instruction, error) {
	// blocks: declared by CreateBlock, placed by SwitchToBlock
	declared := make(map[uint32]bool)
	placed := make(map[uint32]int)
	for pc, ins := range def.Code {
		switch ins.Op {
		case OpCreateBlock:
			declared[ins.X] = true
		case OpSwitchToBlock:
			if _, dup := placed[ins.X]; dup {
				return nil, l.errorf(def, pc, "block %d placed twice", ins.X)
			}
			placed[ins.X] = pc
		}
	}

	code := make([]Instruction, len(def.Code))
	copy(code, def.Code)
	for pc := range code {
		ins := &code[pc]
		if !ins.Op.Valid() {
			return nil, l.errorf(def, pc, "invalid opcode %d", uint8(ins.Op))
		}
		for _, o := range opTable[ins.Op].Operands {
			if err := l.linkOperand(def, pc, ins, o, declared, placed); err != nil {
				return nil, err
			}
		}
		if err := l.checkWindow(def, pc, ins); err != nil {
			return nil, err
		}
		switch ins.Op {
		case OpNewFunction:
			def.nested = append(def.nested, FuncID(ins.X))
		case OpNewClass:
			def.classes = append(def.classes, ClassID(ins.X))
		}
	}
	return code, nil
}

func (l *linker) linkOperand(def *FunctionDef, pc int, ins *Instruction, o Operand, declared map[uint32]bool, placed map[uint32]int) error {
	raw := ins.Get(o.Slot)
	u := l.unit
	var (
		v   uint32
		err error
	)
	switch o.Kind {
	case OperandReg:
		if raw >= NumRegisters {
			return l.errorf(def, pc, "%s: register r%d out of range", ins.Op, raw)
		}
		return nil
	case OperandStack:
		if raw >= int64(def.StackSlots) {
			return l.errorf(def, pc, "%s: stack offset %d outside window of %d", ins.Op, raw, def.StackSlots)
		}
		return nil
	case OperandCapture:
		if def.CaptureSlots == 0 && !def.UsesParentCapture {
			return l.errorf(def, pc, "%s: function has no capture environment", ins.Op)
		}
		if def.CaptureSlots > 0 && !def.UsesParentCapture && raw >= int64(def.CaptureSlots) {
			return l.errorf(def, pc, "%s: capture slot %d out of range", ins.Op, raw)
		}
		return nil
	case OperandParam, OperandTemp, OperandCount, OperandImmI32, OperandImmF64, OperandImmI64:
		return nil
	case OperandBlock:
		if ins.Op == OpCreateBlock || ins.Op == OpSwitchToBlock {
			return nil
		}
		if !declared[uint32(raw)] {
			errors.Fatal(errors.EngineUnresolvedBlock, "%s at %s:%d targets undeclared block %d", ins.Op, def.Name, pc, raw)
		}
		target, ok := placed[uint32(raw)]
		if !ok {
			errors.Fatal(errors.EngineUnresolvedBlock, "%s at %s:%d targets block %d that is never placed", ins.Op, def.Name, pc, raw)
		}
		v = uint32(target)
	case OperandField:
		if raw >= int64(len(l.fields)) {
			return l.errorf(def, pc, "%s: field name %d out of range", ins.Op, raw)
		}
		v = uint32(l.fields[raw])
	case OperandName:
		if raw >= int64(len(l.names)) {
			return l.errorf(def, pc, "%s: variable name %d out of range", ins.Op, raw)
		}
		v = uint32(l.names[raw])
	case OperandString:
		v, err = l.poolIndex(l.litBase, int(raw), len(u.Strings), "string", def, pc)
	case OperandFloat:
		v, err = l.poolIndex(l.floatBase, int(raw), len(u.Floats), "float", def, pc)
	case OperandBigInt:
		v, err = l.poolIndex(l.bigBase, int(raw), len(u.BigInts), "bigint", def, pc)
	case OperandRegex:
		v, err = l.poolIndex(l.regexBase, int(raw), len(u.Regexes), "regex", def, pc)
	case OperandTemplate:
		v, err = l.poolIndex(l.tmplBase, int(raw), len(u.Templates), "template", def, pc)
	case OperandFunc:
		if raw >= int64(len(l.defs)) {
			return l.errorf(def, pc, "%s: function %d out of range", ins.Op, raw)
		}
		v = uint32(l.defs[raw].id)
	case OperandClass:
		if raw >= int64(len(u.Classes)) {
			return l.errorf(def, pc, "%s: class %d out of range", ins.Op, raw)
		}
		v = l.classBase + uint32(raw)
	case OperandSymbol:
		if raw <= 0 || raw >= int64(len(wellKnownSymbols)) {
			return l.errorf(def, pc, "%s: unknown well-known symbol %d", ins.Op, raw)
		}
		return nil
	case OperandErrorKind:
		if raw >= int64(numErrorKinds) {
			return l.errorf(def, pc, "%s: unknown error kind %d", ins.Op, raw)
		}
		return nil
	default:
		return l.errorf(def, pc, "%s: unknown operand kind %d", ins.Op, o.Kind)
	}
	if err != nil {
		return err
	}
	ins.Set(o.Slot, int64(v))
	return nil
}

// checkWindow validates the argument windows of calls and templates, which
// span more than the single offset the operand table describes.
func (l *linker) checkWindow(def *FunctionDef, pc int, ins *Instruction) error {
	slots := uint64(def.StackSlots)
	var end uint64
	switch ins.Op {
	case OpCall, OpNew, OpSuperCall:
		end = uint64(ins.X) + 2 + uint64(ins.Y)
	case OpCallSpread, OpNewSpread, OpSuperCallSpread:
		end = uint64(ins.X) + 3
	case OpMakeTemplate:
		frags := len(l.unit.Templates[int(ins.X)-l.tmplBase].Fragments)
		if frags > 0 {
			end = uint64(ins.Y) + uint64(frags-1)
		}
	default:
		return nil
	}
	if end > slots {
		return l.errorf(def, pc, "%s: argument window ends at %d, beyond %d stack slots", ins.Op, end, slots)
	}
	return nil
}
