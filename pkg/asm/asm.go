// Package asm reads the text form of compiled units produced by
// vm.Unit.Disassemble, so units can be written and inspected by hand.
//
//	.unit "name"
//	.main 0
//
//	.func 0 "main" arity=0 stack=2 captures=0 [async] [generator] [arrow] [parent_capture]
//	    LoadString r0, "hello"  ; 0 line 1
//	    Return r0
//	.end
//
//	.class 0 "Point" ctor=1 [extends]
//	    method "norm" @2 [getter|setter] [static]
//	.end
//
// A comment of the form "; <pc> line <n>" after an instruction sets its
// source line; any other text after ';' or '#' is ignored.
package asm

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"fortio.org/safecast"

	"lynx/pkg/errors"
	"lynx/pkg/vm"
)

// Ext is the file extension of assembler sources.
const Ext = ".lxs"

// AssembleFile reads and assembles the file at path.
func AssembleFile(path string) (*vm.Unit, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Assemble(path, string(src))
}

// Assemble parses src. file is used in error positions only.
func Assemble(file, src string) (*vm.Unit, error) {
	p := &parser{file: file, scanner: bufio.NewScanner(strings.NewReader(src))}
	p.scanner.Buffer(make([]byte, 0, 64*1024), 1<<24)
	return p.parse()
}

type parser struct {
	file    string
	scanner *bufio.Scanner
	line    int

	ub      *vm.UnitBuilder
	main    uint32
	hasMain bool
	funcs   int
	classes int
}

func (p *parser) errorf(format string, args ...any) error {
	return &errors.SyntaxError{
		Position: errors.Position{Function: p.file, Line: p.line},
		Msg:      fmt.Sprintf(format, args...),
	}
}

// next returns the next line that is not blank or a whole-line comment.
func (p *parser) next() (string, bool) {
	for p.scanner.Scan() {
		p.line++
		text := strings.TrimSpace(p.scanner.Text())
		if text == "" || text[0] == ';' || text[0] == '#' {
			continue
		}
		return text, true
	}
	return "", false
}

func (p *parser) parse() (*vm.Unit, error) {
	for {
		text, ok := p.next()
		if !ok {
			break
		}
		l := newLineLexer(text)
		directive := l.word()
		if p.ub == nil && directive != ".unit" {
			return nil, p.errorf("expected .unit before %s", directive)
		}
		var err error
		switch directive {
		case ".unit":
			err = p.parseUnit(l)
		case ".main":
			err = p.parseMain(l)
		case ".func":
			err = p.parseFunc(l)
		case ".class":
			err = p.parseClass(l)
		default:
			err = p.errorf("unknown directive %q", directive)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := p.scanner.Err(); err != nil {
		return nil, err
	}
	if p.ub == nil {
		return nil, p.errorf("missing .unit")
	}
	if !p.hasMain {
		return nil, p.errorf("missing .main")
	}
	if int(p.main) >= p.funcs {
		return nil, p.errorf(".main %d names no function (%d defined)", p.main, p.funcs)
	}
	return p.ub.Build(p.main), nil
}

func (p *parser) parseUnit(l *lineLexer) error {
	if p.ub != nil {
		return p.errorf("duplicate .unit")
	}
	name, err := l.quoted()
	if err != nil {
		return p.errorf("%v", err)
	}
	p.ub = vm.NewUnitBuilder(name)
	return p.finish(l)
}

func (p *parser) parseMain(l *lineLexer) error {
	n, err := p.uint32(l.word())
	if err != nil {
		return err
	}
	p.main, p.hasMain = n, true
	return p.finish(l)
}

// finish rejects trailing tokens.
func (p *parser) finish(l *lineLexer) error {
	if !l.atEnd() {
		return p.errorf("unexpected %q", l.rest())
	}
	return nil
}

func (p *parser) index(l *lineLexer, want int, what string) error {
	n, err := strconv.Atoi(l.word())
	if err != nil {
		return p.errorf("bad %s index: %v", what, err)
	}
	if n != want {
		return p.errorf("%s %d out of order, expected %d", what, n, want)
	}
	return nil
}

func (p *parser) parseFunc(l *lineLexer) error {
	if err := p.index(l, p.funcs, ".func"); err != nil {
		return err
	}
	name, err := l.quoted()
	if err != nil {
		return p.errorf("%v", err)
	}
	b := vm.NewBuilder(name)
	for !l.atEnd() {
		attr := l.word()
		key, val, hasVal := strings.Cut(attr, "=")
		if hasVal {
			n, err := p.uint16(val)
			if err != nil {
				return err
			}
			switch key {
			case "arity":
				b.Arity(int(n))
			case "stack":
				b.Stack(int(n))
			case "captures":
				b.Captures(int(n))
			default:
				return p.errorf("unknown function attribute %q", key)
			}
			continue
		}
		switch attr {
		case "async":
			b.Async()
		case "generator":
			b.Generator()
		case "arrow":
			b.Arrow()
		case "parent_capture":
			b.ParentCapture()
		default:
			return p.errorf("unknown function attribute %q", attr)
		}
	}

	for {
		text, ok := p.next()
		if !ok {
			return p.errorf("unterminated .func %q", name)
		}
		if text == ".end" {
			break
		}
		ins, line, err := p.parseInstruction(text)
		if err != nil {
			return err
		}
		b.SetLine(line)
		b.Emit(ins)
	}
	p.ub.Function(b.Def())
	p.funcs++
	return nil
}

func (p *parser) parseClass(l *lineLexer) error {
	if err := p.index(l, p.classes, ".class"); err != nil {
		return err
	}
	name, err := l.quoted()
	if err != nil {
		return p.errorf("%v", err)
	}
	cd := &vm.ClassDef{Name: name, Constructor: -1}
	for !l.atEnd() {
		attr := l.word()
		switch {
		case attr == "extends":
			cd.HasSuper = true
		case strings.HasPrefix(attr, "ctor="):
			n, err := strconv.ParseInt(strings.TrimPrefix(attr, "ctor="), 10, 32)
			if err != nil {
				return p.errorf("bad constructor: %v", err)
			}
			cd.Constructor = int32(n)
		default:
			return p.errorf("unknown class attribute %q", attr)
		}
	}

	for {
		text, ok := p.next()
		if !ok {
			return p.errorf("unterminated .class %q", name)
		}
		if text == ".end" {
			break
		}
		m, err := p.parseMethod(newLineLexer(text))
		if err != nil {
			return err
		}
		cd.Methods = append(cd.Methods, m)
	}
	p.ub.Class(cd)
	p.classes++
	return nil
}

func (p *parser) parseMethod(l *lineLexer) (vm.MethodDef, error) {
	var m vm.MethodDef
	if kw := l.word(); kw != "method" {
		return m, p.errorf("expected method, got %q", kw)
	}
	name, err := l.quoted()
	if err != nil {
		return m, p.errorf("%v", err)
	}
	m.Name = p.ub.Field(name)
	fn := l.word()
	if !strings.HasPrefix(fn, "@") {
		return m, p.errorf("expected @function, got %q", fn)
	}
	if m.Function, err = p.uint32(fn[1:]); err != nil {
		return m, err
	}
	for !l.atEnd() {
		switch attr := l.word(); attr {
		case "getter":
			m.Kind = vm.MethodGetter
		case "setter":
			m.Kind = vm.MethodSetter
		case "static":
			m.Static = true
		default:
			return m, p.errorf("unknown method attribute %q", attr)
		}
	}
	return m, nil
}

func (p *parser) parseInstruction(text string) (vm.Instruction, int, error) {
	l := newLineLexer(text)
	mnemonic := l.word()
	op, ok := vm.LookupOpCode(mnemonic)
	if !ok {
		return vm.Instruction{}, 0, p.errorf("unknown instruction %q", mnemonic)
	}
	ins := vm.Instruction{Op: op}
	for i, o := range op.Info().Operands {
		if i > 0 {
			if err := l.expect(','); err != nil {
				return ins, 0, p.errorf("%s: %v", mnemonic, err)
			}
		}
		raw, err := p.operand(l, o.Kind)
		if err != nil {
			return ins, 0, p.errorf("%s operand %d: %v", mnemonic, i+1, err)
		}
		ins.Set(o.Slot, raw)
	}
	if !l.atEnd() {
		return ins, 0, p.errorf("%s: unexpected %q", mnemonic, l.rest())
	}
	return ins, sourceLine(l.comment()), nil
}

// sourceLine extracts n from a "<pc> line <n>" comment.
func sourceLine(comment string) int {
	fields := strings.Fields(comment)
	if len(fields) == 3 && fields[1] == "line" {
		if n, err := strconv.Atoi(fields[2]); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func (p *parser) operand(l *lineLexer, kind vm.OperandKind) (int64, error) {
	switch kind {
	case vm.OperandReg:
		w := l.word()
		if !strings.HasPrefix(w, "r") {
			return 0, fmt.Errorf("expected register, got %q", w)
		}
		n, err := strconv.ParseUint(w[1:], 10, 8)
		return int64(n), err
	case vm.OperandBlock:
		w := l.word()
		if !strings.HasPrefix(w, "L") {
			return 0, fmt.Errorf("expected block label, got %q", w)
		}
		n, err := strconv.ParseUint(w[1:], 10, 32)
		return int64(n), err
	case vm.OperandImmI32:
		n, err := strconv.ParseInt(l.word(), 10, 32)
		return n, err
	case vm.OperandImmF64:
		f, err := strconv.ParseFloat(l.word(), 64)
		return int64(math.Float64bits(f)), err
	case vm.OperandField, vm.OperandName, vm.OperandString:
		s, err := l.quoted()
		if err != nil {
			return 0, err
		}
		switch kind {
		case vm.OperandField:
			return int64(p.ub.Field(s)), nil
		case vm.OperandName:
			return int64(p.ub.Name(s)), nil
		}
		return int64(p.ub.String(s)), nil
	case vm.OperandFloat:
		f, err := strconv.ParseFloat(l.word(), 64)
		if err != nil {
			return 0, err
		}
		return int64(p.ub.Float(f)), nil
	case vm.OperandBigInt:
		w := l.word()
		if !strings.HasSuffix(w, "n") {
			return 0, fmt.Errorf("expected bigint literal, got %q", w)
		}
		n, err := strconv.ParseInt(strings.TrimSuffix(w, "n"), 10, 64)
		if err != nil {
			return 0, err
		}
		return int64(p.ub.BigInt(n)), nil
	case vm.OperandRegex:
		args, err := p.literalCall(l, "re")
		if err != nil {
			return 0, err
		}
		if len(args) != 2 {
			return 0, fmt.Errorf("re() takes pattern and flags")
		}
		return int64(p.ub.Regex(args[0], args[1])), nil
	case vm.OperandTemplate:
		args, err := p.literalCall(l, "tpl")
		if err != nil {
			return 0, err
		}
		return int64(p.ub.Template(args...)), nil
	case vm.OperandFunc, vm.OperandClass:
		w := l.word()
		sigil := "@"
		if kind == vm.OperandClass {
			sigil = "%"
		}
		if !strings.HasPrefix(w, sigil) {
			return 0, fmt.Errorf("expected %sN, got %q", sigil, w)
		}
		n, err := p.uint32(w[1:])
		return int64(n), err
	case vm.OperandSymbol:
		w := l.word()
		id, ok := vm.WellKnownSymbol(w)
		if !ok {
			return 0, fmt.Errorf("unknown well-known symbol %q", w)
		}
		return int64(id), nil
	case vm.OperandErrorKind:
		w := l.word()
		k, ok := vm.LookupErrorKind(w)
		if !ok {
			return 0, fmt.Errorf("unknown error kind %q", w)
		}
		return int64(k), nil
	default:
		n, err := strconv.ParseInt(l.word(), 10, 64)
		return n, err
	}
}

func (p *parser) literalCall(l *lineLexer, want string) ([]string, error) {
	name, err := l.call()
	if err != nil {
		return nil, err
	}
	if name != want {
		return nil, fmt.Errorf("expected %s(...), got %s(", want, name)
	}
	return l.quotedList()
}

func (p *parser) uint32(s string) (uint32, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, p.errorf("bad number %q", s)
	}
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		return 0, p.errorf("%q: %v", s, err)
	}
	return v, nil
}

func (p *parser) uint16(s string) (uint16, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, p.errorf("bad number %q", s)
	}
	v, err := safecast.Conv[uint16](n)
	if err != nil {
		return 0, p.errorf("%q: %v", s, err)
	}
	return v, nil
}
