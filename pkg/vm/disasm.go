package vm

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Disassemble writes the unit in the text form read by the assembler.
// Pool operands are printed as literals, so the output is self-contained.
func (u *Unit) Disassemble(w io.Writer) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, ".unit %s\n.main %d\n", strconv.Quote(u.Name), u.Main)
	for i, def := range u.Functions {
		sb.WriteByte('\n')
		u.disassembleFunction(&sb, i, def)
	}
	for i, cd := range u.Classes {
		sb.WriteByte('\n')
		u.disassembleClass(&sb, i, cd)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func (u *Unit) disassembleFunction(sb *strings.Builder, index int, def *FunctionDef) {
	fmt.Fprintf(sb, ".func %d %s arity=%d stack=%d captures=%d",
		index, strconv.Quote(def.Name), def.Arity, def.StackSlots, def.CaptureSlots)
	for _, attr := range []struct {
		on   bool
		name string
	}{
		{def.IsAsync, "async"},
		{def.IsGenerator, "generator"},
		{def.IsArrow, "arrow"},
		{def.UsesParentCapture, "parent_capture"},
	} {
		if attr.on {
			sb.WriteByte(' ')
			sb.WriteString(attr.name)
		}
	}
	sb.WriteByte('\n')
	for pc := range def.Code {
		ins := &def.Code[pc]
		fmt.Fprintf(sb, "    %s", u.FormatInstruction(ins))
		if line := def.Line(pc); line > 0 {
			fmt.Fprintf(sb, "  ; %d line %d", pc, line)
		}
		sb.WriteByte('\n')
	}
	sb.WriteString(".end\n")
}

func (u *Unit) disassembleClass(sb *strings.Builder, index int, cd *ClassDef) {
	fmt.Fprintf(sb, ".class %d %s ctor=%d", index, strconv.Quote(cd.Name), cd.Constructor)
	if cd.HasSuper {
		sb.WriteString(" extends")
	}
	sb.WriteByte('\n')
	for _, m := range cd.Methods {
		fmt.Fprintf(sb, "    method %s @%d", u.poolString(u.FieldNames, m.Name), m.Function)
		switch m.Kind {
		case MethodGetter:
			sb.WriteString(" getter")
		case MethodSetter:
			sb.WriteString(" setter")
		}
		if m.Static {
			sb.WriteString(" static")
		}
		sb.WriteByte('\n')
	}
	sb.WriteString(".end\n")
}

// FormatInstruction renders one unlinked instruction.
func (u *Unit) FormatInstruction(ins *Instruction) string {
	info := ins.Op.Info()
	if len(info.Operands) == 0 {
		return info.Name
	}
	parts := make([]string, len(info.Operands))
	for i, o := range info.Operands {
		parts[i] = u.formatOperand(o.Kind, ins.Get(o.Slot))
	}
	return info.Name + " " + strings.Join(parts, ", ")
}

func (u *Unit) formatOperand(kind OperandKind, raw int64) string {
	switch kind {
	case OperandReg:
		return Register(raw).String()
	case OperandImmF64:
		return strconv.FormatFloat(math.Float64frombits(uint64(raw)), 'g', -1, 64)
	case OperandBlock:
		return "L" + strconv.FormatInt(raw, 10)
	case OperandField:
		return u.poolString(u.FieldNames, uint32(raw))
	case OperandName:
		return u.poolString(u.DynamicNames, uint32(raw))
	case OperandString:
		return u.poolString(u.Strings, uint32(raw))
	case OperandFloat:
		if raw >= 0 && raw < int64(len(u.Floats)) {
			return strconv.FormatFloat(u.Floats[raw], 'g', -1, 64)
		}
	case OperandBigInt:
		if raw >= 0 && raw < int64(len(u.BigInts)) {
			return strconv.FormatInt(u.BigInts[raw], 10) + "n"
		}
	case OperandRegex:
		if raw >= 0 && raw < int64(len(u.Regexes)) {
			r := u.Regexes[raw]
			return "re(" + strconv.Quote(r.Pattern) + ", " + strconv.Quote(r.Flags) + ")"
		}
	case OperandTemplate:
		if raw >= 0 && raw < int64(len(u.Templates)) {
			frags := make([]string, len(u.Templates[raw].Fragments))
			for i, f := range u.Templates[raw].Fragments {
				frags[i] = strconv.Quote(f)
			}
			return "tpl(" + strings.Join(frags, ", ") + ")"
		}
	case OperandFunc:
		return "@" + strconv.FormatInt(raw, 10)
	case OperandClass:
		return "%" + strconv.FormatInt(raw, 10)
	case OperandSymbol:
		if raw > 0 && raw < int64(len(wellKnownSymbols)) {
			return wellKnownSymbols[raw]
		}
	case OperandErrorKind:
		if raw >= 0 && raw < int64(numErrorKinds) {
			return ErrorKind(raw).String()
		}
	default:
		return strconv.FormatInt(raw, 10)
	}
	return fmt.Sprintf("<bad operand %d>", raw)
}

func (u *Unit) poolString(pool []string, id uint32) string {
	if int(id) < len(pool) {
		return strconv.Quote(pool[id])
	}
	return fmt.Sprintf("<bad name %d>", id)
}
