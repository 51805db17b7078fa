package vm

import (
	"strings"
	"unicode/utf8"
)

type StringKind uint8

const (
	StringStatic   StringKind = iota // process-lifetime text, never copied
	StringOwned                      // text owned by the cell
	StringCombined                   // rope of child cells, flattened on first read
)

// StringCell is the heap representation of a string value.
type StringCell struct {
	kind   StringKind
	data   string
	parts  []Handle
	length int // byte length of the logical content
}

func (c *StringCell) Kind() StringKind { return c.kind }

// Len returns the byte length of the logical content without flattening.
func (c *StringCell) Len() int { return c.length }

// ropeThresholdBytes is the size below which concatenation copies eagerly
// instead of building a Combined cell.
const ropeThresholdBytes = 64

// NewStaticString allocates a cell that references s without copying. Used
// for literal pools, whose text lives as long as the process.
func (h *Heap) NewStaticString(s string) Value {
	handle, cell := h.allocString(stringClassStatic)
	cell.kind = StringStatic
	cell.data = s
	cell.length = len(s)
	return stringValue(handle)
}

// NewString allocates an Owned cell holding s.
func (h *Heap) NewString(s string) Value {
	handle, cell := h.allocString(stringClassFor(len(s)))
	cell.kind = StringOwned
	cell.data = s
	cell.length = len(s)
	return stringValue(handle)
}

// Concat returns the concatenation of two string values in O(1) for long
// operands by building a Combined cell.
func (h *Heap) Concat(a, b Value) Value {
	ca, cb := h.StringAt(a.Handle()), h.StringAt(b.Handle())
	switch {
	case ca.length == 0:
		return b
	case cb.length == 0:
		return a
	}
	total := ca.length + cb.length
	if total < ropeThresholdBytes && ca.kind != StringCombined && cb.kind != StringCombined {
		return h.NewString(ca.data + cb.data)
	}
	handle, cell := h.allocString(stringClassCombined)
	cell.kind = StringCombined
	cell.parts = []Handle{a.Handle(), b.Handle()}
	cell.length = total
	return stringValue(handle)
}

// Flatten returns the content of a string value. A Combined cell is replaced
// in place by an Owned cell holding the joined content; later calls return
// the same text without rebuilding it.
func (h *Heap) Flatten(v Value) string {
	cell := h.StringAt(v.Handle())
	if cell.kind != StringCombined {
		return cell.data
	}
	var sb strings.Builder
	sb.Grow(cell.length)
	h.appendRope(&sb, cell)
	cell.kind = StringOwned
	cell.data = sb.String()
	cell.parts = nil
	return cell.data
}

// appendRope walks a rope depth-first without recursion; children are left
// untouched since they may be shared with other ropes.
func (h *Heap) appendRope(sb *strings.Builder, root *StringCell) {
	stack := make([]Handle, 0, 8)
	for i := len(root.parts) - 1; i >= 0; i-- {
		stack = append(stack, root.parts[i])
	}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		c := h.StringAt(top)
		if c.kind != StringCombined {
			sb.WriteString(c.data)
			continue
		}
		for i := len(c.parts) - 1; i >= 0; i-- {
			stack = append(stack, c.parts[i])
		}
	}
}

// StringLength returns the length in UTF-16 code units.
func (h *Heap) StringLength(v Value) int {
	s := h.Flatten(v)
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// stringUnits decodes s to UTF-16 code units. Strings are stored as UTF-8, so
// indexed access goes through this view.
func stringUnits(s string) []uint16 {
	units := make([]uint16, 0, len(s))
	for _, r := range s {
		if r >= 0x10000 {
			r -= 0x10000
			units = append(units, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
		} else {
			units = append(units, uint16(r))
		}
	}
	return units
}

// stringCharAt returns the code unit at index i as a one-unit string.
func stringCharAt(s string, i int) (string, bool) {
	if i < 0 {
		return "", false
	}
	// ASCII fast path
	if i < len(s) && isASCII(s[:i+1]) {
		return s[i : i+1], true
	}
	units := stringUnits(s)
	if i >= len(units) {
		return "", false
	}
	u := units[i]
	if u >= 0xD800 && u <= 0xDFFF {
		return string(utf8.RuneError), true
	}
	return string(rune(u)), true
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
