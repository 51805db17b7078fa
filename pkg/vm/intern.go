package vm

import (
	"fmt"
	"strconv"
)

// PropertyKey is an interned property name. Symbol keys carry the high bit
// and the symbol id in the low bits.
type PropertyKey uint32

const symbolKeyBit PropertyKey = 1 << 31

// IsSymbol reports whether the key names a symbol-keyed property.
func (k PropertyKey) IsSymbol() bool { return k&symbolKeyBit != 0 }

// Symbol returns the symbol id of a symbol key.
func (k PropertyKey) Symbol() SymbolID { return SymbolID(k &^ symbolKeyBit) }

// SymbolKey returns the property key of a symbol.
func SymbolKey(id SymbolID) PropertyKey { return PropertyKey(id) | symbolKeyBit }

// SymbolID identifies an interned symbol. Symbols are never collected.
type SymbolID uint32

// Well-known symbols, registered by every Runtime in this order.
const (
	SymbolIterator SymbolID = iota + 1
	SymbolAsyncIterator
	SymbolToPrimitive
	SymbolHasInstance
	SymbolToStringTag
)

var wellKnownSymbols = []string{
	SymbolIterator:      "Symbol.iterator",
	SymbolAsyncIterator: "Symbol.asyncIterator",
	SymbolToPrimitive:   "Symbol.toPrimitive",
	SymbolHasInstance:   "Symbol.hasInstance",
	SymbolToStringTag:   "Symbol.toStringTag",
}

// WellKnownSymbol resolves a name such as "iterator" to its id.
func WellKnownSymbol(name string) (SymbolID, bool) {
	for id, n := range wellKnownSymbols {
		if id > 0 && (n == name || n == "Symbol."+name) {
			return SymbolID(id), true
		}
	}
	return 0, false
}

// Interner maps property names to stable keys for the life of a Runtime.
type Interner struct {
	names   []string
	indices []int32 // canonical array index of the name, or -1
	ids     map[string]PropertyKey
}

func NewInterner() *Interner {
	return &Interner{ids: make(map[string]PropertyKey, 256)}
}

// Intern returns the key of name, allocating one on first use.
func (in *Interner) Intern(name string) PropertyKey {
	if k, ok := in.ids[name]; ok {
		return k
	}
	k := PropertyKey(len(in.names))
	in.names = append(in.names, name)
	idx := int32(-1)
	if n, ok := parseArrayIndex(name); ok {
		idx = int32(n)
	}
	in.indices = append(in.indices, idx)
	in.ids[name] = k
	return k
}

// Lookup returns the key of an already interned name.
func (in *Interner) Lookup(name string) (PropertyKey, bool) {
	k, ok := in.ids[name]
	return k, ok
}

// Name returns the text of a string key.
func (in *Interner) Name(k PropertyKey) string {
	if k.IsSymbol() || int(k) >= len(in.names) {
		return fmt.Sprintf("<key %d>", uint32(k))
	}
	return in.names[k]
}

// ArrayIndex returns the array index named by k, if k is a canonical index.
func (in *Interner) ArrayIndex(k PropertyKey) (int, bool) {
	if k.IsSymbol() || int(k) >= len(in.indices) {
		return 0, false
	}
	idx := in.indices[k]
	return int(idx), idx >= 0
}

func (in *Interner) Len() int { return len(in.names) }

// parseArrayIndex accepts canonical non-negative integers below 2^31-1.
func parseArrayIndex(s string) (int, bool) {
	if s == "" || len(s) > 10 || (len(s) > 1 && s[0] == '0') {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n >= 1<<31-1 {
		return 0, false
	}
	return int(n), true
}

type symbolInfo struct {
	description string
	hasDesc     bool
}

// NewSymbol creates a fresh symbol with the given description.
func (rt *Runtime) NewSymbol(description string, hasDesc bool) Value {
	rt.symbols = append(rt.symbols, symbolInfo{description: description, hasDesc: hasDesc})
	return SymbolValue(SymbolID(len(rt.symbols) - 1))
}

// SymbolDescription returns the description of a symbol.
func (rt *Runtime) SymbolDescription(id SymbolID) (string, bool) {
	if int(id) >= len(rt.symbols) {
		return "", false
	}
	s := rt.symbols[id]
	return s.description, s.hasDesc
}

// Key interns a property name in the runtime's field name table.
func (rt *Runtime) Key(name string) PropertyKey {
	return rt.names.Intern(name)
}

// KeyName renders a property key for messages and key enumeration.
func (rt *Runtime) KeyName(k PropertyKey) string {
	if k.IsSymbol() {
		desc, _ := rt.SymbolDescription(k.Symbol())
		return "Symbol(" + desc + ")"
	}
	return rt.names.Name(k)
}

// keyValue returns the script-visible value of a key: a string or a symbol.
func (rt *Runtime) keyValue(k PropertyKey) Value {
	if k.IsSymbol() {
		return SymbolValue(k.Symbol())
	}
	return rt.internedString(k)
}

// internedString returns a Static string cell for an interned name. The cell
// is cached and pinned by the runtime tables.
func (rt *Runtime) internedString(k PropertyKey) Value {
	for int(k) >= len(rt.keyStrings) {
		rt.keyStrings = append(rt.keyStrings, Undefined)
	}
	if v := rt.keyStrings[k]; v.IsString() {
		return v
	}
	v := rt.heap.NewStaticString(rt.names.Name(k))
	rt.keyStrings[k] = v
	return v
}
