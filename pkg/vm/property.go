package vm

import (
	"lynx/pkg/errors"
)

// PropFlags are the attribute bits of a property slot.
type PropFlags uint8

const (
	FlagEnumerable PropFlags = 1 << iota
	FlagWritable
	FlagConfigurable
	FlagGetter
	FlagSetter
)

const (
	// DefaultDataFlags are the flags of a property created by assignment.
	DefaultDataFlags = FlagEnumerable | FlagWritable | FlagConfigurable
	// HiddenDataFlags are used for built-in methods and class members.
	HiddenDataFlags = FlagWritable | FlagConfigurable

	accessorMask = FlagGetter | FlagSetter
)

// PropertyCell is the content of a property slot: a data value, a getter, a
// setter or a getter/setter pair, discriminated by the slot flags.
type PropertyCell struct {
	Value  Value
	Getter Value
	Setter Value
}

// Property is one slot of a PropertyMap.
type Property struct {
	Key   PropertyKey
	Flags PropFlags
	Cell  PropertyCell
}

func (p *Property) IsAccessor() bool   { return p.Flags&accessorMask != 0 }
func (p *Property) Enumerable() bool   { return p.Flags&FlagEnumerable != 0 }
func (p *Property) Writable() bool     { return p.Flags&FlagWritable != 0 }
func (p *Property) Configurable() bool { return p.Flags&FlagConfigurable != 0 }

// PropertyMap stores own properties in insertion order. Small maps are
// scanned linearly; an index is built once they grow past indexThreshold.
type PropertyMap struct {
	slots []Property
	index map[PropertyKey]int32
}

const indexThreshold = 8

func (m *PropertyMap) Len() int { return len(m.slots) }

func (m *PropertyMap) find(key PropertyKey) int {
	if m.index != nil {
		if i, ok := m.index[key]; ok {
			return int(i)
		}
		return -1
	}
	for i := range m.slots {
		if m.slots[i].Key == key {
			return i
		}
	}
	return -1
}

// Lookup returns the slot for key.
func (m *PropertyMap) Lookup(key PropertyKey) (*Property, bool) {
	i := m.find(key)
	if i < 0 {
		return nil, false
	}
	return &m.slots[i], true
}

// SetValue stores a data value, creating the slot with flags if absent and
// keeping the existing flags otherwise.
func (m *PropertyMap) SetValue(key PropertyKey, v Value, flags PropFlags) {
	if i := m.find(key); i >= 0 {
		p := &m.slots[i]
		p.Flags &^= accessorMask
		p.Cell = PropertyCell{Value: v}
		return
	}
	m.append(Property{Key: key, Flags: flags &^ accessorMask, Cell: PropertyCell{Value: v}})
}

// Define replaces the slot for key. Accessor flags must agree with the cell.
func (m *PropertyMap) Define(key PropertyKey, flags PropFlags, cell PropertyCell) {
	if flags&accessorMask == 0 && (!cell.Getter.IsUndefined() || !cell.Setter.IsUndefined()) {
		errors.Fatal(errors.EngineBadOperand, "data property %d defined with accessor cell", key)
	}
	if i := m.find(key); i >= 0 {
		m.slots[i] = Property{Key: key, Flags: flags, Cell: cell}
		return
	}
	m.append(Property{Key: key, Flags: flags, Cell: cell})
}

// DefineGetter installs fn as the getter for key, keeping an existing setter.
func (m *PropertyMap) DefineGetter(key PropertyKey, fn Value, flags PropFlags) {
	if p, ok := m.Lookup(key); ok && p.Flags&FlagSetter != 0 {
		p.Flags = (flags &^ FlagWritable) | FlagGetter | FlagSetter
		p.Cell.Getter = fn
		return
	}
	m.Define(key, (flags&^FlagWritable)|FlagGetter, PropertyCell{Getter: fn})
}

// DefineSetter installs fn as the setter for key, keeping an existing getter.
func (m *PropertyMap) DefineSetter(key PropertyKey, fn Value, flags PropFlags) {
	if p, ok := m.Lookup(key); ok && p.Flags&FlagGetter != 0 {
		p.Flags = (flags &^ FlagWritable) | FlagGetter | FlagSetter
		p.Cell.Setter = fn
		return
	}
	m.Define(key, (flags&^FlagWritable)|FlagSetter, PropertyCell{Setter: fn})
}

func (m *PropertyMap) append(p Property) {
	m.slots = append(m.slots, p)
	if m.index != nil {
		m.index[p.Key] = int32(len(m.slots) - 1)
	} else if len(m.slots) > indexThreshold {
		m.reindex()
	}
}

func (m *PropertyMap) reindex() {
	m.index = make(map[PropertyKey]int32, len(m.slots)*2)
	for i := range m.slots {
		m.index[m.slots[i].Key] = int32(i)
	}
}

// Delete removes key, preserving the order of the remaining slots.
func (m *PropertyMap) Delete(key PropertyKey) bool {
	i := m.find(key)
	if i < 0 {
		return false
	}
	copy(m.slots[i:], m.slots[i+1:])
	m.slots[len(m.slots)-1] = Property{}
	m.slots = m.slots[:len(m.slots)-1]
	if m.index != nil {
		if len(m.slots) <= indexThreshold {
			m.index = nil
		} else {
			m.reindex()
		}
	}
	return true
}

// Slots returns the slots in insertion order. The slice must not be retained
// across mutations.
func (m *PropertyMap) Slots() []Property { return m.slots }
