package vm

import "math"

// keyOf normalizes v into a Map/Set key with SameValueZero semantics:
// strings by content, -0 as +0, every NaN alike.
func (rt *Runtime) keyOf(v Value) mapKey {
	switch v.typ {
	case TypeString:
		return mapKey{typ: TypeString, text: rt.GoString(v)}
	case TypeInteger, TypeFloat:
		f := v.AsFloat()
		if math.IsNaN(f) {
			return mapKey{typ: TypeFloat, payload: math.Float64bits(math.NaN())}
		}
		if f == 0 {
			f = 0
		}
		return mapKey{typ: TypeFloat, payload: math.Float64bits(f)}
	}
	return mapKey{typ: v.typ, payload: v.payload}
}

func newMapPayload() *MapPayload {
	return &MapPayload{index: make(map[mapKey]int)}
}

// NewMap allocates an empty Map.
func (rt *Runtime) NewMap() Value {
	return rt.NewObject(rt.realm.MapPrototype, newMapPayload())
}

// NewSet allocates an empty Set.
func (rt *Runtime) NewSet() Value {
	return rt.NewObject(rt.realm.SetPrototype, &SetPayload{MapPayload: *newMapPayload()})
}

// NewWeakMap allocates an empty WeakMap.
func (rt *Runtime) NewWeakMap() Value {
	return rt.NewObject(rt.realm.WeakMapPrototype, &WeakMapPayload{Entries: make(map[Handle]Value)})
}

// NewWeakSet allocates an empty WeakSet.
func (rt *Runtime) NewWeakSet() Value {
	return rt.NewObject(rt.realm.WeakSetPrototype, &WeakSetPayload{Entries: make(map[Handle]struct{})})
}

func (rt *Runtime) mapPayload(v Value) (*MapPayload, bool) {
	obj, ok := rt.objectOf(v)
	if !ok {
		return nil, false
	}
	switch p := obj.Payload.(type) {
	case *MapPayload:
		return p, true
	case *SetPayload:
		return &p.MapPayload, true
	}
	return nil, false
}

func (m *MapPayload) get(k mapKey) (Value, bool) {
	i, ok := m.index[k]
	if !ok {
		return Undefined, false
	}
	return m.Values[i], true
}

func (m *MapPayload) set(k mapKey, key, v Value) {
	if m.index == nil {
		m.index = make(map[mapKey]int)
	}
	if i, ok := m.index[k]; ok {
		m.Values[i] = v
		return
	}
	if key.IsNumber() && key.AsFloat() == 0 {
		key = IntegerValue(0)
	}
	m.index[k] = len(m.Keys)
	m.Keys = append(m.Keys, key)
	m.Values = append(m.Values, v)
	m.deleted = append(m.deleted, false)
	m.size++
}

func (m *MapPayload) remove(k mapKey) bool {
	i, ok := m.index[k]
	if !ok {
		return false
	}
	delete(m.index, k)
	m.deleted[i] = true
	m.Keys[i] = Undefined
	m.Values[i] = Undefined
	m.size--
	// compact once tombstones dominate
	if len(m.Keys) > 32 && m.size < len(m.Keys)/2 {
		m.compact()
	}
	return true
}

func (m *MapPayload) compact() {
	remap := make([]int, len(m.Keys))
	keys := make([]Value, 0, m.size)
	values := make([]Value, 0, m.size)
	for i := range m.Keys {
		if m.deleted[i] {
			remap[i] = -1
			continue
		}
		remap[i] = len(keys)
		keys = append(keys, m.Keys[i])
		values = append(values, m.Values[i])
	}
	for mk, i := range m.index {
		m.index[mk] = remap[i]
	}
	m.Keys, m.Values = keys, values
	m.deleted = make([]bool, len(keys))
}

func (m *MapPayload) clear() {
	m.Keys, m.Values, m.deleted = nil, nil, nil
	m.index = make(map[mapKey]int)
	m.size = 0
}

// Entries calls fn for each live entry in insertion order. Entries added
// during the walk are visited.
func (m *MapPayload) Entries(fn func(k, v Value) bool) {
	for i := 0; i < len(m.Keys); i++ {
		if m.deleted[i] {
			continue
		}
		if !fn(m.Keys[i], m.Values[i]) {
			return
		}
	}
}

// MapGet reads key from a Map.
func (rt *Runtime) MapGet(m, key Value) (Value, error) {
	p, ok := rt.mapPayload(m)
	if !ok {
		return Undefined, rt.typeError("Method Map.prototype.get called on incompatible receiver %s", rt.Inspect(m))
	}
	v, _ := p.get(rt.keyOf(key))
	return v, nil
}

// MapSet stores key → v in a Map.
func (rt *Runtime) MapSet(m, key, v Value) error {
	p, ok := rt.mapPayload(m)
	if !ok {
		return rt.typeError("Method Map.prototype.set called on incompatible receiver %s", rt.Inspect(m))
	}
	p.set(rt.keyOf(key), key, v)
	return nil
}

// MapHas reports whether a Map or Set contains key.
func (rt *Runtime) MapHas(m, key Value) (bool, error) {
	p, ok := rt.mapPayload(m)
	if !ok {
		return false, rt.typeError("Method has called on incompatible receiver %s", rt.Inspect(m))
	}
	_, found := p.get(rt.keyOf(key))
	return found, nil
}

// MapDelete removes key from a Map or Set.
func (rt *Runtime) MapDelete(m, key Value) (bool, error) {
	p, ok := rt.mapPayload(m)
	if !ok {
		return false, rt.typeError("Method delete called on incompatible receiver %s", rt.Inspect(m))
	}
	return p.remove(rt.keyOf(key)), nil
}

// MapClear empties a Map or Set.
func (rt *Runtime) MapClear(m Value) error {
	p, ok := rt.mapPayload(m)
	if !ok {
		return rt.typeError("Method clear called on incompatible receiver %s", rt.Inspect(m))
	}
	p.clear()
	return nil
}

// MapSize returns the entry count of a Map or Set.
func (rt *Runtime) MapSize(m Value) (int, error) {
	p, ok := rt.mapPayload(m)
	if !ok {
		return 0, rt.typeError("Method size called on incompatible receiver %s", rt.Inspect(m))
	}
	return p.size, nil
}

// SetAdd adds v to a Set.
func (rt *Runtime) SetAdd(s, v Value) error {
	p, ok := rt.mapPayload(s)
	if !ok {
		return rt.typeError("Method Set.prototype.add called on incompatible receiver %s", rt.Inspect(s))
	}
	p.set(rt.keyOf(v), v, v)
	return nil
}

// WeakMapGet reads the entry for an object key.
func (rt *Runtime) WeakMapGet(m, key Value) (Value, error) {
	p, err := rt.weakMapOf(m)
	if err != nil || !key.IsObject() {
		return Undefined, err
	}
	v, ok := p.Entries[key.Handle()]
	if !ok {
		return Undefined, nil
	}
	return v, nil
}

// WeakMapSet stores an entry; keys must be objects.
func (rt *Runtime) WeakMapSet(m, key, v Value) error {
	p, err := rt.weakMapOf(m)
	if err != nil {
		return err
	}
	if !key.IsObject() {
		return rt.typeError("Invalid value used as weak map key")
	}
	p.Entries[key.Handle()] = v
	return nil
}

// WeakMapHas reports whether an object key is present.
func (rt *Runtime) WeakMapHas(m, key Value) (bool, error) {
	p, err := rt.weakMapOf(m)
	if err != nil || !key.IsObject() {
		return false, err
	}
	_, ok := p.Entries[key.Handle()]
	return ok, nil
}

// WeakMapDelete removes an object key.
func (rt *Runtime) WeakMapDelete(m, key Value) (bool, error) {
	p, err := rt.weakMapOf(m)
	if err != nil || !key.IsObject() {
		return false, err
	}
	_, ok := p.Entries[key.Handle()]
	delete(p.Entries, key.Handle())
	return ok, nil
}

func (rt *Runtime) weakMapOf(m Value) (*WeakMapPayload, error) {
	obj, ok := rt.objectOf(m)
	if ok {
		if p, ok := obj.Payload.(*WeakMapPayload); ok {
			return p, nil
		}
	}
	return nil, rt.typeError("Method WeakMap.prototype method called on incompatible receiver %s", rt.Inspect(m))
}

// WeakSetAdd adds an object to a WeakSet.
func (rt *Runtime) WeakSetAdd(s, v Value) error {
	p, err := rt.weakSetOf(s)
	if err != nil {
		return err
	}
	if !v.IsObject() {
		return rt.typeError("Invalid value used in weak set")
	}
	p.Entries[v.Handle()] = struct{}{}
	return nil
}

// WeakSetHas reports whether v is in a WeakSet.
func (rt *Runtime) WeakSetHas(s, v Value) (bool, error) {
	p, err := rt.weakSetOf(s)
	if err != nil || !v.IsObject() {
		return false, err
	}
	_, ok := p.Entries[v.Handle()]
	return ok, nil
}

// WeakSetDelete removes v from a WeakSet.
func (rt *Runtime) WeakSetDelete(s, v Value) (bool, error) {
	p, err := rt.weakSetOf(s)
	if err != nil || !v.IsObject() {
		return false, err
	}
	_, ok := p.Entries[v.Handle()]
	delete(p.Entries, v.Handle())
	return ok, nil
}

func (rt *Runtime) weakSetOf(s Value) (*WeakSetPayload, error) {
	obj, ok := rt.objectOf(s)
	if ok {
		if p, ok := obj.Payload.(*WeakSetPayload); ok {
			return p, nil
		}
	}
	return nil, rt.typeError("Method WeakSet.prototype method called on incompatible receiver %s", rt.Inspect(s))
}
