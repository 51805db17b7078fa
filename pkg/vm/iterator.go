package vm

type iterKind uint8

const (
	iterKeys     iterKind = iota // for-in key snapshot
	iterArray                    // array with the intrinsic iterator
	iterString                   // code points of a string
	iterProtocol                 // user iterator object
)

// iterState is one entry of a frame's iterator stack.
type iterState struct {
	kind   iterKind
	source Value
	keys   []PropertyKey
	runes  []rune
	index  int
	iter   Value
	next   Value
	done   bool
}

// values reports the heap values the iterator holds, for the collector.
func (it *iterState) values(yield func(Value)) {
	yield(it.source)
	yield(it.iter)
	yield(it.next)
}

// forInIterator snapshots the enumerable string keys of v and its
// prototypes. Keys deleted before they are reached are skipped.
func (rt *Runtime) forInIterator(v Value) (*iterState, error) {
	it := &iterState{kind: iterKeys, source: v}
	if v.IsNullish() {
		it.done = true
		return it, nil
	}
	obj, err := rt.ToObject(v)
	if err != nil {
		return nil, err
	}
	it.source = obj
	seen := make(map[PropertyKey]struct{})
	for cur, depth := obj, 0; cur.IsObject() && depth < maxProtoDepth; depth++ {
		all, err := rt.OwnKeys(cur, false)
		if err != nil {
			return nil, err
		}
		for _, k := range all {
			if k.IsSymbol() {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			if p, ok := rt.GetOwnProperty(cur, k); ok && !p.Enumerable() {
				continue
			}
			if !rt.HasOwnProperty(cur, k) {
				continue
			}
			it.keys = append(it.keys, k)
		}
		next, err := rt.getFrom(cur, rt.keys.proto, cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return it, nil
}

// forOfIterator obtains an iterator for v through Symbol.iterator, with
// direct paths for arrays and strings whose iterator is the intrinsic one.
func (rt *Runtime) forOfIterator(v Value) (*iterState, error) {
	if v.IsString() {
		if rt.hasIntrinsicIterator(v, rt.realm.StringIterator) {
			return &iterState{kind: iterString, source: v, runes: []rune(rt.GoString(v))}, nil
		}
	}
	if _, ok := rt.arrayOf(v); ok && rt.hasIntrinsicIterator(v, rt.realm.ArrayValues) {
		return &iterState{kind: iterArray, source: v}, nil
	}
	return rt.GetIterator(v)
}

func (rt *Runtime) hasIntrinsicIterator(v, intrinsic Value) bool {
	m, err := rt.GetProperty(v, SymbolKey(SymbolIterator))
	return err == nil && m == intrinsic
}

// GetIterator runs the iterator protocol on v.
func (rt *Runtime) GetIterator(v Value) (*iterState, error) {
	method, err := rt.GetProperty(v, SymbolKey(SymbolIterator))
	if err != nil {
		return nil, err
	}
	if !rt.IsCallable(method) {
		return nil, rt.typeError("%s is not iterable", rt.Inspect(v))
	}
	iter, err := rt.Call(method, v, nil)
	if err != nil {
		return nil, err
	}
	if !iter.IsObject() {
		return nil, rt.typeError("Result of the Symbol.iterator method is not an object")
	}
	next, err := rt.GetProperty(iter, rt.keys.next)
	if err != nil {
		return nil, err
	}
	return &iterState{kind: iterProtocol, source: v, iter: iter, next: next}, nil
}

// iterStep advances it, reporting done when it is exhausted.
func (rt *Runtime) iterStep(it *iterState) (Value, bool, error) {
	if it.done {
		return Undefined, true, nil
	}
	switch it.kind {
	case iterKeys:
		for it.index < len(it.keys) {
			k := it.keys[it.index]
			it.index++
			if ok, err := rt.HasProperty(it.source, k); err != nil {
				return Undefined, true, err
			} else if ok {
				return rt.internedString(k), false, nil
			}
		}
	case iterArray:
		a, ok := rt.arrayOf(it.source)
		if ok && it.index < len(a.Elements) {
			e := a.Elements[it.index]
			it.index++
			if e.Hole {
				return Undefined, false, nil
			}
			return e.Value, false, nil
		}
	case iterString:
		if it.index < len(it.runes) {
			r := it.runes[it.index]
			it.index++
			return rt.String(string(r)), false, nil
		}
	case iterProtocol:
		if !rt.IsCallable(it.next) {
			it.done = true
			return Undefined, true, rt.typeError("%s is not a function", rt.Inspect(it.next))
		}
		res, err := rt.Call(it.next, it.iter, nil)
		if err != nil {
			it.done = true
			return Undefined, true, err
		}
		if !res.IsObject() {
			it.done = true
			return Undefined, true, rt.typeError("Iterator result %s is not an object", rt.Inspect(res))
		}
		doneV, err := rt.GetProperty(res, rt.keys.done)
		if err != nil {
			it.done = true
			return Undefined, true, err
		}
		if rt.ToBoolean(doneV) {
			it.done = true
			return Undefined, true, nil
		}
		v, err := rt.GetProperty(res, rt.keys.value)
		if err != nil {
			it.done = true
			return Undefined, true, err
		}
		return v, false, nil
	}
	it.done = true
	return Undefined, true, nil
}

// iterClose runs the return method of an unfinished protocol iterator.
func (rt *Runtime) iterClose(it *iterState) error {
	if it.done || it.kind != iterProtocol {
		it.done = true
		return nil
	}
	it.done = true
	ret, err := rt.GetProperty(it.iter, rt.keys.ret)
	if err != nil {
		return err
	}
	if ret.IsNullish() {
		return nil
	}
	res, err := rt.Call(ret, it.iter, nil)
	if err != nil {
		return err
	}
	if !res.IsObject() {
		return rt.typeError("Iterator result %s is not an object", rt.Inspect(res))
	}
	return nil
}

// iterableToList collects every value produced by iterating v.
func (rt *Runtime) iterableToList(v Value) ([]Value, error) {
	if a, ok := rt.arrayOf(v); ok && rt.hasIntrinsicIterator(v, rt.realm.ArrayValues) {
		out := make([]Value, len(a.Elements))
		for i, e := range a.Elements {
			out[i] = e.Value
			if e.Hole {
				out[i] = Undefined
			}
		}
		return out, nil
	}
	it, err := rt.forOfIterator(v)
	if err != nil {
		return nil, err
	}
	var out []Value
	for {
		x, done, err := rt.iterStep(it)
		if err != nil {
			return nil, err
		}
		if done {
			return out, nil
		}
		out = append(out, x)
	}
}

// IterableToList is the exported form of iterableToList for natives.
func (rt *Runtime) IterableToList(v Value) ([]Value, error) { return rt.iterableToList(v) }
