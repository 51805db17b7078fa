package vm

// NewProxy creates a proxy over target. Both arguments must be objects.
func (rt *Runtime) NewProxy(target, handler Value) (Value, error) {
	if !target.IsObject() || !handler.IsObject() {
		return Undefined, rt.typeError("Cannot create proxy with a non-object as target or handler")
	}
	return rt.NewObject(Null, &ProxyPayload{Target: target, Handler: handler}), nil
}

// RevokeProxy detaches p from its target and handler.
func (rt *Runtime) RevokeProxy(p Value) {
	obj, ok := rt.objectOf(p)
	if !ok {
		return
	}
	if pp, ok := obj.Payload.(*ProxyPayload); ok {
		pp.Revoked = true
		pp.Target, pp.Handler = Null, Null
	}
}

// proxyTrap reads handler[key]. Undefined means the operation falls through
// to the target.
func (rt *Runtime) proxyTrap(p *ProxyPayload, key PropertyKey) (Value, error) {
	if p.Revoked {
		return Undefined, rt.typeError("Cannot perform '%s' on a proxy that has been revoked", rt.KeyName(key))
	}
	trap, err := rt.GetProperty(p.Handler, key)
	if err != nil {
		return Undefined, err
	}
	if trap.IsNullish() {
		return Undefined, nil
	}
	if !rt.IsCallable(trap) {
		return Undefined, rt.typeError("proxy trap '%s' is not a function", rt.KeyName(key))
	}
	return trap, nil
}

func (rt *Runtime) proxyGetPrototype(p *ProxyPayload) (Value, error) {
	trap, err := rt.proxyTrap(p, rt.Key("getPrototypeOf"))
	if err != nil {
		return Undefined, err
	}
	if trap.IsUndefined() {
		return rt.getFrom(p.Target, rt.keys.proto, p.Target)
	}
	proto, err := rt.Call(trap, p.Handler, []Value{p.Target})
	if err != nil {
		return Undefined, err
	}
	if !proto.IsObject() && !proto.IsNull() {
		return Undefined, rt.typeError("'getPrototypeOf' on proxy: trap returned neither object nor null")
	}
	return proto, nil
}

func (rt *Runtime) proxySetPrototype(p *ProxyPayload, proto Value) error {
	trap, err := rt.proxyTrap(p, rt.Key("setPrototypeOf"))
	if err != nil {
		return err
	}
	if trap.IsUndefined() {
		return rt.SetPrototypeOf(p.Target, proto)
	}
	ok, err := rt.Call(trap, p.Handler, []Value{p.Target, proto})
	if err != nil {
		return err
	}
	if !rt.ToBoolean(ok) {
		return rt.typeError("'setPrototypeOf' on proxy: trap returned falsish")
	}
	return nil
}

func (rt *Runtime) proxyGet(p *ProxyPayload, key PropertyKey, receiver Value) (Value, error) {
	trap, err := rt.proxyTrap(p, rt.keys.get)
	if err != nil {
		return Undefined, err
	}
	if trap.IsUndefined() {
		return rt.getFrom(p.Target, key, receiver)
	}
	return rt.Call(trap, p.Handler, []Value{p.Target, rt.keyValue(key), receiver})
}

func (rt *Runtime) proxySet(p *ProxyPayload, key PropertyKey, v, receiver Value) error {
	trap, err := rt.proxyTrap(p, rt.keys.set)
	if err != nil {
		return err
	}
	if trap.IsUndefined() {
		return rt.setOn(p.Target, key, v, receiver)
	}
	ok, err := rt.Call(trap, p.Handler, []Value{p.Target, rt.keyValue(key), v, receiver})
	if err != nil {
		return err
	}
	if !rt.ToBoolean(ok) {
		return rt.typeError("'set' on proxy: trap returned falsish for property '%s'", rt.KeyName(key))
	}
	return nil
}

func (rt *Runtime) proxyHas(p *ProxyPayload, key PropertyKey) (bool, error) {
	trap, err := rt.proxyTrap(p, rt.keys.has)
	if err != nil {
		return false, err
	}
	if trap.IsUndefined() {
		return rt.HasProperty(p.Target, key)
	}
	r, err := rt.Call(trap, p.Handler, []Value{p.Target, rt.keyValue(key)})
	if err != nil {
		return false, err
	}
	return rt.ToBoolean(r), nil
}

func (rt *Runtime) proxyDelete(p *ProxyPayload, key PropertyKey) (bool, error) {
	trap, err := rt.proxyTrap(p, rt.keys.del)
	if err != nil {
		return false, err
	}
	if trap.IsUndefined() {
		return rt.DeleteProperty(p.Target, key)
	}
	r, err := rt.Call(trap, p.Handler, []Value{p.Target, rt.keyValue(key)})
	if err != nil {
		return false, err
	}
	return rt.ToBoolean(r), nil
}

// proxyOwnKeys runs the ownKeys trap. The trap result must be array-like of
// strings and symbols; enumerability is checked against the target when
// onlyEnumerable is set.
func (rt *Runtime) proxyOwnKeys(p *ProxyPayload, onlyEnumerable bool) ([]PropertyKey, error) {
	trap, err := rt.proxyTrap(p, rt.Key("ownKeys"))
	if err != nil {
		return nil, err
	}
	if trap.IsUndefined() {
		return rt.OwnKeys(p.Target, onlyEnumerable)
	}
	res, err := rt.Call(trap, p.Handler, []Value{p.Target})
	if err != nil {
		return nil, err
	}
	list, err := rt.iterableToList(res)
	if err != nil {
		return nil, err
	}
	keys := make([]PropertyKey, 0, len(list))
	seen := make(map[PropertyKey]struct{}, len(list))
	for _, v := range list {
		if !v.IsString() && !v.IsSymbol() {
			return nil, rt.typeError("%s is not a valid property name", rt.Inspect(v))
		}
		k, err := rt.ToPropertyKey(v)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[k]; dup {
			return nil, rt.typeError("'ownKeys' on proxy: trap returned duplicate entries")
		}
		seen[k] = struct{}{}
		if onlyEnumerable {
			prop, ok := rt.GetOwnProperty(p.Target, k)
			if !ok || !prop.Enumerable() {
				continue
			}
		}
		keys = append(keys, k)
	}
	return keys, nil
}
