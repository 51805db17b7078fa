package vm

// newClass creates the class object for def. super is the evaluated extends
// clause and is ignored for classes without one.
func (rt *Runtime) newClass(f *Frame, def *ClassDef, super Value) (Value, error) {
	protoParent := rt.realm.ObjectPrototype
	ctorParent := rt.realm.FunctionPrototype
	parent := Undefined
	if def.HasSuper {
		switch {
		case super.IsNull():
			protoParent = Null
			parent = Null
		case rt.IsConstructor(super):
			pp, err := rt.GetProperty(super, rt.keys.prototype)
			if err != nil {
				return Undefined, err
			}
			if !pp.IsObject() && !pp.IsNull() {
				return Undefined, rt.typeError("Class extends value does not have valid prototype property %s", rt.Inspect(pp))
			}
			protoParent = pp
			ctorParent = super
			parent = super
		default:
			return Undefined, rt.typeError("Class extends value %s is not a constructor or null", rt.Inspect(super))
		}
	}

	prototype := rt.NewObject(protoParent, nil)
	cp := &ClassPayload{Def: def, Constructor: Undefined, Super: parent}
	class := rt.NewObject(ctorParent, cp)

	if def.ctor != nil {
		ctor := rt.instantiate(f, def.ctor, prototype)
		fp := rt.Object(ctor).Payload.(*FunctionPayload)
		fp.Class = class
		fp.Constructable = true
		rt.Object(ctor).Props.Delete(rt.keys.prototype)
		cp.Constructor = ctor
	}

	cobj := rt.Object(class)
	cobj.Props.SetValue(rt.keys.prototype, prototype, 0)
	cobj.Props.SetValue(rt.keys.name, rt.String(def.Name), FlagConfigurable)
	length := 0
	if def.ctor != nil {
		length = int(def.ctor.Arity)
	}
	cobj.Props.SetValue(rt.keys.length, IntegerValue(int32(length)), FlagConfigurable)
	rt.Object(prototype).Props.SetValue(rt.keys.constructor, class, HiddenDataFlags)

	for _, m := range def.methods {
		target := prototype
		if m.static {
			target = class
		}
		fn := rt.instantiate(f, m.def, target)
		fp := rt.Object(fn).Payload.(*FunctionPayload)
		fp.IsMethod = true
		fp.Constructable = false
		fp.Class = class
		rt.Object(fn).Props.Delete(rt.keys.prototype)
		props := &rt.Object(target).Props
		switch m.kind {
		case MethodGetter:
			props.DefineGetter(m.key, fn, FlagConfigurable)
		case MethodSetter:
			props.DefineSetter(m.key, fn, FlagConfigurable)
		default:
			props.SetValue(m.key, fn, HiddenDataFlags)
		}
	}
	return class, nil
}
