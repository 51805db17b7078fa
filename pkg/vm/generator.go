package vm

import (
	"lynx/pkg/errors"
)

// ResumeKind selects the generator method being invoked.
type ResumeKind uint8

const (
	ResumeNext ResumeKind = iota
	ResumeThrow
	ResumeReturn
)

// newGenerator creates the generator object returned by calling a generator
// function. The body does not start until the first next().
func (rt *Runtime) newGenerator(callee, this Value, args []Value) Value {
	proto, err := rt.GetProperty(callee, rt.keys.prototype)
	if err != nil || !proto.IsObject() {
		proto = rt.realm.GeneratorPrototype
	}
	return rt.NewObject(proto, &GeneratorPayload{
		State:    GeneratorStart,
		Function: callee,
		This:     this,
		Args:     append([]Value(nil), args...),
	})
}

func (rt *Runtime) generatorOf(v Value) (*GeneratorPayload, bool) {
	obj, ok := rt.objectOf(v)
	if !ok {
		return nil, false
	}
	g, ok := obj.Payload.(*GeneratorPayload)
	return g, ok
}

// GeneratorResume runs the generator until its next yield or completion and
// returns the produced value and whether the generator is done.
func (rt *Runtime) GeneratorResume(gen Value, kind ResumeKind, v Value) (Value, bool, error) {
	g, ok := rt.generatorOf(gen)
	if !ok {
		return Undefined, true, rt.typeError("%s is not a generator", rt.Inspect(gen))
	}
	switch g.State {
	case GeneratorExecuting:
		return Undefined, true, rt.typeError("Generator is already running")
	case GeneratorCompleted:
		switch kind {
		case ResumeThrow:
			return Undefined, true, rt.throwValue(v)
		case ResumeReturn:
			return v, true, nil
		}
		return Undefined, true, nil
	case GeneratorStart:
		switch kind {
		case ResumeThrow:
			g.State = GeneratorCompleted
			return Undefined, true, rt.throwValue(v)
		case ResumeReturn:
			g.State = GeneratorCompleted
			return v, true, nil
		}
		co := rt.startGenerator(gen, g)
		return rt.driveGenerator(g, co, Undefined, resumeNext)
	}

	co, ok := rt.generators.tasks[g.Task]
	if !ok {
		g.State = GeneratorCompleted
		return Undefined, true, nil
	}
	switch kind {
	case ResumeReturn:
		rt.generators.Cancel(g.Task)
		g.State = GeneratorCompleted
		return v, true, nil
	case ResumeThrow:
		return rt.driveGenerator(g, co, v, resumeThrow)
	}
	return rt.driveGenerator(g, co, v, resumeNext)
}

func (rt *Runtime) startGenerator(gen Value, g *GeneratorPayload) *coroutine {
	fp, ok := rt.functionOf(g.Function)
	if !ok {
		errors.Fatal(errors.EngineBadOperand, "generator function is not a function: %s", rt.Inspect(g.Function))
	}
	var co *coroutine
	co = rt.generators.spawn(gen, func() (Value, error) {
		return rt.runFunction(co.ctx, g.Function, fp, g.This, g.Args, Undefined)
	})
	g.Task = co.id
	return co
}

func (rt *Runtime) driveGenerator(g *GeneratorPayload, co *coroutine, v Value, mode resumeMode) (Value, bool, error) {
	g.State = GeneratorExecuting
	s, done := rt.generators.step(co, v, mode)
	if !done {
		g.State = GeneratorSuspended
		return s.value, false, nil
	}
	g.State = GeneratorCompleted
	g.Task = 0
	if co.err != nil {
		return Undefined, true, co.err
	}
	return co.result, true, nil
}

// IterResult allocates an iterator result object {value, done}.
func (rt *Runtime) IterResult(v Value, done bool) Value {
	o := rt.NewPlainObject()
	obj := rt.Object(o)
	obj.Props.SetValue(rt.keys.value, v, DefaultDataFlags)
	obj.Props.SetValue(rt.keys.done, BooleanValue(done), DefaultDataFlags)
	return o
}

func (rt *Runtime) generatorMethod(kind ResumeKind) NativeFunc {
	return func(c *CallContext, this Value, args []Value) (Value, error) {
		v, done, err := rt.GeneratorResume(this, kind, argOrUndefined(args, 0))
		if err != nil {
			return Undefined, err
		}
		return rt.IterResult(v, done), nil
	}
}
