package vm

import (
	"fmt"

	"lynx/pkg/errors"
)

const debugExceptions = false

// BacktraceEntry is one activation recorded while an exception unwinds.
type BacktraceEntry = errors.BacktraceFrame

// Exception is a thrown script value travelling through Go error returns.
// It is the only error kind script handlers can catch.
type Exception struct {
	Value     Value
	Backtrace []BacktraceEntry
	rendered  string
}

func (e *Exception) Error() string {
	if e.rendered != "" {
		return e.rendered
	}
	return "uncaught exception"
}

// throwValue wraps v as an exception.
func (rt *Runtime) throwValue(v Value) *Exception {
	if debugExceptions {
		fmt.Printf("[DEBUG exceptions.go] throw %s\n", rt.Inspect(v))
	}
	return &Exception{Value: v, rendered: rt.describeThrown(v)}
}

// Throw returns an error that throws v into script code. Natives use it to
// raise arbitrary values.
func (rt *Runtime) Throw(v Value) error { return rt.throwValue(v) }

// describeThrown renders a thrown value without running script code.
func (rt *Runtime) describeThrown(v Value) string {
	if obj, ok := rt.objectOf(v); ok {
		if _, isErr := obj.Payload.(*ErrorPayload); isErr {
			name := rt.ownString(v, rt.keys.name, "Error")
			msg := rt.ownString(v, rt.keys.message, "")
			if msg == "" {
				return name
			}
			return name + ": " + msg
		}
	}
	return rt.Inspect(v)
}

// ownString reads a string data property along the prototype chain without
// invoking getters.
func (rt *Runtime) ownString(v Value, key PropertyKey, fallback string) string {
	for depth := 0; v.IsObject() && depth < 64; depth++ {
		obj := rt.Object(v)
		if p, ok := obj.Props.Lookup(key); ok {
			if !p.IsAccessor() && p.Cell.Value.IsString() {
				return rt.GoString(p.Cell.Value)
			}
			return fallback
		}
		v = obj.Proto
	}
	return fallback
}

// cancelError unwinds a coroutine that is being dropped. Script handlers
// never see it.
type cancelError struct{}

func (*cancelError) Error() string { return "coroutine cancelled" }

var errCancelled error = &cancelError{}

// NewError creates an error object of the given kind.
func (rt *Runtime) NewError(kind ErrorKind, msg string) Value {
	proto := rt.realm.ErrorPrototypes[kind]
	v := rt.NewObject(proto, &ErrorPayload{Backtrace: rt.captureBacktrace()})
	obj := rt.Object(v)
	obj.Props.SetValue(rt.keys.message, rt.String(msg), HiddenDataFlags)
	return v
}

func (rt *Runtime) errorf(kind ErrorKind, format string, args ...any) *Exception {
	rt.heap.reserve = true
	defer func() { rt.heap.reserve = false }()
	v := rt.NewError(kind, fmt.Sprintf(format, args...))
	return rt.throwValue(v)
}

// heapExhaustedError is the RangeError thrown when allocation hits the
// live cell limit.
func (rt *Runtime) heapExhaustedError() *Exception {
	return rt.errorf(ErrorKindRangeError, "heap limit of %d cells exceeded", rt.heap.maxCells)
}

// catchExhaustion is deferred by entry points outside the interpreter loop.
// It turns a heap exhaustion panic into the thrown RangeError stored in err.
func (rt *Runtime) catchExhaustion(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if _, ok := r.(heapExhausted); !ok {
		panic(r)
	}
	*err = rt.heapExhaustedError()
}

func (rt *Runtime) typeError(format string, args ...any) error {
	return rt.errorf(ErrorKindTypeError, format, args...)
}

func (rt *Runtime) rangeError(format string, args ...any) error {
	return rt.errorf(ErrorKindRangeError, format, args...)
}

func (rt *Runtime) referenceError(format string, args ...any) error {
	return rt.errorf(ErrorKindReferenceError, format, args...)
}

func (rt *Runtime) syntaxError(format string, args ...any) error {
	return rt.errorf(ErrorKindSyntaxError, format, args...)
}

// TypeError returns a thrown TypeError for use by natives.
func (rt *Runtime) TypeError(format string, args ...any) error {
	return rt.typeError(format, args...)
}

// RangeError returns a thrown RangeError for use by natives.
func (rt *Runtime) RangeError(format string, args ...any) error {
	return rt.rangeError(format, args...)
}

// asException converts an error returned by a native into a thrown value.
// Exceptions and cancellation pass through unchanged.
func (rt *Runtime) asException(err error) error {
	switch err.(type) {
	case nil, *Exception, *cancelError:
		return err
	}
	return rt.errorf(ErrorKindError, "%s", err.Error())
}

// captureBacktrace records the activations of the current execution context,
// innermost first.
func (rt *Runtime) captureBacktrace() []BacktraceEntry {
	ctx := rt.current
	if ctx == nil {
		return nil
	}
	trace := make([]BacktraceEntry, 0, len(ctx.frames))
	for i := len(ctx.frames) - 1; i >= 0 && len(trace) < 32; i-- {
		trace = append(trace, ctx.frames[i].position())
	}
	return trace
}

// unwind transfers control to the innermost handler of f. It reports false
// when the error is not a script exception or f has no handler.
func (rt *Runtime) unwind(f *Frame, err error) bool {
	exc, ok := err.(*Exception)
	if !ok || len(f.handlers) == 0 {
		return false
	}
	h := f.handlers[len(f.handlers)-1]
	f.handlers = f.handlers[:len(f.handlers)-1]
	for i := h.temps; i < len(f.temps); i++ {
		f.temps[i] = Undefined
	}
	f.temps = f.temps[:h.temps]
	for i := h.iters; i < len(f.iters); i++ {
		f.iters[i] = nil
	}
	f.iters = f.iters[:h.iters]
	f.regs[0] = exc.Value
	f.pc = h.catch
	if debugExceptions {
		fmt.Printf("[DEBUG exceptions.go] caught in %s, resuming at %d\n", f.def.Name, f.pc)
	}
	return true
}

// UncaughtError converts an uncaught exception into the error reported at
// the embedding boundary.
func (rt *Runtime) UncaughtError(err error) error {
	exc, ok := err.(*Exception)
	if !ok {
		return err
	}
	re := &errors.RuntimeError{Msg: exc.Error(), Backtrace: exc.Backtrace}
	if len(exc.Backtrace) > 0 {
		re.Position = exc.Backtrace[0].Position
	}
	if obj, ok := rt.objectOf(exc.Value); ok {
		if ep, ok := obj.Payload.(*ErrorPayload); ok && len(ep.Backtrace) > 0 {
			re.Backtrace = ep.Backtrace
			re.Position = ep.Backtrace[0].Position
		}
	}
	re.Cause = exc
	return re
}
