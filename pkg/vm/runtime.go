package vm

import (
	stderrors "errors"
	goruntime "runtime"

	"github.com/tliron/commonlog"

	"lynx/pkg/runtime"
)

var (
	// ErrNotAttached is returned by Execute and RunGC when the runtime has
	// not been attached to the calling thread.
	ErrNotAttached = stderrors.New("lynx: runtime is not attached to the executing thread")
	// ErrAlreadyAttached is returned by Attach on an attached runtime.
	ErrAlreadyAttached = stderrors.New("lynx: runtime is already attached")
)

// Options configures a Runtime.
type Options struct {
	// StackSize is the number of value slots of the main execution stack.
	StackSize int
	// CoroutineStackSize is the number of value slots given to each
	// async function or generator activation.
	CoroutineStackSize int
	// MaxCallDepth bounds nested activations across all stacks.
	MaxCallDepth int
	// MaxHeapCells bounds live heap cells; 0 disables the limit.
	MaxHeapCells int
	// MaxArrayLength bounds the element storage of one array. Growing past
	// it throws a RangeError; 0 disables the limit.
	MaxArrayLength int
	// CollectAfterExecute runs a collection at the end of every Execute.
	CollectAfterExecute bool
	// MaxDrainRounds bounds FinishAll; 0 means until quiescent.
	MaxDrainRounds int
	// RegexCompiler compiles regex literals. Without one, NewRegex throws a
	// SyntaxError.
	RegexCompiler func(pattern, flags string) (CompiledPattern, error)
}

func DefaultOptions() Options {
	return Options{
		StackSize:          1 << 16,
		CoroutineStackSize: 4096,
		MaxCallDepth:       2048,
		MaxArrayLength:     1 << 24,
	}
}

// Runtime is the composition root of the engine: heap, interned tables,
// the shared value stack, the global object and both coroutine executors.
// A Runtime is used by one thread at a time, between Attach and Detach.
type Runtime struct {
	opts Options
	heap *Heap

	names      *Interner
	keyStrings []Value
	symbols    []symbolInfo

	literals  []Value
	floats    []float64
	bigints   []int64
	regexes   []RegexSource
	templates [][]string

	functions map[FuncID]*FunctionDef
	classes   map[ClassID]*ClassDef
	nextFunc  uint32
	nextClass uint32
	units     []*LinkedUnit

	realm  *Realm
	global Value
	keys   commonKeys

	main      *execContext
	current   *execContext
	callDepth int

	async      *AsyncExecutor
	generators *AsyncExecutor

	owned      map[Value]int
	jobs       map[runtime.JobID]promiseJob
	microtasks *runtime.Microtasks

	attached bool
	gc       gcState

	log   commonlog.Logger
	gcLog commonlog.Logger
}

// commonKeys caches the keys the engine itself reads and writes.
type commonKeys struct {
	length, prototype, constructor, name, message, stack    PropertyKey
	next, done, value, proto, then, get, set, has, del, ret PropertyKey
	throw, valueOf, toString, callee, globalThis, cause     PropertyKey
}

// New creates a runtime. The runtime must be attached before executing code.
func New(opts Options) *Runtime {
	def := DefaultOptions()
	if opts.StackSize <= 0 {
		opts.StackSize = def.StackSize
	}
	if opts.CoroutineStackSize <= 0 {
		opts.CoroutineStackSize = def.CoroutineStackSize
	}
	if opts.MaxCallDepth <= 0 {
		opts.MaxCallDepth = def.MaxCallDepth
	}
	rt := &Runtime{
		opts:       opts,
		heap:       NewHeap(opts.MaxHeapCells),
		names:      NewInterner(),
		functions:  make(map[FuncID]*FunctionDef),
		classes:    make(map[ClassID]*ClassDef),
		owned:      make(map[Value]int),
		jobs:       make(map[runtime.JobID]promiseJob),
		microtasks: runtime.NewMicrotasks(),
		log:        commonlog.GetLogger("lynx.vm"),
		gcLog:      commonlog.GetLogger("lynx.gc"),
	}
	rt.symbols = make([]symbolInfo, len(wellKnownSymbols))
	for id, name := range wellKnownSymbols {
		rt.symbols[id] = symbolInfo{description: name, hasDesc: id > 0}
	}
	rt.keys = commonKeys{
		length:      rt.Key("length"),
		prototype:   rt.Key("prototype"),
		constructor: rt.Key("constructor"),
		name:        rt.Key("name"),
		message:     rt.Key("message"),
		stack:       rt.Key("stack"),
		next:        rt.Key("next"),
		done:        rt.Key("done"),
		value:       rt.Key("value"),
		proto:       rt.Key("__proto__"),
		then:        rt.Key("then"),
		get:         rt.Key("get"),
		set:         rt.Key("set"),
		has:         rt.Key("has"),
		del:         rt.Key("deleteProperty"),
		ret:         rt.Key("return"),
		throw:       rt.Key("throw"),
		valueOf:     rt.Key("valueOf"),
		toString:    rt.Key("toString"),
		callee:      rt.Key("callee"),
		globalThis:  rt.Key("globalThis"),
		cause:       rt.Key("cause"),
	}
	rt.main = newExecContext(opts.StackSize, nil)
	rt.current = rt.main
	rt.async = newAsyncExecutor(rt, "async")
	rt.generators = newAsyncExecutor(rt, "generator")
	rt.realm = newRealm(rt)
	rt.global = rt.NewPlainObject()
	rt.Object(rt.global).Props.SetValue(rt.keys.globalThis, rt.global, HiddenDataFlags)
	rt.realm.installCore()
	return rt
}

// Options returns the options the runtime was created with.
func (rt *Runtime) Options() Options { return rt.opts }

// Heap exposes the runtime's allocator.
func (rt *Runtime) Heap() *Heap { return rt.heap }

// Realm returns the intrinsic objects of the runtime.
func (rt *Runtime) Realm() *Realm { return rt.realm }

// Global returns the global object.
func (rt *Runtime) Global() Value { return rt.global }

// Async returns the executor running async functions.
func (rt *Runtime) Async() *AsyncExecutor { return rt.async }

// Generators returns the executor running generator bodies.
func (rt *Runtime) Generators() *AsyncExecutor { return rt.generators }

// Attach binds the runtime to the calling goroutine's OS thread.
func (rt *Runtime) Attach() error {
	if rt.attached {
		return ErrAlreadyAttached
	}
	goruntime.LockOSThread()
	rt.attached = true
	rt.log.Debug("runtime attached")
	return nil
}

// Detach releases the thread binding made by Attach.
func (rt *Runtime) Detach() {
	if !rt.attached {
		return
	}
	rt.attached = false
	goruntime.UnlockOSThread()
	rt.log.Debug("runtime detached")
}

// Attached reports whether the runtime is attached.
func (rt *Runtime) Attached() bool { return rt.attached }

// Execute links unit, runs its main function and drains both executors.
// An uncaught script exception is returned as *Exception.
func (rt *Runtime) Execute(u *Unit) (result Value, err error) {
	if !rt.attached {
		return Undefined, ErrNotAttached
	}
	defer rt.catchExhaustion(&err)
	lu, err := rt.Link(u)
	if err != nil {
		return Undefined, err
	}
	rt.units = append(rt.units, lu)
	defer rt.unpin(lu)

	var capture CaptureState
	if lu.Main.CaptureSlots > 0 {
		capture = CaptureState{Kind: CaptureNeedAlloc, Size: int(lu.Main.CaptureSlots)}
	}
	main := rt.newClosure(lu.Main, capture, Undefined)
	result, err = rt.Call(main, Undefined, nil)
	if err == nil {
		err = rt.FinishAll()
	}
	if err == nil && lu.Main.IsAsync {
		result, err = rt.settledResult(result)
	}
	if rt.opts.CollectAfterExecute {
		rt.Own(result)
		var thrown Value
		if exc, ok := err.(*Exception); ok {
			thrown = exc.Value
			rt.Own(thrown)
		}
		if _, gcErr := rt.RunGC(); gcErr != nil {
			rt.log.Warningf("collection after %s skipped: %s", lu.Name, gcErr)
		}
		rt.Release(thrown)
		rt.Release(result)
	}
	return result, err
}

// settledResult unwraps the promise returned by an async main function.
func (rt *Runtime) settledResult(v Value) (Value, error) {
	p, ok := rt.promiseOf(v)
	if !ok {
		return v, nil
	}
	switch p.State {
	case PromiseFulfilled:
		return p.Result, nil
	case PromiseRejected:
		p.handled = true
		return Undefined, rt.throwValue(p.Result)
	}
	return v, nil
}

func (rt *Runtime) unpin(lu *LinkedUnit) {
	for i, u := range rt.units {
		if u == lu {
			rt.units = append(rt.units[:i], rt.units[i+1:]...)
			return
		}
	}
}

// FinishAll drains microtasks and ready async tasks until nothing is left
// to run.
func (rt *Runtime) FinishAll() error {
	return rt.async.FinishAll()
}

// Own keeps v alive across collections until a matching Release.
func (rt *Runtime) Own(v Value) {
	if v.IsHeap() {
		rt.owned[v]++
	}
}

// Release drops one Own of v.
func (rt *Runtime) Release(v Value) {
	if n, ok := rt.owned[v]; ok {
		if n <= 1 {
			delete(rt.owned, v)
		} else {
			rt.owned[v] = n - 1
		}
	}
}

// String allocates a string value.
func (rt *Runtime) String(s string) Value { return rt.heap.NewString(s) }

// GoString returns the content of a string value.
func (rt *Runtime) GoString(v Value) string { return rt.heap.Flatten(v) }

// Literal returns the linked string literal with runtime id id.
func (rt *Runtime) Literal(id uint32) Value { return rt.literals[id] }

// FunctionDef returns the linked definition with runtime id id.
func (rt *Runtime) FunctionDef(id FuncID) (*FunctionDef, bool) {
	d, ok := rt.functions[id]
	return d, ok
}

// FunctionCount returns the number of definitions in the function table.
func (rt *Runtime) FunctionCount() int { return len(rt.functions) }
