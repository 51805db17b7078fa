package vm

// PayloadKind selects the active payload of a HeapObject. Object slabs are
// segregated by payload kind.
type PayloadKind uint8

const (
	PayloadEmpty PayloadKind = iota
	PayloadArray
	PayloadFunction
	PayloadClass
	PayloadGenerator
	PayloadRegex
	PayloadPromise
	PayloadProxy
	PayloadMap
	PayloadSet
	PayloadWeakMap
	PayloadWeakSet
	PayloadArrayBuffer
	PayloadTypedArray
	PayloadStringObject
	PayloadNumberObject
	PayloadBigIntObject
	PayloadBooleanObject
	PayloadSymbolObject
	PayloadError
	PayloadNewTarget
	PayloadIterator
	numPayloadKinds
)

var payloadNames = [...]string{
	PayloadEmpty:         "Object",
	PayloadArray:         "Array",
	PayloadFunction:      "Function",
	PayloadClass:         "Class",
	PayloadGenerator:     "Generator",
	PayloadRegex:         "RegExp",
	PayloadPromise:       "Promise",
	PayloadProxy:         "Proxy",
	PayloadMap:           "Map",
	PayloadSet:           "Set",
	PayloadWeakMap:       "WeakMap",
	PayloadWeakSet:       "WeakSet",
	PayloadArrayBuffer:   "ArrayBuffer",
	PayloadTypedArray:    "TypedArray",
	PayloadStringObject:  "String",
	PayloadNumberObject:  "Number",
	PayloadBigIntObject:  "BigInt",
	PayloadBooleanObject: "Boolean",
	PayloadSymbolObject:  "Symbol",
	PayloadError:         "Error",
	PayloadNewTarget:     "NewTarget",
	PayloadIterator:      "Iterator",
}

func (k PayloadKind) String() string {
	if int(k) < len(payloadNames) {
		return payloadNames[k]
	}
	return "Unknown"
}

// Payload is the kind-specific state of a HeapObject.
type Payload interface {
	Kind() PayloadKind
}

// HeapObject is a GC-managed object cell. The prototype is a field of the
// object and never an ordinary property.
type HeapObject struct {
	Props   PropertyMap
	Proto   Value // Null or an object
	Payload Payload

	nonExtensible bool
}

func (o *HeapObject) Kind() PayloadKind {
	if o.Payload == nil {
		return PayloadEmpty
	}
	return o.Payload.Kind()
}

// EmptyPayload marks an ordinary object.
type EmptyPayload struct{}

func (EmptyPayload) Kind() PayloadKind { return PayloadEmpty }

// ArrayElement is one slot of an array. Holes read through the prototype.
type ArrayElement struct {
	Hole  bool
	Value Value
}

type ArrayPayload struct {
	Elements []ArrayElement
}

func (*ArrayPayload) Kind() PayloadKind { return PayloadArray }

// CaptureKind describes how a function instance obtains its capture env.
type CaptureKind uint8

const (
	CaptureNone      CaptureKind = iota
	CaptureNeedAlloc             // each activation allocates an env of Size slots
	CaptureAllocated             // activations share Env
)

type CaptureState struct {
	Kind CaptureKind
	Size int
	Env  *CaptureEnv
}

// FunctionPayload is a closure instance, a native function or a bound
// function; exactly one of Def, Native or Bound is set.
type FunctionPayload struct {
	Def     *FunctionDef
	Native  NativeFunc
	Bound   *BoundCall
	Capture CaptureState

	// BoundThis is the lexical this of an arrow function.
	BoundThis    Value
	HasBoundThis bool
	NewTarget    Value

	// Home is the object whose prototype super property reads start from.
	Home Value
	// Class is set on class constructors; SuperCall reads the parent from it.
	Class Value

	Name          string
	Constructable bool
	IsMethod      bool

	// Slots hold native-internal state that must stay visible to the GC.
	Slots []Value
}

func (*FunctionPayload) Kind() PayloadKind { return PayloadFunction }

type BoundCall struct {
	Target Value
	This   Value
	Args   []Value
}

// ClassPayload is the class object created by NewClass.
type ClassPayload struct {
	Def         *ClassDef
	Constructor Value // function object, or Undefined for a default constructor
	Super       Value // parent constructor, Null, or Undefined for no extends
}

func (*ClassPayload) Kind() PayloadKind { return PayloadClass }

type GeneratorState uint8

const (
	GeneratorStart GeneratorState = iota
	GeneratorSuspended
	GeneratorExecuting
	GeneratorCompleted
)

type GeneratorPayload struct {
	State    GeneratorState
	Task     TaskID
	Function Value
	This     Value
	Args     []Value
}

func (*GeneratorPayload) Kind() PayloadKind { return PayloadGenerator }

// CompiledPattern is the regex collaborator's compiled form.
type CompiledPattern interface {
	Source() string
	Flags() string
	// Exec matches input starting at rune offset start. A nil match with a
	// nil error means no match.
	Exec(input string, start int) (*RegexMatch, error)
}

// RegexMatch is the result of CompiledPattern.Exec; offsets are in runes.
type RegexMatch struct {
	Start, End int
	Captures   []RegexCapture // index 0 is the whole match
	Names      map[string]int
}

type RegexCapture struct {
	Matched bool
	Start   int
	Text    string
}

type RegexPayload struct {
	Pattern   CompiledPattern
	LastIndex int
}

func (*RegexPayload) Kind() PayloadKind { return PayloadRegex }

type PromiseState uint8

const (
	PromisePending PromiseState = iota
	PromiseFulfilled
	PromiseRejected
	PromiseForeverPending
)

func (s PromiseState) String() string {
	switch s {
	case PromisePending:
		return "pending"
	case PromiseFulfilled:
		return "fulfilled"
	case PromiseRejected:
		return "rejected"
	default:
		return "forever-pending"
	}
}

type PromisePayload struct {
	State  PromiseState
	Result Value
	// Task is the async task settling this promise while Pending.
	Task      TaskID
	reactions []promiseReaction
	handled   bool
}

func (*PromisePayload) Kind() PayloadKind { return PayloadPromise }

type ProxyPayload struct {
	Target  Value
	Handler Value
	Revoked bool
}

func (*ProxyPayload) Kind() PayloadKind { return PayloadProxy }

// mapKey is the SameValueZero identity of a Map/Set key.
type mapKey struct {
	typ     ValueType
	payload uint64
	text    string
}

type MapPayload struct {
	index   map[mapKey]int
	Keys    []Value
	Values  []Value
	deleted []bool
	size    int
}

func (*MapPayload) Kind() PayloadKind { return PayloadMap }

func (m *MapPayload) Size() int { return m.size }

type SetPayload struct {
	MapPayload
}

func (*SetPayload) Kind() PayloadKind { return PayloadSet }

// WeakMapPayload keys are object handles that do not keep their target alive.
type WeakMapPayload struct {
	Entries map[Handle]Value
}

func (*WeakMapPayload) Kind() PayloadKind { return PayloadWeakMap }

type WeakSetPayload struct {
	Entries map[Handle]struct{}
}

func (*WeakSetPayload) Kind() PayloadKind { return PayloadWeakSet }

type ArrayBufferPayload struct {
	Data []byte
}

func (*ArrayBufferPayload) Kind() PayloadKind { return PayloadArrayBuffer }

type TypedArrayKind uint8

const (
	TypedInt8 TypedArrayKind = iota
	TypedUint8
	TypedInt16
	TypedUint16
	TypedInt32
	TypedUint32
	TypedFloat32
	TypedFloat64
)

func (k TypedArrayKind) ElementSize() int {
	switch k {
	case TypedInt8, TypedUint8:
		return 1
	case TypedInt16, TypedUint16:
		return 2
	case TypedInt32, TypedUint32, TypedFloat32:
		return 4
	default:
		return 8
	}
}

// TypedArrayPayload is a view over an ArrayBuffer object.
type TypedArrayPayload struct {
	ArrayKind TypedArrayKind
	Buffer    Value
	Offset    int
	Length    int
}

func (*TypedArrayPayload) Kind() PayloadKind { return PayloadTypedArray }

// PrimitiveWrapper boxes a primitive for String/Number/BigInt/Boolean/Symbol
// objects.
type PrimitiveWrapper struct {
	K     PayloadKind
	Value Value
}

func (p *PrimitiveWrapper) Kind() PayloadKind { return p.K }

type ErrorPayload struct {
	Backtrace []BacktraceEntry
}

func (*ErrorPayload) Kind() PayloadKind { return PayloadError }

type NewTargetPayload struct{}

func (NewTargetPayload) Kind() PayloadKind { return PayloadNewTarget }

// IteratorPayload backs the intrinsic array and string iterator objects.
type IteratorPayload struct {
	state *iterState
}

func (*IteratorPayload) Kind() PayloadKind { return PayloadIterator }

// NewObject allocates an object with the given prototype and payload.
func (rt *Runtime) NewObject(proto Value, payload Payload) Value {
	if payload == nil {
		payload = EmptyPayload{}
	}
	h, obj := rt.heap.allocObject(payload.Kind())
	obj.Proto = proto
	obj.Payload = payload
	return objectValue(h)
}

// NewPlainObject allocates an ordinary object inheriting Object.prototype.
func (rt *Runtime) NewPlainObject() Value {
	return rt.NewObject(rt.realm.ObjectPrototype, nil)
}

// NewArray allocates an array holding a copy of values.
func (rt *Runtime) NewArray(values []Value) Value {
	elems := make([]ArrayElement, len(values))
	for i, v := range values {
		elems[i].Value = v
	}
	return rt.NewObject(rt.realm.ArrayPrototype, &ArrayPayload{Elements: elems})
}

// Object resolves an object value to its cell.
func (rt *Runtime) Object(v Value) *HeapObject {
	return rt.heap.Object(v.Handle())
}

// objectOf returns the cell of v when v is an object.
func (rt *Runtime) objectOf(v Value) (*HeapObject, bool) {
	if v.typ != TypeObject {
		return nil, false
	}
	return rt.heap.Object(v.Handle()), true
}

// arrayOf returns the array payload of v.
func (rt *Runtime) arrayOf(v Value) (*ArrayPayload, bool) {
	obj, ok := rt.objectOf(v)
	if !ok {
		return nil, false
	}
	a, ok := obj.Payload.(*ArrayPayload)
	return a, ok
}

// functionOf returns the function payload of v.
func (rt *Runtime) functionOf(v Value) (*FunctionPayload, bool) {
	obj, ok := rt.objectOf(v)
	if !ok {
		return nil, false
	}
	f, ok := obj.Payload.(*FunctionPayload)
	return f, ok
}

// IsCallable reports whether v can be invoked.
func (rt *Runtime) IsCallable(v Value) bool {
	obj, ok := rt.objectOf(v)
	if !ok {
		return false
	}
	switch p := obj.Payload.(type) {
	case *FunctionPayload, *ClassPayload:
		return true
	case *ProxyPayload:
		return rt.IsCallable(p.Target)
	}
	return false
}

// IsConstructor reports whether v can be used with new.
func (rt *Runtime) IsConstructor(v Value) bool {
	obj, ok := rt.objectOf(v)
	if !ok {
		return false
	}
	switch p := obj.Payload.(type) {
	case *FunctionPayload:
		if p.Bound != nil {
			return rt.IsConstructor(p.Bound.Target)
		}
		return p.Constructable
	case *ClassPayload:
		return true
	case *ProxyPayload:
		return rt.IsConstructor(p.Target)
	}
	return false
}

// CheckArrayLength throws a RangeError when an array of n elements would
// exceed the configured storage bound.
func (rt *Runtime) CheckArrayLength(n int) error {
	if limit := rt.opts.MaxArrayLength; limit > 0 && n > limit {
		return rt.rangeError("Invalid array length %d: arrays are limited to %d elements", n, limit)
	}
	return nil
}

// ResizeArray sets the length of a, filling new slots with holes.
func (rt *Runtime) ResizeArray(a *ArrayPayload, n int) error {
	if n > len(a.Elements) {
		if err := rt.CheckArrayLength(n); err != nil {
			return err
		}
	}
	a.SetLength(n)
	return nil
}

// SetArrayElement stores v at index i, growing a with holes as needed.
func (rt *Runtime) SetArrayElement(a *ArrayPayload, i int, v Value) error {
	if i >= len(a.Elements) {
		if err := rt.CheckArrayLength(i + 1); err != nil {
			return err
		}
	}
	a.Set(i, v)
	return nil
}

// SetLength truncates or extends an array with holes.
func (a *ArrayPayload) SetLength(n int) {
	if n <= len(a.Elements) {
		for i := n; i < len(a.Elements); i++ {
			a.Elements[i] = ArrayElement{}
		}
		a.Elements = a.Elements[:n]
		return
	}
	for len(a.Elements) < n {
		a.Elements = append(a.Elements, ArrayElement{Hole: true, Value: Undefined})
	}
}

// Set stores v at index i, filling the gap with holes.
func (a *ArrayPayload) Set(i int, v Value) {
	if i >= len(a.Elements) {
		a.SetLength(i + 1)
	}
	a.Elements[i] = ArrayElement{Value: v}
}

// Get returns the element at i; holes and out-of-range report false.
func (a *ArrayPayload) Get(i int) (Value, bool) {
	if i < 0 || i >= len(a.Elements) || a.Elements[i].Hole {
		return Undefined, false
	}
	return a.Elements[i].Value, true
}
