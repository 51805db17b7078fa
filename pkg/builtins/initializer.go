package builtins

import (
	"io"

	"lynx/pkg/vm"
)

// BuiltinInitializer is implemented by each builtin module
type BuiltinInitializer interface {
	// Name returns the module name (e.g., "Array", "String", "Math")
	Name() string

	// Priority returns initialization order (lower = earlier)
	Priority() int

	// InitRuntime creates runtime values for the runtime's realm
	InitRuntime(ctx *RuntimeContext) error
}

// RuntimeContext provides everything needed for runtime initialization
type RuntimeContext struct {
	// The runtime instance
	Runtime *vm.Runtime

	// Stdout receives console output
	Stdout io.Writer
	// Stderr receives console.error and console.warn
	Stderr io.Writer

	// Define a global value
	DefineGlobal func(name string, value vm.Value) error

	// Intrinsic prototypes created by the runtime
	ObjectPrototype   vm.Value
	FunctionPrototype vm.Value
	ArrayPrototype    vm.Value
}

// Priority constants for initialization order
const (
	PriorityGlobals  = -1  // globalThis, NaN, parseInt...
	PriorityObject   = 0   // Object must be first (base prototype)
	PriorityFunction = 1   // Function second (inherits from Object)
	PriorityArray    = 3   // Array third (inherits from Object, implements Iterable)
	PriorityString   = 10  // String primitives
	PriorityNumber   = 11  // Number primitives
	PrioritySymbol   = 12  // Symbol and the well-known symbols
	PriorityRegExp   = 13  // RegExp constructor
	PriorityPromise  = 20  // Promise constructor and combinators
	PriorityMath     = 100 // Math object
	PriorityJSON     = 101 // JSON object
	PriorityConsole  = 102 // Console object
	PriorityMap      = 400 // Map and WeakMap
	PrioritySet      = 401 // Set and WeakSet
)
