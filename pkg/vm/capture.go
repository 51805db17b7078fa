package vm

import (
	"lynx/pkg/errors"
)

// CaptureEnv holds the captured variables of one activation. It is shared by
// that activation and every closure created from it, and is released when
// the last holder lets go.
type CaptureEnv struct {
	refs  int
	slots []Value
	// epoch is the GC cycle that last traced this env.
	epoch uint64
}

func newCaptureEnv(size int) *CaptureEnv {
	slots := make([]Value, size)
	for i := range slots {
		slots[i] = Undefined
	}
	return &CaptureEnv{refs: 1, slots: slots}
}

// Retain adds a holder.
func (e *CaptureEnv) Retain() { e.refs++ }

// Release drops a holder; the last release clears the slots.
func (e *CaptureEnv) Release() {
	if e.refs <= 0 {
		errors.Fatal(errors.EngineBadOperand, "capture env released more often than retained")
	}
	e.refs--
	if e.refs == 0 {
		e.slots = nil
	}
}

func (e *CaptureEnv) Refs() int { return e.refs }

func (e *CaptureEnv) Len() int { return len(e.slots) }

func (e *CaptureEnv) Get(i int) Value {
	if i < 0 || i >= len(e.slots) {
		errors.Fatal(errors.EngineBadOperand, "capture slot %d out of range (%d slots)", i, len(e.slots))
	}
	return e.slots[i]
}

func (e *CaptureEnv) Set(i int, v Value) {
	if i < 0 || i >= len(e.slots) {
		errors.Fatal(errors.EngineBadOperand, "capture slot %d out of range (%d slots)", i, len(e.slots))
	}
	e.slots[i] = v
}
