package vm

import (
	"fmt"

	"lynx/pkg/errors"
)

// Handle identifies a heap cell. It packs the size class of the slab that
// owns the cell, the cell generation and the cell index:
//
//	[class:8][generation:24][index:32]
//
// Freeing a cell bumps its generation, so a handle kept past the cell's
// lifetime no longer matches and is reported as an engine defect.
type Handle uint64

const (
	handleIndexBits = 32
	handleGenBits   = 24
	handleGenMask   = 1<<handleGenBits - 1
)

func makeHandle(class uint8, gen uint32, index uint32) Handle {
	return Handle(uint64(class)<<(handleIndexBits+handleGenBits) |
		uint64(gen&handleGenMask)<<handleIndexBits |
		uint64(index))
}

func (h Handle) class() uint8  { return uint8(h >> (handleIndexBits + handleGenBits)) }
func (h Handle) gen() uint32   { return uint32(h>>handleIndexBits) & handleGenMask }
func (h Handle) index() uint32 { return uint32(h) }

func (h Handle) String() string {
	return fmt.Sprintf("#%d.%d/%d", h.class(), h.index(), h.gen())
}

// cellFlag is the per-cell collector state.
type cellFlag uint8

const (
	flagFree cellFlag = iota
	flagUnmarked
	flagGray
	flagMarked
)

// slabPageSize is the number of cells per page. Pages are never moved, so a
// pointer to a live cell stays valid while the slab grows.
const slabPageSize = 256

type slabPage[T any] struct {
	cells [slabPageSize]T
	gens  [slabPageSize]uint32
	flags [slabPageSize]cellFlag
}

// slab is a typed free-list allocator for one size class.
type slab[T any] struct {
	class uint8
	pages []*slabPage[T]
	next  uint32 // first never-used index
	free  []uint32
	live  int
}

func newSlab[T any](class uint8) *slab[T] {
	return &slab[T]{class: class}
}

func (s *slab[T]) alloc() (Handle, *T) {
	var idx uint32
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		idx = s.next
		s.next++
		if int(idx/slabPageSize) >= len(s.pages) {
			s.pages = append(s.pages, &slabPage[T]{})
		}
	}
	page := s.pages[idx/slabPageSize]
	off := idx % slabPageSize
	if page.gens[off] == 0 {
		page.gens[off] = 1
	}
	page.flags[off] = flagUnmarked
	s.live++
	return makeHandle(s.class, page.gens[off], idx), &page.cells[off]
}

// get resolves a handle, panicking on a stale or foreign handle.
func (s *slab[T]) get(h Handle) *T {
	idx := h.index()
	if idx >= s.next {
		errors.Fatal(errors.EngineBadHandle, "handle %s out of range", h)
	}
	page := s.pages[idx/slabPageSize]
	off := idx % slabPageSize
	if page.flags[off] == flagFree || page.gens[off] != h.gen() {
		errors.Fatal(errors.EngineStaleHandle, "stale handle %s (generation %d)", h, page.gens[off])
	}
	return &page.cells[off]
}

// alive reports whether h still names a live cell.
func (s *slab[T]) alive(h Handle) bool {
	idx := h.index()
	if idx >= s.next {
		return false
	}
	page := s.pages[idx/slabPageSize]
	off := idx % slabPageSize
	return page.flags[off] != flagFree && page.gens[off] == h.gen()
}

func (s *slab[T]) flag(idx uint32) *cellFlag {
	return &s.pages[idx/slabPageSize].flags[idx%slabPageSize]
}

func (s *slab[T]) handleAt(idx uint32) Handle {
	return makeHandle(s.class, s.pages[idx/slabPageSize].gens[idx%slabPageSize], idx)
}

func (s *slab[T]) cellAt(idx uint32) *T {
	return &s.pages[idx/slabPageSize].cells[idx%slabPageSize]
}

// release returns a cell to the free list and invalidates outstanding handles.
func (s *slab[T]) release(idx uint32) {
	page := s.pages[idx/slabPageSize]
	off := idx % slabPageSize
	if page.flags[off] == flagFree {
		errors.Fatal(errors.EngineStaleHandle, "double free of cell %d in class %d", idx, s.class)
	}
	var zero T
	page.cells[off] = zero
	page.flags[off] = flagFree
	page.gens[off] = (page.gens[off] + 1) & handleGenMask
	if page.gens[off] == 0 {
		page.gens[off] = 1
	}
	s.free = append(s.free, idx)
	s.live--
}

// String cells are segregated by byte length so that free lists of similar
// cells are reused together. Combined cells have their own class.
const (
	stringClassTiny   = iota // <= 16 bytes
	stringClassSmall         // <= 64
	stringClassMedium        // <= 256
	stringClassLarge         // <= 4096
	stringClassHuge          // larger
	stringClassCombined
	stringClassStatic
	numStringClasses
)

const stringClassBase = 0x80

func stringClassFor(byteLen int) int {
	switch {
	case byteLen <= 16:
		return stringClassTiny
	case byteLen <= 64:
		return stringClassSmall
	case byteLen <= 256:
		return stringClassMedium
	case byteLen <= 4096:
		return stringClassLarge
	default:
		return stringClassHuge
	}
}

// Heap owns every object and string cell of a Runtime.
type Heap struct {
	objects [numPayloadKinds]*slab[HeapObject]
	strings [numStringClasses]*slab[StringCell]

	// maxCells bounds live cells; 0 means unlimited. reserve lets the engine
	// allocate the RangeError that reports exhaustion.
	maxCells int
	reserve  bool

	allocated uint64 // cells allocated since creation
}

// NewHeap creates an empty heap. maxCells of 0 disables the limit.
func NewHeap(maxCells int) *Heap {
	h := &Heap{maxCells: maxCells}
	for k := range h.objects {
		h.objects[k] = newSlab[HeapObject](uint8(k))
	}
	for c := range h.strings {
		h.strings[c] = newSlab[StringCell](uint8(stringClassBase + c))
	}
	return h
}

// heapExhausted is raised by allocation when the live cell limit is hit.
// The interpreter converts it into a thrown RangeError.
type heapExhausted struct{}

func (h *Heap) checkLimit() {
	if h.maxCells > 0 && !h.reserve && h.Live() >= h.maxCells {
		panic(heapExhausted{})
	}
	h.allocated++
}

// Room reports whether n more cells fit under the live cell limit.
func (h *Heap) Room(n int) bool {
	return h.maxCells <= 0 || h.Live()+n <= h.maxCells
}

// Live returns the number of live cells across all classes.
func (h *Heap) Live() int {
	n := 0
	for _, s := range h.objects {
		n += s.live
	}
	for _, s := range h.strings {
		n += s.live
	}
	return n
}

// LiveObjects returns the number of live object cells.
func (h *Heap) LiveObjects() int {
	n := 0
	for _, s := range h.objects {
		n += s.live
	}
	return n
}

// LiveStrings returns the number of live string cells.
func (h *Heap) LiveStrings() int {
	n := 0
	for _, s := range h.strings {
		n += s.live
	}
	return n
}

func (h *Heap) allocObject(kind PayloadKind) (Handle, *HeapObject) {
	h.checkLimit()
	return h.objects[kind].alloc()
}

// Object resolves an object handle.
func (h *Heap) Object(handle Handle) *HeapObject {
	c := handle.class()
	if int(c) >= len(h.objects) {
		errors.Fatal(errors.EngineBadHandle, "handle %s is not an object handle", handle)
	}
	return h.objects[c].get(handle)
}

func (h *Heap) allocString(class int) (Handle, *StringCell) {
	h.checkLimit()
	return h.strings[class].alloc()
}

// StringAt resolves a string handle.
func (h *Heap) StringAt(handle Handle) *StringCell {
	c := int(handle.class()) - stringClassBase
	if c < 0 || c >= numStringClasses {
		errors.Fatal(errors.EngineBadHandle, "handle %s is not a string handle", handle)
	}
	return h.strings[c].get(handle)
}

// Alive reports whether the handle of v (string or object) still names a
// live cell. Non-heap values are always alive.
func (h *Heap) Alive(v Value) bool {
	switch v.typ {
	case TypeObject:
		c := v.Handle().class()
		return int(c) < len(h.objects) && h.objects[c].alive(v.Handle())
	case TypeString:
		c := int(v.Handle().class()) - stringClassBase
		return c >= 0 && c < numStringClasses && h.strings[c].alive(v.Handle())
	}
	return true
}
