package vm

import (
	"strings"
	"testing"
)

func TestHandle_Packing(t *testing.T) {
	h := makeHandle(0x85, 0xabcdef, 123456)
	if h.class() != 0x85 {
		t.Errorf("class = %#x, want 0x85", h.class())
	}
	if h.gen() != 0xabcdef {
		t.Errorf("gen = %#x, want 0xabcdef", h.gen())
	}
	if h.index() != 123456 {
		t.Errorf("index = %d, want 123456", h.index())
	}
	if got := makeHandle(1, handleGenMask+2, 0).gen(); got != 1 {
		t.Errorf("generation should wrap to 24 bits, got %d", got)
	}
}

func TestSlab_ReuseBumpsGeneration(t *testing.T) {
	s := newSlab[int](3)
	h1, p := s.alloc()
	*p = 7
	if s.live != 1 {
		t.Fatalf("live = %d, want 1", s.live)
	}
	if got := *s.get(h1); got != 7 {
		t.Errorf("get = %d, want 7", got)
	}

	s.release(h1.index())
	if s.alive(h1) {
		t.Errorf("released handle should not be alive")
	}
	h2, p2 := s.alloc()
	if h2.index() != h1.index() {
		t.Errorf("freed cell should be reused: got index %d, want %d", h2.index(), h1.index())
	}
	if h2.gen() == h1.gen() {
		t.Errorf("reused cell must get a new generation")
	}
	if *p2 != 0 {
		t.Errorf("reused cell should be zeroed, got %d", *p2)
	}
	expectPanic(t, func() { s.get(h1) }, "stale handle")
}

func TestSlab_GrowsByPages(t *testing.T) {
	s := newSlab[int](0)
	var handles []Handle
	for i := 0; i < slabPageSize*2+5; i++ {
		h, p := s.alloc()
		*p = i
		handles = append(handles, h)
	}
	if len(s.pages) != 3 {
		t.Errorf("pages = %d, want 3", len(s.pages))
	}
	for i, h := range handles {
		if got := *s.get(h); got != i {
			t.Fatalf("cell %d = %d after growth", i, got)
		}
	}
}

func TestSlab_DoubleFree(t *testing.T) {
	s := newSlab[int](0)
	h, _ := s.alloc()
	s.release(h.index())
	expectPanic(t, func() { s.release(h.index()) }, "double free")
}

func TestHeap_OutOfRangeHandle(t *testing.T) {
	h := NewHeap(0)
	bogus := makeHandle(uint8(PayloadEmpty), 1, 99)
	expectPanic(t, func() { h.Object(bogus) }, "out of range")
	if h.Alive(objectValue(bogus)) {
		t.Errorf("out of range handle reported alive")
	}
}

func TestHeap_StringClasses(t *testing.T) {
	testCases := []struct {
		n    int
		want int
	}{
		{0, stringClassTiny},
		{16, stringClassTiny},
		{17, stringClassSmall},
		{64, stringClassSmall},
		{200, stringClassMedium},
		{4096, stringClassLarge},
		{5000, stringClassHuge},
	}
	for _, tc := range testCases {
		if got := stringClassFor(tc.n); got != tc.want {
			t.Errorf("stringClassFor(%d) = %d, want %d", tc.n, got, tc.want)
		}
	}

	h := NewHeap(0)
	v := h.NewString(strings.Repeat("a", 100))
	if c := int(v.Handle().class()) - stringClassBase; c != stringClassMedium {
		t.Errorf("100-byte string allocated in class %d", c)
	}
	if h.LiveStrings() != 1 || h.LiveObjects() != 0 {
		t.Errorf("live strings/objects = %d/%d", h.LiveStrings(), h.LiveObjects())
	}
}

func TestHeap_ConcatShortCopies(t *testing.T) {
	h := NewHeap(0)
	s := h.Concat(h.NewString("foo"), h.NewString("bar"))
	if k := h.StringAt(s.Handle()).Kind(); k != StringOwned {
		t.Errorf("short concat kind = %d, want owned", k)
	}
	if got := h.Flatten(s); got != "foobar" {
		t.Errorf("Flatten = %q", got)
	}
	empty := h.NewString("")
	right := h.NewString("x")
	if got := h.Concat(empty, right); got != right {
		t.Errorf("concat with empty left should return the right operand")
	}
}

func TestHeap_RopeFlattenIdempotent(t *testing.T) {
	h := NewHeap(0)
	a := strings.Repeat("a", 50)
	b := strings.Repeat("b", 50)
	c := strings.Repeat("c", 50)
	left := h.Concat(h.NewString(a), h.NewString(b))
	rope := h.Concat(left, h.NewString(c))

	cell := h.StringAt(rope.Handle())
	if cell.Kind() != StringCombined {
		t.Fatalf("long concat kind = %d, want combined", cell.Kind())
	}
	if cell.Len() != 150 {
		t.Errorf("rope length = %d, want 150", cell.Len())
	}

	first := h.Flatten(rope)
	if first != a+b+c {
		t.Fatalf("Flatten = %q", first)
	}
	if cell.Kind() != StringOwned {
		t.Errorf("rope should be owned after flattening, got %d", cell.Kind())
	}
	if second := h.Flatten(rope); second != first {
		t.Errorf("second Flatten = %q, want %q", second, first)
	}
	// the shared child rope is untouched
	if k := h.StringAt(left.Handle()).Kind(); k != StringCombined {
		t.Errorf("child rope kind = %d, want combined", k)
	}
	if got := h.Flatten(left); got != a+b {
		t.Errorf("child Flatten = %q", got)
	}
}

func TestHeap_StringLengthUTF16(t *testing.T) {
	h := NewHeap(0)
	testCases := []struct {
		s    string
		want int
	}{
		{"", 0},
		{"abc", 3},
		{"héllo", 5},
		{"😀", 2},
		{"a😀b", 4},
	}
	for _, tc := range testCases {
		if got := h.StringLength(h.NewString(tc.s)); got != tc.want {
			t.Errorf("StringLength(%q) = %d, want %d", tc.s, got, tc.want)
		}
	}
}

func TestHeap_StaticStrings(t *testing.T) {
	h := NewHeap(0)
	v := h.NewStaticString("literal")
	if k := h.StringAt(v.Handle()).Kind(); k != StringStatic {
		t.Errorf("kind = %d, want static", k)
	}
	if got := h.Flatten(v); got != "literal" {
		t.Errorf("Flatten = %q", got)
	}
}

func TestHeap_CellLimit(t *testing.T) {
	h := NewHeap(2)
	h.NewString("a")
	h.NewString("b")
	defer func() {
		r := recover()
		if _, ok := r.(heapExhausted); !ok {
			t.Errorf("expected heapExhausted panic, got %v", r)
		}
	}()
	h.NewString("c")
}
