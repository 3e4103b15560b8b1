package heap

import (
	"testing"

	"fenceheap/internal/region"
)

func newTestHeap(t *testing.T, capacity uintptr) (*Heap, *region.Simulator) {
	t.Helper()

	sim := region.NewSimulator(capacity)
	h := New(sim, WithDebugOrigin(true))

	if err := h.Setup(); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	t.Cleanup(h.Teardown)

	return h, sim
}

func TestSetupAllocFreeTeardown(t *testing.T) {
	h, _ := newTestHeap(t, 16*region.PageSize)

	p := h.Alloc(100)
	if p == 0 {
		t.Fatalf("Alloc(100) failed: %v", h.LastError())
	}

	if p%wordSize != 0 {
		t.Errorf("payload %#x is not word-aligned", p)
	}

	if got := h.Classify(p); got != ClassValid {
		t.Errorf("Classify(p) = %s, want valid", got)
	}

	if got := h.Largest(); got != 100 {
		t.Errorf("Largest() = %d, want 100", got)
	}

	h.Free(p)

	if got := h.Classify(p); got != ClassUnallocated {
		t.Errorf("Classify(p) after free = %s, want unallocated", got)
	}

	if got := h.Largest(); got != 0 {
		t.Errorf("Largest() after free = %d, want 0", got)
	}

	if got := h.Validate(); got != OK {
		t.Errorf("Validate() after free = %s, want OK", got)
	}
}

func TestAllocZeroFails(t *testing.T) {
	h, _ := newTestHeap(t, 4*region.PageSize)

	if p := h.Alloc(0); p != 0 {
		t.Errorf("Alloc(0) = %#x, want 0", p)
	}

	if p := h.Zalloc(0, 8); p != 0 {
		t.Errorf("Zalloc(0, 8) = %#x, want 0", p)
	}

	if p := h.Zalloc(8, 0); p != 0 {
		t.Errorf("Zalloc(8, 0) = %#x, want 0", p)
	}
}

func TestZallocZeroFills(t *testing.T) {
	h, _ := newTestHeap(t, 4*region.PageSize)

	p := h.Zalloc(16, 4)
	if p == 0 {
		t.Fatalf("Zalloc(16, 4) failed: %v", h.LastError())
	}

	for i := uintptr(0); i < 64; i++ {
		if byteAt(p+i) != 0 {
			t.Fatalf("byte %d not zeroed", i)
		}
	}
}

func TestFreeTwoAdjacentCoalesce(t *testing.T) {
	h, _ := newTestHeap(t, 4*region.PageSize)

	a := h.Alloc(32)
	b := h.Alloc(32)
	c := h.Alloc(32)

	if a == 0 || b == 0 || c == 0 {
		t.Fatalf("setup allocs failed: a=%#x b=%#x c=%#x", a, b, c)
	}

	before := h.Largest()

	h.Free(a)
	h.Free(b)

	if got := h.Validate(); got != OK {
		t.Fatalf("Validate() after coalescing = %s", got)
	}

	if got := h.Largest(); got != before {
		t.Errorf("Largest() changed across coalesce: %d -> %d", before, got)
	}

	h.Free(c)
}

func TestFreeNullAndInvalidAreNoops(t *testing.T) {
	h, _ := newTestHeap(t, 4*region.PageSize)

	h.Free(0)

	p := h.Alloc(16)
	if p == 0 {
		t.Fatalf("Alloc failed: %v", h.LastError())
	}

	h.Free(p + 1) // interior pointer, not a payload start

	if got := h.Validate(); got != OK {
		t.Errorf("Validate() after no-op free = %s", got)
	}

	if got := h.Classify(p); got != ClassValid {
		t.Errorf("Classify(p) after no-op free = %s, want valid", got)
	}

	h.Free(p)
}

func TestReallocNullZeroFails(t *testing.T) {
	h, _ := newTestHeap(t, 4*region.PageSize)

	if p := h.Realloc(0, 0); p != 0 {
		t.Errorf("Realloc(NULL, 0) = %#x, want 0", p)
	}
}

func TestReallocNullActsAsAlloc(t *testing.T) {
	h, _ := newTestHeap(t, 4*region.PageSize)

	p := h.Realloc(0, 48)
	if p == 0 {
		t.Fatalf("Realloc(NULL, 48) failed: %v", h.LastError())
	}

	if got := h.Classify(p); got != ClassValid {
		t.Errorf("Classify(p) = %s, want valid", got)
	}
}

func TestReallocZeroFrees(t *testing.T) {
	h, _ := newTestHeap(t, 4*region.PageSize)

	p := h.Alloc(48)
	if p == 0 {
		t.Fatalf("Alloc failed: %v", h.LastError())
	}

	if got := h.Realloc(p, 0); got != 0 {
		t.Errorf("Realloc(p, 0) = %#x, want 0", got)
	}

	if got := h.Classify(p); got != ClassUnallocated {
		t.Errorf("Classify(p) after Realloc(p, 0) = %s, want unallocated", got)
	}
}

func TestReallocGrowByRelocation(t *testing.T) {
	h, _ := newTestHeap(t, 16*region.PageSize)

	a := h.Alloc(64)
	b := h.Alloc(64)
	c := h.Alloc(64)

	if a == 0 || b == 0 || c == 0 {
		t.Fatalf("setup allocs failed: a=%#x b=%#x c=%#x", a, b, c)
	}

	for i := uintptr(0); i < 64; i++ {
		setByteAt(b+i, byte(i))
	}

	grown := h.Realloc(b, 256)
	if grown == 0 {
		t.Fatalf("Realloc grow failed: %v", h.LastError())
	}

	if grown == b {
		t.Fatalf("expected relocation since C blocks in-place growth")
	}

	for i := uintptr(0); i < 64; i++ {
		if byteAt(grown+i) != byte(i) {
			t.Fatalf("payload byte %d lost across relocation", i)
		}
	}

	if got := h.Classify(b); got != ClassUnallocated {
		t.Errorf("Classify(old b) = %s, want unallocated", got)
	}

	h.Free(a)
	h.Free(grown)
	h.Free(c)
}

func TestAlignedAllocFromEmptyHeap(t *testing.T) {
	h, sim := newTestHeap(t, 16*region.PageSize)

	p := h.AlignedAlloc(64)
	if p == 0 {
		t.Fatalf("AlignedAlloc failed: %v", h.LastError())
	}

	if p%region.PageSize != 0 {
		t.Errorf("AlignedAlloc returned %#x, not page-aligned", p)
	}

	if got := h.Validate(); got != OK {
		t.Errorf("Validate() = %s, want OK", got)
	}

	if h.head == nil || !h.head.free || h.head.next == nil || h.head.next.payloadAddr() != p {
		t.Fatalf("expected a leading free block before the aligned payload, got head=%+v", h.head)
	}

	if err := sim.CheckOuterFences(); err != nil {
		t.Errorf("outer fences: %v", err)
	}

	h.Free(p)
}

func TestDebugVariantRecordsOrigin(t *testing.T) {
	h, _ := newTestHeap(t, 4*region.PageSize)

	p := h.AllocDebug(16, "heap_test.go", 4242)
	if p == 0 {
		t.Fatalf("AllocDebug failed: %v", h.LastError())
	}

	b := h.blockOf(p)
	if b == nil {
		t.Fatal("blockOf(p) = nil")
	}

	if b.fileName != "heap_test.go" || b.fileLine != 4242 {
		t.Errorf("origin = (%s, %d), want (heap_test.go, 4242)", b.fileName, b.fileLine)
	}
}

func TestCorruptedGuardFailsValidate(t *testing.T) {
	h, _ := newTestHeap(t, 4*region.PageSize)

	p := h.Alloc(16)
	if p == 0 {
		t.Fatalf("Alloc failed: %v", h.LastError())
	}

	setByteAt(p+16, 'x') // stomp the right guard

	if got := h.Validate(); got != FencesCorrupted {
		t.Errorf("Validate() = %s, want FENCES_CORRUPTED", got)
	}

	if got := h.Classify(p); got != ClassHeapCorrupted {
		t.Errorf("Classify(p) = %s, want heap-corrupted", got)
	}
}

func TestCorruptedChecksumFailsValidate(t *testing.T) {
	h, _ := newTestHeap(t, 4*region.PageSize)

	p := h.Alloc(16)
	if p == 0 {
		t.Fatalf("Alloc failed: %v", h.LastError())
	}

	b := h.blockOf(p)
	b.size = 9999 // desync size from checksum without restamping

	if got := h.Validate(); got != ControlCorrupted {
		t.Errorf("Validate() = %s, want CONTROL_CORRUPTED", got)
	}
}

func TestValidateOnUninitializedHeap(t *testing.T) {
	sim := region.NewSimulator(4 * region.PageSize)
	h := New(sim)

	if got := h.Validate(); got != Uninitialized {
		t.Errorf("Validate() on fresh heap = %s, want UNINITIALIZED", got)
	}
}
