package heap

import (
	"fmt"
	"io"
	"testing"
	"time"

	"fenceheap/internal/region"
	"fenceheap/internal/testrunner/fuzz"
)

// fuzzGuardTamper corrupts a single guard byte of a freshly allocated block
// and reports a "crash" (an error) if Validate fails to notice. data[0]
// selects which guard and which byte within it; data[1] is the replacement
// value.
func fuzzGuardTamper(data []byte) error {
	if len(data) < 2 {
		return nil
	}

	sim := region.NewSimulator(4 * region.PageSize)
	h := New(sim)

	if err := h.Setup(); err != nil {
		return err
	}
	defer h.Teardown()

	p := h.Alloc(16)
	if p == 0 {
		return nil
	}

	b := h.blockOf(p)

	offset := uintptr(data[0]) % guardSize
	val := data[1]

	var addr uintptr
	if data[0]%2 == 0 {
		addr = b.leftGuardAddr() + offset
	} else {
		addr = b.rightGuardAddr() + offset
	}

	if byteAt(addr) == val {
		return nil
	}

	setByteAt(addr, val)

	if h.Validate() == OK {
		return fmt.Errorf("corrupted guard byte at %#x went undetected", addr)
	}

	return nil
}

// TestFuzzGuardTamperAlwaysDetected mutates the seed corpus across guard
// byte positions and values, asserting the corruption detector in
// validate.go never misses a stomped guard.
func TestFuzzGuardTamperAlwaysDetected(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping fuzz run in -short mode")
	}

	corpus := []fuzz.CorpusEntry{
		{0, 0},
		{1, 'x'},
		{3, 0xFF},
	}

	stats := fuzz.RunWithStats(fuzz.Options{
		Duration:    200 * time.Millisecond,
		Seed:        7,
		MaxInput:    4,
		Concurrency: 1,
	}, corpus, fuzzGuardTamper, fuzz.DefaultMutator(), io.Discard)

	if stats.Crashes != 0 {
		t.Fatalf("guard tamper went undetected in %d of %d executions", stats.Crashes, stats.Executions)
	}
}
