// Command fenceheap-smoke exercises a heap end to end: setup, alloc/free
// churn, aligned allocation, realloc growth and shrink, and a final
// validation pass. It is meant to be run by hand or in CI as a fast sanity
// check, not as a substitute for the package's test suite.
package main

import (
	"fmt"
	"log"
	"os"

	"fenceheap/internal/heap"
	"fenceheap/internal/region"
)

func main() {
	fmt.Println("=== fenceheap smoke test ===")

	sim := region.NewSimulator(64 * region.PageSize)

	h := heap.New(sim, heap.WithDebugOrigin(true))
	h.Logger = log.New(os.Stderr, "fenceheap: ", log.LstdFlags)

	if err := h.Setup(); err != nil {
		log.Fatalf("setup failed: %v", err)
	}
	defer h.Teardown()

	if err := runChurn(h, sim); err != nil {
		log.Fatalf("churn failed: %v", err)
	}

	fmt.Println("✅ alloc/free churn passed")

	if err := runAligned(h); err != nil {
		log.Fatalf("aligned allocation failed: %v", err)
	}

	fmt.Println("✅ aligned allocation passed")

	if err := runRealloc(h); err != nil {
		log.Fatalf("realloc failed: %v", err)
	}

	fmt.Println("✅ realloc grow/shrink passed")

	if result := h.Validate(); result != heap.OK {
		log.Fatalf("final validation: %s", result)
	}

	fmt.Printf("largest live block: %d bytes\n", h.Largest())
	fmt.Println("🎉 all smoke checks passed")
}

func runChurn(h *heap.Heap, sim *region.Simulator) error {
	const n = 64

	ptrs := make([]uintptr, 0, n)

	for i := 0; i < n; i++ {
		p := h.AllocDebug(uintptr(16+i), "smoke.go", 100+i)
		if p == 0 {
			return fmt.Errorf("alloc %d: %w", i, h.LastError())
		}

		if h.Classify(p) != heap.ClassValid {
			return fmt.Errorf("alloc %d: unexpected class %s", i, h.Classify(p))
		}

		ptrs = append(ptrs, p)
	}

	for i, p := range ptrs {
		if i%2 == 0 {
			h.Free(p)
		}
	}

	for i, p := range ptrs {
		if i%2 != 0 {
			h.Free(p)
		}
	}

	if result := h.Validate(); result != heap.OK {
		return fmt.Errorf("post-churn validation: %s", result)
	}

	return sim.CheckOuterFences()
}

func runAligned(h *heap.Heap) error {
	p := h.AlignedAlloc(96)
	if p == 0 {
		return fmt.Errorf("aligned alloc: %w", h.LastError())
	}

	if p%region.PageSize != 0 {
		return fmt.Errorf("aligned alloc returned unaligned pointer %#x", p)
	}

	h.Free(p)

	return nil
}

func runRealloc(h *heap.Heap) error {
	a := h.Alloc(32)
	if a == 0 {
		return fmt.Errorf("alloc a: %w", h.LastError())
	}

	b := h.Alloc(32)
	if b == 0 {
		return fmt.Errorf("alloc b: %w", h.LastError())
	}

	for i := uintptr(0); i < 32; i++ {
		writeByte(a+i, byte(i))
	}

	grown := h.Realloc(a, 256)
	if grown == 0 {
		return fmt.Errorf("grow a: %w", h.LastError())
	}

	for i := uintptr(0); i < 32; i++ {
		if readByte(grown+i) != byte(i) {
			return fmt.Errorf("payload byte %d lost across realloc", i)
		}
	}

	shrunk := h.Realloc(grown, 8)
	if shrunk == 0 {
		return fmt.Errorf("shrink: %w", h.LastError())
	}

	h.Free(shrunk)
	h.Free(b)

	return nil
}
