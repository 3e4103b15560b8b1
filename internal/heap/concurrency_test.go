package heap

import (
	"context"
	"testing"

	"fenceheap/internal/region"
	"fenceheap/internal/testrunner/concurrency"
)

// TestConcurrentAllocFreeUnderScheduler drives several goroutines through
// Alloc/Free churn, each admitted through a concurrency.Scheduler. The
// workers never yield back to the scheduler, so once admitted they run
// concurrently as the Go runtime schedules them. It exercises spec.md §5's
// claim that the heap's single mutex makes every public entry point safe to
// call from multiple threads.
func TestConcurrentAllocFreeUnderScheduler(t *testing.T) {
	sim := region.NewSimulator(64 * region.PageSize)
	h := New(sim)

	if err := h.Setup(); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer h.Teardown()

	const workers = 8
	const itersPerWorker = 32

	sched := concurrency.New(concurrency.Options{Seed: 1, Quantum: 3})

	for w := 0; w < workers; w++ {
		sched.Go(func(ctx context.Context, s *concurrency.Scheduler) {
			for i := 0; i < itersPerWorker; i++ {
				p := h.Alloc(uintptr(8 + i%64))
				if p == 0 {
					continue
				}

				if h.Classify(p) != ClassValid {
					t.Errorf("Classify(p) != valid mid-churn")
				}

				h.Free(p)
			}
		})
	}

	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("scheduler run: %v", err)
	}

	if got := h.Validate(); got != OK {
		t.Errorf("Validate() after concurrent churn = %s, want OK", got)
	}
}
