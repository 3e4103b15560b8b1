// Package heap implements the block manager: a first-fit, address-ordered,
// in-band-metadata allocator over a single region grown one page at a time
// from an external Expander. See SPEC_FULL.md for the full contract.
package heap

import (
	"log"
	"sync"

	"fenceheap/internal/region"
)

// ValidationResult is the outcome of Validate.
type ValidationResult int

const (
	OK ValidationResult = iota
	FencesCorrupted
	Uninitialized
	ControlCorrupted
)

func (r ValidationResult) String() string {
	switch r {
	case OK:
		return "OK"
	case FencesCorrupted:
		return "FENCES_CORRUPTED"
	case Uninitialized:
		return "UNINITIALIZED"
	case ControlCorrupted:
		return "CONTROL_CORRUPTED"
	default:
		return "UNKNOWN"
	}
}

// PointerClass is the result of Classify.
type PointerClass int

const (
	ClassNull PointerClass = iota
	ClassHeapCorrupted
	ClassControlBlock
	ClassInsideFences
	ClassInsideDataBlock
	ClassUnallocated
	ClassValid
)

func (c PointerClass) String() string {
	switch c {
	case ClassNull:
		return "null"
	case ClassHeapCorrupted:
		return "heap-corrupted"
	case ClassControlBlock:
		return "control-block"
	case ClassInsideFences:
		return "inside-fences"
	case ClassInsideDataBlock:
		return "inside-data-block"
	case ClassUnallocated:
		return "unallocated"
	case ClassValid:
		return "valid"
	default:
		return "unknown"
	}
}

// Config carries the tunables every producer entry point consults.
type Config struct {
	EnableDebugOrigin bool // record (file, line) for debug-family allocations
}

// Option mutates a Config. Mirrors the functional-options shape used
// throughout the allocator this package's ambient stack is modeled on.
type Option func(*Config)

// WithDebugOrigin enables caller file/line recording for the debug family.
func WithDebugOrigin(enabled bool) Option {
	return func(c *Config) { c.EnableDebugOrigin = enabled }
}

func defaultConfig() Config {
	return Config{EnableDebugOrigin: true}
}

// Heap is one independently lockable instance of the block manager. It owns
// exactly one region, grown page by page from its Expander.
type Heap struct {
	mu sync.Mutex

	expander region.Expander
	cfg      Config
	Logger   *log.Logger // nil disables logging; the happy path never logs.

	base       uintptr
	pagesOwned uintptr
	head       *block
	empty      bool
	setUp      bool

	lastErr error // richer reason behind the most recent NULL/no-op result
}

// New creates a heap over the given Expander. It does not call Setup.
func New(expander region.Expander, opts ...Option) *Heap {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Heap{expander: expander, cfg: cfg}
}

// Setup acquires exactly one page from the Expander and readies the heap
// for allocation. Returns an error on Expander failure.
func (h *Heap) Setup() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	addr, ok := h.expander.Expand(region.PageSize)
	if !ok {
		return region.ErrExpansionFailed
	}

	h.base = addr
	h.pagesOwned = 1
	h.head = nil
	h.empty = true
	h.setUp = true

	return nil
}

// Teardown releases every page the heap owns in one negative expansion and
// resets all state. It is a no-op if the heap was never set up.
func (h *Heap) Teardown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.setUp {
		return
	}

	h.expander.Expand(-int64(h.pagesOwned) * region.PageSize)

	h.base = 0
	h.pagesOwned = 0
	h.head = nil
	h.empty = true
	h.setUp = false
}

// Largest returns the payload size of the largest live block, or zero if
// the heap is empty or fails validation.
func (h *Heap) Largest() uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.validateLocked() != OK {
		return 0
	}

	var max uintptr

	for b := h.head; b != nil; b = b.next {
		if !b.free && b.size > max {
			max = b.size
		}
	}

	return max
}

func (h *Heap) logf(format string, args ...interface{}) {
	if h.Logger != nil {
		h.Logger.Printf(format, args...)
	}
}
