package heap

import (
	"fenceheap/internal/errors"
	"fenceheap/internal/region"
)

// LastError returns the StandardError behind the most recent call that
// returned a zero pointer or was a silent no-op, or nil if that call
// succeeded.
func (h *Heap) LastError() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.lastErr
}

func (h *Heap) fail(err error) uintptr {
	h.lastErr = err
	h.logf("fenceheap: %v", err)

	return 0
}

// Alloc returns a word-aligned pointer to size payload bytes, or 0 (NULL) on
// failure: size == 0, an uninitialized or corrupted heap, or OOM.
func (h *Heap) Alloc(size uintptr) uintptr {
	return h.allocTagged(size, wordSize, debugTag{})
}

// AllocDebug is Alloc, additionally recording the caller's file and line in
// the block it creates.
func (h *Heap) AllocDebug(size uintptr, file string, line int) uintptr {
	return h.allocTagged(size, wordSize, debugTag{enabled: true, file: file, line: line})
}

// AlignedAlloc is Alloc with the returned payload pointer page-aligned.
func (h *Heap) AlignedAlloc(size uintptr) uintptr {
	return h.allocTagged(size, region.PageSize, debugTag{})
}

// AlignedAllocDebug is AlignedAlloc, recording the caller's file and line.
func (h *Heap) AlignedAllocDebug(size uintptr, file string, line int) uintptr {
	return h.allocTagged(size, region.PageSize, debugTag{enabled: true, file: file, line: line})
}

func (h *Heap) allocTagged(size, align uintptr, tag debugTag) uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()

	tag.enabled = tag.enabled && h.cfg.EnableDebugOrigin

	if size == 0 {
		return h.fail(errors.InvalidSize(size, "alloc"))
	}

	if !h.setUp {
		return h.fail(errors.NotSetUp("alloc"))
	}

	if h.validateLocked() != OK {
		return h.fail(errors.HeapCorrupted(h.validateLocked().String()))
	}

	b, placed := h.place(size, align, tag)
	if !placed {
		return h.fail(errors.ExpansionFailed(region.PageSize))
	}

	h.lastErr = nil

	return b.payloadAddr()
}

// Zalloc is Alloc(n*size) followed by a zero-fill of the payload. It
// returns 0 if n or size is zero, or if n*size overflows uintptr.
func (h *Heap) Zalloc(n, size uintptr) uintptr {
	return h.zallocTagged(n, size, wordSize, debugTag{})
}

// ZallocDebug is Zalloc, recording the caller's file and line.
func (h *Heap) ZallocDebug(n, size uintptr, file string, line int) uintptr {
	return h.zallocTagged(n, size, wordSize, debugTag{enabled: true, file: file, line: line})
}

// AlignedZalloc is Zalloc with the returned payload pointer page-aligned.
func (h *Heap) AlignedZalloc(n, size uintptr) uintptr {
	return h.zallocTagged(n, size, region.PageSize, debugTag{})
}

// AlignedZallocDebug is AlignedZalloc, recording the caller's file and line.
func (h *Heap) AlignedZallocDebug(n, size uintptr, file string, line int) uintptr {
	return h.zallocTagged(n, size, region.PageSize, debugTag{enabled: true, file: file, line: line})
}

func (h *Heap) zallocTagged(n, size, align uintptr, tag debugTag) uintptr {
	if n == 0 || size == 0 {
		h.mu.Lock()
		h.fail(errors.InvalidSize(0, "zalloc"))
		h.mu.Unlock()

		return 0
	}

	if n > 0 && size > (^uintptr(0))/n {
		h.mu.Lock()
		h.fail(errors.SizeOverflow(n, size))
		h.mu.Unlock()

		return 0
	}

	total := n * size

	h.mu.Lock()
	defer h.mu.Unlock()

	tag.enabled = tag.enabled && h.cfg.EnableDebugOrigin

	if !h.setUp {
		return h.fail(errors.NotSetUp("zalloc"))
	}

	if h.validateLocked() != OK {
		return h.fail(errors.HeapCorrupted(h.validateLocked().String()))
	}

	b, placed := h.place(total, align, tag)
	if !placed {
		return h.fail(errors.ExpansionFailed(region.PageSize))
	}

	zeroFill(b.payloadAddr(), b.size)
	h.lastErr = nil

	return b.payloadAddr()
}

// Realloc implements spec.md §4.6 for the ordinary family: realloc(NULL, 0)
// fails, realloc(NULL, s>0) behaves as Alloc(s), realloc(p, 0) frees p and
// returns 0, and otherwise p is resized in place or relocated, preserving
// its payload bytes.
func (h *Heap) Realloc(p, size uintptr) uintptr {
	return h.reallocTagged(p, size, wordSize, debugTag{})
}

// ReallocDebug is Realloc, recording the caller's file and line on any
// block the call creates.
func (h *Heap) ReallocDebug(p, size uintptr, file string, line int) uintptr {
	return h.reallocTagged(p, size, wordSize, debugTag{enabled: true, file: file, line: line})
}

// AlignedRealloc is Realloc with any newly created block's payload pointer
// page-aligned.
func (h *Heap) AlignedRealloc(p, size uintptr) uintptr {
	return h.reallocTagged(p, size, region.PageSize, debugTag{})
}

// AlignedReallocDebug is AlignedRealloc, recording the caller's file and line.
func (h *Heap) AlignedReallocDebug(p, size uintptr, file string, line int) uintptr {
	return h.reallocTagged(p, size, region.PageSize, debugTag{enabled: true, file: file, line: line})
}

func (h *Heap) reallocTagged(p, size, align uintptr, tag debugTag) uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()

	tag.enabled = tag.enabled && h.cfg.EnableDebugOrigin

	if p == 0 && size == 0 {
		return h.fail(errors.InvalidSize(0, "realloc"))
	}

	if !h.setUp {
		return h.fail(errors.NotSetUp("realloc"))
	}

	if h.validateLocked() != OK {
		return h.fail(errors.HeapCorrupted(h.validateLocked().String()))
	}

	if p == 0 {
		b, placed := h.place(size, align, tag)
		if !placed {
			return h.fail(errors.ExpansionFailed(region.PageSize))
		}

		h.lastErr = nil

		return b.payloadAddr()
	}

	b := h.blockOf(p)
	if b == nil {
		return h.fail(errors.InvalidPointer(p, h.classifyLocked(p).String(), "realloc"))
	}

	if size == 0 {
		h.free(b)
		h.lastErr = nil

		return 0
	}

	addr, ok := h.reallocBlock(b, size, align, tag)
	if !ok {
		return h.fail(errors.ExpansionFailed(region.PageSize))
	}

	h.lastErr = nil

	return addr
}

// Free releases p. It is a no-op if p is NULL or is not a live payload
// pointer, per spec.md §4.7.
func (h *Heap) Free(p uintptr) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if p == 0 {
		return
	}

	if !h.setUp {
		h.fail(errors.NotSetUp("free"))
		return
	}

	if result := h.validateLocked(); result != OK {
		h.fail(errors.HeapCorrupted(result.String()))
		return
	}

	b := h.blockOf(p)
	if b == nil {
		h.fail(errors.InvalidPointer(p, h.classifyLocked(p).String(), "free"))
		return
	}

	h.free(b)
	h.lastErr = nil
}

// zeroFill writes n zero bytes starting at addr.
func zeroFill(addr, n uintptr) {
	for i := uintptr(0); i < n; i++ {
		setByteAt(addr+i, 0)
	}
}
