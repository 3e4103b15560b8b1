package heap

import (
	"unsafe"

	"fenceheap/internal/region"
)

// copyPayload copies n bytes from src to dst, both region addresses. Used
// only by the relocation path of reallocBlock.
func copyPayload(dst, src, n uintptr) {
	dstSlice := unsafe.Slice((*byte)(unsafe.Pointer(dst)), int(n))
	srcSlice := unsafe.Slice((*byte)(unsafe.Pointer(src)), int(n))
	copy(dstSlice, srcSlice)
}

// reallocBlock implements spec.md §4.6 for an already-resolved live block b.
// Callers hold h.mu and have already handled the p==nil / size==0 cases.
func (h *Heap) reallocBlock(b *block, newSize, align uintptr, tag debugTag) (uintptr, bool) {
	if b.size == newSize {
		return b.payloadAddr(), true
	}

	if b.size > newSize {
		shrunk := h.splitOrFill(b, newSize, tag)
		return shrunk.payloadAddr(), true
	}

	// Growing. Try, in order: absorb a free right neighbor; widen into
	// untracked slack before a live right neighbor; relocate; or, if b is
	// the tail, grow the region and widen in place.
	if b.next != nil && b.next.free && b.next.end()-b.headerAddr >= frame(newSize) {
		absorbed := b.next
		b.next = absorbed.next

		if absorbed.next != nil {
			absorbed.next.prev = b
		}

		b.size = newSize
		stampGuards(b)
		restamp(b)

		if b.next != nil {
			restamp(b.next)
		}

		return b.payloadAddr(), true
	}

	if b.next != nil && b.next.headerAddr-b.headerAddr >= frame(newSize) {
		b.size = newSize
		stampGuards(b)
		restamp(b)

		if b.prev != nil {
			restamp(b.prev)
		}

		if b.next != nil {
			restamp(b.next)
		}

		return b.payloadAddr(), true
	}

	if b.next != nil {
		fresh, ok := h.place(newSize, align, tag)
		if !ok {
			return 0, false
		}

		copyPayload(fresh.payloadAddr(), b.payloadAddr(), b.size)
		h.free(b)

		return fresh.payloadAddr(), true
	}

	// b is the tail: grow the region until there is room, then widen.
	ok := h.growPagesUntil(func() bool {
		return h.base+h.pagesOwned*region.PageSize >= b.headerAddr+frame(newSize)
	})
	if !ok {
		return 0, false
	}

	b.size = newSize
	stampGuards(b)
	restamp(b)

	if b.prev != nil {
		restamp(b.prev)
	}

	return b.payloadAddr(), true
}
