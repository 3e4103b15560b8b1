package heap

// blockOf locates the live block whose payload starts at addr, or nil if
// addr is not exactly the start of a live payload.
func (h *Heap) blockOf(addr uintptr) *block {
	for b := h.head; b != nil; b = b.next {
		if b.payloadAddr() == addr {
			if b.free {
				return nil
			}

			return b
		}
	}

	return nil
}

// free marks b released and coalesces it with any free neighbors. Callers
// must hold h.mu and must have already validated the heap.
func (h *Heap) free(b *block) {
	b.free = true

	if b.prev != nil && b.prev.free {
		b = mergeBlocks(b.prev, b)
	}

	if b.next != nil && b.next.free {
		b = mergeBlocks(b, b.next)
	}

	if b.next != nil {
		b.size = b.next.headerAddr - b.payloadAddr() - guardSize
	}

	stampGuards(b)
	restamp(b)

	if b.prev != nil {
		restamp(b.prev)
	}

	if b.next != nil {
		restamp(b.next)
	}
}

// mergeBlocks absorbs p2 into p1: p1 takes over p2's forward link and grows
// to cover p2's header and payload. It does not stamp guards or recompute
// checksums; callers do that once after all merging for a given free is
// done, per spec.md §4.7.
func mergeBlocks(p1, p2 *block) *block {
	p1.next = p2.next
	if p2.next != nil {
		p2.next.prev = p1
	}

	p1.size = p1.size + p2.size + headerSize

	return p1
}
