package heap

import "fenceheap/internal/region"

// debugTag carries the optional caller origin recorded by the _debug family.
type debugTag struct {
	enabled bool
	file    string
	line    int
}

func setOrigin(b *block, tag debugTag) {
	b.free = false

	if tag.enabled {
		b.fileName = tag.file
		b.fileLine = tag.line
	}
}

// paddedHeaderAddr returns the header address a block must start at, given
// a candidate starting address, so that its payload (header + guard bytes
// further on) satisfies the requested alignment. This is the one formula
// shared by the ordinary (align = wordSize) and aligned (align =
// region.PageSize) placement families; see SPEC_FULL.md's note on
// collapsing the source's four near-duplicate producers into one routine.
func paddedHeaderAddr(candidate, align uintptr) uintptr {
	probe := candidate + headerSize + guardSize
	pad := alignUp(probe, align) - probe

	return candidate + pad
}

// growPagesUntil grows the region one page at a time until satisfied
// reports true, or the Expander fails. It returns false on Expander
// failure, leaving pagesOwned at whatever was last successfully granted.
func (h *Heap) growPagesUntil(satisfied func() bool) bool {
	for !satisfied() {
		if _, ok := h.expander.Expand(region.PageSize); !ok {
			return false
		}

		h.pagesOwned++
	}

	return true
}

// place is the single entry point every producer funnels through. align is
// wordSize for the ordinary family or region.PageSize for the aligned
// family; tag carries optional debug origin.
func (h *Heap) place(size, align uintptr, tag debugTag) (*block, bool) {
	if size == 0 || !h.setUp {
		return nil, false
	}

	if h.validateLocked() != OK {
		return nil, false
	}

	if h.empty {
		return h.placeEmpty(size, align, tag)
	}

	for t := h.head; t != nil; t = t.next {
		if t.free {
			if placed, ok := h.tryReuse(t, size, align, tag); ok {
				return placed, true
			}
		}

		if t.next == nil {
			return h.growTail(t, size, align, tag)
		}
	}

	// Unreachable: the loop above always returns once it reaches the tail
	// block, and h.head is non-nil here.
	return nil, false
}

// placeEmpty implements spec.md §4.4 case 1 / §4.5's analogous empty-heap
// path: the very first live block of a fresh heap.
func (h *Heap) placeEmpty(size, align uintptr, tag debugTag) (*block, bool) {
	headerAddr := paddedHeaderAddr(h.base, align)
	pad := headerAddr - h.base

	ok := h.growPagesUntil(func() bool {
		return h.pagesOwned*region.PageSize >= pad+frame(size)
	})
	if !ok {
		return nil, false
	}

	// Alignment padding large enough to host a block of its own (the
	// aligned family's usual case) becomes a real, coalescable free block
	// spanning the gap between base and the page-aligned payload, per
	// spec.md §4.5/§8 scenario 5 — not an untracked hole.
	var lead *block
	if pad > frame(1) {
		lead = &block{headerAddr: h.base, size: pad - frame(0), free: true}
		stampGuards(lead)
		restamp(lead)
	}

	b := &block{headerAddr: headerAddr, size: size, prev: lead}
	setOrigin(b, tag)
	stampGuards(b)
	restamp(b)

	if lead != nil {
		lead.next = b
		restamp(lead)
		h.head = lead
	} else {
		h.head = b
	}

	h.empty = false

	return b, true
}

// tryReuse attempts to satisfy size by reusing free block t, honoring
// alignment. It reports ok=false when t cannot host the request — too
// small, or t's payload is not already at the requested alignment and the
// pad needed to reach it is too small to carve a leading free block — in
// which case the caller keeps walking. The pad test applies to both
// families: a free block whose payload is not word-aligned (one split off
// after a payload whose size is not a multiple of wordSize, or a leading
// pad block) is never reused by the ordinary family, because its word pad
// never exceeds frame(1).
func (h *Heap) tryReuse(t *block, size, align uintptr, tag debugTag) (*block, bool) {
	headerAddr := paddedHeaderAddr(t.headerAddr, align)
	pad := headerAddr - t.headerAddr

	if pad == 0 {
		if t.size < size {
			return nil, false
		}

		return h.splitOrFill(t, size, tag), true
	}

	// t's payload is not at the requested alignment: reusing t requires
	// carving a small leading free block spanning the pad, per spec.md §4.5. Skip t unless
	// the pad strictly exceeds frame(1): anything smaller can't host even
	// a minimal (one-byte payload) free block.
	if pad <= frame(1) {
		return nil, false
	}

	if t.end() < headerAddr+frame(size) {
		return nil, false
	}

	leadSize := pad - frame(0)

	lead := &block{headerAddr: t.headerAddr, size: leadSize, free: true, prev: t.prev, next: nil}
	live := &block{headerAddr: headerAddr, size: t.end() - headerAddr - headerSize - 2*guardSize}
	lead.next = live
	live.prev = lead
	live.next = t.next

	if t.prev != nil {
		t.prev.next = lead
	} else {
		h.head = lead
	}

	if t.next != nil {
		t.next.prev = live
		restamp(t.next)
	}

	stampGuards(lead)
	restamp(lead)

	setOrigin(live, tag)

	return h.splitOrFill(live, size, tag), true
}

// splitOrFill turns free block t, already known to have t.size >= size,
// into a live block of exactly size, carving a trailing free block out of
// any slack large enough to host one (spec.md §4.4's "split-if-profitable"),
// or simply shrinking t in place and leaving unreachable trailing slack
// when a split would not be profitable.
func (h *Heap) splitOrFill(t *block, size uintptr, tag debugTag) *block {
	tailHeader := t.headerAddr + frame(size)
	limit := t.end()

	if t.next != nil && t.next.headerAddr < limit {
		limit = t.next.headerAddr
	}

	if limit >= tailHeader+frame(1) {
		free := &block{
			headerAddr: tailHeader,
			size:       limit - tailHeader - headerSize - 2*guardSize,
			free:       true,
			prev:       t,
			next:       t.next,
		}
		if t.next != nil {
			t.next.prev = free
		}

		t.next = free
		stampGuards(free)
		restamp(free)

		if free.next != nil {
			restamp(free.next)
		}
	}

	t.size = size
	setOrigin(t, tag)
	stampGuards(t)
	restamp(t)

	if t.prev != nil {
		restamp(t.prev)
	}

	return t
}

// growTail implements spec.md §4.4 case 3 / §4.5's tail-growth analogue:
// t is the current tail block (live or free); grow the region until there
// is room for size bytes, aligned, immediately after t, then splice a new
// live block onto the end of the list.
func (h *Heap) growTail(t *block, size, align uintptr, tag debugTag) (*block, bool) {
	headerAddr := paddedHeaderAddr(t.end(), align)
	pad := headerAddr - t.end()

	ok := h.growPagesUntil(func() bool {
		return h.base+h.pagesOwned*region.PageSize >= headerAddr+frame(size)
	})
	if !ok {
		return nil, false
	}

	if pad > 0 && pad <= frame(1) {
		// Not enough room to carve a free pad block; the live block simply
		// starts at the next aligned address and the pad bytes sit in the
		// untracked gap between t and the new block (spec.md §4.5's tail
		// case, leading-pad subcase).
	} else if pad > frame(1) {
		padBlock := &block{headerAddr: t.end(), size: pad - frame(0), free: true, prev: t, next: nil}
		t.next = padBlock
		restamp(t)
		stampGuards(padBlock)
		restamp(padBlock)
		t = padBlock
	}

	live := &block{headerAddr: headerAddr, size: size, prev: t}
	t.next = live
	setOrigin(live, tag)
	stampGuards(live)
	restamp(live)
	restamp(t)

	return live, true
}
