package region

import (
	"fmt"
	"unsafe"
)

// outerGuardPages is the number of pages of sentinel bytes the simulator
// keeps on either side of the region it hands out, mirroring the original
// allocator's "custom_sbrk" test harness: a large static buffer with outer
// guard pages that detect the block manager writing outside the bytes it
// was actually granted.
const outerGuardPages = 1

// outerGuardByte fills every byte of both outer guard pages.
const outerGuardByte = 0xA5

// Simulator is a self-contained, in-process Expander backed by a large
// static buffer. It never talks to the operating system, which makes it
// the natural Expander for tests: it can be asked to report outer-fence
// corruption without touching a real memory mapping.
type Simulator struct {
	arena     []byte
	committed uintptr // bytes currently granted to the caller, from arena[outer:outer+committed)
	cap       uintptr // maximum bytes the simulator can ever grant
}

// NewSimulator creates a simulator capable of granting up to capacity bytes,
// rounded up to a whole number of pages.
func NewSimulator(capacity uintptr) *Simulator {
	pages := (capacity + PageSize - 1) / PageSize
	if pages == 0 {
		pages = 1
	}
	cap := pages * PageSize

	arena := make([]byte, outerGuardPages*PageSize*2+int(cap))
	for i := 0; i < outerGuardPages*PageSize; i++ {
		arena[i] = outerGuardByte
		arena[len(arena)-1-i] = outerGuardByte
	}

	return &Simulator{arena: arena, cap: cap}
}

// base returns the address of the first byte available to grant.
func (s *Simulator) base() uintptr {
	return uintptr(unsafe.Pointer(&s.arena[outerGuardPages*PageSize]))
}

// Expand implements Expander.
func (s *Simulator) Expand(delta int64) (uintptr, bool) {
	if delta == 0 {
		return s.base() + s.committed, true
	}

	if delta > 0 {
		grow := uintptr(delta)
		if s.committed+grow > s.cap {
			return 0, false
		}

		old := s.base() + s.committed
		s.committed += grow

		return old, true
	}

	shrink := uintptr(-delta)
	if shrink > s.committed {
		return 0, false
	}

	s.committed -= shrink

	return s.base() + s.committed, true
}

// CheckOuterFences reports whether the simulator's own guard pages, outside
// of anything ever granted to a caller, are still intact. This is a
// coarser, second integrity layer than the block manager's per-block
// guards: it catches the allocator writing past the region it was actually
// given, which per-block validation cannot see.
func (s *Simulator) CheckOuterFences() error {
	for i := 0; i < outerGuardPages*PageSize; i++ {
		if s.arena[i] != outerGuardByte {
			return fmt.Errorf("region: leading outer fence corrupted at byte %d", i)
		}
	}

	for i := 0; i < outerGuardPages*PageSize; i++ {
		idx := len(s.arena) - 1 - i
		if s.arena[idx] != outerGuardByte {
			return fmt.Errorf("region: trailing outer fence corrupted at byte %d", idx)
		}
	}

	return nil
}

// ReservedBytes returns the number of bytes currently granted to the caller.
func (s *Simulator) ReservedBytes() uintptr {
	return s.committed
}
