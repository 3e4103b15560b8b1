//go:build unix

package region

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// addrSlice reassembles a []byte view over a raw address range so it can be
// passed to the golang.org/x/sys/unix calls, which operate on byte slices
// rather than addresses. The memory itself is never touched by Go's
// allocator; this only ever wraps bytes already owned by the mmap
// reservation made in NewUnix.
func addrSlice(addr, length uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(length))
}

// Unix is an Expander backed by an anonymous mmap reservation. It follows
// the same reserve-then-commit shape as allocateSystemMemory in the
// region allocator this package is adapted from: map a large PROT_NONE
// range once, then grow/shrink the live, accessible prefix of it with
// mprotect instead of remapping.
type Unix struct {
	mu        sync.Mutex
	base      uintptr
	committed uintptr
	reserved  uintptr
}

// NewUnix reserves a fresh address range and returns an Expander over it.
func NewUnix() (*Unix, error) {
	mem, err := unix.Mmap(-1, 0, reserveBytes, unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("region: reserve address range: %w", err)
	}

	return &Unix{
		base:     uintptr(unsafe.Pointer(unsafe.SliceData(mem))),
		reserved: reserveBytes,
	}, nil
}

// Expand implements Expander.
func (u *Unix) Expand(delta int64) (uintptr, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if delta > 0 {
		grow := uintptr(delta)
		if u.committed+grow > u.reserved {
			return 0, false
		}

		region := addrSlice(u.base+u.committed, grow)
		if err := unix.Mprotect(region, unix.PROT_READ|unix.PROT_WRITE); err != nil {
			return 0, false
		}

		old := u.base + u.committed
		u.committed += grow

		return old, true
	}

	shrink := uintptr(-delta)
	if shrink > u.committed {
		return 0, false
	}

	region := addrSlice(u.base+u.committed-shrink, shrink)
	_ = unix.Mprotect(region, unix.PROT_NONE)
	_ = unix.Madvise(region, unix.MADV_DONTNEED)
	u.committed -= shrink

	return u.base + u.committed, true
}

// Close releases the entire reservation. It is not part of the Expander
// contract (the block manager never unreserves mid-lifetime); it exists so
// process-level cleanup (tests, long-running daemons cycling heaps) can
// give the address range back to the OS.
func (u *Unix) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	region := addrSlice(u.base, u.reserved)

	return unix.Munmap(region)
}
