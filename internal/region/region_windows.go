//go:build windows

package region

import (
	"fmt"
	"sync"

	"golang.org/x/sys/windows"
)

// Windows is an Expander backed by VirtualAlloc's reserve/commit model: the
// address range is reserved once with MEM_RESERVE and pages are committed
// or decommitted as the region grows or shrinks, exactly mirroring the
// mmap/mprotect shape of the Unix expander so both sides of the build
// honor the same "base address never moves" contract.
type Windows struct {
	mu        sync.Mutex
	base      uintptr
	committed uintptr
	reserved  uintptr
}

// NewWindows reserves a fresh address range and returns an Expander over it.
func NewWindows() (*Windows, error) {
	addr, err := windows.VirtualAlloc(0, reserveBytes, windows.MEM_RESERVE, windows.PAGE_NOACCESS)
	if err != nil {
		return nil, fmt.Errorf("region: reserve address range: %w", err)
	}

	return &Windows{base: addr, reserved: reserveBytes}, nil
}

// Expand implements Expander.
func (w *Windows) Expand(delta int64) (uintptr, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if delta > 0 {
		grow := uintptr(delta)
		if w.committed+grow > w.reserved {
			return 0, false
		}

		if _, err := windows.VirtualAlloc(w.base+w.committed, grow, windows.MEM_COMMIT, windows.PAGE_READWRITE); err != nil {
			return 0, false
		}

		old := w.base + w.committed
		w.committed += grow

		return old, true
	}

	shrink := uintptr(-delta)
	if shrink > w.committed {
		return 0, false
	}

	_ = windows.VirtualFree(w.base+w.committed-shrink, shrink, windows.MEM_DECOMMIT)
	w.committed -= shrink

	return w.base + w.committed, true
}

// Close releases the entire reservation.
func (w *Windows) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return windows.VirtualFree(w.base, 0, windows.MEM_RELEASE)
}
