// Package region implements the page-granularity region expander the block
// manager grows against: a single contiguous, monotonically growing byte
// region obtained one page at a time from the host, modeled after the
// classic program-break call.
package region

import "fmt"

// PageSize is the fixed page granularity every Expander call operates on.
// The block manager never requests or releases anything that is not a
// whole multiple of PageSize.
const PageSize = 4096

// reserveBytes is the size of the virtual address range the OS-backed
// expanders reserve up front. Reserving the whole range once and only ever
// committing pages inside it means the base address returned by the first
// Expand call never moves, which the block manager's address-ordered list
// depends on.
const reserveBytes = 1 << 32 // 4GiB of address space, not memory

// Expander grows or shrinks a single contiguous byte region by whole pages.
//
// Expand(delta) with delta > 0 grows the region by delta bytes and returns
// the address of the first newly granted byte (the old end of the region).
// Expand(delta) with delta < 0 releases |delta| bytes from the end of the
// region; its return address is unused by callers. Expand never partially
// succeeds: on failure the region is left exactly as it was.
type Expander interface {
	Expand(delta int64) (addr uintptr, ok bool)
}

// ErrExpansionFailed is returned by callers that want an error value instead
// of the raw ok=false the Expander contract uses internally.
var ErrExpansionFailed = fmt.Errorf("region: expansion failed")
