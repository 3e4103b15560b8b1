package heap

import (
	"encoding/binary"
	"unsafe"
)

// Geometry constants. These are fixed per build and enter every address
// calculation the block manager performs.
const (
	// guardSize is the width, in bytes, of each of the two guard zones
	// surrounding a block's payload.
	guardSize = 4

	// headerSize is the number of bytes every block reserves for its
	// metadata, whether or not that metadata is literally stored inline.
	// See DESIGN.md for why the header record itself lives in ordinary Go
	// memory rather than inside the region.
	headerSize = 64

	// leftGuardByte and rightGuardByte are the sentinel values stamped
	// into a block's two guard zones.
	leftGuardByte  = 'f'
	rightGuardByte = 'F'
)

// wordSize is the natural alignment for the ordinary allocation family.
var wordSize = uintptr(unsafe.Sizeof(uintptr(0)))

// frame returns the total byte span a block of payload size s occupies:
// header + two guards + payload.
func frame(size uintptr) uintptr {
	return headerSize + 2*guardSize + size
}

// alignUp rounds x up to the nearest multiple of a. a must be a power of two.
func alignUp(x, a uintptr) uintptr {
	return (x + a - 1) &^ (a - 1)
}

// block is the in-band metadata record for one heap block. It is kept as an
// ordinary Go-heap object — not overlaid on the raw region bytes — because
// the region is either an anonymous mmap or a plain byte arena the Go
// garbage collector cannot scan; storing live Go pointers (prev/next)
// inside it would be unsafe. The block still reserves headerSize bytes of
// real region space per the geometry above, so every offset computation
// behaves exactly as if the header were stored in-band.
type block struct {
	prev, next *block

	headerAddr uintptr // address of this block's reserved header span
	size       uintptr // payload size in bytes
	free       bool

	fileLine int
	fileName string

	checksum uintptr
}

// leftGuardAddr, payloadAddr and rightGuardAddr locate the three spans that
// follow a block's header span.
func (b *block) leftGuardAddr() uintptr  { return b.headerAddr + headerSize }
func (b *block) payloadAddr() uintptr    { return b.headerAddr + headerSize + guardSize }
func (b *block) rightGuardAddr() uintptr { return b.payloadAddr() + b.size }
func (b *block) end() uintptr            { return b.rightGuardAddr() + guardSize }

// computeChecksum sums every byte of the header's logical, non-checksum
// fields. Addresses of neighbors are folded in by their header address
// rather than by Go pointer value, which keeps the checksum a pure,
// reproducible function of state instead of an artifact of where the Go
// runtime happened to place an object.
func computeChecksum(b *block) uintptr {
	var buf [8]byte
	var sum uintptr

	sumUint := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		for _, c := range buf {
			sum += uintptr(c)
		}
	}

	sumUint(uint64(b.headerAddr))
	sumUint(uint64(b.size))

	if b.free {
		sum++
	}

	sumUint(uint64(b.fileLine))

	for i := 0; i < len(b.fileName); i++ {
		sum += uintptr(b.fileName[i])
	}

	if b.prev != nil {
		sumUint(uint64(b.prev.headerAddr))
	}

	if b.next != nil {
		sumUint(uint64(b.next.headerAddr))
	}

	return sum
}

// restamp recomputes b's checksum in place. Call it whenever any field
// other than the checksum itself changes.
func restamp(b *block) {
	b.checksum = computeChecksum(b)
}

// byteAt reads the byte at an arbitrary region address.
func byteAt(addr uintptr) byte {
	return *(*byte)(unsafe.Pointer(addr))
}

// setByteAt writes the byte at an arbitrary region address.
func setByteAt(addr uintptr, v byte) {
	*(*byte)(unsafe.Pointer(addr)) = v
}

// stampGuards writes guardSize bytes of leftGuardByte immediately after the
// header and guardSize bytes of rightGuardByte immediately after the
// payload. Called whenever a block is created or its size changes.
func stampGuards(b *block) {
	left := b.leftGuardAddr()
	for i := uintptr(0); i < guardSize; i++ {
		setByteAt(left+i, leftGuardByte)
	}

	right := b.rightGuardAddr()
	for i := uintptr(0); i < guardSize; i++ {
		setByteAt(right+i, rightGuardByte)
	}
}

// guardsIntact reports whether both of b's guard zones still hold their
// sentinel bytes.
func guardsIntact(b *block) bool {
	left := b.leftGuardAddr()
	for i := uintptr(0); i < guardSize; i++ {
		if byteAt(left+i) != leftGuardByte {
			return false
		}
	}

	right := b.rightGuardAddr()
	for i := uintptr(0); i < guardSize; i++ {
		if byteAt(right+i) != rightGuardByte {
			return false
		}
	}

	return true
}
