package main

import "unsafe"

func writeByte(addr uintptr, v byte) {
	*(*byte)(unsafe.Pointer(addr)) = v
}

func readByte(addr uintptr) byte {
	return *(*byte)(unsafe.Pointer(addr))
}
