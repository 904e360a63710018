package hostabi

import "unsafe"

// addrOf returns the virtual address backing an mmap'd slice, the address
// TILT code treats as a Ptr value. This is the one place Native's Go view
// of memory and the JIT's native view agree on a concrete number.
func addrOf(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&b[0])))
}
