package hostabi

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"tilt/internal/types"
)

// Native backs the JIT engine. Unlike Simulated it hands out real process
// addresses: each allocation is its own anonymous mmap region, so a pointer
// TILT code computes is a genuine virtual address a native function pointer
// can dereference (spec §4.3 "real function pointers, stable calling
// convention"). The JIT-compiled machine code itself calls straight into
// libc's malloc/free/printf for alloc/free/print_i32 (see internal/jit);
// this type lets Go code (today, this package's tests) exercise the same
// ABI contract without going through a compiled .so.
type Native struct {
	mu      sync.Mutex
	regions map[uint64][]byte
}

func NewNative() *Native {
	return &Native{regions: map[uint64][]byte{}}
}

func (n *Native) Alloc(size int64) (uint64, error) {
	if size <= 0 {
		return 0, faultf("alloc: invalid size %d", size)
	}
	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return 0, abiErrorf("native alloc failed: %v", err)
	}
	addr := addrOf(mem)
	n.mu.Lock()
	n.regions[addr] = mem
	n.mu.Unlock()
	return addr, nil
}

func (n *Native) Free(ptr uint64) error {
	n.mu.Lock()
	mem, ok := n.regions[ptr]
	if ok {
		delete(n.regions, ptr)
	}
	n.mu.Unlock()
	if !ok {
		return faultf("free: invalid or already-freed pointer 0x%x", ptr)
	}
	if err := unix.Munmap(mem); err != nil {
		return abiErrorf("native free failed: %v", err)
	}
	return nil
}

func (n *Native) Load(ptr uint64, t types.Type) (uint64, error) {
	size, err := types.SizeOf(t)
	if err != nil {
		return 0, abiErrorf("load: %v", err)
	}
	mem, off, err := n.resolve(ptr, size)
	if err != nil {
		return 0, err
	}
	return decodeLE[uint64](mem[off : off+size]), nil
}

func (n *Native) Store(ptr uint64, t types.Type, bits uint64) error {
	size, err := types.SizeOf(t)
	if err != nil {
		return abiErrorf("store: %v", err)
	}
	mem, off, err := n.resolve(ptr, size)
	if err != nil {
		return err
	}
	copy(mem[off:off+size], encodeLE(bits, int(size)))
	return nil
}

// PtrAdd on the native ABI is plain pointer arithmetic: addresses are real,
// so no token bookkeeping is needed.
func (n *Native) PtrAdd(ptr uint64, off int64) uint64 {
	return uint64(int64(ptr) + off)
}

func (n *Native) PrintI32(v int32) error {
	_, err := fmt.Fprintln(os.Stdout, v)
	return err
}

func (n *Native) resolve(ptr uint64, size int64) ([]byte, int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for base, mem := range n.regions {
		if ptr >= base && ptr < base+uint64(len(mem)) {
			off := int64(ptr - base)
			if off+size > int64(len(mem)) {
				return nil, 0, faultf("out-of-bounds access at 0x%x (size %d)", ptr, size)
			}
			return mem, off, nil
		}
	}
	return nil, 0, faultf("invalid pointer 0x%x", ptr)
}
