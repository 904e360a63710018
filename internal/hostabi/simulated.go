package hostabi

import (
	"fmt"
	"sync"

	"golang.org/x/exp/constraints"
	"golang.org/x/sys/unix"

	"tilt/internal/types"
)

// block is one live or freed allocation in the simulated heap.
type block struct {
	data []byte
	freed bool
}

// Simulated is a Go-level host ABI backing the VM (spec §4.4). Addresses are
// opaque tokens, not real pointers: token 0 is reserved as the null pointer,
// and every other address packs a byte offset, a block index and a
// generation (see the token layout below) so that a stale pointer into a
// freed-and-reused slot is detected rather than silently aliased.
type Simulated struct {
	mu     sync.Mutex
	blocks []block
	gen    []uint32
	free   []int // recycled slot indices

	pageSize int
}

// NewSimulated builds an empty simulated heap. The host page size (queried
// once via unix.Getpagesize, not hardcoded) is recorded in pageSize; nothing
// in this package reads it, so it has no effect on TILT programs.
func NewSimulated() *Simulated {
	return &Simulated{pageSize: unix.Getpagesize()}
}

func (s *Simulated) Alloc(size int64) (uint64, error) {
	if size < 0 {
		return 0, faultf("alloc: negative size %d", size)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var idx int
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
		s.blocks[idx] = block{data: make([]byte, size)}
		s.gen[idx]++
	} else {
		idx = len(s.blocks)
		s.blocks = append(s.blocks, block{data: make([]byte, size)})
		s.gen = append(s.gen, 1)
	}
	return encodeToken(idx, s.gen[idx]), nil
}

func (s *Simulated) Free(ptr uint64) error {
	if ptr == 0 {
		return faultf("free: null pointer")
	}
	idx, gen, ok := decodeToken(ptr)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ok || idx >= len(s.blocks) || s.gen[idx] != gen {
		return faultf("free: invalid pointer 0x%x", ptr)
	}
	if offsetOf(ptr) != 0 {
		return faultf("free: pointer 0x%x is not the start of an allocation", ptr)
	}
	if s.blocks[idx].freed {
		return faultf("free: double free of pointer 0x%x", ptr)
	}
	s.blocks[idx] = block{freed: true}
	s.free = append(s.free, idx)
	return nil
}

func (s *Simulated) Load(ptr uint64, t types.Type) (uint64, error) {
	size, err := types.SizeOf(t)
	if err != nil {
		return 0, abiErrorf("load: %v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, off, err := s.resolve(ptr)
	if err != nil {
		return 0, err
	}
	if off < 0 || off+size > int64(len(b.data)) {
		return 0, faultf("load: out-of-bounds access at 0x%x (size %d)", ptr, size)
	}
	return decodeLE[uint64](b.data[off : off+size]), nil
}

func (s *Simulated) Store(ptr uint64, t types.Type, bits uint64) error {
	size, err := types.SizeOf(t)
	if err != nil {
		return abiErrorf("store: %v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, off, err := s.resolve(ptr)
	if err != nil {
		return err
	}
	if off < 0 || off+size > int64(len(b.data)) {
		return faultf("store: out-of-bounds access at 0x%x (size %d)", ptr, size)
	}
	copy(b.data[off:off+size], encodeLE(bits, int(size)))
	return nil
}

func (s *Simulated) PrintI32(v int32) error {
	fmt.Println(v)
	return nil
}

// resolve decodes a token back into its backing block and the byte offset
// within it. The offset lives in the token's low bits (see the token layout
// below); ptr.add changes only those bits, so a load/store through a
// ptr.add result addresses the same block at the recorded offset.
func (s *Simulated) resolve(ptr uint64) (*block, int64, error) {
	idx, gen, ok := decodeToken(ptr)
	if !ok || idx >= len(s.blocks) {
		return nil, 0, faultf("invalid pointer 0x%x", ptr)
	}
	if s.gen[idx] != gen {
		return nil, 0, faultf("use-after-free of pointer 0x%x", ptr)
	}
	b := &s.blocks[idx]
	if b.freed {
		return nil, 0, faultf("use-after-free of pointer 0x%x", ptr)
	}
	off := int64(offsetOf(ptr))
	return b, off, nil
}

// PtrAdd computes a new token offset by off bytes within the same block,
// the semantics ptr.add requires (spec §3: pointer arithmetic, no
// reallocation). A negative or out-of-range offset is caught on next use,
// not eagerly, matching how load/store report the fault.
func (s *Simulated) PtrAdd(ptr uint64, off int64) uint64 {
	idx, gen, ok := decodeToken(ptr)
	if !ok {
		return ptr
	}
	return encodeTokenWithOffset(idx, gen, offsetOf(ptr)+off)
}

// Token layout: bits 0-19 offset, bits 20-51 block index, bits 52-63
// generation. This keeps the common case (offset 0, small index/generation)
// readable in diagnostics while fitting in a single uint64 value.
const (
	offsetBits = 20
	indexBits  = 32
)

func encodeToken(idx int, gen uint32) uint64 {
	return encodeTokenWithOffset(idx, gen, 0)
}

func encodeTokenWithOffset(idx int, gen uint32, off int64) uint64 {
	return (uint64(gen) << (offsetBits + indexBits)) | (uint64(uint32(idx)) << offsetBits) | uint64(uint32(off)&((1<<offsetBits)-1))
}

func decodeToken(tok uint64) (idx int, gen uint32, ok bool) {
	if tok == 0 {
		return 0, 0, false
	}
	idx = int(uint32(tok>>offsetBits) & ((1 << indexBits) - 1))
	gen = uint32(tok >> (offsetBits + indexBits))
	return idx, gen, true
}

func offsetOf(tok uint64) int64 {
	return int64(int32(tok & ((1 << offsetBits) - 1)))
}

// Integer is the set of TILT integer representations the little-endian
// codec below serves; defined in terms of constraints.Integer so one
// generic pair of functions covers I32/I64/Ptr instead of three hand-copies.
type Integer interface {
	constraints.Integer
}

func encodeLE[T Integer](v T, size int) []byte {
	out := make([]byte, size)
	u := uint64(v)
	for i := 0; i < size; i++ {
		out[i] = byte(u >> (8 * i))
	}
	return out
}

func decodeLE[T Integer](b []byte) T {
	var u uint64
	for i := len(b) - 1; i >= 0; i-- {
		u = (u << 8) | uint64(b[i])
	}
	return T(u)
}
