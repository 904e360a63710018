package hostabi

import (
	"errors"
	"testing"

	"tilt/internal/diag"
	"tilt/internal/types"
)

func asDiag(t *testing.T, err error) *diag.Error {
	t.Helper()
	var d *diag.Error
	if !errors.As(err, &d) {
		t.Fatalf("error %v is not a *diag.Error", err)
	}
	return d
}

func TestSimulatedAllocStoreLoadRoundTrip(t *testing.T) {
	s := NewSimulated()
	p, err := s.Alloc(4)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if err := s.Store(p, types.I32, uint64(uint32(int32(-7)))); err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, err := s.Load(p, types.I32)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if int32(uint32(got)) != -7 {
		t.Errorf("got %d, want -7", int32(uint32(got)))
	}
}

func TestSimulatedFreeThenLoadIsUseAfterFree(t *testing.T) {
	s := NewSimulated()
	p, _ := s.Alloc(4)
	if err := s.Free(p); err != nil {
		t.Fatalf("Free: %v", err)
	}
	_, err := s.Load(p, types.I32)
	if err == nil {
		t.Fatal("expected a use-after-free error")
	}
	if d := asDiag(t, err); d.Kind != diag.MemoryFault {
		t.Errorf("got kind %v, want MemoryFault", d.Kind)
	}
}

func TestSimulatedDoubleFreeIsError(t *testing.T) {
	s := NewSimulated()
	p, _ := s.Alloc(4)
	if err := s.Free(p); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if err := s.Free(p); err == nil {
		t.Fatal("expected a double-free error")
	}
}

func TestSimulatedOutOfBoundsLoadIsFault(t *testing.T) {
	s := NewSimulated()
	p, _ := s.Alloc(2)
	if _, err := s.Load(p, types.I64); err == nil {
		t.Fatal("expected an out-of-bounds fault loading 8 bytes from a 2-byte block")
	}
}

func TestSimulatedGenerationBumpsAcrossReuse(t *testing.T) {
	s := NewSimulated()
	p1, _ := s.Alloc(4)
	s.Free(p1)
	p2, _ := s.Alloc(4)
	if p1 == p2 {
		t.Fatal("reused slot produced an identical token across generations")
	}
	if _, err := s.Load(p1, types.I32); err == nil {
		t.Fatal("stale token from a freed-and-reallocated slot should fault")
	}
}

func TestSimulatedPtrAddStaysWithinBlock(t *testing.T) {
	s := NewSimulated()
	p, _ := s.Alloc(8)
	if err := s.Store(p, types.I32, 1); err != nil {
		t.Fatalf("Store: %v", err)
	}
	p2 := s.PtrAdd(p, 4)
	if err := s.Store(p2, types.I32, 2); err != nil {
		t.Fatalf("Store at offset: %v", err)
	}
	v1, _ := s.Load(p, types.I32)
	v2, _ := s.Load(p2, types.I32)
	if v1 != 1 || v2 != 2 {
		t.Errorf("got v1=%d v2=%d, want 1 and 2", v1, v2)
	}
}

func TestSimulatedFreeNullPointerIsFault(t *testing.T) {
	s := NewSimulated()
	if err := s.Free(0); err == nil {
		t.Fatal("expected an error freeing the null pointer")
	}
}
