package value

import (
	"testing"

	"tilt/internal/types"
)

func TestConstructorsRoundTrip(t *testing.T) {
	if got := I32(-1).AsI32(); got != -1 {
		t.Errorf("I32(-1).AsI32() = %d, want -1", got)
	}
	if got := I64(-1).AsI64(); got != -1 {
		t.Errorf("I64(-1).AsI64() = %d, want -1", got)
	}
	if got := Ptr(0xdeadbeef).AsPtr(); got != 0xdeadbeef {
		t.Errorf("Ptr(...).AsPtr() = %x, want %x", got, 0xdeadbeef)
	}
}

func TestAsInt64WidensI32Signed(t *testing.T) {
	v := I32(-5)
	if got := v.AsInt64(); got != -5 {
		t.Errorf("AsInt64() = %d, want -5", got)
	}
}

func TestFromInt64Truncates(t *testing.T) {
	v := FromInt64(types.I32, 1<<32+7)
	if v.AsI32() != 7 {
		t.Errorf("AsI32() = %d, want 7", v.AsI32())
	}
}

func TestEqualComparesTypeAndBits(t *testing.T) {
	if !I32(42).Equal(I32(42)) {
		t.Error("I32(42) != I32(42)")
	}
	if I32(0).Equal(I64(0)) {
		t.Error("I32(0) == I64(0), want distinct types to differ")
	}
}

func TestVoidString(t *testing.T) {
	if Void.String() != "void" {
		t.Errorf("Void.String() = %q, want %q", Void.String(), "void")
	}
}
