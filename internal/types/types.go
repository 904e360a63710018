// Package types defines TILT's closed type lattice: I32, I64, F32, F64, Ptr
// and Void. The set is closed by design (spec §3) -- there are no structs,
// no arrays, no implicit conversions.
package types

import "fmt"

// Type is one of the six TILT types. The zero value is not a valid type;
// callers that need a sentinel should use Void or check IsValid.
type Type byte

const (
	Invalid Type = iota
	I32
	I64
	F32
	F64
	Ptr
	Void
)

func (t Type) String() string {
	switch t {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case Ptr:
		return "ptr"
	case Void:
		return "void"
	default:
		return fmt.Sprintf("<invalid type %d>", byte(t))
	}
}

// IsValid reports whether t is one of the six TILT types.
func (t Type) IsValid() bool {
	return t >= I32 && t <= Void
}

// IsInteger reports whether t is I32, I64 or Ptr -- the types that support
// eq/lt and load/store. add/sub/mul/div apply to I32 and I64 only; Ptr
// arithmetic goes through ptr.add.
func (t Type) IsInteger() bool {
	return t == I32 || t == I64 || t == Ptr
}

// IsFloat reports whether t is F32 or F64. Float types are part of the
// lattice but have no defined operations (spec §1, §9); the front end may
// produce them as operand types but lowering rejects any attempt to operate
// on them.
func (t Type) IsFloat() bool {
	return t == F32 || t == F64
}

// PtrSize is the platform word size in bytes used for Ptr and for JIT pointer
// arithmetic. TILT targets 64-bit hosts exclusively.
const PtrSize = 8

// SizeOf returns the byte size of t, matching the `sizeof.T()` instruction
// and the byte width used by T.load/T.store (spec §3, §8: "sizeof.T()
// equals the runtime byte count used by T.load/T.store for every T").
func SizeOf(t Type) (int64, error) {
	switch t {
	case I32, F32:
		return 4, nil
	case I64, F64:
		return 8, nil
	case Ptr:
		return PtrSize, nil
	default:
		return 0, fmt.Errorf("types: no size for %s", t)
	}
}

// FromKeyword maps a surface-syntax type keyword to a Type. `usize` is a
// historical alias for `ptr` (spec §9) and is normalised here so nothing
// downstream of lowering ever observes it.
func FromKeyword(kw string) (Type, bool) {
	switch kw {
	case "i32":
		return I32, true
	case "i64":
		return I64, true
	case "f32":
		return F32, true
	case "f64":
		return F64, true
	case "ptr", "usize":
		return Ptr, true
	case "void":
		return Void, true
	default:
		return Invalid, false
	}
}
