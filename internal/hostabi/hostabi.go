// Package hostabi implements TILT's host capability object (spec §4.4):
// alloc, free and the optional print_i32 diagnostic call, in two
// implementations that must agree on every observable result. Simulated
// backs the VM with a Go-level byte-buffer heap with bounds and
// use-after-free checking; Native backs the JIT with real platform memory.
package hostabi

import (
	"tilt/internal/diag"
	"tilt/internal/types"
)

// ABI is the capability surface a running program is linked against.
// Exactly one implementation backs a given run; engines do not switch
// implementations mid-run (spec §4.4). Load and Store move a single value
// of the given type, matching the width T.load/T.store operate at
// (spec §3: "sizeof.T() equals the runtime byte count used by T.load/T.store").
type ABI interface {
	Alloc(size int64) (uint64, error)
	Free(ptr uint64) error
	Load(ptr uint64, t types.Type) (uint64, error)
	Store(ptr uint64, t types.Type, bits uint64) error
	PrintI32(v int32) error

	// PtrAdd computes ptr+off in whatever pointer representation this ABI
	// uses. Out-of-bounds results are not rejected here -- the fault
	// surfaces on the next Load/Store/Free that dereferences them, matching
	// real pointer arithmetic (spec §3 "ptr.add never faults by itself").
	PtrAdd(ptr uint64, off int64) uint64
}

func faultf(format string, args ...interface{}) error {
	return diag.New(diag.MemoryFault, format, args...)
}

func abiErrorf(format string, args ...interface{}) error {
	return diag.New(diag.HostABIError, format, args...)
}
