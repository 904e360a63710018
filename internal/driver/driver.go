// Package driver selects and runs an engine against a lowered TILT module,
// and implements the VM/JIT equivalence check (spec §2, §5: "VM(P) ==
// JIT(P)" for every valid program) that backs the CLI's --both mode.
package driver

import (
	"tilt/internal/diag"
	"tilt/internal/hostabi"
	"tilt/internal/ir"
	"tilt/internal/jit"
	"tilt/internal/value"
	"tilt/internal/vm"
)

// Engine names the execution strategy requested on the command line.
type Engine string

const (
	VM   Engine = "vm"
	JIT  Engine = "jit"
	Both Engine = "both"
)

// Result is the outcome of running a module: the value each requested
// engine produced, and whether a --both run found a divergence.
type Result struct {
	VMValue    value.Value
	JITValue   value.Value
	RanVM      bool
	RanJIT     bool
	Diverged   bool
}

// Run executes fn (by name, "main" for the CLI) under the requested engine.
// VM always runs against a fresh Simulated host ABI; JIT always runs
// against a real native one -- the two engines never share ABI state
// (spec §4.4: "an engine is constructed with exactly one implementation").
func Run(mod *ir.Module, fn string, args []value.Value, eng Engine) (*Result, error) {
	res := &Result{}

	switch eng {
	case VM:
		v, err := runVM(mod, fn, args)
		if err != nil {
			return nil, err
		}
		res.VMValue, res.RanVM = v, true
		return res, nil

	case JIT:
		v, err := runJIT(mod, fn, args)
		if err != nil {
			return nil, err
		}
		res.JITValue, res.RanJIT = v, true
		return res, nil

	case Both:
		vmVal, err := runVM(mod, fn, args)
		if err != nil {
			return nil, err
		}
		jitVal, err := runJIT(mod, fn, args)
		if err != nil {
			return nil, err
		}
		res.VMValue, res.RanVM = vmVal, true
		res.JITValue, res.RanJIT = jitVal, true
		if !vmVal.Equal(jitVal) {
			res.Diverged = true
			return res, diag.New(diag.HostABIError, "engine divergence: vm returned %s, jit returned %s", vmVal, jitVal)
		}
		return res, nil

	default:
		return nil, diag.New(diag.HostABIError, "unknown engine %q", eng)
	}
}

func runVM(mod *ir.Module, fn string, args []value.Value) (value.Value, error) {
	machine := vm.New(mod, hostabi.NewSimulated())
	return machine.Run(fn, args)
}

func runJIT(mod *ir.Module, fn string, args []value.Value) (value.Value, error) {
	engine, err := jit.New(mod)
	if err != nil {
		return value.Void, err
	}
	defer engine.Close()
	return engine.Run(fn, args)
}
