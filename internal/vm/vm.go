// Package vm implements TILT's tree/IR interpreter (spec §4.2): a direct
// walk of the IR, one basic block at a time, with block-parameter binding
// standing in for phi-nodes at every branch. It must produce results
// bit-identical to internal/jit for every program the driver's equivalence
// check runs (spec §5).
package vm

import (
	"tilt/internal/diag"
	"tilt/internal/hostabi"
	"tilt/internal/ir"
	"tilt/internal/types"
	"tilt/internal/value"
)

// maxCallDepth guards against runaway recursion (e.g. factorial called with
// a negative argument never hitting its base case) turning into a Go stack
// overflow, which would crash the process instead of reporting a TILT-level
// error. This is generous enough for every fixture program's legitimate
// recursion.
const maxCallDepth = 10000

// VM interprets a single ir.Module against one host ABI.
type VM struct {
	mod *ir.Module
	abi hostabi.ABI
}

// New builds a VM bound to mod and abi. The module is assumed already
// validated by internal/lower; the VM does not re-check types.
func New(mod *ir.Module, abi hostabi.ABI) *VM {
	return &VM{mod: mod, abi: abi}
}

// Run invokes the named function with args and returns its result. The CLI
// driver calls this with "main"; tests call it directly against any
// function in the module.
func (vm *VM) Run(name string, args []value.Value) (value.Value, error) {
	fn := vm.mod.FuncByName(name)
	if fn == nil {
		return value.Void, diag.New(diag.NameError, "no function named %q", name)
	}
	return vm.call(fn, args, 0)
}

func (vm *VM) call(fn *ir.Func, args []value.Value, depth int) (value.Value, error) {
	if depth > maxCallDepth {
		return value.Void, diag.New(diag.HostABIError, "call stack exceeded depth %d in %q", maxCallDepth, fn.Name)
	}
	if len(args) != len(fn.Params) {
		return value.Void, diag.New(diag.TypeError, "%q: expected %d arguments, got %d", fn.Name, len(fn.Params), len(args))
	}

	locals := make([]value.Value, fn.NumSSA)
	for i, p := range fn.Params {
		locals[p.ID] = args[i]
	}

	block := fn.Entry()
	for {
		for _, instr := range block.Instrs {
			v, err := vm.eval(instr, locals, depth)
			if err != nil {
				return value.Void, err
			}
			if instr.ResultTy != types.Void {
				locals[instr.Dest] = v
			}
		}

		switch block.Term.Kind {
		case ir.TermRet:
			return vm.read(block.Term.RetValue, locals), nil
		case ir.TermRetVoid:
			return value.Void, nil
		case ir.TermBr:
			next, err := vm.branch(fn, block.Term.Target, block.Term.TargetArgs, locals)
			if err != nil {
				return value.Void, err
			}
			block = next
		case ir.TermBrIf:
			cond := vm.read(block.Term.Cond, locals)
			var next *ir.Block
			var err error
			if cond.AsI32() != 0 {
				next, err = vm.branch(fn, block.Term.TrueTarget, block.Term.TrueArgs, locals)
			} else {
				next, err = vm.branch(fn, block.Term.FalseTarget, block.Term.FalseArgs, locals)
			}
			if err != nil {
				return value.Void, err
			}
			block = next
		default:
			return value.Void, diag.New(diag.CFGError, "%q: block %q has no terminator", fn.Name, block.Label)
		}
	}
}

func (vm *VM) branch(fn *ir.Func, label string, args []ir.Value, locals []value.Value) (*ir.Block, error) {
	target := fn.Block(label)
	if target == nil {
		return nil, diag.New(diag.CFGError, "%q: branch to unknown block %q", fn.Name, label)
	}
	for i, p := range target.Params {
		locals[p.ID] = vm.read(args[i], locals)
	}
	return target, nil
}

func (vm *VM) read(v ir.Value, locals []value.Value) value.Value {
	if v.IsConst {
		return value.FromInt64(v.ConstTy, v.Const)
	}
	return locals[v.Ref]
}

func (vm *VM) eval(instr ir.Instr, locals []value.Value, depth int) (value.Value, error) {
	arg := func(i int) value.Value { return vm.read(instr.Args[i], locals) }

	switch instr.Op {
	case ir.OpConst:
		return value.FromInt64(instr.Args[0].ConstTy, instr.Args[0].Const), nil

	case ir.OpAdd:
		return value.FromInt64(instr.ResultTy, arg(0).AsInt64()+arg(1).AsInt64()), nil
	case ir.OpSub:
		return value.FromInt64(instr.ResultTy, arg(0).AsInt64()-arg(1).AsInt64()), nil
	case ir.OpMul:
		return value.FromInt64(instr.ResultTy, arg(0).AsInt64()*arg(1).AsInt64()), nil
	case ir.OpDiv:
		b := arg(1).AsInt64()
		if b == 0 {
			return value.Void, diag.New(diag.DivByZero, "division by zero")
		}
		return value.FromInt64(instr.ResultTy, arg(0).AsInt64()/b), nil

	case ir.OpEq:
		if arg(0).AsInt64() == arg(1).AsInt64() {
			return value.I32(1), nil
		}
		return value.I32(0), nil
	case ir.OpLt:
		if arg(0).AsInt64() < arg(1).AsInt64() {
			return value.I32(1), nil
		}
		return value.I32(0), nil

	case ir.OpSizeof:
		size, err := types.SizeOf(instr.SizeofTy)
		if err != nil {
			return value.Void, diag.New(diag.TypeError, "%v", err)
		}
		return value.I64(size), nil

	case ir.OpPtrAdd:
		return value.Ptr(vm.abi.PtrAdd(arg(0).AsPtr(), arg(1).AsInt64())), nil

	case ir.OpLoad:
		bits, err := vm.abi.Load(arg(0).AsPtr(), instr.SizeofTy)
		if err != nil {
			return value.Void, err
		}
		return value.FromInt64(instr.SizeofTy, int64(bits)), nil

	case ir.OpStore:
		if err := vm.abi.Store(arg(0).AsPtr(), instr.SizeofTy, arg(1).Bits); err != nil {
			return value.Void, err
		}
		return value.Void, nil

	case ir.OpAlloc:
		ptr, err := vm.abi.Alloc(arg(0).AsInt64())
		if err != nil {
			return value.Void, err
		}
		return value.Ptr(ptr), nil

	case ir.OpFree:
		if err := vm.abi.Free(arg(0).AsPtr()); err != nil {
			return value.Void, err
		}
		return value.Void, nil

	case ir.OpCall:
		return vm.evalCall(instr, locals, depth)

	default:
		return value.Void, diag.New(diag.UnknownOp, "unknown opcode %v", instr.Op)
	}
}

func (vm *VM) evalCall(instr ir.Instr, locals []value.Value, depth int) (value.Value, error) {
	callee, ok := vm.mod.Resolve(instr.Callee)
	if !ok {
		return value.Void, diag.New(diag.UnknownImport, "call to undefined function %q", instr.Callee)
	}
	args := make([]value.Value, len(instr.Args))
	for i, a := range instr.Args {
		args[i] = vm.read(a, locals)
	}
	if callee.Func != nil {
		return vm.call(callee.Func, args, depth+1)
	}
	return vm.callImport(callee.Import, args)
}

// callImport dispatches to the handful of host functions TILT programs may
// import (spec §4.4): alloc, free and print_i32 by name. Anything else is
// an UnknownImport -- the host ABI is fixed, not extensible.
func (vm *VM) callImport(imp *ir.Import, args []value.Value) (value.Value, error) {
	switch imp.Name {
	case "print_i32":
		if len(args) != 1 {
			return value.Void, diag.New(diag.HostABIError, "print_i32: expected 1 argument, got %d", len(args))
		}
		if err := vm.abi.PrintI32(args[0].AsI32()); err != nil {
			return value.Void, err
		}
		return value.Void, nil
	case "alloc":
		if len(args) != 1 {
			return value.Void, diag.New(diag.HostABIError, "alloc: expected 1 argument, got %d", len(args))
		}
		ptr, err := vm.abi.Alloc(args[0].AsInt64())
		if err != nil {
			return value.Void, err
		}
		return value.Ptr(ptr), nil
	case "free":
		if len(args) != 1 {
			return value.Void, diag.New(diag.HostABIError, "free: expected 1 argument, got %d", len(args))
		}
		if err := vm.abi.Free(args[0].AsPtr()); err != nil {
			return value.Void, err
		}
		return value.Void, nil
	default:
		return value.Void, diag.New(diag.UnknownImport, "unknown import %q from module %q", imp.Name, imp.Module)
	}
}
