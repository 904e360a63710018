// Package jit implements TILT's native-code engine (spec §4.3): it lowers a
// validated ir.Module to LLVM IR with github.com/llir/llvm, shells out to
// clang to turn that IR into a real shared object, and loads it with a
// small cgo dlopen/dlsym trampoline so TILT's "real function pointers,
// stable calling convention" requirement is met with an actual native
// binary rather than a second interpreter.
//
// TILT block parameters have no direct LLVM counterpart; they are lowered
// to LLVM phi instructions, the join mechanism real LLVM-based compilers
// use for the same purpose. TILT's Ptr type is carried through generated
// IR as a plain i64 rather than an LLVM pointer type -- every host function
// this package links against (malloc/free/printf) is declared with an
// i64-shaped signature so no pointer/integer bitcast plumbing is needed in
// generated function bodies; the x86-64 and arm64 calling conventions pass
// pointers and 64-bit integers in the same register class, so this is
// link-compatible with the real libc symbols.
package jit

import (
	llconstant "github.com/llir/llvm/ir/constant"
	llenum "github.com/llir/llvm/ir/enum"
	llir "github.com/llir/llvm/ir"
	lltypes "github.com/llir/llvm/ir/types"
	llvalue "github.com/llir/llvm/ir/value"

	"tilt/internal/diag"
	"tilt/internal/ir"
	"tilt/internal/types"
)

func llType(t types.Type) lltypes.Type {
	switch t {
	case types.I32:
		return lltypes.I32
	case types.I64, types.Ptr:
		return lltypes.I64
	case types.Void:
		return lltypes.Void
	default:
		return lltypes.I64
	}
}

// codegen holds the whole-module state: the TILT module being translated,
// the LLVM module being built, and the declared runtime/user functions
// calls can resolve against.
type codegen struct {
	tmod *ir.Module
	lmod *llir.Module

	funcs   map[string]*llir.Func
	mallocF *llir.Func
	freeF   *llir.Func
	printfF *llir.Func
	fmtStr  *llir.Global
}

// build lowers tmod into a fresh LLVM module, ready for (*llir.Module).String().
func build(tmod *ir.Module) (*llir.Module, error) {
	cg := &codegen{tmod: tmod, lmod: llir.NewModule(), funcs: map[string]*llir.Func{}}
	cg.declareRuntime()

	for _, fn := range tmod.Funcs {
		cg.declareFunc(fn)
	}
	for _, fn := range tmod.Funcs {
		if err := (&funcGen{cg: cg, tfn: fn, lf: cg.funcs[fn.Name]}).run(); err != nil {
			return nil, err
		}
	}
	return cg.lmod, nil
}

func (cg *codegen) declareRuntime() {
	cg.mallocF = cg.lmod.NewFunc("malloc", lltypes.I64, llir.NewParam("size", lltypes.I64))
	cg.freeF = cg.lmod.NewFunc("free", lltypes.Void, llir.NewParam("ptr", lltypes.I64))

	cg.printfF = cg.lmod.NewFunc("printf", lltypes.I32, llir.NewParam("fmt", lltypes.I64))
	cg.printfF.Sig.Variadic = true

	cg.fmtStr = cg.lmod.NewGlobalDef(".tilt.fmt.i32", llconstant.NewCharArrayFromString("%d\n\x00"))
	cg.fmtStr.Immutable = true
}

func (cg *codegen) declareFunc(fn *ir.Func) {
	params := make([]*llir.Param, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = llir.NewParam(p.Name, llType(p.Type))
	}
	cg.funcs[fn.Name] = cg.lmod.NewFunc(fn.Name, llType(fn.RetType), params...)
}

// funcGen lowers a single TILT function into its already-declared LLVM
// counterpart.
type funcGen struct {
	cg  *codegen
	tfn *ir.Func
	lf  *llir.Func

	blocks map[string]*llir.Block
	phis   map[string][]*llir.InstPhi
	vals   map[ir.ID]llvalue.Value
}

func (fg *funcGen) run() error {
	fg.blocks = map[string]*llir.Block{}
	fg.phis = map[string][]*llir.InstPhi{}
	fg.vals = map[ir.ID]llvalue.Value{}

	for i, b := range fg.tfn.Blocks {
		lb := fg.lf.NewBlock(b.Label)
		fg.blocks[b.Label] = lb
		if i == 0 {
			for i, p := range fg.tfn.Params {
				fg.vals[p.ID] = fg.lf.Params[i]
			}
			continue
		}
		var phis []*llir.InstPhi
		for _, p := range b.Params {
			phi := &llir.InstPhi{Typ: llType(p.Type)}
			lb.Insts = append(lb.Insts, phi)
			fg.vals[p.ID] = phi
			phis = append(phis, phi)
		}
		fg.phis[b.Label] = phis
	}

	for _, b := range fg.tfn.Blocks {
		if err := fg.genBlock(b); err != nil {
			return err
		}
	}
	return nil
}

func (fg *funcGen) genBlock(b *ir.Block) error {
	lb := fg.blocks[b.Label]
	for _, instr := range b.Instrs {
		v, err := fg.genInstr(lb, instr)
		if err != nil {
			return err
		}
		if instr.ResultTy != types.Void {
			fg.vals[instr.Dest] = v
		}
	}
	return fg.genTerm(lb, b.Term)
}

func (fg *funcGen) read(v ir.Value) llvalue.Value {
	if v.IsConst {
		return llconstant.NewInt(llType(v.ConstTy).(*lltypes.IntType), v.Const)
	}
	return fg.vals[v.Ref]
}

func (fg *funcGen) genInstr(lb *llir.Block, instr ir.Instr) (llvalue.Value, error) {
	arg := func(i int) llvalue.Value { return fg.read(instr.Args[i]) }

	switch instr.Op {
	case ir.OpConst:
		return fg.read(instr.Args[0]), nil
	case ir.OpAdd:
		return lb.NewAdd(arg(0), arg(1)), nil
	case ir.OpSub:
		return lb.NewSub(arg(0), arg(1)), nil
	case ir.OpMul:
		return lb.NewMul(arg(0), arg(1)), nil
	case ir.OpDiv:
		return lb.NewSDiv(arg(0), arg(1)), nil
	case ir.OpEq:
		return extendBool(lb, lb.NewICmp(llenum.IPredEQ, arg(0), arg(1))), nil
	case ir.OpLt:
		return extendBool(lb, lb.NewICmp(llenum.IPredSLT, arg(0), arg(1))), nil
	case ir.OpSizeof:
		size, err := types.SizeOf(instr.SizeofTy)
		if err != nil {
			return nil, diag.New(diag.TypeError, "%v", err)
		}
		return llconstant.NewInt(lltypes.I64, size), nil
	case ir.OpPtrAdd:
		return lb.NewAdd(arg(0), arg(1)), nil
	case ir.OpLoad:
		ptrTy := lltypes.NewPointer(llType(instr.SizeofTy))
		casted := lb.NewIntToPtr(arg(0), ptrTy)
		return lb.NewLoad(llType(instr.SizeofTy), casted), nil
	case ir.OpStore:
		ptrTy := lltypes.NewPointer(llType(instr.SizeofTy))
		casted := lb.NewIntToPtr(arg(0), ptrTy)
		lb.NewStore(arg(1), casted)
		return nil, nil
	case ir.OpAlloc:
		return lb.NewCall(fg.cg.mallocF, arg(0)), nil
	case ir.OpFree:
		lb.NewCall(fg.cg.freeF, arg(0))
		return nil, nil
	case ir.OpCall:
		return fg.genCall(lb, instr)
	default:
		return nil, diag.New(diag.UnknownOp, "jit: unknown opcode %v", instr.Op)
	}
}

// extendBool widens LLVM's i1 comparison result to i32, matching the
// TILT type of eq/lt results (spec §3: comparisons produce i32).
func extendBool(lb *llir.Block, cmp llvalue.Value) llvalue.Value {
	return lb.NewZExt(cmp, lltypes.I32)
}

func (fg *funcGen) genCall(lb *llir.Block, instr ir.Instr) (llvalue.Value, error) {
	if lf, ok := fg.cg.funcs[instr.Callee]; ok {
		args := make([]llvalue.Value, len(instr.Args))
		for i, a := range instr.Args {
			args[i] = fg.read(a)
		}
		call := lb.NewCall(lf, args...)
		return call, nil
	}

	imp := fg.tfn
	_ = imp
	switch instr.Callee {
	case "print_i32":
		fmtAddr := lb.NewPtrToInt(fg.cg.fmtStr, lltypes.I64)
		lb.NewCall(fg.cg.printfF, fmtAddr, fg.read(instr.Args[0]))
		return nil, nil
	case "alloc":
		return lb.NewCall(fg.cg.mallocF, fg.read(instr.Args[0])), nil
	case "free":
		lb.NewCall(fg.cg.freeF, fg.read(instr.Args[0]))
		return nil, nil
	}
	return nil, diag.New(diag.UnknownImport, "jit: call to undefined function %q", instr.Callee)
}

func (fg *funcGen) genTerm(lb *llir.Block, term ir.Terminator) error {
	switch term.Kind {
	case ir.TermRet:
		lb.NewRet(fg.read(term.RetValue))
		return nil
	case ir.TermRetVoid:
		lb.NewRet(nil)
		return nil
	case ir.TermBr:
		target := fg.blocks[term.Target]
		fg.feedPhis(term.Target, term.TargetArgs, lb)
		lb.NewBr(target)
		return nil
	case ir.TermBrIf:
		trueB := fg.blocks[term.TrueTarget]
		falseB := fg.blocks[term.FalseTarget]
		cond := fg.cg.truncToBool(lb, fg.read(term.Cond))
		fg.feedPhis(term.TrueTarget, term.TrueArgs, lb)
		fg.feedPhis(term.FalseTarget, term.FalseArgs, lb)
		lb.NewCondBr(cond, trueB, falseB)
		return nil
	default:
		return diag.New(diag.CFGError, "jit: malformed terminator")
	}
}

func (cg *codegen) truncToBool(lb *llir.Block, v llvalue.Value) llvalue.Value {
	zero := llconstant.NewInt(lltypes.I32, 0)
	return lb.NewICmp(llenum.IPredNE, v, zero)
}

func (fg *funcGen) feedPhis(target string, args []ir.Value, pred *llir.Block) {
	phis := fg.phis[target]
	for i, phi := range phis {
		phi.Incs = append(phi.Incs, &llir.Incoming{X: fg.read(args[i]), Pred: pred})
	}
}
