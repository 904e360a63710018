// Package lower implements TILT's AST-to-IR lowering pass (spec §4.1): name
// resolution, SSA construction, type checking and block-parameter wiring.
// Lowering never panics on malformed input -- every problem is collected as
// a *diag.Error and returned alongside whatever partial result was built.
package lower

import (
	"strings"

	"github.com/google/uuid"

	"tilt/internal/ast"
	"tilt/internal/diag"
	"tilt/internal/ir"
	"tilt/internal/types"
)

// sig is a callable signature, shared by local functions and imports so call
// lowering can check both uniformly.
type sig struct {
	params  []types.Type
	ret     types.Type
}

// Lower turns a parsed ast.Module into a validated ir.Module. Errors are
// returned as values, never raised; a non-empty error slice means mod may
// be nil or only partially built and must not be executed.
func Lower(file string, astMod *ast.Module) (*ir.Module, []*diag.Error) {
	l := &lowerer{file: file}
	return l.lowerModule(astMod)
}

type lowerer struct {
	file string
	errs []*diag.Error
}

func (l *lowerer) errorf(kind diag.Kind, line int, format string, args ...interface{}) {
	l.errs = append(l.errs, diag.At(kind, diag.Pos{File: l.file, Line: line}, format, args...))
}

func (l *lowerer) lowerModule(astMod *ast.Module) (*ir.Module, []*diag.Error) {
	sigs := map[string]sig{}
	names := map[string]bool{} // shared import/function namespace

	registerName := func(name string, line int) bool {
		if names[name] {
			l.errorf(diag.NameError, line, "duplicate top-level name %q", name)
			return false
		}
		names[name] = true
		return true
	}

	mod := &ir.Module{BuildID: uuid.New().String()}

	for _, imp := range astMod.Imports {
		if !registerName(imp.Name, imp.Line) {
			continue
		}
		irImp, s, ok := l.lowerImportSig(imp)
		if !ok {
			continue
		}
		sigs[imp.Name] = s
		mod.Imports = append(mod.Imports, irImp)
	}

	for _, fn := range astMod.Funcs {
		if !registerName(fn.Name, fn.Line) {
			continue
		}
		s, ok := l.lowerFuncSig(fn)
		if !ok {
			continue
		}
		sigs[fn.Name] = s
	}

	for _, fn := range astMod.Funcs {
		if _, ok := sigs[fn.Name]; !ok {
			continue // signature itself was invalid; already reported
		}
		irFn := l.lowerFunc(fn, sigs)
		if irFn != nil {
			mod.Funcs = append(mod.Funcs, irFn)
		}
	}

	mainDeclared := false
	for _, fn := range astMod.Funcs {
		mainDeclared = mainDeclared || fn.Name == "main"
	}
	if m := mod.FuncByName("main"); m == nil {
		// A declared main whose body failed to lower has already been reported.
		if !mainDeclared {
			l.errorf(diag.NameError, 0, "module has no function named 'main'")
		}
	} else if m.RetType != types.I32 && m.RetType != types.I64 {
		l.errorf(diag.TypeError, 0, "'main' must return an integer type (i32 or i64), got %s", m.RetType)
	}

	if len(l.errs) > 0 {
		return nil, l.errs
	}
	return mod, nil
}

func (l *lowerer) lowerImportSig(imp *ast.Import) (*ir.Import, sig, bool) {
	params, ok := l.lowerParamTypes(imp.Params)
	if !ok {
		return nil, sig{}, false
	}
	ret, ok := l.resolveType(imp.RetType, imp.Line)
	if !ok {
		return nil, sig{}, false
	}
	return &ir.Import{Module: imp.Module, Name: imp.Name, CC: imp.CC, Params: params, RetType: ret},
		sig{params: params, ret: ret}, true
}

func (l *lowerer) lowerFuncSig(fn *ast.Func) (sig, bool) {
	params, ok := l.lowerParamTypes(fn.Params)
	if !ok {
		return sig{}, false
	}
	ret, ok := l.resolveType(fn.RetType, fn.Line)
	if !ok {
		return sig{}, false
	}
	return sig{params: params, ret: ret}, true
}

func (l *lowerer) lowerParamTypes(params []ast.Param) ([]types.Type, bool) {
	out := make([]types.Type, 0, len(params))
	ok := true
	for _, p := range params {
		t, good := l.resolveType(p.Type, p.Line)
		if !good {
			ok = false
			continue
		}
		out = append(out, t)
	}
	return out, ok
}

func (l *lowerer) resolveType(kw string, line int) (types.Type, bool) {
	t, ok := types.FromKeyword(kw)
	if !ok {
		l.errorf(diag.TypeError, line, "unknown type %q", kw)
		return types.Invalid, false
	}
	return t, true
}

// funcCtx holds the per-function state the spec's lowering algorithm
// threads through: a fresh SSA id generator, a function-wide binding table
// (for the "not already bound in this function" duplicate check) and the
// per-block parameter tables built in the first declaration-order pass.
type funcCtx struct {
	nextID      ir.ID
	bound       map[string]bool          // every name ever bound in this function
	idTypes     map[ir.ID]types.Type
	blockParams map[string][]ir.Param    // label -> declared params, fixed ids/types
	sigs        map[string]sig
}

func (fc *funcCtx) fresh() ir.ID {
	id := fc.nextID
	fc.nextID++
	return id
}

func (l *lowerer) lowerFunc(fn *ast.Func, sigs map[string]sig) *ir.Func {
	fc := &funcCtx{
		bound:       map[string]bool{},
		idTypes:     map[ir.ID]types.Type{},
		blockParams: map[string][]ir.Param{},
		sigs:        sigs,
	}

	retType, _ := l.resolveType(fn.RetType, fn.Line)

	// Bind entry-block parameters to the function's formal parameters.
	var paramIDs []ir.Param
	for _, p := range fn.Params {
		if fc.bound[p.Name] {
			l.errorf(diag.NameError, p.Line, "duplicate parameter name %q", p.Name)
			continue
		}
		t, ok := l.resolveType(p.Type, p.Line)
		if !ok {
			continue
		}
		id := fc.fresh()
		fc.bound[p.Name] = true
		fc.idTypes[id] = t
		paramIDs = append(paramIDs, ir.Param{Name: p.Name, ID: id, Type: t})
	}

	if len(fn.Blocks) == 0 {
		l.errorf(diag.CFGError, fn.Line, "function %q has no blocks", fn.Name)
		return nil
	}

	labelLine := map[string]int{}
	for i, b := range fn.Blocks {
		if labelLine[b.Label] != 0 {
			l.errorf(diag.CFGError, b.Line, "duplicate block label %q", b.Label)
			continue
		}
		labelLine[b.Label] = b.Line
		if i == 0 {
			if len(b.Params) != 0 {
				l.errorf(diag.CFGError, b.Line, "entry block %q must not declare block parameters", b.Label)
			}
			fc.blockParams[b.Label] = nil
			continue
		}
		var params []ir.Param
		seen := map[string]bool{}
		for _, p := range b.Params {
			if seen[p.Name] {
				l.errorf(diag.NameError, p.Line, "duplicate block parameter name %q in block %q", p.Name, b.Label)
				continue
			}
			seen[p.Name] = true
			if fc.bound[p.Name] {
				l.errorf(diag.NameError, p.Line, "duplicate name %q in function %q", p.Name, fn.Name)
				continue
			}
			t, ok := l.resolveType(p.Type, p.Line)
			if !ok {
				continue
			}
			id := fc.fresh()
			fc.bound[p.Name] = true
			fc.idTypes[id] = t
			params = append(params, ir.Param{Name: p.Name, ID: id, Type: t})
		}
		fc.blockParams[b.Label] = params
	}

	irFn := &ir.Func{Name: fn.Name, RetType: retType}
	for _, p := range paramIDs {
		irFn.Params = append(irFn.Params, p)
	}

	for i, b := range fn.Blocks {
		// Function parameters are visible in every block; a non-entry block
		// additionally sees its own block parameters.
		scope := map[string]ir.ID{}
		for _, p := range paramIDs {
			scope[p.Name] = p.ID
		}
		if i != 0 {
			for _, p := range fc.blockParams[b.Label] {
				scope[p.Name] = p.ID
			}
		}
		irBlock := l.lowerBlock(fn, b, fc, scope, retType)
		if irBlock != nil {
			irFn.Blocks = append(irFn.Blocks, irBlock)
		}
	}

	irFn.NumSSA = int(fc.nextID)

	if len(irFn.Blocks) != len(fn.Blocks) {
		return nil
	}
	return irFn
}

func (l *lowerer) lowerBlock(fn *ast.Func, b *ast.Block, fc *funcCtx, scope map[string]ir.ID, retType types.Type) *ir.Block {
	irBlock := &ir.Block{Label: b.Label, Params: fc.blockParams[b.Label]}
	ok := true
	for _, stmt := range b.Instrs {
		instr, good := l.lowerStmt(stmt, fc, scope)
		if !good {
			ok = false
			continue
		}
		irBlock.Instrs = append(irBlock.Instrs, instr)
	}
	term, good := l.lowerTerm(b.Term, fc, scope, retType)
	if !good {
		ok = false
	} else {
		irBlock.Term = *term
	}
	if !ok {
		return nil
	}
	return irBlock
}

func (l *lowerer) lowerStmt(stmt ast.Stmt, fc *funcCtx, scope map[string]ir.ID) (ir.Instr, bool) {
	if stmt.IsAssign {
		if fc.bound[stmt.Dest] {
			l.errorf(diag.NameError, stmt.Line, "duplicate name %q", stmt.Dest)
			return ir.Instr{}, false
		}
		declTy, ok := l.resolveType(stmt.DestType, stmt.Line)
		if !ok {
			return ir.Instr{}, false
		}
		instr, resultTy, ok := l.lowerExpr(stmt.Expr, fc, scope, &declTy)
		if ok && resultTy != declTy {
			l.errorf(diag.TypeError, stmt.Line, "assignment to %q: expected %s, got %s", stmt.Dest, declTy, resultTy)
			ok = false
		}
		// The destination is bound with its declared type even when the
		// right-hand side failed, so later uses do not report it again.
		id := fc.fresh()
		fc.bound[stmt.Dest] = true
		fc.idTypes[id] = declTy
		scope[stmt.Dest] = id
		if !ok {
			return ir.Instr{}, false
		}
		instr.Dest = id
		instr.ResultTy = declTy
		return instr, true
	}

	instr, resultTy, ok := l.lowerExpr(stmt.Expr, fc, scope, nil)
	if !ok {
		return ir.Instr{}, false
	}
	if resultTy != types.Void {
		l.errorf(diag.TypeError, stmt.Line, "statement expression must have type void, got %s", resultTy)
		return ir.Instr{}, false
	}
	instr.ResultTy = types.Void
	return instr, true
}

// lowerExpr lowers a flat expression. expectedTy is non-nil when the
// expression is the RHS of an assignment whose destination type is known
// (needed to type an untyped integer literal used directly, without a
// T.const wrapper).
func (l *lowerer) lowerExpr(e ast.Expr, fc *funcCtx, scope map[string]ir.ID, expectedTy *types.Type) (ir.Instr, types.Type, bool) {
	switch e.Kind {
	case ast.ExprLiteral:
		if expectedTy == nil {
			l.errorf(diag.TypeError, e.Line, "bare integer literal has no statement form")
			return ir.Instr{}, types.Invalid, false
		}
		if !fits(*expectedTy, e.Literal) {
			l.errorf(diag.TypeError, e.Line, "literal %d does not fit in %s", e.Literal, *expectedTy)
			return ir.Instr{}, types.Invalid, false
		}
		return ir.Instr{Op: ir.OpConst, Args: []ir.Value{ir.ConstValue(*expectedTy, e.Literal)}}, *expectedTy, true

	case ast.ExprIdent:
		id, ty, ok := l.lookup(e.Ident, e.Line, fc, scope)
		if !ok {
			return ir.Instr{}, types.Invalid, false
		}
		// An identifier alone is not an instruction; the parser produces
		// this form for a name not followed by '(' (e.g. `x:i32 = y`), and
		// the IR has no copy op for it. Lowering rejects a bare identifier
		// RHS since every statement must name an operation.
		_ = id
		l.errorf(diag.TypeError, e.Line, "bare identifier %q is not an operation", e.Ident)
		return ir.Instr{}, ty, false

	case ast.ExprCall:
		return l.lowerCall(e, fc, scope)

	case ast.ExprOp:
		return l.lowerOp(e, fc, scope)
	}
	l.errorf(diag.ParseError, e.Line, "malformed expression")
	return ir.Instr{}, types.Invalid, false
}

func (l *lowerer) lookup(name string, line int, fc *funcCtx, scope map[string]ir.ID) (ir.ID, types.Type, bool) {
	id, ok := scope[name]
	if !ok {
		l.errorf(diag.NameError, line, "undefined name %q", name)
		return 0, types.Invalid, false
	}
	return id, fc.idTypes[id], true
}

func (l *lowerer) resolveArg(a ast.Arg, expected types.Type, fc *funcCtx, scope map[string]ir.ID) (ir.Value, bool) {
	if a.IsLiteral {
		if !fits(expected, a.Literal) {
			l.errorf(diag.TypeError, a.Line, "literal %d does not fit in %s", a.Literal, expected)
			return ir.Value{}, false
		}
		return ir.ConstValue(expected, a.Literal), true
	}
	id, ty, ok := l.lookup(a.Ident, a.Line, fc, scope)
	if !ok {
		return ir.Value{}, false
	}
	if ty != expected {
		l.errorf(diag.TypeError, a.Line, "argument %q: expected %s, got %s", a.Ident, expected, ty)
		return ir.Value{}, false
	}
	return ir.RefValue(id), true
}

func fits(t types.Type, n int64) bool {
	switch t {
	case types.I32:
		return n >= -(1<<31) && n <= (1<<31)-1
	case types.I64, types.Ptr:
		return true
	default:
		return false
	}
}

func (l *lowerer) lowerCall(e ast.Expr, fc *funcCtx, scope map[string]ir.ID) (ir.Instr, types.Type, bool) {
	s, ok := fc.sigs[e.Name]
	if !ok {
		l.errorf(diag.NameError, e.Line, "call to undefined function %q", e.Name)
		return ir.Instr{}, types.Invalid, false
	}
	if len(e.Args) != len(s.params) {
		l.errorf(diag.TypeError, e.Line, "call to %q: expected %d arguments, got %d", e.Name, len(s.params), len(e.Args))
		return ir.Instr{}, types.Invalid, false
	}
	args := make([]ir.Value, len(e.Args))
	ok = true
	for i, a := range e.Args {
		v, good := l.resolveArg(a, s.params[i], fc, scope)
		if !good {
			ok = false
			continue
		}
		args[i] = v
	}
	if !ok {
		return ir.Instr{}, types.Invalid, false
	}
	return ir.Instr{Op: ir.OpCall, Callee: e.Name, Args: args}, s.ret, true
}

// lowerOp resolves a dotted opcode form against the closed instruction set
// in spec §3: T.const, T.add/sub/mul/div, T.eq/lt, sizeof.T, ptr.add,
// T.load, T.store, alloc, free.
func (l *lowerer) lowerOp(e ast.Expr, fc *funcCtx, scope map[string]ir.ID) (ir.Instr, types.Type, bool) {
	switch e.Name {
	case "alloc":
		if len(e.Args) != 1 {
			l.errorf(diag.TypeError, e.Line, "alloc expects 1 argument, got %d", len(e.Args))
			return ir.Instr{}, types.Invalid, false
		}
		size, ok := l.resolveArg(e.Args[0], types.I64, fc, scope)
		if !ok {
			return ir.Instr{}, types.Invalid, false
		}
		return ir.Instr{Op: ir.OpAlloc, Args: []ir.Value{size}}, types.Ptr, true

	case "free":
		if len(e.Args) != 1 {
			l.errorf(diag.TypeError, e.Line, "free expects 1 argument, got %d", len(e.Args))
			return ir.Instr{}, types.Invalid, false
		}
		p, ok := l.resolveArg(e.Args[0], types.Ptr, fc, scope)
		if !ok {
			return ir.Instr{}, types.Invalid, false
		}
		return ir.Instr{Op: ir.OpFree, Args: []ir.Value{p}}, types.Void, true

	case "ptr.add":
		if len(e.Args) != 2 {
			l.errorf(diag.TypeError, e.Line, "ptr.add expects 2 arguments, got %d", len(e.Args))
			return ir.Instr{}, types.Invalid, false
		}
		p, ok1 := l.resolveArg(e.Args[0], types.Ptr, fc, scope)
		off, ok2 := l.resolveArg(e.Args[1], types.I64, fc, scope)
		if !ok1 || !ok2 {
			return ir.Instr{}, types.Invalid, false
		}
		return ir.Instr{Op: ir.OpPtrAdd, Args: []ir.Value{p, off}}, types.Ptr, true
	}

	if strings.HasPrefix(e.Name, "sizeof.") {
		tyKw := strings.TrimPrefix(e.Name, "sizeof.")
		t, ok := l.resolveType(tyKw, e.Line)
		if !ok {
			return ir.Instr{}, types.Invalid, false
		}
		if len(e.Args) != 0 {
			l.errorf(diag.TypeError, e.Line, "sizeof.%s takes no arguments", tyKw)
			return ir.Instr{}, types.Invalid, false
		}
		return ir.Instr{Op: ir.OpSizeof, SizeofTy: t}, types.I64, true
	}

	dot := strings.IndexByte(e.Name, '.')
	if dot < 0 {
		l.errorf(diag.UnknownOp, e.Line, "unknown opcode %q", e.Name)
		return ir.Instr{}, types.Invalid, false
	}
	tyKw, opName := e.Name[:dot], e.Name[dot+1:]
	t, ok := l.resolveType(tyKw, e.Line)
	if !ok {
		return ir.Instr{}, types.Invalid, false
	}
	if t.IsFloat() {
		l.errorf(diag.TypeError, e.Line, "%s.%s: floating-point types have no defined operations", tyKw, opName)
		return ir.Instr{}, types.Invalid, false
	}

	switch opName {
	case "const":
		if len(e.Args) != 1 || !e.Args[0].IsLiteral {
			l.errorf(diag.TypeError, e.Line, "%s.const expects a single literal argument", tyKw)
			return ir.Instr{}, types.Invalid, false
		}
		if !t.IsInteger() {
			l.errorf(diag.TypeError, e.Line, "%s.const: floating-point types have no defined operations", tyKw)
			return ir.Instr{}, types.Invalid, false
		}
		if !fits(t, e.Args[0].Literal) {
			l.errorf(diag.TypeError, e.Line, "literal %d does not fit in %s", e.Args[0].Literal, t)
			return ir.Instr{}, types.Invalid, false
		}
		return ir.Instr{Op: ir.OpConst, Args: []ir.Value{ir.ConstValue(t, e.Args[0].Literal)}}, t, true

	case "add", "sub", "mul", "div":
		if t == types.Ptr {
			l.errorf(diag.UnknownOp, e.Line, "%s.%s: pointer arithmetic is only defined via ptr.add", tyKw, opName)
			return ir.Instr{}, types.Invalid, false
		}
		if !t.IsInteger() {
			l.errorf(diag.TypeError, e.Line, "%s.%s: floating-point types have no defined operations", tyKw, opName)
			return ir.Instr{}, types.Invalid, false
		}
		if len(e.Args) != 2 {
			l.errorf(diag.TypeError, e.Line, "%s.%s expects 2 arguments, got %d", tyKw, opName, len(e.Args))
			return ir.Instr{}, types.Invalid, false
		}
		a, ok1 := l.resolveArg(e.Args[0], t, fc, scope)
		b, ok2 := l.resolveArg(e.Args[1], t, fc, scope)
		if !ok1 || !ok2 {
			return ir.Instr{}, types.Invalid, false
		}
		return ir.Instr{Op: opFor(opName), Args: []ir.Value{a, b}}, t, true

	case "eq", "lt":
		if len(e.Args) != 2 {
			l.errorf(diag.TypeError, e.Line, "%s.%s expects 2 arguments, got %d", tyKw, opName, len(e.Args))
			return ir.Instr{}, types.Invalid, false
		}
		a, ok1 := l.resolveArg(e.Args[0], t, fc, scope)
		b, ok2 := l.resolveArg(e.Args[1], t, fc, scope)
		if !ok1 || !ok2 {
			return ir.Instr{}, types.Invalid, false
		}
		op := ir.OpEq
		if opName == "lt" {
			op = ir.OpLt
		}
		return ir.Instr{Op: op, Args: []ir.Value{a, b}}, types.I32, true

	case "load":
		if len(e.Args) != 1 {
			l.errorf(diag.TypeError, e.Line, "%s.load expects 1 argument, got %d", tyKw, len(e.Args))
			return ir.Instr{}, types.Invalid, false
		}
		p, ok := l.resolveArg(e.Args[0], types.Ptr, fc, scope)
		if !ok {
			return ir.Instr{}, types.Invalid, false
		}
		return ir.Instr{Op: ir.OpLoad, Args: []ir.Value{p}, SizeofTy: t}, t, true

	case "store":
		if len(e.Args) != 2 {
			l.errorf(diag.TypeError, e.Line, "%s.store expects 2 arguments, got %d", tyKw, len(e.Args))
			return ir.Instr{}, types.Invalid, false
		}
		p, ok1 := l.resolveArg(e.Args[0], types.Ptr, fc, scope)
		v, ok2 := l.resolveArg(e.Args[1], t, fc, scope)
		if !ok1 || !ok2 {
			return ir.Instr{}, types.Invalid, false
		}
		return ir.Instr{Op: ir.OpStore, Args: []ir.Value{p, v}, SizeofTy: t}, types.Void, true
	}

	l.errorf(diag.UnknownOp, e.Line, "unknown opcode %q", e.Name)
	return ir.Instr{}, types.Invalid, false
}

func opFor(name string) ir.Op {
	switch name {
	case "add":
		return ir.OpAdd
	case "sub":
		return ir.OpSub
	case "mul":
		return ir.OpMul
	case "div":
		return ir.OpDiv
	}
	return ir.OpAdd
}

func (l *lowerer) lowerTerm(t *ast.Term, fc *funcCtx, scope map[string]ir.ID, retType types.Type) (*ir.Terminator, bool) {
	switch t.Kind {
	case ast.TermRetVoid:
		if retType != types.Void {
			l.errorf(diag.TypeError, t.Line, "'ret' with no value in a function returning %s", retType)
			return nil, false
		}
		return &ir.Terminator{Kind: ir.TermRetVoid}, true

	case ast.TermRet:
		if retType == types.Void {
			l.errorf(diag.TypeError, t.Line, "'ret' with a value in a function returning void")
			return nil, false
		}
		v, ok := l.resolveArg(t.Value, retType, fc, scope)
		if !ok {
			return nil, false
		}
		return &ir.Terminator{Kind: ir.TermRet, RetValue: v}, true

	case ast.TermBr:
		args, ok := l.resolveTargetArgs(t.To, fc, scope)
		if !ok {
			return nil, false
		}
		return &ir.Terminator{Kind: ir.TermBr, Target: t.To.Label, TargetArgs: args}, true

	case ast.TermBrIf:
		cond, ok := l.resolveArg(t.Cond, types.I32, fc, scope)
		if !ok {
			return nil, false
		}
		trueArgs, ok1 := l.resolveTargetArgs(t.True, fc, scope)
		falseArgs, ok2 := l.resolveTargetArgs(t.False, fc, scope)
		if !ok1 || !ok2 {
			return nil, false
		}
		return &ir.Terminator{
			Kind: ir.TermBrIf, Cond: cond,
			TrueTarget: t.True.Label, TrueArgs: trueArgs,
			FalseTarget: t.False.Label, FalseArgs: falseArgs,
		}, true
	}
	l.errorf(diag.CFGError, t.Line, "malformed terminator")
	return nil, false
}

func (l *lowerer) resolveTargetArgs(target ast.Target, fc *funcCtx, scope map[string]ir.ID) ([]ir.Value, bool) {
	params, ok := fc.blockParams[target.Label]
	if !ok {
		l.errorf(diag.CFGError, 0, "branch to unknown label %q", target.Label)
		return nil, false
	}
	if len(target.Args) != len(params) {
		l.errorf(diag.CFGError, 0, "branch to %q: expected %d arguments, got %d", target.Label, len(params), len(target.Args))
		return nil, false
	}
	out := make([]ir.Value, len(params))
	good := true
	for i, a := range target.Args {
		v, ok := l.resolveArg(a, params[i].Type, fc, scope)
		if !ok {
			good = false
			continue
		}
		out[i] = v
	}
	if !good {
		return nil, false
	}
	return out, true
}
