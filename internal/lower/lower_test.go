package lower

import (
	"testing"

	"tilt/internal/diag"
	"tilt/internal/ir"
	"tilt/internal/lexer"
	"tilt/internal/parser"
	"tilt/internal/types"
)

func lowerSrc(t *testing.T, src string) (*ir.Module, []*diag.Error) {
	t.Helper()
	toks, lexErrs := lexer.New("t.tilt", src).Scan()
	if len(lexErrs) != 0 {
		t.Fatalf("lex errors: %v", lexErrs)
	}
	astMod, parseErrs := parser.New("t.tilt", toks).Parse()
	if len(parseErrs) != 0 {
		t.Fatalf("parse errors: %v", parseErrs)
	}
	return Lower("t.tilt", astMod)
}

func TestLowerSimpleFunc(t *testing.T) {
	mod, errs := lowerSrc(t, `
fn main() -> i32 {
entry:
  a:i32 = i32.const(10)
  b:i32 = i32.const(32)
  r:i32 = i32.add(a, b)
  ret(r)
}
`)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	fn := mod.FuncByName("main")
	if fn == nil {
		t.Fatal("no main function")
	}
	if fn.RetType != types.I32 {
		t.Fatalf("RetType = %s, want i32", fn.RetType)
	}
	entry := fn.Entry()
	if len(entry.Instrs) != 3 {
		t.Fatalf("got %d instructions, want 3", len(entry.Instrs))
	}
	if entry.Instrs[2].Op != ir.OpAdd {
		t.Fatalf("got op %v, want add", entry.Instrs[2].Op)
	}
	if entry.Term.Kind != ir.TermRet {
		t.Fatalf("got terminator kind %v, want ret", entry.Term.Kind)
	}
}

func TestLowerUndefinedNameIsNameError(t *testing.T) {
	_, errs := lowerSrc(t, `
fn main() -> i32 {
entry:
  r:i32 = i32.add(x, 1)
  ret(r)
}
`)
	if len(errs) != 1 || errs[0].Kind != diag.NameError {
		t.Fatalf("got %v, want a single NameError", errs)
	}
}

func TestLowerTypeMismatchIsTypeError(t *testing.T) {
	_, errs := lowerSrc(t, `
fn main() -> i32 {
entry:
  p:ptr = alloc(4)
  r:i32 = i32.add(p, 1)
  ret(r)
}
`)
	if len(errs) == 0 {
		t.Fatal("expected a type error mixing ptr and i32 operands")
	}
	for _, e := range errs {
		if e.Kind != diag.TypeError {
			t.Errorf("got error kind %v, want TypeError", e.Kind)
		}
	}
}

func TestLowerMissingMainIsError(t *testing.T) {
	_, errs := lowerSrc(t, `
fn helper() -> i32 {
entry:
  ret(1)
}
`)
	if len(errs) != 1 || errs[0].Kind != diag.NameError {
		t.Fatalf("got %v, want a single NameError about missing main", errs)
	}
}

func TestLowerBranchArityMismatchIsCFGError(t *testing.T) {
	_, errs := lowerSrc(t, `
fn main() -> i32 {
entry:
  br next(1)
next:
  ret(0)
}
`)
	if len(errs) == 0 {
		t.Fatal("expected a CFG error for an arity mismatch on a branch")
	}
	found := false
	for _, e := range errs {
		if e.Kind == diag.CFGError {
			found = true
		}
	}
	if !found {
		t.Errorf("got %v, want a CFGError", errs)
	}
}

func TestLowerDuplicateNameInFunction(t *testing.T) {
	_, errs := lowerSrc(t, `
fn main() -> i32 {
entry:
  r:i32 = i32.const(1)
  r:i32 = i32.const(2)
  ret(r)
}
`)
	if len(errs) == 0 {
		t.Fatal("expected a NameError for rebinding 'r'")
	}
}

func TestLowerLoopSumBlockParams(t *testing.T) {
	mod, errs := lowerSrc(t, `
fn loop_sum(n:i32) -> i32 {
entry:
  br loop(1, 0, n)
loop(i:i32, acc:i32, lim:i32):
  cont:i32 = i32.lt(i, lim)
  br_if cont, body(i, acc, lim), done(acc)
body(i2:i32, acc2:i32, lim2:i32):
  nextacc:i32 = i32.add(acc2, i2)
  nexti:i32 = i32.add(i2, 1)
  br loop(nexti, nextacc, lim2)
done(result:i32):
  ret(result)
}

fn main() -> i32 {
entry:
  r:i32 = call loop_sum(5)
  ret(r)
}
`)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	fn := mod.FuncByName("loop_sum")
	loop := fn.Block("loop")
	if loop == nil || len(loop.Params) != 3 {
		t.Fatalf("got loop block %+v", loop)
	}
}

func TestLowerSizeofAndPtrAdd(t *testing.T) {
	mod, errs := lowerSrc(t, `
fn main() -> i32 {
entry:
  base:ptr = alloc(8)
  off:i64 = sizeof.i32()
  p2:ptr = ptr.add(base, off)
  i32.store(p2, 7)
  v:i32 = i32.load(p2)
  free(base)
  ret(v)
}
`)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	entry := mod.FuncByName("main").Entry()
	var sawSizeof, sawPtrAdd bool
	for _, instr := range entry.Instrs {
		if instr.Op == ir.OpSizeof {
			sawSizeof = true
			if instr.SizeofTy != types.I32 {
				t.Errorf("sizeof operand type = %s, want i32", instr.SizeofTy)
			}
			if instr.ResultTy != types.I64 {
				t.Errorf("sizeof result type = %s, want i64", instr.ResultTy)
			}
		}
		if instr.Op == ir.OpPtrAdd {
			sawPtrAdd = true
			if instr.ResultTy != types.Ptr {
				t.Errorf("ptr.add result type = %s, want ptr", instr.ResultTy)
			}
		}
	}
	if !sawSizeof {
		t.Error("lowering produced no OpSizeof instruction")
	}
	if !sawPtrAdd {
		t.Error("lowering produced no OpPtrAdd instruction")
	}
}

func TestLowerPointerArithmeticRejectsSubMulDiv(t *testing.T) {
	for _, op := range []string{"sub", "mul", "div"} {
		src := `
fn main() -> i32 {
entry:
  p:ptr = alloc(4)
  q:ptr = ptr.` + op + `(p, p)
  free(p)
  ret(0)
}
`
		_, errs := lowerSrc(t, src)
		if len(errs) == 0 {
			t.Errorf("ptr.%s: expected an error, got none", op)
			continue
		}
		if errs[0].Kind != diag.UnknownOp {
			t.Errorf("ptr.%s: got kind %v, want UnknownOp", op, errs[0].Kind)
		}
	}
}
