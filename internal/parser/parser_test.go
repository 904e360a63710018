package parser

import (
	"testing"

	"tilt/internal/ast"
	"tilt/internal/lexer"
)

func parse(t *testing.T, src string) *ast.Module {
	t.Helper()
	toks, lexErrs := lexer.New("t.tilt", src).Scan()
	if len(lexErrs) != 0 {
		t.Fatalf("lex errors: %v", lexErrs)
	}
	mod, errs := New("t.tilt", toks).Parse()
	if len(errs) != 0 {
		t.Fatalf("parse errors: %v", errs)
	}
	return mod
}

func TestParseMinimalFunc(t *testing.T) {
	mod := parse(t, `
fn main() -> i32 {
entry:
  r:i32 = i32.const(42)
  ret(r)
}
`)
	if len(mod.Funcs) != 1 {
		t.Fatalf("got %d funcs, want 1", len(mod.Funcs))
	}
	fn := mod.Funcs[0]
	if fn.Name != "main" || fn.RetType != "i32" {
		t.Fatalf("got %+v", fn)
	}
	if len(fn.Blocks) != 1 || fn.Blocks[0].Label != "entry" {
		t.Fatalf("got blocks %+v", fn.Blocks)
	}
	stmt := fn.Blocks[0].Instrs[0]
	if !stmt.IsAssign || stmt.Dest != "r" || stmt.DestType != "i32" {
		t.Fatalf("got stmt %+v", stmt)
	}
	if stmt.Expr.Kind != ast.ExprOp || stmt.Expr.Name != "i32.const" {
		t.Fatalf("got expr %+v", stmt.Expr)
	}
}

func TestParseImport(t *testing.T) {
	mod := parse(t, `import "host" "print_i32" (v:i32) -> void

fn main() -> i32 {
entry:
  ret(0)
}
`)
	if len(mod.Imports) != 1 {
		t.Fatalf("got %d imports, want 1", len(mod.Imports))
	}
	imp := mod.Imports[0]
	if imp.Module != "host" || imp.Name != "print_i32" || imp.RetType != "void" {
		t.Fatalf("got %+v", imp)
	}
}

func TestParseCallExpr(t *testing.T) {
	mod := parse(t, `
fn f(n:i32) -> i32 {
entry:
  r:i32 = call f(n)
  ret(r)
}
`)
	stmt := mod.Funcs[0].Blocks[0].Instrs[0]
	if stmt.Expr.Kind != ast.ExprCall || stmt.Expr.Name != "f" {
		t.Fatalf("got %+v", stmt.Expr)
	}
}

func TestParseBlockParamsAndBranches(t *testing.T) {
	mod := parse(t, `
fn loop_sum(n:i32) -> i32 {
entry:
  br loop(1, 0, n)
loop(i:i32, acc:i32, lim:i32):
  cont:i32 = i32.lt(i, lim)
  br_if cont, body(i, acc, lim), done(acc)
body(i2:i32, acc2:i32, lim2:i32):
  br loop(i2, acc2, lim2)
done(result:i32):
  ret(result)
}
`)
	fn := mod.Funcs[0]
	if len(fn.Blocks) != 4 {
		t.Fatalf("got %d blocks, want 4", len(fn.Blocks))
	}
	loop := fn.Blocks[1]
	if len(loop.Params) != 3 || loop.Params[0].Name != "i" {
		t.Fatalf("got loop params %+v", loop.Params)
	}
	if loop.Term.Kind != ast.TermBrIf {
		t.Fatalf("got term kind %v", loop.Term.Kind)
	}
}

func TestParseErrorOnMissingTerminator(t *testing.T) {
	toks, _ := lexer.New("t.tilt", `
fn main() -> i32 {
entry:
  r:i32 = i32.const(1)
}
`).Scan()
	_, errs := New("t.tilt", toks).Parse()
	if len(errs) == 0 {
		t.Fatal("expected a parse error for a block with no terminator")
	}
}
