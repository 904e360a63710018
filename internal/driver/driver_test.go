package driver

import (
	"os/exec"
	"testing"

	"tilt/internal/ir"
	"tilt/internal/lexer"
	"tilt/internal/lower"
	"tilt/internal/parser"
	"tilt/internal/tilttest"
)

func lowerSrc(t *testing.T, src string) *ir.Module {
	t.Helper()
	toks, lexErrs := lexer.New("t.tilt", src).Scan()
	if len(lexErrs) != 0 {
		t.Fatalf("lex errors: %v", lexErrs)
	}
	astMod, parseErrs := parser.New("t.tilt", toks).Parse()
	if len(parseErrs) != 0 {
		t.Fatalf("parse errors: %v", parseErrs)
	}
	mod, lowerErrs := lower.Lower("t.tilt", astMod)
	if len(lowerErrs) != 0 {
		t.Fatalf("lower errors: %v", lowerErrs)
	}
	return mod
}

func requireClang(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("clang"); err != nil {
		t.Skip("clang not available, skipping JIT-backed driver test")
	}
}

func TestDriverVMOnly(t *testing.T) {
	scenarios, err := tilttest.Load()
	if err != nil {
		t.Fatalf("tilttest.Load: %v", err)
	}
	for _, sc := range scenarios {
		sc := sc
		mod := lowerSrc(t, sc.Source)
		res, err := Run(mod, "main", nil, VM)
		if err != nil {
			t.Fatalf("%s: Run: %v", sc.Name, err)
		}
		if !res.RanVM || res.RanJIT {
			t.Fatalf("%s: got %+v, want only RanVM", sc.Name, res)
		}
		if res.VMValue.AsInt64() != sc.Want {
			t.Errorf("%s: got %d, want %d", sc.Name, res.VMValue.AsInt64(), sc.Want)
		}
	}
}

func TestDriverBothEnginesAgree(t *testing.T) {
	requireClang(t)
	scenarios, err := tilttest.Load()
	if err != nil {
		t.Fatalf("tilttest.Load: %v", err)
	}
	for _, sc := range scenarios {
		sc := sc
		mod := lowerSrc(t, sc.Source)
		res, err := Run(mod, "main", nil, Both)
		if err != nil {
			t.Fatalf("%s: Run (both): %v", sc.Name, err)
		}
		if res.Diverged {
			t.Fatalf("%s: vm/jit diverged: vm=%s jit=%s", sc.Name, res.VMValue, res.JITValue)
		}
		if res.VMValue.AsInt64() != sc.Want {
			t.Errorf("%s: vm got %d, want %d", sc.Name, res.VMValue.AsInt64(), sc.Want)
		}
	}
}

func TestDriverUnknownEngine(t *testing.T) {
	mod := lowerSrc(t, `
fn main() -> i32 {
entry:
  ret(0)
}
`)
	if _, err := Run(mod, "main", nil, Engine("bogus")); err == nil {
		t.Fatal("expected an error for an unknown engine")
	}
}
