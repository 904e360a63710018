package jit

import (
	"os/exec"
	"testing"

	"tilt/internal/lexer"
	"tilt/internal/lower"
	"tilt/internal/parser"
	"tilt/internal/tilttest"
)

func requireClang(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("clang"); err != nil {
		t.Skip("clang not available, skipping JIT tests")
	}
}

func TestJITRunsAllFixtureScenarios(t *testing.T) {
	requireClang(t)
	scenarios, err := tilttest.Load()
	if err != nil {
		t.Fatalf("tilttest.Load: %v", err)
	}
	for _, sc := range scenarios {
		sc := sc
		t.Run(sc.Name, func(t *testing.T) {
			toks, lexErrs := lexer.New("t.tilt", sc.Source).Scan()
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

			engine, err := New(mod)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer engine.Close()

			got, err := engine.Run("main", nil)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got.AsInt64() != sc.Want {
				t.Errorf("main() = %d, want %d", got.AsInt64(), sc.Want)
			}
		})
	}
}

func TestJITUnknownFunction(t *testing.T) {
	requireClang(t)
	toks, _ := lexer.New("t.tilt", `
fn main() -> i32 {
entry:
  ret(0)
}
`).Scan()
	astMod, _ := parser.New("t.tilt", toks).Parse()
	mod, lowerErrs := lower.Lower("t.tilt", astMod)
	if len(lowerErrs) != 0 {
		t.Fatalf("lower errors: %v", lowerErrs)
	}
	engine, err := New(mod)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer engine.Close()

	if _, err := engine.Run("nonexistent", nil); err == nil {
		t.Fatal("expected an error for an unknown function name")
	}
}
