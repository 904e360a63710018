package diag

import "testing"

func TestErrorStringWithPos(t *testing.T) {
	e := At(TypeError, Pos{File: "p.tilt", Line: 3, Column: 5}, "bad thing %d", 7)
	want := "TypeError: bad thing 7 (at p.tilt:3:5)"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorStringWithoutPos(t *testing.T) {
	e := New(DivByZero, "division by zero")
	want := "DivByZero: division by zero"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestPosStringEmpty(t *testing.T) {
	if got := (Pos{}).String(); got != "" {
		t.Errorf("Pos{}.String() = %q, want empty", got)
	}
}
