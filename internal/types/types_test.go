package types

import "testing"

func TestSizeOf(t *testing.T) {
	cases := []struct {
		ty   Type
		want int64
	}{
		{I32, 4},
		{F32, 4},
		{I64, 8},
		{F64, 8},
		{Ptr, 8},
	}
	for _, c := range cases {
		got, err := SizeOf(c.ty)
		if err != nil {
			t.Fatalf("SizeOf(%s): %v", c.ty, err)
		}
		if got != c.want {
			t.Errorf("SizeOf(%s) = %d, want %d", c.ty, got, c.want)
		}
	}
}

func TestSizeOfVoidIsError(t *testing.T) {
	if _, err := SizeOf(Void); err == nil {
		t.Fatal("SizeOf(Void): expected an error, got nil")
	}
}

func TestFromKeyword(t *testing.T) {
	cases := map[string]Type{
		"i32": I32, "i64": I64, "f32": F32, "f64": F64,
		"ptr": Ptr, "usize": Ptr, "void": Void,
	}
	for kw, want := range cases {
		got, ok := FromKeyword(kw)
		if !ok {
			t.Errorf("FromKeyword(%q): not ok", kw)
			continue
		}
		if got != want {
			t.Errorf("FromKeyword(%q) = %s, want %s", kw, got, want)
		}
	}
	if _, ok := FromKeyword("bogus"); ok {
		t.Error("FromKeyword(\"bogus\"): expected not ok")
	}
}

func TestIsIntegerIsFloat(t *testing.T) {
	for _, ty := range []Type{I32, I64, Ptr} {
		if !ty.IsInteger() {
			t.Errorf("%s.IsInteger() = false, want true", ty)
		}
		if ty.IsFloat() {
			t.Errorf("%s.IsFloat() = true, want false", ty)
		}
	}
	for _, ty := range []Type{F32, F64} {
		if ty.IsInteger() {
			t.Errorf("%s.IsInteger() = true, want false", ty)
		}
		if !ty.IsFloat() {
			t.Errorf("%s.IsFloat() = false, want true", ty)
		}
	}
}
