package phpser

import "testing"

func TestAppendValues(t *testing.T) {
	var b []byte
	b = AppendArray(b, 3)
	b = AppendKey(b, "id")
	b = AppendInt(b, -4)
	b = AppendIndex(b, 1)
	b = AppendBool(b, true)
	b = AppendKey(b, "average")
	b = AppendFloat(b, 2.5)
	b = append(b, '}')

	want := `a:3:{s:2:"id";i:-4;i:1;b:1;s:7:"average";d:2.5;}`
	if string(b) != want {
		t.Fatalf("expected %q, got %q", want, string(b))
	}
}

func TestAppendStringCountsBytes(t *testing.T) {
	got := string(AppendString(nil, "héllo"))
	if got != `s:6:"héllo";` {
		t.Fatalf("unexpected encoding: %q", got)
	}
}

func TestAppendFloatPrecision(t *testing.T) {
	got := string(AppendFloat(nil, 1.0/3.0))
	if got != "d:0.3333333333333333;" {
		t.Fatalf("unexpected float encoding: %q", got)
	}
}
