package phpser

import "testing"

func TestDecodeNested(t *testing.T) {
	in := `a:3:{s:6:"uptime";i:60;s:5:"users";i:2;s:8:"commands";a:2:{s:4:"misc";i:3;s:13:"autodump::set";i:1;}}`
	arr, err := DecodeArray(in)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if arr.Int("uptime") != 60 || arr.Int("users") != 2 {
		t.Fatalf("unexpected scalars: %v", arr.Values)
	}
	cmds := arr.Array("commands")
	if cmds.Len() != 2 || cmds.Keys[1] != "autodump::set" || cmds.Int("misc") != 3 {
		t.Fatalf("unexpected commands: %+v", cmds)
	}
}

func TestDecodeRoundTripsEncoder(t *testing.T) {
	var b []byte
	b = AppendArray(b, 4)
	b = AppendIndex(b, 0)
	b = AppendString(b, `a "quoted";} name`)
	b = AppendKey(b, "ok")
	b = AppendBool(b, true)
	b = AppendKey(b, "avg")
	b = AppendFloat(b, 2.5)
	b = AppendKey(b, "none")
	b = append(b, "N;"...)
	b = append(b, '}')

	arr, err := DecodeArray(string(b))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if arr.String("0") != `a "quoted";} name` {
		t.Fatalf("unexpected string: %q", arr.String("0"))
	}
	if !arr.Bool("ok") {
		t.Fatalf("expected ok to be true")
	}
	if v, _ := arr.Get("avg"); v != 2.5 {
		t.Fatalf("expected 2.5, got %v", v)
	}
	if v, ok := arr.Get("none"); !ok || v != nil {
		t.Fatalf("expected a nil entry, got %v %v", v, ok)
	}
}

func TestDecodeErrors(t *testing.T) {
	for _, in := range []string{
		"",
		"i:12",
		`s:5:"abc";`,
		"a:1:{i:0;}",
		"a:1:{b:1;i:0;}",
		"i:1;i:2;",
		"x:1;",
	} {
		if _, err := Decode(in); err == nil {
			t.Fatalf("expected an error for %q", in)
		}
	}
}
