package groups

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/topy/internal/codec"
)

func TestAddAllocatesFromOne(t *testing.T) {
	r := New()
	if id := r.Add("admins"); id != 1 {
		t.Fatalf("expected id 1, got %d", id)
	}
	if id := r.Add("guests"); id != 2 {
		t.Fatalf("expected id 2, got %d", id)
	}
	if id := r.Add("admins"); id != 1 {
		t.Fatalf("expected existing id 1, got %d", id)
	}
	r.Delete("guests")
	if id := r.Add("bots"); id != 3 {
		t.Fatalf("expected id 3 after delete, got %d", id)
	}
}

func TestNameAndFilter(t *testing.T) {
	r := New()
	r.AddWithID("male", 1, 3)
	r.AddWithID("female", 2, 3)
	r.AddWithID("adult", 4, 12)
	r.AddWithID("paris", 16, 0)

	require.Equal(t, "paris", r.Name(16))
	require.Equal(t, "adult+male", r.Name(5))
	require.Equal(t, "", r.Name(64))

	f := r.ParseFilter("male+adult")
	require.Equal(t, Group{ID: 5, Mask: 15}, f)
	require.True(t, f.Match(5))
	require.False(t, f.Match(6))

	require.Equal(t, Group{ID: 16}, r.ParseFilter("paris+male"))
	require.Equal(t, Unknown, r.ParseFilter("male+nope").ID)
	require.Equal(t, Unknown, r.Get("nope").ID)
}

func TestRenderings(t *testing.T) {
	r := New()
	r.Add("b")
	r.AddWithID("a", 4, 12)
	require.Equal(t, "a\t#4\t(mask: 12)\nb\t#1", r.Show())
	require.Equal(t,
		`a:2:{i:0;a:3:{s:4:"name";s:1:"a";s:2:"id";i:4;s:4:"mask";i:12;}i:1;a:3:{s:4:"name";s:1:"b";s:2:"id";i:1;s:4:"mask";i:0;}}`,
		string(r.AppendPHP(nil)))
}

func TestTextSection(t *testing.T) {
	entries := []Entry{{Name: "a", Group: Group{ID: 4, Mask: 12}}, {Name: "b", Group: Group{ID: 1}}}
	raw := AppendText(nil, entries)
	require.Equal(t, "G{2:\ng{\"a\":4:12}\ng{\"b\":1:0}\n}\n", string(raw))

	got, err := ParseText(codec.NewParser(bytes.NewReader(raw)))
	require.NoError(t, err)
	require.Equal(t, entries, got)

	_, err = ParseText(codec.NewParser(bytes.NewReader([]byte("G{1:\ng{\"a\":4}\n}\n"))))
	require.Error(t, err)
}

func TestBinarySectionAndRestore(t *testing.T) {
	entries := []Entry{{Name: "x", Group: Group{ID: 7}}}
	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	DumpBinary(w, entries)
	require.NoError(t, w.Flush())

	got, err := ParseBinary(codec.NewReader(bytes.NewReader(buf.Bytes())))
	require.NoError(t, err)
	require.Equal(t, entries, got)

	r := New()
	for _, e := range got {
		r.Restore(e.Name, e.ID, e.Mask)
	}
	if id := r.Add("next"); id != 8 {
		t.Fatalf("expected counter past restored id, got %d", id)
	}

	raw := append([]byte(nil), buf.Bytes()...)
	raw[4] ^= 0xff
	if _, err := ParseBinary(codec.NewReader(bytes.NewReader(raw))); err == nil {
		t.Fatalf("expected magic error")
	}
}

func TestClear(t *testing.T) {
	r := New()
	r.Add("a")
	r.Add("b")
	r.Clear()
	require.Equal(t, 0, r.Len())
	require.Equal(t, uint32(1), r.Add("c"))
}
