package schema

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/topy/internal/codec"
	"github.com/verte-zerg/topy/internal/field"
)

func TestAddRules(t *testing.T) {
	s := New()
	require.NoError(t, s.Add("visits", field.KindEvents))
	if err := s.Add("visits", field.KindInt); !ErrDuplicate.Is(err) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	for i := 1; i < Capacity; i++ {
		require.NoError(t, s.Add("f"+string(rune('a'+i)), field.KindInt))
	}
	if err := s.Add("extra", field.KindInt); !ErrFull.Is(err) {
		t.Fatalf("expected full error, got %v", err)
	}
	id, ok := s.ID("visits")
	require.True(t, ok)
	require.Equal(t, 0, id)

	s2 := New()
	s2.Use()
	if err := s2.Add("late", field.KindInt); !ErrFrozen.Is(err) {
		t.Fatalf("expected frozen error, got %v", err)
	}
}

func TestFromDefs(t *testing.T) {
	s, err := FromDefs([][2]string{{"visits", "events"}, {"votes", "marks"}})
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())
	require.Equal(t, `a:2:{s:6:"visits";s:6:"events";s:5:"votes";s:5:"marks";}`, string(s.AppendPHP(nil)))

	_, err = FromDefs([][2]string{{"x", "float"}})
	if !ErrUnknownType.Is(err) {
		t.Fatalf("expected unknown type error, got %v", err)
	}
}

func TestTextSection(t *testing.T) {
	defs := []Def{{"visits", field.KindEvents}, {"last", field.KindTimestamp}}
	raw := AppendText(nil, defs)
	require.Equal(t, "F{2:\nf{\"visits\":\"events\"}\nf{\"last\":\"timestamp\"}\n}\n", string(raw))

	got, err := ParseText(codec.NewParser(bytes.NewReader(raw)))
	require.NoError(t, err)
	require.Equal(t, defs, got)

	got, err = ParseText(codec.NewParser(strings.NewReader("G{0:\n}\n")))
	require.NoError(t, err)
	require.Nil(t, got)

	_, err = ParseText(codec.NewParser(strings.NewReader("F{1:\nf{\"a\":\"float\"}\n}\n")))
	require.Error(t, err)
}

func TestBinarySection(t *testing.T) {
	defs := []Def{{"visits", field.KindEvents}, {"log", field.KindLog}}
	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	DumpBinary(w, defs)
	require.NoError(t, w.Flush())
	require.Equal(t, byte(2), buf.Bytes()[0])

	got, err := ParseBinary(codec.NewReader(bytes.NewReader(buf.Bytes())))
	require.NoError(t, err)
	require.Equal(t, defs, got)

	raw := append([]byte(nil), buf.Bytes()...)
	raw[1] ^= 0xff
	if _, err := ParseBinary(codec.NewReader(bytes.NewReader(raw))); err == nil {
		t.Fatalf("expected magic error")
	}
}

func TestReconcile(t *testing.T) {
	empty := New()
	warnings, err := empty.Reconcile([]Def{{"visits", field.KindEvents}})
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, 1, empty.Len())

	s, err := FromDefs([][2]string{{"hits", "events"}, {"n", "int"}})
	require.NoError(t, err)
	warnings, err = s.Reconcile([]Def{{"visits", field.KindEvents}})
	require.NoError(t, err)
	require.Len(t, warnings, 1)

	_, err = s.Reconcile([]Def{{"hits", field.KindMarks}})
	if !ErrMismatch.Is(err) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	_, err = s.Reconcile([]Def{{"hits", field.KindEvents}, {"n", field.KindInt}, {"x", field.KindInt}})
	require.Error(t, err)
}
