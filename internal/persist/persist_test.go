package persist

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/topy/internal/codec"
	"github.com/verte-zerg/topy/internal/field"
	"github.com/verte-zerg/topy/internal/groups"
	"github.com/verte-zerg/topy/internal/schema"
	"github.com/verte-zerg/topy/internal/timer"
	"github.com/verte-zerg/topy/internal/users"
)

var allTypes = [][2]string{
	{"visits", "events"}, {"votes", "marks"}, {"n", "int"}, {"u", "uint"},
	{"seen", "timestamp"}, {"friends", "ulog"}, {"history", "log"},
}

func options(t *testing.T, kind users.IDKind) Options {
	t.Helper()
	s, err := schema.FromDefs(allTypes)
	require.NoError(t, err)
	now := time.Date(2021, time.June, 15, 12, 30, 0, 0, time.UTC)
	return Options{IDKind: kind, Schema: s, Env: &field.Env{Timer: timer.New(func() time.Time { return now })}}
}

func populated(t *testing.T, opt Options) *State {
	t.Helper()
	st := NewState(opt)
	st.Groups.Add("admins")
	st.Groups.AddWithID("adults", 4, 12)

	u := st.Users.Open("1", true)
	u.Field(0).Add(3)
	u.Field(0).Add(400)
	u.Field(1).Add(4)
	u.Field(2).Add(-2)
	u.Field(3).Add(9)
	u.Field(4).Add(0)
	u.Field(5).(*field.Log).Insert(7, 100, false)
	u.Field(6).(*field.Log).Insert(8, 200, false)
	u.Group = 1
	u.Unlock()

	// A user with nothing recorded yet.
	u = st.Users.Open("2", true)
	u.Unlock()

	u = st.Users.Open("3", true)
	u.Delete()
	u.Unlock()
	return st
}

func text(t *testing.T, st *State) []byte {
	t.Helper()
	var buf bytes.Buffer
	n, err := WriteText(&buf, st)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	return buf.Bytes()
}

func binaryDump(t *testing.T, st *State) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, err := WriteBinary(&buf, st)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestTextRoundTrip(t *testing.T) {
	opt := options(t, users.IDInt)
	raw := text(t, populated(t, opt))
	require.True(t, strings.HasPrefix(string(raw), "F{7:\nf{\"visits\":\"events\"}\n"), string(raw))
	require.Contains(t, string(raw), "G{2:\ng{\"admins\":1:0}\ng{\"adults\":4:12}\n}\nU{2:\nu{1:1:")

	st, warnings, err := ReadText(bytes.NewReader(raw), opt)
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, 2, st.Users.Count())
	require.Equal(t, string(raw), string(text(t, st)))
	require.False(t, opt.Schema.Frozen())
}

func TestTextWithoutFieldsSection(t *testing.T) {
	opt := options(t, users.IDString)
	opt.Schema = schema.New()
	require.NoError(t, opt.Schema.Add("n", field.KindInt))
	raw := "G{0:\n}\nU{1:\nu{\"bob\":0:i{5}}\n}\n"
	st, _, err := ReadText(strings.NewReader(raw), opt)
	require.NoError(t, err)
	u := st.Users.Open("bob", false)
	require.NotNil(t, u)
	require.Equal(t, int64(5), u.Field(0).Score(0))
	u.Unlock()
}

func TestTextSyntaxErrorLine(t *testing.T) {
	opt := options(t, users.IDInt)
	raw := text(t, populated(t, opt))
	broken := strings.Replace(string(raw), "u{1:1:", "u{1:1;", 1)
	_, _, err := ReadText(strings.NewReader(broken), opt)
	var syntax *SyntaxError
	if !errors.As(err, &syntax) {
		t.Fatalf("expected syntax error, got %v", err)
	}
	require.Equal(t, 15, syntax.Line)
}

func TestBinaryRoundTrip(t *testing.T) {
	for _, kind := range []users.IDKind{users.IDInt, users.IDInt64, users.IDString} {
		opt := options(t, kind)
		raw := binaryDump(t, populated(t, opt))
		require.Equal(t, Magic, string(raw[:4]))
		require.Equal(t, Magic, string(raw[len(raw)-4:]))

		st, _, err := ReadBinary(bytes.NewReader(raw), opt)
		require.NoError(t, err, kind.String())
		require.Equal(t, raw, binaryDump(t, st), kind.String())
	}
}

func TestBinaryCorruptionRejected(t *testing.T) {
	opt := options(t, users.IDInt)
	st := populated(t, opt)
	raw := binaryDump(t, st)
	groupsAt := len(Magic) + 1 + sectionLen(t, func(w *codec.Writer) { schema.DumpBinary(w, st.Schema.Defs()) })
	usersAt := groupsAt + sectionLen(t, func(w *codec.Writer) { groups.DumpBinary(w, st.Groups.Entries()) })
	offsets := map[string]int{
		"start magic":   0,
		"version":       4,
		"field magic":   6,
		"group magic":   groupsAt + 4,
		"user magic":    usersAt + 4,
		"end magic":     len(raw) - 1,
		"truncated end": -1,
	}
	for name, off := range offsets {
		broken := append([]byte(nil), raw...)
		if off < 0 {
			broken = broken[:len(broken)-2]
		} else {
			broken[off] ^= 0xff
		}
		st, _, err := ReadBinary(bytes.NewReader(broken), opt)
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		require.Nil(t, st, name)
	}
}

func sectionLen(t *testing.T, write func(*codec.Writer)) int {
	t.Helper()
	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	write(w)
	require.NoError(t, w.Flush())
	return buf.Len()
}

func TestSchemaMismatch(t *testing.T) {
	opt := options(t, users.IDInt)
	raw := binaryDump(t, populated(t, opt))

	other, err := schema.FromDefs([][2]string{{"visits", "marks"}})
	require.NoError(t, err)
	opt.Schema = other
	_, _, err = ReadBinary(bytes.NewReader(raw), opt)
	if !schema.ErrMismatch.Is(err) {
		t.Fatalf("expected mismatch, got %v", err)
	}

	renamed := make([][2]string, len(allTypes))
	copy(renamed, allTypes)
	renamed[0][0] = "hits"
	opt.Schema, err = schema.FromDefs(renamed)
	require.NoError(t, err)
	_, warnings, err := ReadBinary(bytes.NewReader(raw), opt)
	require.NoError(t, err)
	require.Equal(t, []string{"field name has changed: 'visits' != 'hits'"}, warnings)
}

func TestDumpFileAndFormat(t *testing.T) {
	require.Equal(t, FormatText, FormatFor("/tmp/a.txt"))
	require.Equal(t, FormatBinary, FormatFor(".txt"))
	require.Equal(t, FormatBinary, FormatFor("/tmp/a.bin"))

	opt := options(t, users.IDInt)
	st := populated(t, opt)
	dir := t.TempDir()
	for _, name := range []string{"dump.txt", "dump.bin"} {
		path := filepath.Join(dir, name)
		n, err := Dump(st, path)
		require.NoError(t, err)
		require.Equal(t, 2, n)
		if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("expected temp file to be gone, got %v", err)
		}
		restored, _, err := Restore(path, opt)
		require.NoError(t, err, name)
		require.Equal(t, 2, restored.Users.Count())
	}

	if _, err := Dump(st, filepath.Join(dir, "missing", "dump.bin")); err == nil {
		t.Fatalf("expected error for missing directory")
	}
	if _, _, err := Restore(filepath.Join(dir, "nope.bin"), opt); err == nil {
		t.Fatalf("expected error for missing dump")
	}
}
