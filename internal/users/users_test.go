package users

import (
	"bytes"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/topy/internal/codec"
	"github.com/verte-zerg/topy/internal/field"
	"github.com/verte-zerg/topy/internal/filter"
	"github.com/verte-zerg/topy/internal/groups"
	"github.com/verte-zerg/topy/internal/schema"
	"github.com/verte-zerg/topy/internal/timer"
)

func newDirectory(t *testing.T, kind IDKind) *Directory {
	t.Helper()
	s, err := schema.FromDefs([][2]string{{"visits", "events"}, {"seen", "timestamp"}, {"n", "int"}})
	require.NoError(t, err)
	now := time.Date(2021, time.June, 15, 12, 30, 0, 0, time.UTC)
	env := &field.Env{Timer: timer.New(func() time.Time { return now })}
	return NewDirectory(kind, s, groups.New(), env)
}

func add(t *testing.T, d *Directory, id string, fieldID int, n int64) {
	t.Helper()
	u := d.Open(id, true)
	if u == nil {
		t.Fatalf("expected user %s", id)
	}
	u.Field(fieldID).Add(n)
	u.Unlock()
}

func TestOpenLifecycle(t *testing.T) {
	d := newDirectory(t, IDInt)
	if u := d.Open("42", false); u != nil {
		t.Fatalf("expected no user before creation")
	}
	add(t, d, "42", 0, 1)
	require.Equal(t, 1, d.Count())
	require.True(t, d.Schema().Frozen())

	u := d.Open("42", false)
	require.NotNil(t, u)
	u.Group = 3
	u.Delete()
	u.Unlock()

	require.Nil(t, d.Find("42"))
	require.Nil(t, d.Open("42", false))
	require.Equal(t, 1, d.Count())

	u = d.Open("42", true)
	require.NotNil(t, u)
	require.False(t, u.Deleted())
	require.Equal(t, uint32(0), u.Group)
	require.Equal(t, int64(0), u.Field(0).Score(19))
	u.Unlock()
}

func TestLongStringIDRejected(t *testing.T) {
	d := newDirectory(t, IDString)
	long := strings.Repeat("x", MaxIDLen+1)
	require.Nil(t, d.Open(long, true))
	require.Equal(t, 0, d.Count())

	u := d.Open(strings.Repeat("y", MaxIDLen), true)
	require.NotNil(t, u)
	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	u.DumpBinary(w)
	u.Unlock()
	require.NoError(t, w.Flush())

	p := codec.NewParser(strings.NewReader(`"` + long + `"`))
	if _, err := IDString.parseText(p); err == nil {
		t.Fatalf("expected a long id in a text dump to be rejected")
	}
}

func TestNormalize(t *testing.T) {
	require.Equal(t, "12", IDInt.Normalize("12abc"))
	require.Equal(t, "0", IDInt.Normalize("abc"))
	require.Equal(t, "4294967296", IDInt64.Normalize("4294967296"))
	require.Equal(t, "0", IDInt.Normalize("4294967296"))
	require.Equal(t, "bob", IDString.Normalize("bob"))
	k, ok := ParseIDKind("int64")
	require.True(t, ok)
	require.Equal(t, "INTEGER 64", k.String())
}

func TestAliasedLocksKeepEveryIncrement(t *testing.T) {
	d := newDirectory(t, IDString)
	first := "a"
	second := ""
	bucket := xxhash.Sum64String(first) & (LockPoolSize - 1)
	for i := 0; second == ""; i++ {
		id := "b" + strconv.Itoa(i)
		if xxhash.Sum64String(id)&(LockPoolSize-1) == bucket {
			second = id
		}
	}
	require.Same(t, d.lockFor(first), d.lockFor(second))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := first
			if i%2 == 1 {
				id = second
			}
			for j := 0; j < 200; j++ {
				u := d.Open(id, true)
				u.Field(2).Add(1)
				u.Unlock()
			}
		}(i)
	}
	wg.Wait()

	for _, id := range []string{first, second} {
		u := d.Open(id, false)
		require.Equal(t, int64(800), u.Field(2).Score(0), id)
		u.Unlock()
	}
}

func TestPendingUsersMerged(t *testing.T) {
	d := newDirectory(t, IDInt)
	add(t, d, "1", 2, 1)

	d.all.mu.Lock()
	add(t, d, "2", 2, 1)
	require.Len(t, d.pending, 1)
	require.Len(t, d.all.list, 1)
	d.all.mu.Unlock()

	require.Equal(t, 2, d.All().Len())
	require.Empty(t, d.pending)
}

func TestScans(t *testing.T) {
	d := newDirectory(t, IDInt)
	for i, seen := range []string{"100", "200", "300", "400"} {
		u := d.Open(strconv.Itoa(i), true)
		u.Field(1).Set(seen)
		if i%2 == 0 {
			u.Group = 1
		}
		u.Unlock()
	}
	d.Groups().AddWithID("even", 1, 0)
	even, err := filter.ParseString("[even]", d.Groups())
	require.NoError(t, err)

	all := d.All()
	require.Equal(t, 4, all.Count(nil))
	require.Equal(t, 2, all.Count(even))

	active, total := all.CountActive(nil, 1, 200)
	require.Equal(t, 2, active)
	require.Equal(t, 4, total)

	deleted, total := all.Cleanup(even, 1, 250)
	require.Equal(t, 1, deleted)
	require.Equal(t, 2, total)
	require.Equal(t, 3, all.Count(nil))
	require.Nil(t, d.Find("0"))
	require.Len(t, d.Snapshot(), 3)

	all.ClearField(nil, 1)
	active, _ = all.CountActive(nil, 1, 0)
	require.Equal(t, 0, active)

	_, ok := all.Report(nil, 1, field.KindTimestamp)
	require.False(t, ok)
	report, ok := all.Report(nil, 2, field.KindInt)
	require.True(t, ok)
	require.Equal(t, int64(3), report.(*field.IntReport).Count)
}

func TestSets(t *testing.T) {
	d := newDirectory(t, IDInt)
	for i := 0; i < 3; i++ {
		add(t, d, strconv.Itoa(i), 2, int64(i))
	}
	sets := NewSets()
	dst := sets.FindOrCreate("all")
	d.All().SelectInto(nil, dst)
	require.Equal(t, 3, dst.Len())
	require.Same(t, dst, sets.Find("all"))
	sets.FindOrCreate("b")

	list := sets.Sizes()
	require.Equal(t, "all\t3\nb\t0", ShowSizes(list))
	require.Equal(t, `a:2:{i:0;a:2:{s:4:"name";s:3:"all";s:5:"count";i:3;}i:1;a:2:{s:4:"name";s:1:"b";s:5:"count";i:0;}}`,
		string(AppendSizesPHP(nil, list)))

	require.True(t, sets.Delete("b"))
	require.False(t, sets.Delete("b"))
	require.Nil(t, sets.Find("b"))
}

func TestGroups(t *testing.T) {
	d := newDirectory(t, IDInt)
	d.Groups().Add("admins")
	add(t, d, "1", 2, 1)
	add(t, d, "2", 2, 1)
	add(t, d, "3", 2, 1)

	u := d.Open("1", false)
	require.True(t, u.SetGroup("admins"))
	require.Equal(t, "admins", u.GroupName())
	require.False(t, u.SetGroup("nope"))
	u.Unlock()

	require.Equal(t, "UNDEFINED\t#0\t2\nadmins\t#1\t1", d.GroupStats())
	d.ResetGroup(7)
	require.Equal(t, "UNDEFINED\t#0\t2\nadmins\t#1\t1", d.GroupStats())
	d.ResetGroup(1)
	require.Equal(t, "UNDEFINED\t#0\t3", d.GroupStats())

	u = d.Open("2", false)
	require.True(t, u.SetGroup("admins"))
	u.Unlock()
	d.ResetGroups()
	require.Equal(t, "UNDEFINED\t#0\t3", d.GroupStats())
}

func TestRenderings(t *testing.T) {
	d := newDirectory(t, IDString)
	u := d.Open("bob", true)
	u.Field(2).Add(5)
	require.Equal(t, `s:3:"bob";`, string(u.AppendID(nil)))
	require.Contains(t, string(u.AppendPHP(nil)), `a:5:{s:2:"id";s:3:"bob";s:5:"group";i:0;s:6:"visits";`)
	require.Contains(t, string(u.AppendPHP(nil)), `s:1:"n";i:5;}`)
	require.Equal(t, "\t visits : 0\t0\t0\t0\t seen : 0\t n : 5", u.Summary())
	require.Contains(t, u.Show(), "Id: bob\nGroup: #0 ()\nvisits :\n=======(last update: 0)\n")
	u.Unlock()
}

func TestUserTextRoundTrip(t *testing.T) {
	d := newDirectory(t, IDString)
	u := d.Open(`we"ird`, true)
	u.Field(0).Add(2)
	u.Field(2).Add(-7)
	u.Group = 9
	raw := u.AppendText(nil)
	u.Unlock()

	restored, err := d.ParseText(codec.NewParser(bytes.NewReader(raw)), 3)
	require.NoError(t, err)
	require.Equal(t, `we"ird`, restored.ID())
	require.Equal(t, uint32(9), restored.Group)
	require.Equal(t, string(raw), string(restored.AppendText(nil)))

	_, err = d.ParseText(codec.NewParser(bytes.NewReader(raw)), 4)
	require.Error(t, err)
}

func TestUserBinaryRoundTrip(t *testing.T) {
	for _, kind := range []IDKind{IDInt, IDInt64, IDString} {
		d := newDirectory(t, kind)
		u := d.Open("77", true)
		u.Field(0).Add(3)
		u.Group = 2
		var buf bytes.Buffer
		w := codec.NewWriter(&buf)
		u.DumpBinary(w)
		u.Unlock()
		require.NoError(t, w.Flush())
		raw := append([]byte(nil), buf.Bytes()...)

		restored, err := d.ParseBinary(codec.NewReader(&buf), 3)
		require.NoError(t, err, kind.String())
		require.Equal(t, "77", restored.ID())

		var again bytes.Buffer
		w = codec.NewWriter(&again)
		restored.DumpBinary(w)
		require.NoError(t, w.Flush())
		require.Equal(t, raw, again.Bytes(), kind.String())
	}
}

func TestDeletedUserDumpsBlank(t *testing.T) {
	d := newDirectory(t, IDInt)
	u := d.Open("5", true)
	u.Field(2).Add(4)
	u.Group = 1
	u.Delete()
	raw := u.AppendText(nil)
	u.Unlock()
	require.Equal(t, "u{5:0:v{t{-1:-1:-1}:0:0:h{1:0:}:d{1:0:}:m{2:0:}}:t{0}:i{0}}\n", string(raw))
}
