package vector

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/topy/internal/codec"
)

func TestIncCreatesFirstSample(t *testing.T) {
	v := New(24, 1, true)
	if !v.Inc(3) {
		t.Fatalf("expected inc to succeed")
	}
	if v.Count() != 1 || v.Sample(0) != 3 {
		t.Fatalf("expected [3], got count=%d s0=%d", v.Count(), v.Sample(0))
	}
}

func TestIncUnsignedClamps(t *testing.T) {
	v := New(24, 1, true)
	v.Inc(2)
	if !v.Inc(-5) {
		t.Fatalf("expected clamp to report success")
	}
	if v.Sample(0) != 0 {
		t.Fatalf("expected 0, got %d", v.Sample(0))
	}
}

func TestIncOverflowLeavesSample(t *testing.T) {
	v := New(6, 1, false)
	v.Inc(120)
	if v.Inc(10) {
		t.Fatalf("expected overflow at one byte")
	}
	if v.Sample(0) != 120 {
		t.Fatalf("expected 120, got %d", v.Sample(0))
	}
}

func TestWidenPreservesValues(t *testing.T) {
	v := New(12, 1, true)
	v.Inc(250)
	v.Translate(1)
	v.Inc(5)
	if !v.IncWiden(251) {
		t.Fatalf("expected widen to succeed")
	}
	require.Equal(t, 2, v.Width())
	require.Equal(t, int64(256), v.Sample(0))
	require.Equal(t, int64(250), v.Sample(1))
}

func TestIncWidenStopsAtFourBytes(t *testing.T) {
	v := New(2, 1, true)
	v.IncWiden(1<<32 - 2)
	require.Equal(t, 4, v.Width())
	if v.IncWiden(10) {
		t.Fatalf("expected overflow at four bytes")
	}
	require.Equal(t, int64(1<<32-2), v.Sample(0))
}

func TestTranslateShifts(t *testing.T) {
	v := New(4, 1, true)
	v.Inc(1)
	v.Translate(1)
	v.Inc(2)
	v.Translate(2)
	v.Inc(3)
	require.Equal(t, "3, 0, 2, 1", v.Show())
	require.Equal(t, 4, v.Count())

	v.Translate(0)
	require.Equal(t, "3, 0, 2, 1", v.Show())

	v.Translate(10)
	require.Equal(t, 4, v.Count())
	require.Equal(t, int64(0), v.Sum(0))
}

func TestSumInvariant(t *testing.T) {
	v := New(5, 2, true)
	var total int64
	for i := 1; i <= 20; i++ {
		v.IncWiden(int64(i))
		if i%3 == 0 {
			v.Translate(1)
		}
		total = 0
		for j := 0; j < v.Count(); j++ {
			total += v.Sample(j)
		}
		require.Equal(t, total, v.Sum(0))
		require.LessOrEqual(t, v.Count(), v.Cap())
	}
	require.Equal(t, v.Sample(0)+v.Sample(1), v.Sum(2))
}

func TestDelAndFind(t *testing.T) {
	v := New(5, 4, true)
	for _, n := range []int64{7, 8, 9} {
		v.Translate(1)
		v.SetSample(0, n)
	}
	require.Equal(t, "9, 8, 7", v.Show())
	require.Equal(t, 1, v.Find(8))
	require.Equal(t, -1, v.Find(42))
	require.True(t, v.Del(1))
	require.Equal(t, "9, 7", v.Show())
	require.False(t, v.Del(5))
}

func TestAddAndCountActive(t *testing.T) {
	a := New(4, 1, true)
	a.Inc(2)
	a.Translate(1)
	a.Inc(0)
	b := New(4, 8, false)
	active := New(4, 8, false)
	b.Add(&a)
	b.Add(&a)
	active.CountActive(&a)
	require.Equal(t, "0, 4", b.Show())
	require.Equal(t, "0, 1", active.Show())
}

func TestTextRoundTrip(t *testing.T) {
	v := New(12, 2, true)
	v.Inc(300)
	v.Translate(2)
	v.Inc(4)
	raw := v.AppendText(nil, true)
	require.Equal(t, "2:3:4,0,300", string(raw))

	restored := New(12, 1, true)
	require.NoError(t, restored.RestoreText(codec.NewParser(bytes.NewReader(raw)), true))
	require.Equal(t, raw, restored.AppendText(nil, true))
}

func TestTextRestoreEmpty(t *testing.T) {
	v := New(6, 1, false)
	require.NoError(t, v.RestoreText(codec.NewParser(strings.NewReader("1:0:")), true))
	require.Equal(t, 0, v.Count())
	require.Equal(t, "1:0:", string(v.AppendText(nil, true)))
}

func TestTextRestoreRejectsWidth(t *testing.T) {
	v := New(6, 1, false)
	err := v.RestoreText(codec.NewParser(strings.NewReader("3:1:5")), true)
	require.Error(t, err)
}

func TestBinaryRoundTrip(t *testing.T) {
	v := New(6, 1, false)
	v.Inc(-5)
	v.Translate(1)
	v.IncWiden(200)

	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	v.DumpBinary(w, true)
	require.NoError(t, w.Flush())
	require.Equal(t, []byte{2, 2, 200, 0, 0xfb, 0xff}, buf.Bytes())

	restored := New(6, 1, false)
	require.NoError(t, restored.RestoreBinary(codec.NewReader(bytes.NewReader(buf.Bytes())), true))
	require.Equal(t, "200, -5", restored.Show())
	require.Equal(t, 2, restored.Width())
}

func TestBinaryLongCount(t *testing.T) {
	v := New(5000, 8, true)
	for i := 0; i < 300; i++ {
		v.Translate(1)
		v.SetSample(0, int64(i))
	}
	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	v.DumpBinary(w, false)
	require.NoError(t, w.Flush())
	require.Equal(t, 2+300*8, buf.Len())

	restored := New(5000, 8, true)
	require.NoError(t, restored.RestoreBinary(codec.NewReader(&buf), false))
	require.Equal(t, 300, restored.Count())
	require.Equal(t, int64(299), restored.Sample(0))
}

func TestPHP(t *testing.T) {
	v := New(3, 1, true)
	v.Inc(1)
	v.Translate(1)
	v.Inc(2)
	require.Equal(t, "a:2:{i:0;i:2;i:1;i:1;}", string(v.AppendPHP(nil)))
}
