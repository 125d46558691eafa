package timer

import (
	"strings"
	"testing"
	"time"
)

func TestComputeBuckets(t *testing.T) {
	st := Compute(time.Date(2009, time.February, 2, 5, 30, 0, 0, time.UTC))
	if st.Day != 366+32 {
		t.Fatalf("expected day 398, got %d", st.Day)
	}
	if st.Hour != st.Day*24+5 {
		t.Fatalf("expected hour %d, got %d", st.Day*24+5, st.Hour)
	}
	if st.Month != 13 {
		t.Fatalf("expected month 13, got %d", st.Month)
	}
	if st.Year != 109 {
		t.Fatalf("expected year 109, got %d", st.Year)
	}
}

func TestRefreshCachesForTenSeconds(t *testing.T) {
	now := time.Date(2020, time.March, 1, 10, 0, 0, 0, time.UTC)
	tm := New(func() time.Time { return now })
	first := tm.Now()

	now = now.Add(5 * time.Second)
	if got := tm.Now(); got != first {
		t.Fatalf("expected cached %d, got %d", first, got)
	}
	now = now.Add(5 * time.Second)
	if got := tm.Now(); got != first+10 {
		t.Fatalf("expected %d, got %d", first+10, got)
	}
}

func TestHoldFreezesTime(t *testing.T) {
	now := time.Date(2020, time.March, 1, 10, 0, 0, 0, time.UTC)
	tm := New(func() time.Time { return now })
	held := tm.Hold()

	now = now.Add(2 * time.Hour)
	if got := tm.Refresh(); got != held {
		t.Fatalf("expected frozen stamp %+v, got %+v", held, got)
	}
	tm.Release()
	if got := tm.Refresh(); got.Hour != held.Hour+2 {
		t.Fatalf("expected hour %d after release, got %d", held.Hour+2, got.Hour)
	}
	if tm.Holds() != 0 {
		t.Fatalf("expected no holds, got %d", tm.Holds())
	}
}

func TestStampRendering(t *testing.T) {
	st := Stamp{Now: 1, Hour: 2, Day: 3, Month: 4, Year: 5}
	want := `a:5:{s:3:"now";i:1;s:4:"hour";i:2;s:3:"day";i:3;s:5:"month";i:4;s:4:"year";i:5;}`
	if got := string(st.AppendPHP(nil)); got != want {
		t.Fatalf("unexpected php form %q", got)
	}

	tm := New(func() time.Time { return time.Unix(1700000000, 0) })
	tm.Hold()
	if got := tm.Debug(); !strings.HasPrefix(got, "clock: 1700000000\ntimer holds: 1\ntimer now: 1700000000\n") {
		t.Fatalf("unexpected debug output %q", got)
	}
}
