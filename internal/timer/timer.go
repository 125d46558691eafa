// Package timer provides the cached clock shared by all time-bucketed fields.
package timer

import (
	"fmt"
	"sync"
	"time"

	"github.com/verte-zerg/topy/internal/phpser"
)

// Buckets are counted from this instant.
var epoch = time.Date(2008, time.January, 1, 0, 0, 0, 0, time.UTC)

const refreshAfter = 10 // seconds

// Clock returns the current wall time.
type Clock func() time.Time

// Stamp is a snapshot of the current time and its bucket indices.
type Stamp struct {
	Now   int64
	Hour  int32
	Day   int32
	Month int32
	Year  int32 // years since 1900
}

// Timer caches the current Stamp and can be frozen while long scans run.
type Timer struct {
	mu    sync.Mutex
	clock Clock
	cur   Stamp
	valid bool
	holds int
}

// New builds a timer on the given clock. A nil clock uses time.Now.
func New(clock Clock) *Timer {
	if clock == nil {
		clock = time.Now
	}
	return &Timer{clock: clock}
}

// Compute derives the bucket indices for t.
func Compute(t time.Time) Stamp {
	t = t.UTC()
	day := int32(t.Sub(epoch) / (24 * time.Hour))
	if t.Before(epoch) {
		day = 0
	}
	return Stamp{
		Now:   t.Unix(),
		Hour:  day*24 + int32(t.Hour()),
		Day:   day,
		Month: int32(t.Year()-2008)*12 + int32(t.Month()-1),
		Year:  int32(t.Year() - 1900),
	}
}

// Refresh returns the current stamp, recomputing it when the cache is older
// than ten seconds. While the timer is held the frozen stamp is returned.
func (t *Timer) Refresh() Stamp {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.refreshLocked()
}

func (t *Timer) refreshLocked() Stamp {
	if t.holds > 0 && t.valid {
		return t.cur
	}
	now := t.clock()
	if !t.valid || now.Unix()-t.cur.Now >= refreshAfter || now.Unix() < t.cur.Now {
		t.cur = Compute(now)
		t.valid = true
	}
	return t.cur
}

// Now returns the cached unix time.
func (t *Timer) Now() int64 {
	return t.Refresh().Now
}

// Hold refreshes the timer and freezes it until the matching Release.
func (t *Timer) Hold() Stamp {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.refreshLocked()
	t.holds++
	return st
}

// Release undoes one Hold.
func (t *Timer) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.holds > 0 {
		t.holds--
	}
}

// Holds reports the number of active holds.
func (t *Timer) Holds() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.holds
}

// AppendPHP appends {now, hour, day, month, year}.
func (s Stamp) AppendPHP(b []byte) []byte {
	b = phpser.AppendArray(b, 5)
	b = phpser.AppendKey(b, "now")
	b = phpser.AppendInt(b, s.Now)
	b = phpser.AppendKey(b, "hour")
	b = phpser.AppendInt(b, int64(s.Hour))
	b = phpser.AppendKey(b, "day")
	b = phpser.AppendInt(b, int64(s.Day))
	b = phpser.AppendKey(b, "month")
	b = phpser.AppendInt(b, int64(s.Month))
	b = phpser.AppendKey(b, "year")
	b = phpser.AppendInt(b, int64(s.Year))
	return append(b, '}')
}

// Debug renders the clock and the cached stamp.
func (t *Timer) Debug() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fmt.Sprintf("clock: %d\ntimer holds: %d\ntimer now: %d\ntimer hour: %d\ntimer day: %d\ntimer month: %d\ntimer year: %d\n",
		t.clock().Unix(), t.holds, t.cur.Now, t.cur.Hour, t.cur.Day, t.cur.Month, t.cur.Year)
}
