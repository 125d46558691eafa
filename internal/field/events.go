package field

import (
	"fmt"
	"math"
	"strconv"

	"github.com/verte-zerg/topy/internal/codec"
	"github.com/verte-zerg/topy/internal/phpser"
	"github.com/verte-zerg/topy/internal/vector"
)

// Events counts occurrences per hour, day and month.
type Events struct {
	env                 *Env
	hour, day, month    int32
	lastInc             int64
	total               int64
	hours, days, months vector.Vector
}

// NewEvents returns an empty events field.
func NewEvents(env *Env) *Events {
	e := &Events{
		env:    env,
		hours:  vector.New(EventsHours, 1, true),
		days:   vector.New(EventsDays, 1, true),
		months: vector.New(EventsMonths, 2, true),
	}
	e.resetDates()
	return e
}

func (e *Events) resetDates() {
	e.hour, e.day, e.month = -1, -1, -1
	e.total = 0
	e.lastInc = 0
}

// Kind implements Field.
func (e *Events) Kind() Kind { return KindEvents }

// Update implements Field.
func (e *Events) Update() {
	st := e.env.Timer.Refresh()
	if e.hour != -1 {
		if delta := st.Hour - e.hour; delta > 0 {
			e.hours.Translate(int(delta))
		}
	}
	if e.day != -1 {
		if delta := st.Day - e.day; delta > 0 {
			e.days.Translate(int(delta))
		}
	}
	if e.month != -1 {
		if delta := st.Month - e.month; delta > 0 {
			e.months.Translate(int(delta))
		}
	}
	e.hour, e.day, e.month = st.Hour, st.Day, st.Month
}

// Add implements Field.
func (e *Events) Add(n int64) {
	e.Update()
	e.total = boundTotal(e.total + max(min(n, math.MaxUint32), -math.MaxUint32))
	for _, v := range []*vector.Vector{&e.hours, &e.days, &e.months} {
		if !v.IncWiden(n) {
			e.env.overflow(KindEvents)
		}
	}
	e.lastInc = e.env.Timer.Now()
}

// boundTotal keeps total within what a binary dump stores.
func boundTotal(total int64) int64 {
	return max(0, min(total, math.MaxUint32))
}

// Set implements Field. Events are not settable.
func (e *Events) Set(string) bool { return false }

// Total returns the running total.
func (e *Events) Total() int64 { return e.total }

// SetTotal overwrites the running total.
func (e *Events) SetTotal(total uint32) { e.total = int64(total) }

// Score implements Field.
func (e *Events) Score(rule int) int64 {
	e.Update()
	switch rule {
	case 0:
		return e.hours.Sum(0)
	case 1:
		return e.hours.Sample(0)
	case 2:
		return e.hours.Sample(1)
	case 3:
		return e.hours.Sum(2)
	case 4:
		return e.hours.Sum(3)
	case 5:
		return e.hours.Sum(6)
	case 6:
		return e.hours.Sum(12)
	case 7:
		return e.days.Sum(0)
	case 8:
		return e.days.Sample(0)
	case 9:
		return e.days.Sample(1)
	case 10:
		return e.days.Sum(2)
	case 11:
		return e.days.Sum(7)
	case 12:
		return e.days.Sum(15)
	case 13:
		return e.months.Sum(0)
	case 14:
		return e.months.Sample(0)
	case 15:
		return e.months.Sample(1)
	case 16:
		return e.months.Sum(2)
	case 17:
		return e.months.Sum(3)
	case 18:
		return e.months.Sum(6)
	case 19:
		return e.total
	}
	return -1
}

// Clear implements Field.
func (e *Events) Clear() {
	e.resetDates()
	e.hours.Clear()
	e.days.Clear()
	e.months.Clear()
}

// LastUpdate implements Field.
func (e *Events) LastUpdate() int64 { return e.lastInc }

// AppendPHP implements Field.
func (e *Events) AppendPHP(b []byte) []byte {
	b = phpser.AppendArray(b, 6)
	b = phpser.AppendKey(b, "ts")
	b = phpser.AppendInt(b, e.env.Timer.Now())
	b = phpser.AppendKey(b, "last")
	b = phpser.AppendInt(b, e.lastInc)
	b = phpser.AppendKey(b, "total")
	b = phpser.AppendInt(b, e.total)
	b = phpser.AppendKey(b, "hours")
	b = e.hours.AppendPHP(b)
	b = phpser.AppendKey(b, "days")
	b = e.days.AppendPHP(b)
	b = phpser.AppendKey(b, "months")
	b = e.months.AppendPHP(b)
	return append(b, '}')
}

// Show implements Field.
func (e *Events) Show() string {
	return fmt.Sprintf("Last inc: %d\nLast hours: %s\nLast days: %s\nLast months: %s\nTotal: %d\n",
		e.lastInc, e.hours.Show(), e.days.Show(), e.months.Show(), e.total)
}

// Summary implements Field.
func (e *Events) Summary() string {
	return fmt.Sprintf("%d\t%d\t%d\t%d", e.hours.Sample(0), e.days.Sample(0), e.months.Sample(0), e.total)
}

// AppendText implements Field.
func (e *Events) AppendText(b []byte) []byte {
	b = append(b, "v{t{"...)
	b = strconv.AppendInt(b, int64(e.hour), 10)
	b = append(b, ':')
	b = strconv.AppendInt(b, int64(e.day), 10)
	b = append(b, ':')
	b = strconv.AppendInt(b, int64(e.month), 10)
	b = append(b, "}:"...)
	b = strconv.AppendInt(b, e.lastInc, 10)
	b = append(b, ':')
	b = strconv.AppendInt(b, e.total, 10)
	b = append(b, ":h{"...)
	b = e.hours.AppendText(b, true)
	b = append(b, "}:d{"...)
	b = e.days.AppendText(b, true)
	b = append(b, "}:m{"...)
	b = e.months.AppendText(b, true)
	return append(b, "}}"...)
}

// RestoreText implements Field.
func (e *Events) RestoreText(p *codec.Parser) error {
	if err := p.Expect("v{t{"); err != nil {
		return err
	}
	e.hour = int32(p.ReadInt())
	if err := p.Expect(":"); err != nil {
		return err
	}
	e.day = int32(p.ReadInt())
	if err := p.Expect(":"); err != nil {
		return err
	}
	e.month = int32(p.ReadInt())
	if err := p.Expect("}:"); err != nil {
		return err
	}
	e.lastInc = p.ReadInt()
	if err := p.Expect(":"); err != nil {
		return err
	}
	e.total = boundTotal(p.ReadInt())
	if err := p.Expect(":"); err != nil {
		return err
	}
	if err := restoreVector(p, "h", func() error { return e.hours.RestoreText(p, true) }); err != nil {
		return err
	}
	if err := p.Expect(":"); err != nil {
		return err
	}
	if err := restoreVector(p, "d", func() error { return e.days.RestoreText(p, true) }); err != nil {
		return err
	}
	if err := p.Expect(":"); err != nil {
		return err
	}
	if err := restoreVector(p, "m", func() error { return e.months.RestoreText(p, true) }); err != nil {
		return err
	}
	return p.Expect("}")
}

// DumpBinary implements Field.
func (e *Events) DumpBinary(w *codec.Writer) {
	w.Int32(e.hour)
	w.Int32(e.day)
	w.Int32(e.month)
	w.Int64(e.lastInc)
	w.Uint32(uint32(e.total))
	e.hours.DumpBinary(w, true)
	e.days.DumpBinary(w, true)
	e.months.DumpBinary(w, true)
}

// RestoreBinary implements Field.
func (e *Events) RestoreBinary(r *codec.Reader) error {
	var err error
	if e.hour, err = r.Int32(); err != nil {
		return err
	}
	if e.day, err = r.Int32(); err != nil {
		return err
	}
	if e.month, err = r.Int32(); err != nil {
		return err
	}
	if e.lastInc, err = r.Int64(); err != nil {
		return err
	}
	total, err := r.Uint32()
	if err != nil {
		return err
	}
	e.total = int64(total)
	if err := e.hours.RestoreBinary(r, true); err != nil {
		return err
	}
	if err := e.days.RestoreBinary(r, true); err != nil {
		return err
	}
	return e.months.RestoreBinary(r, true)
}
