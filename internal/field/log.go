package field

import (
	"strconv"

	"github.com/verte-zerg/topy/internal/codec"
	"github.com/verte-zerg/topy/internal/phpser"
	"github.com/verte-zerg/topy/internal/vector"
)

// Log is a bounded most-recent-first list of (item, date) entries. A unique
// log (ulog) never holds the same item twice.
type Log struct {
	env    *Env
	unique bool
	items  vector.Vector
	dates  vector.Vector
}

// NewLog returns an empty log with the given capacity.
func NewLog(env *Env, capacity int, unique bool) *Log {
	return &Log{
		env:    env,
		unique: unique,
		items:  vector.New(capacity, 4, true),
		dates:  vector.New(capacity, 8, true),
	}
}

// Kind implements Field.
func (l *Log) Kind() Kind {
	if l.unique {
		return KindUlog
	}
	return KindLog
}

// Insert prepends item at date. Existing entries for item are removed first
// when unique is requested or the log is a ulog.
func (l *Log) Insert(item uint32, date int64, unique bool) {
	if unique || l.unique {
		for pos := l.items.Find(int64(item)); pos != -1; pos = l.items.Find(int64(item)) {
			l.items.Del(pos)
			l.dates.Del(pos)
		}
	}
	l.items.Translate(1)
	l.items.SetSample(0, int64(item))
	l.dates.Translate(1)
	l.dates.SetSample(0, date)
}

// Len returns the number of entries.
func (l *Log) Len() int { return l.items.Count() }

// Update implements Field.
func (l *Log) Update() {}

// Add implements Field. It inserts n at the current time.
func (l *Log) Add(n int64) { l.Insert(uint32(n), l.env.Timer.Now(), false) }

// Set implements Field. It accepts and ignores the value.
func (l *Log) Set(string) bool { return true }

// Score implements Field.
func (l *Log) Score(int) int64 { return int64(l.items.Count()) }

// Clear implements Field.
func (l *Log) Clear() {
	l.items.Clear()
	l.dates.Clear()
}

// LastUpdate implements Field.
func (l *Log) LastUpdate() int64 { return l.dates.Sample(0) }

// AppendPHP implements Field.
func (l *Log) AppendPHP(b []byte) []byte {
	b = phpser.AppendArray(b, 2)
	b = phpser.AppendKey(b, "items")
	b = l.items.AppendPHP(b)
	b = phpser.AppendKey(b, "dates")
	b = l.dates.AppendPHP(b)
	return append(b, '}')
}

// Show implements Field.
func (l *Log) Show() string {
	return "Items: " + l.items.Show() + "\nDates: " + l.dates.Show() + "\n"
}

// Summary implements Field.
func (l *Log) Summary() string { return strconv.Itoa(l.items.Count()) }

func (l *Log) tag() string {
	if l.unique {
		return "uL{"
	}
	return "bL{"
}

// AppendText implements Field.
func (l *Log) AppendText(b []byte) []byte {
	b = append(b, l.tag()...)
	b = append(b, "i{"...)
	b = l.items.AppendText(b, false)
	b = append(b, "}:d{"...)
	b = l.dates.AppendText(b, false)
	return append(b, "}}"...)
}

// RestoreText implements Field.
func (l *Log) RestoreText(p *codec.Parser) error {
	if err := p.Expect(l.tag()); err != nil {
		return err
	}
	if err := restoreVector(p, "i", func() error { return l.items.RestoreText(p, false) }); err != nil {
		return err
	}
	if err := p.Expect(":"); err != nil {
		return err
	}
	if err := restoreVector(p, "d", func() error { return l.dates.RestoreText(p, false) }); err != nil {
		return err
	}
	return p.Expect("}")
}

// DumpBinary implements Field.
func (l *Log) DumpBinary(w *codec.Writer) {
	l.items.DumpBinary(w, false)
	l.dates.DumpBinary(w, false)
}

// RestoreBinary implements Field.
func (l *Log) RestoreBinary(r *codec.Reader) error {
	if err := l.items.RestoreBinary(r, false); err != nil {
		return err
	}
	return l.dates.RestoreBinary(r, false)
}
