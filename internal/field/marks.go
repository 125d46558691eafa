package field

import (
	"strconv"

	"github.com/verte-zerg/topy/internal/codec"
	"github.com/verte-zerg/topy/internal/phpser"
	"github.com/verte-zerg/topy/internal/vector"
)

// Marks keeps a monthly numerator and denominator to derive averages.
type Marks struct {
	env   *Env
	month int32
	num   vector.Vector
	denom vector.Vector
}

// NewMarks returns an empty marks field.
func NewMarks(env *Env) *Marks {
	return &Marks{
		env:   env,
		month: -1,
		num:   vector.New(MarksMonths, 1, false),
		denom: vector.New(MarksMonths, 1, true),
	}
}

// Kind implements Field.
func (m *Marks) Kind() Kind { return KindMarks }

// Update implements Field.
func (m *Marks) Update() {
	st := m.env.Timer.Refresh()
	if m.month != -1 {
		if delta := st.Month - m.month; delta > 0 {
			m.num.Translate(int(delta))
			m.denom.Translate(int(delta))
		}
	}
	m.month = st.Month
}

// Add records one mark of value n.
func (m *Marks) Add(n int64) {
	m.Update()
	if !m.num.IncWiden(n) {
		m.env.overflow(KindMarks)
	}
	if !m.denom.IncWiden(1) {
		m.env.overflow(KindMarks)
	}
}

// Set implements Field. Marks are not settable.
func (m *Marks) Set(string) bool { return false }

var marksWindows = [5]int{1, 2, 3, 6, 0}

// Score implements Field.
func (m *Marks) Score(rule int) int64 {
	m.Update()
	if rule < 0 || rule >= 15 {
		return -1
	}
	n := marksWindows[rule%5]
	switch rule / 5 {
	case 0:
		denom := m.denom.Sum(n)
		if denom == 0 {
			return 0
		}
		return m.num.Sum(n) * 1000 / denom
	case 1:
		return m.num.Sum(n) * 1000 / (m.denom.Sum(n) + 1)
	default:
		return m.denom.Sum(n)
	}
}

// Clear implements Field.
func (m *Marks) Clear() {
	m.month = -1
	m.num.Clear()
	m.denom.Clear()
}

// LastUpdate implements Field. Marks carry no timestamp.
func (m *Marks) LastUpdate() int64 { return 0 }

// AppendPHP implements Field.
func (m *Marks) AppendPHP(b []byte) []byte {
	b = phpser.AppendArray(b, 3)
	b = phpser.AppendKey(b, "ts")
	b = phpser.AppendInt(b, m.env.Timer.Now())
	b = phpser.AppendKey(b, "numerator")
	b = m.num.AppendPHP(b)
	b = phpser.AppendKey(b, "denominator")
	b = m.denom.AppendPHP(b)
	return append(b, '}')
}

// Show implements Field.
func (m *Marks) Show() string {
	return "Last months numerator: " + m.num.Show() + "\nLast months denominator: " + m.denom.Show() + "\n"
}

// Summary implements Field.
func (m *Marks) Summary() string {
	denom := m.denom.Sum(0)
	var b []byte
	if denom == 0 {
		b = append(b, "UNDEF"...)
	} else {
		b = strconv.AppendFloat(b, float64(float32(m.num.Sum(0))/float32(denom)), 'g', 6, 32)
	}
	b = append(b, " ("...)
	b = strconv.AppendInt(b, denom, 10)
	return string(append(b, ')'))
}

// AppendText implements Field.
func (m *Marks) AppendText(b []byte) []byte {
	b = append(b, "ma{t{"...)
	b = strconv.AppendInt(b, int64(m.month), 10)
	b = append(b, "}:nu{"...)
	b = m.num.AppendText(b, true)
	b = append(b, "}:de{"...)
	b = m.denom.AppendText(b, true)
	return append(b, "}}"...)
}

// RestoreText implements Field.
func (m *Marks) RestoreText(p *codec.Parser) error {
	if err := p.Expect("ma{t{"); err != nil {
		return err
	}
	m.month = int32(p.ReadInt())
	if err := p.Expect("}:"); err != nil {
		return err
	}
	if err := restoreVector(p, "nu", func() error { return m.num.RestoreText(p, true) }); err != nil {
		return err
	}
	if err := p.Expect(":"); err != nil {
		return err
	}
	if err := restoreVector(p, "de", func() error { return m.denom.RestoreText(p, true) }); err != nil {
		return err
	}
	return p.Expect("}")
}

// DumpBinary implements Field.
func (m *Marks) DumpBinary(w *codec.Writer) {
	w.Int32(m.month)
	m.num.DumpBinary(w, true)
	m.denom.DumpBinary(w, true)
}

// RestoreBinary implements Field.
func (m *Marks) RestoreBinary(r *codec.Reader) error {
	var err error
	if m.month, err = r.Int32(); err != nil {
		return err
	}
	if err := m.num.RestoreBinary(r, true); err != nil {
		return err
	}
	return m.denom.RestoreBinary(r, true)
}
