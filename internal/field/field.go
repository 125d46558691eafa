// Package field implements the typed per-user statistics: events, marks,
// integers, timestamps and logs, plus the report aggregators built on them.
package field

import (
	"sort"
	"strconv"
	"strings"

	"github.com/verte-zerg/topy/internal/codec"
	"github.com/verte-zerg/topy/internal/timer"
)

// Capacities of the rolling vectors.
const (
	EventsHours  = 24
	EventsDays   = 31
	EventsMonths = 12
	MarksMonths  = 6
	UlogLen      = 50
	LogLen       = 5000
)

// Kind identifies a field variant.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindEvents
	KindMarks
	KindInt
	KindUInt
	KindTimestamp
	KindUlog
	KindLog
)

var kindNames = map[Kind]string{
	KindEvents:    "events",
	KindMarks:     "marks",
	KindInt:       "int",
	KindUInt:      "uint",
	KindTimestamp: "timestamp",
	KindUlog:      "ulog",
	KindLog:       "log",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseKind maps a type name to its Kind.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return KindUnknown, false
}

// Field is one typed statistic slot of a user. Callers serialize access
// through the owning user's lock.
type Field interface {
	Kind() Kind
	// Update ages the rolling buckets to the current time.
	Update()
	Add(n int64)
	// Set parses an external value; read-only variants return false.
	Set(value string) bool
	// Score returns the value selected by rule, or -1 for an unknown rule.
	Score(rule int) int64
	Clear()
	LastUpdate() int64
	AppendPHP(b []byte) []byte
	Show() string
	Summary() string
	AppendText(b []byte) []byte
	RestoreText(p *codec.Parser) error
	DumpBinary(w *codec.Writer)
	RestoreBinary(r *codec.Reader) error
}

// Env carries the services shared by every field.
type Env struct {
	Timer *timer.Timer
	// OnOverflow is called when an increment is dropped at the widest width.
	OnOverflow func(Kind)
}

func (e *Env) overflow(k Kind) {
	if e.OnOverflow != nil {
		e.OnOverflow(k)
	}
}

// New allocates an empty field of the given kind.
func New(kind Kind, env *Env) Field {
	switch kind {
	case KindEvents:
		return NewEvents(env)
	case KindMarks:
		return NewMarks(env)
	case KindInt:
		return &Int{}
	case KindUInt:
		return &Int{unsigned: true}
	case KindTimestamp:
		return &Timestamp{env: env}
	case KindUlog:
		return NewLog(env, UlogLen, true)
	case KindLog:
		return NewLog(env, LogLen, false)
	}
	return nil
}

// Rule is a named score rule.
type Rule struct {
	ID   int
	Name string
}

var eventsRules = []string{
	"hours::sum", "hours::last", "hours::penultimate", "hours::last2",
	"hours::last3", "hours::last6", "hours::last12",
	"days::sum", "days::last", "days::penultimate", "days::last2",
	"days::last7", "days::last15",
	"months::sum", "months::last", "months::penultimate", "months::last2",
	"months::last3", "months::last6",
	"total",
}

var marksRules = []string{
	"last::average", "last2::average", "last3::average", "last6::average", "sum::average",
	"last::skyverage", "last2::skyverage", "last3::skyverage", "last6::skyverage", "sum::skyverage",
	"last::count", "last2::count", "last3::count", "last6::count", "sum::count",
}

func ruleNames(k Kind) []string {
	switch k {
	case KindEvents:
		return eventsRules
	case KindMarks:
		return marksRules
	}
	return nil
}

// Rules lists the score rules of a kind sorted by name.
func (k Kind) Rules() []Rule {
	names := ruleNames(k)
	rules := make([]Rule, len(names))
	for i, name := range names {
		rules[i] = Rule{ID: i, Name: name}
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
	return rules
}

// RuleID resolves a rule name.
func (k Kind) RuleID(name string) (int, bool) {
	for i, n := range ruleNames(k) {
		if n == name {
			return i, true
		}
	}
	return -1, false
}

// ToInt parses the leading integer of s, returning 0 when there is none.
func ToInt(s string) int64 {
	s = strings.TrimLeft(s, " \t\n\r")
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	v, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// ToUint parses the leading unsigned integer of s, returning 0 when there is none.
func ToUint(s string) uint64 {
	s = strings.TrimLeft(s, " \t\n\r")
	s = strings.TrimPrefix(s, "+")
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	v, err := strconv.ParseUint(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func restoreVector(p *codec.Parser, tag string, restore func() error) error {
	if err := p.Expect(tag + "{"); err != nil {
		return err
	}
	if err := restore(); err != nil {
		return err
	}
	return p.Expect("}")
}
