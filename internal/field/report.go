package field

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/verte-zerg/topy/internal/phpser"
	"github.com/verte-zerg/topy/internal/vector"
)

// Report accumulates same-typed fields across a population.
type Report interface {
	// Add folds f into the report. Fields of another type are skipped.
	Add(f Field) bool
	AppendPHP(b []byte, now int64) []byte
	Show(now int64) string
}

// NewReport returns the aggregator for kind, if there is one.
func NewReport(kind Kind) (Report, bool) {
	switch kind {
	case KindInt, KindUInt:
		return &IntReport{}, true
	case KindEvents:
		return NewEventsReport(), true
	}
	return nil, false
}

// IntReport sums integer fields.
type IntReport struct {
	Count int64
	Total int64
}

// Add implements Report.
func (r *IntReport) Add(f Field) bool {
	v, ok := f.(*Int)
	if !ok {
		return false
	}
	r.Count++
	r.Total += v.Value()
	return true
}

func (r *IntReport) average() float64 {
	return float64(r.Total) / float64(r.Count)
}

// AppendPHP implements Report.
func (r *IntReport) AppendPHP(b []byte, now int64) []byte {
	b = phpser.AppendArray(b, 4)
	b = phpser.AppendKey(b, "ts")
	b = phpser.AppendInt(b, now)
	b = phpser.AppendKey(b, "count")
	b = phpser.AppendInt(b, r.Count)
	b = phpser.AppendKey(b, "total")
	b = phpser.AppendInt(b, r.Total)
	b = phpser.AppendKey(b, "average")
	if r.Count != 0 {
		b = phpser.AppendFloat(b, r.average())
	} else {
		b = phpser.AppendBool(b, false)
	}
	return append(b, '}')
}

// Show implements Report.
func (r *IntReport) Show(now int64) string {
	out := fmt.Sprintf("ts: %d\ncount: %d\ntotal: %d\n", now, r.Count, r.Total)
	if r.Count != 0 {
		out += "average: " + strconv.FormatFloat(r.average(), 'g', 16, 64) + "\n"
	}
	return out
}

// EventsReport sums event histograms and counts active users per bucket.
type EventsReport struct {
	Count int64
	Total int64

	hours, days, months                   vector.Vector
	activeHours, activeDays, activeMonths vector.Vector
}

// NewEventsReport returns an empty events report.
func NewEventsReport() *EventsReport {
	return &EventsReport{
		hours:        vector.New(EventsHours, 8, true),
		days:         vector.New(EventsDays, 8, true),
		months:       vector.New(EventsMonths, 8, true),
		activeHours:  vector.New(EventsHours, 8, true),
		activeDays:   vector.New(EventsDays, 8, true),
		activeMonths: vector.New(EventsMonths, 8, true),
	}
}

// Add implements Report.
func (r *EventsReport) Add(f Field) bool {
	e, ok := f.(*Events)
	if !ok {
		return false
	}
	e.Update()
	r.Count++
	r.Total += e.total
	r.months.Add(&e.months)
	r.days.Add(&e.days)
	r.hours.Add(&e.hours)
	r.activeMonths.CountActive(&e.months)
	r.activeDays.CountActive(&e.days)
	r.activeHours.CountActive(&e.hours)
	return true
}

// AppendPHP implements Report.
func (r *EventsReport) AppendPHP(b []byte, now int64) []byte {
	b = phpser.AppendArray(b, 7)
	b = phpser.AppendKey(b, "ts")
	b = phpser.AppendInt(b, now)
	b = phpser.AppendKey(b, "count")
	b = phpser.AppendInt(b, r.Count)
	b = phpser.AppendKey(b, "total")
	b = phpser.AppendInt(b, r.Total)
	b = phpser.AppendKey(b, "months")
	b = r.months.AppendPHP(b)
	b = phpser.AppendKey(b, "days")
	b = r.days.AppendPHP(b)
	b = phpser.AppendKey(b, "hours")
	b = r.hours.AppendPHP(b)
	b = phpser.AppendKey(b, "active")
	b = phpser.AppendArray(b, 3)
	b = phpser.AppendKey(b, "months")
	b = r.activeMonths.AppendPHP(b)
	b = phpser.AppendKey(b, "days")
	b = r.activeDays.AppendPHP(b)
	b = phpser.AppendKey(b, "hours")
	b = r.activeHours.AppendPHP(b)
	b = append(b, '}')
	return append(b, '}')
}

// Show implements Report.
func (r *EventsReport) Show(now int64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "ts: %d\ncount: %d\ntotal: %d\n", now, r.Count, r.Total)
	fmt.Fprintf(&sb, "months: %s\ndays: %s\nhours: %s\n", r.months.Show(), r.days.Show(), r.hours.Show())
	sb.WriteString("Active users by :\n")
	fmt.Fprintf(&sb, "* months: %s\n* days: %s\n* hours: %s\n", r.activeMonths.Show(), r.activeDays.Show(), r.activeHours.Show())
	return sb.String()
}
