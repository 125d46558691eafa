// Package model defines shared data structures.
package model

import "time"

// DumpTrigger tells what started a dump.
type DumpTrigger string

const (
	TriggerCommand  DumpTrigger = "command"
	TriggerAutodump DumpTrigger = "autodump"
	TriggerForced   DumpTrigger = "forced"
	TriggerShutdown DumpTrigger = "shutdown"
)

// DumpRun captures one dump attempt.
type DumpRun struct {
	ID        int64
	StartedAt time.Time
	EndedAt   time.Time
	Target    string
	Format    string
	Trigger   DumpTrigger
	Users     int
	OK        bool
	Message   string
}

// Duration returns how long the dump took.
func (r DumpRun) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// HistoryFilter selects dump runs for reporting.
type HistoryFilter struct {
	Since  *time.Time
	Last   int
	Target string
	Failed bool
}
