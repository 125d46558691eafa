// Package autodump schedules periodic dumps and records every dump run.
package autodump

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/verte-zerg/topy/internal/logger"
	"github.com/verte-zerg/topy/internal/model"
	"github.com/verte-zerg/topy/internal/persist"
	"github.com/verte-zerg/topy/internal/phpser"
	"github.com/verte-zerg/topy/internal/stats"
)

// DefaultDelay is used when no delay or a zero delay is configured.
const DefaultDelay int64 = 3600

// PollInterval is how often the loop checks whether a dump is due.
const PollInterval = 2 * time.Second

// ParseDelay reads "<n>[s|m|h|d]" as seconds. Anything else is 0.
func ParseDelay(s string) int64 {
	factor := int64(1)
	if len(s) > 1 {
		switch s[len(s)-1] {
		case 's':
			s = s[:len(s)-1]
		case 'm':
			factor, s = 60, s[:len(s)-1]
		case 'h':
			factor, s = 3600, s[:len(s)-1]
		case 'd':
			factor, s = 24*3600, s[:len(s)-1]
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n * factor
}

// History stores dump runs. *store.Store implements it.
type History interface {
	InsertDump(ctx context.Context, run model.DumpRun) (int64, error)
	LastDump(ctx context.Context, trigger model.DumpTrigger) (*model.DumpRun, error)
}

// DumpFunc writes the population to path and returns the user count.
type DumpFunc func(path string) (int, error)

// StateDumper dumps st with persist.Dump.
func StateDumper(st *persist.State) DumpFunc {
	return func(path string) (int, error) {
		return persist.Dump(st, path)
	}
}

type Options struct {
	Dump     DumpFunc
	History  History
	Counters *stats.Counters
	Logger   *logger.Logger
	Now      func() time.Time

	Enabled bool
	Target  string
	Delay   int64
}

type lastRun struct {
	at      int64
	ok      bool
	message string
}

// Manager owns the autodump settings and serializes all dumps.
type Manager struct {
	dump     DumpFunc
	history  History
	counters *stats.Counters
	log      *logger.Logger
	now      func() time.Time

	dumpMu sync.Mutex

	mu      sync.Mutex
	enabled bool
	target  string
	delay   int64
	forced  bool
	lastAt  int64
	last    *lastRun
}

// New builds a manager. The schedule starts from the creation time.
func New(opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	m := &Manager{
		dump:     opts.Dump,
		history:  opts.History,
		counters: opts.Counters,
		log:      opts.Logger,
		now:      opts.Now,
		enabled:  opts.Enabled,
		target:   opts.Target,
		delay:    opts.Delay,
	}
	m.lastAt = m.now().Unix()
	return m
}

// LoadLast restores the last automatic run from the history so that the
// stats survive restarts.
func (m *Manager) LoadLast(ctx context.Context) error {
	if m.history == nil {
		return nil
	}
	var latest *model.DumpRun
	for _, trigger := range []model.DumpTrigger{model.TriggerAutodump, model.TriggerForced, model.TriggerShutdown} {
		run, err := m.history.LastDump(ctx, trigger)
		if err != nil {
			return err
		}
		if run != nil && (latest == nil || run.StartedAt.After(latest.StartedAt)) {
			latest = run
		}
	}
	if latest == nil {
		return nil
	}
	m.mu.Lock()
	m.last = &lastRun{at: latest.EndedAt.Unix(), ok: latest.OK, message: resultMessage(latest.Target, latest.OK)}
	m.mu.Unlock()
	return nil
}

// Set changes the target and the delay.
func (m *Manager) Set(target string, delay int64) {
	if delay <= 0 {
		delay = DefaultDelay
	}
	m.mu.Lock()
	m.target, m.delay = target, delay
	enabled := m.enabled
	m.mu.Unlock()
	m.log.Info("autodump settings", "enabled", enabled, "target", target, "delay", delay)
}

// Enable switches the periodic dump on or off.
func (m *Manager) Enable(on bool) {
	m.mu.Lock()
	m.enabled = on
	m.mu.Unlock()
	m.log.Info("autodump toggled", "enabled", on)
}

// Force requests a dump on the next poll.
func (m *Manager) Force() {
	m.mu.Lock()
	m.forced = true
	m.mu.Unlock()
}

// due consumes a pending force and reports whether a dump should run.
func (m *Manager) due() (string, model.DumpTrigger, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forced {
		m.forced = false
		return m.target, model.TriggerForced, true
	}
	if m.enabled && m.now().Unix() >= m.lastAt+m.delay {
		return m.target, model.TriggerAutodump, true
	}
	return "", "", false
}

// Run polls until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick runs one poll.
func (m *Manager) Tick(ctx context.Context) {
	if target, trigger, ok := m.due(); ok {
		m.auto(ctx, target, trigger)
	}
}

// Shutdown runs the final dump when autodump is enabled with a target.
func (m *Manager) Shutdown(ctx context.Context) bool {
	m.mu.Lock()
	target, enabled := m.target, m.enabled
	m.mu.Unlock()
	if !enabled || target == "" {
		return false
	}
	return m.auto(ctx, target, model.TriggerShutdown)
}

func (m *Manager) auto(ctx context.Context, target string, trigger model.DumpTrigger) bool {
	m.log.Info("autodump started", "target", target, "trigger", string(trigger))
	_, err := m.Dump(ctx, target, trigger)
	message := resultMessage(target, err == nil)
	if err != nil {
		m.log.Error("autodump failed", "target", target, "error", err)
	} else {
		m.log.Info("autodump done", "target", target)
	}

	now := m.now().Unix()
	m.mu.Lock()
	m.lastAt = now
	m.last = &lastRun{at: now, ok: err == nil, message: message}
	m.mu.Unlock()
	return err == nil
}

func resultMessage(target string, ok bool) string {
	if ok {
		return "Autodump successful."
	}
	return "Could not dump data to '" + target + "'."
}

// Dump writes a dump to path and records the run.
func (m *Manager) Dump(ctx context.Context, path string, trigger model.DumpTrigger) (int, error) {
	m.dumpMu.Lock()
	defer m.dumpMu.Unlock()

	run := model.DumpRun{
		StartedAt: m.now(),
		Target:    path,
		Format:    persist.FormatFor(path).String(),
		Trigger:   trigger,
	}
	n, err := m.dump(path)
	run.EndedAt = m.now()
	run.Users, run.OK = n, err == nil
	if err != nil {
		run.Message = err.Error()
	}

	if m.counters != nil {
		m.counters.ObserveDump(run.Duration(), run.OK)
	}
	if m.history != nil {
		if _, herr := m.history.InsertDump(ctx, run); herr != nil {
			m.log.Warn("failed to record dump", "target", path, "error", herr)
		}
	}
	if err == nil {
		m.log.Debug("dump written", "target", path, "users", n, "duration", run.Duration())
	}
	return n, err
}

// AppendPHP appends {enabled, target, delay, next, last}.
func (m *Manager) AppendPHP(b []byte) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	b = phpser.AppendArray(b, 5)
	b = phpser.AppendKey(b, "enabled")
	b = phpser.AppendBool(b, m.enabled)
	b = phpser.AppendKey(b, "target")
	b = phpser.AppendString(b, m.target)
	b = phpser.AppendKey(b, "delay")
	b = phpser.AppendInt(b, m.delay)
	b = phpser.AppendKey(b, "next")
	if m.enabled {
		b = phpser.AppendInt(b, m.lastAt+m.delay-m.now().Unix())
	} else {
		b = phpser.AppendBool(b, false)
	}
	b = phpser.AppendKey(b, "last")
	if m.last == nil {
		b = phpser.AppendBool(b, false)
	} else {
		b = phpser.AppendArray(b, 3)
		b = phpser.AppendKey(b, "at")
		b = phpser.AppendInt(b, m.last.at)
		b = phpser.AppendKey(b, "result")
		b = phpser.AppendBool(b, m.last.ok)
		b = phpser.AppendKey(b, "message")
		b = phpser.AppendString(b, m.last.message)
		b = append(b, '}')
	}
	return append(b, '}')
}
