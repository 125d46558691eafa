// Package stats counts server commands and renders tables and trends.
package stats

import (
	"math"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/verte-zerg/topy/internal/phpser"
)

const namespace = "topy"

// Counter is one named command counter.
type Counter struct {
	Name  string
	Value uint64
}

// Counters tracks per-command usage and mirrors it to a Prometheus registry.
type Counters struct {
	mu      sync.Mutex
	list    map[string]uint64
	started time.Time

	registry  *prometheus.Registry
	commands  *prometheus.CounterVec
	overflows *prometheus.CounterVec
	dumps     *prometheus.HistogramVec
	conns     prometheus.Gauge
}

// NewCounters returns an empty set of counters. users is sampled on every
// scrape of the users gauge and may be nil.
func NewCounters(started time.Time, users func() int) *Counters {
	c := &Counters{
		list:     map[string]uint64{},
		started:  started,
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands executed, by command path.",
		}, []string{"command"}),
		overflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "field_overflows_total",
			Help:      "Increments dropped because a vector was already at its widest width.",
		}, []string{"type"}),
		dumps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dump_duration_seconds",
			Help:      "Time spent writing dumps.",
			Buckets:   []float64{.05, .25, 1, 5, 30, 120},
		}, []string{"result"}),
		conns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open client connections.",
		}),
	}
	c.registry.MustRegister(c.commands, c.overflows, c.dumps, c.conns)
	c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Seconds since the server started.",
	}, func() float64 { return time.Since(c.started).Seconds() }))
	if users != nil {
		c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "users",
			Help:      "Users known to the directory.",
		}, func() float64 { return float64(users()) }))
	}
	return c
}

// Inc adds one to the counter called name.
func (c *Counters) Inc(name string) {
	c.mu.Lock()
	c.list[name]++
	c.mu.Unlock()
	c.commands.WithLabelValues(name).Inc()
}

// Get returns the value of one counter.
func (c *Counters) Get(name string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list[name]
}

// Overflow records a dropped increment on a field of the given type.
func (c *Counters) Overflow(kind string) {
	c.overflows.WithLabelValues(kind).Inc()
}

// ObserveDump records the duration of a dump.
func (c *Counters) ObserveDump(d time.Duration, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	c.dumps.WithLabelValues(result).Observe(d.Seconds())
}

// ConnOpened and ConnClosed track the connections gauge.
func (c *Counters) ConnOpened() { c.conns.Inc() }
func (c *Counters) ConnClosed() { c.conns.Dec() }

// Uptime returns whole seconds since start.
func (c *Counters) Uptime(now time.Time) int64 {
	return int64(math.Max(0, now.Sub(c.started).Seconds()))
}

// Snapshot returns the counters sorted by name.
func (c *Counters) Snapshot() []Counter {
	c.mu.Lock()
	out := make([]Counter, 0, len(c.list))
	for name, v := range c.list {
		out = append(out, Counter{Name: name, Value: v})
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AppendText appends the STAT lines of the stats command.
func (c *Counters) AppendText(b []byte, now time.Time, users int) []byte {
	b = append(b, "STAT uptime "...)
	b = strconv.AppendInt(b, c.Uptime(now), 10)
	b = append(b, "\nSTAT users "...)
	b = strconv.AppendInt(b, int64(users), 10)
	b = append(b, '\n')
	for _, s := range c.Snapshot() {
		b = append(b, "STAT commands::"...)
		b = append(b, s.Name...)
		b = append(b, ' ')
		b = strconv.AppendUint(b, s.Value, 10)
		b = append(b, '\n')
	}
	return b
}

// AppendPHP appends {uptime, users, commands}.
func (c *Counters) AppendPHP(b []byte, now time.Time, users int) []byte {
	b = phpser.AppendArray(b, 3)
	b = phpser.AppendKey(b, "uptime")
	b = phpser.AppendInt(b, c.Uptime(now))
	b = phpser.AppendKey(b, "users")
	b = phpser.AppendInt(b, int64(users))
	b = phpser.AppendKey(b, "commands")
	list := c.Snapshot()
	b = phpser.AppendArray(b, len(list))
	for _, s := range list {
		b = phpser.AppendKey(b, s.Name)
		b = phpser.AppendUint(b, s.Value)
	}
	return append(b, "}}"...)
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Counters) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
