package stats

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/topy/internal/model"
)

func TestCountersRender(t *testing.T) {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := NewCounters(start, func() int { return 3 })
	c.Inc("user::visits::add")
	c.Inc("user::visits::add")
	c.Inc("misc")
	require.Equal(t, uint64(2), c.Get("user::visits::add"))

	now := start.Add(90 * time.Second)
	require.Equal(t, "STAT uptime 90\nSTAT users 3\nSTAT commands::misc 1\nSTAT commands::user::visits::add 2\n",
		string(c.AppendText(nil, now, 3)))
	require.Equal(t,
		`a:3:{s:6:"uptime";i:90;s:5:"users";i:3;s:8:"commands";a:2:{s:4:"misc";i:1;s:17:"user::visits::add";i:2;}}`,
		string(c.AppendPHP(nil, now, 3)))
	require.Equal(t, int64(0), c.Uptime(start.Add(-time.Hour)))
}

func TestCountersMetrics(t *testing.T) {
	c := NewCounters(time.Now(), func() int { return 42 })
	c.Inc("top")
	c.Overflow("events")
	c.ObserveDump(time.Second, true)
	c.ConnOpened()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`topy_commands_total{command="top"} 1`,
		`topy_field_overflows_total{type="events"} 1`,
		`topy_users 42`,
		`topy_connections 1`,
		`topy_dump_duration_seconds_count{result="ok"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output:\n%s", want, body)
		}
	}
}

func TestTrend(t *testing.T) {
	require.Equal(t, []float64{2, 0, 1}, Rates([]uint64{10, 14, 3, 5}, 2))
	require.Nil(t, Rates([]uint64{1}, 2))
	require.Equal(t, []float64{1, 1.5, 2.5}, MovingAverage([]float64{1, 2, 3}, 2))
	require.Equal(t, " @", Sparkline([]float64{0, 10}))
	require.Equal(t, "+++", Sparkline([]float64{4, 4, 4}))
}

func TestRenderHistory(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderHistory(&buf, nil, time.UTC))
	require.Equal(t, "No dumps recorded.\n", buf.String())

	start := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	runs := []model.DumpRun{
		{StartedAt: start, EndedAt: start.Add(250 * time.Millisecond), Target: "/d.bin", Format: "binary", Trigger: model.TriggerAutodump, Users: 10, OK: true},
		{StartedAt: start.Add(time.Hour), EndedAt: start.Add(time.Hour), Target: "/d.bin", Format: "binary", Trigger: model.TriggerCommand, OK: false, Message: "disk full"},
		{StartedAt: start.Add(2 * time.Hour), EndedAt: start.Add(2 * time.Hour), Target: "/d.txt", Format: "text", Trigger: model.TriggerForced, Users: 20, OK: true},
	}
	buf.Reset()
	require.NoError(t, RenderHistory(&buf, runs, time.UTC))
	out := buf.String()
	require.Contains(t, out, "2024-03-01 10:00:00 autodump binary    10    250ms /d.bin ok\n")
	require.Contains(t, out, "failed: disk full")
	require.Contains(t, out, "Dumps: 3  Failed: 1\n")
	require.Contains(t, out, "Users:  @\n")
}
