package autodump

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/topy/internal/model"
	"github.com/verte-zerg/topy/internal/store"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func TestParseDelay(t *testing.T) {
	cases := map[string]int64{
		"90":  90,
		"15s": 15,
		"2m":  120,
		"3h":  10800,
		"1d":  86400,
		"s":   0,
		"":    0,
		"x5":  0,
		"5x":  0,
	}
	for in, want := range cases {
		if got := ParseDelay(in); got != want {
			t.Fatalf("ParseDelay(%q): expected %d, got %d", in, want, got)
		}
	}
}

func openHistory(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

func TestScheduleAndStats(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: time.Unix(1_000_000, 0)}
	var targets []string
	history := openHistory(t)
	m := New(Options{
		Dump: func(path string) (int, error) {
			targets = append(targets, path)
			return 3, nil
		},
		History: history,
		Now:     c.Now,
		Target:  "/tmp/topy.bin",
		Delay:   60,
	})

	require.Equal(t, `a:5:{s:7:"enabled";b:0;s:6:"target";s:13:"/tmp/topy.bin";s:5:"delay";i:60;s:4:"next";b:0;s:4:"last";b:0;}`,
		string(m.AppendPHP(nil)))

	c.now = c.now.Add(time.Hour)
	m.Tick(ctx)
	require.Empty(t, targets, "disabled manager must not dump")

	m.Enable(true)
	m.Tick(ctx)
	require.Equal(t, []string{"/tmp/topy.bin"}, targets)
	require.Equal(t, `a:5:{s:7:"enabled";b:1;s:6:"target";s:13:"/tmp/topy.bin";s:5:"delay";i:60;s:4:"next";i:60;`+
		`s:4:"last";a:3:{s:2:"at";i:1003600;s:6:"result";b:1;s:7:"message";s:20:"Autodump successful.";}}`,
		string(m.AppendPHP(nil)))

	c.now = c.now.Add(30 * time.Second)
	m.Tick(ctx)
	require.Len(t, targets, 1)
	m.Force()
	m.Tick(ctx)
	require.Len(t, targets, 2)

	runs, err := history.ListDumps(ctx, model.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, model.TriggerAutodump, runs[0].Trigger)
	require.Equal(t, model.TriggerForced, runs[1].Trigger)
	require.Equal(t, 3, runs[1].Users)
	require.Equal(t, "binary", runs[1].Format)
}

func TestFailedDumpAndRestart(t *testing.T) {
	ctx := context.Background()
	c := &clock{now: time.Unix(2_000_000, 0)}
	history := openHistory(t)
	failing := func(string) (int, error) { return 0, errors.New("disk full") }

	m := New(Options{Dump: failing, History: history, Now: c.Now, Enabled: true, Target: "/tmp/x.txt"})
	require.False(t, m.Shutdown(ctx))

	fresh := New(Options{Dump: failing, History: history, Now: c.Now})
	require.NoError(t, fresh.LoadLast(ctx))
	require.Contains(t, string(fresh.AppendPHP(nil)),
		`s:4:"last";a:3:{s:2:"at";i:2000000;s:6:"result";b:0;s:7:"message";s:36:"Could not dump data to '/tmp/x.txt'.";}`)
	require.False(t, fresh.Shutdown(ctx), "disabled manager skips the final dump")

	runs, err := history.ListDumps(ctx, model.HistoryFilter{Failed: true})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "disk full", runs[0].Message)
	require.Equal(t, "text", runs[0].Format)
}

func TestCommandDumpsKeepLastUntouched(t *testing.T) {
	c := &clock{now: time.Unix(3_000_000, 0)}
	m := New(Options{Dump: func(string) (int, error) { return 1, nil }, Now: c.Now})
	n, err := m.Dump(context.Background(), "/tmp/manual.bin", model.TriggerCommand)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Contains(t, string(m.AppendPHP(nil)), `s:4:"last";b:0;`)
}
