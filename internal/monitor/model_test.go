package monitor

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/topy/internal/client"
	"github.com/verte-zerg/topy/internal/stats"
)

type fakeSource struct {
	snaps []client.Snapshot
	err   error
	calls int
}

func (f *fakeSource) Snapshot() (client.Snapshot, error) {
	f.calls++
	if f.err != nil {
		return client.Snapshot{}, f.err
	}
	s := f.snaps[0]
	if len(f.snaps) > 1 {
		f.snaps = f.snaps[1:]
	}
	return s, nil
}

func snapshot(at time.Time, misc, add uint64) client.Snapshot {
	return client.Snapshot{
		At: at,
		Stats: client.Stats{
			Uptime: 3725,
			Users:  12,
			Commands: []stats.Counter{
				{Name: "misc", Value: misc},
				{Name: "user::n::add", Value: add},
			},
		},
		Autodump: client.AutodumpStats{
			Enabled: true,
			Target:  "/var/lib/topy/dump.bin",
			Delay:   60,
			Next:    42,
			Last:    &client.DumpResult{At: at.Unix(), OK: false, Message: "disk full"},
		},
	}
}

func feed(t *testing.T, m *Model, msg tea.Msg) tea.Cmd {
	t.Helper()
	_, cmd := m.Update(msg)
	return cmd
}

func TestModelPollsAndRendersOverview(t *testing.T) {
	start := time.Date(2021, 6, 15, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{snaps: []client.Snapshot{
		snapshot(start, 1, 10),
		snapshot(start.Add(2*time.Second), 3, 18),
		snapshot(start.Add(4*time.Second), 5, 20),
	}}
	m := NewModel(src, time.Second, "127.0.0.1:6969")
	feed(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	require.Contains(t, m.View(), "Waiting for the first snapshot")

	for i := 0; i < 3; i++ {
		msg := m.Init()()
		cmd := feed(t, m, msg)
		require.NotNil(t, cmd, "a tick is scheduled after every snapshot")
	}
	require.Equal(t, 3, src.calls)
	require.Len(t, m.history, 3)

	view := m.View()
	for _, want := range []string{"Overview", "127.0.0.1:6969", "Uptime", "1h2m5s", "Users", "12", "Commands", "25", "Rate/s", "2.0"} {
		require.Contains(t, view, want)
	}
	require.Equal(t, []float64{5, 2}, totalRates(m.history))
}

func TestModelCommandsTab(t *testing.T) {
	start := time.Date(2021, 6, 15, 12, 0, 0, 0, time.UTC)
	m := NewModel(&fakeSource{}, time.Second, "x")
	feed(t, m, tea.WindowSizeMsg{Width: 80, Height: 20})
	feed(t, m, snapshotMsg{snap: snapshot(start, 4, 10)})
	feed(t, m, snapshotMsg{snap: snapshot(start.Add(2*time.Second), 8, 12)})

	rows := commandRows(m.history)
	require.Len(t, rows, 2)
	require.Equal(t, []string{"user::n::add", "12", "1.0"}, []string(rows[0]))
	require.Equal(t, []string{"misc", "8", "2.0"}, []string(rows[1]))

	feed(t, m, tea.KeyMsg{Type: tea.KeyRight})
	require.Equal(t, tabCommands, m.activeTab)
	view := m.View()
	require.Contains(t, view, "Command")
	require.Contains(t, view, "user::n::add")

	feed(t, m, tea.KeyMsg{Type: tea.KeyRight})
	require.Equal(t, tabAutodump, m.activeTab)
	view = m.View()
	require.Contains(t, view, "/var/lib/topy/dump.bin")
	require.Contains(t, view, "42s")
	require.Contains(t, view, "failed: disk full")

	feed(t, m, tea.KeyMsg{Type: tea.KeyRight})
	require.Equal(t, tabOverview, m.activeTab)
	feed(t, m, tea.KeyMsg{Type: tea.KeyLeft})
	require.Equal(t, tabAutodump, m.activeTab)
}

func TestModelShowsPollErrors(t *testing.T) {
	m := NewModel(&fakeSource{err: errors.New("connection refused")}, 0, "x")
	require.Equal(t, DefaultInterval, m.interval)
	feed(t, m, tea.WindowSizeMsg{Width: 80, Height: 12})
	cmd := feed(t, m, m.Init()())
	require.NotNil(t, cmd)
	require.Contains(t, m.View(), "connection refused")

	feed(t, m, snapshotMsg{snap: snapshot(time.Unix(100, 0), 1, 1)})
	require.NotContains(t, m.View(), "connection refused")
}

func TestModelQuit(t *testing.T) {
	m := NewModel(&fakeSource{}, time.Second, "x")
	cmd := feed(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	require.True(t, ok)
}

func TestHistoryIsBounded(t *testing.T) {
	m := NewModel(&fakeSource{}, time.Second, "x")
	for i := 0; i < HistorySize+10; i++ {
		m.push(snapshot(time.Unix(int64(i), 0), uint64(i), 0))
	}
	require.Len(t, m.history, HistorySize)
	require.Equal(t, uint64(10), m.history[0].Stats.Commands[0].Value)
}

func TestFitLines(t *testing.T) {
	require.Equal(t, "ab  \n    ", fitLines("ab", 4, 2))
	require.Equal(t, "a\nb", fitLines("a\nb\nc", 1, 2))
	require.Equal(t, "abcd...", truncateLine("abcdefghij", 7))
	require.Equal(t, "short", truncateLine("short", 7))
}
