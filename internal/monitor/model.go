// Package monitor provides the Bubble Tea live dashboard for a running server.
package monitor

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/topy/internal/client"
	"github.com/verte-zerg/topy/internal/stats"
)

const (
	tabOverview = iota
	tabCommands
	tabAutodump
)

const (
	// HistorySize bounds the snapshots kept for trends.
	HistorySize = 120
	// DefaultInterval is the default poll period.
	DefaultInterval = 2 * time.Second

	trendWindow = 5
)

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A"))
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
)

// Source produces snapshots. *client.Client implements it.
type Source interface {
	Snapshot() (client.Snapshot, error)
}

type snapshotMsg struct {
	snap client.Snapshot
	err  error
}

type tickMsg time.Time

// Model implements the Bubble Tea dashboard.
type Model struct {
	src      Source
	interval time.Duration
	target   string

	history []client.Snapshot
	errMsg  string

	tabs      []string
	activeTab int
	viewports []viewport.Model
	cmdTable  table.Model

	width  int
	height int
}

// NewModel polls src every interval. target names the server in the header.
func NewModel(src Source, interval time.Duration, target string) *Model {
	if interval <= 0 {
		interval = DefaultInterval
	}
	m := &Model{
		src:      src,
		interval: interval,
		target:   target,
		tabs:     []string{"Overview", "Commands", "Autodump"},
	}
	m.viewports = make([]viewport.Model, len(m.tabs))
	for i := range m.viewports {
		m.viewports[i] = viewport.New(0, 0)
	}
	m.cmdTable = table.New(
		table.WithColumns(commandColumns(0)),
		table.WithHeight(1),
	)
	m.cmdTable.SetStyles(commandTableStyles())
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return m.poll()
}

func (m *Model) poll() tea.Cmd {
	src := m.src
	return func() tea.Msg {
		snap, err := src.Snapshot()
		return snapshotMsg{snap: snap, err: err}
	}
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderTabContents()
		return m, nil
	case snapshotMsg:
		if msg.err != nil {
			m.errMsg = msg.err.Error()
		} else {
			m.errMsg = ""
			m.push(msg.snap)
			m.renderTabContents()
		}
		return m, m.tick()
	case tickMsg:
		return m, m.poll()
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			return m, tea.Quit
		}
		switch msg.String() {
		case "left", "h", "shift+tab":
			m.moveTab(-1)
			return m, nil
		case "right", "l", "tab":
			m.moveTab(1)
			return m, nil
		case "r":
			return m, m.poll()
		}
		if m.activeTab == tabCommands {
			var cmd tea.Cmd
			m.cmdTable, cmd = m.cmdTable.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func (m *Model) push(snap client.Snapshot) {
	m.history = append(m.history, snap)
	if len(m.history) > HistorySize {
		m.history = m.history[len(m.history)-HistorySize:]
	}
}

func (m *Model) latest() (client.Snapshot, bool) {
	if len(m.history) == 0 {
		return client.Snapshot{}, false
	}
	return m.history[len(m.history)-1], true
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := max(1, lipgloss.Height(activeNavStyle.Render("X")))
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = max(1, m.height-headerHeight-footerHeight)
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, bodyHeight, _ := m.layoutHeights()
	for i := range m.viewports {
		m.viewports[i].Width = m.width
		m.viewports[i].Height = bodyHeight
	}
	m.cmdTable.SetColumns(commandColumns(m.width))
	m.cmdTable.SetWidth(m.width)
	m.cmdTable.SetHeight(max(1, bodyHeight-1))
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	m.activeTab = (m.activeTab + delta + count) % count
	if m.activeTab == tabCommands {
		m.cmdTable.Focus()
	} else {
		m.cmdTable.Blur()
	}
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	summary := fmt.Sprintf("Server: %s  poll=%s", m.target, m.interval)
	if snap, ok := m.latest(); ok {
		summary += "  updated " + snap.At.Format("15:04:05")
	}
	return padLines(m.renderTabs(), m.width) + "\n" + headerStyle.Render(truncateLine(summary, m.width))
}

func (m *Model) renderFooter() string {
	help := headerStyle.Render("Nav: left/right  Scroll: up/down  Refresh: r  Quit: q")
	if m.errMsg != "" {
		return help + "\n" + errorStyle.Render(truncateLine(m.errMsg, m.width))
	}
	return help
}

func (m *Model) renderBody() string {
	if len(m.history) == 0 {
		return "Waiting for the first snapshot..."
	}
	if m.activeTab == tabCommands {
		return tableMutedStyle.Render(m.cmdTable.View())
	}
	return m.viewports[m.activeTab].View()
}

func (m *Model) renderTabContents() {
	snap, ok := m.latest()
	if !ok {
		return
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	m.viewports[tabOverview].SetContent(renderOverview(m.history, m.interval, width))
	m.viewports[tabAutodump].SetContent(renderAutodump(snap.Autodump))
	m.cmdTable.SetRows(commandRows(m.history))
}

func renderOverview(history []client.Snapshot, interval time.Duration, width int) string {
	last := history[len(history)-1]
	rates := totalRates(history)
	rate := 0.0
	if len(rates) > 0 {
		rate = rates[len(rates)-1]
	}
	cards := []string{
		metricCard("Uptime", formatUptime(last.Stats.Uptime)),
		metricCard("Users", fmt.Sprintf("%d", last.Stats.Users)),
		metricCard("Commands", fmt.Sprintf("%d", last.Stats.Total())),
		metricCard("Rate/s", fmt.Sprintf("%.1f", rate)),
	}
	var summary string
	if width < 60 {
		summary = strings.Join(cards, "\n")
	} else {
		summary = lipgloss.JoinHorizontal(lipgloss.Top, cards...)
	}

	trend := "Collecting samples..."
	if len(rates) > 1 {
		smoothed := stats.MovingAverage(rates, trendWindow)
		if len(smoothed) > width-2 {
			smoothed = smoothed[len(smoothed)-(width-2):]
		}
		trend = fmt.Sprintf("Commands/s over the last %s\n[%s]", interval*time.Duration(len(rates)), stats.Sparkline(smoothed))
	}
	return summary + "\n\n" + trend
}

func metricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), cardValueStyle.Render(value))
	return cardStyle.Render(content)
}

func renderAutodump(ad client.AutodumpStats) string {
	enabled := errorStyle.Render("disabled")
	if ad.Enabled {
		enabled = okStyle.Render("enabled")
	}
	rows := [][]string{
		{"State", enabled},
		{"Target", valueOr(ad.Target, "-")},
		{"Delay", (time.Duration(ad.Delay) * time.Second).String()},
	}
	if ad.Enabled {
		rows = append(rows, []string{"Next dump in", (time.Duration(ad.Next) * time.Second).String()})
	}
	if ad.Last == nil {
		rows = append(rows, []string{"Last dump", "never"})
	} else {
		result := okStyle.Render("ok")
		if !ad.Last.OK {
			result = errorStyle.Render("failed: " + ad.Last.Message)
		}
		at := time.Unix(ad.Last.At, 0).Format("2006-01-02 15:04:05")
		rows = append(rows, []string{"Last dump", at + "  " + result})
	}
	return strings.Join(stats.FormatTable(nil, rows, nil), "\n")
}

// totalRates derives commands per second between consecutive snapshots.
func totalRates(history []client.Snapshot) []float64 {
	if len(history) < 2 {
		return nil
	}
	out := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		dt := history[i].At.Sub(history[i-1].At).Seconds()
		r := stats.Rates([]uint64{history[i-1].Stats.Total(), history[i].Stats.Total()}, dt)
		if len(r) == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, r[0])
	}
	return out
}

func commandColumns(width int) []table.Column {
	nameWidth := max(24, width-26)
	return []table.Column{
		{Title: "Command", Width: nameWidth},
		{Title: "Total", Width: 10},
		{Title: "Rate/s", Width: 10},
	}
}

// commandRows lists the counters of the last snapshot, busiest first.
func commandRows(history []client.Snapshot) []table.Row {
	last := history[len(history)-1]
	prev := map[string]uint64{}
	var dt float64
	if len(history) > 1 {
		before := history[len(history)-2]
		dt = last.At.Sub(before.At).Seconds()
		for _, c := range before.Stats.Commands {
			prev[c.Name] = c.Value
		}
	}
	counters := append([]stats.Counter(nil), last.Stats.Commands...)
	sort.SliceStable(counters, func(i, j int) bool {
		if counters[i].Value != counters[j].Value {
			return counters[i].Value > counters[j].Value
		}
		return counters[i].Name < counters[j].Name
	})
	rows := make([]table.Row, 0, len(counters))
	for _, c := range counters {
		rate := 0.0
		if r := stats.Rates([]uint64{prev[c.Name], c.Value}, dt); len(r) > 0 && dt > 0 {
			rate = r[0]
		}
		rows = append(rows, table.Row{c.Name, fmt.Sprintf("%d", c.Value), fmt.Sprintf("%.1f", rate)})
	}
	return rows
}

func commandTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

func formatUptime(seconds int64) string {
	d := time.Duration(seconds) * time.Second
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	if days > 0 {
		return fmt.Sprintf("%dd %s", days, d)
	}
	return d.String()
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
