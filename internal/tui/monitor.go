package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/machinewatch/internal/reconcile"
	"github.com/muurk/machinewatch/internal/ui"
)

// Messages for async operations
type cycleStartMsg struct{}
type cycleDoneMsg struct {
	result  *reconcile.Result
	err     error
	elapsed time.Duration
}
type tickMsg struct{}

type monitorKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

func (k monitorKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Refresh, k.Quit}
}

func (k monitorKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Up, k.Down}, {k.Refresh, k.Quit}}
}

// seenDevice is the latest sighting of one machine
type seenDevice struct {
	device reconcile.Device
	at     time.Time
}

// MonitorModel runs a discovery cycle every interval and keeps a table of
// every machine seen since it started.
type MonitorModel struct {
	runner   reconcile.Runner
	request  reconcile.Request
	interval time.Duration

	Scanning bool
	Cycles   int
	Err      error
	Message  string
	Elapsed  time.Duration
	LastRun  time.Time

	devices map[string]seenDevice

	Width   int
	Height  int
	Table   table.Model
	Spinner spinner.Model
	Help    help.Model
	Keys    monitorKeyMap
}

// NewMonitorModel creates the model. interval <= 0 disables automatic refresh.
func NewMonitorModel(runner reconcile.Runner, req reconcile.Request, interval time.Duration) MonitorModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	t := table.New(
		table.WithColumns(columnsFor(minWidth)),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Foreground(ui.PrimaryColor).Bold(true)
	styles.Selected = styles.Selected.Foreground(ui.TextColor).Background(ui.PrimaryColor)
	t.SetStyles(styles)

	return MonitorModel{
		runner:   runner,
		request:  req,
		interval: interval,
		devices:  make(map[string]seenDevice),
		Table:    t,
		Spinner:  s,
		Help:     help.New(),
		Keys: monitorKeyMap{
			Up: key.NewBinding(
				key.WithKeys("up", "k"),
				key.WithHelp("↑/k", "up"),
			),
			Down: key.NewBinding(
				key.WithKeys("down", "j"),
				key.WithHelp("↓/j", "down"),
			),
			Refresh: key.NewBinding(
				key.WithKeys("r"),
				key.WithHelp("r", "scan now"),
			),
			Quit: key.NewBinding(
				key.WithKeys("q", "esc", "ctrl+c"),
				key.WithHelp("q", "quit"),
			),
		},
	}
}

// columnsFor spreads the table over width
func columnsFor(width int) []table.Column {
	fixed := 21 + 10 + 9 + 9 + 10
	flex := (width - fixed - 16) / 2
	if flex < 12 {
		flex = 12
	}
	return []table.Column{
		{Title: "Address", Width: 21},
		{Title: "Status", Width: 10},
		{Title: "Job", Width: flex},
		{Title: "Running", Width: 9},
		{Title: "Balance", Width: 9},
		{Title: "File", Width: flex},
		{Title: "Seen", Width: 10},
	}
}

func (m MonitorModel) Init() tea.Cmd {
	return tea.Batch(m.startCycle(), m.Spinner.Tick)
}

func (m MonitorModel) startCycle() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return cycleStartMsg{} },
		m.runCycle,
	)
}

// runCycle executes one discovery cycle off the UI goroutine
func (m MonitorModel) runCycle() tea.Msg {
	start := time.Now()
	res, err := m.runner.RunCycle(context.Background(), m.request)
	return cycleDoneMsg{result: res, err: err, elapsed: time.Since(start)}
}

func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.Keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.Keys.Refresh):
			if !m.Scanning {
				return m, m.startCycle()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Table.SetColumns(columnsFor(msg.Width))
		m.Table.SetHeight(max(3, msg.Height-12))

	case cycleStartMsg:
		m.Scanning = true
		return m, m.Spinner.Tick

	case cycleDoneMsg:
		m.Scanning = false
		m.Cycles++
		m.Elapsed = msg.elapsed
		m.LastRun = time.Now()
		m.Err = msg.err
		if msg.err == nil {
			m.Message = msg.result.Message()
			m.merge(msg.result)
		}
		if m.interval > 0 {
			return m, tea.Tick(m.interval, func(time.Time) tea.Msg { return tickMsg{} })
		}
		return m, nil

	case tickMsg:
		if !m.Scanning {
			return m, m.startCycle()
		}
		return m, nil

	case spinner.TickMsg:
		if !m.Scanning {
			return m, nil
		}
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

// merge records the latest sighting per address and rebuilds the rows
func (m *MonitorModel) merge(res *reconcile.Result) {
	now := time.Now()
	for _, d := range res.Devices {
		m.devices[d.IPAddress] = seenDevice{device: d, at: now}
	}

	addrs := make([]string, 0, len(m.devices))
	for addr := range m.devices {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	rows := make([]table.Row, 0, len(addrs))
	for _, addr := range addrs {
		s := m.devices[addr]
		rows = append(rows, table.Row{
			fmt.Sprintf("%s:%d", s.device.IPAddress, s.device.Port),
			s.device.Status,
			s.device.JobName,
			ui.FormatMinutes(s.device.RunningTimeMinutes),
			ui.FormatMinutes(s.device.BalanceTimeMinutes),
			s.device.Filename,
			s.at.Format("15:04:05"),
		})
	}
	m.Table.SetRows(rows)
}

// DeviceCount returns how many distinct machines have been seen
func (m MonitorModel) DeviceCount() int {
	return len(m.devices)
}

func (m MonitorModel) View() string {
	width := m.Width
	if width == 0 {
		width = minWidth
	}

	var b strings.Builder
	b.WriteString("\n")
	switch {
	case m.Scanning:
		b.WriteString(fmt.Sprintf(" %s Broadcasting discovery beacon...", m.Spinner.View()))
	case m.Err != nil:
		b.WriteString(errorStyle.Render(" " + ui.FailureMarker + " " + m.Err.Error()))
	case m.Cycles > 0 && len(m.devices) == 0:
		b.WriteString(warningStyle.Render(" " + ui.WarningMarker + " " + m.Message))
	case m.Cycles > 0:
		b.WriteString(" " + m.Message)
	}
	b.WriteString("\n")

	if m.Cycles > 0 {
		b.WriteString(subtleStyle.Render(fmt.Sprintf(" cycle %d at %s took %s",
			m.Cycles, m.LastRun.Format("15:04:05"), m.Elapsed.Round(time.Millisecond))))
	}
	b.WriteString("\n\n")
	b.WriteString(m.Table.View())
	b.WriteString("\n")

	return renderContainer(b.String(), m.Help.View(m.Keys), width)
}
