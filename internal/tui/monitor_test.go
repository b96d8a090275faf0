package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/machinewatch/internal/protocol"
	"github.com/muurk/machinewatch/internal/reconcile"
)

type stubRunner struct {
	result *reconcile.Result
	err    error
	calls  int
}

func (s *stubRunner) RunCycle(ctx context.Context, req reconcile.Request) (*reconcile.Result, error) {
	s.calls++
	return s.result, s.err
}

func device(ip, raw string) reconcile.Device {
	return reconcile.Device{
		MachineStatus: protocol.ParseStatus(raw),
		IPAddress:     ip,
		Port:          3001,
		RawResponse:   raw,
	}
}

func update(t *testing.T, m MonitorModel, msg tea.Msg) (MonitorModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	mm, ok := next.(MonitorModel)
	require.True(t, ok)
	return mm, cmd
}

func TestMonitorMergesDevicesAcrossCycles(t *testing.T) {
	m := NewMonitorModel(&stubRunner{}, reconcile.Request{}, 0)

	m, _ = update(t, m, cycleStartMsg{})
	assert.True(t, m.Scanning)

	m, cmd := update(t, m, cycleDoneMsg{result: &reconcile.Result{
		DiscoveredCount: 2,
		Devices: []reconcile.Device{
			device("10.0.0.7", "Status: RUNNING Job: bracket"),
			device("10.0.0.5", "Status: IDLE"),
		},
	}})
	assert.Nil(t, cmd, "no refresh scheduled when interval is zero")
	assert.False(t, m.Scanning)
	assert.Equal(t, 2, m.DeviceCount())

	m, _ = update(t, m, cycleDoneMsg{result: &reconcile.Result{
		DiscoveredCount: 1,
		Devices:         []reconcile.Device{device("10.0.0.7", "Status: ALARM")},
	}})
	assert.Equal(t, 2, m.DeviceCount())
	assert.Equal(t, 2, m.Cycles)

	rows := m.Table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "10.0.0.5:3001", rows[0][0])
	assert.Equal(t, "10.0.0.7:3001", rows[1][0])
	assert.Equal(t, "ALARM", rows[1][1])
}

func TestMonitorKeepsDevicesOnError(t *testing.T) {
	m := NewMonitorModel(&stubRunner{}, reconcile.Request{}, time.Minute)
	m, _ = update(t, m, cycleDoneMsg{result: &reconcile.Result{
		DiscoveredCount: 1,
		Devices:         []reconcile.Device{device("10.0.0.5", "Status: IDLE")},
	}})

	m, cmd := update(t, m, cycleDoneMsg{err: errors.New("bind: address already in use")})
	assert.NotNil(t, cmd, "refresh still scheduled after a failed cycle")
	assert.Equal(t, 1, m.DeviceCount())
	assert.Contains(t, m.View(), "address already in use")
}

func TestMonitorRefreshKey(t *testing.T) {
	runner := &stubRunner{result: &reconcile.Result{}}
	m := NewMonitorModel(runner, reconcile.Request{}, 0)

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	require.NotNil(t, cmd)

	m.Scanning = true
	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	assert.Nil(t, cmd, "refresh ignored while a cycle is running")
}

func TestMonitorRunCycle(t *testing.T) {
	runner := &stubRunner{result: &reconcile.Result{DiscoveredCount: 0}}
	m := NewMonitorModel(runner, reconcile.Request{BroadcastIP: "10.0.0.255"}, 0)

	msg := m.runCycle()
	done, ok := msg.(cycleDoneMsg)
	require.True(t, ok)
	assert.NoError(t, done.err)
	assert.Same(t, runner.result, done.result)
	assert.Equal(t, 1, runner.calls)
}

func TestMonitorQuit(t *testing.T) {
	m := NewMonitorModel(&stubRunner{}, reconcile.Request{}, 0)
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestMonitorViewEmpty(t *testing.T) {
	m := NewMonitorModel(&stubRunner{}, reconcile.Request{}, 0)
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m, _ = update(t, m, cycleDoneMsg{result: &reconcile.Result{}})

	view := m.View()
	assert.Contains(t, view, AppName)
	assert.Contains(t, view, "No devices found within timeout.")
	assert.Contains(t, view, "scan now")
}
