package simulator

import (
	"sync"
	"time"

	"github.com/muurk/machinewatch/internal/protocol"
)

// Machine is a simulated machine running one job of fixed length.
// Running time grows and balance time shrinks with the wall clock; once the
// job is complete the machine reports IDLE.
type Machine struct {
	Job      string
	File     string
	JobTime  time.Duration
	Status   string // reported while the job runs (default RUNNING)
	Override string // when set, sent verbatim instead of a formatted status

	mu      sync.Mutex
	started time.Time
	now     func() time.Time
}

// NewMachine creates a machine whose job starts now
func NewMachine(job, file string, jobTime time.Duration) *Machine {
	return &Machine{
		Job:     job,
		File:    file,
		JobTime: jobTime,
		started: time.Now(),
		now:     time.Now,
	}
}

// Reply returns the status text the machine sends for a beacon
func (m *Machine) Reply() string {
	if m.Override != "" {
		return m.Override
	}
	return protocol.FormatStatus(m.Snapshot())
}

// Snapshot returns the machine's current status
func (m *Machine) Snapshot() protocol.MachineStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now
	if m.now != nil {
		now = m.now
	}
	if m.started.IsZero() {
		m.started = now()
	}

	elapsed := now().Sub(m.started)
	if m.JobTime <= 0 || elapsed >= m.JobTime {
		return protocol.MachineStatus{
			Status:   "IDLE",
			JobName:  protocol.NotAvailable,
			Filename: protocol.NotAvailable,
		}
	}

	status := m.Status
	if status == "" {
		status = "RUNNING"
	}
	return protocol.MachineStatus{
		Status:             status,
		RunningTimeMinutes: protocol.Minutes(roundMinutes(elapsed)),
		JobName:            m.Job,
		BalanceTimeMinutes: protocol.Minutes(roundMinutes(m.JobTime - elapsed)),
		Filename:           m.File,
	}
}

// roundMinutes converts to minutes with two decimals
func roundMinutes(d time.Duration) float64 {
	return float64(d.Round(600*time.Millisecond)) / float64(time.Minute)
}
