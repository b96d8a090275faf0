package simulator

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/machinewatch/internal/protocol"
)

func TestMachineSnapshot(t *testing.T) {
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	clock := start

	m := NewMachine("bracket", "bracket_v2.gcode", time.Hour)
	m.started = start
	m.now = func() time.Time { return clock }

	clock = start.Add(15 * time.Minute)
	s := m.Snapshot()
	assert.Equal(t, "RUNNING", s.Status)
	require.NotNil(t, s.RunningTimeMinutes)
	assert.InDelta(t, 15.0, *s.RunningTimeMinutes, 0.01)
	require.NotNil(t, s.BalanceTimeMinutes)
	assert.InDelta(t, 45.0, *s.BalanceTimeMinutes, 0.01)
	assert.Equal(t, "bracket", s.JobName)

	clock = start.Add(2 * time.Hour)
	s = m.Snapshot()
	assert.Equal(t, "IDLE", s.Status)
	assert.Nil(t, s.RunningTimeMinutes)
	assert.Equal(t, protocol.NotAvailable, s.JobName)
}

func TestMachineReplyParses(t *testing.T) {
	m := NewMachine("gear", "gear.nc", 30*time.Minute)
	parsed := protocol.ParseStatus(m.Reply())
	assert.Equal(t, "RUNNING", parsed.Status)
	assert.Equal(t, "gear", parsed.JobName)
	assert.Equal(t, "gear.nc", parsed.Filename)

	m.Override = "garbled \x00 reply"
	assert.Equal(t, "garbled \x00 reply", m.Reply())
}

func TestResponderAnswersBeacon(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r, err := Listen(ctx, "127.0.0.1:0", []byte("PING"), func() string { return "Status: IDLE" })
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- r.Serve(ctx) }()

	client, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer client.Close()

	// Non-beacon traffic is ignored
	_, err = client.WriteTo([]byte("hello"), r.Addr())
	require.NoError(t, err)
	_, err = client.WriteTo([]byte("PING"), r.Addr())
	require.NoError(t, err)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 256)
	n, _, err := client.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "Status: IDLE", string(buf[:n]))

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.Equal(t, int64(1), r.Replies())
}
