package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/machinewatch/internal/protocol"
	"github.com/muurk/machinewatch/internal/reconcile"
	"github.com/muurk/machinewatch/internal/store"
)

type stubRunner struct {
	result *reconcile.Result
	err    error
	got    reconcile.Request
}

func (s *stubRunner) RunCycle(_ context.Context, req reconcile.Request) (*reconcile.Result, error) {
	s.got = req
	return s.result, s.err
}

type failingStore struct {
	*store.Memory
}

func (failingStore) Ping(context.Context) error { return errors.New("connection refused") }

func newTestServer(runner reconcile.Runner, st store.Store) *Server {
	return New(Config{DefaultTimeout: 5 * time.Second}, runner, st, nil)
}

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestRoot(t *testing.T) {
	rec, body := get(t, newTestServer(&stubRunner{}, store.NewMemory()), "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Machine Discovery Backend is running!", body["message"])
}

func TestDBCheck(t *testing.T) {
	rec, body := get(t, newTestServer(&stubRunner{}, store.NewMemory()), "/api/db-check")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])

	rec, body = get(t, newTestServer(&stubRunner{}, failingStore{store.NewMemory()}), "/api/db-check")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["message"], "connection refused")
}

func TestDiscoverDevices(t *testing.T) {
	runner := &stubRunner{result: &reconcile.Result{
		DiscoveredCount: 1,
		InsertedCount:   1,
		Devices: []reconcile.Device{{
			MachineStatus: protocol.ParseStatus("Status: RUNNING RunningTime: 2h Job: bracket"),
			IPAddress:     "10.0.0.5",
			Port:          3001,
			RawResponse:   "Status: RUNNING RunningTime: 2h Job: bracket",
		}},
	}}
	s := newTestServer(runner, store.NewMemory())

	rec, body := get(t, s, "/api/discover-devices?broadcastIp=10.0.0.255&timeout=1500")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Found and updated 0 device(s). Inserted 1 new device(s).", body["message"])
	assert.Equal(t, "10.0.0.255", runner.got.BroadcastIP)
	assert.Equal(t, 1500*time.Millisecond, runner.got.Timeout)

	devices := body["devices"].([]any)
	require.Len(t, devices, 1)
	dev := devices[0].(map[string]any)
	assert.Equal(t, "10.0.0.5", dev["ip_address"])
	assert.Equal(t, "RUNNING", dev["status"])
	assert.Equal(t, 120.0, dev["runningTime"])
	assert.Nil(t, dev["balanceTime"])
	assert.Equal(t, "N/A", dev["filename"])
}

func TestDiscoverDevicesEmpty(t *testing.T) {
	runner := &stubRunner{result: &reconcile.Result{Devices: []reconcile.Device{}}}
	s := newTestServer(runner, store.NewMemory())

	rec, body := get(t, s, "/api/discover-devices?timeout=abc")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "No devices found within timeout.", body["message"])
	assert.Equal(t, []any{}, body["devices"])
	assert.Equal(t, "", runner.got.BroadcastIP)
	assert.Equal(t, 5*time.Second, runner.got.Timeout)
}

func TestDiscoverDevicesErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{
			name:    "no broadcast address",
			err:     reconcile.ErrNoBroadcastAddress,
			message: "Could not determine broadcast IP address.",
		},
		{
			name:    "socket failure",
			err:     &reconcile.DiscoveryError{BroadcastIP: "10.0.0.255", Err: errors.New("address already in use")},
			message: "Failed to discover devices: discovery to 10.0.0.255 failed: address already in use",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&stubRunner{err: tt.err}, store.NewMemory())
			rec, body := get(t, s, "/api/discover-devices")
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.message, body["message"])
		})
	}
}

func TestDiscoveredDevices(t *testing.T) {
	st := store.NewMemory()
	_, err := store.Upsert(context.Background(), st, &store.Record{IPAddress: "10.0.0.5", Port: 3001, Status: "IDLE"})
	require.NoError(t, err)
	s := newTestServer(&stubRunner{}, st)

	rec, body := get(t, s, "/api/discovered-devices")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["devices"], 1)

	rec, body = get(t, s, "/api/discovered-devices/10.0.0.5")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "IDLE", body["device"].(map[string]any)["status"])

	rec, _ = get(t, s, "/api/discovered-devices/10.0.0.99")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestParseTimeoutMillis(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"", time.Second},
		{"abc", time.Second},
		{"0", time.Second},
		{"-5", time.Second},
		{"250", 250 * time.Millisecond},
		{"60000", time.Minute},
		{"3600000", time.Minute},
		{"9223372036854775807", time.Minute},
		{"99999999999999999999", time.Minute},
		{"-99999999999999999999", time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseTimeoutMillis(tt.raw, time.Second, time.Minute), "raw=%q", tt.raw)
	}
}

func TestDiscoverDevicesClampsTimeout(t *testing.T) {
	runner := &stubRunner{result: &reconcile.Result{Devices: []reconcile.Device{}}}
	s := New(Config{DefaultTimeout: 5 * time.Second, MaxTimeout: 30 * time.Second}, runner, store.NewMemory(), nil)

	rec, _ := get(t, s, "/api/discover-devices?timeout=9223372036854775807")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 30*time.Second, runner.got.Timeout)

	rec, _ = get(t, newTestServer(runner, store.NewMemory()), "/api/discover-devices?timeout=86400000")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, DefaultMaxTimeout, runner.got.Timeout)
}

func TestStreamDeliversCycleResults(t *testing.T) {
	s := newTestServer(&stubRunner{}, store.NewMemory())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/discovery/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return s.Hub().Clients() == 1 }, time.Second, 10*time.Millisecond)

	s.Hub().Broadcast(&reconcile.Result{CycleID: "abc", DiscoveredCount: 2})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "cycle", msg.Type)
	require.NotNil(t, msg.Result)
	assert.Equal(t, "abc", msg.Result.CycleID)
	assert.Equal(t, 2, msg.Result.DiscoveredCount)

	s.Hub().Close()
	require.Eventually(t, func() bool { return s.Hub().Clients() == 0 }, time.Second, 10*time.Millisecond)
}

func TestServerStartAndShutdown(t *testing.T) {
	s := New(Config{Host: "127.0.0.1", Port: 0}, &stubRunner{}, store.NewMemory(), nil)
	require.NoError(t, s.Start())

	resp, err := http.Get("http://" + s.Addr() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}
