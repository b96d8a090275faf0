package ui

import (
	"errors"
	"strings"
	"testing"

	"github.com/muurk/machinewatch/internal/protocol"
)

func TestFormatMinutes(t *testing.T) {
	tests := []struct {
		in   *float64
		want string
	}{
		{nil, "-"},
		{protocol.Minutes(0), "0m"},
		{protocol.Minutes(42.4), "42m"},
		{protocol.Minutes(59.6), "1h 00m"},
		{protocol.Minutes(930), "15h 30m"},
	}
	for _, tt := range tests {
		if got := FormatMinutes(tt.in); got != tt.want {
			t.Errorf("FormatMinutes() = %q, want %q", got, tt.want)
		}
	}
}

func TestRenderDeviceTable(t *testing.T) {
	out := RenderDeviceTable([]Row{
		{IPAddress: "10.0.0.5", Port: 3001, Status: protocol.ParseStatus("Status: RUNNING RunningTime: 2h Job: bracket")},
		{IPAddress: "10.0.0.12", Port: 3001, Status: protocol.ParseStatus("garbled")},
	})

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %d lines:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "ADDRESS") {
		t.Errorf("header missing: %q", lines[0])
	}
	if !strings.Contains(lines[1], "10.0.0.5:3001") || !strings.Contains(lines[1], "2h 00m") {
		t.Errorf("row 1 = %q", lines[1])
	}
	if !strings.Contains(lines[2], "UNKNOWN") || !strings.Contains(lines[2], "N/A") {
		t.Errorf("row 2 = %q", lines[2])
	}
}

func TestRenderError(t *testing.T) {
	out := RenderError("Discovery failed", errors.New("address already in use"), DiscoveryTips...)
	if !strings.Contains(out, "address already in use") {
		t.Errorf("error text missing: %q", out)
	}
	if !strings.Contains(out, "Troubleshooting") {
		t.Errorf("tips missing: %q", out)
	}
}

func TestHeaderRender(t *testing.T) {
	h := NewHeader("Discovery", "machinewatch discover", Param{"Broadcast", "10.0.0.255"})
	h.Width = 80
	out := h.String()
	if !strings.Contains(out, "DISCOVERY") || !strings.Contains(out, "10.0.0.255") {
		t.Errorf("header = %q", out)
	}
}
