package protocol

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		verify func(t *testing.T, s MachineStatus)
	}{
		{
			name: "all fields with mixed units",
			raw:  "Status: ACTIVE RunningTime: 15.5h Job: Big_Project.gcode Balance: 123.4s File: project_final.gcode",
			verify: func(t *testing.T, s MachineStatus) {
				assert.Equal(t, "ACTIVE", s.Status)
				require.NotNil(t, s.RunningTimeMinutes)
				assert.InDelta(t, 930.0, *s.RunningTimeMinutes, 1e-9)
				assert.Equal(t, "Big_Project.gcode", s.JobName)
				require.NotNil(t, s.BalanceTimeMinutes)
				assert.InDelta(t, 2.0567, *s.BalanceTimeMinutes, 1e-4)
				assert.Equal(t, "project_final.gcode", s.Filename)
			},
		},
		{
			name: "partial fields",
			raw:  "Status: IDLE Job: standby_job",
			verify: func(t *testing.T, s MachineStatus) {
				assert.Equal(t, "IDLE", s.Status)
				assert.Nil(t, s.RunningTimeMinutes)
				assert.Nil(t, s.BalanceTimeMinutes)
				assert.Equal(t, "standby_job", s.JobName)
				assert.Equal(t, NotAvailable, s.Filename)
			},
		},
		{
			name: "unstructured text",
			raw:  "random text",
			verify: func(t *testing.T, s MachineStatus) {
				assert.Equal(t, MachineStatus{
					Status:   StatusUnknown,
					JobName:  NotAvailable,
					Filename: NotAvailable,
				}, s)
			},
		},
		{
			name: "empty input",
			raw:  "",
			verify: func(t *testing.T, s MachineStatus) {
				assert.Equal(t, StatusUnknown, s.Status)
				assert.Equal(t, NotAvailable, s.JobName)
			},
		},
		{
			name: "newline separated and out of order",
			raw:  "File: part.nc\nBalance: 10\nStatus: RUNNING\nJob: part\nRunningTime: 5m",
			verify: func(t *testing.T, s MachineStatus) {
				assert.Equal(t, "RUNNING", s.Status)
				assert.Equal(t, "part", s.JobName)
				assert.Equal(t, "part.nc", s.Filename)
				require.NotNil(t, s.RunningTimeMinutes)
				assert.Equal(t, 5.0, *s.RunningTimeMinutes)
				require.NotNil(t, s.BalanceTimeMinutes)
				assert.Equal(t, 10.0, *s.BalanceTimeMinutes)
			},
		},
		{
			name: "keys are case-insensitive",
			raw:  "status: running job: n/a file: N/a",
			verify: func(t *testing.T, s MachineStatus) {
				assert.Equal(t, "running", s.Status)
				assert.Equal(t, NotAvailable, s.JobName)
				assert.Equal(t, NotAvailable, s.Filename)
			},
		},
		{
			name: "unavailable and garbled times",
			raw:  "Status: ALARM RunningTime: N/A Balance: soon",
			verify: func(t *testing.T, s MachineStatus) {
				assert.Equal(t, "ALARM", s.Status)
				assert.Nil(t, s.RunningTimeMinutes)
				assert.Nil(t, s.BalanceTimeMinutes)
			},
		},
		{
			name: "empty status value",
			raw:  "Status: Job: warmup",
			verify: func(t *testing.T, s MachineStatus) {
				assert.Equal(t, StatusUnknown, s.Status)
				assert.Equal(t, "warmup", s.JobName)
			},
		},
		{
			name: "first occurrence wins",
			raw:  "Status: RUNNING Status: IDLE",
			verify: func(t *testing.T, s MachineStatus) {
				assert.Equal(t, "RUNNING", s.Status)
			},
		},
		{
			name: "key glued to the previous value still ends it",
			raw:  "Job: part_File: x",
			verify: func(t *testing.T, s MachineStatus) {
				assert.Equal(t, "part_", s.JobName)
				assert.Equal(t, "x", s.Filename)
			},
		},
		{
			name: "key inside a longer word is still a key",
			raw:  "Status: IDLE Note: ProfileJob: x",
			verify: func(t *testing.T, s MachineStatus) {
				assert.Equal(t, "IDLE Note: Profile", s.Status)
				assert.Equal(t, "x", s.JobName)
			},
		},
		{
			name: "unknown keys are kept in the preceding value",
			raw:  "Job: gear Spindle: 1200rpm",
			verify: func(t *testing.T, s MachineStatus) {
				assert.Equal(t, "gear Spindle: 1200rpm", s.JobName)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.verify(t, ParseStatus(tt.raw))
		})
	}
}

func TestParseStatusTimeUnits(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"RunningTime: 2h", 120},
		{"RunningTime: 30m", 30},
		{"RunningTime: 45min", 45},
		{"RunningTime: 12", 12},
		{"RunningTime: 1.5H", 90},
		{"RunningTime: 90S", 1.5},
		{"Balance: 120s", 2},
		{"Balance: .5h", 30},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			s := ParseStatus(tt.raw)
			got := s.RunningTimeMinutes
			if got == nil {
				got = s.BalanceTimeMinutes
			}
			require.NotNil(t, got)
			assert.InDelta(t, tt.want, *got, 1e-9)
		})
	}
}

func TestFormatStatusRoundTrip(t *testing.T) {
	in := MachineStatus{
		Status:             "RUNNING",
		RunningTimeMinutes: Minutes(42.5),
		JobName:            "bracket",
		BalanceTimeMinutes: nil,
		Filename:           "bracket_v2.gcode",
	}

	raw := FormatStatus(in)
	assert.Equal(t, "Status: RUNNING RunningTime: 42.5m Job: bracket Balance: N/A File: bracket_v2.gcode", raw)
	assert.Equal(t, in, ParseStatus(raw))
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Status: RUNNING", "Status: RUNNING"},
		{"Status: \x00\xffOK", "Status: \uFFFDOK"},
		{"\x00\x00", ""},
		{"Job: caf\xc3", "Job: caf\uFFFD"},
	}
	for _, tt := range tests {
		got := Sanitize(tt.raw)
		assert.Equal(t, tt.want, got, "raw=%q", tt.raw)
		assert.True(t, utf8.ValidString(got))
		assert.NotContains(t, got, "\x00")
	}
}
