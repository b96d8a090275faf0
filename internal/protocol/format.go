package protocol

import (
	"strconv"
	"strings"
)

// FormatStatus renders a status as the single-line reply a machine sends.
// Time fields are written in minutes with an "m" suffix; nil becomes N/A.
func FormatStatus(s MachineStatus) string {
	var b strings.Builder

	writeField(&b, KeyStatus, orDefault(s.Status, StatusUnknown))
	writeField(&b, KeyRunningTime, formatMinutes(s.RunningTimeMinutes))
	writeField(&b, KeyJob, normalizeText(s.JobName))
	writeField(&b, KeyBalance, formatMinutes(s.BalanceTimeMinutes))
	writeField(&b, KeyFile, normalizeText(s.Filename))

	return b.String()
}

func writeField(b *strings.Builder, key, value string) {
	if b.Len() > 0 {
		b.WriteByte(' ')
	}
	b.WriteString(key)
	b.WriteString(": ")
	b.WriteString(value)
}

func formatMinutes(minutes *float64) string {
	if minutes == nil {
		return NotAvailable
	}
	return strconv.FormatFloat(*minutes, 'f', -1, 64) + "m"
}

// Minutes returns a pointer to v, for building statuses in code
func Minutes(v float64) *float64 {
	return &v
}
