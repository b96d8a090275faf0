package protocol

import (
	"regexp"
	"strconv"
	"strings"
)

// Field keys recognised in a machine status reply
const (
	KeyStatus      = "Status"
	KeyRunningTime = "RunningTime"
	KeyJob         = "Job"
	KeyBalance     = "Balance"
	KeyFile        = "File"
)

// Fallback values used when a field is missing or marked unavailable
const (
	StatusUnknown = "UNKNOWN"
	NotAvailable  = "N/A"
)

// knownKeys is the fixed key set; a value runs until the next of these.
var knownKeys = []string{KeyStatus, KeyRunningTime, KeyJob, KeyBalance, KeyFile}

// leadingNumber matches the numeric prefix of a time value ("15.5h" -> "15.5").
var leadingNumber = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)

// MachineStatus is the structured form of a machine's status reply.
// Time fields are in minutes; nil means the machine did not report a usable value.
type MachineStatus struct {
	Status             string   `json:"status"`
	RunningTimeMinutes *float64 `json:"runningTime"`
	JobName            string   `json:"jobName"`
	BalanceTimeMinutes *float64 `json:"balanceTime"`
	Filename           string   `json:"filename"`
}

// keyMatch is one occurrence of "<Key>:" in the raw text
type keyMatch struct {
	key        string
	start      int // offset of the key name
	valueStart int // offset just past the colon
}

// ParseStatus parses a raw status reply such as
//
//	Status: RUNNING RunningTime: 2h Job: bracket.gcode Balance: 45m File: bracket_v2.gcode
//
// Keys may appear in any order, be separated by spaces or newlines, and any
// subset may be missing. ParseStatus never fails: missing or garbled fields
// take their fallback values.
func ParseStatus(raw string) MachineStatus {
	fields := extractFields(raw)

	return MachineStatus{
		Status:             orDefault(fields[KeyStatus], StatusUnknown),
		RunningTimeMinutes: parseMinutes(fields[KeyRunningTime]),
		JobName:            normalizeText(fields[KeyJob]),
		BalanceTimeMinutes: parseMinutes(fields[KeyBalance]),
		Filename:           normalizeText(fields[KeyFile]),
	}
}

// extractFields tokenizes raw into key -> trimmed value. The first
// occurrence of a key wins; its value spans to the next key, the next
// newline, or the end of input.
func extractFields(raw string) map[string]string {
	matches := scanKeys(raw)
	fields := make(map[string]string, len(knownKeys))

	for i, m := range matches {
		if _, seen := fields[m.key]; seen {
			continue
		}
		end := len(raw)
		if i+1 < len(matches) {
			end = matches[i+1].start
		}
		value := raw[m.valueStart:end]
		if nl := strings.IndexAny(value, "\r\n"); nl >= 0 {
			value = value[:nl]
		}
		fields[m.key] = strings.TrimSpace(value)
	}

	return fields
}

// scanKeys finds every "<Key>:" occurrence, matched case-insensitively
// anywhere in the text. Matches come out in position order.
func scanKeys(raw string) []keyMatch {
	var matches []keyMatch

	for i := 0; i < len(raw); i++ {
		for _, key := range knownKeys {
			end := i + len(key)
			if end >= len(raw) || raw[end] != ':' {
				continue
			}
			if strings.EqualFold(raw[i:end], key) {
				matches = append(matches, keyMatch{key: key, start: i, valueStart: end + 1})
				break
			}
		}
	}

	return matches
}

// Sanitize makes raw reply bytes safe to store as text: NUL bytes are
// dropped and invalid UTF-8 sequences become U+FFFD.
func Sanitize(raw string) string {
	if strings.IndexByte(raw, 0) >= 0 {
		raw = strings.ReplaceAll(raw, "\x00", "")
	}
	return strings.ToValidUTF8(raw, "\uFFFD")
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func normalizeText(value string) string {
	if value == "" || strings.EqualFold(value, NotAvailable) {
		return NotAvailable
	}
	return value
}

// parseMinutes converts a time value to minutes. The unit is taken from
// the last character of the value text: h = hours, s = seconds,
// anything else is already minutes.
func parseMinutes(value string) *float64 {
	if value == "" || strings.EqualFold(value, NotAvailable) {
		return nil
	}

	number := leadingNumber.FindString(value)
	if number == "" {
		return nil
	}
	minutes, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return nil
	}

	switch lower := strings.ToLower(value); {
	case strings.HasSuffix(lower, "h"):
		minutes *= 60
	case strings.HasSuffix(lower, "s"):
		minutes /= 60
	}

	return &minutes
}
