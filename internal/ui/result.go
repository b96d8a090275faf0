package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/machinewatch/internal/protocol"
)

// Row is one machine in a device table
type Row struct {
	IPAddress   string
	Port        int
	Status      protocol.MachineStatus
	LastSeen    time.Time // zero hides the column value
	RawResponse string
}

var tableColumns = []string{"ADDRESS", "STATUS", "JOB", "RUNNING", "BALANCE", "FILE", "LAST SEEN"}

// RenderDeviceTable renders rows as an aligned table. Colors are applied
// after padding so ANSI codes do not break alignment.
func RenderDeviceTable(rows []Row) string {
	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		lastSeen := ""
		if !r.LastSeen.IsZero() {
			lastSeen = r.LastSeen.Local().Format("2006-01-02 15:04:05")
		}
		cells = append(cells, []string{
			fmt.Sprintf("%s:%d", r.IPAddress, r.Port),
			r.Status.Status,
			r.Status.JobName,
			FormatMinutes(r.Status.RunningTimeMinutes),
			FormatMinutes(r.Status.BalanceTimeMinutes),
			r.Status.Filename,
			lastSeen,
		})
	}

	widths := make([]int, len(tableColumns))
	for i, h := range tableColumns {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range cells {
		for i, c := range row {
			if w := lipgloss.Width(c); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	header := make([]string, len(tableColumns))
	for i, h := range tableColumns {
		header[i] = TableHeaderStyle.Render(pad(h, widths[i]))
	}
	b.WriteString(strings.TrimRight(strings.Join(header, "  "), " "))
	b.WriteString("\n")

	for _, row := range cells {
		out := make([]string, len(row))
		for i, c := range row {
			padded := pad(c, widths[i])
			if i == 1 {
				padded = StatusStyle(c).Render(padded)
			}
			out[i] = padded
		}
		b.WriteString(strings.TrimRight(strings.Join(out, "  "), " "))
		b.WriteString("\n")
	}
	return b.String()
}

func pad(s string, width int) string {
	if gap := width - lipgloss.Width(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}

// FormatMinutes renders a minute count as "1h 05m", "42m" or "-" when absent
func FormatMinutes(m *float64) string {
	if m == nil {
		return "-"
	}
	total := int(*m + 0.5)
	if total < 60 {
		return fmt.Sprintf("%dm", total)
	}
	return fmt.Sprintf("%dh %02dm", total/60, total%60)
}

// RenderSummary renders the one-line outcome of a discovery cycle
func RenderSummary(message string, discovered int, elapsed time.Duration) string {
	marker, style := SuccessMarker, SuccessTitleStyle
	if discovered == 0 {
		marker, style = WarningMarker, WarningTitleStyle
	}
	return style.Render(fmt.Sprintf("%s %s", marker, message)) +
		MutedStyle.Render(fmt.Sprintf("  (%s)", elapsed.Round(time.Millisecond)))
}

// RenderError renders a failed operation with optional troubleshooting tips
func RenderError(title string, err error, tips ...string) string {
	var b strings.Builder
	b.WriteString(ErrorTitleStyle.Render(fmt.Sprintf("%s %s", FailureMarker, title)))
	b.WriteString("\n")
	b.WriteString(ErrorMessageStyle.Render("  " + err.Error()))
	b.WriteString("\n")
	if len(tips) > 0 {
		b.WriteString("\n")
		b.WriteString(MutedStyle.Render("  Troubleshooting:"))
		b.WriteString("\n")
		for _, tip := range tips {
			b.WriteString(MutedStyle.Render("    • " + tip))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// DiscoveryTips are shown when a scan fails or finds nothing
var DiscoveryTips = []string{
	"Machines must be on the same subnet as this host",
	"Allow UDP on the discovery port through local firewalls",
	"Pass --broadcast if the detected address is wrong",
	"Stop other machinewatch processes holding the discovery port",
}
