// Package ui renders one-shot terminal output for the machinewatch CLI:
// command headers, device tables and result lines, styled with Lipgloss.
//
// Interactive views live in package tui; this package only formats text.
// Callers check IsTerminal and fall back to plain or JSON output when
// stdout is redirected.
package ui
