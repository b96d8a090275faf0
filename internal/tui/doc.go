// Package tui provides the interactive terminal monitor behind
// `machinewatch watch`.
//
// The monitor is a single Bubble Tea model. It runs a discovery cycle on
// start, then again every refresh interval or when the user presses r, and
// keeps a table of every machine seen since it started, each with its most
// recent status and the time it last answered.
//
// Cycles run as tea.Cmds so the UI stays responsive while a scan window is
// open. A new cycle is never started while one is in flight.
package tui
