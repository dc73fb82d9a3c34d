// Package tui implements the interactive scan dashboard for the hdhr
// tool, built on Bubble Tea.
//
// The dashboard runs a discovery pass while showing a spinner, then
// renders each device as a selectable card (id, host, model, tuner
// summary, online state). Enter refreshes the selected device's tuner
// status over whichever transport fits it; 'r' rescans.
//
// All rendering goes through the shared lipgloss styles in styles.go so
// the screens stay visually consistent.
package tui
