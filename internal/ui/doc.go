// Package ui provides terminal output components for the hdhr CLI.
//
// This package uses Lipgloss to render styled output for one-shot
// commands. Unlike the interactive scanner TUI, these components follow
// a "run once and exit" pattern - they render output and don't require
// user interaction (with the exception of ConfirmOperation).
//
// The package provides these component types:
//
//   - Header: Command banner showing operation name and parameters
//   - Result: Success/failure boxes with styled information
//   - ScanProgress: Progress bar for a running channel scan
//   - Device renderers: cards and tables for devices, tuner status,
//     and channel lineups
//
// All components size themselves to the terminal via x/term, clamped
// between MinTerminalWidth and MaxContentWidth.
//
// # Logging Integration
//
// This package expects logging to be controlled via the HDHR_LOG_LEVEL
// environment variable. When unset or empty, zap logging is silent,
// allowing the curated UI output to be displayed cleanly. Set
// HDHR_LOG_LEVEL to "debug", "info", "warn", or "error" to enable
// logging output.
package ui
