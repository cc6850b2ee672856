// Package logging assembles structured slog loggers and formatting helpers used
// across tagstation.
//
// It owns the console and JSON handlers, routes output to the terminal and the
// per-station log file, and exposes context-aware helpers so controller code
// can tag log lines with the station name, run identifier, and machine state.
// The package also provides a no-op logger for tests and wiring code that
// cannot fail.
//
// Loggers are constructed once per process and injected into the station
// controller; nothing here configures the slog default.
package logging
