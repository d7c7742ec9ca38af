// Package logging builds the slog loggers used throughout FileForge.
//
// Two handler formats are supported: a human-oriented console format and
// plain JSON. Both honor the configured level and write to stdout plus a
// log file under the log directory. Components attach themselves via
// NewComponentLogger so every line carries a component attribute.
package logging
