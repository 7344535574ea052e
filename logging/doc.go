// Package logging provides types.Logger adapters.
//
// Three implementations are available:
//
//   - Nop: discards everything (the default when no logger is configured)
//   - Slog: wraps Go's standard log/slog
//   - Zap: wraps a go.uber.org/zap sugared logger
package logging
