// Package logger configures log/slog for NodeMesh processes.
//
//   - logger.go: handler construction and the process-wide level
//   - redact.go: masking of connection secrets and sensitive keys
//   - context.go: loggers and attributes carried in a context
//
// Components accept a *slog.Logger and fall back to slog.Default().
package logger
