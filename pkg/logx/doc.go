// Package logx configures screenqa's structured logging.
//
// Logger is a small value type on top of zerolog:
//   - Console output stays readable (short timestamp + short caller)
//   - File output is JSON, one event per line
//   - An optional Telegram sink forwards warnings (min-level + rate limiting)
package logx
