package logging

import "github.com/streamward/failover/types"

// NopLogger is a types.Logger that discards all messages. It is the default
// logger when none is configured.
type NopLogger struct{}

// Compile-time assertion that NopLogger implements Logger.
var _ types.Logger = (*NopLogger)(nil)

// NewNop creates a logger that discards everything.
func NewNop() *NopLogger {
	return &NopLogger{}
}

// Debug discards the message.
func (*NopLogger) Debug(string, ...any) {}

// Info discards the message.
func (*NopLogger) Info(string, ...any) {}

// Warn discards the message.
func (*NopLogger) Warn(string, ...any) {}

// Error discards the message.
func (*NopLogger) Error(string, ...any) {}

// Fatal discards the message. Unlike production loggers it does not exit,
// so a missing logger can never terminate the process.
func (*NopLogger) Fatal(string, ...any) {}
