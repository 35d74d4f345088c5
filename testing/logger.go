package testing

import (
	"fmt"
	"strings"
	"testing"

	"github.com/streamward/failover/types"
)

// TestLogger adapts testing.TB to the types.Logger interface so library
// output lands in the test log, scoped to the test that produced it.
type TestLogger struct {
	tb testing.TB
}

var _ types.Logger = (*TestLogger)(nil)

// NewTestLogger creates a logger that writes through tb.Logf.
func NewTestLogger(tb testing.TB) *TestLogger {
	return &TestLogger{tb: tb}
}

// Debug logs at debug level.
func (l *TestLogger) Debug(msg string, keysAndValues ...any) {
	l.logf("DEBUG", msg, keysAndValues...)
}

// Info logs at info level.
func (l *TestLogger) Info(msg string, keysAndValues ...any) {
	l.logf("INFO", msg, keysAndValues...)
}

// Warn logs at warn level.
func (l *TestLogger) Warn(msg string, keysAndValues ...any) {
	l.logf("WARN", msg, keysAndValues...)
}

// Error logs at error level.
func (l *TestLogger) Error(msg string, keysAndValues ...any) {
	l.logf("ERROR", msg, keysAndValues...)
}

// Fatal logs at error level and fails the test immediately.
func (l *TestLogger) Fatal(msg string, keysAndValues ...any) {
	l.tb.Helper()
	l.logf("FATAL", msg, keysAndValues...)
	l.tb.FailNow()
}

func (l *TestLogger) logf(level, msg string, keysAndValues ...any) {
	l.tb.Helper()

	var sb strings.Builder
	sb.WriteString(level)
	sb.WriteByte(' ')
	sb.WriteString(msg)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fmt.Fprintf(&sb, " %v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	l.tb.Log(sb.String())
}
