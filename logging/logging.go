// Package logging provides real-time log output for the transport.
// Messages go through zap; the Logger keeps a small surface (component,
// trace id, level, field maps) plus helpers for connection lifecycle events.
package logging

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var zapLevels = map[Level]zapcore.Level{
	LevelDebug: zapcore.DebugLevel,
	LevelInfo:  zapcore.InfoLevel,
	LevelWarn:  zapcore.WarnLevel,
	LevelError: zapcore.ErrorLevel,
}

// ParseLevel parses a level name case-insensitively.
func ParseLevel(s string) (Level, error) {
	level := Level(strings.ToUpper(strings.TrimSpace(s)))
	if level == "WARNING" {
		level = LevelWarn
	}
	if _, ok := zapLevels[level]; !ok {
		return "", fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// Logger writes leveled, structured log lines.
type Logger struct {
	core      zapcore.Core
	level     zap.AtomicLevel
	component string
	traceID   string
	z         *zap.Logger
}

// New creates a Logger writing console lines to stderr at INFO.
func New() *Logger {
	l := &Logger{level: zap.NewAtomicLevelAt(zapcore.InfoLevel)}
	l.core = consoleCore(os.Stderr, l.level)
	l.z = l.build()
	return l
}

// NewWithCore creates a Logger on top of an existing zap core.
// Level filtering is left to the core; SetLevel has no effect until SetOutput.
func NewWithCore(core zapcore.Core) *Logger {
	l := &Logger{
		core:  core,
		level: zap.NewAtomicLevelAt(zapcore.DebugLevel),
	}
	l.z = l.build()
	return l
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return NewWithCore(zapcore.NewNopCore())
}

func consoleCore(w io.Writer, level zap.AtomicLevel) zapcore.Core {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("[" + name + "]")
	}
	return zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(zapcore.AddSync(w)), level)
}

func (l *Logger) build() *zap.Logger {
	z := zap.New(l.core)
	if l.component != "" {
		z = z.Named(l.component)
	}
	if l.traceID != "" {
		z = z.With(zap.String("trace_id", l.traceID))
	}
	return z
}

func (l *Logger) clone() *Logger {
	c := *l
	return &c
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	c := l.clone()
	c.component = component
	c.z = c.build()
	return c
}

// WithTraceID returns a new logger with the given trace ID.
func (l *Logger) WithTraceID(traceID string) *Logger {
	c := l.clone()
	c.traceID = traceID
	c.z = c.build()
	return c
}

// SetLevel sets the minimum log level. Loggers derived from the same root
// share the level.
func (l *Logger) SetLevel(level Level) {
	if zl, ok := zapLevels[level]; ok {
		l.level.SetLevel(zl)
	}
}

// SetOutput sets the output writer (default: stderr).
func (l *Logger) SetOutput(w io.Writer) {
	l.core = consoleCore(w, l.level)
	l.z = l.build()
}

// Zap exposes the underlying zap logger.
func (l *Logger) Zap() *zap.Logger {
	return l.z
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.z.Sync()
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.z.Debug(msg, toFields(fields)...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.z.Info(msg, toFields(fields)...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.z.Warn(msg, toFields(fields)...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.z.Error(msg, toFields(fields)...)
}

// toFields converts the first field map to zap fields in key order.
func toFields(fields []map[string]interface{}) []zap.Field {
	if len(fields) == 0 || len(fields[0]) == 0 {
		return nil
	}
	m := fields[0]
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		if err, ok := m[k].(error); ok {
			out = append(out, zap.String(k, err.Error()))
			continue
		}
		out = append(out, zap.Any(k, m[k]))
	}
	return out
}

// --- Connection lifecycle events ---

// ConnectAttempt logs the start of one connect attempt.
func (l *Logger) ConnectAttempt(endpoint string, attempt, maxAttempts int) {
	l.Debug("connect_attempt", map[string]interface{}{
		"endpoint": endpoint,
		"attempt":  attempt,
		"max":      maxAttempts,
	})
}

// ConnectFailed logs a failed connect attempt. retryIn is zero on the last one.
func (l *Logger) ConnectFailed(endpoint string, attempt int, err error, retryIn time.Duration) {
	fields := map[string]interface{}{
		"endpoint": endpoint,
		"attempt":  attempt,
		"error":    err,
	}
	if retryIn > 0 {
		fields["retry_in"] = retryIn.String()
	}
	l.Warn("connect_failed", fields)
}

// Connected logs an established connection.
func (l *Logger) Connected(endpoint string, attempts int, duration time.Duration) {
	l.Info("connected", map[string]interface{}{
		"endpoint": endpoint,
		"attempts": attempts,
		"duration": duration.String(),
	})
}

// Disconnected logs an unsolicited connection loss.
func (l *Logger) Disconnected(endpoint string, err error) {
	fields := map[string]interface{}{"endpoint": endpoint}
	if err != nil {
		fields["error"] = err
	}
	l.Warn("disconnected", fields)
}

// SendRetry logs a failed send attempt that will be retried.
func (l *Logger) SendRetry(method string, attempt int, err error, retryIn time.Duration) {
	l.Warn("send_retry", map[string]interface{}{
		"method":   method,
		"attempt":  attempt,
		"error":    err,
		"retry_in": retryIn.String(),
	})
}

// SendFailed logs a send that exhausted its attempts.
func (l *Logger) SendFailed(method string, attempts int, err error) {
	l.Error("send_failed", map[string]interface{}{
		"method":   method,
		"attempts": attempts,
		"error":    err,
	})
}

// DecodeFailure logs an inbound frame that could not be decoded.
func (l *Logger) DecodeFailure(err error, size int) {
	l.Warn("decode_failure", map[string]interface{}{
		"error": err,
		"bytes": size,
	})
}

// Closed logs a Close call and the state it was made from.
func (l *Logger) Closed(endpoint, priorState string) {
	l.Info("closed", map[string]interface{}{
		"endpoint": endpoint,
		"prior":    priorState,
	})
}
