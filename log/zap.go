package log

import (
	"fmt"
	"net"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
)

// Log is an exported type that embeds our logger.
type Log struct {
	logger *zap.Logger
	sugar  *zap.SugaredLogger
}

// Info prints formatted info level log message.
func (l Log) Info(format string, args ...any) {
	l.sugar.Infof(format, args...)
}

// Debug prints formatted debug level log message.
func (l Log) Debug(format string, args ...any) {
	l.sugar.Debugf(format, args...)
}

// Error prints formatted error level log message.
func (l Log) Error(format string, args ...any) {
	l.sugar.Errorf(format, args...)
}

// Warning prints formatted warning level log message.
func (l Log) Warning(format string, args ...any) {
	l.sugar.Warnf(format, args...)
}

// Panic prints the log message and then panics.
func (l Log) Panic(format string, args ...any) {
	l.sugar.Error("Fatal: goroutine panicked. Stacktrace: ", string(debug.Stack()))
	l.sugar.Panicf(format, args...)
}

// Wrap and export field logic

// Field is a log field holding a name and value.
type Field zap.Field

// Field satisfy loggable field interface.
func (f Field) Field() Field { return f }

// String returns a string Field.
func String(name, val string) Field {
	return Field(zap.String(name, val))
}

// Int returns an int Field.
func Int(name string, val int) Field {
	return Field(zap.Int(name, val))
}

// Uint64 returns an uint64 Field.
func Uint64(name string, val uint64) Field {
	return Field(zap.Uint64(name, val))
}

// Float64 returns a float64 Field.
func Float64(name string, val float64) Field {
	return Field(zap.Float64(name, val))
}

// Bool returns a bool field.
func Bool(name string, val bool) Field {
	return Field(zap.Bool(name, val))
}

// Duration returns a duration field.
func Duration(name string, val time.Duration) Field {
	return Field(zap.Duration(name, val))
}

// Time returns a time field.
func Time(name string, val time.Time) Field {
	return Field(zap.Time(name, val))
}

// PeerID returns a String field (key - "peer_id").
func PeerID(val string) Field {
	return String("peer_id", val)
}

// SessionID returns a String field (key - "session_id").
func SessionID(val string) Field {
	return String("session_id", val)
}

// Addr returns a String field (key - "addr") for a network address.
func Addr(val net.Addr) Field {
	return String("addr", val.String())
}

// URL returns a String field (key - "url").
func URL(val string) Field {
	return String("url", val)
}

// Browser returns a String field (key - "browser").
func Browser(val string) Field {
	return String("browser", val)
}

// Err returns an error field.
func Err(v error) Field {
	return Field(zap.NamedError("errmsg", v))
}

// LoggableField as an interface to enable every type to be used as a log field.
type LoggableField interface {
	Field() Field
}

func unpack(fields []LoggableField) []zap.Field {
	flds := make([]zap.Field, len(fields))
	for i, f := range fields {
		flds[i] = zap.Field(f.Field())
	}
	return flds
}

// FieldLogger is a logger that only logs messages with fields. it does not support formatting.
type FieldLogger struct {
	l *zap.Logger
}

// With returns a logger object that logs fields.
func (l Log) With() FieldLogger {
	return FieldLogger{l.logger}
}

// WithName returns a named sub-logger.
func (l Log) WithName(prefix string) Log {
	lgr := l.logger.Named(fmt.Sprintf("%-13s", prefix))
	return Log{logger: lgr, sugar: lgr.Sugar()}
}

// WithFields returns a logger with fields permanently appended to it.
func (l Log) WithFields(fields ...LoggableField) Log {
	lgr := l.logger.With(unpack(fields)...)
	return Log{logger: lgr, sugar: lgr.Sugar()}
}

// Zap returns the underlying zap logger.
func (l Log) Zap() *zap.Logger {
	return l.logger
}

// Info logs a message with fields at info level.
func (f FieldLogger) Info(msg string, fields ...LoggableField) {
	f.l.Info(msg, unpack(fields)...)
}

// Debug logs a message with fields at debug level.
func (f FieldLogger) Debug(msg string, fields ...LoggableField) {
	f.l.Debug(msg, unpack(fields)...)
}

// Warning logs a message with fields at warning level.
func (f FieldLogger) Warning(msg string, fields ...LoggableField) {
	f.l.Warn(msg, unpack(fields)...)
}

// Error logs a message with fields at error level.
func (f FieldLogger) Error(msg string, fields ...LoggableField) {
	f.l.Error(msg, unpack(fields)...)
}
