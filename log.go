package knet

import "github.com/sirupsen/logrus"

// Logger is the structured-logging seam every knet component writes
// through. A Connection tags its entries with a "conn" field naming the
// peer address. NewLogrusLogger adapts logrus to this interface for
// field-based, leveled output; when no Logger is supplied, a no-op logger
// that discards everything is used.
type Logger interface {
	WithFields(fields Fields) Logger
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Fields is a set of structured key/value pairs attached to a log entry.
type Fields map[string]any

// logrusLogger adapts *logrus.Entry to the Logger interface.
type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger wraps l as a Logger. Passing nil uses logrus's standard
// logger.
func NewLogrusLogger(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

func (l *logrusLogger) WithFields(fields Fields) Logger {
	return &logrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *logrusLogger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *logrusLogger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }

// nopLogger discards everything. Used as the zero-value default so callers
// that never configure a Logger do not pay for one, and never nil-panic.
type nopLogger struct{}

func (nopLogger) WithFields(Fields) Logger        { return nopLogger{} }
func (nopLogger) Debugf(string, ...any)           {}
func (nopLogger) Infof(string, ...any)            {}
func (nopLogger) Warnf(string, ...any)            {}
func (nopLogger) Errorf(string, ...any)           {}

var defaultLogger Logger = nopLogger{}
