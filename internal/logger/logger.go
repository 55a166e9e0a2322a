package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var log *logrus.Logger

// LogLevel represents the logging level
type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
	PanicLevel LogLevel = "panic"
	FatalLevel LogLevel = "fatal"
)

// Format selects the log line encoding
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

const timestampFormat = "2006-01-02 15:04:05"

// Init initializes the logger with the specified level.
// Output goes to stderr so command output on stdout stays machine readable.
func Init(level LogLevel) {
	log = logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: timestampFormat,
	})
	log.SetLevel(parseLevel(level))
}

func parseLevel(level LogLevel) logrus.Level {
	switch level {
	case DebugLevel:
		return logrus.DebugLevel
	case InfoLevel:
		return logrus.InfoLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	case PanicLevel:
		return logrus.PanicLevel
	case FatalLevel:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// SetFormat switches between the text and JSON formatters.
// Unknown formats fall back to text.
func SetFormat(format Format) {
	switch format {
	case FormatJSON:
		Get().SetFormatter(&logrus.JSONFormatter{TimestampFormat: timestampFormat})
	default:
		Get().SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		})
	}
}

// SetOutput redirects log output
func SetOutput(w io.Writer) {
	Get().SetOutput(w)
}

// Get returns the logger instance. An uninitialized logger only reports
// panics, which keeps library use silent.
func Get() *logrus.Logger {
	if log == nil {
		Init(PanicLevel)
	}
	return log
}

// ForKey returns an entry tagged with the cache key it concerns
func ForKey(key string) *logrus.Entry {
	return Get().WithField("key", key)
}

// Debug logs a debug message
func Debug(args ...interface{}) {
	Get().Debug(args...)
}

// Debugf logs a formatted debug message
func Debugf(format string, args ...interface{}) {
	Get().Debugf(format, args...)
}

// Info logs an info message
func Info(args ...interface{}) {
	Get().Info(args...)
}

// Infof logs a formatted info message
func Infof(format string, args ...interface{}) {
	Get().Infof(format, args...)
}

// Warnf logs a formatted warning message
func Warnf(format string, args ...interface{}) {
	Get().Warnf(format, args...)
}

// Errorf logs a formatted error message
func Errorf(format string, args ...interface{}) {
	Get().Errorf(format, args...)
}

// WithFields returns a logger with multiple fields
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Get().WithFields(fields)
}
