// Package logging provides the structured logger used across every NoETL
// component, wrapping logrus the way the retrieved service-layer pack's
// pkg/logger does, while keeping a Field/WithFields call shape.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Field is a single structured key-value pair attached to a log line.
type Field struct {
	Key   string
	Value any
}

// F builds a Field.
func F(key string, value any) Field { return Field{Key: key, Value: value} }

// Config controls logger construction.
type Config struct {
	Level  string `yaml:"level" env:"NOETL_LOG_LEVEL"`
	Format string `yaml:"format" env:"NOETL_LOG_FORMAT"`
	Output string `yaml:"output" env:"NOETL_LOG_OUTPUT"`
}

// Logger wraps a logrus.Entry so every call site can attach structured
// fields without importing logrus directly.
type Logger struct {
	entry *logrus.Entry
}

// New builds a Logger from Config.
func New(cfg Config) *Logger {
	base := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var out io.Writer = os.Stdout
	if strings.ToLower(cfg.Output) == "stderr" {
		out = os.Stderr
	}
	base.SetOutput(out)

	return &Logger{entry: logrus.NewEntry(base)}
}

// NewDefault builds a Logger with sane defaults tagged with a component name.
func NewDefault(component string) *Logger {
	l := New(Config{Level: "info", Format: "text", Output: "stdout"})
	return l.WithFields(F("component", component))
}

// WithFields returns a derived Logger carrying the given fields on every
// subsequent call.
func (l *Logger) WithFields(fields ...Field) *Logger {
	data := make(logrus.Fields, len(fields))
	for _, f := range fields {
		data[f.Key] = f.Value
	}
	return &Logger{entry: l.entry.WithFields(data)}
}

func (l *Logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }

func (l *Logger) Debug(msg string, fields ...Field) { l.WithFields(fields...).entry.Debug(msg) }
func (l *Logger) Info(msg string, fields ...Field)  { l.WithFields(fields...).entry.Info(msg) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.WithFields(fields...).entry.Warn(msg) }
func (l *Logger) Error(msg string, fields ...Field) { l.WithFields(fields...).entry.Error(msg) }
