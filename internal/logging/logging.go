// Package logging provides the structured logger every component in this
// module writes through, adapted from firestige-Otus's internal/log: a
// small interface in front of logrus, initialised once via sync.Once.
package logging

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is the structured logging contract used throughout the backend.
// Tasks, the TaskQueue, and every control thread log through this, not
// fmt.Printf.
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger
}

type logrusAdapter struct {
	entry *logrus.Entry
}

var (
	once   sync.Once
	logger Logger
)

// Config controls the process-wide logger; decoded from internal/config.
type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}

// Init configures the package-level logger exactly once; subsequent calls
// are no-ops, mirroring firestige-Otus's log.Init.
func Init(cfg Config) {
	once.Do(func() {
		l := logrus.New()
		l.SetOutput(os.Stdout)
		if cfg.Format == "json" {
			l.SetFormatter(&logrus.JSONFormatter{})
		} else {
			l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		}
		level, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			level = logrus.InfoLevel
		}
		l.SetLevel(level)
		logger = &logrusAdapter{entry: logrus.NewEntry(l)}
	})
}

// Get returns the package-level logger, initialising it with defaults if
// Init was never called (useful for tests and library callers).
func Get() Logger {
	if logger == nil {
		Init(Config{Level: "info", Format: "text"})
	}
	return logger
}

func (l *logrusAdapter) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *logrusAdapter) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *logrusAdapter) Info(args ...interface{})                  { l.entry.Info(args...) }
func (l *logrusAdapter) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logrusAdapter) Warn(args ...interface{})                  { l.entry.Warn(args...) }
func (l *logrusAdapter) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *logrusAdapter) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *logrusAdapter) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *logrusAdapter) WithField(field string, value interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithField(field, value)}
}

func (l *logrusAdapter) WithFields(fields map[string]interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithFields(fields)}
}

func (l *logrusAdapter) WithError(err error) Logger {
	return &logrusAdapter{entry: l.entry.WithError(err)}
}
