package logrusadapter

import (
	"github.com/sirupsen/logrus"
)

// LogrusLogger implements ratelimiter.Logger using logrus
type LogrusLogger struct {
	logger *logrus.Entry
}

// New creates a new LogrusLogger. If nil is passed, uses the standard logger.
func New(l *logrus.Logger) *LogrusLogger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &LogrusLogger{
		logger: logrus.NewEntry(l),
	}
}

// Named returns a copy that tags every entry with component=name.
func (l *LogrusLogger) Named(name string) *LogrusLogger {
	return &LogrusLogger{logger: l.logger.WithField("component", name)}
}

// Debugf logs a debug-level message
func (l *LogrusLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

// Infof logs an info-level message
func (l *LogrusLogger) Infof(format string, args ...interface{}) {
	l.logger.Infof(format, args...)
}

// Warnf logs a warn-level message
func (l *LogrusLogger) Warnf(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}

// Errorf logs an error-level message
func (l *LogrusLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
}
