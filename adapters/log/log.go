package stdlogadapter

import (
	"log"
)

// StdLogger implements ratelimiter.Logger using Go standard library log.
// The standard logger has no levels, so Debugf output is only written when
// debug is enabled.
type StdLogger struct {
	logger *log.Logger
	debug  bool
	prefix string
}

// New creates a new StdLogger. If nil is passed, uses the default logger.
func New(l *log.Logger, debug bool) *StdLogger {
	if l == nil {
		l = log.Default()
	}
	return &StdLogger{
		logger: l,
		debug:  debug,
	}
}

// Named returns a copy that prefixes messages with "name: ".
func (s *StdLogger) Named(name string) *StdLogger {
	return &StdLogger{logger: s.logger, debug: s.debug, prefix: s.prefix + name + ": "}
}

// Debugf logs a debug-level message (same as Printf in std log)
func (s *StdLogger) Debugf(format string, args ...interface{}) {
	if s.debug {
		s.logger.Printf("[DEBUG] "+s.prefix+format, args...)
	}
}

// Infof logs an info-level message
func (s *StdLogger) Infof(format string, args ...interface{}) {
	s.logger.Printf("[INFO] "+s.prefix+format, args...)
}

// Warnf logs a warn-level message
func (s *StdLogger) Warnf(format string, args ...interface{}) {
	s.logger.Printf("[WARN] "+s.prefix+format, args...)
}

// Errorf logs an error-level message
func (s *StdLogger) Errorf(format string, args ...interface{}) {
	s.logger.Printf("[ERROR] "+s.prefix+format, args...)
}
