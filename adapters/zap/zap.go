// Package zapadapter lets limitly log through go.uber.org/zap.
package zapadapter

import (
	"go.uber.org/zap"
)

// ZapLogger is an adapter that implements the ratelimiter.Logger interface
// using a zap.SugaredLogger internally.
type ZapLogger struct {
	logger *zap.SugaredLogger
}

// New creates a new ZapLogger from a zap.Logger.
//
// If a nil logger is provided, it uses zap.NewNop() internally, which
// is a no-op logger that discards all messages.
//
// Example:
//
//	rl, err := ratelimiter.New(client, ratelimiter.AlgorithmTokenBucket, ratelimiter.StandardDefaults,
//	    ratelimiter.WithLogger(zapadapter.New(logger)),
//	)
func New(l *zap.Logger) *ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLogger{logger: l.Sugar()}
}

// Named returns a copy whose entries carry the given logger name, e.g. "store".
func (z *ZapLogger) Named(name string) *ZapLogger {
	return &ZapLogger{logger: z.logger.Named(name)}
}

// Debugf logs a debug-level message with formatting.
//
// Example:
//
//	zapLogger.Debugf("Rate limit key: %s", key)
func (z *ZapLogger) Debugf(format string, args ...interface{}) {
	z.logger.Debugf(format, args...)
}

// Infof logs an info-level message with formatting.
func (z *ZapLogger) Infof(format string, args ...interface{}) {
	z.logger.Infof(format, args...)
}

// Warnf logs a warn-level message with formatting.
func (z *ZapLogger) Warnf(format string, args ...interface{}) {
	z.logger.Warnf(format, args...)
}

// Errorf logs an error-level message with formatting.
//
// Example:
//
//	zapLogger.Errorf("store unavailable for key: %s", key)
func (z *ZapLogger) Errorf(format string, args ...interface{}) {
	z.logger.Errorf(format, args...)
}
