package cmd

import (
	"fmt"
	"io"
	"log"

	stdlogadapter "github.com/emmanueltaiwo/limitly/adapters/log"
	logrusadapter "github.com/emmanueltaiwo/limitly/adapters/logrus"
	zapadapter "github.com/emmanueltaiwo/limitly/adapters/zap"
	zerologadapter "github.com/emmanueltaiwo/limitly/adapters/zerolog"
	"github.com/emmanueltaiwo/limitly/internal/config"
	"github.com/emmanueltaiwo/limitly/ratelimiter"
	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger is the configured backend plus a way to derive component loggers.
type logger struct {
	ratelimiter.Logger
	named func(name string) ratelimiter.Logger
	sync  func() error
}

func (l logger) Named(name string) ratelimiter.Logger {
	return l.named(name)
}

// newLogger builds the backend selected by log.backend writing to w.
func newLogger(c config.LogConfig, w io.Writer) (logger, error) {
	switch c.Backend {
	case "", "zap":
		lvl, err := zapcore.ParseLevel(c.Level)
		if err != nil {
			return logger{}, err
		}
		var enc zapcore.Encoder
		if c.Format == "json" {
			enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		} else {
			enc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		}
		zl := zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), lvl))
		l := zapadapter.New(zl)
		return logger{
			Logger: l,
			named:  func(name string) ratelimiter.Logger { return l.Named(name) },
			sync:   zl.Sync,
		}, nil

	case "zerolog":
		lvl, err := zerolog.ParseLevel(c.Level)
		if err != nil {
			return logger{}, err
		}
		out := w
		if c.Format != "json" {
			out = zerolog.ConsoleWriter{Out: w}
		}
		zl := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
		l := zerologadapter.New(&zl)
		return logger{
			Logger: l,
			named:  func(name string) ratelimiter.Logger { return l.Named(name) },
			sync:   func() error { return nil },
		}, nil

	case "logrus":
		lvl, err := logrus.ParseLevel(c.Level)
		if err != nil {
			return logger{}, err
		}
		ll := logrus.New()
		ll.SetOutput(w)
		ll.SetLevel(lvl)
		if c.Format == "json" {
			ll.SetFormatter(&logrus.JSONFormatter{})
		}
		l := logrusadapter.New(ll)
		return logger{
			Logger: l,
			named:  func(name string) ratelimiter.Logger { return l.Named(name) },
			sync:   func() error { return nil },
		}, nil

	case "std":
		l := stdlogadapter.New(log.New(w, "", log.LstdFlags), c.Level == "debug")
		return logger{
			Logger: l,
			named:  func(name string) ratelimiter.Logger { return l.Named(name) },
			sync:   func() error { return nil },
		}, nil
	}
	return logger{}, fmt.Errorf("unknown log backend %q", c.Backend)
}
