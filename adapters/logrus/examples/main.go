package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	logrusadapter "github.com/emmanueltaiwo/limitly/adapters/logrus"
	"github.com/emmanueltaiwo/limitly/middleware"
	"github.com/emmanueltaiwo/limitly/middleware/nethttp"
	"github.com/emmanueltaiwo/limitly/ratelimiter"
	"github.com/emmanueltaiwo/limitly/registry"
	"github.com/emmanueltaiwo/limitly/store"
	"github.com/sirupsen/logrus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	logrusLogger := logrusadapter.New(logger)

	client, err := store.NewClientFromURL("redis://localhost:6379", store.WithLogger(logrusLogger.Named("store")))
	if err != nil {
		logger.Fatal(err)
	}
	defer client.Close()
	if err := client.Connect(ctx); err != nil {
		logger.Fatal(err)
	}

	// Leaky bucket: holds 10 requests, drains 2 per second.
	limiter, err := ratelimiter.New(client, ratelimiter.AlgorithmLeakyBucket,
		ratelimiter.Defaults{Capacity: 10, LeakRate: 2},
		ratelimiter.WithLogger(logrusLogger.Named("ratelimiter")),
	)
	if err != nil {
		logger.Fatal(err)
	}

	// Registrations share the counter store.
	services := registry.New(client, registry.WithLogger(logrusLogger.Named("registry")))

	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})
	handler := nethttp.Registry(services)(
		nethttp.Middleware(limiter, middleware.WithLogger(logrusLogger))(mux),
	)

	srv := &http.Server{Addr: ":8080", Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	logger.Info("Starting server on http://localhost:8080")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal(err)
	}
}
