package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/emmanueltaiwo/limitly/internal/config"
	"github.com/emmanueltaiwo/limitly/internal/server"
	"github.com/emmanueltaiwo/limitly/metrics"
	"github.com/emmanueltaiwo/limitly/ratelimiter"
	"github.com/emmanueltaiwo/limitly/registry"
	"github.com/emmanueltaiwo/limitly/store"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP service",
	Long: `Start the HTTP service.

The counter store must be reachable at startup; limitly retries
redis.connect_attempts times and exits non-zero otherwise. The registry store
is advisory and never prevents startup.

Routes:
  GET /api/health       counter store status
  GET /api/rate-limit   one rate limit check for X-Service-Id / X-Client-Id
  GET /metrics          Prometheus metrics`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 5000, "HTTP port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := v.BindPFlag("server.port", cmd.Flags().Lookup("port")); err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = log.sync() }()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	counters, err := connectStore(ctx, cfg, cfg.Redis.URL, "rate-limit", log.Named("store"))
	if err != nil {
		return err
	}
	defer counters.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(reg)

	rl, err := ratelimiter.New(counters, cfg.Algorithm(), cfg.Defaults(),
		ratelimiter.WithLogger(log.Named("ratelimiter")),
		ratelimiter.WithRecorder(rec),
		ratelimiter.WithRecordTTL(cfg.Limiter.RecordTTL),
	)
	if err != nil {
		return err
	}

	kv, closeKV, err := registryStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeKV()

	hasher, err := registry.NewHasher(cfg.Registry.Hasher)
	if err != nil {
		return err
	}
	services := registry.New(kv,
		registry.WithHasher(hasher),
		registry.WithLogger(log.Named("registry")),
		registry.WithRecorder(rec),
	)

	srv := server.New(server.Deps{
		Addr:            fmt.Sprintf(":%d", cfg.Server.Port),
		Limiter:         rl,
		Registry:        services,
		Store:           counters,
		Gatherer:        reg,
		Metrics:         rec,
		Logger:          log.Named("server"),
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	log.Infof("limitly %s: %s algorithm, env %s, port %d", Version, rl.Algorithm(), cfg.Server.Env, cfg.Server.Port)
	return srv.Run(ctx)
}

func storeOptions(cfg *config.Config, name string, l ratelimiter.Logger) []store.Option {
	return []store.Option{
		store.WithName(name),
		store.WithLogger(l),
		store.WithConnectAttempts(cfg.Redis.ConnectAttempts),
		store.WithRetryDelay(cfg.Redis.RetryDelay),
		store.WithTimeout(cfg.Redis.Timeout),
	}
}

// connectStore opens url and connects with the configured retries.
func connectStore(ctx context.Context, cfg *config.Config, url, name string, l ratelimiter.Logger) (*store.Client, error) {
	c, err := store.NewClientFromURL(url, storeOptions(cfg, name, l)...)
	if err != nil {
		return nil, err
	}
	if err := c.Connect(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// registryStore returns the registry's own Redis when registry.url is set,
// otherwise an in-memory store. A registry Redis that cannot be reached at
// startup is logged and retried lazily.
func registryStore(ctx context.Context, cfg *config.Config, log logger) (registry.KV, func(), error) {
	if cfg.Registry.URL == "" {
		memCtx, cancel := context.WithCancel(context.Background())
		log.Infof("registry: using in-memory store")
		return store.NewMemory(memCtx, time.Minute), cancel, nil
	}

	c, err := store.NewClientFromURL(cfg.Registry.URL, storeOptions(cfg, "registry", log.Named("store"))...)
	if err != nil {
		return nil, nil, err
	}
	if err := c.Connect(ctx); err != nil {
		log.Warnf("registry: %v; continuing without it until it comes back", err)
	}
	return c, func() { _ = c.Close() }, nil
}
