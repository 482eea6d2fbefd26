// Package server is the hosted limitly HTTP service.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/emmanueltaiwo/limitly/metrics"
	"github.com/emmanueltaiwo/limitly/middleware"
	ginmw "github.com/emmanueltaiwo/limitly/middleware/gin"
	"github.com/emmanueltaiwo/limitly/ratelimiter"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HeaderRequestID carries the request id, generated when the caller sends none.
const HeaderRequestID = "X-Request-Id"

// DefaultShutdownTimeout bounds graceful shutdown when Deps leaves it unset.
const DefaultShutdownTimeout = 10 * time.Second

// Pinger reports whether the counter store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of a Server. Limiter, Registry and Store are
// required.
type Deps struct {
	Addr     string
	Limiter  middleware.Checker
	Registry middleware.Registrar
	Store    Pinger

	// Gatherer backs /metrics; the route is absent when nil.
	Gatherer prometheus.Gatherer
	// Metrics counts served requests when set.
	Metrics *metrics.Recorder
	Logger  ratelimiter.Logger

	ShutdownTimeout time.Duration
	// Middleware options for the rate limit route.
	Options []middleware.Option
}

// Server serves the health, rate-limit and metrics routes.
type Server struct {
	deps   Deps
	engine *gin.Engine
	logger ratelimiter.Logger
}

// New builds the gin engine and its routes.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = ratelimiter.NopLogger()
	}
	if deps.ShutdownTimeout <= 0 {
		deps.ShutdownTimeout = DefaultShutdownTimeout
	}
	s := &Server{deps: deps, logger: deps.Logger}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestID(), s.countRequests())

	api := r.Group("/api")
	api.GET("/health", s.health)
	api.GET("/rate-limit",
		ginmw.ServiceRegistry(deps.Registry, middleware.WithLogger(deps.Logger)),
		ginmw.RateLimiter(deps.Limiter, append([]middleware.Option{middleware.WithLogger(deps.Logger)}, deps.Options...)...),
		s.rateLimit,
	)
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	s.engine = r
	return s
}

// Handler returns the routed engine.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on Deps.Addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.deps.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("server: listening on %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Infof("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.deps.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Errorf("server: shutdown: %v", err)
		return err
	}
	<-errCh
	s.logger.Infof("server: shutdown complete")
	return nil
}

func (s *Server) health(c *gin.Context) {
	if err := s.deps.Store.Ping(c.Request.Context()); err != nil {
		s.logger.Errorf("server: health check: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "Redis connection failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "redis": "connected"})
}

// RateLimitResponse is the body of an allowed /api/rate-limit call. Reset is
// in epoch milliseconds.
type RateLimitResponse struct {
	Message   string `json:"message"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
	Reset     int64  `json:"reset"`
}

func (s *Server) rateLimit(c *gin.Context) {
	res, _ := ginmw.ResultFrom(c)
	c.JSON(http.StatusOK, RateLimitResponse{
		Message:   "Allowed",
		Limit:     res.Limit,
		Remaining: res.Remaining,
		Reset:     res.ResetMillis(),
	})
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.New().String()
		}
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

func (s *Server) countRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if s.deps.Metrics == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.deps.Metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
