package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/emmanueltaiwo/limitly"
	zapadapter "github.com/emmanueltaiwo/limitly/adapters/zap"
	"github.com/emmanueltaiwo/limitly/middleware"
	ginMiddleware "github.com/emmanueltaiwo/limitly/middleware/gin"
	"github.com/emmanueltaiwo/limitly/ratelimiter"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := zap.Config{
		Level:         zap.NewAtomicLevelAt(zap.DebugLevel),
		Development:   true,
		Encoding:      "console",
		OutputPaths:   []string{"stdout"},
		EncoderConfig: zap.NewDevelopmentEncoderConfig(),
	}
	logger, _ := cfg.Build()
	defer logger.Sync()

	zapLogger := zapadapter.New(logger)

	// Token bucket: 5 tokens, 1 token per second.
	client, err := limitly.New(ctx,
		limitly.WithLogger(zapLogger.Named("limitly")),
		limitly.WithDefaults(ratelimiter.Defaults{Capacity: 5, RefillRate: 1}),
	)
	if err != nil {
		log.Fatalf("Failed to start limiter: %v", err)
	}
	defer client.Close()

	router := gin.Default()
	router.Use(ginMiddleware.ServiceRegistry(client.Registry(), middleware.WithLogger(zapLogger)))
	router.Use(ginMiddleware.RateLimiter(client,
		middleware.WithLogger(zapLogger),
		middleware.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error, result ratelimiter.Result) {
			zapLogger.Errorf(
				"Rate limit exceeded for %s | Remaining: %d | Limit: %d",
				r.RemoteAddr, result.Remaining, result.Limit,
			)
			middleware.WriteTooManyRequests(w, result, time.Now())
		}),
	))
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	logger.Info("Starting server on http://localhost:8080")
	if err := router.Run(":8080"); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
