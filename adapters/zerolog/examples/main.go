package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emmanueltaiwo/limitly"
	zerologadapter "github.com/emmanueltaiwo/limitly/adapters/zerolog"
	"github.com/emmanueltaiwo/limitly/ratelimiter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Runs checks in a loop against a sliding window and prints each decision.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	logger := log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zeroLogger := zerologadapter.New(&logger)

	client, err := limitly.New(ctx,
		limitly.WithLogger(zeroLogger.Named("limitly")),
		limitly.WithAlgorithm(ratelimiter.AlgorithmSlidingWindow),
		limitly.WithDefaults(ratelimiter.Defaults{Limit: 3, WindowSize: 5 * time.Second}),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start limiter")
	}
	defer client.Close()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			res := client.Check(ctx, "worker", "job-queue")
			fmt.Printf("%s allowed=%-5v remaining=%d retry-after=%s\n",
				now.Format(time.TimeOnly), res.Allowed, res.Remaining, res.RetryAfter(now).Round(time.Millisecond))
		}
	}
}
