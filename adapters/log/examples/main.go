package main

import (
	"context"
	"log"
	"os"

	stdlogadapter "github.com/emmanueltaiwo/limitly/adapters/log"
	"github.com/emmanueltaiwo/limitly/ratelimiter"
	"github.com/emmanueltaiwo/limitly/store"
)

// Shows the fail-open behaviour: with no Redis listening every check is
// admitted and the failure is logged.
func main() {
	logger := stdlogadapter.New(log.New(os.Stdout, "", log.LstdFlags), true)
	ctx := context.Background()

	client, err := store.NewClientFromURL("redis://localhost:6390",
		store.WithLogger(logger.Named("store")),
		store.WithConnectAttempts(1),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	limiter, err := ratelimiter.New(client, ratelimiter.AlgorithmFixedWindow, ratelimiter.StandardDefaults,
		ratelimiter.WithLogger(logger.Named("ratelimiter")),
	)
	if err != nil {
		log.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		res := limiter.Check(ctx, "demo", "client-1")
		logger.Infof("allowed=%v remaining=%d limit=%d", res.Allowed, res.Remaining, res.Limit)
	}
}
