// Package nethttp provides the net/http flavour of the limitly middlewares.
package nethttp

import (
	"context"
	"net/http"

	"github.com/emmanueltaiwo/limitly/middleware"
	"github.com/emmanueltaiwo/limitly/ratelimiter"
	"github.com/emmanueltaiwo/limitly/registry"
)

type contextKey int

const (
	resultKey contextKey = iota
	registryKey
)

// Middleware creates a new middleware handler for the standard `net/http` library.
//
// It wraps an existing `http.Handler` and checks incoming requests against the provided
// Checker. On every request, it adds the standard `X-RateLimit-*` headers
// to the response. The behavior can be customized using functional options.
//
// Example:
//
//	rl, _ := ratelimiter.New(client, ratelimiter.AlgorithmFixedWindow, ratelimiter.StandardDefaults)
//	mux := http.NewServeMux()
//	mux.HandleFunc("/", myHandler)
//
//	rateLimitMiddleware := nethttp.Middleware(rl)
//	http.ListenAndServe(":8080", rateLimitMiddleware(mux))
func Middleware(checker middleware.Checker, options ...middleware.Option) func(http.Handler) http.Handler {
	cfg := middleware.NewConfig(options...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := cfg.IdentityFunc(r)
			if err != nil {
				cfg.Logger.Errorf("Failed to identify caller: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			result := checker.Check(r.Context(), id.ServiceID, id.ClientID, cfg.OverridesFunc(r)...)
			middleware.SetHeaders(w.Header(), result)

			if !result.Allowed {
				cfg.Logger.Debugf(
					"Request denied for '%s/%s'. Remaining: %d, Limit: %d",
					id.ServiceID, id.ClientID, result.Remaining, result.Limit,
				)
				cfg.ErrorHandler(w, r, middleware.ErrorExceeded, result)
				return
			}

			cfg.Logger.Debugf(
				"Request allowed for '%s/%s'. Remaining: %d, Limit: %d",
				id.ServiceID, id.ClientID, result.Remaining, result.Limit,
			)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), resultKey, result)))
		})
	}
}

// Registry creates a middleware that records the caller's service id in the
// registry. It never blocks a request.
func Registry(reg middleware.Registrar) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			serviceID := r.Header.Get(middleware.HeaderServiceID)
			if serviceID == "" {
				serviceID = middleware.DefaultServiceID
			}
			status := reg.Check(r.Context(), serviceID, r.Header.Get(middleware.HeaderServicePassword), middleware.ClientIP(r))
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), registryKey, status)))
		})
	}
}

// ResultFrom returns the Result stored by Middleware.
func ResultFrom(ctx context.Context) (ratelimiter.Result, bool) {
	res, ok := ctx.Value(resultKey).(ratelimiter.Result)
	return res, ok
}

// StatusFrom returns the registry Status stored by Registry.
func StatusFrom(ctx context.Context) (registry.Status, bool) {
	st, ok := ctx.Value(registryKey).(registry.Status)
	return st, ok
}
