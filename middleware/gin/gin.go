// Package gin provides the Gin flavour of the limitly middlewares.
package gin

import (
	"net/http"

	"github.com/emmanueltaiwo/limitly/middleware"
	"github.com/emmanueltaiwo/limitly/ratelimiter"
	"github.com/emmanueltaiwo/limitly/registry"
	"github.com/gin-gonic/gin"
)

// Context keys under which the middlewares store their outcome.
const (
	ResultKey   = "limitly.result"
	RegistryKey = "limitly.registry"
)

// RateLimiter creates a new Gin middleware handler.
//
// It uses the provided Checker (the core rate-limiting logic) to check if a
// request should be allowed or denied. Every response carries the
// X-RateLimit-* headers; a denied request is answered by the ErrorHandler,
// a 429 JSON body with Retry-After by default. The behavior of the middleware
// can be customized by passing functional options, such as changing how a
// caller is identified (WithIdentityFunc) or how rate limit errors are handled
// (WithErrorHandler).
//
// Example:
//
//	rl, _ := ratelimiter.New(client, ratelimiter.AlgorithmFixedWindow, ratelimiter.StandardDefaults)
//	router := gin.Default()
//	// Apply middleware globally
//	router.Use(ginmw.RateLimiter(rl))
func RateLimiter(checker middleware.Checker, options ...middleware.Option) gin.HandlerFunc {
	cfg := middleware.NewConfig(options...)

	return func(c *gin.Context) {
		id, err := cfg.IdentityFunc(c.Request)
		if err != nil {
			cfg.Logger.Errorf("Failed to identify caller: %v", err)
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		result := checker.Check(c.Request.Context(), id.ServiceID, id.ClientID, cfg.OverridesFunc(c.Request)...)
		c.Set(ResultKey, result)
		middleware.SetHeaders(c.Writer.Header(), result)

		if !result.Allowed {
			cfg.Logger.Debugf(
				"Request denied for '%s/%s'. Remaining: %d, Limit: %d",
				id.ServiceID, id.ClientID, result.Remaining, result.Limit,
			)
			cfg.ErrorHandler(c.Writer, c.Request, middleware.ErrorExceeded, result)
			c.Abort()
			return
		}

		cfg.Logger.Debugf(
			"Request allowed for '%s/%s'. Remaining: %d, Limit: %d",
			id.ServiceID, id.ClientID, result.Remaining, result.Limit,
		)

		c.Next()
	}
}

// ServiceRegistry creates a Gin middleware that records the caller's service
// id in the registry. It never blocks a request.
func ServiceRegistry(reg middleware.Registrar, options ...middleware.Option) gin.HandlerFunc {
	cfg := middleware.NewConfig(options...)

	return func(c *gin.Context) {
		serviceID := c.GetHeader(middleware.HeaderServiceID)
		if serviceID == "" {
			serviceID = middleware.DefaultServiceID
		}
		status := reg.Check(c.Request.Context(), serviceID, c.GetHeader(middleware.HeaderServicePassword), c.ClientIP())
		if status.Collision {
			cfg.Logger.Debugf("Service id '%s' collides with an existing registration", serviceID)
		}
		c.Set(RegistryKey, status)
		c.Next()
	}
}

// ResultFrom returns the Result stored by RateLimiter.
func ResultFrom(c *gin.Context) (ratelimiter.Result, bool) {
	v, ok := c.Get(ResultKey)
	if !ok {
		return ratelimiter.Result{}, false
	}
	res, ok := v.(ratelimiter.Result)
	return res, ok
}

// StatusFrom returns the registry Status stored by ServiceRegistry.
func StatusFrom(c *gin.Context) (registry.Status, bool) {
	v, ok := c.Get(RegistryKey)
	if !ok {
		return registry.Status{}, false
	}
	st, ok := v.(registry.Status)
	return st, ok
}
