package ratelimiter

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable classifies a check whose script could not be executed:
// connection refused, timeout, cancellation or a script runtime error.
// Such checks fail open.
var ErrStoreUnavailable = errors.New("ratelimiter: store unavailable")

// ErrMalformedResponse classifies a check whose script ran but whose reply
// could not be decoded. Such checks fail closed.
var ErrMalformedResponse = errors.New("ratelimiter: malformed store response")

// ConfigurationError reports an invalid construction parameter. It is the only
// error the package ever returns to callers.
//
// Use errors.As to inspect it:
//
//	var cfgErr *ratelimiter.ConfigurationError
//	if errors.As(err, &cfgErr) { ... }
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("ratelimiter: invalid %s: %s", e.Field, e.Reason)
}
