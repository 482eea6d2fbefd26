package ratelimiter

import (
	"strconv"
	"strings"
)

// Algorithm identifies one of the rate-limiting strategies.
type Algorithm string

// Supported algorithms.
const (
	AlgorithmTokenBucket   Algorithm = "token-bucket"
	AlgorithmSlidingWindow Algorithm = "sliding-window"
	AlgorithmFixedWindow   Algorithm = "fixed-window"
	AlgorithmLeakyBucket   Algorithm = "leaky-bucket"
)

// Algorithms lists every supported algorithm, default first.
var Algorithms = []Algorithm{
	AlgorithmTokenBucket,
	AlgorithmSlidingWindow,
	AlgorithmFixedWindow,
	AlgorithmLeakyBucket,
}

// ParseAlgorithm maps an identifier to an Algorithm. The empty string selects
// the token bucket.
func ParseAlgorithm(s string) (Algorithm, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return AlgorithmTokenBucket, nil
	}
	a := Algorithm(s)
	if !a.Valid() {
		return "", &ConfigurationError{Field: "algorithm", Reason: "unknown algorithm " + strconv.Quote(s)}
	}
	return a, nil
}

// Valid reports whether a is one of the supported algorithms.
func (a Algorithm) Valid() bool {
	switch a {
	case AlgorithmTokenBucket, AlgorithmSlidingWindow, AlgorithmFixedWindow, AlgorithmLeakyBucket:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (a Algorithm) String() string {
	return string(a)
}

// slug is the key namespace segment, e.g. "token_bucket".
func (a Algorithm) slug() string {
	return strings.ReplaceAll(string(a), "-", "_")
}
