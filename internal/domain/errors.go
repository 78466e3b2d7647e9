package domain

import "errors"

var (
	// ErrValidation signals malformed input shape.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrMissingRate signals an embargoed country whose classification carries
	// no column-2 rate. Hard error: upstream reference data is corrupt.
	ErrMissingRate = errors.New("column-2 rate of duty missing")
	// ErrUpstreamUnavailable signals an embedding or index transport failure
	// after retries were exhausted.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
)
