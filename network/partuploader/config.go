package partuploader

import (
	"net/http"
	"time"
)

// Config holds configuration for the part uploader.
type Config struct {
	// MaxRetryPerPart is the maximum number of transfer attempts per part.
	// Default: 3
	MaxRetryPerPart int

	// BackoffBase is the delay before the first retry of a part. Every further
	// retry doubles it: BackoffBase * 2^attemptIndex.
	// Default: 1 second
	BackoffBase time.Duration

	// HTTPClient is the HTTP client to use for part transfers.
	// If nil, a default client will be created.
	HTTPClient *http.Client
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetryPerPart: 3,
		BackoffBase:     time.Second,
		HTTPClient:      nil, // Will be created by Uploader
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRetryPerPart <= 0 {
		c.MaxRetryPerPart = d.MaxRetryPerPart
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	return c
}

// DefaultHTTPClient creates an HTTP client for part transfers.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		// No timeout - part transfers are bounded via context
		Timeout: 0,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxConnsPerHost:     4,
			IdleConnTimeout:     10 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
			Proxy:               http.ProxyFromEnvironment,
		},
	}
}

// Backoff returns the delay applied after the failed attempt with the given
// 0-based index.
func (c Config) Backoff(attemptIndex int) time.Duration {
	return c.BackoffBase << uint(attemptIndex)
}
