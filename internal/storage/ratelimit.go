package storage

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitConfig holds the token bucket settings for storage calls.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate; zero or less disables limiting.
	RequestsPerSecond float64
	// BurstSize is the maximum burst size.
	BurstSize int
}

type rateLimitedStore struct {
	next    ObjectStore
	limiter *rate.Limiter
}

// NewRateLimited wraps next so reads and listings share one token bucket.
// Ping is never throttled. A non-positive rate returns next unchanged.
func NewRateLimited(next ObjectStore, cfg RateLimitConfig) ObjectStore {
	if cfg.RequestsPerSecond <= 0 {
		return next
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = 1
	}
	return &rateLimitedStore{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
	}
}

func (s *rateLimitedStore) ReadObject(ctx context.Context, key string) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.next.ReadObject(ctx, key)
}

func (s *rateLimitedStore) ListObjects(ctx context.Context, prefix string, suffixes []string) ([]ObjectInfo, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.next.ListObjects(ctx, prefix, suffixes)
}

func (s *rateLimitedStore) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}
