package cache

import (
	"context"
	"time"

	"kasirinaja/checkout/internal/domain"
)

// RateSnapshot is the last set of rates fetched for a main currency.
type RateSnapshot struct {
	Base       string            `json:"base"`
	Currencies []domain.Currency `json:"currencies"`
	FetchedAt  time.Time         `json:"fetched_at"`
}

type RateCache interface {
	Get(ctx context.Context, key string) (*RateSnapshot, bool, error)
	Set(ctx context.Context, key string, value *RateSnapshot, ttl time.Duration) error
}

func RateKey(eventID, base string) string {
	return "checkout:rates:" + eventID + ":" + base
}

type NoopRateCache struct{}

func (NoopRateCache) Get(_ context.Context, _ string) (*RateSnapshot, bool, error) {
	return nil, false, nil
}

func (NoopRateCache) Set(_ context.Context, _ string, _ *RateSnapshot, _ time.Duration) error {
	return nil
}
