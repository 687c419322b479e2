package rates

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"kasirinaja/checkout/internal/cache"
	"kasirinaja/checkout/internal/currency"
	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/obs"
)

// Store is the slice of persistence the refresher reads and writes.
type Store interface {
	LoadCatalog(ctx context.Context, eventID string) (domain.Catalog, error)
	UpdateCurrencyRates(ctx context.Context, eventID string, rates map[string]decimal.Decimal) error
}

type Refresher struct {
	fetcher Fetcher
	store   Store
	cache   cache.RateCache
	eventID string
	ttl     time.Duration
	logger  zerolog.Logger
	now     func() time.Time
}

func NewRefresher(fetcher Fetcher, st Store, rateCache cache.RateCache, eventID string, ttl time.Duration, logger zerolog.Logger) *Refresher {
	if rateCache == nil {
		rateCache = cache.NoopRateCache{}
	}
	return &Refresher{
		fetcher: fetcher,
		store:   st,
		cache:   rateCache,
		eventID: eventID,
		ttl:     ttl,
		logger:  logger.With().Str("component", "rates").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Refresh pulls fresh rates for the event's main currency and writes them to the store.
// When the rate service is down, the last cached snapshot is applied instead.
func (r *Refresher) Refresh(ctx context.Context) (*cache.RateSnapshot, error) {
	catalog, err := r.store.LoadCatalog(ctx, r.eventID)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	base := mainCode(catalog)
	key := cache.RateKey(r.eventID, base)

	fetched, fetchErr := r.fetcher.Fetch(ctx, base)
	if fetchErr != nil {
		obs.ObserveRateRefresh("failure")
		cached, ok, err := r.cache.Get(ctx, key)
		if err != nil || !ok {
			return nil, fmt.Errorf("refresh rates: %w", fetchErr)
		}
		r.logger.Warn().Err(fetchErr).Time("fetched_at", cached.FetchedAt).Msg("rate service unavailable, applying cached snapshot")
		if err := r.apply(ctx, cached.Currencies); err != nil {
			return nil, err
		}
		obs.ObserveRateRefresh("cached")
		return cached, nil
	}

	snapshot := &cache.RateSnapshot{
		Base:       base,
		Currencies: merge(catalog.Currencies, fetched, base),
		FetchedAt:  r.now(),
	}
	if err := r.apply(ctx, snapshot.Currencies); err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, key, snapshot, r.ttl); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("cache rate snapshot")
	}
	obs.ObserveRateRefresh("success")
	r.logger.Info().Str("base", base).Int("currencies", len(snapshot.Currencies)).Msg("rates refreshed")
	return snapshot, nil
}

// Latest returns the cached snapshot of the current main currency, if any.
func (r *Refresher) Latest(ctx context.Context) (*cache.RateSnapshot, bool, error) {
	catalog, err := r.store.LoadCatalog(ctx, r.eventID)
	if err != nil {
		return nil, false, fmt.Errorf("load catalog: %w", err)
	}
	return r.cache.Get(ctx, cache.RateKey(r.eventID, mainCode(catalog)))
}

// Run refreshes on every tick until ctx is done. Failures are logged and retried next tick.
func (r *Refresher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error().Err(err).Msg("scheduled rate refresh failed")
			}
		}
	}
}

func (r *Refresher) apply(ctx context.Context, currencies []domain.Currency) error {
	update := make(map[string]decimal.Decimal, len(currencies))
	for _, c := range currencies {
		if c.IsMain {
			continue
		}
		update[strings.ToUpper(c.Code)] = c.Rate
	}
	if err := r.store.UpdateCurrencyRates(ctx, r.eventID, update); err != nil {
		return fmt.Errorf("store rates: %w", err)
	}
	return nil
}

func mainCode(catalog domain.Catalog) string {
	for _, c := range catalog.Currencies {
		if c.IsMain {
			return strings.ToUpper(c.Code)
		}
	}
	return strings.ToUpper(catalog.Event.MainCurrency)
}

// merge rebases the fetched rates on base, so the main currency ends at exactly 1
// whatever base the service answered in, and lays them over the configured currencies.
func merge(configured []domain.Currency, fetched map[string]decimal.Decimal, base string) []domain.Currency {
	quoted := make([]domain.Currency, 0, len(fetched))
	for code, rate := range fetched {
		if rate.IsPositive() {
			quoted = append(quoted, domain.Currency{Code: strings.ToUpper(code), Rate: rate})
		}
	}
	rebased := make(map[string]decimal.Decimal, len(quoted))
	for _, c := range currency.Rebase(quoted, base) {
		rebased[c.Code] = c.Rate
	}

	out := slices.Clone(configured)
	for i, c := range out {
		if c.IsMain {
			continue
		}
		if rate, ok := rebased[strings.ToUpper(c.Code)]; ok {
			out[i].Rate = rate
		}
	}
	return out
}
