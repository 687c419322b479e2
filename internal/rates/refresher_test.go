package rates

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirinaja/checkout/internal/cache"
	"kasirinaja/checkout/internal/store/memory"
)

func rateServer(t *testing.T, body *atomic.Value, status *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/latest" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte(body.Load().(string)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func currencyRates(t *testing.T, st *memory.Store) map[string]string {
	t.Helper()
	catalog, err := st.LoadCatalog(context.Background(), "ev")
	require.NoError(t, err)
	out := map[string]string{}
	for _, c := range catalog.Currencies {
		out[c.Code] = c.Rate.String()
	}
	return out
}

func TestHTTPFetcherParsesRates(t *testing.T) {
	var body atomic.Value
	var status atomic.Int32
	body.Store(`{"base":"EUR","rates":{"usd":"1.10","GBP":0.84}}`)
	status.Store(http.StatusOK)
	srv := rateServer(t, &body, &status)

	got, err := NewHTTPFetcher(srv.URL, time.Second).Fetch(context.Background(), "eur")
	require.NoError(t, err)
	assert.True(t, got["USD"].Equal(decimal.RequireFromString("1.1")))
	assert.True(t, got["GBP"].Equal(decimal.RequireFromString("0.84")))
	assert.True(t, got["EUR"].Equal(decimal.NewFromInt(1)))
}

func TestHTTPFetcherRejectsEmptyPayload(t *testing.T) {
	var body atomic.Value
	var status atomic.Int32
	body.Store(`{"base":"EUR","rates":{}}`)
	status.Store(http.StatusOK)
	srv := rateServer(t, &body, &status)

	_, err := NewHTTPFetcher(srv.URL, time.Second).Fetch(context.Background(), "EUR")
	assert.ErrorIs(t, err, ErrNoRates)
}

func TestRefreshWritesStoreAndCache(t *testing.T) {
	var body atomic.Value
	var status atomic.Int32
	body.Store(`{"base":"EUR","rates":{"USD":"1.10","GBP":"0.84","JPY":"160"}}`)
	status.Store(http.StatusOK)
	srv := rateServer(t, &body, &status)

	mr := miniredis.RunT(t)
	rc := cache.NewRedisRateCache(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = rc.Close() })

	st := memory.New()
	st.SaveCatalog(memory.SeedCatalog("ev"))

	r := NewRefresher(NewHTTPFetcher(srv.URL, time.Second), st, rc, "ev", time.Hour, zerolog.Nop())
	snap, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "EUR", snap.Base)

	rates := currencyRates(t, st)
	assert.Equal(t, "1", rates["EUR"])
	assert.Equal(t, "1.1", rates["USD"])
	assert.Equal(t, "0.84", rates["GBP"])

	latest, ok, err := r.Latest(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, latest.Currencies, len(snap.Currencies))
	assert.True(t, mr.TTL(cache.RateKey("ev", "EUR")) > 0)
}

func TestRefreshRebasesForeignBase(t *testing.T) {
	var body atomic.Value
	var status atomic.Int32
	body.Store(`{"base":"USD","rates":{"EUR":"0.5","GBP":"0.4"}}`)
	status.Store(http.StatusOK)
	srv := rateServer(t, &body, &status)

	st := memory.New()
	st.SaveCatalog(memory.SeedCatalog("ev"))

	_, err := NewRefresher(NewHTTPFetcher(srv.URL, time.Second), st, nil, "ev", time.Hour, zerolog.Nop()).
		Refresh(context.Background())
	require.NoError(t, err)

	rates := currencyRates(t, st)
	assert.Equal(t, "1", rates["EUR"])
	assert.Equal(t, "2", rates["USD"])
	assert.Equal(t, "0.8", rates["GBP"])
}

func TestRefreshFallsBackToCachedSnapshot(t *testing.T) {
	var body atomic.Value
	var status atomic.Int32
	body.Store(`{"base":"EUR","rates":{"USD":"1.25"}}`)
	status.Store(http.StatusOK)
	srv := rateServer(t, &body, &status)

	mr := miniredis.RunT(t)
	rc := cache.NewRedisRateCache(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = rc.Close() })

	st := memory.New()
	st.SaveCatalog(memory.SeedCatalog("ev"))
	r := NewRefresher(NewHTTPFetcher(srv.URL, time.Second), st, rc, "ev", time.Hour, zerolog.Nop())

	_, err := r.Refresh(context.Background())
	require.NoError(t, err)

	// Someone reset the stored rate; the outage must restore the cached value.
	require.NoError(t, st.UpdateCurrencyRates(context.Background(), "ev", map[string]decimal.Decimal{"USD": decimal.NewFromInt(9)}))
	status.Store(http.StatusBadRequest)
	body.Store(`{"error":"quota"}`)

	snap, err := r.Refresh(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "1.25", currencyRates(t, st)["USD"])
}

func TestRefreshFailsWithoutCache(t *testing.T) {
	var body atomic.Value
	var status atomic.Int32
	body.Store(`{}`)
	status.Store(http.StatusBadRequest)
	srv := rateServer(t, &body, &status)

	st := memory.New()
	st.SaveCatalog(memory.SeedCatalog("ev"))

	_, err := NewRefresher(NewHTTPFetcher(srv.URL, time.Second), st, cache.NoopRateCache{}, "ev", time.Hour, zerolog.Nop()).
		Refresh(context.Background())
	assert.Error(t, err)
	assert.Equal(t, "1.08", currencyRates(t, st)["USD"])
}
