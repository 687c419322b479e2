package rates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

var ErrNoRates = errors.New("rate service returned no rates")

// Fetcher returns the units of each currency per one unit of base.
type Fetcher interface {
	Fetch(ctx context.Context, base string) (map[string]decimal.Decimal, error)
}

type latestResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

type HTTPFetcher struct {
	http *resty.Client
}

func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second).
		SetRetryMaxWaitTime(5 * time.Second)
	return &HTTPFetcher{http: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	var payload latestResponse
	resp, err := f.http.R().
		SetContext(ctx).
		SetQueryParam("base", base).
		SetResult(&payload).
		Get("/latest")
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch rates: %s", resp.Status())
	}
	if len(payload.Rates) == 0 {
		return nil, ErrNoRates
	}

	out := make(map[string]decimal.Decimal, len(payload.Rates)+1)
	for code, rate := range payload.Rates {
		out[strings.ToUpper(code)] = rate
	}
	// Some services answer in their own base; keep it so callers can rebase.
	if payload.Base != "" {
		if _, ok := out[strings.ToUpper(payload.Base)]; !ok {
			out[strings.ToUpper(payload.Base)] = decimal.NewFromInt(1)
		}
	}
	return out, nil
}
