package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"kasirinaja/checkout/internal/xid"
)

const idempotencyHeader = "Idempotency-Key"

type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("payment gateway error: %s", e.Status)
	}
	return fmt.Sprintf("payment gateway error: %s: %s", e.Status, e.Body)
}

type GatewayConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Gateway talks to the payment terminal backend over JSON.
type Gateway struct {
	http   *resty.Client
	logger zerolog.Logger
}

func NewGateway(cfg GatewayConfig, logger zerolog.Logger) *Gateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout).
		SetRetryCount(1).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			// Only transport errors and 503s; a decline is final.
			// Charges carry an Idempotency-Key, so a resend after a lost response is not a second charge.
			if err != nil {
				return true
			}
			return resp != nil && resp.StatusCode() == http.StatusServiceUnavailable
		})
	if cfg.APIKey != "" {
		client.SetAuthScheme("Bearer")
		client.SetAuthToken(cfg.APIKey)
	}
	return &Gateway{http: client, logger: logger.With().Str("component", "payment_gateway").Logger()}
}

type refundRequest struct {
	Reference string `json:"reference"`
}

func (g *Gateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = xid.New("chg")
	}
	var result ChargeResult
	resp, err := g.http.R().
		SetContext(ctx).
		SetHeader(idempotencyHeader, key).
		SetBody(req).
		SetResult(&result).
		Post("/v1/charges")
	if err != nil {
		return ChargeResult{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return ChargeResult{}, apiErrorFromResponse(resp)
	}
	if strings.TrimSpace(result.Reference) == "" {
		return ChargeResult{}, errors.New("payment gateway returned no reference")
	}

	g.logger.Info().
		Str("reference", result.Reference).
		Str("currency", req.Currency).
		Str("amount", req.Amount.String()).
		Msg("charge captured")
	return result, nil
}

func (g *Gateway) Refund(ctx context.Context, reference string) error {
	if strings.TrimSpace(reference) == "" {
		return ErrUnknownCharge
	}
	resp, err := g.http.R().
		SetContext(ctx).
		SetBody(refundRequest{Reference: reference}).
		Post("/v1/refunds")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.IsError() {
		return apiErrorFromResponse(resp)
	}
	g.logger.Info().Str("reference", reference).Msg("charge refunded")
	return nil
}

func apiErrorFromResponse(resp *resty.Response) error {
	apiErr := &APIError{
		StatusCode: resp.StatusCode(),
		Status:     resp.Status(),
		Body:       strings.TrimSpace(resp.String()),
	}
	switch resp.StatusCode() {
	case http.StatusPaymentRequired, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrDeclined, apiErr.Error())
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrUnknownCharge, apiErr.Error())
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", ErrUnavailable, apiErr.Error())
	default:
		return apiErr
	}
}
