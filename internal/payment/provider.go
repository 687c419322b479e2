package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

//go:generate mockgen -destination=mocks/mock_provider.go -source=provider.go Provider

var (
	ErrDeclined      = errors.New("payment declined")
	ErrUnavailable   = errors.New("payment provider unavailable")
	ErrUnknownCharge = errors.New("unknown charge reference")
)

type ChargeRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	Method      string          `json:"method,omitempty"`
	// IdempotencyKey names one charge attempt. Resending it must not charge twice.
	IdempotencyKey string `json:"-"`
}

type ChargeResult struct {
	Reference  string `json:"reference"`
	CardSuffix string `json:"card_suffix,omitempty"`
}

// Provider charges and refunds card, QR and contactless payments.
// Retrying a failed Charge must not double charge.
type Provider interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	Refund(ctx context.Context, reference string) error
}
