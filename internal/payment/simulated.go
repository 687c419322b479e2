package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"kasirinaja/checkout/internal/xid"
)

// Simulated approves every charge. It backs development terminals without card hardware.
type Simulated struct {
	mu       sync.Mutex
	charges  map[string]ChargeRequest
	refunded map[string]bool
	logger   zerolog.Logger
}

func NewSimulated(logger zerolog.Logger) *Simulated {
	return &Simulated{
		charges:  make(map[string]ChargeRequest),
		refunded: make(map[string]bool),
		logger:   logger.With().Str("component", "payment_simulated").Logger(),
	}
}

func (s *Simulated) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return ChargeResult{}, err
	}
	if !req.Amount.IsPositive() {
		return ChargeResult{}, fmt.Errorf("%w: amount must be positive", ErrDeclined)
	}

	ref := xid.New("sim")
	s.mu.Lock()
	s.charges[ref] = req
	s.mu.Unlock()

	s.logger.Debug().Str("reference", ref).Str("amount", req.Amount.String()).Msg("simulated charge")
	result := ChargeResult{Reference: ref}
	if req.Method == "card" {
		result.CardSuffix = "4242"
	}
	return result, nil
}

func (s *Simulated) Refund(ctx context.Context, reference string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.charges[reference]; !ok {
		return ErrUnknownCharge
	}
	s.refunded[reference] = true
	return nil
}

func (s *Simulated) Refunded(reference string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refunded[reference]
}
