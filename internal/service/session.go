package service

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/pricing"
	"kasirinaja/checkout/internal/settlement"
)

// session is the mutable state of one terminal. mu guards everything except cancel.
type session struct {
	mu         sync.Mutex
	terminalID string
	cart       *domain.Cart
	override   domain.Override
	discounts  map[string]bool
	note       string

	orchestrator *settlement.Orchestrator
	// pricing frozen when the settlement started; the finalizer books these lines.
	frozen  *pricing.Engine
	catalog domain.Catalog

	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

func newSession(terminalID string) *session {
	return &session{
		terminalID: terminalID,
		cart:       domain.NewCart(),
		discounts:  make(map[string]bool),
	}
}

func (s *session) settling() bool {
	if s.orchestrator == nil {
		return false
	}
	switch s.orchestrator.State() {
	case settlement.StateIdle, settlement.StateDone:
		return false
	default:
		return true
	}
}

func (s *session) engine(catalog domain.Catalog, rate decimal.Decimal) *pricing.Engine {
	return pricing.New(pricing.Request{
		Catalog:         catalog,
		Cart:            s.cart.Snapshot(),
		Override:        s.override,
		ActiveDiscounts: s.discounts,
		Rate:            rate,
	})
}

func (s *session) discountIDs() []string {
	ids := make([]string, 0, len(s.discounts))
	for id := range s.discounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// reset clears the sale after it has been booked. Caller holds mu.
func (s *session) reset() {
	s.cart.Clear()
	s.override = s.override.Cleared()
	s.discounts = make(map[string]bool)
	s.note = ""
}

func (s *session) view() CartView {
	v := CartView{
		TerminalID:      s.terminalID,
		Items:           s.cart.Items(),
		Note:            s.note,
		OverrideKind:    s.override.Kind().String(),
		ActiveDiscounts: s.discountIDs(),
		SettlementState: settlement.StateIdle.String(),
	}
	if amount, ok := s.override.General(); ok {
		v.GeneralOverride = &amount
	}
	if s.override.Kind() == domain.OverrideCategory {
		v.CategoryOverrides = s.override.Categories()
	}
	if s.orchestrator != nil {
		v.SettlementState = s.orchestrator.State().String()
	}
	return v
}

func (s *session) setCancel(cancel context.CancelFunc) {
	s.cancelMu.Lock()
	s.cancel = cancel
	s.cancelMu.Unlock()
}

// interrupt cancels a charge in flight. It reports false when nothing was running.
func (s *session) interrupt() bool {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}
