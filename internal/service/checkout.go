package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"kasirinaja/checkout/internal/currency"
	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/sale"
	"kasirinaja/checkout/internal/settlement"
)

// CheckoutRequest pays the whole total with one method.
type CheckoutRequest struct {
	Method         domain.PaymentMethod `json:"method"`
	CurrencyCode   string               `json:"currency_code,omitempty"`
	Label          string               `json:"label,omitempty"`
	ProviderBacked bool                 `json:"provider_backed,omitempty"`
}

func (s *Service) Checkout(ctx context.Context, terminalID string, req CheckoutRequest) (settlement.Status, error) {
	return s.startSettlement(ctx, terminalID, settlement.MinSingleEntries, func(total decimal.Decimal) []domain.SplitEntry {
		return []domain.SplitEntry{{
			Position:       1,
			Method:         req.Method,
			Label:          req.Label,
			AmountInMain:   total,
			CurrencyCode:   req.CurrencyCode,
			ProviderBacked: req.ProviderBacked,
		}}
	})
}

// StartSplit settles the total across two or more entries, most complex method first.
func (s *Service) StartSplit(ctx context.Context, terminalID string, entries []domain.SplitEntry) (settlement.Status, error) {
	return s.startSettlement(ctx, terminalID, settlement.MinSplitEntries, func(decimal.Decimal) []domain.SplitEntry {
		return entries
	})
}

func (s *Service) startSettlement(ctx context.Context, terminalID string, minEntries int, build func(total decimal.Decimal) []domain.SplitEntry) (settlement.Status, error) {
	sess, err := s.session(terminalID)
	if err != nil {
		return settlement.Status{}, err
	}
	catalog, err := s.repo.LoadCatalog(ctx, s.eventID)
	if err != nil {
		return settlement.Status{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.settling() {
		return sess.orchestrator.Status(), ErrSettlementActive
	}
	if sess.cart.Empty() {
		return settlement.Status{}, ErrEmptyCart
	}

	engine := sess.engine(catalog, decimal.Zero)
	total := engine.DerivedTotal()
	entries, err := prepareEntries(build(total), currency.NewTable(catalog.Currencies))
	if err != nil {
		return settlement.Status{}, err
	}

	orchestrator := settlement.New(settlement.Config{
		Provider:    s.provider,
		Finalize:    s.finalizeFunc(sess),
		Logger:      s.logger.With().Str("terminal_id", sess.terminalID).Logger(),
		MaxAttempts: s.maxAttempts,
		Description: strings.TrimSpace(catalog.Event.Name + " sale"),
	})
	if err := orchestrator.Start(total, entries, minEntries); err != nil {
		return settlement.Status{}, err
	}
	sess.orchestrator = orchestrator
	sess.frozen = engine
	sess.catalog = catalog
	s.logAudit(ctx, "settlement_start", "terminal", sess.terminalID, fmt.Sprintf("total=%s,entries=%d", total.String(), len(entries)))

	if err := s.drive(ctx, sess); err != nil {
		return orchestrator.Status(), err
	}
	return orchestrator.Status(), nil
}

// SplitDecision applies an operator decision and keeps charging when the queue is open again.
func (s *Service) SplitDecision(ctx context.Context, terminalID string, d settlement.Decision) (settlement.Status, error) {
	sess, err := s.session(terminalID)
	if err != nil {
		return settlement.Status{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.orchestrator == nil {
		return settlement.Status{}, ErrNoSettlement
	}
	o := sess.orchestrator

	if d.Action == settlement.ActionResume && len(d.Entries) > 0 {
		d.Entries, err = prepareEntries(d.Entries, currency.NewTable(sess.catalog.Currencies))
		if err != nil {
			return o.Status(), err
		}
	}
	d.Email = strings.TrimSpace(d.Email)

	if err := o.Decide(ctx, d); err != nil {
		if !errors.Is(err, settlement.ErrRefundFailed) {
			return o.Status(), err
		}
		s.logger.Error().Err(err).Str("terminal_id", sess.terminalID).Msg("void-all finished with refund failures")
	}
	s.logAudit(ctx, "settlement_"+string(d.Action), "terminal", sess.terminalID, "state="+o.State().String())

	if err := s.drive(ctx, sess); err != nil {
		return o.Status(), err
	}
	return o.Status(), nil
}

func (s *Service) ResumeSplit(ctx context.Context, terminalID string, entries []domain.SplitEntry) (settlement.Status, error) {
	return s.SplitDecision(ctx, terminalID, settlement.Decision{Action: settlement.ActionResume, Entries: entries})
}

func (s *Service) SplitStatus(_ context.Context, terminalID string) (settlement.Status, error) {
	sess, err := s.session(terminalID)
	if err != nil {
		return settlement.Status{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.orchestrator == nil {
		return settlement.Status{}, ErrNoSettlement
	}
	return sess.orchestrator.Status(), nil
}

// CancelSplit stops a charge in flight, or cancels a settlement waiting on the operator.
// Captured money is never dropped: with captures the settlement ends up interrupted.
func (s *Service) CancelSplit(ctx context.Context, terminalID string) (settlement.Status, error) {
	sess, err := s.session(terminalID)
	if err != nil {
		return settlement.Status{}, err
	}
	if sess.interrupt() {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		s.logAudit(ctx, "settlement_cancel", "terminal", sess.terminalID, "in_flight=true")
		return sess.orchestrator.Status(), nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.orchestrator == nil {
		return settlement.Status{}, ErrNoSettlement
	}
	if err := sess.orchestrator.Decide(ctx, settlement.Decision{Action: settlement.ActionCancel}); err != nil {
		return sess.orchestrator.Status(), err
	}
	s.logAudit(ctx, "settlement_cancel", "terminal", sess.terminalID, "state="+sess.orchestrator.State().String())
	return sess.orchestrator.Status(), nil
}

// drive charges queued entries. The cancel func is published so CancelSplit can stop a charge
// without waiting for mu. Caller holds mu.
func (s *Service) drive(ctx context.Context, sess *session) error {
	if sess.orchestrator.State() != settlement.StateAwaitingEntry {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	sess.setCancel(cancel)
	defer func() {
		sess.setCancel(nil)
		cancel()
	}()
	return sess.orchestrator.Run(runCtx)
}

// finalizeFunc books the frozen cart. It runs inside Decide, so mu is already held.
func (s *Service) finalizeFunc(sess *session) settlement.FinalizeFunc {
	return func(ctx context.Context, entries []domain.SplitEntry, email string) (domain.Transaction, error) {
		tx, err := s.finalizer.Finalize(ctx, sale.Input{
			Event:        sess.catalog.Event,
			TerminalID:   sess.terminalID,
			Engine:       sess.frozen,
			Payments:     entries,
			Email:        email,
			Note:         sess.note,
			Currency:     currency.NewTable(sess.catalog.Currencies).Main().Code,
			ClearSession: sess.reset,
		})
		if err != nil {
			return domain.Transaction{}, err
		}
		s.logAudit(ctx, "sale_finalize", "transaction", tx.ID, fmt.Sprintf("total=%s,payments=%d", tx.Total.String(), len(tx.Payments)))
		return tx, nil
	}
}

// prepareEntries fixes each entry's charge amount in its own currency. Amounts stay in main units.
func prepareEntries(entries []domain.SplitEntry, table currency.Table) ([]domain.SplitEntry, error) {
	main := strings.ToUpper(table.Main().Code)
	out := make([]domain.SplitEntry, len(entries))
	for i, e := range entries {
		code := strings.ToUpper(strings.TrimSpace(e.CurrencyCode))
		if code == "" || code == main {
			e.CurrencyCode = main
			e.ChargeAmount = e.AmountInMain
		} else {
			rate, ok := table.Rate(code)
			if !ok || !rate.IsPositive() {
				return nil, fmt.Errorf("%w: %s", ErrUnknownCurrency, code)
			}
			e.CurrencyCode = code
			e.ChargeAmount = currency.Convert(e.AmountInMain, rate)
		}
		e.ProviderReference = ""
		e.CardSuffix = ""
		e.CashEquivalent = false
		out[i] = e
	}
	return out, nil
}
