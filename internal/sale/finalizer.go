package sale

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/pricing"
)

var ErrEmptySale = errors.New("sale has no lines")

// Store is the part of persistence a finished sale touches.
type Store interface {
	AppendTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	DecrementStock(ctx context.Context, productID string, qty int) error
}

type ReceiptDispatcher interface {
	Dispatch(tx domain.Transaction, email string)
}

type Input struct {
	Event      domain.Event
	TerminalID string
	Engine     *pricing.Engine
	Payments   []domain.SplitEntry
	Email      string
	Note       string
	// Currency the total is expressed in; empty means the event's main currency.
	Currency string
	// ClearSession resets cart, note, discount toggles and overrides once the sale is stored.
	ClearSession func()
}

type Finalizer struct {
	store    Store
	receipts ReceiptDispatcher
	logger   zerolog.Logger
	now      func() time.Time
}

func NewFinalizer(store Store, receipts ReceiptDispatcher, logger zerolog.Logger) *Finalizer {
	return &Finalizer{
		store:    store,
		receipts: receipts,
		logger:   logger.With().Str("component", "sale").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Finalize books the priced cart as exactly one transaction.
// Stock and receipt problems are logged; only a failed append fails the sale.
func (f *Finalizer) Finalize(ctx context.Context, in Input) (domain.Transaction, error) {
	if in.Engine == nil {
		return domain.Transaction{}, ErrEmptySale
	}
	lines := in.Engine.Lines()
	if len(lines) == 0 {
		return domain.Transaction{}, ErrEmptySale
	}

	tx := domain.Transaction{
		EventID:      in.Event.ID,
		TerminalID:   in.TerminalID,
		Total:        in.Engine.DerivedTotal(),
		Currency:     in.Currency,
		Items:        make([]domain.TransactionLine, 0, len(lines)),
		Payments:     append([]domain.SplitEntry(nil), in.Payments...),
		Status:       domain.TxStatusPaid,
		ReceiptEmail: strings.TrimSpace(in.Email),
		Note:         strings.TrimSpace(in.Note),
		CreatedAt:    f.now(),
	}
	if tx.Currency == "" {
		tx.Currency = in.Event.MainCurrency
	}
	for _, line := range lines {
		tx.Items = append(tx.Items, domain.TransactionLine{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Qty:         line.Qty,
			UnitPrice:   line.UnitPrice,
			Subgroup:    line.Subgroup,
		})
	}
	for _, p := range tx.Payments {
		if p.ProviderReference != "" {
			tx.ProviderReferences = append(tx.ProviderReferences, p.ProviderReference)
		}
	}

	saved, err := f.store.AppendTransaction(ctx, tx)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("append transaction: %w", err)
	}

	if in.Event.StockControl {
		for _, item := range saved.Items {
			if err := f.store.DecrementStock(ctx, item.ProductID, item.Qty); err != nil {
				f.logger.Warn().Err(err).
					Str("transaction_id", saved.ID).
					Str("product_id", item.ProductID).
					Int("qty", item.Qty).
					Msg("stock decrement failed")
			}
		}
	}

	if in.ClearSession != nil {
		in.ClearSession()
	}

	if saved.ReceiptEmail != "" && f.receipts != nil {
		f.receipts.Dispatch(*saved, saved.ReceiptEmail)
	}

	f.logger.Info().
		Str("transaction_id", saved.ID).
		Str("terminal_id", saved.TerminalID).
		Str("total", saved.Total.String()).
		Int("payments", len(saved.Payments)).
		Msg("sale finalized")
	return *saved, nil
}
