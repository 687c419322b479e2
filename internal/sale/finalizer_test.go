package sale

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/pricing"
)

type fakeStore struct {
	appended   []domain.Transaction
	decrements map[string]int
	appendErr  error
	stockErr   error
}

func (s *fakeStore) AppendTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if s.appendErr != nil {
		return nil, s.appendErr
	}
	tx.ID = "tx-1"
	s.appended = append(s.appended, tx)
	return &tx, nil
}

func (s *fakeStore) DecrementStock(_ context.Context, productID string, qty int) error {
	if s.decrements == nil {
		s.decrements = map[string]int{}
	}
	s.decrements[productID] += qty
	return s.stockErr
}

type fakeReceipts struct {
	sent []string
}

func (r *fakeReceipts) Dispatch(_ domain.Transaction, email string) {
	r.sent = append(r.sent, email)
}

func testEngine(stockControl bool, discountActive bool) *pricing.Engine {
	catalog := domain.Catalog{
		Event: domain.Event{ID: "ev-1", StockControl: stockControl, MainCurrency: "EUR"},
		Products: []domain.Product{
			{ID: "beer", Name: "Beer", Price: decimal.NewFromInt(5), Active: true, Subgroup: "drinks"},
			{ID: "chips", Name: "Chips", Price: decimal.NewFromInt(3), Active: true},
		},
		Promotions: []domain.Promotion{
			{ID: "ten", Mode: domain.PromotionDiscount, Active: true, Target: domain.DiscountTargetTotal, DiscountType: domain.DiscountPercentage, Value: decimal.NewFromInt(10)},
		},
	}
	active := map[string]bool{}
	if discountActive {
		active["ten"] = true
	}
	return pricing.New(pricing.Request{
		Catalog:         catalog,
		Cart:            map[string]int{"beer": 2, "chips": 0},
		ActiveDiscounts: active,
	})
}

func newFinalizer(st Store, rc ReceiptDispatcher) *Finalizer {
	f := NewFinalizer(st, rc, zerolog.Nop())
	f.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return f
}

func TestFinalizeBooksOneTransaction(t *testing.T) {
	st := &fakeStore{}
	rc := &fakeReceipts{}
	cleared := false

	tx, err := newFinalizer(st, rc).Finalize(context.Background(), Input{
		Event:      domain.Event{ID: "ev-1", StockControl: true, MainCurrency: "EUR"},
		TerminalID: "t-1",
		Engine:     testEngine(true, true),
		Payments: []domain.SplitEntry{
			{Position: 1, Method: domain.MethodCard, AmountInMain: decimal.NewFromInt(5), ProviderReference: "ch-1"},
			{Position: 2, Method: domain.MethodCash, AmountInMain: decimal.NewFromInt(4)},
		},
		Email:        " guest@example.com ",
		Note:         "table 4",
		ClearSession: func() { cleared = true },
	})
	require.NoError(t, err)

	require.Len(t, st.appended, 1)
	assert.Equal(t, "tx-1", tx.ID)
	assert.Equal(t, "EUR", tx.Currency)
	assert.Equal(t, domain.TxStatusPaid, tx.Status)
	assert.True(t, tx.Total.Equal(decimal.NewFromInt(9)), tx.Total.String())
	require.Len(t, tx.Items, 1)
	assert.Equal(t, "Beer", tx.Items[0].ProductName)
	assert.Equal(t, "drinks", tx.Items[0].Subgroup)
	assert.True(t, tx.Items[0].UnitPrice.Equal(decimal.RequireFromString("4.5")), tx.Items[0].UnitPrice.String())
	assert.Equal(t, []string{"ch-1"}, tx.ProviderReferences)
	assert.Equal(t, "table 4", tx.Note)
	assert.Equal(t, map[string]int{"beer": 2}, st.decrements)
	assert.True(t, cleared)
	assert.Equal(t, []string{"guest@example.com"}, rc.sent)
}

func TestFinalizeSkipsStockAndReceiptWhenNotRequested(t *testing.T) {
	st := &fakeStore{}
	rc := &fakeReceipts{}

	_, err := newFinalizer(st, rc).Finalize(context.Background(), Input{
		Event:  domain.Event{ID: "ev-1"},
		Engine: testEngine(false, false),
	})
	require.NoError(t, err)

	assert.Nil(t, st.decrements)
	assert.Empty(t, rc.sent)
}

func TestFinalizeToleratesStockFailure(t *testing.T) {
	st := &fakeStore{stockErr: errors.New("row locked")}

	tx, err := newFinalizer(st, nil).Finalize(context.Background(), Input{
		Event:  domain.Event{ID: "ev-1", StockControl: true},
		Engine: testEngine(true, false),
		Email:  "guest@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "tx-1", tx.ID)
}

func TestFinalizeAppendFailureKeepsSession(t *testing.T) {
	st := &fakeStore{appendErr: errors.New("disk full")}
	cleared := false

	_, err := newFinalizer(st, nil).Finalize(context.Background(), Input{
		Engine:       testEngine(false, false),
		ClearSession: func() { cleared = true },
	})
	require.Error(t, err)
	assert.False(t, cleared)
}

func TestFinalizeRejectsEmptyCart(t *testing.T) {
	engine := pricing.New(pricing.Request{Cart: map[string]int{}})

	_, err := newFinalizer(&fakeStore{}, nil).Finalize(context.Background(), Input{Engine: engine})
	assert.ErrorIs(t, err, ErrEmptySale)
}

func TestFinalizeRoundedUpLinesMatchTotal(t *testing.T) {
	st := &fakeStore{}
	event := domain.Event{ID: "ev-1", RoundUp: true, MainCurrency: "EUR"}
	engine := pricing.New(pricing.Request{
		Catalog: domain.Catalog{
			Event:    event,
			Products: []domain.Product{{ID: "beer", Name: "Beer", Price: decimal.RequireFromString("3.5"), Active: true}},
		},
		Cart: map[string]int{"beer": 1},
	})

	tx, err := newFinalizer(st, nil).Finalize(context.Background(), Input{
		Event:    event,
		Engine:   engine,
		Payments: []domain.SplitEntry{{Position: 1, Method: domain.MethodCash, AmountInMain: decimal.NewFromInt(4)}},
	})
	require.NoError(t, err)

	require.Len(t, tx.Items, 1)
	assert.True(t, tx.Total.Equal(decimal.NewFromInt(4)), tx.Total.String())
	assert.True(t, tx.Items[0].UnitPrice.Equal(tx.Total), tx.Items[0].UnitPrice.String())
}
