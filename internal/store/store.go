package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"kasirinaja/checkout/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// TransactionFilter narrows ListTransactions. Zero values match everything.
type TransactionFilter struct {
	EventID    string
	TerminalID string
	Limit      int
}

type Repository interface {
	// LoadCatalog returns the configuration snapshot one event prices against.
	LoadCatalog(ctx context.Context, eventID string) (domain.Catalog, error)
	// UpdateCurrencyRates replaces the rate of every listed currency code; unknown codes are ignored.
	UpdateCurrencyRates(ctx context.Context, eventID string, rates map[string]decimal.Decimal) error

	AppendTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, error)
	// DecrementStock lowers tracked stock, flooring at zero. Untracked products are left alone.
	DecrementStock(ctx context.Context, productID string, qty int) error

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
