package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"kasirinaja/checkout/internal/cache"
	"kasirinaja/checkout/internal/currency"
	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/obs"
	"kasirinaja/checkout/internal/payment"
	"kasirinaja/checkout/internal/pricing"
	"kasirinaja/checkout/internal/sale"
	"kasirinaja/checkout/internal/store"
)

var (
	ErrManagerRequired   = errors.New("manager role required")
	ErrSettlementActive  = errors.New("settlement in progress")
	ErrNoSettlement      = errors.New("no settlement on this terminal")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrUnknownCurrency   = errors.New("unknown currency")
	ErrRatesNotAvailable = errors.New("rate refresh not configured")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// RateRefresher is implemented by rates.Refresher.
type RateRefresher interface {
	Refresh(ctx context.Context) (*cache.RateSnapshot, error)
	Latest(ctx context.Context) (*cache.RateSnapshot, bool, error)
}

type Config struct {
	EventID     string
	Provider    payment.Provider
	Receipts    sale.ReceiptDispatcher
	Rates       RateRefresher
	MaxAttempts int
	Logger      zerolog.Logger
}

type Service struct {
	repo        store.Repository
	provider    payment.Provider
	finalizer   *sale.Finalizer
	rates       RateRefresher
	eventID     string
	maxAttempts int
	logger      zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

func New(repo store.Repository, cfg Config) *Service {
	if cfg.EventID == "" {
		cfg.EventID = "main-event"
	}
	logger := cfg.Logger.With().Str("component", "service").Logger()
	return &Service{
		repo:        repo,
		provider:    cfg.Provider,
		finalizer:   sale.NewFinalizer(repo, cfg.Receipts, cfg.Logger),
		rates:       cfg.Rates,
		eventID:     cfg.EventID,
		maxAttempts: cfg.MaxAttempts,
		logger:      logger,
		sessions:    make(map[string]*session),
	}
}

func (s *Service) EventID() string {
	return s.eventID
}

func (s *Service) Catalog(ctx context.Context) (domain.Catalog, error) {
	return s.repo.LoadCatalog(ctx, s.eventID)
}

// CartView is what a terminal shows between computations.
type CartView struct {
	TerminalID        string                     `json:"terminal_id"`
	Items             []domain.CartItem          `json:"items"`
	Note              string                     `json:"note,omitempty"`
	OverrideKind      string                     `json:"override_kind"`
	GeneralOverride   *decimal.Decimal           `json:"general_override,omitempty"`
	CategoryOverrides map[string]decimal.Decimal `json:"category_overrides,omitempty"`
	ActiveDiscounts   []string                   `json:"active_discounts"`
	SettlementState   string                     `json:"settlement_state"`
}

func (s *Service) Cart(_ context.Context, terminalID string) (CartView, error) {
	sess, err := s.session(terminalID)
	if err != nil {
		return CartView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.view(), nil
}

func (s *Service) AddItem(ctx context.Context, terminalID string, productID string, qty int) (CartView, error) {
	if qty == 0 {
		qty = 1
	}
	if qty < 1 {
		return CartView{}, store.ErrInvalidTransaction
	}
	return s.mutate(ctx, terminalID, "cart_add", func(sess *session, catalog domain.Catalog) error {
		if err := requireSellable(catalog, productID); err != nil {
			return err
		}
		sess.cart.Increment(productID, qty)
		return nil
	})
}

func (s *Service) RemoveItem(ctx context.Context, terminalID string, productID string, qty int) (CartView, error) {
	if qty == 0 {
		qty = 1
	}
	if qty < 1 {
		return CartView{}, store.ErrInvalidTransaction
	}
	return s.mutate(ctx, terminalID, "cart_remove", func(sess *session, _ domain.Catalog) error {
		if sess.cart.Qty(productID) == 0 {
			return store.ErrNotFound
		}
		sess.cart.Decrement(productID, qty)
		return nil
	})
}

func (s *Service) SetQuantity(ctx context.Context, terminalID string, productID string, qty int) (CartView, error) {
	if qty < 0 {
		return CartView{}, store.ErrInvalidTransaction
	}
	return s.mutate(ctx, terminalID, "cart_set", func(sess *session, catalog domain.Catalog) error {
		if qty > 0 {
			if err := requireSellable(catalog, productID); err != nil {
				return err
			}
		}
		sess.cart.Set(productID, qty)
		return nil
	})
}

func (s *Service) ClearCart(ctx context.Context, terminalID string) (CartView, error) {
	return s.mutate(ctx, terminalID, "cart_clear", func(sess *session, _ domain.Catalog) error {
		sess.cart.Clear()
		return nil
	})
}

func (s *Service) SetNote(ctx context.Context, terminalID string, note string) (CartView, error) {
	note = strings.TrimSpace(note)
	if len(note) > 500 {
		return CartView{}, store.ErrInvalidTransaction
	}
	return s.mutate(ctx, terminalID, "note_set", func(sess *session, _ domain.Catalog) error {
		sess.note = note
		return nil
	})
}

// ToggleDiscount opts the sale in or out of a live discount promotion.
func (s *Service) ToggleDiscount(ctx context.Context, terminalID string, promotionID string, active bool) (CartView, error) {
	return s.mutate(ctx, terminalID, "discount_toggle", func(sess *session, catalog domain.Catalog) error {
		found := false
		for _, p := range catalog.Promotions {
			if p.ID == promotionID && p.Mode == domain.PromotionDiscount && p.Live() {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s is not an active discount", store.ErrInvalidTransaction, promotionID)
		}
		if active {
			sess.discounts[promotionID] = true
		} else {
			delete(sess.discounts, promotionID)
		}
		return nil
	})
}

// SetGeneralOverride replaces the whole sale total. Amount is in main currency.
func (s *Service) SetGeneralOverride(ctx context.Context, terminalID string, amount decimal.Decimal) (CartView, error) {
	if err := requireManager(ctx); err != nil {
		return CartView{}, err
	}
	if amount.IsNegative() {
		return CartView{}, store.ErrInvalidTransaction
	}
	return s.mutate(ctx, terminalID, "override_general", func(sess *session, _ domain.Catalog) error {
		sess.override = sess.override.WithGeneral(amount)
		return nil
	})
}

func (s *Service) SetCategoryOverride(ctx context.Context, terminalID string, categoryID string, amount decimal.Decimal) (CartView, error) {
	if err := requireManager(ctx); err != nil {
		return CartView{}, err
	}
	if amount.IsNegative() {
		return CartView{}, store.ErrInvalidTransaction
	}
	return s.mutate(ctx, terminalID, "override_category", func(sess *session, catalog domain.Catalog) error {
		enabled := false
		for _, c := range catalog.Categories {
			if c.ID == categoryID && c.Enabled {
				enabled = true
				break
			}
		}
		if !enabled {
			return fmt.Errorf("%w: unknown category %s", store.ErrInvalidTransaction, categoryID)
		}
		sess.override = sess.override.WithCategory(categoryID, amount)
		return nil
	})
}

// ClearOverrides drops one category override, or every override when categoryID is empty.
func (s *Service) ClearOverrides(ctx context.Context, terminalID string, categoryID string) (CartView, error) {
	if err := requireManager(ctx); err != nil {
		return CartView{}, err
	}
	return s.mutate(ctx, terminalID, "override_clear", func(sess *session, _ domain.Catalog) error {
		if categoryID == "" {
			sess.override = sess.override.Cleared()
			return nil
		}
		sess.override = sess.override.WithoutCategory(categoryID)
		return nil
	})
}

type CategoryQuote struct {
	CategoryID string          `json:"category_id"`
	Name       string          `json:"name"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Overridden bool            `json:"overridden"`
}

type Quote struct {
	TerminalID       string          `json:"terminal_id"`
	Currency         string          `json:"currency"`
	Rate             decimal.Decimal `json:"rate"`
	Total            decimal.Decimal `json:"total"`
	PreDiscountTotal decimal.Decimal `json:"pre_discount_total"`
	NaturalTotal     decimal.Decimal `json:"natural_total"`
	Deduction        decimal.Decimal `json:"deduction"`
	OverrideKind     string          `json:"override_kind"`
	Categories       []CategoryQuote `json:"categories"`
	Unassigned       decimal.Decimal `json:"unassigned"`
	Lines            []pricing.Line  `json:"lines"`
	ActiveDiscounts  []string        `json:"active_discounts"`
}

// Quote prices the terminal's cart in currencyCode; empty means main currency.
func (s *Service) Quote(ctx context.Context, terminalID string, currencyCode string) (Quote, error) {
	sess, err := s.session(terminalID)
	if err != nil {
		return Quote{}, err
	}
	catalog, err := s.repo.LoadCatalog(ctx, s.eventID)
	if err != nil {
		return Quote{}, err
	}
	table := currency.NewTable(catalog.Currencies)
	rate, ok := table.Rate(currencyCode)
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, currencyCode)
	}
	code := strings.ToUpper(strings.TrimSpace(currencyCode))
	if code == "" {
		code = table.Main().Code
	}

	sess.mu.Lock()
	engine := sess.engine(catalog, rate)
	override := sess.override
	discounts := sess.discountIDs()
	sess.mu.Unlock()

	res := engine.Result()
	q := Quote{
		TerminalID:       terminalID,
		Currency:         code,
		Rate:             engine.Rate(),
		Total:            engine.DerivedTotal(),
		PreDiscountTotal: engine.PreDiscountTotal(),
		NaturalTotal:     engine.NaturalTotal(),
		Deduction:        res.TotalDeduction.Add(res.ProductDeduction),
		OverrideKind:     override.Kind().String(),
		Unassigned:       res.Unassigned,
		Lines:            engine.Lines(),
		ActiveDiscounts:  discounts,
	}
	categories := append([]domain.Category(nil), catalog.Categories...)
	sort.SliceStable(categories, func(i, j int) bool { return categories[i].SortOrder < categories[j].SortOrder })
	for _, c := range categories {
		_, priced := res.Categories[c.ID]
		_, overridden := override.Category(c.ID)
		if !c.Enabled || (!priced && !overridden) {
			continue
		}
		q.Categories = append(q.Categories, CategoryQuote{
			CategoryID: c.ID,
			Name:       c.Name,
			Subtotal:   engine.CategorySubtotal(c.ID),
			Overridden: overridden,
		})
	}
	obs.ObserveQuote()
	return q, nil
}

func (s *Service) ListTransactions(ctx context.Context, terminalID string, limit int) ([]domain.Transaction, error) {
	return s.repo.ListTransactions(ctx, store.TransactionFilter{
		EventID:    s.eventID,
		TerminalID: strings.TrimSpace(terminalID),
		Limit:      limit,
	})
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Transaction{}, store.ErrInvalidTransaction
	}
	tx, err := s.repo.FindTransactionByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, err
	}
	return *tx, nil
}

func (s *Service) RefreshRates(ctx context.Context) (*cache.RateSnapshot, error) {
	if err := requireManager(ctx); err != nil {
		return nil, err
	}
	if s.rates == nil {
		return nil, ErrRatesNotAvailable
	}
	snapshot, err := s.rates.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "rates_refresh", "event", s.eventID, "base="+snapshot.Base)
	return snapshot, nil
}

func (s *Service) LatestRates(ctx context.Context) (*cache.RateSnapshot, error) {
	if s.rates == nil {
		return nil, ErrRatesNotAvailable
	}
	snapshot, ok, err := s.rates.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ErrNotFound
	}
	return snapshot, nil
}

// mutate applies one cart or session change. Changes are refused while money is being collected.
func (s *Service) mutate(ctx context.Context, terminalID string, action string, apply func(*session, domain.Catalog) error) (CartView, error) {
	sess, err := s.session(terminalID)
	if err != nil {
		return CartView{}, err
	}
	catalog, err := s.repo.LoadCatalog(ctx, s.eventID)
	if err != nil {
		return CartView{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.settling() {
		return CartView{}, ErrSettlementActive
	}
	if err := apply(sess, catalog); err != nil {
		return CartView{}, err
	}
	view := sess.view()
	s.logAudit(ctx, action, "terminal", terminalID, fmt.Sprintf("items=%d,override=%s", len(view.Items), view.OverrideKind))
	return view, nil
}

func (s *Service) session(terminalID string) (*session, error) {
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" || len(terminalID) > 64 {
		return nil, store.ErrInvalidTransaction
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[terminalID]
	if !ok {
		sess = newSession(terminalID)
		s.sessions[terminalID] = sess
	}
	return sess, nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}
	s.logger.Info().
		Str("audit", action).
		Str("actor", actor.Username).
		Str("role", actor.Role).
		Str("entity_type", entityType).
		Str("entity_id", entityID).
		Str("detail", detail).
		Msg("audit")
}

func requireManager(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleManager {
		return ErrManagerRequired
	}
	return nil
}

func requireSellable(catalog domain.Catalog, productID string) error {
	for _, p := range catalog.Products {
		if p.ID != productID {
			continue
		}
		if p.Deleted || !p.Active {
			return fmt.Errorf("%w: product %s is not for sale", store.ErrInvalidTransaction, productID)
		}
		return nil
	}
	return fmt.Errorf("%w: product %s", store.ErrNotFound, productID)
}
