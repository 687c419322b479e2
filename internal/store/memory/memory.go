package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/store"
	"kasirinaja/checkout/internal/xid"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type Store struct {
	mu              sync.RWMutex
	catalogs        map[string]domain.Catalog
	transactions    []*domain.Transaction
	transactionByID map[string]*domain.Transaction
	usersByUsername map[string]domain.UserAccount
}

// New returns an empty store. Catalogs are added with SaveCatalog.
func New() *Store {
	return &Store{
		catalogs:        make(map[string]domain.Catalog),
		transactionByID: make(map[string]*domain.Transaction),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the dev/demo operator accounts.
// Passwords come from SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD; when unset,
// dev defaults are used and a warning is logged. Production runs on postgres instead.
func seedUsers(logger zerolog.Logger) map[string]domain.UserAccount {
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_MANAGER_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logger.Warn().Msg("using default dev credentials; set SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"manager", managerPwd, domain.RoleManager},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logger.Fatal().Err(err).Str("username", u.username).Msg("hash seed password")
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store holding a demo event catalog and operator accounts.
func NewSeeded(eventID string, logger zerolog.Logger) *Store {
	logger = logger.With().Str("component", "memory-store").Logger()
	s := New()
	s.usersByUsername = seedUsers(logger)
	s.catalogs[eventID] = SeedCatalog(eventID)
	return s
}

// SeedCatalog is the demo festival bar: drinks, a cocktail volume deal, a food combo,
// a three-for-two on beer and two discounts.
func SeedCatalog(eventID string) domain.Catalog {
	price := decimal.RequireFromString
	stock := func(n int) *int { return &n }

	return domain.Catalog{
		Event: domain.Event{
			ID:           eventID,
			Name:         "Summer Festival",
			StockControl: true,
			MainCurrency: "EUR",
		},
		Categories: []domain.Category{
			{ID: "drinks", Name: "Drinks", Color: "#2d9cdb", Enabled: true, SortOrder: 1},
			{ID: "cocktails", Name: "Cocktails", Color: "#eb5757", Enabled: true, SortOrder: 2},
			{ID: "food", Name: "Food", Color: "#f2994a", Enabled: true, SortOrder: 3},
			{ID: "merch", Name: "Merchandise", Color: "#6fcf97", Enabled: true, SortOrder: 4},
		},
		Products: []domain.Product{
			{ID: "beer", Name: "Draft Beer", Price: price("5"), CategoryID: "drinks", PromoEligible: true, Active: true, Stock: stock(400), Subgroup: "tap"},
			{ID: "cider", Name: "Cider", Price: price("5"), CategoryID: "drinks", PromoEligible: true, Active: true, Stock: stock(200), Subgroup: "tap"},
			{ID: "water", Name: "Water", Price: price("2.5"), CategoryID: "drinks", Active: true},
			{ID: "mojito", Name: "Mojito", Price: price("10"), CategoryID: "cocktails", PromoEligible: true, Active: true, Stock: stock(150)},
			{ID: "spritz", Name: "Spritz", Price: price("10"), CategoryID: "cocktails", PromoEligible: true, Active: true, Stock: stock(150)},
			{ID: "old-fashioned", Name: "Old Fashioned", Price: price("13"), CategoryID: "cocktails", PromoEligible: true, Active: true, Stock: stock(80)},
			{ID: "burger", Name: "Burger", Price: price("9"), CategoryID: "food", PromoEligible: true, Active: true, Stock: stock(120)},
			{ID: "fries", Name: "Fries", Price: price("4"), CategoryID: "food", PromoEligible: true, Active: true, Stock: stock(200)},
			{ID: "tshirt", Name: "Festival T-Shirt", Price: price("25"), CategoryID: "merch", Active: true, Stock: stock(60)},
			{ID: "cup", Name: "Reusable Cup", Price: price("2"), Active: true},
		},
		Currencies: []domain.Currency{
			{Code: "EUR", Symbol: "€", Rate: price("1"), IsMain: true, Enabled: true},
			{Code: "USD", Symbol: "$", Rate: price("1.08"), Enabled: true},
			{Code: "GBP", Symbol: "£", Rate: price("0.85"), Enabled: true},
			{Code: "CHF", Symbol: "CHF", Rate: price("0.95")},
		},
		Promotions: []domain.Promotion{
			{
				ID: "cocktail-volume", Name: "Cocktail rounds", Mode: domain.PromotionVolume, Active: true, SortOrder: 1,
				CategoryID:      "cocktails",
				Tiers:           map[int]decimal.Decimal{2: price("18"), 3: price("25")},
				MaxQuantity:     3,
				IncrementalLow:  price("8"),
				IncrementalHigh: price("7.5"),
				StarSurcharges:  map[string]decimal.Decimal{"old-fashioned": price("2")},
			},
			{
				ID: "burger-menu", Name: "Burger menu", Mode: domain.PromotionCombo, Active: true, SortOrder: 2,
				ProductIDs: []string{"burger", "fries"},
				ComboPrice: price("11"),
			},
			{
				ID: "tap-3for2", Name: "Three for two on tap", Mode: domain.PromotionNForM, Active: true, SortOrder: 3,
				ProductIDs: []string{"beer", "cider"},
				N:          3,
				M:          2,
			},
			{
				ID: "crew", Name: "Crew discount", Mode: domain.PromotionDiscount, Active: true, SortOrder: 4,
				Target:       domain.DiscountTargetTotal,
				DiscountType: domain.DiscountPercentage,
				Value:        price("20"),
			},
			{
				ID: "merch-5off", Name: "Merch five off", Mode: domain.PromotionDiscount, Active: true, SortOrder: 5,
				Target:       domain.DiscountTargetSelectedProducts,
				DiscountType: domain.DiscountFixed,
				Value:        price("5"),
				ProductIDs:   []string{"tshirt"},
			},
		},
	}
}

// SaveCatalog replaces the snapshot of catalog.Event.ID.
func (s *Store) SaveCatalog(catalog domain.Catalog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalogs[catalog.Event.ID] = cloneCatalog(catalog)
}

func (s *Store) LoadCatalog(_ context.Context, eventID string) (domain.Catalog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	catalog, ok := s.catalogs[eventID]
	if !ok {
		return domain.Catalog{}, store.ErrNotFound
	}
	return cloneCatalog(catalog), nil
}

func (s *Store) UpdateCurrencyRates(_ context.Context, eventID string, rates map[string]decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	catalog, ok := s.catalogs[eventID]
	if !ok {
		return store.ErrNotFound
	}
	currencies := slices.Clone(catalog.Currencies)
	for i, c := range currencies {
		if c.IsMain {
			continue
		}
		rate, ok := rates[strings.ToUpper(c.Code)]
		if !ok || !rate.IsPositive() {
			continue
		}
		currencies[i].Rate = rate
	}
	catalog.Currencies = currencies
	s.catalogs[eventID] = catalog
	return nil
}

func (s *Store) AppendTransaction(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(tx.Items) == 0 || len(tx.Payments) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if _, exists := s.transactionByID[tx.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	saved := cloneTransaction(&tx)
	s.transactions = append(s.transactions, saved)
	s.transactionByID[saved.ID] = saved
	return cloneTransaction(saved), nil
}

func (s *Store) FindTransactionByID(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

// ListTransactions returns the newest transactions first.
func (s *Store) ListTransactions(_ context.Context, filter store.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := clampLimit(filter.Limit)
	out := make([]domain.Transaction, 0, min(limit, len(s.transactions)))
	for i := len(s.transactions) - 1; i >= 0 && len(out) < limit; i-- {
		tx := s.transactions[i]
		if filter.EventID != "" && tx.EventID != filter.EventID {
			continue
		}
		if filter.TerminalID != "" && tx.TerminalID != filter.TerminalID {
			continue
		}
		out = append(out, *cloneTransaction(tx))
	}
	return out, nil
}

func (s *Store) DecrementStock(_ context.Context, productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if qty <= 0 {
		return store.ErrInvalidTransaction
	}
	found := false
	for eventID, catalog := range s.catalogs {
		for i, p := range catalog.Products {
			if p.ID != productID {
				continue
			}
			found = true
			if p.Stock == nil {
				continue
			}
			left := max(*p.Stock-qty, 0)
			catalog.Products[i].Stock = &left
		}
		s.catalogs[eventID] = catalog
	}
	if !found {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidTransaction
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}

func cloneCatalog(src domain.Catalog) domain.Catalog {
	dup := src
	dup.Categories = slices.Clone(src.Categories)
	dup.Currencies = slices.Clone(src.Currencies)
	dup.Promotions = slices.Clone(src.Promotions)
	dup.Products = make([]domain.Product, len(src.Products))
	for i, p := range src.Products {
		if p.Stock != nil {
			n := *p.Stock
			p.Stock = &n
		}
		dup.Products[i] = p
	}
	return dup
}

func cloneTransaction(src *domain.Transaction) *domain.Transaction {
	if src == nil {
		return nil
	}
	dup := *src
	dup.Items = slices.Clone(src.Items)
	dup.Payments = slices.Clone(src.Payments)
	dup.ProviderReferences = slices.Clone(src.ProviderReferences)
	return &dup
}
