package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/store"
	"kasirinaja/checkout/internal/xid"
)

//go:embed schema.sql
var schema string

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates missing tables. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// promotionRules holds the mode-specific fields stored in promotions.rules.
type promotionRules struct {
	CategoryID      string                     `json:"category_id,omitempty"`
	Tiers           map[int]decimal.Decimal    `json:"tiers,omitempty"`
	MaxQuantity     int                        `json:"max_quantity,omitempty"`
	IncrementalLow  decimal.Decimal            `json:"incremental_low"`
	IncrementalHigh decimal.Decimal            `json:"incremental_high"`
	StarSurcharges  map[string]decimal.Decimal `json:"star_surcharges,omitempty"`
	ProductIDs      []string                   `json:"product_ids,omitempty"`
	ComboPrice      decimal.Decimal            `json:"combo_price"`
	N               int                        `json:"n,omitempty"`
	M               int                        `json:"m,omitempty"`
	Target          domain.DiscountTarget      `json:"target,omitempty"`
	DiscountType    domain.DiscountType        `json:"discount_type,omitempty"`
	Value           decimal.Decimal            `json:"value"`
}

func rulesOf(p domain.Promotion) promotionRules {
	return promotionRules{
		CategoryID:      p.CategoryID,
		Tiers:           p.Tiers,
		MaxQuantity:     p.MaxQuantity,
		IncrementalLow:  p.IncrementalLow,
		IncrementalHigh: p.IncrementalHigh,
		StarSurcharges:  p.StarSurcharges,
		ProductIDs:      p.ProductIDs,
		ComboPrice:      p.ComboPrice,
		N:               p.N,
		M:               p.M,
		Target:          p.Target,
		DiscountType:    p.DiscountType,
		Value:           p.Value,
	}
}

func (r promotionRules) apply(p *domain.Promotion) {
	p.CategoryID = r.CategoryID
	p.Tiers = r.Tiers
	p.MaxQuantity = r.MaxQuantity
	p.IncrementalLow = r.IncrementalLow
	p.IncrementalHigh = r.IncrementalHigh
	p.StarSurcharges = r.StarSurcharges
	p.ProductIDs = r.ProductIDs
	p.ComboPrice = r.ComboPrice
	p.N = r.N
	p.M = r.M
	p.Target = r.Target
	p.DiscountType = r.DiscountType
	p.Value = r.Value
}

// SaveCatalog upserts a whole event snapshot in one transaction.
func (s *Store) SaveCatalog(ctx context.Context, catalog domain.Catalog) error {
	if strings.TrimSpace(catalog.Event.ID) == "" {
		return store.ErrInvalidTransaction
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	ev := catalog.Event
	if _, err := pgTx.ExecContext(ctx, `
		INSERT INTO events (id, name, round_up, stock_control, main_currency)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, round_up = EXCLUDED.round_up,
			stock_control = EXCLUDED.stock_control, main_currency = EXCLUDED.main_currency
	`, ev.ID, ev.Name, ev.RoundUp, ev.StockControl, ev.MainCurrency); err != nil {
		return fmt.Errorf("upsert event: %w", err)
	}

	for _, c := range catalog.Categories {
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO categories (event_id, id, name, color, enabled, sort_order)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (event_id, id) DO UPDATE
			SET name = EXCLUDED.name, color = EXCLUDED.color, enabled = EXCLUDED.enabled, sort_order = EXCLUDED.sort_order
		`, ev.ID, c.ID, c.Name, c.Color, c.Enabled, c.SortOrder); err != nil {
			return fmt.Errorf("upsert category %s: %w", c.ID, err)
		}
	}

	for _, p := range catalog.Products {
		var stock any
		if p.Stock != nil {
			stock = *p.Stock
		}
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO products (event_id, id, name, price, category_id, promo_eligible, active, deleted, stock, subgroup)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (event_id, id) DO UPDATE
			SET name = EXCLUDED.name, price = EXCLUDED.price, category_id = EXCLUDED.category_id,
				promo_eligible = EXCLUDED.promo_eligible, active = EXCLUDED.active, deleted = EXCLUDED.deleted,
				stock = EXCLUDED.stock, subgroup = EXCLUDED.subgroup
		`, ev.ID, p.ID, p.Name, p.Price, p.CategoryID, p.PromoEligible, p.Active, p.Deleted, stock, p.Subgroup); err != nil {
			return fmt.Errorf("upsert product %s: %w", p.ID, err)
		}
	}

	for _, c := range catalog.Currencies {
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO currencies (event_id, code, symbol, rate, is_main, enabled)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (event_id, code) DO UPDATE
			SET symbol = EXCLUDED.symbol, rate = EXCLUDED.rate, is_main = EXCLUDED.is_main, enabled = EXCLUDED.enabled
		`, ev.ID, strings.ToUpper(c.Code), c.Symbol, c.Rate, c.IsMain, c.Enabled); err != nil {
			return fmt.Errorf("upsert currency %s: %w", c.Code, err)
		}
	}

	for _, p := range catalog.Promotions {
		rules, err := json.Marshal(rulesOf(p))
		if err != nil {
			return err
		}
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO promotions (event_id, id, name, mode, active, deleted, sort_order, rules)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (event_id, id) DO UPDATE
			SET name = EXCLUDED.name, mode = EXCLUDED.mode, active = EXCLUDED.active,
				deleted = EXCLUDED.deleted, sort_order = EXCLUDED.sort_order, rules = EXCLUDED.rules
		`, ev.ID, p.ID, p.Name, string(p.Mode), p.Active, p.Deleted, p.SortOrder, rules); err != nil {
			return fmt.Errorf("upsert promotion %s: %w", p.ID, err)
		}
	}

	return pgTx.Commit()
}

func (s *Store) LoadCatalog(ctx context.Context, eventID string) (domain.Catalog, error) {
	var catalog domain.Catalog
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, round_up, stock_control, main_currency
		FROM events
		WHERE id = $1
	`, eventID).Scan(&catalog.Event.ID, &catalog.Event.Name, &catalog.Event.RoundUp, &catalog.Event.StockControl, &catalog.Event.MainCurrency)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Catalog{}, store.ErrNotFound
		}
		return domain.Catalog{}, err
	}

	if catalog.Categories, err = s.loadCategories(ctx, eventID); err != nil {
		return domain.Catalog{}, err
	}
	if catalog.Products, err = s.loadProducts(ctx, eventID); err != nil {
		return domain.Catalog{}, err
	}
	if catalog.Currencies, err = s.loadCurrencies(ctx, eventID); err != nil {
		return domain.Catalog{}, err
	}
	if catalog.Promotions, err = s.loadPromotions(ctx, eventID); err != nil {
		return domain.Catalog{}, err
	}
	return catalog, nil
}

func (s *Store) loadCategories(ctx context.Context, eventID string) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, color, enabled, sort_order
		FROM categories
		WHERE event_id = $1
		ORDER BY sort_order, id
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Color, &c.Enabled, &c.SortOrder); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *Store) loadProducts(ctx context.Context, eventID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, category_id, promo_eligible, active, deleted, stock, subgroup
		FROM products
		WHERE event_id = $1
		ORDER BY id
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		var stock sql.NullInt64
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.CategoryID, &p.PromoEligible, &p.Active, &p.Deleted, &stock, &p.Subgroup); err != nil {
			return nil, err
		}
		if stock.Valid {
			n := int(stock.Int64)
			p.Stock = &n
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) loadCurrencies(ctx context.Context, eventID string) ([]domain.Currency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, symbol, rate, is_main, enabled
		FROM currencies
		WHERE event_id = $1
		ORDER BY is_main DESC, code
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	currencies := make([]domain.Currency, 0, 8)
	for rows.Next() {
		var c domain.Currency
		if err := rows.Scan(&c.Code, &c.Symbol, &c.Rate, &c.IsMain, &c.Enabled); err != nil {
			return nil, err
		}
		currencies = append(currencies, c)
	}
	return currencies, rows.Err()
}

func (s *Store) loadPromotions(ctx context.Context, eventID string) ([]domain.Promotion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, mode, active, deleted, sort_order, rules
		FROM promotions
		WHERE event_id = $1
		ORDER BY sort_order, id
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	promotions := make([]domain.Promotion, 0, 16)
	for rows.Next() {
		var p domain.Promotion
		var mode string
		var raw []byte
		if err := rows.Scan(&p.ID, &p.Name, &mode, &p.Active, &p.Deleted, &p.SortOrder, &raw); err != nil {
			return nil, err
		}
		p.Mode = domain.PromotionMode(mode)
		var rules promotionRules
		if err := json.Unmarshal(raw, &rules); err != nil {
			return nil, fmt.Errorf("decode rules of promotion %s: %w", p.ID, err)
		}
		rules.apply(&p)
		promotions = append(promotions, p)
	}
	return promotions, rows.Err()
}

func (s *Store) UpdateCurrencyRates(ctx context.Context, eventID string, rates map[string]decimal.Decimal) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, eventID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	for code, rate := range rates {
		if !rate.IsPositive() {
			continue
		}
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE currencies
			SET rate = $3
			WHERE event_id = $1 AND code = $2 AND is_main = false
		`, eventID, strings.ToUpper(code), rate); err != nil {
			return fmt.Errorf("update rate %s: %w", code, err)
		}
	}
	return pgTx.Commit()
}

func (s *Store) AppendTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	if len(tx.Items) == 0 || len(tx.Payments) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	if tx.ProviderReferences == nil {
		tx.ProviderReferences = []string{}
	}

	payments, err := json.Marshal(tx.Payments)
	if err != nil {
		return nil, err
	}
	refs, err := json.Marshal(tx.ProviderReferences)
	if err != nil {
		return nil, err
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if _, err := pgTx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, event_id, terminal_id, total, currency, status,
			receipt_email, note, payments, provider_references, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, tx.ID, tx.EventID, tx.TerminalID, tx.Total, tx.Currency, tx.Status,
		tx.ReceiptEmail, tx.Note, payments, refs, tx.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidTransaction
		}
		return nil, err
	}

	for i, item := range tx.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidTransaction
		}
		if _, err := pgTx.ExecContext(ctx, `
			INSERT INTO transaction_items (transaction_id, line_no, product_id, product_name, qty, unit_price, subgroup)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, tx.ID, i+1, item.ProductID, item.ProductName, item.Qty, item.UnitPrice, item.Subgroup); err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	saved := tx
	return &saved, nil
}

const transactionColumns = `
	id, event_id, terminal_id, total, currency, status,
	receipt_email, note, payments, provider_references, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var tx domain.Transaction
	var payments, refs []byte
	if err := row.Scan(
		&tx.ID,
		&tx.EventID,
		&tx.TerminalID,
		&tx.Total,
		&tx.Currency,
		&tx.Status,
		&tx.ReceiptEmail,
		&tx.Note,
		&payments,
		&refs,
		&tx.CreatedAt,
	); err != nil {
		return domain.Transaction{}, err
	}
	if err := json.Unmarshal(payments, &tx.Payments); err != nil {
		return domain.Transaction{}, fmt.Errorf("decode payments of %s: %w", tx.ID, err)
	}
	if err := json.Unmarshal(refs, &tx.ProviderReferences); err != nil {
		return domain.Transaction{}, fmt.Errorf("decode references of %s: %w", tx.ID, err)
	}
	tx.CreatedAt = tx.CreatedAt.UTC()
	return tx, nil
}

func (s *Store) FindTransactionByID(ctx context.Context, id string) (*domain.Transaction, error) {
	tx, err := scanTransaction(s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if tx.Items, err = s.loadItems(ctx, tx.ID); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]domain.Transaction, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE ($1 = '' OR event_id = $1) AND ($2 = '' OR terminal_id = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, filter.EventID, filter.TerminalID, limit)
	if err != nil {
		return nil, err
	}

	txs := make([]domain.Transaction, 0, limit)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range txs {
		if txs[i].Items, err = s.loadItems(ctx, txs[i].ID); err != nil {
			return nil, err
		}
	}
	return txs, nil
}

func (s *Store) loadItems(ctx context.Context, transactionID string) ([]domain.TransactionLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, product_name, qty, unit_price, subgroup
		FROM transaction_items
		WHERE transaction_id = $1
		ORDER BY line_no ASC
	`, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.TransactionLine, 0, 8)
	for rows.Next() {
		var item domain.TransactionLine
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Qty, &item.UnitPrice, &item.Subgroup); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) DecrementStock(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return store.ErrInvalidTransaction
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET stock = GREATEST(stock - $2, 0)
		WHERE id = $1 AND stock IS NOT NULL
	`, productID, qty)
	return err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidTransaction
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
