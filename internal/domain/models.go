package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Event struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	RoundUp      bool   `json:"round_up"`
	StockControl bool   `json:"stock_control"`
	MainCurrency string `json:"main_currency"`
}

type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	CategoryID    string          `json:"category_id,omitempty"`
	PromoEligible bool            `json:"promo_eligible"`
	Active        bool            `json:"active"`
	Deleted       bool            `json:"deleted"`
	Stock         *int            `json:"stock,omitempty"`
	Subgroup      string          `json:"subgroup,omitempty"`
}

type Category struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	Enabled   bool   `json:"enabled"`
	SortOrder int    `json:"sort_order"`
}

type Currency struct {
	Code    string          `json:"code"`
	Symbol  string          `json:"symbol"`
	Rate    decimal.Decimal `json:"rate"`
	IsMain  bool            `json:"is_main"`
	Enabled bool            `json:"enabled"`
}

type PromotionMode string

const (
	PromotionVolume   PromotionMode = "volume"
	PromotionCombo    PromotionMode = "combo"
	PromotionNForM    PromotionMode = "n_for_m"
	PromotionDiscount PromotionMode = "discount"
)

type DiscountTarget string

const (
	DiscountTargetTotal            DiscountTarget = "total"
	DiscountTargetSelectedProducts DiscountTarget = "selected_products"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type Promotion struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Mode      PromotionMode `json:"mode"`
	Active    bool          `json:"active"`
	Deleted   bool          `json:"deleted"`
	SortOrder int           `json:"sort_order"`

	// Volume
	CategoryID      string                     `json:"category_id,omitempty"`
	Tiers           map[int]decimal.Decimal    `json:"tiers,omitempty"`
	MaxQuantity     int                        `json:"max_quantity,omitempty"`
	IncrementalLow  decimal.Decimal            `json:"incremental_low"`
	IncrementalHigh decimal.Decimal            `json:"incremental_high"`
	StarSurcharges  map[string]decimal.Decimal `json:"star_surcharges,omitempty"`

	// Combo, N-for-M and product-targeted discounts
	ProductIDs []string        `json:"product_ids,omitempty"`
	ComboPrice decimal.Decimal `json:"combo_price"`
	N          int             `json:"n,omitempty"`
	M          int             `json:"m,omitempty"`

	// Discount
	Target       DiscountTarget  `json:"target,omitempty"`
	DiscountType DiscountType    `json:"discount_type,omitempty"`
	Value        decimal.Decimal `json:"value"`
}

// Live reports whether the promotion takes part in pricing at all.
func (p Promotion) Live() bool {
	return p.Active && !p.Deleted
}

// Catalog is the validated configuration snapshot a pricing computation runs against.
type Catalog struct {
	Event      Event       `json:"event"`
	Products   []Product   `json:"products"`
	Categories []Category  `json:"categories"`
	Currencies []Currency  `json:"currencies"`
	Promotions []Promotion `json:"promotions"`
}

type PaymentMethod string

const (
	MethodCard      PaymentMethod = "card"
	MethodQR        PaymentMethod = "qr"
	MethodProximity PaymentMethod = "proximity"
	MethodCash      PaymentMethod = "cash"
	MethodTransfer  PaymentMethod = "transfer"
)

// Complexity orders methods for settlement: higher settles first.
func (m PaymentMethod) Complexity() int {
	switch m {
	case MethodCard:
		return 3
	case MethodQR:
		return 2
	case MethodProximity:
		return 1
	default:
		return 0
	}
}

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCard, MethodQR, MethodProximity, MethodCash, MethodTransfer:
		return true
	default:
		return false
	}
}

type SplitEntry struct {
	Position          int             `json:"position"`
	Method            PaymentMethod   `json:"method"`
	Label             string          `json:"label,omitempty"`
	Icon              string          `json:"icon,omitempty"`
	AmountInMain      decimal.Decimal `json:"amount_in_main"`
	ChargeAmount      decimal.Decimal `json:"charge_amount"`
	CurrencyCode      string          `json:"currency_code"`
	CardSuffix        string          `json:"card_suffix,omitempty"`
	ProviderReference string          `json:"provider_reference,omitempty"`
	ProviderBacked    bool            `json:"provider_backed,omitempty"`
	CashEquivalent    bool            `json:"cash_equivalent,omitempty"`
}

// RequiresProvider reports whether the entry needs an external charge before it counts as captured.
func (e SplitEntry) RequiresProvider() bool {
	switch e.Method {
	case MethodCard, MethodQR:
		return true
	case MethodProximity:
		return e.ProviderBacked
	default:
		return false
	}
}

type TransactionLine struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Qty         int             `json:"qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subgroup    string          `json:"subgroup,omitempty"`
}

type Transaction struct {
	ID                 string            `json:"id"`
	EventID            string            `json:"event_id"`
	TerminalID         string            `json:"terminal_id"`
	Total              decimal.Decimal   `json:"total"`
	Currency           string            `json:"currency"`
	Items              []TransactionLine `json:"items"`
	Payments           []SplitEntry      `json:"payments"`
	ProviderReferences []string          `json:"provider_references,omitempty"`
	Status             string            `json:"status"`
	ReceiptEmail       string            `json:"receipt_email,omitempty"`
	Note               string            `json:"note,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
}

const (
	TxStatusPaid = "paid"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	RoleCashier = "cashier"
	RoleManager = "manager"
)

type OperatorCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type Operator struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
