package currency

import (
	"strings"

	"github.com/shopspring/decimal"

	"kasirinaja/checkout/internal/domain"
)

// Convert expresses an amount in main currency units in a currency with the given rate.
// The product is exact; rounding only ever happens at the end of a total computation.
func Convert(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate)
}

// ToMain is the inverse of Convert. A zero rate leaves the amount unchanged.
func ToMain(amount, rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() {
		return amount
	}
	return amount.Div(rate)
}

// Rebase re-expresses every rate relative to newMain. The input slice is never modified.
// An unknown code or a zero rate on the new main currency returns the input as is.
func Rebase(currencies []domain.Currency, newMain string) []domain.Currency {
	newMain = strings.ToUpper(strings.TrimSpace(newMain))
	var pivot decimal.Decimal
	found := false
	for _, c := range currencies {
		if strings.EqualFold(c.Code, newMain) {
			pivot = c.Rate
			found = true
			break
		}
	}
	if !found || pivot.IsZero() {
		return currencies
	}

	out := make([]domain.Currency, len(currencies))
	for i, c := range currencies {
		c.Rate = c.Rate.Div(pivot)
		c.IsMain = strings.EqualFold(c.Code, newMain)
		if c.IsMain {
			c.Rate = decimal.NewFromInt(1)
		}
		out[i] = c
	}
	return out
}

// Table indexes the enabled currencies of a snapshot by code.
type Table struct {
	byCode map[string]domain.Currency
	main   domain.Currency
}

func NewTable(currencies []domain.Currency) Table {
	t := Table{byCode: make(map[string]domain.Currency, len(currencies))}
	for _, c := range currencies {
		if c.IsMain {
			t.main = c
			t.byCode[strings.ToUpper(c.Code)] = c
			continue
		}
		if !c.Enabled {
			continue
		}
		t.byCode[strings.ToUpper(c.Code)] = c
	}
	return t
}

func (t Table) Main() domain.Currency {
	return t.main
}

func (t Table) Lookup(code string) (domain.Currency, bool) {
	c, ok := t.byCode[strings.ToUpper(strings.TrimSpace(code))]
	return c, ok
}

// Rate returns the rate for code. An empty code means the main currency.
func (t Table) Rate(code string) (decimal.Decimal, bool) {
	if strings.TrimSpace(code) == "" {
		return decimal.NewFromInt(1), true
	}
	c, ok := t.Lookup(code)
	if !ok {
		return decimal.Zero, false
	}
	if c.IsMain {
		return decimal.NewFromInt(1), true
	}
	return c.Rate, true
}
