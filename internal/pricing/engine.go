package pricing

import (
	"github.com/shopspring/decimal"

	"kasirinaja/checkout/internal/currency"
	"kasirinaja/checkout/internal/domain"
	"kasirinaja/checkout/internal/promotion"
)

// Request is the state one computation prices. It is read, never written.
type Request struct {
	Catalog         domain.Catalog
	Cart            map[string]int
	Override        domain.Override
	ActiveDiscounts map[string]bool
	// Rate of the quote currency; zero means main currency.
	Rate decimal.Decimal
}

// Engine answers pricing questions about one Request.
// Build a fresh Engine for every computation; it holds no state worth reusing.
type Engine struct {
	req    Request
	rate   decimal.Decimal
	result promotion.Result
}

func New(req Request) *Engine {
	rate := req.Rate
	if rate.IsZero() {
		rate = decimal.NewFromInt(1)
	}

	var categoryOverrides map[string]decimal.Decimal
	if req.Override.Kind() == domain.OverrideCategory {
		categoryOverrides = req.Override.Categories()
	}
	result := promotion.Evaluate(promotion.Input{
		Cart:              req.Cart,
		Products:          req.Catalog.Products,
		Categories:        req.Catalog.Categories,
		Promotions:        req.Catalog.Promotions,
		Rate:              rate,
		ActiveDiscounts:   req.ActiveDiscounts,
		CategoryOverrides: categoryOverrides,
		RoundUp:           req.Catalog.Event.RoundUp,
	})
	return &Engine{req: req, rate: rate, result: result}
}

func (e *Engine) Rate() decimal.Decimal {
	return e.rate
}

// Result exposes the promotion breakdown behind the totals.
func (e *Engine) Result() promotion.Result {
	return e.result
}

// DerivedTotal is the authoritative amount due. A general override replaces evaluation entirely.
func (e *Engine) DerivedTotal() decimal.Decimal {
	if amount, ok := e.req.Override.General(); ok {
		return currency.Convert(amount, e.rate)
	}
	return e.result.Total
}

// PreDiscountTotal is the evaluated sum before discount deductions and round-up.
func (e *Engine) PreDiscountTotal() decimal.Decimal {
	if amount, ok := e.req.Override.General(); ok {
		return currency.Convert(amount, e.rate)
	}
	return e.result.PreDiscount
}

func (e *Engine) NaturalTotal() decimal.Decimal {
	return e.result.NaturalTotal()
}

func (e *Engine) CategorySubtotal(categoryID string) decimal.Decimal {
	if amount, ok := e.req.Override.Category(categoryID); ok {
		return currency.Convert(amount, e.rate)
	}
	return e.result.CategorySubtotal(categoryID)
}

// ProratedUnitPrice is the unit price a line is booked at, before discounts.
func (e *Engine) ProratedUnitPrice(productID string, qty int) decimal.Decimal {
	natural := e.result.NaturalUnitPrice(productID)
	if amount, ok := e.req.Override.General(); ok {
		return promotion.Ratio(natural, currency.Convert(amount, e.rate), e.result.NaturalTotal())
	}
	return e.result.UnitPrice(productID)
}

// DiscountAdjustedUnitPrice applies active discounts to one line booked at base per unit.
// Total discounts spread over lines by their share of the pre-discount total.
func (e *Engine) DiscountAdjustedUnitPrice(productID string, qty int, base decimal.Decimal) decimal.Decimal {
	if qty <= 0 {
		return base
	}
	if _, ok := e.req.Override.General(); ok {
		return base
	}
	res := e.result
	if res.TotalDeduction.IsZero() && res.ProductDeduction.IsZero() {
		return base
	}

	units := decimal.NewFromInt(int64(qty))
	line := base.Mul(units)
	adjusted := line.Sub(res.ProductDeductions[productID])
	if !res.TotalDeduction.IsZero() && !res.PreDiscount.IsZero() {
		adjusted = adjusted.Sub(res.TotalDeduction.Mul(line).Div(res.PreDiscount))
	}
	if adjusted.IsNegative() {
		adjusted = decimal.Zero
	}
	return adjusted.Div(units)
}

type Line struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	CategoryID  string          `json:"category_id,omitempty"`
	Subgroup    string          `json:"subgroup,omitempty"`
	Qty         int             `json:"qty"`
	Natural     decimal.Decimal `json:"natural_unit_price"`
	Prorated    decimal.Decimal `json:"prorated_unit_price"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// Lines breaks the cart down into booked lines, ordered by product ID.
func (e *Engine) Lines() []Line {
	names := make(map[string]domain.Product, len(e.req.Catalog.Products))
	for _, p := range e.req.Catalog.Products {
		names[p.ID] = p
	}

	ids := e.result.CartIDs()
	lines := make([]Line, 0, len(ids))
	for _, id := range ids {
		qty := e.result.Qty(id)
		p := names[id]
		prorated := e.ProratedUnitPrice(id, qty)
		unit := e.DiscountAdjustedUnitPrice(id, qty, prorated)
		lines = append(lines, Line{
			ProductID:   id,
			ProductName: p.Name,
			CategoryID:  p.CategoryID,
			Subgroup:    p.Subgroup,
			Qty:         qty,
			Natural:     e.result.NaturalUnitPrice(id),
			Prorated:    prorated,
			UnitPrice:   unit,
			Subtotal:    unit.Mul(decimal.NewFromInt(int64(qty))),
		})
	}
	e.spreadRoundUp(lines)
	return lines
}

// spreadRoundUp adds the round-up gap to the lines by their share of the sum,
// so booked lines add up to the rounded total.
func (e *Engine) spreadRoundUp(lines []Line) {
	if !e.req.Catalog.Event.RoundUp {
		return
	}
	if _, ok := e.req.Override.General(); ok {
		return
	}
	sum := decimal.Zero
	for _, line := range lines {
		sum = sum.Add(line.Subtotal)
	}
	gap := e.result.Total.Sub(sum)
	if !gap.IsPositive() || !sum.IsPositive() {
		return
	}
	for i := range lines {
		units := decimal.NewFromInt(int64(lines[i].Qty))
		subtotal := lines[i].Subtotal.Add(gap.Mul(lines[i].Subtotal).Div(sum))
		lines[i].UnitPrice = subtotal.Div(units)
		lines[i].Subtotal = lines[i].UnitPrice.Mul(units)
	}
}
