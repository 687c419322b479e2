package promotion

import "github.com/shopspring/decimal"

// Ratio scales natural by target/baseline, falling back to natural on a zero baseline.
func Ratio(natural, target, baseline decimal.Decimal) decimal.Decimal {
	if baseline.IsZero() {
		return natural
	}
	return natural.Mul(target).Div(baseline)
}

// NaturalUnitPrice is the product price converted at the evaluation rate.
func (r Result) NaturalUnitPrice(productID string) decimal.Decimal {
	if r.ix == nil {
		return decimal.Zero
	}
	return r.ix.natural(productID)
}

// NaturalTotal sums qty × converted price over the whole cart, ignoring every promotion.
func (r Result) NaturalTotal() decimal.Decimal {
	total := decimal.Zero
	if r.ix == nil {
		return total
	}
	for _, id := range r.ix.cartIDs {
		total = total.Add(r.ix.lineNatural(id))
	}
	return total
}

// CartIDs lists the priced cart entries in a stable order.
func (r Result) CartIDs() []string {
	if r.ix == nil {
		return nil
	}
	return append([]string(nil), r.ix.cartIDs...)
}

func (r Result) Qty(productID string) int {
	if r.ix == nil {
		return 0
	}
	return r.ix.cart[productID]
}

func (r Result) CategoryOf(productID string) (string, bool) {
	if r.ix == nil {
		return "", false
	}
	return r.ix.category(productID)
}

// CategorySubtotal is step three of the evaluation for one category; empty categories price at zero.
func (r Result) CategorySubtotal(categoryID string) decimal.Decimal {
	if cr, ok := r.Categories[categoryID]; ok {
		return cr.Subtotal
	}
	return decimal.Zero
}

// UnitPrice is the effective per-unit price of a product before discounts.
// A category override wins, then the claiming combo or group, then the category volume promotion.
func (r Result) UnitPrice(productID string) decimal.Decimal {
	if r.ix == nil {
		return decimal.Zero
	}
	p, ok := r.ix.products[productID]
	if !ok {
		return decimal.Zero
	}
	natural := r.ix.natural(productID)

	catID, hasCategory := r.ix.category(productID)
	var cr CategoryResult
	if hasCategory {
		cr, hasCategory = r.Categories[catID]
	}
	if hasCategory && cr.Overridden {
		return Ratio(natural, cr.Subtotal, cr.Natural)
	}

	if claim, ok := r.Claims[productID]; ok {
		switch claim.Kind {
		case ClaimCombo:
			c := r.Combos[claim.Index]
			return Ratio(natural, c.Price, c.Natural)
		case ClaimGroup:
			g := r.Groups[claim.Index]
			return Ratio(natural, g.Cost, g.Natural)
		}
	}

	if hasCategory && cr.VolumePromotionID != "" && p.PromoEligible {
		return Ratio(natural, cr.PromoPrice, cr.EligibleNatural)
	}
	return natural
}
