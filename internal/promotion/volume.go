package promotion

import (
	"github.com/shopspring/decimal"

	"kasirinaja/checkout/internal/domain"
)

const volumeSlopeBreak = 9

// VolumePrice prices q promo-eligible units under a volume promotion, in main currency.
// Below two units the price is zero so callers fall back to natural pricing.
// ok is false when the tier table cannot price q.
func VolumePrice(promo domain.Promotion, q int) (decimal.Decimal, bool) {
	if q < 2 {
		return decimal.Zero, true
	}
	if promo.MaxQuantity < 2 {
		return decimal.Zero, false
	}
	if q <= promo.MaxQuantity {
		price, ok := promo.Tiers[q]
		return price, ok
	}

	top, ok := promo.Tiers[promo.MaxQuantity]
	if !ok {
		return decimal.Zero, false
	}
	// The low slope stops at the break; a table reaching past it uses only the high slope.
	lowUnits := max(min(q, volumeSlopeBreak)-promo.MaxQuantity, 0)
	highUnits := max(q-max(volumeSlopeBreak, promo.MaxQuantity), 0)

	price := top.
		Add(promo.IncrementalLow.Mul(decimal.NewFromInt(int64(lowUnits)))).
		Add(promo.IncrementalHigh.Mul(decimal.NewFromInt(int64(highUnits))))
	return price, true
}
