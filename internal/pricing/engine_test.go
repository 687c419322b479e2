package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kasirinaja/checkout/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var epsilon = d("0.0000001")

func near(t *testing.T, want, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, want.Sub(got).Abs().LessThan(epsilon), "want %s got %s", want, got)
}

func fixtureCatalog() domain.Catalog {
	return domain.Catalog{
		Event: domain.Event{ID: "evt", RoundUp: true, MainCurrency: "EUR"},
		Products: []domain.Product{
			{ID: "beer", Name: "Beer", Price: d("3.5"), CategoryID: "drinks", PromoEligible: true, Active: true, Subgroup: "tap"},
			{ID: "wine", Name: "Wine", Price: d("4.25"), CategoryID: "drinks", PromoEligible: true, Active: true},
			{ID: "burger", Name: "Burger", Price: d("8"), CategoryID: "food", Active: true},
			{ID: "fries", Name: "Fries", Price: d("3"), CategoryID: "food", Active: true},
			{ID: "pin", Name: "Pin", Price: d("1.2"), Active: true},
		},
		Categories: []domain.Category{
			{ID: "drinks", Name: "Drinks", Enabled: true, SortOrder: 1},
			{ID: "food", Name: "Food", Enabled: true, SortOrder: 2},
		},
		Currencies: []domain.Currency{{Code: "EUR", Rate: d("1"), IsMain: true, Enabled: true}},
	}
}

func fixtureCart() map[string]int {
	return map[string]int{"beer": 3, "wine": 1, "burger": 2, "fries": 1, "pin": 2}
}

func TestOverrideKindsAreExclusive(t *testing.T) {
	var o domain.Override
	assert.Equal(t, domain.OverrideNone, o.Kind())

	o = o.WithCategory("drinks", d("10")).WithCategory("food", d("12"))
	assert.Equal(t, domain.OverrideCategory, o.Kind())
	assert.Len(t, o.Categories(), 2)

	o = o.WithGeneral(d("40"))
	assert.Equal(t, domain.OverrideGeneral, o.Kind())
	assert.Empty(t, o.Categories())
	_, ok := o.Category("drinks")
	assert.False(t, ok)

	o = o.WithCategory("food", d("5"))
	_, ok = o.General()
	assert.False(t, ok)
	assert.Len(t, o.Categories(), 1)

	assert.Equal(t, domain.OverrideNone, o.WithoutCategory("food").Kind())
	assert.Equal(t, domain.OverrideNone, o.Cleared().Kind())
}

func TestDerivedTotalWithoutOverrides(t *testing.T) {
	e := New(Request{Catalog: fixtureCatalog(), Cart: fixtureCart()})
	// 10.5 + 4.25 + 16 + 3 + 2.4 = 36.15, rounded up by the event
	assert.True(t, e.NaturalTotal().Equal(d("36.15")))
	assert.True(t, e.DerivedTotal().Equal(d("37")))
	assert.True(t, e.CategorySubtotal("drinks").Equal(d("14.75")))
}

func TestGeneralOverrideBypassesEvaluationAndProratesExactly(t *testing.T) {
	cart := fixtureCart()
	e := New(Request{
		Catalog:  fixtureCatalog(),
		Cart:     cart,
		Override: domain.Override{}.WithGeneral(d("30")),
	})

	assert.True(t, e.DerivedTotal().Equal(d("30")), "no round-up under a general override")

	sum := decimal.Zero
	for id, qty := range cart {
		sum = sum.Add(e.ProratedUnitPrice(id, qty).Mul(decimal.NewFromInt(int64(qty))))
	}
	near(t, d("30"), sum)
}

func TestCategoryOverrideProratesWithinCategory(t *testing.T) {
	e := New(Request{
		Catalog:  fixtureCatalog(),
		Cart:     fixtureCart(),
		Override: domain.Override{}.WithCategory("food", d("15")),
	})

	assert.True(t, e.CategorySubtotal("food").Equal(d("15")))
	food := e.ProratedUnitPrice("burger", 2).Mul(d("2")).Add(e.ProratedUnitPrice("fries", 1))
	near(t, d("15"), food)
	assert.True(t, e.ProratedUnitPrice("beer", 3).Equal(d("3.5")))
	// 14.75 + 15 + 2.4 = 32.15
	assert.True(t, e.DerivedTotal().Equal(d("33")))
}

func TestDiscountAdjustedLinesSumToTotal(t *testing.T) {
	catalog := fixtureCatalog()
	catalog.Event.RoundUp = false
	catalog.Promotions = []domain.Promotion{
		{ID: "ten", Mode: domain.PromotionDiscount, Active: true, Target: domain.DiscountTargetTotal, DiscountType: domain.DiscountPercentage, Value: d("10")},
		{ID: "burger-off", Mode: domain.PromotionDiscount, Active: true, Target: domain.DiscountTargetSelectedProducts, DiscountType: domain.DiscountFixed, Value: d("1"), ProductIDs: []string{"burger"}},
	}
	e := New(Request{
		Catalog:         catalog,
		Cart:            fixtureCart(),
		ActiveDiscounts: map[string]bool{"ten": true, "burger-off": true},
	})

	// 36.15 - 3.615 - 2
	assert.True(t, e.DerivedTotal().Equal(d("30.535")), "got %s", e.DerivedTotal())

	sum := decimal.Zero
	for _, line := range e.Lines() {
		sum = sum.Add(line.Subtotal)
	}
	near(t, e.DerivedTotal(), sum)
}

func TestRoundedUpLinesSumToRoundedTotal(t *testing.T) {
	e := New(Request{Catalog: fixtureCatalog(), Cart: map[string]int{"beer": 1}})
	assert.True(t, e.DerivedTotal().Equal(d("4")))
	lines := e.Lines()
	require.Len(t, lines, 1)
	assert.True(t, lines[0].UnitPrice.Equal(d("4")), "got %s", lines[0].UnitPrice)
	assert.True(t, lines[0].Prorated.Equal(d("3.5")))

	e = New(Request{Catalog: fixtureCatalog(), Cart: fixtureCart()})
	sum := decimal.Zero
	for _, line := range e.Lines() {
		sum = sum.Add(line.Subtotal)
	}
	near(t, d("37"), sum)
}

func TestDiscountAdjustedIsNoopUnderGeneralOverride(t *testing.T) {
	catalog := fixtureCatalog()
	catalog.Promotions = []domain.Promotion{
		{ID: "ten", Mode: domain.PromotionDiscount, Active: true, Target: domain.DiscountTargetTotal, DiscountType: domain.DiscountPercentage, Value: d("10")},
	}
	e := New(Request{
		Catalog:         catalog,
		Cart:            fixtureCart(),
		Override:        domain.Override{}.WithGeneral(d("20")),
		ActiveDiscounts: map[string]bool{"ten": true},
	})
	assert.True(t, e.DiscountAdjustedUnitPrice("beer", 3, d("2")).Equal(d("2")))
}

func TestLinesCarryNamesAndSubgroups(t *testing.T) {
	e := New(Request{Catalog: fixtureCatalog(), Cart: map[string]int{"beer": 2}, Rate: d("2")})
	lines := e.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "Beer", lines[0].ProductName)
	assert.Equal(t, "tap", lines[0].Subgroup)
	assert.True(t, lines[0].UnitPrice.Equal(d("7")))
	assert.True(t, e.DerivedTotal().Equal(d("14")))
}

func TestZeroNaturalBaselineFallsBackToNatural(t *testing.T) {
	catalog := fixtureCatalog()
	catalog.Products = append(catalog.Products, domain.Product{ID: "free", Name: "Free", Price: decimal.Zero, Active: true})
	e := New(Request{
		Catalog:  catalog,
		Cart:     map[string]int{"free": 2},
		Override: domain.Override{}.WithGeneral(d("5")),
	})
	assert.True(t, e.ProratedUnitPrice("free", 2).IsZero())
}
