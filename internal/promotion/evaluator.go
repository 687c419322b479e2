package promotion

import (
	"github.com/shopspring/decimal"

	"kasirinaja/checkout/internal/currency"
	"kasirinaja/checkout/internal/domain"
)

// Input is everything one evaluation depends on. Evaluate never mutates it.
type Input struct {
	Cart       map[string]int
	Products   []domain.Product
	Categories []domain.Category
	Promotions []domain.Promotion
	Rate       decimal.Decimal
	// ActiveDiscounts holds the discount promotions the operator opted into for this sale.
	ActiveDiscounts map[string]bool
	// CategoryOverrides are manual category subtotals in main currency.
	CategoryOverrides map[string]decimal.Decimal
	RoundUp           bool
}

type ClaimKind int

const (
	ClaimNone ClaimKind = iota
	ClaimCombo
	ClaimGroup
)

// Claim points at the combo or N-for-M group that priced a product.
type Claim struct {
	Kind  ClaimKind
	Index int
}

type ComboResult struct {
	PromotionID string
	Members     []string
	Sets        int
	Price       decimal.Decimal
	Natural     decimal.Decimal
}

type GroupResult struct {
	PromotionID string
	UnitPrice   decimal.Decimal
	Members     []string
	Qty         int
	Payable     int
	Cost        decimal.Decimal
	Natural     decimal.Decimal
}

type CategoryResult struct {
	CategoryID string
	Members    []string
	Subtotal   decimal.Decimal
	Natural    decimal.Decimal
	Overridden bool

	// Set only when a volume promotion actually priced the eligible units.
	VolumePromotionID string
	PromoPrice        decimal.Decimal
	EligibleNatural   decimal.Decimal
}

type Result struct {
	Total            decimal.Decimal
	PreDiscount      decimal.Decimal
	TotalDeduction   decimal.Decimal
	ProductDeduction decimal.Decimal
	Unassigned       decimal.Decimal

	ProductDeductions map[string]decimal.Decimal
	Combos            []ComboResult
	Groups            []GroupResult
	Categories        map[string]CategoryResult
	Claims            map[string]Claim

	ix *index
}

// Evaluate prices a cart. Precedence is combos, N-for-M, categories, unassigned, discounts, round-up.
// Malformed promotions contribute nothing instead of failing the computation.
func Evaluate(in Input) Result {
	ix := newIndex(in)
	res := Result{
		ProductDeductions: make(map[string]decimal.Decimal),
		Categories:        make(map[string]CategoryResult),
		Claims:            make(map[string]Claim),
		ix:                ix,
	}
	promos := livePromotions(in.Promotions)

	claimable := func(productID string) bool {
		if ix.cart[productID] <= 0 {
			return false
		}
		if _, claimed := res.Claims[productID]; claimed {
			return false
		}
		if catID, ok := ix.category(productID); ok {
			if _, overridden := in.CategoryOverrides[catID]; overridden {
				return false
			}
		}
		return true
	}

	for _, promo := range promos {
		if promo.Mode == domain.PromotionCombo {
			res.applyCombo(promo, claimable)
		}
	}
	for _, promo := range promos {
		if promo.Mode == domain.PromotionNForM {
			res.applyNForM(promo, claimable)
		}
	}

	byCategory := make(map[string][]string)
	for _, id := range ix.cartIDs {
		if _, claimed := res.Claims[id]; claimed {
			continue
		}
		if catID, ok := ix.category(id); ok {
			byCategory[catID] = append(byCategory[catID], id)
			continue
		}
		res.Unassigned = res.Unassigned.Add(ix.lineNatural(id))
	}
	for _, cat := range ix.ordered {
		members := byCategory[cat.ID]
		if len(members) == 0 {
			continue
		}
		override, hasOverride := in.CategoryOverrides[cat.ID]
		res.Categories[cat.ID] = ix.priceCategory(cat.ID, members, override, hasOverride)
	}

	sum := res.Unassigned
	for _, c := range res.Combos {
		sum = sum.Add(c.Price)
	}
	for _, g := range res.Groups {
		sum = sum.Add(g.Cost)
	}
	for _, cat := range ix.ordered {
		if cr, ok := res.Categories[cat.ID]; ok {
			sum = sum.Add(cr.Subtotal)
		}
	}
	res.PreDiscount = sum

	for _, promo := range promos {
		if promo.Mode == domain.PromotionDiscount && in.ActiveDiscounts[promo.ID] {
			res.applyDiscount(promo)
		}
	}

	total := sum.Sub(res.TotalDeduction).Sub(res.ProductDeduction)
	if total.IsNegative() {
		total = decimal.Zero
	}
	if in.RoundUp {
		total = total.Ceil()
	}
	res.Total = total
	return res
}

func (r *Result) applyCombo(promo domain.Promotion, claimable func(string) bool) {
	ix := r.ix
	members := ix.promoMembers(promo.ProductIDs)
	if len(members) < 2 || !promo.ComboPrice.IsPositive() {
		return
	}

	sets := 0
	for i, id := range members {
		if !claimable(id) {
			return
		}
		if qty := ix.cart[id]; i == 0 || qty < sets {
			sets = qty
		}
	}

	combo := ComboResult{
		PromotionID: promo.ID,
		Members:     members,
		Sets:        sets,
		Price:       currency.Convert(promo.ComboPrice, ix.rate).Mul(decimal.NewFromInt(int64(sets))),
	}
	for _, id := range members {
		leftover := decimal.NewFromInt(int64(ix.cart[id] - sets))
		combo.Price = combo.Price.Add(ix.natural(id).Mul(leftover))
		combo.Natural = combo.Natural.Add(ix.lineNatural(id))
		r.Claims[id] = Claim{Kind: ClaimCombo, Index: len(r.Combos)}
	}
	r.Combos = append(r.Combos, combo)
}

func (r *Result) applyNForM(promo domain.Promotion, claimable func(string) bool) {
	if promo.M < 1 || promo.N <= promo.M {
		return
	}
	ix := r.ix

	// Entries pool by converted unit price, so equally priced variants share a group.
	groups := make(map[string]*GroupResult)
	var order []string
	for _, id := range ix.promoMembers(promo.ProductIDs) {
		if !claimable(id) {
			continue
		}
		unit := ix.natural(id)
		key := unit.String()
		g, ok := groups[key]
		if !ok {
			g = &GroupResult{PromotionID: promo.ID, UnitPrice: unit}
			groups[key] = g
			order = append(order, key)
		}
		g.Members = append(g.Members, id)
		g.Qty += ix.cart[id]
	}

	for _, key := range order {
		g := groups[key]
		if g.Qty < promo.N {
			continue
		}
		g.Payable = (g.Qty/promo.N)*promo.M + g.Qty%promo.N
		g.Cost = g.UnitPrice.Mul(decimal.NewFromInt(int64(g.Payable)))
		g.Natural = g.UnitPrice.Mul(decimal.NewFromInt(int64(g.Qty)))
		for _, id := range g.Members {
			r.Claims[id] = Claim{Kind: ClaimGroup, Index: len(r.Groups)}
		}
		r.Groups = append(r.Groups, *g)
	}
}

func (ix *index) priceCategory(categoryID string, members []string, override decimal.Decimal, hasOverride bool) CategoryResult {
	cr := CategoryResult{CategoryID: categoryID, Members: members}
	for _, id := range members {
		cr.Natural = cr.Natural.Add(ix.lineNatural(id))
	}
	if hasOverride {
		cr.Overridden = true
		cr.Subtotal = currency.Convert(override, ix.rate)
		return cr
	}

	cr.Subtotal = cr.Natural
	promo, ok := ix.volume[categoryID]
	if !ok {
		return cr
	}

	eligibleQty := 0
	eligibleNatural := decimal.Zero
	otherNatural := decimal.Zero
	surcharge := decimal.Zero
	for _, id := range members {
		line := ix.lineNatural(id)
		if !ix.products[id].PromoEligible {
			otherNatural = otherNatural.Add(line)
			continue
		}
		qty := ix.cart[id]
		eligibleQty += qty
		eligibleNatural = eligibleNatural.Add(line)
		if perUnit, star := promo.StarSurcharges[id]; star {
			surcharge = surcharge.Add(perUnit.Mul(decimal.NewFromInt(int64(qty))))
		}
	}
	if eligibleQty == 0 {
		return cr
	}

	base, ok := VolumePrice(promo, eligibleQty)
	if !ok {
		return cr
	}
	// A lone star unit has no tier price but still owes its surcharge.
	promoPrice := currency.Convert(base.Add(surcharge), ix.rate)
	if promoPrice.IsZero() {
		return cr
	}

	cr.VolumePromotionID = promo.ID
	cr.PromoPrice = promoPrice
	cr.EligibleNatural = eligibleNatural
	cr.Subtotal = promoPrice.Add(otherNatural)
	return cr
}

var hundred = decimal.NewFromInt(100)

func (r *Result) applyDiscount(promo domain.Promotion) {
	if !promo.Value.IsPositive() {
		return
	}
	ix := r.ix

	switch promo.Target {
	case domain.DiscountTargetSelectedProducts:
		for _, id := range ix.members(promo.ProductIDs, false) {
			qty := ix.cart[id]
			if qty <= 0 {
				continue
			}
			line := r.UnitPrice(id).Mul(decimal.NewFromInt(int64(qty)))
			var deduction decimal.Decimal
			if promo.DiscountType == domain.DiscountPercentage {
				deduction = line.Mul(promo.Value).Div(hundred)
			} else {
				deduction = currency.Convert(promo.Value, ix.rate).Mul(decimal.NewFromInt(int64(qty)))
			}
			deduction = decimal.Min(deduction, line)
			r.ProductDeductions[id] = r.ProductDeductions[id].Add(deduction)
			r.ProductDeduction = r.ProductDeduction.Add(deduction)
		}
	default:
		var deduction decimal.Decimal
		if promo.DiscountType == domain.DiscountPercentage {
			deduction = r.PreDiscount.Mul(promo.Value).Div(hundred)
		} else {
			deduction = currency.Convert(promo.Value, ix.rate)
		}
		r.TotalDeduction = r.TotalDeduction.Add(decimal.Min(deduction, r.PreDiscount))
	}
}
