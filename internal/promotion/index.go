package promotion

import (
	"sort"

	"github.com/shopspring/decimal"

	"kasirinaja/checkout/internal/currency"
	"kasirinaja/checkout/internal/domain"
)

// index is built once per evaluation so every lookup during pricing is a map hit.
type index struct {
	products   map[string]domain.Product
	categories map[string]domain.Category
	ordered    []domain.Category
	volume     map[string]domain.Promotion
	cart       map[string]int
	cartIDs    []string
	rate       decimal.Decimal
}

func newIndex(in Input) *index {
	ix := &index{
		products:   make(map[string]domain.Product, len(in.Products)),
		categories: make(map[string]domain.Category, len(in.Categories)),
		volume:     make(map[string]domain.Promotion),
		cart:       make(map[string]int, len(in.Cart)),
		rate:       in.Rate,
	}
	for _, p := range in.Products {
		if p.Deleted {
			continue
		}
		ix.products[p.ID] = p
	}
	for _, c := range in.Categories {
		if !c.Enabled {
			continue
		}
		ix.categories[c.ID] = c
		ix.ordered = append(ix.ordered, c)
	}
	sort.SliceStable(ix.ordered, func(i, j int) bool {
		return ix.ordered[i].SortOrder < ix.ordered[j].SortOrder
	})
	for id, qty := range in.Cart {
		if qty <= 0 {
			continue
		}
		if _, ok := ix.products[id]; !ok {
			continue
		}
		ix.cart[id] = qty
		ix.cartIDs = append(ix.cartIDs, id)
	}
	sort.Strings(ix.cartIDs)
	for _, promo := range livePromotions(in.Promotions) {
		if promo.Mode != domain.PromotionVolume || promo.CategoryID == "" {
			continue
		}
		if _, taken := ix.volume[promo.CategoryID]; !taken {
			ix.volume[promo.CategoryID] = promo
		}
	}
	return ix
}

func (ix *index) natural(productID string) decimal.Decimal {
	p, ok := ix.products[productID]
	if !ok {
		return decimal.Zero
	}
	return currency.Convert(p.Price, ix.rate)
}

func (ix *index) lineNatural(productID string) decimal.Decimal {
	return ix.natural(productID).Mul(decimal.NewFromInt(int64(ix.cart[productID])))
}

// category resolves the enabled category a product prices under.
func (ix *index) category(productID string) (string, bool) {
	p, ok := ix.products[productID]
	if !ok || p.CategoryID == "" {
		return "", false
	}
	if _, ok := ix.categories[p.CategoryID]; !ok {
		return "", false
	}
	return p.CategoryID, true
}

// promoMembers returns the known, promo-flagged products of a promotion, deduplicated, in promotion order.
func (ix *index) promoMembers(ids []string) []string {
	return ix.members(ids, true)
}

func (ix *index) members(ids []string, promoOnly bool) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		p, ok := ix.products[id]
		if !ok {
			continue
		}
		if promoOnly && !p.PromoEligible {
			continue
		}
		out = append(out, id)
	}
	return out
}

func livePromotions(promos []domain.Promotion) []domain.Promotion {
	out := make([]domain.Promotion, 0, len(promos))
	for _, p := range promos {
		if p.Live() {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SortOrder < out[j].SortOrder
	})
	return out
}
