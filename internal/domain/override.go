package domain

import "github.com/shopspring/decimal"

type OverrideKind int

const (
	OverrideNone OverrideKind = iota
	OverrideGeneral
	OverrideCategory
)

func (k OverrideKind) String() string {
	switch k {
	case OverrideGeneral:
		return "general"
	case OverrideCategory:
		return "category"
	default:
		return "none"
	}
}

// Override is either nothing, one general total, or a set of category subtotals.
// The two kinds never coexist: every constructor starts from a clean value.
type Override struct {
	kind       OverrideKind
	general    decimal.Decimal
	categories map[string]decimal.Decimal
}

func (o Override) Kind() OverrideKind {
	return o.kind
}

// WithGeneral returns an override holding only a general total.
func (o Override) WithGeneral(amount decimal.Decimal) Override {
	return Override{kind: OverrideGeneral, general: amount}
}

// WithCategory returns an override holding the previous category amounts plus this one.
func (o Override) WithCategory(categoryID string, amount decimal.Decimal) Override {
	categories := make(map[string]decimal.Decimal, len(o.categories)+1)
	if o.kind == OverrideCategory {
		for id, value := range o.categories {
			categories[id] = value
		}
	}
	categories[categoryID] = amount
	return Override{kind: OverrideCategory, categories: categories}
}

// WithoutCategory drops one category amount, collapsing to none when it was the last.
func (o Override) WithoutCategory(categoryID string) Override {
	if o.kind != OverrideCategory {
		return o
	}
	categories := make(map[string]decimal.Decimal, len(o.categories))
	for id, value := range o.categories {
		if id != categoryID {
			categories[id] = value
		}
	}
	if len(categories) == 0 {
		return Override{}
	}
	return Override{kind: OverrideCategory, categories: categories}
}

func (o Override) Cleared() Override {
	return Override{}
}

func (o Override) General() (decimal.Decimal, bool) {
	if o.kind != OverrideGeneral {
		return decimal.Zero, false
	}
	return o.general, true
}

func (o Override) Category(categoryID string) (decimal.Decimal, bool) {
	if o.kind != OverrideCategory {
		return decimal.Zero, false
	}
	amount, ok := o.categories[categoryID]
	return amount, ok
}

// Categories returns a copy of the category amounts; empty unless the kind is category.
func (o Override) Categories() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(o.categories))
	if o.kind != OverrideCategory {
		return out
	}
	for id, value := range o.categories {
		out[id] = value
	}
	return out
}
