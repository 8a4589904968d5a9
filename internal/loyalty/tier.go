package loyalty

import (
	"strings"

	"github.com/fjod/go_cart/pos-service/internal/domain"
)

// TierBenefit is what a loyalty tier grants at the till.
type TierBenefit struct {
	DiscountPercent float64 `json:"discount_percent"`
	EarnMultiplier  float64 `json:"earn_multiplier"`
}

// TierTable maps lowercase tier names to their benefits.
type TierTable map[string]TierBenefit

// DefaultTiers is used when no tier table is configured.
func DefaultTiers() TierTable {
	return TierTable{
		"bronze":   {DiscountPercent: 0, EarnMultiplier: 1},
		"silver":   {DiscountPercent: 2, EarnMultiplier: 1.25},
		"gold":     {DiscountPercent: 5, EarnMultiplier: 1.5},
		"platinum": {DiscountPercent: 10, EarnMultiplier: 2},
	}
}

// Lookup returns the benefit for tier. Unknown or empty tiers get no
// discount and a multiplier of 1.
func (t TierTable) Lookup(tier string) TierBenefit {
	if b, ok := t[strings.ToLower(strings.TrimSpace(tier))]; ok {
		return b
	}
	return TierBenefit{EarnMultiplier: 1}
}

// Discount returns the tier benefit as a percentage-of-subtotal discount, or
// nil when the tier grants none.
func (b TierBenefit) Discount() *domain.Discount {
	if b.DiscountPercent <= 0 {
		return nil
	}
	return &domain.Discount{Kind: domain.DiscountPercentage, Value: b.DiscountPercent}
}
