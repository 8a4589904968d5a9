package pricing

import (
	"strings"

	"github.com/fjod/go_cart/pos-service/internal/domain"
)

// Source names a cart-level discount.
type Source string

const (
	SourceManual     Source = "manual"
	SourceCoupon     Source = "coupon"
	SourceTier       Source = "tier"
	SourceRedemption Source = "redemption"
)

// StackingOrder is the order in which cart-level discounts consume the
// discountable amount. Each discount is computed from the subtotal and then
// clamped to what the earlier ones left.
type StackingOrder []Source

func DefaultStackingOrder() StackingOrder {
	return StackingOrder{SourceManual, SourceCoupon, SourceTier, SourceRedemption}
}

// ParseStackingOrder parses a comma separated permutation of all sources,
// e.g. "manual,coupon,tier,redemption".
func ParseStackingOrder(s string) (StackingOrder, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultStackingOrder(), nil
	}
	var order StackingOrder
	for _, part := range strings.Split(s, ",") {
		order = append(order, Source(strings.ToLower(strings.TrimSpace(part))))
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}
	return order, nil
}

// Validate requires every source exactly once.
func (o StackingOrder) Validate() error {
	seen := make(map[Source]bool, len(o))
	for _, s := range o {
		switch s {
		case SourceManual, SourceCoupon, SourceTier, SourceRedemption:
		default:
			return domain.NewValidationError("unknown discount source %q", s)
		}
		if seen[s] {
			return domain.NewValidationError("discount source %q listed twice", s)
		}
		seen[s] = true
	}
	if len(seen) != 4 {
		return domain.NewValidationError("stacking order must list manual, coupon, tier and redemption")
	}
	return nil
}

func (o StackingOrder) String() string {
	parts := make([]string, len(o))
	for i, s := range o {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}
