// Package pricing turns cart line items and discounts into a payable total.
package pricing

import (
	"math"
	"time"

	"github.com/fjod/go_cart/pos-service/internal/domain"
	"github.com/fjod/go_cart/pos-service/internal/loyalty"
)

// EarnBase selects the amount loyalty points are earned on.
type EarnBase string

const (
	EarnOnTotal    EarnBase = "total"
	EarnOnSubtotal EarnBase = "subtotal"
)

const basisPoints = 10000

// Config is the store-wide pricing policy.
type Config struct {
	Order      StackingOrder
	Redemption loyalty.Policy
	// EarnRate is points earned per currency unit of the earn base.
	EarnRate float64
	EarnBase EarnBase
}

// Coupon is a validated coupon applied to the whole cart.
type Coupon struct {
	Code     string          `json:"code"`
	Discount domain.Discount `json:"discount"`
}

// Input is everything a computation depends on. At is the instant used to
// decide whether line discounts are active.
type Input struct {
	Items          []domain.LineItem
	ManualDiscount int64
	Coupon         *Coupon
	TierDiscount   *domain.Discount
	Redemption     *loyalty.RedemptionRequest
	EarnMultiplier float64
	At             time.Time
}

// LineBreakdown is the priced view of one line item.
type LineBreakdown struct {
	Key                  string `json:"key"`
	ProductID            string `json:"product_id"`
	VariantSKU           string `json:"variant_sku,omitempty"`
	Name                 string `json:"name,omitempty"`
	Quantity             int64  `json:"quantity"`
	UnitBasePrice        int64  `json:"unit_base_price"`
	VariantPriceModifier int64  `json:"variant_price_modifier"`
	EffectiveUnitPrice   int64  `json:"effective_unit_price"`
	UnitDiscount         int64  `json:"unit_discount"`
	LineTotal            int64  `json:"line_total"`
}

// Breakdown is the result of a computation. It only contains values derived
// from the Input, so equal inputs give equal breakdowns.
type Breakdown struct {
	Lines               []LineBreakdown `json:"lines"`
	Subtotal            int64           `json:"subtotal"`
	ManualDiscount      int64           `json:"manual_discount"`
	CouponCode          string          `json:"coupon_code,omitempty"`
	CouponDiscount      int64           `json:"coupon_discount"`
	TierDiscount        int64           `json:"tier_discount"`
	RedemptionDiscount  int64           `json:"redemption_discount"`
	PointsRedeemed      int64           `json:"points_redeemed"`
	MaxRedeemablePoints int64           `json:"max_redeemable_points"`
	TotalDiscount       int64           `json:"total_discount"`
	Total               int64           `json:"total"`
	PointsToEarn        int64           `json:"points_to_earn"`
}

// Engine computes breakdowns. It holds configuration only and is safe for
// concurrent use.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) (*Engine, error) {
	if len(cfg.Order) == 0 {
		cfg.Order = DefaultStackingOrder()
	}
	if err := cfg.Order.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Redemption.Validate(); err != nil {
		return nil, err
	}
	if cfg.EarnRate < 0 {
		return nil, domain.NewValidationError("earn rate must not be negative")
	}
	switch cfg.EarnBase {
	case "":
		cfg.EarnBase = EarnOnTotal
	case EarnOnTotal, EarnOnSubtotal:
	default:
		return nil, domain.NewValidationError("unknown earn base %q", cfg.EarnBase)
	}
	return &Engine{cfg: cfg}, nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Compute prices in.Items and applies the cart-level discounts in the
// configured order.
func (e *Engine) Compute(in Input) (Breakdown, error) {
	if in.ManualDiscount < 0 {
		return Breakdown{}, domain.NewValidationError("manual discount must not be negative")
	}
	for _, d := range []*domain.Discount{in.TierDiscount, couponDiscount(in.Coupon)} {
		if d != nil {
			if err := d.Validate(); err != nil {
				return Breakdown{}, err
			}
		}
	}

	lines, subtotal, err := e.priceLines(in.Items, in.At)
	if err != nil {
		return Breakdown{}, err
	}

	b := Breakdown{Lines: lines, Subtotal: subtotal}

	var redemption int64
	if in.Redemption != nil {
		redemption, err = loyalty.Validate(subtotal, *in.Redemption, e.cfg.Redemption)
		if err != nil {
			return Breakdown{}, err
		}
		b.PointsRedeemed = in.Redemption.PointsToRedeem
		b.MaxRedeemablePoints = loyalty.MaxRedeemablePoints(subtotal, in.Redemption.PointsBalance,
			e.cfg.Redemption.CapPercentOfSubtotal, e.cfg.Redemption.PointsPerCurrencyUnit)
	}

	remaining := subtotal
	for _, src := range e.cfg.Order {
		var want int64
		switch src {
		case SourceManual:
			want = in.ManualDiscount
		case SourceCoupon:
			if d := couponDiscount(in.Coupon); d != nil && d.ActiveAt(in.At) {
				want = cartDiscount(subtotal, d)
			}
		case SourceTier:
			want = cartDiscount(subtotal, in.TierDiscount)
		case SourceRedemption:
			want = redemption
		}
		applied := clamp(want, remaining)
		remaining -= applied

		switch src {
		case SourceManual:
			b.ManualDiscount = applied
		case SourceCoupon:
			b.CouponDiscount = applied
		case SourceTier:
			b.TierDiscount = applied
		case SourceRedemption:
			b.RedemptionDiscount = applied
		}
	}
	if in.Coupon != nil {
		b.CouponCode = in.Coupon.Code
	}

	b.TotalDiscount = subtotal - remaining
	b.Total = remaining

	earnBase := b.Total
	if e.cfg.EarnBase == EarnOnSubtotal {
		earnBase = b.Subtotal
	}
	multiplier := in.EarnMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	b.PointsToEarn = loyalty.EarnPoints(earnBase, e.cfg.EarnRate*multiplier)

	return b, nil
}

// Subtotal prices the items without any cart-level discount.
func (e *Engine) Subtotal(items []domain.LineItem, at time.Time) (int64, error) {
	_, subtotal, err := e.priceLines(items, at)
	return subtotal, err
}

func (e *Engine) priceLines(items []domain.LineItem, at time.Time) ([]LineBreakdown, int64, error) {
	lines := make([]LineBreakdown, 0, len(items))
	var subtotal int64
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return nil, 0, err
		}
		if item.VariantPriceModifier > 0 && item.UnitBasePrice > math.MaxInt64-item.VariantPriceModifier {
			return nil, 0, domain.NewValidationError("unit price of %s is too large", item.Key())
		}
		listed := max(0, item.UnitBasePrice+item.VariantPriceModifier)
		effective := listed
		if item.ActiveDiscount != nil && item.ActiveDiscount.ActiveAt(at) {
			effective = applyUnitDiscount(listed, *item.ActiveDiscount)
		}
		if effective > 0 && item.Quantity > math.MaxInt64/effective {
			return nil, 0, domain.NewValidationError("line total of %s is too large", item.Key())
		}
		lineTotal := effective * item.Quantity
		if subtotal > math.MaxInt64-lineTotal {
			return nil, 0, domain.NewValidationError("cart subtotal is too large")
		}
		subtotal += lineTotal

		lines = append(lines, LineBreakdown{
			Key:                  item.Key(),
			ProductID:            item.ProductID,
			VariantSKU:           item.VariantSKU,
			Name:                 item.Name,
			Quantity:             item.Quantity,
			UnitBasePrice:        item.UnitBasePrice,
			VariantPriceModifier: item.VariantPriceModifier,
			EffectiveUnitPrice:   effective,
			UnitDiscount:         listed - effective,
			LineTotal:            lineTotal,
		})
	}
	return lines, subtotal, nil
}

// applyUnitDiscount returns the discounted unit price, never below zero.
func applyUnitDiscount(price int64, d domain.Discount) int64 {
	switch d.Kind {
	case domain.DiscountPercentage:
		return mulDiv(price, basisPoints-percentToBasisPoints(d.Value), basisPoints)
	case domain.DiscountFixed:
		return max(0, price-floorAmount(d.Value))
	}
	return price
}

// cartDiscount converts a cart-level discount into an amount of subtotal.
func cartDiscount(subtotal int64, d *domain.Discount) int64 {
	if d == nil {
		return 0
	}
	switch d.Kind {
	case domain.DiscountPercentage:
		return mulDiv(subtotal, percentToBasisPoints(d.Value), basisPoints)
	case domain.DiscountFixed:
		return floorAmount(d.Value)
	}
	return 0
}

func couponDiscount(c *Coupon) *domain.Discount {
	if c == nil {
		return nil
	}
	return &c.Discount
}

func percentToBasisPoints(percent float64) int64 {
	bp := int64(math.Round(percent * 100))
	return min(max(bp, 0), basisPoints)
}

func floorAmount(v float64) int64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(math.Floor(v))
}

// mulDiv returns floor(a*b/d) for non-negative a and 0 <= b <= d without
// overflowing on large a.
func mulDiv(a, b, d int64) int64 {
	if a <= 0 || b <= 0 {
		return 0
	}
	return (a/d)*b + (a%d)*b/d
}

func clamp(v, limit int64) int64 {
	return min(max(v, 0), max(limit, 0))
}
