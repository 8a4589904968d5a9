// Package loyalty bounds how many loyalty points a customer may turn into a
// cart discount and how many points a purchase earns.
package loyalty

import (
	"math"

	"github.com/fjod/go_cart/pos-service/internal/domain"
)

// floorEpsilon absorbs binary floating point error such as 1000*0.1*10
// landing just below 10000. It is only applied to products, never to the
// points-to-money quotient.
const floorEpsilon = 1e-9

// Policy holds the redemption rules configured for the store.
type Policy struct {
	MinRedeemPoints       int64   `json:"min_redeem_points"`
	CapPercentOfSubtotal  float64 `json:"cap_percent_of_subtotal"`
	PointsPerCurrencyUnit float64 `json:"points_per_currency_unit"`
}

func (p Policy) Validate() error {
	if p.MinRedeemPoints < 0 {
		return domain.NewValidationError("min_redeem_points must not be negative")
	}
	if p.CapPercentOfSubtotal < 0 || p.CapPercentOfSubtotal > 1 {
		return domain.NewValidationError("cap_percent_of_subtotal must be within [0, 1]")
	}
	if !(p.PointsPerCurrencyUnit > 0) || math.IsInf(p.PointsPerCurrencyUnit, 0) {
		return domain.NewValidationError("points_per_currency_unit must be positive")
	}
	return nil
}

// RedemptionRequest is a candidate loyalty-point spend.
type RedemptionRequest struct {
	PointsBalance  int64 `json:"points_balance"`
	PointsToRedeem int64 `json:"points_to_redeem"`
}

// MaxRedeemablePoints returns min(pointsBalance, subtotal*capPercent
// converted to points), floored. Invalid inputs yield 0.
func MaxRedeemablePoints(subtotal, pointsBalance int64, capPercentOfSubtotal, pointsPerCurrencyUnit float64) int64 {
	if subtotal <= 0 || pointsBalance <= 0 || capPercentOfSubtotal <= 0 || !(pointsPerCurrencyUnit > 0) {
		return 0
	}
	capPoints := floorInt(float64(subtotal)*capPercentOfSubtotal*pointsPerCurrencyUnit, floorEpsilon)
	if capPoints < pointsBalance {
		return capPoints
	}
	return pointsBalance
}

// EstimateDiscount converts points into an amount, always rounding down.
func EstimateDiscount(pointsToRedeem int64, pointsPerCurrencyUnit float64) int64 {
	if pointsToRedeem <= 0 || !(pointsPerCurrencyUnit > 0) {
		return 0
	}
	return floorInt(float64(pointsToRedeem)/pointsPerCurrencyUnit, 0)
}

// Validate checks req against policy for the given subtotal and returns the
// discount the points are worth.
func Validate(subtotal int64, req RedemptionRequest, policy Policy) (int64, error) {
	if err := policy.Validate(); err != nil {
		return 0, err
	}
	if req.PointsToRedeem < 0 {
		return 0, domain.NewValidationError("points_to_redeem must not be negative")
	}
	if req.PointsBalance < 0 {
		return 0, domain.NewValidationError("points_balance must not be negative")
	}
	if req.PointsToRedeem == 0 {
		return 0, nil
	}
	if req.PointsToRedeem < policy.MinRedeemPoints {
		return 0, domain.NewBoundError(domain.KindBelowMinimumRedemption, policy.MinRedeemPoints,
			"minimum %d points per redemption", policy.MinRedeemPoints)
	}
	if req.PointsToRedeem > req.PointsBalance {
		return 0, domain.NewBoundError(domain.KindExceedsBalance, req.PointsBalance,
			"customer has %d points", req.PointsBalance)
	}
	maxPoints := MaxRedeemablePoints(subtotal, req.PointsBalance, policy.CapPercentOfSubtotal, policy.PointsPerCurrencyUnit)
	if req.PointsToRedeem > maxPoints {
		return 0, domain.NewBoundError(domain.KindExceedsCap, maxPoints,
			"at most %d points can be redeemed on this cart", maxPoints)
	}
	return EstimateDiscount(req.PointsToRedeem, policy.PointsPerCurrencyUnit), nil
}

// EarnPoints returns floor(amount * rate). Negative amounts or rates earn nothing.
func EarnPoints(amount int64, rate float64) int64 {
	if amount <= 0 || !(rate > 0) {
		return 0
	}
	return floorInt(float64(amount)*rate, floorEpsilon)
}

func floorInt(v, tolerance float64) int64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(math.Floor(v + tolerance))
}
