package domain

import "time"

// DiscountKind is how a discount value is interpreted.
type DiscountKind string

const (
	DiscountPercentage DiscountKind = "percentage"
	DiscountFixed      DiscountKind = "fixed"
)

func (k DiscountKind) Valid() bool {
	return k == DiscountPercentage || k == DiscountFixed
}

// Discount is a catalog or coupon discount. Value is a percent (0-100) for
// percentage discounts and an absolute amount for fixed ones.
type Discount struct {
	Kind      DiscountKind `json:"kind" bson:"kind"`
	Value     float64      `json:"value" bson:"value"`
	ValidFrom *time.Time   `json:"valid_from,omitempty" bson:"valid_from,omitempty"`
	ValidTo   *time.Time   `json:"valid_to,omitempty" bson:"valid_to,omitempty"`
}

// ActiveAt reports whether t falls inside [ValidFrom, ValidTo]. A missing
// bound is open on that side.
func (d Discount) ActiveAt(t time.Time) bool {
	if d.ValidFrom != nil && t.Before(*d.ValidFrom) {
		return false
	}
	if d.ValidTo != nil && t.After(*d.ValidTo) {
		return false
	}
	return true
}

func (d Discount) Validate() error {
	if !d.Kind.Valid() {
		return NewValidationError("unknown discount kind %q", d.Kind)
	}
	if d.Value < 0 {
		return NewValidationError("discount value must not be negative")
	}
	if d.Kind == DiscountPercentage && d.Value > 100 {
		return NewValidationError("percentage must be 0-100")
	}
	if d.ValidFrom != nil && d.ValidTo != nil && d.ValidTo.Before(*d.ValidFrom) {
		return NewValidationError("discount valid_to is before valid_from")
	}
	return nil
}

// LineItem is one product or product variant in a cart.
type LineItem struct {
	ProductID            string    `json:"product_id"`
	VariantSKU           string    `json:"variant_sku,omitempty"`
	Name                 string    `json:"name,omitempty"`
	UnitBasePrice        int64     `json:"unit_base_price"`
	VariantPriceModifier int64     `json:"variant_price_modifier"`
	ActiveDiscount       *Discount `json:"active_discount,omitempty"`
	Quantity             int64     `json:"quantity"`
}

// Key identifies the line inside a cart: the product id, plus the variant
// SKU for variant lines.
func (li LineItem) Key() string {
	if li.VariantSKU == "" {
		return li.ProductID
	}
	return li.ProductID + ":" + li.VariantSKU
}

func (li LineItem) Validate() error {
	if li.ProductID == "" {
		return NewValidationError("product_id is required")
	}
	if li.Quantity < 1 {
		return NewValidationError("quantity must be at least 1")
	}
	if li.UnitBasePrice < 0 {
		return NewValidationError("unit_base_price must not be negative")
	}
	if li.ActiveDiscount != nil {
		if err := li.ActiveDiscount.Validate(); err != nil {
			return err
		}
	}
	return nil
}
