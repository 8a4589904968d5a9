// Package catalog resolves scanned barcodes to sellable products. The
// catalog is owned by the commerce backend; this service only reads it.
package catalog

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/pos-service/internal/domain"
)

var ErrEntryNotFound = errors.New("catalog entry not found")

// Entry is one barcode in the catalog, pointing at a product or variant.
type Entry struct {
	Barcode              string           `json:"barcode" bson:"barcode"`
	ProductID            string           `json:"product_id" bson:"product_id"`
	VariantSKU           string           `json:"variant_sku,omitempty" bson:"variant_sku,omitempty"`
	Name                 string           `json:"name" bson:"name"`
	UnitBasePrice        int64            `json:"unit_base_price" bson:"unit_base_price"`
	VariantPriceModifier int64            `json:"variant_price_modifier" bson:"variant_price_modifier"`
	ActiveDiscount       *domain.Discount `json:"active_discount,omitempty" bson:"active_discount,omitempty"`
}

// LineItem turns the entry into a cart line of the given quantity.
func (e Entry) LineItem(quantity int64) domain.LineItem {
	return domain.LineItem{
		ProductID:            e.ProductID,
		VariantSKU:           e.VariantSKU,
		Name:                 e.Name,
		UnitBasePrice:        e.UnitBasePrice,
		VariantPriceModifier: e.VariantPriceModifier,
		ActiveDiscount:       e.ActiveDiscount,
		Quantity:             quantity,
	}
}

// Repository looks up catalog entries. Upsert exists for seeding and tests.
type Repository interface {
	FindByBarcode(ctx context.Context, barcode string) (*Entry, error)
	Upsert(ctx context.Context, entry *Entry) error
}
