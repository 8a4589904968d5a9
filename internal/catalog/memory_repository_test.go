package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository(t *testing.T) {
	repo := NewMemoryRepository(Entry{Barcode: "1234567890128", ProductID: "p1", UnitBasePrice: 500})
	ctx := context.Background()

	entry, err := repo.FindByBarcode(ctx, "1234567890128")
	require.NoError(t, err)
	assert.Equal(t, "p1", entry.ProductID)

	_, err = repo.FindByBarcode(ctx, "missing")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	require.NoError(t, repo.Upsert(ctx, &Entry{Barcode: "missing", ProductID: "p9"}))
	entry, err = repo.FindByBarcode(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, "p9", entry.ProductID)
}

func TestEntry_LineItem(t *testing.T) {
	e := Entry{Barcode: "x", ProductID: "p1", VariantSKU: "L", Name: "Hoodie", UnitBasePrice: 4000, VariantPriceModifier: 500}

	item := e.LineItem(2)
	require.NoError(t, item.Validate())
	assert.Equal(t, "p1:L", item.Key())
	assert.Equal(t, int64(2), item.Quantity)
	assert.Equal(t, "Hoodie", item.Name)
}
