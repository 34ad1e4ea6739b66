package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sync-engine/internal/adapters"
	"sync-engine/internal/models"
)

func strPtr(s string) *string { return &s }

func canonicalVariant(sku, barcode string) models.ProductVariant {
	v := models.ProductVariant{
		ID:     uuid.New(),
		UserID: uuid.New(),
		Title:  "existing",
	}
	if sku != "" {
		v.SKU = strPtr(sku)
	}
	if barcode != "" {
		v.Barcode = strPtr(barcode)
	}
	return v
}

func platformData(variants ...adapters.PlatformVariant) *adapters.PlatformData {
	return &adapters.PlatformData{
		Products: []adapters.PlatformProduct{{
			ID:       "prod-1",
			Title:    "Widget",
			Variants: variants,
		}},
	}
}

func TestSuggestBarcodeOutranksSKU(t *testing.T) {
	target := canonicalVariant("ABC-1", "0012345678905")
	matcher := NewMatcher()

	suggestions := matcher.Suggest(platformData(adapters.PlatformVariant{
		ID:      "var-1",
		SKU:     "ABC-1",
		Barcode: "0012345678905",
	}), []models.ProductVariant{target})

	require.Len(t, suggestions, 1)
	assert.Equal(t, models.MatchBarcode, suggestions[0].MatchType)
	assert.Equal(t, 0.95, suggestions[0].Confidence)
	require.NotNil(t, suggestions[0].SuggestedVariantID)
	assert.Equal(t, target.ID, *suggestions[0].SuggestedVariantID)
}

func TestSuggestSKUOnly(t *testing.T) {
	target := canonicalVariant("ABC-1", "")
	matcher := NewMatcher()

	suggestions := matcher.Suggest(platformData(adapters.PlatformVariant{
		ID:  "var-1",
		SKU: "abc-1", // case and whitespace insensitive
	}), []models.ProductVariant{target})

	require.Len(t, suggestions, 1)
	assert.Equal(t, models.MatchSKU, suggestions[0].MatchType)
	assert.Equal(t, 0.90, suggestions[0].Confidence)
}

func TestSuggestDualCandidatesWhenIdentifiersDisagree(t *testing.T) {
	byBarcode := canonicalVariant("", "0012345678905")
	bySKU := canonicalVariant("ABC-1", "")
	matcher := NewMatcher()

	suggestions := matcher.Suggest(platformData(adapters.PlatformVariant{
		ID:      "var-1",
		SKU:     "ABC-1",
		Barcode: "0012345678905",
	}), []models.ProductVariant{byBarcode, bySKU})

	require.Len(t, suggestions, 2)
	assert.Equal(t, models.MatchBarcode, suggestions[0].MatchType)
	assert.Equal(t, byBarcode.ID, *suggestions[0].SuggestedVariantID)
	assert.Equal(t, models.MatchSKU, suggestions[1].MatchType)
	assert.Equal(t, bySKU.ID, *suggestions[1].SuggestedVariantID)
}

func TestSuggestNoMatch(t *testing.T) {
	matcher := NewMatcher()

	suggestions := matcher.Suggest(platformData(adapters.PlatformVariant{
		ID:  "var-1",
		SKU: "UNKNOWN",
	}), nil)

	require.Len(t, suggestions, 1)
	assert.Equal(t, models.MatchNone, suggestions[0].MatchType)
	assert.Zero(t, suggestions[0].Confidence)
	assert.Nil(t, suggestions[0].SuggestedVariantID)
}

func TestSuggestFirstClaimWinsOnDuplicateIdentifiers(t *testing.T) {
	first := canonicalVariant("DUP", "")
	second := canonicalVariant("", "")
	second.SKU = strPtr("dup ") // same key after normalization
	matcher := NewMatcher()

	run := func() uuid.UUID {
		suggestions := matcher.Suggest(platformData(adapters.PlatformVariant{
			ID:  "var-1",
			SKU: "DUP",
		}), []models.ProductVariant{first, second})
		require.Len(t, suggestions, 1)
		require.NotNil(t, suggestions[0].SuggestedVariantID)
		return *suggestions[0].SuggestedVariantID
	}

	want := run()
	assert.Equal(t, first.ID, want)
	for i := 0; i < 5; i++ {
		assert.Equal(t, want, run(), "suggestions must be deterministic")
	}
}

func TestSuggestAttachesSnapshotInventory(t *testing.T) {
	matcher := NewMatcher()
	data := platformData(adapters.PlatformVariant{ID: "var-1", SKU: "X", InventoryItemID: "inv-9"})
	data.Inventory = []adapters.PlatformInventoryRow{
		{PlatformVariantID: "var-1", PlatformLocationID: "loc-1", Quantity: 7},
		{PlatformVariantID: "var-1", PlatformLocationID: "loc-2", Quantity: 3},
		{PlatformVariantID: "other", PlatformLocationID: "loc-1", Quantity: 99},
	}

	suggestions := matcher.Suggest(data, nil)

	require.Len(t, suggestions, 1)
	snapshot := suggestions[0].PlatformProduct
	assert.Equal(t, "inv-9", snapshot.InventoryItemID)
	require.Len(t, snapshot.Inventory, 2)
	assert.Equal(t, 7, snapshot.Inventory[0].Quantity)
	assert.Equal(t, "loc-2", snapshot.Inventory[1].PlatformLocationID)
}

func TestSuggestCombinesVariantTitle(t *testing.T) {
	matcher := NewMatcher()

	suggestions := matcher.Suggest(platformData(adapters.PlatformVariant{
		ID:    "var-1",
		Title: "Large / Blue",
	}), nil)

	require.Len(t, suggestions, 1)
	assert.Equal(t, "Widget - Large / Blue", suggestions[0].PlatformProduct.Title)
}
