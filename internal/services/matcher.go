package services

import (
	"strings"

	"sync-engine/internal/adapters"
	"sync-engine/internal/models"
)

// Match confidence by identifier quality: barcodes are globally unique,
// SKUs are merchant-assigned.
const (
	confidenceBarcode = 0.95
	confidenceSKU     = 0.90
)

// Matcher proposes links between platform variants and the user's
// existing canonical variants. It is deterministic: the same inputs
// always produce the same suggestions.
type Matcher struct{}

// NewMatcher creates a matcher
func NewMatcher() *Matcher {
	return &Matcher{}
}

// variantIndex holds the canonical side keyed by normalized identifiers.
// The first variant claiming an identifier wins, keeping results stable
// against input order within a key.
type variantIndex struct {
	bySKU     map[string]*models.ProductVariant
	byBarcode map[string]*models.ProductVariant
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func buildIndex(existing []models.ProductVariant) *variantIndex {
	idx := &variantIndex{
		bySKU:     make(map[string]*models.ProductVariant, len(existing)),
		byBarcode: make(map[string]*models.ProductVariant, len(existing)),
	}
	for i := range existing {
		v := &existing[i]
		if v.SKU != nil {
			if key := normalizeKey(*v.SKU); key != "" {
				if _, taken := idx.bySKU[key]; !taken {
					idx.bySKU[key] = v
				}
			}
		}
		if v.Barcode != nil {
			if key := normalizeKey(*v.Barcode); key != "" {
				if _, taken := idx.byBarcode[key]; !taken {
					idx.byBarcode[key] = v
				}
			}
		}
	}
	return idx
}

// Suggest scores every platform variant against the existing canonical
// catalog. Barcode matches outrank SKU matches; when both identifiers
// resolve to different canonical variants, both candidates are emitted
// so the user decides.
func (m *Matcher) Suggest(data *adapters.PlatformData, existing []models.ProductVariant) []models.MappingSuggestion {
	idx := buildIndex(existing)

	inventoryByVariant := make(map[string][]models.SnapshotInventory)
	for _, row := range data.Inventory {
		inventoryByVariant[row.PlatformVariantID] = append(inventoryByVariant[row.PlatformVariantID],
			models.SnapshotInventory{PlatformLocationID: row.PlatformLocationID, Quantity: row.Quantity})
	}

	var suggestions []models.MappingSuggestion
	for _, p := range data.Products {
		for _, v := range p.Variants {
			snapshot := snapshotOf(p, v)
			snapshot.Inventory = inventoryByVariant[v.ID]

			var barcodeHit, skuHit *models.ProductVariant
			if key := normalizeKey(v.Barcode); key != "" {
				barcodeHit = idx.byBarcode[key]
			}
			if key := normalizeKey(v.SKU); key != "" {
				skuHit = idx.bySKU[key]
			}

			switch {
			case barcodeHit != nil && skuHit != nil && barcodeHit.ID != skuHit.ID:
				suggestions = append(suggestions,
					suggestion(snapshot, barcodeHit, models.MatchBarcode, confidenceBarcode),
					suggestion(snapshot, skuHit, models.MatchSKU, confidenceSKU),
				)
			case barcodeHit != nil:
				suggestions = append(suggestions,
					suggestion(snapshot, barcodeHit, models.MatchBarcode, confidenceBarcode))
			case skuHit != nil:
				suggestions = append(suggestions,
					suggestion(snapshot, skuHit, models.MatchSKU, confidenceSKU))
			default:
				suggestions = append(suggestions, models.MappingSuggestion{
					PlatformProduct: snapshot,
					MatchType:       models.MatchNone,
					Confidence:      0,
				})
			}
		}
	}
	return suggestions
}

func suggestion(snapshot models.PlatformProductSnapshot, hit *models.ProductVariant, matchType models.MatchType, confidence float64) models.MappingSuggestion {
	id := hit.ID
	return models.MappingSuggestion{
		PlatformProduct:    snapshot,
		SuggestedVariantID: &id,
		MatchType:          matchType,
		Confidence:         confidence,
	}
}

// snapshotOf captures what the review UI and the later sync need from a
// platform variant, so neither refetches.
func snapshotOf(p adapters.PlatformProduct, v adapters.PlatformVariant) models.PlatformProductSnapshot {
	price := v.Price
	snapshot := models.PlatformProductSnapshot{
		PlatformProductID: p.ID,
		PlatformVariantID: v.ID,
		Title:             p.Title,
		Description:       p.Description,
		SKU:               v.SKU,
		Barcode:           v.Barcode,
		InventoryItemID:   v.InventoryItemID,
		Price:             &price,
		CompareAtPrice:    v.CompareAtPrice,
		Weight:            v.Weight,
		WeightUnit:        v.WeightUnit,
		ImageURLs:         p.ImageURLs,
	}
	if v.Title != "" && v.Title != p.Title {
		snapshot.Title = p.Title + " - " + v.Title
	}
	return snapshot
}
