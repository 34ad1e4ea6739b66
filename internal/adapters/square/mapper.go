package square

import (
	"strings"

	"github.com/google/uuid"

	"sync-engine/internal/adapters"
	"sync-engine/internal/models"
)

// Mapper converts Square catalog payloads to canonical drafts. Temp ids
// are prefixed sq-prod-/sq-var-.
type Mapper struct{}

var _ adapters.Mapper = (*Mapper)(nil)

func tempProductID(platformID string) string { return "sq-prod-" + platformID }
func tempVariantID(platformID string) string { return "sq-var-" + platformID }

func (m *Mapper) MapPlatformDataToCanonical(raw *adapters.PlatformData, userID, connectionID uuid.UUID) (*adapters.CanonicalBatch, error) {
	batch := &adapters.CanonicalBatch{Locations: raw.Locations}

	variantTemp := make(map[string]string)
	for _, p := range raw.Products {
		title := p.Title
		var description *string
		if p.Description != "" {
			d := p.Description
			description = &d
		}
		draft := adapters.DraftProduct{
			TempID: tempProductID(p.ID),
			Product: models.Product{
				UserID:      userID,
				Title:       &title,
				Description: description,
			},
			ImageURLs: p.ImageURLs,
		}
		batch.Products = append(batch.Products, draft)

		for _, v := range p.Variants {
			variant := models.ProductVariant{
				UserID: userID,
				Title:  v.Title,
				Price:  v.Price,
			}
			if variant.Title == "" {
				variant.Title = p.Title
			}
			if sku := strings.TrimSpace(v.SKU); sku != "" {
				variant.SKU = &sku
			}
			if barcode := strings.TrimSpace(v.Barcode); barcode != "" {
				variant.Barcode = &barcode
			}

			temp := tempVariantID(v.ID)
			variantTemp[v.ID] = temp
			batch.Variants = append(batch.Variants, adapters.DraftVariant{
				TempID:            temp,
				TempProductID:     draft.TempID,
				Variant:           variant,
				PlatformProductID: p.ID,
				PlatformVariantID: v.ID,
			})
		}
	}

	for _, row := range raw.Inventory {
		temp, ok := variantTemp[row.PlatformVariantID]
		if !ok {
			continue
		}
		batch.Inventory = append(batch.Inventory, adapters.DraftInventory{
			TempVariantID:      temp,
			PlatformLocationID: row.PlatformLocationID,
			Quantity:           row.Quantity,
			UpdatedAt:          row.UpdatedAt,
		})
	}
	return batch, nil
}

func (m *Mapper) BuildCreateBundle(product *models.Product, variants []models.ProductVariant, levels []models.InventoryLevel) (*adapters.ProductBundle, error) {
	bundle := &adapters.ProductBundle{}
	if product.Title != nil {
		bundle.Title = *product.Title
	}
	if product.Description != nil {
		bundle.Description = *product.Description
	}

	quantities := make(map[uuid.UUID]int, len(levels))
	for _, lvl := range levels {
		quantities[lvl.VariantID] += lvl.Quantity
	}
	for _, v := range variants {
		bv := adapters.BundleVariant{
			VariantID: v.ID,
			Title:     v.Title,
			Price:     v.Price,
			Quantity:  quantities[v.ID],
		}
		if v.SKU != nil {
			bv.SKU = *v.SKU
		}
		if v.Barcode != nil {
			bv.Barcode = *v.Barcode
		}
		bundle.Variants = append(bundle.Variants, bv)
	}
	return bundle, nil
}
