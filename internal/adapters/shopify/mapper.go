package shopify

import (
	"strings"

	"github.com/google/uuid"

	"sync-engine/internal/adapters"
	"sync-engine/internal/models"
)

// Mapper converts Shopify payloads to canonical drafts. Temp ids are
// prefixed shop-prod-/shop-var- and are stable per platform id.
type Mapper struct{}

var _ adapters.Mapper = (*Mapper)(nil)

func tempProductID(platformID string) string { return "shop-prod-" + platformID }
func tempVariantID(platformID string) string { return "shop-var-" + platformID }

func (m *Mapper) MapPlatformDataToCanonical(raw *adapters.PlatformData, userID, connectionID uuid.UUID) (*adapters.CanonicalBatch, error) {
	batch := &adapters.CanonicalBatch{Locations: raw.Locations}

	variantTemp := make(map[string]string, len(raw.Products))
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
				IsArchived:  strings.EqualFold(p.Status, "archived"),
			},
			ImageURLs: p.ImageURLs,
		}
		batch.Products = append(batch.Products, draft)

		for _, v := range p.Variants {
			variant := models.ProductVariant{
				UserID:     userID,
				Title:      variantTitle(p.Title, v.Title),
				Price:      v.Price,
				WeightUnit: v.WeightUnit,
			}
			if sku := strings.TrimSpace(v.SKU); sku != "" {
				variant.SKU = &sku
			}
			if barcode := strings.TrimSpace(v.Barcode); barcode != "" {
				variant.Barcode = &barcode
			}
			variant.CompareAtPrice = v.CompareAtPrice
			variant.Weight = v.Weight
			if len(v.Options) > 0 {
				variant.Options = models.JSONB(v.Options)
			}

			temp := tempVariantID(v.ID)
			variantTemp[v.ID] = temp
			var images []string
			if v.ImageURL != "" {
				images = []string{v.ImageURL}
			}
			batch.Variants = append(batch.Variants, adapters.DraftVariant{
				TempID:            temp,
				TempProductID:     draft.TempID,
				Variant:           variant,
				PlatformProductID: p.ID,
				PlatformVariantID: v.ID,
				ImageURLs:         images,
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

// BuildCreateBundle groups a canonical product with its variants and
// quantities into the shape CreateProduct needs.
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

	optionValues := make(map[string][]string)
	var optionOrder []string
	for _, v := range variants {
		bv := adapters.BundleVariant{
			VariantID: v.ID,
			Title:     v.Title,
			Price:     v.Price,
			Weight:    v.Weight,
			Quantity:  quantities[v.ID],
		}
		if v.SKU != nil {
			bv.SKU = *v.SKU
		}
		if v.Barcode != nil {
			bv.Barcode = *v.Barcode
		}
		if len(v.Options) > 0 {
			bv.Options = map[string]interface{}(v.Options)
			for name, val := range v.Options {
				s, ok := val.(string)
				if !ok {
					continue
				}
				if _, seen := optionValues[name]; !seen {
					optionOrder = append(optionOrder, name)
				}
				if !containsString(optionValues[name], s) {
					optionValues[name] = append(optionValues[name], s)
				}
			}
		}
		bundle.Variants = append(bundle.Variants, bv)
	}
	for _, name := range optionOrder {
		bundle.Options = append(bundle.Options, adapters.BundleOption{Name: name, Values: optionValues[name]})
	}
	return bundle, nil
}

// variantTitle falls back to the product title for single-variant
// products, where Shopify reports "Default Title".
func variantTitle(productTitle, title string) string {
	if title == "" || title == "Default Title" {
		return productTitle
	}
	return title
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
