package shopify

import (
	"strconv"
	"time"

	"sync-engine/internal/adapters"
)

// Shopify Admin REST wire structures
type shopifyProduct struct {
	ID        int64            `json:"id"`
	Title     string           `json:"title"`
	BodyHTML  string           `json:"body_html"`
	Status    string           `json:"status"`
	Variants  []shopifyVariant `json:"variants"`
	Images    []shopifyImage   `json:"images"`
	Options   []shopifyOption  `json:"options"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type shopifyVariant struct {
	ID                int64   `json:"id"`
	ProductID         int64   `json:"product_id"`
	Title             string  `json:"title"`
	SKU               string  `json:"sku"`
	Barcode           string  `json:"barcode"`
	Price             string  `json:"price"`
	CompareAtPrice    *string `json:"compare_at_price"`
	Weight            float64 `json:"weight"`
	WeightUnit        string  `json:"weight_unit"`
	InventoryItemID   int64   `json:"inventory_item_id"`
	InventoryQuantity int     `json:"inventory_quantity"`
	Option1           string  `json:"option1"`
	Option2           string  `json:"option2"`
	Option3           string  `json:"option3"`
	ImageID           *int64  `json:"image_id"`
}

type shopifyImage struct {
	ID       int64  `json:"id"`
	Src      string `json:"src"`
	Position int    `json:"position"`
}

type shopifyOption struct {
	Name     string   `json:"name"`
	Position int      `json:"position"`
	Values   []string `json:"values"`
}

func convertProduct(p shopifyProduct) adapters.PlatformProduct {
	product := adapters.PlatformProduct{
		ID:          strconv.FormatInt(p.ID, 10),
		Title:       p.Title,
		Description: p.BodyHTML,
		Status:      p.Status,
		UpdatedAt:   p.UpdatedAt,
	}
	for _, img := range p.Images {
		product.ImageURLs = append(product.ImageURLs, img.Src)
	}
	for _, v := range p.Variants {
		product.Variants = append(product.Variants, convertVariant(v, p.Options))
	}
	return product
}

func convertVariant(v shopifyVariant, options []shopifyOption) adapters.PlatformVariant {
	variant := adapters.PlatformVariant{
		ID:                strconv.FormatInt(v.ID, 10),
		ProductID:         strconv.FormatInt(v.ProductID, 10),
		Title:             v.Title,
		SKU:               v.SKU,
		Barcode:           v.Barcode,
		InventoryQuantity: v.InventoryQuantity,
		WeightUnit:        v.WeightUnit,
	}
	if v.InventoryItemID != 0 {
		variant.InventoryItemID = strconv.FormatInt(v.InventoryItemID, 10)
	}
	if price, err := strconv.ParseFloat(v.Price, 64); err == nil {
		variant.Price = price
	}
	if v.CompareAtPrice != nil {
		if cmp, err := strconv.ParseFloat(*v.CompareAtPrice, 64); err == nil {
			variant.CompareAtPrice = &cmp
		}
	}
	if v.Weight > 0 {
		weight := v.Weight
		variant.Weight = &weight
	}

	// Shopify names options on the product and positions values on the
	// variant as option1..option3.
	values := []string{v.Option1, v.Option2, v.Option3}
	opts := make(map[string]interface{})
	for i, opt := range options {
		if i < len(values) && values[i] != "" && values[i] != "Default Title" {
			opts[opt.Name] = values[i]
		}
	}
	if len(opts) > 0 {
		variant.Options = opts
	}
	return variant
}

// bundleToWire shapes an outbound create/update payload.
func bundleToWire(bundle *adapters.ProductBundle) map[string]interface{} {
	wire := map[string]interface{}{
		"title":     bundle.Title,
		"body_html": bundle.Description,
	}

	if len(bundle.Options) > 0 {
		options := make([]map[string]interface{}, 0, len(bundle.Options))
		for _, opt := range bundle.Options {
			options = append(options, map[string]interface{}{
				"name":   opt.Name,
				"values": opt.Values,
			})
		}
		wire["options"] = options
	}

	variants := make([]map[string]interface{}, 0, len(bundle.Variants))
	for _, v := range bundle.Variants {
		variant := map[string]interface{}{
			"price":                strconv.FormatFloat(v.Price, 'f', 2, 64),
			"sku":                  v.SKU,
			"inventory_management": "shopify",
		}
		if v.Barcode != "" {
			variant["barcode"] = v.Barcode
		}
		if v.Weight != nil {
			variant["weight"] = *v.Weight
		}
		pos := 1
		for _, opt := range bundle.Options {
			if val, ok := v.Options[opt.Name].(string); ok && val != "" {
				variant["option"+strconv.Itoa(pos)] = val
				pos++
			}
		}
		variants = append(variants, variant)
	}
	wire["variants"] = variants

	if len(bundle.ImageURLs) > 0 {
		images := make([]map[string]interface{}, 0, len(bundle.ImageURLs))
		for _, u := range bundle.ImageURLs {
			images = append(images, map[string]interface{}{"src": u})
		}
		wire["images"] = images
	}
	return wire
}
