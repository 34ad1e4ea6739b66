package square

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"sync-engine/internal/adapters"
	"sync-engine/internal/apperrors"
)

const baseURL = "https://connect.squareup.com/v2"

// Client is a Square API client scoped to one merchant.
type Client struct {
	httpClient  *http.Client
	accessToken string
	rateLimiter *rate.Limiter
	retrier     *adapters.Retrier
}

// NewClient creates a client for one merchant token.
func NewClient(accessToken string) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		accessToken: accessToken,
		rateLimiter: rate.NewLimiter(rate.Limit(5), 2),
		retrier:     adapters.NewRetrier(nil),
	}
}

var _ adapters.ApiClient = (*Client)(nil)

// FetchAll pulls catalog items (cursor pagination), locations, then
// inventory counts for every variation.
func (c *Client) FetchAll(ctx context.Context) (*adapters.PlatformData, error) {
	data := &adapters.PlatformData{}
	var variationIDs []string

	cursor := ""
	for {
		params := url.Values{"types": {"ITEM"}}
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		body, err := c.doRequest(ctx, http.MethodGet, "/catalog/list", params, nil)
		if err != nil {
			return nil, err
		}
		var page struct {
			Objects []catalogObject `json:"objects"`
			Cursor  string          `json:"cursor"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("failed to parse catalog response: %w", err)
		}
		for _, obj := range page.Objects {
			if obj.Type != "ITEM" || obj.ItemData == nil {
				continue
			}
			data.Products = append(data.Products, convertItem(obj))
			for _, v := range obj.ItemData.Variations {
				variationIDs = append(variationIDs, v.ID)
			}
		}
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}

	locations, err := c.fetchLocations(ctx)
	if err != nil {
		return nil, err
	}
	data.Locations = locations

	rows, err := c.fetchCounts(ctx, variationIDs)
	if err != nil {
		return nil, err
	}
	data.Inventory = rows
	return data, nil
}

// FetchProduct pulls one catalog item with its variations.
func (c *Client) FetchProduct(ctx context.Context, platformProductID string) (*adapters.PlatformProduct, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/catalog/object/"+platformProductID, nil, nil)
	if err != nil {
		return nil, err
	}
	var response struct {
		Object catalogObject `json:"object"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, err
	}
	if response.Object.ItemData == nil {
		return nil, apperrors.Newf(apperrors.KindNotFound, "square object %s is not an item", platformProductID)
	}
	product := convertItem(response.Object)
	return &product, nil
}

// FetchOverviews lists items without pulling inventory.
func (c *Client) FetchOverviews(ctx context.Context) ([]adapters.ProductOverview, error) {
	var overviews []adapters.ProductOverview
	cursor := ""
	for {
		params := url.Values{"types": {"ITEM"}}
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		body, err := c.doRequest(ctx, http.MethodGet, "/catalog/list", params, nil)
		if err != nil {
			return nil, err
		}
		var page struct {
			Objects []catalogObject `json:"objects"`
			Cursor  string          `json:"cursor"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, err
		}
		for _, obj := range page.Objects {
			if obj.Type != "ITEM" || obj.ItemData == nil {
				continue
			}
			for _, v := range obj.ItemData.Variations {
				sku := ""
				if v.ItemVariationData != nil {
					sku = v.ItemVariationData.SKU
				}
				overviews = append(overviews, adapters.ProductOverview{
					PlatformProductID: obj.ID,
					PlatformVariantID: v.ID,
					SKU:               sku,
					Title:             obj.ItemData.Name,
					UpdatedAt:         obj.UpdatedAt,
				})
			}
		}
		if page.Cursor == "" {
			break
		}
		cursor = page.Cursor
	}
	return overviews, nil
}

// FetchInventory pulls counts for every catalog variation.
func (c *Client) FetchInventory(ctx context.Context) ([]adapters.PlatformInventoryRow, error) {
	overviews, err := c.FetchOverviews(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(overviews))
	for _, o := range overviews {
		ids = append(ids, o.PlatformVariantID)
	}
	return c.fetchCounts(ctx, ids)
}

// CreateProduct upserts a new catalog item with its variations.
func (c *Client) CreateProduct(ctx context.Context, bundle *adapters.ProductBundle) (*adapters.CreateResult, error) {
	itemID := "#item"
	variations := make([]map[string]interface{}, 0, len(bundle.Variants))
	tempByClientID := make(map[string]uuid.UUID, len(bundle.Variants))
	for i, v := range bundle.Variants {
		clientID := fmt.Sprintf("#variation-%d", i)
		tempByClientID[clientID] = v.VariantID
		variations = append(variations, map[string]interface{}{
			"type": "ITEM_VARIATION",
			"id":   clientID,
			"item_variation_data": map[string]interface{}{
				"item_id":      itemID,
				"name":         v.Title,
				"sku":          v.SKU,
				"upc":          v.Barcode,
				"pricing_type": "FIXED_PRICING",
				"price_money": map[string]interface{}{
					"amount":   int64(v.Price * 100),
					"currency": "USD",
				},
			},
		})
	}
	payload := map[string]interface{}{
		"idempotency_key": uuid.NewString(),
		"object": map[string]interface{}{
			"type": "ITEM",
			"id":   itemID,
			"item_data": map[string]interface{}{
				"name":        bundle.Title,
				"description": bundle.Description,
				"variations":  variations,
			},
		},
	}
	body, err := c.doRequest(ctx, http.MethodPost, "/catalog/object", nil, payload)
	if err != nil {
		return nil, err
	}
	var response struct {
		CatalogObject catalogObject `json:"catalog_object"`
		IDMappings    []struct {
			ClientObjectID string `json:"client_object_id"`
			ObjectID       string `json:"object_id"`
		} `json:"id_mappings"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, err
	}

	result := &adapters.CreateResult{PlatformVariantIDs: make(map[uuid.UUID]string)}
	for _, m := range response.IDMappings {
		if m.ClientObjectID == itemID {
			result.PlatformProductID = m.ObjectID
			continue
		}
		if variantID, ok := tempByClientID[m.ClientObjectID]; ok {
			result.PlatformVariantIDs[variantID] = m.ObjectID
		}
	}
	if result.PlatformProductID == "" {
		result.PlatformProductID = response.CatalogObject.ID
	}
	return result, nil
}

// UpdateProduct re-upserts the item at its current version.
func (c *Client) UpdateProduct(ctx context.Context, platformProductID string, bundle *adapters.ProductBundle) error {
	current, err := c.doRequest(ctx, http.MethodGet, "/catalog/object/"+platformProductID, nil, nil)
	if err != nil {
		return err
	}
	var existing struct {
		Object catalogObject `json:"object"`
	}
	if err := json.Unmarshal(current, &existing); err != nil {
		return err
	}
	payload := map[string]interface{}{
		"idempotency_key": uuid.NewString(),
		"object": map[string]interface{}{
			"type":    "ITEM",
			"id":      platformProductID,
			"version": existing.Object.Version,
			"item_data": map[string]interface{}{
				"name":        bundle.Title,
				"description": bundle.Description,
			},
		},
	}
	_, err = c.doRequest(ctx, http.MethodPost, "/catalog/object", nil, payload)
	return err
}

// DeleteProduct removes a catalog item.
func (c *Client) DeleteProduct(ctx context.Context, platformProductID string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, "/catalog/object/"+platformProductID, nil, nil)
	return err
}

// SetInventoryLevel records a physical count for a variation at a location.
func (c *Client) SetInventoryLevel(ctx context.Context, platformVariantID, platformLocationID string, quantity int) error {
	payload := map[string]interface{}{
		"idempotency_key": uuid.NewString(),
		"changes": []map[string]interface{}{{
			"type": "PHYSICAL_COUNT",
			"physical_count": map[string]interface{}{
				"catalog_object_id": platformVariantID,
				"location_id":       platformLocationID,
				"state":             "IN_STOCK",
				"quantity":          strconv.Itoa(quantity),
				"occurred_at":       time.Now().UTC().Format(time.RFC3339),
			},
		}},
	}
	_, err := c.doRequest(ctx, http.MethodPost, "/inventory/changes/batch-create", nil, payload)
	return err
}

func (c *Client) fetchLocations(ctx context.Context) ([]adapters.PlatformLocation, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/locations", nil, nil)
	if err != nil {
		return nil, err
	}
	var response struct {
		Locations []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"locations"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, err
	}
	locations := make([]adapters.PlatformLocation, 0, len(response.Locations))
	for _, l := range response.Locations {
		locations = append(locations, adapters.PlatformLocation{ID: l.ID, Name: l.Name})
	}
	return locations, nil
}

// fetchCounts batch-retrieves counts, 100 variation ids per call.
func (c *Client) fetchCounts(ctx context.Context, variationIDs []string) ([]adapters.PlatformInventoryRow, error) {
	var rows []adapters.PlatformInventoryRow
	for start := 0; start < len(variationIDs); start += 100 {
		end := start + 100
		if end > len(variationIDs) {
			end = len(variationIDs)
		}
		payload := map[string]interface{}{"catalog_object_ids": variationIDs[start:end]}
		cursor := ""
		for {
			if cursor != "" {
				payload["cursor"] = cursor
			}
			body, err := c.doRequest(ctx, http.MethodPost, "/inventory/counts/batch-retrieve", nil, payload)
			if err != nil {
				return nil, err
			}
			var page struct {
				Counts []struct {
					CatalogObjectID string    `json:"catalog_object_id"`
					LocationID      string    `json:"location_id"`
					State           string    `json:"state"`
					Quantity        string    `json:"quantity"`
					CalculatedAt    time.Time `json:"calculated_at"`
				} `json:"counts"`
				Cursor string `json:"cursor"`
			}
			if err := json.Unmarshal(body, &page); err != nil {
				return nil, err
			}
			for _, count := range page.Counts {
				if count.State != "IN_STOCK" {
					continue
				}
				qty, _ := strconv.Atoi(count.Quantity)
				rows = append(rows, adapters.PlatformInventoryRow{
					PlatformVariantID:  count.CatalogObjectID,
					PlatformLocationID: count.LocationID,
					Quantity:           qty,
					UpdatedAt:          count.CalculatedAt,
				})
			}
			if page.Cursor == "" {
				break
			}
			cursor = page.Cursor
		}
	}
	return rows, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, body interface{}) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	fullURL := baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var jsonBody []byte
	if body != nil {
		var err error
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return nil, err
		}
	}

	resp, err := c.retrier.DoHTTP(ctx, func(ctx context.Context) (*http.Response, error) {
		var reqBody io.Reader
		if jsonBody != nil {
			reqBody = bytes.NewReader(jsonBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
		req.Header.Set("Content-Type", "application/json")
		return c.httpClient.Do(req)
	})
	if err != nil && resp == nil {
		return nil, apperrors.Wrap(apperrors.KindPlatformTransient, "square request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apperrors.Newf(apperrors.KindAuth, "square rejected credentials (status %d)", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperrors.Newf(apperrors.KindRateLimited, "square rate limit exhausted after retries")
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.Newf(apperrors.KindNotFound, "square resource not found: %s", path)
	case resp.StatusCode >= 500:
		return nil, apperrors.Newf(apperrors.KindPlatformTransient, "square server error (status %d)", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, apperrors.Newf(apperrors.KindValidation, "square API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// Square wire structures
type catalogObject struct {
	ID                string             `json:"id"`
	Type              string             `json:"type"`
	Version           int64              `json:"version"`
	UpdatedAt         time.Time          `json:"updated_at"`
	ItemData          *itemData          `json:"item_data,omitempty"`
	ItemVariationData *itemVariationData `json:"item_variation_data,omitempty"`
}

type itemData struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Variations  []catalogObject `json:"variations"`
}

type itemVariationData struct {
	ItemID     string `json:"item_id"`
	Name       string `json:"name"`
	SKU        string `json:"sku"`
	UPC        string `json:"upc"`
	PriceMoney *struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	} `json:"price_money"`
}

func convertItem(obj catalogObject) adapters.PlatformProduct {
	product := adapters.PlatformProduct{
		ID:        obj.ID,
		Title:     obj.ItemData.Name,
		UpdatedAt: obj.UpdatedAt,
	}
	if obj.ItemData.Description != "" {
		product.Description = obj.ItemData.Description
	}
	for _, v := range obj.ItemData.Variations {
		variant := adapters.PlatformVariant{
			ID:        v.ID,
			ProductID: obj.ID,
		}
		if v.ItemVariationData != nil {
			variant.Title = v.ItemVariationData.Name
			variant.SKU = v.ItemVariationData.SKU
			variant.Barcode = v.ItemVariationData.UPC
			if v.ItemVariationData.PriceMoney != nil {
				variant.Price = float64(v.ItemVariationData.PriceMoney.Amount) / 100
			}
		}
		product.Variants = append(product.Variants, variant)
	}
	return product
}
