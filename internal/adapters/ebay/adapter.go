// Package ebay adapts the eBay Sell Inventory API. Inventory items are
// keyed by SKU, so the SKU doubles as the platform variant id.
package ebay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"sync-engine/internal/adapters"
	"sync-engine/internal/apperrors"
	"sync-engine/internal/models"
)

const (
	baseURL = "https://api.ebay.com/sell/inventory/v1"

	// eBay has no per-SKU location granularity in this API.
	defaultLocation = "default"
)

// Adapter is the eBay platform adapter.
type Adapter struct {
	adapters.Base
	mapper *Mapper
}

var _ adapters.Adapter = (*Adapter)(nil)

// NewAdapter creates the eBay adapter
func NewAdapter(base adapters.Base) *Adapter {
	return &Adapter{Base: base, mapper: &Mapper{}}
}

func (a *Adapter) Kind() models.PlatformKind {
	return models.PlatformEbay
}

func (a *Adapter) GetApiClient(ctx context.Context, conn *models.PlatformConnection) (adapters.ApiClient, error) {
	creds, err := a.Credentials(conn)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindAuth, "failed to decrypt ebay credentials", err)
	}
	token := creds["accessToken"]
	if token == "" {
		return nil, apperrors.New(apperrors.KindAuth, "ebay connection is missing access token")
	}
	return NewClient(token), nil
}

func (a *Adapter) GetMapper() adapters.Mapper {
	return a.mapper
}

func (a *Adapter) GetSyncLogic(conn *models.PlatformConnection) adapters.SyncPolicy {
	return adapters.SyncPolicy{DelistWhenZero: conn.SyncRules.DelistWhenZero}
}

func (a *Adapter) SyncFromPlatform(ctx context.Context, conn *models.PlatformConnection, userID uuid.UUID) error {
	client, err := a.GetApiClient(ctx, conn)
	if err != nil {
		return err
	}
	_, err = a.SyncPull(ctx, conn, userID, client, a.mapper)
	return err
}

func (a *Adapter) SyncSingleProductFromPlatform(ctx context.Context, conn *models.PlatformConnection, platformProductID string, userID uuid.UUID) error {
	client, err := a.GetApiClient(ctx, conn)
	if err != nil {
		return err
	}
	return a.SyncOne(ctx, conn, platformProductID, userID, client, a.mapper)
}

func (a *Adapter) CreateProduct(ctx context.Context, conn *models.PlatformConnection, product *models.Product, variants []models.ProductVariant, levels []models.InventoryLevel) (*adapters.CreateResult, error) {
	client, err := a.GetApiClient(ctx, conn)
	if err != nil {
		return nil, err
	}
	bundle, err := a.mapper.BuildCreateBundle(product, variants, levels)
	if err != nil {
		return nil, err
	}
	return client.CreateProduct(ctx, bundle)
}

func (a *Adapter) UpdateProduct(ctx context.Context, conn *models.PlatformConnection, mapping *models.PlatformProductMapping, product *models.Product, variants []models.ProductVariant, levels []models.InventoryLevel) error {
	client, err := a.GetApiClient(ctx, conn)
	if err != nil {
		return err
	}
	bundle, err := a.mapper.BuildCreateBundle(product, variants, levels)
	if err != nil {
		return err
	}
	return client.UpdateProduct(ctx, mapping.PlatformProductID, bundle)
}

func (a *Adapter) DeleteProduct(ctx context.Context, conn *models.PlatformConnection, mapping *models.PlatformProductMapping) error {
	client, err := a.GetApiClient(ctx, conn)
	if err != nil {
		return err
	}
	return client.DeleteProduct(ctx, mapping.PlatformProductID)
}

func (a *Adapter) UpdateInventoryLevels(ctx context.Context, conn *models.PlatformConnection, updates []adapters.LevelUpdate) (*adapters.LevelUpdateResult, error) {
	client, err := a.GetApiClient(ctx, conn)
	if err != nil {
		return nil, err
	}
	result := &adapters.LevelUpdateResult{}
	for _, u := range updates {
		if err := client.SetInventoryLevel(ctx, u.Mapping.PlatformProductID, defaultLocation, u.Level.Quantity); err != nil {
			result.Failure++
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Success++
	}
	return result, nil
}

// VerifyWebhookSignature is a no-op; eBay notifications are pulled, not
// signed pushes, in this integration.
func (a *Adapter) VerifyWebhookSignature(payload []byte, headers http.Header, secret string) error {
	return nil
}

// ProcessWebhook resyncs the referenced SKU.
func (a *Adapter) ProcessWebhook(ctx context.Context, conn *models.PlatformConnection, payload []byte, headers http.Header, webhookID string) error {
	var event struct {
		SKU string `json:"sku"`
	}
	if err := json.Unmarshal(payload, &event); err != nil || event.SKU == "" {
		return apperrors.New(apperrors.KindValidation, "ebay webhook has no sku")
	}
	return a.SyncSingleProductFromPlatform(ctx, conn, event.SKU, conn.UserID)
}

// Client is an eBay Sell Inventory API client.
type Client struct {
	httpClient  *http.Client
	accessToken string
	rateLimiter *rate.Limiter
	retrier     *adapters.Retrier
}

// NewClient creates a client for one seller token.
func NewClient(accessToken string) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		accessToken: accessToken,
		rateLimiter: rate.NewLimiter(rate.Limit(5), 2),
		retrier:     adapters.NewRetrier(nil),
	}
}

var _ adapters.ApiClient = (*Client)(nil)

// FetchAll pulls all inventory items, offset-paginated.
func (c *Client) FetchAll(ctx context.Context) (*adapters.PlatformData, error) {
	data := &adapters.PlatformData{
		Locations: []adapters.PlatformLocation{{ID: defaultLocation, Name: "eBay"}},
	}
	offset := 0
	const limit = 100
	for {
		params := url.Values{
			"limit":  {strconv.Itoa(limit)},
			"offset": {strconv.Itoa(offset)},
		}
		body, err := c.doRequest(ctx, http.MethodGet, "/inventory_item", params, nil)
		if err != nil {
			return nil, err
		}
		var page struct {
			InventoryItems []inventoryItem `json:"inventoryItems"`
			Total          int             `json:"total"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("failed to parse inventory items response: %w", err)
		}
		for _, item := range page.InventoryItems {
			data.Products = append(data.Products, convertInventoryItem(item))
			data.Inventory = append(data.Inventory, adapters.PlatformInventoryRow{
				PlatformVariantID:  item.SKU,
				PlatformLocationID: defaultLocation,
				Quantity:           item.quantity(),
			})
		}
		offset += limit
		if offset >= page.Total || len(page.InventoryItems) == 0 {
			break
		}
	}
	return data, nil
}

func (c *Client) FetchProduct(ctx context.Context, platformProductID string) (*adapters.PlatformProduct, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/inventory_item/"+url.PathEscape(platformProductID), nil, nil)
	if err != nil {
		return nil, err
	}
	var item inventoryItem
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, err
	}
	if item.SKU == "" {
		item.SKU = platformProductID
	}
	product := convertInventoryItem(item)
	return &product, nil
}

func (c *Client) FetchOverviews(ctx context.Context) ([]adapters.ProductOverview, error) {
	data, err := c.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	overviews := make([]adapters.ProductOverview, 0, len(data.Products))
	for _, p := range data.Products {
		overviews = append(overviews, adapters.ProductOverview{
			PlatformProductID: p.ID,
			PlatformVariantID: p.ID,
			SKU:               p.ID,
			Title:             p.Title,
		})
	}
	return overviews, nil
}

func (c *Client) FetchInventory(ctx context.Context) ([]adapters.PlatformInventoryRow, error) {
	data, err := c.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	return data.Inventory, nil
}

// CreateProduct creates one inventory item per bundle variant; the first
// variant's SKU becomes the platform product id.
func (c *Client) CreateProduct(ctx context.Context, bundle *adapters.ProductBundle) (*adapters.CreateResult, error) {
	if len(bundle.Variants) == 0 {
		return nil, apperrors.New(apperrors.KindValidation, "ebay create requires at least one variant")
	}
	result := &adapters.CreateResult{PlatformVariantIDs: make(map[uuid.UUID]string)}
	for _, v := range bundle.Variants {
		if v.SKU == "" {
			return nil, apperrors.New(apperrors.KindValidation, "ebay inventory items require a sku")
		}
		if err := c.putItem(ctx, v.SKU, bundle, v); err != nil {
			return nil, err
		}
		if result.PlatformProductID == "" {
			result.PlatformProductID = v.SKU
		}
		result.PlatformVariantIDs[v.VariantID] = v.SKU
	}
	return result, nil
}

func (c *Client) UpdateProduct(ctx context.Context, platformProductID string, bundle *adapters.ProductBundle) error {
	for _, v := range bundle.Variants {
		sku := v.SKU
		if sku == "" {
			sku = platformProductID
		}
		if err := c.putItem(ctx, sku, bundle, v); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) DeleteProduct(ctx context.Context, platformProductID string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, "/inventory_item/"+url.PathEscape(platformProductID), nil, nil)
	return err
}

func (c *Client) SetInventoryLevel(ctx context.Context, platformVariantID, platformLocationID string, quantity int) error {
	payload := map[string]interface{}{
		"availability": map[string]interface{}{
			"shipToLocationAvailability": map[string]interface{}{"quantity": quantity},
		},
	}
	_, err := c.doRequest(ctx, http.MethodPut, "/inventory_item/"+url.PathEscape(platformVariantID), nil, payload)
	return err
}

func (c *Client) putItem(ctx context.Context, sku string, bundle *adapters.ProductBundle, v adapters.BundleVariant) error {
	payload := map[string]interface{}{
		"product": map[string]interface{}{
			"title":       bundle.Title,
			"description": bundle.Description,
		},
		"availability": map[string]interface{}{
			"shipToLocationAvailability": map[string]interface{}{"quantity": v.Quantity},
		},
	}
	if v.Barcode != "" {
		payload["product"].(map[string]interface{})["upc"] = []string{v.Barcode}
	}
	_, err := c.doRequest(ctx, http.MethodPut, "/inventory_item/"+url.PathEscape(sku), nil, payload)
	return err
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
		req.Header.Set("Content-Language", "en-US")
		return c.httpClient.Do(req)
	})
	if err != nil && resp == nil {
		return nil, apperrors.Wrap(apperrors.KindPlatformTransient, "ebay request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apperrors.Newf(apperrors.KindAuth, "ebay rejected credentials (status %d)", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperrors.Newf(apperrors.KindRateLimited, "ebay rate limit exhausted after retries")
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.Newf(apperrors.KindNotFound, "ebay resource not found: %s", path)
	case resp.StatusCode >= 500:
		return nil, apperrors.Newf(apperrors.KindPlatformTransient, "ebay server error (status %d)", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, apperrors.Newf(apperrors.KindValidation, "ebay API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// eBay wire structures
type inventoryItem struct {
	SKU     string `json:"sku"`
	Product struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		ImageURLs   []string `json:"imageUrls"`
		UPC         []string `json:"upc"`
	} `json:"product"`
	Availability struct {
		ShipToLocationAvailability struct {
			Quantity int `json:"quantity"`
		} `json:"shipToLocationAvailability"`
	} `json:"availability"`
}

func (i inventoryItem) quantity() int {
	return i.Availability.ShipToLocationAvailability.Quantity
}

func convertInventoryItem(item inventoryItem) adapters.PlatformProduct {
	barcode := ""
	if len(item.Product.UPC) > 0 {
		barcode = item.Product.UPC[0]
	}
	return adapters.PlatformProduct{
		ID:          item.SKU,
		Title:       item.Product.Title,
		Description: item.Product.Description,
		ImageURLs:   item.Product.ImageURLs,
		Variants: []adapters.PlatformVariant{{
			ID:                item.SKU,
			ProductID:         item.SKU,
			Title:             item.Product.Title,
			SKU:               item.SKU,
			Barcode:           barcode,
			InventoryQuantity: item.quantity(),
		}},
	}
}

// Mapper converts eBay inventory items to canonical drafts. Temp ids are
// prefixed ebay-prod-/ebay-var-.
type Mapper struct{}

var _ adapters.Mapper = (*Mapper)(nil)

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
			TempID:    "ebay-prod-" + p.ID,
			Product:   models.Product{UserID: userID, Title: &title, Description: description},
			ImageURLs: p.ImageURLs,
		}
		batch.Products = append(batch.Products, draft)

		for _, v := range p.Variants {
			variant := models.ProductVariant{
				UserID: userID,
				Title:  v.Title,
				Price:  v.Price,
			}
			if sku := strings.TrimSpace(v.SKU); sku != "" {
				variant.SKU = &sku
			}
			if barcode := strings.TrimSpace(v.Barcode); barcode != "" {
				variant.Barcode = &barcode
			}
			temp := "ebay-var-" + v.ID
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
