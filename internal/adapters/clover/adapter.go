// Package clover adapts the Clover merchant inventory API. Clover has a
// flat item list per merchant and no variant grouping, so every item
// becomes a single-variant canonical product.
package clover

import (
	"context"
	"crypto/subtle"
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

const baseURL = "https://api.clover.com/v3"

// Adapter is the Clover platform adapter.
type Adapter struct {
	adapters.Base
	mapper *Mapper
}

var _ adapters.Adapter = (*Adapter)(nil)

// NewAdapter creates the Clover adapter
func NewAdapter(base adapters.Base) *Adapter {
	return &Adapter{Base: base, mapper: &Mapper{}}
}

func (a *Adapter) Kind() models.PlatformKind {
	return models.PlatformClover
}

func (a *Adapter) GetApiClient(ctx context.Context, conn *models.PlatformConnection) (adapters.ApiClient, error) {
	creds, err := a.Credentials(conn)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindAuth, "failed to decrypt clover credentials", err)
	}
	merchantID := creds["merchantId"]
	if merchantID == "" {
		merchantID, _ = conn.PlatformSpecificData[models.MetaMerchantID].(string)
	}
	token := creds["accessToken"]
	if merchantID == "" || token == "" {
		return nil, apperrors.New(apperrors.KindAuth, "clover connection is missing merchant id or access token")
	}
	return NewClient(merchantID, token), nil
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
		if err := client.SetInventoryLevel(ctx, u.Mapping.PlatformProductID, u.Level.PlatformLocationID, u.Level.Quantity); err != nil {
			result.Failure++
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Success++
	}
	return result, nil
}

// VerifyWebhookSignature checks the X-Clover-Auth header against the
// configured verification code.
func (a *Adapter) VerifyWebhookSignature(payload []byte, headers http.Header, secret string) error {
	auth := headers.Get("X-Clover-Auth")
	if secret == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(auth), []byte(secret)) != 1 {
		return apperrors.New(apperrors.KindAuth, "invalid clover webhook auth code")
	}
	return nil
}

// ProcessWebhook resyncs each item referenced by the event. Clover
// batches object references per merchant as "TYPE:OBJECTID".
func (a *Adapter) ProcessWebhook(ctx context.Context, conn *models.PlatformConnection, payload []byte, headers http.Header, webhookID string) error {
	var event struct {
		Merchants map[string][]struct {
			ObjectID string `json:"objectId"`
			Type     string `json:"type"`
		} `json:"merchants"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return apperrors.New(apperrors.KindValidation, "clover webhook payload is malformed")
	}
	for _, refs := range event.Merchants {
		for _, ref := range refs {
			parts := strings.SplitN(ref.ObjectID, ":", 2)
			if len(parts) != 2 || parts[0] != "I" {
				continue
			}
			if err := a.SyncSingleProductFromPlatform(ctx, conn, parts[1], conn.UserID); err != nil {
				return err
			}
		}
	}
	return nil
}

// Client is a Clover REST client scoped to one merchant. Clover has one
// implicit location, identified by the merchant id.
type Client struct {
	httpClient  *http.Client
	merchantID  string
	accessToken string
	rateLimiter *rate.Limiter
	retrier     *adapters.Retrier
}

// NewClient creates a client for one merchant.
func NewClient(merchantID, accessToken string) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		merchantID:  merchantID,
		accessToken: accessToken,
		rateLimiter: rate.NewLimiter(rate.Limit(5), 2),
		retrier:     adapters.NewRetrier(nil),
	}
}

var _ adapters.ApiClient = (*Client)(nil)

// FetchAll pulls all items with stock, offset-paginated.
func (c *Client) FetchAll(ctx context.Context) (*adapters.PlatformData, error) {
	data := &adapters.PlatformData{
		Locations: []adapters.PlatformLocation{{ID: c.merchantID, Name: "Clover merchant"}},
	}
	offset := 0
	const limit = 100
	for {
		params := url.Values{
			"expand": {"itemStock"},
			"limit":  {strconv.Itoa(limit)},
			"offset": {strconv.Itoa(offset)},
		}
		body, err := c.doRequest(ctx, http.MethodGet, "/items", params, nil)
		if err != nil {
			return nil, err
		}
		var page struct {
			Elements []cloverItem `json:"elements"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("failed to parse items response: %w", err)
		}
		for _, item := range page.Elements {
			data.Products = append(data.Products, convertItem(item))
			if item.ItemStock != nil {
				data.Inventory = append(data.Inventory, adapters.PlatformInventoryRow{
					PlatformVariantID:  item.ID,
					PlatformLocationID: c.merchantID,
					Quantity:           int(item.ItemStock.Quantity),
				})
			}
		}
		if len(page.Elements) < limit {
			break
		}
		offset += limit
	}
	return data, nil
}

func (c *Client) FetchProduct(ctx context.Context, platformProductID string) (*adapters.PlatformProduct, error) {
	params := url.Values{"expand": {"itemStock"}}
	body, err := c.doRequest(ctx, http.MethodGet, "/items/"+platformProductID, params, nil)
	if err != nil {
		return nil, err
	}
	var item cloverItem
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, err
	}
	product := convertItem(item)
	return &product, nil
}

func (c *Client) FetchOverviews(ctx context.Context) ([]adapters.ProductOverview, error) {
	data, err := c.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	overviews := make([]adapters.ProductOverview, 0, len(data.Products))
	for _, p := range data.Products {
		sku := ""
		if len(p.Variants) > 0 {
			sku = p.Variants[0].SKU
		}
		overviews = append(overviews, adapters.ProductOverview{
			PlatformProductID: p.ID,
			PlatformVariantID: p.ID,
			SKU:               sku,
			Title:             p.Title,
			UpdatedAt:         p.UpdatedAt,
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

func (c *Client) CreateProduct(ctx context.Context, bundle *adapters.ProductBundle) (*adapters.CreateResult, error) {
	if len(bundle.Variants) == 0 {
		return nil, apperrors.New(apperrors.KindValidation, "clover create requires at least one variant")
	}
	v := bundle.Variants[0]
	payload := map[string]interface{}{
		"name":  bundle.Title,
		"sku":   v.SKU,
		"code":  v.Barcode,
		"price": int64(v.Price * 100),
	}
	body, err := c.doRequest(ctx, http.MethodPost, "/items", nil, payload)
	if err != nil {
		return nil, err
	}
	var item cloverItem
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, err
	}
	return &adapters.CreateResult{
		PlatformProductID:  item.ID,
		PlatformVariantIDs: map[uuid.UUID]string{v.VariantID: item.ID},
	}, nil
}

func (c *Client) UpdateProduct(ctx context.Context, platformProductID string, bundle *adapters.ProductBundle) error {
	payload := map[string]interface{}{"name": bundle.Title}
	if len(bundle.Variants) > 0 {
		payload["price"] = int64(bundle.Variants[0].Price * 100)
		payload["sku"] = bundle.Variants[0].SKU
	}
	_, err := c.doRequest(ctx, http.MethodPost, "/items/"+platformProductID, nil, payload)
	return err
}

func (c *Client) DeleteProduct(ctx context.Context, platformProductID string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, "/items/"+platformProductID, nil, nil)
	return err
}

func (c *Client) SetInventoryLevel(ctx context.Context, platformVariantID, platformLocationID string, quantity int) error {
	payload := map[string]interface{}{"quantity": quantity}
	_, err := c.doRequest(ctx, http.MethodPost, "/item_stocks/"+platformVariantID, nil, payload)
	return err
}

func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, body interface{}) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	fullURL := fmt.Sprintf("%s/merchants/%s%s", baseURL, c.merchantID, path)
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
			reqBody = strings.NewReader(string(jsonBody))
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
		return nil, apperrors.Wrap(apperrors.KindPlatformTransient, "clover request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apperrors.Newf(apperrors.KindAuth, "clover rejected credentials (status %d)", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperrors.Newf(apperrors.KindRateLimited, "clover rate limit exhausted after retries")
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.Newf(apperrors.KindNotFound, "clover resource not found: %s", path)
	case resp.StatusCode >= 500:
		return nil, apperrors.Newf(apperrors.KindPlatformTransient, "clover server error (status %d)", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, apperrors.Newf(apperrors.KindValidation, "clover API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// Clover wire structures
type cloverItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	Code      string `json:"code"`
	Price     int64  `json:"price"`
	ItemStock *struct {
		Quantity float64 `json:"quantity"`
	} `json:"itemStock,omitempty"`
	ModifiedTime int64 `json:"modifiedTime"`
}

func convertItem(item cloverItem) adapters.PlatformProduct {
	updatedAt := time.Unix(0, item.ModifiedTime*int64(time.Millisecond))
	return adapters.PlatformProduct{
		ID:        item.ID,
		Title:     item.Name,
		UpdatedAt: updatedAt,
		Variants: []adapters.PlatformVariant{{
			ID:        item.ID,
			ProductID: item.ID,
			Title:     item.Name,
			SKU:       item.SKU,
			Barcode:   item.Code,
			Price:     float64(item.Price) / 100,
		}},
	}
}

// Mapper converts Clover items to canonical drafts. Temp ids are
// prefixed clv-prod-/clv-var-.
type Mapper struct{}

var _ adapters.Mapper = (*Mapper)(nil)

func (m *Mapper) MapPlatformDataToCanonical(raw *adapters.PlatformData, userID, connectionID uuid.UUID) (*adapters.CanonicalBatch, error) {
	batch := &adapters.CanonicalBatch{Locations: raw.Locations}

	variantTemp := make(map[string]string, len(raw.Products))
	for _, p := range raw.Products {
		title := p.Title
		draft := adapters.DraftProduct{
			TempID:  "clv-prod-" + p.ID,
			Product: models.Product{UserID: userID, Title: &title},
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
			temp := "clv-var-" + v.ID
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
