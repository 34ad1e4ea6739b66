package shopify

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
)

const apiVersion = "2024-01"

// Client is a Shopify Admin REST API client scoped to one shop.
type Client struct {
	httpClient  *http.Client
	shopDomain  string
	accessToken string
	rateLimiter *rate.Limiter
	retrier     *adapters.Retrier
}

// NewClient creates a client for one shop. Shopify's REST bucket allows
// 2 req/s sustained, so the limiter matches that.
func NewClient(shopDomain, accessToken string) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		shopDomain:  shopDomain,
		accessToken: accessToken,
		rateLimiter: rate.NewLimiter(rate.Limit(2), 1),
		retrier:     adapters.NewRetrier(nil),
	}
}

var _ adapters.ApiClient = (*Client)(nil)

// FetchAll pulls the complete catalog: products (paginated via the Link
// header), locations, then inventory levels per location.
func (c *Client) FetchAll(ctx context.Context) (*adapters.PlatformData, error) {
	data := &adapters.PlatformData{}

	// inventory_item_id -> platform variant id, needed to key levels
	itemToVariant := make(map[int64]string)

	params := url.Values{"limit": {"250"}}
	for {
		body, headers, err := c.doRequest(ctx, http.MethodGet, "/products.json", params, nil)
		if err != nil {
			return nil, err
		}
		var page struct {
			Products []shopifyProduct `json:"products"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("failed to parse products response: %w", err)
		}
		for _, p := range page.Products {
			data.Products = append(data.Products, convertProduct(p))
			for _, v := range p.Variants {
				if v.InventoryItemID != 0 {
					itemToVariant[v.InventoryItemID] = strconv.FormatInt(v.ID, 10)
				}
			}
		}
		cursor, hasMore := parsePagination(headers.Get("Link"))
		if !hasMore {
			break
		}
		params = url.Values{"limit": {"250"}, "page_info": {cursor}}
	}

	locations, err := c.fetchLocations(ctx)
	if err != nil {
		return nil, err
	}
	data.Locations = locations

	for _, loc := range locations {
		rows, err := c.fetchLevelsForLocation(ctx, loc.ID, itemToVariant)
		if err != nil {
			return nil, err
		}
		data.Inventory = append(data.Inventory, rows...)
	}
	return data, nil
}

// FetchProduct pulls one product by id.
func (c *Client) FetchProduct(ctx context.Context, platformProductID string) (*adapters.PlatformProduct, error) {
	body, _, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/products/%s.json", platformProductID), nil, nil)
	if err != nil {
		return nil, err
	}
	var response struct {
		Product shopifyProduct `json:"product"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, err
	}
	product := convertProduct(response.Product)
	return &product, nil
}

// FetchOverviews pulls a cheap id/sku listing for reconciliation.
func (c *Client) FetchOverviews(ctx context.Context) ([]adapters.ProductOverview, error) {
	var overviews []adapters.ProductOverview
	params := url.Values{"limit": {"250"}, "fields": {"id,title,updated_at,variants"}}
	for {
		body, headers, err := c.doRequest(ctx, http.MethodGet, "/products.json", params, nil)
		if err != nil {
			return nil, err
		}
		var page struct {
			Products []shopifyProduct `json:"products"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, err
		}
		for _, p := range page.Products {
			productID := strconv.FormatInt(p.ID, 10)
			for _, v := range p.Variants {
				overviews = append(overviews, adapters.ProductOverview{
					PlatformProductID: productID,
					PlatformVariantID: strconv.FormatInt(v.ID, 10),
					SKU:               v.SKU,
					Title:             p.Title,
					UpdatedAt:         p.UpdatedAt,
				})
			}
		}
		cursor, hasMore := parsePagination(headers.Get("Link"))
		if !hasMore {
			break
		}
		params = url.Values{"limit": {"250"}, "fields": {"id,title,updated_at,variants"}, "page_info": {cursor}}
	}
	return overviews, nil
}

// FetchInventory pulls current levels across all locations.
func (c *Client) FetchInventory(ctx context.Context) ([]adapters.PlatformInventoryRow, error) {
	data, err := c.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	return data.Inventory, nil
}

// CreateProduct pushes a new product with its variants.
func (c *Client) CreateProduct(ctx context.Context, bundle *adapters.ProductBundle) (*adapters.CreateResult, error) {
	payload := map[string]interface{}{"product": bundleToWire(bundle)}
	body, _, err := c.doRequest(ctx, http.MethodPost, "/products.json", nil, payload)
	if err != nil {
		return nil, err
	}
	var response struct {
		Product shopifyProduct `json:"product"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, err
	}

	result := &adapters.CreateResult{
		PlatformProductID:  strconv.FormatInt(response.Product.ID, 10),
		PlatformVariantIDs: make(map[uuid.UUID]string),
	}
	// Shopify preserves variant order, so pair positionally.
	for i, v := range response.Product.Variants {
		if i < len(bundle.Variants) {
			result.PlatformVariantIDs[bundle.Variants[i].VariantID] = strconv.FormatInt(v.ID, 10)
		}
	}
	return result, nil
}

// UpdateProduct pushes changed fields to an existing product.
func (c *Client) UpdateProduct(ctx context.Context, platformProductID string, bundle *adapters.ProductBundle) error {
	wire := bundleToWire(bundle)
	wire["id"] = platformProductID
	payload := map[string]interface{}{"product": wire}
	_, _, err := c.doRequest(ctx, http.MethodPut, fmt.Sprintf("/products/%s.json", platformProductID), nil, payload)
	return err
}

// DeleteProduct removes a product from the shop.
func (c *Client) DeleteProduct(ctx context.Context, platformProductID string) error {
	_, _, err := c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/products/%s.json", platformProductID), nil, nil)
	return err
}

// SetInventoryLevel sets the available quantity for an inventory item at
// a location. The id passed is Shopify's inventory_item_id.
func (c *Client) SetInventoryLevel(ctx context.Context, inventoryItemID, platformLocationID string, quantity int) error {
	payload := map[string]interface{}{
		"location_id":       platformLocationID,
		"inventory_item_id": inventoryItemID,
		"available":         quantity,
	}
	_, _, err := c.doRequest(ctx, http.MethodPost, "/inventory_levels/set.json", nil, payload)
	return err
}

func (c *Client) fetchLocations(ctx context.Context) ([]adapters.PlatformLocation, error) {
	body, _, err := c.doRequest(ctx, http.MethodGet, "/locations.json", nil, nil)
	if err != nil {
		return nil, err
	}
	var response struct {
		Locations []struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"locations"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, err
	}
	locations := make([]adapters.PlatformLocation, 0, len(response.Locations))
	for _, l := range response.Locations {
		locations = append(locations, adapters.PlatformLocation{
			ID:   strconv.FormatInt(l.ID, 10),
			Name: l.Name,
		})
	}
	return locations, nil
}

func (c *Client) fetchLevelsForLocation(ctx context.Context, locationID string, itemToVariant map[int64]string) ([]adapters.PlatformInventoryRow, error) {
	var rows []adapters.PlatformInventoryRow
	params := url.Values{"limit": {"250"}, "location_ids": {locationID}}
	for {
		body, headers, err := c.doRequest(ctx, http.MethodGet, "/inventory_levels.json", params, nil)
		if err != nil {
			return nil, err
		}
		var page struct {
			InventoryLevels []struct {
				InventoryItemID int64     `json:"inventory_item_id"`
				LocationID      int64     `json:"location_id"`
				Available       int       `json:"available"`
				UpdatedAt       time.Time `json:"updated_at"`
			} `json:"inventory_levels"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, err
		}
		for _, lvl := range page.InventoryLevels {
			variantID, ok := itemToVariant[lvl.InventoryItemID]
			if !ok {
				continue
			}
			rows = append(rows, adapters.PlatformInventoryRow{
				PlatformVariantID:  variantID,
				PlatformLocationID: strconv.FormatInt(lvl.LocationID, 10),
				Quantity:           lvl.Available,
				UpdatedAt:          lvl.UpdatedAt,
			})
		}
		cursor, hasMore := parsePagination(headers.Get("Link"))
		if !hasMore {
			break
		}
		params = url.Values{"limit": {"250"}, "location_ids": {locationID}, "page_info": {cursor}}
	}
	return rows, nil
}

// doRequest performs an authenticated request with rate limiting and
// retries. 401/403 is an auth error; transient statuses are retried by
// the retrier and surface as rate_limited / platform_transient.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, body interface{}) ([]byte, http.Header, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	fullURL := fmt.Sprintf("https://%s/admin/api/%s%s", c.shopDomain, apiVersion, path)
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var jsonBody []byte
	if body != nil {
		var err error
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return nil, nil, err
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
		req.Header.Set("X-Shopify-Access-Token", c.accessToken)
		req.Header.Set("Content-Type", "application/json")
		return c.httpClient.Do(req)
	})
	if err != nil && resp == nil {
		return nil, nil, apperrors.Wrap(apperrors.KindPlatformTransient, "shopify request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, nil, apperrors.Newf(apperrors.KindAuth, "shopify rejected credentials (status %d)", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, nil, apperrors.Newf(apperrors.KindRateLimited, "shopify rate limit exhausted after retries")
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil, apperrors.Newf(apperrors.KindNotFound, "shopify resource not found: %s", path)
	case resp.StatusCode >= 500:
		return nil, nil, apperrors.Newf(apperrors.KindPlatformTransient, "shopify server error (status %d)", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, nil, apperrors.Newf(apperrors.KindValidation, "shopify API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, resp.Header, nil
}

// parsePagination extracts the next page_info cursor from a Link header.
func parsePagination(linkHeader string) (string, bool) {
	if linkHeader == "" {
		return "", false
	}
	for _, part := range strings.Split(linkHeader, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start < 0 || end < 0 || end <= start {
			continue
		}
		u, err := url.Parse(part[start+1 : end])
		if err != nil {
			continue
		}
		if cursor := u.Query().Get("page_info"); cursor != "" {
			return cursor, true
		}
	}
	return "", false
}
