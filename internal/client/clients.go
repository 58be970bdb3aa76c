// Package client holds HTTP implementations of the engine's external
// collaborators: the pricing engine, the inventory checker and the order
// placement service. Each call is blocking with a timeout; timeouts and 5xx
// responses surface as transient errors the retry manager can act on.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"reorder/internal/engine"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const defaultTimeout = 10 * time.Second

// PricingClient resolves unit prices from the pricing service.
type PricingClient struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

func NewPricingClient(baseURL string, log zerolog.Logger) *PricingClient {
	return &PricingClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		log:     log,
	}
}

func (c *PricingClient) ResolvePrice(ctx context.Context, productID uuid.UUID, warehouse string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/api/pricing/%s?warehouse=%s", c.baseURL, productID, warehouse)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("pricing service returned %d for product %s", resp.StatusCode, productID)
	}

	var body struct {
		UnitPrice decimal.Decimal `json:"unit_price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, err
	}
	return body.UnitPrice, nil
}

// InventoryClient checks availability against the inventory service.
type InventoryClient struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

func NewInventoryClient(baseURL string, log zerolog.Logger) *InventoryClient {
	return &InventoryClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		log:     log,
	}
}

func (c *InventoryClient) CheckInventory(ctx context.Context, productID uuid.UUID, warehouse string, quantity int) (engine.Availability, error) {
	url := fmt.Sprintf("%s/api/inventory/%s?warehouse=%s&quantity=%d", c.baseURL, productID, warehouse, quantity)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return engine.Availability{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return engine.Availability{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return engine.Availability{}, fmt.Errorf("inventory service returned %d for product %s", resp.StatusCode, productID)
	}

	var avail engine.Availability
	if err := json.NewDecoder(resp.Body).Decode(&avail); err != nil {
		return engine.Availability{}, err
	}
	return avail, nil
}

// PlacementClient places resolved drafts with the order-creation service.
// 4xx responses are permanent rejections (bad address, compliance); network
// errors, timeouts and 5xx responses are transient.
type PlacementClient struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

func NewPlacementClient(baseURL string, log zerolog.Logger) *PlacementClient {
	return &PlacementClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		log:     log,
	}
}

func (c *PlacementClient) PlaceOrder(ctx context.Context, draft *engine.DraftOrder) (uuid.UUID, error) {
	payload, err := json.Marshal(draft)
	if err != nil {
		return uuid.Nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/purchase-orders", bytes.NewReader(payload))
	if err != nil {
		return uuid.Nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return uuid.Nil, &engine.PlacementError{Permanent: false, Reason: err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var body struct {
			OrderID uuid.UUID `json:"order_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return uuid.Nil, &engine.PlacementError{Permanent: false, Reason: "malformed placement response: " + err.Error()}
		}
		return body.OrderID, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error == "" {
			body.Error = fmt.Sprintf("placement rejected with status %d", resp.StatusCode)
		}
		return uuid.Nil, &engine.PlacementError{Permanent: true, Reason: body.Error}

	default:
		return uuid.Nil, &engine.PlacementError{Permanent: false, Reason: fmt.Sprintf("placement service returned %d", resp.StatusCode)}
	}
}
