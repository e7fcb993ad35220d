// Package cartapi implements the cart.RemoteStore contract over the
// storefront REST surface: GET /api/cart, POST /api/cart/add,
// DELETE /api/cart/item/{id}. The client owns no cart state; every method is
// one bounded request/response exchange.
package cartapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/cartsync/pkg/cart"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 1 << 20

	pathCart     = "/api/cart"
	pathCartAdd  = "/api/cart/add"
	pathCartItem = "/api/cart/item/"
	pathProducts = "/api/product"
)

// Config aggregates client settings.
type Config struct {
	BaseURL string
	// Timeout bounds every remote call; zero selects the default 10s.
	Timeout time.Duration
	// HTTPClient overrides the transport; when set, its own timeout wins.
	HTTPClient *http.Client
}

// Client is a stateless typed wrapper over the remote cart service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New validates the configuration and wires a Client.
func New(cfg Config) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("cartapi: base url is required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("cartapi: invalid base url %q", cfg.BaseURL)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: trimmed, httpClient: httpClient}, nil
}

// FetchSnapshot returns the authoritative cart. Server-side quantity and
// price win over any locally held value.
func (client *Client) FetchSnapshot(ctx context.Context, token string) (cart.Snapshot, error) {
	body, err := client.do(ctx, http.MethodGet, pathCart, token, nil, nil)
	if err != nil {
		return cart.Snapshot{}, fmt.Errorf("fetch cart: %w", err)
	}
	var payload cartPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return cart.Snapshot{}, fmt.Errorf("fetch cart: decode items: %w: %v", cart.ErrServerError, err)
	}
	items := make([]cart.CartItem, 0, len(payload.Items))
	for _, line := range payload.Items {
		item, err := line.toCartItem()
		if err != nil {
			return cart.Snapshot{}, fmt.Errorf("fetch cart: line %q: %w", line.ID, err)
		}
		items = append(items, item)
	}
	snapshot, err := cart.NewSnapshot(items)
	if err != nil {
		return cart.Snapshot{}, fmt.Errorf("fetch cart: %w: %v", cart.ErrServerError, err)
	}
	return snapshot, nil
}

// AddOrIncrement adds a product or shifts an existing line's quantity by
// delta. The echo is not trusted; callers reconcile through FetchSnapshot.
func (client *Client) AddOrIncrement(ctx context.Context, token string, productID cart.ProductID, unitPrice cart.PriceCents, delta cart.QuantityDelta) error {
	request := addRequest{
		ProductID: productID.String(),
		Quantity:  delta.Int64(),
		Price:     unitPrice.Int64(),
	}
	encoded, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("add to cart: encode: %w", err)
	}
	if _, err := client.do(ctx, http.MethodPost, pathCartAdd, token, encoded, nil); err != nil {
		return fmt.Errorf("add to cart: %w", err)
	}
	return nil
}

// DeleteItem removes one line. Only here does a 404 surface as
// cart.ErrItemNotFound, so the caller can treat the delete as idempotent.
func (client *Client) DeleteItem(ctx context.Context, token string, itemID cart.ItemID) error {
	path := pathCartItem + url.PathEscape(itemID.String())
	if _, err := client.do(ctx, http.MethodDelete, path, token, nil, cart.ErrItemNotFound); err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return nil
}

// DeleteAll fans DeleteItem out concurrently and joins every outcome. It
// reports per-line results only; deciding overall success is the caller's
// job.
func (client *Client) DeleteAll(ctx context.Context, token string, itemIDs []cart.ItemID) []cart.DeleteOutcome {
	outcomes := make([]cart.DeleteOutcome, len(itemIDs))
	var group errgroup.Group
	for index, itemID := range itemIDs {
		index, itemID := index, itemID
		group.Go(func() error {
			outcomes[index] = cart.DeleteOutcome{
				ItemID: itemID,
				Err:    client.DeleteItem(ctx, token, itemID),
			}
			return nil
		})
	}
	_ = group.Wait()
	return outcomes
}

// do issues one request and returns the raw data portion of the envelope.
// notFound, when non-nil, is the sentinel a 404 resolves to; endpoints where a
// missing resource carries no special meaning pass nil and get the generic
// classification.
func (client *Client) do(ctx context.Context, method string, path string, token string, body []byte, notFound error) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	request, err := http.NewRequestWithContext(ctx, method, client.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", cart.ErrNetworkFailure, err)
	}
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cart.ErrNetworkFailure, err)
	}
	defer func() { _ = response.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", cart.ErrNetworkFailure, err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, fmt.Errorf("status %d: %w", response.StatusCode, classifyStatus(response.StatusCode, notFound))
	}

	var wrapped envelope
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &wrapped); err != nil {
			return nil, fmt.Errorf("%w: decode envelope: %v", cart.ErrServerError, err)
		}
		if wrapped.declaredFailure() {
			return nil, fmt.Errorf("%s: %w", wrapped.failureMessage(), cart.ErrRemoteValidation)
		}
	}
	return wrapped.Data, nil
}

func classifyStatus(status int, notFound error) error {
	switch {
	case status == http.StatusUnauthorized:
		return cart.ErrUnauthorized
	case status == http.StatusNotFound && notFound != nil:
		return notFound
	case status >= 400 && status < 500:
		return cart.ErrRemoteValidation
	default:
		return cart.ErrServerError
	}
}
