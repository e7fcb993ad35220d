package cartapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Product is one catalog entry as the storefront publishes it.
type Product struct {
	ID          string
	Name        string
	PriceCents  int64
	ImageRef    string
	Category    string
	Vendor      string
	Description string
}

type productWire struct {
	ID          string   `json:"_id"`
	Name        string   `json:"name"`
	Price       int64    `json:"price"`
	ImageURL    []string `json:"imageUrl"`
	Category    string   `json:"category"`
	Company     string   `json:"company"`
	Description string   `json:"description"`
}

func (wire productWire) toProduct() Product {
	imageRef := ""
	if len(wire.ImageURL) > 0 {
		imageRef = wire.ImageURL[0]
	}
	return Product{
		ID:          wire.ID,
		Name:        wire.Name,
		PriceCents:  wire.Price,
		ImageRef:    imageRef,
		Category:    wire.Category,
		Vendor:      wire.Company,
		Description: wire.Description,
	}
}

// ListProducts returns the full catalog. The endpoint is public; token may
// be empty.
func (client *Client) ListProducts(ctx context.Context, token string) ([]Product, error) {
	body, err := client.do(ctx, http.MethodGet, pathProducts, token, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	var wires []productWire
	if err := json.Unmarshal(body, &wires); err != nil {
		return nil, fmt.Errorf("list products: decode: %w", err)
	}
	products := make([]Product, 0, len(wires))
	for _, wire := range wires {
		products = append(products, wire.toProduct())
	}
	return products, nil
}

// FetchProduct returns one catalog entry by identifier.
func (client *Client) FetchProduct(ctx context.Context, productID string) (Product, error) {
	path := pathProducts + "/" + url.PathEscape(productID)
	body, err := client.do(ctx, http.MethodGet, path, "", nil, nil)
	if err != nil {
		return Product{}, fmt.Errorf("fetch product: %w", err)
	}
	var wire productWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return Product{}, fmt.Errorf("fetch product: decode: %w", err)
	}
	return wire.toProduct(), nil
}
