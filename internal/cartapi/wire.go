package cartapi

import (
	"encoding/json"
	"fmt"

	"github.com/MarkoPoloResearchLab/cartsync/pkg/cart"
)

// envelope is the {success, message, data} shell every endpoint responds
// with. Data stays raw so each call site decodes its own shape.
type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// declaredFailure reports a 2xx response that still carries success:false.
func (wrapped envelope) declaredFailure() bool {
	return wrapped.Success != nil && !*wrapped.Success
}

func (wrapped envelope) failureMessage() string {
	if wrapped.Message != "" {
		return wrapped.Message
	}
	if wrapped.Error != "" {
		return wrapped.Error
	}
	return "request rejected"
}

type addRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	Price     int64  `json:"price"`
}

type cartPayload struct {
	Items []cartLine `json:"items"`
}

type cartLine struct {
	ID              string           `json:"_id"`
	ProductID       productRef       `json:"product_id"`
	Quantity        int64            `json:"quantity"`
	Price           int64            `json:"price"`
	ProductSnapshot *productSnapshot `json:"productSnapshot"`
}

// productRef accepts both shapes the service emits for product_id: a bare
// identifier string or a populated product object.
type productRef struct {
	ID       string
	Name     string
	Price    int64
	ImageURL []string
	Category string
	Company  string
}

func (ref *productRef) UnmarshalJSON(raw []byte) error {
	if len(raw) == 0 || string(raw) == "null" {
		*ref = productRef{}
		return nil
	}
	if raw[0] == '"' {
		var identifier string
		if err := json.Unmarshal(raw, &identifier); err != nil {
			return err
		}
		*ref = productRef{ID: identifier}
		return nil
	}
	var populated struct {
		ID       string   `json:"_id"`
		Name     string   `json:"name"`
		Price    int64    `json:"price"`
		ImageURL []string `json:"imageUrl"`
		Category string   `json:"category"`
		Company  string   `json:"company"`
	}
	if err := json.Unmarshal(raw, &populated); err != nil {
		return err
	}
	*ref = productRef(populated)
	return nil
}

// productSnapshot is the denormalized product copy stored on the line at add
// time. It backs lines whose product reference was never populated.
type productSnapshot struct {
	ID       string   `json:"_id"`
	Name     string   `json:"name"`
	Price    int64    `json:"price"`
	ImageURL []string `json:"imageUrl"`
	Category string   `json:"category"`
	Company  string   `json:"company"`
}

// toCartItem maps one wire line into the domain type. Field precedence
// follows the service: the populated product reference first, the snapshot
// second, the line's own price last.
func (line cartLine) toCartItem() (cart.CartItem, error) {
	productIdentifier := line.ProductID.ID
	if productIdentifier == "" && line.ProductSnapshot != nil {
		productIdentifier = line.ProductSnapshot.ID
	}

	name := line.ProductID.Name
	imageURL := line.ProductID.ImageURL
	category := line.ProductID.Category
	company := line.ProductID.Company
	price := line.ProductID.Price
	if snapshot := line.ProductSnapshot; snapshot != nil {
		if name == "" {
			name = snapshot.Name
		}
		if len(imageURL) == 0 {
			imageURL = snapshot.ImageURL
		}
		if category == "" {
			category = snapshot.Category
		}
		if company == "" {
			company = snapshot.Company
		}
		if price == 0 {
			price = snapshot.Price
		}
	}
	if line.Price > 0 {
		price = line.Price
	}

	quantity := line.Quantity
	if quantity == 0 {
		quantity = 1
	}

	itemID, err := cart.NewItemID(line.ID)
	if err != nil {
		return cart.CartItem{}, fmt.Errorf("item id: %w", err)
	}
	productID, err := cart.NewProductID(productIdentifier)
	if err != nil {
		return cart.CartItem{}, fmt.Errorf("product id: %w", err)
	}
	unitPrice, err := cart.NewPriceCents(price)
	if err != nil {
		return cart.CartItem{}, fmt.Errorf("price: %w", err)
	}
	parsedQuantity, err := cart.NewQuantity(quantity)
	if err != nil {
		return cart.CartItem{}, fmt.Errorf("quantity: %w", err)
	}

	imageRef := ""
	if len(imageURL) > 0 {
		imageRef = imageURL[0]
	}
	return cart.NewCartItem(itemID, productID, name, unitPrice, parsedQuantity, imageRef, category, company)
}
