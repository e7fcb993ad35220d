package cartserver

import (
	"context"
	"errors"
)

// Storage error sentinels. Implementations translate their driver errors
// into these so handlers can pick status codes without knowing the backend.
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrProductNotFound      = errors.New("product not found")
	ErrDuplicateProduct     = errors.New("duplicate product")
	ErrLineNotFound         = errors.New("cart line not found")
	ErrQuantityBelowMinimum = errors.New("quantity below minimum")
)

// StoredUser is one registered shopper, keyed by phone number.
type StoredUser struct {
	ID    string
	Phone string
}

// StoredProduct is one catalog entry.
type StoredProduct struct {
	ID          string
	Name        string
	PriceCents  int64
	ImageRef    string
	Category    string
	Vendor      string
	Description string
}

// StoredLine is one cart line. Snapshot holds the product as it looked when
// the line was created so the line survives catalog edits.
type StoredLine struct {
	ID         string
	UserID     string
	ProductID  string
	Quantity   int64
	PriceCents int64
	Snapshot   StoredProduct
}

// Store is the persistence contract the HTTP handlers run against.
type Store interface {
	// EnsureUser returns the user for phone, creating it on first login.
	EnsureUser(ctx context.Context, phone string) (StoredUser, error)

	ListProducts(ctx context.Context) ([]StoredProduct, error)
	ProductByID(ctx context.Context, productID string) (StoredProduct, error)
	// SeedProducts inserts the catalog once; an already seeded store is a
	// no-op.
	SeedProducts(ctx context.Context, products []StoredProduct) error

	LinesByUser(ctx context.Context, userID string) ([]StoredLine, error)
	// UpsertLine creates the user's line for productID or shifts its
	// quantity by quantityDelta within one transaction. A shift that would
	// land below one fails with ErrQuantityBelowMinimum and leaves the line
	// untouched.
	UpsertLine(ctx context.Context, userID string, productID string, priceCents int64, quantityDelta int64) (StoredLine, error)
	DeleteLine(ctx context.Context, userID string, lineID string) error
}
