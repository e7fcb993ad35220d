package cart

import (
	"fmt"
	"strings"
)

// ItemID identifies a server-assigned cart line.
type ItemID struct {
	value string
}

// ProductID identifies a catalog product.
type ProductID struct {
	value string
}

// PriceCents is a non-negative price in the minor currency unit.
type PriceCents int64

// Quantity is a cart line quantity, always at least one.
type Quantity int64

// QuantityDelta is a signed, non-zero quantity change.
type QuantityDelta int64

// NewItemID validates and normalizes a cart line id.
func NewItemID(raw string) (ItemID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ItemID{}, fmt.Errorf("%w: empty value", ErrInvalidItemID)
	}
	return ItemID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ItemID) String() string {
	return id.value
}

// IsZero reports whether the id is the zero value.
func (id ItemID) IsZero() bool {
	return id.value == ""
}

// NewProductID validates and normalizes a product id.
func NewProductID(raw string) (ProductID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ProductID{}, fmt.Errorf("%w: empty value", ErrInvalidProductID)
	}
	return ProductID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ProductID) String() string {
	return id.value
}

// NewPriceCents validates a price; zero is allowed (free items exist).
func NewPriceCents(raw int64) (PriceCents, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: must not be negative", ErrInvalidPriceCents)
	}
	return PriceCents(raw), nil
}

// Int64 returns the raw amount.
func (price PriceCents) Int64() int64 {
	return int64(price)
}

// NewQuantity validates a line quantity.
func NewQuantity(raw int64) (Quantity, error) {
	if raw < 1 {
		return 0, fmt.Errorf("%w: must be at least one", ErrInvalidQuantity)
	}
	return Quantity(raw), nil
}

// Int64 returns the raw quantity.
func (quantity Quantity) Int64() int64 {
	return int64(quantity)
}

// NewQuantityDelta validates a quantity change.
func NewQuantityDelta(raw int64) (QuantityDelta, error) {
	if raw == 0 {
		return 0, fmt.Errorf("%w: must not be zero", ErrInvalidQuantityDelta)
	}
	return QuantityDelta(raw), nil
}

// Int64 returns the raw delta.
func (delta QuantityDelta) Int64() int64 {
	return int64(delta)
}

// CartItem is one line of the cart as last confirmed or optimistically held.
// Name, ImageRef, Category, and Vendor are product snapshots taken at add
// time; the server value always wins on reconciliation.
type CartItem struct {
	ID             ItemID
	ProductID      ProductID
	Name           string
	UnitPriceCents PriceCents
	Quantity       Quantity
	ImageRef       string
	Category       string
	Vendor         string
}

// NewCartItem validates a cart line.
func NewCartItem(id ItemID, productID ProductID, name string, unitPrice PriceCents, quantity Quantity, imageRef string, category string, vendor string) (CartItem, error) {
	if id.IsZero() {
		return CartItem{}, fmt.Errorf("%w: missing item id", ErrInvalidCartItem)
	}
	if productID.String() == "" {
		return CartItem{}, fmt.Errorf("%w: missing product id", ErrInvalidCartItem)
	}
	if quantity < 1 {
		return CartItem{}, fmt.Errorf("%w: quantity below one", ErrInvalidCartItem)
	}
	if unitPrice < 0 {
		return CartItem{}, fmt.Errorf("%w: negative unit price", ErrInvalidCartItem)
	}
	return CartItem{
		ID:             id,
		ProductID:      productID,
		Name:           strings.TrimSpace(name),
		UnitPriceCents: unitPrice,
		Quantity:       quantity,
		ImageRef:       imageRef,
		Category:       category,
		Vendor:         vendor,
	}, nil
}

// LineTotalCents is the line subtotal.
func (item CartItem) LineTotalCents() int64 {
	return item.UnitPriceCents.Int64() * item.Quantity.Int64()
}

// Snapshot is an immutable view of the whole cart. Totals are always
// recomputed from the current items so they can never go stale.
type Snapshot struct {
	items []CartItem
}

// NewSnapshot validates the items and builds a snapshot. Line ids must be
// unique; every item must satisfy the CartItem invariants.
func NewSnapshot(items []CartItem) (Snapshot, error) {
	seen := make(map[ItemID]struct{}, len(items))
	copied := make([]CartItem, 0, len(items))
	for _, item := range items {
		if item.ID.IsZero() {
			return Snapshot{}, fmt.Errorf("%w: item without id", ErrInvalidSnapshot)
		}
		if item.Quantity < 1 {
			return Snapshot{}, fmt.Errorf("%w: item %s below quantity one", ErrInvalidSnapshot, item.ID)
		}
		if _, duplicate := seen[item.ID]; duplicate {
			return Snapshot{}, fmt.Errorf("%w: duplicate item id %s", ErrInvalidSnapshot, item.ID)
		}
		seen[item.ID] = struct{}{}
		copied = append(copied, item)
	}
	return Snapshot{items: copied}, nil
}

// EmptySnapshot returns a snapshot with no items.
func EmptySnapshot() Snapshot {
	return Snapshot{}
}

// Items returns a copy of the lines.
func (snapshot Snapshot) Items() []CartItem {
	copied := make([]CartItem, len(snapshot.items))
	copy(copied, snapshot.items)
	return copied
}

// Len returns the number of lines.
func (snapshot Snapshot) Len() int {
	return len(snapshot.items)
}

// IsEmpty reports whether the cart holds no lines.
func (snapshot Snapshot) IsEmpty() bool {
	return len(snapshot.items) == 0
}

// ItemByID returns the line with the given id.
func (snapshot Snapshot) ItemByID(id ItemID) (CartItem, bool) {
	for _, item := range snapshot.items {
		if item.ID == id {
			return item, true
		}
	}
	return CartItem{}, false
}

// ItemByProductID returns the line holding the given product.
func (snapshot Snapshot) ItemByProductID(productID ProductID) (CartItem, bool) {
	for _, item := range snapshot.items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return CartItem{}, false
}

// ItemIDs lists the line ids in snapshot order.
func (snapshot Snapshot) ItemIDs() []ItemID {
	ids := make([]ItemID, 0, len(snapshot.items))
	for _, item := range snapshot.items {
		ids = append(ids, item.ID)
	}
	return ids
}

// TotalCents recomputes the cart total from current lines.
func (snapshot Snapshot) TotalCents() int64 {
	var total int64
	for _, item := range snapshot.items {
		total += item.LineTotalCents()
	}
	return total
}

// TotalUnits recomputes the unit count from current lines.
func (snapshot Snapshot) TotalUnits() int64 {
	var units int64
	for _, item := range snapshot.items {
		units += item.Quantity.Int64()
	}
	return units
}

// withItem returns a snapshot with the line upserted.
func (snapshot Snapshot) withItem(item CartItem) Snapshot {
	items := snapshot.Items()
	for index := range items {
		if items[index].ID == item.ID {
			items[index] = item
			return Snapshot{items: items}
		}
	}
	return Snapshot{items: append(items, item)}
}

// withoutItem returns a snapshot with the line removed.
func (snapshot Snapshot) withoutItem(id ItemID) Snapshot {
	items := make([]CartItem, 0, len(snapshot.items))
	for _, item := range snapshot.items {
		if item.ID != id {
			items = append(items, item)
		}
	}
	return Snapshot{items: items}
}

// MutationStatus reports how the engine disposed of a mutation intent.
type MutationStatus string

const (
	// MutationApplied means the intent was accepted and reconciled.
	MutationApplied MutationStatus = "applied"
	// MutationIgnored means the intent was dropped without a remote call:
	// the line already has a mutation in flight, or local validation made
	// the intent a no-op.
	MutationIgnored MutationStatus = "ignored"
	// MutationFailed means the remote rejected the intent and the view was
	// rolled back to its pre-mutation state.
	MutationFailed MutationStatus = "failed"
)

// MutationResult carries the disposition and the view after the mutation.
type MutationResult struct {
	Status   MutationStatus
	Snapshot Snapshot
}
