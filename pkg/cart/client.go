package cart

import "context"

// RemoteStore is the network boundary to the authoritative cart service.
// Implementations hold no cart state; every method is a plain
// request/response exchange bounded by the transport's timeout.
type RemoteStore interface {
	// FetchSnapshot returns the authoritative cart. Server quantity and
	// price win over any locally cached value.
	FetchSnapshot(ctx context.Context, token string) (Snapshot, error)

	// AddOrIncrement adds a product or changes an existing line's quantity
	// by delta. Delta may be negative; callers confirm the effect through a
	// subsequent FetchSnapshot, never by trusting the echo.
	AddOrIncrement(ctx context.Context, token string, productID ProductID, unitPrice PriceCents, delta QuantityDelta) error

	// DeleteItem removes a line. A missing line surfaces as an
	// ErrItemNotFound-wrapped error; callers treat that as success.
	DeleteItem(ctx context.Context, token string, itemID ItemID) error

	// DeleteAll fans DeleteItem out over every id concurrently and joins
	// all outcomes. It returns one outcome per id and makes no global
	// success or failure decision.
	DeleteAll(ctx context.Context, token string, itemIDs []ItemID) []DeleteOutcome
}

// DeleteOutcome is the per-line result of a bulk delete fan-out.
type DeleteOutcome struct {
	ItemID ItemID
	Err    error
}

// TokenProvider supplies the bearer credential owned by the external auth
// collaborator. The engine reads it per call and never caches it.
type TokenProvider interface {
	// CurrentToken returns the credential, or false when none is usable.
	CurrentToken(ctx context.Context) (string, bool)

	// Invalidate discards the persisted credential after the remote
	// rejected it, so the collaborator can redirect to re-authentication.
	Invalidate(ctx context.Context) error
}
