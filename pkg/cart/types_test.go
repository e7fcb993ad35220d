package cart

import (
	"errors"
	"testing"
)

func TestNewItemID(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		input   string
		wantErr error
		wantVal string
	}{
		{name: "valid", input: " line-42 ", wantVal: "line-42"},
		{name: "empty", input: "   ", wantErr: ErrInvalidItemID},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			result, err := NewItemID(tc.input)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected error %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.String() != tc.wantVal {
				t.Fatalf("expected %q, got %q", tc.wantVal, result.String())
			}
		})
	}
}

func TestNewPriceCents(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		input   int64
		wantErr error
	}{
		{name: "positive", input: 10000},
		{name: "zero is allowed", input: 0},
		{name: "negative", input: -1, wantErr: ErrInvalidPriceCents},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			price, err := NewPriceCents(tc.input)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected error %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if price.Int64() != tc.input {
				t.Fatalf("expected %d, got %d", tc.input, price.Int64())
			}
		})
	}
}

func TestNewQuantity(t *testing.T) {
	t.Parallel()
	if _, err := NewQuantity(0); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected quantity zero to be rejected, got %v", err)
	}
	if _, err := NewQuantity(-3); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected negative quantity to be rejected, got %v", err)
	}
	quantity, err := NewQuantity(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if quantity.Int64() != 1 {
		t.Fatalf("expected 1, got %d", quantity.Int64())
	}
}

func TestNewQuantityDelta(t *testing.T) {
	t.Parallel()
	if _, err := NewQuantityDelta(0); !errors.Is(err, ErrInvalidQuantityDelta) {
		t.Fatalf("expected zero delta to be rejected, got %v", err)
	}
	for _, raw := range []int64{-2, 5} {
		delta, err := NewQuantityDelta(raw)
		if err != nil {
			t.Fatalf("delta %d: %v", raw, err)
		}
		if delta.Int64() != raw {
			t.Fatalf("expected %d, got %d", raw, delta.Int64())
		}
	}
}

func TestNewCartItemRejectsInvariantViolations(t *testing.T) {
	t.Parallel()
	id := mustItemID(t, "line-1")
	productID := mustProductID(t, "p1")
	if _, err := NewCartItem(ItemID{}, productID, "x", 100, 1, "", "", ""); !errors.Is(err, ErrInvalidCartItem) {
		t.Fatalf("expected missing id rejection, got %v", err)
	}
	if _, err := NewCartItem(id, ProductID{}, "x", 100, 1, "", "", ""); !errors.Is(err, ErrInvalidCartItem) {
		t.Fatalf("expected missing product rejection, got %v", err)
	}
	if _, err := NewCartItem(id, productID, "x", 100, 0, "", "", ""); !errors.Is(err, ErrInvalidCartItem) {
		t.Fatalf("expected zero quantity rejection, got %v", err)
	}
	if _, err := NewCartItem(id, productID, "x", -5, 1, "", "", ""); !errors.Is(err, ErrInvalidCartItem) {
		t.Fatalf("expected negative price rejection, got %v", err)
	}
}

func TestSnapshotTotalsAreRecomputed(t *testing.T) {
	t.Parallel()
	first, err := NewCartItem(mustItemID(t, "l1"), mustProductID(t, "p1"), "a", 10000, 2, "", "", "")
	if err != nil {
		t.Fatalf("item: %v", err)
	}
	second, err := NewCartItem(mustItemID(t, "l2"), mustProductID(t, "p2"), "b", 2500, 3, "", "", "")
	if err != nil {
		t.Fatalf("item: %v", err)
	}
	snapshot, err := NewSnapshot([]CartItem{first, second})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.TotalCents() != 2*10000+3*2500 {
		t.Fatalf("unexpected total: %d", snapshot.TotalCents())
	}
	if snapshot.TotalUnits() != 5 {
		t.Fatalf("unexpected units: %d", snapshot.TotalUnits())
	}

	reduced := snapshot.withoutItem(first.ID)
	if reduced.TotalCents() != 3*2500 || reduced.TotalUnits() != 3 {
		t.Fatalf("totals must follow current items, got %d cents %d units", reduced.TotalCents(), reduced.TotalUnits())
	}
	// The original snapshot is a value; deriving from it changes nothing.
	if snapshot.Len() != 2 {
		t.Fatalf("expected source snapshot untouched, got %d lines", snapshot.Len())
	}
}

func TestNewSnapshotRejectsDuplicatesAndZeroQuantities(t *testing.T) {
	t.Parallel()
	item, err := NewCartItem(mustItemID(t, "l1"), mustProductID(t, "p1"), "a", 100, 1, "", "", "")
	if err != nil {
		t.Fatalf("item: %v", err)
	}
	if _, err := NewSnapshot([]CartItem{item, item}); !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	broken := item
	broken.Quantity = 0
	if _, err := NewSnapshot([]CartItem{broken}); !errors.Is(err, ErrInvalidSnapshot) {
		t.Fatalf("expected zero-quantity rejection, got %v", err)
	}
}

func TestSnapshotItemsReturnsACopy(t *testing.T) {
	t.Parallel()
	item, err := NewCartItem(mustItemID(t, "l1"), mustProductID(t, "p1"), "a", 100, 2, "", "", "")
	if err != nil {
		t.Fatalf("item: %v", err)
	}
	snapshot, err := NewSnapshot([]CartItem{item})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	leaked := snapshot.Items()
	leaked[0].Quantity = 99
	if got, _ := snapshot.ItemByID(item.ID); got.Quantity != 2 {
		t.Fatalf("mutating the returned slice must not affect the snapshot, got %d", got.Quantity)
	}
}
