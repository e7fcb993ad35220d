package cartserver

import (
	"context"
	"testing"

	"github.com/MarkoPoloResearchLab/cartsync/internal/cartapi"
	"github.com/MarkoPoloResearchLab/cartsync/internal/tokenstore"
	"github.com/MarkoPoloResearchLab/cartsync/pkg/cart"
)

// TestSyncEngineAgainstLiveServer drives the full client stack over real
// HTTP: phone login, optimistic add, quantity shift, remove, bulk clear.
func TestSyncEngineAgainstLiveServer(test *testing.T) {
	server := newTestServer(test, seededStore(test))
	accessToken := authenticate(test, server, "+15550100")

	client, err := cartapi.New(cartapi.Config{BaseURL: server.URL})
	if err != nil {
		test.Fatalf("cartapi.New: %v", err)
	}
	service, err := cart.NewService(client, tokenstore.NewStatic(accessToken))
	if err != nil {
		test.Fatalf("cart.NewService: %v", err)
	}
	defer service.Close()

	ctx := context.Background()
	if _, err := service.Refresh(ctx); err != nil {
		test.Fatalf("Refresh: %v", err)
	}

	productID, err := cart.NewProductID("prod-1")
	if err != nil {
		test.Fatalf("NewProductID: %v", err)
	}
	unitPrice, err := cart.NewPriceCents(1500)
	if err != nil {
		test.Fatalf("NewPriceCents: %v", err)
	}
	quantity, err := cart.NewQuantity(2)
	if err != nil {
		test.Fatalf("NewQuantity: %v", err)
	}

	added, err := service.AddProduct(ctx, productID, "Grain sack", unitPrice, quantity)
	if err != nil {
		test.Fatalf("AddProduct: %v", err)
	}
	if added.Status != cart.MutationApplied {
		test.Fatalf("add status = %q, want applied", added.Status)
	}
	line, present := added.Snapshot.ItemByProductID(productID)
	if !present {
		test.Fatalf("added product missing from snapshot: %+v", added.Snapshot.Items())
	}
	if line.Quantity.Int64() != 2 || added.Snapshot.TotalCents() != 3000 {
		test.Fatalf("snapshot after add: qty=%d total=%d", line.Quantity.Int64(), added.Snapshot.TotalCents())
	}

	increment, err := cart.NewQuantityDelta(1)
	if err != nil {
		test.Fatalf("NewQuantityDelta: %v", err)
	}
	shifted, err := service.ChangeQuantity(ctx, line.ID, increment)
	if err != nil {
		test.Fatalf("ChangeQuantity: %v", err)
	}
	line, present = shifted.Snapshot.ItemByID(line.ID)
	if !present || line.Quantity.Int64() != 3 {
		test.Fatalf("snapshot after shift: %+v", shifted.Snapshot.Items())
	}

	secondProduct, err := cart.NewProductID("prod-2")
	if err != nil {
		test.Fatalf("NewProductID: %v", err)
	}
	one, err := cart.NewQuantity(1)
	if err != nil {
		test.Fatalf("NewQuantity: %v", err)
	}
	teaPrice, err := cart.NewPriceCents(900)
	if err != nil {
		test.Fatalf("NewPriceCents: %v", err)
	}
	if _, err := service.AddProduct(ctx, secondProduct, "Tea box", teaPrice, one); err != nil {
		test.Fatalf("AddProduct second: %v", err)
	}

	removed, err := service.RemoveItem(ctx, line.ID)
	if err != nil {
		test.Fatalf("RemoveItem: %v", err)
	}
	if removed.Snapshot.Len() != 1 {
		test.Fatalf("snapshot after remove has %d lines, want 1", removed.Snapshot.Len())
	}
	if _, present := removed.Snapshot.ItemByProductID(productID); present {
		test.Fatalf("removed line still present: %+v", removed.Snapshot.Items())
	}

	cleared, err := service.Clear(ctx)
	if err != nil {
		test.Fatalf("Clear: %v", err)
	}
	if cleared.Status != cart.MutationApplied || !cleared.Snapshot.IsEmpty() {
		test.Fatalf("clear status=%q empty=%v", cleared.Status, cleared.Snapshot.IsEmpty())
	}

	final, err := service.Refresh(ctx)
	if err != nil {
		test.Fatalf("final Refresh: %v", err)
	}
	if !final.IsEmpty() {
		test.Fatalf("server still holds lines after clear: %+v", final.Items())
	}
}
