package gormstore

import (
	"context"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/cartsync/internal/cartserver"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestStore(test *testing.T) *Store {
	test.Helper()
	database, err := gorm.Open(sqlite.Open(test.TempDir()+"/cart.db"), &gorm.Config{})
	if err != nil {
		test.Fatalf("sqlite open failed: %v", err)
	}
	store := New(database)
	if err := store.AutoMigrate(); err != nil {
		test.Fatalf("migrate failed: %v", err)
	}
	return store
}

func seedCatalog(test *testing.T, store *Store) {
	test.Helper()
	err := store.SeedProducts(context.Background(), []cartserver.StoredProduct{
		{ID: "prod-1", Name: "Grain sack", PriceCents: 1500, ImageRef: "https://img.example/grain.png", Category: "staples", Vendor: "Millhouse"},
		{ID: "prod-2", Name: "Tea box", PriceCents: 900, Category: "drinks", Vendor: "Leafworks"},
	})
	if err != nil {
		test.Fatalf("SeedProducts: %v", err)
	}
}

func TestEnsureUserIsIdempotentPerPhone(test *testing.T) {
	test.Parallel()
	store := openTestStore(test)

	first, err := store.EnsureUser(context.Background(), "+15550100")
	if err != nil {
		test.Fatalf("EnsureUser: %v", err)
	}
	second, err := store.EnsureUser(context.Background(), "+15550100")
	if err != nil {
		test.Fatalf("EnsureUser again: %v", err)
	}
	if first.ID != second.ID {
		test.Errorf("repeated login produced new user: %q vs %q", first.ID, second.ID)
	}
	other, err := store.EnsureUser(context.Background(), "+15550101")
	if err != nil {
		test.Fatalf("EnsureUser other phone: %v", err)
	}
	if other.ID == first.ID {
		test.Errorf("distinct phones share user id %q", other.ID)
	}
}

func TestSeedProductsRunsOnce(test *testing.T) {
	test.Parallel()
	store := openTestStore(test)
	seedCatalog(test, store)

	err := store.SeedProducts(context.Background(), []cartserver.StoredProduct{
		{ID: "prod-3", Name: "Soap bar", PriceCents: 300},
	})
	if err != nil {
		test.Fatalf("second SeedProducts: %v", err)
	}
	products, err := store.ListProducts(context.Background())
	if err != nil {
		test.Fatalf("ListProducts: %v", err)
	}
	if len(products) != 2 {
		test.Fatalf("products = %d, want 2", len(products))
	}
}

func TestProductByIDMissing(test *testing.T) {
	test.Parallel()
	store := openTestStore(test)
	seedCatalog(test, store)

	if _, err := store.ProductByID(context.Background(), "prod-absent"); !errors.Is(err, cartserver.ErrProductNotFound) {
		test.Fatalf("error = %v, want %v", err, cartserver.ErrProductNotFound)
	}
}

func TestUpsertLineCreatesThenIncrements(test *testing.T) {
	test.Parallel()
	store := openTestStore(test)
	seedCatalog(test, store)
	user, err := store.EnsureUser(context.Background(), "+15550100")
	if err != nil {
		test.Fatalf("EnsureUser: %v", err)
	}

	created, err := store.UpsertLine(context.Background(), user.ID, "prod-1", 0, 1)
	if err != nil {
		test.Fatalf("UpsertLine create: %v", err)
	}
	if created.Quantity != 1 {
		test.Errorf("quantity = %d, want 1", created.Quantity)
	}
	if created.PriceCents != 1500 {
		test.Errorf("price fell back to %d, want catalog price 1500", created.PriceCents)
	}
	if created.Snapshot.Name != "Grain sack" || created.Snapshot.ID != "prod-1" {
		test.Errorf("snapshot = %+v", created.Snapshot)
	}

	shifted, err := store.UpsertLine(context.Background(), user.ID, "prod-1", 1500, 2)
	if err != nil {
		test.Fatalf("UpsertLine increment: %v", err)
	}
	if shifted.ID != created.ID {
		test.Errorf("increment created a second line: %q vs %q", shifted.ID, created.ID)
	}
	if shifted.Quantity != 3 {
		test.Errorf("quantity = %d, want 3", shifted.Quantity)
	}

	lines, err := store.LinesByUser(context.Background(), user.ID)
	if err != nil {
		test.Fatalf("LinesByUser: %v", err)
	}
	if len(lines) != 1 {
		test.Fatalf("lines = %d, want 1", len(lines))
	}
}

func TestUpsertLineRejectsDropBelowOne(test *testing.T) {
	test.Parallel()
	store := openTestStore(test)
	seedCatalog(test, store)
	user, err := store.EnsureUser(context.Background(), "+15550100")
	if err != nil {
		test.Fatalf("EnsureUser: %v", err)
	}

	if _, err := store.UpsertLine(context.Background(), user.ID, "prod-1", 0, -1); !errors.Is(err, cartserver.ErrQuantityBelowMinimum) {
		test.Fatalf("fresh negative delta error = %v, want %v", err, cartserver.ErrQuantityBelowMinimum)
	}
	if _, err := store.UpsertLine(context.Background(), user.ID, "prod-1", 0, 1); err != nil {
		test.Fatalf("UpsertLine create: %v", err)
	}
	if _, err := store.UpsertLine(context.Background(), user.ID, "prod-1", 0, -1); !errors.Is(err, cartserver.ErrQuantityBelowMinimum) {
		test.Fatalf("drop below one error = %v, want %v", err, cartserver.ErrQuantityBelowMinimum)
	}

	lines, err := store.LinesByUser(context.Background(), user.ID)
	if err != nil {
		test.Fatalf("LinesByUser: %v", err)
	}
	if len(lines) != 1 || lines[0].Quantity != 1 {
		test.Fatalf("rejected shift touched the line: %+v", lines)
	}
}

// TestUpsertLineSurvivesDuplicateInsertRace wedges a conflicting insert into
// the window between the read miss and the create, through a callback firing
// on the same transaction. The delta must fold into the winner's row instead
// of failing on the unique index.
func TestUpsertLineSurvivesDuplicateInsertRace(test *testing.T) {
	test.Parallel()
	database, err := gorm.Open(sqlite.Open(test.TempDir()+"/cart.db"), &gorm.Config{})
	if err != nil {
		test.Fatalf("sqlite open failed: %v", err)
	}
	store := New(database)
	if err := store.AutoMigrate(); err != nil {
		test.Fatalf("migrate failed: %v", err)
	}
	seedCatalog(test, store)
	user, err := store.EnsureUser(context.Background(), "+15550100")
	if err != nil {
		test.Fatalf("EnsureUser: %v", err)
	}

	raced := false
	err = database.Callback().Create().Before("gorm:create").Register("conflicting_line_insert", func(tx *gorm.DB) {
		if raced || tx.Statement.Table != "cart_lines" {
			return
		}
		raced = true
		insert := tx.Session(&gorm.Session{NewDB: true}).Exec(
			"INSERT INTO cart_lines (line_id, user_id, product_id, quantity, price_cents, snapshot, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)",
			"line-raced", user.ID, "prod-1", int64(5), int64(1500), "{}")
		if insert.Error != nil {
			test.Errorf("conflicting insert: %v", insert.Error)
		}
	})
	if err != nil {
		test.Fatalf("register callback: %v", err)
	}

	line, err := store.UpsertLine(context.Background(), user.ID, "prod-1", 0, 2)
	if err != nil {
		test.Fatalf("UpsertLine under race: %v", err)
	}
	if !raced {
		test.Fatalf("conflicting insert never fired")
	}
	if line.ID != "line-raced" {
		test.Errorf("line id = %q, want the race winner's row", line.ID)
	}
	if line.Quantity != 7 {
		test.Errorf("quantity = %d, want 5+2", line.Quantity)
	}

	lines, err := store.LinesByUser(context.Background(), user.ID)
	if err != nil {
		test.Fatalf("LinesByUser: %v", err)
	}
	if len(lines) != 1 {
		test.Fatalf("lines = %d, want 1", len(lines))
	}
}

func TestSeedProductsRejectsDuplicateIDs(test *testing.T) {
	test.Parallel()
	store := openTestStore(test)

	err := store.SeedProducts(context.Background(), []cartserver.StoredProduct{
		{ID: "prod-1", Name: "Grain sack", PriceCents: 1500},
		{ID: "prod-1", Name: "Grain sack again", PriceCents: 1500},
	})
	if !errors.Is(err, cartserver.ErrDuplicateProduct) {
		test.Fatalf("error = %v, want %v", err, cartserver.ErrDuplicateProduct)
	}
}

func TestUpsertLineUnknownProduct(test *testing.T) {
	test.Parallel()
	store := openTestStore(test)
	seedCatalog(test, store)

	if _, err := store.UpsertLine(context.Background(), "user-1", "prod-absent", 0, 1); !errors.Is(err, cartserver.ErrProductNotFound) {
		test.Fatalf("error = %v, want %v", err, cartserver.ErrProductNotFound)
	}
}

func TestDeleteLineIsScopedToOwner(test *testing.T) {
	test.Parallel()
	store := openTestStore(test)
	seedCatalog(test, store)
	owner, err := store.EnsureUser(context.Background(), "+15550100")
	if err != nil {
		test.Fatalf("EnsureUser: %v", err)
	}
	stranger, err := store.EnsureUser(context.Background(), "+15550101")
	if err != nil {
		test.Fatalf("EnsureUser stranger: %v", err)
	}
	line, err := store.UpsertLine(context.Background(), owner.ID, "prod-1", 0, 1)
	if err != nil {
		test.Fatalf("UpsertLine: %v", err)
	}

	if err := store.DeleteLine(context.Background(), stranger.ID, line.ID); !errors.Is(err, cartserver.ErrLineNotFound) {
		test.Fatalf("stranger delete error = %v, want %v", err, cartserver.ErrLineNotFound)
	}
	if err := store.DeleteLine(context.Background(), owner.ID, line.ID); err != nil {
		test.Fatalf("owner delete: %v", err)
	}
	if err := store.DeleteLine(context.Background(), owner.ID, line.ID); !errors.Is(err, cartserver.ErrLineNotFound) {
		test.Fatalf("second delete error = %v, want %v", err, cartserver.ErrLineNotFound)
	}
}

func TestLinesAreScopedPerUser(test *testing.T) {
	test.Parallel()
	store := openTestStore(test)
	seedCatalog(test, store)
	first, err := store.EnsureUser(context.Background(), "+15550100")
	if err != nil {
		test.Fatalf("EnsureUser: %v", err)
	}
	second, err := store.EnsureUser(context.Background(), "+15550101")
	if err != nil {
		test.Fatalf("EnsureUser second: %v", err)
	}
	if _, err := store.UpsertLine(context.Background(), first.ID, "prod-1", 0, 1); err != nil {
		test.Fatalf("UpsertLine: %v", err)
	}

	lines, err := store.LinesByUser(context.Background(), second.ID)
	if err != nil {
		test.Fatalf("LinesByUser: %v", err)
	}
	if len(lines) != 0 {
		test.Fatalf("second user's lines = %d, want 0", len(lines))
	}
}
