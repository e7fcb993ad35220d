// Package gormstore persists users, the product catalog, and cart lines
// through GORM. It backs the cartserver.Store contract on both SQLite and
// PostgreSQL.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MarkoPoloResearchLab/cartsync/internal/cartserver"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19
)

// Store implements cartserver.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the backing tables.
func (store *Store) AutoMigrate() error {
	return store.db.AutoMigrate(&User{}, &Product{}, &CartLine{})
}

func (store *Store) EnsureUser(ctx context.Context, phone string) (cartserver.StoredUser, error) {
	var user User
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "phone"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"phone": clause.Expr{SQL: "excluded.phone"},
			}),
		}).
		FirstOrCreate(&user, User{Phone: phone}).Error
	if err != nil {
		return cartserver.StoredUser{}, fmt.Errorf("ensure user: %w", err)
	}
	return cartserver.StoredUser{ID: user.UserID, Phone: user.Phone}, nil
}

func (store *Store) ListProducts(ctx context.Context) ([]cartserver.StoredProduct, error) {
	var rows []Product
	err := store.db.WithContext(ctx).
		Order("created_at ASC, product_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	products := make([]cartserver.StoredProduct, 0, len(rows))
	for _, row := range rows {
		products = append(products, mapProduct(row))
	}
	return products, nil
}

func (store *Store) ProductByID(ctx context.Context, productID string) (cartserver.StoredProduct, error) {
	var row Product
	err := store.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return cartserver.StoredProduct{}, cartserver.ErrProductNotFound
		}
		return cartserver.StoredProduct{}, fmt.Errorf("get product: %w", err)
	}
	return mapProduct(row), nil
}

func (store *Store) SeedProducts(ctx context.Context, products []cartserver.StoredProduct) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		var existing int64
		if err := transaction.Model(&Product{}).Count(&existing).Error; err != nil {
			return fmt.Errorf("count products: %w", err)
		}
		if existing > 0 {
			return nil
		}
		for _, product := range products {
			row := Product{
				ProductID:   product.ID,
				Name:        product.Name,
				PriceCents:  product.PriceCents,
				ImageRef:    product.ImageRef,
				Category:    product.Category,
				Vendor:      product.Vendor,
				Description: product.Description,
			}
			if err := transaction.Create(&row).Error; err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("seed product %q: %w", product.ID, cartserver.ErrDuplicateProduct)
				}
				return fmt.Errorf("seed product %q: %w", product.ID, err)
			}
		}
		return nil
	})
}

func (store *Store) LinesByUser(ctx context.Context, userID string) ([]cartserver.StoredLine, error) {
	var rows []CartLine
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list cart lines: %w", err)
	}
	lines := make([]cartserver.StoredLine, 0, len(rows))
	for _, row := range rows {
		line, err := mapLine(row)
		if err != nil {
			return nil, fmt.Errorf("map cart line %q: %w", row.LineID, err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// UpsertLine creates or shifts the user's line for productID inside one
// transaction. The row is locked for the duration so concurrent shifts on
// the same line serialize instead of losing updates.
func (store *Store) UpsertLine(ctx context.Context, userID string, productID string, priceCents int64, quantityDelta int64) (cartserver.StoredLine, error) {
	var result cartserver.StoredLine
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		var product Product
		err := transaction.
			Where("product_id = ?", productID).
			Take(&product).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return cartserver.ErrProductNotFound
			}
			return fmt.Errorf("get product: %w", err)
		}

		var line CartLine
		err = transaction.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND product_id = ?", userID, productID).
			Take(&line).Error
		switch {
		case err == nil:
			next := line.Quantity + quantityDelta
			if next < 1 {
				return cartserver.ErrQuantityBelowMinimum
			}
			line.Quantity = next
			if err := transaction.Model(&CartLine{}).
				Where("line_id = ?", line.LineID).
				Update("quantity", next).Error; err != nil {
				return fmt.Errorf("update quantity: %w", err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if quantityDelta < 1 {
				return cartserver.ErrQuantityBelowMinimum
			}
			price := priceCents
			if price <= 0 {
				price = product.PriceCents
			}
			snapshot, err := marshalSnapshot(mapProduct(product))
			if err != nil {
				return fmt.Errorf("encode snapshot: %w", err)
			}
			line = CartLine{
				UserID:     userID,
				ProductID:  productID,
				Quantity:   quantityDelta,
				PriceCents: price,
				Snapshot:   snapshot,
			}
			// A concurrent add for the same product can land between the
			// read miss and this insert. The conflict clause folds the
			// delta into the winner's row, so the add-or-increment stays
			// idempotent under the race. The delta is at least one here,
			// so the combined quantity cannot drop below the minimum.
			err = transaction.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					"quantity": gorm.Expr("cart_lines.quantity + ?", quantityDelta),
				}),
			}).Create(&line).Error
			if err != nil {
				return fmt.Errorf("create line: %w", err)
			}
			if err := transaction.
				Where("user_id = ? AND product_id = ?", userID, productID).
				Take(&line).Error; err != nil {
				return fmt.Errorf("get line after insert: %w", err)
			}
		default:
			return fmt.Errorf("get line: %w", err)
		}

		mapped, mapErr := mapLine(line)
		if mapErr != nil {
			return fmt.Errorf("map cart line: %w", mapErr)
		}
		result = mapped
		return nil
	})
	if err != nil {
		return cartserver.StoredLine{}, err
	}
	return result, nil
}

func (store *Store) DeleteLine(ctx context.Context, userID string, lineID string) error {
	result := store.db.WithContext(ctx).
		Where("line_id = ? AND user_id = ?", lineID, userID).
		Delete(&CartLine{})
	if result.Error != nil {
		return fmt.Errorf("delete line: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return cartserver.ErrLineNotFound
	}
	return nil
}

func mapProduct(row Product) cartserver.StoredProduct {
	return cartserver.StoredProduct{
		ID:          row.ProductID,
		Name:        row.Name,
		PriceCents:  row.PriceCents,
		ImageRef:    row.ImageRef,
		Category:    row.Category,
		Vendor:      row.Vendor,
		Description: row.Description,
	}
}

// snapshotDocument is the JSON shape stored in cart_lines.snapshot.
type snapshotDocument struct {
	ProductID   string `json:"product_id"`
	Name        string `json:"name"`
	PriceCents  int64  `json:"price_cents"`
	ImageRef    string `json:"image_ref"`
	Category    string `json:"category"`
	Vendor      string `json:"vendor"`
	Description string `json:"description"`
}

func marshalSnapshot(product cartserver.StoredProduct) (datatypes.JSON, error) {
	raw, err := json.Marshal(snapshotDocument{
		ProductID:   product.ID,
		Name:        product.Name,
		PriceCents:  product.PriceCents,
		ImageRef:    product.ImageRef,
		Category:    product.Category,
		Vendor:      product.Vendor,
		Description: product.Description,
	})
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func mapLine(row CartLine) (cartserver.StoredLine, error) {
	var document snapshotDocument
	if len(row.Snapshot) > 0 {
		if err := json.Unmarshal(row.Snapshot, &document); err != nil {
			return cartserver.StoredLine{}, err
		}
	}
	return cartserver.StoredLine{
		ID:         row.LineID,
		UserID:     row.UserID,
		ProductID:  row.ProductID,
		Quantity:   row.Quantity,
		PriceCents: row.PriceCents,
		Snapshot: cartserver.StoredProduct{
			ID:          document.ProductID,
			Name:        document.Name,
			PriceCents:  document.PriceCents,
			ImageRef:    document.ImageRef,
			Category:    document.Category,
			Vendor:      document.Vendor,
			Description: document.Description,
		},
	}, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
