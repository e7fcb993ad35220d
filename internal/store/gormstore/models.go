package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User represents the users table. Phone is the login identity.
type User struct {
	UserID    string    `gorm:"type:uuid;primaryKey"`
	Phone     string    `gorm:"not null;index:idx_users_phone,unique"`
	CreatedAt time.Time `gorm:"not null"`
}

func (User) TableName() string { return "users" }

func (user *User) BeforeCreate(tx *gorm.DB) error {
	if user.UserID == "" {
		user.UserID = uuid.NewString()
	}
	return nil
}

// Product represents the products table.
type Product struct {
	ProductID   string    `gorm:"primaryKey"`
	Name        string    `gorm:"not null"`
	PriceCents  int64     `gorm:"not null"`
	ImageRef    string    `gorm:""`
	Category    string    `gorm:"index:idx_products_category"`
	Vendor      string    `gorm:""`
	Description string    `gorm:""`
	CreatedAt   time.Time `gorm:"not null"`
}

func (Product) TableName() string { return "products" }

func (product *Product) BeforeCreate(tx *gorm.DB) error {
	if product.ProductID == "" {
		product.ProductID = uuid.NewString()
	}
	return nil
}

// CartLine mirrors the cart_lines table. One user holds at most one line per
// product; Snapshot keeps the product document as it looked at add time.
type CartLine struct {
	LineID     string         `gorm:"type:uuid;primaryKey"`
	UserID     string         `gorm:"type:uuid;not null;index:idx_cart_lines_user_product,unique,priority:1"`
	ProductID  string         `gorm:"not null;index:idx_cart_lines_user_product,unique,priority:2"`
	Quantity   int64          `gorm:"not null"`
	PriceCents int64          `gorm:"not null"`
	Snapshot   datatypes.JSON `gorm:"not null"`
	CreatedAt  time.Time      `gorm:"not null"`
	UpdatedAt  time.Time      `gorm:"not null"`
}

func (CartLine) TableName() string { return "cart_lines" }

func (line *CartLine) BeforeCreate(tx *gorm.DB) error {
	if line.LineID == "" {
		line.LineID = uuid.NewString()
	}
	return nil
}
