package domain

import "time"

// Store represents a physical retail location. Stock and sales imports are
// scoped to one store by its code.
type Store struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	Code      string    `gorm:"type:text;not null;uniqueIndex" json:"code"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Store.
func (Store) TableName() string {
	return "stores"
}

// Product represents a catalog item identified by SKU.
type Product struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	SKU       string    `gorm:"type:text;not null;uniqueIndex" json:"sku"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	Category  string    `gorm:"type:text;index" json:"category"`
	Barcode   string    `gorm:"type:text" json:"barcode,omitempty"`
	CostPrice float64   `json:"cost_price"`
	SalePrice float64   `json:"sale_price"`
	MinStock  int       `gorm:"default:0" json:"min_stock"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Product.
func (Product) TableName() string {
	return "products"
}

// ProductStock tracks the current stock level of one product at one store.
type ProductStock struct {
	ID           string    `gorm:"type:text;primaryKey" json:"id"`
	ProductID    string    `gorm:"type:text;not null;index:idx_product_stock,unique" json:"product_id"`
	StoreCode    string    `gorm:"type:text;not null;index:idx_product_stock,unique" json:"store_code"`
	CurrentStock int       `gorm:"default:0" json:"current_stock"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for ProductStock.
func (ProductStock) TableName() string {
	return "product_stock"
}
