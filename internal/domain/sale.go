package domain

import "time"

// Sale represents one sold line imported from a sales spreadsheet or recorded
// at the till. Imported sales carry the originating job id for traceability.
type Sale struct {
	ID          string    `gorm:"type:text;primaryKey" json:"id"`
	StoreCode   string    `gorm:"type:text;not null;index" json:"store_code"`
	ProductID   string    `gorm:"type:text;not null;index" json:"product_id"`
	Quantity    int       `gorm:"not null" json:"quantity"`
	UnitPrice   float64   `gorm:"not null" json:"unit_price"`
	SoldAt      time.Time `gorm:"index" json:"sold_at"`
	Reference   string    `gorm:"type:text" json:"reference,omitempty"`
	ImportJobID string    `gorm:"type:text;index" json:"import_job_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for Sale.
func (Sale) TableName() string {
	return "sales"
}

// Customer represents a registered buyer. Only referenced by the delete-guard
// policy here; customer CRUD lives elsewhere.
type Customer struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	Phone     string    `gorm:"type:text;index" json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Customer.
func (Customer) TableName() string {
	return "customers"
}
