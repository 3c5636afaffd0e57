package repository

import (
	"context"

	"github.com/karimnasr/stockroom/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProductRepository handles product catalog operations.
type ProductRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new ProductRepository.
func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetBySKU retrieves a product by its SKU.
func (r *ProductRepository) GetBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	var product domain.Product
	if err := r.db.WithContext(ctx).First(&product, "sku = ?", sku).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// HasAny reports whether any active products exist. Stock and sales imports
// are rejected before admission when the catalog is empty.
func (r *ProductRepository) HasAny(ctx context.Context) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Product{}).
		Where("is_active = ?", true).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateIfNew inserts the product unless its SKU already exists.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - product: product record to insert.
// Returns:
//   - bool: true if the row was inserted, false if the SKU already existed.
//   - error: non-nil if the insert fails.
func (r *ProductRepository) CreateIfNew(ctx context.Context, product *domain.Product) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}},
		DoNothing: true,
	}).Create(product)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
