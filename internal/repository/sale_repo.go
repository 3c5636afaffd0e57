package repository

import (
	"context"

	"github.com/karimnasr/stockroom/internal/domain"
	"gorm.io/gorm"
)

// SaleRepository handles sale records written by the sales import.
type SaleRepository struct {
	db *gorm.DB
}

// NewSaleRepository creates a new SaleRepository.
func NewSaleRepository(db *gorm.DB) *SaleRepository {
	return &SaleRepository{db: db}
}

// Create inserts a new sale record.
func (r *SaleRepository) Create(ctx context.Context, sale *domain.Sale) error {
	return r.db.WithContext(ctx).Create(sale).Error
}
