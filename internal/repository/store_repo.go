package repository

import (
	"context"

	"github.com/karimnasr/stockroom/internal/domain"
	"gorm.io/gorm"
)

// StoreRepository handles store lookups used for pre-admission validation.
type StoreRepository struct {
	db *gorm.DB
}

// NewStoreRepository creates a new StoreRepository.
func NewStoreRepository(db *gorm.DB) *StoreRepository {
	return &StoreRepository{db: db}
}

// Exists reports whether an active store with the given code exists.
func (r *StoreRepository) Exists(ctx context.Context, code string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Store{}).
		Where("code = ? AND is_active = ?", code, true).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetByCode retrieves a store by its code.
func (r *StoreRepository) GetByCode(ctx context.Context, code string) (*domain.Store, error) {
	var store domain.Store
	if err := r.db.WithContext(ctx).First(&store, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &store, nil
}
