package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/karimnasr/stockroom/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockRepository handles per-store stock levels.
type StockRepository struct {
	db *gorm.DB
}

// NewStockRepository creates a new StockRepository.
func NewStockRepository(db *gorm.DB) *StockRepository {
	return &StockRepository{db: db}
}

// SetLevel sets the stock level for one product at one store, creating the
// row if it does not exist. Used by the initial-stock import.
func (r *StockRepository) SetLevel(ctx context.Context, productID, storeCode string, quantity int) error {
	stock := &domain.ProductStock{
		ID:           uuid.New().String(),
		ProductID:    productID,
		StoreCode:    storeCode,
		CurrentStock: quantity,
		UpdatedAt:    time.Now(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}, {Name: "store_code"}},
		DoUpdates: clause.AssignmentColumns([]string{"current_stock", "updated_at"}),
	}).Create(stock).Error
}

// Adjust applies a delta to the stock level, creating the row when absent.
// Imported sales decrement through here; levels may go negative, which is
// surfaced to operators as a data problem rather than rejected.
func (r *StockRepository) Adjust(ctx context.Context, productID, storeCode string, delta int) error {
	res := r.db.WithContext(ctx).Model(&domain.ProductStock{}).
		Where("product_id = ? AND store_code = ?", productID, storeCode).
		Updates(map[string]interface{}{
			"current_stock": gorm.Expr("current_stock + ?", delta),
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return r.db.WithContext(ctx).Create(&domain.ProductStock{
			ID:           uuid.New().String(),
			ProductID:    productID,
			StoreCode:    storeCode,
			CurrentStock: delta,
			UpdatedAt:    time.Now(),
		}).Error
	}
	return nil
}

// GetLevel retrieves the current stock for one product at one store.
func (r *StockRepository) GetLevel(ctx context.Context, productID, storeCode string) (int, error) {
	var stock domain.ProductStock
	err := r.db.WithContext(ctx).
		First(&stock, "product_id = ? AND store_code = ?", productID, storeCode).Error
	if err != nil {
		return 0, err
	}
	return stock.CurrentStock, nil
}
