package service

import (
	"context"
	"time"

	"github.com/karimnasr/stockroom/internal/domain"
)

// JobStore is the persistent record store for import jobs. Implemented by
// repository.ImportJobRepository; tests substitute an in-memory fake.
type JobStore interface {
	// TryCreateAtomically inserts the job iff no active job exists anywhere
	// in the store. The check and the insert are indivisible with respect to
	// concurrent callers; on conflict nothing is inserted and the returned
	// error identifies the blocking job.
	TryCreateAtomically(ctx context.Context, job *domain.ImportJob) error

	GetByID(ctx context.Context, id string) (*domain.ImportJob, error)
	MarkProcessing(ctx context.Context, id string) error

	// UpdateStatus moves an active job to the given status. Terminal states
	// are absorbing: once a job is COMPLETED or FAILED the update is refused
	// with repository.ErrJobNotActive.
	UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errorMessage string) error
	UpdateProgress(ctx context.Context, id string, processed, success, errorCount, warnings int, percentage float64) error
	AppendErrors(ctx context.Context, id string, messages []string) error
	AppendWarnings(ctx context.Context, id string, messages []string) error

	// ListActive returns active jobs ordered by StartedAt ascending, so the
	// oldest active job is always first.
	ListActive(ctx context.Context) ([]domain.ImportJob, error)
	ListAll(ctx context.Context) ([]domain.ImportJob, error)
	ListByUser(ctx context.Context, userID string) ([]domain.ImportJob, error)
	ListRecent(ctx context.Context, n int) ([]domain.ImportJob, error)

	// FailStaleBefore force-fails active jobs started before cutoff and
	// returns how many were failed.
	FailStaleBefore(ctx context.Context, cutoff time.Time, message string) (int64, error)
}

// ProductCatalog is the product lookup and write surface the import
// pipelines need.
type ProductCatalog interface {
	GetBySKU(ctx context.Context, sku string) (*domain.Product, error)
	HasAny(ctx context.Context) (bool, error)
	CreateIfNew(ctx context.Context, product *domain.Product) (bool, error)
}

// StoreDirectory validates store codes before admission.
type StoreDirectory interface {
	Exists(ctx context.Context, code string) (bool, error)
}

// StockLedger writes per-store stock levels.
type StockLedger interface {
	SetLevel(ctx context.Context, productID, storeCode string, quantity int) error
	Adjust(ctx context.Context, productID, storeCode string, delta int) error
}

// SaleLedger writes sale records.
type SaleLedger interface {
	Create(ctx context.Context, sale *domain.Sale) error
}
