package service

import (
	"context"
	"fmt"
	"time"

	"github.com/karimnasr/stockroom/internal/domain"
	"github.com/karimnasr/stockroom/internal/logger"
)

// StaleJobMessage is recorded on jobs the reaper force-fails.
const StaleJobMessage = "import exceeded the maximum allowed runtime and was marked as failed"

// DefaultStaleTimeout is the age after which an active job is presumed
// crashed. There is no heartbeat or lease renewal; the absolute age cutoff is
// the only self-healing mechanism.
const DefaultStaleTimeout = 2 * time.Hour

// ImportCoordinator decides whether a new import may start. Exclusion is
// global: imports of different types mutate the same product and stock rows,
// so one active job of any type blocks all admission. The atomic create in
// the job store is the source of truth; everything here is a best-effort read
// on top of it.
type ImportCoordinator struct {
	jobs         JobStore
	staleTimeout time.Duration
	logger       *logger.Logger
}

// NewImportCoordinator creates a new ImportCoordinator.
// Parameters:
//   - jobs: job record store.
//   - staleTimeout: age cutoff for the stale job reaper; 0 uses the default.
//   - log: structured logger.
// Returns:
//   - *ImportCoordinator: initialized coordinator.
func NewImportCoordinator(jobs JobStore, staleTimeout time.Duration, log *logger.Logger) *ImportCoordinator {
	if staleTimeout <= 0 {
		staleTimeout = DefaultStaleTimeout
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &ImportCoordinator{
		jobs:         jobs,
		staleTimeout: staleTimeout,
		logger:       log,
	}
}

// CleanupStaleJobs force-fails active jobs older than the stale timeout so a
// crashed worker cannot permanently wedge admission. Side effects already
// committed by a reaped job are not reverted. Idempotent.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int64: number of jobs reaped.
//   - error: non-nil if the store update fails.
func (c *ImportCoordinator) CleanupStaleJobs(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-c.staleTimeout)
	reaped, err := c.jobs.FailStaleBefore(ctx, cutoff, StaleJobMessage)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up stale jobs: %w", err)
	}
	if reaped > 0 {
		c.logger.WithFields(logger.Fields{
			logger.FieldCount: reaped,
		}).Warn("Reaped stale import jobs")
	}
	return reaped, nil
}

// IsImportAllowed reports whether a new import of the given type may start.
// Runs the stale job reaper first, then checks for active jobs of ANY type.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobType: type of the import being requested (logged, not filtered on).
//   - storeCode: store scope of the request, empty for product imports.
// Returns:
//   - bool: true iff zero jobs anywhere are in an active status.
//   - error: non-nil if the store cannot be queried.
func (c *ImportCoordinator) IsImportAllowed(ctx context.Context, jobType domain.JobType, storeCode string) (bool, error) {
	if _, err := c.CleanupStaleJobs(ctx); err != nil {
		// A failed cleanup must not wedge admission; stale jobs will still
		// block until the next successful sweep.
		c.logger.WithError(err).Warn("Stale job cleanup failed before admission check")
	}

	active, err := c.jobs.ListActive(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list active jobs: %w", err)
	}
	return len(active) == 0, nil
}

// HasActiveJobs reports whether any job of one specific type is active,
// optionally narrowed to one store. Used for delete-guard decisions, not for
// admission.
func (c *ImportCoordinator) HasActiveJobs(ctx context.Context, jobType domain.JobType, storeCode string) (bool, error) {
	active, err := c.jobs.ListActive(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list active jobs: %w", err)
	}
	for _, job := range active {
		if job.JobType != jobType {
			continue
		}
		if storeCode != "" && job.StoreCode != "" && job.StoreCode != storeCode {
			continue
		}
		return true, nil
	}
	return false, nil
}

// GetBlockingJobMessage describes the job blocking a requested import, or ""
// when nothing blocks. The oldest active job by StartedAt is named, so
// concurrent pollers see a stable message.
func (c *ImportCoordinator) GetBlockingJobMessage(ctx context.Context, jobType domain.JobType, storeCode string) (string, error) {
	active, err := c.jobs.ListActive(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list active jobs: %w", err)
	}
	if len(active) == 0 {
		return "", nil
	}
	return FormatBlockingMessage(&active[0], jobType), nil
}

// FormatBlockingMessage builds the admission-conflict message naming the
// blocking job, its type, store, and id.
func FormatBlockingMessage(blocking *domain.ImportJob, requested domain.JobType) string {
	scope := ""
	if blocking.StoreCode != "" {
		scope = fmt.Sprintf(" for store %s", blocking.StoreCode)
	}
	return fmt.Sprintf("cannot start %s: a %s%s is already %s (job %s, started %s)",
		requested.Label(),
		blocking.JobType.Label(),
		scope,
		statusVerb(blocking.Status),
		blocking.ID,
		blocking.StartedAt.Format(time.RFC3339),
	)
}

func statusVerb(status domain.JobStatus) string {
	if status == domain.JobStatusProcessing {
		return "running"
	}
	return "queued"
}

// CanDelete reports whether an entity of the given type may be deleted right
// now. The policy is a pure function of which job types are currently active:
//   - PRODUCT is blocked by any active import (all three touch product rows).
//   - CUSTOMER is blocked by an active sales import.
//   - SALE is blocked by an active sales import scoped to its store.
func (c *ImportCoordinator) CanDelete(ctx context.Context, entityType domain.EntityType, storeCode string) (bool, error) {
	active, err := c.jobs.ListActive(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list active jobs: %w", err)
	}
	for _, job := range active {
		if deleteBlockedBy(entityType, &job, storeCode) {
			return false, nil
		}
	}
	return true, nil
}

func deleteBlockedBy(entityType domain.EntityType, job *domain.ImportJob, storeCode string) bool {
	switch entityType {
	case domain.EntityTypeProduct:
		return true
	case domain.EntityTypeCustomer:
		return job.JobType == domain.JobTypeSalesImport
	case domain.EntityTypeSale:
		if job.JobType != domain.JobTypeSalesImport {
			return false
		}
		return storeCode == "" || job.StoreCode == "" || job.StoreCode == storeCode
	default:
		return false
	}
}
