package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/karimnasr/stockroom/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrJobNotActive is returned when a status update targets a job that already
// reached a terminal state. Terminal states are absorbing: a worker that lost
// its job to the stale reaper gets this instead of resurrecting the record.
var ErrJobNotActive = errors.New("job is not in an active state")

// JobConflictError is returned by TryCreateAtomically when another job is
// already active. It carries the blocking job so callers can name it.
type JobConflictError struct {
	Active *domain.ImportJob
}

// Error implements the error interface.
func (e *JobConflictError) Error() string {
	return fmt.Sprintf("another import job is already active: %s (%s)",
		e.Active.JobType.Label(), e.Active.ID)
}

// admissionMu serializes job admission within the process. The row lock in
// TryCreateAtomically covers PostgreSQL; SQLite has no SELECT ... FOR UPDATE,
// so the mutex is what makes check-then-insert indivisible there.
var admissionMu sync.Mutex

// ImportJobRepository is the persistent record store for import jobs.
type ImportJobRepository struct {
	db *gorm.DB
}

// NewImportJobRepository creates a new ImportJobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ImportJobRepository: repository instance bound to db.
func NewImportJobRepository(db *gorm.DB) *ImportJobRepository {
	return &ImportJobRepository{db: db}
}

func activeStatusValues() []domain.JobStatus {
	return domain.ActiveJobStatuses
}

// TryCreateAtomically inserts the job if and only if no job anywhere in the
// store is in an active status. The existence check and the insert run in one
// transaction; concurrent callers cannot both observe "no active job".
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: fully populated job in QUEUED state.
// Returns:
//   - error: *JobConflictError if an active job exists (nothing is inserted),
//     otherwise any storage error.
func (r *ImportJobRepository) TryCreateAtomically(ctx context.Context, job *domain.ImportJob) error {
	admissionMu.Lock()
	defer admissionMu.Unlock()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("status IN ?", activeStatusValues()).
			Order("started_at ASC").
			Limit(1)
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var active []domain.ImportJob
		if err := q.Find(&active).Error; err != nil {
			return fmt.Errorf("failed to check active jobs: %w", err)
		}
		if len(active) > 0 {
			return &JobConflictError{Active: &active[0]}
		}

		return tx.Create(job).Error
	})
}

// GetByID retrieves a job by its ID.
func (r *ImportJobRepository) GetByID(ctx context.Context, id string) (*domain.ImportJob, error) {
	var job domain.ImportJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkProcessing transitions a QUEUED job to PROCESSING.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - error: non-nil if the job is not in QUEUED state or the update fails.
func (r *ImportJobRepository) MarkProcessing(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&domain.ImportJob{}).
		Where("id = ? AND status = ?", id, domain.JobStatusQueued).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusProcessing,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %s is not in %s state", id, domain.JobStatusQueued)
	}
	return nil
}

// UpdateStatus sets the job status. Only jobs in an active state can move;
// a job the reaper already force-failed stays FAILED. On a terminal status,
// CompletedAt is set once and never overwritten.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - status: new status.
//   - errorMessage: recorded when non-empty (FAILED transitions).
// Returns:
//   - error: ErrJobNotActive if the job is missing or already terminal,
//     otherwise any storage error.
func (r *ImportJobRepository) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errorMessage string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if errorMessage != "" {
		updates["error_message"] = errorMessage
	}
	if status.IsTerminal() {
		updates["completed_at"] = gorm.Expr("COALESCE(completed_at, ?)", time.Now())
	}
	res := r.db.WithContext(ctx).Model(&domain.ImportJob{}).
		Where("id = ? AND status IN ?", id, activeStatusValues()).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrJobNotActive
	}
	return nil
}

// UpdateProgress persists the running counters after a batch. The percentage
// is clamped to [0, 100].
func (r *ImportJobRepository) UpdateProgress(ctx context.Context, id string, processed, success, errorCount, warnings int, percentage float64) error {
	if percentage < 0 {
		percentage = 0
	}
	if percentage > 100 {
		percentage = 100
	}
	return r.db.WithContext(ctx).Model(&domain.ImportJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed_records":   processed,
			"success_records":     success,
			"error_records":       errorCount,
			"warning_records":     warnings,
			"progress_percentage": percentage,
			"updated_at":          time.Now(),
		}).Error
}

// AppendErrors appends detail lines to the job's error log. Only the owning
// worker appends during processing, so read-modify-write is safe here.
func (r *ImportJobRepository) AppendErrors(ctx context.Context, id string, messages []string) error {
	return r.appendDetail(ctx, id, "detailed_errors", messages)
}

// AppendWarnings appends detail lines to the job's warning log.
func (r *ImportJobRepository) AppendWarnings(ctx context.Context, id string, messages []string) error {
	return r.appendDetail(ctx, id, "detailed_warnings", messages)
}

func (r *ImportJobRepository) appendDetail(ctx context.Context, id, column string, messages []string) error {
	if len(messages) == 0 {
		return nil
	}
	var job domain.ImportJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return err
	}
	var current domain.StringArray
	switch column {
	case "detailed_errors":
		current = job.DetailedErrors
	case "detailed_warnings":
		current = job.DetailedWarnings
	}
	updated := append(current, messages...)
	return r.db.WithContext(ctx).Model(&domain.ImportJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			column:       updated,
			"updated_at": time.Now(),
		}).Error
}

// ListActive retrieves all jobs in an active status, oldest first.
func (r *ImportJobRepository) ListActive(ctx context.Context) ([]domain.ImportJob, error) {
	var jobs []domain.ImportJob
	if err := r.db.WithContext(ctx).
		Where("status IN ?", activeStatusValues()).
		Order("started_at ASC").
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// ListAll retrieves every job, newest first.
func (r *ImportJobRepository) ListAll(ctx context.Context) ([]domain.ImportJob, error) {
	var jobs []domain.ImportJob
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// ListByUser retrieves the jobs queued by one user, newest first.
func (r *ImportJobRepository) ListByUser(ctx context.Context, userID string) ([]domain.ImportJob, error) {
	var jobs []domain.ImportJob
	if err := r.db.WithContext(ctx).
		Where("started_by = ?", userID).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// ListRecent retrieves the n most recently created jobs.
func (r *ImportJobRepository) ListRecent(ctx context.Context, n int) ([]domain.ImportJob, error) {
	var jobs []domain.ImportJob
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(n).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// FailStaleBefore force-fails every active job whose StartedAt is older than
// cutoff. Side effects already committed by those jobs are not reverted.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - cutoff: jobs started before this instant are failed.
//   - message: recorded as the error message on each failed job.
// Returns:
//   - int64: number of jobs transitioned to FAILED.
//   - error: non-nil if the update fails.
func (r *ImportJobRepository) FailStaleBefore(ctx context.Context, cutoff time.Time, message string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.ImportJob{}).
		Where("status IN ? AND started_at < ?", activeStatusValues(), cutoff).
		Updates(map[string]interface{}{
			"status":        domain.JobStatusFailed,
			"error_message": message,
			"completed_at":  gorm.Expr("COALESCE(completed_at, ?)", time.Now()),
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
