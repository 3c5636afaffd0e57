package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/karimnasr/stockroom/internal/domain"
	"github.com/karimnasr/stockroom/internal/importfile"
	"github.com/karimnasr/stockroom/internal/logger"
	"github.com/karimnasr/stockroom/internal/repository"
	"github.com/karimnasr/stockroom/internal/storage"
	"github.com/panjf2000/ants/v2"
)

// ImportService is the import job orchestrator: it admits jobs under the
// global mutual-exclusion invariant, persists payloads, hands execution to an
// async worker pool, and exposes status queries. Once a worker owns a job, no
// other code path mutates its status except the stale job reaper.
type ImportService struct {
	jobs        JobStore
	coordinator *ImportCoordinator
	batch       *BatchProcessor
	parser      *importfile.Parser
	payloads    storage.PayloadStore
	products    ProductCatalog
	stores      StoreDirectory
	stock       StockLedger
	sales       SaleLedger
	pool        *ants.Pool
	logger      *logger.Logger
}

// ImportServiceConfig holds orchestrator tuning knobs.
type ImportServiceConfig struct {
	// PoolSize is the worker pool capacity. Mutual exclusion means at most
	// one import runs anyway; a small pool just absorbs the handoff.
	PoolSize int
}

// NewImportService creates the orchestrator and its worker pool.
// Parameters:
//   - jobs: job record store.
//   - coordinator: import lock coordinator.
//   - batch: batch processor.
//   - parser: import file parser.
//   - payloads: payload store for uploaded file bytes.
//   - products, stores, stock, sales: persistence collaborators.
//   - log: structured logger.
//   - cfg: orchestrator configuration; nil uses defaults.
// Returns:
//   - *ImportService: initialized service.
//   - error: non-nil if the worker pool cannot be created.
func NewImportService(
	jobs JobStore,
	coordinator *ImportCoordinator,
	batch *BatchProcessor,
	parser *importfile.Parser,
	payloads storage.PayloadStore,
	products ProductCatalog,
	stores StoreDirectory,
	stock StockLedger,
	sales SaleLedger,
	log *logger.Logger,
	cfg *ImportServiceConfig,
) (*ImportService, error) {
	poolSize := 2
	if cfg != nil && cfg.PoolSize > 0 {
		poolSize = cfg.PoolSize
	}
	if log == nil {
		log = logger.GetDefault()
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	return &ImportService{
		jobs:        jobs,
		coordinator: coordinator,
		batch:       batch,
		parser:      parser,
		payloads:    payloads,
		products:    products,
		stores:      stores,
		stock:       stock,
		sales:       sales,
		pool:        pool,
		logger:      log,
	}, nil
}

// Close releases the worker pool. In-flight jobs finish; queued submissions
// are rejected.
func (s *ImportService) Close() {
	s.pool.Release()
}

// Coordinator exposes the lock coordinator for callers that need delete
// guards or the administrative cleanup trigger.
func (s *ImportService) Coordinator() *ImportCoordinator {
	return s.coordinator
}

// QueueImportRequest carries one import submission.
type QueueImportRequest struct {
	FileName  string
	Data      []byte
	StoreCode string
	UserID    string
}

// QueueProductsImport admits and queues a products import.
func (s *ImportService) QueueProductsImport(ctx context.Context, req *QueueImportRequest) (*domain.ImportJob, error) {
	return s.queue(ctx, domain.JobTypeProductsImport, req)
}

// QueueStockImport admits and queues an initial-stock import for one store.
func (s *ImportService) QueueStockImport(ctx context.Context, req *QueueImportRequest) (*domain.ImportJob, error) {
	return s.queue(ctx, domain.JobTypeStockImport, req)
}

// QueueSalesImport admits and queues a sales import for one store.
func (s *ImportService) QueueSalesImport(ctx context.Context, req *QueueImportRequest) (*domain.ImportJob, error) {
	return s.queue(ctx, domain.JobTypeSalesImport, req)
}

// queue is the shared admission path: validate, pre-scan, check the
// coordinator, create atomically, persist the payload, hand off to a worker.
// Every check before TryCreateAtomically is best-effort; the atomic create is
// what actually prevents two imports from racing in.
func (s *ImportService) queue(ctx context.Context, jobType domain.JobType, req *QueueImportRequest) (*domain.ImportJob, error) {
	if len(req.Data) == 0 {
		return nil, ErrEmptyFile
	}

	if jobType.RequiresStore() {
		if req.StoreCode == "" {
			return nil, ErrStoreCodeRequired
		}
		exists, err := s.stores.Exists(ctx, req.StoreCode)
		if err != nil {
			return nil, fmt.Errorf("failed to validate store: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, req.StoreCode)
		}
		hasProducts, err := s.products.HasAny(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to check product catalog: %w", err)
		}
		if !hasProducts {
			return nil, ErrNoProducts
		}
	}

	total, err := s.parser.CountRecords(req.FileName, req.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}
	if total == 0 {
		return nil, ErrNoRecords
	}

	allowed, err := s.coordinator.IsImportAllowed(ctx, jobType, req.StoreCode)
	if err != nil {
		return nil, err
	}
	if !allowed {
		msg, err := s.coordinator.GetBlockingJobMessage(ctx, jobType, req.StoreCode)
		if err != nil {
			return nil, err
		}
		// An empty message means the blocker finished between the two reads;
		// fall through and let the atomic create settle it.
		if msg != "" {
			return nil, &BlockedError{Message: msg}
		}
	}

	now := time.Now()
	job := &domain.ImportJob{
		ID:               uuid.New().String(),
		JobType:          jobType,
		Status:           domain.JobStatusQueued,
		StoreCode:        req.StoreCode,
		TotalRecords:     total,
		StartedAt:        now,
		StartedBy:        req.UserID,
		DetailedErrors:   domain.StringArray{},
		DetailedWarnings: domain.StringArray{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.jobs.TryCreateAtomically(ctx, job); err != nil {
		var conflict *repository.JobConflictError
		if errors.As(err, &conflict) {
			return nil, &BlockedError{Message: FormatBlockingMessage(conflict.Active, jobType)}
		}
		return nil, fmt.Errorf("failed to create import job: %w", err)
	}

	payloadKey := payloadKeyFor(job.ID, req.FileName)
	if err := s.payloads.Put(ctx, payloadKey, bytes.NewReader(req.Data), int64(len(req.Data)), contentTypeFor(req.FileName)); err != nil {
		failMsg := fmt.Sprintf("failed to persist import payload: %v", err)
		if updErr := s.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusFailed, failMsg); updErr != nil {
			s.logger.WithError(updErr).Error("Failed to fail job after payload error")
		}
		return nil, fmt.Errorf("failed to persist import payload: %w", err)
	}

	submitErr := s.pool.Submit(func() {
		s.run(job.ID, jobType, req.StoreCode, req.FileName, payloadKey)
	})
	if submitErr != nil {
		failMsg := fmt.Sprintf("failed to hand off to worker: %v", submitErr)
		if updErr := s.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusFailed, failMsg); updErr != nil {
			s.logger.WithError(updErr).Error("Failed to fail job after submit error")
		}
		return nil, fmt.Errorf("failed to hand off to worker: %w", submitErr)
	}

	s.logger.WithFields(logger.Fields{
		logger.FieldJobID:     job.ID,
		logger.FieldJobType:   string(jobType),
		logger.FieldStoreCode: req.StoreCode,
		logger.FieldUserID:    req.UserID,
		logger.FieldCount:     total,
	}).Info("Import job queued")

	return job, nil
}

// run executes one import on a pool worker. It owns every status transition
// from PROCESSING to terminal; only the reaper may also touch this job.
func (s *ImportService) run(jobID string, jobType domain.JobType, storeCode, fileName, payloadKey string) {
	ctx := logger.WithFields(context.Background(), logger.Fields{
		logger.FieldJobID:     jobID,
		logger.FieldJobType:   string(jobType),
		logger.FieldComponent: "import-worker",
	})

	defer func() {
		if r := recover(); r != nil {
			logger.CtxError(ctx, "Import worker panicked: %v", r)
			msg := fmt.Sprintf("import worker panicked: %v", r)
			if err := s.jobs.UpdateStatus(ctx, jobID, domain.JobStatusFailed, msg); err != nil && !errors.Is(err, repository.ErrJobNotActive) {
				logger.CtxError(ctx, "Failed to record panic failure: %v", err)
			}
		}
	}()

	if err := s.jobs.MarkProcessing(ctx, jobID); err != nil {
		// The reaper may have already failed a long-queued job; leave it be.
		logger.CtxWarn(ctx, "Could not transition job to processing: %v", err)
		return
	}

	data, err := s.loadPayload(ctx, payloadKey)
	if err != nil {
		s.finishFailed(ctx, jobID, fmt.Errorf("failed to load import payload: %w", err))
		return
	}

	var summary *BatchSummary
	switch jobType {
	case domain.JobTypeProductsImport:
		summary, err = s.runProducts(ctx, jobID, fileName, data)
	case domain.JobTypeStockImport:
		summary, err = s.runStock(ctx, jobID, storeCode, fileName, data)
	case domain.JobTypeSalesImport:
		summary, err = s.runSales(ctx, jobID, storeCode, fileName, data)
	default:
		err = fmt.Errorf("unknown job type: %s", jobType)
	}
	if err != nil {
		s.finishFailed(ctx, jobID, err)
		return
	}

	s.finish(ctx, jobID, summary)
}

func (s *ImportService) loadPayload(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.payloads.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *ImportService) finishFailed(ctx context.Context, jobID string, cause error) {
	logger.CtxError(ctx, "Import failed: %v", cause)
	err := s.jobs.UpdateStatus(ctx, jobID, domain.JobStatusFailed, cause.Error())
	if errors.Is(err, repository.ErrJobNotActive) {
		// The stale reaper got here first; its FAILED record stands.
		logger.CtxWarn(ctx, "Job already finalized, keeping its terminal state")
		return
	}
	if err != nil {
		logger.CtxError(ctx, "Failed to record job failure: %v", err)
	}
}

func (s *ImportService) finish(ctx context.Context, jobID string, summary *BatchSummary) {
	status := domain.JobStatusCompleted
	message := ""
	if summary.ErrorRecords > 0 || summary.WarningRecords > 0 || summary.WasStopped {
		status = domain.JobStatusCompletedWithWarnings
	}
	if summary.WasStopped {
		message = fmt.Sprintf("processing stopped early: %d of %d records failed",
			summary.ErrorRecords, summary.TotalRecords)
	}

	err := s.jobs.UpdateStatus(ctx, jobID, status, message)
	if errors.Is(err, repository.ErrJobNotActive) {
		// The worker ran long enough for the reaper to force-fail the job;
		// the FAILED record is the truth callers already saw.
		logger.CtxWarn(ctx, "Job already finalized, keeping its terminal state")
		return
	}
	if err != nil {
		logger.CtxError(ctx, "Failed to record job completion: %v", err)
		return
	}

	logger.With(logger.Fields{
		logger.FieldStatus:     string(status),
		logger.FieldCount:      summary.ProcessedRecords,
		logger.FieldDurationMs: summary.Elapsed.Milliseconds(),
	}).Info(ctx, "Import finished: success=%d errors=%d warnings=%d batches=%d",
		summary.SuccessRecords, summary.ErrorRecords, summary.WarningRecords, summary.BatchCount)
}

// GetJobStatus retrieves one job by id.
func (s *ImportService) GetJobStatus(ctx context.Context, jobID string) (*domain.ImportJob, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job, nil
}

// GetUserJobs lists the jobs one user has queued, newest first.
func (s *ImportService) GetUserJobs(ctx context.Context, userID string) ([]domain.JobSummary, error) {
	jobs, err := s.jobs.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user jobs: %w", err)
	}
	return summarize(jobs), nil
}

// GetRecentJobs lists the n most recent jobs; n <= 0 defaults to 20.
func (s *ImportService) GetRecentJobs(ctx context.Context, n int) ([]domain.JobSummary, error) {
	if n <= 0 {
		n = 20
	}
	jobs, err := s.jobs.ListRecent(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent jobs: %w", err)
	}
	return summarize(jobs), nil
}

// ImportsStatus is the aggregate view for the imports dashboard.
type ImportsStatus struct {
	HasActiveJobs      bool                       `json:"has_any_active_jobs"`
	ActiveJobs         []domain.JobSummary        `json:"active_jobs"`
	PerTypeAllowed     map[domain.JobType]bool    `json:"per_type_allowed"`
	PerEntityCanDelete map[domain.EntityType]bool `json:"per_entity_can_delete"`
}

// GetImportsStatus builds the aggregate admission/delete-guard view.
// Exclusion is global, so every type shares one allowed flag.
func (s *ImportService) GetImportsStatus(ctx context.Context, storeCode string) (*ImportsStatus, error) {
	if _, err := s.coordinator.CleanupStaleJobs(ctx); err != nil {
		s.logger.WithError(err).Warn("Stale job cleanup failed before status read")
	}

	active, err := s.jobs.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active jobs: %w", err)
	}

	status := &ImportsStatus{
		HasActiveJobs:      len(active) > 0,
		ActiveJobs:         summarize(active),
		PerTypeAllowed:     make(map[domain.JobType]bool, 3),
		PerEntityCanDelete: make(map[domain.EntityType]bool, 3),
	}
	for _, t := range []domain.JobType{domain.JobTypeProductsImport, domain.JobTypeStockImport, domain.JobTypeSalesImport} {
		status.PerTypeAllowed[t] = len(active) == 0
	}
	for _, e := range []domain.EntityType{domain.EntityTypeProduct, domain.EntityTypeCustomer, domain.EntityTypeSale} {
		canDelete := true
		for _, job := range active {
			if deleteBlockedBy(e, &job, storeCode) {
				canDelete = false
				break
			}
		}
		status.PerEntityCanDelete[e] = canDelete
	}
	return status, nil
}

func summarize(jobs []domain.ImportJob) []domain.JobSummary {
	summaries := make([]domain.JobSummary, len(jobs))
	for i := range jobs {
		summaries[i] = jobs[i].Summary()
	}
	return summaries
}

func newID() string {
	return uuid.New().String()
}

func payloadKeyFor(jobID, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext == "" {
		ext = ".csv"
	}
	return "imports/" + jobID + ext
}

func contentTypeFor(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
