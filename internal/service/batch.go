package service

import (
	"context"
	"fmt"
	"time"

	"github.com/karimnasr/stockroom/internal/logger"
)

// DefaultBatchPause is the delay between non-final batches. Throttling only;
// never required for correctness.
const DefaultBatchPause = 100 * time.Millisecond

// BatchResult is what a handler reports for one chunk of records.
type BatchResult struct {
	Processed       int
	Success         int
	Errors          int
	Warnings        int
	ErrorMessages   []string
	WarningMessages []string
}

// BatchSummary aggregates a whole processing run.
type BatchSummary struct {
	TotalRecords     int
	ProcessedRecords int
	SuccessRecords   int
	ErrorRecords     int
	WarningRecords   int
	BatchCount       int
	WasStopped       bool
	Elapsed          time.Duration
}

// BatchFunc processes the records in [start, end). Returning an error counts
// the whole chunk as failed; processing then continues with the next chunk
// unless the cumulative error threshold is crossed.
type BatchFunc func(ctx context.Context, start, end int) (BatchResult, error)

// BatchRun describes one chunked processing run over a job's records.
type BatchRun struct {
	JobID string
	// ItemCount is the number of records entering batch processing.
	ItemCount int
	// TotalRecords is the job's fixed total; the error-stop threshold is
	// measured against it, not against ItemCount.
	TotalRecords int
	BatchSize    int
	// Seed carries counts and messages from work done before the first batch
	// (rows rejected by the file parse).
	Seed BatchResult
}

// BatchProcessor drives chunked processing for one job: fixed-size batches in
// input order, per-batch persistence of errors, warnings, and progress, and a
// stop-on-excessive-failure policy at 50% cumulative errors.
type BatchProcessor struct {
	jobs   JobStore
	pause  time.Duration
	logger *logger.Logger
}

// NewBatchProcessor creates a new BatchProcessor.
// Parameters:
//   - jobs: job record store used to persist per-batch progress.
//   - pause: delay between non-final batches; 0 uses the default.
//   - log: structured logger.
// Returns:
//   - *BatchProcessor: initialized processor.
func NewBatchProcessor(jobs JobStore, pause time.Duration, log *logger.Logger) *BatchProcessor {
	if pause <= 0 {
		pause = DefaultBatchPause
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &BatchProcessor{
		jobs:   jobs,
		pause:  pause,
		logger: log,
	}
}

// BatchSizeFor picks a batch size from the total record count. Small files
// get small batches; the step function is monotonically non-decreasing.
func BatchSizeFor(total int) int {
	switch {
	case total <= 50:
		return 10
	case total <= 500:
		return 50
	case total <= 5000:
		return 100
	default:
		return 250
	}
}

// Run executes the batches for one job and persists progress after each.
// Errors and warnings are written immediately, prefixed with the batch
// number, so pollers see partial progress even if a later batch fails.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - run: run description including job id, counts, and seed.
//   - fn: per-batch handler.
// Returns:
//   - *BatchSummary: aggregated counters; WasStopped reports an early stop.
//   - error: non-nil only when progress cannot be persisted.
func (p *BatchProcessor) Run(ctx context.Context, run BatchRun, fn BatchFunc) (*BatchSummary, error) {
	start := time.Now()

	batchSize := run.BatchSize
	if batchSize <= 0 {
		batchSize = BatchSizeFor(run.TotalRecords)
	}

	summary := &BatchSummary{
		TotalRecords:     run.TotalRecords,
		ProcessedRecords: run.Seed.Processed,
		SuccessRecords:   run.Seed.Success,
		ErrorRecords:     run.Seed.Errors,
		WarningRecords:   run.Seed.Warnings,
	}

	if err := p.jobs.AppendErrors(ctx, run.JobID, run.Seed.ErrorMessages); err != nil {
		return summary, fmt.Errorf("failed to record parse errors: %w", err)
	}
	if err := p.jobs.AppendWarnings(ctx, run.JobID, run.Seed.WarningMessages); err != nil {
		return summary, fmt.Errorf("failed to record parse warnings: %w", err)
	}

	totalBatches := (run.ItemCount + batchSize - 1) / batchSize
	if totalBatches == 0 {
		// Nothing survived the parse; persist the seed counters so pollers
		// still see the final tallies.
		if err := p.jobs.UpdateProgress(ctx, run.JobID,
			summary.ProcessedRecords, summary.SuccessRecords,
			summary.ErrorRecords, summary.WarningRecords, 100); err != nil {
			return summary, fmt.Errorf("failed to persist progress: %w", err)
		}
		summary.Elapsed = time.Since(start)
		return summary, nil
	}

	for i := 0; i < totalBatches; i++ {
		batchStart := i * batchSize
		batchEnd := batchStart + batchSize
		if batchEnd > run.ItemCount {
			batchEnd = run.ItemCount
		}

		batchBegan := time.Now()
		res, err := fn(ctx, batchStart, batchEnd)
		if err != nil {
			// A handler failure takes the whole chunk down with it.
			size := batchEnd - batchStart
			res = BatchResult{
				Processed:     size,
				Errors:        size,
				ErrorMessages: []string{fmt.Sprintf("failed to process %d records: %v", size, err)},
			}
		}

		summary.ProcessedRecords += res.Processed
		summary.SuccessRecords += res.Success
		summary.ErrorRecords += res.Errors
		summary.WarningRecords += res.Warnings
		summary.BatchCount++

		if err := p.jobs.AppendErrors(ctx, run.JobID, prefixBatch(i+1, res.ErrorMessages)); err != nil {
			return summary, fmt.Errorf("failed to record batch errors: %w", err)
		}
		if err := p.jobs.AppendWarnings(ctx, run.JobID, prefixBatch(i+1, res.WarningMessages)); err != nil {
			return summary, fmt.Errorf("failed to record batch warnings: %w", err)
		}

		percentage := float64(i+1) / float64(totalBatches) * 100
		if err := p.jobs.UpdateProgress(ctx, run.JobID,
			summary.ProcessedRecords, summary.SuccessRecords,
			summary.ErrorRecords, summary.WarningRecords, percentage); err != nil {
			return summary, fmt.Errorf("failed to persist progress: %w", err)
		}

		logger.With(logger.Fields{
			logger.FieldBatch:      i + 1,
			logger.FieldCount:      res.Processed,
			logger.FieldDurationMs: time.Since(batchBegan).Milliseconds(),
		}).Debug(ctx, "Batch completed: %d/%d, errors=%d", i+1, totalBatches, summary.ErrorRecords)

		// Stop once more than half of all records have failed; a file that
		// broken is not worth finishing.
		if summary.ErrorRecords*2 > run.TotalRecords {
			summary.WasStopped = true
			logger.CtxWarn(ctx, "Stopping early: %d of %d records failed", summary.ErrorRecords, run.TotalRecords)
			break
		}

		if i < totalBatches-1 {
			select {
			case <-ctx.Done():
				summary.WasStopped = true
				summary.Elapsed = time.Since(start)
				return summary, ctx.Err()
			case <-time.After(p.pause):
			}
		}
	}

	summary.Elapsed = time.Since(start)
	return summary, nil
}

func prefixBatch(batchNum int, messages []string) []string {
	if len(messages) == 0 {
		return nil
	}
	prefixed := make([]string, len(messages))
	for i, m := range messages {
		prefixed[i] = fmt.Sprintf("batch %d: %s", batchNum, m)
	}
	return prefixed
}
