package service

import (
	"context"
	"fmt"
	"time"

	"github.com/karimnasr/stockroom/internal/domain"
	"github.com/karimnasr/stockroom/internal/importfile"
)

// runProducts executes the products import pipeline: parse, then upsert-or-
// skip products in batches. A SKU that already exists counts as success plus
// a warning, so re-running the same file is harmless.
func (s *ImportService) runProducts(ctx context.Context, jobID, fileName string, data []byte) (*BatchSummary, error) {
	parsed, err := s.parser.ParseProducts(fileName, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse products file: %w", err)
	}

	records := parsed.Records
	run := BatchRun{
		JobID:        jobID,
		ItemCount:    len(records),
		TotalRecords: parsed.TotalRecords,
		Seed:         seedFrom(parsed.ErrorCount, parsed.Errors, parsed.Warnings),
	}

	return s.batch.Run(ctx, run, func(ctx context.Context, start, end int) (BatchResult, error) {
		var res BatchResult
		for _, rec := range records[start:end] {
			res.Processed++
			created, err := s.products.CreateIfNew(ctx, &domain.Product{
				ID:        newID(),
				SKU:       rec.SKU,
				Name:      rec.Name,
				Category:  rec.Category,
				Barcode:   rec.Barcode,
				CostPrice: rec.CostPrice,
				SalePrice: rec.SalePrice,
				MinStock:  rec.MinStock,
				IsActive:  true,
			})
			if err != nil {
				res.Errors++
				res.ErrorMessages = append(res.ErrorMessages,
					fmt.Sprintf("row %d: failed to save product %s: %v", rec.Row, rec.SKU, err))
				continue
			}
			res.Success++
			if !created {
				res.Warnings++
				res.WarningMessages = append(res.WarningMessages,
					fmt.Sprintf("row %d: product %s already exists, skipped", rec.Row, rec.SKU))
			}
		}
		return res, nil
	})
}

// runStock executes the initial-stock import pipeline for one store. Each row
// overwrites the absolute stock level of a known SKU; unknown SKUs fail the
// row and touch nothing.
func (s *ImportService) runStock(ctx context.Context, jobID, storeCode, fileName string, data []byte) (*BatchSummary, error) {
	parsed, err := s.parser.ParseStock(fileName, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stock file: %w", err)
	}

	records := parsed.Records
	run := BatchRun{
		JobID:        jobID,
		ItemCount:    len(records),
		TotalRecords: parsed.TotalRecords,
		Seed:         seedFrom(parsed.ErrorCount, parsed.Errors, parsed.Warnings),
	}

	return s.batch.Run(ctx, run, func(ctx context.Context, start, end int) (BatchResult, error) {
		var res BatchResult
		for _, rec := range records[start:end] {
			res.Processed++
			product, err := s.products.GetBySKU(ctx, rec.SKU)
			if err != nil {
				res.Errors++
				res.ErrorMessages = append(res.ErrorMessages,
					fmt.Sprintf("row %d: unknown SKU %s", rec.Row, rec.SKU))
				continue
			}
			if err := s.stock.SetLevel(ctx, product.ID, storeCode, rec.Quantity); err != nil {
				res.Errors++
				res.ErrorMessages = append(res.ErrorMessages,
					fmt.Sprintf("row %d: failed to set stock for %s: %v", rec.Row, rec.SKU, err))
				continue
			}
			res.Success++
		}
		return res, nil
	})
}

// runSales executes the sales import pipeline for one store. Each row records
// a sale and decrements stock by the sold quantity. Stock may go negative;
// the ledger reflects what the file says happened, not what was plausible.
func (s *ImportService) runSales(ctx context.Context, jobID, storeCode, fileName string, data []byte) (*BatchSummary, error) {
	parsed, err := s.parser.ParseSales(fileName, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sales file: %w", err)
	}

	records := parsed.Records
	run := BatchRun{
		JobID:        jobID,
		ItemCount:    len(records),
		TotalRecords: parsed.TotalRecords,
		Seed:         seedFrom(parsed.ErrorCount, parsed.Errors, parsed.Warnings),
	}

	return s.batch.Run(ctx, run, func(ctx context.Context, start, end int) (BatchResult, error) {
		var res BatchResult
		for _, rec := range records[start:end] {
			res.Processed++
			product, err := s.products.GetBySKU(ctx, rec.SKU)
			if err != nil {
				res.Errors++
				res.ErrorMessages = append(res.ErrorMessages,
					fmt.Sprintf("row %d: unknown SKU %s", rec.Row, rec.SKU))
				continue
			}

			soldAt, warn := resolveSoldAt(rec)
			if warn != "" {
				res.Warnings++
				res.WarningMessages = append(res.WarningMessages, warn)
			}

			sale := &domain.Sale{
				ID:          newID(),
				StoreCode:   storeCode,
				ProductID:   product.ID,
				Quantity:    rec.Quantity,
				UnitPrice:   rec.UnitPrice,
				SoldAt:      soldAt,
				Reference:   rec.Reference,
				ImportJobID: jobID,
			}
			if err := s.sales.Create(ctx, sale); err != nil {
				res.Errors++
				res.ErrorMessages = append(res.ErrorMessages,
					fmt.Sprintf("row %d: failed to record sale for %s: %v", rec.Row, rec.SKU, err))
				continue
			}
			if err := s.stock.Adjust(ctx, product.ID, storeCode, -rec.Quantity); err != nil {
				// The sale row is already committed; report the stock gap
				// instead of inventing a rollback.
				res.Errors++
				res.ErrorMessages = append(res.ErrorMessages,
					fmt.Sprintf("row %d: sale recorded but stock not adjusted for %s: %v", rec.Row, rec.SKU, err))
				continue
			}
			res.Success++
		}
		return res, nil
	})
}

// resolveSoldAt parses the optional sold_at cell. Empty means today; an
// unparseable value also falls back to today with a warning.
func resolveSoldAt(rec importfile.SaleRecord) (time.Time, string) {
	if rec.SoldAt == "" {
		return time.Now(), ""
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, rec.SoldAt); err == nil {
			return t, ""
		}
	}
	return time.Now(), fmt.Sprintf("row %d: unrecognized sold_at %q, using current time", rec.Row, rec.SoldAt)
}

// seedFrom packages parse-stage rejections as pre-batch results so the run's
// counters include rows that never reached a batch.
func seedFrom(errorCount int, errorMessages, warningMessages []string) BatchResult {
	return BatchResult{
		Processed:       errorCount,
		Errors:          errorCount,
		Warnings:        len(warningMessages),
		ErrorMessages:   errorMessages,
		WarningMessages: warningMessages,
	}
}
