package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/karimnasr/stockroom/internal/domain"
	"github.com/karimnasr/stockroom/internal/repository"
)

func activeJob(id string, jobType domain.JobType, storeCode string, age time.Duration) *domain.ImportJob {
	return &domain.ImportJob{
		ID:        id,
		JobType:   jobType,
		Status:    domain.JobStatusProcessing,
		StoreCode: storeCode,
		StartedAt: time.Now().Add(-age),
	}
}

// TestCleanupStaleJobs verifies the age cutoff: jobs older than the timeout
// are force-failed with the stale message, younger ones are untouched.
func TestCleanupStaleJobs(t *testing.T) {
	store := newFakeJobStore()
	store.put(activeJob("old", domain.JobTypeProductsImport, "", 3*time.Hour))
	store.put(activeJob("fresh", domain.JobTypeStockImport, "S01", time.Hour))

	c := NewImportCoordinator(store, 2*time.Hour, nil)
	reaped, err := c.CleanupStaleJobs(context.Background())
	if err != nil {
		t.Fatalf("CleanupStaleJobs failed: %v", err)
	}
	if reaped != 1 {
		t.Fatalf("reaped = %d, want 1", reaped)
	}

	old := store.mustGet("old")
	if old.Status != domain.JobStatusFailed {
		t.Errorf("stale job status = %s, want FAILED", old.Status)
	}
	if old.ErrorMessage != StaleJobMessage {
		t.Errorf("stale job message = %q, want %q", old.ErrorMessage, StaleJobMessage)
	}
	if old.CompletedAt == nil {
		t.Error("stale job has no CompletedAt")
	}

	fresh := store.mustGet("fresh")
	if fresh.Status != domain.JobStatusProcessing {
		t.Errorf("fresh job status = %s, want PROCESSING", fresh.Status)
	}

	// Second sweep finds nothing
	reaped, err = c.CleanupStaleJobs(context.Background())
	if err != nil {
		t.Fatalf("second CleanupStaleJobs failed: %v", err)
	}
	if reaped != 0 {
		t.Errorf("second sweep reaped = %d, want 0", reaped)
	}
}

// TestReapedJobStaysFailed verifies terminal states are absorbing: a worker
// waking up after the reaper force-failed its hung job cannot resurrect it to
// COMPLETED while a newly admitted import may already be running.
func TestReapedJobStaysFailed(t *testing.T) {
	store := newFakeJobStore()
	store.put(activeJob("hung", domain.JobTypeProductsImport, "", 3*time.Hour))

	c := NewImportCoordinator(store, 2*time.Hour, nil)
	reaped, err := c.CleanupStaleJobs(context.Background())
	if err != nil {
		t.Fatalf("CleanupStaleJobs failed: %v", err)
	}
	if reaped != 1 {
		t.Fatalf("reaped = %d, want 1", reaped)
	}

	// The late worker finishing its run
	err = store.UpdateStatus(context.Background(), "hung", domain.JobStatusCompleted, "")
	if !errors.Is(err, repository.ErrJobNotActive) {
		t.Fatalf("UpdateStatus on a reaped job = %v, want ErrJobNotActive", err)
	}

	job := store.mustGet("hung")
	if job.Status != domain.JobStatusFailed {
		t.Errorf("status = %s, want FAILED to stand", job.Status)
	}
	if job.ErrorMessage != StaleJobMessage {
		t.Errorf("error message = %q, want the stale message to stand", job.ErrorMessage)
	}
}

// TestIsImportAllowed verifies global exclusion: any active job of any type
// blocks every import type, and reaping a stale blocker frees admission.
func TestIsImportAllowed(t *testing.T) {
	store := newFakeJobStore()
	c := NewImportCoordinator(store, 2*time.Hour, nil)

	allowed, err := c.IsImportAllowed(context.Background(), domain.JobTypeProductsImport, "")
	if err != nil {
		t.Fatalf("IsImportAllowed failed: %v", err)
	}
	if !allowed {
		t.Error("empty store should allow imports")
	}

	store.put(activeJob("sales", domain.JobTypeSalesImport, "S01", time.Minute))

	for _, jobType := range []domain.JobType{
		domain.JobTypeProductsImport,
		domain.JobTypeStockImport,
		domain.JobTypeSalesImport,
	} {
		allowed, err := c.IsImportAllowed(context.Background(), jobType, "S02")
		if err != nil {
			t.Fatalf("IsImportAllowed(%s) failed: %v", jobType, err)
		}
		if allowed {
			t.Errorf("IsImportAllowed(%s) = true with an active sales import, want false", jobType)
		}
	}
}

// TestIsImportAllowedReapsStaleBlocker verifies the admission check runs the
// reaper first, so a crashed import cannot block forever.
func TestIsImportAllowedReapsStaleBlocker(t *testing.T) {
	store := newFakeJobStore()
	store.put(activeJob("wedged", domain.JobTypeProductsImport, "", 3*time.Hour))

	c := NewImportCoordinator(store, 2*time.Hour, nil)
	allowed, err := c.IsImportAllowed(context.Background(), domain.JobTypeStockImport, "S01")
	if err != nil {
		t.Fatalf("IsImportAllowed failed: %v", err)
	}
	if !allowed {
		t.Error("stale blocker was not reaped before the admission check")
	}
}

// TestGetBlockingJobMessage verifies the message names the blocking job's
// type, store, and id, and that the oldest active job wins.
func TestGetBlockingJobMessage(t *testing.T) {
	store := newFakeJobStore()
	store.put(activeJob("older", domain.JobTypeStockImport, "S01", 10*time.Minute))
	store.put(activeJob("newer", domain.JobTypeSalesImport, "S02", time.Minute))

	c := NewImportCoordinator(store, 2*time.Hour, nil)
	msg, err := c.GetBlockingJobMessage(context.Background(), domain.JobTypeProductsImport, "")
	if err != nil {
		t.Fatalf("GetBlockingJobMessage failed: %v", err)
	}

	for _, want := range []string{"products import", "stock import", "for store S01", "older", "running"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q does not contain %q", msg, want)
		}
	}
	if strings.Contains(msg, "newer") {
		t.Errorf("message %q names the newer job, want the oldest", msg)
	}
}

// TestGetBlockingJobMessageEmpty verifies no message when nothing is active.
func TestGetBlockingJobMessageEmpty(t *testing.T) {
	c := NewImportCoordinator(newFakeJobStore(), 2*time.Hour, nil)
	msg, err := c.GetBlockingJobMessage(context.Background(), domain.JobTypeProductsImport, "")
	if err != nil {
		t.Fatalf("GetBlockingJobMessage failed: %v", err)
	}
	if msg != "" {
		t.Errorf("message = %q, want empty", msg)
	}
}

// TestHasActiveJobs verifies the type and store filters.
func TestHasActiveJobs(t *testing.T) {
	store := newFakeJobStore()
	store.put(activeJob("sales", domain.JobTypeSalesImport, "S01", time.Minute))

	c := NewImportCoordinator(store, 2*time.Hour, nil)

	testCases := []struct {
		name      string
		jobType   domain.JobType
		storeCode string
		want      bool
	}{
		{name: "same type same store", jobType: domain.JobTypeSalesImport, storeCode: "S01", want: true},
		{name: "same type other store", jobType: domain.JobTypeSalesImport, storeCode: "S02", want: false},
		{name: "same type unscoped", jobType: domain.JobTypeSalesImport, storeCode: "", want: true},
		{name: "other type", jobType: domain.JobTypeProductsImport, storeCode: "", want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.HasActiveJobs(context.Background(), tc.jobType, tc.storeCode)
			if err != nil {
				t.Fatalf("HasActiveJobs failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("HasActiveJobs(%s, %q) = %v, want %v", tc.jobType, tc.storeCode, got, tc.want)
			}
		})
	}
}

// TestCanDelete verifies the delete-guard policy per entity type.
func TestCanDelete(t *testing.T) {
	testCases := []struct {
		name       string
		active     *domain.ImportJob
		entityType domain.EntityType
		storeCode  string
		want       bool
	}{
		{
			name:       "no active jobs allows product delete",
			entityType: domain.EntityTypeProduct,
			want:       true,
		},
		{
			name:       "products import blocks product delete",
			active:     activeJob("p", domain.JobTypeProductsImport, "", time.Minute),
			entityType: domain.EntityTypeProduct,
			want:       false,
		},
		{
			name:       "stock import blocks product delete",
			active:     activeJob("st", domain.JobTypeStockImport, "S01", time.Minute),
			entityType: domain.EntityTypeProduct,
			want:       false,
		},
		{
			name:       "stock import does not block customer delete",
			active:     activeJob("st", domain.JobTypeStockImport, "S01", time.Minute),
			entityType: domain.EntityTypeCustomer,
			want:       true,
		},
		{
			name:       "sales import blocks customer delete",
			active:     activeJob("sa", domain.JobTypeSalesImport, "S01", time.Minute),
			entityType: domain.EntityTypeCustomer,
			want:       false,
		},
		{
			name:       "sales import blocks sale delete in same store",
			active:     activeJob("sa", domain.JobTypeSalesImport, "S01", time.Minute),
			entityType: domain.EntityTypeSale,
			storeCode:  "S01",
			want:       false,
		},
		{
			name:       "sales import does not block sale delete in other store",
			active:     activeJob("sa", domain.JobTypeSalesImport, "S01", time.Minute),
			entityType: domain.EntityTypeSale,
			storeCode:  "S02",
			want:       true,
		},
		{
			name:       "products import does not block sale delete",
			active:     activeJob("p", domain.JobTypeProductsImport, "", time.Minute),
			entityType: domain.EntityTypeSale,
			storeCode:  "S01",
			want:       true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeJobStore()
			if tc.active != nil {
				store.put(tc.active)
			}
			c := NewImportCoordinator(store, 2*time.Hour, nil)
			got, err := c.CanDelete(context.Background(), tc.entityType, tc.storeCode)
			if err != nil {
				t.Fatalf("CanDelete failed: %v", err)
			}
			if got != tc.want {
				t.Errorf("CanDelete(%s, %q) = %v, want %v", tc.entityType, tc.storeCode, got, tc.want)
			}
		})
	}
}
