package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/karimnasr/stockroom/internal/domain"
	"github.com/karimnasr/stockroom/internal/repository"
)

// fakeJobStore is an in-memory JobStore with the same admission semantics as
// the real repository: check-then-insert under one lock.
type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.ImportJob

	// progressUpdates records every percentage passed to UpdateProgress.
	progressUpdates []float64
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*domain.ImportJob)}
}

func (f *fakeJobStore) TryCreateAtomically(ctx context.Context, job *domain.ImportJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.Status.IsActive() {
			blocking := *j
			return &repository.JobConflictError{Active: &blocking}
		}
	}
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeJobStore) GetByID(ctx context.Context, id string) (*domain.ImportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, errors.New("record not found")
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobStore) MarkProcessing(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok || j.Status != domain.JobStatusQueued {
		return errors.New("job is not queued")
	}
	j.Status = domain.JobStatusProcessing
	return nil
}

func (f *fakeJobStore) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok || !j.Status.IsActive() {
		return repository.ErrJobNotActive
	}
	j.Status = status
	if errorMessage != "" {
		j.ErrorMessage = errorMessage
	}
	if status.IsTerminal() && j.CompletedAt == nil {
		now := time.Now()
		j.CompletedAt = &now
	}
	return nil
}

func (f *fakeJobStore) UpdateProgress(ctx context.Context, id string, processed, success, errorCount, warnings int, percentage float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return errors.New("record not found")
	}
	j.ProcessedRecords = processed
	j.SuccessRecords = success
	j.ErrorRecords = errorCount
	j.WarningRecords = warnings
	j.ProgressPercentage = percentage
	f.progressUpdates = append(f.progressUpdates, percentage)
	return nil
}

func (f *fakeJobStore) AppendErrors(ctx context.Context, id string, messages []string) error {
	return f.appendDetail(id, messages, true)
}

func (f *fakeJobStore) AppendWarnings(ctx context.Context, id string, messages []string) error {
	return f.appendDetail(id, messages, false)
}

func (f *fakeJobStore) appendDetail(id string, messages []string, isError bool) error {
	if len(messages) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return errors.New("record not found")
	}
	if isError {
		j.DetailedErrors = append(j.DetailedErrors, messages...)
	} else {
		j.DetailedWarnings = append(j.DetailedWarnings, messages...)
	}
	return nil
}

func (f *fakeJobStore) ListActive(ctx context.Context) ([]domain.ImportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var active []domain.ImportJob
	for _, j := range f.jobs {
		if j.Status.IsActive() {
			active = append(active, *j)
		}
	}
	sort.Slice(active, func(a, b int) bool {
		return active[a].StartedAt.Before(active[b].StartedAt)
	})
	return active, nil
}

func (f *fakeJobStore) ListAll(ctx context.Context) ([]domain.ImportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []domain.ImportJob
	for _, j := range f.jobs {
		all = append(all, *j)
	}
	return all, nil
}

func (f *fakeJobStore) ListByUser(ctx context.Context, userID string) ([]domain.ImportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var jobs []domain.ImportJob
	for _, j := range f.jobs {
		if j.StartedBy == userID {
			jobs = append(jobs, *j)
		}
	}
	return jobs, nil
}

func (f *fakeJobStore) ListRecent(ctx context.Context, n int) ([]domain.ImportJob, error) {
	all, _ := f.ListAll(ctx)
	sort.Slice(all, func(a, b int) bool {
		return all[a].CreatedAt.After(all[b].CreatedAt)
	})
	if len(all) > n {
		all = all[:n]
	}
	return all, nil
}

func (f *fakeJobStore) FailStaleBefore(ctx context.Context, cutoff time.Time, message string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var reaped int64
	for _, j := range f.jobs {
		if j.Status.IsActive() && j.StartedAt.Before(cutoff) {
			j.Status = domain.JobStatusFailed
			j.ErrorMessage = message
			if j.CompletedAt == nil {
				now := time.Now()
				j.CompletedAt = &now
			}
			reaped++
		}
	}
	return reaped, nil
}

// mustGet fetches a job or fails the calling goroutine's test via panic; test
// helpers only.
func (f *fakeJobStore) mustGet(id string) *domain.ImportJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		panic("job not found: " + id)
	}
	cp := *j
	return &cp
}

func (f *fakeJobStore) put(job *domain.ImportJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *job
	f.jobs[job.ID] = &cp
}

// fakeCatalog is an in-memory ProductCatalog keyed by SKU.
type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]*domain.Product
}

func newFakeCatalog(skus ...string) *fakeCatalog {
	c := &fakeCatalog{products: make(map[string]*domain.Product)}
	for _, sku := range skus {
		c.products[sku] = &domain.Product{ID: "prod-" + sku, SKU: sku, IsActive: true}
	}
	return c
}

func (c *fakeCatalog) GetBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[sku]
	if !ok {
		return nil, errors.New("record not found")
	}
	cp := *p
	return &cp, nil
}

func (c *fakeCatalog) HasAny(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.products) > 0, nil
}

func (c *fakeCatalog) CreateIfNew(ctx context.Context, product *domain.Product) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.products[product.SKU]; exists {
		return false, nil
	}
	cp := *product
	c.products[product.SKU] = &cp
	return true, nil
}

// fakeStores is a StoreDirectory with a fixed set of codes.
type fakeStores struct {
	codes map[string]bool
}

func newFakeStores(codes ...string) *fakeStores {
	s := &fakeStores{codes: make(map[string]bool)}
	for _, code := range codes {
		s.codes[code] = true
	}
	return s
}

func (s *fakeStores) Exists(ctx context.Context, code string) (bool, error) {
	return s.codes[code], nil
}

// fakeStock is an in-memory StockLedger keyed by product id and store code.
type fakeStock struct {
	mu     sync.Mutex
	levels map[string]int
}

func newFakeStock() *fakeStock {
	return &fakeStock{levels: make(map[string]int)}
}

func stockKey(productID, storeCode string) string {
	return productID + "@" + storeCode
}

func (s *fakeStock) SetLevel(ctx context.Context, productID, storeCode string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels[stockKey(productID, storeCode)] = quantity
	return nil
}

func (s *fakeStock) Adjust(ctx context.Context, productID, storeCode string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels[stockKey(productID, storeCode)] += delta
	return nil
}

func (s *fakeStock) level(productID, storeCode string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levels[stockKey(productID, storeCode)]
}

// fakeSales records created sales in order.
type fakeSales struct {
	mu    sync.Mutex
	sales []domain.Sale
}

func (s *fakeSales) Create(ctx context.Context, sale *domain.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales = append(s.sales, *sale)
	return nil
}

func (s *fakeSales) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sales)
}
