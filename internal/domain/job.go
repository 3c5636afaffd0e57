package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JobStatus represents the lifecycle state of an import job.
// QUEUED and PROCESSING are the active states; the other three are terminal.
type JobStatus string

const (
	JobStatusQueued                JobStatus = "QUEUED"
	JobStatusProcessing            JobStatus = "PROCESSING"
	JobStatusCompleted             JobStatus = "COMPLETED"
	JobStatusCompletedWithWarnings JobStatus = "COMPLETED_WITH_WARNINGS"
	JobStatusFailed                JobStatus = "FAILED"
)

// IsActive reports whether the status blocks admission of another import.
func (s JobStatus) IsActive() bool {
	return s == JobStatusQueued || s == JobStatusProcessing
}

// IsTerminal reports whether the status is absorbing.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusCompletedWithWarnings || s == JobStatusFailed
}

// ActiveJobStatuses is the closed set of statuses the lock coordinator treats
// as "an import is running".
var ActiveJobStatuses = []JobStatus{JobStatusQueued, JobStatusProcessing}

// JobType identifies which import pipeline a job runs.
type JobType string

const (
	JobTypeProductsImport JobType = "PRODUCTS_IMPORT"
	JobTypeStockImport    JobType = "STOCK_IMPORT"
	JobTypeSalesImport    JobType = "SALES_IMPORT"
)

// Label returns the human-readable name used in blocking messages.
func (t JobType) Label() string {
	switch t {
	case JobTypeProductsImport:
		return "products import"
	case JobTypeStockImport:
		return "stock import"
	case JobTypeSalesImport:
		return "sales import"
	default:
		return string(t)
	}
}

// RequiresStore reports whether jobs of this type are scoped to a store.
func (t JobType) RequiresStore() bool {
	return t == JobTypeStockImport || t == JobTypeSalesImport
}

// EntityType identifies entities whose deletion is guarded while imports run.
type EntityType string

const (
	EntityTypeProduct  EntityType = "PRODUCT"
	EntityTypeCustomer EntityType = "CUSTOMER"
	EntityTypeSale     EntityType = "SALE"
)

// StringArray stores an ordered list of strings as a JSON column.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// ImportJob is the persistent record of one import attempt. Rows are never
// deleted; terminal jobs are retained for history.
//
// Counters other than TotalRecords only ever grow. TotalRecords is fixed at
// admission. CompletedAt is written exactly once, on the terminal transition.
type ImportJob struct {
	ID                 string      `gorm:"type:text;primaryKey" json:"job_id"`
	JobType            JobType     `gorm:"type:text;not null;index" json:"job_type"`
	Status             JobStatus   `gorm:"type:text;not null;index:idx_import_jobs_status" json:"status"`
	StoreCode          string      `gorm:"type:text;index" json:"store_code,omitempty"`
	TotalRecords       int         `gorm:"default:0" json:"total_records"`
	ProcessedRecords   int         `gorm:"default:0" json:"processed_records"`
	SuccessRecords     int         `gorm:"default:0" json:"success_records"`
	ErrorRecords       int         `gorm:"default:0" json:"error_records"`
	WarningRecords     int         `gorm:"default:0" json:"warning_records"`
	ProgressPercentage float64     `gorm:"default:0" json:"progress_percentage"`
	StartedAt          time.Time   `gorm:"index" json:"started_at"`
	CompletedAt        *time.Time  `json:"completed_at,omitempty"`
	StartedBy          string      `gorm:"type:text;index" json:"started_by"`
	ErrorMessage       string      `json:"error_message,omitempty"`
	DetailedErrors     StringArray `gorm:"type:text" json:"detailed_errors"`
	DetailedWarnings   StringArray `gorm:"type:text" json:"detailed_warnings"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// TableName returns the database table name for ImportJob.
func (ImportJob) TableName() string {
	return "import_jobs"
}

// IsActive reports whether the job blocks admission of another import.
func (j *ImportJob) IsActive() bool {
	return j.Status.IsActive()
}

// JobSummary is the trimmed projection returned by listing endpoints.
type JobSummary struct {
	ID                 string     `json:"job_id"`
	JobType            JobType    `json:"job_type"`
	Status             JobStatus  `json:"status"`
	StoreCode          string     `json:"store_code,omitempty"`
	TotalRecords       int        `json:"total_records"`
	ProcessedRecords   int        `json:"processed_records"`
	ProgressPercentage float64    `json:"progress_percentage"`
	StartedAt          time.Time  `json:"started_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	StartedBy          string     `json:"started_by"`
}

// Summary converts a job to its listing projection.
func (j *ImportJob) Summary() JobSummary {
	return JobSummary{
		ID:                 j.ID,
		JobType:            j.JobType,
		Status:             j.Status,
		StoreCode:          j.StoreCode,
		TotalRecords:       j.TotalRecords,
		ProcessedRecords:   j.ProcessedRecords,
		ProgressPercentage: j.ProgressPercentage,
		StartedAt:          j.StartedAt,
		CompletedAt:        j.CompletedAt,
		StartedBy:          j.StartedBy,
	}
}
