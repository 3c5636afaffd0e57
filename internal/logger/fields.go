package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the import job ID
	FieldJobID = "job_id"

	// FieldJobType is the import job type (products/stock/sales)
	FieldJobType = "job_type"

	// FieldStoreCode is the store scope of a stock or sales import
	FieldStoreCode = "store_code"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldUserID is the identity of whoever queued the job
	FieldUserID = "user_id"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldBatch is the batch index within a processing run
	FieldBatch = "batch"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldSize is a payload or response size in bytes
	FieldSize = "size"
)
