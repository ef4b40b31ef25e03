package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Standard tracing fields propagated through the call chain.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the import job ID
	FieldJobID = "job_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"
)

// Standard entry-level fields used for aggregation.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldChunkSize is the number of rows in a chunk
	FieldChunkSize = "chunk_size"

	// FieldSKU is the product SKU of the row being processed
	FieldSKU = "sku"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
