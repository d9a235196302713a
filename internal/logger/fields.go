package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Tracing Fields (Context level)
// Propagated through a generation run
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldRunID identifies one generation run (UUID)
	FieldRunID = "run_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldPhase is the pipeline phase (identity, content, images)
	FieldPhase = "phase"

	// FieldSpecID is the content specification being generated
	FieldSpecID = "spec_id"

	// FieldFingerprint is the image request fingerprint
	FieldFingerprint = "fingerprint"
)

// ============================================
// Metric Fields (Entry level)
// Used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldStep is the current step within a phase
	FieldStep = "step"

	// FieldTotal is the number of steps in a phase
	FieldTotal = "total"
)
