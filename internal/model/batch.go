package model

// Stable error codes shared by the dispatchers and the orchestrator.
const (
	ErrCodeInputProcessing = "input-processing-error"
	ErrCodeBatchFailed     = "batch-failed-error"
	ErrCodeRequestFailed   = "request-failed-error"
	ErrCodeUnknown         = "unknown-error"
)

// BatchItem is one unit of work in a batch call. ID is the caller-supplied
// correlation id, unique within one batch.
type BatchItem[T any] struct {
	ID   string `json:"id"`
	Body T      `json:"body"`
}

// BatchError is a structured per-item or batch-level failure.
type BatchError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BatchOutput is the outcome for a single batch item: either a body or an
// error, matched back to its input by correlation id.
type BatchOutput[T any] struct {
	ID    string      `json:"id"`
	Body  *T          `json:"body,omitempty"`
	Error *BatchError `json:"error,omitempty"`
}

// BatchResponse is the result of a whole batch call. Error is set only for
// failures outside the per-item boundary; otherwise Outputs holds one entry
// per input item.
type BatchResponse[T any] struct {
	Outputs []BatchOutput[T] `json:"outputs,omitempty"`
	Error   *BatchError      `json:"error,omitempty"`
}

// ErrorOutput builds a per-item error entry.
func ErrorOutput[T any](id, code, message string) BatchOutput[T] {
	return BatchOutput[T]{ID: id, Error: &BatchError{Code: code, Message: message}}
}

// FailedResponse builds a batch-level error response.
func FailedResponse[T any](code, message string) *BatchResponse[T] {
	return &BatchResponse[T]{Error: &BatchError{Code: code, Message: message}}
}
