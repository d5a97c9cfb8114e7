package errors

const (
	HttpInternalError           = "internal_error"
	HttpInvalidJsonError        = "invalid_json"
	HttpInvalidScopeError       = "invalid_scope"
	HttpInvalidProgressError    = "invalid_progress_value"
	HttpProgressRegressionError = "progress_regression"
)

// ErrorResponse is the error response body for participation API errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
