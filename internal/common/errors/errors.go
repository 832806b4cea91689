// Package errors provides the standardized failure taxonomy shared by the
// analysis engine, the job worker and the HTTP API.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Startup
	ErrCodeConfigurationInvalid ErrorCode = "CONFIGURATION_INVALID"

	// Remote AI service
	ErrCodeRemoteFatal       ErrorCode = "REMOTE_FATAL"
	ErrCodeRemoteTransient   ErrorCode = "REMOTE_TRANSIENT"
	ErrCodeRemoteRateLimited ErrorCode = "REMOTE_RATE_LIMITED"
	ErrCodeRemoteTimeout     ErrorCode = "REMOTE_TIMEOUT"
	ErrCodeResponseParse     ErrorCode = "RESPONSE_PARSE_FAILED"

	// Run outcome
	ErrCodeNoInput            ErrorCode = "NO_INPUT"
	ErrCodeInputInvalid       ErrorCode = "INPUT_INVALID"
	ErrCodeAllBatchesFailed   ErrorCode = "ALL_BATCHES_FAILED"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.Cause
}

// Is matches on code so callers can test against the sentinel values below.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is checks. Never returned directly.
var (
	ErrConfiguration      = &StandardError{Code: ErrCodeConfigurationInvalid}
	ErrFatalRemote        = &StandardError{Code: ErrCodeRemoteFatal}
	ErrTransientRemote    = &StandardError{Code: ErrCodeRemoteTransient}
	ErrRateLimited        = &StandardError{Code: ErrCodeRemoteRateLimited}
	ErrRemoteTimeout      = &StandardError{Code: ErrCodeRemoteTimeout}
	ErrParse              = &StandardError{Code: ErrCodeResponseParse}
	ErrNoInput            = &StandardError{Code: ErrCodeNoInput}
	ErrInputInvalid       = &StandardError{Code: ErrCodeInputInvalid}
	ErrAllBatchesFailed   = &StandardError{Code: ErrCodeAllBatchesFailed}
	ErrServiceUnavailable = &StandardError{Code: ErrCodeServiceUnavailable}
)

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message string, retryable bool, cause error) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		Cause:     cause,
	}
}

// NewConfigurationError reports an invalid startup configuration. Never retried.
func NewConfigurationError(details string) *StandardError {
	e := newError(ErrCodeConfigurationInvalid, "Invalid configuration", false, nil)
	e.Details = details
	return e
}

// NewFatalRemoteError reports a rejected request (credentials, malformed payload).
func NewFatalRemoteError(status int, cause error) *StandardError {
	e := newError(ErrCodeRemoteFatal, "AI service rejected the request", false, cause)
	e.Metadata = map[string]interface{}{"status": status}
	return e
}

// NewTransientRemoteError reports a network or server failure worth retrying.
func NewTransientRemoteError(status int, cause error) *StandardError {
	e := newError(ErrCodeRemoteTransient, "AI service temporarily unavailable", true, cause)
	if status > 0 {
		e.Metadata = map[string]interface{}{"status": status}
	}
	return e
}

// NewRateLimitedError reports a quota rejection from the AI service.
func NewRateLimitedError(cause error) *StandardError {
	return newError(ErrCodeRemoteRateLimited, "AI service rate limit exceeded", true, cause)
}

// NewRemoteTimeoutError reports a call that exceeded its own deadline.
func NewRemoteTimeoutError(timeout time.Duration, cause error) *StandardError {
	e := newError(ErrCodeRemoteTimeout, "AI service call timed out", true, cause)
	e.Metadata = map[string]interface{}{"timeout": timeout.String()}
	return e
}

// NewParseError reports a reply that arrived but could not be decoded.
func NewParseError(details string, cause error) *StandardError {
	e := newError(ErrCodeResponseParse, "AI service reply could not be parsed", true, cause)
	if details != "" {
		e.Details = details
	}
	return e
}

func NewNoInputError() *StandardError {
	return newError(ErrCodeNoInput, "No comments supplied for analysis", false, nil)
}

func NewInputInvalidError(details string) *StandardError {
	e := newError(ErrCodeInputInvalid, "Input validation failed", false, nil)
	e.Details = details
	return e
}

// NewAllBatchesFailedError reports that every batch was skipped.
func NewAllBatchesFailedError(batches int, last error) *StandardError {
	e := newError(ErrCodeAllBatchesFailed, "Analysis unavailable: every batch failed", false, last)
	e.Metadata = map[string]interface{}{"batches": batches}
	return e
}

// NewServiceUnavailableError reports a fatal remote failure before any batch completed.
func NewServiceUnavailableError(cause error) *StandardError {
	return newError(ErrCodeServiceUnavailable, "AI service unavailable", false, cause)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// GetRetryCount returns the recommended job retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeRemoteTransient,
		ErrCodeRemoteRateLimited:
		return 3

	case ErrCodeRemoteTimeout,
		ErrCodeResponseParse:
		return 1

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for the workflow engine.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           string(stdErr.Code),
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// AsStandard extracts a *StandardError from err's chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// CodeOf returns the code of the first StandardError in err's chain.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if stdErr, ok := AsStandard(err); ok {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// Normalize guarantees a StandardError, wrapping unknown errors as internal.
func Normalize(err error) *StandardError {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr
	}
	return newError(ErrCodeInternal, "Unexpected error", false, err)
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "REMOTE") || strings.HasPrefix(codeStr, "SERVICE"):
		return "AI"
	case strings.Contains(codeStr, "PARSE"):
		return "PROTOCOL"
	case strings.Contains(codeStr, "INPUT"):
		return "VALIDATION"
	case strings.Contains(codeStr, "CONFIGURATION"):
		return "CONFIGURATION"
	case strings.Contains(codeStr, "BATCHES"):
		return "ANALYSIS"
	default:
		return "OTHER"
	}
}
