package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a unique error code for categorizing errors
type ErrorCode string

const (
	// Connection errors (1xxx)
	ErrCodeConnectionFailed     ErrorCode = "GPE1001"
	ErrCodeConnectionTimeout    ErrorCode = "GPE1002"
	ErrCodeAuthenticationFailed ErrorCode = "GPE1003"

	// Configuration errors (2xxx)
	ErrCodeConfigNotFound   ErrorCode = "GPE2001"
	ErrCodeConfigInvalid    ErrorCode = "GPE2002"
	ErrCodeConfigPermission ErrorCode = "GPE2003"

	// Gold store errors (3xxx)
	ErrCodeSnapshotMissing       ErrorCode = "GPE3001"
	ErrCodeMaterializationFailed ErrorCode = "GPE3002"
	ErrCodeScanFailed            ErrorCode = "GPE3003"

	// Warehouse SQL errors (4xxx)
	ErrCodeSQLExecution   ErrorCode = "GPE4001"
	ErrCodeSQLTransaction ErrorCode = "GPE4002"
	ErrCodeMalformedRow   ErrorCode = "GPE4003"

	// File system errors (5xxx)
	ErrCodeFileNotFound  ErrorCode = "GPE5001"
	ErrCodeFileOperation ErrorCode = "GPE5002"

	// Validation errors (6xxx)
	ErrCodeValidationFailed ErrorCode = "GPE6001"
	ErrCodeInvalidInput     ErrorCode = "GPE6002"

	// Metabase API errors (7xxx)
	ErrCodeMetabaseRequest ErrorCode = "GPE7001"
	ErrCodeMetabaseSetup   ErrorCode = "GPE7002"
	ErrCodeMetabaseImport  ErrorCode = "GPE7003"

	// Export errors (8xxx)
	ErrCodeDumpFailed   ErrorCode = "GPE8001"
	ErrCodeExportFailed ErrorCode = "GPE8002"

	// System errors (9xxx)
	ErrCodeInternal ErrorCode = "GPE9001"
	ErrCodeTimeout  ErrorCode = "GPE9002"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "CRITICAL" // System failure, requires immediate attention
	SeverityError    ErrorSeverity = "ERROR"    // Operation failed, but system continues
	SeverityWarning  ErrorSeverity = "WARNING"  // Operation succeeded with issues
	SeverityInfo     ErrorSeverity = "INFO"     // Informational, not an error
)

// AppError represents a structured application error with context
type AppError struct {
	Code        ErrorCode
	Message     string
	Severity    ErrorSeverity
	Context     map[string]interface{}
	Cause       error
	Stack       string
	Timestamp   time.Time
	Recoverable bool
	Suggestions []string
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\nCaused by: %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}

	return b.String()
}

// Unwrap returns the cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:        code,
		Message:     message,
		Severity:    SeverityError,
		Context:     make(map[string]interface{}),
		Stack:       captureStack(),
		Timestamp:   time.Now(),
		Recoverable: false,
	}
}

// Wrap wraps an existing error with AppError
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	appErr := New(code, message)
	appErr.Cause = err

	// If wrapping another AppError, inherit some properties
	if ae, ok := err.(*AppError); ok {
		for k, v := range ae.Context {
			appErr.Context[k] = v
		}
	}

	return appErr
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity sets the error severity
func (e *AppError) WithSeverity(severity ErrorSeverity) *AppError {
	e.Severity = severity
	return e
}

// WithSuggestions adds recovery suggestions
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// AsRecoverable marks the error as recoverable
func (e *AppError) AsRecoverable() *AppError {
	e.Recoverable = true
	return e
}

// captureStack captures the current stack trace
func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			b.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}

	return b.String()
}

// Common error constructors

// ConnectionError creates a warehouse connection error
func ConnectionError(message string, cause error) *AppError {
	return Wrap(cause, ErrCodeConnectionFailed, message).
		WithSeverity(SeverityError).
		WithSuggestions(
			"Check that the warehouse is running and reachable",
			"Verify PG_HOST/PG_PORT (inside a container the host is usually the compose service name)",
			"Confirm the reader role exists in the target database",
		)
}

// ConfigError creates a configuration-related error
func ConfigError(message string, field string) *AppError {
	return New(ErrCodeConfigInvalid, message).
		WithContext("field", field).
		WithSuggestions(
			fmt.Sprintf("Check the '%s' configuration value", field),
			"Run 'goldpipe setup' to reconfigure",
		)
}

// SQLError creates an SQL execution error
func SQLError(message string, query string, cause error) *AppError {
	return Wrap(cause, ErrCodeSQLExecution, message).
		WithContext("query", truncateString(query, 200))
}

// SnapshotError creates a missing-snapshot error for a gold dataset.
// Missing upstream snapshots are fatal: there is no synthetic fallback.
func SnapshotError(path string) *AppError {
	return New(ErrCodeSnapshotMissing, fmt.Sprintf("gold snapshot not found: %s", path)).
		WithContext("path", path).
		WithSuggestions(
			"Run the upstream silver-to-gold pipeline first",
			"Check GOLD_DIR/SILVER_DIR point at the data directory",
		)
}

// MetabaseError creates a Metabase API error
func MetabaseError(message string, cause error) *AppError {
	return Wrap(cause, ErrCodeMetabaseRequest, message).
		WithSuggestions(
			"Check that Metabase is healthy (GET /api/health)",
			"Verify MB_BASE, MB_EMAIL and MB_PASS",
		)
}

// ValidationError creates a validation error
func ValidationError(field string, value interface{}, reason string) *AppError {
	return New(ErrCodeValidationFailed, fmt.Sprintf("Validation failed for %s: %s", field, reason)).
		WithContext("field", field).
		WithContext("value", value).
		WithSeverity(SeverityWarning).
		AsRecoverable()
}

// IsRecoverable checks if an error is recoverable
func IsRecoverable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Recoverable
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// truncateString truncates a string to maxLen characters
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
