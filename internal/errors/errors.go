package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gin-gonic/gin"
)

// ErrorCategory defines the type of error for proper handling
type ErrorCategory string

const (
	CategoryValidation     ErrorCategory = "validation"
	CategoryTimeout        ErrorCategory = "timeout"
	CategoryRateLimit      ErrorCategory = "rate_limit"
	CategoryInternal       ErrorCategory = "internal"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryDataset        ErrorCategory = "dataset"
	CategoryAuthentication ErrorCategory = "authentication"
)

// AppError wraps an errbuilder error with the category and HTTP status used
// by the API layer. Fields holds the client-facing detail entries.
type AppError struct {
	*errbuilder.ErrBuilder
	Category   ErrorCategory
	HTTPStatus int
	Timestamp  time.Time
	RequestID  string
	StackTrace string
	Fields     map[string]string

	// internal is logged but never rendered
	internal string
}

// errorResponse is the JSON envelope of every API error
type errorResponse struct {
	Error      string            `json:"error"`
	Message    string            `json:"message"`
	Category   ErrorCategory     `json:"category"`
	HTTPStatus int               `json:"http_status"`
	Details    map[string]string `json:"details,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	RequestID  string            `json:"request_id,omitempty"`
}

// MarshalJSON renders the envelope. It shadows the embedded builder's
// encoder, which requires a cause.
func (e AppError) MarshalJSON() ([]byte, error) {
	resp := errorResponse{
		Error:      e.code(),
		Category:   e.Category,
		HTTPStatus: e.HTTPStatus,
		Details:    e.Fields,
		Timestamp:  e.Timestamp,
		RequestID:  e.RequestID,
	}
	if e.ErrBuilder != nil {
		resp.Message = e.ErrBuilder.Msg
	}
	return json.Marshal(resp)
}

// code is the stable, category-derived error code
func (e *AppError) code() string {
	switch e.Category {
	case CategoryValidation:
		return "VALIDATION_ERROR"
	case CategoryTimeout:
		return "TIMEOUT_ERROR"
	case CategoryRateLimit:
		return "RATE_LIMIT_EXCEEDED"
	case CategoryInternal:
		return "INTERNAL_ERROR"
	case CategoryConfiguration:
		return "CONFIGURATION_ERROR"
	case CategoryDataset:
		return "DATASET_LOAD_ERROR"
	case CategoryAuthentication:
		return "AUTHENTICATION_ERROR"
	}
	return "UNKNOWN_ERROR"
}

// Error renders the error as "[CODE] message"
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.code(), e.ErrBuilder.Msg)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.ErrBuilder.Unwrap()
}

// NewAppError creates an AppError from errbuilder with additional context
func NewAppError(builder *errbuilder.ErrBuilder, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		ErrBuilder: builder,
		Category:   category,
		HTTPStatus: httpStatus,
		Timestamp:  time.Now(),
	}
}

// newError builds an AppError with an optional single detail entry and cause
func newError(b *errbuilder.ErrBuilder, category ErrorCategory, status int, detailKey, detail string, cause error) *AppError {
	if cause != nil {
		b = b.WithCause(cause)
	}
	appErr := NewAppError(b, category, status)
	if detailKey != "" {
		details := errbuilder.ErrorMap{}
		details.Set(detailKey, errors.New(detail))
		appErr.ErrBuilder = b.WithDetails(errbuilder.NewErrDetails(details))
		appErr.Fields = map[string]string{detailKey: detail}
	}
	return appErr
}

// NewValidationError rejects a request or input file. The first detail, when
// given, is attached under "validation_details".
func NewValidationError(message string, details ...interface{}) *AppError {
	b := errbuilder.New().WithCode(errbuilder.CodeInvalidArgument).WithMsg(message)
	if len(details) > 0 {
		return newError(b, CategoryValidation, http.StatusBadRequest, "validation_details", fmt.Sprint(details[0]), nil)
	}
	return newError(b, CategoryValidation, http.StatusBadRequest, "", "", nil)
}

// NewValidationErrorWithMap reports one entry per offending claim field.
// Field names are sorted so the message is stable.
func NewValidationErrorWithMap(validationErrors map[string]string) *AppError {
	fields := make([]string, 0, len(validationErrors))
	for field := range validationErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	perField := errbuilder.ErrorMap{}
	copied := make(map[string]string, len(fields))
	for _, field := range fields {
		perField.Set(field, errors.New(validationErrors[field]))
		copied[field] = validationErrors[field]
	}

	msg := "Invalid claim record"
	if len(fields) > 0 {
		msg += ": " + strings.Join(fields, ", ")
	}
	b := errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(msg).
		WithDetails(errbuilder.NewErrDetails(perField))
	appErr := NewAppError(b, CategoryValidation, http.StatusBadRequest)
	appErr.Fields = copied
	return appErr
}

// NewTimeoutError covers cancelled and expired request contexts
func NewTimeoutError(message string, cause error) *AppError {
	b := errbuilder.New().WithCode(errbuilder.CodeDeadlineExceeded).WithMsg(message)
	return newError(b, CategoryTimeout, http.StatusGatewayTimeout, "", "", cause)
}

// NewRateLimitError is returned by the per-IP limiter
func NewRateLimitError(retryAfter string) *AppError {
	b := errbuilder.New().WithCode(errbuilder.CodeResourceExhausted).WithMsg("Rate limit exceeded")
	return newError(b, CategoryRateLimit, http.StatusTooManyRequests, "retry_after", retryAfter, nil)
}

// NewInternalError hides message from the client behind a generic text. The
// message is logged with the cause but never rendered. Debug and test builds
// record the stack.
func NewInternalError(message string, cause error) *AppError {
	b := errbuilder.New().WithCode(errbuilder.CodeInternal).WithMsg("Internal server error")
	details := errbuilder.ErrorMap{}
	details.Set("internal_details", errors.New(message))
	b = b.WithDetails(errbuilder.NewErrDetails(details))
	appErr := newError(b, CategoryInternal, http.StatusInternalServerError, "", "", cause)
	appErr.internal = message
	if debugMode() {
		appErr.StackTrace = captureStackTrace()
	}
	return appErr
}

// NewConfigurationError reports invalid settings or an unusable history
// backend at startup.
func NewConfigurationError(message string, cause error) *AppError {
	b := errbuilder.New().WithCode(errbuilder.CodeFailedPrecondition).WithMsg("Configuration error")
	return newError(b, CategoryConfiguration, http.StatusInternalServerError, "config_details", message, cause)
}

// NewDatasetLoadError reports a training dataset that is missing, unreadable
// or malformed. It is fatal at startup.
func NewDatasetLoadError(path string, cause error) *AppError {
	b := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg("Failed to load training dataset " + path)
	return newError(b, CategoryDataset, http.StatusInternalServerError, "dataset_path", path, cause)
}

// NewAuthenticationError rejects bad credentials or tokens
func NewAuthenticationError(message string) *AppError {
	b := errbuilder.New().WithCode(errbuilder.CodeUnauthenticated).WithMsg(message)
	return newError(b, CategoryAuthentication, http.StatusUnauthorized, "", "", nil)
}

func debugMode() bool {
	return gin.Mode() == gin.DebugMode || gin.Mode() == gin.TestMode
}

// captureStackTrace captures a stack trace for debugging
func captureStackTrace() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// Is reports whether err is an AppError of the given category
func Is(err error, category ErrorCategory) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Category == category
	}
	return false
}

// ErrorHandler renders the last error a handler attached with c.Error as
// the AppError JSON body, unless a response was already written.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		appErr := ToAppError(c.Errors.Last().Err)
		LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
	}
}

// RecoveryHandler turns a panic into a 500 AppError carrying the stack
func RecoveryHandler() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		cause := fmt.Errorf("%v", recovered)
		appErr := NewInternalError("panic recovered: "+cause.Error(), cause)
		appErr.StackTrace = captureStackTrace()
		LogError(c, appErr)
		c.AbortWithStatusJSON(appErr.HTTPStatus, appErr)
	})
}

// ToAppError maps any error onto the taxonomy. Context errors become
// timeouts; everything unknown is internal.
func ToAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, context.Canceled):
		return NewTimeoutError("Request cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewTimeoutError("Request deadline exceeded", err)
	}
	if eb, ok := err.(*errbuilder.ErrBuilder); ok {
		return NewAppError(eb, CategoryInternal, http.StatusInternalServerError)
	}
	return NewInternalError("An unexpected error occurred", err)
}

// LogError logs client faults at warn, timeouts at info and the rest at
// error, with the request coordinates attached.
func LogError(c *gin.Context, err *AppError) {
	log := slog.With(
		"error_category", err.Category,
		"error_code", err.ErrBuilder.ErrCode(),
		"http_status", err.HTTPStatus,
		"ip", c.ClientIP(),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", c.GetHeader("X-Request-ID"),
	)

	msg := err.ErrBuilder.Msg
	var attrs []any
	switch err.Category {
	case CategoryValidation, CategoryRateLimit, CategoryAuthentication:
		if len(err.Fields) > 0 {
			attrs = append(attrs, "details", err.Fields)
		}
		log.Warn(msg, attrs...)
	case CategoryTimeout:
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			attrs = append(attrs, "cause", cause)
		}
		log.Info(msg, attrs...)
	default:
		if err.internal != "" {
			attrs = append(attrs, "details", err.internal)
		}
		if cause := err.ErrBuilder.Unwrap(); cause != nil {
			attrs = append(attrs, "cause", cause)
		}
		log.Error(msg, attrs...)
	}

	if err.StackTrace != "" && debugMode() {
		log.Debug("stack_trace", "trace", err.StackTrace)
	}
}

// SafeClose closes a resource at shutdown and only logs a failure
func SafeClose(closer interface{ Close() error }, resourceName string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		slog.Warn("Failed to close resource", "resource", resourceName, "error", err)
	}
}
