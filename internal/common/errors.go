package common

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound      = errors.New("resource not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrValidation    = errors.New("validation failed")
	ErrRequestFailed = errors.New("request failed")
	ErrSuperseded    = errors.New("superseded by a newer request")
	ErrNoResults     = errors.New("no results available")
	ErrEditRejected  = errors.New("edits were not accepted by the server")
)

// GenericRequestMessage is shown when the server did not say what went wrong.
const GenericRequestMessage = "Request failed"

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// InputError reports a problem caught before any request was made.
func InputError(message string) error {
	return NewAppError("INVALID_INPUT", message, ErrInvalidInput)
}

// APIError is a non-success response from the document service.
type APIError struct {
	Op         string
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %d: %s", e.Op, e.StatusCode, e.Message())
}

// Message returns the server-provided detail, or a generic message if there was none.
func (e *APIError) Message() string {
	if e.Detail == "" {
		return GenericRequestMessage
	}
	return e.Detail
}

func (e *APIError) Unwrap() error {
	return ErrRequestFailed
}

// GRPCStatus lets status.Code classify API failures the same way as RPC failures.
func (e *APIError) GRPCStatus() *status.Status {
	return status.New(CodeFromHTTP(e.StatusCode), e.Message())
}

// CodeFromHTTP maps an HTTP status onto the closest gRPC code.
func CodeFromHTTP(httpStatus int) codes.Code {
	switch {
	case httpStatus >= 200 && httpStatus < 300:
		return codes.OK
	case httpStatus == http.StatusBadRequest, httpStatus == http.StatusUnprocessableEntity:
		return codes.InvalidArgument
	case httpStatus == http.StatusUnauthorized:
		return codes.Unauthenticated
	case httpStatus == http.StatusForbidden:
		return codes.PermissionDenied
	case httpStatus == http.StatusNotFound:
		return codes.NotFound
	case httpStatus == http.StatusConflict:
		return codes.Aborted
	case httpStatus == http.StatusTooManyRequests:
		return codes.ResourceExhausted
	case httpStatus == http.StatusServiceUnavailable, httpStatus == http.StatusBadGateway,
		httpStatus == http.StatusGatewayTimeout:
		return codes.Unavailable
	case httpStatus >= 500:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// UserMessage renders err for a banner: the application message when one
// was attached, server detail for request failures, the raw error otherwise.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message()
	}
	return err.Error()
}

// IsNotFound reports whether err is a not-found failure, local or remote.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	return status.Code(err) == codes.NotFound
}
