package client

import (
	"errors"
	"fmt"
)

// ErrorKind classifies request failures.
type ErrorKind string

const (
	KindNetwork         ErrorKind = "network"
	KindHTTP            ErrorKind = "http"
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindInvalidResponse ErrorKind = "invalid_response"
	KindStorage         ErrorKind = "storage"
	KindRealtime        ErrorKind = "realtime"
)

// APIError is the typed failure returned by every client operation.
type APIError struct {
	Kind    ErrorKind
	Status  int // HTTP status for KindHTTP
	Code    string
	Message string
	Err     error
}

func (e *APIError) Error() string {
	switch e.Kind {
	case KindHTTP:
		return fmt.Sprintf("api returned error (%d): %s %s", e.Status, e.Code, e.Message)
	case KindUnauthenticated:
		return "unauthenticated"
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Kind, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func networkError(err error) *APIError {
	return &APIError{Kind: KindNetwork, Message: "network request failed", Err: err}
}

func httpError(status int, code, message string) *APIError {
	return &APIError{Kind: KindHTTP, Status: status, Code: code, Message: message}
}

func unauthenticatedError() *APIError {
	return &APIError{Kind: KindUnauthenticated}
}

func invalidResponseError(message string, err error) *APIError {
	return &APIError{Kind: KindInvalidResponse, Message: message, Err: err}
}

func storageError(message string, err error) *APIError {
	return &APIError{Kind: KindStorage, Message: message, Err: err}
}

// IsUnauthenticated reports whether err is an unauthenticated failure.
func IsUnauthenticated(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindUnauthenticated
}

// KindOf extracts the error kind, or "" for non-client errors.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// ErrorDTO is the flattened {status, error, message} envelope the frontend
// receives for every failed operation.
type ErrorDTO struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// AsDTO flattens any error into the frontend envelope. An unauthenticated
// failure is distinguished with an HTTP-like 401 so the frontend can force
// re-authentication without inspecting message text.
func AsDTO(err error) ErrorDTO {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return ErrorDTO{Status: 500, Error: "internal_error", Message: err.Error()}
	}
	switch apiErr.Kind {
	case KindHTTP:
		return ErrorDTO{Status: apiErr.Status, Error: apiErr.Code, Message: apiErr.Message}
	case KindUnauthenticated:
		return ErrorDTO{Status: 401, Error: "unauthorized", Message: "You must sign in again."}
	default:
		return ErrorDTO{Status: 500, Error: "internal_error", Message: apiErr.Error()}
	}
}
