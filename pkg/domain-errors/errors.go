// Package domainerrors defines the gateway's error taxonomy. Services return these
// (optionally wrapping infrastructure errors) and the transport layer translates the
// code into an HTTP status via httputil.WriteError.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error by rejection kind. The string value is what clients see
// in the "error" field and what metrics use as the "kind" label.
type Code string

const (
	// CodeUnauthorized: bearer token present but malformed or with a bad signature.
	CodeUnauthorized Code = "unauthorized"
	// CodeRateLimited: the admission controller rejected the operation.
	CodeRateLimited Code = "rate_limit_exceeded"
	// CodeUpstream: a forwarded call or sink write failed or timed out.
	CodeUpstream Code = "upstream_error"
	// CodeQueueUnavailable: relay queue publish or consume infrastructure failure.
	CodeQueueUnavailable Code = "queue_unavailable"
	CodeNotFound         Code = "not_found"
	CodeBadRequest       Code = "bad_request"
	CodeInvalidConfig    Code = "invalid_config"
	CodeInternal         Code = "internal_error"
)

// Error is a coded domain error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error without a cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// Is reports whether err is a domain error. The first one found in the chain is returned.
func Is(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether any domain error in the chain carries code, including
// domain errors wrapped as the cause of another.
func HasCode(err error, code Code) bool {
	for err != nil {
		de, ok := Is(err)
		if !ok {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// CodeOf returns the code of the outermost domain error, or CodeInternal.
func CodeOf(err error) Code {
	if de, ok := Is(err); ok {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to the status returned to the original caller.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUpstream:
		return http.StatusBadGateway
	case CodeQueueUnavailable:
		return http.StatusServiceUnavailable
	case CodeNotFound:
		return http.StatusNotFound
	case CodeBadRequest, CodeInvalidConfig:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
