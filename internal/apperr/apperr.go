// Package apperr defines the error taxonomy shared across inbound handlers:
// a coded error carrying an HTTP status, so a handler failure maps directly
// onto a response without string-sniffing. Grounded on
// original_source/crates/r9k-position/src/error.rs's Error enum and code().
package apperr

import (
	"fmt"
	"net/http"
)

// Code identifies the error category, mirroring the original's code().
type Code string

const (
	CodeBadRequest     Code = "bad_request"
	CodeBadTime        Code = "bad_time"
	CodeNoUpdate       Code = "no_update"
	CodeNoActualUpdate Code = "no_actual_update"
	CodeInvalidMessage Code = "invalid_message"
	CodeServerError    Code = "server_error"
	CodeBadGateway     Code = "bad_gateway"
	CodeNotFound       Code = "not_found"
)

// Error is the structured error propagated from enrichment/validation
// sub-steps up to the ingress layer.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("code: %s", e.Code)
	}
	return fmt.Sprintf("code: %s, description: %s", e.Code, e.Message)
}

// New constructs a coded error with a description.
func New(code Code, message string) *Error { return &Error{Code: code, Message: message} }

// NoUpdate is returned when a message carries no change entries.
func NoUpdate() *Error { return &Error{Code: CodeNoUpdate} }

// NoActualUpdate is returned when the first change has no positive
// arrival/departure offset.
func NoActualUpdate() *Error { return &Error{Code: CodeNoActualUpdate} }

// Outdated is returned when a message is older than the staleness window.
func Outdated(message string) *Error { return &Error{Code: CodeBadTime, Message: message} }

// WrongTime is returned when a message is from the future, or its creation
// date cannot be resolved in the local timezone.
func WrongTime(message string) *Error { return &Error{Code: CodeBadTime, Message: message} }

// InvalidMessage is returned when the inbound payload cannot be decoded.
func InvalidMessage(message string) *Error { return &Error{Code: CodeInvalidMessage, Message: message} }

// ServerError wraps an unclassified internal failure.
func ServerError(message string) *Error { return &Error{Code: CodeServerError, Message: message} }

// BadGateway wraps a failure talking to an upstream dependency.
func BadGateway(message string) *Error { return &Error{Code: CodeBadGateway, Message: message} }

// NotFound is returned for disabled-feature or missing-resource lookups,
// e.g. god-mode endpoints when the feature flag is off.
func NotFound(message string) *Error { return &Error{Code: CodeNotFound, Message: message} }

// HTTPStatus maps the error code onto the response status the ingress layer
// uses, per the taxonomy's BadRequest/ServerError/BadGateway/NotFound split.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeNoUpdate, CodeNoActualUpdate, CodeBadTime, CodeInvalidMessage, CodeBadRequest:
		return http.StatusBadRequest
	case CodeBadGateway:
		return http.StatusBadGateway
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
