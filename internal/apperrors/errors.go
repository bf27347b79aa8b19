package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error codes shared across pricing, dealer settlement and UPPF claims.
const (
	CodeComponentNotFound  = "COMPONENT_NOT_FOUND"
	CodeInvalidWindow      = "INVALID_WINDOW"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeConflict           = "CONFLICT"
	CodeDocumentGeneration = "DOCUMENT_GENERATION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeForbidden          = "FORBIDDEN"
	CodeInternal           = "INTERNAL_ERROR"
)

// Violation severities.
const (
	SeverityFail    = "FAIL"
	SeverityWarning = "WARNING"
)

// Violation is a single rule failure collected by a validator.
type Violation struct {
	Rule     string `json:"rule"`
	Field    string `json:"field,omitempty"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// Error is a typed domain error.
type Error struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Status     int         `json:"status"`
	Violations []Violation `json:"violations,omitempty"`
	Err        error       `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on error code so errors.Is(err, ErrConflict) holds for any conflict.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors, usable as errors.Is targets.
var (
	ErrComponentNotFound  = New(CodeComponentNotFound, http.StatusUnprocessableEntity, "component rate not found")
	ErrInvalidWindow      = New(CodeInvalidWindow, http.StatusConflict, "pricing window not in a computable state")
	ErrValidationFailed   = New(CodeValidationFailed, http.StatusBadRequest, "validation failed")
	ErrConflict           = New(CodeConflict, http.StatusConflict, "conflict")
	ErrDocumentGeneration = New(CodeDocumentGeneration, http.StatusInternalServerError, "document generation failed")
	ErrNotFound           = New(CodeNotFound, http.StatusNotFound, "resource not found")
	ErrInvalidTransition  = New(CodeInvalidTransition, http.StatusConflict, "invalid state transition")
	ErrForbidden          = New(CodeForbidden, http.StatusForbidden, "forbidden")
	ErrInternal           = New(CodeInternal, http.StatusInternalServerError, "internal server error")
)

// ComponentNotFound reports a mandatory component with no effective rate.
func ComponentNotFound(code, productID, windowID string) *Error {
	return &Error{
		Code:    CodeComponentNotFound,
		Status:  ErrComponentNotFound.Status,
		Message: fmt.Sprintf("component %s not found for product %s in window %s", code, productID, windowID),
	}
}

// InvalidWindow reports a window that cannot be used for the requested operation.
func InvalidWindow(windowID, status string) *Error {
	return &Error{
		Code:    CodeInvalidWindow,
		Status:  ErrInvalidWindow.Status,
		Message: fmt.Sprintf("window %s is %s", windowID, status),
	}
}

// ValidationFailed carries the full list of violations.
func ValidationFailed(violations []Violation) *Error {
	msgs := make([]string, 0, len(violations))
	for _, v := range violations {
		msgs = append(msgs, v.Rule+": "+v.Message)
	}
	return &Error{
		Code:       CodeValidationFailed,
		Status:     ErrValidationFailed.Status,
		Message:    "validation failed: " + strings.Join(msgs, "; "),
		Violations: append([]Violation(nil), violations...),
	}
}

// Conflict reports a concurrent write on the same entity.
func Conflict(entity, id string) *Error {
	return &Error{
		Code:    CodeConflict,
		Status:  ErrConflict.Status,
		Message: fmt.Sprintf("%s %s was modified concurrently", entity, id),
	}
}

// InvalidTransition reports a state machine violation.
func InvalidTransition(entity, from, to string) *Error {
	return &Error{
		Code:    CodeInvalidTransition,
		Status:  ErrInvalidTransition.Status,
		Message: fmt.Sprintf("%s: cannot transition from %s to %s", entity, from, to),
	}
}

// NotFound reports a missing entity.
func NotFound(entity, id string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Status:  ErrNotFound.Status,
		Message: fmt.Sprintf("%s %s not found", entity, id),
	}
}

// DocumentGeneration wraps a failure to render or store a required document.
func DocumentGeneration(document string, err error) *Error {
	return Wrap(err, CodeDocumentGeneration, ErrDocumentGeneration.Status, "generate "+document)
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// ViolationsOf returns the violations carried by err, if any.
func ViolationsOf(err error) []Violation {
	var e *Error
	if errors.As(err, &e) {
		return e.Violations
	}
	return nil
}

// HasFailures reports whether any violation has FAIL severity.
func HasFailures(violations []Violation) bool {
	for _, v := range violations {
		if v.Severity != SeverityWarning {
			return true
		}
	}
	return false
}
