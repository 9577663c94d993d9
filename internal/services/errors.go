package services

import (
	"errors"
	"fmt"
	"strings"
)

// ===== SENTINEL ERRORS =====

var (
	ErrPrintNotFound    = errors.New("exam print not found")
	ErrSessionNotFound  = errors.New("exam session not found")
	ErrExamNotFound     = errors.New("exam not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrSessionClosed    = errors.New("exam session is not open")
	ErrPrintAlreadySent = errors.New("exam print already finalized")
	ErrTooManyQuestions = errors.New("exam would exceed the question limit per print")
	ErrNoQuestionsDrawn = errors.New("exam has no questions to print")
	ErrInvalidQuestion  = errors.New("question index outside the print")
	ErrStorageConflict  = errors.New("concurrent print creation detected")
)

// ===== TYPED ERRORS =====

// PermissionError reports a denied action with enough context to audit it.
type PermissionError struct {
	UserID     string
	ResourceID uint
	Resource   string
	Action     string
	Reason     string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s %d: %s",
		e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// IsPermissionError reports whether err is a permission denial.
func IsPermissionError(err error) bool {
	var permErr *PermissionError
	return errors.As(err, &permErr)
}

// ValidationError collects per-field validation failures for one request.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// IsValidationError reports whether err is a request validation failure.
func IsValidationError(err error) bool {
	var valErr *ValidationError
	return errors.As(err, &valErr)
}

// DataIntegrityError reports corrupted stored data, such as a malformed
// answer key or a shuffle permutation that no longer matches its question.
// These are never the caller's fault and map to a server-side failure.
type DataIntegrityError struct {
	Resource   string
	ResourceID uint
	Detail     string
	Err        error
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("data integrity fault on %s %d: %s", e.Resource, e.ResourceID, e.Detail)
}

func (e *DataIntegrityError) Unwrap() error {
	return e.Err
}

func NewDataIntegrityError(resource string, resourceID uint, detail string, err error) *DataIntegrityError {
	return &DataIntegrityError{Resource: resource, ResourceID: resourceID, Detail: detail, Err: err}
}

// IsDataIntegrityError reports whether err is a stored-data corruption fault.
func IsDataIntegrityError(err error) bool {
	var intErr *DataIntegrityError
	return errors.As(err, &intErr)
}
