package services

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeTimerConflict = "TASK_TIMER_CONFLICT"
	CodeNotFound      = "TASK_NOT_FOUND"
	CodeValidation    = "TASK_VALIDATION"
	CodeTransient     = "TASK_TRANSIENT"
	CodeLoadFailed    = "TASK_LOAD_FAILED"
)

type ServiceError struct {
	Status  int
	Code    string
	Message string
	Cause   error
	// Fields carries per-field messages for validation failures.
	Fields map[string]string
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

func newServiceError(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message, Cause: cause}
}

func ConflictError(message string, cause error) *ServiceError {
	return newServiceError(http.StatusConflict, CodeTimerConflict, message, cause)
}

func NotFoundError(message string, cause error) *ServiceError {
	return newServiceError(http.StatusNotFound, CodeNotFound, message, cause)
}

func ValidationError(message string, fields map[string]string) *ServiceError {
	err := newServiceError(http.StatusUnprocessableEntity, CodeValidation, message, nil)
	err.Fields = fields
	return err
}

func TransientError(message string, cause error) *ServiceError {
	return newServiceError(http.StatusServiceUnavailable, CodeTransient, message, cause)
}

func LoadError(cause error) *ServiceError {
	return newServiceError(http.StatusBadGateway, CodeLoadFailed, "failed to load task analytics data", cause)
}

func hasCode(err error, code string) bool {
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		return false
	}
	return svcErr.Code == code
}

func IsConflict(err error) bool   { return hasCode(err, CodeTimerConflict) }
func IsNotFound(err error) bool   { return hasCode(err, CodeNotFound) }
func IsValidation(err error) bool { return hasCode(err, CodeValidation) }
func IsTransient(err error) bool  { return hasCode(err, CodeTransient) }
func IsLoadFailed(err error) bool { return hasCode(err, CodeLoadFailed) }
