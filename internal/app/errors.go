package app

import (
	"fmt"
	"net/http"
)

const (
	codeUnauthorized = "UNAUTHORIZED"
	codeForbidden    = "FORBIDDEN"
	codeNotFound     = "NOT_FOUND"
	codeLockConflict = "LOCK_CONFLICT"
	codeValidation   = "VALIDATION_ERROR"
	codeLockedRange  = "LOCKED_RANGE"
	codeServerError  = "SERVER_ERROR"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// errUnauthorized is what every document role gate returns, so that callers
// without access learn nothing about the document.
func errUnauthorized() *DomainError {
	return domainError(http.StatusUnauthorized, codeUnauthorized, "Unauthorized", nil)
}

func errForbidden(message string) *DomainError {
	return domainError(http.StatusForbidden, codeForbidden, message, nil)
}

func errNotFound(message string) *DomainError {
	return domainError(http.StatusNotFound, codeNotFound, message, nil)
}

func errValidation(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, codeValidation, message, nil)
}
