package app

import (
	"fmt"
	"net/http"
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

// The taxonomy below mirrors the failure classes of the endpoints:
// validation and resolution failures respond 400 with no side effects,
// external-service failures respond 400 after best-effort cleanup.

func validationError(message string) *DomainError {
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", message, nil)
}

func notFoundError(message string) *DomainError {
	return domainError(http.StatusBadRequest, "NOT_FOUND", message, nil)
}

func uploadError(message string) *DomainError {
	return domainError(http.StatusBadRequest, "UPLOAD_FAILED", message, nil)
}

func insertError(message string) *DomainError {
	return domainError(http.StatusBadRequest, "INSERT_FAILED", message, nil)
}

func updateError(message string) *DomainError {
	return domainError(http.StatusBadRequest, "UPDATE_FAILED", message, nil)
}

func deleteError(message string) *DomainError {
	return domainError(http.StatusBadRequest, "DELETE_FAILED", message, nil)
}

func syncError(message string) *DomainError {
	return domainError(http.StatusBadRequest, "SYNC_FAILED", message, nil)
}

func authError(message string) *DomainError {
	return domainError(http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

func serverError(message string) *DomainError {
	return domainError(http.StatusInternalServerError, "SERVER_ERROR", message, nil)
}
