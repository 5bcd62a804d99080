package service

import (
	"net/http"

	apierrors "github.com/nicholasjvr/inque.com-sub002/internal/api/errors"
)

// ServiceError — типизированная ошибка сервисного слоя.
// Несёт HTTP-статус и машиночитаемый код, чтобы обработчики
// транслировали её в стандартный ответ без собственной логики.
type ServiceError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ServiceError) Error() string {
	return e.Message
}

func newValidationError(message string) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusBadRequest,
		Code:       apierrors.CodeValidationError,
		Message:    message,
	}
}

func newNotFoundError(message string) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusNotFound,
		Code:       apierrors.CodeNotFound,
		Message:    message,
	}
}

func newForbiddenError(message string) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusForbidden,
		Code:       apierrors.CodeForbidden,
		Message:    message,
	}
}

func newFileTooLargeError(message string) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusRequestEntityTooLarge,
		Code:       apierrors.CodeFileTooLarge,
		Message:    message,
	}
}

func newInvalidStateError(message string) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusConflict,
		Code:       apierrors.CodeInvalidState,
		Message:    message,
	}
}

func newInternalError(message string) *ServiceError {
	return &ServiceError{
		StatusCode: http.StatusInternalServerError,
		Code:       apierrors.CodeInternalError,
		Message:    message,
	}
}
