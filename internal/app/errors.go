package app

import (
	"errors"
	"fmt"
	"net/http"

	"documedix/api/internal/assist"
	"documedix/api/internal/attachment"
	"documedix/api/internal/docapi"
	"documedix/api/internal/document"
	"documedix/api/internal/editor"
	"documedix/api/internal/export"
	"documedix/api/internal/payload"
	"documedix/api/internal/session"
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

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var apiErr *docapi.APIError
	if errors.As(err, &apiErr) {
		return http.StatusBadGateway, "BACKEND_REJECTED", apiErr.Error(), map[string]any{"action": apiErr.Action}
	}
	var assistErr *assist.ServiceError
	if errors.As(err, &assistErr) {
		return http.StatusBadGateway, "ASSIST_REJECTED", assistErr.Message, nil
	}

	switch {
	case errors.Is(err, docapi.ErrTransport), errors.Is(err, assist.ErrTransport):
		return http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "Upstream service unavailable", nil
	case errors.Is(err, docapi.ErrMalformedResponse),
		errors.Is(err, assist.ErrMalformedResponse),
		errors.Is(err, payload.ErrMalformedContent),
		errors.Is(err, attachment.ErrUploadMismatch):
		return http.StatusBadGateway, "MALFORMED_RESPONSE", err.Error(), nil
	case errors.Is(err, editor.ErrBusy):
		return http.StatusConflict, "BUSY", err.Error(), nil
	case errors.Is(err, editor.ErrStaleResponse):
		return http.StatusConflict, "STALE_RESPONSE", err.Error(), nil
	case errors.Is(err, document.ErrSectionNotFound),
		errors.Is(err, document.ErrItemNotFound),
		errors.Is(err, session.ErrDraftNotFound):
		return http.StatusNotFound, "NOT_FOUND", err.Error(), nil
	case errors.Is(err, document.ErrIndexOutOfRange),
		errors.Is(err, document.ErrUnknownCategory),
		errors.Is(err, document.ErrUnknownItemKind),
		errors.Is(err, document.ErrUnknownDragType),
		errors.Is(err, document.ErrNotFileItem),
		errors.Is(err, assist.ErrEmptyMessage),
		errors.Is(err, assist.ErrItemRequired),
		errors.Is(err, assist.ErrEmptyContent),
		errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
