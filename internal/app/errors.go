package app

import (
	"errors"
	"fmt"
	"net/http"

	"inkcheck/api/internal/correction"
	"inkcheck/api/internal/export"
	"inkcheck/api/internal/pmdoc"
	"inkcheck/api/internal/store"
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

var errSessionNotFound = domainError(http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found", nil)

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, correction.ErrNotFound):
		return http.StatusNotFound, "CORRECTION_NOT_FOUND", "Correction not found", nil
	case errors.Is(err, correction.ErrConflictUnknown):
		return http.StatusNotFound, "CONFLICT_NOT_FOUND", "Conflict not found", nil
	case errors.Is(err, correction.ErrNotPending):
		return http.StatusConflict, "CORRECTION_NOT_PENDING", "Correction is already decided", nil
	case errors.Is(err, correction.ErrNotResolved):
		return http.StatusConflict, "CORRECTION_NOT_RESOLVED", "Correction has no decision to revert", nil
	case errors.Is(err, correction.ErrNoSuggestion):
		return http.StatusUnprocessableEntity, "NO_SUGGESTION", "Correction has no usable suggestion", nil
	case errors.Is(err, correction.ErrDuplicateID):
		return http.StatusConflict, "DUPLICATE_CORRECTION", "Correction id already in use", nil
	case errors.Is(err, correction.ErrStaleConflict):
		return http.StatusConflict, "STALE_CONFLICT", "The document changed after this conflict; confirm it instead", nil
	case errors.Is(err, pmdoc.ErrNothingToUndo):
		return http.StatusConflict, "NOTHING_TO_UNDO", "Nothing to undo", nil
	case errors.Is(err, pmdoc.ErrNothingToRedo):
		return http.StatusConflict, "NOTHING_TO_REDO", "Nothing to redo", nil
	case errors.Is(err, pmdoc.ErrStaleTransaction):
		return http.StatusConflict, "STALE_TRANSACTION", "Document changed while the edit was built", nil
	case errors.Is(err, pmdoc.ErrInvalidDocument),
		errors.Is(err, pmdoc.ErrInvalidContent),
		errors.Is(err, pmdoc.ErrInvalidRange),
		errors.Is(err, pmdoc.ErrPositionOutOfRange):
		return http.StatusUnprocessableEntity, "INVALID_EDIT", err.Error(), nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "UNSUPPORTED_FORMAT", "Unsupported export format", nil
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, "PDF_UNAVAILABLE", "PDF export is not available on this server", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
