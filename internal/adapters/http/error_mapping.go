package httpadapter

import (
	"net/http"

	"github.com/kirillkom/docflow/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrDocumentNotFound),
		domain.IsKind(err, domain.ErrRuleNotFound),
		domain.IsKind(err, domain.ErrQueueNotFound),
		domain.IsKind(err, domain.ErrDeliveryNotFound),
		domain.IsKind(err, domain.ErrTenantNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrConcurrencyConflict),
		domain.IsKind(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func uploadOutcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case domain.IsKind(err, domain.ErrQuotaExceeded):
		return "quota_exceeded"
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "rejected"
	default:
		return "error"
	}
}
