package httpadapter

import (
	"net/http"

	"github.com/mvribeiro/protesto-backoffice/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrInvalidState):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrUniqueness):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrConstraint):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrMalformed):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrTransport):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
