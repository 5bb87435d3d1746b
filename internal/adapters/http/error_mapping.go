package httpadapter

import (
	"net/http"

	"github.com/kirillkom/search-orchestrator/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrUnknownSource):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrRunInProgress):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
