package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/skyfare/ticketing/internal/domain"
)

// writeError maps the domain error taxonomy onto HTTP. The body always
// carries error_kind so callers can branch without parsing messages, and
// validation failures list every violated condition.
func writeError(c *gin.Context, err error) {
	kind := domain.KindOf(err)

	body := gin.H{
		"error_kind": string(kind),
		"error":      err.Error(),
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		body["conditions"] = ve.Conditions
	}

	c.JSON(statusFor(kind), body)
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.ErrKindValidation:
		return http.StatusUnprocessableEntity
	case domain.ErrKindPermission:
		return http.StatusForbidden
	case domain.ErrKindConflict:
		return http.StatusConflict
	case domain.ErrKindNotFound:
		return http.StatusNotFound
	case domain.ErrKindGDSTransient:
		return http.StatusBadGateway
	case domain.ErrKindGDSBusiness:
		return http.StatusUnprocessableEntity
	case domain.ErrKindIndeterminate:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
