// internal/api/errors.go
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "autohaven/internal/common/errors"
)

var statusByCode = map[apperrors.ErrorCode]int{
	apperrors.ErrCodeValidationFailed:      http.StatusBadRequest,
	apperrors.ErrCodePrecondition:          http.StatusPreconditionFailed,
	apperrors.ErrCodeAuthenticationFailed:  http.StatusUnauthorized,
	apperrors.ErrCodeAuthorizationFailed:   http.StatusForbidden,
	apperrors.ErrCodeNotFound:              http.StatusNotFound,
	apperrors.ErrCodeConflict:              http.StatusConflict,
	apperrors.ErrCodeAlreadyInProgress:     http.StatusConflict,
	apperrors.ErrCodeGenerationParseFailed: http.StatusInternalServerError,
	apperrors.ErrCodeGenerationUnavailable: http.StatusServiceUnavailable,
	apperrors.ErrCodeDeliveryRejected:      http.StatusUnprocessableEntity,
	apperrors.ErrCodeDeliveryUnavailable:   http.StatusServiceUnavailable,
	apperrors.ErrCodePartialFailure:        http.StatusInternalServerError,
	apperrors.ErrCodeInternal:              http.StatusInternalServerError,
}

// respondError maps a domain error onto its HTTP status and uniform body.
// Unknown errors collapse to 500 without leaking internals.
func respondError(c *gin.Context, err error) {
	std := apperrors.AsStandard(err)

	status, ok := statusByCode[std.Code]
	if !ok {
		status = http.StatusInternalServerError
	}

	body := ErrorResponse{
		Code:    string(std.Code),
		Message: std.Message,
	}
	if status < http.StatusInternalServerError {
		body.Details = std.Details
	}

	c.AbortWithStatusJSON(status, body)
}
