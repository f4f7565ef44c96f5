package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thereayou/unimeet/internal/handlers/dto"
	"github.com/thereayou/unimeet/internal/services"
)

// respondError переводит ошибку сервиса в HTTP ответ.
// Неожиданные ошибки логируются, клиент видит только "internal error".
func respondError(c *gin.Context, err error) {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		fields := make([]dto.FieldError, len(verr.Fields))
		for i, f := range verr.Fields {
			fields[i] = dto.FieldError{Field: f.Field, Message: f.Message}
		}
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "validation failed", Fields: fields})
		return
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(status, dto.ErrorResponse{Error: "internal error"})
		return
	}
	c.JSON(status, dto.ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrRegistrationClosed),
		errors.Is(err, services.ErrCapacityExceeded):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrDuplicateRegistration),
		errors.Is(err, services.ErrConstraintViolation):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: msg})
}
