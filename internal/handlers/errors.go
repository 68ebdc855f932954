package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"taskhub/backend/internal/middleware"
	"taskhub/backend/internal/services"
	"taskhub/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

// writeError maps service errors onto status codes. Anything unrecognised is
// logged and reported as a generic 500.
func writeError(c *gin.Context, log *slog.Logger, err error) {
	status, code := http.StatusInternalServerError, "internal_error"

	switch {
	case errors.Is(err, services.ErrEmailInUse):
		status, code = http.StatusBadRequest, "email_in_use"
	case errors.Is(err, services.ErrValidation), errors.Is(err, storage.ErrEmptyFile):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, services.ErrInvalidCredentials):
		status, code = http.StatusBadRequest, "invalid_credentials"
	case errors.Is(err, services.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, services.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	}

	if status == http.StatusInternalServerError {
		log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": code, "message": "An unexpected error occurred"})
		return
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": message})
}

// paramID parses a UUID path parameter and answers 400 when it is malformed.
func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.FromString(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func mustCaller(c *gin.Context) (services.Caller, bool) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "missing_token",
			"message": "Authentication required",
		})
	}
	return caller, ok
}
