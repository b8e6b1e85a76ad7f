package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"scribeit/internal/auth"
	"scribeit/internal/backend"
	"scribeit/internal/logger"
	"scribeit/internal/media"
	"scribeit/internal/upload"
	"scribeit/internal/worker"
)

// writeError maps err onto a status code and a JSON body.
func writeError(c *gin.Context, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "request failed", err, logger.Fields{
			"path":   c.FullPath(),
			"status": status,
		})
	}
	c.JSON(status, body)
}

func errorResponse(err error) (int, gin.H) {
	if ve, ok := media.AsValidationError(err); ok {
		return http.StatusBadRequest, gin.H{"error": ve.Error(), "kind": string(ve.Kind)}
	}
	var se *backend.ServerError
	var te *backend.TransportError
	switch {
	case errors.Is(err, upload.ErrInFlight):
		return http.StatusConflict, gin.H{"error": err.Error()}
	case errors.Is(err, upload.ErrBusy), errors.Is(err, worker.ErrDispatcherBusy):
		return http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"}
	case errors.Is(err, upload.ErrJobNotFound):
		return http.StatusNotFound, gin.H{"error": err.Error()}
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidSession),
		errors.Is(err, auth.ErrSessionExpired),
		errors.Is(err, backend.ErrNoCredential):
		return http.StatusUnauthorized, gin.H{"error": err.Error()}
	case errors.As(err, &se):
		switch {
		case se.Unauthorized():
			return http.StatusUnauthorized, gin.H{"error": "session is no longer valid, please sign in again"}
		case se.NotFound():
			return http.StatusNotFound, gin.H{"error": detailOr(se.Detail, "not found")}
		}
		return http.StatusBadGateway, gin.H{"error": detailOr(se.Detail, "backend request failed")}
	case errors.As(err, &te), errors.Is(err, context.DeadlineExceeded):
		return http.StatusBadGateway, gin.H{"error": "backend unavailable"}
	default:
		return http.StatusInternalServerError, gin.H{"error": "internal error"}
	}
}

func detailOr(detail, fallback string) string {
	if detail == "" {
		return fallback
	}
	return detail
}
