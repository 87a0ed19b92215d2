// ABOUTME: Maps the error taxonomy onto HTTP statuses
// ABOUTME: Error bodies are {"detail": "..."} and never echo credentials
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/harper/ddl-architect/internal/models"
)

func detail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}

// statusFor picks the status for err; fallback applies to errors outside the taxonomy
func statusFor(err error, fallback int) int {
	var analysis *models.AnalysisError
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &analysis):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrDataIntegrity), errors.Is(err, models.ErrStorage):
		return http.StatusInternalServerError
	case errors.Is(err, models.ErrConnection):
		return http.StatusBadGateway
	}
	return fallback
}

// fail writes err with its mapped status; 5xx bodies use msg instead of err
func (s *Server) fail(c *gin.Context, err error, fallback int, msg string) {
	status := statusFor(err, fallback)
	if status >= http.StatusInternalServerError || status == http.StatusUnprocessableEntity {
		s.logger.Error(msg, "path", c.Request.URL.Path, "status", status, "err", err)
		detail(c, status, msg)
		return
	}
	s.logger.Warn("request rejected", "path", c.Request.URL.Path, "status", status, "err", err)
	detail(c, status, err.Error())
}
