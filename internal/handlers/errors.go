package handlers

import (
	"errors"
	"net/http"
	"strings"

	"reelboard/internal/instagram"
	"reelboard/internal/services"
	"reelboard/internal/store"

	"github.com/gin-gonic/gin"
)

// respondError maps the service error taxonomy onto HTTP responses. The
// original error text is kept in "details" for diagnostics.
func respondError(c *gin.Context, err error) {
	switch {
	case instagram.IsReconnectError(err):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":              "Reconnect Instagram",
			"reconnect_required": true,
			"details":            err.Error(),
		})
	case services.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
	case errors.Is(err, services.ErrReelNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Reel not found",
		})
	case isDriftError(err):
		var drift *store.DriftError
		errors.As(err, &drift)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":           "Some metrics could not be stored: missing columns " + strings.Join(drift.Columns, ", "),
			"dropped_columns": drift.Columns,
			"details":         err.Error(),
		})
	case isTimeoutError(err):
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error":   "Upstream request timed out",
			"details": err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Request failed",
			"details": err.Error(),
		})
	}
}

func isDriftError(err error) bool {
	var drift *store.DriftError
	return errors.As(err, &drift)
}

func isTimeoutError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "timed out")
}
