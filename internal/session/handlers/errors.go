package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/bluegrid/rrm/internal/common/errors"
	"github.com/bluegrid/rrm/internal/common/logger"
)

// handleServiceError maps typed engine errors onto HTTP responses. Client
// errors pass their message through; everything else is logged and masked
// behind the fallback text.
func handleServiceError(c *gin.Context, log *logger.Logger, err error, fallback string) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus < http.StatusInternalServerError {
		c.JSON(appErr.HTTPStatus, gin.H{"error": appErr.Message})
		return
	}
	log.Error(fallback, zap.Error(err))
	c.JSON(apperrors.GetHTTPStatus(err), gin.H{"error": fallback})
}
