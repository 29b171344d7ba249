package file

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/abduss/cloudnest/internal/callback"
	"github.com/abduss/cloudnest/internal/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RegisterInternalRoutes mounts the worker callback endpoint. When token is
// non-empty every request must present it in the internal token header.
func RegisterInternalRoutes(router gin.IRouter, service *Service, token string) {
	handler := &internalHandler{service: service}
	router.POST(callback.Path, requireInternalToken(token), handler.update)
}

type internalHandler struct {
	service *Service
}

func (h *internalHandler) update(c *gin.Context) {
	var req callback.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.Reconcile(c.Request.Context(), req); err != nil {
		switch {
		case errors.Is(err, ErrInvalidStatus):
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be COMPLETED or FAILED"})
		case errors.Is(err, ErrUnsupportedVersion):
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported callback version"})
		default:
			logger.FromGin(c).Error("reconcile failed", zap.String("file_id", req.FileID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":  "failed to reconcile",
				"detail": err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func requireInternalToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		presented := c.GetHeader(callback.TokenHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid internal token"})
			return
		}
		c.Next()
	}
}
