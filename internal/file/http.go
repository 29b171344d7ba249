package file

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/abduss/cloudnest/internal/auth"
	"github.com/abduss/cloudnest/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RegisterRoutes mounts file operations under /files on the provided group.
func RegisterRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	files := group.Group("/files")
	{
		files.POST("/upload-url", handler.requestUpload)
		files.POST("/complete", handler.completeUpload)
		files.GET("", handler.listFiles)
		files.GET("/:id", handler.getFile)
		files.GET("/:id/download", handler.downloadFile)
		files.POST("/:id/reprocess", handler.reprocessFile)
		files.DELETE("/:id", handler.deleteFile)
	}
}

type httpHandler struct {
	service *Service
}

type uploadURLRequest struct {
	Filename    string `json:"filename" binding:"required,max=1024"`
	ContentType string `json:"contentType" binding:"required"`
	Size        int64  `json:"size" binding:"required"`
}

type completeRequest struct {
	StorageKey string `json:"storageKey" binding:"required"`
}

func (h *httpHandler) requestUpload(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req uploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ticket, err := h.service.RequestUpload(c.Request.Context(), userID, req.Filename, req.ContentType, req.Size)
	if err != nil {
		writeError(c, err, "failed to issue upload url")
		return
	}

	c.JSON(http.StatusCreated, ticket)
}

func (h *httpHandler) completeUpload(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f, err := h.service.CompleteUpload(c.Request.Context(), userID, req.StorageKey)
	if err != nil {
		writeError(c, err, "failed to complete upload")
		return
	}

	c.JSON(http.StatusOK, gin.H{"file": f})
}

func (h *httpHandler) listFiles(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	files, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, "failed to list files")
		return
	}

	c.JSON(http.StatusOK, gin.H{"files": files})
}

func (h *httpHandler) getFile(c *gin.Context) {
	userID, fileID, ok := userAndFile(c)
	if !ok {
		return
	}

	f, err := h.service.Get(c.Request.Context(), userID, fileID)
	if err != nil {
		writeError(c, err, "failed to load file")
		return
	}

	c.JSON(http.StatusOK, gin.H{"file": f})
}

func (h *httpHandler) downloadFile(c *gin.Context) {
	userID, fileID, ok := userAndFile(c)
	if !ok {
		return
	}

	f, reader, err := h.service.Download(c.Request.Context(), userID, fileID)
	if err != nil {
		writeError(c, err, "failed to download file")
		return
	}
	defer reader.Close()

	c.Header("Content-Type", f.MimeType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Filename))
	c.Header("Content-Length", fmt.Sprintf("%d", f.SizeBytes))

	if _, err := io.Copy(c.Writer, reader); err != nil {
		logger.FromGin(c).Warn("download interrupted", zap.String("file_id", f.ID.String()), zap.Error(err))
	}
}

func (h *httpHandler) reprocessFile(c *gin.Context) {
	userID, fileID, ok := userAndFile(c)
	if !ok {
		return
	}

	f, err := h.service.Reprocess(c.Request.Context(), userID, fileID)
	if err != nil {
		writeError(c, err, "failed to reprocess file")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"file": f})
}

func (h *httpHandler) deleteFile(c *gin.Context) {
	userID, fileID, ok := userAndFile(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), userID, fileID); err != nil {
		writeError(c, err, "failed to delete file")
		return
	}

	c.Status(http.StatusNoContent)
}

func userAndFile(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return uuid.Nil, uuid.Nil, false
	}
	fileID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid file id"})
		return uuid.Nil, uuid.Nil, false
	}
	return userID, fileID, true
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrUnsupportedMediaType):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unsupported media type"})
	case errors.Is(err, ErrInvalidUpload):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid upload request"})
	case errors.Is(err, ErrFileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": "file is not in a valid state for this operation"})
	case errors.Is(err, ErrStorage):
		c.JSON(http.StatusBadGateway, gin.H{"error": "object storage unavailable"})
	case errors.Is(err, ErrDelivery):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job queue unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  fallback,
			"detail": err.Error(),
		})
	}
}
