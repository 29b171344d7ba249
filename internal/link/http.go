package link

import (
	"errors"
	"net/http"
	"time"

	"github.com/abduss/cloudnest/internal/auth"
	"github.com/abduss/cloudnest/internal/file"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PasswordHeader carries the password for protected links.
const PasswordHeader = "X-Link-Password"

// RegisterRoutes mounts link management under /links on an authenticated group.
func RegisterRoutes(group *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}
	links := group.Group("/links")
	{
		links.POST("", handler.createLink)
		links.GET("", handler.listLinks)
		links.DELETE("/:id", handler.deleteLink)
	}
}

// RegisterPublicRoutes mounts the unauthenticated access route.
func RegisterPublicRoutes(router gin.IRouter, service *Service) {
	handler := &httpHandler{service: service}
	router.GET("/s/:token", handler.accessLink)
}

type httpHandler struct {
	service *Service
}

type createLinkRequest struct {
	FileID    string     `json:"fileId" binding:"required,uuid"`
	Password  *string    `json:"password" binding:"omitempty,max=72"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

func (h *httpHandler) createLink(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req createLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fileID, _ := uuid.Parse(req.FileID)

	l, err := h.service.Create(c.Request.Context(), userID, CreateInput{
		FileID:    fileID,
		Password:  req.Password,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		writeError(c, err, "failed to create link")
		return
	}

	c.JSON(http.StatusCreated, l)
}

func (h *httpHandler) listLinks(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	links, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, "failed to list links")
		return
	}
	c.JSON(http.StatusOK, gin.H{"links": links})
}

func (h *httpHandler) deleteLink(c *gin.Context) {
	userID, _, ok := auth.RequireUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	linkID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid link id"})
		return
	}

	if err := h.service.Delete(c.Request.Context(), userID, linkID); err != nil {
		writeError(c, err, "failed to delete link")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) accessLink(c *gin.Context) {
	password := c.GetHeader(PasswordHeader)
	if password == "" {
		password = c.Query("password")
	}

	result, err := h.service.Access(c.Request.Context(), c.Param("token"), password)
	if err != nil {
		writeError(c, err, "failed to resolve link")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Redirect(http.StatusFound, result.RedirectURL)
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrLinkNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "link not found"})
	case errors.Is(err, file.ErrFileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
	case errors.Is(err, ErrLinkExpired):
		c.JSON(http.StatusGone, gin.H{"error": "link expired"})
	case errors.Is(err, ErrInvalidPassword):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, ErrInvalidExpiry):
		c.JSON(http.StatusBadRequest, gin.H{"error": "expiresAt must be in the future"})
	case errors.Is(err, file.ErrStorage):
		c.JSON(http.StatusBadGateway, gin.H{"error": "object storage unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  fallback,
			"detail": err.Error(),
		})
	}
}
