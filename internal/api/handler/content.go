package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/councilgen/internal/domain"
	"github.com/timmy/councilgen/internal/repository"
	"gorm.io/gorm"
)

// ContentHandler serves generated content and media records.
type ContentHandler struct {
	content *repository.ContentRepository
	media   *repository.MediaRepository
}

// NewContentHandler creates a new content handler.
func NewContentHandler(content *repository.ContentRepository, media *repository.MediaRepository) *ContentHandler {
	return &ContentHandler{content: content, media: media}
}

// ContentResponse is a content item with its attached media ids.
type ContentResponse struct {
	*domain.ContentItem
	Media map[string]string `json:"media"`
}

// ListContent handles GET /api/v1/content.
func (h *ContentHandler) ListContent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	ctx := c.Request.Context()
	items, err := h.content.List(ctx, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list content: " + err.Error()})
		return
	}
	total, err := h.content.Count(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count content: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"results": items,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// GetContent handles GET /api/v1/content/:id.
func (h *ContentHandler) GetContent(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	item, err := h.content.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Content not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get content: " + err.Error()})
		return
	}
	media, err := h.content.MediaFields(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get content media: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, ContentResponse{ContentItem: item, Media: media})
}

// GetMedia handles GET /api/v1/media/:id.
func (h *ContentHandler) GetMedia(c *gin.Context) {
	media, err := h.media.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Media not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get media: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, media)
}
