package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"anysnap/internal/models"
	"anysnap/internal/repository"
)

type createImageRequest struct {
	URL           string  `json:"url" binding:"required,url"`
	OriginalURI   *string `json:"originalUri"`
	UserID        *string `json:"userId"`
	IsPublic      bool    `json:"isPublic"`
	IsRecommended bool    `json:"isRecommended"`
	IsMaster      bool    `json:"isMaster"`
}

type imageResponse struct {
	ID            string    `json:"id"`
	UserID        *string   `json:"userId,omitempty"`
	URL           string    `json:"url"`
	OriginalURI   *string   `json:"originalUri,omitempty"`
	IsRecommended bool      `json:"isRecommended"`
	IsMaster      bool      `json:"isMaster"`
	IsPublic      bool      `json:"isPublic"`
	IsAnalyzed    bool      `json:"isAnalyzed"`
	IsSynced      bool      `json:"isSynced"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// newImageID mints a primary key for the images table, which is typed uuid.
// Annotation rows use ksuid keys; image ids must stay uuid to satisfy the
// column and its foreign keys.
func newImageID() string {
	return uuid.NewString()
}

func toImageResponse(img models.Image) imageResponse {
	return imageResponse{
		ID:            img.ID,
		UserID:        img.UserID,
		URL:           img.URL,
		OriginalURI:   img.OriginalURI,
		IsRecommended: img.IsRecommended,
		IsMaster:      img.IsMaster,
		IsPublic:      img.IsPublic,
		IsAnalyzed:    img.IsAnalyzed,
		IsSynced:      img.IsSynced,
		CreatedAt:     img.CreatedAt,
		UpdatedAt:     img.UpdatedAt,
	}
}

func toImageResponses(images []models.Image) []imageResponse {
	out := make([]imageResponse, 0, len(images))
	for _, img := range images {
		out = append(out, toImageResponse(img))
	}
	return out
}

func (h HandlerSet) CreateImage(c *gin.Context) {
	var req createImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return
	}

	ctx := c.Request.Context()

	if req.UserID != nil && *req.UserID != "" {
		// User ids are client-minted; a malformed one is the caller's
		// mistake, not a server failure.
		if _, err := uuid.Parse(*req.UserID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_user_id"})
			return
		}
		if _, err := h.users.Ensure(ctx, *req.UserID); err != nil {
			h.log.Error().Err(err).Str("user_id", *req.UserID).Msg("ensure user failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "user_create_failed"})
			return
		}
	} else {
		req.UserID = nil
	}

	img := models.Image{
		ID:            newImageID(),
		UserID:        req.UserID,
		URL:           req.URL,
		OriginalURI:   req.OriginalURI,
		IsPublic:      req.IsPublic,
		IsRecommended: req.IsRecommended,
		IsMaster:      req.IsMaster,
	}
	if err := h.images.Create(ctx, img); err != nil {
		h.log.Error().Err(err).Str("image_id", img.ID).Msg("create image failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "image_create_failed"})
		return
	}

	handle, err := h.dispatcher.Dispatch(ctx, img.ID, true)
	if err != nil {
		h.log.Error().Err(err).Str("image_id", img.ID).Msg("dispatch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "dispatch_failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"image": toImageResponse(img),
		"jobId": handle.JobID,
	})
}

func (h HandlerSet) GetImage(c *gin.Context) {
	ctx := c.Request.Context()
	imageID := c.Param("imageId")

	img, err := h.images.GetByID(ctx, imageID)
	if err != nil {
		if errors.Is(err, repository.ErrImageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "image_not_found"})
			return
		}
		h.log.Error().Err(err).Str("image_id", imageID).Msg("load image failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "image_load_failed"})
		return
	}

	tags, err := h.annotations.TagNames(ctx, imageID)
	if err != nil {
		h.log.Error().Err(err).Str("image_id", imageID).Msg("load tags failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "tags_load_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"image": toImageResponse(img),
		"tags":  tags,
	})
}

func (h HandlerSet) DeleteImage(c *gin.Context) {
	imageID := c.Param("imageId")
	if err := h.images.SoftDelete(c.Request.Context(), imageID); err != nil {
		h.log.Error().Err(err).Str("image_id", imageID).Msg("delete image failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "image_delete_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h HandlerSet) ListPublicImages(c *gin.Context) {
	images, err := h.images.ListPublic(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list public images failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "image_list_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"images": toImageResponses(images)})
}

func (h HandlerSet) ListRecommendedImages(c *gin.Context) {
	images, err := h.images.ListRecommended(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list recommended images failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "image_list_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"images": toImageResponses(images)})
}

func (h HandlerSet) ListUserImages(c *gin.Context) {
	userID := c.Param("userId")
	images, err := h.images.ListByUser(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("list user images failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "image_list_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"images": toImageResponses(images)})
}

type setPlayerRequest struct {
	PlayerID string `json:"playerId" binding:"required"`
}

func (h HandlerSet) SetPlayerID(c *gin.Context) {
	var req setPlayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
		return
	}

	ctx := c.Request.Context()
	userID := c.Param("userId")
	if _, err := uuid.Parse(userID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_user_id"})
		return
	}

	if _, err := h.users.Ensure(ctx, userID); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("ensure user failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user_create_failed"})
		return
	}
	if err := h.users.SetNotificationPlayerID(ctx, userID, req.PlayerID); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("set player id failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "player_update_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
