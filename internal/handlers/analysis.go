package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"anysnap/internal/analysis"
	"anysnap/internal/repository"
)

func (h HandlerSet) AnalyzeImage(c *gin.Context) {
	imageID := c.Param("imageId")

	persist := true
	if raw := c.Query("persist"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_persist"})
			return
		}
		persist = parsed
	}

	handle, err := h.dispatcher.Dispatch(c.Request.Context(), imageID, persist)
	if err != nil {
		if errors.Is(err, repository.ErrImageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "image_not_found"})
			return
		}
		h.log.Error().Err(err).Str("image_id", imageID).Msg("dispatch failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "dispatch_failed"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"jobId":   handle.JobID,
		"taskIds": handle.TaskIDs,
	})
}

func (h HandlerSet) AnalysisStatus(c *gin.Context) {
	imageID := c.Param("imageId")

	handle, err := h.status.Get(c.Request.Context(), imageID)
	if err != nil {
		if errors.Is(err, analysis.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job_not_found"})
			return
		}
		h.log.Error().Err(err).Str("image_id", imageID).Msg("status lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status_lookup_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobId":   handle.JobID,
		"taskIds": handle.TaskIDs,
	})
}

func (h HandlerSet) ImageAnnotations(c *gin.Context) {
	ctx := c.Request.Context()
	imageID := c.Param("imageId")

	if _, err := h.images.GetByID(ctx, imageID); err != nil {
		if errors.Is(err, repository.ErrImageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "image_not_found"})
			return
		}
		h.log.Error().Err(err).Str("image_id", imageID).Msg("load image failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "image_load_failed"})
		return
	}

	doc, err := analysis.BuildDocument(ctx, h.annotations, imageID)
	if err != nil {
		h.log.Error().Err(err).Str("image_id", imageID).Msg("build annotations failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "annotations_failed"})
		return
	}

	c.JSON(http.StatusOK, doc)
}
