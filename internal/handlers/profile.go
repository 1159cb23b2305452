package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"campus-messaging/internal/logger"
	"campus-messaging/internal/media"
)

// ProfileHandler replaces profile images.
type ProfileHandler struct {
	profiles ProfileService
	log      *logger.Logger
}

func NewProfileHandler(profiles ProfileService, log *logger.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, log: log}
}

func (h *ProfileHandler) UploadAvatar(c *gin.Context) {
	h.upload(c, h.profiles.UploadAvatar)
}

func (h *ProfileHandler) UploadCover(c *gin.Context) {
	h.upload(c, h.profiles.UploadCover)
}

func (h *ProfileHandler) upload(c *gin.Context, put func(context.Context, media.File) (string, error)) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	url, err := put(c.Request.Context(), media.FromMultipart(fh))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}
