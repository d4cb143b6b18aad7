package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"classattend/internal/cloudinary"
	"classattend/internal/model"
)

const maxEvidenceBytes = 10 << 20

// UploadEvidence stores an image or document and returns an Evidence entry
// ready to attach to an exception request. Accepts a multipart "file" field
// or a JSON body {"data": "<base64 data URL>"}.
func (h *Handler) UploadEvidence(c *gin.Context) {
	const op = "evidence.upload"
	if h.Uploader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "evidence storage not configured"})
		return
	}

	var (
		upload   func() (*cloudinary.UploadResult, error)
		filename string
		kind     = c.DefaultQuery("type", "image")
	)
	switch {
	case strings.Contains(c.ContentType(), "multipart/form-data"):
		file, header, ferr := c.Request.FormFile("file")
		if ferr != nil {
			badRequest(c, op, ferr)
			return
		}
		defer file.Close()
		data, ferr := io.ReadAll(io.LimitReader(file, maxEvidenceBytes+1))
		if ferr != nil {
			badRequest(c, op, ferr)
			return
		}
		if len(data) > maxEvidenceBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		filename = header.Filename
		if t := c.PostForm("type"); t != "" {
			kind = t
		}
		upload = func() (*cloudinary.UploadResult, error) {
			return h.Uploader.UploadBytes(c.Request.Context(), data, filename)
		}
	default:
		var body struct {
			Data     string `json:"data" binding:"required"`
			Filename string `json:"filename"`
			Type     string `json:"type"`
		}
		if berr := c.ShouldBindJSON(&body); berr != nil {
			badRequest(c, op, berr)
			return
		}
		filename = body.Filename
		if body.Type != "" {
			kind = body.Type
		}
		upload = func() (*cloudinary.UploadResult, error) {
			return h.Uploader.UploadBase64(c.Request.Context(), body.Data)
		}
	}

	switch kind {
	case "image", "screenshot", "document":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be image, screenshot or document"})
		return
	}
	result, err := upload()
	if err != nil {
		log.Error().Err(err).Str("student_id", caller(c).ID).Msg("evidence upload failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "evidence upload failed"})
		return
	}
	c.JSON(http.StatusCreated, model.Evidence{Type: kind, URL: result.SecureURL, Filename: filename})
}
