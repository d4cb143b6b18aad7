package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"classattend/internal/apperr"
	"classattend/internal/checkin"
	"classattend/internal/geo"
)

type checkinRequest struct {
	SessionID   string    `json:"sessionId"`
	SessionCode string    `json:"sessionCode"`
	Location    geo.Point `json:"location"`
	ImageURL    string    `json:"imageUrl"`
}

// SubmitCheckin queues an attempt for face verification and judging.
// The verdict is fetched later from GetCheckin.
func (h *Handler) SubmitCheckin(c *gin.Context) {
	const op = "checkin.submit"
	var req checkinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, op, err)
		return
	}
	if req.SessionID == "" && strings.TrimSpace(req.SessionCode) == "" {
		writeError(c, apperr.Invalid(op, "sessionId or sessionCode required"))
		return
	}
	if !geo.ValidCoordinates(req.Location) {
		writeError(c, apperr.Invalid(op, "location out of range"))
		return
	}
	if h.RequireFace && strings.TrimSpace(req.ImageURL) == "" {
		writeError(c, apperr.Invalid(op, "imageUrl required"))
		return
	}

	a := checkin.Attempt{
		ID:          uuid.NewString(),
		SessionID:   req.SessionID,
		SessionCode: req.SessionCode,
		StudentID:   caller(c).ID,
		Location:    req.Location,
		ImageURL:    req.ImageURL,
		ReceivedAt:  h.Clock.Now().UTC(),
	}
	if err := checkin.Enqueue(c.Request.Context(), h.Queue, a); err != nil {
		log.Error().Err(err).Str("attempt_id", a.ID).Msg("queue publish failed")
		writeError(c, apperr.E(op, a.ID, apperr.FromContext(err)))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"attemptId": a.ID, "status": "queued"})
}

// GetCheckin returns the caller's attempt outcome once the worker has judged it.
func (h *Handler) GetCheckin(c *gin.Context) {
	const op = "checkin.get"
	id := c.Param("id")
	var out checkin.Outcome
	err := retry(c, func(ctx context.Context) error {
		var err error
		out, err = h.Results.Get(ctx, id)
		return err
	})
	if err == nil && out.StudentID != caller(c).ID {
		err = apperr.E(op, id, apperr.ErrNotFound)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
