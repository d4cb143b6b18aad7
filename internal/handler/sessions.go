package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"classattend/internal/geo"
	"classattend/internal/model"
	"classattend/internal/session"
	"classattend/internal/store"
)

const maxSessionList = 200

type createSessionRequest struct {
	ClassID   string       `json:"classId"`
	ClassName string       `json:"className"`
	Duration  int          `json:"duration"`
	Geofence  geo.Geofence `json:"geofence"`
}

type sessionView struct {
	model.Session
	Open             bool `json:"open"`
	RemainingMinutes int  `json:"remainingMinutes"`
}

func (h *Handler) view(s model.Session) sessionView {
	return sessionView{
		Session:          s,
		Open:             s.IsOpen(h.Clock.Now()),
		RemainingMinutes: h.Sessions.RemainingMinutes(s),
	}
}

// CreateSession opens an attendance window for the calling instructor.
func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "session.create", err)
		return
	}
	s, err := h.Sessions.Create(c.Request.Context(), session.CreateParams{
		InstructorID: caller(c).ID,
		ClassID:      req.ClassID,
		ClassName:    req.ClassName,
		Duration:     req.Duration,
		Geofence:     req.Geofence,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.view(s))
}

func (h *Handler) ListSessions(c *gin.Context) {
	const op = "session.list"
	from, err := h.queryDate(c, op, "from")
	if err != nil {
		writeError(c, err)
		return
	}
	to, err := h.queryDate(c, op, "to")
	if err != nil {
		writeError(c, err)
		return
	}
	limit, err := queryInt(c, op, "limit", 50)
	if err != nil {
		writeError(c, err)
		return
	}
	q := store.SessionQuery{InstructorID: caller(c).ID, Limit: min(limit, maxSessionList)}
	if !from.IsZero() {
		q.From = &from
	}
	if !to.IsZero() {
		end := to.AddDate(0, 0, 1).Add(-1)
		q.To = &end
	}

	var sessions []model.Session
	err = retry(c, func(ctx context.Context) error {
		var err error
		sessions, err = h.Sessions.List(ctx, q)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, h.view(s))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

// GetSession returns an owned session with its ledger entries.
func (h *Handler) GetSession(c *gin.Context) {
	id := c.Param("id")
	var (
		s       model.Session
		records []model.AttendanceRecord
	)
	err := retry(c, func(ctx context.Context) error {
		var err error
		if s, err = h.Sessions.Get(ctx, id, caller(c).ID); err != nil {
			return err
		}
		records, err = h.Ledger.Get(ctx, id)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	sr := model.SessionRecords{Session: s, Records: records}
	c.JSON(http.StatusOK, gin.H{
		"session":      h.view(s),
		"records":      records,
		"presentCount": sr.PresentCount(),
	})
}

func (h *Handler) EndSession(c *gin.Context) {
	id := c.Param("id")
	var s model.Session
	err := retry(c, func(ctx context.Context) error {
		var err error
		s, err = h.Sessions.End(ctx, id, caller(c).ID)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(s))
}

// ResolveCode lets a student find the session behind a displayed code.
func (h *Handler) ResolveCode(c *gin.Context) {
	var s model.Session
	err := retry(c, func(ctx context.Context) error {
		var err error
		s, err = h.Sessions.ResolveCode(ctx, c.Param("code"))
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.view(s))
}
