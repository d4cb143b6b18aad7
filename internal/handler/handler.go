package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"classattend/internal/analytics"
	"classattend/internal/apperr"
	"classattend/internal/auth"
	"classattend/internal/checkin"
	"classattend/internal/clock"
	"classattend/internal/cloudinary"
	"classattend/internal/httpmiddleware"
	"classattend/internal/ledger"
	"classattend/internal/queue"
	"classattend/internal/request"
	"classattend/internal/session"
)

const (
	retryAttempts = 3
	retryBase     = 50 * time.Millisecond
)

// Uploader stores evidence files and returns their public location.
type Uploader interface {
	UploadBase64(ctx context.Context, data string) (*cloudinary.UploadResult, error)
	UploadBytes(ctx context.Context, data []byte, filename string) (*cloudinary.UploadResult, error)
}

// HealthCheck is a named dependency check reported by /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps wires the engine services into the HTTP layer.
type Deps struct {
	Sessions  *session.Manager
	Ledger    *ledger.Ledger
	Requests  *request.Workflow
	Analytics *analytics.Service
	Queue     queue.Queue
	Results   checkin.Results
	Uploader  Uploader // nil disables evidence upload
	Clock     clock.Clock
	Location  *time.Location
	Health    []HealthCheck

	// RequireFace rejects check-ins without a face capture.
	RequireFace bool

	// CheckinLimiter caps submissions per student. Nil disables it.
	CheckinLimiter *httpmiddleware.Limiter
}

type Handler struct {
	Deps
}

func New(d Deps) *Handler {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	return &Handler{Deps: d}
}

// Register mounts the versioned API on r behind authn.
func (h *Handler) Register(r gin.IRouter, authn gin.HandlerFunc) {
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1", authn)
	v1.GET("/requests/:id", h.GetRequest)

	instructor := v1.Group("", auth.RequireRole(auth.RoleInstructor))
	instructor.POST("/sessions", h.CreateSession)
	instructor.GET("/sessions", h.ListSessions)
	instructor.GET("/sessions/:id", h.GetSession)
	instructor.POST("/sessions/:id/end", h.EndSession)
	instructor.GET("/requests", h.ListRequests)
	instructor.POST("/requests/:id/approve", h.ApproveRequest)
	instructor.POST("/requests/:id/reject", h.RejectRequest)
	instructor.GET("/analytics", h.Snapshot)
	instructor.GET("/history", h.History)

	limit := func(c *gin.Context) { c.Next() }
	if h.CheckinLimiter != nil {
		limit = h.CheckinLimiter.Middleware(func(c *gin.Context) string { return caller(c).ID })
	}

	student := v1.Group("", auth.RequireRole(auth.RoleStudent))
	student.GET("/sessions/code/:code", h.ResolveCode)
	student.POST("/checkins", limit, h.SubmitCheckin)
	student.GET("/checkins/:id", h.GetCheckin)
	student.POST("/requests", limit, h.SubmitRequest)
	student.POST("/evidence", h.UploadEvidence)
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for _, hc := range h.Health {
		healthy := hc.Check(c.Request.Context()) == nil
		body[hc.Name] = healthy
		if !healthy {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// ---------- helpers ----------

func caller(c *gin.Context) auth.Identity {
	id, _ := auth.IdentityFrom(c)
	return id
}

// retry reruns fn on transient store failures. Only idempotent operations use it.
func retry(c *gin.Context, fn func(ctx context.Context) error) error {
	return apperr.Retry(c.Request.Context(), retryAttempts, retryBase, fn)
}

func statusFor(err error) int {
	switch apperr.Kind(err) {
	case apperr.ErrInvalidInput:
		return http.StatusBadRequest
	case apperr.ErrNotFound:
		return http.StatusNotFound
	case apperr.ErrForbidden:
		return http.StatusForbidden
	case apperr.ErrAlreadyEnded, apperr.ErrAlreadyReviewed, apperr.ErrConflict:
		return http.StatusConflict
	case apperr.ErrStoreUnavailable:
		return http.StatusServiceUnavailable
	case apperr.ErrTimeout:
		return http.StatusGatewayTimeout
	}
	if errors.Is(err, context.Canceled) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		if k := apperr.Kind(err); k != nil {
			msg = k.Error()
		} else {
			msg = "internal error"
		}
	}
	c.JSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, op string, err error) {
	writeError(c, apperr.Invalid(op, "%v", err))
}

// queryFilter returns the query value with "all" treated as unset.
func queryFilter(c *gin.Context, key string) string {
	v := c.Query(key)
	if v == "all" {
		return ""
	}
	return v
}

// queryDate parses a YYYY-MM-DD query value in the configured timezone.
func (h *Handler) queryDate(c *gin.Context, op, key string) (time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, v, h.Location)
	if err != nil {
		return time.Time{}, apperr.Invalid(op, "%s must be YYYY-MM-DD", key)
	}
	return t, nil
}

func queryInt(c *gin.Context, op, key string, fallback int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperr.Invalid(op, "%s must be a non-negative integer", key)
	}
	return n, nil
}
