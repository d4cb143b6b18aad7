package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"classattend/internal/analytics"
)

func (h *Handler) window(c *gin.Context, op string) (analytics.Window, error) {
	from, err := h.queryDate(c, op, "dateFrom")
	if err != nil {
		return analytics.Window{}, err
	}
	to, err := h.queryDate(c, op, "dateTo")
	if err != nil {
		return analytics.Window{}, err
	}
	return analytics.Window{
		InstructorID: caller(c).ID,
		DateFrom:     from,
		DateTo:       to,
		ClassID:      queryFilter(c, "classId"),
	}, nil
}

// Snapshot returns the overview, daily trend, per-class and per-hour views.
func (h *Handler) Snapshot(c *gin.Context) {
	w, err := h.window(c, "analytics.snapshot")
	if err != nil {
		writeError(c, err)
		return
	}
	var snap analytics.Snapshot
	err = retry(c, func(ctx context.Context) error {
		var err error
		snap, err = h.Analytics.Snapshot(ctx, w)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) History(c *gin.Context) {
	const op = "analytics.history"
	w, err := h.window(c, op)
	if err != nil {
		writeError(c, err)
		return
	}
	page, err := queryInt(c, op, "page", 1)
	if err != nil {
		writeError(c, err)
		return
	}
	size, err := queryInt(c, op, "pageSize", analytics.DefaultPageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	q := analytics.HistoryQuery{
		Window:   w,
		Status:   queryFilter(c, "status"),
		Search:   c.Query("search"),
		Page:     page,
		PageSize: size,
	}

	var out analytics.HistoryPage
	err = retry(c, func(ctx context.Context) error {
		var err error
		out, err = h.Analytics.History(ctx, q)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
