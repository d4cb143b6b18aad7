package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"classattend/internal/model"
	"classattend/internal/request"
)

// SubmitRequest files an exception request for the calling student.
func (h *Handler) SubmitRequest(c *gin.Context) {
	var sub request.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		badRequest(c, "request.submit", err)
		return
	}
	id := caller(c)
	sub.StudentID = id.ID
	sub.StudentName = id.Name
	sub.StudentEmail = id.Email

	r, err := h.Requests.Submit(c.Request.Context(), sub)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

// ListRequests returns the instructor's requests with review stats.
// Filter values of "all" are ignored.
func (h *Handler) ListRequests(c *gin.Context) {
	const op = "request.list"
	from, err := h.queryDate(c, op, "dateFrom")
	if err != nil {
		writeError(c, err)
		return
	}
	to, err := h.queryDate(c, op, "dateTo")
	if err != nil {
		writeError(c, err)
		return
	}
	f := request.Filter{
		Status:    model.RequestStatus(queryFilter(c, "status")),
		Type:      model.RequestType(queryFilter(c, "type")),
		DateFrom:  from,
		DateTo:    to,
		ClassName: queryFilter(c, "className"),
		Search:    c.Query("search"),
	}

	var listing request.Listing
	err = retry(c, func(ctx context.Context) error {
		var err error
		listing, err = h.Requests.List(ctx, caller(c).ID, f)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

// GetRequest is visible to the assigned instructor and the submitting student.
func (h *Handler) GetRequest(c *gin.Context) {
	var r model.AttendanceRequest
	err := retry(c, func(ctx context.Context) error {
		var err error
		r, err = h.Requests.Get(ctx, c.Param("id"), caller(c).ID)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

type reviewRequest struct {
	Comments string `json:"comments" binding:"max=2000"`
}

func (h *Handler) ApproveRequest(c *gin.Context) {
	h.review(c, h.Requests.Approve)
}

func (h *Handler) RejectRequest(c *gin.Context) {
	h.review(c, h.Requests.Reject)
}

type reviewFunc func(ctx context.Context, id, reviewerID, comments string) (model.AttendanceRequest, error)

func (h *Handler) review(c *gin.Context, fn reviewFunc) {
	var body reviewRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, "request.review", err)
			return
		}
	}
	var r model.AttendanceRequest
	err := retry(c, func(ctx context.Context) error {
		var err error
		r, err = fn(ctx, c.Param("id"), caller(c).ID, body.Comments)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}
