package request

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"classattend/internal/apperr"
	"classattend/internal/checkin"
	"classattend/internal/clock"
	"classattend/internal/geo"
	"classattend/internal/ledger"
	"classattend/internal/metrics"
	"classattend/internal/model"
	"classattend/internal/store"
)

// Workflow is the review state machine over exception requests:
// pending -> approved | rejected, exactly once.
type Workflow struct {
	store    store.Store
	ledger   *ledger.Ledger
	clock    clock.Clock
	validate *validator.Validate
	attempts AttemptSource
}

// AttemptSource returns the judged outcome of a queued check-in.
type AttemptSource interface {
	Get(ctx context.Context, attemptID string) (checkin.Outcome, error)
}

// NewWorkflow builds a workflow whose approvals write through l.
func NewWorkflow(st store.Store, l *ledger.Ledger, clk clock.Clock) *Workflow {
	if clk == nil {
		clk = clock.Real()
	}
	return &Workflow{store: st, ledger: l, clock: clk, validate: validator.New()}
}

// WithAttempts lets submissions reference a rejected check-in by id.
func (w *Workflow) WithAttempts(src AttemptSource) *Workflow {
	w.attempts = src
	return w
}

// Submission is a student's appeal against a failed check-in. AttemptID, when
// set, names the rejected check-in whose recorded snapshot is attached.
type Submission struct {
	StudentID    string            `json:"-" validate:"required"`
	StudentName  string            `json:"-"`
	StudentEmail string            `json:"-" validate:"omitempty,email"`
	SessionID    string            `json:"sessionId" validate:"required"`
	RequestType  model.RequestType `json:"requestType" validate:"required"`
	Description  string            `json:"description" validate:"required,max=2000"`
	Evidence     []model.Evidence  `json:"evidence" validate:"max=5,dive"`
	Location     *geo.Point        `json:"location"`
	AttemptID    string            `json:"attemptId"`
	Attempt      *model.Attempt    `json:"originalAttendanceAttempt"`
}

// Submit creates a pending request routed to the session's instructor.
func (w *Workflow) Submit(ctx context.Context, sub Submission) (model.AttendanceRequest, error) {
	const op = "request.submit"
	sub.Description = strings.TrimSpace(sub.Description)
	if err := w.validate.Struct(sub); err != nil {
		return model.AttendanceRequest{}, apperr.Invalid(op, "%v", err)
	}
	if !sub.RequestType.Valid() {
		return model.AttendanceRequest{}, apperr.Invalid(op, "unknown request type %q", sub.RequestType)
	}

	s, err := w.store.GetSession(ctx, sub.SessionID)
	if err != nil {
		return model.AttendanceRequest{}, apperr.E(op, sub.SessionID, err)
	}
	attempt, err := w.originalAttempt(ctx, sub, s)
	if err != nil {
		return model.AttendanceRequest{}, err
	}

	r := model.AttendanceRequest{
		ID:              uuid.NewString(),
		StudentID:       sub.StudentID,
		StudentName:     sub.StudentName,
		StudentEmail:    sub.StudentEmail,
		SessionID:       s.ID,
		SessionName:     s.ClassName + " (" + s.SessionCode + ")",
		ClassName:       s.ClassName,
		InstructorID:    s.InstructorID,
		RequestType:     sub.RequestType,
		Status:          model.RequestPending,
		Description:     sub.Description,
		Evidence:        sub.Evidence,
		Location:        sub.Location,
		SubmittedAt:     w.clock.Now().UTC(),
		OriginalAttempt: attempt,
	}
	if err := w.store.CreateRequest(ctx, r); err != nil {
		return model.AttendanceRequest{}, apperr.E(op, r.ID, err)
	}
	metrics.RequestsSubmitted.WithLabelValues(string(r.RequestType)).Inc()
	log.Info().Str("request_id", r.ID).Str("session_id", r.SessionID).Str("student_id", r.StudentID).
		Str("type", string(r.RequestType)).Msg("attendance request submitted")
	return r, nil
}

// originalAttempt resolves the failed check-in attached to sub. A referenced
// attempt is copied from the judged outcome. A client-supplied snapshot keeps
// only what the device reported; distance is recomputed against s.
func (w *Workflow) originalAttempt(ctx context.Context, sub Submission, s model.Session) (*model.Attempt, error) {
	const op = "request.submit"
	if sub.AttemptID != "" {
		if w.attempts == nil {
			return nil, apperr.Invalid(op, "attempt lookup not available")
		}
		out, err := w.attempts.Get(ctx, sub.AttemptID)
		if err != nil {
			return nil, apperr.E(op, sub.AttemptID, err)
		}
		if out.StudentID != sub.StudentID || out.SessionID != s.ID {
			return nil, apperr.Invalid(op, "attempt %s does not belong to this session", sub.AttemptID)
		}
		if out.Snapshot == nil {
			return nil, apperr.Invalid(op, "attempt %s was not rejected", sub.AttemptID)
		}
		snap := *out.Snapshot
		return &snap, nil
	}
	if sub.Attempt == nil {
		return nil, nil
	}
	if !geo.ValidCoordinates(sub.Attempt.Location) {
		return nil, apperr.Invalid(op, "attempt location out of range")
	}
	a := *sub.Attempt
	dist := geo.Distance(a.Location, s.Geofence.Center())
	a.DistanceMeters = &dist
	a.FaceMatchScore = nil
	return &a, nil
}

// Approve resolves a pending request as approved and marks the student present.
// Both writes commit together.
func (w *Workflow) Approve(ctx context.Context, id, reviewerID, comments string) (model.AttendanceRequest, error) {
	return w.review(ctx, "request.approve", id, reviewerID, comments, model.RequestApproved)
}

// Reject resolves a pending request as rejected. The ledger is untouched.
func (w *Workflow) Reject(ctx context.Context, id, reviewerID, comments string) (model.AttendanceRequest, error) {
	return w.review(ctx, "request.reject", id, reviewerID, comments, model.RequestRejected)
}

func (w *Workflow) review(ctx context.Context, op, id, reviewerID, comments string, to model.RequestStatus) (model.AttendanceRequest, error) {
	current, err := w.store.GetRequest(ctx, id)
	if err != nil {
		return model.AttendanceRequest{}, apperr.E(op, id, err)
	}
	if current.InstructorID != reviewerID {
		return model.AttendanceRequest{}, apperr.E(op, id, apperr.ErrForbidden)
	}
	if current.Status != model.RequestPending {
		return model.AttendanceRequest{}, apperr.E(op, id, apperr.ErrAlreadyReviewed)
	}

	var updated model.AttendanceRequest
	err = w.store.Atomically(ctx, func(tx store.Tx) error {
		r, err := tx.ReviewRequest(ctx, store.Review{
			RequestID:  id,
			Status:     to,
			ReviewedAt: w.clock.Now().UTC(),
			ReviewedBy: reviewerID,
			Comments:   strings.TrimSpace(comments),
		})
		if err != nil {
			return err
		}
		updated = r
		if to != model.RequestApproved {
			return nil
		}
		_, err = w.ledger.MarkManualPresent(ctx, tx, ledger.ManualPresent{
			SessionID:         r.SessionID,
			StudentID:         r.StudentID,
			ApprovedBy:        reviewerID,
			OriginalRequestID: r.ID,
			Location:          r.Location,
		})
		return err
	})
	if err != nil {
		return model.AttendanceRequest{}, apperr.E(op, id, err)
	}

	metrics.RequestsReviewed.WithLabelValues(string(to)).Inc()
	if to == model.RequestApproved {
		metrics.RecordsWritten.WithLabelValues(string(model.StatusPresent), "manual").Inc()
	}
	log.Info().Str("request_id", id).Str("reviewer_id", reviewerID).Str("status", string(to)).
		Bool("location_unverified", updated.Location == nil && to == model.RequestApproved).Msg("attendance request reviewed")
	return updated, nil
}

// Get returns a request visible to callerID: its reviewing instructor or the
// student who submitted it.
func (w *Workflow) Get(ctx context.Context, id, callerID string) (model.AttendanceRequest, error) {
	const op = "request.get"
	r, err := w.store.GetRequest(ctx, id)
	if err != nil {
		return model.AttendanceRequest{}, apperr.E(op, id, err)
	}
	if r.InstructorID != callerID && r.StudentID != callerID {
		return model.AttendanceRequest{}, apperr.E(op, id, apperr.ErrForbidden)
	}
	return r, nil
}

// Listing is a filtered request list with stats over the instructor's full set.
type Listing struct {
	Requests []model.AttendanceRequest `json:"requests"`
	Stats    Stats                     `json:"stats"`
}

// List returns the instructor's requests narrowed by f, newest first.
func (w *Workflow) List(ctx context.Context, instructorID string, f Filter) (Listing, error) {
	const op = "request.list"
	if err := f.Validate(); err != nil {
		return Listing{}, err
	}
	all, err := w.store.ListRequests(ctx, store.RequestQuery{InstructorID: instructorID})
	if err != nil {
		return Listing{}, apperr.E(op, instructorID, err)
	}
	return Listing{Requests: Apply(all, f), Stats: ComputeStats(all)}, nil
}
