package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"classattend/internal/apperr"
	"classattend/internal/clock"
	"classattend/internal/geo"
	"classattend/internal/metrics"
	"classattend/internal/model"
	"classattend/internal/store"
)

// Duration policy bounds, in minutes.
const (
	MinDuration = 15
	MaxDuration = 180
)

const (
	codeAttempts = 5
	codeGrace    = 15 * time.Minute
)

// CodeRegistry reserves session codes while a session can accept check-ins.
type CodeRegistry interface {
	Reserve(ctx context.Context, code, sessionID string, ttl time.Duration) (bool, error)
	Lookup(ctx context.Context, code string) (string, error)
	Release(ctx context.Context, code, sessionID string) error
}

// CreateParams are the instructor inputs for a new session.
type CreateParams struct {
	InstructorID string       `json:"-" validate:"required"`
	ClassID      string       `json:"classId" validate:"required"`
	ClassName    string       `json:"className" validate:"required"`
	Duration     int          `json:"duration" validate:"gte=15,lte=180"`
	Geofence     geo.Geofence `json:"geofence"`
}

// Manager owns session creation and the active to ended transition.
type Manager struct {
	store    store.Store
	clock    clock.Clock
	codes    CodeRegistry
	validate *validator.Validate
}

// NewManager builds a manager. codes may be nil, in which case session codes
// are generated but not checked for collisions.
func NewManager(st store.Store, clk clock.Clock, codes CodeRegistry) *Manager {
	if clk == nil {
		clk = clock.Real()
	}
	return &Manager{store: st, clock: clk, codes: codes, validate: validator.New()}
}

// Create opens a session starting now.
func (m *Manager) Create(ctx context.Context, p CreateParams) (model.Session, error) {
	const op = "session.create"
	if err := m.validateParams(p); err != nil {
		return model.Session{}, apperr.E(op, "", err)
	}

	now := m.clock.Now().UTC()
	s := model.Session{
		ID:              uuid.NewString(),
		InstructorID:    p.InstructorID,
		ClassID:         p.ClassID,
		ClassName:       p.ClassName,
		StartTime:       now,
		EndTime:         now.Add(time.Duration(p.Duration) * time.Minute),
		DurationMinutes: p.Duration,
		Geofence:        p.Geofence,
		Active:          true,
	}

	code, err := m.reserveCode(ctx, s)
	if err != nil {
		return model.Session{}, apperr.E(op, s.ID, err)
	}
	s.SessionCode = code

	if err := m.store.CreateSession(ctx, s); err != nil {
		m.releaseCode(ctx, s)
		return model.Session{}, apperr.E(op, s.ID, err)
	}
	metrics.SessionsCreated.Inc()
	log.Info().Str("session_id", s.ID).Str("instructor_id", s.InstructorID).
		Str("code", s.SessionCode).Int("duration", s.DurationMinutes).Msg("session created")
	return s, nil
}

func (m *Manager) validateParams(p CreateParams) error {
	if p.Duration < MinDuration || p.Duration > MaxDuration {
		return apperr.ErrInvalidDuration
	}
	if !geo.ValidCoordinates(p.Geofence.Center()) || math.IsNaN(p.Geofence.Radius) {
		return apperr.ErrInvalidGeofence
	}
	err := m.validate.Struct(p)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	for _, fe := range fieldErrs {
		switch {
		case fe.Field() == "Duration":
			return apperr.ErrInvalidDuration
		case strings.HasPrefix(fe.StructNamespace(), "CreateParams.Geofence"):
			return apperr.ErrInvalidGeofence
		}
	}
	fe := fieldErrs[0]
	return fmt.Errorf("%w: %s failed %s", apperr.ErrInvalidInput, fe.Field(), fe.Tag())
}

// reserveCode picks a code and, with a registry, bumps the suffix until an
// unheld one is found.
func (m *Manager) reserveCode(ctx context.Context, s model.Session) (string, error) {
	prefix := CodePrefix(s.ClassName)
	suffix := int(s.StartTime.UnixMilli() % 10000)
	if m.codes == nil {
		return formatCode(prefix, suffix), nil
	}
	ttl := s.EndTime.Sub(s.StartTime) + codeGrace
	for i := 0; i < codeAttempts; i++ {
		code := formatCode(prefix, (suffix+i)%10000)
		ok, err := m.codes.Reserve(ctx, code, s.ID, ttl)
		if err != nil {
			return "", err
		}
		if ok {
			return code, nil
		}
		metrics.CodeCollisions.Inc()
	}
	return "", fmt.Errorf("%w: no free session code for prefix %s", apperr.ErrStoreUnavailable, prefix)
}

func (m *Manager) releaseCode(ctx context.Context, s model.Session) {
	if m.codes == nil || s.SessionCode == "" {
		return
	}
	if err := m.codes.Release(ctx, s.SessionCode, s.ID); err != nil {
		log.Warn().Err(err).Str("session_id", s.ID).Str("code", s.SessionCode).Msg("release session code failed")
	}
}

// CodePrefix returns the first three letters or digits of the class name,
// uppercased, or "SES" when the name has none.
func CodePrefix(className string) string {
	var b strings.Builder
	for _, r := range className {
		if b.Len() == 3 {
			break
		}
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	if b.Len() == 0 {
		return "SES"
	}
	return b.String()
}

func formatCode(prefix string, suffix int) string {
	return fmt.Sprintf("%s%04d", prefix, suffix)
}

// End marks the session ended now. Ending an ended session returns it unchanged.
func (m *Manager) End(ctx context.Context, id, callerID string) (model.Session, error) {
	const op = "session.end"
	s, err := m.store.GetSession(ctx, id)
	if err != nil {
		return model.Session{}, apperr.E(op, id, err)
	}
	if s.InstructorID != callerID {
		return model.Session{}, apperr.E(op, id, apperr.ErrForbidden)
	}
	if !s.Active {
		return s, nil
	}

	ended, err := m.store.EndSession(ctx, id, m.clock.Now().UTC())
	switch {
	case errors.Is(err, apperr.ErrAlreadyEnded):
		// a concurrent end won the race
		return ended, nil
	case err != nil:
		return model.Session{}, apperr.E(op, id, err)
	}
	m.releaseCode(ctx, ended)
	metrics.SessionsEnded.Inc()
	log.Info().Str("session_id", id).Str("instructor_id", callerID).Msg("session ended")
	return ended, nil
}

// Get returns a session owned by callerID.
func (m *Manager) Get(ctx context.Context, id, callerID string) (model.Session, error) {
	const op = "session.get"
	s, err := m.store.GetSession(ctx, id)
	if err != nil {
		return model.Session{}, apperr.E(op, id, err)
	}
	if s.InstructorID != callerID {
		return model.Session{}, apperr.E(op, id, apperr.ErrForbidden)
	}
	return s, nil
}

// List returns an instructor's sessions, newest first.
func (m *Manager) List(ctx context.Context, q store.SessionQuery) ([]model.Session, error) {
	if q.InstructorID == "" {
		return nil, apperr.Invalid("session.list", "instructor id required")
	}
	out, err := m.store.ListSessions(ctx, q)
	if err != nil {
		return nil, apperr.E("session.list", q.InstructorID, err)
	}
	return out, nil
}

// ResolveCode returns the open session currently holding code.
func (m *Manager) ResolveCode(ctx context.Context, code string) (model.Session, error) {
	const op = "session.resolve_code"
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return model.Session{}, apperr.Invalid(op, "session code required")
	}
	if m.codes == nil {
		return model.Session{}, apperr.E(op, code, apperr.ErrNotFound)
	}
	id, err := m.codes.Lookup(ctx, code)
	if err != nil {
		return model.Session{}, apperr.E(op, code, err)
	}
	s, err := m.store.GetSession(ctx, id)
	if err != nil {
		return model.Session{}, apperr.E(op, code, err)
	}
	return s, nil
}

// Lookup returns a session without an ownership check; used by the check-in path.
func (m *Manager) Lookup(ctx context.Context, id string) (model.Session, error) {
	s, err := m.store.GetSession(ctx, id)
	if err != nil {
		return model.Session{}, apperr.E("session.lookup", id, err)
	}
	return s, nil
}

// RemainingMinutes is the display countdown for s at the manager's clock.
func (m *Manager) RemainingMinutes(s model.Session) int {
	return RemainingMinutes(s, m.clock.Now())
}

// RemainingMinutes returns max(0, ceil((endTime - now) / 1m)).
func RemainingMinutes(s model.Session, now time.Time) int {
	left := s.EndTime.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Minutes()))
}
