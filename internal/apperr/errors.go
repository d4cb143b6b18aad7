package apperr

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error kinds shared by every engine operation.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrAlreadyEnded     = errors.New("session already ended")
	ErrAlreadyReviewed  = errors.New("request already reviewed")
	ErrConflict         = errors.New("already exists")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrTimeout          = errors.New("timeout")
)

// Input refinements reported by session creation.
var (
	ErrInvalidDuration = fmt.Errorf("%w: duration must be between 15 and 180 minutes", ErrInvalidInput)
	ErrInvalidGeofence = fmt.Errorf("%w: geofence radius must be between 10 and 500 meters with valid coordinates", ErrInvalidInput)
)

// Error carries the failing operation and the id it was acting on.
type Error struct {
	Op  string
	ID  string
	Err error
}

func (e *Error) Error() string {
	if e.ID == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.ID + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with operation context. A nil err yields nil.
func E(op, id string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, ID: id, Err: err}
}

// Invalid builds an InvalidInput error with a detail message.
func Invalid(op, format string, args ...any) error {
	return &Error{Op: op, Err: fmt.Errorf("%w: "+format, append([]any{ErrInvalidInput}, args...)...)}
}

// Kind returns the taxonomy sentinel err belongs to, or nil when unknown.
func Kind(err error) error {
	for _, k := range []error{
		ErrInvalidInput, ErrNotFound, ErrForbidden, ErrAlreadyEnded,
		ErrAlreadyReviewed, ErrStoreUnavailable, ErrTimeout,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Retryable reports whether err is transient.
func Retryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrTimeout)
}

// FromContext maps a context failure to the taxonomy; other errors become StoreUnavailable.
func FromContext(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}

// Retry runs fn up to attempts times with exponential backoff starting at base,
// only while the returned error is Retryable.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	wait := base
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil || !Retryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(wait):
			wait *= 2
		case <-ctx.Done():
			return err
		}
	}
	return err
}
