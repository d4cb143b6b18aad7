package checkin

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"classattend/internal/apperr"
	"classattend/internal/faceclient"
	"classattend/internal/queue"
)

// FaceVerifier scores a captured face against the student's enrollment.
type FaceVerifier interface {
	Verify(ctx context.Context, userID, imageURL string) (*faceclient.VerifyResult, error)
}

// MaxRetries bounds how often an attempt that hit a transient store failure
// is put back on the queue before it is reported as store_unavailable.
const MaxRetries = 3

// Worker consumes queued attempts, verifies the face image and runs Process.
type Worker struct {
	Queue   queue.Queue
	Service *Service
	Results Results

	// Face verifies every attempt when set. Nil disables face checks.
	Face FaceVerifier

	// Timeout bounds the handling of a single message.
	Timeout time.Duration

	// RetryBackoff is multiplied by the retry count before re-publishing.
	RetryBackoff time.Duration
}

// Enqueue publishes a for asynchronous processing.
func Enqueue(ctx context.Context, q queue.Queue, a Attempt) error {
	msg, err := queue.NewMessage(queue.TypeCheckin, a)
	if err != nil {
		return err
	}
	return q.Publish(ctx, msg)
}

// Run blocks until ctx is cancelled or the queue closes.
func (w *Worker) Run(ctx context.Context) error {
	messages, err := w.Queue.Consume(ctx)
	if err != nil {
		return err
	}
	log.Info().Msg("check-in worker started")
	for msg := range messages {
		if msg.Type != queue.TypeCheckin {
			continue
		}
		var a Attempt
		if err := msg.Decode(&a); err != nil {
			log.Warn().Err(err).Msg("dropping undecodable check-in")
			continue
		}
		w.handle(ctx, a)
	}
	log.Info().Msg("check-in worker stopped")
	return nil
}

func (w *Worker) handle(ctx context.Context, a Attempt) {
	hctx := ctx
	if w.Timeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}

	judged := w.verifyFace(hctx, a)
	out, err := w.Service.Process(hctx, judged)
	if err != nil {
		log.Error().Err(err).Str("attempt_id", a.ID).Str("student_id", a.StudentID).Int("retries", a.Retries).
			Msg("check-in processing failed")
		code := CodeInvalidAttempt
		if apperr.Retryable(err) {
			if a.Retries < MaxRetries && w.requeue(ctx, a) {
				return
			}
			code = CodeStoreUnavailable
		}
		out = Outcome{AttemptID: a.ID, SessionID: a.SessionID, StudentID: a.StudentID, Error: code}
	}
	if w.Results != nil {
		if err := w.Results.Put(hctx, out); err != nil {
			log.Error().Err(err).Str("attempt_id", a.ID).Msg("store check-in outcome failed")
		}
	}
}

// verifyFace returns a copy of a carrying the face verdict. The queued
// attempt itself is left untouched so a retry verifies again.
func (w *Worker) verifyFace(ctx context.Context, a Attempt) Attempt {
	if w.Face == nil {
		return a
	}
	res, err := w.Face.Verify(ctx, a.StudentID, a.ImageURL)
	switch {
	case errors.Is(err, faceclient.ErrNoImage):
		a.FaceError = CodeFaceMissing
	case err != nil:
		log.Warn().Err(err).Str("attempt_id", a.ID).Msg("face verification failed")
		a.FaceError = err.Error()
	default:
		score := res.Similarity
		a.FaceMatchScore = &score
	}
	return a
}

// requeue puts a back on the queue after a backoff. It reports false when
// the attempt could not be re-published.
func (w *Worker) requeue(ctx context.Context, a Attempt) bool {
	a.Retries++
	if d := w.RetryBackoff * time.Duration(a.Retries); d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return false
		}
	}
	if err := Enqueue(ctx, w.Queue, a); err != nil {
		log.Error().Err(err).Str("attempt_id", a.ID).Msg("re-publish check-in failed")
		return false
	}
	log.Info().Str("attempt_id", a.ID).Int("retries", a.Retries).Msg("check-in re-queued")
	return true
}
