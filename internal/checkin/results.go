package checkin

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"classattend/internal/apperr"
)

// ResultTTL is how long an outcome stays readable after processing.
const ResultTTL = 24 * time.Hour

// Results keeps outcomes so a student can poll the verdict of a queued attempt.
type Results interface {
	Put(ctx context.Context, o Outcome) error
	Get(ctx context.Context, attemptID string) (Outcome, error)
}

// MemoryResults is an in-process Results.
type MemoryResults struct {
	mu  sync.RWMutex
	out map[string]Outcome
}

// NewMemoryResults creates an empty result store.
func NewMemoryResults() *MemoryResults {
	return &MemoryResults{out: make(map[string]Outcome)}
}

func (m *MemoryResults) Put(_ context.Context, o Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.out[o.AttemptID] = o
	return nil
}

func (m *MemoryResults) Get(_ context.Context, attemptID string) (Outcome, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.out[attemptID]
	if !ok {
		return Outcome{}, apperr.E("checkin.result", attemptID, apperr.ErrNotFound)
	}
	return o, nil
}

// RedisResults stores outcomes as JSON strings with a TTL.
type RedisResults struct {
	client *redis.Client
	prefix string
}

// NewRedisResults builds a Redis-backed result store.
func NewRedisResults(client *redis.Client) *RedisResults {
	return &RedisResults{client: client, prefix: "attendance:checkin:"}
}

func (r *RedisResults) Put(ctx context.Context, o Outcome) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefix+o.AttemptID, raw, ResultTTL).Err(); err != nil {
		return apperr.E("checkin.result", o.AttemptID, apperr.FromContext(err))
	}
	return nil
}

func (r *RedisResults) Get(ctx context.Context, attemptID string) (Outcome, error) {
	raw, err := r.client.Get(ctx, r.prefix+attemptID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Outcome{}, apperr.E("checkin.result", attemptID, apperr.ErrNotFound)
	}
	if err != nil {
		return Outcome{}, apperr.E("checkin.result", attemptID, apperr.FromContext(err))
	}
	var o Outcome
	if err := json.Unmarshal(raw, &o); err != nil {
		return Outcome{}, err
	}
	return o, nil
}
