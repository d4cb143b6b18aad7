package store

import (
	"context"
	"sync"
	"time"

	"classattend/internal/apperr"
	"classattend/internal/clock"
)

// MemoryCodes is the in-process code registry used when Redis is not configured.
type MemoryCodes struct {
	mu    sync.Mutex
	clk   clock.Clock
	codes map[string]heldCode
}

type heldCode struct {
	sessionID string
	expires   time.Time
}

// NewMemoryCodes creates an empty registry that expires entries against clk.
func NewMemoryCodes(clk clock.Clock) *MemoryCodes {
	return &MemoryCodes{clk: clk, codes: make(map[string]heldCode)}
}

func (c *MemoryCodes) Reserve(ctx context.Context, code, sessionID string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, apperr.FromContext(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clk.Now()
	if h, ok := c.codes[code]; ok && now.Before(h.expires) {
		return false, nil
	}
	c.codes[code] = heldCode{sessionID: sessionID, expires: now.Add(ttl)}
	return true, nil
}

func (c *MemoryCodes) Lookup(ctx context.Context, code string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperr.FromContext(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.codes[code]
	if !ok || !c.clk.Now().Before(h.expires) {
		return "", apperr.ErrNotFound
	}
	return h.sessionID, nil
}

func (c *MemoryCodes) Release(ctx context.Context, code, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return apperr.FromContext(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if h, ok := c.codes[code]; ok && h.sessionID == sessionID {
		delete(c.codes, code)
	}
	return nil
}
