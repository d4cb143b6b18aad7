package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"classattend/internal/apperr"
)

// Redis wraps redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

// RedisCodes maps live session codes to session ids so two concurrently open
// sessions never share a code. Keys expire shortly after the session would end.
type RedisCodes struct {
	client *redis.Client
	prefix string
}

// NewRedisCodes builds a code registry on client.
func NewRedisCodes(client *redis.Client) *RedisCodes {
	return &RedisCodes{client: client, prefix: "attendance:code:"}
}

// Reserve claims code for sessionID until ttl elapses. It returns false when
// the code is already held by another session.
func (c *RedisCodes) Reserve(ctx context.Context, code, sessionID string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, c.prefix+code, sessionID, ttl).Result()
	if err != nil {
		return false, apperr.FromContext(err)
	}
	return ok, nil
}

// Lookup returns the session currently holding code.
func (c *RedisCodes) Lookup(ctx context.Context, code string) (string, error) {
	id, err := c.client.Get(ctx, c.prefix+code).Result()
	if errors.Is(err, redis.Nil) {
		return "", apperr.ErrNotFound
	}
	if err != nil {
		return "", apperr.FromContext(err)
	}
	return id, nil
}

// Release frees code if sessionID still holds it.
func (c *RedisCodes) Release(ctx context.Context, code, sessionID string) error {
	err := releaseScript.Run(ctx, c.client, []string{c.prefix + code}, sessionID).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return apperr.FromContext(err)
	}
	return nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
