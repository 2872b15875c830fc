// Package revocation keeps the ids of access tokens that were logged out
// before they expired.
package revocation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Denylist answers whether an access-token id has been revoked. Entries
// disappear once the token they block would have expired anyway.
type Denylist interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	Ping(ctx context.Context) error
}

const keyPrefix = "denylist:jti:"

var ErrUnavailable = errors.New("revocation: denylist unavailable")

type RedisDenylist struct {
	redis *redis.Client
	now   func() time.Time
}

func NewRedisDenylist(client *redis.Client) *RedisDenylist {
	return &RedisDenylist{redis: client, now: time.Now}
}

func (d *RedisDenylist) key(jti string) string { return keyPrefix + jti }

// Revoke is a no-op for tokens that have already expired.
func (d *RedisDenylist) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := until.Sub(d.now())
	if ttl <= 0 {
		return nil
	}
	if err := d.redis.Set(ctx, d.key(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (d *RedisDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := d.redis.Exists(ctx, d.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

func (d *RedisDenylist) Ping(ctx context.Context) error {
	return d.redis.Ping(ctx).Err()
}

// MemoryDenylist is the single-process fallback used when no redis address
// is configured. Expired entries are dropped on access.
type MemoryDenylist struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemoryDenylist() *MemoryDenylist {
	return &MemoryDenylist{entries: map[string]time.Time{}, now: time.Now}
}

func (d *MemoryDenylist) Revoke(_ context.Context, jti string, until time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if !until.After(now) {
		return nil
	}
	d.entries[jti] = until
	d.sweep(now)
	return nil
}

func (d *MemoryDenylist) IsRevoked(_ context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	until, ok := d.entries[jti]
	if !ok {
		return false, nil
	}
	if !until.After(d.now()) {
		delete(d.entries, jti)
		return false, nil
	}
	return true, nil
}

func (d *MemoryDenylist) Ping(ctx context.Context) error { return ctx.Err() }

func (d *MemoryDenylist) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func (d *MemoryDenylist) sweep(now time.Time) {
	for jti, until := range d.entries {
		if !until.After(now) {
			delete(d.entries, jti)
		}
	}
}
