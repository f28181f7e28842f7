// Package quota throttles anonymous usage with a per-fingerprint free-call
// counter held in redis.
package quota

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	DefaultLimit     = 3
	DefaultWindow    = 24 * time.Hour
	DefaultKeyPrefix = "quota:"
)

// consumeScript increments the counter only while it is under the limit.
// The expiry is set once, on the write that creates the hash.
// Returns the new count, or -1 when the caller is already at the limit.
var consumeScript = redis.NewScript(`
local count = tonumber(redis.call('HGET', KEYS[1], 'count') or '0')
local limit = tonumber(ARGV[1])
if count >= limit then
  return -1
end
count = redis.call('HINCRBY', KEYS[1], 'count', 1)
if count == 1 then
  redis.call('HSET', KEYS[1], 'expires_at', ARGV[3])
  redis.call('EXPIRE', KEYS[1], tonumber(ARGV[2]))
end
return count
`)

// Caller identifies who is asking. Authenticated callers carry a CallerID.
type Caller struct {
	CallerID    string
	Fingerprint string
}

// Authenticated reports whether the caller bypasses the gate.
func (c Caller) Authenticated() bool {
	return strings.TrimSpace(c.CallerID) != ""
}

// Options configures a Gate.
type Options struct {
	Client    redis.Cmdable
	Limit     int
	Window    time.Duration
	KeyPrefix string
	// FailOpen admits anonymous callers when redis is unreachable.
	FailOpen bool
	Now      func() time.Time
	Logger   *zerolog.Logger
}

// Gate enforces the free-call limit.
type Gate struct {
	client   redis.Cmdable
	limit    int
	window   time.Duration
	prefix   string
	failOpen bool
	now      func() time.Time
	logger   zerolog.Logger
}

func NewGate(opts Options) *Gate {
	g := &Gate{
		client:   opts.Client,
		limit:    opts.Limit,
		window:   opts.Window,
		prefix:   opts.KeyPrefix,
		failOpen: opts.FailOpen,
		now:      opts.Now,
		logger:   zerolog.New(io.Discard),
	}
	if g.limit < 0 {
		g.limit = 0
	}
	if g.window <= 0 {
		g.window = DefaultWindow
	}
	if g.prefix == "" {
		g.prefix = DefaultKeyPrefix
	}
	if g.now == nil {
		g.now = time.Now
	}
	if opts.Logger != nil {
		g.logger = *opts.Logger
	}
	return g
}

// Limit returns the configured free-call limit.
func (g *Gate) Limit() int {
	return g.limit
}

// TryConsume records one call for an anonymous caller and reports whether it
// is allowed. Authenticated callers are always allowed and never counted. A
// rejected call leaves the counter untouched. When redis fails the decision
// follows the FailOpen policy and the error is returned alongside it.
func (g *Gate) TryConsume(ctx context.Context, caller Caller) (bool, error) {
	if caller.Authenticated() {
		return true, nil
	}
	fp := strings.TrimSpace(caller.Fingerprint)
	if fp == "" {
		fp = "unknown"
	}
	if g.client == nil {
		return g.failOpen, fmt.Errorf("quota: no cache configured")
	}
	seconds := int64(g.window / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	expiresAt := g.now().Add(g.window).Unix()
	n, err := consumeScript.Run(ctx, g.client, []string{g.key(fp)}, g.limit, seconds, expiresAt).Int64()
	if err != nil {
		g.logger.Error().Err(err).Bool("fail_open", g.failOpen).Msg("quota: counter update failed")
		return g.failOpen, fmt.Errorf("quota: consume: %w", err)
	}
	return n >= 0, nil
}

// Remaining reports how many free calls the fingerprint has left.
func (g *Gate) Remaining(ctx context.Context, fingerprint string) (int, error) {
	if g.client == nil {
		return 0, fmt.Errorf("quota: no cache configured")
	}
	raw, err := g.client.HGet(ctx, g.key(strings.TrimSpace(fingerprint)), "count").Result()
	if errors.Is(err, redis.Nil) {
		return g.limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("quota: read: %w", err)
	}
	used, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("quota: corrupt counter %q", raw)
	}
	if used >= g.limit {
		return 0, nil
	}
	return g.limit - used, nil
}

func (g *Gate) key(fingerprint string) string {
	return g.prefix + fingerprint
}
