// Package cache keeps built handle timelines in Redis so repeated reads skip
// the store and the chain resolution.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"plcwatch/internal/plc/timeline"
	"plcwatch/pkg/platform/circuit"
	"plcwatch/pkg/platform/sentinel"
)

const (
	defaultTTL = 5 * time.Minute
	// Generations must outlive any in-flight read.
	generationTTL = 24 * time.Hour
)

// setIfCurrent writes the timeline only while the handle's generation still
// matches the one the reader saw before loading the store.
var setIfCurrent = redis.NewScript(`
local gen = redis.call('GET', KEYS[1]) or '0'
if gen ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// Redis is a TTL-bounded timeline cache. Every handle has a generation
// counter that Invalidate bumps; Set is dropped when the generation moved
// since the matching Get, so a slow reader cannot put back a timeline that an
// ingest already invalidated.
//
// While the breaker is open Redis is not called: Get reports a miss and
// Set/Invalidate report sentinel.ErrUnavailable. Invalidations refused in that
// window leave entries that expire with the TTL.
type Redis struct {
	client  redis.Cmdable
	ttl     time.Duration
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type Option func(*Redis)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Redis) {
		r.logger = logger
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(r *Redis) {
		r.breaker = b
	}
}

func NewRedis(client redis.Cmdable, ttl time.Duration, opts ...Option) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	r := &Redis{
		client:  client,
		ttl:     ttl,
		breaker: circuit.New("timeline-cache"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Key is the timeline key of a handle. Both keys of a handle share a hash
// tag so the script touches a single cluster slot.
func Key(handle string) string {
	return "plcwatch:{" + handle + "}:timeline"
}

func generationKey(handle string) string {
	return "plcwatch:{" + handle + "}:generation"
}

// Get returns the cached timeline, or sentinel.ErrNotFound together with the
// generation to pass to Set.
func (r *Redis) Get(ctx context.Context, handle string) (*timeline.Timeline, int64, error) {
	if !r.breaker.Allow() {
		return nil, 0, sentinel.ErrNotFound
	}
	vals, err := r.client.MGet(ctx, generationKey(handle), Key(handle)).Result()
	r.observe(ctx, err)
	if err != nil {
		return nil, 0, fmt.Errorf("get timeline %q: %w: %w", handle, sentinel.ErrUnavailable, err)
	}

	var gen int64
	if s, ok := vals[0].(string); ok {
		if gen, err = strconv.ParseInt(s, 10, 64); err != nil {
			return nil, 0, fmt.Errorf("parse generation of %q: %w", handle, err)
		}
	}
	data, ok := vals[1].(string)
	if !ok {
		return nil, gen, sentinel.ErrNotFound
	}

	var tl timeline.Timeline
	if err := json.Unmarshal([]byte(data), &tl); err != nil {
		// A payload from an older layout; treat as a miss and let Set overwrite it.
		r.logger.WarnContext(ctx, "discarding undecodable cached timeline", "handle", handle, "error", err)
		return nil, gen, sentinel.ErrNotFound
	}
	return &tl, gen, nil
}

// Set stores tl if the handle's generation is still gen.
func (r *Redis) Set(ctx context.Context, tl *timeline.Timeline, gen int64) error {
	if !r.breaker.Allow() {
		return fmt.Errorf("set timeline %q: %w", tl.Handle, sentinel.ErrUnavailable)
	}
	data, err := json.Marshal(tl)
	if err != nil {
		return fmt.Errorf("encode timeline %q: %w", tl.Handle, err)
	}
	stored, err := setIfCurrent.Run(ctx, r.client,
		[]string{generationKey(tl.Handle), Key(tl.Handle)},
		strconv.FormatInt(gen, 10), data, r.ttl.Milliseconds(),
	).Int()
	r.observe(ctx, err)
	if err != nil {
		return fmt.Errorf("set timeline %q: %w: %w", tl.Handle, sentinel.ErrUnavailable, err)
	}
	if stored == 0 {
		r.logger.DebugContext(ctx, "dropped timeline built before an invalidation", "handle", tl.Handle)
	}
	return nil
}

// Invalidate deletes the handles' timelines and bumps their generations.
func (r *Redis) Invalidate(ctx context.Context, handles ...string) error {
	if len(handles) == 0 {
		return nil
	}
	if !r.breaker.Allow() {
		return fmt.Errorf("invalidate timelines: %w", sentinel.ErrUnavailable)
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, h := range handles {
			pipe.Del(ctx, Key(h))
			pipe.Incr(ctx, generationKey(h))
			pipe.PExpire(ctx, generationKey(h), max(r.ttl, generationTTL))
		}
		return nil
	})
	r.observe(ctx, err)
	if err != nil {
		return fmt.Errorf("invalidate timelines: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

// observe feeds the breaker and logs only on state transitions.
func (r *Redis) observe(ctx context.Context, err error) {
	if err == nil {
		if _, change := r.breaker.RecordSuccess(); change.Closed {
			r.logger.InfoContext(ctx, "timeline cache recovered", "breaker", r.breaker.Name())
		}
		return
	}
	if _, change := r.breaker.RecordFailure(); change.Opened {
		r.logger.WarnContext(ctx, "timeline cache unavailable", "breaker", r.breaker.Name(), "error", err)
	}
}
