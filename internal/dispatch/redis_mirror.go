package dispatch

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMirror mirrors the latest driver location into Redis and appends each
// ping to a stream, so other processes (dashboards, analytics) can read GPS
// state without touching this process. It is optional: when Redis is not
// configured the registry alone serves dispatch.
type RedisMirror struct {
	client    PipelineClient
	stream    string
	keyPrefix string
	ttl       time.Duration
	maxLen    int64
}

// PipelineClient is the minimal client surface used by RedisMirror.
type PipelineClient interface {
	Pipeline() Pipeliner
}

// Pipeliner is the subset of commands used within a pipeline.
type Pipeliner interface {
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Exec(ctx context.Context) ([]redis.Cmder, error)
}

// NewRedisMirror constructs a Redis-backed location mirror.
func NewRedisMirror(client PipelineClient, stream string, ttl time.Duration, maxLen int64) *RedisMirror {
	if stream == "" {
		stream = "driver_pings"
	}
	return &RedisMirror{
		client:    client,
		stream:    stream,
		keyPrefix: "driver:",
		ttl:       ttl,
		maxLen:    maxLen,
	}
}

// Record writes the latest location hash and appends to the ping stream.
func (m *RedisMirror) Record(ctx context.Context, p Ping) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := m.keyPrefix + p.DriverID
	at := p.At.UTC().Format(time.RFC3339Nano)

	pipe := m.client.Pipeline()
	pipe.HSet(ctx, key, map[string]any{
		"driver_id": p.DriverID,
		"lat":       p.Lat,
		"lng":       p.Lng,
		"at":        at,
	})
	if m.ttl > 0 {
		pipe.Expire(ctx, key, m.ttl)
	}

	args := &redis.XAddArgs{
		Stream: m.stream,
		Values: map[string]any{
			"driver_id": p.DriverID,
			"lat":       p.Lat,
			"lng":       p.Lng,
			"at":        at,
		},
	}
	if m.maxLen > 0 {
		args.MaxLen = m.maxLen
		args.Approx = true
	}
	pipe.XAdd(ctx, args)

	_, err := pipe.Exec(ctx)
	return err
}

// GoRedisClient adapts a *redis.Client to the PipelineClient surface.
type GoRedisClient struct {
	Client *redis.Client
}

func (a GoRedisClient) Pipeline() Pipeliner {
	return goRedisPipeline{pipe: a.Client.Pipeline()}
}

type goRedisPipeline struct {
	pipe redis.Pipeliner
}

func (p goRedisPipeline) HSet(ctx context.Context, key string, values ...any) *redis.IntCmd {
	return p.pipe.HSet(ctx, key, values...)
}

func (p goRedisPipeline) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	return p.pipe.Expire(ctx, key, expiration)
}

func (p goRedisPipeline) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	return p.pipe.XAdd(ctx, a)
}

func (p goRedisPipeline) Exec(ctx context.Context) ([]redis.Cmder, error) {
	return p.pipe.Exec(ctx)
}
