package tundra

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/kvpipe/kvpipe"
	"github.com/kvpipe/kvpipe/commands"
	"github.com/kvpipe/kvpipe/internal/freeze"
	"github.com/kvpipe/kvpipe/resp"
)

// minRedisTTLMs is the floor spec.md §4.6 places on any caller-supplied
// Redis-side TTL: below 10 hours there's too little headroom for the
// worker to mirror a key before eviction, so ensure-ks/dirty would be
// racing the server's own expiry.
const minRedisTTLMs = int64(10 * time.Hour / time.Millisecond)

// Coordinator runs ensure-ks and dirty against a Datastore and a Queue.
type Coordinator struct {
	Datastore  Datastore
	Queue      Queue
	Freezer    freeze.Freezer
	RedisTTLMs *int64
	Logger     *slog.Logger
	Tracer     trace.Tracer
}

// Option configures a Coordinator at construction.
type Option func(*Coordinator)

func WithFreezer(f freeze.Freezer) Option { return func(c *Coordinator) { c.Freezer = f } }
func WithLogger(l *slog.Logger) Option    { return func(c *Coordinator) { c.Logger = l } }
func WithTracer(t trace.Tracer) Option    { return func(c *Coordinator) { c.Tracer = t } }

// WithRedisTTL sets the Redis-side TTL, in milliseconds, that
// ensure-ks/dirty extend keys to and RESTORE applies. A value below the
// 10-hour minimum is rejected at construction time.
func WithRedisTTL(ms int64) Option {
	return func(c *Coordinator) {
		v := ms
		c.RedisTTLMs = &v
	}
}

func NewCoordinator(ds Datastore, q Queue, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{Datastore: ds, Queue: q}
	for _, opt := range opts {
		opt(c)
	}
	if c.RedisTTLMs != nil && *c.RedisTTLMs < minRedisTTLMs {
		return nil, fmt.Errorf("tundra: redis ttl %dms is below the %dms floor", *c.RedisTTLMs, minRedisTTLMs)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c, nil
}

func (c *Coordinator) tracer() trace.Tracer {
	if c.Tracer != nil {
		return c.Tracer
	}
	return otel.Tracer("github.com/kvpipe/kvpipe/tundra")
}

func (c *Coordinator) ttlMs() int64 {
	if c.RedisTTLMs != nil {
		return *c.RedisTTLMs
	}
	return 0
}

const ensureScript = `
local ttl = tonumber(ARGV[1])
local out = {}
for i, key in ipairs(KEYS) do
	if redis.call('EXISTS', key) == 1 then
		if ttl and ttl > 0 then
			redis.call('PEXPIRE', key, ttl)
		end
		out[i] = 1
	else
		out[i] = 0
	end
end
return out
`

// ensureOrExtend runs the single atomic server-side script spec.md
// §4.6 describes for ensure-ks's first step: for each key, check
// existence and, if present, extend its TTL. Returns 1/0 per key in
// the same order as keys.
func (c *Coordinator) ensureOrExtend(ctx context.Context, s *kvpipe.Session, keys []string) ([]int, error) {
	reply, err := kvpipe.WithReplies(s, false, func() error {
		return commands.EvalEnsure(s, ensureScript, keys, c.ttlMs())
	})
	if err != nil {
		return nil, fmt.Errorf("tundra: ensure script: %w", err)
	}
	vec := kvpipe.AsVector(reply)
	if len(vec) != 1 {
		return nil, fmt.Errorf("tundra: unexpected ensure script reply shape")
	}
	single := vec[0]
	if single.Kind != resp.KindArray || single.ArrayNull {
		return nil, fmt.Errorf("tundra: unexpected ensure script reply kind %v", single.Kind)
	}
	out := make([]int, len(single.Array))
	for i, r := range single.Array {
		if r.Kind != resp.KindInteger {
			return nil, fmt.Errorf("tundra: ensure script element %d is not an integer", i)
		}
		out[i] = int(r.Integer)
	}
	return out, nil
}

// EnsureKeys implements ensure-ks (spec.md §4.6): for each key, extend
// its TTL if present, or fetch and RESTORE it from the datastore if
// absent. A RESTORE reply of "... Target key name is busy." is treated
// as success — a concurrent restore already beat this one to it.
func (c *Coordinator) EnsureKeys(ctx context.Context, s *kvpipe.Session, keys []string) error {
	ctx, span := c.tracer().Start(ctx, "tundra.ensure_ks")
	defer span.End()

	exists, err := c.ensureOrExtend(ctx, s, keys)
	if err != nil {
		return err
	}

	var missing []string
	for i, k := range keys {
		if exists[i] == 0 {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	errs := make(map[string]error)
	type job struct {
		key  string
		blob []byte
	}
	jobs := make([]job, 0, len(missing))
	for _, k := range missing {
		blob, ferr := c.fetchAndThaw(ctx, k)
		if ferr != nil {
			errs[k] = ferr
			continue
		}
		jobs = append(jobs, job{key: k, blob: blob})
	}

	if len(jobs) > 0 {
		ttl := c.ttlMs()
		reply, rerr := kvpipe.WithReplies(s, true, func() error {
			for _, j := range jobs {
				if err := commands.Restore(s, j.key, ttl, kvpipe.RawBytes(j.blob)); err != nil {
					return err
				}
			}
			return nil
		})
		if rerr != nil {
			return rerr
		}
		vec := kvpipe.AsVector(reply)
		for i, j := range jobs {
			if i >= len(vec) {
				break
			}
			r := vec[i]
			if r.Kind == resp.KindError && !isBusyKeyError(r.Err) {
				errs[j.key] = r.Err
			}
		}
	}

	if len(errs) > 0 {
		return &KeyError{Causes: errs}
	}
	return nil
}

// DirtyKeys implements dirty (spec.md §4.6): extend each key's TTL (it
// must already exist — dirty never restores) and enqueue it onto the
// work queue for the background worker to mirror into the datastore.
func (c *Coordinator) DirtyKeys(ctx context.Context, s *kvpipe.Session, keys []string) error {
	ctx, span := c.tracer().Start(ctx, "tundra.dirty")
	defer span.End()

	exists, err := c.ensureOrExtend(ctx, s, keys)
	if err != nil {
		return err
	}

	var missing []string
	for i, k := range keys {
		if exists[i] == 0 {
			missing = append(missing, k)
			continue
		}
		if qerr := c.Queue.Enqueue(ctx, QueueName, []byte(k), k, true); qerr != nil {
			return fmt.Errorf("tundra: enqueue %s: %w", k, qerr)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("tundra: keys missing on dirty: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Coordinator) fetchAndThaw(ctx context.Context, key string) ([]byte, error) {
	blob, err := c.Datastore.Fetch(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("tundra: fetch %s: %w", key, err)
	}
	if c.Freezer == nil {
		return blob, nil
	}
	thawed, terr := c.Freezer.Thaw(blob, nil)
	if terr != nil {
		return nil, fmt.Errorf("tundra: thaw %s: %w", key, terr)
	}
	b, ok := thawed.([]byte)
	if !ok {
		return nil, fmt.Errorf("tundra: thaw %s: expected []byte, got %T", key, thawed)
	}
	return b, nil
}

func isBusyKeyError(e *resp.ReplyError) bool {
	return e != nil && strings.Contains(e.Message, "Target key name is busy")
}
