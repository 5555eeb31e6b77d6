package tundra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kvpipe/kvpipe"
	"github.com/kvpipe/kvpipe/commands"
	"github.com/kvpipe/kvpipe/internal/freeze"
	"github.com/kvpipe/kvpipe/resp"
)

// Worker mirrors dirtied keys into a Datastore by DUMPing each one off
// a Session and Put-ing the result, acknowledging the queue message on
// success so it isn't redelivered.
//
// Open question (spec.md §9, #3): what happens when the key named by a
// dirty message no longer exists by the time the worker gets to it (it
// expired, or was deleted, between DirtyKeys enqueueing and this
// handler running)? This implementation treats a null DUMP reply as
// success, not as a retryable or fatal error: a key that's gone is a
// key that needs no mirroring, and the datastore's existing copy (if
// any) is still a valid restore source for ensure-ks. Only a
// genuine wire/datastore error triggers a retry.
type Worker struct {
	// WithSession opens one session against whatever target the caller
	// configured (a single node via kvpipe.WithConnection, or a cluster
	// via kvpipe.WithCluster) and runs body against it, the same shape
	// WithConnection/WithCluster themselves expose — there is no
	// standalone *kvpipe.Session constructor outside that body scope.
	WithSession func(body func(s *kvpipe.Session) error) (any, error)
	Datastore   Datastore
	// Freezer must match whatever Freezer the Coordinator mirroring into
	// the same Datastore uses: EnsureKeys thaws every fetched blob, so a
	// worker that doesn't freeze on the way in leaves Thaw unable to
	// read its own mirrored copies back. Nil means blobs are stored raw,
	// matching a Coordinator with no Freezer configured either.
	Freezer    freeze.Freezer
	MaxRetries int
	Logger     *slog.Logger
}

func NewWorker(withSession func(body func(s *kvpipe.Session) error) (any, error), ds Datastore) *Worker {
	return &Worker{WithSession: withSession, Datastore: ds, MaxRetries: 5, Logger: slog.Default()}
}

// Handle is a Handler: it DUMPs msg's key and Puts the blob into the
// datastore.
func (w *Worker) Handle(ctx context.Context, msg QueueMessage) HandlerResult {
	key := string(msg.Payload)

	reply, err := w.WithSession(func(s *kvpipe.Session) error {
		return commands.Dump(s, key)
	})
	if err != nil {
		return HandlerResult{Kind: ResultRetry, Backoff: w.backoff(msg.Attempts), Err: fmt.Errorf("tundra: dump %s: %w", key, err)}
	}

	r, ok := reply.(*resp.Reply)
	if !ok {
		return HandlerResult{Kind: ResultError, Err: fmt.Errorf("tundra: dump %s: unexpected reply shape", key)}
	}
	if r.BulkNull {
		w.Logger.Debug("tundra: key vanished before mirroring, treating as success", "key", key)
		return HandlerResult{Kind: ResultSuccess}
	}
	blob, ok := r.Bulk.([]byte)
	if !ok {
		return HandlerResult{Kind: ResultError, Err: fmt.Errorf("tundra: dump %s: reply is not bulk bytes", key)}
	}

	if w.Freezer != nil {
		frozen, ferr := w.Freezer.Freeze(blob)
		if ferr != nil {
			return HandlerResult{Kind: ResultError, Err: fmt.Errorf("tundra: freeze %s: %w", key, ferr)}
		}
		blob = frozen
	}

	if err := w.Datastore.Put(ctx, key, blob); err != nil {
		return HandlerResult{Kind: ResultRetry, Backoff: w.backoff(msg.Attempts), Err: fmt.Errorf("tundra: put %s: %w", key, err)}
	}

	w.Logger.Debug("tundra: mirrored key", "key", key, "size", humanize.Bytes(uint64(len(blob))))
	return HandlerResult{Kind: ResultSuccess}
}

// backoff grows linearly with attempts, capped at 30s, mirroring the
// worker loop shape this package's Queue implementations follow.
func (w *Worker) backoff(attempts int) time.Duration {
	d := time.Duration(attempts+1) * 500 * time.Millisecond
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}
