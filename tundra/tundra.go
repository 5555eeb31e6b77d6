// Package tundra implements the eviction/restore coordinator of
// spec.md §4.6: ensure-ks, dirty, and a background worker mirroring
// dirtied keys into an external blob store via DUMP/RESTORE. It is
// grounded on _examples/sa6mwa-lockd's blob-backend and
// dispatcher/lease-loop shapes.
package tundra

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// QueueName is the reliable work-queue name this coordinator dirties
// keys onto (spec.md §4.6).
const QueueName = "carmine.tundra"

// Datastore is the external blob-store collaborator spec.md §6 leaves
// out of scope: put a key's DUMPed bytes, fetch them back.
type Datastore interface {
	Put(ctx context.Context, key string, blob []byte) error
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// ResultKind is a worker handler's verdict on one queue message.
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultRetry
	ResultError
)

// HandlerResult is what a Handler returns for one message.
type HandlerResult struct {
	Kind    ResultKind
	Backoff time.Duration
	Err     error
}

// QueueMessage is one message pulled off the work queue.
type QueueMessage struct {
	ID       string
	Payload  []byte
	Attempts int
}

// Handler processes one queue message.
type Handler func(ctx context.Context, msg QueueMessage) HandlerResult

// Event is emitted by a Queue's worker loop on handler errors, for
// monitoring hooks.
type Event struct {
	Queue     string
	MessageID string
	Err       error
}

// WorkerOptions configures a Queue's consumer loop.
type WorkerOptions struct {
	NThreads     int
	ThrottleMs   int
	EOQBackoffMs int
	MaxAttempts  int
	Monitor      func(Event)
}

// Consumer stops a running worker loop.
type Consumer interface {
	Stop()
}

// Queue is the reliable work-queue collaborator spec.md §6 leaves out
// of scope: enqueue a message (deduplicated by id while a message with
// that id is pending; allowLockedDupe lets a new copy in while the
// existing one is in flight) and run a consumer loop against it.
type Queue interface {
	Enqueue(ctx context.Context, qname string, msg []byte, mid string, allowLockedDupe bool) error
	Worker(ctx context.Context, qname string, opts WorkerOptions, handler Handler) (Consumer, error)
}

// KeyError aggregates per-key failures from a single ensure-ks call
// (dirty reports missing keys with a plain error instead), the map-keyed-by-key shape spec.md §4.6 assigns to tundra's
// aggregate error type.
type KeyError struct {
	Causes map[string]error
}

func (e *KeyError) Error() string {
	parts := make([]string, 0, len(e.Causes))
	for k, c := range e.Causes {
		parts = append(parts, fmt.Sprintf("%s: %v", k, c))
	}
	sort.Strings(parts)
	return fmt.Sprintf("tundra: %d key(s) failed: %s", len(e.Causes), strings.Join(parts, "; "))
}
