package kvpipe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kvpipe/kvpipe/cluster"
	"github.com/kvpipe/kvpipe/internal/conn"
	"github.com/kvpipe/kvpipe/internal/exec"
	"github.com/kvpipe/kvpipe/internal/freeze"
	"github.com/kvpipe/kvpipe/request"
	"github.com/kvpipe/kvpipe/resp"
)

// DefaultFreezer is the dependency-free freeze/thaw collaborator
// (internal/freeze.GobFreezer) used when a caller doesn't supply one.
var DefaultFreezer freeze.Freezer = freeze.GobFreezer{}

// target abstracts "where does this session's flush go": a single node
// or a cluster dispatcher, selected once at session construction.
type target interface {
	flush(reqs []*request.Request, wantReplies, asPipeline bool, freezer freeze.Freezer) ([]*resp.Reply, error)
}

type singleNodeTarget struct {
	pool conn.Pool
	spec conn.NodeSpec
}

func (t singleNodeTarget) flush(reqs []*request.Request, wantReplies, asPipeline bool, freezer freeze.Freezer) ([]*resp.Reply, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	c, err := t.pool.Acquire(t.spec)
	if err != nil {
		return nil, fmt.Errorf("kvpipe: acquire connection: %w", err)
	}
	replies, err := exec.Run(c.Writer(), c.Reader(), reqs, wantReplies, freezer)
	t.pool.Release(c, err)
	if err != nil {
		return nil, err
	}
	return replies, nil
}

type clusterTarget struct {
	d *cluster.Dispatcher
}

func (t clusterTarget) flush(reqs []*request.Request, wantReplies, asPipeline bool, freezer freeze.Freezer) ([]*resp.Reply, error) {
	return t.d.Dispatch(context.Background(), reqs, wantReplies, asPipeline, freezer)
}

// Session is the explicit, per-goroutine pipeline builder spec.md §4.3
// describes: an ordered request queue and a stack of currently active
// parsers. It replaces the dynamic-scope "current session" a Lisp
// client would carry with a plain value passed around explicitly, per
// the spec's own §9 guidance.
type Session struct {
	queueMu sync.Mutex
	queue   []*request.Request

	parserMu    sync.Mutex
	parserStack []*request.Parser

	target  target
	freezer freeze.Freezer
	logger  *slog.Logger
}

func newSession(t target, freezer freeze.Freezer, logger *slog.Logger) *Session {
	if freezer == nil {
		freezer = DefaultFreezer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{target: t, freezer: freezer, logger: logger}
}

// Logger returns the session's diagnostic logger.
func (s *Session) Logger() *slog.Logger { return s.logger }

// CoerceArg coerces one application-side value using this session's
// configured freezer.
func (s *Session) CoerceArg(v any) ([]byte, error) {
	return CoerceArg(v, s.freezer)
}

// Enqueue appends a wire request built from already-coerced argument
// bytes, tagged with this session's currently active parser (if any)
// and the keyslot the caller computed for it (nil for non-routable
// commands).
func (s *Session) Enqueue(args [][]byte, keyslot *int) {
	s.push(&request.Request{
		Kind:            request.Wire,
		Args:            args,
		ExpectedKeyslot: keyslot,
		Parser:          s.currentParser(),
	})
}

// EnqueueRaw is Enqueue with the raw-bulk? decode option layered on top
// of whatever parser is currently active, for commands like DUMP whose
// reply must come back as untouched bytes rather than text/thawed.
func (s *Session) EnqueueRaw(args [][]byte, keyslot *int) {
	base := s.currentParser()
	raw := &request.Parser{Opts: request.Options{RawBulk: true}}
	s.push(&request.Request{
		Kind:            request.Wire,
		Args:            args,
		ExpectedKeyslot: keyslot,
		Parser:          request.Compose(raw, base),
	})
}

func (s *Session) push(r *request.Request) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	s.queue = append(s.queue, r)
}

func (s *Session) swapQueue() []*request.Request {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	q := s.queue
	s.queue = nil
	return q
}

func (s *Session) currentParser() *request.Parser {
	s.parserMu.Lock()
	defer s.parserMu.Unlock()
	if len(s.parserStack) == 0 {
		return nil
	}
	return s.parserStack[len(s.parserStack)-1]
}

func (s *Session) pushParser(p *request.Parser) {
	s.parserMu.Lock()
	defer s.parserMu.Unlock()
	s.parserStack = append(s.parserStack, p)
}

func (s *Session) popParser() {
	s.parserMu.Lock()
	defer s.parserMu.Unlock()
	if len(s.parserStack) > 0 {
		s.parserStack = s.parserStack[:len(s.parserStack)-1]
	}
}

// WithParser runs body with p as the session's current parser,
// restoring whatever was active before on return. Per spec.md §4.3,
// this always *replaces* the active parser; use request.Compose
// explicitly to layer options onto an outer parser.
func WithParser(s *Session, p *request.Parser, body func() error) error {
	s.pushParser(p)
	defer s.popParser()
	return body()
}

// Return pushes a synthetic "return this value immediately" request
// (spec.md §3's dummy-request primitive), threaded through the
// session's currently active parser so user parsers still see it like
// any other reply.
func Return(s *Session, value *resp.Reply) {
	s.push(&request.Request{Kind: request.Synthetic, DummyValue: value, Parser: s.currentParser()})
}

func applyParsers(reqs []*request.Request, replies []*resp.Reply) []*resp.Reply {
	if len(replies) == 0 {
		return replies
	}
	out := make([]*resp.Reply, len(replies))
	for i := range replies {
		if i < len(reqs) {
			out[i] = reqs[i].Apply(replies[i])
		} else {
			out[i] = replies[i]
		}
	}
	return out
}

// AsVector normalizes a WithConnection/WithReplies result — which may
// be a single unwrapped *resp.Reply or a []*resp.Reply — into a slice,
// for callers that always want to iterate positionally regardless of
// how many requests were issued.
func AsVector(v any) []*resp.Reply {
	switch x := v.(type) {
	case nil:
		return nil
	case *resp.Reply:
		return []*resp.Reply{x}
	case []*resp.Reply:
		return x
	default:
		return nil
	}
}

// unwrap applies spec.md §4.3's Flush rule: a single non-pipelined
// request's reply is returned bare (raised as an error if it is an
// error value); anything else comes back as a vector.
func unwrap(replies []*resp.Reply, asPipeline bool) (any, error) {
	if replies == nil {
		return nil, nil
	}
	if !asPipeline && len(replies) == 1 {
		r := replies[0]
		if r != nil && r.Kind == resp.KindError {
			return nil, r.Err
		}
		return r, nil
	}
	return replies, nil
}

// WithConnection opens a session against a single node, runs body, and
// flushes whatever body queued (behaving like an implicit top-level
// WithReplies around the whole body), returning the collected replies.
func WithConnection(pool conn.Pool, spec conn.NodeSpec, freezer freeze.Freezer, logger *slog.Logger, body func(s *Session) error) (any, error) {
	return runSession(singleNodeTarget{pool: pool, spec: spec}, freezer, logger, body)
}

// WithCluster is WithConnection's cluster-aware counterpart: requests
// queued during body are dispatched through d, with MOVED/ASK
// redirects handled transparently.
func WithCluster(d *cluster.Dispatcher, freezer freeze.Freezer, logger *slog.Logger, body func(s *Session) error) (any, error) {
	return runSession(clusterTarget{d: d}, freezer, logger, body)
}

func runSession(t target, freezer freeze.Freezer, logger *slog.Logger, body func(s *Session) error) (any, error) {
	s := newSession(t, freezer, logger)
	bodyErr := body(s)
	reqs := s.swapQueue()
	replies, err := t.flush(reqs, true, false, s.freezer)
	if bodyErr != nil {
		return nil, bodyErr
	}
	if err != nil {
		return nil, err
	}
	applied := applyParsers(reqs, replies)
	return unwrap(applied, false)
}

// WithReplies collects the replies for requests issued inside body,
// returning them to the caller immediately, while preserving any
// requests already pending in the enclosing scope for the outer
// scope's own eventual flush (spec.md §4.3's nested with-replies
// dance):
//
//  1. Whatever is already queued is stashed away and flushed now.
//  2. body runs and queues its own requests, which are flushed and
//     returned to the caller.
//  3. The stashed replies are pushed back as synthetic (already-
//     parsed) requests, in a guaranteed-run finally, so the enclosing
//     scope sees them in their original order whenever it next
//     flushes.
func WithReplies(s *Session, asPipeline bool, body func() error) (any, error) {
	stashed := s.swapQueue()
	stashedReplies, stashErr := s.target.flush(stashed, true, true, s.freezer)
	if stashErr != nil {
		return nil, stashErr
	}
	stashedReplies = applyParsers(stashed, stashedReplies)
	defer func() {
		for _, r := range stashedReplies {
			s.push(&request.Request{Kind: request.Synthetic, DummyValue: r})
		}
	}()

	bodyErr := body()
	nested := s.swapQueue()
	nestedReplies, nestedErr := s.target.flush(nested, true, asPipeline, s.freezer)
	nestedReplies = applyParsers(nested, nestedReplies)

	if bodyErr != nil {
		return nil, bodyErr
	}
	if nestedErr != nil {
		return nil, nestedErr
	}
	return unwrap(nestedReplies, asPipeline)
}
