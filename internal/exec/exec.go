// Package exec is the shared single-connection pipeline primitive used
// by both the root package's single-node executor and the cluster
// dispatcher's per-node dispatch (spec.md §4.4): write every wire
// request, flush once, then decode one reply per wire request. It is
// grounded on the teacher's Dispatch/listen goroutine pair, collapsed
// into a single synchronous call since a session or a cluster dispatch
// group owns its connection exclusively for one flush and never
// interleaves concurrent writers on it.
package exec

import (
	"bufio"
	"fmt"

	"github.com/kvpipe/kvpipe/internal/freeze"
	"github.com/kvpipe/kvpipe/request"
	"github.com/kvpipe/kvpipe/resp"
)

// Run writes every Wire request in reqs to w and flushes once, then
// decodes exactly one reply per Wire request from r. Synthetic requests
// contribute their DummyValue instead of consuming wire bytes. Parser
// functions are not applied here — callers run request.Request.Apply
// over the returned slice, since parser application is a session/
// dispatcher-level concern, not a wire-level one.
//
// The returned slice is always decoded in full so the connection stays
// in sync even when wantReplies is false; in that case the slice itself
// is discarded (nil, nil) rather than handed back to the caller.
func Run(w *bufio.Writer, r *bufio.Reader, reqs []*request.Request, wantReplies bool, freezer freeze.Freezer) ([]*resp.Reply, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	enc := resp.NewEncoder(w)
	for _, req := range reqs {
		if req.Kind == request.Wire {
			if err := enc.EncodeRequest(req.Args); err != nil {
				return nil, fmt.Errorf("exec: write request: %w", err)
			}
		}
	}
	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("exec: flush: %w", err)
	}

	dec := resp.NewDecoder(r)
	replies := make([]*resp.Reply, len(reqs))
	for i, req := range reqs {
		if req.Kind == request.Synthetic {
			replies[i] = req.DummyValue
			continue
		}
		opts := resp.ReplyOptions{Freezer: freezerAdapter{freezer}}
		if req.Parser != nil {
			opts.RawBulk = req.Parser.Opts.RawBulk
			opts.ThawOpts = req.Parser.Opts.ThawOpts
		}
		reply, err := dec.DecodeReply(opts)
		if err != nil {
			return nil, fmt.Errorf("exec: decode reply %d: %w", i, err)
		}
		replies[i] = reply
	}
	if !wantReplies {
		return nil, nil
	}
	return replies, nil
}

// freezerAdapter narrows internal/freeze.Freezer (Header/Freeze/Thaw)
// down to the resp.Freezer shape (Header/Thaw) the decoder needs,
// tolerating a nil underlying freezer.
type freezerAdapter struct {
	f freeze.Freezer
}

func (a freezerAdapter) Header() []byte {
	if a.f == nil {
		return nil
	}
	return a.f.Header()
}

func (a freezerAdapter) Thaw(data []byte, opts any) (any, error) {
	if a.f == nil {
		return nil, fmt.Errorf("exec: no freezer configured")
	}
	return a.f.Thaw(data, opts)
}
