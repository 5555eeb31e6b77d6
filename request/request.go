// Package request holds the pipeline data model shared between the
// session runtime and the cluster dispatcher (spec.md §3): the two
// request variants (wire vs synthetic) and the parser a request carries.
package request

import "github.com/kvpipe/kvpipe/resp"

// Kind distinguishes a real wire request from a synthetic "return this
// value" placeholder (spec.md §3's dummy-request primitive).
type Kind int

const (
	Wire Kind = iota
	Synthetic
)

// Options is the per-request decode/parse configuration spec.md §3
// assigns to a request: raw-bulk?, thaw-opts, dummy-reply, parse-
// exceptions?.
type Options struct {
	RawBulk         bool
	ThawOpts        any
	DummyReply      *resp.Reply
	ParseExceptions bool
}

// Func rewrites a decoded reply into whatever shape the caller wants.
type Func func(*resp.Reply) *resp.Reply

// Parser pairs a rewrite function with the decode/parse options that
// travel with it.
type Parser struct {
	Fn   Func
	Opts Options
}

// Compose builds a parser that runs inner's function, then outer's,
// and merges their options with inner's non-zero values winning. This
// is the explicit opt-in operator spec.md §4.3 calls out: setting a
// session's current parser always *replaces* it; composition is a
// distinct, deliberate operation.
func Compose(outer, inner *Parser) *Parser {
	if outer == nil {
		return inner
	}
	if inner == nil {
		return outer
	}
	outerFn, innerFn := outer.Fn, inner.Fn
	composed := func(r *resp.Reply) *resp.Reply {
		if innerFn != nil {
			r = innerFn(r)
		}
		if outerFn != nil {
			r = outerFn(r)
		}
		return r
	}
	opts := outer.Opts
	if inner.Opts.RawBulk {
		opts.RawBulk = true
	}
	if inner.Opts.ThawOpts != nil {
		opts.ThawOpts = inner.Opts.ThawOpts
	}
	if inner.Opts.DummyReply != nil {
		opts.DummyReply = inner.Opts.DummyReply
	}
	if inner.Opts.ParseExceptions {
		opts.ParseExceptions = true
	}
	return &Parser{Fn: composed, Opts: opts}
}

// Request is one entry in a session's pipeline queue. A Wire request
// carries wire-ready argument bytes and, for routable commands, the
// keyslot the cluster dispatcher should hash it to. A Synthetic request
// carries no argument bytes at all; it contributes DummyValue as its
// reply without touching the wire.
type Request struct {
	Kind Kind

	Args            [][]byte
	ExpectedKeyslot *int

	// Pos is this request's index in the pipeline it was dispatched as
	// part of, assigned by the dispatcher just before grouping.
	Pos int

	Parser     *Parser
	DummyValue *resp.Reply
}

// Apply runs this request's parser function over a decoded (or
// synthesized) reply, honoring ParseExceptions: a parser only sees an
// error-kind reply if it explicitly opted in.
func (r *Request) Apply(base *resp.Reply) *resp.Reply {
	if r.Parser == nil || r.Parser.Fn == nil {
		return base
	}
	if base != nil && base.Kind == resp.KindError && !r.Parser.Opts.ParseExceptions {
		return base
	}
	return r.Parser.Fn(base)
}
