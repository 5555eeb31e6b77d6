// Package resp implements the wire codec described in spec.md §4.2: a
// five-prefix reply grammar (+ - : $ *) plus the two in-bulk type
// markers this client tunnels through bulk-string payloads. It is
// grounded on the RESP framing in
// _examples/ttys3-radix/resp/resp3/resp.go (a mediocregopher/radix
// fragment), restricted to the RESP2 subset spec.md actually names.
package resp

import "fmt"

// Kind tags the five reply shapes a server can send.
type Kind int

const (
	KindSimpleString Kind = iota
	KindInteger
	KindError
	KindBulk
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindSimpleString:
		return "simple-string"
	case KindInteger:
		return "integer"
	case KindError:
		return "error"
	case KindBulk:
		return "bulk"
	case KindArray:
		return "array"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ReplyError is the {prefix, message} shape spec.md §3 assigns to error
// replies. Prefix is the lowercased first whitespace-delimited token of
// the error line ("moved", "ask", "err", ...).
type ReplyError struct {
	Prefix  string
	Message string
}

func (e *ReplyError) Error() string { return e.Message }

// Reply is the tagged value spec.md §3 describes: exactly one of the
// fields below is meaningful, selected by Kind. Bulk holds a string for
// text payloads, a []byte for binary/raw payloads, a thawed value for
// frozen-object payloads, or nil when BulkNull is set. Array holds
// nested replies, or nil when ArrayNull is set (a null array is distinct
// from an empty one).
type Reply struct {
	Kind Kind

	Simple  string
	Integer int64
	Err     *ReplyError
	Bulk    any

	Array     []*Reply
	ArrayNull bool
	BulkNull  bool
}

// Freezer serializes/deserializes the "any other value, including null"
// argument row of spec.md §4.1. Decode-side callers supply one via
// ReplyOptions so frozen-object and legacy bulk payloads can be thawed;
// a nil Freezer leaves frozen markers as a decode-time error reply
// rather than crashing the pipeline.
type Freezer interface {
	// Header is the byte sequence this freezer's own payloads begin
	// with, used only for the legacy opportunistic-thaw fallback
	// (spec.md §9 open question 2).
	Header() []byte
	Thaw(data []byte, opts any) (any, error)
}

// ReplyOptions carries the per-request decode options spec.md §3
// assigns to a Request: raw-bulk? and thaw-opts.
type ReplyOptions struct {
	// RawBulk, when true, skips text/binary/frozen interpretation and
	// returns the bulk payload as a plain []byte.
	RawBulk  bool
	ThawOpts any
	Freezer  Freezer
}

var (
	binaryMarker = []byte{0x00, '<'}
	frozenMarker = []byte{0x00, '>'}
)
