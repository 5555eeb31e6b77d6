// Package freeze supplies the generic serialization collaborator
// spec.md §4.1 leaves "out of scope, treated as a collaborator": the
// freeze/thaw pair behind the "any other value, including null"
// argument row and the 0x00 '>' frozen-object bulk marker.
//
// The only serialization library present anywhere in the grounding pack
// is google.golang.org/protobuf, and it appears exclusively through
// protoc-generated message types (sa6mwa-lockd's internal/queue) that
// cannot be hand-authored safely here. GobFreezer is therefore a
// standard-library default, documented as such in DESIGN.md.
package freeze

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Freezer serializes arbitrary Go values for transport as an opaque
// frozen-object bulk and deserializes them back on the way in.
type Freezer interface {
	// Header is the byte sequence this freezer's own payloads start
	// with. It exists only so the decoder can run the legacy
	// opportunistic-thaw fallback (spec.md §9 open question 2) against
	// unmarked historic payloads.
	Header() []byte
	Freeze(v any) ([]byte, error)
	Thaw(data []byte, opts any) (any, error)
}

var gobHeader = []byte{0x67, 0x6b, 0x76} // "gkv", this freezer's payload sentinel

// GobFreezer serializes with encoding/gob. Concrete types crossing the
// freeze/thaw boundary as an interface value must be registered with
// gob.Register by the caller ahead of time, the usual gob constraint.
type GobFreezer struct{}

func (GobFreezer) Header() []byte { return gobHeader }

func (GobFreezer) Freeze(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(gobHeader)
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, fmt.Errorf("freeze: gob encode %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

func (GobFreezer) Thaw(data []byte, _ any) (any, error) {
	if len(data) < len(gobHeader) || !bytes.Equal(data[:len(gobHeader)], gobHeader) {
		return nil, fmt.Errorf("freeze: missing gob header")
	}
	var v any
	if err := gob.NewDecoder(bytes.NewReader(data[len(gobHeader):])).Decode(&v); err != nil {
		return nil, fmt.Errorf("freeze: gob decode: %w", err)
	}
	return v, nil
}
