package kvpipe

import (
	"fmt"
	"strconv"

	"github.com/kvpipe/kvpipe/internal/freeze"
)

var (
	binaryMarker = []byte{0x00, '<'}
	frozenMarker = []byte{0x00, '>'}
)

// RawBytes wraps a byte slice that is already wire-ready and must be
// sent verbatim, with no marker prefix added — the "pre-wrapped raw
// bytes" row of spec.md §4.1, used for payloads like a previously
// DUMPed blob that RESTORE needs untouched.
type RawBytes []byte

const errLeadingNull = "Args can't begin with null terminator"

// CoerceArg converts one application-side argument to its wire byte
// payload, following the coercion table in spec.md §4.1. Text strings,
// integers/floats, and pre-wrapped raw bytes may not begin with 0x00 —
// that byte is the sentinel this client uses to tunnel binary and
// frozen-object payloads through bulk strings, so a caller-supplied
// argument that starts with it is rejected outright rather than risk
// ambiguity on the way back.
func CoerceArg(v any, freezer freeze.Freezer) ([]byte, error) {
	switch x := v.(type) {
	case RawBytes:
		return checkLeadingNull([]byte(x))
	case []byte:
		b, err := checkLeadingNull(x)
		if err != nil {
			return nil, err
		}
		return append(append([]byte{}, binaryMarker...), b...), nil
	case string:
		return checkLeadingNull([]byte(x))
	case int:
		return []byte(strconv.Itoa(x)), nil
	case int8:
		return []byte(strconv.FormatInt(int64(x), 10)), nil
	case int16:
		return []byte(strconv.FormatInt(int64(x), 10)), nil
	case int32:
		return []byte(strconv.FormatInt(int64(x), 10)), nil
	case int64:
		return []byte(strconv.FormatInt(x, 10)), nil
	case uint:
		return []byte(strconv.FormatUint(uint64(x), 10)), nil
	case uint8:
		return []byte(strconv.FormatUint(uint64(x), 10)), nil
	case uint16:
		return []byte(strconv.FormatUint(uint64(x), 10)), nil
	case uint32:
		return []byte(strconv.FormatUint(uint64(x), 10)), nil
	case uint64:
		return []byte(strconv.FormatUint(x, 10)), nil
	case float32:
		return []byte(strconv.FormatFloat(float64(x), 'f', -1, 64)), nil
	case float64:
		return []byte(strconv.FormatFloat(x, 'f', -1, 64)), nil
	default:
		if freezer == nil {
			return nil, fmt.Errorf("coerce: no freezer configured to freeze %T", v)
		}
		payload, err := freezer.Freeze(v)
		if err != nil {
			return nil, fmt.Errorf("coerce: freeze %T: %w", v, err)
		}
		return append(append([]byte{}, frozenMarker...), payload...), nil
	}
}

func checkLeadingNull(b []byte) ([]byte, error) {
	if len(b) > 0 && b[0] == 0x00 {
		return nil, fmt.Errorf("coerce: %s", errLeadingNull)
	}
	return b, nil
}
