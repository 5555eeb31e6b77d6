package resp

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errExpectedThawFailure = errors.New("stub thaw failure")

type stubFreezer struct {
	header []byte
	thaw   func([]byte, any) (any, error)
}

func (f stubFreezer) Header() []byte { return f.header }
func (f stubFreezer) Thaw(data []byte, opts any) (any, error) { return f.thaw(data, opts) }

func decodeOne(t *testing.T, wire string, opts ReplyOptions) *Reply {
	t.Helper()
	dec := NewDecoder(bufio.NewReader(strings.NewReader(wire)))
	r, err := dec.DecodeReply(opts)
	require.NoError(t, err)
	return r
}

func TestEncodeRequestFraming(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(bufio.NewWriter(&buf))
	require.NoError(t, enc.EncodeRequest([][]byte{[]byte("SET"), []byte("k"), []byte("v")}))
	require.NoError(t, enc.Flush())
	assert.Equal(t, "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n", buf.String())
}

func TestEncodeEmptyRequestWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(bufio.NewWriter(&buf))
	require.NoError(t, enc.EncodeRequest(nil))
	require.NoError(t, enc.Flush())
	assert.Empty(t, buf.Bytes())
}

func TestDecodeSimpleString(t *testing.T) {
	r := decodeOne(t, "+OK\r\n", ReplyOptions{})
	assert.Equal(t, KindSimpleString, r.Kind)
	assert.Equal(t, "OK", r.Simple)
}

func TestDecodeInteger(t *testing.T) {
	r := decodeOne(t, ":42\r\n", ReplyOptions{})
	assert.Equal(t, KindInteger, r.Kind)
	assert.EqualValues(t, 42, r.Integer)
}

func TestDecodeError(t *testing.T) {
	r := decodeOne(t, "-MOVED 5123 10.0.0.2:6379\r\n", ReplyOptions{})
	assert.Equal(t, KindError, r.Kind)
	assert.Equal(t, "moved", r.Err.Prefix)
	assert.Equal(t, "MOVED 5123 10.0.0.2:6379", r.Err.Message)
}

func TestDecodeNullBulk(t *testing.T) {
	r := decodeOne(t, "$-1\r\n", ReplyOptions{})
	assert.Equal(t, KindBulk, r.Kind)
	assert.True(t, r.BulkNull)
}

func TestDecodeTextBulk(t *testing.T) {
	r := decodeOne(t, "$5\r\nhello\r\n", ReplyOptions{})
	assert.Equal(t, "hello", r.Bulk)
}

func TestDecodeBinaryMarkedBulk(t *testing.T) {
	payload := string([]byte{0x00, '<', 0x01, 0x02, 0x03})
	r := decodeOne(t, "$5\r\n"+payload+"\r\n", ReplyOptions{})
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, r.Bulk)
}

func TestDecodeRawBulkSkipsInterpretation(t *testing.T) {
	payload := string([]byte{0x00, '<', 0x01})
	r := decodeOne(t, "$3\r\n"+payload+"\r\n", ReplyOptions{RawBulk: true})
	assert.Equal(t, []byte(payload), r.Bulk)
}

func TestDecodeFrozenBulkThaws(t *testing.T) {
	fz := stubFreezer{
		header: []byte{0xAB},
		thaw: func(data []byte, opts any) (any, error) {
			return string(data) + "!thawed", nil
		},
	}
	payload := string([]byte{0x00, '>'}) + "raw"
	r := decodeOne(t, "$5\r\n"+payload+"\r\n", ReplyOptions{Freezer: fz})
	assert.Equal(t, "raw!thawed", r.Bulk)
}

func TestDecodeLegacyFallbackOnThawFailure(t *testing.T) {
	fz := stubFreezer{
		header: []byte{0xAB},
		thaw: func(data []byte, opts any) (any, error) {
			return nil, errExpectedThawFailure
		},
	}
	payload := string([]byte{0xAB, 0x01})
	r := decodeOne(t, "$2\r\n"+payload+"\r\n", ReplyOptions{Freezer: fz})
	assert.Equal(t, []byte(payload), r.Bulk)
}

func TestDecodeArray(t *testing.T) {
	r := decodeOne(t, "*2\r\n:1\r\n:2\r\n", ReplyOptions{})
	assert.Equal(t, KindArray, r.Kind)
	assert.Len(t, r.Array, 2)
	assert.EqualValues(t, 1, r.Array[0].Integer)
	assert.EqualValues(t, 2, r.Array[1].Integer)
}

func TestDecodeNullArray(t *testing.T) {
	r := decodeOne(t, "*-1\r\n", ReplyOptions{})
	assert.True(t, r.ArrayNull)
}

func TestDecodeUnknownPrefix(t *testing.T) {
	dec := NewDecoder(bufio.NewReader(strings.NewReader("?\r\n")))
	_, err := dec.DecodeReply(ReplyOptions{})
	assert.Error(t, err)
}
