package commands

import (
	"bufio"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvpipe/kvpipe"
	"github.com/kvpipe/kvpipe/internal/conn"
)

// pipeConn and pipePool stand in for a real connection pool using an
// in-process net.Pipe, so these tests exercise command building and
// session plumbing without a real KV server.
type pipeConn struct {
	nc net.Conn
	r  *bufio.Reader
	w  *bufio.Writer
}

func (c *pipeConn) Writer() *bufio.Writer  { return c.w }
func (c *pipeConn) Reader() *bufio.Reader  { return c.r }
func (c *pipeConn) Spec() conn.NodeSpec    { return conn.NodeSpec{} }
func (c *pipeConn) Close() error           { return c.nc.Close() }

type pipePool struct {
	client *pipeConn
	server net.Conn
}

func newPipePool(t *testing.T) *pipePool {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return &pipePool{
		client: &pipeConn{nc: client, r: bufio.NewReader(client), w: bufio.NewWriter(client)},
		server: server,
	}
}

func (p *pipePool) Acquire(spec conn.NodeSpec) (conn.Conn, error) { return p.client, nil }
func (p *pipePool) Release(c conn.Conn, failure error)            {}

// serveSimpleOK reads one line of the client's request framing and
// replies "+OK\r\n", n times, then stops reading.
func serveSimpleOK(t *testing.T, server net.Conn, n int) {
	t.Helper()
	go func() {
		buf := bufio.NewReader(server)
		w := bufio.NewWriter(server)
		for i := 0; i < n; i++ {
			// consume one line of framing at a time; tests here assert
			// on the session result, not on the request bytes sent.
			if _, err := buf.ReadString('\n'); err != nil {
				return
			}
			_, _ = w.WriteString("+OK\r\n")
			_ = w.Flush()
		}
	}()
}

func TestGetBuildsRoutableRequest(t *testing.T) {
	pool := newPipePool(t)
	serveSimpleOK(t, pool.server, 1)

	result, err := kvpipe.WithConnection(pool, conn.NodeSpec{}, nil, nil, func(s *kvpipe.Session) error {
		return Get(s, "mykey")
	})
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestUnknownCommandIsRejected(t *testing.T) {
	pool := newPipePool(t)
	_, err := kvpipe.WithConnection(pool, conn.NodeSpec{}, nil, nil, func(s *kvpipe.Session) error {
		return Command(s, "NOPE")
	})
	assert.Error(t, err)
}

func TestLeadingNullArgumentIsRejectedAtCoerceTime(t *testing.T) {
	pool := newPipePool(t)
	_, err := kvpipe.WithConnection(pool, conn.NodeSpec{}, nil, nil, func(s *kvpipe.Session) error {
		return Set(s, "k", []byte{0x00, 0xff})
	})
	assert.Error(t, err)
}
