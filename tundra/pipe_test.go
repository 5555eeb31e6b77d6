package tundra_test

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/kvpipe/kvpipe/internal/conn"
)

// pipeConn/pipePool mirror commands_test.go's in-process net.Pipe
// doubles, repeated here since tundra tests live in their own package
// and need the same no-network harness for exercising Coordinator
// against a scripted server.
type pipeConn struct {
	nc net.Conn
	r  *bufio.Reader
	w  *bufio.Writer
}

func (c *pipeConn) Writer() *bufio.Writer { return c.w }
func (c *pipeConn) Reader() *bufio.Reader { return c.r }
func (c *pipeConn) Spec() conn.NodeSpec   { return conn.NodeSpec{} }
func (c *pipeConn) Close() error          { return c.nc.Close() }

type pipePool struct {
	client *pipeConn
	server net.Conn
}

func newPipePool(t testing.TB) *pipePool {
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

// readOneRequest drains exactly one RESP multi-bulk request off r,
// discarding its framing, for a scripted server that only cares about
// replying, not inspecting what was asked.
func readOneRequest(r *bufio.Reader) error {
	line, err := r.ReadString('\n')
	if err != nil {
		return err
	}
	var n int
	if _, err := fmt.Sscanf(line, "*%d\r\n", &n); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		lenLine, err := r.ReadString('\n')
		if err != nil {
			return err
		}
		var l int
		if _, err := fmt.Sscanf(lenLine, "$%d\r\n", &l); err != nil {
			return err
		}
		buf := make([]byte, l+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
	}
	return nil
}

// serveScript replies with each of replies in order, one per request
// read off server, then stops.
func serveScript(t testing.TB, server net.Conn, replies []string) {
	t.Helper()
	go func() {
		r := bufio.NewReader(server)
		w := bufio.NewWriter(server)
		for _, reply := range replies {
			if err := readOneRequest(r); err != nil {
				return
			}
			if _, err := w.WriteString(reply); err != nil {
				return
			}
			_ = w.Flush()
		}
	}()
}
