// Package conn implements the connection-pool contract spec.md §6
// treats as an external collaborator: pooled-conn(spec) -> (pool, conn)
// and release(pool, conn[, failure]). It is grounded on the teacher's
// internal/tcp_raw_client.go, whose *bufio.ReadWriter-backed connection
// shape is kept; the teacher's per-connection deque (there used to
// correlate concurrent in-flight requests against a single shared
// reader goroutine) is repurposed here as each node's idle-connection
// free-list, since this spec's executor owns a connection exclusively
// for the duration of one flush and never multiplexes concurrent
// writers onto it.
package conn

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/edwingeng/deque/v2"
)

// NodeSpec identifies one backend endpoint. Cluster carries the cluster
// name when this spec addresses a member of a cluster; single-node
// sessions leave it empty.
type NodeSpec struct {
	Address string
	Port    int
	Cluster string
}

func (s NodeSpec) HostPort() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

// Conn is one leased connection: a buffered output stream, a buffered
// input stream, and the spec it was dialed against.
type Conn interface {
	Writer() *bufio.Writer
	Reader() *bufio.Reader
	Spec() NodeSpec
	Close() error
}

// Pool is the external connection-pool contract from spec.md §6.
type Pool interface {
	Acquire(spec NodeSpec) (Conn, error)
	Release(c Conn, failure error)
}

type tcpConn struct {
	spec NodeSpec
	nc   net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

func (c *tcpConn) Writer() *bufio.Writer { return c.w }
func (c *tcpConn) Reader() *bufio.Reader { return c.r }
func (c *tcpConn) Spec() NodeSpec        { return c.spec }
func (c *tcpConn) Close() error          { return c.nc.Close() }

// TCPPool dials plain TCP connections on demand and keeps one idle
// free-list per NodeSpec. A failed connection (failure != nil at
// Release) is closed and discarded rather than returned to the pool,
// matching the teacher's reconnect-on-error posture.
type TCPPool struct {
	mu      sync.Mutex
	idle    map[NodeSpec]*deque.Deque[*tcpConn]
	dialTO  time.Duration
	maxIdle int
}

func NewTCPPool(dialTimeout time.Duration, maxIdlePerNode int) *TCPPool {
	return &TCPPool{
		idle:    make(map[NodeSpec]*deque.Deque[*tcpConn]),
		dialTO:  dialTimeout,
		maxIdle: maxIdlePerNode,
	}
}

func (p *TCPPool) Acquire(spec NodeSpec) (Conn, error) {
	p.mu.Lock()
	q := p.idle[spec]
	if q != nil && q.Len() > 0 {
		c := q.PopFront()
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	nc, err := net.DialTimeout("tcp", spec.HostPort(), p.dialTO)
	if err != nil {
		return nil, fmt.Errorf("conn: dial %s: %w", spec.HostPort(), err)
	}
	return &tcpConn{
		spec: spec,
		nc:   nc,
		r:    bufio.NewReader(nc),
		w:    bufio.NewWriter(nc),
	}, nil
}

func (p *TCPPool) Release(c Conn, failure error) {
	tc, ok := c.(*tcpConn)
	if !ok || tc == nil {
		return
	}
	if failure != nil {
		_ = tc.Close()
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	q := p.idle[tc.spec]
	if q == nil {
		q = deque.NewDeque[*tcpConn]()
		p.idle[tc.spec] = q
	}
	if q.Len() >= p.maxIdle {
		_ = tc.Close()
		return
	}
	q.PushBack(tc)
}
