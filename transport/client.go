package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gompi/gompi/plan"
	"github.com/gompi/gompi/utils"
)

// Client owns the outgoing connections of one peer.
type Client struct {
	self     plan.PeerID
	connPool *connectionPool
}

func NewClient(self plan.PeerID) *Client {
	return &Client{
		self:     self,
		connPool: newConnectionPool(),
	}
}

// Send sends buf to the named channel at a, establishing the data
// connection on first use.
func (c *Client) Send(a plan.Addr, buf []byte) error {
	msg := Message{
		Length: uint32(len(buf)),
		Data:   buf,
	}
	conn := c.connPool.get(a.Peer(), c.self)
	return conn.Send(a.Name, msg, NoFlag)
}

func (c *Client) Ping(target plan.PeerID) (time.Duration, error) {
	t0 := time.Now()
	conn, err := Open(target, c.self, ConnPing)
	if err != nil {
		return time.Since(t0), err
	}
	defer conn.Close()
	var empty Message
	if err := conn.Send("ping", empty, NoFlag); err != nil {
		return time.Since(t0), err
	}
	if err := conn.Read("ping", empty); err != nil {
		return time.Since(t0), err
	}
	return time.Since(t0), nil
}

// Wait pings a peer until it is accessible or ctx is done.
func (c *Client) Wait(ctx context.Context, target plan.PeerID) (int, bool) {
	const period = 200 * time.Millisecond
	var last time.Time
	ping := func() bool {
		if d := time.Since(last); d < period {
			time.Sleep(period - d)
		}
		_, err := c.Ping(target)
		last = time.Now()
		return err == nil
	}
	return utils.Poll(ctx, ping)
}

// Close closes all pooled connections.
func (c *Client) Close() {
	c.connPool.closeAll()
}

type connectionPool struct {
	sync.Mutex
	conns map[plan.PeerID]*Conn
}

func newConnectionPool() *connectionPool {
	return &connectionPool{
		conns: make(map[plan.PeerID]*Conn),
	}
}

func (p *connectionPool) get(remote, local plan.PeerID) *Conn {
	p.Lock()
	defer p.Unlock()
	if conn, ok := p.conns[remote]; ok {
		return conn
	}
	conn := newConn(remote, local, ConnData)
	p.conns[remote] = conn
	return conn
}

func (p *connectionPool) closeAll() {
	p.Lock()
	defer p.Unlock()
	for k, conn := range p.conns {
		conn.Close()
		delete(p.conns, k)
	}
}
