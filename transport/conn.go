package transport

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gompi/gompi/log"
	"github.com/gompi/gompi/plan"
)

type ConnType uint16

const (
	ConnPing ConnType = iota // 0
	ConnData ConnType = iota
)

func (t ConnType) String() string {
	switch t {
	case ConnPing:
		return "Ping"
	case ConnData:
		return "Data"
	default:
		return ""
	}
}

const (
	connRetryCount  = 40
	connRetryPeriod = 50 * time.Millisecond
)

type connHeader struct {
	Type    uint16
	SrcPort uint16
	SrcIPv4 uint32
}

func (h connHeader) WriteTo(w io.Writer) error {
	return binary.Write(w, endian, &h)
}

func (h *connHeader) ReadFrom(r io.Reader) error {
	return binary.Read(r, endian, h)
}

type connACK struct {
	Token uint32
}

func (a connACK) WriteTo(w io.Writer) error {
	return binary.Write(w, endian, &a)
}

func (a *connACK) ReadFrom(r io.Reader) error {
	return binary.Read(r, endian, a)
}

// Conn is a simplex logical connection from one peer to another.
type Conn struct {
	sync.Mutex
	src, dest plan.PeerID
	init      func() (net.Conn, error)
	conn      net.Conn
	initRetry int
	connType  ConnType
}

// UpgradeFrom performs the server side of the handshake that turns an
// accepted TCP connection into a Conn.
func UpgradeFrom(conn net.Conn, self plan.PeerID) (*Conn, error) {
	var ch connHeader
	if err := ch.ReadFrom(conn); err != nil {
		return nil, err
	}
	ack := connACK{}
	if err := ack.WriteTo(conn); err != nil {
		return nil, err
	}
	return &Conn{
		src:      plan.PeerID{IPv4: ch.SrcIPv4, Port: ch.SrcPort},
		dest:     self,
		connType: ConnType(ch.Type),
		conn:     conn,
	}, nil
}

var errCantEstablishConnection = errors.New("can't establish connection")

func newConn(remote, local plan.PeerID, t ConnType) *Conn {
	init := func() (net.Conn, error) {
		conn, err := net.Dial("tcp", remote.String())
		if err != nil {
			return nil, err
		}
		h := connHeader{
			Type:    uint16(t),
			SrcIPv4: local.IPv4,
			SrcPort: local.Port,
		}
		if err := h.WriteTo(conn); err != nil {
			conn.Close()
			return nil, err
		}
		var ack connACK
		if err := ack.ReadFrom(conn); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	}
	var initRetry int
	if t == ConnData {
		initRetry = connRetryCount
	}
	return &Conn{
		init:      init,
		src:       local,
		dest:      remote,
		initRetry: initRetry,
		connType:  t,
	}
}

// Open dials remote and performs the handshake eagerly.
func Open(remote, local plan.PeerID, t ConnType) (*Conn, error) {
	conn := newConn(remote, local, t)
	if err := conn.initOnce(); err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Conn) Type() ConnType {
	return c.connType
}

func (c *Conn) Src() plan.PeerID {
	return c.src
}

func (c *Conn) Dest() plan.PeerID {
	return c.dest
}

func (c *Conn) initOnce() error {
	c.Lock()
	defer c.Unlock()
	if c.conn != nil {
		return nil
	}
	t0 := time.Now()
	for i := 0; i <= c.initRetry; i++ {
		var err error
		if c.conn, err = c.init(); err == nil {
			log.Debugf("%s connection to #<%s> established after %d trials, took %s", c.connType, c.dest, i+1, time.Since(t0))
			return nil
		}
		log.Debugf("failed to establish connection to #<%s> for %d times: %v", c.dest, i+1, err)
		time.Sleep(connRetryPeriod)
	}
	return errCantEstablishConnection
}

// Send writes one named message to the connection.
func (c *Conn) Send(name string, m Message, flags uint32) error {
	if err := c.initOnce(); err != nil {
		return err
	}
	c.Lock()
	defer c.Unlock()
	bs := []byte(name)
	mh := MessageHeader{
		NameLength: uint32(len(bs)),
		Name:       bs,
		Flags:      flags,
	}
	if err := mh.WriteTo(c.conn); err != nil {
		return err
	}
	return m.WriteTo(c.conn)
}

// Read reads one message with the given name into m's buffer.
func (c *Conn) Read(name string, m Message) error {
	if err := c.initOnce(); err != nil {
		return err
	}
	c.Lock()
	defer c.Unlock()
	var mh MessageHeader
	if err := mh.Expect(c.conn, name); err != nil {
		return err
	}
	return m.ReadInto(c.conn)
}

func (c *Conn) Close() error {
	c.Lock()
	defer c.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
