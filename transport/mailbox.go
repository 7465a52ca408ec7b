package transport

import (
	"io"
	"sync"

	"github.com/gompi/gompi/plan"
)

// Mailbox queues inbound messages by (source peer, channel name) and
// hands them to blocked receivers. Queues are created on demand, so a
// message may arrive before anyone asked for it and a receiver may
// block before the sender connected.
type Mailbox struct {
	sync.Mutex
	qSize  int
	queues map[plan.Addr]chan *Message
}

func NewMailbox() *Mailbox {
	return &Mailbox{
		qSize:  1,
		queues: make(map[plan.Addr]chan *Message),
	}
}

func (m *Mailbox) require(a plan.Addr) chan *Message {
	m.Lock()
	defer m.Unlock()
	q, ok := m.queues[a]
	if !ok {
		q = make(chan *Message, m.qSize)
		m.queues[a] = q
	}
	return q
}

// Recv blocks until a message named a.Name arrives from a.Peer().
func (m *Mailbox) Recv(a plan.Addr) Message {
	return *<-m.require(a)
}

// Handle implements Handler by streaming inbound messages into queues.
func (m *Mailbox) Handle(conn *Conn) (int, error) {
	for i := 0; ; i++ {
		name, msg, err := accept(conn)
		if err != nil {
			if err == io.EOF {
				return i, nil
			}
			return i, err
		}
		m.require(conn.Src().WithName(name)) <- msg
	}
}

func accept(conn *Conn) (string, *Message, error) {
	var mh MessageHeader
	if err := mh.ReadFrom(conn.conn); err != nil {
		return "", nil, err
	}
	var m Message
	if err := m.ReadFrom(conn.conn); err != nil {
		return "", nil, err
	}
	return string(mh.Name), &m, nil
}

func ignoreEOF(err error) error {
	if err == io.EOF {
		return nil
	}
	return err
}
