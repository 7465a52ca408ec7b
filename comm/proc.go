package comm

import (
	"errors"
	"sync"

	"github.com/gompi/gompi/env"
	"github.com/gompi/gompi/plan"
	"github.com/gompi/gompi/transport"
)

// AttrDestructor is invoked for an attribute when its communicator is
// freed. val is the attached value, extra the state registered with the
// keyval. Errors are logged, not propagated: there is no caller to
// report them to on the teardown path.
type AttrDestructor func(c *Comm, keyval int, val, extra interface{}) error

type keyval struct {
	del   AttrDestructor
	extra interface{}
}

// Proc is one process of a job: it owns the transport endpoints, the
// keyval table and the process-scoped communicators. All communicators
// created here stay bound to it for their lifetime.
type Proc struct {
	mu sync.Mutex

	self    plan.PeerID
	server  *transport.Server
	mailbox *transport.Mailbox
	client  *transport.Client

	selfComm *Comm
	world    *Comm

	tagUB int

	keyvals    map[int]*keyval
	nextKeyval int

	closed bool
}

var errSelfNotInWorld = errors.New("self not in world")

// Listen starts the transport for a peer. A self ID with port 0 binds
// an ephemeral port, reflected in ID(). The single-process communicator
// Self() exists from this point on; World() requires Attach.
func Listen(self plan.PeerID) (*Proc, error) {
	mailbox := transport.NewMailbox()
	server := transport.NewServer(self, mailbox)
	id, err := server.Listen()
	if err != nil {
		return nil, err
	}
	p := &Proc{
		self:    id,
		server:  server,
		mailbox: mailbox,
		client:  transport.NewClient(id),
		tagUB:   transport.MaxTag,
		keyvals: make(map[int]*keyval),
	}
	go server.Serve()
	group := plan.PeerList{id}
	p.selfComm = newComm(p, group, nil, 0, deriveCtx(0, 0, opSelf, group))
	return p, nil
}

// New starts a proc from a worker configuration, attaching the world
// communicator when the config names the peer list.
func New(cfg *env.Config) (*Proc, error) {
	p, err := Listen(cfg.Self)
	if err != nil {
		return nil, err
	}
	pl := cfg.Peers
	if cfg.Single {
		pl = plan.PeerList{p.self}
	}
	if len(pl) > 0 {
		if _, err := p.Attach(pl); err != nil {
			p.Close()
			return nil, err
		}
	}
	return p, nil
}

// Attach installs the world communicator over the given peer list,
// which must contain this proc's ID.
func (p *Proc) Attach(pl plan.PeerList) (*Comm, error) {
	rank, ok := pl.Rank(p.self)
	if !ok {
		return nil, errSelfNotInWorld
	}
	p.world = newComm(p, pl.Clone(), nil, rank, deriveCtx(0, 0, opWorld, pl))
	return p.world, nil
}

func (p *Proc) ID() plan.PeerID {
	return p.self
}

// Self returns the single-process communicator; its destruction at
// Close marks the end of process-scoped lifetimes.
func (p *Proc) Self() *Comm {
	return p.selfComm
}

func (p *Proc) World() *Comm {
	return p.world
}

// TagUB reports the maximum message tag the runtime supports; ok is
// false when no bound is advertised.
func (p *Proc) TagUB() (int, bool) {
	if p.tagUB > 0 {
		return p.tagUB, true
	}
	return 0, false
}

// SetTagUB overrides the advertised tag upper bound; n <= 0 marks the
// bound as unknown.
func (p *Proc) SetTagUB(n int) {
	p.tagUB = n
}

// NewKeyval registers an attribute key with an optional destructor and
// destructor state. The key is valid on every communicator of this proc.
func (p *Proc) NewKeyval(del AttrDestructor, extra interface{}) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextKeyval++
	k := p.nextKeyval
	p.keyvals[k] = &keyval{del: del, extra: extra}
	return k
}

func (p *Proc) FreeKeyval(k int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.keyvals, k)
}

func (p *Proc) keyvalFor(k int) (*keyval, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kv, ok := p.keyvals[k]
	return kv, ok
}

// Close frees the world and self communicators in that order (running
// their attribute destructors) and stops the transport. The self
// communicator goes last so that destructors scoped to the process
// lifetime run after every other cleanup.
func (p *Proc) Close() error {
	if p.closed {
		return ErrFreed
	}
	p.closed = true
	if p.world != nil && !p.world.freed {
		p.world.Free()
	}
	if !p.selfComm.freed {
		p.selfComm.Free()
	}
	p.client.Close()
	p.server.Close()
	return nil
}
