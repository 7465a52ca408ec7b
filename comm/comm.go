package comm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/gompi/gompi/log"
	"github.com/gompi/gompi/plan"
)

var (
	// ErrInternal is the indicator passed to a communicator's error
	// handler when a failure has no transport status of its own.
	ErrInternal = errors.New("internal error")

	// ErrFreed is returned by any operation on a freed handle.
	ErrFreed = errors.New("communicator already freed")

	errInvalidRank   = errors.New("invalid rank")
	errInvalidTag    = errors.New("invalid tag")
	errInvalidKeyval = errors.New("invalid keyval")
	errNotInterComm  = errors.New("not an inter-communicator")
	errNotIntraComm  = errors.New("not an intra-communicator")
	errNotSubGroup   = errors.New("not a subgroup")
)

// ErrHandler is attached to a communicator and invoked for errors that
// cannot be returned through a transport status.
type ErrHandler func(c *Comm, err error)

func defaultErrHandler(c *Comm, err error) {
	log.Errorf("comm %016x rank %d: %v", c.ctx, c.rank, err)
}

// Comm is a communicator: an ordered group of peers sharing a private
// context ID that isolates its traffic from every other communicator.
// An inter-communicator additionally carries the remote group.
//
// A Comm is driven by one logical thread of control per process;
// concurrent use of the same handle must be serialized by the caller.
type Comm struct {
	proc   *Proc
	group  plan.PeerList
	remote plan.PeerList
	rank   int
	ctx    uint64
	seq    uint32
	attrs  map[int]interface{}
	errh   ErrHandler
	freed  bool
}

func newComm(p *Proc, group, remote plan.PeerList, rank int, ctx uint64) *Comm {
	return &Comm{
		proc:   p,
		group:  group,
		remote: remote,
		rank:   rank,
		ctx:    ctx,
		attrs:  make(map[int]interface{}),
	}
}

// Context-creating operations; the op code keeps derived context IDs
// apart even when the same groups are involved.
const (
	opWorld byte = iota + 1
	opSelf
	opDup
	opCreate
	opInter
	opMerge
)

var endian = binary.LittleEndian

func deriveCtx(parent uint64, seq uint32, op byte, groups ...plan.PeerList) uint64 {
	h := fnv.New64a()
	binary.Write(h, endian, parent)
	binary.Write(h, endian, seq)
	h.Write([]byte{op})
	for _, g := range groups {
		h.Write(g.Bytes())
	}
	return h.Sum64()
}

// nextCtx consumes one derivation slot. Context-creating calls are
// collective: every member consumes slots in matching order, so the
// derived IDs agree without any message exchange.
func (c *Comm) nextCtx(op byte, groups ...plan.PeerList) uint64 {
	seq := c.seq
	c.seq++
	return deriveCtx(c.ctx, seq, op, groups...)
}

func (c *Comm) Proc() *Proc {
	return c.proc
}

func (c *Comm) Rank() int {
	return c.rank
}

// Size is the size of the local group.
func (c *Comm) Size() int {
	return len(c.group)
}

// RemoteSize is the size of the remote group; zero on intra-communicators.
func (c *Comm) RemoteSize() int {
	return len(c.remote)
}

func (c *Comm) IsInter() bool {
	return c.remote != nil
}

// Group returns a copy of the local group.
func (c *Comm) Group() plan.PeerList {
	return c.group.Clone()
}

// Dup duplicates the communicator under a fresh context ID. Collective:
// every member of the communicator (both groups, for an
// inter-communicator) must call Dup at a matching point. Attributes are
// not copied.
func (c *Comm) Dup() (*Comm, error) {
	if c.freed {
		return nil, ErrFreed
	}
	// Both sides of an inter-communicator must derive the same context
	// ID, so the pair is hashed in a canonical order.
	var ctx uint64
	if c.IsInter() {
		ctx = c.nextCtx(opDup, canonicalPair(c.group, c.remote)...)
	} else {
		ctx = c.nextCtx(opDup, c.group)
	}
	return newComm(c.proc, c.group.Clone(), c.remote.Clone(), c.rank, ctx), nil
}

// Create carves the subgroup g out of an intra-communicator.
// Collective over c: every member must call it, each passing a group
// that is a subset of c's group; callers outside their g get (nil, nil).
// Distinct callers may pass disjoint groups, producing one communicator
// per group in a single collective call.
func (c *Comm) Create(g plan.PeerList) (*Comm, error) {
	if c.freed {
		return nil, ErrFreed
	}
	if c.IsInter() {
		return nil, errNotIntraComm
	}
	for _, p := range g {
		if !c.group.Contains(p) {
			return nil, errNotSubGroup
		}
	}
	ctx := c.nextCtx(opCreate, g)
	rank, ok := g.Rank(c.proc.self)
	if !ok {
		return nil, nil
	}
	return newComm(c.proc, g.Clone(), nil, rank, ctx), nil
}

// chanName isolates a (context, tag) pair as a transport channel name.
// Reserved names used by collective setup carry a non-numeric infix, so
// internal traffic cannot collide with any user tag.
func chanName(ctx uint64, tag int) string {
	return fmt.Sprintf("%016x:%d", ctx, tag)
}

func mergeName(ctx uint64, seq uint32) string {
	return fmt.Sprintf("%016x:merge:%d", ctx, seq)
}

// peers returns the group a destination/source rank indexes: the remote
// group on an inter-communicator, the local group otherwise.
func (c *Comm) peers() plan.PeerList {
	if c.IsInter() {
		return c.remote
	}
	return c.group
}

// Send sends buf to the given rank under tag. Blocks until the data is
// written to the connection, not until it is received.
func (c *Comm) Send(buf []byte, rank, tag int) error {
	if c.freed {
		return ErrFreed
	}
	peers := c.peers()
	if rank < 0 || rank >= len(peers) {
		return errInvalidRank
	}
	if tag < 0 {
		return errInvalidTag
	}
	return c.proc.client.Send(peers[rank].WithName(chanName(c.ctx, tag)), buf)
}

// Recv blocks until a message with the given tag arrives from rank on
// this communicator.
func (c *Comm) Recv(rank, tag int) ([]byte, error) {
	if c.freed {
		return nil, ErrFreed
	}
	peers := c.peers()
	if rank < 0 || rank >= len(peers) {
		return nil, errInvalidRank
	}
	if tag < 0 {
		return nil, errInvalidTag
	}
	m := c.proc.mailbox.Recv(peers[rank].WithName(chanName(c.ctx, tag)))
	return m.Data, nil
}

// SetAttr attaches val under a registered keyval. The communicator owns
// the value until it is freed or the attribute deleted.
func (c *Comm) SetAttr(k int, val interface{}) error {
	if c.freed {
		return ErrFreed
	}
	if _, ok := c.proc.keyvalFor(k); !ok {
		return errInvalidKeyval
	}
	c.attrs[k] = val
	return nil
}

func (c *Comm) GetAttr(k int) (interface{}, bool) {
	if c.freed {
		return nil, false
	}
	val, ok := c.attrs[k]
	return val, ok
}

// DeleteAttr removes an attribute without running its destructor.
func (c *Comm) DeleteAttr(k int) {
	if c.freed {
		return
	}
	delete(c.attrs, k)
}

func (c *Comm) SetErrHandler(h ErrHandler) {
	c.errh = h
}

// CallErrHandler reports err through the communicator's error handler.
func (c *Comm) CallErrHandler(err error) {
	if c.errh != nil {
		c.errh(c, err)
		return
	}
	defaultErrHandler(c, err)
}

// Free runs the destructor of every attached attribute and poisons the
// handle. Destructor failures are logged and do not stop the teardown.
// Freeing a handle twice returns ErrFreed.
//
// The keyval entries are resolved before any destructor runs: a
// destructor may free keyvals, and attributes registered under them
// must still be destroyed.
func (c *Comm) Free() error {
	if c.freed {
		return ErrFreed
	}
	type attr struct {
		k   int
		val interface{}
		kv  *keyval
	}
	var attrs []attr
	for k, val := range c.attrs {
		if kv, ok := c.proc.keyvalFor(k); ok && kv.del != nil {
			attrs = append(attrs, attr{k: k, val: val, kv: kv})
		}
	}
	for _, a := range attrs {
		if err := a.kv.del(c, a.k, a.val, a.kv.extra); err != nil {
			log.Warnf("attr destructor for keyval %d failed: %v", a.k, err)
		}
	}
	c.attrs = nil
	c.freed = true
	return nil
}

func (c *Comm) String() string {
	if c.IsInter() {
		return fmt.Sprintf("intercomm{ctx=%016x,rank=%d,local=%d,remote=%d}", c.ctx, c.rank, len(c.group), len(c.remote))
	}
	return fmt.Sprintf("comm{ctx=%016x,rank=%d,size=%d}", c.ctx, c.rank, len(c.group))
}
