package comm

import (
	"errors"

	"github.com/gompi/gompi/plan"
)

var errNotMember = errors.New("self not in either group")

// CreateInter builds an inter-communicator between two disjoint
// subgroups of an intra-communicator. Collective over c: every member
// of both groups must call it with the same pair of groups (in either
// order); callers outside both groups get (nil, nil). The caller's own
// side becomes the local group of the result.
func (c *Comm) CreateInter(a, b plan.PeerList) (*Comm, error) {
	if c.freed {
		return nil, ErrFreed
	}
	if c.IsInter() {
		return nil, errNotIntraComm
	}
	if !a.Disjoint(b) {
		return nil, errors.New("groups overlap")
	}
	for _, p := range append(a.Clone(), b...) {
		if !c.group.Contains(p) {
			return nil, errNotSubGroup
		}
	}
	// Both sides must derive the same context ID, so the pair is
	// hashed in a canonical order.
	lo, hi := a, b
	if hi.Less(lo) {
		lo, hi = hi, lo
	}
	ctx := c.nextCtx(opInter, lo, hi)
	local, remote := a, b
	if !local.Contains(c.proc.self) {
		local, remote = b, a
	}
	rank, ok := local.Rank(c.proc.self)
	if !ok {
		return nil, nil
	}
	return newComm(c.proc, local.Clone(), remote.Clone(), rank, ctx), nil
}

// Merge flattens an inter-communicator into a single
// intra-communicator spanning both groups. Collective over both groups.
//
// first asks for this process's group to be ordered before the remote
// one. The two group leaders exchange their flags: if exactly one side
// asked to go first it wins; when both sides pass the same value the
// tie is broken by the deterministic order on peer lists, so every
// process of both groups sees the same merged ranking.
func (c *Comm) Merge(first bool) (*Comm, error) {
	if c.freed {
		return nil, ErrFreed
	}
	if !c.IsInter() {
		return nil, errNotInterComm
	}
	seq := c.seq
	ctx := c.nextCtx(opMerge, canonicalPair(c.group, c.remote)...)
	name := mergeName(c.ctx, seq)
	weFirst, err := c.resolveOrder(first, name)
	if err != nil {
		return nil, err
	}
	var merged plan.PeerList
	if weFirst {
		merged = append(c.group.Clone(), c.remote...)
	} else {
		merged = append(c.remote.Clone(), c.group...)
	}
	rank, ok := merged.Rank(c.proc.self)
	if !ok {
		return nil, errNotMember
	}
	return newComm(c.proc, merged, nil, rank, ctx), nil
}

func canonicalPair(a, b plan.PeerList) []plan.PeerList {
	if b.Less(a) {
		return []plan.PeerList{b, a}
	}
	return []plan.PeerList{a, b}
}

// resolveOrder agrees on the merge order across both groups: the
// leaders exchange flags and fan the verdict out to their own members.
func (c *Comm) resolveOrder(first bool, name string) (bool, error) {
	if c.rank != 0 {
		m := c.proc.mailbox.Recv(c.group[0].WithName(name))
		return len(m.Data) == 1 && m.Data[0] != 0, nil
	}
	if err := c.proc.client.Send(c.remote[0].WithName(name), []byte{flagByte(first)}); err != nil {
		return false, err
	}
	m := c.proc.mailbox.Recv(c.remote[0].WithName(name))
	theirs := len(m.Data) == 1 && m.Data[0] != 0
	var weFirst bool
	switch {
	case first && !theirs:
		weFirst = true
	case theirs && !first:
		weFirst = false
	default:
		weFirst = c.group.Less(c.remote)
	}
	for _, p := range c.group[1:] {
		if err := c.proc.client.Send(p.WithName(name), []byte{flagByte(weFirst)}); err != nil {
			return false, err
		}
	}
	return weFirst, nil
}

func flagByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
