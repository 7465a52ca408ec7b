package comm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gompi/gompi/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func worldPeers(ps []*Proc) plan.PeerList {
	var pl plan.PeerList
	for _, p := range ps {
		pl = append(pl, p.ID())
	}
	return pl
}

func TestCreateInter(t *testing.T) {
	ps := startWorld(t, 4)
	pl := worldPeers(ps)
	a, b := pl[:1], pl[1:]

	ics := make([]*Comm, 4)
	runAll(t, ps, func(rank int, p *Proc) error {
		ic, err := p.World().CreateInter(a, b)
		if err != nil {
			return err
		}
		ics[rank] = ic
		return nil
	})

	require.NotNil(t, ics[0])
	assert.True(t, ics[0].IsInter())
	assert.Equal(t, 1, ics[0].Size())
	assert.Equal(t, 3, ics[0].RemoteSize())
	assert.Equal(t, 0, ics[0].Rank())
	for i := 1; i < 4; i++ {
		require.NotNil(t, ics[i])
		assert.Equal(t, 3, ics[i].Size())
		assert.Equal(t, 1, ics[i].RemoteSize())
		assert.Equal(t, i-1, ics[i].Rank())
		// both sides agree on the context regardless of argument order
		assert.Equal(t, ics[0].ctx, ics[i].ctx)
	}

	// ranks address the remote group
	runAll(t, ps, func(rank int, p *Proc) error {
		ic := ics[rank]
		if rank == 0 {
			for r := 0; r < 3; r++ {
				if err := ic.Send([]byte{byte(r)}, r, 1); err != nil {
					return err
				}
			}
			return nil
		}
		buf, err := ic.Recv(0, 1)
		if err != nil {
			return err
		}
		if len(buf) != 1 || int(buf[0]) != rank-1 {
			return errors.New("wrong payload")
		}
		return nil
	})

	// argument order must not matter
	swapped := make([]*Comm, 4)
	runAll(t, ps, func(rank int, p *Proc) error {
		args := [2]plan.PeerList{a, b}
		if rank%2 == 1 {
			args[0], args[1] = b, a
		}
		ic, err := p.World().CreateInter(args[0], args[1])
		if err != nil {
			return err
		}
		swapped[rank] = ic
		return nil
	})
	for i := 1; i < 4; i++ {
		assert.Equal(t, swapped[0].ctx, swapped[i].ctx)
	}
}

func TestCreateInterRejectsOverlap(t *testing.T) {
	ps := startWorld(t, 2)
	pl := worldPeers(ps)
	_, err := ps[0].World().CreateInter(pl[:1], pl)
	assert.Error(t, err)
}

func interWorld(t *testing.T, ps []*Proc, nA int) []*Comm {
	t.Helper()
	pl := worldPeers(ps)
	a, b := pl[:nA], pl[nA:]
	ics := make([]*Comm, len(ps))
	runAll(t, ps, func(rank int, p *Proc) error {
		ic, err := p.World().CreateInter(a, b)
		if err != nil {
			return err
		}
		ics[rank] = ic
		return nil
	})
	return ics
}

// Merge with exactly one side asking to go first: that side wins.
func TestMergeOneSideFirst(t *testing.T) {
	ps := startWorld(t, 4)
	ics := interWorld(t, ps, 1)

	merged := make([]*Comm, 4)
	runAll(t, ps, func(rank int, p *Proc) error {
		ic := ics[rank]
		m, err := ic.Merge(ic.Size() > ic.RemoteSize())
		if err != nil {
			return err
		}
		merged[rank] = m
		return nil
	})

	// the size-3 side asked to go first, so its members hold ranks 0..2
	assert.Equal(t, 3, merged[0].Rank())
	for i := 1; i < 4; i++ {
		assert.Equal(t, i-1, merged[i].Rank())
		assert.Equal(t, merged[0].ctx, merged[i].ctx)
	}
	for _, m := range merged {
		assert.False(t, m.IsInter())
		assert.Equal(t, 4, m.Size())
	}

	runAll(t, ps, func(rank int, p *Proc) error {
		m := merged[rank]
		if m.Rank() == 0 {
			return m.Send([]byte(`flat`), 3, 0)
		}
		if m.Rank() != 3 {
			return nil
		}
		buf, err := m.Recv(0, 0)
		if err != nil {
			return err
		}
		if string(buf) != `flat` {
			return errors.New("wrong payload")
		}
		return nil
	})
}

// Merge with both sides passing the same flag: the deterministic order
// on the two groups breaks the tie identically everywhere.
func TestMergeTie(t *testing.T) {
	ps := startWorld(t, 4)
	pl := worldPeers(ps)
	a, b := pl[:2], pl[2:]
	ics := interWorld(t, ps, 2)

	merged := make([]*Comm, 4)
	runAll(t, ps, func(rank int, p *Proc) error {
		m, err := ics[rank].Merge(false)
		if err != nil {
			return err
		}
		merged[rank] = m
		return nil
	})

	want := append(b.Clone(), a...)
	if a.Less(b) {
		want = append(a.Clone(), b...)
	}
	for rank, m := range merged {
		wantRank, ok := want.Rank(ps[rank].ID())
		require.True(t, ok)
		assert.Equal(t, wantRank, m.Rank(), fmt.Sprintf("rank %d", rank))
		assert.Equal(t, merged[0].ctx, m.ctx)
	}
}

// A collective Dup on an inter-communicator must give both sides the
// same fresh context ID, whichever side's group hashes first locally.
func TestInterDupCtx(t *testing.T) {
	ps := startWorld(t, 2)
	ics := interWorld(t, ps, 1)

	dups := make([]*Comm, 2)
	runAll(t, ps, func(rank int, p *Proc) error {
		d, err := ics[rank].Dup()
		if err != nil {
			return err
		}
		dups[rank] = d
		return nil
	})
	assert.Equal(t, dups[0].ctx, dups[1].ctx)
	assert.True(t, dups[0].IsInter())
	assert.NotEqual(t, ics[0].ctx, dups[0].ctx)

	runAll(t, ps, func(rank int, p *Proc) error {
		d := dups[rank]
		if rank == 0 {
			return d.Send([]byte(`dup`), 0, 0)
		}
		buf, err := d.Recv(0, 0)
		if err != nil {
			return err
		}
		if string(buf) != `dup` {
			return errors.New("wrong payload")
		}
		return nil
	})
}

func TestMergeRequiresInter(t *testing.T) {
	ps := startWorld(t, 1)
	_, err := ps[0].World().Merge(true)
	assert.Equal(t, errNotInterComm, err)
}
