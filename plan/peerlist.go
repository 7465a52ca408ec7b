package plan

import (
	"bytes"
	"encoding/binary"
	"strings"
)

// PeerList is an ordered list of peers; the position of a peer in the
// list is its rank.
type PeerList []PeerID

func (pl PeerList) String() string {
	var parts []string
	for _, p := range pl {
		parts = append(parts, p.String())
	}
	return strings.Join(parts, ",")
}

func (pl PeerList) Bytes() []byte {
	b := &bytes.Buffer{}
	for _, p := range pl {
		binary.Write(b, binary.LittleEndian, &p)
	}
	return b.Bytes()
}

func (pl PeerList) Rank(p PeerID) (int, bool) {
	for i, q := range pl {
		if p == q {
			return i, true
		}
	}
	return -1, false
}

func (pl PeerList) Contains(p PeerID) bool {
	_, ok := pl.Rank(p)
	return ok
}

func (pl PeerList) Set() map[PeerID]struct{} {
	s := make(map[PeerID]struct{})
	for _, p := range pl {
		s[p] = struct{}{}
	}
	return s
}

func (pl PeerList) Intersection(ql PeerList) PeerList {
	s := ql.Set()
	var a PeerList
	for _, p := range pl {
		if _, ok := s[p]; ok {
			a = append(a, p)
		}
	}
	return a
}

func (pl PeerList) Disjoint(ql PeerList) bool {
	return len(pl.Intersection(ql)) == 0
}

func (pl PeerList) Eq(ql PeerList) bool {
	if len(pl) != len(ql) {
		return false
	}
	for i, p := range pl {
		if p != ql[i] {
			return false
		}
	}
	return true
}

// Less defines a deterministic total order on peer lists: element-wise
// by peer, shorter list first on a common prefix. Every process
// comparing the same two lists reaches the same verdict.
func (pl PeerList) Less(ql PeerList) bool {
	n := len(pl)
	if len(ql) < n {
		n = len(ql)
	}
	for i := 0; i < n; i++ {
		if c := pl[i].compare(ql[i]); c != 0 {
			return c < 0
		}
	}
	return len(pl) < len(ql)
}

func (pl PeerList) Clone() PeerList {
	if pl == nil {
		return nil
	}
	ql := make(PeerList, len(pl))
	copy(ql, pl)
	return ql
}

func ParsePeerList(val string) (PeerList, error) {
	var pl PeerList
	if len(val) == 0 {
		return pl, nil
	}
	for _, part := range strings.Split(val, ",") {
		p, err := ParsePeerID(part)
		if err != nil {
			return nil, err
		}
		pl = append(pl, *p)
	}
	return pl, nil
}
