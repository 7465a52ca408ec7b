package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPeer(host string, port uint16) PeerID {
	return PeerID{IPv4: MustParseIPv4(host), Port: port}
}

func TestPeerListRank(t *testing.T) {
	pl := PeerList{
		testPeer(`127.0.0.1`, 10000),
		testPeer(`127.0.0.1`, 10001),
		testPeer(`192.168.1.10`, 10000),
	}
	for i, p := range pl {
		rank, ok := pl.Rank(p)
		assert.True(t, ok)
		assert.Equal(t, i, rank)
	}
	_, ok := pl.Rank(testPeer(`127.0.0.1`, 9999))
	assert.False(t, ok)
}

func TestPeerListString(t *testing.T) {
	pl := PeerList{
		testPeer(`127.0.0.1`, 10000),
		testPeer(`127.0.0.1`, 10001),
	}
	ql, err := ParsePeerList(pl.String())
	require.NoError(t, err)
	assert.True(t, pl.Eq(ql))

	empty, err := ParsePeerList("")
	require.NoError(t, err)
	assert.Equal(t, 0, len(empty))
}

func TestPeerListClone(t *testing.T) {
	var nilList PeerList
	assert.Nil(t, nilList.Clone())

	pl := PeerList{testPeer(`127.0.0.1`, 10000)}
	ql := pl.Clone()
	ql[0].Port = 9
	assert.Equal(t, uint16(10000), pl[0].Port)
}

func TestPeerListDisjoint(t *testing.T) {
	a := PeerList{testPeer(`127.0.0.1`, 10000), testPeer(`127.0.0.1`, 10001)}
	b := PeerList{testPeer(`127.0.0.1`, 10002)}
	c := PeerList{testPeer(`127.0.0.1`, 10001)}
	assert.True(t, a.Disjoint(b))
	assert.False(t, a.Disjoint(c))
	assert.True(t, a.Intersection(c).Eq(c))
}

func TestPeerListLess(t *testing.T) {
	a := PeerList{testPeer(`127.0.0.1`, 10000)}
	b := PeerList{testPeer(`127.0.0.1`, 10001)}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.False(t, a.Less(a))

	// shorter list wins on a common prefix
	ab := append(a.Clone(), b...)
	assert.True(t, a.Less(ab))
	assert.False(t, ab.Less(a))

	// the IPv4 dominates the port
	c := PeerList{testPeer(`10.0.0.1`, 60000)}
	assert.True(t, c.Less(a))
}
