package plan

import (
	"net"
	"strconv"
)

// PeerID is the unique identifier of a peer process.
type PeerID NetAddr

func (p PeerID) String() string {
	return NetAddr(p).String()
}

func (p PeerID) ColocatedWith(q PeerID) bool {
	return NetAddr(p).ColocatedWith(NetAddr(q))
}

func (p PeerID) WithName(name string) Addr {
	return NetAddr(p).WithName(name)
}

// ListenAddr is the address the peer's server should bind.
func (p PeerID) ListenAddr() NetAddr {
	return NetAddr(p)
}

func ParsePeerID(val string) (*PeerID, error) {
	host, pt, err := net.SplitHostPort(val)
	if err != nil {
		return nil, err
	}
	ipv4, err := ParseIPv4(host)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(pt)
	if err != nil {
		return nil, err
	}
	if int(uint16(port)) != port {
		return nil, errInvalidPort
	}
	return &PeerID{
		IPv4: ipv4,
		Port: uint16(port),
	}, nil
}

// compare defines a total order on peers, used to break ties when two
// process groups must be ordered deterministically.
func (p PeerID) compare(q PeerID) int {
	if p.IPv4 != q.IPv4 {
		if p.IPv4 < q.IPv4 {
			return -1
		}
		return 1
	}
	if p.Port != q.Port {
		if p.Port < q.Port {
			return -1
		}
		return 1
	}
	return 0
}
