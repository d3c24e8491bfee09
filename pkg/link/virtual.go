package link

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"ripd/pkg/rip"
)

var ErrUnknownNeighbor = errors.New("unknown neighbor")

var _ rip.Transport = (*VirtualLink)(nil)

// VirtualLink carries RIP datagrams between virtual IPs over a shared UDP socket.
// It implements rip.Transport.
type VirtualLink struct {
	conn       *UDPConn
	ifaces     []*LinkInterface
	byNeighbor map[uint32]*LinkInterface
	byUDPAddr  map[netip.AddrPort]*LinkInterface
	buf        []byte
}

func NewVirtualLink(conn *UDPConn, ifaces []*LinkInterface) (*VirtualLink, error) {
	l := &VirtualLink{
		conn:       conn,
		ifaces:     ifaces,
		byNeighbor: make(map[uint32]*LinkInterface, len(ifaces)),
		byUDPAddr:  make(map[netip.AddrPort]*LinkInterface, len(ifaces)),
		buf:        make([]byte, MTU),
	}
	for _, iface := range ifaces {
		if _, dup := l.byNeighbor[iface.DestIPAddress]; dup {
			return nil, fmt.Errorf("duplicate neighbor %s", rip.AddrNumToIP(iface.DestIPAddress))
		}
		key := udpKey(iface.UDPAddr)
		if _, dup := l.byUDPAddr[key]; dup {
			return nil, fmt.Errorf("duplicate neighbor udp address %s", key)
		}
		l.byNeighbor[iface.DestIPAddress] = iface
		l.byUDPAddr[key] = iface
	}
	return l, nil
}

func udpKey(addr *net.UDPAddr) netip.AddrPort {
	ap := addr.AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

func (l *VirtualLink) Interfaces() []*LinkInterface { return l.ifaces }

// Neighbors returns the virtual address of the neighbor on every interface.
func (l *VirtualLink) Neighbors() []rip.Peer {
	peers := make([]rip.Peer, 0, len(l.ifaces))
	for _, iface := range l.ifaces {
		peers = append(peers, rip.Peer{Addr: iface.DestIPAddress, Port: iface.UDPAddr.Port})
	}
	return peers
}

// LocalAddrs returns the virtual address of this node on every interface.
func (l *VirtualLink) LocalAddrs() []uint32 {
	addrs := make([]uint32, 0, len(l.ifaces))
	for _, iface := range l.ifaces {
		addrs = append(addrs, iface.HostIPAddress)
	}
	return addrs
}

// Send delivers b to the neighbor whose virtual address is dst.Addr.
func (l *VirtualLink) Send(dst rip.Peer, b []byte) error {
	iface, ok := l.byNeighbor[dst.Addr]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNeighbor, dst)
	}
	return iface.Send(l.conn, b)
}

// Receive waits up to timeout for one datagram from a known neighbor and
// copies its RIP payload into buf.
func (l *VirtualLink) Receive(buf []byte, timeout time.Duration) (int, rip.Peer, error) {
	if err := l.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, rip.Peer{}, err
	}
	n, remote, err := l.conn.ReadFrom(l.buf)
	if err != nil {
		return 0, rip.Peer{}, err
	}

	iface, ok := l.byUDPAddr[udpKey(remote)]
	if !ok {
		return 0, rip.Peer{}, fmt.Errorf("%w: udp %s", ErrUnknownNeighbor, remote)
	}

	hdr, payload, err := Decapsulate(l.buf[:n])
	if err != nil {
		return 0, rip.Peer{}, err
	}
	dst, _ := rip.IPToAddrNum(hdr.Dst)
	if dst != iface.HostIPAddress {
		return 0, rip.Peer{}, fmt.Errorf("%w: addressed to %s on interface %d", ErrBadPacket, hdr.Dst, iface.InterfaceNumber)
	}
	src, _ := rip.IPToAddrNum(hdr.Src)

	return copy(buf, payload), rip.Peer{Addr: src, Port: remote.Port}, nil
}

func (l *VirtualLink) Close() error { return l.conn.Close() }
