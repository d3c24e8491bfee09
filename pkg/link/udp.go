package link

import (
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/ipv4"
)

// UDPConn is the IPv4 UDP socket every link interface of a node shares.
type UDPConn struct {
	raw *net.UDPConn
	pc4 *ipv4.PacketConn
}

// ListenUDP binds to bindIP:port using IPv4.
func ListenUDP(bindIP string, port int) (*UDPConn, error) {
	laddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", bindIP, port))
	if err != nil {
		return nil, err
	}
	raw, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, err
	}
	return NewUDPConn(raw), nil
}

func NewUDPConn(raw *net.UDPConn) *UDPConn {
	return &UDPConn{raw: raw, pc4: ipv4.NewPacketConn(raw)}
}

func (u *UDPConn) Close() error { return u.raw.Close() }

// ReadFrom reads one datagram. Deadline should be set via SetReadDeadline.
func (u *UDPConn) ReadFrom(buf []byte) (int, *net.UDPAddr, error) {
	n, _, raddr, err := u.pc4.ReadFrom(buf)
	if err != nil {
		return 0, nil, err
	}
	remote, ok := raddr.(*net.UDPAddr)
	if !ok {
		return 0, nil, fmt.Errorf("unexpected remote address type %T", raddr)
	}
	return n, remote, nil
}

// WriteTo sends pkt to dst. Only IPv4 destinations are supported.
func (u *UDPConn) WriteTo(pkt []byte, dst *net.UDPAddr) (int, error) {
	if dst == nil || dst.IP == nil {
		return 0, errors.New("nil dst")
	}
	ip4 := dst.IP.To4()
	if ip4 == nil {
		return 0, errors.New("ipv6 dst not supported")
	}
	return u.pc4.WriteTo(pkt, nil, &net.UDPAddr{IP: ip4, Port: dst.Port})
}

func (u *UDPConn) SetReadDeadline(t time.Time) error { return u.raw.SetReadDeadline(t) }

func (u *UDPConn) LocalAddr() *net.UDPAddr {
	addr, _ := u.raw.LocalAddr().(*net.UDPAddr)
	return addr
}
