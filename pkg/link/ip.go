package link

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"

	"github.com/google/netstack/tcpip/header"
	"golang.org/x/net/ipv4"
)

const (
	MTU          = 1400
	RIP_PROTOCOL = 200
	TTL_MAX      = 16
)

var ErrBadPacket = errors.New("bad ip packet")

func addrNumToIP(addr uint32) net.IP {
	return net.IPv4(byte(addr>>24), byte(addr>>16), byte(addr>>8), byte(addr))
}

// computeChecksum expects the checksum field of hdr to be zero.
func computeChecksum(hdr []byte) uint16 {
	return header.Checksum(hdr, 0) ^ 0xffff
}

/*
	wrap a rip datagram in the virtual ipv4 header that travels between
	interfaces: protocol RIP_PROTOCOL, ttl TTL_MAX, no options
*/
func Encapsulate(src, dst uint32, payload []byte) ([]byte, error) {
	if ipv4.HeaderLen+len(payload) > MTU {
		return nil, fmt.Errorf("payload of %d bytes exceeds mtu %d", len(payload), MTU)
	}

	hdr := ipv4.Header{
		Version:  ipv4.Version,
		Len:      ipv4.HeaderLen,
		TotalLen: ipv4.HeaderLen + len(payload),
		TTL:      TTL_MAX,
		Protocol: RIP_PROTOCOL,
		Src:      addrNumToIP(src),
		Dst:      addrNumToIP(dst),
	}
	b, err := hdr.Marshal()
	if err != nil {
		return nil, err
	}
	binary.BigEndian.PutUint16(b[10:12], computeChecksum(b))

	return append(b, payload...), nil
}

/*
	validate and strip the virtual ipv4 header; drops anything that is not
	ipv4, fails the checksum, is truncated or carries another protocol
*/
func Decapsulate(b []byte) (*ipv4.Header, []byte, error) {
	if len(b) < ipv4.HeaderLen {
		return nil, nil, fmt.Errorf("%w: %d bytes is shorter than a header", ErrBadPacket, len(b))
	}
	if version := int(b[0] >> 4); version != ipv4.Version {
		return nil, nil, fmt.Errorf("%w: ip version %d", ErrBadPacket, version)
	}

	hdr, err := ipv4.ParseHeader(b)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBadPacket, err)
	}
	if sum := header.Checksum(b[:hdr.Len], 0); sum != 0xffff {
		return nil, nil, fmt.Errorf("%w: checksum failed", ErrBadPacket)
	}
	if hdr.TotalLen < hdr.Len || hdr.TotalLen > len(b) {
		return nil, nil, fmt.Errorf("%w: total length %d of %d bytes", ErrBadPacket, hdr.TotalLen, len(b))
	}
	if hdr.Protocol != RIP_PROTOCOL {
		return nil, nil, fmt.Errorf("%w: protocol %d", ErrBadPacket, hdr.Protocol)
	}

	return hdr, b[hdr.Len:hdr.TotalLen], nil
}
