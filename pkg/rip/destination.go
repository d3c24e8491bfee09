package rip

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"net"
)

// Destination is the key of a routing table entry: a network address and its mask.
type Destination struct {
	Address uint32
	Mask    uint32
}

// convert a uint32 ip addr to its string version
func AddrNumToIP(addr uint32) string {
	return net.IPv4(byte(addr>>24), byte(addr>>16), byte(addr>>8), byte(addr)).String()
}

// IPToAddrNum converts an IPv4 address to its uint32 form. It returns false for
// anything that is not IPv4.
func IPToAddrNum(ip net.IP) (uint32, bool) {
	ip4 := ip.To4()
	if ip4 == nil {
		return 0, false
	}
	return binary.BigEndian.Uint32(ip4), true
}

// ParseDestination parses a CIDR such as "192.168.1.0/24" or a bare address,
// which is taken as a host route.
func ParseDestination(s string) (Destination, error) {
	if ip := net.ParseIP(s); ip != nil {
		addr, ok := IPToAddrNum(ip)
		if !ok {
			return Destination{}, fmt.Errorf("not an ipv4 address: %s", s)
		}
		return Destination{Address: addr, Mask: 0xffffffff}, nil
	}

	_, ipNet, err := net.ParseCIDR(s)
	if err != nil {
		return Destination{}, err
	}
	addr, ok := IPToAddrNum(ipNet.IP)
	if !ok || len(ipNet.Mask) != net.IPv4len {
		return Destination{}, fmt.Errorf("not an ipv4 network: %s", s)
	}
	return Destination{Address: addr, Mask: binary.BigEndian.Uint32(ipNet.Mask)}, nil
}

// PrefixLen returns the number of leading one bits in the mask.
func (d Destination) PrefixLen() int {
	return bits.LeadingZeros32(^d.Mask)
}

func (d Destination) String() string {
	return fmt.Sprintf("%s/%d", AddrNumToIP(d.Address), d.PrefixLen())
}

func (d Destination) less(o Destination) bool {
	if d.Address != o.Address {
		return d.Address < o.Address
	}
	return d.Mask < o.Mask
}
