package link

import (
	"fmt"
	"net"

	"ripd/pkg/rip"
)

// LinkInterface is one point-to-point virtual link to a neighbor. All interfaces
// of a node share the node's UDP socket; the neighbor is told apart by its UDP
// address.
type LinkInterface struct {
	InterfaceNumber int
	HostIPAddress   uint32 // this is us
	DestIPAddress   uint32 // this is the addr of the neighbor connected to the interface

	UDPAddr *net.UDPAddr
}

/*
	initialize the interface and resolve the udp address of the neighbor on
	the other side
*/
func NewLinkInterface(num int, hostIP, destIP uint32, addr string, port int) (*LinkInterface, error) {
	udpAddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", addr, port))
	if err != nil {
		return nil, err
	}
	return &LinkInterface{
		InterfaceNumber: num,
		HostIPAddress:   hostIP,
		DestIPAddress:   destIP,
		UDPAddr:         udpAddr,
	}, nil
}

/*
	encapsulate a rip datagram and send it to the neighbor
*/
func (c *LinkInterface) Send(conn *UDPConn, payload []byte) error {
	b, err := Encapsulate(c.HostIPAddress, c.DestIPAddress, payload)
	if err != nil {
		return err
	}
	_, err = conn.WriteTo(b, c.UDPAddr)
	return err
}

func (c *LinkInterface) String() string {
	return fmt.Sprintf("%d: %s -> %s (%s)", c.InterfaceNumber, rip.AddrNumToIP(c.HostIPAddress), rip.AddrNumToIP(c.DestIPAddress), c.UDPAddr)
}
