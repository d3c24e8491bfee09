package rip

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

type Command uint8

const (
	REQUEST  Command = 1
	RESPONSE Command = 2
)

func (c Command) String() string {
	switch c {
	case REQUEST:
		return "request"
	case RESPONSE:
		return "response"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

var (
	ErrMalformed      = errors.New("malformed rip message")
	ErrBadLength      = fmt.Errorf("%w: bad length", ErrMalformed)
	ErrBadCommand     = fmt.Errorf("%w: bad command", ErrMalformed)
	ErrTooManyEntries = fmt.Errorf("%w: too many entries", ErrMalformed)
	ErrBadMetric      = fmt.Errorf("%w: metric out of range", ErrMalformed)
)

var LayerTypeRIP = gopacket.RegisterLayerType(1520, gopacket.LayerTypeMetadata{Name: "RIP", Decoder: gopacket.DecodeFunc(decodeRIP)})

/*
RIP message

	 0                   1                   2                   3
	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	|  command (1)  |  version (1)  |       must be zero (2)        |
	+---------------+---------------+-------------------------------+
	| Address Family Identifier (2) |        Route Tag (2)          |
	+-------------------------------+-------------------------------+
	|                         IP Address (4)                        |
	+---------------------------------------------------------------+
	|                         Subnet Mask (4)                       |
	+---------------------------------------------------------------+
	|                         Next Hop (4)                          |
	+---------------------------------------------------------------+
	|                         Metric (4)                            |
	+---------------------------------------------------------------+

The entry block repeats up to MAX_ENTRIES times.
*/
type RIPEntry struct {
	AddressFamily uint16
	RouteTag      uint16
	Address       uint32
	Mask          uint32
	NextHop       uint32
	Metric        uint32
}

func (e RIPEntry) Destination() Destination {
	return Destination{Address: e.Address, Mask: e.Mask}
}

type RIPMessage struct {
	layers.BaseLayer
	Command Command
	Version uint8
	Entries []RIPEntry
}

func NewResponse(entries []RIPEntry) *RIPMessage {
	return &RIPMessage{Command: RESPONSE, Version: RIP_VERSION, Entries: entries}
}

func NewRequest(entries []RIPEntry) *RIPMessage {
	return &RIPMessage{Command: REQUEST, Version: RIP_VERSION, Entries: entries}
}

// NewWholeTableRequest builds the request asking a neighbor for its entire table:
// a single entry with address family 0 and metric INFINITY.
func NewWholeTableRequest() *RIPMessage {
	return NewRequest([]RIPEntry{{Metric: INFINITY}})
}

// IsWholeTableRequest reports whether m is a request for the entire table rather
// than for specific destinations.
func (m *RIPMessage) IsWholeTableRequest() bool {
	return m.Command == REQUEST && len(m.Entries) == 1 && m.Entries[0].Metric == INFINITY
}

func (m *RIPMessage) LayerType() gopacket.LayerType { return LayerTypeRIP }

func (m *RIPMessage) CanDecode() gopacket.LayerClass { return LayerTypeRIP }

func (m *RIPMessage) NextLayerType() gopacket.LayerType { return gopacket.LayerTypeZero }

func (m *RIPMessage) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	if m.Command != REQUEST && m.Command != RESPONSE {
		return fmt.Errorf("%w: %d", ErrBadCommand, m.Command)
	}
	if len(m.Entries) > MAX_ENTRIES {
		return fmt.Errorf("%w: %d", ErrTooManyEntries, len(m.Entries))
	}

	bytes, err := b.PrependBytes(HEADER_SIZE + len(m.Entries)*ENTRY_SIZE)
	if err != nil {
		return err
	}
	bytes[0] = uint8(m.Command)
	bytes[1] = m.Version
	bytes[2], bytes[3] = 0, 0

	be := binary.BigEndian
	for i, e := range m.Entries {
		off := HEADER_SIZE + i*ENTRY_SIZE
		be.PutUint16(bytes[off:off+2], e.AddressFamily)
		be.PutUint16(bytes[off+2:off+4], e.RouteTag)
		be.PutUint32(bytes[off+4:off+8], e.Address)
		be.PutUint32(bytes[off+8:off+12], e.Mask)
		be.PutUint32(bytes[off+12:off+16], e.NextHop)
		be.PutUint32(bytes[off+16:off+20], e.Metric)
	}
	return nil
}

func (m *RIPMessage) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < HEADER_SIZE || (len(data)-HEADER_SIZE)%ENTRY_SIZE != 0 {
		return fmt.Errorf("%w: %d bytes", ErrBadLength, len(data))
	}
	cmd := Command(data[0])
	if cmd != REQUEST && cmd != RESPONSE {
		return fmt.Errorf("%w: %d", ErrBadCommand, data[0])
	}
	numEntries := (len(data) - HEADER_SIZE) / ENTRY_SIZE
	if numEntries > MAX_ENTRIES {
		return fmt.Errorf("%w: %d", ErrTooManyEntries, numEntries)
	}

	entries := make([]RIPEntry, 0, numEntries)
	rd := func(off int) uint32 { return binary.BigEndian.Uint32(data[off : off+4]) }
	for i := 0; i < numEntries; i++ {
		off := HEADER_SIZE + i*ENTRY_SIZE
		e := RIPEntry{
			AddressFamily: binary.BigEndian.Uint16(data[off : off+2]),
			RouteTag:      binary.BigEndian.Uint16(data[off+2 : off+4]),
			Address:       rd(off + 4),
			Mask:          rd(off + 8),
			NextHop:       rd(off + 12),
			Metric:        rd(off + 16),
		}
		if e.Metric < 1 || e.Metric > INFINITY {
			return fmt.Errorf("%w: entry %d has metric %d", ErrBadMetric, i, e.Metric)
		}
		entries = append(entries, e)
	}

	m.Command = cmd
	m.Version = data[1]
	m.Entries = entries
	m.Contents = data
	m.Payload = nil
	return nil
}

func decodeRIP(data []byte, p gopacket.PacketBuilder) error {
	msg := &RIPMessage{}
	if err := msg.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(msg)
	return nil
}

// Marshal serializes the message into a single datagram.
func (m *RIPMessage) Marshal() ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	if err := m.SerializeTo(buf, gopacket.SerializeOptions{}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalRIPMessage parses a datagram. Every failure wraps ErrMalformed.
func UnmarshalRIPMessage(b []byte) (*RIPMessage, error) {
	msg := &RIPMessage{}
	if err := msg.DecodeFromBytes(b, gopacket.NilDecodeFeedback); err != nil {
		return nil, err
	}
	return msg, nil
}

// ChunkEntries splits entries into groups that each fit in one datagram.
func ChunkEntries(entries []RIPEntry) [][]RIPEntry {
	chunks := make([][]RIPEntry, 0, (len(entries)+MAX_ENTRIES-1)/MAX_ENTRIES)
	for len(entries) > MAX_ENTRIES {
		chunks = append(chunks, entries[:MAX_ENTRIES:MAX_ENTRIES])
		entries = entries[MAX_ENTRIES:]
	}
	if len(entries) > 0 {
		chunks = append(chunks, entries)
	}
	return chunks
}

// malformedReason maps a decode error to a short metrics label.
func malformedReason(err error) string {
	switch {
	case errors.Is(err, ErrBadLength):
		return "bad_length"
	case errors.Is(err, ErrBadCommand):
		return "bad_command"
	case errors.Is(err, ErrTooManyEntries):
		return "too_many_entries"
	case errors.Is(err, ErrBadMetric):
		return "bad_metric"
	default:
		return "parse_error"
	}
}
