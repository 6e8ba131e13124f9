package sioclient

import "fmt"

// PacketType identifies the kind of a protocol packet.
// The numeric value is the leading digit on the wire.
type PacketType int

const (
	PacketTypeConnect PacketType = iota
	PacketTypeDisconnect
	PacketTypeEvent
	PacketTypeAck
	PacketTypeError
	PacketTypeBinaryEvent
	PacketTypeBinaryAck
)

// DefaultNamespace is used when a packet carries no namespace segment.
const DefaultNamespace = "/"

var packetTypeNames = [...]string{
	PacketTypeConnect:     "connect",
	PacketTypeDisconnect:  "disconnect",
	PacketTypeEvent:       "event",
	PacketTypeAck:         "ack",
	PacketTypeError:       "error",
	PacketTypeBinaryEvent: "binary_event",
	PacketTypeBinaryAck:   "binary_ack",
}

func (t PacketType) String() string {
	if t.Valid() {
		return packetTypeNames[t]
	}
	return fmt.Sprintf("unknown(%d)", int(t))
}

// Valid reports whether t is one of the seven defined packet types.
func (t PacketType) Valid() bool {
	return t >= PacketTypeConnect && t <= PacketTypeBinaryAck
}

// IsBinary reports whether packets of this type are followed by binary attachments.
func (t PacketType) IsBinary() bool {
	return t == PacketTypeBinaryEvent || t == PacketTypeBinaryAck
}

// IsEvent reports whether the payload starts with an event name.
func (t PacketType) IsEvent() bool {
	return t == PacketTypeEvent || t == PacketTypeBinaryEvent
}

// IsAck reports whether the packet answers a previous emit.
func (t PacketType) IsAck() bool {
	return t == PacketTypeAck || t == PacketTypeBinaryAck
}

// Packet is one top-level protocol message.
type Packet struct {
	Type      PacketType
	Namespace string
	// ID is the ack id, nil when the packet neither requests nor answers an acknowledgement.
	ID *int64
	// Attachments is the number of binary frames declared by a binary packet header.
	Attachments int
	Data        []Data
}

// HasID reports whether the packet carries an ack id.
func (p *Packet) HasID() bool {
	return p.ID != nil
}

// AckID returns the ack id, or -1 when there is none.
func (p *Packet) AckID() int64 {
	if p.ID == nil {
		return -1
	}
	return *p.ID
}

// EventName returns the leading event name of an Event or BinaryEvent packet.
func (p *Packet) EventName() (string, bool) {
	if !p.Type.IsEvent() || len(p.Data) == 0 {
		return "", false
	}
	name, ok := p.Data[0].(String)
	return string(name), ok
}

// Args returns the payload without the event name for event packets,
// and the whole payload otherwise.
func (p *Packet) Args() []Data {
	if _, ok := p.EventName(); ok {
		return p.Data[1:]
	}
	return p.Data
}

// NamespaceOrDefault returns the packet namespace, substituting DefaultNamespace for "".
func (p *Packet) NamespaceOrDefault() string {
	if p.Namespace == "" {
		return DefaultNamespace
	}
	return p.Namespace
}

// Int64Ptr is a small helper for building packets with ack ids.
func Int64Ptr(v int64) *int64 {
	return &v
}
