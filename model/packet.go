package model

import "sync/atomic"

var packetUID atomic.Uint64

// Packet is an opaque frame carried by a channel. Payload bytes are never
// interpreted by the channel; each delivery gets its own copy.
type Packet struct {
	UID     uint64
	Payload []byte
}

// NewPacket wraps payload in a packet with a fresh UID. The payload slice
// is retained, not copied.
func NewPacket(payload []byte) *Packet {
	return &Packet{UID: packetUID.Add(1), Payload: payload}
}

// Len returns the frame size in bytes.
func (p *Packet) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Payload)
}

// Copy returns a deep copy that keeps the UID, so traces of one
// transmission can be correlated across receivers.
func (p *Packet) Copy() *Packet {
	if p == nil {
		return nil
	}
	cp := &Packet{UID: p.UID}
	if p.Payload != nil {
		cp.Payload = make([]byte, len(p.Payload))
		copy(cp.Payload, p.Payload)
	}
	return cp
}
