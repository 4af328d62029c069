package model

import (
	"fmt"
	"sync/atomic"
)

// Address is a 48-bit link-layer address.
type Address [6]byte

// BroadcastAddress never matches an attached device.
var BroadcastAddress = Address{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

var addressCounter atomic.Uint64

// AllocateAddress hands out process-unique addresses in sequence,
// starting at 00:00:00:00:00:01.
func AllocateAddress() Address {
	n := addressCounter.Add(1)
	var a Address
	for i := 5; i >= 0; i-- {
		a[i] = byte(n)
		n >>= 8
	}
	return a
}

// IsBroadcast reports whether a is the all-ones address.
func (a Address) IsBroadcast() bool { return a == BroadcastAddress }

// IsZero reports whether a was never assigned.
func (a Address) IsZero() bool { return a == Address{} }

func (a Address) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}
