// Package trace turns channel, device and mobility events into flat
// records and writes them to CSV or JSON Lines files.
package trace

import (
	"time"

	"github.com/signalsfoundry/leo-simulator/core"
)

// Kind identifies the event a Record came from.
type Kind string

const (
	KindTxRx   Kind = "txrx"
	KindDrop   Kind = "drop"
	KindLink   Kind = "link"
	KindCourse Kind = "course"
	KindProbe  Kind = "probe"
)

// Record is one trace row.
type Record struct {
	Kind      Kind          `json:"kind"`
	Time      time.Time     `json:"time"`
	Channel   string        `json:"channel,omitempty"`
	Src       string        `json:"src,omitempty"`
	Dst       string        `json:"dst,omitempty"`
	PacketUID uint64        `json:"packet_uid,omitempty"`
	Bytes     int           `json:"bytes,omitempty"`
	Delay     time.Duration `json:"delay_ns,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Node      string        `json:"node,omitempty"`
	Position  *core.Vec3    `json:"position,omitempty"`
	Seq       uint32        `json:"seq,omitempty"`
}

// Sink persists records.
type Sink interface {
	Write(Record) error
	Close() error
}
