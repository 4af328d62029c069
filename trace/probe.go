package trace

import (
	"encoding/binary"
	"errors"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/leo-simulator/core"
	"github.com/signalsfoundry/leo-simulator/model"
	"github.com/signalsfoundry/leo-simulator/timectrl"
)

// ProbeHeaderLen is the flow id (4 bytes), the sequence number (4 bytes)
// and the send time in nanoseconds since the probe's origin (8 bytes).
const ProbeHeaderLen = 16

// ErrShortProbe is returned when a payload is too short to hold a header.
var ErrShortProbe = errors.New("payload shorter than probe header")

var probeFlowID atomic.Uint32

// ProbeHeader is the prefix of every probe payload. Flow tells the probes
// sharing a receiver apart.
type ProbeHeader struct {
	Flow   uint32
	Seq    uint32
	SentAt time.Duration
}

// Sample is one probe packet seen at a receiver.
type Sample struct {
	Context    string
	Seq        uint32
	SentAt     time.Duration // since the probe was created
	ReceivedAt time.Time
	Delay      time.Duration
}

// EncodeProbe writes h into a payload of size bytes (at least the header
// length).
func EncodeProbe(h ProbeHeader, size int) []byte {
	if size < ProbeHeaderLen {
		size = ProbeHeaderLen
	}
	buf := make([]byte, size)
	binary.BigEndian.PutUint32(buf[0:4], h.Flow)
	binary.BigEndian.PutUint32(buf[4:8], h.Seq)
	binary.BigEndian.PutUint64(buf[8:16], uint64(h.SentAt))
	return buf
}

// DecodeProbe reads the header written by EncodeProbe.
func DecodeProbe(payload []byte) (ProbeHeader, error) {
	if len(payload) < ProbeHeaderLen {
		return ProbeHeader{}, ErrShortProbe
	}
	return ProbeHeader{
		Flow:   binary.BigEndian.Uint32(payload[0:4]),
		Seq:    binary.BigEndian.Uint32(payload[4:8]),
		SentAt: time.Duration(binary.BigEndian.Uint64(payload[8:16])),
	}, nil
}

// ProbeConfig configures a DelayProbe.
type ProbeConfig struct {
	Interval   time.Duration
	MaxPackets int
	PacketSize int
}

// DelayProbe sends sequence-numbered, timestamped packets from one device
// at a fixed interval and measures one-way delay where they arrive.
type DelayProbe struct {
	cfg    ProbeConfig
	flow   uint32
	sched  timectrl.EventScheduler
	origin time.Time
	src    *core.NetDevice
	dst    model.Address

	sent     int
	received map[uint32]bool
	samples  []func(Sample)
	pending  string
}

// NewDelayProbe returns a probe sending from src to dst.
func NewDelayProbe(sched timectrl.EventScheduler, src *core.NetDevice, dst model.Address, cfg ProbeConfig) (*DelayProbe, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("probe interval must be > 0")
	}
	if cfg.MaxPackets <= 0 {
		return nil, errors.New("probe max packets must be > 0")
	}
	return &DelayProbe{
		cfg:      cfg,
		flow:     probeFlowID.Add(1),
		sched:    sched,
		origin:   sched.Now(),
		src:      src,
		dst:      dst,
		received: make(map[uint32]bool),
	}, nil
}

// Flow returns the id carried in this probe's headers.
func (p *DelayProbe) Flow() uint32 { return p.flow }

// OnSample registers a callback for every received probe.
func (p *DelayProbe) OnSample(fn func(Sample)) { p.samples = append(p.samples, fn) }

// Listen records probes arriving at dev, labelled with context. Frames of
// other flows are ignored.
func (p *DelayProbe) Listen(dev *core.NetDevice, context string) {
	dev.OnMacRx(func(pkt *model.Packet) {
		h, err := DecodeProbe(pkt.Payload)
		if err != nil || h.Flow != p.flow || int(h.Seq) >= p.sent {
			return
		}
		now := p.sched.Now()
		s := Sample{Context: context, Seq: h.Seq, SentAt: h.SentAt, ReceivedAt: now, Delay: now.Sub(p.origin) - h.SentAt}
		p.received[h.Seq] = true
		for _, fn := range p.samples {
			fn(s)
		}
	})
}

// Start schedules the first probe at time at.
func (p *DelayProbe) Start(at time.Time) {
	p.pending = p.sched.Schedule(at, p.send)
}

// Stop cancels the next probe.
func (p *DelayProbe) Stop() {
	if p.pending != "" {
		p.sched.Cancel(p.pending)
		p.pending = ""
	}
}

func (p *DelayProbe) send() {
	p.pending = ""
	if p.sent >= p.cfg.MaxPackets {
		return
	}
	sentAt := p.sched.Now().Sub(p.origin)
	payload := EncodeProbe(ProbeHeader{Flow: p.flow, Seq: uint32(p.sent), SentAt: sentAt}, p.cfg.PacketSize)
	p.sent++
	p.src.Send(model.NewPacket(payload), p.dst)
	if p.sent < p.cfg.MaxPackets {
		p.pending = p.sched.Schedule(p.sched.Now().Add(p.cfg.Interval), p.send)
	}
}

// Sent returns how many probes were handed to the source device.
func (p *DelayProbe) Sent() int { return p.sent }

// Received returns how many distinct probes arrived.
func (p *DelayProbe) Received() int { return len(p.received) }

// Lost returns Sent - Received.
func (p *DelayProbe) Lost() int { return p.sent - len(p.received) }
