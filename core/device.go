package core

import (
	"context"
	"math"
	"time"

	"github.com/signalsfoundry/leo-simulator/internal/logging"
	"github.com/signalsfoundry/leo-simulator/model"
	"github.com/signalsfoundry/leo-simulator/timectrl"
)

// DefaultMTU is the largest payload a device accepts when none is set.
const DefaultMTU = 1500

// DeviceConfig configures a NetDevice.
type DeviceConfig struct {
	Address       model.Address // zero allocates a fresh one
	Node          string
	Role          model.NodeRole
	Mobility      MobilityModel // nil keeps the device at the origin
	DataRateBps   float64       // 0 means instantaneous serialization
	InterframeGap time.Duration
	TxPowerDBW    float64
	MTU           int
	QueueSize     int
	Logger        logging.Logger
}

// NetDevice is a link endpoint. It queues outgoing frames, serializes them
// at its data rate onto its channel and hands received frames upward.
//
// A device is driven from the scheduler goroutine only and holds no lock.
type NetDevice struct {
	cfg   DeviceConfig
	sched timectrl.EventScheduler
	log   logging.Logger

	channel *Channel
	id      int
	linkUp  bool

	queue *dropTailQueue
	busy  bool

	rx         func(p *model.Packet, src model.Address)
	linkChange []func(up bool)
	macTx      []func(*model.Packet)
	macTxDrop  []func(*model.Packet)
	macRx      []func(*model.Packet)
	phyRxDrop  []func(*model.Packet)
}

// NewNetDevice creates an unattached device.
func NewNetDevice(sched timectrl.EventScheduler, cfg DeviceConfig) *NetDevice {
	if cfg.Address.IsZero() {
		cfg.Address = model.AllocateAddress()
	}
	if cfg.MTU <= 0 {
		cfg.MTU = DefaultMTU
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Noop()
	}
	return &NetDevice{
		cfg:   cfg,
		sched: sched,
		log:   cfg.Logger.With(logging.String("device", cfg.Address.String()), logging.String("node", cfg.Node)),
		id:    -1,
		queue: newDropTailQueue(cfg.QueueSize),
	}
}

// Address returns the device's link address.
func (d *NetDevice) Address() model.Address { return d.cfg.Address }

// Node returns the id of the node the device is installed on.
func (d *NetDevice) Node() string { return d.cfg.Node }

// Role returns the role of the owning node.
func (d *NetDevice) Role() model.NodeRole { return d.cfg.Role }

// Mobility returns the position source, nil for a device at the origin.
func (d *NetDevice) Mobility() MobilityModel { return d.cfg.Mobility }

// MTU returns the largest payload Send accepts.
func (d *NetDevice) MTU() int { return d.cfg.MTU }

// DataRateBps returns the serialization rate.
func (d *NetDevice) DataRateBps() float64 { return d.cfg.DataRateBps }

// TxPowerDBW returns the configured transmit power.
func (d *NetDevice) TxPowerDBW() float64 { return d.cfg.TxPowerDBW }

// Channel returns the attached channel, or nil.
func (d *NetDevice) Channel() *Channel { return d.channel }

// AttachmentID returns the id the channel assigned, -1 before Attach.
func (d *NetDevice) AttachmentID() int { return d.id }

// IsLinkUp reports whether the attachment is up.
func (d *NetDevice) IsLinkUp() bool { return d.linkUp }

// QueueLen returns the number of frames waiting to be transmitted.
func (d *NetDevice) QueueLen() int { return d.queue.size() }

// QueueDrops returns how many frames the full queue rejected.
func (d *NetDevice) QueueDrops() uint64 { return d.queue.drops }

// Position returns the device's position at time at.
func (d *NetDevice) Position(at time.Time) Vec3 {
	if d.cfg.Mobility == nil {
		return Vec3{}
	}
	return d.cfg.Mobility.Position(at)
}

// Attach connects the device to ch and returns the attachment id.
func (d *NetDevice) Attach(ch *Channel) int {
	return ch.Attach(d)
}

func (d *NetDevice) attached(ch *Channel, id int) {
	d.channel = ch
	d.id = id
	d.linkUp = true
	for _, fn := range d.linkChange {
		fn(true)
	}
}

// NotifyLinkDown is called by the channel when the attachment is detached.
func (d *NetDevice) NotifyLinkDown() {
	if !d.linkUp {
		return
	}
	d.linkUp = false
	d.log.Debug(context.Background(), "link down", logging.Int("attachment_id", d.id))
	for _, fn := range d.linkChange {
		fn(false)
	}
}

// SetReceiveCallback installs the upward delivery hook.
func (d *NetDevice) SetReceiveCallback(fn func(p *model.Packet, src model.Address)) {
	d.rx = fn
}

// OnLinkChange registers a link-state observer.
func (d *NetDevice) OnLinkChange(fn func(up bool)) { d.linkChange = append(d.linkChange, fn) }

// OnMacTx fires for every frame accepted by Send.
func (d *NetDevice) OnMacTx(fn func(*model.Packet)) { d.macTx = append(d.macTx, fn) }

// OnMacTxDrop fires when Send refuses a frame.
func (d *NetDevice) OnMacTxDrop(fn func(*model.Packet)) { d.macTxDrop = append(d.macTxDrop, fn) }

// OnMacRx fires for every frame handed upward.
func (d *NetDevice) OnMacRx(fn func(*model.Packet)) { d.macRx = append(d.macRx, fn) }

// OnPhyRxDrop fires when a frame arrives while the link is down.
func (d *NetDevice) OnPhyRxDrop(fn func(*model.Packet)) { d.phyRxDrop = append(d.phyRxDrop, fn) }

// TransmissionTime returns how long p occupies the transmitter.
func (d *NetDevice) TransmissionTime(p *model.Packet) time.Duration {
	if d.cfg.DataRateBps <= 0 {
		return 0
	}
	seconds := float64(p.Len()*8) / d.cfg.DataRateBps
	return time.Duration(math.Round(seconds * float64(time.Second)))
}

// Send queues p for dst. It returns false when the link is down, the
// frame exceeds the MTU or the queue is full.
func (d *NetDevice) Send(p *model.Packet, dst model.Address) bool {
	if d.channel == nil || !d.linkUp || p.Len() > d.cfg.MTU {
		d.fire(d.macTxDrop, p)
		return false
	}
	if !d.queue.enqueue(queuedFrame{packet: p, dst: dst}) {
		d.log.Debug(context.Background(), "tx queue full", logging.Int("queue_len", d.queue.size()))
		d.fire(d.macTxDrop, p)
		return false
	}
	d.fire(d.macTx, p)
	if !d.busy {
		d.transmitNext()
	}
	return true
}

// transmitNext starts the next queued frame. Frames still queued when the
// link went down are dropped with a MacTxDrop trace.
func (d *NetDevice) transmitNext() {
	f, ok := d.queue.dequeue()
	for ok && !d.linkUp {
		d.fire(d.macTxDrop, f.packet)
		f, ok = d.queue.dequeue()
	}
	if !ok {
		d.busy = false
		return
	}
	d.busy = true
	txTime := d.TransmissionTime(f.packet)
	// Per-destination failures are reported by the channel's drop observers.
	d.channel.TransmitStart(f.packet, d.id, f.dst, txTime)
	d.sched.Schedule(d.sched.Now().Add(txTime+d.cfg.InterframeGap), d.transmitNext)
}

// Receive hands p, sent by src, to the upper layer.
func (d *NetDevice) Receive(p *model.Packet, src model.Address) {
	if !d.linkUp {
		d.fire(d.phyRxDrop, p)
		return
	}
	d.fire(d.macRx, p)
	if d.rx != nil {
		d.rx(p, src)
	}
}

func (d *NetDevice) fire(fns []func(*model.Packet), p *model.Packet) {
	for _, fn := range fns {
		fn(p)
	}
}
