package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/signalsfoundry/leo-simulator/internal/logging"
	"github.com/signalsfoundry/leo-simulator/model"
	"github.com/signalsfoundry/leo-simulator/timectrl"
)

// ChannelClass tags a channel with the kind of link it carries. The class
// decides which device roles may talk over it.
type ChannelClass int

const (
	ClassInterSatellite ChannelClass = iota
	ClassGatewayForward
	ClassGatewayReturn
	ClassTerminalForward
	ClassTerminalReturn
)

var channelClassNames = map[ChannelClass]string{
	ClassInterSatellite:  "isl",
	ClassGatewayForward:  "gw-forward",
	ClassGatewayReturn:   "gw-return",
	ClassTerminalForward: "ut-forward",
	ClassTerminalReturn:  "ut-return",
}

func (c ChannelClass) String() string {
	if n, ok := channelClassNames[c]; ok {
		return n
	}
	return fmt.Sprintf("ChannelClass(%d)", int(c))
}

// ParseChannelClass is the inverse of String.
func ParseChannelClass(s string) (ChannelClass, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, n := range channelClassNames {
		if n == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown channel class %q", s)
}

// Permits reports whether a device of role src may deliver to one of role
// dst. Inter-satellite channels accept any pair; user-link classes carry
// only ground<->satellite traffic.
func (c ChannelClass) Permits(src, dst model.NodeRole) bool {
	if c == ClassInterSatellite {
		return true
	}
	return (src == model.RoleGround && dst == model.RoleSatellite) ||
		(src == model.RoleSatellite && dst == model.RoleGround)
}

// DropReason says why a delivery was not scheduled.
type DropReason string

const (
	DropUnreachable DropReason = "unreachable"
	DropClass       DropReason = "class"
	DropLinkDown    DropReason = "link-down"
)

// TxRxEvent describes one scheduled delivery.
type TxRxEvent struct {
	Packet *model.Packet
	Src    model.Address
	Dst    model.Address
	SrcID  int
	DstID  int
	TxTime time.Time
	// Delay includes serialization time and propagation.
	Delay  time.Duration
	LossDB float64
}

// DropEvent describes a delivery the channel refused.
type DropEvent struct {
	Packet *model.Packet
	Src    model.Address
	Dst    model.Address
	At     time.Time
	Reason DropReason
}

// LinkStateEvent is emitted when an attachment goes down.
type LinkStateEvent struct {
	At           time.Time
	AttachmentID int
	Address      model.Address
	Up           bool
}

// ChannelConfig configures a Channel.
type ChannelConfig struct {
	Name   string
	Class  ChannelClass
	Delay  DelayModel
	Loss   LossModel
	Logger logging.Logger
}

// Channel is a shared medium. Devices attach to it and get a stable id;
// TransmitStart evaluates delay and reachability for each destination from
// the current positions and schedules the delivery on the scheduler.
//
// Addresses are resolved by a linear scan of the attachment table. This is
// a known scaling limit; attachment counts stay small next to the per-packet
// geometry work.
type Channel struct {
	mu      sync.Mutex
	name    string
	class   ChannelClass
	sched   timectrl.EventScheduler
	delay   DelayModel
	loss    LossModel
	log     logging.Logger
	devices []*NetDevice
	up      []bool

	txrx      []func(TxRxEvent)
	drops     []func(DropEvent)
	linkState []func(LinkStateEvent)
}

// NewChannel builds a channel driven by sched. A nil Delay defaults to
// speed-of-light propagation; a nil Loss makes every pair reachable.
func NewChannel(sched timectrl.EventScheduler, cfg ChannelConfig) (*Channel, error) {
	if sched == nil {
		return nil, fmt.Errorf("channel %q: scheduler is required", cfg.Name)
	}
	if _, ok := channelClassNames[cfg.Class]; !ok {
		return nil, fmt.Errorf("channel %q: invalid class %d", cfg.Name, int(cfg.Class))
	}
	if cfg.Delay == nil {
		cfg.Delay = ConstantSpeedDelay{Speed: SpeedOfLight}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Noop()
	}
	return &Channel{
		name:  cfg.Name,
		class: cfg.Class,
		sched: sched,
		delay: cfg.Delay,
		loss:  cfg.Loss,
		log:   cfg.Logger.With(logging.String("channel", cfg.Name), logging.String("class", cfg.Class.String())),
	}, nil
}

// Name returns the channel's name.
func (c *Channel) Name() string { return c.name }

// Class returns the channel class.
func (c *Channel) Class() ChannelClass { return c.class }

// OnTxRx registers an observer for scheduled deliveries.
func (c *Channel) OnTxRx(fn func(TxRxEvent)) {
	c.mu.Lock()
	c.txrx = append(c.txrx, fn)
	c.mu.Unlock()
}

// OnDrop registers an observer for refused deliveries.
func (c *Channel) OnDrop(fn func(DropEvent)) {
	c.mu.Lock()
	c.drops = append(c.drops, fn)
	c.mu.Unlock()
}

// OnLinkState registers an observer for attachment state changes.
func (c *Channel) OnLinkState(fn func(LinkStateEvent)) {
	c.mu.Lock()
	c.linkState = append(c.linkState, fn)
	c.mu.Unlock()
}

// Attach appends dev to the attachment table and returns its id. Ids are
// sequential and never reused. A nil device is a wiring bug and panics.
func (c *Channel) Attach(dev *NetDevice) int {
	if dev == nil {
		panic("core: Channel.Attach called with nil device")
	}
	c.mu.Lock()
	c.devices = append(c.devices, dev)
	c.up = append(c.up, true)
	id := len(c.devices) - 1
	c.mu.Unlock()

	dev.attached(c, id)
	c.log.Debug(context.Background(), "device attached",
		logging.Int("attachment_id", id),
		logging.String("address", dev.Address().String()),
	)
	return id
}

// Detach marks attachment id down and tells the device. It returns false
// for an unknown id or one that is already down. The slot is kept, so ids
// of other attachments and deliveries already in flight are unaffected.
func (c *Channel) Detach(id int) bool {
	c.mu.Lock()
	if id < 0 || id >= len(c.devices) {
		c.mu.Unlock()
		c.log.Warn(context.Background(), "detach of unknown attachment", logging.Int("attachment_id", id))
		return false
	}
	if !c.up[id] {
		c.mu.Unlock()
		c.log.Warn(context.Background(), "device is already detached", logging.Int("attachment_id", id))
		return false
	}
	c.up[id] = false
	dev := c.devices[id]
	observers := append([]func(LinkStateEvent){}, c.linkState...)
	c.mu.Unlock()

	dev.NotifyLinkDown()
	ev := LinkStateEvent{At: c.sched.Now(), AttachmentID: id, Address: dev.Address(), Up: false}
	for _, fn := range observers {
		fn(ev)
	}
	return true
}

// NDevices returns the size of the attachment table, detached slots
// included.
func (c *Channel) NDevices() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.devices)
}

// DeviceAt returns the device attached under id, or nil.
func (c *Channel) DeviceAt(id int) *NetDevice {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id < 0 || id >= len(c.devices) {
		return nil
	}
	return c.devices[id]
}

// IsUp reports whether attachment id exists and is up.
func (c *Channel) IsUp(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return id >= 0 && id < len(c.up) && c.up[id]
}

// Device resolves an address to the attached device, or nil.
func (c *Channel) Device(addr model.Address) *NetDevice {
	c.mu.Lock()
	defer c.mu.Unlock()
	dev, _ := c.lookupLocked(addr)
	return dev
}

func (c *Channel) lookupLocked(addr model.Address) (*NetDevice, int) {
	for i, dev := range c.devices {
		if dev.Address() == addr {
			return dev, i
		}
	}
	return nil, -1
}

// TransmitStart pushes p from attachment srcID towards dst. txTime is the
// time the frame occupies the transmitter; it is added to the propagation
// delay.
//
// An address that resolves to no attached device (including the broadcast
// address) is sent to every other attachment; the result is then true
// regardless of individual outcomes. A resolved destination returns the
// outcome of that single delivery. Each receiver gets its own copy of p.
// Unreachable receivers are dropped silently and only show up on OnDrop.
func (c *Channel) TransmitStart(p *model.Packet, srcID int, dst model.Address, txTime time.Duration) bool {
	c.mu.Lock()
	if srcID < 0 || srcID >= len(c.devices) {
		c.mu.Unlock()
		c.log.Debug(context.Background(), "transmit from unknown attachment", logging.Int("attachment_id", srcID))
		return false
	}
	if !c.up[srcID] {
		c.mu.Unlock()
		return false
	}
	src := c.devices[srcID]

	var targets []int
	_, dstID := c.lookupLocked(dst)
	broadcast := dstID < 0
	if broadcast {
		targets = make([]int, 0, len(c.devices)-1)
		for i := range c.devices {
			if i != srcID {
				targets = append(targets, i)
			}
		}
	} else {
		targets = []int{dstID}
	}
	c.mu.Unlock()

	ok := false
	for _, id := range targets {
		ok = c.deliver(p, src, srcID, id, txTime)
	}
	if broadcast {
		return true
	}
	return ok
}

func (c *Channel) deliver(p *model.Packet, src *NetDevice, srcID, dstID int, txTime time.Duration) bool {
	c.mu.Lock()
	dst := c.devices[dstID]
	up := c.up[dstID]
	txrx := append([]func(TxRxEvent){}, c.txrx...)
	c.mu.Unlock()

	now := c.sched.Now()
	if !up {
		c.dropped(p, src, dst, now, DropLinkDown)
		return false
	}
	if !c.class.Permits(src.Role(), dst.Role()) {
		c.dropped(p, src, dst, now, DropClass)
		return false
	}

	a, b := src.Position(now), dst.Position(now)
	lossDB := 0.0
	if c.loss != nil {
		var reachable bool
		lossDB, reachable = c.loss.Loss(a, b)
		if !reachable {
			c.dropped(p, src, dst, now, DropUnreachable)
			return false
		}
	}

	delay := txTime + c.delay.Delay(a, b)
	cp := p.Copy()
	srcAddr := src.Address()
	c.sched.Schedule(now.Add(delay), func() {
		dst.Receive(cp, srcAddr)
	})

	ev := TxRxEvent{
		Packet: cp,
		Src:    srcAddr,
		Dst:    dst.Address(),
		SrcID:  srcID,
		DstID:  dstID,
		TxTime: now,
		Delay:  delay,
		LossDB: lossDB,
	}
	for _, fn := range txrx {
		fn(ev)
	}
	return true
}

func (c *Channel) dropped(p *model.Packet, src, dst *NetDevice, at time.Time, reason DropReason) {
	c.log.Debug(context.Background(), "delivery dropped",
		logging.String("src", src.Address().String()),
		logging.String("dst", dst.Address().String()),
		logging.String("reason", string(reason)),
	)
	c.mu.Lock()
	drops := append([]func(DropEvent){}, c.drops...)
	c.mu.Unlock()

	ev := DropEvent{Packet: p, Src: src.Address(), Dst: dst.Address(), At: at, Reason: reason}
	for _, fn := range drops {
		fn(ev)
	}
}
