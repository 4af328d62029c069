package topology

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/leo-simulator/core"
	"github.com/signalsfoundry/leo-simulator/internal/logging"
	"github.com/signalsfoundry/leo-simulator/kb"
	"github.com/signalsfoundry/leo-simulator/model"
)

// DeviceDefaults are applied to every device a helper creates.
type DeviceDefaults struct {
	DataRateBps   float64 // 0 takes the profile's rate
	InterframeGap time.Duration
	QueueSize     int
	MTU           int
}

// IslHelper connects satellites over one inter-satellite channel.
type IslHelper struct {
	Profile core.LinkProfile
	Delay   core.DelayModel
	Device  DeviceDefaults
}

// NewIslHelper uses the "isl" profile.
func NewIslHelper() *IslHelper {
	p, _ := core.ProfileByName("isl")
	return &IslHelper{Profile: p}
}

// Install puts one device on every satellite and attaches them all to a new
// inter-satellite channel.
func (h *IslHelper) Install(b *Builder, sats []*kb.Node) (*core.Channel, []*core.NetDevice, error) {
	if err := h.Profile.Validate(); err != nil {
		return nil, nil, err
	}
	ch, err := core.NewChannel(b.sched, core.ChannelConfig{
		Name:   "isl",
		Class:  core.ClassInterSatellite,
		Delay:  h.Delay,
		Loss:   h.Profile.LossModel(),
		Logger: b.log,
	})
	if err != nil {
		return nil, nil, err
	}
	devs, err := installDevices(b, ch, sats, h.Profile, h.Device)
	if err != nil {
		return nil, nil, err
	}
	return ch, devs, nil
}

// UserLinkHelper connects satellites and ground stations over one
// satellite-ground channel parameterised by a named profile.
type UserLinkHelper struct {
	Profile core.LinkProfile
	Class   core.ChannelClass
	Delay   core.DelayModel
	Device  DeviceDefaults
}

// NewUserLinkHelper looks up profile and rejects unknown names.
func NewUserLinkHelper(profile string, class core.ChannelClass) (*UserLinkHelper, error) {
	p, err := core.ProfileByName(profile)
	if err != nil {
		return nil, err
	}
	if p.InterSatellite {
		return nil, fmt.Errorf("profile %q is an inter-satellite profile", profile)
	}
	if class == core.ClassInterSatellite {
		return nil, fmt.Errorf("user link needs a satellite-ground channel class, got %s", class)
	}
	return &UserLinkHelper{Profile: p, Class: class}, nil
}

// Install creates the channel and attaches satellites first, then stations.
func (h *UserLinkHelper) Install(b *Builder, sats, stations []*kb.Node) (*core.Channel, []*core.NetDevice, error) {
	if err := h.Profile.Validate(); err != nil {
		return nil, nil, err
	}
	ch, err := core.NewChannel(b.sched, core.ChannelConfig{
		Name:   h.Profile.Name + "-" + h.Class.String(),
		Class:  h.Class,
		Delay:  h.Delay,
		Loss:   h.Profile.LossModel(),
		Logger: b.log,
	})
	if err != nil {
		return nil, nil, err
	}
	satDevs, err := installDevices(b, ch, sats, h.Profile, h.Device)
	if err != nil {
		return nil, nil, err
	}
	gndDevs, err := installDevices(b, ch, stations, h.Profile, h.Device)
	if err != nil {
		return nil, nil, err
	}
	return ch, append(satDevs, gndDevs...), nil
}

func installDevices(b *Builder, ch *core.Channel, nodes []*kb.Node, p core.LinkProfile, d DeviceDefaults) ([]*core.NetDevice, error) {
	rate := d.DataRateBps
	if rate <= 0 {
		rate = p.DataRateBps
	}
	devs := make([]*core.NetDevice, 0, len(nodes))
	for _, n := range nodes {
		if n.Role == model.RoleUnknown {
			return nil, fmt.Errorf("node %q has no role", n.ID)
		}
		dev := core.NewNetDevice(b.sched, core.DeviceConfig{
			Node:          n.ID,
			Role:          n.Role,
			Mobility:      n.Mobility,
			DataRateBps:   rate,
			InterframeGap: d.InterframeGap,
			TxPowerDBW:    p.EIRPDBW,
			MTU:           d.MTU,
			QueueSize:     d.QueueSize,
			Logger:        b.log,
		})
		if err := b.store.AddDevice(n.ID, dev); err != nil {
			return nil, err
		}
		dev.Attach(ch)
		devs = append(devs, dev)
		b.log.Debug(context.Background(), "added device",
			logging.String("node", n.ID),
			logging.String("channel", ch.Name()),
		)
	}
	return devs, nil
}
