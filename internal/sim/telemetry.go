package sim

import (
	"sort"
	"sync"

	"github.com/signalsfoundry/leo-simulator/core"
	"github.com/signalsfoundry/leo-simulator/model"
)

// DeviceMetrics are the counters kept for one installed device.
type DeviceMetrics struct {
	NodeID  string
	Channel string
	Address string
	Up      bool

	FramesTx uint64
	BytesTx  uint64
	FramesRx uint64
	BytesRx  uint64
	TxDrops  uint64 // refused by Send
	RxDrops  uint64 // arrived while the link was down
}

// TelemetryState is a concurrency-safe store of per-device counters.
type TelemetryState struct {
	mu    sync.RWMutex
	byDev map[string]*DeviceMetrics // key: "nodeID/channel"
}

// NewTelemetryState creates an empty store.
func NewTelemetryState() *TelemetryState {
	return &TelemetryState{byDev: make(map[string]*DeviceMetrics)}
}

func telemetryKey(nodeID, channel string) string {
	return nodeID + "/" + channel
}

// Watch hooks dev's traces. dev must already be attached to a channel.
func (t *TelemetryState) Watch(dev *core.NetDevice) {
	channel := ""
	if ch := dev.Channel(); ch != nil {
		channel = ch.Name()
	}
	key := telemetryKey(dev.Node(), channel)

	t.mu.Lock()
	t.byDev[key] = &DeviceMetrics{
		NodeID:  dev.Node(),
		Channel: channel,
		Address: dev.Address().String(),
		Up:      dev.IsLinkUp(),
	}
	t.mu.Unlock()

	update := func(fn func(m *DeviceMetrics)) {
		t.mu.Lock()
		defer t.mu.Unlock()
		fn(t.byDev[key])
	}
	dev.OnMacTx(func(p *model.Packet) {
		update(func(m *DeviceMetrics) { m.FramesTx++; m.BytesTx += uint64(p.Len()) })
	})
	dev.OnMacRx(func(p *model.Packet) {
		update(func(m *DeviceMetrics) { m.FramesRx++; m.BytesRx += uint64(p.Len()) })
	})
	dev.OnMacTxDrop(func(*model.Packet) {
		update(func(m *DeviceMetrics) { m.TxDrops++ })
	})
	dev.OnPhyRxDrop(func(*model.Packet) {
		update(func(m *DeviceMetrics) { m.RxDrops++ })
	})
	dev.OnLinkChange(func(up bool) {
		update(func(m *DeviceMetrics) { m.Up = up })
	})
}

// GetMetrics returns a copy of the counters for node on channel, or nil.
func (t *TelemetryState) GetMetrics(nodeID, channel string) *DeviceMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.byDev[telemetryKey(nodeID, channel)]
	if !ok {
		return nil
	}
	cp := *m
	return &cp
}

// ListAll returns copies of every entry ordered by node then channel.
func (t *TelemetryState) ListAll() []*DeviceMetrics {
	t.mu.RLock()
	out := make([]*DeviceMetrics, 0, len(t.byDev))
	for _, v := range t.byDev {
		cp := *v
		out = append(out, &cp)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].NodeID != out[j].NodeID {
			return out[i].NodeID < out[j].NodeID
		}
		return out[i].Channel < out[j].Channel
	})
	return out
}
