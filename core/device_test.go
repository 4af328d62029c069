package core

import (
	"testing"
	"time"

	"github.com/signalsfoundry/leo-simulator/model"
)

func TestDeviceSerializesQueuedFrames(t *testing.T) {
	n := newTestNet(t, ChannelConfig{Class: ClassInterSatellite, Delay: ConstantSpeedDelay{Speed: SpeedOfLight}})
	src := NewNetDevice(n.sched, DeviceConfig{
		Role:          model.RoleSatellite,
		Mobility:      NewStaticMobility(Vec3{}),
		DataRateBps:   8000, // 1 ms per byte
		InterframeGap: time.Millisecond,
	})
	src.Attach(n.ch)
	dst := n.add(model.RoleSatellite, Vec3{})

	var macTx int
	src.OnMacTx(func(*model.Packet) { macTx++ })

	for i := 0; i < 3; i++ {
		if !src.Send(model.NewPacket(make([]byte, 10)), dst.Address()) {
			t.Fatalf("Send %d refused", i)
		}
	}
	if src.QueueLen() != 2 {
		t.Fatalf("queue length = %d, want 2 while the first frame is on the wire", src.QueueLen())
	}
	n.sched.Run()

	rx := n.rx[dst.Address()]
	if len(rx) != 3 || macTx != 3 {
		t.Fatalf("rx=%d macTx=%d", len(rx), macTx)
	}
	// 10 bytes take 10ms; frames start every 11ms and arrive when fully sent.
	for i, r := range rx {
		want := testEpoch.Add(time.Duration(i)*11*time.Millisecond + 10*time.Millisecond)
		if !r.at.Equal(want) {
			t.Fatalf("frame %d at %s, want %s", i, r.at.Sub(testEpoch), want.Sub(testEpoch))
		}
	}
}

func TestDeviceDropsQueuedFramesAfterLinkDown(t *testing.T) {
	n := newTestNet(t, ChannelConfig{Class: ClassInterSatellite})
	src := NewNetDevice(n.sched, DeviceConfig{Role: model.RoleSatellite, DataRateBps: 8000})
	id := src.Attach(n.ch)
	dst := n.add(model.RoleSatellite, Vec3{})

	var drops int
	src.OnMacTxDrop(func(*model.Packet) { drops++ })
	for i := 0; i < 3; i++ {
		if !src.Send(model.NewPacket(make([]byte, 10)), dst.Address()) {
			t.Fatalf("Send %d refused", i)
		}
	}
	// The first frame is already on the wire when the link goes down.
	n.sched.Schedule(testEpoch.Add(5*time.Millisecond), func() { n.ch.Detach(id) })
	n.sched.Run()

	if got := len(n.rx[dst.Address()]); got != 1 {
		t.Fatalf("delivered %d frames, want 1", got)
	}
	if drops != 2 || src.QueueLen() != 0 {
		t.Fatalf("drops=%d queueLen=%d, want 2 and 0", drops, src.QueueLen())
	}
}

func TestDeviceQueueDropTail(t *testing.T) {
	n := newTestNet(t, ChannelConfig{Class: ClassInterSatellite})
	src := NewNetDevice(n.sched, DeviceConfig{Role: model.RoleSatellite, DataRateBps: 1000, QueueSize: 2})
	src.Attach(n.ch)
	dst := n.add(model.RoleSatellite, Vec3{})

	var drops int
	src.OnMacTxDrop(func(*model.Packet) { drops++ })
	// First frame leaves the queue at once; two more fill it.
	for i := 0; i < 3; i++ {
		if !src.Send(model.NewPacket([]byte{1}), dst.Address()) {
			t.Fatalf("Send %d refused", i)
		}
	}
	if src.Send(model.NewPacket([]byte{1}), dst.Address()) {
		t.Fatalf("Send into a full queue should fail")
	}
	if drops != 1 || src.QueueDrops() != 1 {
		t.Fatalf("drops=%d queueDrops=%d", drops, src.QueueDrops())
	}
}

func TestDeviceSendChecks(t *testing.T) {
	n := newTestNet(t, ChannelConfig{Class: ClassInterSatellite})
	loose := NewNetDevice(n.sched, DeviceConfig{})
	if loose.Send(model.NewPacket(nil), model.BroadcastAddress) {
		t.Fatalf("unattached device should refuse to send")
	}
	dev := NewNetDevice(n.sched, DeviceConfig{MTU: 4})
	dev.Attach(n.ch)
	if dev.Send(model.NewPacket(make([]byte, 5)), model.BroadcastAddress) {
		t.Fatalf("oversized frame should be refused")
	}
	if dev.MTU() != 4 || loose.MTU() != DefaultMTU {
		t.Fatalf("MTU defaults wrong")
	}
	if dev.Address() == loose.Address() {
		t.Fatalf("devices share an address")
	}
}

func TestDeviceReceiveTraces(t *testing.T) {
	n := newTestNet(t, ChannelConfig{Class: ClassInterSatellite})
	dev := n.add(model.RoleGround, Vec3{})
	var macRx int
	dev.OnMacRx(func(*model.Packet) { macRx++ })

	dev.Receive(model.NewPacket([]byte("a")), model.AllocateAddress())
	if macRx != 1 || len(n.rx[dev.Address()]) != 1 {
		t.Fatalf("macRx=%d rx=%d", macRx, len(n.rx[dev.Address()]))
	}
}

func TestDeviceWithoutMobilitySitsAtOrigin(t *testing.T) {
	dev := NewNetDevice(nil, DeviceConfig{})
	if dev.Position(testEpoch) != (Vec3{}) {
		t.Fatalf("position = %+v", dev.Position(testEpoch))
	}
	if dev.AttachmentID() != -1 {
		t.Fatalf("unattached id = %d", dev.AttachmentID())
	}
}
