package trace

import (
	"context"
	"sync"

	"github.com/signalsfoundry/leo-simulator/core"
	"github.com/signalsfoundry/leo-simulator/internal/logging"
	"github.com/signalsfoundry/leo-simulator/kb"
)

// Recorder subscribes to simulation events and writes them to a Sink. The
// first write error stops further writes and is reported by Err.
type Recorder struct {
	mu     sync.Mutex
	sink   Sink
	log    logging.Logger
	err    error
	counts map[Kind]int
}

// NewRecorder writes to sink.
func NewRecorder(sink Sink, log logging.Logger) *Recorder {
	if log == nil {
		log = logging.Noop()
	}
	return &Recorder{sink: sink, log: log, counts: make(map[Kind]int)}
}

// WatchChannel records deliveries, drops and link changes of ch.
func (r *Recorder) WatchChannel(ch *core.Channel) {
	name := ch.Name()
	ch.OnTxRx(func(ev core.TxRxEvent) {
		r.write(Record{
			Kind:      KindTxRx,
			Time:      ev.TxTime,
			Channel:   name,
			Src:       ev.Src.String(),
			Dst:       ev.Dst.String(),
			PacketUID: ev.Packet.UID,
			Bytes:     ev.Packet.Len(),
			Delay:     ev.Delay,
		})
	})
	ch.OnDrop(func(ev core.DropEvent) {
		var uid uint64
		if ev.Packet != nil {
			uid = ev.Packet.UID
		}
		r.write(Record{
			Kind:      KindDrop,
			Time:      ev.At,
			Channel:   name,
			Src:       ev.Src.String(),
			Dst:       ev.Dst.String(),
			PacketUID: uid,
			Bytes:     ev.Packet.Len(),
			Reason:    string(ev.Reason),
		})
	})
	ch.OnLinkState(func(ev core.LinkStateEvent) {
		reason := "down"
		if ev.Up {
			reason = "up"
		}
		r.write(Record{Kind: KindLink, Time: ev.At, Channel: name, Src: ev.Address.String(), Reason: reason})
	})
}

// WatchCourseChanges records position updates published to store. The
// returned function stops recording.
func (r *Recorder) WatchCourseChanges(store *kb.KnowledgeBase) func() {
	return store.Subscribe(func(ev kb.Event) {
		if ev.Type != kb.EventPositionUpdated {
			return
		}
		pos := ev.Position
		r.write(Record{Kind: KindCourse, Time: ev.At, Node: ev.NodeID, Position: &pos})
	})
}

// WatchProbe records probe samples at their arrival time.
func (r *Recorder) WatchProbe(p *DelayProbe) {
	p.OnSample(func(s Sample) {
		r.write(Record{
			Kind:  KindProbe,
			Time:  s.ReceivedAt,
			Node:  s.Context,
			Seq:   s.Seq,
			Delay: s.Delay,
		})
	})
}

func (r *Recorder) write(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	if err := r.sink.Write(rec); err != nil {
		r.err = err
		r.log.Error(context.Background(), "trace write failed", logging.Err(err))
		return
	}
	r.counts[rec.Kind]++
}

// Count returns how many records of kind were written.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[kind]
}

// Err returns the first write error.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close closes the sink.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sink.Close()
}
