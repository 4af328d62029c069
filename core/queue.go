package core

import "github.com/signalsfoundry/leo-simulator/model"

// DefaultQueueSize is the drop-tail limit used when a device sets none.
const DefaultQueueSize = 100

type queuedFrame struct {
	packet *model.Packet
	dst    model.Address
}

// dropTailQueue is a bounded FIFO that rejects arrivals once full.
type dropTailQueue struct {
	max    int
	frames []queuedFrame
	drops  uint64
}

func newDropTailQueue(max int) *dropTailQueue {
	if max <= 0 {
		max = DefaultQueueSize
	}
	return &dropTailQueue{max: max}
}

func (q *dropTailQueue) enqueue(f queuedFrame) bool {
	if len(q.frames) >= q.max {
		q.drops++
		return false
	}
	q.frames = append(q.frames, f)
	return true
}

func (q *dropTailQueue) dequeue() (queuedFrame, bool) {
	if len(q.frames) == 0 {
		return queuedFrame{}, false
	}
	f := q.frames[0]
	q.frames[0] = queuedFrame{}
	q.frames = q.frames[1:]
	return f, true
}

func (q *dropTailQueue) size() int { return len(q.frames) }
