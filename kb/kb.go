package kb

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/leo-simulator/core"
	"github.com/signalsfoundry/leo-simulator/model"
)

var (
	// ErrNodeExists is returned when a node ID is registered twice.
	ErrNodeExists = errors.New("node already exists")
	// ErrNodeNotFound is returned for lookups of unregistered IDs.
	ErrNodeNotFound = errors.New("node not found")
)

// EventType indicates what kind of change happened in the KB.
type EventType int

const (
	EventNodeAdded EventType = iota
	EventPositionUpdated
	EventNodeRemoved
)

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type     EventType
	NodeID   string
	Role     model.NodeRole
	At       time.Time
	Position core.Vec3
}

// Node is a simulated host: a satellite or a ground station with its
// mobility and the devices installed on it.
type Node struct {
	ID       string
	Name     string
	Role     model.NodeRole
	Mobility core.MobilityModel
	Orbit    *model.OrbitState // nil for ground stations and TLE satellites
	Devices  []*core.NetDevice
}

// KnowledgeBase is an in-memory, thread-safe registry of nodes.
type KnowledgeBase struct {
	mu sync.RWMutex

	nodes map[string]*Node
	subs  map[int]func(Event)
	next  int
}

// NewKnowledgeBase constructs an empty KB.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		nodes: make(map[string]*Node),
		subs:  make(map[int]func(Event)),
	}
}

// AddNode registers n. It returns an error if the ID is empty or taken.
func (kb *KnowledgeBase) AddNode(n *Node) error {
	if n == nil || n.ID == "" {
		return fmt.Errorf("node ID is required")
	}
	kb.mu.Lock()
	if _, exists := kb.nodes[n.ID]; exists {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNodeExists, n.ID)
	}
	// stored by pointer so helpers can append devices later
	kb.nodes[n.ID] = n
	subs := kb.snapshotSubsLocked()
	kb.mu.Unlock()

	ev := Event{Type: EventNodeAdded, NodeID: n.ID, Role: n.Role}
	for _, sub := range subs {
		sub(ev)
	}
	return nil
}

// RemoveNode unregisters node id. Position updates published for it
// afterwards fail with ErrNodeNotFound.
func (kb *KnowledgeBase) RemoveNode(id string) error {
	kb.mu.Lock()
	n, ok := kb.nodes[id]
	if !ok {
		kb.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	delete(kb.nodes, id)
	subs := kb.snapshotSubsLocked()
	kb.mu.Unlock()

	ev := Event{Type: EventNodeRemoved, NodeID: id, Role: n.Role}
	for _, sub := range subs {
		sub(ev)
	}
	return nil
}

// GetNode returns the node with the given ID, or nil if not found.
func (kb *KnowledgeBase) GetNode(id string) *Node {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.nodes[id]
}

// Len returns the number of registered nodes.
func (kb *KnowledgeBase) Len() int {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return len(kb.nodes)
}

// ListNodes returns a snapshot of all nodes ordered by ID.
func (kb *KnowledgeBase) ListNodes() []*Node {
	return kb.filter(func(*Node) bool { return true })
}

// NodesByRole returns the nodes of one role ordered by ID.
func (kb *KnowledgeBase) NodesByRole(role model.NodeRole) []*Node {
	return kb.filter(func(n *Node) bool { return n.Role == role })
}

func (kb *KnowledgeBase) filter(keep func(*Node) bool) []*Node {
	kb.mu.RLock()
	res := make([]*Node, 0, len(kb.nodes))
	for _, n := range kb.nodes {
		if keep(n) {
			res = append(res, n)
		}
	}
	kb.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// AddDevice records dev as installed on node id.
func (kb *KnowledgeBase) AddDevice(id string, dev *core.NetDevice) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	n, ok := kb.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	n.Devices = append(n.Devices, dev)
	return nil
}

// Position evaluates node id's mobility at time at.
func (kb *KnowledgeBase) Position(id string, at time.Time) (core.Vec3, error) {
	n := kb.GetNode(id)
	if n == nil {
		return core.Vec3{}, fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	if n.Mobility == nil {
		return core.Vec3{}, nil
	}
	return n.Mobility.Position(at), nil
}

// PublishPosition notifies subscribers that node id is at pos.
func (kb *KnowledgeBase) PublishPosition(id string, at time.Time, pos core.Vec3) error {
	kb.mu.RLock()
	n, ok := kb.nodes[id]
	if !ok {
		kb.mu.RUnlock()
		return fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	ev := Event{Type: EventPositionUpdated, NodeID: id, Role: n.Role, At: at, Position: pos}
	subs := kb.snapshotSubsLocked()
	kb.mu.RUnlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, sub := range subs {
		sub(ev)
	}
	return nil
}

// Subscribe registers a callback for KB events. It returns an unsubscribe function.
func (kb *KnowledgeBase) Subscribe(fn func(Event)) (unsubscribe func()) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	id := kb.next
	kb.next++
	kb.subs[id] = fn

	return func() {
		kb.mu.Lock()
		defer kb.mu.Unlock()
		delete(kb.subs, id)
	}
}

func (kb *KnowledgeBase) snapshotSubsLocked() []func(Event) {
	ids := make([]int, 0, len(kb.subs))
	for id := range kb.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, kb.subs[id])
	}
	return subs
}
