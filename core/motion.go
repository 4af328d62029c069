package core

import (
	"fmt"
	"sync"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/leo-simulator/model"
	"github.com/signalsfoundry/leo-simulator/timectrl"
)

// MobilityModel reports where a node is at a given simulation time.
type MobilityModel interface {
	Position(at time.Time) Vec3
}

// CourseChange is emitted when a mobility model publishes a new position.
type CourseChange struct {
	At       time.Time
	Position Vec3
}

// StaticMobility keeps a node at a fixed position.
type StaticMobility struct {
	mu  sync.RWMutex
	pos Vec3
}

// NewStaticMobility returns a mobility model fixed at pos.
func NewStaticMobility(pos Vec3) *StaticMobility {
	return &StaticMobility{pos: pos}
}

// Position ignores the time and returns the fixed position.
func (m *StaticMobility) Position(time.Time) Vec3 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pos
}

// SetPosition moves the node.
func (m *StaticMobility) SetPosition(pos Vec3) {
	m.mu.Lock()
	m.pos = pos
	m.mu.Unlock()
}

// OrbitMobility places a satellite on a circular orbit described by an
// OrbitState. Elapsed time is measured from epoch.
//
// SetPosition installs a manual override that Position returns until the
// next Propagate call. Propagate is the explicit orbit read used by the
// periodic course-change updates.
type OrbitMobility struct {
	mu         sync.Mutex
	state      model.OrbitState
	epoch      time.Time
	override   Vec3
	overridden bool

	listeners []func(CourseChange)
	pendingID string
	sched     timectrl.EventScheduler
}

// NewOrbitMobility validates state and returns its mobility model.
func NewOrbitMobility(state model.OrbitState, epoch time.Time) (*OrbitMobility, error) {
	if err := state.Validate(); err != nil {
		return nil, err
	}
	return &OrbitMobility{state: state, epoch: epoch}, nil
}

// State returns the orbit parameters.
func (m *OrbitMobility) State() model.OrbitState { return m.state }

// Speed returns the orbital speed in m/s.
func (m *OrbitMobility) Speed() float64 {
	return OrbitalSpeed(m.state.AltitudeM)
}

// Position returns the override if one is set, otherwise the quantized
// orbit position at time at.
func (m *OrbitMobility) Position(at time.Time) Vec3 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.overridden {
		return m.override
	}
	return OrbitPosition(m.state, at.Sub(m.epoch))
}

// Velocity returns the orbital velocity vector at time at.
func (m *OrbitMobility) Velocity(at time.Time) Vec3 {
	return OrbitVelocity(m.state, at.Sub(m.epoch))
}

// SetPosition pins the satellite to pos until the next Propagate.
func (m *OrbitMobility) SetPosition(pos Vec3) {
	m.mu.Lock()
	m.override = pos
	m.overridden = true
	m.mu.Unlock()
}

// Overridden reports whether a manual position is in effect.
func (m *OrbitMobility) Overridden() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overridden
}

// Propagate clears any override and returns the orbit position at time at.
func (m *OrbitMobility) Propagate(at time.Time) Vec3 {
	m.mu.Lock()
	m.overridden = false
	m.mu.Unlock()
	return OrbitPosition(m.state, at.Sub(m.epoch))
}

// OnCourseChange registers a listener for periodic position updates.
func (m *OrbitMobility) OnCourseChange(fn func(CourseChange)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Start schedules a Propagate at every precision boundary and notifies
// course-change listeners with the new position.
func (m *OrbitMobility) Start(sched timectrl.EventScheduler) {
	m.mu.Lock()
	m.sched = sched
	m.mu.Unlock()
	m.scheduleNext(sched.Now())
}

// Stop cancels the pending course-change update.
func (m *OrbitMobility) Stop() {
	m.mu.Lock()
	sched, id := m.sched, m.pendingID
	m.sched, m.pendingID = nil, ""
	m.mu.Unlock()
	if sched != nil && id != "" {
		sched.Cancel(id)
	}
}

func (m *OrbitMobility) scheduleNext(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sched == nil {
		return
	}
	elapsed := now.Sub(m.epoch)
	next := m.epoch.Add(Quantize(elapsed, m.state.Precision) + m.state.Precision)
	m.pendingID = m.sched.Schedule(next, m.tick)
}

func (m *OrbitMobility) tick() {
	m.mu.Lock()
	sched := m.sched
	listeners := append([]func(CourseChange){}, m.listeners...)
	m.mu.Unlock()
	if sched == nil {
		return
	}

	now := sched.Now()
	pos := m.Propagate(now)
	for _, fn := range listeners {
		fn(CourseChange{At: now, Position: pos})
	}
	m.scheduleNext(now)
}

// SGP4Mobility propagates a satellite from a TLE with SGP4. Positions are
// ECEF and quantized to Precision like the circular model.
type SGP4Mobility struct {
	sat       satellite.Satellite
	Precision time.Duration
	epoch     time.Time
}

// NewSGP4Mobility parses the TLE lines. epoch anchors quantization.
// go-satellite takes whole seconds, so precision must be a multiple of one.
func NewSGP4Mobility(tle model.TLESatellite, epoch time.Time, precision time.Duration) (*SGP4Mobility, error) {
	if len(tle.Line1) < 69 || len(tle.Line2) < 69 {
		return nil, fmt.Errorf("%w: TLE for %q must have two 69-character lines", model.ErrInvalidOrbit, tle.Name)
	}
	if precision <= 0 || precision%time.Second != 0 {
		return nil, fmt.Errorf("%w: TLE precision for %q must be a positive whole number of seconds, got %s", model.ErrInvalidOrbit, tle.Name, precision)
	}
	sat := satellite.TLEToSat(tle.Line1, tle.Line2, satellite.GravityWGS72)
	return &SGP4Mobility{sat: sat, Precision: precision, epoch: epoch}, nil
}

// Position propagates to the quantized time. go-satellite works in
// kilometres; the result is converted to metres.
func (m *SGP4Mobility) Position(at time.Time) Vec3 {
	at = m.epoch.Add(Quantize(at.Sub(m.epoch), m.Precision)).UTC()
	year, month, day := at.Date()
	hour, min, sec := at.Clock()

	posECI, _ := satellite.Propagate(m.sat, year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(satellite.JDay(year, int(month), day, hour, min, sec))
	posECEF := satellite.ECIToECEF(posECI, gmst)

	const kmToM = 1000.0
	return Vec3{X: posECEF.X * kmToM, Y: posECEF.Y * kmToM, Z: posECEF.Z * kmToM}
}
