// Package topology builds simulated networks: it creates satellite and
// ground nodes in the knowledge base, gives each one a mobility model and
// installs link devices on shared channels.
package topology

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/leo-simulator/core"
	"github.com/signalsfoundry/leo-simulator/internal/logging"
	"github.com/signalsfoundry/leo-simulator/kb"
	"github.com/signalsfoundry/leo-simulator/model"
	"github.com/signalsfoundry/leo-simulator/timectrl"
)

// Builder creates nodes against one scheduler and knowledge base.
type Builder struct {
	store *kb.KnowledgeBase
	sched timectrl.EventScheduler
	epoch time.Time
	log   logging.Logger

	orbits []*core.OrbitMobility
}

// NewBuilder returns a builder whose orbits are anchored at sched.Now().
func NewBuilder(store *kb.KnowledgeBase, sched timectrl.EventScheduler, log logging.Logger) *Builder {
	if log == nil {
		log = logging.Noop()
	}
	return &Builder{store: store, sched: sched, epoch: sched.Now(), log: log}
}

// KnowledgeBase returns the registry nodes are added to.
func (b *Builder) KnowledgeBase() *kb.KnowledgeBase { return b.store }

// Scheduler returns the scheduler devices and channels run on.
func (b *Builder) Scheduler() timectrl.EventScheduler { return b.sched }

// SatelliteID names satellite sat of plane in shell name.
func SatelliteID(name string, plane, sat int) string {
	return fmt.Sprintf("%s-%d-%d", name, plane, sat)
}

// InstallConstellation adds one node per slot of c, plane-major.
func (b *Builder) InstallConstellation(c model.Constellation) ([]*kb.Node, error) {
	states, err := c.States()
	if err != nil {
		return nil, err
	}

	nodes := make([]*kb.Node, 0, len(states))
	for _, st := range states {
		mob, err := core.NewOrbitMobility(st, b.epoch)
		if err != nil {
			return nil, err
		}
		state := st
		n := &kb.Node{
			ID:       SatelliteID(c.Name, st.Plane, st.Satellite),
			Name:     c.Name,
			Role:     model.RoleSatellite,
			Mobility: mob,
			Orbit:    &state,
		}
		if err := b.store.AddNode(n); err != nil {
			return nil, fmt.Errorf("install constellation %q: %w", c.Name, err)
		}
		id := n.ID
		mob.OnCourseChange(func(cc core.CourseChange) {
			if err := b.store.PublishPosition(id, cc.At, cc.Position); err != nil {
				b.log.Warn(context.Background(), "course change not published",
					logging.String("node", id),
					logging.Err(err),
				)
			}
		})
		b.orbits = append(b.orbits, mob)
		nodes = append(nodes, n)
	}

	b.log.Info(context.Background(), "installed constellation",
		logging.String("name", c.Name),
		logging.Int("satellites", len(nodes)),
		logging.Float64("altitude_m", c.AltitudeM),
		logging.Float64("inclination_deg", c.InclinationDeg),
	)
	return nodes, nil
}

// InstallGroundStations adds one static node per station.
func (b *Builder) InstallGroundStations(stations []model.GroundStation) ([]*kb.Node, error) {
	nodes := make([]*kb.Node, 0, len(stations))
	for _, gs := range stations {
		if gs.LatitudeDeg < -90 || gs.LatitudeDeg > 90 || gs.LongitudeDeg < -180 || gs.LongitudeDeg > 180 {
			return nil, fmt.Errorf("ground station %q: coordinates (%v, %v) out of range", gs.Name, gs.LatitudeDeg, gs.LongitudeDeg)
		}
		n := &kb.Node{
			ID:       gs.Name,
			Name:     gs.Name,
			Role:     model.RoleGround,
			Mobility: core.NewStaticMobility(core.GeodeticToECEF(gs.LatitudeDeg, gs.LongitudeDeg, gs.AltitudeM)),
		}
		if err := b.store.AddNode(n); err != nil {
			return nil, fmt.Errorf("install ground station: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// InstallTLESatellites adds one SGP4-propagated node per element set.
func (b *Builder) InstallTLESatellites(tles []model.TLESatellite, precision time.Duration) ([]*kb.Node, error) {
	nodes := make([]*kb.Node, 0, len(tles))
	for _, tle := range tles {
		mob, err := core.NewSGP4Mobility(tle, b.epoch, precision)
		if err != nil {
			return nil, err
		}
		n := &kb.Node{ID: tle.Name, Name: tle.Name, Role: model.RoleSatellite, Mobility: mob}
		if err := b.store.AddNode(n); err != nil {
			return nil, fmt.Errorf("install TLE satellite: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// StartCourseTracking begins periodic position publication for every
// installed orbit.
func (b *Builder) StartCourseTracking() {
	for _, m := range b.orbits {
		m.Start(b.sched)
	}
}

// StopCourseTracking cancels the periodic updates.
func (b *Builder) StopCourseTracking() {
	for _, m := range b.orbits {
		m.Stop()
	}
}
