package core

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/leo-simulator/model"
	"github.com/signalsfoundry/leo-simulator/timectrl"
)

var testEpoch = time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)

func TestStaticMobility_NoChange(t *testing.T) {
	m := NewStaticMobility(Vec3{X: 1, Y: 2, Z: 3})
	if got := m.Position(testEpoch); got != (Vec3{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("static mobility moved: %+v", got)
	}
	if got := m.Position(testEpoch.Add(time.Hour)); got != (Vec3{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("static mobility moved after an hour: %+v", got)
	}
	m.SetPosition(Vec3{X: 4})
	if got := m.Position(testEpoch); got != (Vec3{X: 4}) {
		t.Fatalf("SetPosition ignored: %+v", got)
	}
}

func TestOrbitMobilityRejectsInvalidState(t *testing.T) {
	_, err := NewOrbitMobility(model.OrbitState{AltitudeM: 550e3, Planes: 0, SatellitesPerPlane: 1, Precision: time.Second}, testEpoch)
	if !errors.Is(err, model.ErrInvalidOrbit) {
		t.Fatalf("expected ErrInvalidOrbit, got %v", err)
	}
}

func TestOrbitMobilityOverrideUntilPropagate(t *testing.T) {
	m, err := NewOrbitMobility(starlinkShell(0, 0), testEpoch)
	if err != nil {
		t.Fatalf("NewOrbitMobility: %v", err)
	}
	orbit := m.Position(testEpoch)

	fixed := Vec3{X: 1000, Y: 2000, Z: 3000}
	m.SetPosition(fixed)
	if !m.Overridden() {
		t.Fatalf("override flag not set")
	}
	if got := m.Position(testEpoch.Add(time.Minute)); got != fixed {
		t.Fatalf("Position = %+v, want override %+v", got, fixed)
	}

	if got := m.Propagate(testEpoch); got != orbit {
		t.Fatalf("Propagate = %+v, want orbit position %+v", got, orbit)
	}
	if m.Overridden() {
		t.Fatalf("override survived Propagate")
	}
	if got := m.Position(testEpoch); got != orbit {
		t.Fatalf("Position after Propagate = %+v, want %+v", got, orbit)
	}
}

func TestOrbitMobilityNeighbourOverridesDiffer(t *testing.T) {
	a, _ := NewOrbitMobility(starlinkShell(0, 0), testEpoch)
	b, _ := NewOrbitMobility(starlinkShell(0, 1), testEpoch)
	a.SetPosition(Vec3{X: 1000e3, Y: 7000e3})
	b.SetPosition(Vec3{X: 1100e3, Y: 7000e3})
	if a.Position(testEpoch).X == b.Position(testEpoch).X {
		t.Fatalf("neighbouring slots alias on x")
	}
}

func TestOrbitMobilitySpeed(t *testing.T) {
	m, _ := NewOrbitMobility(model.OrbitState{Planes: 1, SatellitesPerPlane: 1, Precision: time.Second}, testEpoch)
	if math.Abs(m.Speed()-7909.79)/7909.79 > 1e-4 {
		t.Fatalf("Speed = %v", m.Speed())
	}
}

func TestOrbitMobilityCourseChangeTicks(t *testing.T) {
	sched := timectrl.NewScheduler(testEpoch)
	state := starlinkShell(2, 3)
	state.Precision = 10 * time.Second
	m, _ := NewOrbitMobility(state, testEpoch)

	var changes []CourseChange
	m.OnCourseChange(func(c CourseChange) { changes = append(changes, c) })
	m.SetPosition(Vec3{X: 1})
	m.Start(sched)

	sched.RunUntil(testEpoch.Add(35 * time.Second))
	if len(changes) != 3 {
		t.Fatalf("got %d course changes, want 3", len(changes))
	}
	for i, c := range changes {
		want := testEpoch.Add(time.Duration(i+1) * 10 * time.Second)
		if !c.At.Equal(want) {
			t.Fatalf("change %d at %s, want %s", i, c.At, want)
		}
		if c.Position != OrbitPosition(state, c.At.Sub(testEpoch)) {
			t.Fatalf("change %d position is not the orbit position", i)
		}
	}
	if m.Overridden() {
		t.Fatalf("periodic propagation should clear the override")
	}

	m.Stop()
	sched.RunUntil(testEpoch.Add(time.Minute))
	if len(changes) != 3 {
		t.Fatalf("course changes continued after Stop: %d", len(changes))
	}
}

// Exact SGP4 values belong to go-satellite; only check that the model moves
// and lands at LEO distance.
func TestSGP4Mobility_ChangesOverTime(t *testing.T) {
	tle := model.TLESatellite{
		Name:  "ISS",
		Line1: "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990",
		Line2: "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760",
	}
	m, err := NewSGP4Mobility(tle, testEpoch, time.Second)
	if err != nil {
		t.Fatalf("NewSGP4Mobility: %v", err)
	}

	first := m.Position(testEpoch)
	second := m.Position(testEpoch.Add(5 * time.Minute))
	if first == second {
		t.Fatalf("expected orbital position to change over time, got %+v at both times", first)
	}
	if alt := first.Norm() - EarthRadiusM; alt < 300e3 || alt > 500e3 {
		t.Fatalf("ISS altitude = %.0f m, want LEO", alt)
	}
	if m.Position(testEpoch.Add(300*time.Millisecond)) != first {
		t.Fatalf("SGP4 position not quantized")
	}
}

func TestSGP4MobilityRejectsSubSecondPrecision(t *testing.T) {
	tle := model.TLESatellite{
		Name:  "ISS",
		Line1: "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990",
		Line2: "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760",
	}
	for _, p := range []time.Duration{0, 500 * time.Millisecond, 1500 * time.Millisecond} {
		if _, err := NewSGP4Mobility(tle, testEpoch, p); !errors.Is(err, model.ErrInvalidOrbit) {
			t.Fatalf("precision %s: expected ErrInvalidOrbit, got %v", p, err)
		}
	}
	if _, err := NewSGP4Mobility(tle, testEpoch, 2*time.Second); err != nil {
		t.Fatalf("precision 2s rejected: %v", err)
	}
}

func TestSGP4MobilityRejectsShortLines(t *testing.T) {
	_, err := NewSGP4Mobility(model.TLESatellite{Name: "bad", Line1: "1 x", Line2: "2 y"}, testEpoch, time.Second)
	if !errors.Is(err, model.ErrInvalidOrbit) {
		t.Fatalf("expected ErrInvalidOrbit, got %v", err)
	}
}
