package core

import (
	"math"
	"time"

	"github.com/signalsfoundry/leo-simulator/model"
)

// OrbitalSpeed returns the circular orbital velocity (m/s) at the given
// altitude above the mean Earth radius.
func OrbitalSpeed(altitudeM float64) float64 {
	return math.Sqrt(EarthGM / (EarthRadiusM + altitudeM))
}

// Quantize rounds t down to a multiple of precision. Non-positive
// precision leaves t unchanged.
func Quantize(t, precision time.Duration) time.Duration {
	if precision <= 0 {
		return t
	}
	q := t - t%precision
	if t < 0 && q != t {
		q -= precision
	}
	return q
}

// orbitAngles returns the argument of latitude u and the right ascension
// of the ascending node raan (radians) of a slot at elapsed time t.
func orbitAngles(s model.OrbitState, t time.Duration) (u, raan float64) {
	r := EarthRadiusM + s.AltitudeM
	tq := Quantize(t, s.Precision).Seconds()

	planeOffset, satOffset := 0.0, 0.0
	if s.Planes > 0 {
		planeOffset = 2 * math.Pi * float64(s.Plane) / float64(s.Planes)
	}
	if s.SatellitesPerPlane > 0 {
		satOffset = 2 * math.Pi * float64(s.Satellite) / float64(s.SatellitesPerPlane)
	}

	u = OrbitalSpeed(s.AltitudeM)*tq/r + satOffset
	return u, planeOffset
}

// OrbitPosition returns the Earth-centred position of the satellite at
// elapsed simulation time t. The result is constant within one precision
// window and always lies on the sphere of radius EarthRadiusM+AltitudeM.
func OrbitPosition(s model.OrbitState, t time.Duration) Vec3 {
	u, raan := orbitAngles(s, t)
	inc := s.InclinationDeg * math.Pi / 180
	r := EarthRadiusM + s.AltitudeM

	cu, su := math.Cos(u), math.Sin(u)
	co, so := math.Cos(raan), math.Sin(raan)
	ci, si := math.Cos(inc), math.Sin(inc)

	return Vec3{
		X: r * (co*cu - so*su*ci),
		Y: r * (so*cu + co*su*ci),
		Z: r * su * si,
	}
}

// OrbitVelocity returns the velocity vector at elapsed time t, tangent to
// the orbit and of magnitude OrbitalSpeed.
func OrbitVelocity(s model.OrbitState, t time.Duration) Vec3 {
	u, raan := orbitAngles(s, t)
	inc := s.InclinationDeg * math.Pi / 180
	v := OrbitalSpeed(s.AltitudeM)

	cu, su := math.Cos(u), math.Sin(u)
	co, so := math.Cos(raan), math.Sin(raan)
	ci, si := math.Cos(inc), math.Sin(inc)

	return Vec3{
		X: v * (-co*su - so*cu*ci),
		Y: v * (-so*su + co*cu*ci),
		Z: v * cu * si,
	}
}
