package core

import "math"

// Physical constants used by the orbit and propagation models. All
// geometry in this package is Earth-centred, in metres.
const (
	// EarthRadiusM is the mean Earth radius.
	EarthRadiusM = 6371009.0
	// EarthGM is the standard gravitational parameter of the Earth (m^3/s^2).
	EarthGM = 3.986004418e14
	// SpeedOfLight in vacuum (m/s).
	SpeedOfLight = 299792458.0
)

// Vec3 is an Earth-centred Cartesian vector in metres.
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Scale returns v * k.
func (v Vec3) Scale(k float64) Vec3 {
	return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Norm returns the Euclidean length of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	return v.Sub(other).Norm()
}

// clearsSphere reports whether the segment p1-p2 stays strictly outside a
// sphere of the given radius centred at the origin.
func clearsSphere(p1, p2 Vec3, radius float64) bool {
	v := p2.Sub(p1)
	a := v.Dot(v)
	if a == 0 {
		return p1.Dot(p1) > radius*radius
	}

	// Closest point on the segment to the origin; t minimises |p1 + t v|^2.
	t := -p1.Dot(v) / a
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	closest := p1.Add(v.Scale(t))
	return closest.Dot(closest) > radius*radius
}

// hasLineOfSight checks whether the Earth blocks the straight path between
// p1 and p2. Points sitting exactly on the surface are lifted by a small
// tolerance so a ground station can still see the sky above it.
func hasLineOfSight(p1, p2 Vec3) bool {
	const surfaceToleranceM = 1.0
	return clearsSphere(p1, p2, EarthRadiusM-surfaceToleranceM)
}

// ElevationDegrees returns the elevation angle of the target as seen from
// the observer, in degrees. 0° = geometric horizon, 90° = overhead.
func ElevationDegrees(observer, target Vec3) float64 {
	v := target.Sub(observer)
	vNorm := v.Norm()
	if vNorm == 0 {
		return 90
	}
	r := observer.Norm()
	if r == 0 {
		return 90
	}
	zenith := observer.Scale(1 / r)

	cosGamma := v.Dot(zenith) / vNorm
	if cosGamma > 1 {
		cosGamma = 1
	} else if cosGamma < -1 {
		cosGamma = -1
	}
	return 90.0 - math.Acos(cosGamma)*180.0/math.Pi
}

// GeodeticToECEF converts latitude/longitude/altitude on a spherical Earth
// to an Earth-centred position.
func GeodeticToECEF(latDeg, lonDeg, altM float64) Vec3 {
	lat := latDeg * math.Pi / 180
	lon := lonDeg * math.Pi / 180
	r := EarthRadiusM + altM
	return Vec3{
		X: r * math.Cos(lat) * math.Cos(lon),
		Y: r * math.Cos(lat) * math.Sin(lon),
		Z: r * math.Sin(lat),
	}
}
