package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidOrbit is returned when an orbit or constellation definition
// cannot describe a circular orbit.
var ErrInvalidOrbit = errors.New("invalid orbit")

// DefaultPrecision is the sampling precision used when none is configured.
const DefaultPrecision = time.Second

// OrbitState describes one satellite slot of a Walker-style circular
// constellation. Positions derived from it are quantized to Precision.
type OrbitState struct {
	AltitudeM          float64       // metres above the mean Earth radius
	InclinationDeg     float64       // 0..180
	Planes             int           // number of orbital planes in the shell
	SatellitesPerPlane int           // satellites evenly spaced within a plane
	Plane              int           // index of this satellite's plane
	Satellite          int           // index of this satellite within its plane
	Precision          time.Duration // position sampling step
}

// Validate checks the orbit parameters. Altitude zero is accepted so that
// surface-grazing fixtures remain expressible.
func (o OrbitState) Validate() error {
	switch {
	case o.AltitudeM < 0:
		return fmt.Errorf("%w: negative altitude %v", ErrInvalidOrbit, o.AltitudeM)
	case o.InclinationDeg < 0 || o.InclinationDeg > 180:
		return fmt.Errorf("%w: inclination %v outside [0,180]", ErrInvalidOrbit, o.InclinationDeg)
	case o.Planes <= 0:
		return fmt.Errorf("%w: plane count must be positive, got %d", ErrInvalidOrbit, o.Planes)
	case o.SatellitesPerPlane <= 0:
		return fmt.Errorf("%w: satellites per plane must be positive, got %d", ErrInvalidOrbit, o.SatellitesPerPlane)
	case o.Plane < 0 || o.Plane >= o.Planes:
		return fmt.Errorf("%w: plane index %d out of range [0,%d)", ErrInvalidOrbit, o.Plane, o.Planes)
	case o.Satellite < 0 || o.Satellite >= o.SatellitesPerPlane:
		return fmt.Errorf("%w: satellite index %d out of range [0,%d)", ErrInvalidOrbit, o.Satellite, o.SatellitesPerPlane)
	case o.Precision <= 0:
		return fmt.Errorf("%w: precision must be positive, got %s", ErrInvalidOrbit, o.Precision)
	}
	return nil
}

// WithDefaults returns a copy with the zero-valued fields that have a
// sensible default filled in.
func (o OrbitState) WithDefaults() OrbitState {
	if o.Planes == 0 {
		o.Planes = 1
	}
	if o.SatellitesPerPlane == 0 {
		o.SatellitesPerPlane = 1
	}
	if o.Precision == 0 {
		o.Precision = DefaultPrecision
	}
	return o
}

// Constellation is one orbital shell: Planes x SatellitesPerPlane
// satellites sharing altitude and inclination.
type Constellation struct {
	Name               string
	AltitudeM          float64
	InclinationDeg     float64
	Planes             int
	SatellitesPerPlane int
	Precision          time.Duration
}

// Size returns the number of satellites in the shell.
func (c Constellation) Size() int {
	return c.Planes * c.SatellitesPerPlane
}

// States expands the shell into one OrbitState per satellite, plane-major.
func (c Constellation) States() ([]OrbitState, error) {
	precision := c.Precision
	if precision == 0 {
		precision = DefaultPrecision
	}
	out := make([]OrbitState, 0, c.Size())
	for p := 0; p < c.Planes; p++ {
		for s := 0; s < c.SatellitesPerPlane; s++ {
			st := OrbitState{
				AltitudeM:          c.AltitudeM,
				InclinationDeg:     c.InclinationDeg,
				Planes:             c.Planes,
				SatellitesPerPlane: c.SatellitesPerPlane,
				Plane:              p,
				Satellite:          s,
				Precision:          precision,
			}
			if err := st.Validate(); err != nil {
				return nil, fmt.Errorf("constellation %q: %w", c.Name, err)
			}
			out = append(out, st)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: constellation %q has no satellites", ErrInvalidOrbit, c.Name)
	}
	return out, nil
}
