package core

import (
	"math"
	"time"
)

// DelayModel maps a pair of positions to a propagation delay.
type DelayModel interface {
	Delay(a, b Vec3) time.Duration
}

// ConstantSpeedDelay propagates at a fixed speed (m/s). A zero Speed means
// the speed of light.
type ConstantSpeedDelay struct {
	Speed float64
}

// Delay returns |a-b| / Speed.
func (m ConstantSpeedDelay) Delay(a, b Vec3) time.Duration {
	speed := m.Speed
	if speed <= 0 {
		speed = SpeedOfLight
	}
	seconds := a.DistanceTo(b) / speed
	return time.Duration(math.Round(seconds * float64(time.Second)))
}

// LossModel decides whether b can hear a. The float is the model's loss or
// received-power figure in dB; the bool is the reachability verdict.
type LossModel interface {
	Loss(a, b Vec3) (float64, bool)
}

// HorizonLoss is the plain line-of-sight test: reachable unless the Earth
// sits between the two points. MaxRangeM > 0 also bounds the distance.
type HorizonLoss struct {
	MaxRangeM float64
}

// Loss reports 0 dB and the line-of-sight verdict.
func (m HorizonLoss) Loss(a, b Vec3) (float64, bool) {
	if m.MaxRangeM > 0 && a.DistanceTo(b) > m.MaxRangeM {
		return 0, false
	}
	return 0, hasLineOfSight(a, b)
}

// RangeLoss is reachable iff the points are within MaxRangeM.
type RangeLoss struct {
	MaxRangeM float64
}

func (m RangeLoss) Loss(a, b Vec3) (float64, bool) {
	return 0, a.DistanceTo(b) <= m.MaxRangeM
}

// IslGrazingAltitudeM is the atmosphere height an inter-satellite chord
// must stay above.
const IslGrazingAltitudeM = 100e3

// IslLoss models laser/RF links between satellites: the chord must clear
// the atmosphere and, when MaxRangeM > 0, stay within range.
type IslLoss struct {
	MaxRangeM float64
}

func (m IslLoss) Loss(a, b Vec3) (float64, bool) {
	if m.MaxRangeM > 0 && a.DistanceTo(b) > m.MaxRangeM {
		return 0, false
	}
	return 0, clearsSphere(a, b, EarthRadiusM+IslGrazingAltitudeM)
}

// LinkBudgetLoss is a satellite-ground budget. The returned figure is the
// margin left after subtracting path, atmospheric and fade losses and the
// receiver noise floor from the transmitted EIRP plus receive gain:
//
//	margin = EIRP + RxGain - FSPL - Atmospheric - NoiseFloor - LinkMargin
//
// The link is reachable when margin > 0, the ground end sees the satellite
// above MinElevationDeg and the Earth does not block the path.
type LinkBudgetLoss struct {
	EIRPDBW           float64
	RxGainDB          float64
	FrequencyHz       float64
	MinElevationDeg   float64
	FreeSpaceLossDB   float64 // fixed FSPL; 0 derives it from distance and frequency
	AtmosphericLossDB float64
	LinkMarginDB      float64
	NoiseFloorDBW     float64
}

// FreeSpacePathLoss returns FSPL in dB for a distance in metres and a
// frequency in Hz.
func FreeSpacePathLoss(distanceM, frequencyHz float64) float64 {
	if distanceM <= 0 || frequencyHz <= 0 {
		return 0
	}
	return 20*math.Log10(distanceM) + 20*math.Log10(frequencyHz) + 20*math.Log10(4*math.Pi/SpeedOfLight)
}

func (m LinkBudgetLoss) Loss(a, b Vec3) (float64, bool) {
	if !hasLineOfSight(a, b) {
		return math.Inf(-1), false
	}

	// The lower of the two endpoints is the ground end.
	ground, sky := a, b
	if b.Norm() < a.Norm() {
		ground, sky = b, a
	}
	if ElevationDegrees(ground, sky) < m.MinElevationDeg {
		return math.Inf(-1), false
	}

	fspl := m.FreeSpaceLossDB
	if fspl <= 0 {
		fspl = FreeSpacePathLoss(a.DistanceTo(b), m.FrequencyHz)
	}
	margin := m.EIRPDBW + m.RxGainDB - fspl - m.AtmosphericLossDB - m.NoiseFloorDBW - m.LinkMarginDB
	return margin, margin > 0
}
