package model

import "strings"

// NodeRole distinguishes ground terminals from satellites. Channel classes
// use it to decide which endpoint pairs may talk.
type NodeRole int

const (
	RoleUnknown NodeRole = iota
	RoleGround
	RoleSatellite
)

func (r NodeRole) String() string {
	switch r {
	case RoleGround:
		return "ground"
	case RoleSatellite:
		return "satellite"
	default:
		return "unknown"
	}
}

// ParseNodeRole maps "ground"/"gnd"/"satellite"/"sat" to a role.
func ParseNodeRole(s string) NodeRole {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ground", "gnd", "ground_station":
		return RoleGround
	case "satellite", "sat":
		return RoleSatellite
	default:
		return RoleUnknown
	}
}

// GroundStation is a fixed terminal on the Earth's surface.
type GroundStation struct {
	Name         string
	LatitudeDeg  float64
	LongitudeDeg float64
	AltitudeM    float64
}

// TLESatellite is a satellite whose motion comes from a two-line element set.
type TLESatellite struct {
	Name  string
	Line1 string
	Line2 string
}
