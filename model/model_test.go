package model

import (
	"errors"
	"testing"
	"time"
)

func TestOrbitStateValidate(t *testing.T) {
	valid := OrbitState{
		AltitudeM:          550_000,
		InclinationDeg:     53,
		Planes:             4,
		SatellitesPerPlane: 8,
		Plane:              3,
		Satellite:          7,
		Precision:          time.Second,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() on valid orbit: %v", err)
	}

	cases := map[string]func(o *OrbitState){
		"negative altitude": func(o *OrbitState) { o.AltitudeM = -1 },
		"inclination":       func(o *OrbitState) { o.InclinationDeg = 181 },
		"zero planes":       func(o *OrbitState) { o.Planes = 0 },
		"zero sats":         func(o *OrbitState) { o.SatellitesPerPlane = 0 },
		"plane index":       func(o *OrbitState) { o.Plane = 4 },
		"satellite index":   func(o *OrbitState) { o.Satellite = 8 },
		"zero precision":    func(o *OrbitState) { o.Precision = 0 },
	}
	for name, mutate := range cases {
		o := valid
		mutate(&o)
		if err := o.Validate(); !errors.Is(err, ErrInvalidOrbit) {
			t.Errorf("%s: expected ErrInvalidOrbit, got %v", name, err)
		}
	}
}

func TestConstellationStates(t *testing.T) {
	c := Constellation{Name: "shell", AltitudeM: 1_200_000, InclinationDeg: 70, Planes: 3, SatellitesPerPlane: 5}
	states, err := c.States()
	if err != nil {
		t.Fatalf("States: %v", err)
	}
	if len(states) != 15 {
		t.Fatalf("expected 15 states, got %d", len(states))
	}
	if states[5].Plane != 1 || states[5].Satellite != 0 {
		t.Fatalf("expected plane-major order, got plane=%d sat=%d", states[5].Plane, states[5].Satellite)
	}
	if states[0].Precision != DefaultPrecision {
		t.Fatalf("expected default precision, got %s", states[0].Precision)
	}

	if _, err := (Constellation{Name: "empty", Planes: 0, SatellitesPerPlane: 3}).States(); err == nil {
		t.Fatalf("expected error for constellation without planes")
	}
}

func TestAllocateAddressIsUniqueAndNotBroadcast(t *testing.T) {
	a := AllocateAddress()
	b := AllocateAddress()
	if a == b {
		t.Fatalf("expected distinct addresses, got %s twice", a)
	}
	if a.IsBroadcast() || a.IsZero() {
		t.Fatalf("allocated address %s must be neither broadcast nor zero", a)
	}
	if !BroadcastAddress.IsBroadcast() {
		t.Fatalf("BroadcastAddress.IsBroadcast() = false")
	}
}

func TestPacketCopyIsIndependent(t *testing.T) {
	p := NewPacket([]byte{1, 2, 3})
	cp := p.Copy()
	cp.Payload[0] = 9
	if p.Payload[0] != 1 {
		t.Fatalf("mutating copy changed original payload: %v", p.Payload)
	}
	if cp.UID != p.UID {
		t.Fatalf("copy should keep UID %d, got %d", p.UID, cp.UID)
	}
	if p.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", p.Len())
	}
}

func TestParseNodeRole(t *testing.T) {
	if ParseNodeRole("SAT") != RoleSatellite || ParseNodeRole("gnd") != RoleGround || ParseNodeRole("x") != RoleUnknown {
		t.Fatalf("ParseNodeRole mapping mismatch")
	}
}
