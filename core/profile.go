package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownProfile is returned when a link profile name is not registered.
var ErrUnknownProfile = errors.New("unknown link profile")

// LinkProfile is a named parameter set for one deployment's links. The
// same loss model code serves every profile; only the numbers differ.
type LinkProfile struct {
	Name              string
	EIRPDBW           float64
	RxGainDB          float64
	FrequencyHz       float64
	MinElevationDeg   float64
	FreeSpaceLossDB   float64
	AtmosphericLossDB float64
	LinkMarginDB      float64
	NoiseFloorDBW     float64
	DataRateBps       float64
	MaxRangeM         float64

	// InterSatellite selects IslLoss instead of the link budget.
	InterSatellite bool
}

var profiles = map[string]LinkProfile{
	"starlink": {
		Name:              "starlink",
		EIRPDBW:           36.7,
		RxGainDB:          33,
		FrequencyHz:       12e9,
		MinElevationDeg:   25,
		AtmosphericLossDB: 2.5,
		LinkMarginDB:      3,
		NoiseFloorDBW:     -117.8,
		DataRateBps:       1e9,
	},
	"telesat": {
		Name:              "telesat",
		EIRPDBW:           44,
		RxGainDB:          40,
		FrequencyHz:       20e9,
		MinElevationDeg:   10,
		AtmosphericLossDB: 3.5,
		LinkMarginDB:      3,
		NoiseFloorDBW:     -117.8,
		DataRateBps:       1.5e9,
	},
	"telesat-user": {
		Name:              "telesat-user",
		EIRPDBW:           40,
		RxGainDB:          38,
		FrequencyHz:       20e9,
		MinElevationDeg:   10,
		AtmosphericLossDB: 3.5,
		LinkMarginDB:      3,
		NoiseFloorDBW:     -117.8,
		DataRateBps:       10e6,
	},
	"isl": {
		Name:           "isl",
		DataRateBps:    5e9,
		MaxRangeM:      5000e3,
		InterSatellite: true,
	},
}

// ProfileByName looks up a profile case-insensitively.
func ProfileByName(name string) (LinkProfile, error) {
	p, ok := profiles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return LinkProfile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return p, nil
}

// ProfileNames lists the registered profiles in sorted order.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate rejects profiles that cannot produce a usable channel.
func (p LinkProfile) Validate() error {
	if p.DataRateBps <= 0 {
		return fmt.Errorf("profile %q: data rate must be > 0", p.Name)
	}
	if p.InterSatellite {
		if p.MaxRangeM < 0 {
			return fmt.Errorf("profile %q: max range must be >= 0", p.Name)
		}
		return nil
	}
	if p.FrequencyHz <= 0 && p.FreeSpaceLossDB <= 0 {
		return fmt.Errorf("profile %q: frequency or fixed free-space loss required", p.Name)
	}
	if p.MinElevationDeg < 0 || p.MinElevationDeg > 90 {
		return fmt.Errorf("profile %q: elevation angle %.1f outside [0,90]", p.Name, p.MinElevationDeg)
	}
	return nil
}

// LossModel builds the loss model the profile parameterises.
func (p LinkProfile) LossModel() LossModel {
	if p.InterSatellite {
		return IslLoss{MaxRangeM: p.MaxRangeM}
	}
	return LinkBudgetLoss{
		EIRPDBW:           p.EIRPDBW,
		RxGainDB:          p.RxGainDB,
		FrequencyHz:       p.FrequencyHz,
		MinElevationDeg:   p.MinElevationDeg,
		FreeSpaceLossDB:   p.FreeSpaceLossDB,
		AtmosphericLossDB: p.AtmosphericLossDB,
		LinkMarginDB:      p.LinkMarginDB,
		NoiseFloorDBW:     p.NoiseFloorDBW,
	}
}
