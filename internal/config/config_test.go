package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/leo-simulator/core"
	"github.com/signalsfoundry/leo-simulator/trace"
)

const minimalScenario = `
constellations:
  - name: shell
    altitude_km: 550
    inclination_deg: 53
    planes: 2
    satellites_per_plane: 3
ground_stations:
  - name: paris
    latitude_deg: 48.85
    longitude_deg: 2.35
user_links:
  - profile: starlink
    class: gw-forward
probes:
  - src: paris
    dst: shell-0-0
    interval: 1s
    max_packets: 10
trace:
  path: out/trace.csv
`

func TestParseAppliesDefaults(t *testing.T) {
	s, err := Parse([]byte(minimalScenario))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !s.Run.Epoch.Equal(DefaultEpoch) {
		t.Fatalf("epoch = %s, want %s", s.Run.Epoch, DefaultEpoch)
	}
	if s.Run.Duration != DefaultDuration || s.Run.Tick != DefaultTick {
		t.Fatalf("run defaults not applied: %+v", s.Run)
	}
	if s.Constellations[0].Precision != time.Second {
		t.Fatalf("precision = %s, want 1s", s.Constellations[0].Precision)
	}
	if s.ISL.Profile != DefaultISLProfile {
		t.Fatalf("isl profile = %q", s.ISL.Profile)
	}
	if s.Probes[0].PacketSize != DefaultPacketSize || s.Probes[0].Name != "paris->shell-0-0" {
		t.Fatalf("probe defaults not applied: %+v", s.Probes[0])
	}
	if s.Trace.Format != "csv" {
		t.Fatalf("trace format = %q, want csv from extension", s.Trace.Format)
	}
	if got := s.SatelliteCount(); got != 6 {
		t.Fatalf("SatelliteCount = %d, want 6", got)
	}
	c := s.Constellations[0].ConstellationModel()
	if c.AltitudeM != 550e3 || c.Size() != 6 {
		t.Fatalf("ConstellationModel = %+v", c)
	}
}

func TestParseDurationsAndEpoch(t *testing.T) {
	s, err := Parse([]byte(`
run:
  epoch: 2022-01-01T12:00:00Z
  duration: 90s
  tick: 250ms
  realtime: true
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := time.Date(2022, 1, 1, 12, 0, 0, 0, time.UTC)
	if !s.Run.Epoch.Equal(want) || s.Run.Duration != 90*time.Second || s.Run.Tick != 250*time.Millisecond || !s.Run.Realtime {
		t.Fatalf("run = %+v", s.Run)
	}
}

func TestParseRejectsInvalidScenarios(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown profile",
			yaml: "user_links:\n  - profile: iridium\n    class: ut-forward\n",
			want: "unknown link profile",
		},
		{
			name: "isl profile on user link",
			yaml: "user_links:\n  - profile: isl\n    class: ut-forward\n",
			want: "inter-satellite profile",
		},
		{
			name: "zero planes",
			yaml: "constellations:\n  - name: x\n    altitude_km: 550\n    inclination_deg: 53\n    planes: 0\n    satellites_per_plane: 3\n",
			want: "schema",
		},
		{
			name: "unknown field",
			yaml: "run:\n  speedup: 4\n",
			want: "schema",
		},
		{
			name: "bad class",
			yaml: "user_links:\n  - profile: starlink\n    class: isl\n",
			want: "schema",
		},
		{
			name: "negative duration",
			yaml: "run:\n  duration: -1s\n",
			want: "run.duration",
		},
		{
			name: "duplicate station",
			yaml: "ground_stations:\n  - {name: a, latitude_deg: 0, longitude_deg: 0}\n  - {name: a, latitude_deg: 1, longitude_deg: 1}\n",
			want: "duplicated",
		},
		{
			name: "sub-second TLE precision",
			yaml: "tle_satellites:\n  - {name: iss, line1: a, line2: b, precision: 500ms}\n",
			want: "whole number of seconds",
		},
		{
			name: "isl with user profile",
			yaml: "isl:\n  enabled: true\n  profile: telesat\n",
			want: "not an inter-satellite profile",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !errors.Is(err, ErrInvalidScenario) {
				t.Fatalf("error %v does not wrap ErrInvalidScenario", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidateWrapsProfileError(t *testing.T) {
	s := &Scenario{UserLinks: []UserLinkConfig{{Profile: "nope", Class: "gw-return"}}}
	s.ApplyDefaults()
	err := s.Validate()
	if !errors.Is(err, core.ErrUnknownProfile) {
		t.Fatalf("Validate error %v should wrap ErrUnknownProfile", err)
	}
}

func TestLoadExampleScenario(t *testing.T) {
	s, err := Load(filepath.Join("..", "..", "configs", "scenario.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(s.Constellations) != 1 || len(s.GroundStations) != 2 || len(s.TLESatellites) != 1 {
		t.Fatalf("unexpected scenario shape: %+v", s)
	}
	if !s.ISL.Enabled || len(s.UserLinks) != 1 || len(s.Probes) != 2 {
		t.Fatalf("links/probes not loaded: %+v", s)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidateWithCueCustomSchema(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "scenario.yaml")
	schemaPath := filepath.Join(dir, "strict.cue")
	if err := os.WriteFile(cfgPath, []byte("run:\n  realtime: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(schemaPath, []byte("#Scenario: {run: {realtime: false}}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ValidateWithCue(cfgPath, schemaPath); err == nil {
		t.Fatalf("expected conflict with custom schema")
	}

	if err := os.WriteFile(schemaPath, Schema(), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ValidateWithCue(cfgPath, schemaPath); err != nil {
		t.Fatalf("built-in schema rejected valid file: %v", err)
	}
}

func TestSaveThenLoad(t *testing.T) {
	s, err := Parse([]byte(minimalScenario))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	path := filepath.Join(t.TempDir(), "nested", "out.yaml")
	if err := Save(path, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load saved scenario: %v", err)
	}
	if got.Probes[0].Interval != time.Second || got.Constellations[0].Planes != 2 {
		t.Fatalf("saved scenario changed: %+v", got)
	}
}

func TestParseEmptyScenarioUsesDefaults(t *testing.T) {
	s, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil): %v", err)
	}
	if s.Run.Duration != DefaultDuration || s.SatelliteCount() != 0 {
		t.Fatalf("unexpected empty scenario: %+v", s)
	}
}

func TestValidateProbePacketHoldsHeader(t *testing.T) {
	s, err := Parse([]byte(minimalScenario))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	s.Probes[0].PacketSize = trace.ProbeHeaderLen - 1
	err = s.Validate()
	if !errors.Is(err, ErrInvalidScenario) || !strings.Contains(err.Error(), "packet_size") {
		t.Fatalf("expected packet_size error, got %v", err)
	}
	s.Probes[0].PacketSize = trace.ProbeHeaderLen
	if err := s.Validate(); err != nil {
		t.Fatalf("header-sized packet rejected: %v", err)
	}
}
