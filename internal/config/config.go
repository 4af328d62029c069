// Package config loads simulation scenarios from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/leo-simulator/core"
	"github.com/signalsfoundry/leo-simulator/model"
	"github.com/signalsfoundry/leo-simulator/trace"
)

// ErrInvalidScenario wraps every validation failure.
var ErrInvalidScenario = errors.New("invalid scenario")

const (
	DefaultDuration    = time.Minute
	DefaultTick        = time.Second
	DefaultISLProfile  = "isl"
	DefaultTraceFormat = "jsonl"
	DefaultPacketSize  = 64
)

// DefaultEpoch is the virtual start time used when a scenario sets none.
var DefaultEpoch = time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)

// Scenario is the root of a scenario file.
type Scenario struct {
	Run            RunConfig             `yaml:"run"`
	Constellations []ConstellationConfig `yaml:"constellations"`
	TLESatellites  []TLEConfig           `yaml:"tle_satellites"`
	GroundStations []GroundStationConfig `yaml:"ground_stations"`
	ISL            ISLConfig             `yaml:"isl"`
	UserLinks      []UserLinkConfig      `yaml:"user_links"`
	Probes         []ProbeConfig         `yaml:"probes"`
	Trace          TraceConfig           `yaml:"trace"`
	Observability  ObservabilityConfig   `yaml:"observability"`
}

// RunConfig controls the virtual clock.
type RunConfig struct {
	Epoch    time.Time     `yaml:"epoch"`
	Duration time.Duration `yaml:"duration"`
	Tick     time.Duration `yaml:"tick"`
	Realtime bool          `yaml:"realtime"`
}

// ConstellationConfig describes one orbital shell.
type ConstellationConfig struct {
	Name               string        `yaml:"name"`
	AltitudeKm         float64       `yaml:"altitude_km"`
	InclinationDeg     float64       `yaml:"inclination_deg"`
	Planes             int           `yaml:"planes"`
	SatellitesPerPlane int           `yaml:"satellites_per_plane"`
	Precision          time.Duration `yaml:"precision"`
}

// TLEConfig is a satellite driven by SGP4.
type TLEConfig struct {
	Name      string        `yaml:"name"`
	Line1     string        `yaml:"line1"`
	Line2     string        `yaml:"line2"`
	Precision time.Duration `yaml:"precision"`
}

// GroundStationConfig is a fixed terminal.
type GroundStationConfig struct {
	Name         string  `yaml:"name"`
	LatitudeDeg  float64 `yaml:"latitude_deg"`
	LongitudeDeg float64 `yaml:"longitude_deg"`
	AltitudeM    float64 `yaml:"altitude_m"`
}

// DeviceConfig overrides per-device defaults on a link.
type DeviceConfig struct {
	DataRateBps   float64       `yaml:"data_rate_bps"`
	InterframeGap time.Duration `yaml:"interframe_gap"`
	QueueSize     int           `yaml:"queue_size"`
	MTU           int           `yaml:"mtu"`
}

// ISLConfig enables the inter-satellite channel.
type ISLConfig struct {
	Enabled bool         `yaml:"enabled"`
	Profile string       `yaml:"profile"`
	Device  DeviceConfig `yaml:"device"`
}

// UserLinkConfig adds one satellite-ground channel.
type UserLinkConfig struct {
	Profile string       `yaml:"profile"`
	Class   string       `yaml:"class"`
	Device  DeviceConfig `yaml:"device"`
}

// ProbeConfig schedules a delay probe between two nodes sharing a channel.
type ProbeConfig struct {
	Name       string        `yaml:"name"`
	Src        string        `yaml:"src"`
	Dst        string        `yaml:"dst"`
	Channel    string        `yaml:"channel"` // empty picks the first shared channel
	Start      time.Duration `yaml:"start"`
	Interval   time.Duration `yaml:"interval"`
	MaxPackets int           `yaml:"max_packets"`
	PacketSize int           `yaml:"packet_size"`
}

// TraceConfig selects where trace records go. An empty path disables it.
type TraceConfig struct {
	Path          string `yaml:"path"`
	Format        string `yaml:"format"`
	CourseChanges bool   `yaml:"course_changes"`
}

// ObservabilityConfig configures the admin surfaces and tracing.
type ObservabilityConfig struct {
	MetricsAddr string        `yaml:"metrics_addr"`
	GRPCAddr    string        `yaml:"grpc_addr"`
	Tracing     TracingConfig `yaml:"tracing"`
}

// TracingConfig mirrors observability.TracingConfig in YAML form.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Load reads, defaults and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes, applies defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*Scenario, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Save writes s as YAML.
func Save(path string, s *Scenario) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyDefaults fills in zero values that have a default.
func (s *Scenario) ApplyDefaults() {
	if s.Run.Epoch.IsZero() {
		s.Run.Epoch = DefaultEpoch
	}
	if s.Run.Duration == 0 {
		s.Run.Duration = DefaultDuration
	}
	if s.Run.Tick == 0 {
		s.Run.Tick = DefaultTick
	}
	for i := range s.Constellations {
		if s.Constellations[i].Precision == 0 {
			s.Constellations[i].Precision = model.DefaultPrecision
		}
	}
	for i := range s.TLESatellites {
		if s.TLESatellites[i].Precision == 0 {
			s.TLESatellites[i].Precision = model.DefaultPrecision
		}
	}
	if s.ISL.Profile == "" {
		s.ISL.Profile = DefaultISLProfile
	}
	for i := range s.Probes {
		if s.Probes[i].PacketSize == 0 {
			s.Probes[i].PacketSize = DefaultPacketSize
		}
		if s.Probes[i].Name == "" {
			s.Probes[i].Name = s.Probes[i].Src + "->" + s.Probes[i].Dst
		}
	}
	if s.Trace.Path != "" && s.Trace.Format == "" {
		s.Trace.Format = formatFromPath(s.Trace.Path)
	}
	if s.Observability.Tracing.Enabled {
		if s.Observability.Tracing.Exporter == "" {
			s.Observability.Tracing.Exporter = "stdout"
		}
		if s.Observability.Tracing.SampleRatio == 0 {
			s.Observability.Tracing.SampleRatio = 1
		}
	}
}

func formatFromPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return "csv"
	}
	return DefaultTraceFormat
}

// Validate rejects non-positive counts and durations, unknown profiles and
// classes, duplicate names and probes between unknown nodes.
func (s *Scenario) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if s.Run.Duration <= 0 {
		add("run.duration must be > 0")
	}
	if s.Run.Tick <= 0 {
		add("run.tick must be > 0")
	}

	names := make(map[string]bool)
	for i, c := range s.Constellations {
		if c.Name == "" {
			add("constellations[%d].name is required", i)
		} else if names[c.Name] {
			add("constellations[%d]: duplicate name %q", i, c.Name)
		}
		names[c.Name] = true
		if c.AltitudeKm <= 0 {
			add("constellations[%d].altitude_km must be > 0", i)
		}
		if c.InclinationDeg < 0 || c.InclinationDeg > 180 {
			add("constellations[%d].inclination_deg must be within [0,180]", i)
		}
		if c.Planes <= 0 || c.SatellitesPerPlane <= 0 {
			add("constellations[%d]: planes and satellites_per_plane must be > 0", i)
		}
		if c.Precision <= 0 {
			add("constellations[%d].precision must be > 0", i)
		}
	}
	for i, t := range s.TLESatellites {
		if t.Name == "" || names[t.Name] {
			add("tle_satellites[%d]: name %q is empty or duplicated", i, t.Name)
		}
		names[t.Name] = true
		if t.Line1 == "" || t.Line2 == "" {
			add("tle_satellites[%d]: line1 and line2 are required", i)
		}
		if t.Precision <= 0 || t.Precision%time.Second != 0 {
			add("tle_satellites[%d].precision must be a positive whole number of seconds", i)
		}
	}
	stations := make(map[string]bool)
	for i, g := range s.GroundStations {
		if g.Name == "" || names[g.Name] || stations[g.Name] {
			add("ground_stations[%d]: name %q is empty or duplicated", i, g.Name)
		}
		stations[g.Name] = true
		if g.LatitudeDeg < -90 || g.LatitudeDeg > 90 {
			add("ground_stations[%d].latitude_deg must be within [-90,90]", i)
		}
		if g.LongitudeDeg < -180 || g.LongitudeDeg > 180 {
			add("ground_stations[%d].longitude_deg must be within [-180,180]", i)
		}
	}

	if s.ISL.Enabled {
		p, err := core.ProfileByName(s.ISL.Profile)
		if err != nil {
			add("isl.profile: %w", err)
		} else if !p.InterSatellite {
			add("isl.profile %q is not an inter-satellite profile", s.ISL.Profile)
		}
		validateDevice(add, "isl.device", s.ISL.Device)
	}
	for i, u := range s.UserLinks {
		p, err := core.ProfileByName(u.Profile)
		if err != nil {
			add("user_links[%d].profile: %w", i, err)
		} else if p.InterSatellite {
			add("user_links[%d].profile %q is an inter-satellite profile", i, u.Profile)
		}
		class, err := core.ParseChannelClass(u.Class)
		if err != nil {
			add("user_links[%d].class: %w", i, err)
		} else if class == core.ClassInterSatellite {
			add("user_links[%d].class must be a satellite-ground class", i)
		}
		validateDevice(add, fmt.Sprintf("user_links[%d].device", i), u.Device)
	}

	for i, p := range s.Probes {
		if p.Src == "" || p.Dst == "" {
			add("probes[%d]: src and dst are required", i)
		}
		if p.Interval <= 0 {
			add("probes[%d].interval must be > 0", i)
		}
		if p.MaxPackets <= 0 {
			add("probes[%d].max_packets must be > 0", i)
		}
		if p.Start < 0 {
			add("probes[%d].start must be >= 0", i)
		}
		if p.PacketSize < trace.ProbeHeaderLen {
			add("probes[%d].packet_size must be >= %d", i, trace.ProbeHeaderLen)
		}
	}

	if s.Trace.Path != "" {
		switch strings.ToLower(s.Trace.Format) {
		case "csv", "jsonl", "json":
		default:
			add("trace.format %q is not csv or jsonl", s.Trace.Format)
		}
	}
	tr := s.Observability.Tracing
	if tr.SampleRatio < 0 || tr.SampleRatio > 1 {
		add("observability.tracing.sample_ratio must be within [0,1]")
	}
	if tr.Enabled {
		switch strings.ToLower(tr.Exporter) {
		case "stdout", "otlp", "otlpgrpc":
		default:
			add("observability.tracing.exporter %q is not stdout or otlp", tr.Exporter)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidScenario, errors.Join(errs...))
	}
	return nil
}

func validateDevice(add func(string, ...any), prefix string, d DeviceConfig) {
	if d.DataRateBps < 0 {
		add("%s.data_rate_bps must be >= 0", prefix)
	}
	if d.InterframeGap < 0 {
		add("%s.interframe_gap must be >= 0", prefix)
	}
	if d.QueueSize < 0 || d.MTU < 0 {
		add("%s: queue_size and mtu must be >= 0", prefix)
	}
}

// ConstellationModel converts c to the model form.
func (c ConstellationConfig) ConstellationModel() model.Constellation {
	return model.Constellation{
		Name:               c.Name,
		AltitudeM:          c.AltitudeKm * 1000,
		InclinationDeg:     c.InclinationDeg,
		Planes:             c.Planes,
		SatellitesPerPlane: c.SatellitesPerPlane,
		Precision:          c.Precision,
	}
}

// GroundStationModels converts the configured stations.
func (s *Scenario) GroundStationModels() []model.GroundStation {
	out := make([]model.GroundStation, 0, len(s.GroundStations))
	for _, g := range s.GroundStations {
		out = append(out, model.GroundStation{
			Name:         g.Name,
			LatitudeDeg:  g.LatitudeDeg,
			LongitudeDeg: g.LongitudeDeg,
			AltitudeM:    g.AltitudeM,
		})
	}
	return out
}

// TLEModel converts t to the model form.
func (t TLEConfig) TLEModel() model.TLESatellite {
	return model.TLESatellite{Name: t.Name, Line1: t.Line1, Line2: t.Line2}
}

// SatelliteCount is the number of satellites the scenario installs.
func (s *Scenario) SatelliteCount() int {
	n := len(s.TLESatellites)
	for _, c := range s.Constellations {
		n += c.Planes * c.SatellitesPerPlane
	}
	return n
}
