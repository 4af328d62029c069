// Package sim assembles a scenario into a runnable simulation: it builds the
// topology, wires probes, traces and metrics, and paces the scheduler.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/leo-simulator/core"
	"github.com/signalsfoundry/leo-simulator/internal/config"
	"github.com/signalsfoundry/leo-simulator/internal/logging"
	"github.com/signalsfoundry/leo-simulator/internal/observability"
	"github.com/signalsfoundry/leo-simulator/kb"
	"github.com/signalsfoundry/leo-simulator/model"
	"github.com/signalsfoundry/leo-simulator/timectrl"
	"github.com/signalsfoundry/leo-simulator/topology"
	"github.com/signalsfoundry/leo-simulator/trace"
)

var (
	// ErrAlreadyRan is returned by a second call to Run.
	ErrAlreadyRan = errors.New("simulation already ran")
	// ErrProbeEndpoint is returned when a probe's nodes share no channel.
	ErrProbeEndpoint = errors.New("probe endpoint not found")
)

// Option customises Engine construction.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithChannelCollector exports channel metrics through c.
func WithChannelCollector(c *observability.ChannelCollector) Option {
	return func(e *Engine) { e.chMetrics = c }
}

// WithSchedulerCollector exports scheduler metrics through c.
func WithSchedulerCollector(c *observability.SchedulerCollector) Option {
	return func(e *Engine) { e.schedMetrics = c }
}

// WithTraceSink records to sink instead of the scenario's trace path.
func WithTraceSink(sink trace.Sink) Option {
	return func(e *Engine) { e.sink = sink }
}

type probeRun struct {
	name     string
	probe    *trace.DelayProbe
	delaySum time.Duration
	samples  int
}

// ProbeSummary reports one probe's outcome.
type ProbeSummary struct {
	Name      string
	Sent      int
	Received  int
	Lost      int
	MeanDelay time.Duration
}

// Summary is the result of a run.
type Summary struct {
	RunID          string
	Start          time.Time
	End            time.Time
	Satellites     int
	GroundStations int
	Channels       int
	EventsExecuted uint64
	Deliveries     uint64
	Drops          map[core.DropReason]uint64
	Probes         []ProbeSummary
	TraceRecords   int
}

// Engine is a fully wired simulation ready to Run.
type Engine struct {
	scenario *config.Scenario
	log      logging.Logger

	sched    *timectrl.Scheduler
	store    *kb.KnowledgeBase
	builder  *topology.Builder
	channels []*core.Channel
	byName   map[string]*core.Channel

	telemetry    *TelemetryState
	chMetrics    *observability.ChannelCollector
	schedMetrics *observability.SchedulerCollector
	sink         trace.Sink
	recorder     *trace.Recorder
	stopCourse   func()
	probes       []*probeRun

	satellites int
	stations   int
	deliveries atomic.Uint64
	drops      [3]atomic.Uint64
	ran        bool
}

var dropIndex = map[core.DropReason]int{
	core.DropUnreachable: 0,
	core.DropClass:       1,
	core.DropLinkDown:    2,
}

// New builds the topology described by s. s is expected to have been
// defaulted and validated by config.Parse.
func New(s *config.Scenario, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil scenario", config.ErrInvalidScenario)
	}
	e := &Engine{
		scenario:  s,
		log:       logging.Noop(),
		byName:    make(map[string]*core.Channel),
		telemetry: NewTelemetryState(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	e.sched = timectrl.NewScheduler(s.Run.Epoch)
	e.store = kb.NewKnowledgeBase()
	e.builder = topology.NewBuilder(e.store, e.sched, e.log)

	sats, stations, err := e.installNodes()
	if err != nil {
		return nil, err
	}
	if err := e.installChannels(sats, stations); err != nil {
		return nil, err
	}
	if err := e.installTracing(); err != nil {
		return nil, err
	}
	if err := e.installProbes(); err != nil {
		e.closeRecorder()
		return nil, err
	}

	if e.chMetrics != nil {
		e.chMetrics.SetScenarioNodes(model.RoleSatellite.String(), e.satellites)
		e.chMetrics.SetScenarioNodes(model.RoleGround.String(), e.stations)
	}
	e.log.Info(context.Background(), "scenario built",
		logging.Int("satellites", e.satellites),
		logging.Int("ground_stations", e.stations),
		logging.Int("channels", len(e.channels)),
		logging.Int("probes", len(e.probes)),
	)
	return e, nil
}

func (e *Engine) installNodes() (sats, stations []*kb.Node, err error) {
	for _, c := range e.scenario.Constellations {
		nodes, err := e.builder.InstallConstellation(c.ConstellationModel())
		if err != nil {
			return nil, nil, err
		}
		sats = append(sats, nodes...)
	}
	for _, t := range e.scenario.TLESatellites {
		nodes, err := e.builder.InstallTLESatellites([]model.TLESatellite{t.TLEModel()}, t.Precision)
		if err != nil {
			return nil, nil, fmt.Errorf("tle satellite %q: %w", t.Name, err)
		}
		sats = append(sats, nodes...)
	}
	stations, err = e.builder.InstallGroundStations(e.scenario.GroundStationModels())
	if err != nil {
		return nil, nil, err
	}
	e.satellites, e.stations = len(sats), len(stations)
	return sats, stations, nil
}

func deviceDefaults(d config.DeviceConfig) topology.DeviceDefaults {
	return topology.DeviceDefaults{
		DataRateBps:   d.DataRateBps,
		InterframeGap: d.InterframeGap,
		QueueSize:     d.QueueSize,
		MTU:           d.MTU,
	}
}

func (e *Engine) installChannels(sats, stations []*kb.Node) error {
	if e.scenario.ISL.Enabled && len(sats) > 1 {
		h := topology.NewIslHelper()
		p, err := core.ProfileByName(e.scenario.ISL.Profile)
		if err != nil {
			return err
		}
		h.Profile = p
		h.Device = deviceDefaults(e.scenario.ISL.Device)
		ch, devs, err := h.Install(e.builder, sats)
		if err != nil {
			return fmt.Errorf("install isl: %w", err)
		}
		if err := e.addChannel(ch, devs); err != nil {
			return err
		}
	}

	for i, u := range e.scenario.UserLinks {
		class, err := core.ParseChannelClass(u.Class)
		if err != nil {
			return fmt.Errorf("user_links[%d]: %w", i, err)
		}
		h, err := topology.NewUserLinkHelper(u.Profile, class)
		if err != nil {
			return fmt.Errorf("user_links[%d]: %w", i, err)
		}
		h.Device = deviceDefaults(u.Device)
		ch, devs, err := h.Install(e.builder, sats, stations)
		if err != nil {
			return fmt.Errorf("install user link %d: %w", i, err)
		}
		if err := e.addChannel(ch, devs); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) addChannel(ch *core.Channel, devs []*core.NetDevice) error {
	if _, dup := e.byName[ch.Name()]; dup {
		return fmt.Errorf("%w: duplicate channel %q", config.ErrInvalidScenario, ch.Name())
	}
	e.byName[ch.Name()] = ch
	e.channels = append(e.channels, ch)

	for _, d := range devs {
		e.telemetry.Watch(d)
	}
	ch.OnTxRx(func(core.TxRxEvent) { e.deliveries.Add(1) })
	ch.OnDrop(func(ev core.DropEvent) {
		if i, ok := dropIndex[ev.Reason]; ok {
			e.drops[i].Add(1)
		}
	})
	e.chMetrics.Observe(ch)
	return nil
}

func (e *Engine) installTracing() error {
	if e.sink == nil && e.scenario.Trace.Path != "" {
		sink, err := trace.Open(e.scenario.Trace.Path, e.scenario.Trace.Format)
		if err != nil {
			return fmt.Errorf("open trace: %w", err)
		}
		e.sink = sink
	}
	if e.sink == nil {
		return nil
	}
	e.recorder = trace.NewRecorder(e.sink, e.log)
	for _, ch := range e.channels {
		e.recorder.WatchChannel(ch)
	}
	if e.scenario.Trace.CourseChanges {
		e.stopCourse = e.recorder.WatchCourseChanges(e.store)
	}
	return nil
}

// deviceOn returns node's device on the named channel.
func (e *Engine) deviceOn(nodeID, channel string) *core.NetDevice {
	n := e.store.GetNode(nodeID)
	if n == nil {
		return nil
	}
	for _, d := range n.Devices {
		if d.Channel() != nil && d.Channel().Name() == channel {
			return d
		}
	}
	return nil
}

// sharedChannel picks the first channel carrying both nodes.
func (e *Engine) sharedChannel(src, dst string) string {
	for _, ch := range e.channels {
		if e.deviceOn(src, ch.Name()) != nil && e.deviceOn(dst, ch.Name()) != nil {
			return ch.Name()
		}
	}
	return ""
}

func (e *Engine) installProbes() error {
	for _, pc := range e.scenario.Probes {
		channel := pc.Channel
		if channel == "" {
			channel = e.sharedChannel(pc.Src, pc.Dst)
		}
		src, dst := e.deviceOn(pc.Src, channel), e.deviceOn(pc.Dst, channel)
		if src == nil || dst == nil {
			return fmt.Errorf("%w: probe %q: %s and %s share no channel %q", ErrProbeEndpoint, pc.Name, pc.Src, pc.Dst, channel)
		}
		p, err := trace.NewDelayProbe(e.sched, src, dst.Address(), trace.ProbeConfig{
			Interval:   pc.Interval,
			MaxPackets: pc.MaxPackets,
			PacketSize: pc.PacketSize,
		})
		if err != nil {
			return fmt.Errorf("probe %q: %w", pc.Name, err)
		}
		run := &probeRun{name: pc.Name, probe: p}
		p.Listen(dst, pc.Name)
		p.OnSample(func(s trace.Sample) {
			run.delaySum += s.Delay
			run.samples++
		})
		if e.recorder != nil {
			e.recorder.WatchProbe(p)
		}
		p.Start(e.scenario.Run.Epoch.Add(pc.Start))
		e.probes = append(e.probes, run)
	}
	return nil
}

// KnowledgeBase returns the node registry.
func (e *Engine) KnowledgeBase() *kb.KnowledgeBase { return e.store }

// Scheduler returns the scheduler driving the run.
func (e *Engine) Scheduler() *timectrl.Scheduler { return e.sched }

// Channels returns the installed channels in creation order.
func (e *Engine) Channels() []*core.Channel { return append([]*core.Channel(nil), e.channels...) }

// Channel returns the channel called name, or nil.
func (e *Engine) Channel(name string) *core.Channel { return e.byName[name] }

// Telemetry returns the per-device counters.
func (e *Engine) Telemetry() *TelemetryState { return e.telemetry }

// Run advances the simulation for the scenario's duration, or until ctx is
// cancelled, and returns what happened. Run may be called once.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	if e.ran {
		return nil, ErrAlreadyRan
	}
	e.ran = true

	ctx, runID := logging.EnsureRunID(ctx)
	ctx, log := logging.WithRunLogger(ctx, e.log)
	ctx, span := observability.Tracer().Start(ctx, "simulate", oteltrace.WithAttributes(
		attribute.String("leosim.run_id", runID),
		attribute.Int("leosim.satellites", e.satellites),
		attribute.Int("leosim.ground_stations", e.stations),
		attribute.Int("leosim.channels", len(e.channels)),
		attribute.String("leosim.duration", e.scenario.Run.Duration.String()),
	))
	defer span.End()

	mode := timectrl.Accelerated
	if e.scenario.Run.Realtime {
		mode = timectrl.RealTime
	}
	tc := timectrl.NewTimeController(e.sched, e.scenario.Run.Tick, mode)
	last := time.Now()
	tc.AddListener(func(time.Time) {
		now := time.Now()
		e.schedMetrics.ObserveStep(now.Sub(last))
		last = now
		e.schedMetrics.Sample(e.sched)
	})

	if e.scenario.Trace.CourseChanges {
		e.builder.StartCourseTracking()
	}
	start := e.sched.Now()
	log.Info(ctx, "simulation started",
		logging.String("mode", mode.String()),
		logging.Duration("duration", e.scenario.Run.Duration),
		logging.Duration("tick", e.scenario.Run.Tick),
	)

	<-tc.Start(ctx, e.scenario.Run.Duration)

	e.builder.StopCourseTracking()
	for _, p := range e.probes {
		p.probe.Stop()
	}
	if e.stopCourse != nil {
		e.stopCourse()
		e.stopCourse = nil
	}
	e.schedMetrics.Sample(e.sched)

	sum := e.summary(runID, start)
	span.SetAttributes(
		attribute.Int64("leosim.events_executed", int64(sum.EventsExecuted)),
		attribute.Int64("leosim.deliveries", int64(sum.Deliveries)),
	)

	err := e.closeRecorder()
	if ctx.Err() != nil {
		err = errors.Join(ctx.Err(), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn(ctx, "simulation ended early or with errors", logging.Err(err))
		return sum, err
	}
	log.Info(ctx, "simulation finished",
		logging.Any("events_executed", sum.EventsExecuted),
		logging.Any("deliveries", sum.Deliveries),
		logging.Int("trace_records", sum.TraceRecords),
	)
	return sum, nil
}

// Close releases the trace sink of an engine that will not Run.
func (e *Engine) Close() error {
	if e.stopCourse != nil {
		e.stopCourse()
		e.stopCourse = nil
	}
	return e.closeRecorder()
}

func (e *Engine) closeRecorder() error {
	if e.recorder == nil {
		return nil
	}
	werr := e.recorder.Err()
	cerr := e.recorder.Close()
	e.recorder = nil
	return errors.Join(werr, cerr)
}

func (e *Engine) summary(runID string, start time.Time) *Summary {
	sum := &Summary{
		RunID:          runID,
		Start:          start,
		End:            e.sched.Now(),
		Satellites:     e.satellites,
		GroundStations: e.stations,
		Channels:       len(e.channels),
		EventsExecuted: e.sched.Executed(),
		Deliveries:     e.deliveries.Load(),
		Drops:          make(map[core.DropReason]uint64, len(dropIndex)),
	}
	for reason, i := range dropIndex {
		sum.Drops[reason] = e.drops[i].Load()
	}
	for _, p := range e.probes {
		ps := ProbeSummary{
			Name:     p.name,
			Sent:     p.probe.Sent(),
			Received: p.probe.Received(),
			Lost:     p.probe.Lost(),
		}
		if p.samples > 0 {
			ps.MeanDelay = p.delaySum / time.Duration(p.samples)
		}
		sum.Probes = append(sum.Probes, ps)
	}
	if e.recorder != nil {
		for _, k := range []trace.Kind{trace.KindTxRx, trace.KindDrop, trace.KindLink, trace.KindCourse, trace.KindProbe} {
			sum.TraceRecords += e.recorder.Count(k)
		}
	}
	return sum
}
