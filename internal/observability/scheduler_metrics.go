package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/leo-simulator/timectrl"
)

// SchedulerCollector exposes discrete-event scheduler metrics.
type SchedulerCollector struct {
	gatherer prometheus.Gatherer

	EventsExecuted prometheus.Gauge
	EventsPending  prometheus.Gauge
	VirtualTime    prometheus.Gauge
	StepDuration   prometheus.Histogram
}

// NewSchedulerCollector registers scheduler metrics against the provided registerer.
func NewSchedulerCollector(reg prometheus.Registerer) (*SchedulerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	executed, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_events_executed",
		Help: "Events the scheduler has run since the start of the simulation.",
	}), "scheduler_events_executed")
	if err != nil {
		return nil, err
	}

	pending, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_events_pending",
		Help: "Events currently queued in the scheduler.",
	}), "scheduler_events_pending")
	if err != nil {
		return nil, err
	}

	virtual, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_virtual_time_seconds",
		Help: "Simulation time elapsed since the scheduler epoch.",
	}), "scheduler_virtual_time_seconds")
	if err != nil {
		return nil, err
	}

	step, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_step_duration_seconds",
		Help:    "Wall-clock time spent processing one time-controller step.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}), "scheduler_step_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &SchedulerCollector{
		gatherer:       gatherer,
		EventsExecuted: executed,
		EventsPending:  pending,
		VirtualTime:    virtual,
		StepDuration:   step,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SchedulerCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Sample copies the scheduler's counters into the gauges.
func (c *SchedulerCollector) Sample(s *timectrl.Scheduler) {
	if c == nil || s == nil {
		return
	}
	c.EventsExecuted.Set(float64(s.Executed()))
	c.EventsPending.Set(float64(s.Pending()))
	c.VirtualTime.Set(s.Elapsed().Seconds())
}

// ObserveStep records the wall-clock cost of one step.
func (c *SchedulerCollector) ObserveStep(d time.Duration) {
	if c == nil || c.StepDuration == nil {
		return
	}
	c.StepDuration.Observe(d.Seconds())
}
