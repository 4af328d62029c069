package observability

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/leo-simulator/core"
)

// ChannelCollector bundles Prometheus metrics for channel deliveries and
// the admin gRPC surface, and exposes them over HTTP.
type ChannelCollector struct {
	gatherer prometheus.Gatherer

	Deliveries    *prometheus.CounterVec
	Drops         *prometheus.CounterVec
	Delays        *prometheus.HistogramVec
	Attached      *prometheus.GaugeVec
	LinkDowns     *prometheus.CounterVec
	RPCRequests   *prometheus.CounterVec
	RPCDurations  *prometheus.HistogramVec
	ScenarioNodes *prometheus.GaugeVec
}

// NewChannelCollector registers channel metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewChannelCollector(reg prometheus.Registerer) (*ChannelCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	deliveries, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_deliveries_total",
		Help: "Deliveries scheduled by a channel, labeled by channel and class.",
	}, []string{"channel", "class"}), "channel_deliveries_total")
	if err != nil {
		return nil, err
	}

	drops, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_drops_total",
		Help: "Deliveries refused by a channel, labeled by channel and drop reason.",
	}, []string{"channel", "reason"}), "channel_drops_total")
	if err != nil {
		return nil, err
	}

	delays, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "channel_delivery_delay_seconds",
		Help:    "Transmission plus propagation delay of scheduled deliveries.",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	}, []string{"channel"}), "channel_delivery_delay_seconds")
	if err != nil {
		return nil, err
	}

	attached, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "channel_attached_devices",
		Help: "Devices currently attached and up on a channel.",
	}, []string{"channel"}), "channel_attached_devices")
	if err != nil {
		return nil, err
	}

	linkDowns, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_link_down_total",
		Help: "Attachments detached from a channel.",
	}, []string{"channel"}), "channel_link_down_total")
	if err != nil {
		return nil, err
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admin_requests_total",
		Help: "Total number of handled admin RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "admin_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "admin_request_duration_seconds",
		Help:    "Admin RPC latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"service", "method"}), "admin_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	nodes, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scenario_nodes",
		Help: "Nodes in the running scenario, labeled by role.",
	}, []string{"role"}), "scenario_nodes")
	if err != nil {
		return nil, err
	}

	return &ChannelCollector{
		gatherer:      gatherer,
		Deliveries:    deliveries,
		Drops:         drops,
		Delays:        delays,
		Attached:      attached,
		LinkDowns:     linkDowns,
		RPCRequests:   requests,
		RPCDurations:  durations,
		ScenarioNodes: nodes,
	}, nil
}

// Observe subscribes the collector to ch's delivery, drop and link-state
// events and seeds the attached-devices gauge.
func (c *ChannelCollector) Observe(ch *core.Channel) {
	if c == nil || ch == nil {
		return
	}
	name, class := ch.Name(), ch.Class().String()

	up := 0
	for i := 0; i < ch.NDevices(); i++ {
		if ch.IsUp(i) {
			up++
		}
	}
	c.Attached.WithLabelValues(name).Set(float64(up))

	ch.OnTxRx(func(ev core.TxRxEvent) {
		c.Deliveries.WithLabelValues(name, class).Inc()
		c.Delays.WithLabelValues(name).Observe(ev.Delay.Seconds())
	})
	ch.OnDrop(func(ev core.DropEvent) {
		c.Drops.WithLabelValues(name, string(ev.Reason)).Inc()
	})
	ch.OnLinkState(func(ev core.LinkStateEvent) {
		if ev.Up {
			c.Attached.WithLabelValues(name).Inc()
			return
		}
		c.Attached.WithLabelValues(name).Dec()
		c.LinkDowns.WithLabelValues(name).Inc()
	})
}

// SetScenarioNodes records how many nodes of a role the scenario holds.
func (c *ChannelCollector) SetScenarioNodes(role string, n int) {
	if c == nil || c.ScenarioNodes == nil {
		return
	}
	c.ScenarioNodes.WithLabelValues(role).Set(float64(n))
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *ChannelCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}

		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *ChannelCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components, returning "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

// register adds col to reg, returning the already-registered collector of
// the same type when one exists.
func register[T prometheus.Collector](reg prometheus.Registerer, col T, name string) (T, error) {
	if err := reg.Register(col); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return col, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	return register(reg, vec, name)
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	return register(reg, vec, name)
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	return register(reg, vec, name)
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	return register(reg, gauge, name)
}
