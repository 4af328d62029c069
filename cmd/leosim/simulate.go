package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/leo-simulator/core"
	"github.com/signalsfoundry/leo-simulator/internal/admin"
	"github.com/signalsfoundry/leo-simulator/internal/config"
	"github.com/signalsfoundry/leo-simulator/internal/logging"
	"github.com/signalsfoundry/leo-simulator/internal/observability"
	"github.com/signalsfoundry/leo-simulator/internal/sim"
)

type simulateOptions struct {
	configPath  string
	schemaPath  string
	duration    time.Duration
	realtime    bool
	tracePath   string
	metricsAddr string
	grpcAddr    string
	jsonSummary bool
}

func newSimulateCmd() *cobra.Command {
	opts := &simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scenario",
		Long:  "simulate builds the scenario's topology, runs it for the configured duration and prints a summary of deliveries, drops and probe delays.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSimulate(ctx, cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "configs/scenario.yaml", "Path to the scenario YAML")
	f.StringVar(&opts.schemaPath, "schema", "", "Additional CUE schema file defining #Scenario")
	f.DurationVar(&opts.duration, "duration", 0, "Override run.duration")
	f.BoolVar(&opts.realtime, "realtime", false, "Pace the virtual clock with the wall clock")
	f.StringVar(&opts.tracePath, "trace", "", "Override trace.path (.csv or .jsonl)")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Override observability.metrics_addr")
	f.StringVar(&opts.grpcAddr, "grpc-addr", "", "Override observability.grpc_addr")
	f.BoolVar(&opts.jsonSummary, "json", false, "Print the summary as JSON")
	return cmd
}

func (o *simulateOptions) apply(cmd *cobra.Command, s *config.Scenario) error {
	if o.duration != 0 {
		s.Run.Duration = o.duration
	}
	if cmd.Flags().Changed("realtime") {
		s.Run.Realtime = o.realtime
	}
	if o.tracePath != "" {
		s.Trace.Path = o.tracePath
		s.Trace.Format = ""
	}
	if o.metricsAddr != "" {
		s.Observability.MetricsAddr = o.metricsAddr
	}
	if o.grpcAddr != "" {
		s.Observability.GRPCAddr = o.grpcAddr
	}
	s.ApplyDefaults()
	return s.Validate()
}

// tracingConfig merges the scenario's tracing section with LEOSIM_* env
// overrides. Tracing enabled by either source stays enabled.
func tracingConfig(s *config.Scenario) observability.TracingConfig {
	cfg := observability.TracingConfigFromEnv()
	tr := s.Observability.Tracing
	if tr.Enabled {
		cfg.Enabled = true
		if os.Getenv("LEOSIM_TRACING_EXPORTER") == "" && tr.Exporter != "" {
			cfg.Exporter = tr.Exporter
		}
		if cfg.Endpoint == "" {
			cfg.Endpoint = tr.Endpoint
		}
		if os.Getenv("LEOSIM_TRACING_SAMPLE_RATIO") == "" && tr.SampleRatio > 0 {
			cfg.SampleRatio = tr.SampleRatio
		}
	}
	return cfg
}

func runSimulate(ctx context.Context, cmd *cobra.Command, opts *simulateOptions) error {
	log := logging.NewFromEnv()

	s, err := loadScenario(opts.configPath, opts.schemaPath)
	if err != nil {
		return err
	}
	if err := opts.apply(cmd, s); err != nil {
		return err
	}

	shutdownTracing, err := observability.InitTracing(ctx, tracingConfig(s), log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	chMetrics, err := observability.NewChannelCollector(reg)
	if err != nil {
		return err
	}
	schedMetrics, err := observability.NewSchedulerCollector(reg)
	if err != nil {
		return err
	}

	srv, err := admin.Start(ctx, admin.Config{
		MetricsAddr: s.Observability.MetricsAddr,
		GRPCAddr:    s.Observability.GRPCAddr,
		Collector:   chMetrics,
		Logger:      log,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	engine, err := sim.New(s,
		sim.WithLogger(log),
		sim.WithChannelCollector(chMetrics),
		sim.WithSchedulerCollector(schedMetrics),
	)
	if err != nil {
		return err
	}

	sum, runErr := engine.Run(ctx)
	if sum != nil {
		if err := printSummary(cmd.OutOrStdout(), sum, opts.jsonSummary); err != nil {
			return err
		}
	}
	return runErr
}

func printSummary(w io.Writer, sum *sim.Summary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}

	fmt.Fprintf(w, "run %s: %s simulated (%s .. %s)\n",
		sum.RunID, sum.End.Sub(sum.Start), sum.Start.Format(time.RFC3339), sum.End.Format(time.RFC3339))
	fmt.Fprintf(w, "nodes: %d satellites, %d ground stations on %d channels\n",
		sum.Satellites, sum.GroundStations, sum.Channels)
	fmt.Fprintf(w, "events executed: %d, deliveries: %d\n", sum.EventsExecuted, sum.Deliveries)

	reasons := make([]string, 0, len(sum.Drops))
	for r := range sum.Drops {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(w, "drops[%s]: %d\n", r, sum.Drops[core.DropReason(r)])
	}
	for _, p := range sum.Probes {
		fmt.Fprintf(w, "probe %s: sent=%d received=%d lost=%d mean_delay=%s\n",
			p.Name, p.Sent, p.Received, p.Lost, p.MeanDelay)
	}
	if sum.TraceRecords > 0 {
		fmt.Fprintf(w, "trace records: %d\n", sum.TraceRecords)
	}
	return nil
}
