// Package admin serves the operational surfaces of a running simulation:
// Prometheus metrics and health over HTTP, and the standard gRPC health
// service.
package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/leo-simulator/internal/logging"
	"github.com/signalsfoundry/leo-simulator/internal/observability"
)

// ServiceName is the gRPC health service name reported for the simulator.
const ServiceName = "leosim"

// Config selects which listeners to open. Empty addresses disable the
// corresponding server.
type Config struct {
	MetricsAddr string
	GRPCAddr    string
	Collector   *observability.ChannelCollector
	Logger      logging.Logger
}

// Server owns the admin listeners.
type Server struct {
	log     logging.Logger
	serving atomic.Bool

	httpSrv *http.Server
	httpLis net.Listener

	grpcSrv *grpc.Server
	grpcLis net.Listener
	health  *health.Server
}

// Start opens the configured listeners and serves them in the background.
func Start(ctx context.Context, cfg Config) (*Server, error) {
	log := cfg.Logger
	if log == nil {
		log = logging.Noop()
	}
	s := &Server{log: log}

	if cfg.MetricsAddr != "" {
		lis, err := net.Listen("tcp", cfg.MetricsAddr)
		if err != nil {
			return nil, fmt.Errorf("listen metrics %s: %w", cfg.MetricsAddr, err)
		}
		s.httpLis = lis
		s.httpSrv = &http.Server{Handler: s.mux(cfg.Collector)}
		go func() {
			if err := s.httpSrv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn(context.Background(), "metrics server exited", logging.Err(err))
			}
		}()
		log.Info(ctx, "serving Prometheus metrics", logging.String("addr", lis.Addr().String()))
	}

	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			s.closeHTTP(ctx)
			return nil, fmt.Errorf("listen gRPC %s: %w", cfg.GRPCAddr, err)
		}
		s.grpcLis = lis
		opts := []grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}
		if cfg.Collector != nil {
			opts = append(opts, grpc.ChainUnaryInterceptor(cfg.Collector.UnaryServerInterceptor()))
		}
		s.grpcSrv = grpc.NewServer(opts...)
		s.health = health.NewServer()
		healthpb.RegisterHealthServer(s.grpcSrv, s.health)
		go func() {
			if err := s.grpcSrv.Serve(lis); err != nil {
				log.Error(context.Background(), "gRPC server exited", logging.Err(err))
			}
		}()
		log.Info(ctx, "starting admin gRPC server", logging.String("addr", lis.Addr().String()))
	}

	s.SetServing(true)
	return s, nil
}

func (s *Server) mux(collector *observability.ChannelCollector) http.Handler {
	mux := http.NewServeMux()
	if collector != nil {
		mux.Handle("/metrics", collector.Handler())
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !s.serving.Load() {
			http.Error(w, "not serving", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// SetServing flips the status reported by /healthz and the gRPC health
// service.
func (s *Server) SetServing(ok bool) {
	s.serving.Store(ok)
	if s.health == nil {
		return
	}
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// MetricsAddr returns the bound HTTP address, or "" when disabled.
func (s *Server) MetricsAddr() string {
	if s.httpLis == nil {
		return ""
	}
	return s.httpLis.Addr().String()
}

// GRPCAddr returns the bound gRPC address, or "" when disabled.
func (s *Server) GRPCAddr() string {
	if s.grpcLis == nil {
		return ""
	}
	return s.grpcLis.Addr().String()
}

// Shutdown stops both servers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.SetServing(false)
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcSrv != nil {
		s.grpcSrv.GracefulStop()
	}
	return s.closeHTTP(ctx)
}

func (s *Server) closeHTTP(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
