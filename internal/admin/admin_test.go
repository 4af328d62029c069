package admin

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/leo-simulator/internal/observability"
)

func startTestServer(t *testing.T) (*Server, *observability.ChannelCollector) {
	t.Helper()
	collector, err := observability.NewChannelCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewChannelCollector: %v", err)
	}
	srv, err := Start(context.Background(), Config{
		MetricsAddr: "127.0.0.1:0",
		GRPCAddr:    "127.0.0.1:0",
		Collector:   collector,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv, collector
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestHTTPHealthAndMetrics(t *testing.T) {
	srv, collector := startTestServer(t)
	collector.SetScenarioNodes("satellite", 12)

	base := "http://" + srv.MetricsAddr()
	if code, _ := get(t, base+"/healthz"); code != http.StatusOK {
		t.Fatalf("/healthz status = %d, want 200", code)
	}
	code, body := get(t, base+"/metrics")
	if code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", code)
	}
	if !strings.Contains(body, `scenario_nodes{role="satellite"} 12`) {
		t.Fatalf("/metrics missing scenario gauge:\n%s", body)
	}

	srv.SetServing(false)
	if code, _ := get(t, base+"/healthz"); code != http.StatusServiceUnavailable {
		t.Fatalf("/healthz after SetServing(false) = %d, want 503", code)
	}
}

func TestGRPCHealth(t *testing.T) {
	srv, _ := startTestServer(t)

	conn, err := grpc.NewClient(srv.GRPCAddr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v, want SERVING", resp.GetStatus())
	}

	srv.SetServing(false)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("Check after SetServing(false): %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("status = %v, want NOT_SERVING", resp.GetStatus())
	}
}

func TestDisabledListeners(t *testing.T) {
	srv, err := Start(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if srv.MetricsAddr() != "" || srv.GRPCAddr() != "" {
		t.Fatalf("no listeners expected, got %q %q", srv.MetricsAddr(), srv.GRPCAddr())
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
