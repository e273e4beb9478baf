// Package otlptest runs an in-process OTLP gRPC collector for tests.
package otlptest

import (
	"context"
	"net"
	"sync"
	"testing"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/grpc"
)

// Collector accepts trace, metric and log exports and keeps counts of what arrived.
// For tests only.
type Collector struct {
	// Addr is the host:port the collector listens on.
	Addr string

	mu             sync.Mutex
	spans          int
	metricRequests int
	logBodies      []string
}

// NewCollector starts a collector on a loopback port. It stops when t finishes.
func NewCollector(t testing.TB) *Collector {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("otlptest: listen: %v", err)
	}
	c := &Collector{Addr: lis.Addr().String()}
	srv := grpc.NewServer()
	coltracepb.RegisterTraceServiceServer(srv, traceService{c: c})
	colmetricspb.RegisterMetricsServiceServer(srv, metricsService{c: c})
	collogspb.RegisterLogsServiceServer(srv, logsService{c: c})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return c
}

// Spans returns how many spans were exported.
func (c *Collector) Spans() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spans
}

// MetricRequests returns how many metric export requests arrived.
func (c *Collector) MetricRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metricRequests
}

// LogBodies returns the string bodies of every exported log record, in arrival order.
func (c *Collector) LogBodies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.logBodies...)
}

type traceService struct {
	coltracepb.UnimplementedTraceServiceServer
	c *Collector
}

func (s traceService) Export(_ context.Context, req *coltracepb.ExportTraceServiceRequest) (*coltracepb.ExportTraceServiceResponse, error) {
	n := 0
	for _, rs := range req.GetResourceSpans() {
		for _, ss := range rs.GetScopeSpans() {
			n += len(ss.GetSpans())
		}
	}
	s.c.mu.Lock()
	s.c.spans += n
	s.c.mu.Unlock()
	return &coltracepb.ExportTraceServiceResponse{}, nil
}

type metricsService struct {
	colmetricspb.UnimplementedMetricsServiceServer
	c *Collector
}

func (s metricsService) Export(_ context.Context, _ *colmetricspb.ExportMetricsServiceRequest) (*colmetricspb.ExportMetricsServiceResponse, error) {
	s.c.mu.Lock()
	s.c.metricRequests++
	s.c.mu.Unlock()
	return &colmetricspb.ExportMetricsServiceResponse{}, nil
}

type logsService struct {
	collogspb.UnimplementedLogsServiceServer
	c *Collector
}

func (s logsService) Export(_ context.Context, req *collogspb.ExportLogsServiceRequest) (*collogspb.ExportLogsServiceResponse, error) {
	var bodies []string
	for _, rl := range req.GetResourceLogs() {
		for _, sl := range rl.GetScopeLogs() {
			for _, lr := range sl.GetLogRecords() {
				bodies = append(bodies, lr.GetBody().GetStringValue())
			}
		}
	}
	s.c.mu.Lock()
	s.c.logBodies = append(s.c.logBodies, bodies...)
	s.c.mu.Unlock()
	return &collogspb.ExportLogsServiceResponse{}, nil
}
