package httpapi

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealth serves the standard gRPC health protocol on its own listener
// for orchestrators that probe over gRPC instead of HTTP.
type GRPCHealth struct {
	server *grpc.Server
	state  *health.Server
}

// NewGRPCHealth builds the server in the serving state.
func NewGRPCHealth() *GRPCHealth {
	state := health.NewServer()
	state.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, state)
	return &GRPCHealth{server: srv, state: state}
}

// Serve blocks on the listener until Stop is called.
func (g *GRPCHealth) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return g.server.Serve(lis)
}

// SetReady flips the reported status.
func (g *GRPCHealth) SetReady(ready bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	g.state.SetServingStatus("", status)
}

// Stop drains in-flight RPCs and shuts the listener down.
func (g *GRPCHealth) Stop() {
	g.server.GracefulStop()
}
