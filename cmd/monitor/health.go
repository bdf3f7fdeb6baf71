package main

import (
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	linecasttls "github.com/HatiCode/linecast/pkg/tls"
)

// healthService is the name reported alongside the overall ("") status.
const healthService = "linecast.monitor"

// healthServer serves grpc.health.v1.Health for the sensing loop.
type healthServer struct {
	server *grpc.Server
	health *health.Server
	lis    net.Listener
	logger *slog.Logger
}

// newHealthServer listens on addr and registers the health and reflection
// services. Status starts as SERVING.
func newHealthServer(addr string, tlsCfg linecasttls.Config, logger *slog.Logger) (*healthServer, error) {
	var opts []grpc.ServerOption
	if tlsCfg.Enabled {
		cfg, err := linecasttls.NewServerTLSConfig(tlsCfg)
		if err != nil {
			return nil, fmt.Errorf("grpc tls: %w", err)
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(cfg)))
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpc listen %s: %w", addr, err)
	}

	s := &healthServer{
		server: grpc.NewServer(opts...),
		health: health.NewServer(),
		lis:    lis,
		logger: logger,
	}
	grpc_health_v1.RegisterHealthServer(s.server, s.health)
	reflection.Register(s.server)
	s.SetServing(true)
	return s, nil
}

// Addr returns the bound listen address.
func (s *healthServer) Addr() string { return s.lis.Addr().String() }

// Serve blocks until Stop.
func (s *healthServer) Serve() error {
	s.logger.Info("grpc health server listening", "address", s.Addr())
	if err := s.server.Serve(s.lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// SetServing flips both the overall and the monitor service status.
func (s *healthServer) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if !serving {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(healthService, status)
}

// Stop marks everything NOT_SERVING and drains connections.
func (s *healthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
