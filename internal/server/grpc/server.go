// Package grpcserver exposes dispenser connectivity over the standard gRPC health protocol.
package grpcserver

import (
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// DeviceService is the health service name that follows dispenser connectivity.
const DeviceService = "pillmon.v1.Device"

const healthPrefix = "/grpc.health.v1.Health/"

// Server owns the gRPC server and its health registry. The overall status ("") is
// SERVING while the process runs; DeviceService flips with each sync outcome.
type Server struct {
	srv    *grpc.Server
	health *health.Server
	log    *zap.Logger
}

// New builds the server with recover, logging and auth interceptors.
func New(tokens TokenVerifier, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	hs := health.NewServer()
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RecoverUnary(log),
		LoggingUnary(log),
		AuthUnary(tokens, healthPrefix),
	))
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(DeviceService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Server{srv: srv, health: hs, log: log}
}

// SetDeviceConnected reports the latest connectivity. It is meant to be used as the
// reconciler's connectivity hook.
func (s *Server) SetDeviceConnected(connected bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if connected {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(DeviceService, st)
}

// EnableReflection registers server reflection (dev only).
func (s *Server) EnableReflection() { reflection.Register(s.srv) }

// Serve blocks serving on lis.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("grpc listening", zap.String("addr", lis.Addr().String()))
	return s.srv.Serve(lis)
}

// GracefulStop marks everything NOT_SERVING and drains in-flight calls.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
