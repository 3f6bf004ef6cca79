package health

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

const pingTimeout = 2 * time.Second

// Pinger reports whether a backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Service answers the overall check from the required pingers only. Every
// pinger can still be checked by name.
type Service struct {
	healthpb.UnimplementedHealthServer
	pingers  map[string]Pinger
	required []string
	logger   *slog.Logger
}

func NewService(logger *slog.Logger, pingers map[string]Pinger, required ...string) *Service {
	return &Service{pingers: pingers, required: required, logger: logger}
}

func (s *Service) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if req.GetService() != "" {
		if _, ok := s.pingers[req.GetService()]; !ok {
			return nil, status.Errorf(codes.NotFound, "unknown service %q", req.GetService())
		}
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	names := s.required
	if req.GetService() != "" {
		names = []string{req.GetService()}
	}
	for _, name := range names {
		p, ok := s.pingers[name]
		if !ok {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", "dependency", name, "error", err)
			return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
		}
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}
